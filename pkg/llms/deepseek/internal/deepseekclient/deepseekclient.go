package deepseekclient

import (
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

const (
	DefaultBaseURL   = "https://api.deepseek.com"
	DefaultChatModel = "deepseek-chat"
)

// ErrEmptyResponse is returned when the API returns an empty response.
var ErrEmptyResponse = errors.New("empty response")

// Client is a client for the DeepSeek chat completions API.
type Client struct {
	Model string

	token      string
	baseURL    string
	httpClient Doer
}

// Doer performs a HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// New returns a new DeepSeek client.
func New(model, token, baseURL string, httpClient Doer) *Client {
	c := &Client{
		Model:      model,
		token:      token,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultChatModel
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	return c
}

// HasToken returns true if the client has a credential.
func (c *Client) HasToken() bool {
	return c.token != ""
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
}

func (c *Client) buildURL(suffix string) string {
	return c.baseURL + suffix
}

// StatusError is returned when the API responds with a non-200 status.
type StatusError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return "API returned unexpected status code: " + http.StatusText(e.StatusCode)
	}
	return "API returned unexpected status code: " + http.StatusText(e.StatusCode) + ": " + e.Message
}

type errorMessage struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}
