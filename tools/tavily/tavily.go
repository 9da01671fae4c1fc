// Package tavily provides the web_search tool backed by the Tavily search API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/cockroachdb/errors"
	tavilygo "github.com/diverged/tavily-go"
	tavilyModels "github.com/diverged/tavily-go/models"
	"github.com/effective-security/mcpbridge/pkg/schema"
	"github.com/effective-security/mcpbridge/tools"
)

const (
	ToolName = "web_search"

	apiKeyEnvVarName = "TAVILY_API_KEY" //nolint:gosec
)

// SearchRequest represents the tool input.
type SearchRequest struct {
	Query string `json:"query" yaml:"Query" validate:"required" jsonschema:"title=Search Query,description=The query to search web."`
}

// SearchResult represents the structure for a search response
type SearchResult struct {
	Results []tavilyModels.SearchResult `json:"results" yaml:"Results"`
	Answer  string                      `json:"answer,omitempty" yaml:"Answer,omitempty"`
}

// Tool is a tool that provides a web search functionality
type Tool struct {
	apiKey     string
	params     map[string]any
	baseURL    string
	httpClient *http.Client
}

var (
	_ tools.Tool[SearchRequest, SearchResult] = (*Tool)(nil)
	_ tools.ReadOnlyTool                      = (*Tool)(nil)
)

// New returns the web_search tool, the API key is read from TAVILY_API_KEY.
func New() (*Tool, error) {
	apikey := os.Getenv(apiKeyEnvVarName)
	if apikey == "" {
		return nil, errors.Errorf("%s is not set", apiKeyEnvVarName)
	}

	sc, err := schema.For[SearchRequest]()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create schema")
	}
	return &Tool{
		apiKey:     apikey,
		params:     sc.Map(),
		httpClient: http.DefaultClient,
	}, nil
}

func (t *Tool) WithBaseURL(baseURL string) *Tool {
	t.baseURL = baseURL
	return t
}

func (t *Tool) WithHTTPClient(client *http.Client) *Tool {
	t.httpClient = client
	return t
}

func (t *Tool) Name() string {
	return ToolName
}

func (t *Tool) Description() string {
	return "Searches the web and returns the most relevant results with an aggregated answer."
}

func (t *Tool) Parameters() map[string]any {
	return t.params
}

func (t *Tool) ReadOnly() bool {
	return true
}

func (t *Tool) Run(_ context.Context, req *SearchRequest) (*SearchResult, error) {
	if req.Query == "" {
		return nil, errors.New("invalid request: empty query")
	}

	client := tavilygo.NewClient(t.apiKey)
	if t.baseURL != "" {
		client.BaseURL = t.baseURL
	}
	if t.httpClient != nil {
		client.HTTPClient = t.httpClient
	}

	searchResp, err := tavilygo.Search(client, tavilyModels.SearchRequest{
		Query:         req.Query,
		SearchDepth:   "basic",
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to perform search")
	}

	return &SearchResult{
		Results: searchResp.Results,
		Answer:  searchResp.Answer,
	}, nil
}

func (t *Tool) Call(ctx context.Context, input string) (string, error) {
	var req SearchRequest
	if err := tools.DecodeInput(input, &req); err != nil {
		return "", err
	}
	out, err := t.Run(ctx, &req)
	if err != nil {
		return "", err
	}
	bs, err := json.Marshal(out)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal output")
	}
	return string(bs), nil
}

func (r *SearchResult) String() string {
	var buf bytes.Buffer
	if r.Answer != "" {
		fmt.Fprintf(&buf, "ANSWER: %s\n", r.Answer)
	}

	for _, result := range r.Results {
		fmt.Fprintf(&buf, "- URL: %s\n", result.URL)
		fmt.Fprintf(&buf, "  TITLE: %s\n", result.Title)
		fmt.Fprintf(&buf, "  SCORE: %f\n", result.Score)
		fmt.Fprintf(&buf, "  CONTENT: %s\n", result.Content)
	}

	return buf.String()
}
