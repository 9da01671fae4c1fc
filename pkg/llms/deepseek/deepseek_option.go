package deepseek

import (
	"time"

	"github.com/effective-security/mcpbridge/pkg/llms/deepseek/internal/deepseekclient"
)

const (
	tokenEnvVarName   = "DEEPSEEK_API_KEY"  //nolint:gosec
	modelEnvVarName   = "DEEPSEEK_MODEL"    //nolint:gosec
	baseURLEnvVarName = "DEEPSEEK_BASE_URL" //nolint:gosec
)

const (
	// DefaultBaseURL is the DeepSeek API endpoint.
	DefaultBaseURL = deepseekclient.DefaultBaseURL
	// DefaultModel is used when no model is configured.
	DefaultModel = deepseekclient.DefaultChatModel
	// DefaultRequestTimeout bounds a single Send.
	DefaultRequestTimeout = 60 * time.Second
)

type options struct {
	token          string
	model          string
	baseURL        string
	maxTokens      int
	requestTimeout time.Duration
	httpClient     deepseekclient.Doer
}

// Option is a functional option for the DeepSeek adapter.
type Option func(*options)

// WithToken passes the DeepSeek API token to the client. If not set, the token
// is read from the DEEPSEEK_API_KEY environment variable.
func WithToken(token string) Option {
	return func(opts *options) {
		opts.token = token
	}
}

// WithModel passes the model to the client. If not set, the model
// is read from the DEEPSEEK_MODEL environment variable.
func WithModel(model string) Option {
	return func(opts *options) {
		opts.model = model
	}
}

// WithBaseURL passes the base url to the client. If not set, the base url
// is read from the DEEPSEEK_BASE_URL environment variable.
func WithBaseURL(baseURL string) Option {
	return func(opts *options) {
		opts.baseURL = baseURL
	}
}

// WithMaxTokens sets the default max completion tokens.
func WithMaxTokens(n int) Option {
	return func(opts *options) {
		opts.maxTokens = n
	}
}

// WithRequestTimeout sets the timeout of a single request.
func WithRequestTimeout(d time.Duration) Option {
	return func(opts *options) {
		opts.requestTimeout = d
	}
}

// WithHTTPClient allows setting a custom HTTP client.
func WithHTTPClient(client deepseekclient.Doer) Option {
	return func(opts *options) {
		opts.httpClient = client
	}
}
