package llms

// DefaultMaxTokens is used when no max tokens option is provided.
const DefaultMaxTokens = 1000

// CallOption is a function that configures a CallOptions.
type CallOption func(*CallOptions)

// CallOptions is a set of options for a backend request.
type CallOptions struct {
	// Model is the model to use.
	Model string `json:"model,omitempty"`
	// MaxTokens is the maximum number of tokens to generate.
	MaxTokens int `json:"max_tokens,omitempty"`
	// Temperature is the temperature for sampling, between 0 and 1.
	Temperature *float64 `json:"temperature,omitempty"`
	// SystemPrompt is sent ahead of the history.
	SystemPrompt string `json:"system_prompt,omitempty"`
	// ToolChoice overrides the provider tool choice, e.g. "auto" or "none".
	ToolChoice string `json:"tool_choice,omitempty"`
	// Metadata is a map of metadata to include in the request.
	// The meaning of this field is specific to the backend in use.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewCallOptions applies the options over the defaults.
func NewCallOptions(options ...CallOption) *CallOptions {
	opts := &CallOptions{
		MaxTokens: DefaultMaxTokens,
	}
	for _, o := range options {
		o(opts)
	}
	return opts
}

// WithModel specifies which model name to use.
func WithModel(model string) CallOption {
	return func(o *CallOptions) {
		o.Model = model
	}
}

// WithMaxTokens specifies the max number of tokens to generate.
func WithMaxTokens(maxTokens int) CallOption {
	return func(o *CallOptions) {
		o.MaxTokens = maxTokens
	}
}

// WithTemperature specifies the model temperature, a hyperparameter that
// regulates the randomness, or creativity, of the AI's responses.
func WithTemperature(temperature float64) CallOption {
	return func(o *CallOptions) {
		o.Temperature = &temperature
	}
}

// WithSystemPrompt specifies the system prompt.
func WithSystemPrompt(prompt string) CallOption {
	return func(o *CallOptions) {
		o.SystemPrompt = prompt
	}
}

// WithToolChoice specifies the tool choice of the request.
func WithToolChoice(choice string) CallOption {
	return func(o *CallOptions) {
		o.ToolChoice = choice
	}
}

// WithMetadata will add an option to set metadata to include in the request.
func WithMetadata(metadata map[string]any) CallOption {
	return func(o *CallOptions) {
		o.Metadata = metadata
	}
}

// WithOptions specifies options.
func WithOptions(options CallOptions) CallOption {
	return func(o *CallOptions) {
		*o = options
	}
}
