package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/toolcatalog"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge/pkg/llms", "anthropic")

var (
	ErrEmptyResponse          = errors.New("anthropic: no response")
	ErrInvalidContentType     = errors.New("anthropic: invalid content type")
	ErrUnsupportedMessageType = errors.New("anthropic: unsupported message type")
	ErrUnexpectedToolSpec     = errors.New("anthropic: unexpected tool spec")
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Unsupported lists the schema keywords Anthropic rejects in a tool input schema.
var Unsupported = toolcatalog.Unsupported{
	Root: []string{"oneOf", "anyOf", "allOf", "not"},
}

// reserved top-level schema keys carried by dedicated fields
var reservedSchemaKeys = map[string]bool{
	"type":       true,
	"properties": true,
	"required":   true,
}

type LLM struct {
	Client  *anthropic.Client
	Options *Options
}

var _ llms.Adapter = (*LLM)(nil)

// New creates a new Anthropic adapter using the official Anthropic SDK.
//
// If no token is provided via options, the API key is read from the
// ANTHROPIC_API_KEY environment variable. A missing key is reported by Send
// as an authentication error.
func New(opts ...Option) (*LLM, error) {
	options := &Options{
		Token:          os.Getenv(TokenEnvVarName),
		Model:          DefaultModel,
		BaseURL:        "https://api.anthropic.com",
		HttpClient:     http.DefaultClient,
		MaxTokens:      llms.DefaultMaxTokens,
		RequestTimeout: DefaultRequestTimeout,
	}

	for _, opt := range opts {
		opt(options)
	}

	if options.Model == "" {
		return nil, errors.New("anthropic: model is required")
	}

	return &LLM{
		Client:  newClient(options),
		Options: options,
	}, nil
}

func newClient(options *Options) *anthropic.Client {
	sdkOpts := []option.RequestOption{
		option.WithAPIKey(options.Token),
		// retries are owned by the conversation loop
		option.WithMaxRetries(0),
		option.WithRequestTimeout(options.RequestTimeout),
	}

	if options.BaseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(options.BaseURL))
	}

	if options.HttpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(options.HttpClient))
	}

	if options.AnthropicBetaHeader != "" {
		sdkOpts = append(sdkOpts, option.WithHeader("anthropic-beta", options.AnthropicBetaHeader))
	}

	client := anthropic.NewClient(sdkOpts...)
	return &client
}

// GetName implements the Adapter interface.
func (o *LLM) GetName() string {
	return o.Options.Model
}

// GetProviderType implements the Adapter interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderAnthropic
}

// ToolSpec is the Anthropic encoding of a tool catalog.
type ToolSpec struct {
	Tools []anthropic.ToolUnionParam
	names []string
}

// Provider implements llms.ToolSpec
func (s *ToolSpec) Provider() llms.ProviderType {
	return llms.ProviderAnthropic
}

// Names implements llms.ToolSpec
func (s *ToolSpec) Names() []string {
	return s.names
}

// Response is a raw Anthropic message.
type Response struct {
	Message *anthropic.Message
}

// Provider implements llms.RawResponse
func (r *Response) Provider() llms.ProviderType {
	return llms.ProviderAnthropic
}

// EncodeTools implements the Adapter interface.
//
// The top-level properties and required list map to dedicated fields,
// any other top-level keyword is carried verbatim.
func (o *LLM) EncodeTools(catalog *toolcatalog.Catalog) (llms.ToolSpec, error) {
	spec := &ToolSpec{}
	if catalog == nil {
		return spec, nil
	}
	if err := Unsupported.CheckCatalog(catalog); err != nil {
		return nil, errors.WithMessage(err, "anthropic")
	}

	for _, d := range catalog.Describe() {
		schema := d.Schema()

		inputSchema := anthropic.ToolInputSchemaParam{
			Type:       "object",
			Properties: schema["properties"],
			Required:   d.Required(),
		}
		for k, v := range schema {
			if reservedSchemaKeys[k] {
				continue
			}
			if inputSchema.ExtraFields == nil {
				inputSchema.ExtraFields = map[string]any{}
			}
			inputSchema.ExtraFields[k] = v
		}

		tool := &anthropic.ToolParam{
			Name:        d.Name,
			InputSchema: inputSchema,
		}
		if d.Description != "" {
			tool.Description = anthropic.String(d.Description)
		}

		spec.Tools = append(spec.Tools, anthropic.ToolUnionParam{OfTool: tool})
		spec.names = append(spec.names, d.Name)
	}
	return spec, nil
}

// Send implements the Adapter interface.
func (o *LLM) Send(ctx context.Context, history []llms.Message, tools llms.ToolSpec, options ...llms.CallOption) (llms.RawResponse, error) {
	if o.Options.Token == "" {
		return nil, llms.MissingTokenError(llms.ProviderAnthropic)
	}

	opts := llms.NewCallOptions(append([]llms.CallOption{
		llms.WithModel(o.Options.Model),
		llms.WithMaxTokens(o.Options.MaxTokens),
	}, options...)...)

	messages, systemPrompt, err := ProcessMessages(history)
	if err != nil {
		return nil, llms.FatalError(errors.Wrap(err, "anthropic: failed to process messages"))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(opts.Model),
		Messages:  messages,
		MaxTokens: int64(values.NumbersCoalesce(opts.MaxTokens, llms.DefaultMaxTokens)),
	}

	if system := joinNonEmpty(opts.SystemPrompt, systemPrompt); system != "" {
		params.System = []anthropic.TextBlockParam{
			{
				Type: "text",
				Text: system,
			},
		}
	}

	if opts.Temperature != nil {
		params.Temperature = anthropic.Float(*opts.Temperature)
	}

	if tools != nil {
		spec, ok := tools.(*ToolSpec)
		if !ok {
			return nil, llms.FatalError(errors.WithMessagef(ErrUnexpectedToolSpec, "%T", tools))
		}
		if len(spec.Tools) > 0 {
			params.Tools = spec.Tools
		}
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"model", opts.Model,
		"messages", len(messages),
		"tools", len(params.Tools))

	result, err := o.Client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return nil, llms.ClassifyStatus(llms.ProviderAnthropic, apiErr.StatusCode, err)
		}
		return nil, llms.ClassifyTransportError(ctx, llms.ProviderAnthropic, err)
	}
	return &Response{Message: result}, nil
}

// Decode implements the Adapter interface.
func (o *LLM) Decode(raw llms.RawResponse) (*llms.ModelTurn, error) {
	r, ok := raw.(*Response)
	if !ok || r == nil || r.Message == nil {
		return nil, errors.WithMessagef(llms.ErrMalformedResponse, "anthropic: %T", raw)
	}
	result := r.Message

	turn := &llms.ModelTurn{
		ID:         result.ID,
		Model:      string(result.Model),
		StopReason: string(result.StopReason),
		Usage: llms.Usage{
			PromptTokens:     int(result.Usage.InputTokens),
			CompletionTokens: int(result.Usage.OutputTokens),
			TotalTokens:      int(result.Usage.InputTokens + result.Usage.OutputTokens),
		},
	}

	for i, contentBlock := range result.Content {
		switch content := contentBlock.AsAny().(type) {
		case anthropic.TextBlock:
			turn.Texts = append(turn.Texts, content.Text)
		case anthropic.ToolUseBlock:
			args := string(content.Input)
			if strings.TrimSpace(args) == "" || args == "null" {
				args = "{}"
			}
			turn.ToolCalls = append(turn.ToolCalls, llms.ToolCall{
				ID:   content.ID,
				Type: "function",
				FunctionCall: &llms.FunctionCall{
					Name:      content.Name,
					Arguments: args,
				},
			})
		case anthropic.ThinkingBlock:
			turn.Reasoning = joinNonEmpty(turn.Reasoning, content.Thinking)
		default:
			logger.KV(xlog.WARNING,
				"reason", "unsupported_content",
				"index", i,
				"type", contentBlock.Type)
		}
	}

	if len(turn.Texts) == 0 && len(turn.ToolCalls) == 0 && turn.StopReason == "" {
		return nil, errors.Mark(ErrEmptyResponse, llms.ErrMalformedResponse)
	}
	return turn, nil
}

// EncodeToolResult implements the Adapter interface.
// The result is a tool_result content block with is_error set on failures.
func (o *LLM) EncodeToolResult(res llms.ToolCallResponse) (json.RawMessage, error) {
	block, err := toolResultBlock(res)
	if err != nil {
		return nil, err
	}
	js, err := json.Marshal(block)
	if err != nil {
		return nil, errors.Wrap(err, "anthropic: failed to encode tool result")
	}
	return js, nil
}

func toolResultBlock(res llms.ToolCallResponse) (anthropic.ContentBlockParamUnion, error) {
	content, err := llms.ToolResultContent(res)
	if err != nil {
		return anthropic.ContentBlockParamUnion{}, err
	}
	return anthropic.NewToolResultBlock(res.ToolCallID, content, res.IsError), nil
}

// ProcessMessages converts the neutral history to Anthropic message parameters.
//
// System messages are returned as a separate system prompt. Consecutive
// entries of the same Anthropic role are merged into one message, so a
// batch of tool calls becomes one assistant message and their results one
// user message.
func ProcessMessages(messages []llms.Message) ([]anthropic.MessageParam, string, error) {
	chatMessages := make([]anthropic.MessageParam, 0, len(messages))
	var system []string
	lastRole := ""

	for idx, msg := range messages {
		if len(msg.Parts) == 0 {
			continue
		}

		var (
			role   string
			blocks []anthropic.ContentBlockParamUnion
			err    error
		)
		switch msg.Role {
		case llms.RoleSystem:
			if text := msg.Text(); text != "" {
				system = append(system, text)
			}
			continue
		case llms.RoleHuman:
			role = RoleUser
			blocks, err = HandleHumanMessage(msg)
		case llms.RoleAI:
			role = RoleAssistant
			blocks, err = HandleAIMessage(msg)
		case llms.RoleTool:
			role = RoleUser
			blocks, err = HandleToolMessage(msg)
		default:
			return nil, "", errors.WithMessagef(ErrUnsupportedMessageType, "message %d: %v", idx, msg.Role)
		}
		if err != nil {
			return nil, "", errors.WithMessagef(err, "message %d", idx)
		}
		if len(blocks) == 0 {
			continue
		}

		if role == lastRole {
			last := &chatMessages[len(chatMessages)-1]
			last.Content = append(last.Content, blocks...)
			continue
		}

		if role == RoleUser {
			chatMessages = append(chatMessages, anthropic.NewUserMessage(blocks...))
		} else {
			chatMessages = append(chatMessages, anthropic.NewAssistantMessage(blocks...))
		}
		lastRole = role
	}
	return chatMessages, strings.Join(system, "\n"), nil
}

// HandleHumanMessage converts a user text message to content blocks.
func HandleHumanMessage(msg llms.Message) ([]anthropic.ContentBlockParamUnion, error) {
	var contents []anthropic.ContentBlockParamUnion
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case llms.TextContent:
			if p.Text != "" {
				contents = append(contents, anthropic.NewTextBlock(p.Text))
			}
		default:
			return nil, errors.WithMessagef(ErrInvalidContentType, "human message part type: %T", part)
		}
	}
	return contents, nil
}

// HandleAIMessage converts assistant text and tool calls to content blocks.
func HandleAIMessage(msg llms.Message) ([]anthropic.ContentBlockParamUnion, error) {
	var contents []anthropic.ContentBlockParamUnion
	for _, part := range msg.Parts {
		switch p := part.(type) {
		case llms.ToolCall:
			args := p.Arguments()
			if strings.TrimSpace(args) == "" {
				args = "{}"
			}
			var inputJSON json.RawMessage
			if err := json.Unmarshal([]byte(args), &inputJSON); err != nil {
				return nil, errors.Wrap(err, "anthropic: failed to unmarshal tool call arguments")
			}
			contents = append(contents, anthropic.NewToolUseBlock(p.ID, inputJSON, p.Name()))
		case llms.TextContent:
			if p.Text != "" {
				contents = append(contents, anthropic.NewTextBlock(p.Text))
			}
		default:
			return nil, errors.WithMessagef(ErrInvalidContentType, "AI message part type: %T", part)
		}
	}
	return contents, nil
}

// HandleToolMessage converts tool results to tool_result content blocks.
func HandleToolMessage(msg llms.Message) ([]anthropic.ContentBlockParamUnion, error) {
	var contents []anthropic.ContentBlockParamUnion
	for _, part := range msg.Parts {
		res, ok := part.(llms.ToolCallResponse)
		if !ok {
			return nil, errors.WithMessagef(ErrInvalidContentType, "tool message part type: %T", part)
		}
		block, err := toolResultBlock(res)
		if err != nil {
			return nil, err
		}
		contents = append(contents, block)
	}
	return contents, nil
}

func joinNonEmpty(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	default:
		return a + "\n" + b
	}
}
