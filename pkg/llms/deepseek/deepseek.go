package deepseek

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llms/deepseek/internal/deepseekclient"
	"github.com/effective-security/mcpbridge/pkg/toolcatalog"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge/pkg/llms", "deepseek")

var (
	// ErrEmptyResponse is returned when the API returns no choices.
	ErrEmptyResponse      = errors.New("deepseek: empty response")
	ErrUnexpectedToolSpec = errors.New("deepseek: unexpected tool spec")
)

const (
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleUser      = "user"
	RoleTool      = "tool"
)

// Unsupported lists the schema keywords DeepSeek function calling does not
// accept at any depth.
var Unsupported = toolcatalog.Unsupported{
	Anywhere: []string{"oneOf", "allOf", "not", "if", "then", "else", "patternProperties"},
}

type LLM struct {
	client  *deepseekclient.Client
	options *options
}

var _ llms.Adapter = (*LLM)(nil)

// New returns a new DeepSeek adapter.
func New(opts ...Option) (*LLM, error) {
	o := &options{
		token:          os.Getenv(tokenEnvVarName),
		model:          values.StringsCoalesce(os.Getenv(modelEnvVarName), DefaultModel),
		baseURL:        values.StringsCoalesce(os.Getenv(baseURLEnvVarName), DefaultBaseURL),
		maxTokens:      llms.DefaultMaxTokens,
		requestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.model == "" {
		return nil, errors.New("deepseek: model is required")
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: o.requestTimeout}
	}

	return &LLM{
		client:  deepseekclient.New(o.model, o.token, o.baseURL, o.httpClient),
		options: o,
	}, nil
}

// GetProviderType implements the Adapter interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderDeepSeek
}

// GetName implements the Adapter interface.
func (o *LLM) GetName() string {
	return o.options.model
}

// ToolSpec is the DeepSeek encoding of a tool catalog.
type ToolSpec struct {
	Tools []deepseekclient.Tool
	names []string
}

// Provider implements llms.ToolSpec
func (s *ToolSpec) Provider() llms.ProviderType {
	return llms.ProviderDeepSeek
}

// Names implements llms.ToolSpec
func (s *ToolSpec) Names() []string {
	return s.names
}

// Response is a raw chat completion.
type Response struct {
	Completion *deepseekclient.ChatCompletionResponse
}

// Provider implements llms.RawResponse
func (r *Response) Provider() llms.ProviderType {
	return llms.ProviderDeepSeek
}

// EncodeTools implements the Adapter interface.
func (o *LLM) EncodeTools(catalog *toolcatalog.Catalog) (llms.ToolSpec, error) {
	spec := &ToolSpec{}
	if catalog == nil {
		return spec, nil
	}
	if err := Unsupported.CheckCatalog(catalog); err != nil {
		return nil, errors.WithMessage(err, "deepseek")
	}

	for _, d := range catalog.Describe() {
		spec.Tools = append(spec.Tools, deepseekclient.Tool{
			Type: "function",
			Function: deepseekclient.FunctionDefinition{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  d.InputSchema,
			},
		})
		spec.names = append(spec.names, d.Name)
	}
	return spec, nil
}

// Send implements the Adapter interface.
func (o *LLM) Send(ctx context.Context, history []llms.Message, tools llms.ToolSpec, options ...llms.CallOption) (llms.RawResponse, error) {
	if !o.client.HasToken() {
		return nil, llms.MissingTokenError(llms.ProviderDeepSeek)
	}

	opts := llms.NewCallOptions(append([]llms.CallOption{
		llms.WithModel(o.options.model),
		llms.WithMaxTokens(o.options.maxTokens),
	}, options...)...)

	messages, err := ProcessMessages(history)
	if err != nil {
		return nil, llms.FatalError(errors.Wrap(err, "deepseek: failed to process messages"))
	}
	if opts.SystemPrompt != "" {
		messages = append([]*deepseekclient.ChatMessage{{Role: RoleSystem, Content: opts.SystemPrompt}}, messages...)
	}

	req := &deepseekclient.ChatRequest{
		Model:       opts.Model,
		Messages:    messages,
		MaxTokens:   values.NumbersCoalesce(opts.MaxTokens, llms.DefaultMaxTokens),
		Temperature: opts.Temperature,
	}

	if tools != nil {
		spec, ok := tools.(*ToolSpec)
		if !ok {
			return nil, llms.FatalError(errors.WithMessagef(ErrUnexpectedToolSpec, "%T", tools))
		}
		if len(spec.Tools) > 0 {
			req.Tools = spec.Tools
			req.ToolChoice = values.StringsCoalesce(opts.ToolChoice, "auto")
		}
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"model", req.Model,
		"messages", len(messages),
		"tools", len(req.Tools))

	resp, err := o.client.CreateChat(ctx, req)
	if err != nil {
		var serr *deepseekclient.StatusError
		if errors.As(err, &serr) {
			return nil, llms.ClassifyStatus(llms.ProviderDeepSeek, serr.StatusCode, err)
		}
		if errors.Is(err, deepseekclient.ErrEmptyResponse) {
			return nil, llms.FatalError(errors.Mark(err, llms.ErrMalformedResponse))
		}
		return nil, llms.ClassifyTransportError(ctx, llms.ProviderDeepSeek, err)
	}
	return &Response{Completion: resp}, nil
}

// Decode implements the Adapter interface.
// Reasoning content is captured on the turn and never replayed.
func (o *LLM) Decode(raw llms.RawResponse) (*llms.ModelTurn, error) {
	r, ok := raw.(*Response)
	if !ok || r == nil || r.Completion == nil {
		return nil, errors.WithMessagef(llms.ErrMalformedResponse, "deepseek: %T", raw)
	}
	resp := r.Completion
	if len(resp.Choices) == 0 {
		return nil, errors.Mark(ErrEmptyResponse, llms.ErrMalformedResponse)
	}

	choice := resp.Choices[0]
	turn := &llms.ModelTurn{
		ID:         resp.ID,
		Model:      resp.Model,
		StopReason: choice.FinishReason,
		Reasoning:  choice.Message.ReasoningContent,
		Usage: llms.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	if choice.Message.Content != "" {
		turn.Texts = append(turn.Texts, choice.Message.Content)
	}

	for _, tc := range choice.Message.ToolCalls {
		turn.ToolCalls = append(turn.ToolCalls, llms.ToolCall{
			ID:   tc.ID,
			Type: values.StringsCoalesce(tc.Type, "function"),
			FunctionCall: &llms.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: values.StringsCoalesce(strings.TrimSpace(tc.Function.Arguments), "{}"),
			},
		})
	}
	return turn, nil
}

// EncodeToolResult implements the Adapter interface.
// DeepSeek has no error flag on tool messages, failures always carry the envelope.
func (o *LLM) EncodeToolResult(res llms.ToolCallResponse) (json.RawMessage, error) {
	msg, err := toolMessage(res)
	if err != nil {
		return nil, err
	}
	js, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "deepseek: failed to encode tool result")
	}
	return js, nil
}

func toolMessage(res llms.ToolCallResponse) (*deepseekclient.ChatMessage, error) {
	content, err := llms.ToolResultContent(res)
	if err != nil {
		return nil, err
	}
	return &deepseekclient.ChatMessage{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: res.ToolCallID,
	}, nil
}

// ProcessMessages converts the neutral history to chat messages.
// Consecutive assistant entries are merged into one assistant message.
func ProcessMessages(messages []llms.Message) ([]*deepseekclient.ChatMessage, error) {
	result := make([]*deepseekclient.ChatMessage, 0, len(messages))

	var pending *deepseekclient.ChatMessage
	var pendingText []string
	flush := func() {
		if pending == nil {
			return
		}
		pending.Content = strings.Join(pendingText, "\n")
		result = append(result, pending)
		pending = nil
		pendingText = nil
	}

	for idx, msg := range messages {
		if len(msg.Parts) == 0 {
			continue
		}
		if msg.Role == llms.RoleAI {
			if pending == nil {
				pending = &deepseekclient.ChatMessage{Role: RoleAssistant}
			}
			for _, part := range msg.Parts {
				switch p := part.(type) {
				case llms.TextContent:
					if p.Text != "" {
						pendingText = append(pendingText, p.Text)
					}
				case llms.ToolCall:
					pending.ToolCalls = append(pending.ToolCalls, deepseekclient.ToolCall{
						ID:   p.ID,
						Type: "function",
						Function: deepseekclient.FunctionCall{
							Name:      p.Name(),
							Arguments: values.StringsCoalesce(p.Arguments(), "{}"),
						},
					})
				default:
					return nil, errors.Errorf("message %d: unsupported AI message part type: %T", idx, part)
				}
			}
			continue
		}

		flush()

		switch msg.Role {
		case llms.RoleSystem:
			if text := msg.Text(); text != "" {
				result = append(result, &deepseekclient.ChatMessage{Role: RoleSystem, Content: text})
			}
		case llms.RoleHuman:
			if text := msg.Text(); text != "" {
				result = append(result, &deepseekclient.ChatMessage{Role: RoleUser, Content: text})
			}
		case llms.RoleTool:
			for _, part := range msg.Parts {
				res, ok := part.(llms.ToolCallResponse)
				if !ok {
					return nil, errors.Errorf("message %d: expected part of type ToolCallResponse, got %T", idx, part)
				}
				tm, err := toolMessage(res)
				if err != nil {
					return nil, err
				}
				result = append(result, tm)
			}
		default:
			return nil, errors.WithMessagef(llms.ErrUnexpectedRole, "message %d: %v", idx, msg.Role)
		}
	}
	flush()
	return result, nil
}
