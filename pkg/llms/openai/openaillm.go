package openai

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/toolcatalog"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge/pkg/llms", "openai")

var (
	// ErrEmptyResponse is returned when the OpenAI API returns no choices.
	ErrEmptyResponse      = errors.New("openai: empty response")
	ErrUnexpectedToolSpec = errors.New("openai: unexpected tool spec")
)

const (
	RoleSystem    = "system"
	RoleAssistant = "assistant"
	RoleUser      = "user"
	RoleTool      = "tool"
)

// Unsupported lists the schema keywords OpenAI rejects in function parameters.
var Unsupported = toolcatalog.Unsupported{
	Root: []string{"oneOf", "anyOf", "allOf", "not", "$ref"},
}

type LLM struct {
	Client  *openai.Client
	options *options
}

var _ llms.Adapter = (*LLM)(nil)

// New returns a new OpenAI adapter backed by the official SDK.
func New(opts ...Option) (*LLM, error) {
	o := &options{
		token:          os.Getenv(tokenEnvVarName),
		model:          values.StringsCoalesce(os.Getenv(modelEnvVarName), DefaultModel),
		baseURL:        values.StringsCoalesce(os.Getenv(baseURLEnvVarName), DefaultBaseURL),
		organization:   os.Getenv(organizationEnvVarName),
		maxTokens:      llms.DefaultMaxTokens,
		requestTimeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.model == "" {
		return nil, errors.New("openai: model is required")
	}

	sdkOpts := []option.RequestOption{
		option.WithAPIKey(o.token),
		option.WithBaseURL(o.baseURL),
		// retries are owned by the conversation loop
		option.WithMaxRetries(0),
		option.WithRequestTimeout(o.requestTimeout),
	}
	if o.organization != "" {
		sdkOpts = append(sdkOpts, option.WithOrganization(o.organization))
	}
	if o.httpClient != nil {
		sdkOpts = append(sdkOpts, option.WithHTTPClient(o.httpClient))
	}

	client := openai.NewClient(sdkOpts...)
	return &LLM{
		Client:  &client,
		options: o,
	}, nil
}

// GetProviderType implements the Adapter interface.
func (o *LLM) GetProviderType() llms.ProviderType {
	return llms.ProviderOpenAI
}

// GetName implements the Adapter interface.
func (o *LLM) GetName() string {
	return o.options.model
}

// ToolSpec is the OpenAI encoding of a tool catalog.
type ToolSpec struct {
	Tools []openai.ChatCompletionToolUnionParam
	names []string
}

// Provider implements llms.ToolSpec
func (s *ToolSpec) Provider() llms.ProviderType {
	return llms.ProviderOpenAI
}

// Names implements llms.ToolSpec
func (s *ToolSpec) Names() []string {
	return s.names
}

// Response is a raw chat completion.
type Response struct {
	Completion *openai.ChatCompletion
}

// Provider implements llms.RawResponse
func (r *Response) Provider() llms.ProviderType {
	return llms.ProviderOpenAI
}

// EncodeTools implements the Adapter interface.
// The descriptor schema is passed as function parameters unchanged.
func (o *LLM) EncodeTools(catalog *toolcatalog.Catalog) (llms.ToolSpec, error) {
	spec := &ToolSpec{}
	if catalog == nil {
		return spec, nil
	}
	if err := Unsupported.CheckCatalog(catalog); err != nil {
		return nil, errors.WithMessage(err, "openai")
	}

	for _, d := range catalog.Describe() {
		fn := openai.FunctionDefinitionParam{
			Name:       d.Name,
			Parameters: openai.FunctionParameters(d.Schema()),
		}
		if d.Description != "" {
			fn.Description = openai.String(d.Description)
		}
		spec.Tools = append(spec.Tools, openai.ChatCompletionFunctionTool(fn))
		spec.names = append(spec.names, d.Name)
	}
	return spec, nil
}

// Send implements the Adapter interface.
func (o *LLM) Send(ctx context.Context, history []llms.Message, tools llms.ToolSpec, options ...llms.CallOption) (llms.RawResponse, error) {
	if o.options.token == "" {
		return nil, llms.MissingTokenError(llms.ProviderOpenAI)
	}

	opts := llms.NewCallOptions(append([]llms.CallOption{
		llms.WithModel(o.options.model),
		llms.WithMaxTokens(o.options.maxTokens),
	}, options...)...)

	messages, err := ProcessMessages(history)
	if err != nil {
		return nil, llms.FatalError(errors.Wrap(err, "openai: failed to process messages"))
	}
	if opts.SystemPrompt != "" {
		messages = append([]openai.ChatCompletionMessageParamUnion{openai.SystemMessage(opts.SystemPrompt)}, messages...)
	}

	params := openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(opts.Model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(values.NumbersCoalesce(opts.MaxTokens, llms.DefaultMaxTokens))),
	}
	if opts.Temperature != nil {
		params.Temperature = openai.Float(*opts.Temperature)
	}

	if tools != nil {
		spec, ok := tools.(*ToolSpec)
		if !ok {
			return nil, llms.FatalError(errors.WithMessagef(ErrUnexpectedToolSpec, "%T", tools))
		}
		if len(spec.Tools) > 0 {
			params.Tools = spec.Tools
			if opts.ToolChoice != "" {
				params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
					OfAuto: openai.String(opts.ToolChoice),
				}
			}
		}
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"model", opts.Model,
		"messages", len(messages),
		"tools", len(params.Tools))

	completion, err := o.Client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, llms.ClassifyStatus(llms.ProviderOpenAI, apiErr.StatusCode, err)
		}
		return nil, llms.ClassifyTransportError(ctx, llms.ProviderOpenAI, err)
	}
	return &Response{Completion: completion}, nil
}

// Decode implements the Adapter interface.
// Only the first choice is used.
func (o *LLM) Decode(raw llms.RawResponse) (*llms.ModelTurn, error) {
	r, ok := raw.(*Response)
	if !ok || r == nil || r.Completion == nil {
		return nil, errors.WithMessagef(llms.ErrMalformedResponse, "openai: %T", raw)
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
		Usage: llms.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}

	if choice.Message.Content != "" {
		turn.Texts = append(turn.Texts, choice.Message.Content)
	} else if choice.Message.Refusal != "" {
		turn.Texts = append(turn.Texts, choice.Message.Refusal)
	}

	for _, tc := range choice.Message.ToolCalls {
		args := tc.Function.Arguments
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		turn.ToolCalls = append(turn.ToolCalls, llms.ToolCall{
			ID:   tc.ID,
			Type: "function",
			FunctionCall: &llms.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: args,
			},
		})
	}
	return turn, nil
}

// EncodeToolResult implements the Adapter interface.
// The result is a tool role message; failures carry the error envelope.
func (o *LLM) EncodeToolResult(res llms.ToolCallResponse) (json.RawMessage, error) {
	msg, err := toolMessage(res)
	if err != nil {
		return nil, err
	}
	js, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrap(err, "openai: failed to encode tool result")
	}
	return js, nil
}

func toolMessage(res llms.ToolCallResponse) (openai.ChatCompletionMessageParamUnion, error) {
	content, err := llms.ToolResultContent(res)
	if err != nil {
		return openai.ChatCompletionMessageParamUnion{}, err
	}
	return openai.ToolMessage(content, res.ToolCallID), nil
}

// ProcessMessages converts the neutral history to chat completion messages.
//
// Consecutive assistant entries are merged into one assistant message, so
// a batch of tool calls is declared by a single message and followed by one
// tool message per result.
func ProcessMessages(messages []llms.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))

	var pending *openai.ChatCompletionAssistantMessageParam
	var pendingText []string
	flush := func() {
		if pending == nil {
			return
		}
		if len(pendingText) > 0 {
			pending.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
				OfString: openai.String(strings.Join(pendingText, "\n")),
			}
		}
		result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: pending})
		pending = nil
		pendingText = nil
	}

	for idx, msg := range messages {
		if len(msg.Parts) == 0 {
			continue
		}
		switch msg.Role {
		case llms.RoleAI:
			if pending == nil {
				pending = &openai.ChatCompletionAssistantMessageParam{}
			}
			for _, part := range msg.Parts {
				switch p := part.(type) {
				case llms.TextContent:
					if p.Text != "" {
						pendingText = append(pendingText, p.Text)
					}
				case llms.ToolCall:
					pending.ToolCalls = append(pending.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
						OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
							ID: p.ID,
							Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
								Name:      p.Name(),
								Arguments: values.StringsCoalesce(p.Arguments(), "{}"),
							},
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
				result = append(result, openai.SystemMessage(text))
			}
		case llms.RoleHuman:
			if text := msg.Text(); text != "" {
				result = append(result, openai.UserMessage(text))
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
