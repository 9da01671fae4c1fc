package llms

import (
	"context"
	"encoding/json"

	"github.com/effective-security/mcpbridge/pkg/toolcatalog"
)

//go:generate mockgen -source=llms.go -destination=../../mocks/mockllms/llms_mock.gen.go -package mockllms

// ProviderType is the type of provider.
type ProviderType string

const (
	// ProviderAnthropic is the Anthropic Messages API.
	ProviderAnthropic ProviderType = "ANTHROPIC"
	// ProviderOpenAI is the OpenAI Chat Completions API.
	ProviderOpenAI ProviderType = "OPENAI"
	// ProviderDeepSeek is the DeepSeek Chat Completions API.
	ProviderDeepSeek ProviderType = "DEEPSEEK"
)

// ToolSpec is the provider-specific encoding of a tool catalog,
// produced once by EncodeTools and passed back to every Send.
type ToolSpec interface {
	// Provider returns the provider the spec was encoded for.
	Provider() ProviderType
	// Names returns the tool names in catalog order.
	Names() []string
}

// RawResponse is an undecoded backend response.
type RawResponse interface {
	Provider() ProviderType
}

// Adapter translates the neutral conversation model into one backend's
// protocol and back.
//
// Adapters receive a read-only view of the history on every Send and never
// retain it across calls.
type Adapter interface {
	// GetProviderType returns the type of provider.
	GetProviderType() ProviderType
	// GetName returns the default model name.
	GetName() string
	// EncodeTools maps the catalog into the backend tool declarations.
	// It fails with toolcatalog.ErrUnsupportedSchemaFeature when a descriptor
	// uses a schema feature the backend cannot express.
	EncodeTools(catalog *toolcatalog.Catalog) (ToolSpec, error)
	// Send performs one blocking backend request with the full history.
	// Errors are marked with ErrTransientBackend, ErrFatalBackend or ErrAuth.
	Send(ctx context.Context, history []Message, tools ToolSpec, options ...CallOption) (RawResponse, error)
	// Decode parses the backend response into the neutral turn.
	Decode(raw RawResponse) (*ModelTurn, error)
	// EncodeToolResult renders a tool outcome in the shape the backend
	// expects as tool result content.
	EncodeToolResult(result ToolCallResponse) (json.RawMessage, error)
}

// Capability is a bitmask indicating supported features of an LLM provider.
type Capability uint64

const (
	// Basic text or chat generation
	CapabilityText Capability = 1 << iota

	// Function/tool calling
	CapabilityFunctionCalling
	CapabilityMultiToolCalling

	// Text and tool calls in the same response
	CapabilityInterleavedText

	// Reasoning content returned separately from the answer
	CapabilityReasoning

	// System prompt support
	CapabilitySystemPrompt
)

var providerCapabilities = map[ProviderType]Capability{
	ProviderOpenAI: CapabilityText |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilityInterleavedText |
		CapabilitySystemPrompt,

	ProviderAnthropic: CapabilityText |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilityInterleavedText |
		CapabilitySystemPrompt,

	ProviderDeepSeek: CapabilityText |
		CapabilityFunctionCalling |
		CapabilityMultiToolCalling |
		CapabilityReasoning |
		CapabilitySystemPrompt,
}

func ProviderCapabilities(pt ProviderType) Capability {
	return providerCapabilities[pt]
}

func (p ProviderType) Supports(cap Capability) bool {
	return ProviderCapabilities(p)&cap != 0
}
