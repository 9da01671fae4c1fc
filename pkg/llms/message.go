package llms

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrUnexpectedRole is returned when a message role is of an unexpected type.
var ErrUnexpectedRole = errors.New("unexpected role")

// Role is the type of chat message.
type Role string

const (
	// RoleAI is a message sent by an AI.
	RoleAI Role = "ai"
	// RoleHuman is a message sent by a human.
	RoleHuman Role = "human"
	// RoleSystem is a message sent by the system.
	RoleSystem Role = "system"
	// RoleTool is a message sent by a tool.
	RoleTool Role = "tool"
)

// Kind classifies a message in the conversation history.
type Kind string

const (
	KindUserText                 Kind = "user_text"
	KindAssistantText            Kind = "assistant_text"
	KindAssistantToolCallRequest Kind = "assistant_tool_call_request"
	KindToolResult               Kind = "tool_result"
	KindSystem                   Kind = "system"
	KindUnknown                  Kind = "unknown"
)

// Tool result error kinds
const (
	ErrorKindUnknownTool      = "unknown_tool"
	ErrorKindExecution        = "execution_error"
	ErrorKindTimeout          = "timeout"
	ErrorKindInvalidArguments = "invalid_arguments"
	ErrorKindCancelled        = "cancelled"
	ErrorKindSessionLost      = "session_lost"
)

// Message is one entry of the conversation history. It has a role and a
// sequence of parts.
type Message struct {
	Role  Role          `json:"role"`
	Parts []ContentPart `json:"parts"`
}

// ContentPart is an interface all parts of content have to implement.
type ContentPart interface {
	isPart()
}

// TextPart creates TextContent from a given string.
func TextPart(s string) TextContent {
	return TextContent{Text: s}
}

// TextContent is content with some text.
type TextContent struct {
	Text string `json:"text"`
}

func (tc TextContent) String() string {
	return tc.Text
}

func (TextContent) isPart() {}

// FunctionCall is the name and arguments of a function call.
type FunctionCall struct {
	// The name of the function to call.
	Name string `json:"name"`
	// The arguments to pass to the function, as a JSON string.
	Arguments string `json:"arguments"`
}

// ToolCall is a call to a tool (as requested by the model) that should be executed.
type ToolCall struct {
	// ID is the unique identifier of the tool call.
	ID string `json:"id"`
	// Type is the type of the tool call. Typically, this would be "function".
	Type string `json:"type"`
	// FunctionCall is the function call to be executed.
	FunctionCall *FunctionCall `json:"function,omitempty"`
}

// Name returns the requested tool name.
func (tc ToolCall) Name() string {
	if tc.FunctionCall == nil {
		return ""
	}
	return tc.FunctionCall.Name
}

// Arguments returns the raw argument payload.
func (tc ToolCall) Arguments() string {
	if tc.FunctionCall == nil {
		return ""
	}
	return tc.FunctionCall.Arguments
}

func (tc ToolCall) String() string {
	return fmt.Sprintf("ToolCall: %s (%s), input: %s", tc.ID, tc.Name(), tc.Arguments())
}

func (ToolCall) isPart() {}

// ToolCallResponse is the outcome of a tool call.
type ToolCallResponse struct {
	// ToolCallID is the ID of the tool call this response is for.
	ToolCallID string `json:"tool_call_id"`
	// Name is the name of the tool that was called.
	Name string `json:"name"`
	// Content is the tool output, or the error message when IsError is set.
	Content string `json:"content"`
	// IsError is set when the call failed.
	IsError bool `json:"is_error,omitempty"`
	// ErrorKind classifies the failure, see ErrorKind* constants.
	ErrorKind string `json:"error_kind,omitempty"`
}

func (tc ToolCallResponse) String() string {
	if tc.IsError {
		return fmt.Sprintf("ToolCallResponse: %s (%s), error %s: %s", tc.ToolCallID, tc.Name, tc.ErrorKind, tc.Content)
	}
	return fmt.Sprintf("ToolCallResponse: %s (%s), response size: %d", tc.ToolCallID, tc.Name, len(tc.Content))
}

func (ToolCallResponse) isPart() {}

// MessageFromParts is a helper function to create a Message with a role and a
// list of parts.
func MessageFromParts(role Role, parts ...ContentPart) Message {
	return Message{
		Role:  role,
		Parts: parts,
	}
}

// MessageFromTextParts is a helper function to create a Message with a role and a
// list of text parts.
func MessageFromTextParts(role Role, parts ...string) Message {
	result := Message{
		Role:  role,
		Parts: make([]ContentPart, 0, len(parts)),
	}
	for _, part := range parts {
		result.Parts = append(result.Parts, TextPart(part))
	}
	return result
}

// NewUserText returns a UserText message.
func NewUserText(text string) Message {
	return MessageFromTextParts(RoleHuman, text)
}

// NewAssistantText returns an AssistantText message.
func NewAssistantText(text string) Message {
	return MessageFromTextParts(RoleAI, text)
}

// NewSystemText returns a system prompt message.
func NewSystemText(text string) Message {
	return MessageFromTextParts(RoleSystem, text)
}

// NewToolCallRequest returns an AssistantToolCallRequest message
// holding exactly one tool call.
func NewToolCallRequest(id, name, arguments string) Message {
	return MessageFromParts(RoleAI, ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &FunctionCall{
			Name:      name,
			Arguments: arguments,
		},
	})
}

// NewToolResult returns a ToolResult message.
func NewToolResult(res ToolCallResponse) Message {
	return MessageFromParts(RoleTool, res)
}

// Kind classifies the message.
func (m Message) Kind() Kind {
	switch m.Role {
	case RoleHuman:
		return KindUserText
	case RoleSystem:
		return KindSystem
	case RoleTool:
		if _, ok := m.ToolResult(); ok {
			return KindToolResult
		}
	case RoleAI:
		if _, ok := m.ToolCall(); ok {
			return KindAssistantToolCallRequest
		}
		return KindAssistantText
	}
	return KindUnknown
}

// ToolCall returns the first tool call part of the message.
func (m Message) ToolCall() (ToolCall, bool) {
	for _, p := range m.Parts {
		if tc, ok := p.(ToolCall); ok {
			return tc, true
		}
	}
	return ToolCall{}, false
}

// ToolResult returns the first tool result part of the message.
func (m Message) ToolResult() (ToolCallResponse, bool) {
	for _, p := range m.Parts {
		if tr, ok := p.(ToolCallResponse); ok {
			return tr, true
		}
	}
	return ToolCallResponse{}, false
}

// Text returns text parts joined with a new line.
func (m Message) Text() string {
	var texts []string
	for _, p := range m.Parts {
		if tc, ok := p.(TextContent); ok && tc.Text != "" {
			texts = append(texts, tc.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// GetContent returns a printable rendering of all parts.
func (m Message) GetContent() string {
	var buf strings.Builder
	lastNewLine := true
	for _, p := range m.Parts {
		if !lastNewLine {
			buf.WriteString("\n")
		}
		switch typ := p.(type) {
		case TextContent:
			buf.WriteString(typ.Text)
			lastNewLine = strings.HasSuffix(typ.Text, "\n")
		case ToolCall:
			buf.WriteString("Tool Call: ")
			js, _ := json.Marshal(typ)
			buf.Write(js)
			buf.WriteString("\n")
			lastNewLine = true
		case ToolCallResponse:
			buf.WriteString("Response: ")
			js, _ := json.Marshal(typ)
			buf.Write(js)
			buf.WriteString("\n")
			lastNewLine = true
		}
	}
	if !lastNewLine {
		buf.WriteString("\n")
	}
	return buf.String()
}
