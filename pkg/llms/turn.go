package llms

import "strings"

// Usage is token accounting reported by a backend.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates other into u.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}

// ModelTurn is the decoded output of one backend call.
type ModelTurn struct {
	// ID is the backend response identifier, if any.
	ID string `json:"id,omitempty"`
	// Model is the model that produced the turn.
	Model string `json:"model,omitempty"`
	// Texts are the text fragments in the order they were returned.
	Texts []string `json:"texts,omitempty"`
	// ToolCalls are the tool calls requested by the model, in order.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// Reasoning is the reasoning content, when the backend returns it separately.
	// It is never replayed to the backend.
	Reasoning string `json:"reasoning,omitempty"`
	// StopReason is the reason the model stopped generating output.
	StopReason string `json:"stop_reason,omitempty"`
	// Usage is the token usage of the call.
	Usage Usage `json:"usage"`
}

// IsTerminal returns true if the turn requests no tool calls.
func (t *ModelTurn) IsTerminal() bool {
	return len(t.ToolCalls) == 0
}

// Text returns non-empty text fragments joined with a new line.
func (t *ModelTurn) Text() string {
	var texts []string
	for _, s := range t.Texts {
		if strings.TrimSpace(s) != "" {
			texts = append(texts, s)
		}
	}
	return strings.Join(texts, "\n")
}
