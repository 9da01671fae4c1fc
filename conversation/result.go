package conversation

import (
	"time"

	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/turnlog"
)

// MaxRecordedResult is the number of runes of a tool output kept in ToolCallRecord.
const MaxRecordedResult = 500

// Outcome is how a user turn terminated.
type Outcome string

const (
	// OutcomeAnswer is a model-authored final answer.
	OutcomeAnswer Outcome = "answer"
	// OutcomeEmptyAnswer is a terminal model turn without text.
	OutcomeEmptyAnswer Outcome = "empty_answer"
	// OutcomeStepBudgetExceeded is set when the step budget ran out.
	OutcomeStepBudgetExceeded Outcome = "step_budget_exceeded"
	// OutcomeCancelled is set when the caller cancelled the turn.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeFailed is set when the turn aborted with a fatal error.
	OutcomeFailed Outcome = "failed"
)

// TurnResult describes a resolved user turn.
type TurnResult struct {
	ChatID   string            `json:"chat_id"`
	RunID    string            `json:"run_id"`
	Provider llms.ProviderType `json:"provider"`
	Model    string            `json:"model,omitempty"`
	Query    string            `json:"query"`
	Outcome  Outcome           `json:"outcome"`
	// Answer is the model-authored text, empty unless Outcome is OutcomeAnswer.
	Answer string `json:"answer,omitempty"`
	// Reasoning is the reasoning content of the terminal model turn, if the backend returns it.
	Reasoning string `json:"reasoning,omitempty"`
	// Steps is the number of backend round trips.
	Steps     int              `json:"steps"`
	Usage     llms.Usage       `json:"usage"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
	Duration  time.Duration    `json:"duration"`
	// Messages are the history entries appended by the turn.
	Messages []llms.Message `json:"messages,omitempty"`
}

// ToolCallRecord describes one dispatched tool call.
type ToolCallRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
	// Result is the beginning of the tool output.
	Result    string        `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
}

// record returns the turn log entry of the result.
func (r *TurnResult) record(err error) *turnlog.Record {
	rec := &turnlog.Record{
		Timestamp:  time.Now().Add(-r.Duration),
		ChatID:     r.ChatID,
		RunID:      r.RunID,
		Provider:   string(r.Provider),
		Model:      r.Model,
		Query:      r.Query,
		Outcome:    string(r.Outcome),
		Response:   r.Answer,
		Success:    r.Outcome == OutcomeAnswer || r.Outcome == OutcomeEmptyAnswer,
		Steps:      r.Steps,
		Usage:      r.Usage,
		DurationMS: r.Duration.Milliseconds(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	for _, tc := range r.ToolCalls {
		rec.ToolCalls = append(rec.ToolCalls, turnlog.ToolCall{
			ID:         tc.ID,
			Name:       tc.Name,
			Arguments:  tc.Arguments,
			Result:     tc.Result,
			Error:      tc.Error,
			ErrorKind:  tc.ErrorKind,
			Success:    tc.Success,
			DurationMS: tc.Duration.Milliseconds(),
		})
	}
	return rec
}
