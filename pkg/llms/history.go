package llms

import (
	"github.com/cockroachdb/errors"
)

// ErrHistoryInvalid is returned when the call/result pairing is broken.
var ErrHistoryInvalid = errors.New("invalid history")

// History is an append-only conversation history.
// It is owned by a single conversation loop and is not safe for concurrent use.
type History struct {
	messages []Message
}

// NewHistory returns a history seeded with messages.
func NewHistory(messages ...Message) *History {
	h := &History{}
	h.messages = append(h.messages, messages...)
	return h
}

// Append adds messages to the end of the history.
func (h *History) Append(messages ...Message) {
	h.messages = append(h.messages, messages...)
}

// Len returns the number of messages.
func (h *History) Len() int {
	return len(h.messages)
}

// Messages returns a copy of the history.
func (h *History) Messages() []Message {
	return h.Since(0)
}

// Since returns a copy of the messages starting at index from.
func (h *History) Since(from int) []Message {
	if from < 0 {
		from = 0
	}
	if from >= len(h.messages) {
		return nil
	}
	return append([]Message(nil), h.messages[from:]...)
}

// Pending returns tool calls requested after the last user text which have
// no matching result yet, in request order.
func (h *History) Pending() []ToolCall {
	var pending []ToolCall
	for _, m := range h.messages {
		switch m.Kind() {
		case KindUserText:
			pending = pending[:0]
		case KindAssistantToolCallRequest:
			for _, p := range m.Parts {
				if tc, ok := p.(ToolCall); ok {
					pending = append(pending, tc)
				}
			}
		case KindToolResult:
			for _, p := range m.Parts {
				if tr, ok := p.(ToolCallResponse); ok {
					pending = removeCall(pending, tr.ToolCallID)
				}
			}
		}
	}
	return pending
}

func removeCall(calls []ToolCall, id string) []ToolCall {
	for i, tc := range calls {
		if tc.ID == id {
			return append(calls[:i], calls[i+1:]...)
		}
	}
	return calls
}

// HasCallID returns true if any tool call in the history uses id.
func (h *History) HasCallID(id string) bool {
	for _, m := range h.messages {
		for _, p := range m.Parts {
			if tc, ok := p.(ToolCall); ok && tc.ID == id {
				return true
			}
		}
	}
	return false
}

// Validate checks that every tool call request is followed, before the next
// user text and before the end of the history, by exactly one result with
// the same call ID.
func (h *History) Validate() error {
	open := map[string]bool{}
	check := func(at int) error {
		for id, pending := range open {
			if pending {
				return errors.Wrapf(ErrHistoryInvalid, "tool call %q has no result before message %d", id, at)
			}
		}
		return nil
	}

	for i, m := range h.messages {
		switch m.Kind() {
		case KindUserText:
			if err := check(i); err != nil {
				return err
			}
			open = map[string]bool{}
		case KindAssistantToolCallRequest:
			for _, p := range m.Parts {
				if tc, ok := p.(ToolCall); ok {
					if _, seen := open[tc.ID]; seen {
						return errors.Wrapf(ErrHistoryInvalid, "duplicate tool call %q at message %d", tc.ID, i)
					}
					open[tc.ID] = true
				}
			}
		case KindToolResult:
			for _, p := range m.Parts {
				if tr, ok := p.(ToolCallResponse); ok {
					pending, seen := open[tr.ToolCallID]
					if !seen {
						return errors.Wrapf(ErrHistoryInvalid, "result for unknown tool call %q at message %d", tr.ToolCallID, i)
					}
					if !pending {
						return errors.Wrapf(ErrHistoryInvalid, "second result for tool call %q at message %d", tr.ToolCallID, i)
					}
					open[tr.ToolCallID] = false
				}
			}
		}
	}
	return check(len(h.messages))
}
