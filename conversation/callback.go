package conversation

import (
	"context"
	"time"

	"github.com/effective-security/mcpbridge/pkg/llms"
)

// Callback observes the events of a Loop.
// Handlers are called synchronously, tool events may be raised from
// concurrent goroutines when parallel dispatch is enabled.
type Callback interface {
	OnTurnStart(ctx context.Context, input string)
	OnTurnEnd(ctx context.Context, result *TurnResult)
	OnTurnError(ctx context.Context, input string, err error, messages []llms.Message)
	OnModelRequestStart(ctx context.Context, adapter llms.Adapter, payload []llms.Message)
	OnModelRequestEnd(ctx context.Context, adapter llms.Adapter, turn *llms.ModelTurn)
	OnModelRetry(ctx context.Context, adapter llms.Adapter, attempt int, err error, next time.Duration)
	OnToolStart(ctx context.Context, call llms.ToolCall)
	OnToolEnd(ctx context.Context, call llms.ToolCall, output string)
	OnToolError(ctx context.Context, call llms.ToolCall, result llms.ToolCallResponse)
	OnToolNotFound(ctx context.Context, call llms.ToolCall)
}

type noop struct{}

func (noop) OnTurnStart(context.Context, string)                                   {}
func (noop) OnTurnEnd(context.Context, *TurnResult)                                {}
func (noop) OnTurnError(context.Context, string, error, []llms.Message)            {}
func (noop) OnModelRequestStart(context.Context, llms.Adapter, []llms.Message)     {}
func (noop) OnModelRequestEnd(context.Context, llms.Adapter, *llms.ModelTurn)      {}
func (noop) OnModelRetry(context.Context, llms.Adapter, int, error, time.Duration) {}
func (noop) OnToolStart(context.Context, llms.ToolCall)                            {}
func (noop) OnToolEnd(context.Context, llms.ToolCall, string)                      {}
func (noop) OnToolError(context.Context, llms.ToolCall, llms.ToolCallResponse)     {}
func (noop) OnToolNotFound(context.Context, llms.ToolCall)                         {}
