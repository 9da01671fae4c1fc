package callbacks

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/effective-security/mcpbridge/conversation"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/xlog"
)

// ensure that the callbacks implement the correct interfaces
var (
	_ conversation.Callback = (*Noop)(nil)
	_ conversation.Callback = (*Printer)(nil)
	_ conversation.Callback = (*PackageLogger)(nil)
	_ conversation.Callback = (*Fanout)(nil)
	_ conversation.Callback = (*Scratchpad)(nil)
)

// Mode defines the mode for callback printing
type Mode int

const (
	// ModeDefault is the default mode for callback printing
	ModeDefault Mode = iota
	// ModeVerbose is the verbose mode for callback printing
	ModeVerbose
)

// Fanout is a callback handler that forwards the events to multiple callbacks.
type Fanout struct {
	callbacks []conversation.Callback
}

func NewFanout(callbacks ...conversation.Callback) *Fanout {
	return &Fanout{callbacks: callbacks}
}

func (l *Fanout) Add(callback conversation.Callback) {
	l.callbacks = append(l.callbacks, callback)
}

func (l *Fanout) OnTurnStart(ctx context.Context, input string) {
	for _, callback := range l.callbacks {
		callback.OnTurnStart(ctx, input)
	}
}

func (l *Fanout) OnTurnEnd(ctx context.Context, result *conversation.TurnResult) {
	for _, callback := range l.callbacks {
		callback.OnTurnEnd(ctx, result)
	}
}

func (l *Fanout) OnTurnError(ctx context.Context, input string, err error, messages []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnTurnError(ctx, input, err, messages)
	}
}

func (l *Fanout) OnModelRequestStart(ctx context.Context, adapter llms.Adapter, payload []llms.Message) {
	for _, callback := range l.callbacks {
		callback.OnModelRequestStart(ctx, adapter, payload)
	}
}

func (l *Fanout) OnModelRequestEnd(ctx context.Context, adapter llms.Adapter, turn *llms.ModelTurn) {
	for _, callback := range l.callbacks {
		callback.OnModelRequestEnd(ctx, adapter, turn)
	}
}

func (l *Fanout) OnModelRetry(ctx context.Context, adapter llms.Adapter, attempt int, err error, next time.Duration) {
	for _, callback := range l.callbacks {
		callback.OnModelRetry(ctx, adapter, attempt, err, next)
	}
}

func (l *Fanout) OnToolStart(ctx context.Context, call llms.ToolCall) {
	for _, callback := range l.callbacks {
		callback.OnToolStart(ctx, call)
	}
}

func (l *Fanout) OnToolEnd(ctx context.Context, call llms.ToolCall, output string) {
	for _, callback := range l.callbacks {
		callback.OnToolEnd(ctx, call, output)
	}
}

func (l *Fanout) OnToolError(ctx context.Context, call llms.ToolCall, result llms.ToolCallResponse) {
	for _, callback := range l.callbacks {
		callback.OnToolError(ctx, call, result)
	}
}

func (l *Fanout) OnToolNotFound(ctx context.Context, call llms.ToolCall) {
	for _, callback := range l.callbacks {
		callback.OnToolNotFound(ctx, call)
	}
}

// Noop does nothing.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (l *Noop) OnTurnStart(ctx context.Context, input string)                        {}
func (l *Noop) OnTurnEnd(ctx context.Context, result *conversation.TurnResult)       {}
func (l *Noop) OnTurnError(ctx context.Context, input string, err error, messages []llms.Message) {
}
func (l *Noop) OnModelRequestStart(ctx context.Context, adapter llms.Adapter, payload []llms.Message) {
}
func (l *Noop) OnModelRequestEnd(ctx context.Context, adapter llms.Adapter, turn *llms.ModelTurn) {
}
func (l *Noop) OnModelRetry(ctx context.Context, adapter llms.Adapter, attempt int, err error, next time.Duration) {
}
func (l *Noop) OnToolStart(ctx context.Context, call llms.ToolCall)                  {}
func (l *Noop) OnToolEnd(ctx context.Context, call llms.ToolCall, output string)     {}
func (l *Noop) OnToolError(ctx context.Context, call llms.ToolCall, result llms.ToolCallResponse) {
}
func (l *Noop) OnToolNotFound(ctx context.Context, call llms.ToolCall) {}

// Printer is a callback handler that prints to the Writer.
type Printer struct {
	Out  io.Writer
	Mode Mode

	lock sync.Mutex
}

func NewPrinter(out io.Writer, mode Mode) *Printer {
	return &Printer{Out: out, Mode: mode}
}

func (l *Printer) OnTurnStart(ctx context.Context, input string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Turn Start\n")
	fmt.Fprintf(l.Out, "Input: %s\n", input)
}

func (l *Printer) OnTurnEnd(ctx context.Context, result *conversation.TurnResult) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Turn End: %s, %d steps, %d tool calls, %s\n",
		result.Outcome, result.Steps, len(result.ToolCalls), result.Duration.Round(time.Millisecond))
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Token Usage: prompt %d, completion %d, total %d\n",
			result.Usage.PromptTokens, result.Usage.CompletionTokens, result.Usage.TotalTokens)
		if result.Reasoning != "" {
			fmt.Fprintf(l.Out, "Reasoning: %s\n", result.Reasoning)
		}
	}
}

func (l *Printer) OnTurnError(ctx context.Context, input string, err error, messages []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Turn Error: %s\n", err.Error())
	if l.Mode == ModeVerbose {
		llmutils.PrintMessages(l.Out, messages)
	}
}

func (l *Printer) OnModelRequestStart(ctx context.Context, adapter llms.Adapter, payload []llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Model Request: %s: %s model, %d messages\n", adapter.GetProviderType(), adapter.GetName(), len(payload))
}

func (l *Printer) OnModelRequestEnd(ctx context.Context, adapter llms.Adapter, turn *llms.ModelTurn) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Model Request End: %s: %d texts, %d tool calls\n", adapter.GetProviderType(), len(turn.Texts), len(turn.ToolCalls))
	if l.Mode == ModeVerbose {
		if text := turn.Text(); text != "" {
			fmt.Fprintln(l.Out, text)
		}
	}
}

func (l *Printer) OnModelRetry(ctx context.Context, adapter llms.Adapter, attempt int, err error, next time.Duration) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Model Retry: %s: attempt %d failed, retry in %s: %s\n", adapter.GetProviderType(), attempt, next.Round(time.Millisecond), err.Error())
}

func (l *Printer) OnToolStart(ctx context.Context, call llms.ToolCall) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Start: %s (%s)\n", call.Name(), call.ID)
	fmt.Fprintf(l.Out, "Input: %s\n", call.Arguments())
}

func (l *Printer) OnToolEnd(ctx context.Context, call llms.ToolCall, output string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool End: %s (%s)\n", call.Name(), call.ID)
	if l.Mode == ModeVerbose {
		fmt.Fprintf(l.Out, "Output: %s\n", output)
	}
}

func (l *Printer) OnToolError(ctx context.Context, call llms.ToolCall, result llms.ToolCallResponse) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Error: %s (%s): %s: %s\n", call.Name(), call.ID, result.ErrorKind, result.Content)
}

func (l *Printer) OnToolNotFound(ctx context.Context, call llms.ToolCall) {
	l.lock.Lock()
	defer l.lock.Unlock()
	fmt.Fprintf(l.Out, "Tool Not Found: %s\n", call.Name())
}

// PackageLogger is a callback handler that prints to the logger.
type PackageLogger struct {
	logger *xlog.PackageLogger
}

func NewPackageLogger(logger *xlog.PackageLogger) *PackageLogger {
	return &PackageLogger{logger: logger}
}

func (l *PackageLogger) OnTurnStart(ctx context.Context, input string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "turn_start",
		"input", input,
	)
}

func (l *PackageLogger) OnTurnEnd(ctx context.Context, result *conversation.TurnResult) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "turn_end",
		"outcome", result.Outcome,
		"steps", result.Steps,
		"tool_calls", len(result.ToolCalls),
		"total_tokens", result.Usage.TotalTokens,
	)
}

func (l *PackageLogger) OnTurnError(ctx context.Context, input string, err error, messages []llms.Message) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "turn_error",
		"messages", len(messages),
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnModelRequestStart(ctx context.Context, adapter llms.Adapter, payload []llms.Message) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "model_request_start",
		"provider", adapter.GetProviderType(),
		"model", adapter.GetName(),
		"messages", len(payload),
	)
}

func (l *PackageLogger) OnModelRequestEnd(ctx context.Context, adapter llms.Adapter, turn *llms.ModelTurn) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "model_request_end",
		"provider", adapter.GetProviderType(),
		"model", turn.Model,
		"tool_calls", len(turn.ToolCalls),
		"stop_reason", turn.StopReason,
	)
}

func (l *PackageLogger) OnModelRetry(ctx context.Context, adapter llms.Adapter, attempt int, err error, next time.Duration) {
	l.logger.ContextKV(ctx, xlog.WARNING,
		"event", "model_retry",
		"provider", adapter.GetProviderType(),
		"attempt", attempt,
		"retry_in", next,
		"err", err.Error(),
	)
}

func (l *PackageLogger) OnToolStart(ctx context.Context, call llms.ToolCall) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_start",
		"tool", call.Name(),
		"call", call.ID,
		"input", call.Arguments(),
	)
}

func (l *PackageLogger) OnToolEnd(ctx context.Context, call llms.ToolCall, output string) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_end",
		"tool", call.Name(),
		"call", call.ID,
		"output", llmutils.Truncate(output, 200),
	)
}

func (l *PackageLogger) OnToolError(ctx context.Context, call llms.ToolCall, result llms.ToolCallResponse) {
	l.logger.ContextKV(ctx, xlog.ERROR,
		"event", "tool_error",
		"tool", call.Name(),
		"call", call.ID,
		"kind", result.ErrorKind,
		"err", result.Content,
	)
}

func (l *PackageLogger) OnToolNotFound(ctx context.Context, call llms.ToolCall) {
	l.logger.ContextKV(ctx, xlog.DEBUG,
		"event", "tool_not_found",
		"tool", call.Name(),
		"call", call.ID,
	)
}
