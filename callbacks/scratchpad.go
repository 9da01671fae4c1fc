package callbacks

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/conversation"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
)

var TimeNowFn = time.Now

// RunStats are the counters of one run.
type RunStats struct {
	ChatID string `json:"chat_id" yaml:"chat_id"`
	RunID  string `json:"run_id" yaml:"run_id"`

	Duration           time.Duration `json:"duration" yaml:"duration"`
	TotalMessages      uint32        `json:"total_messages" yaml:"total_messages"`
	ModelBytesOut      uint64        `json:"model_bytes_out" yaml:"model_bytes_out"`
	ModelInputTokens   uint64        `json:"model_input_tokens" yaml:"model_input_tokens"`
	ModelOutputTokens  uint64        `json:"model_output_tokens" yaml:"model_output_tokens"`
	ModelTotalTokens   uint64        `json:"model_total_tokens" yaml:"model_total_tokens"`
	ModelCalls         uint32        `json:"model_calls" yaml:"model_calls"`
	ModelRetries       uint32        `json:"model_retries" yaml:"model_retries"`
	TurnsSucceeded     uint32        `json:"turns_succeeded" yaml:"turns_succeeded"`
	TurnsFailed        uint32        `json:"turns_failed" yaml:"turns_failed"`
	ToolCalls          uint32        `json:"tool_calls" yaml:"tool_calls"`
	ToolCallsSucceeded uint32        `json:"tool_calls_succeeded" yaml:"tool_calls_succeeded"`
	ToolCallsFailed    uint32        `json:"tool_calls_failed" yaml:"tool_calls_failed"`
	ToolNotFound       uint32        `json:"tool_not_found" yaml:"tool_not_found"`
}

// Scratchpad collects a transcript and the stats of a run per chat.
// A run starts with StartRun, or with the first turn of the chat,
// and ends with EndRun.
type Scratchpad struct {
	runs map[string]*run
	mode Mode
	lock sync.Mutex
}

func NewScratchpad(mode Mode) *Scratchpad {
	return &Scratchpad{
		runs: make(map[string]*run),
		mode: mode,
	}
}

func (l *Scratchpad) StartRun(ctx context.Context) {
	chatCtx := chatmodel.GetChatContext(ctx)
	if chatCtx == nil {
		return
	}

	r := &run{
		stats: RunStats{
			ChatID: chatCtx.GetChatID(),
			RunID:  chatCtx.RunID(),
		},
		chatCtx: chatCtx,
		started: time.Now(),
	}

	l.lock.Lock()
	l.runs[chatCtx.GetChatID()] = r
	l.lock.Unlock()

	r.print("*** Run Started ***")
}

func (l *Scratchpad) EndRun(ctx context.Context) (*RunStats, []byte) {
	run := l.getRun(ctx)
	if run == nil {
		return nil, nil
	}

	stats := run.stats
	stats.Duration = time.Since(run.started)

	run.print(fmt.Sprintf("Turns: %d, Failed: %d",
		stats.TurnsSucceeded+stats.TurnsFailed,
		stats.TurnsFailed,
	))
	run.print(fmt.Sprintf("Tool calls: %d, Failed: %d, Not Found: %d",
		stats.ToolCalls,
		stats.ToolCallsFailed,
		stats.ToolNotFound,
	))
	run.print(fmt.Sprintf("Model calls: %d, Retries: %d, Messages: %d, Bytes Out: %d, Input Tokens: %d, Output Tokens: %d, Total Tokens: %d",
		stats.ModelCalls,
		stats.ModelRetries,
		stats.TotalMessages,
		stats.ModelBytesOut,
		stats.ModelInputTokens,
		stats.ModelOutputTokens,
		stats.ModelTotalTokens,
	))

	if l.mode == ModeVerbose {
		run.print("Stats:\n" + llmutils.ToYAML(stats))
	}
	run.print(fmt.Sprintf("*** Run Ended. Duration: %s ***", stats.Duration))

	l.lock.Lock()
	delete(l.runs, run.chatCtx.GetChatID())
	l.lock.Unlock()

	return &stats, run.w.Bytes()
}

func (l *Scratchpad) getRun(ctx context.Context) *run {
	l.lock.Lock()
	defer l.lock.Unlock()

	chatCtx := chatmodel.GetChatContext(ctx)
	if chatCtx == nil {
		return nil
	}

	return l.runs[chatCtx.GetChatID()]
}

func (l *Scratchpad) OnTurnStart(ctx context.Context, input string) {
	run := l.getRun(ctx)
	if run == nil {
		l.StartRun(ctx)
		if run = l.getRun(ctx); run == nil {
			return
		}
	}
	run.print("*** Turn Start ***")
	run.print("Input:", input)
}

func (l *Scratchpad) OnTurnEnd(ctx context.Context, result *conversation.TurnResult) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.TurnsSucceeded, 1)

	if l.mode == ModeVerbose {
		if result.Answer != "" {
			run.print("Output:")
			run.print(result.Answer)
		}
		run.print(l.printMessages(result.Messages))
	}
	run.print("*** Turn End ***", string(result.Outcome), fmt.Sprintf("%d steps", result.Steps))
}

func (l *Scratchpad) OnTurnError(ctx context.Context, input string, err error, messages []llms.Message) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.TurnsFailed, 1)
	run.print("*** Error ***", err.Error())
	run.print(l.printMessages(messages))
}

func (l *Scratchpad) printMessages(messages []llms.Message) string {
	var buf strings.Builder
	buf.WriteString("Messages:\n")
	for idx, msg := range messages {
		fmt.Fprintf(&buf, "[%d] %s:\n", idx, msg.Kind())
		for _, part := range msg.Parts {
			switch typ := part.(type) {
			case llms.ToolCall:
				buf.WriteString("  - ")
				buf.WriteString(typ.String())
				buf.WriteString("\n")
			case llms.ToolCallResponse:
				buf.WriteString("  - ")
				buf.WriteString(typ.String())
				buf.WriteString("\n")
			}
		}
	}
	return buf.String()
}

func (l *Scratchpad) OnModelRequestStart(ctx context.Context, adapter llms.Adapter, payload []llms.Message) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}

	atomic.AddUint64(&run.stats.ModelBytesOut, llmutils.CountMessagesContentSize(payload))
	atomic.AddUint32(&run.stats.ModelCalls, 1)
	count := uint32(len(payload))
	atomic.AddUint32(&run.stats.TotalMessages, count)

	run.print(string(adapter.GetProviderType()), "*** Model Call ***", fmt.Sprintf("%s model, %d messages", adapter.GetName(), count))
	if l.mode == ModeVerbose {
		run.print(l.printMessages(payload))
	}
}

func (l *Scratchpad) OnModelRequestEnd(ctx context.Context, adapter llms.Adapter, turn *llms.ModelTurn) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}

	usage := turn.Usage
	atomic.AddUint64(&run.stats.ModelInputTokens, uint64(usage.PromptTokens))
	atomic.AddUint64(&run.stats.ModelOutputTokens, uint64(usage.CompletionTokens))
	atomic.AddUint64(&run.stats.ModelTotalTokens, uint64(usage.TotalTokens))

	run.print(string(adapter.GetProviderType()), "*** Model Call End ***", fmt.Sprintf("%s model, %d input tokens, %d output tokens, %d total tokens",
		turn.Model, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens))
}

func (l *Scratchpad) OnModelRetry(ctx context.Context, adapter llms.Adapter, attempt int, err error, next time.Duration) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ModelRetries, 1)
	run.print(string(adapter.GetProviderType()), "*** Model Retry ***", fmt.Sprintf("attempt %d, retry in %s:", attempt, next), err.Error())
}

func (l *Scratchpad) OnToolStart(ctx context.Context, call llms.ToolCall) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolCalls, 1)
	run.print(call.Name(), "*** Tool Start ***")
	run.print(call.Name(), "Input:", call.Arguments())
}

func (l *Scratchpad) OnToolEnd(ctx context.Context, call llms.ToolCall, output string) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolCallsSucceeded, 1)
	if l.mode == ModeVerbose {
		run.print(call.Name(), "Output:", output)
	}
	run.print(call.Name(), "*** Tool End ***")
}

func (l *Scratchpad) OnToolError(ctx context.Context, call llms.ToolCall, result llms.ToolCallResponse) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolCallsFailed, 1)
	run.print(call.Name(), "*** Tool Error ***", result.ErrorKind, result.Content)
}

func (l *Scratchpad) OnToolNotFound(ctx context.Context, call llms.ToolCall) {
	run := l.getRun(ctx)
	if run == nil {
		return
	}
	atomic.AddUint32(&run.stats.ToolNotFound, 1)
	run.print("*** Tool Not Found ***", call.Name())
}

type run struct {
	chatCtx chatmodel.ChatContext
	w       bytes.Buffer
	started time.Time
	lock    sync.Mutex
	stats   RunStats
}

// print writes the entries to the run's output.
// The entries are written in the following format:
// [timestamp chatID.runID] entry entry\n
func (r *run) print(entries ...string) {
	r.lock.Lock()
	defer r.lock.Unlock()

	now := TimeNowFn()
	ts := now.Format("2006-01-02 15:04:05")

	_, _ = r.w.WriteString(ts)
	_, _ = r.w.WriteString(" ")
	_, _ = r.w.WriteString(r.chatCtx.GetChatID())
	_, _ = r.w.WriteString(".")
	_, _ = r.w.WriteString(r.chatCtx.RunID())
	_, _ = r.w.WriteString(" ")

	for i, entry := range entries {
		if i > 0 {
			_, _ = r.w.WriteString(" ")
		}
		_, _ = r.w.WriteString(entry)
	}
	_, _ = r.w.WriteString("\n")
}
