package conversation

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/mcpbridge/pkg/mcpsession"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/mcpbridge/pkg/toolcatalog"
	"github.com/effective-security/xlog"
	"github.com/sourcegraph/conc/pool"
)

// dispatch executes the calls and appends exactly one result per call,
// in request order. Calls left unresolved by a cancellation or a lost
// session get a synthetic result.
func (l *Loop) dispatch(ctx context.Context, calls []llms.ToolCall, res *TurnResult) error {
	results := make([]*llms.ToolCallResponse, len(calls))
	records := make([]ToolCallRecord, len(calls))

	var (
		lock  sync.Mutex
		fatal error
	)
	setFatal := func(err error) {
		lock.Lock()
		defer lock.Unlock()
		if fatal == nil {
			fatal = err
		}
	}

	if l.parallel(calls) {
		p := pool.New().WithMaxGoroutines(l.opts.parallel)
		for i, tc := range calls {
			p.Go(func() {
				r, rec, err := l.invoke(ctx, tc)
				results[i], records[i] = r, rec
				if err != nil {
					setFatal(err)
				}
			})
		}
		p.Wait()
	} else {
		for i, tc := range calls {
			if fatal != nil || ctx.Err() != nil {
				break
			}
			r, rec, err := l.invoke(ctx, tc)
			results[i], records[i] = r, rec
			if err != nil {
				setFatal(err)
			}
		}
	}

	if fatal == nil && ctx.Err() != nil {
		fatal = errors.Wrap(ctx.Err(), "tool dispatch aborted")
	}

	msgs := make([]llms.Message, 0, len(calls))
	for i, tc := range calls {
		if results[i] == nil {
			r := synthetic(tc, fatal)
			results[i] = &r
			records[i] = newRecord(tc, r, 0)
			metricskey.StatsToolCallsCancelled.IncrCounter(1, tc.Name())
			l.opts.callback.OnToolError(ctx, tc, r)
		}
		msgs = append(msgs, llms.NewToolResult(*results[i]))
	}
	l.appendHistory(msgs...)
	res.ToolCalls = append(res.ToolCalls, records...)

	return fatal
}

// parallel returns true if the calls may run concurrently.
func (l *Loop) parallel(calls []llms.ToolCall) bool {
	if l.opts.parallel < 2 || len(calls) < 2 {
		return false
	}
	names := make([]string, 0, len(calls))
	for _, tc := range calls {
		names = append(names, tc.Name())
	}
	return l.session.ConcurrencySafe(names...)
}

// synthetic returns the result of a call that was not resolved.
func synthetic(tc llms.ToolCall, cause error) llms.ToolCallResponse {
	r := llms.ToolCallResponse{
		ToolCallID: tc.ID,
		Name:       tc.Name(),
		IsError:    true,
		ErrorKind:  llms.ErrorKindCancelled,
		Content:    "the call was cancelled before it completed",
	}
	if errors.Is(cause, mcpsession.ErrSession) {
		r.ErrorKind = llms.ErrorKindSessionLost
		r.Content = "the tool server session was lost before the call completed"
	}
	return r
}

// invoke performs one call. The returned error is set only when the turn
// must abort: the caller cancelled, or the session was lost.
// On abort the result is nil unless the call itself observed the failure.
func (l *Loop) invoke(ctx context.Context, tc llms.ToolCall) (*llms.ToolCallResponse, ToolCallRecord, error) {
	name := tc.Name()
	if ctx.Err() != nil {
		return nil, ToolCallRecord{}, errors.Wrap(ctx.Err(), "tool dispatch aborted")
	}

	started := time.Now()
	fail := func(kind string, err error) (*llms.ToolCallResponse, ToolCallRecord, error) {
		r := llms.ToolCallResponse{
			ToolCallID: tc.ID,
			Name:       name,
			Content:    err.Error(),
			IsError:    true,
			ErrorKind:  kind,
		}
		if kind == llms.ErrorKindUnknownTool {
			metricskey.StatsToolCallsNotFound.IncrCounter(1, name)
			l.opts.callback.OnToolNotFound(ctx, tc)
		} else {
			metricskey.StatsToolCallsFailed.IncrCounter(1, name)
			l.opts.callback.OnToolError(ctx, tc, r)
		}
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "tool_failed",
			"tool", name,
			"call", tc.ID,
			"kind", kind,
			"err", err.Error(),
		)
		return &r, newRecord(tc, r, time.Since(started)), nil
	}

	args, err := normalizeArguments(tc.Arguments())
	if err != nil {
		return fail(llms.ErrorKindInvalidArguments, err)
	}
	if _, ok := l.catalog.Lookup(name); ok {
		if err = l.catalog.ValidateArguments(name, args); err != nil {
			return fail(llms.ErrorKindInvalidArguments, err)
		}
	}

	l.opts.callback.OnToolStart(ctx, tc)
	out, err := l.session.CallTool(ctx, name, args)
	metricskey.PerfToolCall.MeasureSince(started, name)

	switch {
	case err == nil:
		r := llms.ToolCallResponse{
			ToolCallID: tc.ID,
			Name:       name,
			Content:    out,
		}
		metricskey.StatsToolCallsSucceeded.IncrCounter(1, name)
		l.opts.callback.OnToolEnd(ctx, tc, out)
		return &r, newRecord(tc, r, time.Since(started)), nil

	case mcpsession.IsToolError(err):
		return fail(errorKind(err), err)

	case ctx.Err() != nil:
		r := synthetic(tc, ctx.Err())
		metricskey.StatsToolCallsCancelled.IncrCounter(1, name)
		l.opts.callback.OnToolError(ctx, tc, r)
		return &r, newRecord(tc, r, time.Since(started)), errors.Wrap(ctx.Err(), "tool dispatch aborted")

	default:
		if !errors.Is(err, mcpsession.ErrSession) {
			err = errors.Mark(err, mcpsession.ErrSession)
		}
		r := synthetic(tc, err)
		metricskey.StatsToolCallsFailed.IncrCounter(1, name)
		l.opts.callback.OnToolError(ctx, tc, r)
		logger.ContextKV(ctx, xlog.ERROR,
			"reason", "session_lost",
			"tool", name,
			"call", tc.ID,
			"err", err.Error(),
		)
		return &r, newRecord(tc, r, time.Since(started)), err
	}
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, mcpsession.ErrUnknownTool):
		return llms.ErrorKindUnknownTool
	case errors.Is(err, mcpsession.ErrToolTimeout):
		return llms.ErrorKindTimeout
	default:
		return llms.ErrorKindExecution
	}
}

// normalizeArguments returns the call arguments as a JSON object.
// Empty arguments are an empty object, text around a JSON document is trimmed.
func normalizeArguments(raw string) (json.RawMessage, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "null" {
		return json.RawMessage(`{}`), nil
	}
	js, ok := llmutils.RepairJSON(s)
	if !ok {
		return nil, errors.Wrapf(toolcatalog.ErrInvalidArguments, "arguments are not valid JSON: %s", llmutils.Truncate(s, 100))
	}
	var obj map[string]any
	if err := json.Unmarshal(js, &obj); err != nil || obj == nil {
		return nil, errors.Wrapf(toolcatalog.ErrInvalidArguments, "arguments must be a JSON object: %s", llmutils.Truncate(s, 100))
	}
	return js, nil
}

func newRecord(tc llms.ToolCall, r llms.ToolCallResponse, d time.Duration) ToolCallRecord {
	rec := ToolCallRecord{
		ID:        tc.ID,
		Name:      tc.Name(),
		Arguments: tc.Arguments(),
		Duration:  d,
		Success:   !r.IsError,
	}
	if r.IsError {
		rec.Error = r.Content
		rec.ErrorKind = r.ErrorKind
	} else {
		rec.Result = llmutils.Truncate(r.Content, MaxRecordedResult)
	}
	return rec
}
