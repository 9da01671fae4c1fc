package conversation

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/llmutils"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/xlog"
)

// requestModel sends the history to the backend and decodes the response.
// Transient failures are retried with back-off, when the retries are
// exhausted the last failure is returned as a fatal error.
func (l *Loop) requestModel(ctx context.Context) (*llms.ModelTurn, error) {
	payload := l.History()
	provider := string(l.adapter.GetProviderType())
	model := l.Model()

	l.opts.callback.OnModelRequestStart(ctx, l.adapter, payload)
	metricskey.StatsModelMessagesSent.IncrCounter(float64(len(payload)), provider, model)
	metricskey.StatsModelBytesSent.IncrCounter(float64(llmutils.CountMessagesContentSize(payload)), provider, model)

	var (
		turn    *llms.ModelTurn
		attempt int
	)
	operation := func() error {
		attempt++
		started := time.Now()
		metricskey.StatsModelRequests.IncrCounter(1, provider, model)

		raw, err := l.adapter.Send(ctx, payload, l.tools, l.opts.callOptions...)
		metricskey.PerfModelRequest.MeasureSince(started, provider)
		if err != nil {
			if ctx.Err() == nil && llms.IsTransient(err) && !llms.IsFatal(err) {
				return err
			}
			return backoff.Permanent(err)
		}

		t, err := l.adapter.Decode(raw)
		if err != nil {
			if !llms.IsFatal(err) {
				err = llms.FatalError(errors.Mark(err, llms.ErrMalformedResponse))
			}
			return backoff.Permanent(err)
		}
		turn = t
		return nil
	}

	notify := func(err error, next time.Duration) {
		metricskey.StatsModelRetries.IncrCounter(1, provider, model)
		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "transient_backend_error",
			"provider", provider,
			"attempt", attempt,
			"retry_in", next,
			"err", err.Error(),
		)
		l.opts.callback.OnModelRetry(ctx, l.adapter, attempt, err, next)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(l.opts.newBackOff(), ctx), notify)
	if err != nil {
		metricskey.StatsModelFailures.IncrCounter(1, provider, model)
		if ctx.Err() != nil {
			return nil, errors.Wrapf(ctx.Err(), "%s request aborted", provider)
		}
		if llms.IsTransient(err) && !llms.IsFatal(err) {
			// hide the transient mark of the last attempt
			err = llms.FatalError(errors.Wrapf(errors.Handled(err), "retries exhausted after %d attempts", attempt))
		}
		return nil, err
	}

	if turn.Model == "" {
		turn.Model = model
	}
	metricskey.StatsModelInputTokens.IncrCounter(float64(turn.Usage.PromptTokens), provider, model)
	metricskey.StatsModelOutputTokens.IncrCounter(float64(turn.Usage.CompletionTokens), provider, model)
	metricskey.StatsModelTotalTokens.IncrCounter(float64(turn.Usage.TotalTokens), provider, model)

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "model_turn",
		"provider", provider,
		"model", turn.Model,
		"attempts", attempt,
		"texts", len(turn.Texts),
		"tool_calls", len(turn.ToolCalls),
		"stop_reason", turn.StopReason,
	)
	l.opts.callback.OnModelRequestEnd(ctx, l.adapter, turn)
	return turn, nil
}
