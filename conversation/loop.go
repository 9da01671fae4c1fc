package conversation

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/mcpsession"
	"github.com/effective-security/mcpbridge/pkg/metricskey"
	"github.com/effective-security/mcpbridge/pkg/toolcatalog"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

// Loop is one conversation between a user, a model backend and a tool server.
// Independent loops may share an adapter and run concurrently, each owns its history.
type Loop struct {
	adapter llms.Adapter
	session mcpsession.Session
	catalog *toolcatalog.Catalog
	tools   llms.ToolSpec
	opts    options
	chatCtx chatmodel.ChatContext

	// lock guards history
	lock    sync.RWMutex
	history *llms.History

	state   atomic.Int32
	running atomic.Bool
	// lost is set once the tool server session failed
	lost atomic.Pointer[error]
}

// New lists the session tools, builds the catalog and encodes it for the adapter.
// Errors are fatal for this backend and session.
func New(ctx context.Context, adapter llms.Adapter, session mcpsession.Session, opts ...Option) (*Loop, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	raw, err := session.ListTools(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "unable to list tools")
	}
	catalog, err := toolcatalog.Build(raw)
	if err != nil {
		return nil, err
	}
	tools, err := adapter.EncodeTools(catalog)
	if err != nil {
		return nil, errors.WithMessagef(err, "unable to encode tools for %s", adapter.GetProviderType())
	}
	if o.prompt != nil {
		prompt, err := o.prompt(catalog)
		if err != nil {
			return nil, errors.WithMessage(err, "unable to render system prompt")
		}
		o.callOptions = append(o.callOptions, llms.WithSystemPrompt(prompt))
	}

	chatCtx := o.chatCtx
	if chatCtx == nil {
		chatCtx = chatmodel.GetChatContext(ctx)
	}
	if chatCtx == nil {
		chatCtx = chatmodel.NewChatContext("", "", nil)
	}

	l := &Loop{
		adapter: adapter,
		session: session,
		catalog: catalog,
		tools:   tools,
		opts:    o,
		chatCtx: chatCtx,
	}

	seed := o.history
	if seed == nil && o.store != nil {
		seed = o.store.Messages(chatmodel.WithChatContext(ctx, chatCtx))
	}
	l.history = llms.NewHistory(restorable(ctx, seed)...)

	if o.parallel > 1 && !session.ConcurrencySafe(catalog.Names()...) {
		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "parallel_dispatch_limited",
			"details", "some tools do not allow overlapping calls, they are dispatched sequentially",
		)
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "loop_created",
		"provider", adapter.GetProviderType(),
		"chat", chatCtx.GetChatID(),
		"tools", catalog.Names(),
		"history", l.history.Len(),
	)
	return l, nil
}

// restorable drops stored entries preceding the first user text, which
// remain after the store trimmed the oldest messages, and discards a
// history that breaks the call and result pairing.
func restorable(ctx context.Context, msgs []llms.Message) []llms.Message {
	for i, m := range msgs {
		if m.Kind() == llms.KindUserText {
			msgs = msgs[i:]
			break
		}
		if i == len(msgs)-1 {
			msgs = nil
		}
	}
	if len(msgs) == 0 {
		return nil
	}
	if err := llms.NewHistory(msgs...).Validate(); err != nil {
		logger.ContextKV(ctx, xlog.WARNING, "reason", "discard_history", "err", err.Error())
		return nil
	}
	return msgs
}

// Catalog returns the tool catalog of the session.
func (l *Loop) Catalog() *toolcatalog.Catalog {
	return l.catalog
}

// ChatContext returns the chat the loop belongs to.
func (l *Loop) ChatContext() chatmodel.ChatContext {
	return l.chatCtx
}

// State returns the current state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}

// History returns a copy of the conversation history.
func (l *Loop) History() []llms.Message {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.history.Messages()
}

func (l *Loop) appendHistory(msgs ...llms.Message) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.history.Append(msgs...)
}

func (l *Loop) historyLen() int {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.history.Len()
}

func (l *Loop) historySince(from int) []llms.Message {
	l.lock.RLock()
	defer l.lock.RUnlock()
	return l.history.Since(from)
}

// Model returns the model name the requests are sent with.
func (l *Loop) Model() string {
	opts := llms.NewCallOptions(l.opts.callOptions...)
	if opts.Model != "" {
		return opts.Model
	}
	return l.adapter.GetName()
}

// SubmitUserTurn appends the user text and drives the loop until the model
// returns a final answer, the step budget runs out or a fatal error occurs.
//
// A TurnResult with OutcomeStepBudgetExceeded is returned together with
// ErrStepBudgetExceeded. Fatal backend errors are marked llms.ErrFatalBackend
// or llms.ErrAuth, a lost tool server session is marked mcpsession.ErrSession
// and fails every later turn. Marks are visible to cockroachdb errors.Is only.
func (l *Loop) SubmitUserTurn(ctx context.Context, text string) (*TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.WithStack(ErrEmptyInput)
	}
	if lost := l.lost.Load(); lost != nil {
		return nil, errors.WithMessage(*lost, "tool server session must be re-established")
	}
	if !l.running.CompareAndSwap(false, true) {
		return nil, errors.WithStack(ErrTurnInProgress)
	}
	defer l.running.Store(false)

	ctx = chatmodel.WithChatContext(ctx, l.chatCtx)
	runID := l.chatCtx.NewRun()
	started := time.Now()
	provider := l.adapter.GetProviderType()

	res := &TurnResult{
		ChatID:   l.chatCtx.GetChatID(),
		RunID:    runID,
		Provider: provider,
		Model:    l.Model(),
		Query:    text,
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "turn_start",
		"chat", res.ChatID,
		"run", runID,
		"provider", provider,
	)

	start := l.historyLen()
	l.appendHistory(llms.NewUserText(text))
	l.opts.callback.OnTurnStart(ctx, text)

	err := l.run(ctx, res)

	res.Duration = time.Since(started)
	res.Messages = l.historySince(start)
	l.setState(StateAwaitingUserInput)

	metricskey.PerfTurn.MeasureSince(started, string(provider))
	metricskey.StatsTurns.IncrCounter(1, string(provider), string(res.Outcome))

	// persist even when the caller cancelled the turn
	bctx := chatmodel.NewFromContext(ctx)
	if l.opts.store != nil {
		if serr := l.opts.store.Add(bctx, res.Messages...); serr != nil {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "store", "chat", res.ChatID, "err", serr.Error())
		}
	}
	if l.opts.turnLog != nil {
		if werr := l.opts.turnLog.Write(res.record(err)); werr != nil {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "turnlog", "err", werr.Error())
		}
	}

	if err != nil && !errors.Is(err, ErrStepBudgetExceeded) {
		logger.ContextKV(ctx, xlog.ERROR,
			"reason", "turn_failed",
			"chat", res.ChatID,
			"run", runID,
			"outcome", res.Outcome,
			"err", err.Error(),
		)
		l.opts.callback.OnTurnError(ctx, text, err, res.Messages)
		return nil, err
	}

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "turn_end",
		"chat", res.ChatID,
		"run", runID,
		"outcome", res.Outcome,
		"steps", res.Steps,
		"tool_calls", len(res.ToolCalls),
		"duration", res.Duration,
	)
	l.opts.callback.OnTurnEnd(ctx, res)
	return res, err
}

// run drives ModelRequested and ToolDispatch until the turn terminates.
func (l *Loop) run(ctx context.Context, res *TurnResult) error {
	for step := 0; ; step++ {
		if step >= l.opts.stepBudget {
			res.Outcome = OutcomeStepBudgetExceeded
			l.setState(StateResponseReady)
			metricskey.StatsStepBudgetExceeded.IncrCounter(1, string(res.Provider))
			return errors.Wrapf(ErrStepBudgetExceeded, "%d round trips", l.opts.stepBudget)
		}

		l.setState(StateModelRequested)
		turn, err := l.requestModel(ctx)
		if err != nil {
			res.Outcome = failedOutcome(ctx, err)
			return err
		}
		res.Steps++
		res.Usage.Add(turn.Usage)
		if turn.Model != "" {
			res.Model = turn.Model
		}

		if turn.IsTerminal() {
			res.Reasoning = turn.Reasoning
			res.Answer = turn.Text()
			if res.Answer == "" {
				res.Outcome = OutcomeEmptyAnswer
			} else {
				res.Outcome = OutcomeAnswer
				l.appendHistory(llms.NewAssistantText(res.Answer))
			}
			l.setState(StateResponseReady)
			return nil
		}

		calls := l.requestCalls(turn)
		l.setState(StateToolDispatch)
		if err = l.dispatch(ctx, calls, res); err != nil {
			res.Outcome = failedOutcome(ctx, err)
			if errors.Is(err, mcpsession.ErrSession) {
				l.lost.Store(&err)
			}
			return err
		}
	}
}

func failedOutcome(ctx context.Context, err error) Outcome {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return OutcomeCancelled
	}
	return OutcomeFailed
}

// requestCalls appends the interim text and the tool call requests of the
// turn to the history, and returns the calls to dispatch in model order.
// Missing or reused call IDs are replaced with generated ones.
func (l *Loop) requestCalls(turn *llms.ModelTurn) []llms.ToolCall {
	var msgs []llms.Message
	if text := turn.Text(); text != "" {
		msgs = append(msgs, llms.NewAssistantText(text))
	}

	l.lock.RLock()
	seen := map[string]bool{}
	calls := make([]llms.ToolCall, 0, len(turn.ToolCalls))
	for _, tc := range turn.ToolCalls {
		if tc.ID == "" || seen[tc.ID] || l.history.HasCallID(tc.ID) {
			tc.ID = NewCallID()
		}
		seen[tc.ID] = true
		if tc.Type == "" {
			tc.Type = "function"
		}
		fc := llms.FunctionCall{}
		if tc.FunctionCall != nil {
			fc = *tc.FunctionCall
		}
		tc.FunctionCall = &fc

		calls = append(calls, tc)
		msgs = append(msgs, llms.NewToolCallRequest(tc.ID, fc.Name, fc.Arguments))
	}
	l.lock.RUnlock()

	l.appendHistory(msgs...)
	return calls
}

// NewCallID returns a generated tool call ID.
func NewCallID() string {
	return "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
