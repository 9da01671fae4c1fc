package conversation_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpbridge/callbacks"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/conversation"
	"github.com/effective-security/mcpbridge/mocks/mockllms"
	"github.com/effective-security/mcpbridge/mocks/mocksession"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/mcpsession"
	"github.com/effective-security/mcpbridge/pkg/toolcatalog"
	"github.com/effective-security/mcpbridge/pkg/turnlog"
	"github.com/effective-security/mcpbridge/store"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var fastRetry = conversation.WithRetryPolicy(conversation.RetryPolicy{
	InitialInterval: time.Millisecond,
	MaxInterval:     2 * time.Millisecond,
	MaxRetries:      2,
})

var getTimeTool = toolcatalog.RawDescriptor{
	Name:        "get_time",
	Description: "Returns the current date and time.",
	InputSchema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timezone": map[string]any{"type": "string"},
		},
	},
	ReadOnly: true,
}

// rawTurn is a decoded response handed back by Decode.
type rawTurn struct {
	turn *llms.ModelTurn
}

func (rawTurn) Provider() llms.ProviderType {
	return llms.ProviderOpenAI
}

type fixture struct {
	adapter *mockllms.MockAdapter
	session *mocksession.MockSession

	lock     sync.Mutex
	payloads [][]llms.Message
}

func newFixture(t *testing.T, descriptors ...toolcatalog.RawDescriptor) *fixture {
	ctrl := gomock.NewController(t)
	f := &fixture{
		adapter: mockllms.NewMockAdapter(ctrl),
		session: mocksession.NewMockSession(ctrl),
	}
	spec := mockllms.NewMockToolSpec(ctrl)
	spec.EXPECT().Provider().Return(llms.ProviderOpenAI).AnyTimes()

	f.adapter.EXPECT().GetProviderType().Return(llms.ProviderOpenAI).AnyTimes()
	f.adapter.EXPECT().GetName().Return("test-model").AnyTimes()
	f.adapter.EXPECT().EncodeTools(gomock.Any()).Return(spec, nil).AnyTimes()
	f.adapter.EXPECT().Decode(gomock.Any()).DoAndReturn(func(raw llms.RawResponse) (*llms.ModelTurn, error) {
		return raw.(rawTurn).turn, nil
	}).AnyTimes()
	f.session.EXPECT().ListTools(gomock.Any()).Return(descriptors, nil).AnyTimes()
	return f
}

// script makes every Send return the next step: a *llms.ModelTurn or an error.
func (f *fixture) script(steps ...any) {
	var n int
	f.adapter.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, history []llms.Message, _ llms.ToolSpec, _ ...llms.CallOption) (llms.RawResponse, error) {
			f.lock.Lock()
			defer f.lock.Unlock()
			f.payloads = append(f.payloads, history)
			step := steps[n]
			n++
			if err, ok := step.(error); ok {
				return nil, err
			}
			return rawTurn{turn: step.(*llms.ModelTurn)}, nil
		}).Times(len(steps))
}

func (f *fixture) sent() [][]llms.Message {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.payloads
}

func (f *fixture) newLoop(t *testing.T, opts ...conversation.Option) *conversation.Loop {
	t.Helper()
	l, err := conversation.New(context.Background(), f.adapter, f.session, append([]conversation.Option{fastRetry}, opts...)...)
	require.NoError(t, err)
	return l
}

func call(id, name, args string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: args,
		},
	}
}

func toolTurn(calls ...llms.ToolCall) *llms.ModelTurn {
	return &llms.ModelTurn{
		ToolCalls:  calls,
		StopReason: "tool_calls",
		Usage:      llms.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
}

func textTurn(text string) *llms.ModelTurn {
	return &llms.ModelTurn{
		Texts:      []string{text},
		StopReason: "stop",
		Usage:      llms.Usage{PromptTokens: 20, CompletionTokens: 7, TotalTokens: 27},
	}
}

func kinds(msgs []llms.Message) []llms.Kind {
	list := make([]llms.Kind, 0, len(msgs))
	for _, m := range msgs {
		list = append(list, m.Kind())
	}
	return list
}

func results(msgs []llms.Message) []llms.ToolCallResponse {
	var list []llms.ToolCallResponse
	for _, m := range msgs {
		if r, ok := m.ToolResult(); ok {
			list = append(list, r)
		}
	}
	return list
}

func requests(msgs []llms.Message) []llms.ToolCall {
	var list []llms.ToolCall
	for _, m := range msgs {
		if tc, ok := m.ToolCall(); ok {
			list = append(list, tc)
		}
	}
	return list
}

type recorder struct {
	callbacks.Noop
	retries  atomic.Int32
	notFound atomic.Int32
	failed   atomic.Int32
	ended    atomic.Int32
}

func (r *recorder) OnModelRetry(context.Context, llms.Adapter, int, error, time.Duration) {
	r.retries.Add(1)
}

func (r *recorder) OnToolNotFound(context.Context, llms.ToolCall) {
	r.notFound.Add(1)
}

func (r *recorder) OnTurnError(context.Context, string, error, []llms.Message) {
	r.failed.Add(1)
}

func (r *recorder) OnTurnEnd(context.Context, *conversation.TurnResult) {
	r.ended.Add(1)
}

func TestLoop_GetTime(t *testing.T) {
	f := newFixture(t, getTimeTool)
	var loop *conversation.Loop

	f.session.EXPECT().CallTool(gomock.Any(), "get_time", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, args json.RawMessage) (string, error) {
			assert.JSONEq(t, `{}`, string(args))
			assert.Equal(t, conversation.StateToolDispatch, loop.State())
			return "2025-01-02T14:32:00Z UTC", nil
		})
	f.script(
		toolTurn(call("call_1", "get_time", "{}")),
		textTurn("It is 14:32 UTC."),
	)

	loop = f.newLoop(t)
	assert.Equal(t, conversation.StateAwaitingUserInput, loop.State())
	assert.Equal(t, []string{"get_time"}, loop.Catalog().Names())

	res, err := loop.SubmitUserTurn(context.Background(), "What time is it?")
	require.NoError(t, err)
	assert.Equal(t, conversation.OutcomeAnswer, res.Outcome)
	assert.Equal(t, "It is 14:32 UTC.", res.Answer)
	assert.Equal(t, 2, res.Steps)
	assert.Equal(t, 42, res.Usage.TotalTokens)
	assert.Equal(t, "test-model", res.Model)
	assert.Equal(t, loop.ChatContext().GetChatID(), res.ChatID)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, conversation.StateAwaitingUserInput, loop.State())

	require.Len(t, res.ToolCalls, 1)
	assert.Equal(t, "call_1", res.ToolCalls[0].ID)
	assert.True(t, res.ToolCalls[0].Success)
	assert.Equal(t, "2025-01-02T14:32:00Z UTC", res.ToolCalls[0].Result)

	history := loop.History()
	if diff := cmp.Diff([]llms.Kind{
		llms.KindUserText,
		llms.KindAssistantToolCallRequest,
		llms.KindToolResult,
		llms.KindAssistantText,
	}, kinds(history)); diff != "" {
		t.Errorf("history kinds mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, history, res.Messages)
	require.NoError(t, llms.NewHistory(history...).Validate())

	r := results(history)
	require.Len(t, r, 1)
	assert.Equal(t, "call_1", r[0].ToolCallID)
	assert.False(t, r[0].IsError)

	// the second request carries the call and its result
	sent := f.sent()
	require.Len(t, sent, 2)
	assert.Len(t, sent[0], 1)
	assert.Len(t, sent[1], 3)
}

func TestLoop_StateDuringSend(t *testing.T) {
	f := newFixture(t, getTimeTool)
	var loop *conversation.Loop

	f.adapter.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ []llms.Message, _ llms.ToolSpec, _ ...llms.CallOption) (llms.RawResponse, error) {
			assert.Equal(t, conversation.StateModelRequested, loop.State())
			assert.Equal(t, loop.ChatContext().GetChatID(), chatmodel.GetChatID(ctx))

			_, err := loop.SubmitUserTurn(ctx, "another one")
			assert.True(t, errors.Is(err, conversation.ErrTurnInProgress))
			return rawTurn{turn: textTurn("hello")}, nil
		})

	loop = f.newLoop(t)
	res, err := loop.SubmitUserTurn(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Answer)
}

func TestLoop_EmptyInput(t *testing.T) {
	f := newFixture(t, getTimeTool)
	loop := f.newLoop(t)

	_, err := loop.SubmitUserTurn(context.Background(), "  \n")
	assert.True(t, errors.Is(err, conversation.ErrEmptyInput))
	assert.Empty(t, loop.History())
}

func TestLoop_UnknownTool(t *testing.T) {
	f := newFixture(t, getTimeTool)
	cb := &recorder{}

	f.session.EXPECT().CallTool(gomock.Any(), "get_weather", gomock.Any()).
		Return("", errors.Wrap(mcpsession.ErrUnknownTool, `"get_weather"`))
	f.script(
		toolTurn(call("call_1", "get_weather", `{"city":"Paris"}`)),
		textTurn("I cannot check the weather."),
	)

	loop := f.newLoop(t, conversation.WithCallback(cb))
	res, err := loop.SubmitUserTurn(context.Background(), "Weather in Paris?")
	require.NoError(t, err)
	assert.Equal(t, conversation.OutcomeAnswer, res.Outcome)
	assert.Equal(t, int32(1), cb.notFound.Load())

	r := results(loop.History())
	require.Len(t, r, 1)
	assert.True(t, r[0].IsError)
	assert.Equal(t, llms.ErrorKindUnknownTool, r[0].ErrorKind)
	assert.Contains(t, r[0].Content, "unknown tool")

	require.Len(t, res.ToolCalls, 1)
	assert.False(t, res.ToolCalls[0].Success)
	assert.Equal(t, llms.ErrorKindUnknownTool, res.ToolCalls[0].ErrorKind)
}

func TestLoop_ToolExecutionError(t *testing.T) {
	f := newFixture(t, getTimeTool)

	f.session.EXPECT().CallTool(gomock.Any(), "get_time", gomock.Any()).
		Return("", errors.Mark(errors.New("unknown time zone \"Mars/Base\""), mcpsession.ErrToolExecution))
	f.script(
		toolTurn(call("call_1", "get_time", `{"timezone":"Mars/Base"}`)),
		textTurn("That zone does not exist."),
	)

	loop := f.newLoop(t)
	res, err := loop.SubmitUserTurn(context.Background(), "Time on Mars?")
	require.NoError(t, err)
	assert.Equal(t, conversation.OutcomeAnswer, res.Outcome)

	r := results(loop.History())
	require.Len(t, r, 1)
	assert.Equal(t, llms.ErrorKindExecution, r[0].ErrorKind)
	assert.Contains(t, r[0].Content, "Mars/Base")
}

func TestLoop_ToolTimeout(t *testing.T) {
	f := newFixture(t, getTimeTool)

	f.session.EXPECT().CallTool(gomock.Any(), "get_time", gomock.Any()).
		Return("", errors.Wrap(mcpsession.ErrToolTimeout, "get_time"))
	f.script(
		toolTurn(call("call_1", "get_time", `{}`)),
		textTurn("The clock is slow."),
	)

	loop := f.newLoop(t)
	_, err := loop.SubmitUserTurn(context.Background(), "time?")
	require.NoError(t, err)

	r := results(loop.History())
	require.Len(t, r, 1)
	assert.Equal(t, llms.ErrorKindTimeout, r[0].ErrorKind)
}

func TestLoop_InvalidArguments(t *testing.T) {
	f := newFixture(t, getTimeTool)

	// CallTool is never expected
	f.script(
		toolTurn(
			call("call_1", "get_time", `not json at all`),
			call("call_2", "get_time", `{"timezone": 5}`),
			call("call_3", "get_time", `[1,2]`),
		),
		textTurn("Sorry."),
	)

	loop := f.newLoop(t)
	res, err := loop.SubmitUserTurn(context.Background(), "time?")
	require.NoError(t, err)
	assert.Equal(t, conversation.OutcomeAnswer, res.Outcome)

	r := results(loop.History())
	require.Len(t, r, 3)
	for i, id := range []string{"call_1", "call_2", "call_3"} {
		assert.Equal(t, id, r[i].ToolCallID)
		assert.True(t, r[i].IsError)
		assert.Equal(t, llms.ErrorKindInvalidArguments, r[i].ErrorKind)
	}
	require.NoError(t, llms.NewHistory(loop.History()...).Validate())
}

func TestLoop_StepBudget(t *testing.T) {
	f := newFixture(t, getTimeTool)

	f.session.EXPECT().CallTool(gomock.Any(), "get_time", gomock.Any()).Return("2025-01-02T14:32:00Z UTC", nil).Times(3)
	f.script(
		toolTurn(call("call_1", "get_time", "{}")),
		toolTurn(call("call_1", "get_time", "{}")),
		toolTurn(call("call_1", "get_time", "{}")),
	)

	loop := f.newLoop(t, conversation.WithStepBudget(3))
	res, err := loop.SubmitUserTurn(context.Background(), "loop forever")
	require.Error(t, err)
	assert.True(t, errors.Is(err, conversation.ErrStepBudgetExceeded))
	require.NotNil(t, res)
	assert.Equal(t, conversation.OutcomeStepBudgetExceeded, res.Outcome)
	assert.Equal(t, 3, res.Steps)
	assert.Empty(t, res.Answer)
	assert.Len(t, f.sent(), 3)

	history := loop.History()
	require.NoError(t, llms.NewHistory(history...).Validate())

	// reused IDs are replaced
	reqs := requests(history)
	require.Len(t, reqs, 3)
	assert.Equal(t, "call_1", reqs[0].ID)
	assert.NotEqual(t, "call_1", reqs[1].ID)
	assert.NotEqual(t, reqs[1].ID, reqs[2].ID)
	assert.Equal(t, conversation.StateAwaitingUserInput, loop.State())
}

func TestLoop_TransientRetry(t *testing.T) {
	f := newFixture(t, getTimeTool)
	cb := &recorder{}

	f.script(
		llms.TransientError(errors.New("status 429")),
		textTurn("hello"),
	)

	loop := f.newLoop(t, conversation.WithCallback(cb))
	res, err := loop.SubmitUserTurn(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Answer)
	assert.Equal(t, 1, res.Steps)
	assert.Equal(t, int32(1), cb.retries.Load())
}

func TestLoop_RetriesExhausted(t *testing.T) {
	f := newFixture(t, getTimeTool)
	cb := &recorder{}

	f.script(
		llms.TransientError(errors.New("status 503")),
		llms.TransientError(errors.New("status 503")),
		llms.TransientError(errors.New("status 529")),
	)

	loop := f.newLoop(t, conversation.WithCallback(cb))
	res, err := loop.SubmitUserTurn(context.Background(), "hi")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, llms.IsFatal(err))
	assert.False(t, llms.IsTransient(err))
	assert.Contains(t, err.Error(), "retries exhausted after 3 attempts")
	assert.Equal(t, int32(2), cb.retries.Load())
	assert.Equal(t, int32(1), cb.failed.Load())

	// the user text is kept
	assert.Equal(t, []llms.Kind{llms.KindUserText}, kinds(loop.History()))
	assert.Equal(t, conversation.StateAwaitingUserInput, loop.State())
}

func TestLoop_AuthError(t *testing.T) {
	f := newFixture(t, getTimeTool)

	f.script(
		llms.MissingTokenError(llms.ProviderOpenAI),
		textTurn("hello again"),
	)

	loop := f.newLoop(t)
	_, err := loop.SubmitUserTurn(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, llms.ErrAuth))
	assert.True(t, errors.Is(err, llms.ErrMissingToken))
	assert.True(t, llms.IsFatal(err))
	assert.Len(t, f.sent(), 1)

	// the loop accepts the next turn
	res, err := loop.SubmitUserTurn(context.Background(), "hi again")
	require.NoError(t, err)
	assert.Equal(t, "hello again", res.Answer)
	require.NoError(t, llms.NewHistory(loop.History()...).Validate())
}

func TestLoop_MalformedResponse(t *testing.T) {
	ctrl := gomock.NewController(t)
	adapter := mockllms.NewMockAdapter(ctrl)
	session := mocksession.NewMockSession(ctrl)
	spec := mockllms.NewMockToolSpec(ctrl)

	adapter.EXPECT().GetProviderType().Return(llms.ProviderDeepSeek).AnyTimes()
	adapter.EXPECT().GetName().Return("deepseek-chat").AnyTimes()
	adapter.EXPECT().EncodeTools(gomock.Any()).Return(spec, nil)
	adapter.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(rawTurn{}, nil)
	adapter.EXPECT().Decode(gomock.Any()).Return(nil, errors.New("unexpected end of JSON input"))
	session.EXPECT().ListTools(gomock.Any()).Return(nil, nil)

	loop, err := conversation.New(context.Background(), adapter, session, fastRetry)
	require.NoError(t, err)
	assert.Equal(t, "deepseek-chat", loop.Model())

	_, err = loop.SubmitUserTurn(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, errors.Is(err, llms.ErrMalformedResponse))
	assert.True(t, llms.IsFatal(err))
}

func TestLoop_SessionLost(t *testing.T) {
	f := newFixture(t, getTimeTool)
	cb := &recorder{}

	f.session.EXPECT().CallTool(gomock.Any(), "get_time", gomock.Any()).
		Return("", errors.Mark(errors.New("broken pipe"), mcpsession.ErrSession))
	f.script(
		toolTurn(
			call("call_1", "get_time", "{}"),
			call("call_2", "get_time", `{"timezone":"Europe/Paris"}`),
		),
	)

	loop := f.newLoop(t, conversation.WithCallback(cb))
	res, err := loop.SubmitUserTurn(context.Background(), "time?")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, mcpsession.ErrSession))
	assert.Equal(t, int32(1), cb.failed.Load())

	history := loop.History()
	require.NoError(t, llms.NewHistory(history...).Validate())
	r := results(history)
	require.Len(t, r, 2)
	assert.Equal(t, "call_1", r[0].ToolCallID)
	assert.Equal(t, llms.ErrorKindSessionLost, r[0].ErrorKind)
	assert.Equal(t, "call_2", r[1].ToolCallID)
	assert.Equal(t, llms.ErrorKindSessionLost, r[1].ErrorKind)

	// later turns fail without reaching the backend
	_, err = loop.SubmitUserTurn(context.Background(), "again")
	require.Error(t, err)
	assert.True(t, errors.Is(err, mcpsession.ErrSession))
	assert.Len(t, f.sent(), 1)
	assert.Len(t, loop.History(), len(history))
}

func TestLoop_Cancelled(t *testing.T) {
	f := newFixture(t, getTimeTool)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.session.EXPECT().CallTool(gomock.Any(), "get_time", gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, _ json.RawMessage) (string, error) {
			cancel()
			return "", errors.Wrap(ctx.Err(), "call get_time")
		})
	f.script(
		toolTurn(
			call("call_1", "get_time", "{}"),
			call("call_2", "get_time", "{}"),
		),
	)

	loop := f.newLoop(t)
	res, err := loop.SubmitUserTurn(ctx, "time?")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, errors.Is(err, mcpsession.ErrSession))

	history := loop.History()
	require.NoError(t, llms.NewHistory(history...).Validate())
	r := results(history)
	require.Len(t, r, 2)
	assert.Equal(t, llms.ErrorKindCancelled, r[0].ErrorKind)
	assert.Equal(t, llms.ErrorKindCancelled, r[1].ErrorKind)
	assert.Equal(t, conversation.StateAwaitingUserInput, loop.State())
}

func TestLoop_CancelledDuringSend(t *testing.T) {
	f := newFixture(t, getTimeTool)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f.adapter.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ []llms.Message, _ llms.ToolSpec, _ ...llms.CallOption) (llms.RawResponse, error) {
			cancel()
			return nil, llms.ClassifyTransportError(ctx, llms.ProviderOpenAI, ctx.Err())
		})

	loop := f.newLoop(t)
	_, err := loop.SubmitUserTurn(ctx, "time?")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, []llms.Kind{llms.KindUserText}, kinds(loop.History()))
}

// concurrency tracks the maximum number of overlapping calls.
type concurrency struct {
	current atomic.Int32
	max     atomic.Int32
}

func (c *concurrency) enter() {
	n := c.current.Add(1)
	for {
		m := c.max.Load()
		if n <= m || c.max.CompareAndSwap(m, n) {
			return
		}
	}
}

func (c *concurrency) leave() {
	c.current.Add(-1)
}

func zoneCalls() []llms.ToolCall {
	return []llms.ToolCall{
		call("call_1", "get_time", `{"timezone":"UTC"}`),
		call("call_2", "get_time", `{"timezone":"Europe/Paris"}`),
		call("call_3", "get_time", `{"timezone":"Asia/Tokyo"}`),
	}
}

func zoneCall(c *concurrency, wait func()) func(context.Context, string, json.RawMessage) (string, error) {
	return func(_ context.Context, _ string, args json.RawMessage) (string, error) {
		c.enter()
		defer c.leave()
		var req struct {
			Timezone string `json:"timezone"`
		}
		if err := json.Unmarshal(args, &req); err != nil {
			return "", err
		}
		wait()
		return "time in " + req.Timezone, nil
	}
}

func TestLoop_ParallelDispatch(t *testing.T) {
	f := newFixture(t, getTimeTool)
	c := &concurrency{}

	var started sync.WaitGroup
	started.Add(3)
	release := make(chan struct{})
	go func() {
		started.Wait()
		close(release)
	}()
	wait := func() {
		started.Done()
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
	}

	f.session.EXPECT().ConcurrencySafe(gomock.Any()).Return(true).AnyTimes()
	f.session.EXPECT().CallTool(gomock.Any(), "get_time", gomock.Any()).DoAndReturn(zoneCall(c, wait)).Times(3)
	f.script(toolTurn(zoneCalls()...), textTurn("done"))

	loop := f.newLoop(t, conversation.WithParallelTools(4))
	res, err := loop.SubmitUserTurn(context.Background(), "times?")
	require.NoError(t, err)
	assert.Equal(t, int32(3), c.max.Load())

	// results follow the request order
	r := results(loop.History())
	require.Len(t, r, 3)
	assert.Equal(t, "call_1", r[0].ToolCallID)
	assert.Equal(t, "time in UTC", r[0].Content)
	assert.Equal(t, "call_2", r[1].ToolCallID)
	assert.Equal(t, "time in Europe/Paris", r[1].Content)
	assert.Equal(t, "call_3", r[2].ToolCallID)
	assert.Equal(t, "time in Asia/Tokyo", r[2].Content)

	require.Len(t, res.ToolCalls, 3)
	assert.Equal(t, "call_3", res.ToolCalls[2].ID)
}

func TestLoop_SequentialWhenNotSafe(t *testing.T) {
	f := newFixture(t, getTimeTool)
	c := &concurrency{}

	f.session.EXPECT().ConcurrencySafe(gomock.Any()).Return(false).AnyTimes()
	f.session.EXPECT().CallTool(gomock.Any(), "get_time", gomock.Any()).
		DoAndReturn(zoneCall(c, func() { time.Sleep(5 * time.Millisecond) })).Times(3)
	f.script(toolTurn(zoneCalls()...), textTurn("done"))

	loop := f.newLoop(t, conversation.WithParallelTools(4))
	_, err := loop.SubmitUserTurn(context.Background(), "times?")
	require.NoError(t, err)
	assert.Equal(t, int32(1), c.max.Load())

	r := results(loop.History())
	require.Len(t, r, 3)
	assert.Equal(t, "time in Asia/Tokyo", r[2].Content)
}

func TestLoop_GeneratedCallIDs(t *testing.T) {
	f := newFixture(t, getTimeTool)

	f.session.EXPECT().CallTool(gomock.Any(), "get_time", gomock.Any()).Return("now", nil).Times(3)
	f.script(
		toolTurn(
			call("", "get_time", ""),
			call("dup", "get_time", "null"),
			call("dup", "get_time", "{}"),
		),
		textTurn("done"),
	)

	loop := f.newLoop(t)
	_, err := loop.SubmitUserTurn(context.Background(), "times?")
	require.NoError(t, err)

	history := loop.History()
	require.NoError(t, llms.NewHistory(history...).Validate())

	reqs := requests(history)
	require.Len(t, reqs, 3)
	assert.True(t, strings.HasPrefix(reqs[0].ID, "call_"))
	assert.Equal(t, "dup", reqs[1].ID)
	assert.True(t, strings.HasPrefix(reqs[2].ID, "call_"))
	assert.NotEqual(t, reqs[0].ID, reqs[2].ID)

	r := results(history)
	require.Len(t, r, 3)
	for i := range reqs {
		assert.Equal(t, reqs[i].ID, r[i].ToolCallID)
	}
}

func TestLoop_EmptyAnswer(t *testing.T) {
	f := newFixture(t, getTimeTool)
	cb := &recorder{}

	f.script(&llms.ModelTurn{Texts: []string{"  "}, StopReason: "stop"})

	loop := f.newLoop(t, conversation.WithCallback(cb))
	res, err := loop.SubmitUserTurn(context.Background(), "say nothing")
	require.NoError(t, err)
	assert.Equal(t, conversation.OutcomeEmptyAnswer, res.Outcome)
	assert.Empty(t, res.Answer)
	assert.Equal(t, []llms.Kind{llms.KindUserText}, kinds(loop.History()))
	assert.Equal(t, int32(1), cb.ended.Load())
}

func TestLoop_InterleavedText(t *testing.T) {
	f := newFixture(t, getTimeTool)

	turn := toolTurn(call("call_1", "get_time", "{}"))
	turn.Texts = []string{"Let me check the clock."}
	turn.Reasoning = "the user wants the time"

	f.session.EXPECT().CallTool(gomock.Any(), "get_time", gomock.Any()).Return("now", nil)
	f.script(turn, textTurn("It is now."))

	loop := f.newLoop(t)
	res, err := loop.SubmitUserTurn(context.Background(), "time?")
	require.NoError(t, err)
	assert.Equal(t, "It is now.", res.Answer)

	history := loop.History()
	assert.Equal(t, []llms.Kind{
		llms.KindUserText,
		llms.KindAssistantText,
		llms.KindAssistantToolCallRequest,
		llms.KindToolResult,
		llms.KindAssistantText,
	}, kinds(history))
	assert.Equal(t, "Let me check the clock.", history[1].Text())
}

func TestLoop_StoreAndTurnLog(t *testing.T) {
	st := store.NewMemoryStore()
	var buf bytes.Buffer
	tl := turnlog.New(&buf)
	chatCtx := chatmodel.NewChatContext("tenant1", "chat1", nil)

	f := newFixture(t, getTimeTool)
	f.session.EXPECT().CallTool(gomock.Any(), "get_time", gomock.Any()).Return("2025-01-02T14:32:00Z UTC", nil)
	f.script(
		toolTurn(call("call_1", "get_time", "{}")),
		textTurn("It is 14:32 UTC."),
		textTurn("You are welcome."),
	)

	loop := f.newLoop(t,
		conversation.WithStore(st),
		conversation.WithTurnLog(tl),
		conversation.WithChatContext(chatCtx),
	)
	_, err := loop.SubmitUserTurn(context.Background(), "What time is it?")
	require.NoError(t, err)

	ctx := chatmodel.WithChatContext(context.Background(), chatCtx)
	assert.Len(t, st.Messages(ctx), 4)

	records, err := turnlog.Read(&buf)
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "chat1", rec.ChatID)
	assert.Equal(t, "What time is it?", rec.Query)
	assert.Equal(t, "answer", rec.Outcome)
	assert.Equal(t, "It is 14:32 UTC.", rec.Response)
	assert.True(t, rec.Success)
	assert.Equal(t, 2, rec.Steps)
	require.Len(t, rec.ToolCalls, 1)
	assert.Equal(t, "get_time", rec.ToolCalls[0].Name)

	// a new loop resumes the stored chat
	resumed := f.newLoop(t,
		conversation.WithStore(st),
		conversation.WithChatContext(chatCtx),
	)
	assert.Len(t, resumed.History(), 4)

	res, err := resumed.SubmitUserTurn(context.Background(), "Thanks!")
	require.NoError(t, err)
	assert.Equal(t, "You are welcome.", res.Answer)
	assert.Len(t, res.Messages, 2)
	assert.Len(t, st.Messages(ctx), 6)

	sent := f.sent()
	assert.Len(t, sent[2], 5)
}

func TestLoop_WithHistory(t *testing.T) {
	f := newFixture(t, getTimeTool)

	// a dangling call request makes the history unusable
	loop := f.newLoop(t, conversation.WithHistory(
		llms.NewUserText("hi"),
		llms.NewToolCallRequest("call_1", "get_time", "{}"),
	))
	assert.Empty(t, loop.History())

	// entries before the first user text are dropped
	loop = f.newLoop(t, conversation.WithHistory(
		llms.NewToolResult(llms.ToolCallResponse{ToolCallID: "call_0", Name: "get_time", Content: "now"}),
		llms.NewAssistantText("It is now."),
		llms.NewUserText("hi"),
		llms.NewAssistantText("hello"),
	))
	assert.Equal(t, []llms.Kind{llms.KindUserText, llms.KindAssistantText}, kinds(loop.History()))
}

func TestNew_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("list", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		adapter := mockllms.NewMockAdapter(ctrl)
		session := mocksession.NewMockSession(ctrl)
		session.EXPECT().ListTools(gomock.Any()).Return(nil, errors.Mark(errors.New("EOF"), mcpsession.ErrSession))

		_, err := conversation.New(ctx, adapter, session)
		require.Error(t, err)
		assert.True(t, errors.Is(err, mcpsession.ErrSession))
		assert.Contains(t, err.Error(), "unable to list tools")
	})

	t.Run("schema", func(t *testing.T) {
		f := newFixture(t, getTimeTool, getTimeTool)
		_, err := conversation.New(ctx, f.adapter, f.session)
		require.Error(t, err)
		assert.True(t, errors.Is(err, toolcatalog.ErrSchema))
	})

	t.Run("unsupported", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		adapter := mockllms.NewMockAdapter(ctrl)
		session := mocksession.NewMockSession(ctrl)
		session.EXPECT().ListTools(gomock.Any()).Return([]toolcatalog.RawDescriptor{getTimeTool}, nil)
		adapter.EXPECT().GetProviderType().Return(llms.ProviderAnthropic).AnyTimes()
		adapter.EXPECT().EncodeTools(gomock.Any()).Return(nil, errors.Wrap(toolcatalog.ErrUnsupportedSchemaFeature, "get_time: anyOf"))

		_, err := conversation.New(ctx, adapter, session)
		require.Error(t, err)
		assert.True(t, errors.Is(err, toolcatalog.ErrUnsupportedSchemaFeature))
		assert.Contains(t, err.Error(), "unable to encode tools for ANTHROPIC")
	})
}

func TestLoop_SystemPromptFunc(t *testing.T) {
	f := newFixture(t, getTimeTool)
	var prompt string
	f.adapter.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ []llms.Message, _ llms.ToolSpec, opts ...llms.CallOption) (llms.RawResponse, error) {
			prompt = llms.NewCallOptions(opts...).SystemPrompt
			return rawTurn{turn: textTurn("ok")}, nil
		})

	loop := f.newLoop(t, conversation.WithSystemPromptFunc(func(c *toolcatalog.Catalog) (string, error) {
		var names []string
		for _, d := range c.Describe() {
			names = append(names, d.Name)
		}
		return "tools: " + strings.Join(names, ","), nil
	}))
	res, err := loop.SubmitUserTurn(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Answer)
	assert.Equal(t, "tools: get_time", prompt)

	_, err = conversation.New(context.Background(), f.adapter, f.session,
		conversation.WithSystemPromptFunc(func(*toolcatalog.Catalog) (string, error) {
			return "", errors.New("bad template")
		}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to render system prompt: bad template")
}
