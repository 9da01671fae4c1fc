package conversation

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/mcpbridge/pkg/toolcatalog"
	"github.com/effective-security/mcpbridge/pkg/turnlog"
	"github.com/effective-security/mcpbridge/store"
)

// DefaultStepBudget is the number of backend round trips allowed per user turn.
const DefaultStepBudget = 10

// RetryPolicy bounds the retries of transient backend failures.
type RetryPolicy struct {
	InitialInterval time.Duration `json:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `json:"max_interval" yaml:"max_interval"`
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// DefaultRetryPolicy is used when no policy is provided.
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     8 * time.Second,
	MaxRetries:      3,
}

// NewBackOff returns an exponential back-off stopping after MaxRetries.
func (p RetryPolicy) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(max(p.MaxRetries, 0)))
}

// Option configures a Loop.
type Option func(*options)

type options struct {
	stepBudget  int
	parallel    int
	newBackOff  func() backoff.BackOff
	callback    Callback
	store       store.MessageStore
	turnLog     *turnlog.Writer
	chatCtx     chatmodel.ChatContext
	callOptions []llms.CallOption
	history     []llms.Message
	prompt      func(*toolcatalog.Catalog) (string, error)
}

func defaultOptions() options {
	return options{
		stepBudget: DefaultStepBudget,
		newBackOff: DefaultRetryPolicy.NewBackOff,
		callback:   noop{},
	}
}

// WithStepBudget sets the number of backend round trips allowed per user turn.
func WithStepBudget(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.stepBudget = n
		}
	}
}

// WithParallelTools allows up to n tool calls of one model turn to run
// concurrently, when the session reports the requested tools as safe
// for overlapping calls. Otherwise calls are dispatched sequentially.
func WithParallelTools(n int) Option {
	return func(o *options) {
		o.parallel = n
	}
}

// WithRetryPolicy sets the retry policy for transient backend failures.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) {
		o.newBackOff = p.NewBackOff
	}
}

// WithBackOff sets the back-off factory for transient backend failures.
func WithBackOff(f func() backoff.BackOff) Option {
	return func(o *options) {
		if f != nil {
			o.newBackOff = f
		}
	}
}

// WithCallback sets the event handler.
func WithCallback(cb Callback) Option {
	return func(o *options) {
		if cb != nil {
			o.callback = cb
		}
	}
}

// WithStore persists the history of every turn, and restores the history
// of the chat when the Loop is created.
func WithStore(st store.MessageStore) Option {
	return func(o *options) {
		o.store = st
	}
}

// WithTurnLog appends a record for every user turn.
func WithTurnLog(w *turnlog.Writer) Option {
	return func(o *options) {
		o.turnLog = w
	}
}

// WithChatContext sets the chat the Loop belongs to.
// By default the ChatContext of the New context is used, or a new one is created.
func WithChatContext(c chatmodel.ChatContext) Option {
	return func(o *options) {
		o.chatCtx = c
	}
}

// WithCallOptions sets the backend options of every request.
func WithCallOptions(opts ...llms.CallOption) Option {
	return func(o *options) {
		o.callOptions = append(o.callOptions, opts...)
	}
}

// WithSystemPrompt sets the system prompt of every request.
func WithSystemPrompt(prompt string) Option {
	return WithCallOptions(llms.WithSystemPrompt(prompt))
}

// WithSystemPromptFunc renders the system prompt from the tool catalog
// of the session when the Loop is created.
func WithSystemPromptFunc(f func(*toolcatalog.Catalog) (string, error)) Option {
	return func(o *options) {
		o.prompt = f
	}
}

// WithHistory seeds the history, it takes precedence over the store.
func WithHistory(msgs ...llms.Message) Option {
	return func(o *options) {
		o.history = msgs
	}
}
