package chatmodel

import (
	"context"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
)

// DefaultTenantID is used when a chat is started without a tenant.
const DefaultTenantID = "local"

// ErrInvalidChatContext is returned when the context carries no ChatContext.
var ErrInvalidChatContext = errors.New("invalid chat context")

// ChatContext identifies one conversation: the tenant that owns it,
// the chat ID its history is stored under, and the run ID of the current user turn.
type ChatContext interface {
	GetTenantID() string
	GetChatID() string
	SetChatID(chatID string)
	// RunID returns the ID of the current run
	RunID() string
	// NewRun starts a new run and returns its ID
	NewRun() string
	// AppData returns immutable app data
	AppData() any
	// GetMetadata retrieves metadata by key
	GetMetadata(key string) (value any, ok bool)
	// SetMetadata sets metadata by key
	SetMetadata(key string, value any)
}

type chatContext struct {
	lock     sync.RWMutex
	tenantID string
	chatID   string
	runID    string
	metadata sync.Map
	appData  any
}

func (c *chatContext) GetTenantID() string {
	return c.tenantID
}

func (c *chatContext) GetChatID() string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.chatID
}

func (c *chatContext) SetChatID(chatID string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.chatID = chatID
}

func (c *chatContext) RunID() string {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return c.runID
}

func (c *chatContext) NewRun() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.runID = NewChatID()
	return c.runID
}

func (c *chatContext) AppData() any {
	return c.appData
}

func (c *chatContext) GetMetadata(key string) (value any, ok bool) {
	return c.metadata.Load(key)
}

func (c *chatContext) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

// NewChatContext returns a chat context, generating a chat ID if none is provided.
func NewChatContext(tenantID, chatID string, appData any) ChatContext {
	return &chatContext{
		tenantID: values.StringsCoalesce(tenantID, DefaultTenantID),
		chatID:   values.StringsCoalesce(chatID, NewChatID()),
		runID:    NewChatID(),
		appData:  appData,
	}
}

type contextKey int

const (
	keyContext contextKey = iota
)

// WithChatContext returns a new context with ChatContext value
func WithChatContext(ctx context.Context, chatCtx ChatContext) context.Context {
	return context.WithValue(ctx, keyContext, chatCtx)
}

// GetChatContext retrieves the ChatContext from the context
func GetChatContext(ctx context.Context) ChatContext {
	if v, ok := ctx.Value(keyContext).(ChatContext); ok {
		return v
	}
	return nil
}

// NewFromContext returns a background context carrying the ChatContext of ctx,
// for work that must outlive the caller's cancellation.
func NewFromContext(ctx context.Context) context.Context {
	if v := GetChatContext(ctx); v != nil {
		return WithChatContext(context.Background(), v)
	}
	return context.Background()
}

// SetChatID updates the chat ID of the ChatContext in ctx.
func SetChatID(ctx context.Context, chatID string) (context.Context, error) {
	v := GetChatContext(ctx)
	if v == nil {
		return ctx, errors.WithStack(ErrInvalidChatContext)
	}
	v.SetChatID(chatID)
	return ctx, nil
}

// GetChatID retrieves the chat ID from the provided context.
// If the context does not contain a ChatContext, it returns an empty string.
func GetChatID(ctx context.Context) string {
	if v := GetChatContext(ctx); v != nil {
		return v.GetChatID()
	}
	return ""
}

// GetTenantAndChatID returns the tenant and chat IDs of the ChatContext in ctx.
func GetTenantAndChatID(ctx context.Context) (string, string, error) {
	v := GetChatContext(ctx)
	if v == nil {
		return "", "", ErrInvalidChatContext
	}
	return v.GetTenantID(), v.GetChatID(), nil
}

// NewChatID generates a new chat ID using the flake ID generator.
func NewChatID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}
