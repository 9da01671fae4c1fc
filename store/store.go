package store

import (
	"context"
	"time"

	"github.com/effective-security/mcpbridge/pkg/llms"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "store")

// DefaultMaxMessages is the number of most recent messages kept per chat.
const DefaultMaxMessages = 200

// MessageStore persists conversation history per chat.
// The tenant and chat are taken from the chatmodel.ChatContext of ctx.
type MessageStore interface {
	// Messages returns the stored history of the chat, oldest first.
	Messages(ctx context.Context) []llms.Message
	// Add appends messages to the chat history.
	Add(ctx context.Context, msgs ...llms.Message) error
	// Reset removes the chat and its history.
	Reset(ctx context.Context) error
	// UpdateChat creates or updates the chat with the title and metadata.
	UpdateChat(ctx context.Context, title string, metadata map[string]any) (*ChatInfo, error)
	// ListChats returns chat IDs of the tenant.
	ListChats(ctx context.Context) ([]string, error)
	// GetChatInfo returns the chat with its messages,
	// if id is empty the chat ID from the context is used.
	GetChatInfo(ctx context.Context, id string) (*ChatInfo, error)
}

// ChatInfo describes a stored chat.
type ChatInfo struct {
	TenantID  string         `json:"tenant_id"`
	ChatID    string         `json:"chat_id"`
	Title     string         `json:"title"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	Messages []llms.Message `json:"messages,omitempty"`
}

// DefaultChatTitle is the title of a chat created implicitly by Add.
const DefaultChatTitle = "New Chat"

func newChatInfo(tenantID, chatID string) *ChatInfo {
	now := time.Now()
	return &ChatInfo{
		TenantID:  tenantID,
		ChatID:    chatID,
		Title:     DefaultChatTitle,
		CreatedAt: now,
		UpdatedAt: now,
		Metadata:  make(map[string]any),
	}
}

func (c *ChatInfo) update(title string, metadata map[string]any) {
	if title != "" {
		c.Title = title
	}
	if metadata != nil {
		if c.Metadata == nil {
			c.Metadata = make(map[string]any)
		}
		for k, v := range metadata {
			c.Metadata[k] = v
		}
	}
	c.UpdatedAt = time.Now()
}
