package chatmodel

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatContext(t *testing.T) {
	t.Parallel()

	c := NewChatContext("acme", "chat-1", "shell")
	assert.Equal(t, "acme", c.GetTenantID())
	assert.Equal(t, "chat-1", c.GetChatID())
	assert.Equal(t, "shell", c.AppData())

	first := c.RunID()
	require.NotEmpty(t, first)
	second := c.NewRun()
	assert.NotEqual(t, first, second)
	assert.Equal(t, second, c.RunID())

	c.SetChatID("chat-2")
	assert.Equal(t, "chat-2", c.GetChatID())

	_, ok := c.GetMetadata("provider")
	assert.False(t, ok)
	c.SetMetadata("provider", "OPENAI")
	v, ok := c.GetMetadata("provider")
	require.True(t, ok)
	assert.Equal(t, "OPENAI", v)
}

func TestNewChatContext_Defaults(t *testing.T) {
	t.Parallel()

	a := NewChatContext("", "", nil)
	b := NewChatContext("", "", nil)
	assert.Equal(t, DefaultTenantID, a.GetTenantID())
	assert.NotEmpty(t, a.GetChatID())
	assert.NotEqual(t, a.GetChatID(), b.GetChatID())
	assert.Nil(t, a.AppData())
}

func TestChatContext_InContext(t *testing.T) {
	t.Parallel()

	base := context.Background()
	assert.Nil(t, GetChatContext(base))
	assert.Empty(t, GetChatID(base))
	assert.Nil(t, GetChatContext(NewFromContext(base)))

	_, err := SetChatID(base, "resumed")
	assert.True(t, errors.Is(err, ErrInvalidChatContext))
	_, _, err = GetTenantAndChatID(base)
	assert.True(t, errors.Is(err, ErrInvalidChatContext))

	c := NewChatContext("acme", "chat-1", nil)
	ctx := WithChatContext(base, c)
	assert.Same(t, c, GetChatContext(ctx))
	assert.Equal(t, "chat-1", GetChatID(ctx))

	ctx, err = SetChatID(ctx, "resumed")
	require.NoError(t, err)
	tenant, chat, err := GetTenantAndChatID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acme", tenant)
	assert.Equal(t, "resumed", chat)

	// a detached context keeps the chat after the caller cancels
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	detached := NewFromContext(cctx)
	assert.NoError(t, detached.Err())
	assert.Same(t, c, GetChatContext(detached))
}
