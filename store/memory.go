package store

import (
	"context"
	"sort"
	"sync"

	"github.com/effective-security/mcpbridge/chatmodel"
	"github.com/effective-security/mcpbridge/pkg/llms"
)

type memoryChat struct {
	info     ChatInfo
	messages []llms.Message
}

type inMemory struct {
	mu          sync.RWMutex
	maxMessages int
	// tenant => chat => history
	storage map[string]map[string]*memoryChat
}

// NewMemoryStore returns a MessageStore kept in process memory.
func NewMemoryStore() MessageStore {
	return &inMemory{
		maxMessages: DefaultMaxMessages,
		storage:     make(map[string]map[string]*memoryChat),
	}
}

func (m *inMemory) chat(tenantID, chatID string, create bool) *memoryChat {
	chats := m.storage[tenantID]
	if chats == nil {
		if !create {
			return nil
		}
		chats = make(map[string]*memoryChat)
		m.storage[tenantID] = chats
	}
	c := chats[chatID]
	if c == nil && create {
		c = &memoryChat{info: *newChatInfo(tenantID, chatID)}
		chats[chatID] = c
	}
	return c
}

func (m *inMemory) Messages(ctx context.Context) []llms.Message {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c := m.chat(tenantID, chatID, false); c != nil {
		return append([]llms.Message(nil), c.messages...)
	}
	return nil
}

func (m *inMemory) Add(ctx context.Context, msgs ...llms.Message) error {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.chat(tenantID, chatID, true)
	c.messages = append(c.messages, msgs...)
	if over := len(c.messages) - m.maxMessages; over > 0 {
		c.messages = append([]llms.Message(nil), c.messages[over:]...)
	}
	c.info.update("", nil)
	return nil
}

func (m *inMemory) Reset(ctx context.Context) error {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if chats := m.storage[tenantID]; chats != nil {
		delete(chats, chatID)
	}
	return nil
}

func (m *inMemory) UpdateChat(ctx context.Context, title string, metadata map[string]any) (*ChatInfo, error) {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.chat(tenantID, chatID, true)
	c.info.update(title, metadata)
	info := c.info
	return &info, nil
}

func (m *inMemory) ListChats(ctx context.Context) ([]string, error) {
	tenantID, _, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []string
	for id := range m.storage[tenantID] {
		list = append(list, id)
	}
	sort.Strings(list)
	return list, nil
}

func (m *inMemory) GetChatInfo(ctx context.Context, id string) (*ChatInfo, error) {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = chatID
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c := m.chat(tenantID, id, true)
	info := c.info
	info.Messages = append([]llms.Message(nil), c.messages...)
	return &info, nil
}
