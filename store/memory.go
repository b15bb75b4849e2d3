package store

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/chatmodel"
	"github.com/effective-security/toolflow/pkg/llms"
)

type inMemory struct {
	mu          sync.RWMutex
	maxMessages int
	chats       map[string]*ChatInfo
}

// NewMemoryStore returns a process local store.
// maxMessages <= 0 means DefaultMaxMessages.
func NewMemoryStore(maxMessages int) MessageStoreManager {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	return &inMemory{
		maxMessages: maxMessages,
		chats:       make(map[string]*ChatInfo),
	}
}

func memoryKey(tenantID, chatID string) string {
	return path.Join(tenantID, chatID)
}

func (m *inMemory) Messages(ctx context.Context) []llms.Message {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	chat := m.chats[memoryKey(tenantID, chatID)]
	if chat == nil {
		return nil
	}
	return trimTail(append([]llms.Message(nil), chat.Messages...), m.maxMessages)
}

func (m *inMemory) Add(ctx context.Context, msgs ...llms.Message) error {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	chat := m.chat(tenantID, chatID)
	chat.Messages = append(chat.Messages, msgs...)
	if len(chat.Messages) > m.maxMessages {
		chat.Messages = chat.Messages[len(chat.Messages)-m.maxMessages:]
	}
	chat.UpdatedAt = time.Now()
	return nil
}

// chat returns the chat, creating it on first use; the lock must be held.
func (m *inMemory) chat(tenantID, chatID string) *ChatInfo {
	key := memoryKey(tenantID, chatID)
	chat := m.chats[key]
	if chat == nil {
		now := time.Now()
		chat = &ChatInfo{
			TenantID:  tenantID,
			ChatID:    chatID,
			Title:     "New Chat",
			CreatedAt: now,
			UpdatedAt: now,
			Metadata:  make(map[string]any),
		}
		m.chats[key] = chat
	}
	return chat
}

func (m *inMemory) Reset(ctx context.Context) error {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chats, memoryKey(tenantID, chatID))
	return nil
}

func (m *inMemory) UpdateChat(ctx context.Context, title string, metadata map[string]any) error {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	chat := m.chat(tenantID, chatID)
	if title != "" {
		chat.Title = title
	}
	for k, v := range metadata {
		chat.Metadata[k] = v
	}
	chat.UpdatedAt = time.Now()
	return nil
}

func (m *inMemory) ListChats(ctx context.Context) ([]string, error) {
	tenantID, _, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var list []string
	for key, chat := range m.chats {
		if strings.HasPrefix(key, tenantID+"/") {
			list = append(list, chat.ChatID)
		}
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
	m.mu.RLock()
	defer m.mu.RUnlock()
	chat := m.chats[memoryKey(tenantID, id)]
	if chat == nil {
		return nil, errors.Newf("chat %s not found", id)
	}
	info := *chat
	info.Messages = append([]llms.Message(nil), chat.Messages...)
	return &info, nil
}

func (m *inMemory) Cleanup(_ context.Context, tenantID string, olderThan time.Duration) (uint32, error) {
	cutoff := time.Now().Add(-olderThan)
	m.mu.Lock()
	defer m.mu.Unlock()
	var deleted uint32
	for key, chat := range m.chats {
		if chat.TenantID == tenantID && chat.UpdatedAt.Before(cutoff) {
			delete(m.chats, key)
			deleted++
		}
	}
	return deleted, nil
}
