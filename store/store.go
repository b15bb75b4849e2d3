// Package store checkpoints conversation history between rounds.
// The tenant and chat are taken from the chatmodel.ChatContext in the context.
package store

import (
	"context"
	"time"

	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/toolflow", "store")

// DefaultMaxMessages is the number of messages kept per chat.
const DefaultMaxMessages = 200

// MessageStore keeps the message history of a chat.
type MessageStore interface {
	// Messages returns the stored history, oldest first.
	Messages(ctx context.Context) []llms.Message
	// Add appends messages to the history.
	Add(ctx context.Context, msgs ...llms.Message) error
	// Reset deletes the history.
	Reset(ctx context.Context) error
}

// ChatInfo describes a stored chat.
type ChatInfo struct {
	TenantID  string         `json:"tenant_id"`
	ChatID    string         `json:"chat_id"`
	Title     string         `json:"title,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	Messages []llms.Message `json:"messages,omitempty"`
}

// MessageStoreManager manages chats of a tenant.
type MessageStoreManager interface {
	MessageStore
	// UpdateChat sets the title and merges metadata of the current chat.
	UpdateChat(ctx context.Context, title string, metadata map[string]any) error
	// ListChats returns chat IDs of the current tenant.
	ListChats(ctx context.Context) ([]string, error)
	// GetChatInfo returns the chat with messages, empty id means the current chat.
	GetChatInfo(ctx context.Context, id string) (*ChatInfo, error)
	// Cleanup deletes chats of the tenant not updated within olderThan.
	Cleanup(ctx context.Context, tenantID string, olderThan time.Duration) (uint32, error)
}

// trimTail returns at most max last messages.
// The result never starts with a tool result orphaned from its call.
func trimTail(msgs []llms.Message, max int) []llms.Message {
	if max > 0 && len(msgs) > max {
		msgs = msgs[len(msgs)-max:]
	}
	for len(msgs) > 0 && msgs[0].Role == llms.RoleTool {
		msgs = msgs[1:]
	}
	return msgs
}
