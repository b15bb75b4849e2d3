package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolflow/chatmodel"
	"github.com/effective-security/toolflow/pkg/llms"
	"github.com/effective-security/xlog"

	_ "modernc.org/sqlite"
)

//go:embed sqlite_schema.sql
var sqliteSchema string

// timeLayout sorts lexically in time order
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore persists chats in a SQLite database.
type SQLiteStore struct {
	db          *sql.DB
	maxMessages int
}

var _ MessageStoreManager = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database at dsn.
// maxMessages <= 0 means DefaultMaxMessages.
func NewSQLiteStore(dsn string, maxMessages int) (*SQLiteStore, error) {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite")
	}
	// a single connection keeps in-memory databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to set WAL mode")
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to create schema")
	}

	return &SQLiteStore{
		db:          db,
		maxMessages: maxMessages,
	}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Messages(ctx context.Context) []llms.Message {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "GetTenantAndChatID", "err", err.Error())
		return nil
	}
	msgs, err := s.messages(ctx, tenantID, chatID)
	if err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "messages", "err", err.Error())
		return nil
	}
	return msgs
}

func (s *SQLiteStore) messages(ctx context.Context, tenantID, chatID string) ([]llms.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM (
			SELECT id, body FROM messages WHERE tenant_id = ? AND chat_id = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`,
		tenantID, chatID, s.maxMessages,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query messages")
	}
	defer rows.Close()

	var messages []llms.Message
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		var msg llms.Message
		if err := json.Unmarshal([]byte(body), &msg); err != nil {
			logger.ContextKV(ctx, xlog.ERROR, "reason", "unmarshal message", "err", err.Error())
			continue
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read messages")
	}
	return trimTail(messages, s.maxMessages), nil
}

func (s *SQLiteStore) Add(ctx context.Context, msgs ...llms.Message) error {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.touch(ctx, tx, tenantID, chatID, "", nil); err != nil {
		return err
	}
	for _, msg := range msgs {
		body, err := json.Marshal(msg)
		if err != nil {
			return errors.Wrap(err, "failed to marshal message")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (tenant_id, chat_id, body) VALUES (?, ?, ?)`,
			tenantID, chatID, string(body))
		if err != nil {
			return errors.Wrap(err, "failed to insert message")
		}
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM messages WHERE tenant_id = ? AND chat_id = ? AND id NOT IN (
			SELECT id FROM messages WHERE tenant_id = ? AND chat_id = ? ORDER BY id DESC LIMIT ?
		 )`,
		tenantID, chatID, tenantID, chatID, s.maxMessages)
	if err != nil {
		return errors.Wrap(err, "failed to trim messages")
	}

	return errors.Wrap(tx.Commit(), "failed to commit messages")
}

// touch creates the chat row or updates it; metadata is merged.
func (s *SQLiteStore) touch(ctx context.Context, tx *sql.Tx, tenantID, chatID, title string, metadata map[string]any) error {
	now := time.Now().UTC().Format(timeLayout)

	var curTitle, curMeta string
	err := tx.QueryRowContext(ctx,
		`SELECT title, metadata FROM chats WHERE tenant_id = ? AND chat_id = ?`,
		tenantID, chatID).Scan(&curTitle, &curMeta)
	if errors.Is(err, sql.ErrNoRows) {
		meta, merr := json.Marshal(orEmpty(metadata))
		if merr != nil {
			return errors.Wrap(merr, "failed to marshal metadata")
		}
		if title == "" {
			title = "New Chat"
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO chats (tenant_id, chat_id, title, metadata, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			tenantID, chatID, title, string(meta), now, now)
		return errors.Wrap(err, "failed to insert chat")
	}
	if err != nil {
		return errors.Wrap(err, "failed to query chat")
	}

	merged := map[string]any{}
	if curMeta != "" {
		_ = json.Unmarshal([]byte(curMeta), &merged)
	}
	for k, v := range metadata {
		merged[k] = v
	}
	meta, err := json.Marshal(merged)
	if err != nil {
		return errors.Wrap(err, "failed to marshal metadata")
	}
	if title == "" {
		title = curTitle
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE chats SET title = ?, metadata = ?, updated_at = ? WHERE tenant_id = ? AND chat_id = ?`,
		title, string(meta), now, tenantID, chatID)
	return errors.Wrap(err, "failed to update chat")
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, `DELETE FROM messages WHERE tenant_id = ? AND chat_id = ?`, tenantID, chatID); err != nil {
		return errors.Wrap(err, "failed to delete messages")
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM chats WHERE tenant_id = ? AND chat_id = ?`, tenantID, chatID); err != nil {
		return errors.Wrap(err, "failed to delete chat")
	}
	return errors.Wrap(tx.Commit(), "failed to reset chat")
}

func (s *SQLiteStore) UpdateChat(ctx context.Context, title string, metadata map[string]any) error {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := s.touch(ctx, tx, tenantID, chatID, title, metadata); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to update chat")
}

func (s *SQLiteStore) ListChats(ctx context.Context) ([]string, error) {
	tenantID, _, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id FROM chats WHERE tenant_id = ? ORDER BY chat_id`, tenantID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list chats")
	}
	defer rows.Close()

	var list []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan chat")
		}
		list = append(list, id)
	}
	return list, errors.Wrap(rows.Err(), "failed to list chats")
}

func (s *SQLiteStore) GetChatInfo(ctx context.Context, id string) (*ChatInfo, error) {
	tenantID, chatID, err := chatmodel.GetTenantAndChatID(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		id = chatID
	}

	var meta, created, updated string
	info := &ChatInfo{TenantID: tenantID, ChatID: id}
	err = s.db.QueryRowContext(ctx,
		`SELECT title, metadata, created_at, updated_at FROM chats WHERE tenant_id = ? AND chat_id = ?`,
		tenantID, id).Scan(&info.Title, &meta, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Newf("chat %s not found", id)
		}
		return nil, errors.Wrap(err, "failed to get chat")
	}
	if err = json.Unmarshal([]byte(meta), &info.Metadata); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal metadata")
	}
	info.CreatedAt, _ = time.Parse(timeLayout, created)
	info.UpdatedAt, _ = time.Parse(timeLayout, updated)

	info.Messages, err = s.messages(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (s *SQLiteStore) Cleanup(ctx context.Context, tenantID string, olderThan time.Duration) (uint32, error) {
	cutoff := time.Now().Add(-olderThan).UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM messages WHERE tenant_id = ? AND chat_id IN (
			SELECT chat_id FROM chats WHERE tenant_id = ? AND updated_at < ?
		 )`, tenantID, tenantID, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete messages")
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE tenant_id = ? AND updated_at < ?`, tenantID, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete chats")
	}
	n, _ := res.RowsAffected()
	if err = tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit cleanup")
	}
	return uint32(n), nil
}
