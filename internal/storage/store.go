// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence for sagechat.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/sagechat-tui/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// StoreError represents a storage operation failure.
type StoreError struct {
	Message string
	Cause   error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}

func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	return ok && t.Message == e.Message
}

// ErrConversationNotFound is returned when a conversation ID doesn't exist.
var ErrConversationNotFound = &StoreError{Message: "conversation not found"}

// =============================================================================
// CONVERSATION STORE
// =============================================================================

// DefaultMaxConversations caps stored conversations; oldest are pruned.
const DefaultMaxConversations = 200

// ConversationStore persists conversations to a local SQLite database.
//
// The store is safe for use from a single process; SQLite supports one
// writer at a time and the connection pool is sized accordingly.
type ConversationStore struct {
	db *sql.DB

	// MaxConversations is the retention cap enforced on Save (0 = unlimited).
	MaxConversations int
}

// DefaultDBPath returns the default database location (~/.sagechat/conversations.db).
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return filepath.Join(home, ".sagechat", "conversations.db"), nil
}

// NewConversationStore opens the store at the default location.
func NewConversationStore() (*ConversationStore, error) {
	path, err := DefaultDBPath()
	if err != nil {
		return nil, err
	}
	return NewConversationStoreAtPath(path)
}

// NewConversationStoreAtPath opens (creating if needed) a store at the
// given database path.
func NewConversationStoreAtPath(path string) (*ConversationStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &ConversationStore{
		db:               db,
		MaxConversations: DefaultMaxConversations,
	}, nil
}

// Close releases the database handle.
func (s *ConversationStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// SAVE
// =============================================================================

// Save persists a conversation and its full transcript, replacing any
// previous version. Empty conversations are skipped.
func (s *ConversationStore) Save(conv *model.Conversation) error {
	if conv == nil || conv.IsEmpty() {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return &StoreError{Message: "failed to begin transaction", Cause: err}
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO conversations (id, session_id, title, agent_name, tokens_used, preview, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			title = excluded.title,
			agent_name = excluded.agent_name,
			tokens_used = excluded.tokens_used,
			preview = excluded.preview,
			updated_at = excluded.updated_at
	`, conv.ID, conv.SessionID, conv.GetTitle(), conv.AgentName, conv.EstimateTokens(),
		conv.Preview(), conv.CreatedAt.Unix(), time.Now().Unix())
	if err != nil {
		return &StoreError{Message: "failed to save conversation", Cause: err}
	}

	// Replace the transcript wholesale; message rows are small and
	// per-row diffing is not worth the bookkeeping.
	if _, err := tx.Exec("DELETE FROM messages WHERE conversation_id = ?", conv.ID); err != nil {
		return &StoreError{Message: "failed to clear transcript", Cause: err}
	}

	stmt, err := tx.Prepare(`
		INSERT INTO messages (conversation_id, position, message_id, role, type, content,
			show_content, tool_calls, tool_call_id, agent_name, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return &StoreError{Message: "failed to prepare insert", Cause: err}
	}
	defer stmt.Close()

	for i, msg := range conv.Messages {
		toolCalls, metadata, err := encodeBlobs(msg)
		if err != nil {
			return &StoreError{Message: "failed to encode message " + msg.ID, Cause: err}
		}
		_, err = stmt.Exec(conv.ID, i, msg.ID, string(msg.Role), msg.Type, msg.Content,
			msg.ShowContent, toolCalls, msg.ToolCallID, msg.AgentName, metadata, msg.Timestamp.Unix())
		if err != nil {
			return &StoreError{Message: "failed to save message " + msg.ID, Cause: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &StoreError{Message: "failed to commit", Cause: err}
	}

	s.enforceLimit()
	return nil
}

// encodeBlobs marshals the JSON-valued message columns.
func encodeBlobs(msg *model.Message) (toolCalls, metadata string, err error) {
	if len(msg.ToolCalls) > 0 {
		b, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return "", "", err
		}
		toolCalls = string(b)
	}
	if len(msg.Metadata) > 0 {
		b, err := json.Marshal(msg.Metadata)
		if err != nil {
			return "", "", err
		}
		metadata = string(b)
	}
	return toolCalls, metadata, nil
}

// enforceLimit prunes the oldest conversations beyond MaxConversations.
func (s *ConversationStore) enforceLimit() {
	if s.MaxConversations <= 0 {
		return
	}
	// Best effort: pruning failures never fail a save.
	s.db.Exec(`
		DELETE FROM conversations WHERE id IN (
			SELECT id FROM conversations
			ORDER BY updated_at DESC
			LIMIT -1 OFFSET ?
		)
	`, s.MaxConversations)
}

// =============================================================================
// LOAD
// =============================================================================

// Load retrieves a conversation with its full transcript.
func (s *ConversationStore) Load(id string) (*model.Conversation, error) {
	conv := &model.Conversation{}
	var createdAt, updatedAt int64

	err := s.db.QueryRow(`
		SELECT id, session_id, title, agent_name, tokens_used, created_at, updated_at
		FROM conversations WHERE id = ?
	`, id).Scan(&conv.ID, &conv.SessionID, &conv.Title, &conv.AgentName,
		&conv.TokensUsed, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, &StoreError{Message: "failed to load conversation", Cause: err}
	}
	conv.CreatedAt = time.Unix(createdAt, 0)
	conv.UpdatedAt = time.Unix(updatedAt, 0)

	rows, err := s.db.Query(`
		SELECT message_id, role, type, content, show_content, tool_calls,
			tool_call_id, agent_name, metadata, timestamp
		FROM messages WHERE conversation_id = ?
		ORDER BY position
	`, id)
	if err != nil {
		return nil, &StoreError{Message: "failed to load transcript", Cause: err}
	}
	defer rows.Close()

	for rows.Next() {
		msg := &model.Message{}
		var role, toolCalls, metadata string
		var ts int64
		err := rows.Scan(&msg.ID, &role, &msg.Type, &msg.Content, &msg.ShowContent,
			&toolCalls, &msg.ToolCallID, &msg.AgentName, &metadata, &ts)
		if err != nil {
			return nil, &StoreError{Message: "failed to scan message", Cause: err}
		}
		msg.Role = model.Role(role)
		msg.Timestamp = time.Unix(ts, 0)
		if toolCalls != "" {
			if err := json.Unmarshal([]byte(toolCalls), &msg.ToolCalls); err != nil {
				return nil, &StoreError{Message: "corrupt tool_calls for " + msg.ID, Cause: err}
			}
		}
		if metadata != "" {
			if err := json.Unmarshal([]byte(metadata), &msg.Metadata); err != nil {
				return nil, &StoreError{Message: "corrupt metadata for " + msg.ID, Cause: err}
			}
		}
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Message: "failed to read transcript", Cause: err}
	}

	return conv, nil
}

// =============================================================================
// LIST AND SEARCH
// =============================================================================

// List returns metadata for all conversations, most recent first.
func (s *ConversationStore) List() ([]model.ConversationMeta, error) {
	return s.listWhere("", nil)
}

// Search returns conversations whose title, preview, or transcript
// matches the query (case-insensitive substring).
func (s *ConversationStore) Search(query string) ([]model.ConversationMeta, error) {
	pattern := "%" + query + "%"
	where := `WHERE c.title LIKE ? COLLATE NOCASE
		OR c.preview LIKE ? COLLATE NOCASE
		OR EXISTS (
			SELECT 1 FROM messages m
			WHERE m.conversation_id = c.id AND m.content LIKE ? COLLATE NOCASE
		)`
	return s.listWhere(where, []any{pattern, pattern, pattern})
}

func (s *ConversationStore) listWhere(where string, args []any) ([]model.ConversationMeta, error) {
	rows, err := s.db.Query(`
		SELECT c.id, c.session_id, c.title, c.agent_name, c.preview, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id)
		FROM conversations c
		`+where+`
		ORDER BY c.updated_at DESC
	`, args...)
	if err != nil {
		return nil, &StoreError{Message: "failed to list conversations", Cause: err}
	}
	defer rows.Close()

	var metas []model.ConversationMeta
	for rows.Next() {
		var meta model.ConversationMeta
		var createdAt, updatedAt int64
		err := rows.Scan(&meta.ID, &meta.SessionID, &meta.Title, &meta.AgentName,
			&meta.Preview, &createdAt, &updatedAt, &meta.MessageCount)
		if err != nil {
			return nil, &StoreError{Message: "failed to scan conversation row", Cause: err}
		}
		meta.CreatedAt = time.Unix(createdAt, 0)
		meta.UpdatedAt = time.Unix(updatedAt, 0)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// =============================================================================
// DELETE
// =============================================================================

// Delete removes a conversation and its transcript.
func (s *ConversationStore) Delete(id string) error {
	res, err := s.db.Exec("DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return &StoreError{Message: "failed to delete conversation", Cause: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// Clear removes all stored conversations.
func (s *ConversationStore) Clear() error {
	if _, err := s.db.Exec("DELETE FROM conversations"); err != nil {
		return &StoreError{Message: "failed to clear store", Cause: err}
	}
	return nil
}
