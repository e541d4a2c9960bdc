package chatstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists chats as JSON blobs in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) a chat database at dbPath.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		chat TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the chat with the given ID, or (nil, nil) when absent.
func (s *SQLiteStore) Get(ctx context.Context, chatID string) (*Chat, error) {
	var userID, blob string
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id, chat FROM chats WHERE id = ?", chatID,
	).Scan(&userID, &blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat %s: %w", chatID, err)
	}

	chat := &Chat{ID: chatID, UserID: userID}
	if err := json.Unmarshal([]byte(blob), chat); err != nil {
		return nil, fmt.Errorf("failed to decode chat %s: %w", chatID, err)
	}
	chat.ID = chatID
	return chat, nil
}

// Put inserts or replaces a chat record.
func (s *SQLiteStore) Put(ctx context.Context, chat *Chat) error {
	blob, err := json.Marshal(chat)
	if err != nil {
		return fmt.Errorf("failed to encode chat %s: %w", chat.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO chats (id, user_id, chat, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id,
			chat = excluded.chat, updated_at = excluded.updated_at`,
		chat.ID, chat.UserID, string(blob), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to store chat %s: %w", chat.ID, err)
	}
	return nil
}
