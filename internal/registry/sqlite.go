package registry

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

// SQLiteRegistry stores file metadata in a SQLite database.
type SQLiteRegistry struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) a registry database at
// dbPath.
func OpenSQLite(dbPath string) (*SQLiteRegistry, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	reg := &SQLiteRegistry{db: db}
	if err := reg.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return reg, nil
}

func (r *SQLiteRegistry) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS files (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		path TEXT NOT NULL,
		data TEXT,
		meta TEXT,
		access_control TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_files_user ON files(user_id);`
	_, err := r.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (r *SQLiteRegistry) Close() error {
	return r.db.Close()
}

// Insert stores a new file entry owned by ownerID.
func (r *SQLiteRegistry) Insert(ctx context.Context, ownerID string, entry *Entry) (*Record, error) {
	if entry == nil || entry.ID == "" {
		return nil, fmt.Errorf("registry entry requires an id")
	}

	data, err := json.Marshal(entry.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry data: %w", err)
	}
	meta, err := json.Marshal(entry.Meta)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry meta: %w", err)
	}
	access, err := json.Marshal(entry.AccessControl)
	if err != nil {
		return nil, fmt.Errorf("failed to encode access control: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO files (id, user_id, filename, path, data, meta, access_control, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, ownerID, entry.Filename, entry.Path,
		string(data), string(meta), string(access), now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert file %s: %w", entry.ID, err)
	}

	return &Record{
		ID:        entry.ID,
		UserID:    ownerID,
		Filename:  entry.Filename,
		Path:      entry.Path,
		Meta:      entry.Meta,
		CreatedAt: now,
	}, nil
}

// LookupByID returns the record with the given ID, or (nil, nil) when
// absent.
func (r *SQLiteRegistry) LookupByID(ctx context.Context, id string) (*Record, error) {
	var rec Record
	var meta sql.NullString
	err := r.db.QueryRowContext(ctx,
		"SELECT id, user_id, filename, path, meta, created_at FROM files WHERE id = ?", id,
	).Scan(&rec.ID, &rec.UserID, &rec.Filename, &rec.Path, &meta, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load file %s: %w", id, err)
	}

	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &rec.Meta); err != nil {
			return nil, fmt.Errorf("failed to decode meta for file %s: %w", id, err)
		}
	}
	return &rec, nil
}
