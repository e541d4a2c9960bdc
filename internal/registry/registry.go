// Package registry persists metadata for files so they can be
// retrieved later, and registers files generated by code execution.
package registry

import (
	"context"
	"time"
)

// Entry is the payload submitted when registering a file.
type Entry struct {
	ID            string         `json:"id"`
	Filename      string         `json:"filename"`
	Path          string         `json:"path"`
	Data          map[string]any `json:"data"`
	Meta          map[string]any `json:"meta"`
	AccessControl map[string]any `json:"access_control"`
}

// Record is a stored registry row.
type Record struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Filename  string         `json:"filename"`
	Path      string         `json:"path"`
	Meta      map[string]any `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Registry is the persistent file metadata store.
type Registry interface {
	// Insert stores a new entry owned by ownerID. A nil record with a
	// nil error means the registry declined the entry.
	Insert(ctx context.Context, ownerID string, entry *Entry) (*Record, error)
	// LookupByID returns the record with the given ID, or (nil, nil)
	// when absent.
	LookupByID(ctx context.Context, id string) (*Record, error)
}
