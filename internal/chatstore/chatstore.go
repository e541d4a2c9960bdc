// Package chatstore provides read access to chat histories and to the
// file attachments referenced by their messages.
package chatstore

import (
	"context"
	"sort"

	"github.com/codefionn/kernelrunner/internal/logger"
)

// FileRef is a file attachment recorded on a chat message.
type FileRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Size int64  `json:"size,omitempty"`
	URL  string `json:"url,omitempty"`
}

// Message is a single chat message. Only the attachment list matters
// here; the text content is opaque to this package.
type Message struct {
	Files []FileRef `json:"files,omitempty"`
}

// History holds a chat's messages keyed by message ID.
type History struct {
	Messages map[string]Message `json:"messages"`
}

// Chat is a stored chat record.
type Chat struct {
	ID      string  `json:"id"`
	UserID  string  `json:"user_id,omitempty"`
	History History `json:"history"`
}

// Store reads chats by ID. Get returns (nil, nil) when the chat does
// not exist.
type Store interface {
	Get(ctx context.Context, chatID string) (*Chat, error)
}

// AttachedFile is a file reference discovered in a chat's history.
type AttachedFile struct {
	ID        string
	Name      string
	Type      string
	Size      int64
	URL       string
	MessageID string
}

// AttachedFiles scans every message of a chat for file attachments
// bearing a non-empty ID. Messages without files and file entries
// lacking an ID are skipped silently. Results are ordered by message
// ID for determinism.
func AttachedFiles(chat *Chat) []AttachedFile {
	if chat == nil {
		return nil
	}

	messageIDs := make([]string, 0, len(chat.History.Messages))
	for id := range chat.History.Messages {
		messageIDs = append(messageIDs, id)
	}
	sort.Strings(messageIDs)

	var attached []AttachedFile
	for _, messageID := range messageIDs {
		for _, ref := range chat.History.Messages[messageID].Files {
			if ref.ID == "" {
				continue
			}
			name := ref.Name
			if name == "" {
				name = "unknown_file"
			}
			attached = append(attached, AttachedFile{
				ID:        ref.ID,
				Name:      name,
				Type:      ref.Type,
				Size:      ref.Size,
				URL:       ref.URL,
				MessageID: messageID,
			})
		}
	}

	logger.Debug("found %d attached files in chat %s", len(attached), chat.ID)
	return attached
}
