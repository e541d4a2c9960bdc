package registry

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/codefionn/kernelrunner/internal/logger"
	"github.com/codefionn/kernelrunner/internal/workspace"
	"github.com/google/uuid"
)

// GeneratedBy tags registry entries produced by code execution.
const GeneratedBy = "code_interpreter"

// FileURL returns the retrieval URL for a registered file.
func FileURL(id string) string {
	return fmt.Sprintf("/api/v1/files/%s/content", id)
}

// Registrar turns generated-file descriptors into registry entries.
type Registrar struct {
	registry Registry
	chatID   string
	userID   string
	log      *logger.Logger
}

// NewRegistrar creates a registrar registering files on behalf of
// userID, linked to chatID.
func NewRegistrar(reg Registry, chatID, userID string) *Registrar {
	return &Registrar{
		registry: reg,
		chatID:   chatID,
		userID:   userID,
		log:      logger.Global().WithPrefix("registrar").With("chat", chatID),
	}
}

// Register submits one registry entry per descriptor and returns the
// assigned IDs, positionally aligned with the input. A failed
// registration yields an empty string at its position and never aborts
// the remaining files.
func (r *Registrar) Register(ctx context.Context, files []workspace.GeneratedFile) []string {
	if len(files) == 0 {
		return []string{}
	}

	ids := make([]string, 0, len(files))
	for _, file := range files {
		id, err := r.registerOne(ctx, file)
		if err != nil {
			r.log.Error("failed to register %s: %v", file.Name, err)
			ids = append(ids, "")
			continue
		}
		r.log.Info("registered %s as %s (%d bytes)", file.Name, id, file.Size)
		ids = append(ids, id)
	}

	registered := 0
	for _, id := range ids {
		if id != "" {
			registered++
		}
	}
	r.log.Info("registration complete: %d/%d files registered", registered, len(files))
	return ids
}

func (r *Registrar) registerOne(ctx context.Context, file workspace.GeneratedFile) (string, error) {
	id := uuid.New().String()

	meta := map[string]any{
		"name":         file.Name,
		"content_type": ContentType(file.Format),
		"size":         file.Size,
		"chat_id":      r.chatID,
		"generated_by": GeneratedBy,
		"generated_at": file.GeneratedAt,
		"format":       file.Format,
	}
	if digest, err := fileDigest(file.FullPath); err == nil {
		meta["digest"] = digest
	} else {
		r.log.Warn("could not digest %s: %v", file.FullPath, err)
	}

	entry := &Entry{
		ID:       id,
		Filename: file.Name,
		Path:     file.FullPath,
		Data:     map[string]any{},
		Meta:     meta,
	}

	record, err := r.registry.Insert(ctx, r.userID, entry)
	if err != nil {
		return "", err
	}
	if record == nil {
		return "", fmt.Errorf("registry declined entry for %s", file.Name)
	}

	r.recordChatLink(id, file)
	return id, nil
}

// recordChatLink notes the chat a generated file belongs to. Purely
// best-effort; failures are logged and never propagated.
func (r *Registrar) recordChatLink(fileID string, file workspace.GeneratedFile) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("chat link for file %s failed: %v", fileID, rec)
		}
	}()
	r.log.Debug("linked file %s (%s) to chat", fileID, file.Name)
}

// fileDigest computes the xxhash-64 digest of a file's contents.
func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}
