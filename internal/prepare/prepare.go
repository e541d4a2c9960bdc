// Package prepare materializes a chat's attached files into the
// session workspace before code execution.
package prepare

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/codefionn/kernelrunner/internal/chatstore"
	"github.com/codefionn/kernelrunner/internal/logger"
	"github.com/codefionn/kernelrunner/internal/registry"
	"github.com/codefionn/kernelrunner/internal/storage"
)

// MethodCopy is the only preparation method in use. Symlinks break
// under Docker bind volumes, so files are always copied.
const MethodCopy = "copy"

// OutcomeKind discriminates per-file preparation outcomes.
type OutcomeKind int

const (
	// OutcomePrepared means the file was copied into the workspace.
	OutcomePrepared OutcomeKind = iota
	// OutcomeSkipped means the file was intentionally not processed.
	OutcomeSkipped
	// OutcomeErrored means preparation of the file failed.
	OutcomeErrored
)

// Outcome records what happened to one attached file, in discovery
// order.
type Outcome struct {
	Kind   OutcomeKind
	FileID string
	Name   string
	Reason string // skip reason or error text
}

// PreparedFile describes a file copied into the session workspace.
type PreparedFile struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TargetPath string `json:"target_path"`
	SourcePath string `json:"source_path"`
	Size       int64  `json:"size"`
	Method     string `json:"method"`
}

// SkippedFile describes a file that was deliberately not prepared.
type SkippedFile struct {
	Name   string `json:"name"`
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Report summarizes a preparation run. Success is true when at least
// one file was prepared or no errors occurred.
type Report struct {
	ChatID     string         `json:"chat_id"`
	TotalFiles int            `json:"total_files"`
	Prepared   []PreparedFile `json:"prepared_files"`
	Skipped    []SkippedFile  `json:"skipped_files"`
	Errors     []string       `json:"errors"`
	Success    bool           `json:"success"`
	Method     string         `json:"method,omitempty"`
	Outcomes   []Outcome      `json:"-"`
}

// Stage copies chat attachments into per-session workspaces.
type Stage struct {
	chats   chatstore.Store
	files   registry.Registry
	blobs   storage.Provider
	dataDir string
	log     *logger.Logger
}

// NewStage creates a preparation stage rooted at dataDir.
func NewStage(chats chatstore.Store, files registry.Registry, blobs storage.Provider, dataDir string) *Stage {
	return &Stage{
		chats:   chats,
		files:   files,
		blobs:   blobs,
		dataDir: dataDir,
		log:     logger.Global().WithPrefix("prepare"),
	}
}

// WorkDir returns the session workspace directory for a chat.
func (s *Stage) WorkDir(chatID string) string {
	return filepath.Join(s.dataDir, "uploads", chatID)
}

// Prepare stages every file attached to the chat into the session
// workspace. It never returns an error: any failure, including a
// panic, is converted into a failure report.
func (s *Stage) Prepare(ctx context.Context, chatID string) (report *Report) {
	report = &Report{
		ChatID:   chatID,
		Prepared: []PreparedFile{},
		Skipped:  []SkippedFile{},
		Errors:   []string{},
	}

	log := s.log.With("chat", chatID)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("preparation panicked: %v", rec)
			report.Errors = append(report.Errors, fmt.Sprintf("failed to prepare files for chat %s: %v", chatID, rec))
			report.Success = false
		}
	}()

	attached, err := s.attachedFiles(ctx, chatID)
	if err != nil {
		report.Errors = append(report.Errors, err.Error())
		report.Success = false
		return report
	}

	report.TotalFiles = len(attached)
	if len(attached) == 0 {
		log.Info("no files attached to chat")
		report.Success = true
		return report
	}

	workDir := s.WorkDir(chatID)
	if err := os.MkdirAll(workDir, 0755); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("failed to create workspace %s: %v", workDir, err))
		report.Success = false
		return report
	}
	report.Method = MethodCopy

	processed := make(map[string]struct{})
	for _, file := range attached {
		if _, dup := processed[file.ID]; dup {
			log.Debug("skipping duplicate file %s (ID: %s)", file.Name, file.ID)
			report.Skipped = append(report.Skipped, SkippedFile{Name: file.Name, ID: file.ID, Reason: "duplicate"})
			report.Outcomes = append(report.Outcomes, Outcome{Kind: OutcomeSkipped, FileID: file.ID, Name: file.Name, Reason: "duplicate"})
			continue
		}

		prepared, err := s.prepareOne(ctx, workDir, file)
		if err != nil {
			log.Error("error preparing file %s: %v", file.Name, err)
			report.Errors = append(report.Errors, err.Error())
			report.Outcomes = append(report.Outcomes, Outcome{Kind: OutcomeErrored, FileID: file.ID, Name: file.Name, Reason: err.Error()})
			continue
		}

		report.Prepared = append(report.Prepared, *prepared)
		report.Outcomes = append(report.Outcomes, Outcome{Kind: OutcomePrepared, FileID: file.ID, Name: file.Name})
		processed[file.ID] = struct{}{}
	}

	report.Success = len(report.Prepared) > 0 || len(report.Errors) == 0
	log.Info("preparation finished: %d prepared, %d skipped, %d errors",
		len(report.Prepared), len(report.Skipped), len(report.Errors))
	return report
}

func (s *Stage) attachedFiles(ctx context.Context, chatID string) ([]chatstore.AttachedFile, error) {
	chat, err := s.chats.Get(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat %s: %w", chatID, err)
	}
	if chat == nil {
		s.log.Warn("chat %s not found", chatID)
		return nil, nil
	}
	return chatstore.AttachedFiles(chat), nil
}

func (s *Stage) prepareOne(ctx context.Context, workDir string, file chatstore.AttachedFile) (*PreparedFile, error) {
	record, err := s.files.LookupByID(ctx, file.ID)
	if err != nil {
		return nil, fmt.Errorf("file record lookup failed: %s (ID: %s): %w", file.Name, file.ID, err)
	}
	if record == nil {
		return nil, fmt.Errorf("file record not found: %s (ID: %s)", file.Name, file.ID)
	}
	if record.Path == "" {
		return nil, fmt.Errorf("file path not found: %s (ID: %s)", file.Name, file.ID)
	}

	sourcePath, err := s.blobs.Resolve(record.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage path for %s: %w", file.Name, err)
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("source file not found: %s", file.Name)
	}

	targetPath := filepath.Join(workDir, file.Name)

	// A stale file or symlink may already sit at the target from a
	// previous run; remove it before copying.
	if _, err := os.Lstat(targetPath); err == nil {
		if err := os.Remove(targetPath); err != nil {
			return nil, fmt.Errorf("failed to replace existing %s: %w", targetPath, err)
		}
	}

	if err := copyFile(sourcePath, targetPath); err != nil {
		return nil, fmt.Errorf("failed to copy %s: %w", file.Name, err)
	}
	s.log.Info("copied file: %s -> %s", sourcePath, targetPath)

	return &PreparedFile{
		ID:         file.ID,
		Name:       file.Name,
		TargetPath: targetPath,
		SourcePath: sourcePath,
		Size:       info.Size(),
		Method:     MethodCopy,
	}, nil
}

// copyFile copies src to dst, preserving mode and mtime.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
