// Package workspace tracks files created in a session workspace during
// code execution by diffing before/after directory snapshots.
package workspace

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/codefionn/kernelrunner/internal/logger"
)

// DefaultTrackedExtensions are the output formats detected by default.
var DefaultTrackedExtensions = []string{".xlsx", ".xls", ".csv", ".pdf"}

// GeneratedFile describes a file that appeared in the workspace during
// execution. Derived from filesystem stat data only; recomputed each
// run, never persisted.
type GeneratedFile struct {
	Name        string
	Path        string // relative to the workspace root
	FullPath    string
	Size        int64
	Format      string // lowercase extension, with dot
	GeneratedAt int64  // mtime, unix seconds
}

// Snapshot is a point-in-time set of tracked relative file paths.
type Snapshot map[string]struct{}

// Tracker snapshots a workspace root before and after execution and
// reports the set difference.
type Tracker struct {
	root       string
	extensions map[string]struct{}
	pre        Snapshot
	post       Snapshot
	log        *logger.Logger
}

// NewTracker creates a tracker for the given workspace root. An empty
// extensions list falls back to DefaultTrackedExtensions.
func NewTracker(root string, extensions []string) *Tracker {
	if len(extensions) == 0 {
		extensions = DefaultTrackedExtensions
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}
	return &Tracker{
		root:       root,
		extensions: exts,
		log:        logger.Global().WithPrefix("workspace"),
	}
}

// Scan walks the workspace root and returns the set of relative paths
// whose lowercase extension is tracked. A missing root yields an empty
// snapshot; walk errors are logged and treated as "no files found".
func (t *Tracker) Scan() Snapshot {
	snap := make(Snapshot)

	if _, err := os.Stat(t.root); err != nil {
		t.log.Debug("workspace %s not present, empty snapshot", t.root)
		return snap
	}

	err := filepath.WalkDir(t.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			t.log.Warn("skipping %s during scan: %v", path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if _, ok := t.extensions[strings.ToLower(filepath.Ext(path))]; !ok {
			return nil
		}
		rel, relErr := filepath.Rel(t.root, path)
		if relErr != nil {
			return nil
		}
		snap[rel] = struct{}{}
		return nil
	})
	if err != nil {
		t.log.Error("workspace scan of %s failed: %v", t.root, err)
	}

	t.log.Debug("scanned %s, %d tracked files", t.root, len(snap))
	return snap
}

// CapturePre records the pre-execution snapshot.
func (t *Tracker) CapturePre() {
	t.pre = t.Scan()
	t.log.Info("pre-execution snapshot: %d files in %s", len(t.pre), t.root)
}

// CapturePost records the post-execution snapshot.
func (t *Tracker) CapturePost() {
	t.post = t.Scan()
	t.log.Info("post-execution snapshot: %d files in %s", len(t.post), t.root)
}

// Diff returns post − pre as a sorted slice. Files deleted or merely
// modified during execution never appear.
func Diff(pre, post Snapshot) []string {
	var created []string
	for rel := range post {
		if _, ok := pre[rel]; !ok {
			created = append(created, rel)
		}
	}
	sort.Strings(created)
	return created
}

// NewFiles stats every path in the post−pre difference and returns a
// descriptor per surviving file. A file that vanished between snapshot
// and stat is skipped; that is a missed detection, not an error.
func (t *Tracker) NewFiles() []GeneratedFile {
	created := Diff(t.pre, t.post)

	var generated []GeneratedFile
	for _, rel := range created {
		full := filepath.Join(t.root, rel)
		info, err := os.Stat(full)
		if err != nil {
			t.log.Warn("generated file %s no longer exists: %v", full, err)
			continue
		}
		generated = append(generated, GeneratedFile{
			Name:        info.Name(),
			Path:        rel,
			FullPath:    full,
			Size:        info.Size(),
			Format:      strings.ToLower(filepath.Ext(rel)),
			GeneratedAt: info.ModTime().Unix(),
		})
	}

	t.log.Info("diff found %d new files in %s", len(generated), t.root)
	return generated
}
