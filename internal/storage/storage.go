// Package storage resolves logical file paths recorded in the registry
// to physical filesystem paths.
package storage

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Provider maps a registry-recorded logical path to a real path on the
// local filesystem.
type Provider interface {
	Resolve(logicalPath string) (string, error)
}

// Local serves files stored directly on the local filesystem, rooted
// at the upload directory. Absolute paths pass through unchanged.
type Local struct {
	Root string
}

// NewLocal creates a local provider rooted at root.
func NewLocal(root string) *Local {
	return &Local{Root: root}
}

// Resolve returns the physical path for logicalPath.
func (l *Local) Resolve(logicalPath string) (string, error) {
	if strings.TrimSpace(logicalPath) == "" {
		return "", fmt.Errorf("empty logical path")
	}
	if filepath.IsAbs(logicalPath) {
		return logicalPath, nil
	}
	return filepath.Join(l.Root, logicalPath), nil
}
