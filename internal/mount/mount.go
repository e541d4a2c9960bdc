// Package mount rewrites the virtual data mount path used by executed
// code to the real per-session workspace path and back. Executed code
// addresses attached and generated files under a fixed virtual
// directory regardless of where the session workspace actually lives.
package mount

import "strings"

// DataMount is the virtual directory under which executed code
// addresses session files.
const DataMount = "/mnt/data"

// ToWorkspace replaces the virtual mount path with the session's real
// workspace path. Returns text unchanged when sessionPath is empty
// (anonymous execution has no workspace).
func ToWorkspace(text, sessionPath string) string {
	if sessionPath == "" || text == "" {
		return text
	}
	return strings.ReplaceAll(text, DataMount, sessionPath)
}

// ToVirtual is the inverse of ToWorkspace, applied to output text
// before it is surfaced to the caller.
func ToVirtual(text, sessionPath string) string {
	if sessionPath == "" || text == "" {
		return text
	}
	return strings.ReplaceAll(text, sessionPath, DataMount)
}
