// Package domain contains the core types for resolving and loading blob files.
package domain

import (
	"path/filepath"
	"strings"
)

// LogicalPath identifies a set of remote objects as
// account/container/pattern.
type LogicalPath struct {
	Account   string
	Container string
	Pattern   string // may be empty; never has a leading slash
}

// String returns the path in account/container/pattern form.
func (p LogicalPath) String() string {
	if p.Pattern == "" {
		return p.Account + "/" + p.Container
	}
	return p.Account + "/" + p.Container + "/" + p.Pattern
}

// UnpackPath splits a logical path into account, container and object pattern.
func UnpackPath(s string) (LogicalPath, error) {
	trimmed := strings.TrimPrefix(s, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return LogicalPath{}, &PathError{Path: s, Reason: "expected account/container[/pattern]"}
	}
	if parts[0] == "" {
		return LogicalPath{}, &PathError{Path: s, Reason: "empty storage account"}
	}
	if parts[1] == "" {
		return LogicalPath{}, &PathError{Path: s, Reason: "empty container"}
	}

	return LogicalPath{
		Account:   parts[0],
		Container: parts[1],
		Pattern:   strings.TrimPrefix(strings.Join(parts[2:], "/"), "/"),
	}, nil
}

// FileRef identifies one concrete remote object.
type FileRef struct {
	Container string
	Name      string
}

// String returns container/name.
func (r FileRef) String() string {
	return r.Container + "/" + r.Name
}

// Validate rejects references whose container or name would leave the
// download root when mirrored locally.
func (r FileRef) Validate() error {
	if r.Container == "" || r.Container == "." || r.Container == ".." || strings.ContainsAny(r.Container, "/\\") {
		return &PathError{Path: r.String(), Reason: "invalid container"}
	}
	for _, seg := range strings.Split(r.Name, "/") {
		if seg == ".." {
			return &PathError{Path: r.String(), Reason: "object name escapes the download root"}
		}
	}
	return nil
}

// LocalPath returns the download location of the object under root,
// mirroring the remote container/object hierarchy.
func (r FileRef) LocalPath(root string) string {
	return filepath.Join(root, r.Container, filepath.FromSlash(r.Name))
}
