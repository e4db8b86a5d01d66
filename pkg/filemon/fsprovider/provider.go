// Package fsprovider is the filesystem collaborator of the reconciler: it
// lists directory snapshots, answers existence checks, produces the deep
// file listing used for deletion detection and relays change signals.
package fsprovider

import (
	"time"
)

// Kind distinguishes files from directories in a snapshot.
type Kind int

const (
	// File is a regular file.
	File Kind = iota
	// Directory is a directory.
	Directory
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case File:
		return "file"
	case Directory:
		return "directory"
	default:
		return "unknown"
	}
}

// Entry is one item of a directory snapshot.
type Entry struct {
	Name         string
	Kind         Kind
	PhysicalPath string
	// RelativePath is relative to the provider root, "/"-separated.
	RelativePath string
	LastModified time.Time
}

// Provider is what the reconciler needs from the filesystem.
type Provider interface {
	// Snapshot lists the direct children of the directory at rel, sorted by
	// name. rel is relative to the root; "" is the root itself.
	Snapshot(rel string) ([]Entry, error)

	// Exists reports whether rel exists under the root.
	Exists(rel string) bool

	// ListFiles returns every file below the root as relative "/" paths.
	ListFiles() ([]string, error)

	// OnChange registers fn to run on every change signal. The returned
	// function deregisters it.
	OnChange(fn func()) (cancel func())
}
