// Package history keeps a JSON record of every reconciliation pass that
// changed the manifest.
package history

import "time"

// ChangeType is the kind of change recorded for a path.
type ChangeType string

const (
	// Created marks a file that started being tracked.
	Created ChangeType = "created"
	// Updated marks a file whose checksum changed.
	Updated ChangeType = "updated"
	// Deleted marks a file that disappeared.
	Deleted ChangeType = "deleted"
)

// Record is one persisted pass.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Manifest  string    `json:"manifest"`
	Changes   []Change  `json:"changes"`
	Summary   Summary   `json:"summary"`
}

// Change is one path changed by a pass.
type Change struct {
	Path     string     `json:"path"`
	Type     ChangeType `json:"type"`
	Checksum string     `json:"checksum,omitempty"`
}

// Summary contains pass totals.
type Summary struct {
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Deleted  int           `json:"deleted"`
	Entries  int           `json:"entries"`
	Digests  int           `json:"digests"`
	Duration time.Duration `json:"duration"`
}
