package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jamesainslie/filemon/pkg/filemon/reconcile"
)

// Daemon states written to the status file.
const (
	StateReady = "ready"
	StateError = "error"
)

// StatusFile is the snapshot filemond writes after startup and after every
// pass.
type StatusFile struct {
	Status   string    `json:"status"`
	PID      int       `json:"pid,omitempty"`
	Error    string    `json:"error,omitempty"`
	Started  time.Time `json:"started"`
	Root     string    `json:"root,omitempty"`
	Manifest string    `json:"manifest,omitempty"`

	Tracked      int       `json:"tracked"`
	PendingWrite bool      `json:"pending_write"`
	LastPass     time.Time `json:"last_pass"`
	LastCreated  int       `json:"last_created"`
	LastUpdated  int       `json:"last_updated"`
	LastDeleted  int       `json:"last_deleted"`
	Passes       int       `json:"passes"`
}

// Observe copies the outcome of a pass into the status.
func (s *StatusFile) Observe(report reconcile.Report, tracked int, pending bool) {
	s.Passes++
	s.Tracked = tracked
	s.PendingWrite = pending
	s.LastPass = report.Started
	s.LastCreated = len(report.Created)
	s.LastUpdated = len(report.Updated)
	s.LastDeleted = len(report.Deleted)
}

// NewStatusReady returns a ready status for this process.
func NewStatusReady(root, manifest string) *StatusFile {
	return &StatusFile{
		Status:   StateReady,
		PID:      os.Getpid(),
		Started:  time.Now(),
		Root:     root,
		Manifest: manifest,
	}
}

// WriteStatusError writes an error status file.
func WriteStatusError(path string, err error) error {
	return WriteStatus(path, &StatusFile{
		Status:  StateError,
		Error:   err.Error(),
		Started: time.Now(),
	})
}

// WriteStatus writes status atomically.
func WriteStatus(path string, status *StatusFile) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write status: %w", err)
	}
	return nil
}

// ReadStatus reads a status file.
func ReadStatus(path string) (*StatusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status StatusFile
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("invalid status file %s: %w", path, err)
	}
	return &status, nil
}

// RemoveStatus removes the status file.
func RemoveStatus(path string) error {
	return os.Remove(path)
}

// StatusPath returns the status file path for a data directory.
func StatusPath(dataDir string) string {
	return filepath.Join(dataDir, "filemond.status")
}
