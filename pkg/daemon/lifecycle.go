// Package daemon holds the process plumbing of filemond: the pid file,
// stale-instance recovery and the status file read by `filemon daemon status`.
package daemon

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrDaemonAlreadyRunning is returned when trying to start a daemon that's already running.
var ErrDaemonAlreadyRunning = errors.New("daemon already running")

// WritePIDFile writes the current process ID to a file.
func WritePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create pid directory: %w", err)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

// ReadPIDFile reads a PID from a file.
func ReadPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid pid file %s: %w", path, err)
	}
	return pid, nil
}

// IsDaemonRunning checks if a daemon is running based on PID file.
func IsDaemonRunning(pidPath string) bool {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		return false
	}
	return IsProcessRunning(pid)
}

// Acquire claims the pid file for this process. Leftovers of a crashed
// daemon are cleaned up first; a live one yields ErrDaemonAlreadyRunning.
// The returned release removes the pid file.
func Acquire(pidPath, statePath string) (release func(), err error) {
	if err := RecoverFromStaleDaemon(pidPath, statePath); err != nil {
		return nil, err
	}
	if err := WritePIDFile(pidPath); err != nil {
		return nil, err
	}
	return func() { _ = os.Remove(pidPath) }, nil
}
