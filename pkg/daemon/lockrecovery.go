package daemon

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/jamesainslie/filemon/pkg/filemon/logging"
)

// RecoverFromStaleDaemon checks for and cleans up stale daemon artifacts.
// Returns nil if cleanup succeeded or wasn't needed.
// Returns ErrDaemonAlreadyRunning if a daemon is actually running.
//
// statePath is the state store directory; its badger LOCK file is removed
// when the owning process is gone. An empty statePath skips it.
func RecoverFromStaleDaemon(pidPath, statePath string) error {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		return nil //nolint:nilerr // missing or invalid pid file means nothing to recover
	}

	if pid == os.Getpid() {
		return nil
	}
	if IsProcessRunning(pid) {
		return ErrDaemonAlreadyRunning
	}

	logging.Get("daemon").Warn("cleaning up stale daemon files", "stale_pid", pid)

	_ = os.Remove(pidPath)
	_ = os.Remove(StatusPath(filepath.Dir(pidPath)))
	if statePath != "" {
		_ = os.Remove(filepath.Join(statePath, "LOCK"))
	}
	return nil
}

// IsProcessRunning checks if a process with the given PID is running.
func IsProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
