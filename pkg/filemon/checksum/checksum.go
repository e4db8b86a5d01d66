// Package checksum computes the content digests recorded in the manifest.
package checksum

import (
	"bufio"
	"crypto/md5" //nolint:gosec // content fingerprint, not a security boundary
	"encoding/hex"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/jamesainslie/filemon/pkg/filemon/logging"
)

// Engine computes lower-case hex MD5 digests of files. At most one digest
// runs at a time per Engine.
type Engine struct {
	mu       sync.Mutex
	calls    atomic.Int64
	failures atomic.Int64

	// OnDigest, when set, is called after every attempt with its outcome.
	OnDigest func(ok bool)
}

// New returns a ready Engine.
func New() *Engine {
	return &Engine{}
}

// Digest streams the file at path through MD5. On any I/O failure the error
// is logged and ok is false; the caller treats that as "no checksum".
func (e *Engine) Digest(path string) (sum string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls.Add(1)
	sum, err := digestFile(path)
	if err != nil {
		e.failures.Add(1)
		logging.Get("checksum").Error("failed to compute checksum", "path", path, "error", err)
	}
	if e.OnDigest != nil {
		e.OnDigest(err == nil)
	}
	return sum, err == nil
}

// Calls returns the number of digests attempted so far.
func (e *Engine) Calls() int64 {
	return e.calls.Load()
}

// Failures returns the number of digests that failed.
func (e *Engine) Failures() int64 {
	return e.failures.Load()
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the watched tree
	if err != nil {
		return "", err
	}
	defer f.Close() //nolint:errcheck // read-only

	h := md5.New() //nolint:gosec
	if _, err := io.Copy(h, bufio.NewReader(f)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
