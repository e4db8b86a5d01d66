// Package watcher turns filesystem activity under the watched folder into
// debounced "rescan" signals. It uses fsnotify, or a polling loop when
// native notifications are unavailable or unwanted.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/filemon/pkg/filemon/logging"
)

// Options configures a signal source.
type Options struct {
	// Debounce is the quiet period before a batch of events is signalled.
	Debounce time.Duration

	// PollInterval is the polling period, also used to wait for a missing root.
	PollInterval time.Duration

	// UsePolling selects the polling source instead of fsnotify.
	UsePolling bool

	// Ignore, when set, drops events for paths it returns true for.
	Ignore func(path string) bool
}

// Source produces change signals until its context is cancelled.
type Source interface {
	Run(ctx context.Context, onChange func(paths []string)) error
}

// New returns the source selected by opts.
func New(root string, opts Options) (Source, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.UsePolling {
		return NewPoller(root, opts), nil
	}
	return NewWatcher(root, opts)
}

// Watcher watches a directory tree with fsnotify.
type Watcher struct {
	root    string
	opts    Options
	watcher *fsnotify.Watcher
	paths   map[string]bool
	mu      sync.Mutex
	closed  bool
}

// NewWatcher creates a fsnotify-backed Watcher for root.
func NewWatcher(root string, opts Options) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return &Watcher{
		root:    absRoot,
		opts:    opts,
		watcher: fsw,
		paths:   make(map[string]bool),
	}, nil
}

// Run watches until ctx is cancelled, then closes the underlying watcher.
// A root that does not exist yet, or is removed while watched, is waited
// for; its appearance is signalled.
func (w *Watcher) Run(ctx context.Context, onChange func(paths []string)) error {
	defer func() { _ = w.Close() }()

	logger := logging.Get("watcher")
	debouncer := NewDebouncer(w.opts.Debounce, onChange)
	defer debouncer.Stop()

	if err := w.watchTree(w.root); err != nil {
		logger.Warn("watched directory unavailable, waiting", "path", w.root, "error", err)
		if ok, err := w.rewatchRoot(ctx, debouncer); !ok {
			return err
		}
	}
	logger.Debug("watching", "path", w.root, "directories", w.count())

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if w.handleEvent(event) {
				debouncer.Add(event.Name)
			}
			if w.isRootGone(event) {
				logger.Warn("watched directory removed, waiting", "path", w.root)
				debouncer.Flush()
				if ok, err := w.rewatchRoot(ctx, debouncer); !ok {
					return err
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "error", err)
		}
	}
}

// isRootGone reports whether event removed or renamed the root itself.
func (w *Watcher) isRootGone(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 || filepath.Clean(event.Name) != w.root {
		return false
	}
	_, err := os.Stat(w.root)
	return err != nil
}

// rewatchRoot waits for the root to exist, watches it and queues a signal.
// It returns false when ctx ends first or the tree cannot be watched.
func (w *Watcher) rewatchRoot(ctx context.Context, debouncer *Debouncer) (bool, error) {
	if !w.waitForRoot(ctx) {
		return false, nil
	}
	if err := w.watchTree(w.root); err != nil {
		return false, err
	}
	debouncer.Add(w.root)
	return true, nil
}

func (w *Watcher) waitForRoot(ctx context.Context) bool {
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if info, err := os.Stat(w.root); err == nil && info.IsDir() {
				return true
			}
		}
	}
}

// handleEvent keeps the watch set in sync and reports whether the event
// should be signalled.
func (w *Watcher) handleEvent(event fsnotify.Event) bool {
	switch {
	case event.Op&fsnotify.Create != 0:
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			_ = w.watchTree(event.Name)
		}
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.unwatch(event.Name)
	case event.Op == fsnotify.Chmod:
		return false
	}

	if w.opts.Ignore != nil && w.opts.Ignore(event.Name) {
		return false
	}
	return true
}

// watchTree adds root and every directory below it. Symlinks are not
// followed.
func (w *Watcher) watchTree(root string) error {
	info, err := os.Lstat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return nil
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // skip entries with errors
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}
		if d.IsDir() {
			return w.addWatch(path)
		}
		return nil
	})
}

func (w *Watcher) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.paths[path] {
		return nil
	}

	if err := w.watcher.Add(path); err != nil {
		logging.Get("watcher").Warn("failed to add watch", "path", path, "error", err)
		return err
	}
	w.paths[path] = true
	return nil
}

func (w *Watcher) unwatch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for p := range w.paths {
		if p == path || isSubPath(p, path) {
			_ = w.watcher.Remove(p)
			delete(w.paths, p)
		}
	}
}

func (w *Watcher) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.paths)
}

// Close releases the fsnotify watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.paths = make(map[string]bool)
	return w.watcher.Close()
}

// isSubPath checks if path is under parent directory.
func isSubPath(path, parent string) bool {
	return len(path) > len(parent) && path[:len(parent)+1] == parent+string(filepath.Separator)
}
