// Package monitor ties the filemon pieces together. A Coordinator loads the
// manifest of one watched folder, runs reconciliation passes whenever the
// filesystem signals a change and writes the manifest back when the pass
// left it dirty.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jamesainslie/filemon/pkg/daemon/broadcaster"
	"github.com/jamesainslie/filemon/pkg/filemon/cache"
	"github.com/jamesainslie/filemon/pkg/filemon/checksum"
	"github.com/jamesainslie/filemon/pkg/filemon/config"
	"github.com/jamesainslie/filemon/pkg/filemon/filter"
	"github.com/jamesainslie/filemon/pkg/filemon/fsprovider"
	"github.com/jamesainslie/filemon/pkg/filemon/history"
	"github.com/jamesainslie/filemon/pkg/filemon/logging"
	"github.com/jamesainslie/filemon/pkg/filemon/manifest"
	"github.com/jamesainslie/filemon/pkg/filemon/metrics"
	"github.com/jamesainslie/filemon/pkg/filemon/reconcile"
	"github.com/jamesainslie/filemon/pkg/filemon/watcher"
)

// ErrAlreadyStarted is returned by Start on a running coordinator.
var ErrAlreadyStarted = errors.New("coordinator already started")

// StateStore remembers the last modification time seen for every tracked
// file, keyed by manifest. *store.Store satisfies it.
type StateStore interface {
	ModTimes(scope string) (map[string]time.Time, error)
	Sync(scope string, entries []cache.FileEntry) error
}

// notifier is implemented by providers whose change signal can be raised
// from outside, such as fsprovider.Physical.
type notifier interface {
	Notify()
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithProvider replaces the physical filesystem provider.
func WithProvider(p fsprovider.Provider) Option {
	return func(c *Coordinator) { c.provider = p }
}

// WithSource sets the signal source that drives rescans once started.
func WithSource(src watcher.Source) Option {
	return func(c *Coordinator) { c.source = src }
}

// WithWatch builds a watcher.Source for the watched folder from opts. The
// manifest and its temporary file are always ignored.
func WithWatch(opts watcher.Options) Option {
	return func(c *Coordinator) { c.watch = &opts }
}

// WithHistory records every dirty pass in h.
func WithHistory(h *history.Log) Option {
	return func(c *Coordinator) { c.history = h }
}

// WithBroadcaster publishes per-file events from every pass to b.
func WithBroadcaster(b *broadcaster.Broadcaster) Option {
	return func(c *Coordinator) { c.events = b }
}

// WithMetrics records pass, digest and write metrics in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithStateStore persists last-seen modification times in s.
func WithStateStore(s StateStore) Option {
	return func(c *Coordinator) { c.state = s }
}

// WithPassHook calls fn after every pass, skipped ones included. fn runs
// while the pass lock is held and must not call Rescan.
func WithPassHook(fn func(reconcile.Report)) Option {
	return func(c *Coordinator) { c.onPass = fn }
}

// Coordinator owns the cache of one watched folder.
type Coordinator struct {
	opts config.Options
	root string

	provider   fsprovider.Provider
	source     watcher.Source
	watch      *watcher.Options
	engine     *checksum.Engine
	store      *manifest.Store
	reconciler *reconcile.Reconciler
	cache      *cache.Cache

	history *history.Log
	events  *broadcaster.Broadcaster
	metrics *metrics.Metrics
	state   StateStore
	onPass  func(reconcile.Report)

	// passMu serializes passes and guards passes and stopped.
	passMu  sync.Mutex
	passes  int
	stopped bool
	dirty   atomic.Bool

	mu       sync.RWMutex
	last     reconcile.Report
	started  bool
	cancel   context.CancelFunc
	unsub    func()
	srcDone  chan error
	stopOnce sync.Once
}

// New validates opts and builds a Coordinator. Nothing is read from disk
// until Start.
func New(opts config.Options, options ...Option) (*Coordinator, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	rules, err := filter.New(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrInvalidOptions, err)
	}

	c := &Coordinator{
		opts:   opts,
		root:   filepath.FromSlash(opts.FullPath()),
		engine: checksum.New(),
		cache:  cache.New(),
	}
	for _, opt := range options {
		opt(c)
	}

	if c.provider == nil {
		c.provider = fsprovider.NewPhysical(c.root)
	}
	if c.source == nil && c.watch != nil {
		wopts := *c.watch
		wopts.Ignore = c.ignoreOwnWrites(wopts.Ignore)
		if c.source, err = watcher.New(c.root, wopts); err != nil {
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
	}
	if c.metrics != nil {
		c.engine.OnDigest = c.metrics.ObserveDigest
	}

	c.store = manifest.New(opts, rules)
	c.reconciler = reconcile.New(c.root, c.provider, rules, c.engine)
	return c, nil
}

func (c *Coordinator) ignoreOwnWrites(next func(string) bool) func(string) bool {
	output := c.opts.OutputFileName
	return func(path string) bool {
		switch filepath.Base(path) {
		case output, output + ".tmp":
			return true
		}
		return next != nil && next(path)
	}
}

// Root returns the watched folder.
func (c *Coordinator) Root() string {
	return c.root
}

// ManifestPath returns the location of the manifest file.
func (c *Coordinator) ManifestPath() string {
	return c.store.Path()
}

// Engine returns the checksum engine used by passes.
func (c *Coordinator) Engine() *checksum.Engine {
	return c.engine
}

// Start loads the manifest, runs the first pass when the watched folder
// exists and subscribes to change signals. It returns once the first pass
// is done; signals are handled in the background until ctx is cancelled or
// Stop is called.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	logger := logging.Get("monitor")
	logger.Info("starting", "path", c.root, "manifest", c.store.Path(), "extensions", c.opts.NormalizedExtensions())

	c.Load()

	if c.provider.Exists("") {
		c.Rescan()
	} else {
		logger.Error("watched directory does not exist, waiting for a change signal", "path", c.root)
	}

	unsub := c.provider.OnChange(func() { c.Rescan() })

	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.unsub = unsub
	c.cancel = cancel
	c.mu.Unlock()

	if c.source != nil {
		done := make(chan error, 1)
		c.mu.Lock()
		c.srcDone = done
		c.mu.Unlock()

		go func() {
			done <- c.source.Run(runCtx, c.signal)
			close(done)
		}()
	}
	return nil
}

// signal forwards a batch of watcher paths as one change signal.
func (c *Coordinator) signal(paths []string) {
	logging.Get("monitor").Debug("change signal", "paths", len(paths))
	if n, ok := c.provider.(notifier); ok {
		n.Notify()
		return
	}
	go c.Rescan()
}

// Run starts the coordinator and blocks until ctx is cancelled or the
// signal source fails.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Stop()

	c.mu.RLock()
	done := c.srcDone
	c.mu.RUnlock()

	select {
	case <-ctx.Done():
		return nil
	case err, ok := <-done:
		if ok && err != nil {
			return fmt.Errorf("signal source failed: %w", err)
		}
		<-ctx.Done()
		return nil
	}
}

// Stop unsubscribes from change signals and waits for the signal source to
// exit. A pass already running completes.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		unsub, cancel, done := c.unsub, c.cancel, c.srcDone
		c.mu.Unlock()

		if unsub != nil {
			unsub()
		}
		if cancel != nil {
			cancel()
		}
		if done != nil {
			for range done {
			}
		}

		// Wait for an in-flight pass; queued ones see stopped and return.
		c.passMu.Lock()
		defer c.passMu.Unlock()
		c.stopped = true
		logging.Get("monitor").Info("stopped", "path", c.root, "pending_write", c.dirty.Load())
	})
}

// Load reads the manifest into the cache and applies the state store.
// Start calls it; it is exported for one-shot use such as `filemon scan`.
func (c *Coordinator) Load() manifest.LoadResult {
	c.passMu.Lock()
	defer c.passMu.Unlock()

	result := c.store.Load(c.cache)
	logging.Get("monitor").Info("manifest loaded",
		"entries", result.Loaded,
		"missing", len(result.Missing),
		"excluded", result.Excluded,
		"malformed", result.Malformed,
	)
	c.applyState()
	return result
}

// applyState rewinds cached timestamps to the last ones seen before the
// previous shutdown, so files edited while nothing was watching are hashed
// again by the next pass. Must be called with passMu held.
func (c *Coordinator) applyState() {
	if c.state == nil {
		return
	}

	logger := logging.Get("monitor")
	stored, err := c.state.ModTimes(c.store.Path())
	if err != nil {
		logger.Error("failed to read state store", "error", err)
		return
	}

	rewound := 0
	for _, key := range c.cache.Keys() {
		seen, ok := stored[key]
		if !ok {
			continue
		}
		c.cache.Upsert(key, func(current cache.FileEntry, ok bool) (cache.FileEntry, bool) {
			if !ok || !seen.Before(current.LastModified) {
				return current, false
			}
			current.LastModified = seen
			rewound++
			return current, true
		})
	}
	if rewound > 0 {
		logger.Info("files changed while stopped", "count", rewound)
	}
}

// Rescan runs one full pass and writes the manifest if anything is dirty.
// Concurrent calls are serialized. After Stop it returns the last report
// without running a pass.
func (c *Coordinator) Rescan() reconcile.Report {
	c.passMu.Lock()
	defer c.passMu.Unlock()

	if c.stopped {
		return c.LastReport()
	}

	logger := logging.Get("monitor")

	report := c.reconciler.Run(c.cache)
	if report.Dirty() {
		c.dirty.Store(true)
	}

	if !report.Skipped && c.dirty.Load() {
		err := c.store.Save(c.cache)
		c.metrics.ObserveWrite(err)
		if err != nil {
			logger.Error("failed to write manifest, will retry after the next pass", "path", c.store.Path(), "error", err)
		} else {
			c.dirty.Store(false)
		}
	}

	c.metrics.ObservePass(report, c.cache.Len())

	if !report.Skipped {
		snapshot := c.cache.Manifest()
		c.publish(report, snapshot)
		c.record(report, snapshot)
		c.syncState(report)
		c.passes++
	}

	c.mu.Lock()
	c.last = report
	c.mu.Unlock()

	logger.Info("pass finished",
		"created", len(report.Created),
		"updated", len(report.Updated),
		"deleted", len(report.Deleted),
		"tracked", c.cache.Len(),
		"duration", report.Duration,
	)

	if c.onPass != nil {
		c.onPass(report)
	}
	return report
}

func (c *Coordinator) publish(report reconcile.Report, snapshot map[string]string) {
	if c.events == nil {
		return
	}

	now := time.Now()
	emit := func(t broadcaster.EventType, paths []string) {
		for _, p := range paths {
			c.events.Notify(broadcaster.FileEvent{Type: t, Path: p, Checksum: snapshot[p], Time: now})
		}
	}
	emit(broadcaster.EventCreated, report.Created)
	emit(broadcaster.EventModified, report.Updated)
	emit(broadcaster.EventDeleted, report.Deleted)
}

func (c *Coordinator) record(report reconcile.Report, snapshot map[string]string) {
	if c.history == nil || !report.Dirty() {
		return
	}
	if _, err := c.history.Append(c.store.Path(), report, snapshot); err != nil {
		logging.Get("monitor").Warn("failed to record history", "error", err)
	}
}

func (c *Coordinator) syncState(report reconcile.Report) {
	if c.state == nil {
		return
	}
	if c.passes > 0 && !report.Dirty() && len(report.Touched) == 0 {
		return
	}
	if err := c.state.Sync(c.store.Path(), c.cache.Entries()); err != nil {
		logging.Get("monitor").Error("failed to update state store", "error", err)
	}
}

// Manifest returns a copy of the tracked paths and their checksums. Entries
// not hashed yet map to "".
func (c *Coordinator) Manifest() map[string]string {
	return c.cache.Manifest()
}

// Entries returns the tracked entries sorted by path.
func (c *Coordinator) Entries() []cache.FileEntry {
	return c.cache.Entries()
}

// HasChanges reports whether the cache holds changes not yet written to the
// manifest file.
func (c *Coordinator) HasChanges() bool {
	return c.dirty.Load()
}

// LastReport returns the report of the most recent pass.
func (c *Coordinator) LastReport() reconcile.Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}
