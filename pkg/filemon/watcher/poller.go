package watcher

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/filemon/pkg/filemon/logging"
)

// Poller detects changes by comparing modification times between walks.
type Poller struct {
	root   string
	opts   Options
	mtimes map[string]time.Time
}

// NewPoller creates a Poller for root.
func NewPoller(root string, opts Options) *Poller {
	return &Poller{
		root:   filepath.Clean(root),
		opts:   opts,
		mtimes: make(map[string]time.Time),
	}
}

// Run polls at the configured interval until ctx is cancelled. The first walk
// only records state.
func (p *Poller) Run(ctx context.Context, onChange func(paths []string)) error {
	logger := logging.Get("watcher")
	logger.Debug("polling", "path", p.root, "interval", p.opts.PollInterval)

	p.mtimes = p.snapshot()

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if changed := p.Poll(); len(changed) > 0 {
				logger.Debug("change detected", "paths", len(changed))
				onChange(changed)
			}
		}
	}
}

// Poll walks the tree once and returns the sorted paths that appeared,
// disappeared or changed modification time since the previous walk.
func (p *Poller) Poll() []string {
	current := p.snapshot()

	var changed []string
	for path, old := range p.mtimes {
		if now, ok := current[path]; !ok || !now.Equal(old) {
			changed = append(changed, path)
		}
	}
	for path := range current {
		if _, ok := p.mtimes[path]; !ok {
			changed = append(changed, path)
		}
	}
	p.mtimes = current

	sort.Strings(changed)
	return changed
}

// snapshot maps every path under root, the root included, to its
// modification time. A missing root yields an empty map.
func (p *Poller) snapshot() map[string]time.Time {
	var mu sync.Mutex
	mtimes := make(map[string]time.Time)

	conf := fastwalk.Config{Follow: false}
	_ = fastwalk.Walk(&conf, p.root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // skip unreadable entries
		}
		if p.opts.Ignore != nil && p.opts.Ignore(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil //nolint:nilerr
		}

		mu.Lock()
		mtimes[path] = info.ModTime()
		mu.Unlock()
		return nil
	})
	return mtimes
}
