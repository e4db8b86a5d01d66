package fsprovider

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/google/uuid"

	"github.com/jamesainslie/filemon/pkg/filemon/logging"
)

// Physical is a Provider backed by the local filesystem.
type Physical struct {
	root string

	mu        sync.RWMutex
	callbacks map[string]func()
}

var _ Provider = (*Physical)(nil)

// NewPhysical returns a Provider rooted at root.
func NewPhysical(root string) *Physical {
	return &Physical{
		root:      filepath.Clean(root),
		callbacks: make(map[string]func()),
	}
}

// Root returns the watched directory.
func (p *Physical) Root() string {
	return p.root
}

func (p *Physical) abs(rel string) string {
	if rel == "" {
		return p.root
	}
	return filepath.Join(p.root, filepath.FromSlash(rel))
}

// Snapshot lists the direct children of rel. Symbolic links are reported
// with the kind and time of their target; dangling links and special files
// are left out.
func (p *Physical) Snapshot(rel string) ([]Entry, error) {
	dir := p.abs(rel)
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		physical := filepath.Join(dir, de.Name())

		info, err := de.Info()
		if err != nil {
			continue
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			if info, err = os.Stat(physical); err != nil {
				continue
			}
		}

		var kind Kind
		switch {
		case info.IsDir():
			kind = Directory
		case info.Mode().IsRegular():
			kind = File
		default:
			continue
		}

		entries = append(entries, Entry{
			Name:         de.Name(),
			Kind:         kind,
			PhysicalPath: physical,
			RelativePath: path.Join(rel, de.Name()),
			LastModified: info.ModTime(),
		})
	}
	return entries, nil
}

// Exists reports whether rel exists under the root.
func (p *Physical) Exists(rel string) bool {
	_, err := os.Stat(p.abs(rel))
	return err == nil
}

// ListFiles walks the whole tree and returns every regular file, including
// symlinks to regular files, sorted. Symlinked directories are followed so
// the listing agrees with Snapshot. Unreadable entries are skipped.
func (p *Physical) ListFiles() ([]string, error) {
	var (
		mu    sync.Mutex
		files []string
	)

	conf := fastwalk.Config{
		Follow: true,
	}

	err := fastwalk.Walk(&conf, p.root, func(name string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // skip unreadable entries and keep walking
		}
		if d.IsDir() {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			info, err := os.Stat(name)
			if err != nil || !info.Mode().IsRegular() {
				return nil
			}
		} else if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(p.root, name)
		if err != nil {
			return nil //nolint:nilerr
		}

		mu.Lock()
		files = append(files, filepath.ToSlash(rel))
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// OnChange registers fn to run on every Notify.
func (p *Physical) OnChange(fn func()) func() {
	id := uuid.New().String()

	p.mu.Lock()
	p.callbacks[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.callbacks, id)
		p.mu.Unlock()
	}
}

// Notify signals every registered callback that something changed. Each
// callback runs on its own goroutine.
func (p *Physical) Notify() {
	p.mu.RLock()
	fns := make([]func(), 0, len(p.callbacks))
	for _, fn := range p.callbacks {
		fns = append(fns, fn)
	}
	p.mu.RUnlock()

	logging.Get("fsprovider").Debug("change signal", "root", p.root, "listeners", len(fns))
	for _, fn := range fns {
		go fn()
	}
}
