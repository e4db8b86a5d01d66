// Package manifest reads and writes the flat "path:checksum" manifest file
// kept inside the watched folder.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/jamesainslie/filemon/pkg/filemon/cache"
	"github.com/jamesainslie/filemon/pkg/filemon/config"
	"github.com/jamesainslie/filemon/pkg/filemon/filter"
	"github.com/jamesainslie/filemon/pkg/filemon/logging"
)

// Store persists a cache to the manifest file of one watched folder.
type Store struct {
	root  string
	path  string
	name  string
	rules *filter.Rules
	mu    sync.Mutex
}

// LoadResult summarizes a Load.
type LoadResult struct {
	// Loaded is the number of entries admitted into the cache.
	Loaded int

	// Missing lists admitted entries whose file was not found on disk.
	Missing []string

	// Excluded is the number of entries dropped by an excluded prefix.
	Excluded int

	// Malformed is the number of lines that could not be parsed.
	Malformed int
}

// New returns a Store for the manifest described by opts.
func New(opts config.Options, rules *filter.Rules) *Store {
	return &Store{
		root:  filepath.FromSlash(opts.FullPath()),
		path:  filepath.FromSlash(opts.OutputFullPath()),
		name:  opts.OutputFileName,
		rules: rules,
	}
}

// Path returns the manifest file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the manifest into c. Every failure is logged and the cache is
// left holding whatever was read so far; Load never fails the caller.
//
// A missing root leaves the cache empty. A missing manifest is created empty.
// Each entry takes its timestamp from the file on disk; entries whose file
// is gone are still admitted with a zero timestamp.
func (s *Store) Load(c *cache.Cache) LoadResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := logging.Get("manifest")
	logger.Debug("loading manifest", "path", s.path)

	var result LoadResult

	if info, err := os.Stat(s.root); err != nil || !info.IsDir() {
		logger.Warn("watched directory does not exist", "path", s.root)
		return result
	}

	f, err := os.OpenFile(s.path, os.O_RDONLY|os.O_CREATE, 0o644) //nolint:gosec // manifest lives in the watched folder
	if err != nil {
		logger.Error("failed to open manifest", "path", s.path, "error", err)
		return result
	}
	defer f.Close() //nolint:errcheck // read-only

	lines, errs := Parse(f)
	for _, err := range errs {
		if errors.Is(err, ErrMalformedLine) {
			result.Malformed++
		}
		logger.Error("error while reading manifest", "path", s.path, "error", err)
	}

	for _, line := range lines {
		modTime, statErr := s.modTime(line.Path)
		if statErr != nil {
			logger.Warn("file listed in manifest does not exist", "file", line.Path, "manifest", s.name)
		}

		if s.rules.IsExcluded(line.Path) || s.rules.IsOutput(path.Base(line.Path)) {
			result.Excluded++
			continue
		}
		if statErr != nil {
			result.Missing = append(result.Missing, line.Path)
		}

		entry := cache.FileEntry{Path: line.Path, LastModified: modTime}
		if line.Checksum != "" {
			entry = entry.WithChecksum(line.Checksum)
		}
		c.Upsert(line.Path, func(cache.FileEntry, bool) (cache.FileEntry, bool) {
			return entry, true
		})
		result.Loaded++
	}

	logger.Info("manifest loaded", "path", s.path, "entries", result.Loaded)
	return result
}

func (s *Store) modTime(rel string) (time.Time, error) {
	info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(rel)))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Save writes every cache entry to the manifest, sorted by path. The data is
// written to a temporary file and renamed over the manifest while the
// watched directory is locked.
func (s *Store) Save(c *cache.Cache) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := logging.Get("manifest")
	logger.Debug("updating manifest", "path", s.path)

	if err := s.write(Format(c.Entries())); err != nil {
		logger.Error("error while saving manifest", "path", s.path, "error", err)
		return err
	}

	logger.Info("manifest updated", "path", s.path, "entries", c.Len())
	return nil
}

func (s *Store) write(data []byte) error {
	unlock, err := lockDir(s.root)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", s.root, err)
	}
	defer unlock()

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Read parses the manifest file without touching any cache.
func (s *Store) Read() ([]Line, []error, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	lines, errs := Parse(f)
	return lines, errs, nil
}
