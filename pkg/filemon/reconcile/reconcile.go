// Package reconcile implements the reconciliation pass that brings the
// in-memory cache in line with the files on disk.
package reconcile

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/jamesainslie/filemon/pkg/filemon/cache"
	"github.com/jamesainslie/filemon/pkg/filemon/filter"
	"github.com/jamesainslie/filemon/pkg/filemon/fsprovider"
	"github.com/jamesainslie/filemon/pkg/filemon/logging"
)

// Digester computes file checksums. ok is false when the file could not be
// read.
type Digester interface {
	Digest(path string) (sum string, ok bool)
}

// Reconciler walks a Provider and updates a cache.
type Reconciler struct {
	root     string
	provider fsprovider.Provider
	rules    *filter.Rules
	digester Digester
}

// New returns a Reconciler for the folder at root, seen through provider.
func New(root string, provider fsprovider.Provider, rules *filter.Rules, digester Digester) *Reconciler {
	return &Reconciler{
		root:     root,
		provider: provider,
		rules:    rules,
		digester: digester,
	}
}

// Run performs one full pass over c:
//
//  1. walk the tree one directory at a time, creating and updating entries;
//  2. remove entries whose file no longer exists;
//  3. hash every entry that still has no checksum.
//
// Run never fails. I/O problems are logged and leave the affected entries
// for the next pass. The caller must serialize passes over the same cache.
func (r *Reconciler) Run(c *cache.Cache) Report {
	logger := logging.Get("reconcile")
	report := Report{Started: time.Now()}

	if !r.provider.Exists("") {
		logger.Warn("watched directory does not exist", "path", r.root)
		report.Skipped = true
		report.Duration = time.Since(report.Started)
		return report
	}

	r.walk(c, "", &report)
	r.detectDeletions(c, &report)
	r.digestPending(c, &report)

	report.Duration = time.Since(report.Started)
	logger.Debug("pass finished",
		"created", len(report.Created),
		"updated", len(report.Updated),
		"touched", len(report.Touched),
		"deleted", len(report.Deleted),
		"digests", report.Digests,
		"duration", report.Duration,
	)
	return report
}

func (r *Reconciler) walk(c *cache.Cache, rel string, report *Report) {
	entries, err := r.provider.Snapshot(rel)
	if err != nil {
		logging.Get("reconcile").Error("failed to read directory", "path", rel, "error", err)
		return
	}

	for _, entry := range entries {
		switch entry.Kind {
		case fsprovider.Directory:
			if r.rules.IsExcludedDir(entry.RelativePath) {
				continue
			}
			r.walk(c, entry.RelativePath, report)

		case fsprovider.File:
			if r.rules.IsOutput(entry.Name) {
				continue
			}
			r.visitFile(c, entry, report)
		}
	}
}

func (r *Reconciler) visitFile(c *cache.Cache, entry fsprovider.Entry, report *Report) {
	logger := logging.Get("reconcile")
	key := cache.Key(entry.RelativePath)

	existing, cached := c.Get(key)
	if !cached {
		if !r.rules.Recognized(entry.Name) {
			return
		}
		_, stored := c.Upsert(key, func(_ cache.FileEntry, ok bool) (cache.FileEntry, bool) {
			if ok {
				return cache.FileEntry{}, false
			}
			return cache.FileEntry{LastModified: entry.LastModified}, true
		})
		if stored {
			logger.Debug("file created", "path", key)
			report.Created = append(report.Created, key)
		}
		return
	}

	if !entry.LastModified.After(existing.LastModified) {
		return
	}

	sum, ok := r.digest(entry.PhysicalPath, report)
	if !ok {
		// Leave the entry alone so the newer timestamp is retried next pass.
		return
	}

	var changed bool
	c.Upsert(key, func(current cache.FileEntry, ok bool) (cache.FileEntry, bool) {
		if !ok {
			return current, false
		}
		changed = current.Sum() != sum
		current.LastModified = entry.LastModified
		return current.WithChecksum(sum), true
	})

	if changed {
		logger.Debug("file updated", "path", key)
		report.Updated = append(report.Updated, key)
	} else {
		report.Touched = append(report.Touched, key)
	}
}

func (r *Reconciler) detectDeletions(c *cache.Cache, report *Report) {
	logger := logging.Get("reconcile")

	files, err := r.provider.ListFiles()
	if err != nil {
		logger.Error("failed to list files, skipping deletion detection", "path", r.root, "error", err)
		return
	}

	onDisk := make(map[string]struct{}, len(files))
	for _, f := range files {
		f = cache.Key(f)
		if r.rules.Tracks(f) {
			onDisk[strings.ToLower(f)] = struct{}{}
		}
	}

	for _, key := range c.Keys() {
		if _, ok := onDisk[strings.ToLower(key)]; ok {
			continue
		}
		if c.Delete(key) {
			logger.Debug("file deleted", "path", key)
			report.Deleted = append(report.Deleted, key)
		} else {
			logger.Error("failed to delete cache entry", "path", key)
		}
	}
}

func (r *Reconciler) digestPending(c *cache.Cache, report *Report) {
	for _, key := range c.Pending() {
		sum, ok := r.digest(filepath.Join(r.root, filepath.FromSlash(key)), report)
		if !ok {
			continue
		}
		c.Upsert(key, func(current cache.FileEntry, ok bool) (cache.FileEntry, bool) {
			if !ok || current.HasChecksum() {
				return current, false
			}
			return current.WithChecksum(sum), true
		})
	}
}

func (r *Reconciler) digest(path string, report *Report) (string, bool) {
	report.Digests++
	sum, ok := r.digester.Digest(path)
	if !ok {
		report.DigestFailures++
	}
	return sum, ok
}
