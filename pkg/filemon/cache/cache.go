// Package cache holds the in-memory change-tracking state: one FileEntry per
// tracked file, keyed by its path relative to the watched root.
package cache

import (
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// FileEntry is the cached state of one tracked file.
type FileEntry struct {
	// Path is relative to the watched root, uses "/" and never starts with "/".
	Path string

	// LastModified is the modification time seen when the entry was last updated.
	LastModified time.Time

	// Checksum is nil until the file has been hashed since its last detected change.
	Checksum *string
}

// HasChecksum reports whether the entry has been hashed.
func (e FileEntry) HasChecksum() bool {
	return e.Checksum != nil
}

// Sum returns the checksum or "" when it has not been computed.
func (e FileEntry) Sum() string {
	if e.Checksum == nil {
		return ""
	}
	return *e.Checksum
}

// WithChecksum returns a copy of e carrying sum.
func (e FileEntry) WithChecksum(sum string) FileEntry {
	e.Checksum = &sum
	return e
}

// Key normalizes a relative path into cache key form.
func Key(rel string) string {
	rel = filepath.ToSlash(rel)
	rel = strings.ReplaceAll(rel, `\`, "/")
	return strings.TrimLeft(rel, "/")
}

// UpsertFunc decides the new value for a key. existing is the zero entry when
// ok is false. Returning store=false leaves the cache untouched.
type UpsertFunc func(existing FileEntry, ok bool) (next FileEntry, store bool)

// Cache maps relative paths to entries. It is safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]FileEntry
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]FileEntry)}
}

// Get returns the entry for path.
func (c *Cache) Get(path string) (FileEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[path]
	return e, ok
}

// Put stores e under e.Path, replacing any existing entry.
func (c *Cache) Put(e FileEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[e.Path] = e
}

// Upsert looks up path and stores whatever fn decides, all inside one
// critical section. It returns the resulting entry and whether fn stored it.
func (c *Cache) Upsert(path string, fn UpsertFunc) (FileEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.entries[path]
	next, store := fn(existing, ok)
	if !store {
		return existing, false
	}
	next.Path = path
	c.entries[path] = next
	return next, true
}

// Delete removes path and reports whether it was present.
func (c *Cache) Delete(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[path]; !ok {
		return false
	}
	delete(c.entries, path)
	return true
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns all paths in sorted order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Entries returns a copy of all entries sorted by path.
func (c *Cache) Entries() []FileEntry {
	c.mu.RLock()
	out := make([]FileEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Pending returns the sorted paths whose checksum has not been computed.
func (c *Cache) Pending() []string {
	c.mu.RLock()
	var paths []string
	for k, e := range c.entries {
		if e.Checksum == nil {
			paths = append(paths, k)
		}
	}
	c.mu.RUnlock()

	sort.Strings(paths)
	return paths
}

// Manifest returns a path -> checksum view. Unhashed entries map to "".
func (c *Cache) Manifest() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	m := make(map[string]string, len(c.entries))
	for k, e := range c.entries {
		m[k] = e.Sum()
	}
	return m
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]FileEntry)
}
