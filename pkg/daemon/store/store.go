// Package store provides Badger DB-backed persistence of last-seen file
// state, so edits made while filemon was not running are noticed on the
// next start.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/jamesainslie/filemon/pkg/filemon/cache"
)

// Key prefixes for different data types.
const (
	prefixEntry = "e:" // e:<scope>\x00<relative path>
	prefixMeta  = "m:" // metadata (schema)
)

const scopeSeparator = "\x00"

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("not found")

// Entry is the persisted state of one tracked file.
type Entry struct {
	Path     string `json:"path"`
	ModTime  int64  `json:"mod_time"`
	Checksum string `json:"checksum,omitempty"`
}

// Time returns the modification time.
func (e Entry) Time() time.Time {
	return time.Unix(0, e.ModTime)
}

// Store is the state storage backed by Badger DB. Entries are grouped by
// scope, normally the manifest path, so several watched folders can share
// one database.
type Store struct {
	db *badger.DB
}

// Open opens or creates a store at the given path.
func Open(path string) (*Store, error) {
	return open(badger.DefaultOptions(path))
}

// OpenInMemory opens a store that lives only for the process.
func OpenInMemory() (*Store, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Store, error) {
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

func entryKey(scope, rel string) []byte {
	return []byte(prefixEntry + scope + scopeSeparator + rel)
}

func scopePrefix(scope string) []byte {
	return []byte(prefixEntry + scope + scopeSeparator)
}

// Put stores an entry under scope.
func (s *Store) Put(scope string, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(scope, entry.Path), data)
	})
}

// Get retrieves an entry by scope and relative path.
func (s *Store) Get(scope, rel string) (*Entry, error) {
	var entry Entry

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(entryKey(scope, rel))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Entries returns every entry of scope keyed by relative path.
func (s *Store) Entries(scope string) (map[string]Entry, error) {
	out := make(map[string]Entry)

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := scopePrefix(scope)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var entry Entry
				if err := json.Unmarshal(val, &entry); err != nil {
					return nil // skip invalid entries
				}
				out[entry.Path] = entry
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return out, err
}

// ModTimes returns the stored modification time of every entry in scope.
func (s *Store) ModTimes(scope string) (map[string]time.Time, error) {
	entries, err := s.Entries(scope)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(entries))
	for p, e := range entries {
		out[p] = e.Time()
	}
	return out, nil
}

// Sync replaces the state of scope with the given cache entries.
func (s *Store) Sync(scope string, entries []cache.FileEntry) error {
	if err := s.DeletePrefix(scope); err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, e := range entries {
		data, err := json.Marshal(&Entry{
			Path:     e.Path,
			ModTime:  e.LastModified.UnixNano(),
			Checksum: e.Sum(),
		})
		if err != nil {
			return err
		}
		if err := wb.Set(entryKey(scope, e.Path), data); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// Delete removes one entry.
func (s *Store) Delete(scope, rel string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(scope, rel))
	})
}

// DeletePrefix removes every entry of scope.
func (s *Store) DeletePrefix(scope string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var keysToDelete [][]byte
		prefix := scopePrefix(scope)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keysToDelete = append(keysToDelete, it.Item().KeyCopy(nil))
		}

		for _, key := range keysToDelete {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of entries in scope.
func (s *Store) Count(scope string) (int, error) {
	var n int
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := scopePrefix(scope)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}
