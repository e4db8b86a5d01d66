package store_test

import (
	"errors"
	"testing"
	"time"

	"github.com/jamesainslie/filemon/pkg/daemon/store"
	"github.com/jamesainslie/filemon/pkg/filemon/cache"
)

const scope = "/srv/www/monitor-stat.txt"

func TestStoreBasicOperations(t *testing.T) {
	s, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	mtime := time.Unix(1700000000, 123)
	entry := &store.Entry{Path: "css/site.css", ModTime: mtime.UnixNano(), Checksum: "abc"}
	if err := s.Put(scope, entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := s.Get(scope, "css/site.css")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !got.Time().Equal(mtime) {
		t.Errorf("Expected mod time %v, got %v", mtime, got.Time())
	}
	if got.Checksum != "abc" {
		t.Errorf("Expected checksum abc, got %q", got.Checksum)
	}

	if _, err := s.Get("other-scope", "css/site.css"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for other scope, got %v", err)
	}

	if err := s.Delete(scope, "css/site.css"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(scope, "css/site.css"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
}

func TestStoreSync(t *testing.T) {
	s, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	defer s.Close()

	t0 := time.Unix(1000, 0)
	first := []cache.FileEntry{
		cache.FileEntry{Path: "a.txt", LastModified: t0}.WithChecksum("h1"),
		cache.FileEntry{Path: "b.txt", LastModified: t0}.WithChecksum("h2"),
	}
	if err := s.Sync(scope, first); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if err := s.Put("elsewhere", &store.Entry{Path: "a.txt"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	second := []cache.FileEntry{
		cache.FileEntry{Path: "b.txt", LastModified: t0.Add(time.Minute)}.WithChecksum("h3"),
	}
	if err := s.Sync(scope, second); err != nil {
		t.Fatalf("Sync failed: %v", err)
	}

	times, err := s.ModTimes(scope)
	if err != nil {
		t.Fatalf("ModTimes failed: %v", err)
	}
	if len(times) != 1 {
		t.Fatalf("Expected 1 entry after sync, got %d", len(times))
	}
	if !times["b.txt"].Equal(t0.Add(time.Minute)) {
		t.Errorf("Expected b.txt at %v, got %v", t0.Add(time.Minute), times["b.txt"])
	}

	n, err := s.Count("elsewhere")
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected other scope untouched, got %d entries", n)
	}
}

func TestStoreScopesDoNotOverlap(t *testing.T) {
	s, err := store.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory failed: %v", err)
	}
	defer s.Close()

	if err := s.Put("/a", &store.Entry{Path: "x.js"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Put("/ab", &store.Entry{Path: "y.js"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if err := s.DeletePrefix("/a"); err != nil {
		t.Fatalf("DeletePrefix failed: %v", err)
	}

	if n, _ := s.Count("/a"); n != 0 {
		t.Errorf("Expected /a empty, got %d", n)
	}
	if n, _ := s.Count("/ab"); n != 1 {
		t.Errorf("Expected /ab to keep its entry, got %d", n)
	}
}

func TestStorePersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()

	s, err := store.Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s.Put(scope, &store.Entry{Path: "a.txt", ModTime: 42}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	s, err = store.Open(dir)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	entries, err := s.Entries(scope)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if entries["a.txt"].ModTime != 42 {
		t.Errorf("Expected persisted mod time 42, got %d", entries["a.txt"].ModTime)
	}
}
