package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runSource(t *testing.T, src Source) *collector {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	var c collector
	go func() {
		defer close(done)
		_ = src.Run(ctx, c.add)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return &c
}

func flatten(batches [][]string) []string {
	var out []string
	for _, b := range batches {
		out = append(out, b...)
	}
	return out
}

func TestNew_SelectsSource(t *testing.T) {
	t.Parallel()

	src, err := New(t.TempDir(), Options{UsePolling: true})
	require.NoError(t, err)
	assert.IsType(t, &Poller{}, src)

	src, err = New(t.TempDir(), Options{})
	require.NoError(t, err)
	require.IsType(t, &Watcher{}, src)
	require.NoError(t, src.(*Watcher).Close())
}

func TestWatcher_SignalsWrites(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))

	w, err := NewWatcher(root, Options{Debounce: 20 * time.Millisecond, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	c := runSource(t, w)

	// Give the watch set time to register.
	require.Eventually(t, func() bool { return w.count() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "a.js"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		for _, p := range flatten(c.get()) {
			if strings.HasSuffix(p, "a.js") {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_WatchesNewDirectories(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	w, err := NewWatcher(root, Options{Debounce: 10 * time.Millisecond, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	runSource(t, w)

	require.Eventually(t, func() bool { return w.count() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "new"), 0o755))
	require.Eventually(t, func() bool { return w.count() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.RemoveAll(filepath.Join(root, "new")))
	require.Eventually(t, func() bool { return w.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_Ignore(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	w, err := NewWatcher(root, Options{
		Debounce:     10 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		Ignore:       func(p string) bool { return filepath.Base(p) == "out.txt" },
	})
	require.NoError(t, err)
	c := runSource(t, w)
	require.Eventually(t, func() bool { return w.count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "out.txt"), []byte("x"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, c.get())
}

func TestWatcher_WaitsForRoot(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "later")
	w, err := NewWatcher(root, Options{Debounce: 10 * time.Millisecond, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	c := runSource(t, w)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, os.MkdirAll(root, 0o755))

	require.Eventually(t, func() bool { return len(c.get()) > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_RecoversFromRemovedRoot(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "files")
	require.NoError(t, os.MkdirAll(root, 0o755))

	w, err := NewWatcher(root, Options{Debounce: 10 * time.Millisecond, PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	c := runSource(t, w)
	require.Eventually(t, func() bool { return w.count() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, os.RemoveAll(root))
	require.Eventually(t, func() bool { return len(c.get()) > 0 && w.count() == 0 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, os.MkdirAll(root, 0o755))
	require.Eventually(t, func() bool { return w.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	seen := len(c.get())

	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644))
	require.Eventually(t, func() bool {
		batches := c.get()
		if len(batches) <= seen {
			return false
		}
		for _, p := range flatten(batches[seen:]) {
			if strings.HasSuffix(p, "a.txt") {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPoller_Poll(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	a := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(a, []byte("1"), 0o644))

	p := NewPoller(root, Options{
		PollInterval: time.Hour,
		Ignore:       func(path string) bool { return filepath.Base(path) == "skip.txt" },
	})
	p.mtimes = p.snapshot()
	assert.Empty(t, p.Poll())

	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(a, later, later))
	assert.Equal(t, []string{a}, p.Poll())

	require.NoError(t, os.WriteFile(filepath.Join(root, "skip.txt"), []byte("x"), 0o644))
	changed := p.Poll()
	assert.NotContains(t, changed, filepath.Join(root, "skip.txt"))

	require.NoError(t, os.Remove(a))
	changed = p.Poll()
	assert.Contains(t, changed, a)
}

func TestPoller_Run(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	p := NewPoller(root, Options{PollInterval: 10 * time.Millisecond})
	c := runSource(t, p)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(root, "n.css"), []byte("x"), 0o644))

	require.Eventually(t, func() bool { return len(c.get()) > 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestIsSubPath(t *testing.T) {
	t.Parallel()

	sep := string(filepath.Separator)
	assert.True(t, isSubPath("a"+sep+"b", "a"))
	assert.False(t, isSubPath("ab", "a"))
	assert.False(t, isSubPath("a", "a"))
}
