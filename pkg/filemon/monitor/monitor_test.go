package monitor_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/filemon/pkg/daemon/broadcaster"
	"github.com/jamesainslie/filemon/pkg/daemon/store"
	"github.com/jamesainslie/filemon/pkg/filemon/config"
	"github.com/jamesainslie/filemon/pkg/filemon/fsprovider"
	"github.com/jamesainslie/filemon/pkg/filemon/history"
	"github.com/jamesainslie/filemon/pkg/filemon/metrics"
	"github.com/jamesainslie/filemon/pkg/filemon/monitor"
	"github.com/jamesainslie/filemon/pkg/filemon/reconcile"
)

const (
	md5Hello = "5d41402abc4b2a76b9719d911017c592" // "hello"
	md5World = "7d793037a0760186574b0282f2f435e7" // "world"
)

func testOptions(contentRoot string) config.Options {
	return config.Options{
		ContentRoot:    contentRoot,
		FolderPath:     "/files",
		FileExtensions: []string{".txt"},
		OutputFileName: "monitor-stat.txt",
	}
}

// setup returns options for <tmp>/files and creates the folder.
func setup(t *testing.T) (config.Options, string) {
	t.Helper()

	opts := testOptions(t.TempDir())
	root := filepath.FromSlash(opts.FullPath())
	require.NoError(t, os.MkdirAll(root, 0o755))
	return opts, root
}

func writeFile(t *testing.T, root, rel, content string, mtime time.Time) {
	t.Helper()

	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func readManifest(t *testing.T, opts config.Options) string {
	t.Helper()

	data, err := os.ReadFile(filepath.FromSlash(opts.OutputFullPath()))
	require.NoError(t, err)
	return string(data)
}

func start(t *testing.T, opts config.Options, options ...monitor.Option) *monitor.Coordinator {
	t.Helper()

	c, err := monitor.New(opts, options...)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(c.Stop)
	return c
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(o *config.Options)
	}{
		{name: "no content root", mutate: func(o *config.Options) { o.ContentRoot = "" }},
		{name: "no folder", mutate: func(o *config.Options) { o.FolderPath = "" }},
		{name: "no output file", mutate: func(o *config.Options) { o.OutputFileName = "" }},
		{name: "no extensions", mutate: func(o *config.Options) { o.FileExtensions = nil }},
		{name: "bad ignore glob", mutate: func(o *config.Options) { o.IgnorePatterns = []string{"[unclosed"} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := testOptions(t.TempDir())
			tt.mutate(&opts)

			_, err := monitor.New(opts)
			require.Error(t, err)
			assert.True(t, errors.Is(err, config.ErrInvalidOptions), "got %v", err)
		})
	}
}

func TestStart_WritesManifest(t *testing.T) {
	t.Parallel()

	opts, root := setup(t)
	writeFile(t, root, "a.txt", "hello", time.Unix(1000, 0))

	c := start(t, opts)

	assert.Equal(t, "a.txt:"+md5Hello, readManifest(t, opts))
	assert.Equal(t, map[string]string{"a.txt": md5Hello}, c.Manifest())
	assert.False(t, c.HasChanges())
	assert.Equal(t, []string{"a.txt"}, c.LastReport().Created)
}

func TestRescan_NoChangeDoesNotRewrite(t *testing.T) {
	t.Parallel()

	opts, root := setup(t)
	writeFile(t, root, "a.txt", "hello", time.Unix(1000, 0))
	writeFile(t, root, "sub/b.txt", "world", time.Unix(1000, 0))

	c := start(t, opts)
	calls := c.Engine().Calls()

	manifestPath := filepath.FromSlash(opts.OutputFullPath())
	pinned := time.Unix(5, 0)
	require.NoError(t, os.Chtimes(manifestPath, pinned, pinned))

	report := c.Rescan()
	assert.False(t, report.Dirty())
	assert.Equal(t, calls, c.Engine().Calls(), "unchanged files must not be hashed again")

	info, err := os.Stat(manifestPath)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(pinned), "manifest must not be rewritten")
	assert.Equal(t, "a.txt:"+md5Hello+"\nsub/b.txt:"+md5World, readManifest(t, opts))
}

func TestRescan_DetectsChanges(t *testing.T) {
	t.Parallel()

	opts, root := setup(t)
	writeFile(t, root, "a.txt", "hello", time.Unix(1000, 0))
	writeFile(t, root, "b.txt", "hello", time.Unix(1000, 0))

	c := start(t, opts)

	writeFile(t, root, "a.txt", "world", time.Unix(2000, 0))
	require.NoError(t, os.Remove(filepath.Join(root, "b.txt")))
	writeFile(t, root, "c.txt", "hello", time.Unix(2000, 0))

	report := c.Rescan()
	assert.Equal(t, []string{"a.txt"}, report.Updated)
	assert.Equal(t, []string{"b.txt"}, report.Deleted)
	assert.Equal(t, []string{"c.txt"}, report.Created)
	assert.Equal(t, "a.txt:"+md5World+"\nc.txt:"+md5Hello, readManifest(t, opts))
}

func TestRescan_RetainsDirtyFlagOnWriteFailure(t *testing.T) {
	t.Parallel()

	opts, root := setup(t)
	// A directory where the manifest should be makes every write fail.
	blocker := filepath.FromSlash(opts.OutputFullPath())
	require.NoError(t, os.Mkdir(blocker, 0o755))
	writeFile(t, root, "a.txt", "hello", time.Unix(1000, 0))

	c := start(t, opts)
	assert.True(t, c.HasChanges())

	require.NoError(t, os.Remove(blocker))

	report := c.Rescan()
	assert.False(t, report.Dirty(), "nothing changed on disk")
	assert.False(t, c.HasChanges(), "retained changes are written by the next pass")
	assert.Equal(t, "a.txt:"+md5Hello, readManifest(t, opts))
}

func TestStart_MissingRoot(t *testing.T) {
	t.Parallel()

	opts := testOptions(t.TempDir())
	root := filepath.FromSlash(opts.FullPath())

	c := start(t, opts)
	assert.Empty(t, c.Manifest())
	assert.Empty(t, c.LastReport().Created)

	writeFile(t, root, "a.txt", "hello", time.Unix(1000, 0))
	report := c.Rescan()
	assert.Equal(t, []string{"a.txt"}, report.Created)
	assert.Equal(t, "a.txt:"+md5Hello, readManifest(t, opts))
}

func TestPassHookSeesEveryPass(t *testing.T) {
	t.Parallel()

	opts, root := setup(t)
	writeFile(t, root, "a.txt", "hello", time.Unix(1000, 0))

	var reports []reconcile.Report
	c := start(t, opts, monitor.WithPassHook(func(r reconcile.Report) {
		reports = append(reports, r)
	}))
	c.Rescan()

	require.Len(t, reports, 2)
	assert.Equal(t, []string{"a.txt"}, reports[0].Created)
	assert.False(t, reports[1].Dirty())
}

func TestStart_Twice(t *testing.T) {
	t.Parallel()

	opts, _ := setup(t)
	c := start(t, opts)
	assert.ErrorIs(t, c.Start(context.Background()), monitor.ErrAlreadyStarted)
}

func TestProviderSignalTriggersPass(t *testing.T) {
	t.Parallel()

	opts, root := setup(t)
	provider := fsprovider.NewPhysical(root)
	c := start(t, opts, monitor.WithProvider(provider))

	writeFile(t, root, "late.txt", "hello", time.Unix(1000, 0))
	provider.Notify()

	require.Eventually(t, func() bool {
		return c.Manifest()["late.txt"] == md5Hello
	}, 5*time.Second, 10*time.Millisecond)
}

// stubSource signals once per value sent on trigger.
type stubSource struct {
	trigger chan struct{}

	mu      sync.Mutex
	stopped bool
}

func (s *stubSource) Run(ctx context.Context, onChange func([]string)) error {
	defer func() {
		s.mu.Lock()
		s.stopped = true
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.trigger:
			onChange([]string{"x"})
		}
	}
}

func (s *stubSource) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func TestSourceDrivesRescansUntilStopped(t *testing.T) {
	t.Parallel()

	opts, root := setup(t)
	src := &stubSource{trigger: make(chan struct{})}

	c, err := monitor.New(opts, monitor.WithSource(src))
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	assert.Empty(t, c.Manifest())

	writeFile(t, root, "a.txt", "hello", time.Unix(1000, 0))
	src.trigger <- struct{}{}

	require.Eventually(t, func() bool {
		return c.Manifest()["a.txt"] == md5Hello
	}, 5*time.Second, 10*time.Millisecond)

	c.Stop()
	assert.True(t, src.isStopped())
}

func TestRescanAfterStopDoesNothing(t *testing.T) {
	t.Parallel()

	opts, root := setup(t)
	writeFile(t, root, "a.txt", "hello", time.Unix(1000, 0))

	c := start(t, opts)
	c.Stop()

	writeFile(t, root, "b.txt", "world", time.Unix(2000, 0))
	calls := c.Engine().Calls()

	report := c.Rescan()
	assert.Equal(t, []string{"a.txt"}, report.Created, "last report is returned unchanged")
	assert.Equal(t, calls, c.Engine().Calls())
	assert.Equal(t, "a.txt:"+md5Hello, readManifest(t, opts))
}

func TestRun_ReturnsOnCancel(t *testing.T) {
	t.Parallel()

	opts, _ := setup(t)
	c, err := monitor.New(opts, monitor.WithSource(&stubSource{}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPassesFanOut(t *testing.T) {
	t.Parallel()

	opts, root := setup(t)
	writeFile(t, root, "a.txt", "hello", time.Unix(1000, 0))

	b := broadcaster.New(10)
	defer b.Close()
	sub := b.Subscribe("", nil)

	hist, err := history.New(t.TempDir())
	require.NoError(t, err)
	m := metrics.New()

	c := start(t, opts, monitor.WithBroadcaster(b), monitor.WithHistory(hist), monitor.WithMetrics(m))

	select {
	case ev := <-sub.Events:
		assert.Equal(t, broadcaster.EventCreated, ev.Type)
		assert.Equal(t, "a.txt", ev.Path)
		assert.Equal(t, md5Hello, ev.Checksum)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}

	// An unchanged pass is not recorded.
	c.Rescan()

	records, err := hist.List(0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, c.ManifestPath(), records[0].Manifest)
	assert.Equal(t, 1, records[0].Summary.Created)

	count, err := testutil.GatherAndCount(m.Registry(), "filemon_passes_total", "filemon_manifest_writes_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "changed + unchanged passes and one write")
	assert.Equal(t, float64(c.Engine().Calls()), digestCount(t, m))
}

func digestCount(t *testing.T, m *metrics.Metrics) float64 {
	t.Helper()

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	var total float64
	for _, f := range families {
		if f.GetName() != "filemon_digests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func TestStateStoreDetectsOfflineEdits(t *testing.T) {
	t.Parallel()

	opts, root := setup(t)
	writeFile(t, root, "a.txt", "hello", time.Unix(1000, 0))

	state, err := store.OpenInMemory()
	require.NoError(t, err)
	defer state.Close()

	first, err := monitor.New(opts, monitor.WithStateStore(state))
	require.NoError(t, err)
	require.NoError(t, first.Start(context.Background()))
	first.Stop()

	// Edited while nothing was watching.
	writeFile(t, root, "a.txt", "world", time.Unix(2000, 0))

	second := start(t, opts, monitor.WithStateStore(state))
	assert.Equal(t, []string{"a.txt"}, second.LastReport().Updated)
	assert.Equal(t, "a.txt:"+md5World, readManifest(t, opts))
}

func TestWithoutStateStoreOfflineEditsAreMissed(t *testing.T) {
	t.Parallel()

	opts, root := setup(t)
	writeFile(t, root, "a.txt", "hello", time.Unix(1000, 0))

	first := start(t, opts)
	first.Stop()

	writeFile(t, root, "a.txt", "world", time.Unix(2000, 0))

	second := start(t, opts)
	assert.Empty(t, second.LastReport().Updated)
	assert.Equal(t, md5Hello, second.Manifest()["a.txt"])
}
