package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/filemon/pkg/filemon/reconcile"
)

func TestObservePass(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObservePass(reconcile.Report{
		Created:  []string{"a", "b"},
		Deleted:  []string{"c"},
		Duration: 10 * time.Millisecond,
	}, 5)
	m.ObservePass(reconcile.Report{Touched: []string{"a"}}, 5)
	m.ObservePass(reconcile.Report{Skipped: true}, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues("changed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues("unchanged")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues("skipped")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.changes.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.changes.WithLabelValues("touched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.changes.WithLabelValues("deleted")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.trackedFiles))
}

func TestObserveDigestAndWrite(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveDigest(true)
	m.ObserveDigest(true)
	m.ObserveDigest(false)
	m.ObserveWrite(nil)
	m.ObserveWrite(errors.New("disk full"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.digests.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.digests.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.manifestWrites.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.manifestWrites.WithLabelValues("error")))
}

func TestIndependentRegistries(t *testing.T) {
	t.Parallel()

	a, b := New(), New()
	a.ObserveDigest(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(a.digests.WithLabelValues("ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.digests.WithLabelValues("ok")))
}

func TestNilMetrics(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePass(reconcile.Report{}, 1)
		m.ObserveDigest(true)
		m.ObserveWrite(nil)
		assert.Nil(t, m.WithRuntimeCollectors())
		assert.Nil(t, m.Registry())
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestHandler(t *testing.T) {
	t.Parallel()

	m := New().WithRuntimeCollectors()
	m.ObserveWrite(nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `filemon_manifest_writes_total{status="ok"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
