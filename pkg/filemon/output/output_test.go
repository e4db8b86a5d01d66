package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/filemon/pkg/filemon/cache"
	"github.com/jamesainslie/filemon/pkg/filemon/reconcile"
)

const (
	sumA = "0cc175b9c0f1b6a831c399e269772661"
	sumB = "92eb5ffee6ae2fec3ad71c777531578f"
)

func sampleResult() *Result {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []cache.FileEntry{
		cache.FileEntry{Path: "css/site.css", LastModified: t0}.WithChecksum(sumA),
		cache.FileEntry{Path: "js/app.js", LastModified: t0}.WithChecksum(sumB),
		{Path: "js/new.js", LastModified: t0},
	}
	return FromEntries("/srv/wwwroot", "/srv/wwwroot/monitor-stat.txt", entries)
}

func TestRegistry_Available(t *testing.T) {
	assert.Equal(t, []string{"json", "jsonl", "paths", "plain", "pretty", "yaml"}, Available())

	_, err := Get("xml")
	assert.Error(t, err)
}

func TestWithReport(t *testing.T) {
	r := sampleResult().WithReport(reconcile.Report{
		Created:  []string{"js/new.js"},
		Updated:  []string{"js/app.js"},
		Touched:  []string{"css/site.css"},
		Deleted:  []string{"a/old.js"},
		Digests:  3,
		Duration: 40 * time.Millisecond,
	})

	require.NotNil(t, r.Stats)
	assert.Equal(t, 1, r.Stats.Created)
	assert.Equal(t, 1, r.Stats.Touched)
	assert.Equal(t, 3, r.Stats.Digests)

	paths := make([]string, len(r.Files))
	for i, f := range r.Files {
		paths[i] = f.Path
	}
	assert.Equal(t, []string{"a/old.js", "css/site.css", "js/app.js", "js/new.js"}, paths)

	assert.Equal(t, StatusDeleted, r.Files[0].Status)
	assert.Equal(t, StatusTracked, r.Files[1].Status, "touched files are not flagged")
	assert.Equal(t, StatusUpdated, r.Files[2].Status)
	assert.Equal(t, StatusCreated, r.Files[3].Status)
	assert.Equal(t, 1, r.Count(StatusDeleted))
}

func TestPlainFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&PlainFormatter{}).Format(&buf, sampleResult()))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"STATUS", "CHECKSUM", "PATH"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"-", sumA, "css/site.css"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"-", "-", "js/new.js"}, strings.Fields(lines[3]))
}

func TestPathsFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&PathsFormatter{}).Format(&buf, sampleResult()))
	assert.Equal(t, "css/site.css\njs/app.js\njs/new.js\n", buf.String())
}

func TestJSONFormatter(t *testing.T) {
	r := sampleResult()
	r.Files[0].Size = 2048

	var buf bytes.Buffer
	require.NoError(t, (&JSONFormatter{}).Format(&buf, r))

	var doc struct {
		Source     string     `json:"source"`
		Files      []FileInfo `json:"files"`
		TotalFiles int        `json:"total_files"`
		TotalSize  int64      `json:"total_size"`
		Stats      *PassStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "/srv/wwwroot", doc.Source)
	assert.Equal(t, 3, doc.TotalFiles)
	assert.Equal(t, int64(2048), doc.TotalSize)
	assert.Nil(t, doc.Stats)
	assert.Equal(t, sumB, doc.Files[1].Checksum)
}

func TestJSONLFormatter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONLFormatter{}).Format(&buf, sampleResult()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var f FileInfo
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &f))
	assert.Equal(t, "js/new.js", f.Path)
	assert.Empty(t, f.Checksum)
}

func TestYAMLFormatter(t *testing.T) {
	r := sampleResult().WithReport(reconcile.Report{Created: []string{"js/new.js"}})

	var buf bytes.Buffer
	require.NoError(t, (&YAMLFormatter{}).Format(&buf, r))

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "/srv/wwwroot/monitor-stat.txt", doc["manifest"])
	assert.Equal(t, 3, doc["total_files"])

	stats, ok := doc["stats"].(map[string]any)
	require.True(t, ok, "stats should be a mapping")
	assert.Equal(t, 1, stats["created"])
}

func TestPrettyFormatter(t *testing.T) {
	now := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	r := sampleResult().WithReport(reconcile.Report{Updated: []string{"js/app.js"}, Digests: 1})
	r.Warnings = []string{"1 line could not be parsed"}

	var buf bytes.Buffer
	require.NoError(t, (&PrettyFormatter{Now: now}).Format(&buf, r))
	out := buf.String()

	assert.Contains(t, out, "/srv/wwwroot")
	assert.Contains(t, out, "css/site.css")
	assert.Contains(t, out, sumA)
	assert.Contains(t, out, "updated")
	assert.Contains(t, out, "3 hours ago")
	assert.Contains(t, out, "1 line could not be parsed")
}

func TestPrettyFormatter_Empty(t *testing.T) {
	var buf bytes.Buffer
	r := &Result{Source: "/srv", Stats: &PassStats{Skipped: true}}
	require.NoError(t, (&PrettyFormatter{}).Format(&buf, r))

	assert.Contains(t, buf.String(), "No tracked files")
	assert.Contains(t, buf.String(), "pass skipped")
}

func TestFormatDuration(t *testing.T) {
	tests := map[time.Duration]string{
		250 * time.Millisecond:      "250ms",
		1500 * time.Millisecond:     "1.5s",
		90 * time.Second:            "1m 30s",
		2*time.Hour + 5*time.Minute: "2h 5m",
	}
	for in, want := range tests {
		assert.Equal(t, want, formatDuration(in), "input %v", in)
	}
}
