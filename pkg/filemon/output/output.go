// Package output renders manifests, pass reports and verification results
// in the formats offered by the filemon CLI (pretty, plain, paths, json,
// jsonl, yaml).
//
// The package uses a registry so commands select a formatter by name:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, result); err != nil {
//	    return err
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/filemon/pkg/filemon/cache"
	"github.com/jamesainslie/filemon/pkg/filemon/reconcile"
)

// Status describes a file row.
type Status string

// Row statuses. Tracked rows carry no status.
const (
	StatusTracked  Status = ""
	StatusCreated  Status = "created"
	StatusUpdated  Status = "updated"
	StatusDeleted  Status = "deleted"
	StatusOK       Status = "ok"
	StatusMismatch Status = "mismatch"
	StatusMissing  Status = "missing"
	StatusPending  Status = "pending"
)

// FileInfo is one row of output.
type FileInfo struct {
	// Path is relative to the watched folder, with forward slashes.
	Path     string    `json:"path" yaml:"path"`
	Checksum string    `json:"checksum" yaml:"checksum"`
	ModTime  time.Time `json:"mod_time" yaml:"mod_time"`

	// Size is filled in by callers that stat the file; zero otherwise.
	Size int64 `json:"size" yaml:"size"`

	Status Status `json:"status,omitempty" yaml:"status,omitempty"`

	// Actual is the checksum found on disk when Status is StatusMismatch.
	Actual string `json:"actual,omitempty" yaml:"actual,omitempty"`
}

// PassStats summarizes a reconciliation pass.
type PassStats struct {
	Created        int           `json:"created" yaml:"created"`
	Updated        int           `json:"updated" yaml:"updated"`
	Touched        int           `json:"touched" yaml:"touched"`
	Deleted        int           `json:"deleted" yaml:"deleted"`
	Digests        int           `json:"digests" yaml:"digests"`
	DigestFailures int           `json:"digest_failures" yaml:"digest_failures"`
	Duration       time.Duration `json:"duration" yaml:"duration"`
	Skipped        bool          `json:"skipped" yaml:"skipped"`
}

// Result contains the complete output data for formatting.
type Result struct {
	// Source is the watched folder.
	Source string `json:"source" yaml:"source"`

	// Manifest is the manifest file location.
	Manifest string `json:"manifest" yaml:"manifest"`

	// Files is sorted by path.
	Files []FileInfo `json:"files" yaml:"files"`

	// Stats is set when the result describes a pass.
	Stats *PassStats `json:"stats,omitempty" yaml:"stats,omitempty"`

	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// FromEntries builds a Result listing entries.
func FromEntries(source, manifest string, entries []cache.FileEntry) *Result {
	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		files = append(files, FileInfo{
			Path:     e.Path,
			Checksum: e.Sum(),
			ModTime:  e.LastModified,
		})
	}
	return &Result{Source: source, Manifest: manifest, Files: files}
}

// WithReport marks the rows touched by report and adds rows for deleted
// paths.
func (r *Result) WithReport(report reconcile.Report) *Result {
	r.Stats = &PassStats{
		Created:        len(report.Created),
		Updated:        len(report.Updated),
		Touched:        len(report.Touched),
		Deleted:        len(report.Deleted),
		Digests:        report.Digests,
		DigestFailures: report.DigestFailures,
		Duration:       report.Duration,
		Skipped:        report.Skipped,
	}

	status := make(map[string]Status, report.Changes())
	for _, p := range report.Created {
		status[p] = StatusCreated
	}
	for _, p := range report.Updated {
		status[p] = StatusUpdated
	}
	for i := range r.Files {
		if s, ok := status[r.Files[i].Path]; ok {
			r.Files[i].Status = s
		}
	}
	for _, p := range report.Deleted {
		r.Files = append(r.Files, FileInfo{Path: p, Status: StatusDeleted})
	}

	sort.SliceStable(r.Files, func(i, j int) bool { return r.Files[i].Path < r.Files[j].Path })
	return r
}

// Count returns the number of rows with status s.
func (r *Result) Count(s Status) int {
	n := 0
	for _, f := range r.Files {
		if f.Status == s {
			n++
		}
	}
	return n
}

// TotalSize returns the sum of all file sizes in the result.
func (r *Result) TotalSize() int64 {
	var total int64
	for _, f := range r.Files {
		total += f.Size
	}
	return total
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	Format(w *bytes.Buffer, r *Result) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry, replacing any
// formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}
