package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/filemon/pkg/filemon/reconcile"
)

// ErrNotFound is returned by Get when no record matches.
var ErrNotFound = errors.New("history record not found")

// Log stores records as one JSON file each in a directory.
type Log struct {
	dir string
	mu  sync.Mutex
}

// New creates a Log in dir. The directory is created on first write.
func New(dir string) (*Log, error) {
	if dir == "" {
		return nil, errors.New("history directory cannot be empty")
	}
	return &Log{dir: dir}, nil
}

// Dir returns the directory holding the records.
func (l *Log) Dir() string {
	return l.dir
}

// Append persists a record for a pass. manifest maps tracked paths to their
// checksums after the pass.
func (l *Log) Append(manifestPath string, report reconcile.Report, manifest map[string]string) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec := &Record{
		ID:        generateID(),
		Timestamp: report.Started.UTC(),
		Manifest:  manifestPath,
		Changes:   changesFrom(report, manifest),
		Summary: Summary{
			Created:  len(report.Created),
			Updated:  len(report.Updated),
			Deleted:  len(report.Deleted),
			Entries:  len(manifest),
			Digests:  report.Digests,
			Duration: report.Duration,
		},
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	if err := l.writeRecord(rec); err != nil {
		return nil, fmt.Errorf("failed to write history record: %w", err)
	}
	return rec, nil
}

func changesFrom(report reconcile.Report, manifest map[string]string) []Change {
	changes := make([]Change, 0, report.Changes())
	for _, p := range report.Created {
		changes = append(changes, Change{Path: p, Type: Created, Checksum: manifest[p]})
	}
	for _, p := range report.Updated {
		changes = append(changes, Change{Path: p, Type: Updated, Checksum: manifest[p]})
	}
	for _, p := range report.Deleted {
		changes = append(changes, Change{Path: p, Type: Deleted})
	}
	return changes
}

// writeRecord writes a record atomically using a temp file and rename.
func (l *Log) writeRecord(rec *Record) error {
	filePath := filepath.Join(l.dir, rec.ID+".json")

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// List returns records newest first. A limit of 0 or less returns all.
func (l *Log) List(limit int) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.readAll()
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp.After(records[j].Timestamp)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Get returns the record with the given ID or unique ID prefix.
func (l *Log) Get(id string) (*Record, error) {
	if id == "" {
		return nil, errors.New("record ID cannot be empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.readAll()
	if err != nil {
		return nil, err
	}

	var match *Record
	for i := range records {
		switch {
		case records[i].ID == id:
			return &records[i], nil
		case strings.HasPrefix(records[i].ID, id):
			if match != nil {
				return nil, fmt.Errorf("ambiguous record ID %q", id)
			}
			match = &records[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return match, nil
}

// readAll parses every record file. Unreadable files are skipped.
func (l *Log) readAll() ([]Record, error) {
	files, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	records := []Record{}
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(l.dir, f.Name()))
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Cleanup removes records older than retentionDays and returns how many were
// removed. A non-positive retention keeps everything.
func (l *Log) Cleanup(retentionDays int) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	records, err := l.readAll()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, rec := range records {
		if !rec.Timestamp.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(l.dir, rec.ID+".json")); err != nil {
			continue
		}
		removed++
	}
	return removed, nil
}

// generateID creates an ID like "pass-2024-06-15T10-30-00-1b4e28ba".
func generateID() string {
	ts := time.Now().UTC().Format("2006-01-02T15-04-05")
	return fmt.Sprintf("pass-%s-%s", ts, strings.SplitN(uuid.NewString(), "-", 2)[0])
}
