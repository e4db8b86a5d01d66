package reconcile

import "time"

// Report describes what one reconciliation pass did.
type Report struct {
	Started  time.Time
	Duration time.Duration

	// Created lists new files inserted into the cache.
	Created []string
	// Updated lists files whose checksum changed.
	Updated []string
	// Touched lists files whose timestamp moved but whose content did not.
	Touched []string
	// Deleted lists cache entries removed because their file is gone.
	Deleted []string

	// Digests counts checksum computations, DigestFailures the failed ones.
	Digests        int
	DigestFailures int

	// Skipped is true when the root was missing and nothing was reconciled.
	Skipped bool
}

// Dirty reports whether the pass mutated the tracked set of checksums.
func (r Report) Dirty() bool {
	return len(r.Created) > 0 || len(r.Updated) > 0 || len(r.Deleted) > 0
}

// Changes returns the number of dirtying changes.
func (r Report) Changes() int {
	return len(r.Created) + len(r.Updated) + len(r.Deleted)
}
