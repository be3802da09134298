package wal

import (
	"errors"
	"fmt"
	"os"
)

// DefaultRetainCount is how many sealed segments older than the latest
// checkpoint survive compaction.
const DefaultRetainCount = 1

// Compactor removes segments already covered by a snapshot.
type Compactor struct {
	dir         string
	retainCount int
}

// CompactorOption configures the Compactor.
type CompactorOption func(*Compactor)

// WithRetainCount keeps count covered segments around. Zero is allowed.
func WithRetainCount(count int) CompactorOption {
	return func(c *Compactor) {
		if count >= 0 {
			c.retainCount = count
		}
	}
}

// NewCompactor creates a compactor for the segments in dir.
func NewCompactor(dir string, opts ...CompactorOption) *Compactor {
	c := &Compactor{dir: dir, retainCount: DefaultRetainCount}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compact deletes segments whose ID is below the segment of checkpoint,
// sparing the newest retainCount of them. It returns how many were removed.
func (c *Compactor) Compact(checkpoint uint64) (int, error) {
	segs, err := listSegments(c.dir)
	if err != nil {
		return 0, err
	}

	cut := checkpoint >> 32
	var covered []segmentInfo
	for _, s := range segs {
		if s.id < cut {
			covered = append(covered, s)
		}
	}
	if len(covered) <= c.retainCount {
		return 0, nil
	}
	covered = covered[:len(covered)-c.retainCount]

	var errs []error
	removed := 0
	for _, s := range covered {
		if err := os.Remove(s.path); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("wal: failed to delete %d segments: %w", len(errs), errors.Join(errs...))
	}
	return removed, nil
}

// TotalSize returns the combined size of all segment files in bytes.
func (c *Compactor) TotalSize() (int64, error) {
	segs, err := listSegments(c.dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, s := range segs {
		if st, err := os.Stat(s.path); err == nil {
			total += st.Size()
		}
	}
	return total, nil
}

// FileCount returns the number of segment files.
func (c *Compactor) FileCount() (int, error) {
	segs, err := listSegments(c.dir)
	return len(segs), err
}
