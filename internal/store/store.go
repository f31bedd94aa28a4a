// Package store holds the canonical trip store: a growing, deduplicated,
// append-ordered table of CanonicalRecords.
//
// Merge is the only writer. It appends the batch and collapses whole-row
// duplicates atomically, so merging the same batch twice leaves the store
// exactly as merging it once. Existing rows are never reordered or deleted.
//
// Merge also keeps one line per trip across batches. The first canonical line
// stored for a trip wins; rows stored as Unknown are restamped when a later
// batch brings the trip's first canonical line; a trip first seen with a
// denylisted guess stays excluded.
package store

import (
	"context"

	"sbahn-canon/internal/timetable"
)

type Store interface {
	// Merge appends records not already present. excluded lists trips the
	// batch dropped for a denylisted guess. Safe for concurrent use;
	// implementations serialize writers.
	Merge(ctx context.Context, records []timetable.CanonicalRecord, excluded ...string) (MergeResult, error)
	// Snapshot returns every row in append order with the version it was
	// read at. An empty store yields an empty snapshot, not an error.
	Snapshot(ctx context.Context) (Snapshot, error)
	// Version increases with every merge that changes the stored rows.
	Version(ctx context.Context) (int64, error)
	Close() error
}

type MergeResult struct {
	Received  int
	Added     int
	Rows      int
	Version   int64
	Restamped int      // stored rows moved from Unknown to a canonical line
	Dropped   int      // incoming rows of trips the store holds as excluded
	Conflicts []string // trips whose incoming canonical line lost to the stored one
}

type Snapshot struct {
	Version int64
	Records []timetable.CanonicalRecord
}
