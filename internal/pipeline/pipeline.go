// Package pipeline turns one raw batch into canonical records and merges
// them into the store.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"sbahn-canon/internal/derive"
	"sbahn-canon/internal/normalize"
	"sbahn-canon/internal/resolve"
	"sbahn-canon/internal/store"
	"sbahn-canon/internal/timetable"
)

// Metrics is implemented by metrics.Collector.
type Metrics interface {
	BatchReceived()
	BatchEmpty()
	BatchFailed()
	BatchMerged(added, rows int, version int64, d time.Duration)
	Diagnostics(dropped, excluded, conflicts int)
	SetQueueDepth(n int)
}

type nopMetrics struct{}

func (nopMetrics) BatchReceived() {}
func (nopMetrics) BatchEmpty() {}
func (nopMetrics) BatchFailed() {}
func (nopMetrics) BatchMerged(int, int, int64, time.Duration) {}
func (nopMetrics) Diagnostics(int, int, int) {}
func (nopMetrics) SetQueueDepth(int) {}

type Pipeline struct {
	normalizer *normalize.Normalizer
	resolver   *resolve.Resolver
	store      store.Store
	metrics    Metrics
}

func New(loc *time.Location, catalog *timetable.Catalog, s store.Store, m Metrics) *Pipeline {
	if m == nil {
		m = nopMetrics{}
	}
	return &Pipeline{
		normalizer: normalize.New(loc, catalog),
		resolver:   resolve.New(catalog),
		store:      s,
		metrics:    m,
	}
}

// Report describes what happened to one batch.
type Report struct {
	BatchID   string
	Rows      int
	Dropped   int
	Excluded  int // trips
	Conflicts []resolve.Conflict
	Records   int
	Merge     store.MergeResult
}

// Ingest canonicalizes batch and merges it. A batch without any delay
// signal is not merged and yields an error wrapping timetable.ErrEmptyBatch.
func (p *Pipeline) Ingest(ctx context.Context, batch timetable.Batch) (Report, error) {
	start := time.Now()
	p.metrics.BatchReceived()
	rep := Report{BatchID: batch.ID, Rows: len(batch.Rows)}

	norm := p.normalizer.Normalize(batch.Rows)
	res := p.resolver.Resolve(norm.Events)
	records := derive.Derive(res.Events)

	rep.Dropped = norm.Dropped
	rep.Excluded = len(res.ExcludedTrips)
	rep.Conflicts = res.Conflicts
	rep.Records = len(records)
	p.metrics.Diagnostics(rep.Dropped, rep.Excluded, len(rep.Conflicts))
	if rep.Dropped > 0 || rep.Excluded > 0 || len(rep.Conflicts) > 0 {
		log.Printf("batch %s: dropped %d malformed rows, excluded %d trips (%d stops), %d line conflicts",
			batch.ID, rep.Dropped, rep.Excluded, res.ExcludedStops, len(rep.Conflicts))
	}

	if !derive.HasSignal(records) {
		p.metrics.BatchEmpty()
		if len(res.ExcludedTrips) > 0 {
			// the rows are not kept but the exclusion is
			if _, err := p.store.Merge(ctx, nil, res.ExcludedTrips...); err != nil {
				log.Printf("batch %s: record excluded trips: %v", batch.ID, err)
			}
		}
		return rep, fmt.Errorf("batch %s: %w", batch.ID, timetable.ErrEmptyBatch)
	}

	mr, err := p.store.Merge(ctx, records, res.ExcludedTrips...)
	if err != nil {
		p.metrics.BatchFailed()
		return rep, fmt.Errorf("merge batch %s: %w", batch.ID, err)
	}
	rep.Merge = mr
	if mr.Restamped > 0 || mr.Dropped > 0 || len(mr.Conflicts) > 0 {
		p.metrics.Diagnostics(0, 0, len(mr.Conflicts))
		log.Printf("batch %s: restamped %d stored rows, dropped %d rows of excluded trips, %d trips keep their stored line",
			batch.ID, mr.Restamped, mr.Dropped, len(mr.Conflicts))
	}
	p.metrics.BatchMerged(mr.Added, mr.Rows, mr.Version, time.Since(start))
	return rep, nil
}
