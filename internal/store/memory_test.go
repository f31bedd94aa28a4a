package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sbahn-canon/internal/timetable"
)

func record(trip, station string, delay int) timetable.CanonicalRecord {
	pa := time.Date(2024, 12, 2, 8, 0, 0, 0, time.UTC)
	return timetable.CanonicalRecord{
		StopEvent: timetable.StopEvent{
			TripID:         trip,
			StationID:      station,
			Line:           "S1",
			PlannedArrival: &pa,
		},
		ArrivalDelay:   &delay,
		ArrivalWeekday: "Monday",
	}
}

func testBatch() []timetable.CanonicalRecord {
	return []timetable.CanonicalRecord{
		record("t1", "A", 0),
		record("t1", "B", 2),
		record("t1", "B", 2), // in-batch duplicate
		record("t2", "A", 1),
	}
}

func TestMemoryMergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	first, err := m.Merge(ctx, testBatch())
	require.NoError(t, err)
	assert.Equal(t, MergeResult{Received: 4, Added: 3, Rows: 3, Version: 1}, first)
	once, err := m.Snapshot(ctx)
	require.NoError(t, err)

	second, err := m.Merge(ctx, testBatch())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Added)
	assert.Equal(t, 3, second.Rows)
	assert.Equal(t, int64(1), second.Version, "no-op merge must not bump the version")

	twice, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, once.Records, twice.Records)
}

func TestMemoryMergeKeepsOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, err := m.Merge(ctx, []timetable.CanonicalRecord{record("t1", "A", 0), record("t1", "B", 0)})
	require.NoError(t, err)
	before, err := m.Snapshot(ctx)
	require.NoError(t, err)

	_, err = m.Merge(ctx, []timetable.CanonicalRecord{record("t0", "Z", 0), record("t1", "A", 0)})
	require.NoError(t, err)
	after, err := m.Snapshot(ctx)
	require.NoError(t, err)

	require.Len(t, before.Records, 2)
	require.Len(t, after.Records, 3)
	assert.Equal(t, before.Records, after.Records[:2])
	assert.Equal(t, "Z", after.Records[2].StationID)
	assert.Equal(t, int64(2), after.Version)
}

func TestMemoryDistinguishesNullFromZero(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	withZero := record("t1", "A", 0)
	withNull := withZero
	withNull.ArrivalDelay = nil

	res, err := m.Merge(ctx, []timetable.CanonicalRecord{withZero, withNull})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Added)
}

func TestMemoryConcurrentMerges(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Merge(ctx, testBatch())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	snap, err := m.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snap.Records, 3)
	assert.Equal(t, int64(1), snap.Version)
}

func TestMemoryEmptySnapshot(t *testing.T) {
	snap, err := NewMemory().Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Records)
	assert.Zero(t, snap.Version)
}
