package store

import (
	"context"
	"sync"

	"sbahn-canon/internal/timetable"
)

// Memory is an in-process Store. Readers share the backing slice: merges
// append to it, and a restamp swaps in a fresh copy, so a snapshot slice is
// never written after it was handed out.
type Memory struct {
	mu      sync.RWMutex
	rows    []timetable.CanonicalRecord
	keys    map[uint64][]string // fingerprint -> full row keys
	trips   map[string]tripState
	version int64
}

func NewMemory() *Memory {
	return &Memory{keys: make(map[uint64][]string), trips: make(map[string]tripState)}
}

func (m *Memory) Merge(ctx context.Context, records []timetable.CanonicalRecord, excluded ...string) (MergeResult, error) {
	if err := ctx.Err(); err != nil {
		return MergeResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	plan := planMerge(m.trips, records, excluded)
	res := MergeResult{Received: len(records), Dropped: plan.dropped, Conflicts: plan.conflicts}

	if len(plan.upgrades) > 0 {
		rows := make([]timetable.CanonicalRecord, len(m.rows))
		copy(rows, m.rows)
		for i := range rows {
			if line, ok := plan.upgrades[rows[i].TripID]; ok && rows[i].Line == timetable.Unknown {
				rows[i].Line = line
				res.Restamped++
			}
		}
		m.rows = rows
	}
	for id, st := range plan.trips {
		m.trips[id] = st
	}

	for _, r := range plan.records {
		key := r.Key()
		fp := r.Fingerprint()
		if containsKey(m.keys[fp], key) {
			continue
		}
		m.keys[fp] = append(m.keys[fp], key)
		m.rows = append(m.rows, r)
		res.Added++
	}
	if res.Added > 0 || res.Restamped > 0 {
		m.version++
	}
	res.Rows = len(m.rows)
	res.Version = m.version
	return res, nil
}

func (m *Memory) Snapshot(ctx context.Context) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{Version: m.version, Records: m.rows[:len(m.rows):len(m.rows)]}, nil
}

func (m *Memory) Version(ctx context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.version, nil
}

func (m *Memory) Close() error { return nil }

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
