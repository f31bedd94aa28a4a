// Package query serves read-only projections of the canonical store. Results
// are memoized per store version, so a cached view is dropped as soon as a
// merge adds rows.
package query

import (
	"context"
	"fmt"
	"log"
	"time"

	cache "github.com/patrickmn/go-cache"

	"sbahn-canon/internal/store"
	"sbahn-canon/internal/timetable"
	"sbahn-canon/internal/topology"
)

type Service struct {
	store store.Store
	opts  topology.Options
	memo  *cache.Cache
}

func NewService(s store.Store, opts topology.Options) *Service {
	return &Service{
		store: s,
		opts:  opts,
		memo:  cache.New(10*time.Minute, 10*time.Minute),
	}
}

// Filter selects canonical records; empty fields match everything.
type Filter struct {
	Line      string
	TripID    string
	StationID string
	Status    string
	Limit     int
}

func (f Filter) match(r timetable.CanonicalRecord) bool {
	return (f.Line == "" || r.Line == f.Line) &&
		(f.TripID == "" || r.TripID == f.TripID) &&
		(f.StationID == "" || r.StationID == f.StationID) &&
		(f.Status == "" || r.Status == f.Status)
}

// memoize runs compute against the current snapshot unless a result for the
// current store version is cached.
func (s *Service) memoize(ctx context.Context, name string, compute func([]timetable.CanonicalRecord) any) (any, error) {
	v, err := s.store.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("store version: %w", err)
	}
	if hit, ok := s.memo.Get(memoKey(v, name)); ok {
		return hit, nil
	}
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("store snapshot: %w", err)
	}
	out := compute(snap.Records)
	s.memo.SetDefault(memoKey(snap.Version, name), out)
	return out, nil
}

func memoKey(version int64, name string) string { return fmt.Sprintf("%d|%s", version, name) }

// Graph returns the graph of one line. A line without trips yields an
// empty graph.
func (s *Service) Graph(ctx context.Context, line string) (topology.Graph, error) {
	v, err := s.memoize(ctx, "graph|"+line, func(recs []timetable.CanonicalRecord) any {
		g, ok := topology.Build(recs, line, s.opts)
		if !ok {
			log.Printf("line %s: no reference trip, empty graph", line)
			return topology.Graph{Nodes: []topology.Node{}, Edges: []topology.Edge{}}
		}
		return g.Graph
	})
	if err != nil {
		return topology.Graph{}, err
	}
	return v.(topology.Graph), nil
}

func (s *Service) Network(ctx context.Context) (topology.Graph, error) {
	v, err := s.memoize(ctx, "network", func(recs []timetable.CanonicalRecord) any {
		return topology.Network(recs, s.opts)
	})
	if err != nil {
		return topology.Graph{}, err
	}
	return v.(topology.Graph), nil
}

func (s *Service) Stations(ctx context.Context, line string) ([]topology.StationStat, error) {
	v, err := s.memoize(ctx, "stations|"+line, func(recs []timetable.CanonicalRecord) any {
		stats := topology.StationStats(recs, line)
		if stats == nil {
			stats = []topology.StationStat{}
		}
		return stats
	})
	if err != nil {
		return nil, err
	}
	return v.([]topology.StationStat), nil
}

func (s *Service) Lines(ctx context.Context) ([]topology.LineSummary, error) {
	v, err := s.memoize(ctx, "lines", func(recs []timetable.CanonicalRecord) any {
		sums := topology.Summaries(recs)
		if sums == nil {
			sums = []topology.LineSummary{}
		}
		return sums
	})
	if err != nil {
		return nil, err
	}
	return v.([]topology.LineSummary), nil
}

// Records is not memoized; filters are arbitrary.
func (s *Service) Records(ctx context.Context, f Filter) ([]timetable.CanonicalRecord, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("store snapshot: %w", err)
	}
	out := []timetable.CanonicalRecord{}
	for _, r := range snap.Records {
		if !f.match(r) {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *Service) Version(ctx context.Context) (int64, error) {
	return s.store.Version(ctx)
}
