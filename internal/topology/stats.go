package topology

import (
	"sort"

	"sbahn-canon/internal/timetable"
)

// Aggregate summarizes the stops of one station in one direction. Missing
// arrival delays count as on time.
type Aggregate struct {
	StopCount      int     `json:"stop_count"`
	AvgDelay       float64 `json:"avg_delay"`
	Punctuality    float64 `json:"punctuality"` // fraction of stops with delay <= 0
	MaxDelay       int     `json:"max_delay"`
	CancelledTrips int     `json:"cancelled_trips"`
}

type StationStat struct {
	StationID   string    `json:"station_id"`
	StationName string    `json:"station_name,omitempty"`
	Total       Aggregate `json:"total"`
	Forward     Aggregate `json:"forward"`
	Reverse     Aggregate `json:"reverse"`
}

type accumulator struct {
	delays    []int
	cancelled map[string]struct{}
}

func (a *accumulator) add(r *timetable.CanonicalRecord) {
	a.delays = append(a.delays, r.ArrivalDelayOrZero())
	if r.Cancelled() {
		if a.cancelled == nil {
			a.cancelled = make(map[string]struct{})
		}
		a.cancelled[r.TripID] = struct{}{}
	}
}

func (a *accumulator) aggregate() Aggregate {
	agg := Aggregate{StopCount: len(a.delays), CancelledTrips: len(a.cancelled)}
	if len(a.delays) == 0 {
		return agg
	}
	sum, onTime := 0, 0
	agg.MaxDelay = a.delays[0]
	for _, d := range a.delays {
		sum += d
		if d <= 0 {
			onTime++
		}
		if d > agg.MaxDelay {
			agg.MaxDelay = d
		}
	}
	agg.AvgDelay = float64(sum) / float64(len(a.delays))
	agg.Punctuality = float64(onTime) / float64(len(a.delays))
	return agg
}

// combine weights each direction by its stop count.
func combine(fwd, rev Aggregate) Aggregate {
	total := Aggregate{
		StopCount:      fwd.StopCount + rev.StopCount,
		CancelledTrips: fwd.CancelledTrips + rev.CancelledTrips,
	}
	if total.StopCount == 0 {
		return total
	}
	n := float64(total.StopCount)
	total.AvgDelay = (fwd.AvgDelay*float64(fwd.StopCount) + rev.AvgDelay*float64(rev.StopCount)) / n
	total.Punctuality = (fwd.Punctuality*float64(fwd.StopCount) + rev.Punctuality*float64(rev.StopCount)) / n
	// an empty direction contributes no max, not a zero
	switch {
	case fwd.StopCount == 0:
		total.MaxDelay = rev.MaxDelay
	case rev.StopCount == 0:
		total.MaxDelay = fwd.MaxDelay
	default:
		total.MaxDelay = max(fwd.MaxDelay, rev.MaxDelay)
	}
	return total
}

// StationStats returns per-station directional statistics for a line,
// canonical order first. A line without trips yields nil.
func StationStats(records []timetable.CanonicalRecord, line string) []StationStat {
	trips := lineTrips(records, line)
	ref := referenceTrip(trips)
	if ref == nil {
		return nil
	}
	order := canonicalOrder(ref)
	dirs := classify(trips, order)

	type pair struct{ fwd, rev accumulator }
	acc := make(map[string]*pair)
	names := make(map[string]string)
	var seenOrder []stop
	for _, t := range trips {
		for _, s := range t.stops {
			p, ok := acc[s.station]
			if !ok {
				p = &pair{}
				acc[s.station] = p
				seenOrder = append(seenOrder, s)
			}
			if names[s.station] == "" {
				names[s.station] = s.rec.StationName
			}
			if dirs[t.id] == Reverse {
				p.rev.add(s.rec)
			} else {
				p.fwd.add(s.rec)
			}
		}
	}

	sort.SliceStable(seenOrder, func(i, j int) bool { return seenOrder[i].seq < seenOrder[j].seq })
	ids := make([]string, 0, len(acc))
	placed := make(map[string]bool, len(acc))
	for _, id := range order {
		ids = append(ids, id)
		placed[id] = true
	}
	for _, s := range seenOrder {
		if !placed[s.station] {
			ids = append(ids, s.station)
			placed[s.station] = true
		}
	}

	out := make([]StationStat, 0, len(ids))
	for _, id := range ids {
		p := acc[id]
		fwd, rev := p.fwd.aggregate(), p.rev.aggregate()
		out = append(out, StationStat{
			StationID:   id,
			StationName: names[id],
			Total:       combine(fwd, rev),
			Forward:     fwd,
			Reverse:     rev,
		})
	}
	return out
}
