package topology

import (
	"sort"
	"time"

	"sbahn-canon/internal/timetable"
)

// Direction of travel relative to a line's canonical station order.
type Direction int

const (
	Forward Direction = iota
	Reverse
)

func (d Direction) String() string {
	if d == Reverse {
		return "reverse"
	}
	return "forward"
}

type stop struct {
	station string
	planned time.Time
	seq     int // position in the store; secondary sort key
	rec     *timetable.CanonicalRecord
}

type trip struct {
	id       string
	firstSeq int
	stops    []stop
}

// end is the stop with the latest planned arrival.
func (t *trip) end() stop { return t.stops[len(t.stops)-1] }

// stopLess orders by planned arrival, falling back to store position when
// two stops share a timestamp.
func stopLess(a, b stop) bool {
	if !a.planned.Equal(b.planned) {
		return a.planned.Before(b.planned)
	}
	return a.seq < b.seq
}

// lineTrips groups the records of one line into trips ordered by first
// appearance in the store. Records without a planned arrival cannot be
// placed in a sequence and are skipped.
func lineTrips(records []timetable.CanonicalRecord, line string) []*trip {
	byID := make(map[string]*trip)
	var out []*trip
	for i := range records {
		r := &records[i]
		if r.Line != line || r.PlannedArrival == nil {
			continue
		}
		t, ok := byID[r.TripID]
		if !ok {
			t = &trip{id: r.TripID, firstSeq: i}
			byID[r.TripID] = t
			out = append(out, t)
		}
		t.stops = append(t.stops, stop{station: r.StationID, planned: *r.PlannedArrival, seq: i, rec: r})
	}
	for _, t := range out {
		sort.SliceStable(t.stops, func(a, b int) bool { return stopLess(t.stops[a], t.stops[b]) })
	}
	return out
}

// referenceTrip picks the trip with the most stops; the earliest trip in the
// store wins a tie.
func referenceTrip(trips []*trip) *trip {
	var ref *trip
	for _, t := range trips {
		if ref == nil || len(t.stops) > len(ref.stops) {
			ref = t
		}
	}
	return ref
}

// canonicalOrder is the distinct station sequence of the reference trip.
func canonicalOrder(ref *trip) []string {
	if ref == nil {
		return nil
	}
	seen := make(map[string]bool, len(ref.stops))
	order := make([]string, 0, len(ref.stops))
	for _, s := range ref.stops {
		if seen[s.station] {
			continue
		}
		seen[s.station] = true
		order = append(order, s.station)
	}
	return order
}

// classify assigns every trip a direction by where its terminal station sits
// in the canonical order: at or past the midpoint is forward. A terminal that
// is not in the order defaults to forward.
func classify(trips []*trip, order []string) map[string]Direction {
	index := make(map[string]int, len(order))
	for i, s := range order {
		index[s] = i
	}
	mid := len(order) / 2
	out := make(map[string]Direction, len(trips))
	for _, t := range trips {
		idx, ok := index[t.end().station]
		if !ok || idx >= mid {
			out[t.id] = Forward
		} else {
			out[t.id] = Reverse
		}
	}
	return out
}
