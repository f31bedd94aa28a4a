// Package resolve assigns one canonical line to every trip.
//
// A trip's stops may carry different raw guesses across snapshots
// (corrections, truncated codes, missing numbers). The first canonical guess
// observed for a trip wins and is stamped on every stop of that trip; a trip
// with no canonical guess resolves to timetable.Unknown. Trips that carry a
// denylisted guess on any stop are dropped altogether.
package resolve

import (
	"sbahn-canon/internal/timetable"
)

type Resolver struct {
	catalog *timetable.Catalog
}

func New(catalog *timetable.Catalog) *Resolver {
	if catalog == nil {
		catalog = timetable.DefaultCatalog()
	}
	return &Resolver{catalog: catalog}
}

// Conflict records a trip that carried more than one distinct canonical
// guess. It is diagnostic only; the first guess still wins.
type Conflict struct {
	TripID  string
	Chosen  string
	Guesses []string // canonical guesses in observation order
}

type Result struct {
	Events        []timetable.StopEvent
	ExcludedTrips []string
	ExcludedStops int
	Conflicts     []Conflict
}

// Lines maps trip id to resolved line.
func (r Result) Lines() map[string]string {
	out := make(map[string]string)
	for _, ev := range r.Events {
		out[ev.TripID] = ev.Line
	}
	return out
}

// Resolve keeps the input order of the surviving events.
func (r *Resolver) Resolve(events []timetable.StopEvent) Result {
	var res Result

	excluded := make(map[string]bool)
	for _, ev := range events {
		if r.catalog.Denied(ev.RawLineGuess) && !excluded[ev.TripID] {
			excluded[ev.TripID] = true
			res.ExcludedTrips = append(res.ExcludedTrips, ev.TripID)
		}
	}

	// first occurrence of each (trip, guess) pair, in observation order
	type pair struct{ trip, guess string }
	seen := make(map[pair]bool)
	guesses := make(map[string][]string)
	var order []string
	for _, ev := range events {
		if excluded[ev.TripID] {
			continue
		}
		if _, ok := guesses[ev.TripID]; !ok {
			order = append(order, ev.TripID)
			guesses[ev.TripID] = nil
		}
		g := r.catalog.Canonicalize(ev.RawLineGuess)
		p := pair{ev.TripID, g}
		if seen[p] {
			continue
		}
		seen[p] = true
		guesses[ev.TripID] = append(guesses[ev.TripID], g)
	}

	lines := make(map[string]string, len(guesses))
	for _, trip := range order {
		line := timetable.Unknown
		var canonical []string
		for _, g := range guesses[trip] {
			if g == timetable.Unknown {
				continue
			}
			if line == timetable.Unknown {
				line = g
			}
			canonical = append(canonical, g)
		}
		lines[trip] = line
		if len(canonical) > 1 {
			res.Conflicts = append(res.Conflicts, Conflict{TripID: trip, Chosen: line, Guesses: canonical})
		}
	}

	res.Events = make([]timetable.StopEvent, 0, len(events))
	for _, ev := range events {
		if excluded[ev.TripID] {
			res.ExcludedStops++
			continue
		}
		ev.Line = lines[ev.TripID]
		res.Events = append(res.Events, ev)
	}
	return res
}
