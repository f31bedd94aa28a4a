package store

import "sbahn-canon/internal/timetable"

// tripState is what the store already knows about a trip.
type tripState struct {
	Line     string
	Excluded bool
}

// mergePlan is the outcome of reconciling one batch with the stored trips.
type mergePlan struct {
	records   []timetable.CanonicalRecord // stamped with the store-wide line
	trips     map[string]tripState        // new or changed trip states
	upgrades  map[string]string           // trip -> line replacing stored Unknown rows
	dropped   int
	conflicts []string
}

// planMerge stamps every incoming record with its trip's store-wide line.
// known holds the stored state of the trips in the batch; it is not modified.
func planMerge(known map[string]tripState, records []timetable.CanonicalRecord, excluded []string) mergePlan {
	plan := mergePlan{
		trips:    make(map[string]tripState),
		upgrades: make(map[string]string),
	}
	state := func(trip string) (tripState, bool) {
		if st, ok := plan.trips[trip]; ok {
			return st, true
		}
		st, ok := known[trip]
		return st, ok
	}

	for _, trip := range excluded {
		if _, ok := state(trip); ok {
			// already admitted or already excluded; stored rows stay
			continue
		}
		plan.trips[trip] = tripState{Excluded: true}
	}

	final := make(map[string]string)
	plan.records = make([]timetable.CanonicalRecord, 0, len(records))
	for _, r := range records {
		line, ok := final[r.TripID]
		if !ok {
			line = r.Line
			if line == "" {
				line = timetable.Unknown
			}
			st, seen := state(r.TripID)
			switch {
			case !seen:
				plan.trips[r.TripID] = tripState{Line: line}
			case st.Excluded:
				line = ""
			case st.Line == timetable.Unknown && line != timetable.Unknown:
				plan.trips[r.TripID] = tripState{Line: line}
				plan.upgrades[r.TripID] = line
			case st.Line != timetable.Unknown:
				if line != timetable.Unknown && line != st.Line {
					plan.conflicts = append(plan.conflicts, r.TripID)
				}
				line = st.Line
			}
			final[r.TripID] = line
		}
		if line == "" {
			plan.dropped++
			continue
		}
		r.Line = line
		plan.records = append(plan.records, r)
	}
	return plan
}

// tripIDs lists the distinct trips of a batch, records first.
func tripIDs(records []timetable.CanonicalRecord, excluded []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		if !seen[r.TripID] {
			seen[r.TripID] = true
			out = append(out, r.TripID)
		}
	}
	for _, id := range excluded {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
