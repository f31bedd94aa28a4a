package topology

import "sbahn-canon/internal/timetable"

// LineSummary describes a line's extent: how many trips, which stations and
// the most frequently served (start, end) pair.
type LineSummary struct {
	Line           string `json:"line"`
	Trips          int    `json:"trips"`
	Stops          int    `json:"stops"`
	Stations       int    `json:"stations"`
	ReferenceStops int    `json:"reference_stops"`
	StartStation   string `json:"start_station,omitempty"`
	EndStation     string `json:"end_station,omitempty"`
}

// Summaries covers every canonical line with at least one placed trip.
func Summaries(records []timetable.CanonicalRecord) []LineSummary {
	var out []LineSummary
	for _, line := range Lines(records) {
		if line == timetable.Unknown {
			continue
		}
		trips := lineTrips(records, line)
		ref := referenceTrip(trips)
		if ref == nil {
			continue
		}
		s := LineSummary{Line: line, Trips: len(trips), ReferenceStops: len(ref.stops)}
		stations := make(map[string]struct{})
		type endpoints struct{ start, end string }
		freq := make(map[endpoints]int)
		var best endpoints
		for _, t := range trips {
			s.Stops += len(t.stops)
			for _, st := range t.stops {
				stations[st.station] = struct{}{}
			}
			e := endpoints{t.stops[0].station, t.end().station}
			freq[e]++
			if freq[e] > freq[best] {
				best = e
			}
		}
		s.Stations = len(stations)
		s.StartStation, s.EndStation = best.start, best.end
		out = append(out, s)
	}
	return out
}
