// Package normalize turns raw planned/change pairs into typed StopEvents.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"sbahn-canon/internal/timetable"
)

// Layout is the timetable API timestamp format (yymmddHHMM).
const Layout = "0601021504"

var floatArtifact = regexp.MustCompile(`\.0$`)

// Normalizer coerces RawStops. The zero value is not usable; see New.
type Normalizer struct {
	loc     *time.Location
	catalog *timetable.Catalog
}

func New(loc *time.Location, catalog *timetable.Catalog) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	if catalog == nil {
		catalog = timetable.DefaultCatalog()
	}
	return &Normalizer{loc: loc, catalog: catalog}
}

// Result holds the normalized events in input order plus the rows that
// could not be coerced.
type Result struct {
	Events  []timetable.StopEvent
	Dropped int
	Errors  []error
}

// Normalize never fails as a whole: a malformed row is dropped and counted.
func (n *Normalizer) Normalize(rows []timetable.RawStop) Result {
	res := Result{Events: make([]timetable.StopEvent, 0, len(rows))}
	for i, r := range rows {
		ev, err := n.normalizeRow(r)
		if err != nil {
			res.Dropped++
			res.Errors = append(res.Errors, fmt.Errorf("row %d: %w", i, err))
			continue
		}
		res.Events = append(res.Events, ev)
	}
	return res
}

func (n *Normalizer) normalizeRow(r timetable.RawStop) (timetable.StopEvent, error) {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		return timetable.StopEvent{}, fmt.Errorf("%w: empty event id", timetable.ErrMalformedRow)
	}
	tripID, stopIndex, ok := SplitEventID(id)
	if !ok {
		return timetable.StopEvent{}, fmt.Errorf("%w: event id %q has no trip part", timetable.ErrMalformedRow, id)
	}
	station := StripArtifact(r.StationID)
	if station == "" {
		return timetable.StopEvent{}, fmt.Errorf("%w: event %q has no station", timetable.ErrMalformedRow, id)
	}

	ev := timetable.StopEvent{
		TripID:           tripID,
		StopIndex:        stopIndex,
		StationID:        station,
		StationName:      cleanString(r.StationName),
		TrainNumber:      StripArtifact(r.TrainNumber),
		RawLineGuess:     LineGuess(r.Category, r.Train),
		PlannedArrival:   n.ParseTime(r.PlannedArrival),
		PlannedDeparture: n.ParseTime(r.PlannedDeparture),
		ChangedArrival:   n.ParseTime(r.ChangedArrival),
		ChangedDeparture: n.ParseTime(r.ChangedDeparture),
		PlatformPlanned:  StripArtifact(r.PlannedPlatform),
		PlatformChanged:  StripArtifact(r.ChangedPlatformArrival),
		PlannedPath:      cleanString(r.PlannedPath),
		ArrivalPath:      cleanString(r.ArrivalPath),
		DeparturePath:    cleanString(r.DeparturePath),
		ArrivalStatus:    cleanString(r.ArrivalStatus),
		DepartureStatus:  cleanString(r.DepartureStatus),
		MessageStatus:    cleanString(r.MessageStatus),
		Priority:         parseInt(r.Priority),
		Info:             cleanString(r.Info),
	}
	if ev.StationName == "" {
		if name, ok := n.catalog.StationName(station); ok {
			ev.StationName = name
		}
	}
	return ev, nil
}

// ParseTime parses a yymmddHHMM value in the normalizer's location. Absent
// or unparseable input yields nil.
func (n *Normalizer) ParseTime(s string) *time.Time {
	s = StripArtifact(s)
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation(Layout, s, n.loc)
	if err != nil {
		return nil
	}
	return &t
}

// SplitEventID splits "<trip>-<yymmddHHMM>-<idx>" into the trip part
// "<trip>-<yymmddHHMM>" and the trailing stop index. Leading dashes belong
// to the trip part (the upstream ids are often negative numbers).
func SplitEventID(id string) (trip, index string, ok bool) {
	i := strings.LastIndex(id, "-")
	if i <= 0 {
		return "", "", false
	}
	trip = id[:i]
	if strings.Trim(trip, "-") == "" {
		return "", "", false
	}
	return trip, id[i+1:], true
}

// LineGuess joins train category and line number, e.g. "S" + "1" -> "S1".
func LineGuess(category, train string) string {
	return StripArtifact(StripArtifact(category) + StripArtifact(train))
}

// StripArtifact removes the trailing ".0" left behind by numeric coercion
// and maps null markers to the empty string.
func StripArtifact(s string) string {
	s = cleanString(s)
	return floatArtifact.ReplaceAllString(s, "")
}

func cleanString(s string) string {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "nan", "none", "null", "<na>", "nat":
		return ""
	}
	return s
}

func parseInt(s string) *int {
	s = StripArtifact(s)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &v
}
