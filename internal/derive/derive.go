package derive

import (
	"math"
	"strings"
	"time"

	"sbahn-canon/internal/timetable"
)

// Derive turns resolved events into canonical records. Delays stay nil when
// either side of the planned/changed pair is missing.
func Derive(events []timetable.StopEvent) []timetable.CanonicalRecord {
	out := make([]timetable.CanonicalRecord, 0, len(events))
	for _, ev := range events {
		out = append(out, Record(ev))
	}
	return out
}

func Record(ev timetable.StopEvent) timetable.CanonicalRecord {
	r := timetable.CanonicalRecord{
		StopEvent:        ev,
		ArrivalDelay:     DelayMinutes(ev.PlannedArrival, ev.ChangedArrival),
		DepartureDelay:   DelayMinutes(ev.PlannedDeparture, ev.ChangedDeparture),
		ArrivalWeekday:   weekday(ev.PlannedArrival),
		DepartureWeekday: weekday(ev.PlannedDeparture),
	}
	if Cancelled(ev.ArrivalStatus) || Cancelled(ev.DepartureStatus) {
		r.Status = timetable.StatusCancelled
	}
	return r
}

// DelayMinutes returns round(changed - planned) in minutes.
func DelayMinutes(planned, changed *time.Time) *int {
	if planned == nil || changed == nil {
		return nil
	}
	m := int(math.Round(changed.Sub(*planned).Minutes()))
	return &m
}

// Cancelled reports whether a correction status code carries the
// cancellation marker.
func Cancelled(status string) bool {
	return strings.ContainsAny(status, "cC")
}

// HasSignal reports whether at least one delay in the batch is non-nil and
// non-zero. Batches without signal are placeholder snapshots.
func HasSignal(records []timetable.CanonicalRecord) bool {
	for _, r := range records {
		if r.ArrivalDelay != nil && *r.ArrivalDelay != 0 {
			return true
		}
		if r.DepartureDelay != nil && *r.DepartureDelay != 0 {
			return true
		}
	}
	return false
}

func weekday(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Weekday().String()
}
