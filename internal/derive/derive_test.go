package derive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sbahn-canon/internal/timetable"
)

func at(h, m int) *time.Time {
	t := time.Date(2024, 12, 2, h, m, 0, 0, time.UTC)
	return &t
}

func TestDelayMinutes(t *testing.T) {
	tests := []struct {
		name    string
		planned *time.Time
		changed *time.Time
		want    *int
	}{
		{name: "late", planned: at(12, 0), changed: at(12, 5), want: intp(5)},
		{name: "early", planned: at(12, 5), changed: at(12, 3), want: intp(-2)},
		{name: "on time", planned: at(12, 0), changed: at(12, 0), want: intp(0)},
		{name: "no change", planned: at(12, 0), changed: nil, want: nil},
		{name: "no plan", planned: nil, changed: at(12, 0), want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DelayMinutes(tt.planned, tt.changed))
		})
	}
}

func TestDelayNullSafety(t *testing.T) {
	events := []timetable.StopEvent{
		{PlannedArrival: at(8, 0), ChangedArrival: at(8, 2)},
		{PlannedArrival: at(8, 0)},
		{ChangedDeparture: at(8, 0)},
		{PlannedDeparture: at(8, 0), ChangedDeparture: at(8, 1)},
	}
	for _, r := range Derive(events) {
		assert.Equal(t, r.PlannedArrival == nil || r.ChangedArrival == nil, r.ArrivalDelay == nil)
		assert.Equal(t, r.PlannedDeparture == nil || r.ChangedDeparture == nil, r.DepartureDelay == nil)
	}
}

func TestRecordStatusAndWeekday(t *testing.T) {
	r := Record(timetable.StopEvent{ArrivalStatus: "C", PlannedArrival: at(9, 0)})
	assert.Equal(t, timetable.StatusCancelled, r.Status)
	assert.Equal(t, "Monday", r.ArrivalWeekday)
	assert.Equal(t, "", r.DepartureWeekday)

	r = Record(timetable.StopEvent{DepartureStatus: "a"})
	assert.Equal(t, "", r.Status)
	r = Record(timetable.StopEvent{DepartureStatus: "c"})
	assert.True(t, r.Cancelled())
}

func TestHasSignal(t *testing.T) {
	zero, five := intp(0), intp(5)
	assert.False(t, HasSignal(nil))
	assert.False(t, HasSignal([]timetable.CanonicalRecord{{}, {ArrivalDelay: zero}, {DepartureDelay: zero}}))
	assert.True(t, HasSignal([]timetable.CanonicalRecord{{}, {DepartureDelay: five}}))

	recs := Derive([]timetable.StopEvent{{PlannedArrival: at(7, 0), ChangedArrival: at(7, 4)}})
	require.Len(t, recs, 1)
	assert.True(t, HasSignal(recs))
}

func intp(v int) *int { return &v }
