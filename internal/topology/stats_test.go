package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sbahn-canon/internal/timetable"
)

func TestStationStatsDirectional(t *testing.T) {
	records := concat(forwardS4("f1", 0), forwardS4("f2", 30), reverseS4("r1", 60))
	// cancel f2 at C (two rows would still count once)
	for i := range records {
		if records[i].TripID == "f2" && records[i].StationID == "C" {
			records[i].Status = timetable.StatusCancelled
		}
	}

	stats := StationStats(records, "S4")
	require.Len(t, stats, 4)
	ids := []string{}
	for _, s := range stats {
		ids = append(ids, s.StationID)
	}
	assert.Equal(t, []string{"A", "B", "C", "D"}, ids)

	c := stats[2]
	assert.Equal(t, "Station C", c.StationName)
	assert.Equal(t, Aggregate{StopCount: 2, AvgDelay: 3, Punctuality: 0, MaxDelay: 3, CancelledTrips: 1}, c.Forward)
	assert.Equal(t, Aggregate{StopCount: 1, AvgDelay: -1, Punctuality: 1, MaxDelay: -1}, c.Reverse)
	assert.Equal(t, 3, c.Total.StopCount)
	assert.InDelta(t, 5.0/3.0, c.Total.AvgDelay, 1e-9)
	assert.InDelta(t, 1.0/3.0, c.Total.Punctuality, 1e-9)
	assert.Equal(t, 3, c.Total.MaxDelay)
	assert.Equal(t, 1, c.Total.CancelledTrips)
}

func TestStationStatsNullDelayCountsOnTime(t *testing.T) {
	records := forwardS4("f1", 0)
	records[1].ArrivalDelay = nil // B
	stats := StationStats(records, "S4")
	require.Len(t, stats, 4)
	assert.Equal(t, Aggregate{StopCount: 1, AvgDelay: 0, Punctuality: 1, MaxDelay: 0}, stats[1].Forward)
}

func TestStationStatsAppendsStationsOutsideOrder(t *testing.T) {
	records := concat(
		forwardS4("f1", 0),
		tripRecords("x", "S4", stopAt{"A", 100, 0}, stopAt{"Y", 105, 7}),
	)
	stats := StationStats(records, "S4")
	require.Len(t, stats, 5)
	last := stats[4]
	assert.Equal(t, "Y", last.StationID)
	assert.Equal(t, 7, last.Total.MaxDelay)
}

func TestCombineEmptySide(t *testing.T) {
	fwd := Aggregate{StopCount: 2, AvgDelay: -2, Punctuality: 1, MaxDelay: -1}
	total := combine(fwd, Aggregate{})
	assert.Equal(t, fwd, total)
	assert.Equal(t, Aggregate{}, combine(Aggregate{}, Aggregate{}))
}

func TestSummaries(t *testing.T) {
	records := concat(
		forwardS4("f1", 0), forwardS4("f2", 30), reverseS4("r1", 60),
		tripRecords("u", timetable.Unknown, stopAt{"A", 0, 0}),
	)
	sums := Summaries(records)
	require.Len(t, sums, 1)
	assert.Equal(t, LineSummary{
		Line: "S4", Trips: 3, Stops: 12, Stations: 4, ReferenceStops: 4,
		StartStation: "A", EndStation: "D",
	}, sums[0])
}
