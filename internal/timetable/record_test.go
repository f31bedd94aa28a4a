package timetable

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyIgnoresLine(t *testing.T) {
	pa := time.Date(2024, 12, 2, 8, 0, 0, 0, time.UTC)
	a := CanonicalRecord{StopEvent: StopEvent{TripID: "t1", StationID: "A", PlannedArrival: &pa, Line: Unknown}}
	b := a
	b.Line = "S1"
	assert.Equal(t, a.Key(), b.Key())
	assert.Equal(t, a.Digest(), b.Digest())

	c := a
	c.RawLineGuess = "S1"
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestKeyDistinguishesNullFromZero(t *testing.T) {
	zero := 0
	a := CanonicalRecord{StopEvent: StopEvent{TripID: "t1", StationID: "A"}, ArrivalDelay: &zero}
	b := a
	b.ArrivalDelay = nil
	assert.NotEqual(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestDigestIsBounded(t *testing.T) {
	long := make([]byte, 10000)
	for i := range long {
		long[i] = 'x'
	}
	r := CanonicalRecord{StopEvent: StopEvent{TripID: "t1", StationID: "A", PlannedPath: string(long)}}
	assert.Len(t, r.Digest(), 64)
	assert.Equal(t, r.Digest(), r.Digest())
}
