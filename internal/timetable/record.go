package timetable

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Key renders every field of the record except Line into a single string.
// Line is a function of TripID across the store and is restamped when a trip
// is upgraded from Unknown, so two records are full-row duplicates iff their
// keys are equal.
func (r CanonicalRecord) Key() string {
	var b strings.Builder
	b.Grow(256)
	fields := []string{
		r.TripID, r.StopIndex, r.StationID, r.StationName, r.TrainNumber,
		r.RawLineGuess,
		keyTime(r.PlannedArrival), keyTime(r.PlannedDeparture),
		keyTime(r.ChangedArrival), keyTime(r.ChangedDeparture),
		r.PlatformPlanned, r.PlatformChanged,
		r.PlannedPath, r.ArrivalPath, r.DeparturePath,
		r.ArrivalStatus, r.DepartureStatus, r.MessageStatus,
		keyInt(r.Priority), r.Info,
		keyInt(r.ArrivalDelay), keyInt(r.DepartureDelay),
		r.Status, r.ArrivalWeekday, r.DepartureWeekday,
	}
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		b.WriteString(f)
	}
	return b.String()
}

// Fingerprint is a 64-bit hash of Key, used to bucket candidates before the
// exact key comparison.
func (r CanonicalRecord) Fingerprint() uint64 { return xxhash.Sum64String(r.Key()) }

// Digest is the hex SHA-256 of Key, short enough for a unique index.
func (r CanonicalRecord) Digest() string {
	sum := sha256.Sum256([]byte(r.Key()))
	return hex.EncodeToString(sum[:])
}

func keyTime(t *time.Time) string {
	if t == nil {
		return "\x00"
	}
	return strconv.FormatInt(t.Unix(), 10)
}

func keyInt(v *int) string {
	if v == nil {
		return "\x00"
	}
	return strconv.Itoa(*v)
}
