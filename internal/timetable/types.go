package timetable

import (
	"errors"
	"time"
)

var (
	ErrMalformedRow = errors.New("malformed row")
	ErrEmptyBatch   = errors.New("batch carries no delay signal")
)

// Unknown is the sentinel line for trips without a canonical guess.
const Unknown = "Unknown"

// StatusCancelled marks a record whose arrival or departure was cancelled.
const StatusCancelled = "cancelled"

// RawStop is one planned/change pair as delivered by the ingestion
// collaborator. All fields are raw strings; the normalizer coerces them.
type RawStop struct {
	ID                     string `json:"id"` // <trip>-<yymmddHHMM>-<stop index>
	StationID              string `json:"eva_nr"`
	StationName            string `json:"station_name,omitempty"`
	Category               string `json:"category_train,omitempty"`
	Train                  string `json:"train,omitempty"`
	TrainNumber            string `json:"train_number,omitempty"`
	PlannedArrival         string `json:"planned_arrival,omitempty"`
	PlannedDeparture       string `json:"planned_departure,omitempty"`
	ChangedArrival         string `json:"changed_arrival,omitempty"`
	ChangedDeparture       string `json:"changed_departure,omitempty"`
	PlannedPlatform        string `json:"planned_platform,omitempty"`
	ChangedPlatformArrival string `json:"changed_platform_arrival,omitempty"`
	PlannedPath            string `json:"path,omitempty"`
	ArrivalPath            string `json:"arrival_path,omitempty"`
	DeparturePath          string `json:"departure_path,omitempty"`
	ArrivalStatus          string `json:"arrival_status,omitempty"`
	DepartureStatus        string `json:"departure_status,omitempty"`
	MessageStatus          string `json:"message_status,omitempty"`
	Priority               string `json:"priority,omitempty"`
	Info                   string `json:"info,omitempty"`
}

// Batch is one time-bucketed snapshot from the ingestion collaborator.
type Batch struct {
	ID   string    `json:"id"`
	Rows []RawStop `json:"rows"`
}

// StopEvent is one station visit of one trip after normalization.
type StopEvent struct {
	TripID           string     `json:"trip_id"`
	StopIndex        string     `json:"stop_index"`
	StationID        string     `json:"station_id"`
	StationName      string     `json:"station_name"`
	TrainNumber      string     `json:"train_number"`
	RawLineGuess     string     `json:"raw_line_guess"`
	PlannedArrival   *time.Time `json:"planned_arrival"`
	PlannedDeparture *time.Time `json:"planned_departure"`
	ChangedArrival   *time.Time `json:"changed_arrival"`
	ChangedDeparture *time.Time `json:"changed_departure"`
	PlatformPlanned  string     `json:"platform_planned"`
	PlatformChanged  string     `json:"platform_changed"`
	PlannedPath      string     `json:"planned_path"`
	ArrivalPath      string     `json:"arrival_path"`
	DeparturePath    string     `json:"departure_path"`
	ArrivalStatus    string     `json:"arrival_status"`
	DepartureStatus  string     `json:"departure_status"`
	MessageStatus    string     `json:"message_status"`
	Priority         *int       `json:"priority"`
	Info             string     `json:"info"`

	// Line is stamped by the resolver; empty before resolution.
	Line string `json:"line"`
}

// CanonicalRecord is a resolved StopEvent with derived delay and status.
type CanonicalRecord struct {
	StopEvent
	ArrivalDelay     *int   `json:"arrival_delay"`   // minutes
	DepartureDelay   *int   `json:"departure_delay"` // minutes
	Status           string `json:"status"`          // "cancelled" or ""
	ArrivalWeekday   string `json:"arrival_weekday"`
	DepartureWeekday string `json:"departure_weekday"`
}

// ArrivalDelayOrZero treats a missing arrival delay as on time.
func (r CanonicalRecord) ArrivalDelayOrZero() int {
	if r.ArrivalDelay == nil {
		return 0
	}
	return *r.ArrivalDelay
}

// Cancelled reports whether the record carries the cancellation status.
func (r CanonicalRecord) Cancelled() bool { return r.Status == StatusCancelled }
