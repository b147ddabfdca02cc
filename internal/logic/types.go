// Package logic contains pure business logic for treadmill occupancy tracking.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// State represents the confirmed occupancy of the treadmill.
type State string

const (
	StateIdle     State = "IDLE"
	StateOccupied State = "OCCUPIED"
)

// Presence is the instantaneous classification of a single measurement.
type Presence string

const (
	Present Presence = "PRESENT"
	Absent  Presence = "ABSENT"
)

// Fault explains why a measurement classified as Absent without a valid
// in-window distance. The empty Fault means the reading was good.
type Fault string

const (
	FaultNone        Fault = ""
	FaultNoEchoStart Fault = "NO_ECHO_START" // trigger sent, echo never rose
	FaultNoEchoEnd   Fault = "NO_ECHO_END"   // echo rose but never fell
	FaultOutOfRange  Fault = "OUT_OF_RANGE"  // valid timing, distance outside the window
	FaultGPIO        Fault = "GPIO_ERROR"    // pin access failed mid-measurement
)

// Occupancy window, in centimetres. A distance d is Present when
// MinValidCM < d <= MaxValidCM.
const (
	MinValidCM = 0.0001
	MaxValidCM = 160.0
)

// DefaultConfirmations is the number of consecutive disagreeing samples
// required before the confirmed state flips.
const DefaultConfirmations = 6

// Measurement is the result of one ranging attempt.
type Measurement struct {
	DistanceCM float64
	// Valid is false when no distance could be measured (no echo, GPIO fault).
	Valid bool
	Fault Fault
	// Err carries the underlying error for FaultGPIO.
	Err  error
	Time time.Time
}

// Distance returns a valid measurement of d centimetres.
func Distance(d float64) Measurement {
	return Measurement{DistanceCM: d, Valid: true}
}

// NoReading returns an invalid measurement with the given fault.
func NoReading(f Fault) Measurement {
	return Measurement{Fault: f}
}

// Classification is the per-tick verdict for a measurement.
type Classification struct {
	Presence Presence
	// Reason is set for Absent classifications.
	Reason Fault
}

// Event represents a confirmed occupancy transition to be published.
type Event struct {
	Timestamp  time.Time
	State      State
	DistanceCM float64 // distance of the sample that confirmed the transition (0 when none)
	Valid      bool
	// Session is the length of the occupied period that just ended.
	// Only set on StateIdle events.
	Session time.Duration
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	Occupied int
	Idle     int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}
