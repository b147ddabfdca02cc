package logic

import "time"

// Detector turns a stream of measurements into a debounced occupancy state.
// The confirmed state only flips after a run of consecutive samples that
// disagree with it; the run length, not elapsed time, is the guard.
type Detector struct {
	confirmations int
	state         State
	pending       int
	last          Measurement
	lastClass     Classification
	occupiedSince time.Time
	startTime     time.Time
	eventCounts   EventCounts
	lastHeartbeat time.Time
}

// NewDetector creates a detector in StateIdle that requires the given number
// of consecutive disagreeing samples to change state. Values below 1 fall
// back to DefaultConfirmations.
// The startTime is used for calculating uptime in heartbeat events.
func NewDetector(confirmations int, startTime time.Time) *Detector {
	if confirmations < 1 {
		confirmations = DefaultConfirmations
	}
	return &Detector{
		confirmations: confirmations,
		state:         StateIdle,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Classify reports whether a single measurement shows someone on the treadmill.
func Classify(m Measurement) Classification {
	if !m.Valid {
		reason := m.Fault
		if reason == FaultNone {
			reason = FaultNoEchoStart
		}
		return Classification{Presence: Absent, Reason: reason}
	}
	if m.DistanceCM > MinValidCM && m.DistanceCM <= MaxValidCM {
		return Classification{Presence: Present}
	}
	return Classification{Presence: Absent, Reason: FaultOutOfRange}
}

// Observe classifies m and returns an event if it completes a run of
// disagreeing samples. It returns nil on every other tick.
func (d *Detector) Observe(m Measurement) *Event {
	c := Classify(m)
	d.last = m
	d.lastClass = c

	if c.Presence == presenceFor(d.state) {
		d.pending = 0
		return nil
	}

	d.pending++
	if d.pending < d.confirmations {
		return nil
	}

	d.pending = 0
	d.state = stateFor(c.Presence)

	event := &Event{
		Timestamp:  m.Time,
		State:      d.state,
		DistanceCM: m.DistanceCM,
		Valid:      m.Valid,
	}

	switch d.state {
	case StateOccupied:
		d.eventCounts.Occupied++
		d.occupiedSince = m.Time
	case StateIdle:
		d.eventCounts.Idle++
		if !d.occupiedSince.IsZero() && !m.Time.IsZero() {
			event.Session = m.Time.Sub(d.occupiedSince)
		}
		d.occupiedSince = time.Time{}
	}

	return event
}

func presenceFor(s State) Presence {
	if s == StateOccupied {
		return Present
	}
	return Absent
}

func stateFor(p Presence) State {
	if p == Present {
		return StateOccupied
	}
	return StateIdle
}

// CurrentState returns the confirmed occupancy state.
func (d *Detector) CurrentState() State {
	return d.state
}

// Pending returns the length of the current run of samples that disagree
// with the confirmed state.
func (d *Detector) Pending() int {
	return d.pending
}

// Confirmations returns the run length required to change state.
func (d *Detector) Confirmations() int {
	return d.confirmations
}

// Last returns the most recent measurement and its classification.
func (d *Detector) Last() (Measurement, Classification) {
	return d.last, d.lastClass
}

// OccupiedSince returns when the current occupied period was confirmed.
// Zero while idle.
func (d *Detector) OccupiedSince() time.Time {
	return d.occupiedSince
}

// EventCountsSnapshot returns a copy of the event counters.
func (d *Detector) EventCountsSnapshot() EventCounts {
	return d.eventCounts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (d *Detector) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.eventCounts,
	}
}
