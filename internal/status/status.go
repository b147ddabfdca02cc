// Package status provides a thread-safe status tracker for the treadmill-sensor daemon.
// It is written by the tick loop and the sink callbacks, and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/treadmill-sensor/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	IntervalMs     int64
	Confirmations  int
	HeartbeatMs    int64
	StartTimeoutMs int64
	MaxRangeCM     float64
	Broker         string
	InfluxURL      string
	InfluxBucket   string
	RecordOccupied bool
	DBPath         string
	HTTPAddr       string
}

// Sink names an event destination.
type Sink string

const (
	SinkInflux Sink = "influx"
	SinkMQTT   Sink = "mqtt"
	SinkStore  Sink = "store"
)

// SinkStatus counts delivery failures for one sink.
type SinkStatus struct {
	Errors    int
	LastError string
	LastAt    time.Time
}

// Reading is the most recent measurement and how it was classified.
type Reading struct {
	DistanceCM float64
	Valid      bool
	Fault      logic.Fault
	Presence   logic.Presence
	Time       time.Time
}

// Detection is the detector state published after every tick.
type Detection struct {
	State         logic.State
	Pending       int
	Counts        logic.EventCounts
	OccupiedSince time.Time
	Reading       Reading
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Detection
	Ticks         int64
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Sinks         map[Sink]SinkStatus
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Session returns how long the treadmill has been occupied, or 0 when idle.
func (s Snapshot) Session() time.Duration {
	if s.State != logic.StateOccupied || s.OccupiedSince.IsZero() {
		return 0
	}
	return s.Now.Sub(s.OccupiedSince)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Detection: Detection{State: logic.StateIdle},
			StartTime: startTime,
			Sinks:     map[Sink]SinkStatus{},
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update records the detector state after a tick.
func (t *Tracker) Update(d Detection) {
	t.mu.Lock()
	t.snap.Detection = d
	t.snap.Ticks++
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// RecordSinkError counts a failed delivery. Safe to call from any goroutine.
func (t *Tracker) RecordSinkError(sink Sink, err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	s := t.snap.Sinks[sink]
	s.Errors++
	s.LastError = err.Error()
	s.LastAt = t.now()
	t.snap.Sinks[sink] = s
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	sinks := make(map[Sink]SinkStatus, len(t.snap.Sinks))
	for k, v := range t.snap.Sinks {
		sinks[k] = v
	}
	t.mu.RUnlock()
	s.Sinks = sinks
	s.Now = t.now()
	return s
}
