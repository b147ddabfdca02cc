package status

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sweeney/treadmill-sensor/internal/logic"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{IntervalMs: 1000, Confirmations: 6, Broker: "tcp://localhost:1883", HTTPAddr: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.IntervalMs != 1000 {
		t.Errorf("Config.IntervalMs: got %d, want 1000", snap.Config.IntervalMs)
	}
	if snap.State != logic.StateIdle {
		t.Errorf("expected IDLE initially, got %q", snap.State)
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
	if snap.Ticks != 0 {
		t.Errorf("expected no ticks, got %d", snap.Ticks)
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	at := time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC)

	tr.Update(Detection{
		State:   logic.StateOccupied,
		Pending: 2,
		Counts:  logic.EventCounts{Occupied: 3, Idle: 2},
		Reading: Reading{DistanceCM: 88, Valid: true, Presence: logic.Present, Time: at},
	})

	snap := tr.Snapshot()
	if snap.State != logic.StateOccupied {
		t.Errorf("State: got %q, want OCCUPIED", snap.State)
	}
	if snap.Pending != 2 {
		t.Errorf("Pending: got %d, want 2", snap.Pending)
	}
	if diff := cmp.Diff(logic.EventCounts{Occupied: 3, Idle: 2}, snap.Counts); diff != "" {
		t.Errorf("Counts mismatch (-want +got):\n%s", diff)
	}
	if snap.Reading.DistanceCM != 88 {
		t.Errorf("Reading.DistanceCM: got %v, want 88", snap.Reading.DistanceCM)
	}
	if snap.Ticks != 1 {
		t.Errorf("Ticks: got %d, want 1", snap.Ticks)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"})

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestRecordSinkError(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	at := time.Date(2026, 3, 14, 7, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return at }

	tr.RecordSinkError(SinkInflux, errors.New("connection refused"))
	tr.RecordSinkError(SinkInflux, errors.New("timeout"))
	tr.RecordSinkError(SinkStore, errors.New("disk full"))
	tr.RecordSinkError(SinkMQTT, nil)

	snap := tr.Snapshot()
	want := map[Sink]SinkStatus{
		SinkInflux: {Errors: 2, LastError: "timeout", LastAt: at},
		SinkStore:  {Errors: 1, LastError: "disk full", LastAt: at},
	}
	if diff := cmp.Diff(want, snap.Sinks); diff != "" {
		t.Errorf("Sinks mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotUptimeAndSession(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Detection: Detection{State: logic.StateOccupied, OccupiedSince: start.Add(10 * time.Minute)},
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
	if snap.Session() != 5*time.Minute {
		t.Errorf("Session: got %v, want 5m", snap.Session())
	}

	snap.State = logic.StateIdle
	if snap.Session() != 0 {
		t.Errorf("Session when idle: got %v, want 0", snap.Session())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Update(Detection{State: logic.StateOccupied})
	tr.RecordSinkError(SinkMQTT, errors.New("first"))

	snap1 := tr.Snapshot()

	tr.Update(Detection{State: logic.StateIdle})
	tr.RecordSinkError(SinkMQTT, errors.New("second"))

	if snap1.State != logic.StateOccupied {
		t.Error("snapshot should be a copy; State was modified")
	}
	if snap1.Sinks[SinkMQTT].Errors != 1 {
		t.Error("snapshot should be a copy; Sinks was modified")
	}
}

func testSnapshot() Snapshot {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return Snapshot{
		Detection: Detection{
			State:         logic.StateOccupied,
			Pending:       1,
			Counts:        logic.EventCounts{Occupied: 4, Idle: 3},
			OccupiedSince: start.Add(90 * time.Minute),
			Reading: Reading{
				DistanceCM: 92.5,
				Valid:      true,
				Presence:   logic.Present,
				Time:       start.Add(2 * time.Hour),
			},
		},
		Ticks:         7200,
		StartTime:     start,
		Now:           start.Add(2 * time.Hour),
		MQTTConnected: true,
		Sinks: map[Sink]SinkStatus{
			SinkInflux: {Errors: 2, LastError: "timeout"},
		},
		Config: Config{
			IntervalMs:     1000,
			Confirmations:  6,
			HeartbeatMs:    900000,
			StartTimeoutMs: 30,
			MaxRangeCM:     220,
			Broker:         "tcp://localhost:1883",
			InfluxURL:      "http://10.0.0.5:8086",
			InfluxBucket:   "test_db",
			HTTPAddr:       ":80",
		},
	}
}

func TestFormatJSON(t *testing.T) {
	data := FormatJSON(testSnapshot())

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if s.State != "OCCUPIED" {
		t.Errorf("State: got %q", s.State)
	}
	if s.SessionSeconds != 1800 {
		t.Errorf("SessionSeconds: got %d, want 1800", s.SessionSeconds)
	}
	if s.UptimeSeconds != 7200 {
		t.Errorf("UptimeSeconds: got %d, want 7200", s.UptimeSeconds)
	}
	if s.Reading == nil || s.Reading.DistanceCM == nil || *s.Reading.DistanceCM != 92.5 {
		t.Errorf("Reading: got %+v", s.Reading)
	}
	if s.Reading.Presence != "PRESENT" {
		t.Errorf("Reading.Presence: got %q", s.Reading.Presence)
	}
	if !s.MQTT.Connected || s.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("MQTT: got %+v", s.MQTT)
	}
	if s.Influx.Errors != 2 || s.Influx.LastError != "timeout" {
		t.Errorf("Influx: got %+v", s.Influx)
	}
	if s.Counts.Occupied != 4 || s.Counts.Idle != 3 {
		t.Errorf("Counts: got %+v", s.Counts)
	}
	if s.Config.InfluxBucket != "test_db" {
		t.Errorf("Config.InfluxBucket: got %q", s.Config.InfluxBucket)
	}
	if s.Event != "" || s.Reason != "" {
		t.Error("web JSON should not carry event/reason")
	}
	if !strings.Contains(string(data), "\n  ") {
		t.Error("web JSON should be indented")
	}
}

func TestFormatJSONFaultReading(t *testing.T) {
	snap := testSnapshot()
	snap.Reading = Reading{Fault: logic.FaultNoEchoStart, Presence: logic.Absent, Time: snap.Now}

	var raw map[string]map[string]any
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	reading, ok := raw["status"]["reading"].(map[string]any)
	if !ok {
		t.Fatalf("reading missing: %v", raw["status"])
	}
	if reading["distance_cm"] != nil {
		t.Errorf("distance_cm should be null, got %v", reading["distance_cm"])
	}
	if reading["fault"] != "NO_ECHO_START" {
		t.Errorf("fault: got %v", reading["fault"])
	}
	if reading["presence"] != "ABSENT" {
		t.Errorf("presence: got %v", reading["presence"])
	}
}

func TestFormatJSONNoReadingYet(t *testing.T) {
	snap := testSnapshot()
	snap.Reading = Reading{}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Reading != nil {
		t.Errorf("expected no reading before the first tick, got %+v", parsed.Status.Reading)
	}
}

func TestFormatJSONUnknownState(t *testing.T) {
	snap := testSnapshot()
	snap.State = ""

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.State != "UNKNOWN" {
		t.Errorf("State: got %q, want UNKNOWN", parsed.Status.State)
	}
}

func TestFormatStatusEvent(t *testing.T) {
	data := FormatStatusEvent(testSnapshot(), "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q", parsed.Status.Reason)
	}
	if strings.Contains(string(data), "\n") {
		t.Error("MQTT payload should be compact")
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	data := FormatStatusEvent(testSnapshot(), "HEARTBEAT", "")
	if strings.Contains(string(data), `"reason"`) {
		t.Errorf("reason should be omitted: %s", data)
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := testSnapshot()
	snap.Network = &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Network == nil {
		t.Fatal("expected network in JSON")
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Update(Detection{State: logic.StateOccupied, Counts: logic.EventCounts{Occupied: i}})
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.RecordSinkError(SinkInflux, errors.New("boom"))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()

	if got := tr.Snapshot().Sinks[SinkInflux].Errors; got != 1000 {
		t.Errorf("expected 1000 influx errors, got %d", got)
	}
}
