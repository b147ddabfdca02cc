package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/sweeney/treadmill-sensor/internal/logic"
)

var _ Publisher = (*RealPublisher)(nil)
var _ Publisher = (*FakePublisher)(nil)
var _ ConnectionStatus = (*RealPublisher)(nil)
var _ ConnectionStatus = (*FakePublisher)(nil)

func TestFormatPayloadOccupied(t *testing.T) {
	event := logic.Event{
		Timestamp:  time.Date(2026, 3, 14, 7, 30, 5, 0, time.UTC),
		State:      logic.StateOccupied,
		DistanceCM: 82.5,
		Valid:      true,
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := `{"treadmill":{"timestamp":"2026-03-14T07:30:05Z","event":"OCCUPIED","distance_cm":82.5}}`
	if string(payload) != want {
		t.Errorf("payload mismatch\ngot:  %s\nwant: %s", payload, want)
	}
}

func TestFormatPayloadIdleWithSession(t *testing.T) {
	event := logic.Event{
		Timestamp: time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
		State:     logic.StateIdle,
		Session:   29*time.Minute + 55*time.Second + 400*time.Millisecond,
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	want := TreadmillPayload{
		Timestamp:      "2026-03-14T08:00:00Z",
		Event:          "IDLE",
		SessionSeconds: 1795,
	}
	if diff := cmp.Diff(want, parsed.Treadmill); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestFormatPayloadOmitsInvalidDistance(t *testing.T) {
	event := logic.Event{
		Timestamp:  time.Now(),
		State:      logic.StateIdle,
		DistanceCM: 0,
		Valid:      false,
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var raw map[string]map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := raw["treadmill"]["distance_cm"]; ok {
		t.Error("distance_cm should be omitted for an invalid reading")
	}
	if _, ok := raw["treadmill"]["session_seconds"]; ok {
		t.Error("session_seconds should be omitted when zero")
	}
}

func TestFormatPayloadTimezoneConversion(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*60*60)
	event := logic.Event{
		Timestamp: time.Date(2026, 3, 14, 12, 0, 0, 0, loc),
		State:     logic.StateOccupied,
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Treadmill.Timestamp != "2026-03-14T07:00:00Z" {
		t.Errorf("timestamp not converted to UTC: %s", parsed.Treadmill.Timestamp)
	}
}

func TestTopics(t *testing.T) {
	if Topic != "fitness/treadmill/sensor/events" {
		t.Errorf("unexpected topic: %s", Topic)
	}
	if TopicSystem != "fitness/treadmill/sensor/system" {
		t.Errorf("unexpected system topic: %s", TopicSystem)
	}
}

func TestFormatSystemPayload(t *testing.T) {
	tests := []struct {
		name  string
		event SystemEvent
		want  string
	}{
		{
			name:  "startup",
			event: SystemEvent{Timestamp: time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC), Event: "STARTUP"},
			want:  `{"system":{"timestamp":"2026-03-14T06:00:00Z","event":"STARTUP"}}`,
		},
		{
			name:  "shutdown sigterm",
			event: SystemEvent{Timestamp: time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC), Event: "SHUTDOWN", Reason: "SIGTERM"},
			want:  `{"system":{"timestamp":"2026-03-14T06:00:00Z","event":"SHUTDOWN","reason":"SIGTERM"}}`,
		},
		{
			name:  "shutdown sigint",
			event: SystemEvent{Timestamp: time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC), Event: "SHUTDOWN", Reason: "SIGINT"},
			want:  `{"system":{"timestamp":"2026-03-14T06:00:00Z","event":"SHUTDOWN","reason":"SIGINT"}}`,
		},
		{
			name:  "reconnected",
			event: SystemEvent{Timestamp: time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC), Event: "RECONNECTED"},
			want:  `{"system":{"timestamp":"2026-03-14T06:00:00Z","event":"RECONNECTED"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatSystemPayload(tt.event)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("payload mismatch\ngot:  %s\nwant: %s", got, tt.want)
			}
		})
	}
}

func TestFormatSystemPayloadRawPassthrough(t *testing.T) {
	raw := []byte(`{"system":{"event":"HEARTBEAT","uptime":"1h"}}`)
	got, err := FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != string(raw) {
		t.Errorf("raw payload not passed through: %s", got)
	}
}

func TestWillPayloadFormat(t *testing.T) {
	now := time.Date(2026, 3, 14, 6, 0, 0, 0, time.UTC)
	payload := WillPayload(now)

	var parsed SystemPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	want := SystemPayloadInner{Timestamp: "2026-03-14T06:00:00Z", Event: "OFFLINE", Reason: "LWT"}
	if diff := cmp.Diff(want, parsed.System); diff != "" {
		t.Errorf("will payload mismatch (-want +got):\n%s", diff)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	event := logic.Event{Timestamp: time.Now(), State: logic.StateOccupied, DistanceCM: 70, Valid: true}
	if err := f.Publish(event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(f.Events))
	}
	if f.Events[0].State != logic.StateOccupied {
		t.Errorf("unexpected state: %s", f.Events[0].State)
	}
	if len(f.Payloads) != 1 {
		t.Fatalf("expected 1 payload, got %d", len(f.Payloads))
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")

	if err := f.Publish(logic.Event{Timestamp: time.Now(), State: logic.StateOccupied}); err == nil {
		t.Error("expected error")
	}
	if len(f.Events) != 0 {
		t.Errorf("expected no events recorded on error, got %d", len(f.Events))
	}
}

func TestFakePublisherSystemEvents(t *testing.T) {
	f := NewFakePublisher()

	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "STARTUP", Retained: true})
	f.Publish(logic.Event{Timestamp: time.Now(), State: logic.StateOccupied})
	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "SHUTDOWN", Reason: "SIGTERM"})

	if diff := cmp.Diff([]string{"STARTUP", "SHUTDOWN"}, f.SystemEventNames()); diff != "" {
		t.Errorf("system events mismatch (-want +got):\n%s", diff)
	}
	if !f.SystemEvents[0].Retained {
		t.Error("retained flag not recorded")
	}
	if len(f.Events) != 1 {
		t.Errorf("expected 1 occupancy event, got %d", len(f.Events))
	}

	f.PublishSystemError = errors.New("boom")
	if err := f.PublishSystem(SystemEvent{Event: "HEARTBEAT"}); err == nil {
		t.Error("expected error from PublishSystem")
	}
	if len(f.SystemEvents) != 2 {
		t.Errorf("failed publish should not be recorded, got %d", len(f.SystemEvents))
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(logic.Event{Timestamp: time.Now(), State: logic.StateOccupied})
	f.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "STARTUP"})
	f.Close()
	f.PublishError = errors.New("error")

	f.Reset()

	if len(f.Events) != 0 || len(f.Payloads) != 0 {
		t.Error("events should be cleared")
	}
	if len(f.SystemEvents) != 0 || len(f.SystemPayloads) != 0 {
		t.Error("system events should be cleared")
	}
	if f.Closed {
		t.Error("closed should be reset")
	}
	if f.PublishError != nil {
		t.Error("error should be cleared")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	event := logic.Event{
		Timestamp:  time.Date(2026, 3, 14, 7, 30, 5, 0, time.UTC),
		State:      logic.StateOccupied,
		DistanceCM: 101.25,
		Valid:      true,
	}

	payload, err := FormatPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Treadmill.DistanceCM == nil || *parsed.Treadmill.DistanceCM != 101.25 {
		t.Errorf("distance not preserved: %v", parsed.Treadmill.DistanceCM)
	}
	if parsed.Treadmill.Event != string(logic.StateOccupied) {
		t.Errorf("event not preserved: %s", parsed.Treadmill.Event)
	}
}
