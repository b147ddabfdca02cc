// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/treadmill-sensor/internal/logic"
)

// Topic is the MQTT topic for occupancy events.
const Topic = "fitness/treadmill/sensor/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "fitness/treadmill/sensor/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends an occupancy event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Treadmill TreadmillPayload `json:"treadmill"`
}

// TreadmillPayload contains the occupancy event details.
type TreadmillPayload struct {
	Timestamp      string   `json:"timestamp"`
	Event          string   `json:"event"`
	DistanceCM     *float64 `json:"distance_cm,omitempty"`
	SessionSeconds int64    `json:"session_seconds,omitempty"`
}

// FormatPayload creates the JSON payload for an occupancy event.
func FormatPayload(event logic.Event) ([]byte, error) {
	inner := TreadmillPayload{
		Timestamp:      event.Timestamp.UTC().Format(time.RFC3339),
		Event:          string(event.State),
		SessionSeconds: int64(event.Session.Truncate(time.Second).Seconds()),
	}
	if event.Valid {
		d := event.DistanceCM
		inner.DistanceCM = &d
	}
	return json.Marshal(Payload{Treadmill: inner})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// WillPayload is the last-will message the broker publishes if the
// connection drops without a clean disconnect.
func WillPayload(now time.Time) []byte {
	data, _ := FormatSystemPayload(SystemEvent{Timestamp: now, Event: "OFFLINE", Reason: "LWT"})
	return data
}
