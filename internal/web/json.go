package web

import (
	"encoding/json"
	"time"

	"github.com/sweeney/treadmill-sensor/internal/logic"
)

// EventsJSON is the JSON representation of the recent event history.
type EventsJSON struct {
	Events []EventJSON `json:"events"`
}

// EventJSON is one confirmed occupancy transition.
type EventJSON struct {
	Timestamp      string   `json:"timestamp"`
	Event          string   `json:"event"`
	DistanceCM     *float64 `json:"distance_cm,omitempty"`
	SessionSeconds int64    `json:"session_seconds,omitempty"`
}

func formatEvents(events []logic.Event) []byte {
	out := EventsJSON{Events: make([]EventJSON, 0, len(events))}
	for _, e := range events {
		ej := EventJSON{
			Timestamp:      e.Timestamp.UTC().Format(time.RFC3339),
			Event:          string(e.State),
			SessionSeconds: int64(e.Session.Truncate(time.Second).Seconds()),
		}
		if e.Valid {
			d := e.DistanceCM
			ej.DistanceCM = &d
		}
		out.Events = append(out.Events, ej)
	}

	data, _ := json.MarshalIndent(out, "", "  ")
	return data
}
