package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string       `json:"event,omitempty"`
	Reason         string       `json:"reason,omitempty"`
	State          string       `json:"state"`
	Pending        int          `json:"pending"`
	SessionSeconds int64        `json:"session_seconds,omitempty"`
	Reading        *ReadingJSON `json:"reading,omitempty"`
	Ticks          int64        `json:"ticks"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	StartTime      string       `json:"start_time"`
	Timestamp      string       `json:"timestamp"`
	MQTT           MQTTStatus   `json:"mqtt"`
	Influx         SinkJSON     `json:"influx"`
	Store          SinkJSON     `json:"store"`
	Counts         CountsJSON   `json:"event_counts"`
	Network        *NetworkJSON `json:"network,omitempty"`
	Config         ConfigJSON   `json:"config"`
}

// ReadingJSON is the JSON representation of the last measurement.
type ReadingJSON struct {
	DistanceCM *float64 `json:"distance_cm"`
	Presence   string   `json:"presence"`
	Fault      string   `json:"fault,omitempty"`
	Timestamp  string   `json:"timestamp"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Errors    int    `json:"errors"`
	LastError string `json:"last_error,omitempty"`
}

// SinkJSON reports delivery failures for a sink.
type SinkJSON struct {
	Errors    int    `json:"errors"`
	LastError string `json:"last_error,omitempty"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Occupied int `json:"occupied"`
	Idle     int `json:"idle"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	IntervalMs     int64   `json:"interval_ms"`
	Confirmations  int     `json:"confirmations"`
	HeartbeatMs    int64   `json:"heartbeat_ms"`
	StartTimeoutMs int64   `json:"start_timeout_ms"`
	MaxRangeCM     float64 `json:"max_range_cm"`
	Broker         string  `json:"broker"`
	InfluxURL      string  `json:"influx_url"`
	InfluxBucket   string  `json:"influx_bucket"`
	RecordOccupied bool    `json:"record_occupied"`
	DBPath         string  `json:"db_path,omitempty"`
	HTTPAddr       string  `json:"http_addr"`
}

func sinkJSON(s SinkStatus) SinkJSON {
	return SinkJSON{Errors: s.Errors, LastError: s.LastError}
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.State)
	if state == "" {
		state = "UNKNOWN"
	}

	mqttSink := snap.Sinks[SinkMQTT]
	inner := StatusInner{
		State:          state,
		Pending:        snap.Pending,
		SessionSeconds: int64(snap.Session().Truncate(time.Second).Seconds()),
		Ticks:          snap.Ticks,
		UptimeSeconds:  int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:      snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:      snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Errors:    mqttSink.Errors,
			LastError: mqttSink.LastError,
		},
		Influx: sinkJSON(snap.Sinks[SinkInflux]),
		Store:  sinkJSON(snap.Sinks[SinkStore]),
		Counts: CountsJSON{
			Occupied: snap.Counts.Occupied,
			Idle:     snap.Counts.Idle,
		},
		Config: ConfigJSON{
			IntervalMs:     snap.Config.IntervalMs,
			Confirmations:  snap.Config.Confirmations,
			HeartbeatMs:    snap.Config.HeartbeatMs,
			StartTimeoutMs: snap.Config.StartTimeoutMs,
			MaxRangeCM:     snap.Config.MaxRangeCM,
			Broker:         snap.Config.Broker,
			InfluxURL:      snap.Config.InfluxURL,
			InfluxBucket:   snap.Config.InfluxBucket,
			RecordOccupied: snap.Config.RecordOccupied,
			DBPath:         snap.Config.DBPath,
			HTTPAddr:       snap.Config.HTTPAddr,
		},
	}

	if r := snap.Reading; !r.Time.IsZero() {
		rj := &ReadingJSON{
			Presence:  string(r.Presence),
			Fault:     string(r.Fault),
			Timestamp: r.Time.UTC().Format(time.RFC3339Nano),
		}
		if r.Valid {
			d := r.DistanceCM
			rj.DistanceCM = &d
		}
		inner.Reading = rj
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
