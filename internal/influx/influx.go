// Package influx writes occupancy records to InfluxDB, with abstraction for testing.
package influx

import (
	"time"

	"github.com/sweeney/treadmill-sensor/internal/logic"
)

// Schema of the record written for each confirmed event.
const (
	Measurement    = "body"
	TagPosition    = "position"
	PositionCenter = "center"
	FieldDistance  = "distance"
)

// Point is a single time-series record.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]interface{}
	Time        time.Time
}

// Writer sends points to the time-series store.
type Writer interface {
	// Write queues p for delivery. Implementations must not block on the
	// network; delivery failures are reported out of band.
	Write(p Point) error

	// Close flushes pending points and releases the client.
	Close() error
}

// EventPoint builds the record for a confirmed occupancy event.
func EventPoint(e logic.Event) Point {
	return bodyPoint(e.DistanceCM, e.Timestamp)
}

// SamplePoint builds the record for a single occupied-tick sample.
func SamplePoint(m logic.Measurement) Point {
	return bodyPoint(m.DistanceCM, m.Time)
}

func bodyPoint(distanceCM float64, ts time.Time) Point {
	return Point{
		Measurement: Measurement,
		Tags:        map[string]string{TagPosition: PositionCenter},
		Fields:      map[string]interface{}{FieldDistance: distanceCM},
		Time:        ts,
	}
}

// Config addresses an InfluxDB server. InfluxDB 1.x is reached through the
// 2.x compatibility API: Bucket is "database/retention-policy" and Token is
// "username:password".
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Bucket returns the compatibility bucket name for a 1.x database and
// optional retention policy.
func Bucket(database, retention string) string {
	if retention == "" {
		return database
	}
	return database + "/" + retention
}

// Token returns the compatibility token for 1.x credentials.
func Token(username, password string) string {
	if username == "" {
		return ""
	}
	return username + ":" + password
}
