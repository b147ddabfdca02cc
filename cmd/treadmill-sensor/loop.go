package main

import (
	"context"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/treadmill-sensor/internal/influx"
	"github.com/sweeney/treadmill-sensor/internal/logic"
	"github.com/sweeney/treadmill-sensor/internal/mqtt"
	"github.com/sweeney/treadmill-sensor/internal/sonar"
	"github.com/sweeney/treadmill-sensor/internal/status"
	"github.com/sweeney/treadmill-sensor/internal/store"
)

// storeTimeout bounds a single event log write.
const storeTimeout = 2 * time.Second

// indicator drives the occupancy LED.
type indicator interface {
	SetIndicator(on bool) error
}

// sinks are the event destinations. A nil field disables that sink.
type sinks struct {
	influx     influx.Writer
	mqtt       mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	store      store.EventLog
}

// loop owns the ranger and detector; only its goroutine touches them.
type loop struct {
	ranger         sonar.Ranger
	indicator      indicator
	detector       *logic.Detector
	sinks          sinks
	tracker        *status.Tracker
	heartbeat      time.Duration
	recordOccupied bool
	now            func() time.Time
	log            *zap.SugaredLogger
}

// run processes ticks until a signal arrives.
func (l *loop) run(tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			l.log.Infof("received %v, shutting down", s)
			l.shutdown(signalName(s))
			return nil

		case <-tick:
			l.step()
		}
	}
}

// step performs one sampling tick.
func (l *loop) step() {
	t := l.now()
	m := l.ranger.Measure()
	m.Time = t

	switch {
	case m.Fault == logic.FaultGPIO:
		l.log.Warnf("gpio error during measurement: %v", m.Err)
	case m.Valid:
		l.log.Debugf("distance: %.2f cm", m.DistanceCM)
	default:
		l.log.Debugf("no reading: %s", m.Fault)
	}

	if event := l.detector.Observe(m); event != nil {
		l.log.Infof("event: %s (distance=%.2fcm session=%v)", event.State, event.DistanceCM, event.Session.Truncate(time.Second))
		l.forward(*event)
	}

	occupied := l.detector.CurrentState() == logic.StateOccupied
	if l.indicator != nil {
		if err := l.indicator.SetIndicator(occupied); err != nil {
			l.log.Warnf("indicator: %v", err)
		}
	}

	if occupied && l.recordOccupied && m.Valid && l.sinks.influx != nil {
		if err := l.sinks.influx.Write(influx.SamplePoint(m)); err != nil {
			l.log.Warnf("influx sample write error: %v", err)
			l.recordSinkError(status.SinkInflux, err)
		}
	}

	l.updateStatus()

	if hb := l.detector.CheckHeartbeat(t, l.heartbeat); hb != nil {
		l.log.Infof("heartbeat: uptime=%v occupied=%d idle=%d",
			hb.Uptime.Truncate(time.Second), hb.Counts.Occupied, hb.Counts.Idle)
		l.publishSystem(mqtt.SystemEvent{Timestamp: hb.Timestamp, Event: "HEARTBEAT"}, "")
	}
}

// forward delivers a confirmed event to every sink. A failing sink is
// logged and counted; it never blocks the others.
func (l *loop) forward(e logic.Event) {
	if l.sinks.influx != nil {
		if err := l.sinks.influx.Write(influx.EventPoint(e)); err != nil {
			l.log.Warnf("influx write error: %v", err)
			l.recordSinkError(status.SinkInflux, err)
		}
	}
	if l.sinks.mqtt != nil {
		if err := l.sinks.mqtt.Publish(e); err != nil {
			l.log.Warnf("publish error: %v", err)
			l.recordSinkError(status.SinkMQTT, err)
		}
	}
	if l.sinks.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		err := l.sinks.store.Record(ctx, e)
		cancel()
		if err != nil {
			l.log.Warnf("event log error: %v", err)
			l.recordSinkError(status.SinkStore, err)
		}
	}
}

func (l *loop) updateStatus() {
	if l.tracker == nil {
		return
	}
	m, c := l.detector.Last()
	l.tracker.Update(status.Detection{
		State:         l.detector.CurrentState(),
		Pending:       l.detector.Pending(),
		Counts:        l.detector.EventCountsSnapshot(),
		OccupiedSince: l.detector.OccupiedSince(),
		Reading: status.Reading{
			DistanceCM: m.DistanceCM,
			Valid:      m.Valid,
			Fault:      c.Reason,
			Presence:   c.Presence,
			Time:       m.Time,
		},
	})
	if l.sinks.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.sinks.mqttStatus.IsConnected())
	}
}

func (l *loop) recordSinkError(sink status.Sink, err error) {
	if l.tracker != nil {
		l.tracker.RecordSinkError(sink, err)
	}
}

// publishSystem sends a lifecycle event, attaching a status snapshot when
// a tracker is available.
func (l *loop) publishSystem(event mqtt.SystemEvent, reason string) {
	if l.sinks.mqtt == nil {
		return
	}
	if l.tracker != nil {
		if l.sinks.mqttStatus != nil {
			l.tracker.SetMQTTConnected(l.sinks.mqttStatus.IsConnected())
		}
		if ni := readNetworkInfo(); ni != nil {
			l.tracker.SetNetwork(ni)
		}
		event.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), event.Event, reason)
	}
	if err := l.sinks.mqtt.PublishSystem(event); err != nil {
		l.log.Warnf("%s publish error: %v", event.Event, err)
		l.recordSinkError(status.SinkMQTT, err)
		return
	}
	l.log.Infof("published %s event", event.Event)
}

func (l *loop) shutdown(reason string) {
	l.publishSystem(mqtt.SystemEvent{
		Timestamp: l.now(),
		Event:     "SHUTDOWN",
		Reason:    reason,
		Retained:  true,
	}, reason)
	if l.indicator != nil {
		if err := l.indicator.SetIndicator(false); err != nil {
			l.log.Warnf("indicator: %v", err)
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
