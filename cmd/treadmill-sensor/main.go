// Command treadmill-sensor ranges a treadmill deck with an HC-SR04 sensor and
// reports debounced occupancy changes to InfluxDB, MQTT and a local event log.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sweeney/treadmill-sensor/internal/config"
	"github.com/sweeney/treadmill-sensor/internal/gpio"
	"github.com/sweeney/treadmill-sensor/internal/influx"
	"github.com/sweeney/treadmill-sensor/internal/logic"
	"github.com/sweeney/treadmill-sensor/internal/mqtt"
	"github.com/sweeney/treadmill-sensor/internal/sonar"
	"github.com/sweeney/treadmill-sensor/internal/status"
	"github.com/sweeney/treadmill-sensor/internal/store"
	"github.com/sweeney/treadmill-sensor/internal/web"
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogLevel, cfg.LogJSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()
	log := logger.Sugar()

	if err := run(cfg, log); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func newLogger(level string, json bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.DisableStacktrace = true
	if !json {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return zc.Build()
}

func run(cfg config.Config, log *zap.SugaredLogger) (err error) {
	pins, err := gpio.NewRealPins(cfg.GPIO())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer func() {
		// leave the LED off and the lines released
		err = multierr.Combine(err, pins.SetIndicator(false), pins.Close())
	}()

	clk := clock.New()
	finder := sonar.New(pins, clk, cfg.Sonar())

	// Measure-once mode
	if cfg.MeasureOnce {
		return measureOnce(os.Stdout, finder, clk)
	}

	tracker := status.NewTracker(clk.Now(), statusConfig(cfg))
	if ni := readNetworkInfo(); ni != nil {
		tracker.SetNetwork(ni)
	}

	var s sinks

	if cfg.InfluxEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		resolved, err := influx.ResolveURL(ctx, net.DefaultResolver, cfg.InfluxURL)
		cancel()
		if err != nil {
			return fmt.Errorf("resolve influx host: %w", err)
		}
		log.Infof("influx: %s resolved to %s", cfg.InfluxURL, resolved)

		w := influx.NewRealWriter(cfg.Influx(resolved), log, func(err error) {
			tracker.RecordSinkError(status.SinkInflux, err)
		})
		defer w.Close()

		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		if err := w.Ping(ctx); err != nil {
			log.Warnf("influx: ping failed, writes will be retried: %v", err)
		}
		cancel()
		s.influx = w
	}

	if cfg.MQTTEnabled() {
		p, err := mqtt.NewRealPublisher(cfg.Broker, log)
		if err != nil {
			log.Warnf("mqtt disabled: %v", err)
		} else {
			defer p.Close()
			s.mqtt = p
			s.mqttStatus = p
		}
	}

	var events web.EventSource
	if cfg.DBPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("create event log dir: %w", err)
		}
		st, err := store.Open(cfg.DBPath, log)
		if err != nil {
			return fmt.Errorf("open event log: %w", err)
		}
		defer st.Close()
		s.store = st
		events = st
	}

	// Publish startup event with full status snapshot
	if s.mqtt != nil {
		snap := tracker.Snapshot()
		startup := mqtt.SystemEvent{
			Timestamp:  snap.Now,
			Event:      "STARTUP",
			Retained:   true,
			RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
		}
		if err := s.mqtt.PublishSystem(startup); err != nil {
			log.Warnf("failed to publish startup event: %v", err)
		} else {
			log.Infof("published startup event")
		}
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, events, log)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Infof("http status server listening on %s", cfg.HTTPAddr)
	}

	log.Infof("started: interval=%v confirmations=%d max-range=%.0fcm influx=%s broker=%s heartbeat=%v",
		cfg.Interval, cfg.Confirmations, cfg.MaxRangeCM, cfg.InfluxURL, cfg.Broker, cfg.Heartbeat)

	ticker := clk.Ticker(cfg.Interval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	l := &loop{
		ranger:         finder,
		indicator:      pins,
		detector:       logic.NewDetector(cfg.Confirmations, clk.Now()),
		sinks:          s,
		tracker:        tracker,
		heartbeat:      cfg.Heartbeat,
		recordOccupied: cfg.RecordOccupied,
		now:            clk.Now,
		log:            log,
	}
	return l.run(ticker.C, sigCh)
}

func measureOnce(w io.Writer, r sonar.Ranger, clk sonar.Clock) error {
	m := r.Measure()
	m.Time = clk.Now()
	c := logic.Classify(m)
	if m.Fault == logic.FaultGPIO {
		return fmt.Errorf("measure: %w", m.Err)
	}
	if m.Valid {
		fmt.Fprintf(w, "distance: %.2f cm, %s\n", m.DistanceCM, c.Presence)
	} else {
		fmt.Fprintf(w, "distance: none (%s), %s\n", m.Fault, c.Presence)
	}
	return nil
}

func statusConfig(cfg config.Config) status.Config {
	sc := status.Config{
		IntervalMs:     cfg.Interval.Milliseconds(),
		Confirmations:  cfg.Confirmations,
		HeartbeatMs:    cfg.Heartbeat.Milliseconds(),
		StartTimeoutMs: cfg.StartTimeout.Milliseconds(),
		MaxRangeCM:     cfg.MaxRangeCM,
		Broker:         cfg.Broker,
		InfluxURL:      cfg.InfluxURL,
		RecordOccupied: cfg.RecordOccupied,
		DBPath:         cfg.DBPath,
		HTTPAddr:       cfg.HTTPAddr,
	}
	if cfg.InfluxEnabled() {
		sc.InfluxBucket = influx.Bucket(cfg.InfluxDatabase, cfg.InfluxRetention)
	}
	return sc
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
