package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"go.uber.org/zap"
)

// RealWriter writes to an actual InfluxDB server through the client's
// asynchronous write API.
type RealWriter struct {
	client  influxdb2.Client
	api     api.WriteAPI
	log     *zap.SugaredLogger
	onError func(error)
	done    chan struct{}
	drained chan struct{}
}

// NewRealWriter creates a writer for cfg. onError, if non-nil, is called
// from a background goroutine for every failed write.
func NewRealWriter(cfg Config, log *zap.SugaredLogger, onError func(error)) *RealWriter {
	// Batch size 1 so every point leaves immediately; the write itself
	// happens on the client's goroutine.
	opts := influxdb2.DefaultOptions().
		SetBatchSize(1).
		SetFlushInterval(1000).
		SetPrecision(time.Nanosecond)

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	w := &RealWriter{
		client:  client,
		api:     client.WriteAPI(cfg.Org, cfg.Bucket),
		log:     log,
		onError: onError,
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}
	go w.drainErrors()
	return w
}

func (w *RealWriter) drainErrors() {
	defer close(w.drained)
	errs := w.api.Errors()
	for {
		select {
		case err, ok := <-errs:
			if !ok {
				return
			}
			w.log.Warnf("influx write error: %v", err)
			if w.onError != nil {
				w.onError(err)
			}
		case <-w.done:
			return
		}
	}
}

// Ping checks that the server is reachable.
func (w *RealWriter) Ping(ctx context.Context) error {
	ok, err := w.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping influx: %w", err)
	}
	if !ok {
		return fmt.Errorf("ping influx: server not ready")
	}
	return nil
}

// Write queues p for delivery.
func (w *RealWriter) Write(p Point) error {
	if p.Measurement == "" {
		return fmt.Errorf("write point: empty measurement")
	}
	w.api.WritePoint(influxdb2.NewPoint(p.Measurement, p.Tags, p.Fields, p.Time))
	return nil
}

// Close flushes queued points and closes the client.
func (w *RealWriter) Close() error {
	w.api.Flush()
	w.client.Close()
	close(w.done)
	<-w.drained
	return nil
}
