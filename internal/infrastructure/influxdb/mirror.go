package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/mkr-telemetry/internal/telemetry"
)

const (
	defaultPingTimeout    = 5 * time.Second
	defaultHealthInterval = 30 * time.Second
	defaultBatchSize      = 100
	defaultFlushInterval  = 10 // seconds

	measurementTelemetry = "telemetry"
)

// Logger defines the logging interface for the mirror.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

var _ telemetry.Sink = (*Mirror)(nil)

// Mirror writes telemetry samples to InfluxDB.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Record never blocks on the network.
type Mirror struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	cfg      config.InfluxDBConfig
	now      func() time.Time

	mu      sync.RWMutex
	healthy bool
	closed  bool
	onError func(err error)
	logger  Logger

	dropped atomic.Uint64
}

// Open creates the mirror and pings the server once.
//
// A failed ping is not an error: the mirror starts paused and Healthy
// reports false until a later HealthCheck succeeds. Open only fails when
// the mirror is disabled.
func Open(ctx context.Context, cfg config.InfluxDBConfig) (*Mirror, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	// #nosec G115 -- both values are positive here
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batchSize)).
			SetFlushInterval(uint(flushInterval)*1000),
	)

	m := &Mirror{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		cfg:      cfg,
		now:      time.Now,
		logger:   noopLogger{},
	}
	go m.forwardErrors(m.writeAPI.Errors())

	_ = m.HealthCheck(ctx)
	return m, nil
}

func (m *Mirror) forwardErrors(errs <-chan error) {
	for err := range errs {
		m.mu.RLock()
		callback := m.onError
		m.mu.RUnlock()
		if callback != nil {
			callback(err)
		}
	}
}

// SetLogger sets the logger used for pause and resume notices.
func (m *Mirror) SetLogger(logger Logger) {
	m.mu.Lock()
	m.logger = logger
	m.mu.Unlock()
}

// SetOnError sets the callback for asynchronous batch write failures.
func (m *Mirror) SetOnError(callback func(err error)) {
	m.mu.Lock()
	m.onError = callback
	m.mu.Unlock()
}

// Healthy reports whether the last ping succeeded.
func (m *Mirror) Healthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy && !m.closed
}

// Dropped returns the number of samples discarded while paused or closed.
func (m *Mirror) Dropped() uint64 {
	return m.dropped.Load()
}

// HealthCheck pings the server and pauses or resumes the mirror to match.
func (m *Mirror) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	ok, err := m.client.Ping(pingCtx)
	switch {
	case err != nil:
		err = fmt.Errorf("%w: %w", ErrUnhealthy, err)
	case !ok:
		err = ErrUnhealthy
	}
	m.setHealthy(err == nil, err)
	return err
}

func (m *Mirror) setHealthy(healthy bool, cause error) {
	m.mu.Lock()
	changed := m.healthy != healthy
	m.healthy = healthy
	logger := m.logger
	m.mu.Unlock()

	if !changed {
		return
	}
	if healthy {
		logger.Info("telemetry mirror resumed", "url", m.cfg.URL)
	} else {
		logger.Warn("telemetry mirror paused", "url", m.cfg.URL, "error", cause)
	}
}

// Watch re-pings the server every health interval until ctx is done.
func (m *Mirror) Watch(ctx context.Context) {
	interval := m.cfg.HealthInterval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.HealthCheck(ctx); errors.Is(err, ErrClosed) {
				return
			}
		}
	}
}

// Record queues one sample. It implements telemetry.Sink.
func (m *Mirror) Record(_ context.Context, s telemetry.Sample) {
	m.RecordAt(s, m.now())
}

// RecordAt queues a sample with an explicit timestamp.
func (m *Mirror) RecordAt(s telemetry.Sample, at time.Time) {
	if !m.Healthy() {
		m.dropped.Add(1)
		return
	}

	m.writeAPI.WritePoint(write.NewPoint(
		measurementTelemetry,
		map[string]string{
			"vehicle_id":   s.VehicleID,
			"device_model": s.DeviceModel,
		},
		map[string]interface{}{
			"temperature": s.Temperature,
			"humidity":    s.Humidity,
		},
		at,
	))
}

// Flush blocks until every queued point has been sent. No-op once closed.
func (m *Mirror) Flush() {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed || m.writeAPI == nil {
		return
	}
	m.writeAPI.Flush()
}

// Close flushes queued points and releases the client. Later calls are
// no-ops.
func (m *Mirror) Close() error {
	if m.client == nil {
		return nil
	}

	m.Flush()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.client.Close()
	return nil
}
