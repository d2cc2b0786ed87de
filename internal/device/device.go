package device

import (
	"context"
	"time"

	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/logging"
	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/mqtt"
	"github.com/nerrad567/mkr-telemetry/internal/network"
	"github.com/nerrad567/mkr-telemetry/internal/telemetry"
)

// Default loop timing, used when the configuration leaves them unset.
const (
	defaultTickInterval  = 10 * time.Millisecond
	defaultPublishPeriod = time.Second
)

// NetworkConnector joins the network. *network.Connector satisfies it.
type NetworkConnector interface {
	Connect(ctx context.Context) error
}

// SessionConnector brings the secure session up. *session.Connector
// satisfies it.
type SessionConnector interface {
	Connect(ctx context.Context) error
	IsConnected() bool
}

// Transport carries telemetry out and queues inbound messages.
// *mqtt.Client satisfies it.
type Transport interface {
	telemetry.Sender
	Poll() (mqtt.Message, bool)
}

// Publisher sends one telemetry sample. *telemetry.Publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, sender telemetry.Sender) error
}

// MessageHandler consumes one inbound message. *inbound.Handler satisfies it.
type MessageHandler interface {
	HandlePayload(topic string, payload []byte) int
}

// Logger defines the logging interface for the loop.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Components are the collaborators a Device drives.
type Components struct {
	Link      network.Link
	Network   NetworkConnector
	Session   SessionConnector
	Transport Transport
	Publisher Publisher
	Handler   MessageHandler
	Console   *logging.Console

	// Now is the loop clock. Nil means time.Now.
	Now func() time.Time
}

// Device is the main loop and its state.
//
// Thread Safety:
//   - Not safe for concurrent use. Run owns the Device.
type Device struct {
	link      network.Link
	network   NetworkConnector
	session   SessionConnector
	transport Transport
	publisher Publisher
	handler   MessageHandler
	console   *logging.Console
	logger    Logger
	now       func() time.Time

	tickInterval  time.Duration
	publishPeriod time.Duration

	// lastPublish is when the last publish was attempted, successful or not.
	lastPublish time.Time
}

// New creates a Device. The publish timer starts now, so the first sample
// goes out one period after construction at the earliest.
func New(c Components, cfg config.Config) *Device {
	now := c.Now
	if now == nil {
		now = time.Now
	}

	tick := cfg.Device.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}
	period := cfg.Telemetry.Interval
	if period <= 0 {
		period = defaultPublishPeriod
	}

	return &Device{
		link:          c.Link,
		network:       c.Network,
		session:       c.Session,
		transport:     c.Transport,
		publisher:     c.Publisher,
		handler:       c.Handler,
		console:       c.Console,
		logger:        noopLogger{},
		now:           now,
		tickInterval:  tick,
		publishPeriod: period,
		lastPublish:   now(),
	}
}

// SetLogger sets the logger for the loop.
func (d *Device) SetLogger(logger Logger) {
	d.logger = logger
}

// LastPublish returns when the last publish was attempted.
func (d *Device) LastPublish() time.Time {
	return d.lastPublish
}

// Run calls Tick every tick interval until ctx is cancelled.
// Cancellation is a clean stop and returns nil.
func (d *Device) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.tickInterval)
	defer ticker.Stop()

	d.logger.Info("device loop started",
		"tick_interval", d.tickInterval,
		"publish_period", d.publishPeriod,
	)

	for {
		if err := d.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			d.logger.Info("device loop stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one loop iteration:
//
//  1. Join the network if the link is down. Failure is logged and the
//     iteration continues.
//  2. Bring the secure session up if the network is up and the session is
//     down. This blocks until it succeeds or ctx is cancelled.
//  3. Drain queued inbound messages.
//  4. Publish if the session is up and more than one period has passed.
//
// Tick returns an error only when ctx is cancelled during a connect.
func (d *Device) Tick(ctx context.Context) error {
	networkUp := d.ensureNetwork(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}

	if networkUp && !d.session.IsConnected() {
		if err := d.session.Connect(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			d.logger.Warn("secure session unavailable", "error", err)
		}
	}

	d.drain()

	if !d.session.IsConnected() {
		return nil
	}

	now := d.now()
	if now.Sub(d.lastPublish) > d.publishPeriod {
		// The timer resets whether or not the send succeeds.
		d.lastPublish = now
		_ = d.publisher.Publish(ctx, d.transport)
	}
	return nil
}

// ensureNetwork reports whether the network is usable, joining it first
// when the link is down. A live session implies a live link, which keeps
// link queries off the steady-state path.
func (d *Device) ensureNetwork(ctx context.Context) bool {
	if d.session.IsConnected() {
		return true
	}
	if d.link.Status(ctx) == network.StatusConnected {
		return true
	}

	if n, err := d.link.Scan(ctx); err != nil {
		d.logger.Debug("network scan failed", "error", err)
	} else {
		d.console.Printf("Discovered %d Networks\n", n)
	}

	if err := d.network.Connect(ctx); err != nil {
		if ctx.Err() == nil {
			d.logger.Warn("network unavailable, retrying next tick", "error", err)
		}
		return false
	}
	return true
}

// drain hands every queued inbound message to the handler.
func (d *Device) drain() {
	for {
		msg, ok := d.transport.Poll()
		if !ok {
			return
		}
		d.handler.HandlePayload(msg.Topic, msg.Payload)
	}
}
