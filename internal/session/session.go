package session

import (
	"context"
	"fmt"

	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/logging"
	"github.com/nerrad567/mkr-telemetry/internal/retry"
)

// Session is the broker connection the Connector drives.
// *mqtt.Client satisfies it.
type Session interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Subscribe(topic string) error
}

// State is the Connector's view of the secure session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateSubscribed   State = "subscribed"
)

// Logger defines the logging interface for the connector.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Connector establishes the secure session with unbounded retry.
//
// Thread Safety:
//   - Not safe for concurrent use. The main loop is its only caller.
type Connector struct {
	session  Session
	host     string
	incoming string
	policy   retry.Policy
	console  *logging.Console
	logger   Logger
	state    State
}

// NewConnector creates a Connector for the configured broker.
//
// cfg.Retry supplies the backoff. Its MaxAttempts is normally zero; a
// positive value caps the attempts and Connect then returns an error
// wrapping retry.ErrExhausted.
func NewConnector(session Session, cfg config.MQTTConfig, console *logging.Console) *Connector {
	c := &Connector{
		session:  session,
		host:     cfg.Broker.Host,
		incoming: cfg.Topics.Incoming,
		console:  console,
		logger:   noopLogger{},
		state:    StateDisconnected,
	}
	c.policy = retry.Policy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		Backoff:     retry.FromSettings(cfg.Retry.Delay, cfg.Retry.MaxDelay),
		OnFailure:   c.onFailure,
	}
	return c
}

// SetLogger sets the logger for the connector.
func (c *Connector) SetLogger(logger Logger) {
	c.logger = logger
}

// SetSleep replaces the backoff wait. Tests use it to avoid real delays.
func (c *Connector) SetSleep(sleep retry.SleepFunc) {
	c.policy.Sleep = sleep
}

// State returns the connector state, downgraded to disconnected when the
// session has dropped since the last Connect.
func (c *Connector) State() State {
	if c.state != StateDisconnected && !c.session.IsConnected() {
		c.state = StateDisconnected
	}
	return c.state
}

// IsConnected reports whether the underlying session is up.
func (c *Connector) IsConnected() bool {
	return c.session.IsConnected()
}

// Connect retries the session until it is up, then subscribes to the
// inbound topic. A failed subscribe is logged and does not fail Connect.
func (c *Connector) Connect(ctx context.Context) error {
	c.console.Print("Attempting to MQTT broker: ", c.host, " ")
	c.console.Println()
	c.state = StateConnecting

	attempts, err := c.policy.Do(ctx, c.attempt)
	if err != nil {
		c.state = StateDisconnected
		c.console.Println()
		c.logger.Warn("broker connect abandoned", "host", c.host, "attempts", attempts, "error", err)
		return fmt.Errorf("session connect: %w", err)
	}

	c.state = StateConnected
	c.console.Println()
	c.console.Println("You're connected to the MQTT broker")
	c.console.Println()
	c.logger.Info("broker connected", "host", c.host, "attempts", attempts)

	if c.incoming == "" {
		return nil
	}
	if err := c.session.Subscribe(c.incoming); err != nil {
		c.logger.Warn("subscribe failed", "topic", c.incoming, "error", err)
		return nil
	}
	c.state = StateSubscribed
	c.logger.Debug("subscribed", "topic", c.incoming)
	return nil
}

// attempt treats a session that is already up as connected, including one
// that came up after its Connect call had given up on it.
func (c *Connector) attempt(ctx context.Context) error {
	if c.session.IsConnected() {
		return nil
	}
	err := c.session.Connect(ctx)
	if err != nil && c.session.IsConnected() {
		c.logger.Debug("broker connect reported failure on a live session", "error", err)
		return nil
	}
	return err
}

func (c *Connector) onFailure(attempt int, err error) {
	c.console.Print(".")
	c.logger.Debug("broker connect attempt failed", "attempt", attempt, "error", err)
}
