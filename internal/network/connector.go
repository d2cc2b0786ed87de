package network

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/logging"
	"github.com/nerrad567/mkr-telemetry/internal/retry"
)

// State is the Connector's view of the network session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Logger defines the logging interface for the connector.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}

// Connector joins a Link with bounded retry.
//
// Thread Safety:
//   - Not safe for concurrent use. The main loop is its only caller.
type Connector struct {
	link       Link
	ssid       string
	passphrase string
	policy     retry.Policy
	console    *logging.Console
	logger     Logger
	state      State
}

// NewConnector creates a Connector for the configured network.
//
// The retry policy is taken from cfg.Retry; a MaxAttempts of zero is
// rejected by config validation, so the connector always gives up eventually.
func NewConnector(link Link, cfg config.NetworkConfig, console *logging.Console) *Connector {
	c := &Connector{
		link:       link,
		ssid:       cfg.SSID,
		passphrase: cfg.Passphrase,
		console:    console,
		logger:     noopLogger{},
		state:      StateDisconnected,
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

// State returns the state reached by the last Connect call.
func (c *Connector) State() State {
	return c.state
}

// Connect joins the network, retrying per the policy.
//
// Console output mirrors the device's serial log: a prompt, one dot per
// failed attempt, then a success or give-up line.
//
// Returns:
//   - error: nil when connected, ErrJoinFailed when every attempt failed,
//     or the context error on shutdown
func (c *Connector) Connect(ctx context.Context) error {
	c.console.Print("Attempting to connect to the SSID: ", c.ssid, " ")
	c.state = StateConnecting

	attempts, err := c.policy.Do(ctx, c.joinOnce)
	switch {
	case err == nil:
		c.state = StateConnected
		c.console.Println()
		c.console.Println("You're connected to the network")
		c.console.Println()
		c.logger.Info("network joined", "ssid", c.ssid, "attempts", attempts)
		return nil

	case errors.Is(err, retry.ErrExhausted):
		c.state = StateDisconnected
		c.console.Println()
		c.console.Println("Failed to connect to the network after multiple attempts.")
		c.logger.Warn("network join gave up", "ssid", c.ssid, "attempts", attempts, "error", err)
		return fmt.Errorf("%w: %w", ErrJoinFailed, err)

	default:
		c.state = StateDisconnected
		c.console.Println()
		return err
	}
}

// joinOnce is a single join attempt.
func (c *Connector) joinOnce(ctx context.Context) error {
	status, err := c.link.Join(ctx, c.ssid, c.passphrase)
	if err != nil {
		return err
	}
	if status != StatusConnected {
		return fmt.Errorf("%w: status %s", ErrNotJoined, status)
	}
	return nil
}

func (c *Connector) onFailure(attempt int, err error) {
	c.console.Print(".")
	c.logger.Debug("network join attempt failed", "attempt", attempt, "error", err)
}
