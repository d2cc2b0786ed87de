package network

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/config"
)

// Status is the link state reported by a driver.
type Status string

// Link statuses. Only StatusConnected counts as joined.
const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusUnavailable  Status = "unavailable"
)

// Link is the network hardware or service the agent joins through.
type Link interface {
	// Join attempts to associate with the named network once.
	Join(ctx context.Context, ssid, passphrase string) (Status, error)

	// Status reports the current link state.
	Status(ctx context.Context) Status

	// Scan returns how many networks are visible. Informational only.
	Scan(ctx context.Context) (int, error)
}

// Clock supplies the current time to the TLS layer for certificate
// validity checks. Links that know better than the host clock (an NTP
// capable radio, for example) can implement it.
type Clock interface {
	Time() time.Time
}

// TimeSource returns the link's clock if it has one, else time.Now.
func TimeSource(l Link) func() time.Time {
	if c, ok := l.(Clock); ok {
		return c.Time
	}
	return time.Now
}

// NewLink builds the driver named by cfg.Driver.
func NewLink(cfg config.NetworkConfig) (Link, error) {
	switch cfg.Driver {
	case config.NetworkDriverHost, "":
		return NewHostLink(), nil
	case config.NetworkDriverNmcli:
		return NewNmcliLink(cfg.Interface), nil
	default:
		return nil, fmt.Errorf("network: unknown driver %q", cfg.Driver)
	}
}
