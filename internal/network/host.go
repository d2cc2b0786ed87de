package network

import (
	"context"
	"net"
)

// hostInterface is the subset of interface state HostLink looks at.
type hostInterface struct {
	Name     string
	Up       bool
	Loopback bool
	Addrs    int
}

// HostLink treats the host operating system as the network manager.
//
// The agent has no credentials to offer: a join simply re-reads interface
// state. The link counts as connected when any non-loopback interface is
// up and carries an address.
type HostLink struct {
	interfaces func() ([]hostInterface, error)
}

// NewHostLink returns a HostLink reading the system interface table.
func NewHostLink() *HostLink {
	return &HostLink{interfaces: systemInterfaces}
}

// Join re-checks the link; ssid and passphrase are ignored.
func (l *HostLink) Join(ctx context.Context, _, _ string) (Status, error) {
	return l.Status(ctx), nil
}

// Status reports connected when a usable interface exists.
func (l *HostLink) Status(_ context.Context) Status {
	ifaces, err := l.interfaces()
	if err != nil {
		return StatusUnavailable
	}

	for _, iface := range ifaces {
		if iface.Up && !iface.Loopback && iface.Addrs > 0 {
			return StatusConnected
		}
	}
	return StatusDisconnected
}

// Scan counts the non-loopback interfaces that are up.
func (l *HostLink) Scan(_ context.Context) (int, error) {
	ifaces, err := l.interfaces()
	if err != nil {
		return 0, err
	}

	count := 0
	for _, iface := range ifaces {
		if iface.Up && !iface.Loopback {
			count++
		}
	}
	return count, nil
}

func systemInterfaces() ([]hostInterface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make([]hostInterface, 0, len(ifaces))
	for _, iface := range ifaces {
		hi := hostInterface{
			Name:     iface.Name,
			Up:       iface.Flags&net.FlagUp != 0,
			Loopback: iface.Flags&net.FlagLoopback != 0,
		}
		if addrs, err := iface.Addrs(); err == nil {
			hi.Addrs = len(addrs)
		}
		out = append(out, hi)
	}
	return out, nil
}
