package network

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/logging"
)

// fakeLink fails the first `failures` joins, then connects.
type fakeLink struct {
	failures  int
	joinCalls int
	joinErr   error
	scanCount int
	ssid      string
	pass      string
}

func (f *fakeLink) Join(_ context.Context, ssid, passphrase string) (Status, error) {
	f.joinCalls++
	f.ssid, f.pass = ssid, passphrase
	if f.joinCalls <= f.failures {
		if f.joinErr != nil {
			return StatusDisconnected, f.joinErr
		}
		return StatusConnecting, nil
	}
	return StatusConnected, nil
}

func (f *fakeLink) Status(_ context.Context) Status {
	if f.joinCalls > f.failures {
		return StatusConnected
	}
	return StatusDisconnected
}

func (f *fakeLink) Scan(_ context.Context) (int, error) {
	return f.scanCount, nil
}

func testNetworkConfig() config.NetworkConfig {
	return config.NetworkConfig{
		Driver:     config.NetworkDriverNmcli,
		SSID:       "workshop",
		Passphrase: "hunter2",
		Retry: config.RetryConfig{
			MaxAttempts: 10,
			Delay:       time.Second,
		},
	}
}

// newTestConnector wires a connector with a non-blocking sleep.
func newTestConnector(link Link, cfg config.NetworkConfig) (*Connector, *bytes.Buffer, *[]time.Duration) {
	var out bytes.Buffer
	var delays []time.Duration

	c := NewConnector(link, cfg, logging.NewConsole(&out))
	c.SetSleep(func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	})
	return c, &out, &delays
}

func TestConnector_FailsThreeTimesThenSucceeds(t *testing.T) {
	link := &fakeLink{failures: 3}
	c, out, delays := newTestConnector(link, testNetworkConfig())

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if link.joinCalls != 4 {
		t.Errorf("join calls = %d, want 4", link.joinCalls)
	}
	if got := strings.Count(out.String(), "."); got != 3 {
		t.Errorf("retry dots = %d, want 3 (output %q)", got, out.String())
	}

	want := "Attempting to connect to the SSID: workshop ...\nYou're connected to the network\n\n"
	if out.String() != want {
		t.Errorf("console = %q, want %q", out.String(), want)
	}
	if len(*delays) != 3 {
		t.Errorf("backoff waits = %d, want 3", len(*delays))
	}
	for _, d := range *delays {
		if d != time.Second {
			t.Errorf("backoff = %v, want 1s", d)
		}
	}
	if c.State() != StateConnected {
		t.Errorf("State() = %v, want %v", c.State(), StateConnected)
	}
	if link.ssid != "workshop" || link.pass != "hunter2" {
		t.Errorf("Join() got ssid=%q pass=%q", link.ssid, link.pass)
	}
}

func TestConnector_JoinCountIsMinOfFailuresAndCap(t *testing.T) {
	for n := 0; n <= 25; n++ {
		link := &fakeLink{failures: n}
		c, _, _ := newTestConnector(link, testNetworkConfig())

		err := c.Connect(context.Background())

		wantCalls := min(n+1, 10)
		if link.joinCalls != wantCalls {
			t.Errorf("failures=%d: join calls = %d, want %d", n, link.joinCalls, wantCalls)
		}
		if n < 10 && err != nil {
			t.Errorf("failures=%d: Connect() error = %v, want nil", n, err)
		}
		if n >= 10 && !errors.Is(err, ErrJoinFailed) {
			t.Errorf("failures=%d: Connect() error = %v, want ErrJoinFailed", n, err)
		}
	}
}

func TestConnector_GivesUpAfterCap(t *testing.T) {
	link := &fakeLink{failures: 1 << 30, joinErr: errors.New("no carrier")}
	c, out, _ := newTestConnector(link, testNetworkConfig())

	err := c.Connect(context.Background())
	if !errors.Is(err, ErrJoinFailed) {
		t.Fatalf("Connect() error = %v, want ErrJoinFailed", err)
	}

	if link.joinCalls != 10 {
		t.Errorf("join calls = %d, want 10", link.joinCalls)
	}
	if got := strings.Count(out.String(), "."); got != 10 {
		t.Errorf("retry dots = %d, want 10", got)
	}
	if !strings.HasSuffix(out.String(), "\nFailed to connect to the network after multiple attempts.\n") {
		t.Errorf("console = %q, want give-up line", out.String())
	}
	if c.State() != StateDisconnected {
		t.Errorf("State() = %v, want %v", c.State(), StateDisconnected)
	}
}

func TestConnector_CustomCap(t *testing.T) {
	cfg := testNetworkConfig()
	cfg.Retry.MaxAttempts = 3

	link := &fakeLink{failures: 100}
	c, _, _ := newTestConnector(link, cfg)

	if err := c.Connect(context.Background()); !errors.Is(err, ErrJoinFailed) {
		t.Fatalf("Connect() error = %v, want ErrJoinFailed", err)
	}
	if link.joinCalls != 3 {
		t.Errorf("join calls = %d, want 3", link.joinCalls)
	}
}

func TestConnector_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	link := &fakeLink{failures: 100}
	c := NewConnector(link, testNetworkConfig(), logging.NewConsole(&bytes.Buffer{}))
	c.SetSleep(func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	})

	err := c.Connect(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Connect() error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrJoinFailed) {
		t.Error("Connect() cancellation should not report ErrJoinFailed")
	}
	if link.joinCalls != 1 {
		t.Errorf("join calls = %d, want 1", link.joinCalls)
	}
}

func TestNewLink(t *testing.T) {
	tests := []struct {
		driver  string
		want    string
		wantErr bool
	}{
		{driver: config.NetworkDriverHost, want: "*network.HostLink"},
		{driver: "", want: "*network.HostLink"},
		{driver: config.NetworkDriverNmcli, want: "*network.NmcliLink"},
		{driver: "zigbee", wantErr: true},
	}

	for _, tt := range tests {
		link, err := NewLink(config.NetworkConfig{Driver: tt.driver})
		if (err != nil) != tt.wantErr {
			t.Errorf("NewLink(%q) error = %v, wantErr %v", tt.driver, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			continue
		}
		switch link.(type) {
		case *HostLink:
			if tt.want != "*network.HostLink" {
				t.Errorf("NewLink(%q) = HostLink, want %s", tt.driver, tt.want)
			}
		case *NmcliLink:
			if tt.want != "*network.NmcliLink" {
				t.Errorf("NewLink(%q) = NmcliLink, want %s", tt.driver, tt.want)
			}
		}
	}
}

type clockLink struct {
	fakeLink
	now time.Time
}

func (c *clockLink) Time() time.Time { return c.now }

func TestTimeSource(t *testing.T) {
	fixed := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	if got := TimeSource(&clockLink{now: fixed})(); !got.Equal(fixed) {
		t.Errorf("TimeSource(clock link)() = %v, want %v", got, fixed)
	}

	before := time.Now()
	got := TimeSource(&fakeLink{})()
	if got.Before(before) {
		t.Errorf("TimeSource(plain link)() = %v, want wall clock", got)
	}
}
