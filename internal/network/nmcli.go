package network

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
)

const (
	// nmcliBinary is resolved through PATH.
	nmcliBinary = "nmcli"

	// profilePrefix names the connection profiles the agent owns.
	profilePrefix = "mkr-"

	// pskNotSaved is NM_SETTING_SECRET_FLAG_NOT_SAVED: the profile never
	// stores the passphrase; it must be supplied on every activation.
	pskNotSaved = "2"
)

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// execRunner runs commands with os/exec.
func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput() //nolint:gosec // fixed binary, arguments from config
}

// NmcliLink joins WiFi networks through NetworkManager's command line client.
//
// Each SSID gets an agent-owned connection profile with an unsaved PSK.
// Activation hands the passphrase over in a passwd-file, so it never
// appears in a process argument list or in NetworkManager's stored
// settings.
type NmcliLink struct {
	iface   string
	run     Runner
	tempDir string // passwd-file location; empty means os.TempDir
}

// NewNmcliLink returns a link driving nmcli. iface restricts operations to
// one wireless device; empty lets NetworkManager choose.
func NewNmcliLink(iface string) *NmcliLink {
	return &NmcliLink{iface: iface, run: execRunner}
}

// Join activates the SSID's profile once, creating the profile first if
// needed, and reports the resulting state.
func (l *NmcliLink) Join(ctx context.Context, ssid, passphrase string) (Status, error) {
	name := profilePrefix + ssid
	if err := l.ensureProfile(ctx, name, ssid, passphrase != ""); err != nil {
		return StatusDisconnected, err
	}

	args := []string{"connection", "up", "id", name}
	if l.iface != "" {
		args = append(args, "ifname", l.iface)
	}
	if passphrase != "" {
		path, err := l.writePasswdFile(passphrase)
		if err != nil {
			return StatusDisconnected, err
		}
		defer os.Remove(path)
		args = append(args, "passwd-file", path)
	}

	out, err := l.run(ctx, nmcliBinary, args...)
	if err != nil {
		return StatusDisconnected, fmt.Errorf("nmcli connect: %w: %s", err, strings.TrimSpace(string(out)))
	}

	return l.Status(ctx), nil
}

// ensureProfile adds the wifi profile name unless it already exists.
func (l *NmcliLink) ensureProfile(ctx context.Context, name, ssid string, secured bool) error {
	out, err := l.run(ctx, nmcliBinary, "-t", "-f", "NAME", "connection", "show")
	if err != nil {
		return fmt.Errorf("nmcli list profiles: %w: %s", err, strings.TrimSpace(string(out)))
	}
	if slices.Contains(lines(out), name) {
		return nil
	}

	iface := l.iface
	if iface == "" {
		iface = "*"
	}
	args := []string{"connection", "add", "type", "wifi", "con-name", name, "ifname", iface, "ssid", ssid}
	if secured {
		args = append(args, "wifi-sec.key-mgmt", "wpa-psk", "wifi-sec.psk-flags", pskNotSaved)
	}

	out, err = l.run(ctx, nmcliBinary, args...)
	if err != nil {
		return fmt.Errorf("nmcli add profile: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// writePasswdFile stores the PSK in a 0600 file in nmcli's passwd-file
// format. The caller removes it.
func (l *NmcliLink) writePasswdFile(passphrase string) (string, error) {
	f, err := os.CreateTemp(l.tempDir, "mkr-psk-*")
	if err != nil {
		return "", fmt.Errorf("nmcli passwd-file: %w", err)
	}
	path := f.Name()

	_, err = fmt.Fprintf(f, "802-11-wireless-security.psk:%s\n", passphrase)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("nmcli passwd-file: %w", err)
	}
	return path, nil
}

// Status parses "nmcli -t -f DEVICE,TYPE,STATE device" and returns the best
// state among wifi devices.
func (l *NmcliLink) Status(ctx context.Context) Status {
	out, err := l.run(ctx, nmcliBinary, "-t", "-f", "DEVICE,TYPE,STATE", "device")
	if err != nil {
		return StatusUnavailable
	}

	best := StatusUnavailable
	for _, line := range lines(out) {
		fields := strings.SplitN(line, ":", 3)
		if len(fields) != 3 || fields[1] != "wifi" {
			continue
		}
		if l.iface != "" && fields[0] != l.iface {
			continue
		}
		if s := parseNmcliState(fields[2]); rank(s) > rank(best) {
			best = s
		}
	}
	return best
}

// Scan rescans and counts visible networks.
func (l *NmcliLink) Scan(ctx context.Context) (int, error) {
	args := []string{"-t", "-f", "SSID", "device", "wifi", "list", "--rescan", "yes"}
	if l.iface != "" {
		args = append(args, "ifname", l.iface)
	}

	out, err := l.run(ctx, nmcliBinary, args...)
	if err != nil {
		return 0, fmt.Errorf("nmcli scan: %w", err)
	}
	return len(lines(out)), nil
}

// parseNmcliState maps NetworkManager device states, which may carry a
// parenthesised detail such as "connecting (getting IP configuration)".
func parseNmcliState(state string) Status {
	switch {
	case strings.HasPrefix(state, "connected"):
		return StatusConnected
	case strings.HasPrefix(state, "connecting"):
		return StatusConnecting
	case strings.HasPrefix(state, "disconnected"):
		return StatusDisconnected
	default:
		return StatusUnavailable
	}
}

func rank(s Status) int {
	switch s {
	case StatusConnected:
		return 3
	case StatusConnecting:
		return 2
	case StatusDisconnected:
		return 1
	default:
		return 0
	}
}

// lines splits command output, keeping blank lines inside the output
// (hidden SSIDs print as empty) but dropping the trailing newline.
func lines(out []byte) []string {
	trimmed := bytes.TrimRight(out, "\n")
	if len(trimmed) == 0 {
		return nil
	}
	return strings.Split(string(trimmed), "\n")
}
