package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds a connection attempt when none is configured.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds the wait for status publishes on shutdown.
	defaultPublishTimeout = 5 * time.Second

	// defaultSubscribeTimeout is the maximum time to wait for a SUBACK.
	defaultSubscribeTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultInboundQueue is used when the configured queue size is not positive.
	defaultInboundQueue = 64

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// protocolVersion311 pins MQTT 3.1.1. Without it paho falls back to
	// 3.1 on a failed handshake and dials again with a fresh deadline.
	protocolVersion311 = 4

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho MQTT options from the agent config.
//
// This configures:
//   - Broker URL (tcp:// or ssl:// based on TLS setting)
//   - Client ID and optional credentials
//   - Clean session mode over MQTT 3.1.1 only
//   - No automatic reconnection or connect retry
func buildClientOptions(cfg config.MQTTConfig, clientID string, tlsConfig *tls.Config) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s", scheme, cfg.BrokerAddress()))

	opts.SetClientID(clientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetProtocolVersion(protocolVersion311)

	// The device loop owns reconnection.
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(timeout)

	if cfg.KeepAlive > 0 {
		opts.SetKeepAlive(cfg.KeepAlive)
	}

	if cfg.Broker.TLS && tlsConfig != nil {
		opts.SetTLSConfig(tlsConfig)
	}

	return opts
}

// NewTLSConfig builds the client TLS configuration.
//
// cert carries the device certificate and a signer backed by the secure
// element. caPEM, when non-empty, replaces the system roots. now supplies the
// time used for certificate validity checks; nil means the system clock.
func NewTLSConfig(cert tls.Certificate, caPEM []byte, now func() time.Time) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:   tlsMinVersion,
		Certificates: []tls.Certificate{cert},
		Time:         now,
	}

	if len(caPEM) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("%w: no certificates found in CA bundle", ErrTLSConfig)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// configureLWT sets up Last Will and Testament for offline detection.
//
// The broker publishes the will if the device drops without a clean
// disconnect. QoS 1, retained, so new subscribers see the last status.
func configureLWT(opts *pahomqtt.ClientOptions, topic, clientID string) {
	willPayload := fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"unexpected_disconnect","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)

	opts.SetWill(topic, willPayload, 1, true)
}

// buildOnlinePayload creates the JSON payload for online status messages.
func buildOnlinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"online","client_id":"%s","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}

// buildOfflinePayload creates the JSON payload for graceful offline status.
func buildOfflinePayload(clientID string) string {
	return fmt.Sprintf(
		`{"status":"offline","client_id":"%s","reason":"graceful_shutdown","timestamp":"%s"}`,
		clientID,
		time.Now().UTC().Format(time.RFC3339),
	)
}
