package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/config"
)

// Client wraps paho.mqtt.golang for a single device session.
//
// Connect makes exactly one attempt. Reconnection belongs to the caller,
// which decides when and how often to retry.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Poll is intended for a single consumer.
type Client struct {
	client   pahomqtt.Client
	options  *pahomqtt.ClientOptions
	cfg      config.MQTTConfig
	clientID string

	// inbound buffers received messages until the owner drains them.
	inbound chan Message

	// connected tracks current connection state.
	connected bool
	connMu    sync.RWMutex

	// Callbacks for connection events (optional, set via SetOnConnect/SetOnDisconnect).
	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	// logger for dropped-message and status logging (optional, set via SetLogger).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Message is an inbound message copied out of the paho callback.
type Message struct {
	Topic   string
	Payload []byte
}

// NewClient prepares a client without connecting.
//
// tlsConfig is required when cfg.Broker.TLS is set; build it with
// NewTLSConfig. An empty cfg.Broker.ClientID gets a generated "mkr-" ID.
func NewClient(cfg config.MQTTConfig, tlsConfig *tls.Config) (*Client, error) {
	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}
	if cfg.Broker.TLS && tlsConfig == nil {
		return nil, fmt.Errorf("%w: TLS enabled but no TLS config supplied", ErrTLSConfig)
	}

	clientID := cfg.Broker.ClientID
	if clientID == "" {
		clientID = generateClientID()
	}

	queueSize := cfg.InboundQueue
	if queueSize <= 0 {
		queueSize = defaultInboundQueue
	}

	opts := buildClientOptions(cfg, clientID, tlsConfig)
	if cfg.Topics.Status != "" {
		configureLWT(opts, cfg.Topics.Status, clientID)
	}

	c := &Client{
		cfg:      cfg,
		options:  opts,
		clientID: clientID,
		inbound:  make(chan Message, queueSize),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.handleConnect()
	})

	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.handleDisconnect(err)
	})

	c.client = pahomqtt.NewClient(opts)
	return c, nil
}

// generateClientID returns a short random identifier. MQTT 3.1.1 brokers
// are only required to accept IDs up to 23 bytes.
func generateClientID() string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "mkr-" + id[:12]
}

// ClientID returns the identifier presented to the broker.
func (c *Client) ClientID() string {
	return c.clientID
}

// Connect makes a single connection attempt.
//
// It returns when the broker acknowledges the connection, the attempt fails,
// cfg.ConnectTimeout elapses, or ctx is cancelled. An already connected
// client returns nil without dialling.
//
// On timeout the attempt is aborted and Connect waits for paho to let go of
// it, so no handshake outlives the call. On cancellation the abort is
// requested but not awaited.
func (c *Client) Connect(ctx context.Context) error {
	if c.client.IsConnected() {
		c.setConnected(true)
		return nil
	}

	timeout := c.cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	token := c.client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		c.abortConnect(ctx, token)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, ctx.Err())
	case <-timer.C:
		c.abortConnect(ctx, token)
		return fmt.Errorf("%w: %w after %v", ErrConnectionFailed, ErrTimeout, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The OnConnectHandler callback runs asynchronously and may not have
	// executed yet, so set the state here as well.
	c.setConnected(true)
	return nil
}

// abortConnect stops an in-flight connect. paho finishes the handshake it
// is in (bounded by its own connect timeout) and then drops the link.
func (c *Client) abortConnect(ctx context.Context, token pahomqtt.Token) {
	c.client.Disconnect(0)
	select {
	case <-token.Done():
	case <-ctx.Done():
	}
	c.setConnected(false)
}

// handleConnect is called when the connection is established.
func (c *Client) handleConnect() {
	c.setConnected(true)

	if c.cfg.Topics.Status != "" {
		c.client.Publish(c.cfg.Topics.Status, 1, true, buildOnlinePayload(c.clientID))
	}

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// handleDisconnect is called when the connection is lost.
func (c *Client) handleDisconnect(err error) {
	c.setConnected(false)

	if logger := c.getLogger(); logger != nil {
		logger.Warn("MQTT connection lost", "error", err)
	}

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

func (c *Client) setConnected(connected bool) {
	c.connMu.Lock()
	c.connected = connected
	c.connMu.Unlock()
}

// Close gracefully disconnects from the MQTT broker.
//
// When a status topic is configured, a graceful offline message is published
// first so watchers can tell a shutdown from the LWT crash status.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() && c.cfg.Topics.Status != "" {
		token := c.client.Publish(c.cfg.Topics.Status, 1, true, buildOfflinePayload(c.clientID))
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.setConnected(false)

	return nil
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client.IsConnected()
}

// SetOnConnect sets a callback to be invoked when connection is established.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets a callback to be invoked when connection is lost.
// The error parameter describes why the connection was lost.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets a logger for connection-loss and dropped-message warnings.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// getLogger returns the current logger (may be nil).
func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}
