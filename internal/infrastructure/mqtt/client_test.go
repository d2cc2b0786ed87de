package mqtt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"

	"github.com/nerrad567/mkr-telemetry/internal/infrastructure/config"
)

// freePort asks the kernel for an unused TCP port.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// testBroker is an in-process broker bound to a free port.
type testBroker struct {
	*mochi.Server
	port int
	once sync.Once
}

// Stop closes the broker. Safe to call more than once.
func (b *testBroker) Stop() {
	b.once.Do(func() {
		_ = b.Close()
	})
}

// startBroker runs an in-process broker that is stopped when the test ends.
func startBroker(t *testing.T) *testBroker {
	t.Helper()

	port := freePort(t)
	server := mochi.New(&mochi.Options{InlineClient: true})
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("AddHook() error = %v", err)
	}

	tcp := listeners.NewTCP(listeners.Config{
		ID:      fmt.Sprintf("test-%d", port),
		Address: fmt.Sprintf("127.0.0.1:%d", port),
	})
	if err := server.AddListener(tcp); err != nil {
		t.Fatalf("AddListener() error = %v", err)
	}

	go func() {
		_ = server.Serve()
	}()

	b := &testBroker{Server: server, port: port}
	t.Cleanup(b.Stop)
	return b
}

// testConfig returns a plain-TCP configuration pointing at port.
func testConfig(port int) config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     port,
			ClientID: "mkr-test",
		},
		Topics: config.MQTTTopicsConfig{
			Incoming: DefaultIncomingTopic,
			Outgoing: DefaultOutgoingTopic,
		},
		QoS:            0,
		KeepAlive:      30 * time.Second,
		ConnectTimeout: 3 * time.Second,
		InboundQueue:   8,
	}
}

func connectedClient(t *testing.T, cfg config.MQTTConfig) *Client {
	t.Helper()

	client, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	return client
}

// stallFirstProxy accepts connections on a local port. The first one is
// held open and never answered; every later one is piped to the broker at
// target.
func stallFirstProxy(t *testing.T, target int) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	track := func(c net.Conn) {
		mu.Lock()
		conns = append(conns, c)
		mu.Unlock()
	}
	t.Cleanup(func() {
		l.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})

	go func() {
		first := true
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			track(conn)
			if first {
				first = false
				go func() { _, _ = io.Copy(io.Discard, conn) }()
				continue
			}

			upstream, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", target))
			if err != nil {
				conn.Close()
				continue
			}
			track(upstream)
			go func() { _, _ = io.Copy(upstream, conn) }()
			go func() { _, _ = io.Copy(conn, upstream) }()
		}
	}()

	return l.Addr().(*net.TCPAddr).Port
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestNewClient_TLSWithoutConfig(t *testing.T) {
	cfg := testConfig(8883)
	cfg.Broker.TLS = true

	_, err := NewClient(cfg, nil)
	if !errors.Is(err, ErrTLSConfig) {
		t.Errorf("NewClient() error = %v, want ErrTLSConfig", err)
	}
}

func TestNewClient_InvalidQoS(t *testing.T) {
	cfg := testConfig(1883)
	cfg.QoS = 3

	_, err := NewClient(cfg, nil)
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("NewClient() error = %v, want ErrInvalidQoS", err)
	}
}

func TestNewClient_GeneratedClientID(t *testing.T) {
	cfg := testConfig(1883)
	cfg.Broker.ClientID = ""

	a, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	b, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if len(a.ClientID()) != 16 || a.ClientID()[:4] != "mkr-" {
		t.Errorf("ClientID() = %q, want mkr- followed by 12 characters", a.ClientID())
	}
	if a.ClientID() == b.ClientID() {
		t.Errorf("generated client IDs collided: %q", a.ClientID())
	}
}

func TestNewClient_ConfiguredClientID(t *testing.T) {
	client, err := NewClient(testConfig(1883), nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if client.ClientID() != "mkr-test" {
		t.Errorf("ClientID() = %q, want %q", client.ClientID(), "mkr-test")
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	broker := startBroker(t)
	client := connectedClient(t, testConfig(broker.port))

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
}

func TestConnect_NoBroker(t *testing.T) {
	client, err := NewClient(testConfig(freePort(t)), nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	err = client.Connect(context.Background())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after failed connect")
	}
}

func TestConnect_CancelledContext(t *testing.T) {
	// A listener that accepts but never answers CONNECT.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer l.Close()
	go func() {
		var conns []net.Conn
		defer func() {
			for _, c := range conns {
				c.Close()
			}
		}()
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			conns = append(conns, conn)
		}
	}()

	cfg := testConfig(l.Addr().(*net.TCPAddr).Port)
	cfg.ConnectTimeout = 10 * time.Second
	client, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = client.Connect(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Connect() error = %v, want context.DeadlineExceeded", err)
	}
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Connect() took %v after cancellation", elapsed)
	}
}

func TestConnect_AlreadyConnected(t *testing.T) {
	broker := startBroker(t)
	client := connectedClient(t, testConfig(broker.port))

	if err := client.Connect(context.Background()); err != nil {
		t.Errorf("Connect() on a live session error = %v, want nil", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false after second Connect()")
	}
}

func TestConnect_TimeoutAbortsHandshake(t *testing.T) {
	broker := startBroker(t)
	cfg := testConfig(stallFirstProxy(t, broker.port))
	cfg.ConnectTimeout = 300 * time.Millisecond

	client, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	err = client.Connect(context.Background())
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if client.IsConnected() {
		t.Fatal("IsConnected() = true after a timed-out attempt")
	}

	// Later attempts reach the broker through the proxy. None of them may
	// collide with a handshake left over from the first attempt.
	var lastErr error
	ok := eventually(t, 3*time.Second, func() bool {
		lastErr = client.Connect(context.Background())
		return lastErr == nil
	})
	if !ok {
		t.Fatalf("Connect() never succeeded, last error = %v", lastErr)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false after successful retry")
	}
}

func TestConnect_ReconnectAfterClose(t *testing.T) {
	broker := startBroker(t)
	client := connectedClient(t, testConfig(broker.port))

	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Fatal("IsConnected() = true after Close()")
	}

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() after Close() error = %v", err)
	}
	if !client.IsConnected() {
		t.Error("IsConnected() = false after reconnect")
	}
}

func TestConnectionLost(t *testing.T) {
	broker := startBroker(t)
	client := connectedClient(t, testConfig(broker.port))

	lost := make(chan error, 1)
	client.SetOnDisconnect(func(err error) {
		select {
		case lost <- err:
		default:
		}
	})

	broker.Stop()

	select {
	case <-lost:
	case <-time.After(5 * time.Second):
		t.Fatal("connection loss not reported")
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after broker shutdown")
	}
}

// =============================================================================
// Publish / Subscribe Tests
// =============================================================================

func TestPublish_NotConnected(t *testing.T) {
	client, err := NewClient(testConfig(1883), nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	err = client.Publish(DefaultOutgoingTopic, []byte("x"))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestPublish_Validation(t *testing.T) {
	client, err := NewClient(testConfig(1883), nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	tests := []struct {
		name    string
		topic   string
		payload []byte
		wantErr error
	}{
		{"empty topic", "", []byte("x"), ErrInvalidTopic},
		{"wildcard topic", "arduino/#", []byte("x"), ErrInvalidTopic},
		{"oversized payload", DefaultOutgoingTopic, make([]byte, maxPayloadSize+1), ErrPublishFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := client.Publish(tt.topic, tt.payload); !errors.Is(err, tt.wantErr) {
				t.Errorf("Publish() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubscribe_NotConnected(t *testing.T) {
	client, err := NewClient(testConfig(1883), nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if err := client.Subscribe(DefaultIncomingTopic); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestPublish_ReachesSubscriber(t *testing.T) {
	broker := startBroker(t)
	client := connectedClient(t, testConfig(broker.port))

	// An independent paho client observes the outgoing topic.
	var (
		mu       sync.Mutex
		received [][]byte
	)
	observerOpts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://127.0.0.1:%d", broker.port)).
		SetClientID("observer")
	observer := pahomqtt.NewClient(observerOpts)
	if token := observer.Connect(); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("observer connect error = %v", token.Error())
	}
	defer observer.Disconnect(100)

	token := observer.Subscribe(DefaultOutgoingTopic, 0, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		mu.Lock()
		received = append(received, append([]byte(nil), msg.Payload()...))
		mu.Unlock()
	})
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("observer subscribe error = %v", token.Error())
	}

	payload := []byte(`{"deviceModel": "MKR 1010" ,"temperature": 21,"humidity": 40,"vehicleId": "MKR1010-1"}`)
	if err := client.Publish(DefaultOutgoingTopic, payload); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	ok := eventually(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	})
	if !ok {
		t.Fatal("observer did not receive the published message")
	}

	mu.Lock()
	defer mu.Unlock()
	if string(received[0]) != string(payload) {
		t.Errorf("received payload = %q, want %q", received[0], payload)
	}
}

func TestSubscribe_QueuesMessages(t *testing.T) {
	broker := startBroker(t)
	client := connectedClient(t, testConfig(broker.port))

	if err := client.Subscribe(DefaultIncomingTopic); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if _, ok := client.Poll(); ok {
		t.Fatal("Poll() returned a message before any was published")
	}

	for _, body := range []string{"first", "second"} {
		if err := broker.Publish(DefaultIncomingTopic, []byte(body), false, 0); err != nil {
			t.Fatalf("broker.Publish() error = %v", err)
		}
	}

	if !eventually(t, 5*time.Second, func() bool { return client.Pending() == 2 }) {
		t.Fatalf("Pending() = %d, want 2", client.Pending())
	}

	for _, want := range []string{"first", "second"} {
		msg, ok := client.Poll()
		if !ok {
			t.Fatalf("Poll() returned no message, want %q", want)
		}
		if msg.Topic != DefaultIncomingTopic {
			t.Errorf("Poll() topic = %q, want %q", msg.Topic, DefaultIncomingTopic)
		}
		if string(msg.Payload) != want {
			t.Errorf("Poll() payload = %q, want %q", msg.Payload, want)
		}
	}

	if _, ok := client.Poll(); ok {
		t.Error("Poll() returned a message from an empty queue")
	}
}

func TestStatusTopic_OnlineMessage(t *testing.T) {
	broker := startBroker(t)
	port := broker.port

	cfg := testConfig(port)
	cfg.Topics.Status = "arduino/status/mkr-test"

	observerOpts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://127.0.0.1:%d", port)).
		SetClientID("status-observer")
	observer := pahomqtt.NewClient(observerOpts)
	if token := observer.Connect(); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("observer connect error = %v", token.Error())
	}
	defer observer.Disconnect(100)

	statuses := make(chan string, 4)
	token := observer.Subscribe(cfg.Topics.Status, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		statuses <- string(msg.Payload())
	})
	if !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("observer subscribe error = %v", token.Error())
	}

	connectedClient(t, cfg)

	select {
	case got := <-statuses:
		if !strings.Contains(got, `"status":"online"`) || !strings.Contains(got, `"client_id":"mkr-test"`) {
			t.Errorf("status payload = %s, want online for mkr-test", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no online status published")
	}
}

// =============================================================================
// Queue Tests
// =============================================================================

// fakeMessage implements pahomqtt.Message for driving enqueue directly.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 0 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Error(string, ...any) {}

func (l *recordingLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func TestEnqueue_DropsNewestWhenFull(t *testing.T) {
	cfg := testConfig(1883)
	cfg.InboundQueue = 2

	client, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	logger := &recordingLogger{}
	client.SetLogger(logger)

	for _, body := range []string{"a", "b", "c"} {
		client.enqueue(nil, fakeMessage{topic: DefaultIncomingTopic, payload: []byte(body)})
	}

	if client.Pending() != 2 {
		t.Fatalf("Pending() = %d, want 2", client.Pending())
	}
	for _, want := range []string{"a", "b"} {
		msg, _ := client.Poll()
		if string(msg.Payload) != want {
			t.Errorf("Poll() payload = %q, want %q", msg.Payload, want)
		}
	}
	if len(logger.warns) != 1 {
		t.Errorf("dropped-message warnings = %d, want 1", len(logger.warns))
	}
}

func TestEnqueue_CopiesPayload(t *testing.T) {
	client, err := NewClient(testConfig(1883), nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	buf := []byte("hello")
	client.enqueue(nil, fakeMessage{topic: DefaultIncomingTopic, payload: buf})
	buf[0] = 'j'

	msg, ok := client.Poll()
	if !ok {
		t.Fatal("Poll() returned no message")
	}
	if string(msg.Payload) != "hello" {
		t.Errorf("Poll() payload = %q, want %q", msg.Payload, "hello")
	}
}

func TestNewClient_DefaultQueueSize(t *testing.T) {
	cfg := testConfig(1883)
	cfg.InboundQueue = 0

	client, err := NewClient(cfg, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if cap(client.inbound) != defaultInboundQueue {
		t.Errorf("queue capacity = %d, want %d", cap(client.inbound), defaultInboundQueue)
	}
}
