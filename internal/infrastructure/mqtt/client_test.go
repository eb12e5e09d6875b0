package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/blegate/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "blegate-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// offlineClient returns a client that never connected.
func offlineClient() *Client {
	return &Client{cfg: testConfig(), subscriptions: make(map[string]subscription)}
}

// mockLogger implements Logger for testing.
type mockLogger struct {
	mu     sync.Mutex
	infos  []string
	warns  []string
	errors []string
}

func (l *mockLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	l.infos = append(l.infos, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"PresenceState", Topics{}.PresenceState("AA:BB:CC:DD:EE:FF"), "blegate/presence/AA:BB:CC:DD:EE:FF/state"},
		{"PresenceStateIBeacon", Topics{}.PresenceState("IBC_0011"), "blegate/presence/IBC_0011/state"},
		{"SystemStatus", Topics{}.SystemStatus(), "blegate/system/status"},
		{"SystemHealth", Topics{}.SystemHealth(), "blegate/system/health"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.expected)
			}
		})
	}
}

// =============================================================================
// Option Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "gateway"
	cfg.Auth.Password = "secret"

	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "blegate-test" {
		t.Errorf("ClientID = %q, want %q", opts.ClientID, "blegate-test")
	}
	if opts.Username != "gateway" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want gateway/secret", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("MaxReconnectInterval = %v, want 5s", opts.MaxReconnectInterval)
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if opts.Servers[0].String() != "ssl://127.0.0.1:8883" {
		t.Errorf("Servers[0] = %v, want ssl://127.0.0.1:8883", opts.Servers[0])
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLSConfig missing or below minimum version")
	}
}

func TestConfigureLWT(t *testing.T) {
	opts := buildClientOptions(testConfig())
	configureLWT(opts, "blegate-test")

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false, want true")
	}
	if opts.WillTopic != "blegate/system/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("Will retained=%v qos=%d, want true/1", opts.WillRetained, opts.WillQos)
	}

	var p statusPayload
	if err := json.Unmarshal(opts.WillPayload, &p); err != nil {
		t.Fatalf("WillPayload is not JSON: %v", err)
	}
	if p.Status != StatusOffline || p.Reason != "unexpected_disconnect" {
		t.Errorf("WillPayload = %+v", p)
	}
}

func TestBuildStatusPayload(t *testing.T) {
	var p statusPayload
	if err := json.Unmarshal(buildStatusPayload(StatusOnline, "blegate-1", ""), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if p.Status != "online" || p.ClientID != "blegate-1" {
		t.Errorf("payload = %+v", p)
	}
	if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
		t.Errorf("Timestamp %q is not RFC3339", p.Timestamp)
	}
}

// =============================================================================
// Validation Tests (no broker)
// =============================================================================

func TestIsConnected_InitialState(t *testing.T) {
	client := &Client{}

	if client.IsConnected() {
		t.Error("IsConnected() should be false for uninitialised client")
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}

	if err := client.Close(); err != nil {
		t.Errorf("Close() on nil client error = %v", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := offlineClient()

	if err := client.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	client := offlineClient()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := client.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestSubscribeValidation(t *testing.T) {
	handler := func(string, []byte) error { return nil }

	tests := []struct {
		name    string
		topic   string
		qos     byte
		handler MessageHandler
		want    error
	}{
		{"empty topic", "", 0, handler, ErrInvalidTopic},
		{"invalid qos", "ab_ble", 3, handler, ErrInvalidQoS},
		{"nil handler", "ab_ble", 0, nil, ErrSubscribeFailed},
		{"disconnected", "ab_ble", 0, handler, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := offlineClient()
			err := client.Subscribe(tt.topic, tt.qos, tt.handler)
			if !errors.Is(err, tt.want) {
				t.Errorf("Subscribe() error = %v, want %v", err, tt.want)
			}
			if client.SubscriptionCount() != 0 {
				t.Errorf("SubscriptionCount() = %d, want 0", client.SubscriptionCount())
			}
		})
	}
}

func TestUnsubscribeUntracked(t *testing.T) {
	client := offlineClient()

	if err := client.Unsubscribe("ab_ble"); err != nil {
		t.Errorf("Unsubscribe() untracked error = %v, want nil", err)
	}
	if err := client.Unsubscribe(""); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Unsubscribe(\"\") error = %v, want ErrInvalidTopic", err)
	}
}

func TestUnsubscribeWhileDisconnected(t *testing.T) {
	client := offlineClient()
	client.subscriptions["ab_ble"] = subscription{topic: "ab_ble"}

	if err := client.Unsubscribe("ab_ble"); err != nil {
		t.Errorf("Unsubscribe() error = %v, want nil", err)
	}
	if n := client.SubscriptionCount(); n != 0 {
		t.Errorf("SubscriptionCount() = %d after Unsubscribe, want 0", n)
	}
	if err := client.Unsubscribe("ab_ble"); err != nil {
		t.Errorf("second Unsubscribe() error = %v, want nil", err)
	}
}

func TestPublishValidation(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", nil, 0, ErrInvalidTopic},
		{"invalid qos", "blegate/x", nil, 3, ErrInvalidQoS},
		{"too large", "blegate/x", make([]byte, maxPayloadSize+1), 0, ErrPublishFailed},
		{"disconnected", "blegate/x", []byte("{}"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := offlineClient().Publish(tt.topic, tt.payload, tt.qos, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

// =============================================================================
// Handler Tests
// =============================================================================

func TestDeliverLogsHandlerError(t *testing.T) {
	client := offlineClient()
	logger := &mockLogger{}
	client.SetLogger(logger)

	client.deliver(func(string, []byte) error { return errors.New("bad payload") }, "ab_ble", nil)

	if len(logger.warns) != 1 {
		t.Errorf("warns = %v, want one entry", logger.warns)
	}
}

func TestDeliverRecoversPanic(t *testing.T) {
	client := offlineClient()
	logger := &mockLogger{}
	client.SetLogger(logger)

	client.deliver(func(string, []byte) error { panic("boom") }, "ab_ble", nil)

	if len(logger.errors) != 1 {
		t.Errorf("errors = %v, want one entry", logger.errors)
	}
}

func TestDeliverWithoutLogger(t *testing.T) {
	client := offlineClient()
	called := false

	client.deliver(func(_ string, p []byte) error {
		called = string(p) == "x"
		return errors.New("ignored")
	}, "ab_ble", []byte("x"))

	if !called {
		t.Error("handler not called with payload")
	}
}

func TestSetLogger(t *testing.T) {
	client := offlineClient()

	client.SetLogger(&mockLogger{})
	if client.getLogger() == nil {
		t.Error("getLogger() = nil after SetLogger()")
	}

	client.SetLogger(nil)
	if client.getLogger() != nil {
		t.Error("getLogger() should be nil after SetLogger(nil)")
	}
}
