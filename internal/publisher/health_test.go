package publisher

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeHealth(t *testing.T, p published) HealthMessage {
	t.Helper()
	var msg HealthMessage
	require.NoError(t, json.Unmarshal(p.payload, &msg))
	return msg
}

func TestHealthReporter_Defaults(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{})
	assert.Equal(t, 30*time.Second, h.interval)
	assert.Equal(t, byte(1), h.qos)
	assert.Equal(t, "blegate/system/health", h.topic)
	assert.NoError(t, h.PublishNow(), "no publisher is a no-op")
}

func TestHealthReporter_Status(t *testing.T) {
	pub := newMockPublisher()

	h := NewHealthReporter(HealthReporterConfig{Version: "1.2.3", Publisher: pub, Counter: fixedCounter{total: 3, home: 2}})
	require.NoError(t, h.PublishNow())

	h = NewHealthReporter(HealthReporterConfig{Publisher: pub, Counter: fixedCounter{}})
	require.NoError(t, h.PublishNow())

	msgs := pub.all()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].retained)

	healthy := decodeHealth(t, msgs[0])
	assert.Equal(t, HealthHealthy, healthy.Status)
	assert.Equal(t, "1.2.3", healthy.Version)
	assert.Equal(t, 3, healthy.Devices)
	assert.Equal(t, 2, healthy.Home)

	degraded := decodeHealth(t, msgs[1])
	assert.Equal(t, HealthDegraded, degraded.Status)
	assert.Equal(t, "no devices tracked", degraded.Reason)
}

func TestHealthReporter_Lifecycle(t *testing.T) {
	pub := newMockPublisher()
	h := NewHealthReporter(HealthReporterConfig{
		Publisher: pub,
		Counter:   fixedCounter{total: 1},
		Interval:  10 * time.Millisecond,
	})

	h.Start(context.Background())
	assert.Eventually(t, func() bool { return len(pub.all()) >= 3 }, time.Second, 5*time.Millisecond)
	h.Stop()
	h.Stop()

	msgs := pub.all()
	assert.Equal(t, HealthStarting, decodeHealth(t, msgs[0]).Status)
	assert.Equal(t, HealthHealthy, decodeHealth(t, msgs[1]).Status)
	assert.Equal(t, HealthStopping, decodeHealth(t, msgs[len(msgs)-1]).Status)
}

func TestHealthReporter_LogsFailures(t *testing.T) {
	pub := newMockPublisher()
	pub.fail = true
	logger := &mockLogger{}
	h := NewHealthReporter(HealthReporterConfig{Publisher: pub, Interval: time.Hour})
	h.SetLogger(logger)

	ctx, cancel := context.WithCancel(context.Background())
	h.Start(ctx)
	cancel()
	h.Stop()

	logger.mu.Lock()
	defer logger.mu.Unlock()
	assert.Contains(t, logger.errors, "failed to publish starting health")
}
