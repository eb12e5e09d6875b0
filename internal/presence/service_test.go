package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/blegate/internal/beacon"
)

// mockTransport records subscriptions and lets tests inject messages.
type mockTransport struct {
	mu           sync.Mutex
	handlers     map[string]func(string, []byte) error
	subscribes   int
	unsubscribes int
	subscribeErr error
}

func newMockTransport() *mockTransport {
	return &mockTransport{handlers: make(map[string]func(string, []byte) error)}
}

func (m *mockTransport) Subscribe(topic string, _ byte, handler func(string, []byte) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribes++
	if m.subscribeErr != nil {
		return m.subscribeErr
	}
	m.handlers[topic] = handler
	return nil
}

func (m *mockTransport) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unsubscribes++
	delete(m.handlers, topic)
	return nil
}

// SimulateMessage delivers payload as if it arrived on topic.
func (m *mockTransport) SimulateMessage(topic string, payload []byte) error {
	m.mu.Lock()
	h, ok := m.handlers[topic]
	m.mu.Unlock()
	if !ok {
		return errors.New("no subscription for " + topic)
	}
	return h(topic, payload)
}

func (m *mockTransport) counts() (subs, unsubs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.subscribes, m.unsubscribes
}

func newTestService(tr Transport, opts ServiceOptions) *Service {
	opts.Topic = "ab_ble"
	opts.Transport = tr
	if opts.IdleTimeout == 0 {
		opts.IdleTimeout = testIdle
	}
	return NewService(opts)
}

func TestService_StartRequiresTransport(t *testing.T) {
	s := NewService(ServiceOptions{Topic: "ab_ble"})

	assert.ErrorIs(t, s.Start(context.Background()), ErrNoTransport)
}

func TestService_DeliversMessages(t *testing.T) {
	tr := newMockTransport()
	s := newTestService(tr, ServiceOptions{})
	s.Preload([]beacon.PreloadEntry{{Key: testIBeacon}}, nil)

	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop() }()

	msg := message(entry("aa:bb:cc:dd:ee:01", -60, ibeaconAdv()))
	require.NoError(t, tr.SimulateMessage("ab_ble", msg))

	require.Eventually(t, func() bool {
		r, ok := s.Table().Get(testIBeacon, time.Now())
		return ok && r.State == StateHome
	}, time.Second, 5*time.Millisecond)
}

func TestService_StartTwice(t *testing.T) {
	tr := newMockTransport()
	s := newTestService(tr, ServiceOptions{})

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
	require.NoError(t, s.Stop())

	subs, _ := tr.counts()
	assert.Equal(t, 1, subs)
}

func TestService_StopIdempotent(t *testing.T) {
	tr := newMockTransport()
	s := newTestService(tr, ServiceOptions{})
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())

	_, unsubs := tr.counts()
	assert.Equal(t, 1, unsubs)
	assert.ErrorIs(t, s.Start(context.Background()), ErrStopped)
	assert.ErrorIs(t, s.onMessage("ab_ble", []byte(`{}`)), ErrStopped)
}

func TestService_StopWithoutStart(t *testing.T) {
	tr := newMockTransport()
	s := newTestService(tr, ServiceOptions{})

	require.NoError(t, s.Stop())
	_, unsubs := tr.counts()
	assert.Equal(t, 0, unsubs)
}

func TestService_SubscribeFailure(t *testing.T) {
	tr := newMockTransport()
	tr.subscribeErr = errors.New("broker unavailable")
	s := newTestService(tr, ServiceOptions{})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unavailable")

	require.NoError(t, s.Stop())
	_, unsubs := tr.counts()
	assert.Equal(t, 0, unsubs, "nothing to release")
	assert.ErrorIs(t, s.Start(context.Background()), ErrStopped)
}

func TestService_PeriodicSweep(t *testing.T) {
	tr := newMockTransport()
	s := newTestService(tr, ServiceOptions{
		IdleTimeout:   time.Millisecond,
		SweepInterval: 10 * time.Millisecond,
	})
	s.Preload(nil, []beacon.Key{"AA:BB:CC:DD:EE:FF"})
	rec := &changeRecorder{}
	s.Table().AddListener(rec)

	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop() }()
	require.NoError(t, tr.SimulateMessage("ab_ble", message(entry("aa:bb:cc:dd:ee:ff", -50, "020106"))))

	require.Eventually(t, func() bool {
		got := rec.transitions()
		return len(got) == 2 && got[0].To == StateHome && got[1].To == StateAway
	}, 2*time.Second, 5*time.Millisecond)
}

func TestService_ContextCancelStopsLoop(t *testing.T) {
	tr := newMockTransport()
	s := newTestService(tr, ServiceOptions{InboxSize: 1})
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, s.Start(ctx))
	cancel()

	// Once the loop has exited the handler must not block on a full inbox.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			_ = tr.SimulateMessage("ab_ble", []byte(`{"devices":[]}`))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("transport handler blocked after context cancel")
	}
	require.NoError(t, s.Stop())
}

func TestService_PreloadAndRestore(t *testing.T) {
	s := NewService(ServiceOptions{IdleTimeout: testIdle})
	entries := []beacon.PreloadEntry{{Key: testIBeacon}, {Key: testIBeacon}}

	assert.Equal(t, 2, s.Preload(entries, []beacon.Key{"AA:BB:CC:DD:EE:FF"}))
	assert.Equal(t, 1, s.Restore([]beacon.Key{"AA:BB:CC:DD:EE:FF", "11:22:33:44:55:66"}))

	snap := s.Table().Snapshot(time.Now())
	require.Len(t, snap, 3)
	assert.Equal(t, SourcePreload, snap[0].Source)
	assert.Equal(t, SourceRaw, snap[1].Source)
	assert.Equal(t, SourceRestored, snap[2].Source)
	for _, r := range snap {
		assert.Equal(t, StateAway, r.State)
	}
}
