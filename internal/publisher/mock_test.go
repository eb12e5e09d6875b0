package publisher

import (
	"errors"
	"sync"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type mockPublisher struct {
	mu        sync.Mutex
	connected bool
	fail      bool
	messages  []published
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{connected: true}
}

func (m *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("broker unavailable")
	}
	m.messages = append(m.messages, published{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (m *mockPublisher) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockPublisher) all() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]published, len(m.messages))
	copy(out, m.messages)
	return out
}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *mockLogger) Debug(string, ...any) {}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

type fixedCounter struct{ total, home int }

func (c fixedCounter) Counts() (int, int) { return c.total, c.home }
