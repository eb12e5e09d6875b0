package publisher

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/nerrad567/blegate/internal/infrastructure/mqtt"
	"github.com/nerrad567/blegate/internal/presence"
)

// Publisher sends messages to the broker. *mqtt.Client implements it.
type Publisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// Logger is the logging surface used by the publishers.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

// StateMessage is the retained payload on blegate/presence/{key}/state.
type StateMessage struct {
	Key   string         `json:"key"`
	Name  string         `json:"name"`
	State presence.State `json:"state"`
	RSSI  *int           `json:"rssi"`

	UUID  string `json:"uuid,omitempty"`
	Major string `json:"major,omitempty"`
	Minor string `json:"minor,omitempty"`

	LastSeenSeconds float64   `json:"last_seen_seconds"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewStateMessage builds the payload for a tracker snapshot taken at at.
func NewStateMessage(r presence.Record, at time.Time) StateMessage {
	return StateMessage{
		Key:             r.Key.String(),
		Name:            r.Name,
		State:           r.State,
		RSSI:            r.RSSI,
		UUID:            r.UUID,
		Major:           r.Major,
		Minor:           r.Minor,
		LastSeenSeconds: r.LastSeenSeconds,
		Timestamp:       at.UTC(),
	}
}

// StatePublisher publishes retained presence state per device.
type StatePublisher struct {
	pub    Publisher
	qos    byte
	topics mqtt.Topics
	logger Logger

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewStatePublisher creates a publisher sending at the given QoS. logger
// may be nil.
func NewStatePublisher(pub Publisher, qos byte, logger Logger) *StatePublisher {
	return &StatePublisher{pub: pub, qos: qos, logger: logger}
}

// OnStateChange implements presence.StateListener.
func (p *StatePublisher) OnStateChange(change presence.StateChange) {
	at := change.At
	if at.IsZero() {
		at = time.Now()
	}
	p.publish(change.Record, at)
}

// PublishSnapshot republishes every record and returns how many were sent.
// Nothing is sent while the publisher is disconnected.
func (p *StatePublisher) PublishSnapshot(records []presence.Record, at time.Time) int {
	if !p.pub.IsConnected() {
		return 0
	}
	sent := 0
	for _, r := range records {
		if p.publish(r, at) {
			sent++
		}
	}
	return sent
}

// Stats returns the number of successful and failed publishes.
func (p *StatePublisher) Stats() (published, failed uint64) {
	return p.published.Load(), p.failed.Load()
}

func (p *StatePublisher) publish(r presence.Record, at time.Time) bool {
	payload, err := json.Marshal(NewStateMessage(r, at))
	if err != nil {
		p.fail("failed to marshal presence state", r, err)
		return false
	}

	topic := p.topics.PresenceState(r.Key.String())
	if err := p.pub.Publish(topic, payload, p.qos, true); err != nil {
		p.fail("failed to publish presence state", r, err)
		return false
	}

	p.published.Add(1)
	if p.logger != nil {
		p.logger.Debug("published presence state", "key", r.Key, "state", r.State)
	}
	return true
}

func (p *StatePublisher) fail(msg string, r presence.Record, err error) {
	p.failed.Add(1)
	if p.logger != nil {
		p.logger.Error(msg, "key", r.Key, "error", err)
	}
}
