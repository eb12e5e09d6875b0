package presence

import (
	"time"

	"github.com/nerrad567/blegate/internal/beacon"
)

// State is a tracker's presence state. The values match the device tracker
// vocabulary used by home-automation platforms.
type State string

// Presence states.
const (
	// StateUnknown is only used as StateChange.From when a tracker is added.
	StateUnknown State = ""
	StateAway    State = "not_home"
	StateHome    State = "home"
)

// Source records how a tracker came to exist.
type Source string

// Tracker sources.
const (
	SourcePreload  Source = "preload"
	SourceRaw      Source = "raw"
	SourceLearned  Source = "learned"
	SourceRestored Source = "restored"
)

// Record is a point-in-time copy of one tracker.
type Record struct {
	Key    beacon.Key `json:"key"`
	Name   string     `json:"name"`
	Source Source     `json:"source"`
	State  State      `json:"state"`
	RSSI   *int       `json:"rssi"`
	UUID   string     `json:"uuid,omitempty"`
	Major  string     `json:"major,omitempty"`
	Minor  string     `json:"minor,omitempty"`

	// LastSeenSeconds is rounded to one decimal. It is NeverSeen for a key
	// with no packet yet.
	LastSeenSeconds float64 `json:"last_seen_seconds"`
}

// StateChange is emitted when a tracker's state changes or when it is added.
type StateChange struct {
	Record Record    `json:"record"`
	From   State     `json:"from"`
	To     State     `json:"to"`
	At     time.Time `json:"at"`
}

// Registered reports whether the change announces a new tracker.
func (c StateChange) Registered() bool {
	return c.From == StateUnknown
}

// StateListener receives state changes on the serial loop.
type StateListener interface {
	OnStateChange(change StateChange)
}
