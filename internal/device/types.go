package device

import (
	"time"

	"github.com/nerrad567/blegate/internal/beacon"
	"github.com/nerrad567/blegate/internal/presence"
)

// Device is a known BLE device as persisted in the devices table.
//
// A row is written when a tracker is created and updated on every state
// transition, so the table survives restarts and lists every device the
// service has ever tracked.
type Device struct {
	Key    beacon.Key      `json:"key"`
	Name   string          `json:"name"`
	Kind   beacon.Kind     `json:"kind"`
	Source presence.Source `json:"source"`

	// iBeacon identity; empty for other kinds.
	UUID  string `json:"uuid,omitempty"`
	Major string `json:"major,omitempty"`
	Minor string `json:"minor,omitempty"`

	State presence.State `json:"state"`
	RSSI  *int           `json:"rssi"`

	// LastChangedAt is the time of the last home/away transition; nil
	// until the first one.
	LastChangedAt *time.Time `json:"last_changed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FromRecord builds the persisted form of a tracker snapshot.
func FromRecord(r presence.Record) Device {
	return Device{
		Key:    r.Key,
		Name:   r.Name,
		Kind:   r.Key.Kind(),
		Source: r.Source,
		UUID:   r.UUID,
		Major:  r.Major,
		Minor:  r.Minor,
		State:  r.State,
		RSSI:   r.RSSI,
	}
}

// HistoryEntry is one home/away transition.
type HistoryEntry struct {
	ID        int64          `json:"id"`
	Key       beacon.Key     `json:"key"`
	From      presence.State `json:"from"`
	To        presence.State `json:"to"`
	RSSI      *int           `json:"rssi"`
	CreatedAt time.Time      `json:"created_at"`
}
