package presence

import (
	"time"

	"github.com/nerrad567/blegate/internal/beacon"
)

// Packet is one ingested advertisement. It is never modified after creation.
type Packet struct {
	Key              beacon.Key `json:"key"`
	MAC              string     `json:"mac"`
	RSSI             *int       `json:"rssi"`
	AdvertisementHex string     `json:"adv"`
	Timestamp        time.Time  `json:"timestamp"`
}

// Event is delivered to subscribers. It is either a PacketEvent or a
// SweepEvent; the set is closed.
type Event interface {
	isEvent()
}

// PacketEvent carries one packet. Subscribers see it after the table has
// swept and applied it.
type PacketEvent struct {
	Packet Packet
}

// SweepEvent is a periodic staleness check with no packet attached.
type SweepEvent struct {
	At time.Time
}

func (PacketEvent) isEvent() {}
func (SweepEvent) isEvent()  {}

// Subscriber receives dispatcher events on the serial loop.
//
// Subscribers are compared by identity for idempotent Subscribe/Unsubscribe,
// so the dynamic type must be comparable (typically a pointer).
type Subscriber interface {
	HandleEvent(ev Event)
}
