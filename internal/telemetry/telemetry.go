// Package telemetry records presence traffic as time series.
//
// Sink subscribes to the dispatcher for packets and listens to the tracker
// table for transitions, writing both through a Writer (the InfluxDB
// client in production). Writes are buffered by the client, but the sink
// is still registered through presence.AsyncListener so a slow batch flush
// never stalls the serial loop.
package telemetry

import (
	"time"

	"github.com/nerrad567/blegate/internal/presence"
)

// Writer accepts telemetry points. *influxdb.Client implements it.
type Writer interface {
	WritePacket(key, kind, mac string, rssi *int, at time.Time)
	WritePresence(key, kind, state string, home bool, at time.Time)
}

// Sink adapts presence events to a Writer.
type Sink struct {
	w Writer

	// Packets controls whether every packet is written. Transitions are
	// always written.
	Packets bool
}

// NewSink creates a sink writing packets and transitions.
func NewSink(w Writer) *Sink {
	return &Sink{w: w, Packets: true}
}

// HandleEvent implements presence.Subscriber. Sweeps carry no data and are
// ignored.
func (s *Sink) HandleEvent(ev presence.Event) {
	pe, ok := ev.(presence.PacketEvent)
	if !ok || !s.Packets {
		return
	}
	p := pe.Packet
	s.w.WritePacket(p.Key.String(), string(p.Key.Kind()), p.MAC, p.RSSI, p.Timestamp)
}

// OnStateChange implements presence.StateListener. Registrations are not
// transitions and are skipped.
func (s *Sink) OnStateChange(change presence.StateChange) {
	if change.Registered() {
		return
	}
	key := change.Record.Key
	s.w.WritePresence(key.String(), string(key.Kind()), string(change.To), change.To == presence.StateHome, change.At)
}
