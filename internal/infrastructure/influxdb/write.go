package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurements written by blegate.
const (
	// MeasurementPacket holds one point per received advertisement.
	MeasurementPacket = "ble_packet"

	// MeasurementPresence holds one point per home/away transition.
	MeasurementPresence = "ble_presence"
)

// PacketPoint builds a ble_packet point tagged by key and kind. The rssi
// field is omitted when the gateway did not report one; the seen field is
// always 1 so every packet is countable.
func PacketPoint(key, kind, mac string, rssi *int, at time.Time) *write.Point {
	fields := map[string]any{"seen": 1}
	if rssi != nil {
		fields["rssi"] = *rssi
	}
	tags := map[string]string{"key": key, "kind": kind}
	if mac != "" {
		tags["mac"] = mac
	}
	return write.NewPoint(MeasurementPacket, tags, fields, at)
}

// PresencePoint builds a ble_presence point. home is 1 for home and 0
// otherwise so the series graphs as a step function.
func PresencePoint(key, kind, state string, home bool, at time.Time) *write.Point {
	homeValue := 0
	if home {
		homeValue = 1
	}
	return write.NewPoint(
		MeasurementPresence,
		map[string]string{"key": key, "kind": kind},
		map[string]any{"state": state, "home": homeValue},
		at,
	)
}

// WritePacket records a received advertisement.
//
// Example:
//
//	client.WritePacket("AA:BB:CC:DD:EE:FF", "mac", "AA:BB:CC:DD:EE:FF", &rssi, time.Now())
func (c *Client) WritePacket(key, kind, mac string, rssi *int, at time.Time) {
	c.writePoint(PacketPoint(key, kind, mac, rssi, at))
}

// WritePresence records a home/away transition.
func (c *Client) WritePresence(key, kind, state string, home bool, at time.Time) {
	c.writePoint(PresencePoint(key, kind, state, home, at))
}

func (c *Client) writePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}
