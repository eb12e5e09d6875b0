// Package influxdb writes BLE telemetry to InfluxDB v2.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health checks.
//
// # Measurements
//
//   - ble_packet: one point per received advertisement, tagged key, kind
//     and mac, with fields rssi (when reported) and seen=1
//   - ble_presence: one point per home/away transition, tagged key and
//     kind, with fields state and home (1 or 0)
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WritePacket(key, "mac", mac, &rssi, time.Now())
//
// The telemetry package adapts presence events onto these writes.
//
// # Error Handling
//
// Writes never return errors. Async batch failures are delivered to the
// SetOnError callback wrapped in ErrWriteFailed. Connection and health
// check errors are returned directly.
package influxdb
