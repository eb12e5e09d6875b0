// Package api implements the HTTP REST API and WebSocket server for blegate.
//
// This package provides:
//   - Read-only endpoints over the live tracker table and the device store
//   - Preload validation for configuration tooling
//   - A WebSocket hub relaying presence events to subscribed clients
//   - The Prometheus scrape endpoint
//   - Middleware stack (request ID, logging, metrics, recovery, CORS)
//
// # Routes
//
//	GET  /api/v1/health
//	GET  /api/v1/status
//	GET  /api/v1/devices[?state=home|not_home]
//	GET  /api/v1/devices/{key}
//	GET  /api/v1/devices/{key}/history[?limit=n]
//	POST /api/v1/preload/validate
//	GET  /api/v1/ws
//	GET  /metrics
//
// # WebSocket channels
//
// Clients send {"type":"subscribe","payload":{"channels":[...]}} and then
// receive events on presence.state_changed, presence.packet and
// presence.sweep.
//
// # Graceful Degradation
//
// Only the tracker table is required. Without a device store the history
// endpoint answers 503 and device views carry no last_changed_at; without a
// metrics manager /metrics is not mounted.
package api
