// Package presence turns a stream of BLE advertisement batches into Home/Away
// presence for a set of tracked devices.
//
// # Components
//
//   - Registry: canonical key -> last time a packet was seen (no eviction)
//   - Tracker: one device's state machine (Away initially, Home on any packet,
//     Away when a sweep finds it idle for longer than the timeout)
//   - Table: every Tracker, keyed and ordered; it is the first subscriber of
//     the dispatcher and performs sweeps
//   - Dispatcher: decodes gateway JSON, feeds the registry, learns unknown
//     keys when enabled, and broadcasts PacketEvent / SweepEvent
//   - Service: owns all of the above for one run, posts transport messages
//     and sweep ticks onto a single serial loop
//
// # Ordering
//
// For every packet the table first sweeps all trackers and only then applies
// the packet to its own tracker. A packet therefore always wins over a
// staleness verdict for the same key in the same cycle. Sweep ticks travel
// through the same loop as transport messages, so there is exactly one
// writer of registry and tracker state.
//
// # Notifications
//
// State listeners receive a StateChange only when a tracker's emitted state
// actually changes, plus one registration change (From = StateUnknown) when
// a tracker is added. Listeners run on the serial loop and must not block;
// wrap anything that does I/O in an AsyncListener.
//
// Usage:
//
//	svc := presence.NewService(presence.ServiceOptions{
//	    Topic:       "ab_ble",
//	    IdleTimeout: 2 * time.Minute,
//	    Transport:   mqttClient,
//	})
//	svc.Table().AddListener(publisher)
//	svc.Preload(beacon.ParsePreloadIBeacon(text), nil)
//	if err := svc.Start(ctx); err != nil { ... }
//	defer svc.Stop()
package presence
