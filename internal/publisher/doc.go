// Package publisher mirrors presence state onto MQTT.
//
// Two publishers live here:
//
//   - StatePublisher implements presence.StateListener and writes one
//     retained message per device to blegate/presence/{key}/state whenever
//     a tracker is registered or changes state. Home-automation platforms
//     subscribe to these topics to drive their device trackers.
//   - HealthReporter publishes a retained health message on
//     blegate/system/health at a fixed interval with tracker counts.
//
// Both talk to the broker through the small Publisher interface, which
// *mqtt.Client satisfies. Publishing blocks on the broker, so the state
// publisher is registered through a presence.AsyncListener:
//
//	pub := publisher.NewStatePublisher(mqttClient, byte(cfg.MQTT.QoS), logger)
//	async := presence.NewAsyncListener("mqtt-state", 256, logger, pub, nil)
//	svc.Table().AddListener(async)
//
// Retained messages are replaced on every publish. After a broker
// reconnect PublishSnapshot republishes every tracker so the broker's
// retained view matches the table again.
package publisher
