// Package mqtt provides MQTT client connectivity for blegate.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - The gateway feed subscription (restored after reconnect)
//   - Retained presence state publishing
//   - Last Will and Testament (LWT) on blegate/system/status
//
// # Architecture
//
//	BLE gateway -> broker (ab_ble) -> blegate -> broker (blegate/presence/...)
//
// The gateway topic is owned by the gateway firmware and configured under
// gateway.topic. Everything blegate publishes lives under "blegate/".
//
// *Client satisfies presence.Transport: Subscribe and Unsubscribe take a
// plain func handler, and Unsubscribe of an untracked topic is a no-op.
//
// # Security Considerations
//
//   - Enable cfg.Broker.TLS for brokers outside the host
//   - Credentials are validated against the broker ACL
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetLogger(log)
//
//	err = client.Subscribe(cfg.Gateway.Topic, 0,
//	    func(topic string, payload []byte) error {
//	        return nil
//	    })
package mqtt
