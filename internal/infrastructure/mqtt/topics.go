package mqtt

import "fmt"

// Topic prefixes for everything blegate publishes. The inbound gateway topic
// is configured separately (gateway.topic) because the gateway firmware owns
// it.
const (
	// TopicPrefix is the root of all blegate topics.
	TopicPrefix = "blegate"

	// TopicPrefixPresence is the base for per-device presence topics.
	TopicPrefixPresence = "blegate/presence"

	// TopicPrefixSystem is the base for service status topics.
	TopicPrefixSystem = "blegate/system"
)

// Topics provides builders for blegate MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.PresenceState("IBC_E2C56DB5DFFB48D2B060D0F5A71096E0000100FF")
//	// Returns: "blegate/presence/IBC_E2C56DB5DFFB48D2B060D0F5A71096E0000100FF/state"
type Topics struct{}

// PresenceState returns the retained state topic of one tracked device.
//
// Example: blegate/presence/AA:BB:CC:DD:EE:FF/state
func (Topics) PresenceState(key string) string {
	return fmt.Sprintf("%s/%s/state", TopicPrefixPresence, key)
}

// SystemStatus returns the service status topic (online/offline and LWT).
//
// Example: blegate/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// SystemHealth returns the periodic health topic.
//
// Example: blegate/system/health
func (Topics) SystemHealth() string {
	return TopicPrefixSystem + "/health"
}
