package beacon

import "strings"

// Key is a canonical device identity.
type Key string

// Kind classifies a Key by its shape.
type Kind string

// Key kinds.
const (
	KindMAC       Kind = "mac"
	KindEddystone Kind = "eddystone"
	KindIBeacon   Kind = "ibeacon"
	KindUnknown   Kind = "unknown"
)

// Key prefixes and the entity name prefix.
const (
	EddystonePrefix = "EDS_"
	IBeaconPrefix   = "IBC_"
	NamePrefix      = "BLE_"
)

// Kind reports which identity format the key uses.
func (k Key) Kind() Kind {
	s := string(k)
	switch {
	case strings.HasPrefix(s, EddystonePrefix):
		return KindEddystone
	case strings.HasPrefix(s, IBeaconPrefix):
		return KindIBeacon
	case macPattern.MatchString(s):
		return KindMAC
	default:
		return KindUnknown
	}
}

// Name returns the display/entity name for the key: "BLE_" followed by the
// key with colons removed.
func (k Key) Name() string {
	return NamePrefix + strings.ReplaceAll(string(k), ":", "")
}

// IBeaconParts splits an iBeacon key into uuid, major and minor.
// ok is false for any other key shape, including a bare IBC_<uuid> raw key.
func (k Key) IBeaconParts() (uuid, major, minor string, ok bool) {
	s := string(k)
	if !strings.HasPrefix(s, IBeaconPrefix) {
		return "", "", "", false
	}
	body := s[len(IBeaconPrefix):]
	if len(body) != ibeaconWindow {
		return "", "", "", false
	}
	return body[:32], body[32:36], body[36:40], true
}

// String implements fmt.Stringer.
func (k Key) String() string {
	return string(k)
}
