package beacon

import (
	"fmt"
	"strings"
)

// Frame headers as they appear in the hex-encoded advertisement.
const (
	// EddystoneMarker is the 16-bit service UUID list (0xFEAA) followed by the
	// service data header for the same UUID.
	EddystoneMarker = "AAFE1516AAFE"

	// IBeaconMarker is the manufacturer-specific data header for Apple
	// (company 0x004C) with the iBeacon type/length bytes 0x02 0x15.
	IBeaconMarker = "1AFF4C000215"
)

// Window sizes in hex characters.
const (
	eddystoneSkip   = 4  // frame type + TX power
	eddystoneWindow = 20 // UID namespace, 10 bytes
	ibeaconWindow   = 40 // uuid 32 + major 4 + minor 4
)

// Parse derives the canonical key for one advertisement.
//
// Eddystone is checked before iBeacon. When neither header is present the
// upper-cased MAC is the key.
//
// Parameters:
//   - mac: Hardware address reported by the gateway
//   - advHex: Raw advertisement bytes, hex encoded (any case)
//
// Returns:
//   - Key: The canonical key
//   - error: ErrMalformedAdvertisement when a header is found but the identity
//     window that follows is truncated or not hex
func Parse(mac, advHex string) (Key, error) {
	adv := strings.ToUpper(advHex)

	if i := strings.Index(adv, EddystoneMarker); i >= 0 {
		start := i + len(EddystoneMarker) + eddystoneSkip
		payload, err := window(adv, start, eddystoneWindow)
		if err != nil {
			return "", fmt.Errorf("%w: eddystone %v", ErrMalformedAdvertisement, err)
		}
		return Key(EddystonePrefix + payload), nil
	}

	if i := strings.Index(adv, IBeaconMarker); i >= 0 {
		start := i + len(IBeaconMarker)
		payload, err := window(adv, start, ibeaconWindow)
		if err != nil {
			return "", fmt.Errorf("%w: ibeacon %v", ErrMalformedAdvertisement, err)
		}
		return Key(IBeaconPrefix + payload), nil
	}

	return Key(strings.ToUpper(mac)), nil
}

// window returns s[start:start+n] after checking it exists and is hex.
func window(s string, start, n int) (string, error) {
	if start+n > len(s) {
		avail := len(s) - start
		if avail < 0 {
			avail = 0
		}
		return "", fmt.Errorf("needs %d hex chars after header, got %d", n, avail)
	}
	w := s[start : start+n]
	if !isHex(w) {
		return "", fmt.Errorf("non-hex identity %q", w)
	}
	return w, nil
}

func isHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'A' && c <= 'F':
		case c >= 'a' && c <= 'f':
		default:
			return false
		}
	}
	return true
}
