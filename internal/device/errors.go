package device

import "errors"

// Domain errors for the device package.
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // 404
//	}
var (
	// ErrDeviceNotFound is returned when a key has never been stored.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrInvalidKey is returned for an empty or unrecognised key.
	ErrInvalidKey = errors.New("device: invalid key")

	// ErrInvalidRetention is returned by PruneHistory for a non-positive age.
	ErrInvalidRetention = errors.New("device: retention must be positive")
)
