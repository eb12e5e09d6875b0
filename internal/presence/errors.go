package presence

import "errors"

// Domain-specific errors for presence tracking.
var (
	// ErrTransportDecode marks a message whose envelope could not be decoded.
	// The whole message is dropped.
	ErrTransportDecode = errors.New("presence: malformed transport message")

	// ErrEntryDecode marks one device entry that could not be decoded.
	// Only that entry is skipped.
	ErrEntryDecode = errors.New("presence: malformed device entry")

	// ErrAlreadyStarted is returned by Service.Start on a second call.
	ErrAlreadyStarted = errors.New("presence: service already started")

	// ErrStopped is returned by Service.Start after Stop.
	ErrStopped = errors.New("presence: service stopped")

	// ErrNoTransport is returned by Service.Start without a transport.
	ErrNoTransport = errors.New("presence: transport is required")
)
