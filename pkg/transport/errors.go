// Package transport wires components A-G to a media.Media driver and
// exposes session-creation operations (component H).
package transport

import "errors"

var (
	// ErrInvalidConfiguration is returned by SetLocalNodeID when the
	// local node-id was already assigned, or n is out of range.
	ErrInvalidConfiguration = errors.New("transport: invalid configuration")

	// ErrSessionClosed is returned by Receive after Close.
	ErrSessionClosed = errors.New("transport: session closed")

	// ErrTimeout is returned by an output session's Send when the
	// caller-supplied deadline elapses before the media accepts the
	// frames. Frames already handed to the media are not retracted.
	ErrTimeout = errors.New("transport: send deadline exceeded")
)
