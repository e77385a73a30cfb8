// Package media defines the external media interface the transport
// façade depends on (the consumed half of component H's boundary): a
// driver that delivers timestamped raw frames and accepts frames for
// transmission. Concrete drivers live in the virtualcan and socketcan
// subpackages; this package is deliberately dependency-free so drivers
// can be swapped without pulling transport-layer imports.
package media

import "time"

// Frame is one raw CAN frame crossing the media boundary in either
// direction: a 29-bit identifier, a payload of 0..max_data_field_length
// bytes, and reception metadata (zero-valued on outbound frames).
type Frame struct {
	ID        uint32
	Data      []byte
	Monotonic time.Duration
	Real      time.Time
	Loopback  bool
}

// ReceivedFramesHandler is the synchronous reception callback a Media
// implementation invokes for every inbound (and loopback) frame. It must
// not block or suspend: the driver and the transport share one executor.
type ReceivedFramesHandler func(Frame)

// AcceptanceFilter narrows which identifiers a driver delivers, where the
// hardware or kernel supports it. Mask bits set to 1 must match; bits
// set to 0 are don't-care.
type AcceptanceFilter struct {
	ID   uint32
	Mask uint32
}

// Media is the boundary the transport façade depends on.
type Media interface {
	// MaxDataFieldLength is 8 for classic CAN, up to 64 for CAN-FD.
	MaxDataFieldLength() int

	SetReceivedFramesHandler(handler ReceivedFramesHandler)

	// Send transmits frames, honoring deadline; returns an error (not a
	// bool) so MediaError can carry the underlying driver failure,
	// letting Timeout be reported distinctly by the caller.
	Send(frames []Frame, deadline time.Time) error

	EnableAutomaticRetransmission() error

	ConfigureAcceptanceFilters(filters []AcceptanceFilter) error

	Close() error
}
