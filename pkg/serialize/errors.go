// Package serialize implements the recursive pack/unpack engine
// (component D) that walks a dtype.Value tree against its descriptor and
// produces or consumes the bit-packed wire representation.
package serialize

import "errors"

var (
	// ErrUnionTagOutOfRange is returned when a decoded union selector tag
	// names a field index beyond the type's field count.
	ErrUnionTagOutOfRange = errors.New("serialize: union tag out of range")

	// ErrArrayLengthExceedsMax is returned when a decoded dynamic array
	// length field exceeds the descriptor's MaxSize.
	ErrArrayLengthExceedsMax = errors.New("serialize: array length exceeds descriptor max size")

	// ErrUnsupportedTailElement is returned when a tail-optimized dynamic
	// array's element type has no statically known bit width (only
	// void/primitive elements are supported in tail position).
	ErrUnsupportedTailElement = errors.New("serialize: tail-optimized array element has no fixed width")
)
