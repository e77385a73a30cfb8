package dtype

import "errors"

var (
	// ErrInvalidFieldAccess is returned when a composite's Field is read
	// for a union member that is not the currently active one.
	ErrInvalidFieldAccess = errors.New("dtype: field is not the active union member")

	// ErrUnknownField is returned when a composite has no field with the
	// requested name.
	ErrUnknownField = errors.New("dtype: unknown field")

	// ErrTypeMismatch is returned when an accessor is called against a
	// value whose descriptor kind does not match (e.g. GetBool on a
	// primitive-uint value).
	ErrTypeMismatch = errors.New("dtype: accessor does not match descriptor kind")

	// ErrArrayBounds is returned by Index/Append when an index is
	// negative, out of range, or would grow a dynamic array past its
	// descriptor's MaxSize.
	ErrArrayBounds = errors.New("dtype: array index out of bounds")

	// ErrNotArray and ErrNotComposite guard Index/Field against being
	// called on a value of the wrong Kind.
	ErrNotArray     = errors.New("dtype: value is not an array")
	ErrNotComposite = errors.New("dtype: value is not a composite")
)
