package arena

import "errors"

var (
	// ErrOutOfMemory is returned by Open when the requested capacity cannot be
	// reserved.
	ErrOutOfMemory = errors.New("arena: out of memory")
	// ErrArenaExhausted is returned when an allocation does not fit in the
	// remaining capacity.
	ErrArenaExhausted = errors.New("arena: capacity exhausted")
	// ErrInvalidAlignment is returned for alignments that are not a positive power of two.
	ErrInvalidAlignment = errors.New("arena: alignment must be a positive power of two")
	// ErrInvalidSize is returned for negative allocation sizes.
	ErrInvalidSize = errors.New("arena: invalid size")
	// ErrOutOfRange is returned when an offset does not address allocated memory.
	ErrOutOfRange = errors.New("arena: offset out of range")
	// ErrClosed is returned for any use after Close.
	ErrClosed = errors.New("arena: closed")
)
