package arena

import (
	"fmt"
	"unsafe"

	"github.com/dustin/go-humanize"
)

// MaxCapacity bounds a single arena (1 TiB).
const MaxCapacity = 1 << 40

// Offset addresses an allocation relative to the start of the arena.
type Offset int64

// Mark is a saved cursor position, see Mark and Rewind.
type Mark struct {
	offset  int
	padding int
	allocs  uint64
}

// Stats tracks arena usage.
//
//   - Used: bytes consumed by the cursor, including padding
//   - Padding: bytes skipped to satisfy alignment
//   - Peak: highest cursor position seen (survives Rewind)
//   - Allocs: successful allocations currently live
//   - Failures: allocations rejected for lack of space
type Stats struct {
	Capacity int
	Used     int
	Padding  int
	Peak     int
	Allocs   uint64
	Failures uint64
}

type config struct {
	buffer  []byte
	noAlloc bool
}

// Option configures Open.
type Option func(*config)

// WithBuffer makes the arena carve allocations out of buf instead of
// reserving its own region. The caller keeps ownership of buf; Close does not
// release it.
func WithBuffer(buf []byte) Option {
	return func(c *config) {
		c.buffer = buf
	}
}

// WithNoAlloc records that tensor data must not be placed in the arena.
// The arena itself still serves descriptor and graph allocations.
func WithNoAlloc(noAlloc bool) Option {
	return func(c *config) {
		c.noAlloc = noAlloc
	}
}

// Arena is a fixed-capacity bump allocator.
type Arena struct {
	buf     []byte
	region  *region
	base    uintptr
	offset  int
	noAlloc bool
	failed  bool
	closed  bool
	stats   Stats
}

// Open reserves capacity bytes and returns an empty arena.
//
// With WithBuffer, a capacity of 0 means len(buf). A capacity that cannot be
// satisfied, by the system or by the external buffer, fails with
// ErrOutOfMemory.
func Open(capacity int, opts ...Option) (*Arena, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	a := &Arena{noAlloc: cfg.noAlloc}

	if cfg.buffer != nil {
		if capacity == 0 {
			capacity = len(cfg.buffer)
		}
		if capacity <= 0 || capacity > len(cfg.buffer) {
			return nil, fmt.Errorf("%w: capacity %d does not fit external buffer of %d bytes",
				ErrOutOfMemory, capacity, len(cfg.buffer))
		}
		a.buf = cfg.buffer[:capacity:capacity]
	} else {
		if capacity <= 0 || capacity > MaxCapacity {
			return nil, fmt.Errorf("%w: invalid capacity %d", ErrOutOfMemory, capacity)
		}
		r, err := reserve(capacity)
		if err != nil {
			return nil, fmt.Errorf("%w: reserving %d bytes: %w", ErrOutOfMemory, capacity, err)
		}
		a.region = r
		a.buf = r.bytes()[:capacity:capacity]
	}

	a.base = uintptr(unsafe.Pointer(unsafe.SliceData(a.buf))) //nolint:gosec // address is only used for alignment arithmetic
	a.stats.Capacity = capacity
	return a, nil
}

// Alloc returns a zeroed region of size bytes whose address is a multiple of
// align, and its offset. The cursor only moves on success.
func (a *Arena) Alloc(size, align int) (Offset, []byte, error) {
	if a.closed {
		return 0, nil, ErrClosed
	}
	if size < 0 {
		return 0, nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	if align <= 0 || align&(align-1) != 0 {
		return 0, nil, fmt.Errorf("%w: %d", ErrInvalidAlignment, align)
	}

	addr := a.base + uintptr(a.offset)
	pad := int((uintptr(align) - addr%uintptr(align)) % uintptr(align))
	start := a.offset + pad

	if start > len(a.buf) || size > len(a.buf)-start {
		a.failed = true
		a.stats.Failures++
		return 0, nil, fmt.Errorf("%w: need %d bytes (+%d padding), %d of %d remaining",
			ErrArenaExhausted, size, pad, a.Remaining(), len(a.buf))
	}

	end := start + size
	mem := a.buf[start:end:end]
	// External buffers and rewound regions may hold stale bytes.
	clear(mem)

	a.offset = end
	a.stats.Used = end
	a.stats.Padding += pad
	a.stats.Allocs++
	a.stats.Peak = max(a.stats.Peak, end)

	return Offset(start), mem, nil
}

// Bytes returns the size bytes at off. The range must lie inside memory that
// has already been allocated.
func (a *Arena) Bytes(off Offset, size int) ([]byte, error) {
	if a.closed {
		return nil, ErrClosed
	}
	start := int(off)
	end := start + size
	if start < 0 || size < 0 || end > a.offset {
		return nil, fmt.Errorf("%w: [%d, %d) with %d bytes allocated", ErrOutOfRange, start, end, a.offset)
	}
	return a.buf[start:end:end], nil
}

// Mark saves the current cursor position.
func (a *Arena) Mark() Mark {
	return Mark{offset: a.offset, padding: a.stats.Padding, allocs: a.stats.Allocs}
}

// Rewind moves the cursor back to m, discarding every allocation made since.
// Regions handed out after m must no longer be used.
func (a *Arena) Rewind(m Mark) error {
	if a.closed {
		return ErrClosed
	}
	if m.offset > a.offset {
		return fmt.Errorf("%w: cannot rewind forward from %d to %d", ErrOutOfRange, a.offset, m.offset)
	}
	a.offset = m.offset
	a.stats.Used = m.offset
	a.stats.Padding = m.padding
	a.stats.Allocs = m.allocs
	return nil
}

// Used returns the number of bytes consumed, including alignment padding.
func (a *Arena) Used() int {
	return a.offset
}

// Capacity returns the declared capacity.
func (a *Arena) Capacity() int {
	return a.stats.Capacity
}

// Remaining returns the bytes left before the arena is exhausted.
func (a *Arena) Remaining() int {
	return len(a.buf) - a.offset
}

// NoAlloc reports whether tensor data is kept out of the arena.
func (a *Arena) NoAlloc() bool {
	return a.noAlloc
}

// Failed reports whether any allocation has been rejected for lack of space.
func (a *Arena) Failed() bool {
	return a.failed
}

// Closed reports whether Close has been called.
func (a *Arena) Closed() bool {
	return a.closed
}

// Stats returns a snapshot of the usage counters.
func (a *Arena) Stats() Stats {
	return a.stats
}

// Close releases the region in one step. Every slice obtained from the arena
// becomes invalid. Calling Close more than once is a no-op.
func (a *Arena) Close() error {
	if a.closed {
		return nil
	}
	a.closed = true
	a.buf = nil
	a.base = 0
	if a.region != nil {
		if err := a.region.release(); err != nil {
			return fmt.Errorf("arena: releasing region: %w", err)
		}
		a.region = nil
	}
	return nil
}

func (a *Arena) String() string {
	s := a.stats
	return fmt.Sprintf("Arena{used: %s / %s, padding: %s, peak: %s, allocs: %d, failed: %t}",
		humanize.IBytes(uint64(s.Used)),     //nolint:gosec // non-negative
		humanize.IBytes(uint64(s.Capacity)), //nolint:gosec // non-negative
		humanize.IBytes(uint64(s.Padding)),  //nolint:gosec // non-negative
		humanize.IBytes(uint64(s.Peak)),     //nolint:gosec // non-negative
		s.Allocs,
		a.failed,
	)
}
