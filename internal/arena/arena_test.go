package arena

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	t.Run("reserved region", func(t *testing.T) {
		a, err := Open(4096)
		require.NoError(t, err)
		defer a.Close()

		assert.Equal(t, 4096, a.Capacity())
		assert.Equal(t, 0, a.Used())
		assert.Equal(t, 4096, a.Remaining())
		assert.False(t, a.NoAlloc())
		assert.False(t, a.Failed())
	})

	t.Run("invalid capacity", func(t *testing.T) {
		for _, capacity := range []int{0, -1, MaxCapacity + 1} {
			_, err := Open(capacity)
			assert.ErrorIs(t, err, ErrOutOfMemory, "capacity %d", capacity)
		}
	})

	t.Run("external buffer", func(t *testing.T) {
		buf := make([]byte, 256)
		a, err := Open(0, WithBuffer(buf))
		require.NoError(t, err)
		defer a.Close()

		assert.Equal(t, 256, a.Capacity())

		_, mem, err := a.Alloc(16, 1)
		require.NoError(t, err)
		mem[0] = 7
		assert.Equal(t, byte(7), buf[0], "allocations should alias the external buffer")
	})

	t.Run("external buffer too small", func(t *testing.T) {
		_, err := Open(512, WithBuffer(make([]byte, 256)))
		assert.ErrorIs(t, err, ErrOutOfMemory)
	})

	t.Run("no alloc flag", func(t *testing.T) {
		a, err := Open(64, WithNoAlloc(true))
		require.NoError(t, err)
		defer a.Close()
		assert.True(t, a.NoAlloc())
	})
}

func TestAlloc_ExactCapacity(t *testing.T) {
	a, err := Open(64)
	require.NoError(t, err)
	defer a.Close()

	_, mem, err := a.Alloc(64, 1)
	require.NoError(t, err)
	assert.Len(t, mem, 64)
	assert.Equal(t, 0, a.Remaining())
	assert.False(t, a.Failed())

	_, _, err = a.Alloc(1, 1)
	require.ErrorIs(t, err, ErrArenaExhausted)
	assert.True(t, a.Failed())
	assert.Equal(t, 64, a.Used(), "failed allocation must not move the cursor")
}

func TestAlloc_OneBeyondCapacity(t *testing.T) {
	a, err := Open(64)
	require.NoError(t, err)
	defer a.Close()

	_, _, err = a.Alloc(65, 1)
	require.ErrorIs(t, err, ErrArenaExhausted)
	assert.Equal(t, 0, a.Used())
	assert.Equal(t, uint64(1), a.Stats().Failures)
}

func TestAlloc_Alignment(t *testing.T) {
	a, err := Open(4096)
	require.NoError(t, err)
	defer a.Close()

	for _, align := range []int{1, 2, 4, 8, 16, 64} {
		_, _, err := a.Alloc(3, 1)
		require.NoError(t, err)

		off, mem, err := a.Alloc(8, align)
		require.NoError(t, err)
		ptr := uintptr(unsafe.Pointer(&mem[0]))
		assert.Zero(t, ptr%uintptr(align), "align=%d ptr=%x", align, ptr)
		assert.GreaterOrEqual(t, int(off), 0)
	}
	assert.Positive(t, a.Stats().Padding)
}

func TestAlloc_Invalid(t *testing.T) {
	a, err := Open(128)
	require.NoError(t, err)
	defer a.Close()

	for _, align := range []int{0, -8, 3, 12} {
		_, _, err := a.Alloc(8, align)
		assert.ErrorIs(t, err, ErrInvalidAlignment, "align=%d", align)
	}

	_, _, err = a.Alloc(-1, 8)
	assert.ErrorIs(t, err, ErrInvalidSize)
	assert.False(t, a.Failed(), "invalid arguments are not capacity failures")
}

func TestAlloc_ZeroInitialized(t *testing.T) {
	buf := make([]byte, 64)
	for i := range buf {
		buf[i] = 0xFF
	}

	a, err := Open(0, WithBuffer(buf))
	require.NoError(t, err)
	defer a.Close()

	_, mem, err := a.Alloc(32, 1)
	require.NoError(t, err)
	for i, b := range mem {
		require.Zero(t, b, "byte %d", i)
	}
}

func TestBytes(t *testing.T) {
	a, err := Open(256)
	require.NoError(t, err)
	defer a.Close()

	off, mem, err := a.Alloc(16, 8)
	require.NoError(t, err)
	mem[3] = 42

	view, err := a.Bytes(off, 16)
	require.NoError(t, err)
	assert.Equal(t, byte(42), view[3])

	_, err = a.Bytes(off, 17)
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = a.Bytes(-1, 1)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestMarkRewind(t *testing.T) {
	a, err := Open(256)
	require.NoError(t, err)
	defer a.Close()

	_, _, err = a.Alloc(32, 8)
	require.NoError(t, err)
	m := a.Mark()

	_, mem, err := a.Alloc(64, 8)
	require.NoError(t, err)
	mem[0] = 1

	require.NoError(t, a.Rewind(m))
	assert.Equal(t, 32, a.Used())
	assert.Equal(t, uint64(1), a.Stats().Allocs)
	assert.Equal(t, 96, a.Stats().Peak)

	_, mem, err = a.Alloc(64, 8)
	require.NoError(t, err)
	assert.Zero(t, mem[0], "reused memory is cleared")

	early := Mark{offset: 200}
	assert.ErrorIs(t, a.Rewind(early), ErrOutOfRange)
}

func TestRewind_RestoresPadding(t *testing.T) {
	a, err := Open(256)
	require.NoError(t, err)
	defer a.Close()

	_, _, err = a.Alloc(3, 1)
	require.NoError(t, err)
	_, _, err = a.Alloc(8, 8)
	require.NoError(t, err)
	before := a.Stats()
	m := a.Mark()

	_, _, err = a.Alloc(1, 1)
	require.NoError(t, err)
	_, _, err = a.Alloc(8, 8)
	require.NoError(t, err)
	require.Equal(t, before.Padding+7, a.Stats().Padding)

	require.NoError(t, a.Rewind(m))
	after := a.Stats()
	assert.Equal(t, before.Padding, after.Padding)
	assert.Equal(t, before.Used, after.Used)
	assert.Equal(t, before.Allocs, after.Allocs)
}

func TestAlloc_HugeSize(t *testing.T) {
	a, err := Open(256)
	require.NoError(t, err)
	defer a.Close()

	_, _, err = a.Alloc(8, 8)
	require.NoError(t, err)
	_, _, err = a.Alloc(math.MaxInt-4, 8)
	assert.ErrorIs(t, err, ErrArenaExhausted)
	assert.Equal(t, 8, a.Used())
}

func TestClose(t *testing.T) {
	a, err := Open(128)
	require.NoError(t, err)

	require.NoError(t, a.Close())
	assert.True(t, a.Closed())
	require.NoError(t, a.Close(), "second close is a no-op")

	_, _, err = a.Alloc(8, 8)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = a.Bytes(0, 0)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, a.Rewind(Mark{}), ErrClosed)
}

func TestString(t *testing.T) {
	a, err := Open(2048)
	require.NoError(t, err)
	defer a.Close()

	_, _, err = a.Alloc(1024, 8)
	require.NoError(t, err)

	s := a.String()
	assert.Contains(t, s, "1.0 KiB / 2.0 KiB")
	assert.Contains(t, s, "allocs: 1")
}
