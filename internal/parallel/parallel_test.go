package parallel

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunks(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		workers int
		want    []Range
	}{
		{"empty", 0, 4, nil},
		{"single worker", 5, 1, []Range{{0, 5}}},
		{"even split", 8, 4, []Range{{0, 2}, {2, 4}, {4, 6}, {6, 8}}},
		{"uneven split", 10, 4, []Range{{0, 3}, {3, 6}, {6, 8}, {8, 10}}},
		{"more workers than elements", 3, 8, []Range{{0, 1}, {1, 2}, {2, 3}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Chunks(tt.n, tt.workers))
		})
	}
}

func TestChunks_Cover(t *testing.T) {
	for n := 1; n < 100; n++ {
		for workers := 1; workers <= 9; workers++ {
			chunks := Chunks(n, workers)
			require.LessOrEqual(t, len(chunks), workers)

			next, smallest, largest := 0, n, 0
			for _, r := range chunks {
				require.Equal(t, next, r.Start, "n=%d workers=%d", n, workers)
				require.Positive(t, r.Len())
				smallest = min(smallest, r.Len())
				largest = max(largest, r.Len())
				next = r.End
			}
			require.Equal(t, n, next)
			require.LessOrEqual(t, largest-smallest, 1)
		}
	}
}

func TestChunks_MinChunkSize(t *testing.T) {
	cfg := Config{Workers: 8, MinChunkSize: 64}
	assert.Len(t, cfg.Chunks(63), 1)
	assert.Len(t, cfg.Chunks(128), 2)
	assert.Len(t, cfg.Chunks(10000), 8)
}

func TestFor(t *testing.T) {
	cfg := Config{Workers: 4}

	var counter int64
	n := 1000

	err := For(n, func(start, end int) error {
		atomic.AddInt64(&counter, int64(end-start))
		return nil
	}, cfg)
	require.NoError(t, err)

	if counter != int64(n) {
		t.Errorf("Expected %d, got %d", n, counter)
	}
}

func TestFor_Sequential(t *testing.T) {
	cfg := Config{Workers: 1}

	var calls int
	err := For(100, func(start, end int) error {
		calls++
		assert.Equal(t, 0, start)
		assert.Equal(t, 100, end)
		return nil
	}, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestFor_Empty(t *testing.T) {
	err := For(0, func(_, _ int) error {
		t.Fatal("f must not run for an empty range")
		return nil
	}, DefaultConfig())
	assert.NoError(t, err)
}

func TestFor_Error(t *testing.T) {
	boom := errors.New("boom")
	var finished int64

	err := For(8, func(start, _ int) error {
		atomic.AddInt64(&finished, 1)
		if start == 4 {
			return boom
		}
		return nil
	}, Config{Workers: 4})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(4), finished, "every chunk runs to completion")
}

func BenchmarkFor(b *testing.B) {
	n := 1 << 16
	data := make([]float32, n)

	b.Run("parallel", func(b *testing.B) {
		cfg := DefaultConfig()
		for i := 0; i < b.N; i++ {
			_ = For(n, func(start, end int) error {
				for j := start; j < end; j++ {
					data[j] += 1
				}
				return nil
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		cfg := Config{Workers: 1}
		for i := 0; i < b.N; i++ {
			_ = For(n, func(start, end int) error {
				for j := start; j < end; j++ {
					data[j] += 1
				}
				return nil
			}, cfg)
		}
	})
}
