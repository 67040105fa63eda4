package graph

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/arenagraph/internal/tensor"
)

func newContext(t *testing.T) *tensor.Context {
	t.Helper()
	c, err := tensor.NewContext(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func leaf(t *testing.T, c *tensor.Context, n int) tensor.Handle {
	t.Helper()
	h, err := c.NewTensor1D(tensor.Float32, n)
	require.NoError(t, err)
	return h
}

// requireTopological checks that every operand precedes its consumer and
// that no tensor appears twice.
func requireTopological(t *testing.T, c *tensor.Context, order []tensor.Handle) {
	t.Helper()
	pos := make(map[tensor.Handle]int, len(order))
	for i, h := range order {
		_, dup := pos[h]
		require.False(t, dup, "%v appears twice", h)
		pos[h] = i
	}
	for i, h := range order {
		operands, err := c.Operands(h)
		require.NoError(t, err)
		for _, op := range operands {
			j, ok := pos[op]
			require.True(t, ok, "operand %v of %v missing from order", op, h)
			require.Less(t, j, i, "operand %v must precede %v", op, h)
		}
	}
}

func TestBuild_LeafOnly(t *testing.T) {
	c := newContext(t)
	a := leaf(t, c, 4)

	g, err := Build(c, a)
	require.NoError(t, err)

	assert.Equal(t, []tensor.Handle{a}, g.Order())
	assert.Equal(t, []tensor.Handle{a}, g.Leafs())
	assert.Empty(t, g.Nodes())
	assert.Same(t, c, g.Context())
}

func TestBuild_Add(t *testing.T) {
	c := newContext(t)
	a := leaf(t, c, 4)
	b := leaf(t, c, 4)
	sum, err := c.Add(a, b)
	require.NoError(t, err)

	g, err := Build(c, sum)
	require.NoError(t, err)

	assert.Equal(t, []tensor.Handle{a, b, sum}, g.Order())
	assert.Equal(t, []tensor.Handle{sum}, g.Nodes())
	assert.Equal(t, []tensor.Handle{a, b}, g.Leafs())
	assert.True(t, g.Contains(sum))
}

func TestBuild_SharedOperand(t *testing.T) {
	c := newContext(t)
	a := leaf(t, c, 4)
	sq, err := c.Mul(a, a)
	require.NoError(t, err)
	neg, err := c.Neg(a)
	require.NoError(t, err)
	out, err := c.Add(sq, neg)
	require.NoError(t, err)

	g, err := Build(c, out)
	require.NoError(t, err)

	order := g.Order()
	assert.Equal(t, []tensor.Handle{a, sq, neg, out}, order)
	requireTopological(t, c, order)
}

func TestBuild_Diamond(t *testing.T) {
	c := newContext(t)
	x := leaf(t, c, 8)
	y := leaf(t, c, 8)

	// out = (x+y)*(x-y) + sqr(x+y)
	s, err := c.Add(x, y)
	require.NoError(t, err)
	d, err := c.Sub(x, y)
	require.NoError(t, err)
	p, err := c.Mul(s, d)
	require.NoError(t, err)
	q, err := c.Sqr(s)
	require.NoError(t, err)
	out, err := c.Add(p, q)
	require.NoError(t, err)

	g, err := Build(c, out)
	require.NoError(t, err)

	assert.Equal(t, 7, g.Len())
	requireTopological(t, c, g.Order())
	assert.Equal(t, out, g.Order()[g.Len()-1])
}

func TestExpand_MultipleOutputs(t *testing.T) {
	c := newContext(t)
	a := leaf(t, c, 4)
	b := leaf(t, c, 4)
	sum, err := c.Add(a, b)
	require.NoError(t, err)
	neg, err := c.Neg(sum)
	require.NoError(t, err)

	t.Run("independent order", func(t *testing.T) {
		g, err := New(c)
		require.NoError(t, err)
		require.NoError(t, g.Expand(sum, neg))
		assert.Equal(t, []tensor.Handle{a, b, sum, neg}, g.Order())
	})

	t.Run("dependent output requested first", func(t *testing.T) {
		g, err := New(c)
		require.NoError(t, err)
		require.NoError(t, g.Expand(neg, sum))
		assert.Equal(t, []tensor.Handle{a, b, sum, neg}, g.Order(),
			"an output that another output depends on is placed before it, once")
	})
}

func TestExpand_Incremental(t *testing.T) {
	c := newContext(t)
	a := leaf(t, c, 4)
	b := leaf(t, c, 4)
	sum, err := c.Add(a, b)
	require.NoError(t, err)
	prod, err := c.Mul(a, b)
	require.NoError(t, err)

	g, err := New(c)
	require.NoError(t, err)

	require.NoError(t, g.Expand(sum))
	require.NoError(t, g.Expand(sum))
	assert.Equal(t, 3, g.Len(), "repeated expansion adds nothing")

	require.NoError(t, g.Expand(prod))
	assert.Equal(t, []tensor.Handle{a, b, sum, prod}, g.Order())
}

func TestExpand_Cycle(t *testing.T) {
	c := newContext(t)
	a := leaf(t, c, 4)
	b := leaf(t, c, 4)
	s1, err := c.Add(a, b)
	require.NoError(t, err)
	s2, err := c.Add(s1, b)
	require.NoError(t, err)

	// s1 = s2 + b, s2 = s1 + b
	require.NoError(t, c.Rewire(s1, 0, s2))

	g, err := New(c)
	require.NoError(t, err)

	err = g.Expand(s2)
	require.ErrorIs(t, err, ErrCyclicGraph)
	assert.Zero(t, g.Len(), "failed expansion leaves the graph unchanged")
}

func TestExpand_SelfReference(t *testing.T) {
	c := newContext(t)
	a := leaf(t, c, 4)
	n, err := c.Neg(a)
	require.NoError(t, err)
	require.NoError(t, c.Rewire(n, 0, n))

	_, err = Build(c, n)
	assert.ErrorIs(t, err, ErrCyclicGraph)
}

func TestExpand_Full(t *testing.T) {
	c := newContext(t)
	a := leaf(t, c, 4)
	b := leaf(t, c, 4)
	sum, err := c.Add(a, b)
	require.NoError(t, err)

	g, err := NewWithSize(c, 2)
	require.NoError(t, err)

	require.NoError(t, g.Expand(a))
	err = g.Expand(sum)
	require.ErrorIs(t, err, ErrGraphFull)
	assert.Equal(t, []tensor.Handle{a}, g.Order())

	g, err = NewWithSize(c, 3)
	require.NoError(t, err)
	require.NoError(t, g.Expand(sum), "exact capacity fits")
}

func TestExpand_InvalidHandle(t *testing.T) {
	c := newContext(t)
	g, err := New(c)
	require.NoError(t, err)

	assert.ErrorIs(t, g.Expand(tensor.Handle(12345)), tensor.ErrInvalidHandle)
	assert.ErrorIs(t, g.Expand(tensor.NoTensor), tensor.ErrInvalidHandle)
}

func TestExpand_Frozen(t *testing.T) {
	c := newContext(t)
	a := leaf(t, c, 4)
	g, err := New(c)
	require.NoError(t, err)

	c.Freeze()
	assert.ErrorIs(t, g.Expand(a), tensor.ErrFrozen)
	_, err = New(c)
	assert.ErrorIs(t, err, tensor.ErrFrozen)
}

func TestNewWithSize(t *testing.T) {
	_, err := NewWithSize(newContext(t), 0)
	assert.ErrorIs(t, err, ErrInvalidSize)

	c, err := tensor.NewContext(Overhead(16))
	require.NoError(t, err)
	defer c.Close()

	before := c.Arena().Used()
	g, err := NewWithSize(c, 16)
	require.NoError(t, err)
	assert.LessOrEqual(t, c.Arena().Used()-before, Overhead(16))
	assert.Equal(t, 16, g.Size())

	_, err = NewWithSize(c, 16)
	require.Error(t, err)
	assert.Equal(t, headerSize+16*handleSize, c.Arena().Used()-before,
		"failed allocation leaves usage unchanged")
}

func TestNewWithSize_TooLarge(t *testing.T) {
	c := newContext(t)
	before := c.Arena().Used()

	for _, size := range []int{MaxSize + 1, 1<<61 + 1, math.MaxInt} {
		_, err := NewWithSize(c, size)
		assert.ErrorIs(t, err, ErrInvalidSize, "size %d", size)
		assert.Equal(t, -1, Overhead(size), "size %d", size)
	}
	assert.Equal(t, before, c.Arena().Used())
	assert.Equal(t, -1, Overhead(-1))
	assert.Positive(t, Overhead(MaxSize))
}
