// Package graph orders the tensors of a context into an evaluation sequence.
//
// A Graph lives in the arena of the context it was built from: its header and
// node array are allocated there and released with the context. Expanding a
// graph from its outputs visits operands depth-first and records every tensor
// after all of its operands (post-order), each tensor at most once.
package graph

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"k8s.io/klog/v2"

	"github.com/born-ml/arenagraph/internal/arena"
	"github.com/born-ml/arenagraph/internal/tensor"
)

// DefaultSize is the node capacity of graphs created with New.
const DefaultSize = 2048

// Graph errors.
var (
	ErrCyclicGraph = errors.New("graph contains a cycle")
	ErrGraphFull   = errors.New("graph node capacity exceeded")
	ErrInvalidSize = errors.New("invalid graph size")
)

// header is the arena-resident part of a graph.
type header struct {
	size  int64
	n     int64
	order int64 // arena offset of the node array
}

const (
	headerSize  = int(unsafe.Sizeof(header{}))
	headerAlign = int(unsafe.Alignof(header{}))
	handleSize  = int(unsafe.Sizeof(tensor.Handle(0)))
)

// MaxSize is the largest node capacity whose graph fits in an arena.
const MaxSize = (arena.MaxCapacity - headerSize) / handleSize

// Overhead returns the worst-case arena bytes a graph of the given node
// capacity takes, alignment padding included. It is -1 for a size outside
// 0 to MaxSize.
func Overhead(size int) int {
	if size < 0 || size > MaxSize {
		return -1
	}
	return headerSize + headerAlign + size*handleSize + handleSize
}

// Graph is an ordered, duplicate-free list of tensors in which every tensor
// appears after all of its operands.
type Graph struct {
	ctx     *tensor.Context
	hdr     *header
	order   []tensor.Handle
	visited *roaring64.Bitmap
}

// New allocates an empty graph with DefaultSize node capacity.
func New(c *tensor.Context) (*Graph, error) {
	return NewWithSize(c, DefaultSize)
}

// NewWithSize allocates an empty graph that can hold size nodes.
func NewWithSize(c *tensor.Context, size int) (*Graph, error) {
	if size <= 0 || size > MaxSize {
		return nil, fmt.Errorf("%w: %d (want 1 to %d)", ErrInvalidSize, size, MaxSize)
	}
	if c.Frozen() {
		return nil, tensor.ErrFrozen
	}

	a := c.Arena()
	mark := a.Mark()

	_, hmem, err := a.Alloc(headerSize, headerAlign)
	if err != nil {
		return nil, fmt.Errorf("allocating graph header: %w", err)
	}
	orderOff, omem, err := a.Alloc(size*handleSize, handleSize)
	if err != nil {
		if rerr := a.Rewind(mark); rerr != nil {
			return nil, fmt.Errorf("rewinding after failed allocation: %w", rerr)
		}
		return nil, fmt.Errorf("allocating graph of %d nodes: %w", size, err)
	}

	//nolint:gosec // header is pointer-free and the region is aligned for it
	hdr := (*header)(unsafe.Pointer(&hmem[0]))
	hdr.size = int64(size)
	hdr.order = int64(orderOff)

	return &Graph{
		ctx: c,
		hdr: hdr,
		//nolint:gosec // node array is sized and aligned for size handles
		order:   unsafe.Slice((*tensor.Handle)(unsafe.Pointer(&omem[0])), size),
		visited: roaring64.New(),
	}, nil
}

// Build allocates a graph and expands it from outputs.
func Build(c *tensor.Context, outputs ...tensor.Handle) (*Graph, error) {
	g, err := New(c)
	if err != nil {
		return nil, err
	}
	if err := g.Expand(outputs...); err != nil {
		return nil, err
	}
	return g, nil
}

type frame struct {
	node     tensor.Handle
	operands []tensor.Handle
	next     int
}

// Expand appends every tensor reachable from outputs that is not already in
// the graph, operands first. Outputs are processed in the order given.
//
// A tensor that reaches itself through its operands fails with
// ErrCyclicGraph; exceeding the node capacity fails with ErrGraphFull. On
// failure the graph is left as it was before the call.
func (g *Graph) Expand(outputs ...tensor.Handle) error {
	if g.ctx.Frozen() {
		return tensor.ErrFrozen
	}
	if g.ctx.Arena().Closed() {
		return arena.ErrClosed
	}

	var (
		added   []tensor.Handle
		done    = roaring64.New()
		onStack = roaring64.New()
		stack   []frame
	)
	seen := func(h tensor.Handle) bool {
		return g.visited.Contains(uint64(h)) || done.Contains(uint64(h)) //nolint:gosec // handles are non-negative
	}
	push := func(h tensor.Handle) error {
		operands, err := g.ctx.Operands(h)
		if err != nil {
			return err
		}
		onStack.Add(uint64(h)) //nolint:gosec // validated by Operands
		stack = append(stack, frame{node: h, operands: operands})
		return nil
	}

	for _, out := range outputs {
		if out >= 0 && seen(out) {
			continue
		}
		if err := push(out); err != nil {
			return fmt.Errorf("expanding graph: %w", err)
		}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(top.operands) {
				op := top.operands[top.next]
				top.next++
				if seen(op) {
					continue
				}
				if op >= 0 && onStack.Contains(uint64(op)) {
					return fmt.Errorf("%w: %v reaches itself through %v", ErrCyclicGraph, op, top.node)
				}
				if err := push(op); err != nil {
					return fmt.Errorf("expanding graph from %v: %w", top.node, err)
				}
				continue
			}

			node := top.node
			stack = stack[:len(stack)-1]
			onStack.Remove(uint64(node)) //nolint:gosec // validated by push
			done.Add(uint64(node))       //nolint:gosec // validated by push

			if g.Len()+len(added) >= len(g.order) {
				return fmt.Errorf("%w: capacity %d", ErrGraphFull, len(g.order))
			}
			added = append(added, node)
		}
	}

	n := g.Len()
	copy(g.order[n:], added)
	g.hdr.n = int64(n + len(added))
	g.visited.Or(done)

	klog.V(3).InfoS("Expanded graph", "session", g.ctx.ID(), "outputs", len(outputs), "added", len(added), "nodes", g.Len())
	return nil
}

// Len returns the number of tensors in the graph, 0 once the context is
// closed.
func (g *Graph) Len() int {
	if g.ctx.Arena().Closed() {
		return 0
	}
	return int(g.hdr.n)
}

// Size returns the node capacity.
func (g *Graph) Size() int {
	return len(g.order)
}

// Order returns the evaluation order. The returned slice is a copy.
func (g *Graph) Order() []tensor.Handle {
	out := make([]tensor.Handle, g.Len())
	copy(out, g.order)
	return out
}

// Nodes returns the operator tensors in evaluation order.
func (g *Graph) Nodes() []tensor.Handle {
	return g.filter(false)
}

// Leafs returns the leaf tensors in evaluation order.
func (g *Graph) Leafs() []tensor.Handle {
	return g.filter(true)
}

// Contains reports whether h is in the graph.
func (g *Graph) Contains(h tensor.Handle) bool {
	return h >= 0 && g.visited.Contains(uint64(h))
}

// Context returns the context the graph was built from.
func (g *Graph) Context() *tensor.Context {
	return g.ctx
}

func (g *Graph) filter(leaf bool) []tensor.Handle {
	var out []tensor.Handle
	for _, h := range g.order[:g.Len()] {
		isLeaf, err := g.ctx.IsLeaf(h)
		if err != nil {
			continue
		}
		if isLeaf == leaf {
			out = append(out, h)
		}
	}
	return out
}
