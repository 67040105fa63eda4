// Package compute evaluates graphs on the CPU.
//
// Nodes run strictly one after another in graph order. Within a node the
// output range is split into contiguous chunks computed concurrently and
// joined before the next node starts, so every operator sees fully
// materialized operands. Each output element is computed by exactly one
// goroutine with the same arithmetic regardless of the thread count, which
// makes results bit-identical across thread counts.
package compute

import (
	"context"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"github.com/born-ml/arenagraph/internal/arena"
	"github.com/born-ml/arenagraph/internal/graph"
	"github.com/born-ml/arenagraph/internal/parallel"
	"github.com/born-ml/arenagraph/internal/tensor"
)

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithMetrics records evaluations into m.
func WithMetrics(m *Metrics) Option {
	return func(e *Evaluator) {
		e.metrics = m
	}
}

// WithMinChunkSize stops a node from being split into chunks smaller than n
// elements. The default of 0 splits every node across all threads.
func WithMinChunkSize(n int) Option {
	return func(e *Evaluator) {
		e.minChunk = n
	}
}

// Evaluator computes graphs.
type Evaluator struct {
	metrics  *Metrics
	minChunk int
}

// NewEvaluator returns an evaluator configured by opts.
func NewEvaluator(opts ...Option) *Evaluator {
	e := &Evaluator{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEvaluator = NewEvaluator()

// Compute evaluates g with the default evaluator.
func Compute(ctx context.Context, g *graph.Graph, nThreads int) error {
	return defaultEvaluator.Compute(ctx, g, nThreads)
}

// Compute writes the data of every operator tensor in g, in graph order,
// using up to nThreads goroutines per node. nThreads <= 0 means one per CPU.
//
// The graph's context is frozen first: construction, leaf writes and
// rewiring fail from then on. Leaves must have data; a leaf declared in
// no-alloc mode and never bound fails with tensor.ErrNoData. Leaf values are
// not checked. Every node is checked before the first kernel runs, so an
// evaluation that fails leaves all tensor data as it was. The context is only
// used for logging.
func (e *Evaluator) Compute(ctx context.Context, g *graph.Graph, nThreads int) (err error) {
	c := g.Context()
	if c.Arena().Closed() {
		return arena.ErrClosed
	}
	c.Freeze()

	if nThreads <= 0 {
		nThreads = parallel.DefaultWorkers()
	}
	cfg := parallel.Config{Workers: nThreads, MinChunkSize: e.minChunk}

	logger := klog.FromContext(ctx).WithValues("session", c.ID())
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		e.metrics.observeGraph(elapsed.Seconds(), err)
		if err != nil {
			logger.V(2).Info("Graph evaluation failed", "err", err)
			return
		}
		logger.V(2).Info("Computed graph", "nodes", g.Len(), "threads", nThreads, "elapsed", elapsed)
	}()

	steps, err := e.prepare(c, g.Order())
	if err != nil {
		return err
	}
	for _, st := range steps {
		if err := st.run(cfg); err != nil {
			return err
		}
		e.metrics.observeNode(st.op.String(), len(st.dst))
	}
	return nil
}

// step is one operator node with its kernel and data resolved.
type step struct {
	h    tensor.Handle
	op   tensor.Op
	k    kernel
	dst  []float32
	a, b []float32
}

// prepare checks every node in order before any kernel runs, so a graph
// that cannot be evaluated leaves all tensor data untouched.
func (e *Evaluator) prepare(c *tensor.Context, order []tensor.Handle) ([]step, error) {
	steps := make([]step, 0, len(order))
	for _, h := range order {
		op, err := c.Op(h)
		if err != nil {
			return nil, err
		}
		if op == tensor.OpNone {
			has, err := c.HasData(h)
			if err != nil {
				return nil, err
			}
			if !has {
				return nil, fmt.Errorf("leaf %v: %w", h, tensor.ErrNoData)
			}
			continue
		}

		k := lookupKernel(op)
		if k == nil {
			return nil, fmt.Errorf("%w: %s at %v", tensor.ErrUnknownOp, op, h)
		}

		dst, operands, err := e.views(c, h, op)
		if err != nil {
			return nil, err
		}
		st := step{h: h, op: op, k: k, dst: dst, a: operands[0]}
		if len(operands) > 1 {
			st.b = operands[1]
		}
		steps = append(steps, st)
	}
	return steps, nil
}

func (st step) run(cfg parallel.Config) error {
	err := parallel.For(len(st.dst), func(start, end int) error {
		var bc []float32
		if st.b != nil {
			bc = st.b[start:end]
		}
		st.k(st.dst[start:end], st.a[start:end], bc)
		return nil
	}, cfg)
	if err != nil {
		return fmt.Errorf("computing %s at %v: %w", st.op, st.h, err)
	}
	return nil
}

// views returns the float32 data of a node and its operands after checking
// that they agree in element type and count.
func (e *Evaluator) views(c *tensor.Context, h tensor.Handle, op tensor.Op) ([]float32, [][]float32, error) {
	handles, err := c.Operands(h)
	if err != nil {
		return nil, nil, err
	}
	if len(handles) != op.Arity() {
		return nil, nil, fmt.Errorf("%w: %s at %v has %d operands", tensor.ErrShapeMismatch, op, h, len(handles))
	}

	dst, err := c.Float32(h)
	if err != nil {
		return nil, nil, fmt.Errorf("output of %s at %v: %w", op, h, err)
	}

	operands := make([][]float32, len(handles))
	shapes := make([]tensor.Shape, len(handles))
	for i, oh := range handles {
		if operands[i], err = c.Float32(oh); err != nil {
			return nil, nil, fmt.Errorf("operand %d of %s at %v: %w", i, op, h, err)
		}
		if shapes[i], err = c.Shape(oh); err != nil {
			return nil, nil, err
		}
	}
	for _, v := range operands {
		if len(v) != len(dst) {
			return nil, nil, &tensor.ShapeError{Op: op, Shapes: shapes, Reason: "element counts differ from the output"}
		}
	}
	return dst, operands, nil
}
