// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package graph builds evaluation orders for tensors and computes them.
//
// Build walks a tensor's operands depth-first and produces an order in which
// every tensor follows all of its operands. Compute then runs the operators in
// that order on the CPU, splitting each operator's elements across threads.
//
// Example:
//
//	g, err := graph.Build(ctx, sum)
//	if err != nil {
//	    return err
//	}
//	if err := graph.Compute(context.Background(), g, runtime.NumCPU()); err != nil {
//	    return err
//	}
package graph

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/born-ml/arenagraph/internal/compute"
	"github.com/born-ml/arenagraph/internal/graph"
	"github.com/born-ml/arenagraph/tensor"
)

// Graph is an evaluation order allocated in a context's arena.
type Graph = graph.Graph

// DefaultSize is the node capacity of graphs created with New and Build.
const DefaultSize = graph.DefaultSize

// MaxSize is the largest node capacity a graph can have.
const MaxSize = graph.MaxSize

// Errors.
var (
	ErrCyclicGraph = graph.ErrCyclicGraph
	ErrGraphFull   = graph.ErrGraphFull
	ErrInvalidSize = graph.ErrInvalidSize
)

// Overhead returns the arena bytes a graph of size nodes takes, or -1 if size
// is negative or above MaxSize.
func Overhead(size int) int {
	return graph.Overhead(size)
}

// New allocates an empty graph in ctx.
func New(ctx *tensor.Context) (*Graph, error) {
	return graph.New(ctx)
}

// NewWithSize allocates an empty graph that can hold size nodes.
func NewWithSize(ctx *tensor.Context, size int) (*Graph, error) {
	return graph.NewWithSize(ctx, size)
}

// Build allocates a graph and expands it from outputs.
func Build(ctx *tensor.Context, outputs ...tensor.Handle) (*Graph, error) {
	return graph.Build(ctx, outputs...)
}

// Evaluator computes graphs.
type Evaluator = compute.Evaluator

// Option configures an Evaluator.
type Option = compute.Option

// Metrics holds evaluator Prometheus collectors.
type Metrics = compute.Metrics

// NewEvaluator returns an evaluator configured by opts.
func NewEvaluator(opts ...Option) *Evaluator {
	return compute.NewEvaluator(opts...)
}

// WithMetrics records evaluations into m.
func WithMetrics(m *Metrics) Option {
	return compute.WithMetrics(m)
}

// WithMinChunkSize sets the smallest per-thread chunk of a node.
func WithMinChunkSize(n int) Option {
	return compute.WithMinChunkSize(n)
}

// NewMetrics creates evaluator collectors registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return compute.NewMetrics(reg)
}

// Compute evaluates g using up to nThreads goroutines per node.
// nThreads <= 0 means one per CPU.
func Compute(ctx context.Context, g *Graph, nThreads int) error {
	return compute.Compute(ctx, g, nThreads)
}
