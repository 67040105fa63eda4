// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for describing tensor computations.
//
// # Overview
//
// A Context owns one fixed-capacity arena. Every tensor descriptor, every
// tensor data region and every graph built from the context is carved out of
// that arena and released together by Close. Tensors are referred to by
// Handle, the arena offset of their descriptor.
//
// Creating an operator tensor only records the operator and its operands.
// Nothing is computed until a graph containing it is evaluated (see package
// graph).
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/arenagraph/graph"
//	    "github.com/born-ml/arenagraph/tensor"
//	)
//
//	func main() {
//	    ctx, err := tensor.NewContext(tensor.Estimate{
//	        Tensors: 3,
//	        Data:    3 * tensor.DataSize(tensor.Float32, 4),
//	        Graph:   graph.Overhead(graph.DefaultSize),
//	        Margin:  1024,
//	    }.Capacity())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer ctx.Close()
//
//	    a, _ := ctx.NewTensor1D(tensor.Float32, 4)
//	    b, _ := ctx.NewTensor1D(tensor.Float32, 4)
//	    _ = ctx.SetFloat32(a, []float32{1, 2, 3, 4})
//	    _ = ctx.SetFloat32(b, []float32{10, 20, 30, 40})
//
//	    sum, _ := ctx.Add(a, b)
//	    g, _ := graph.Build(ctx, sum)
//	    _ = graph.Compute(context.Background(), g, 1)
//
//	    out, _ := ctx.Float32(sum) // [11 22 33 44]
//	}
//
// # Memory Model
//
// The arena never grows. Size it up front with Estimate; an allocation that
// does not fit fails with ErrArenaExhausted and leaves the context usable.
// With WithNoAlloc the arena holds only descriptors and graphs, and tensor
// data is attached with Bind.
//
// # Supported Data Types
//
// Tensors can be declared with any DataType. The evaluator computes float32
// tensors only.
package tensor
