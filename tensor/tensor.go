// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/arenagraph/internal/arena"
	"github.com/born-ml/arenagraph/internal/tensor"
)

// Type aliases for public API

// Context owns the arena that backs a set of tensors and graphs.
type Context = tensor.Context

// Handle identifies a tensor within its Context.
type Handle = tensor.Handle

// NoTensor is the missing tensor marker.
const NoTensor = tensor.NoTensor

// Shape represents the dimensions of a tensor, at most MaxDims of them.
// Example: Shape{2, 3, 4} represents a 3D tensor with dimensions 2×3×4.
type Shape = tensor.Shape

// MaxDims is the maximum number of dimensions.
const MaxDims = tensor.MaxDims

// DataType represents the element type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
	Bool    DataType = tensor.Bool
)

// Op tags the operator that produces a tensor.
type Op = tensor.Op

// Operator constants.
const (
	OpNone Op = tensor.OpNone
	OpAdd  Op = tensor.OpAdd
	OpSub  Op = tensor.OpSub
	OpMul  Op = tensor.OpMul
	OpDiv  Op = tensor.OpDiv
	OpNeg  Op = tensor.OpNeg
	OpSqr  Op = tensor.OpSqr
)

// ShapeError reports operands that violate an operator's shape rule.
type ShapeError = tensor.ShapeError

// Estimate sizes an arena before it is opened.
type Estimate = tensor.Estimate

// Option configures the arena opened by NewContext.
type Option = arena.Option

// DataAlignment is the alignment of every tensor data region.
const DataAlignment = tensor.DataAlignment

// Errors.
var (
	ErrOutOfMemory     = arena.ErrOutOfMemory
	ErrArenaExhausted  = arena.ErrArenaExhausted
	ErrClosed          = arena.ErrClosed
	ErrShapeMismatch   = tensor.ErrShapeMismatch
	ErrInvalidShape    = tensor.ErrInvalidShape
	ErrInvalidHandle   = tensor.ErrInvalidHandle
	ErrUnsupportedType = tensor.ErrUnsupportedType
	ErrUnknownOp       = tensor.ErrUnknownOp
	ErrNoData          = tensor.ErrNoData
	ErrNotLeaf         = tensor.ErrNotLeaf
	ErrNotOperator     = tensor.ErrNotOperator
	ErrFrozen          = tensor.ErrFrozen
	ErrMisaligned      = tensor.ErrMisaligned
)

// NewContext opens an arena of capacity bytes and returns an empty context.
func NewContext(capacity int, opts ...Option) (*Context, error) {
	return tensor.NewContext(capacity, opts...)
}

// WithBuffer backs the arena with caller memory instead of reserving a
// region. The buffer must outlive the context.
func WithBuffer(buf []byte) Option {
	return arena.WithBuffer(buf)
}

// WithNoAlloc keeps tensor data out of the arena. Data is attached with
// Context.Bind.
func WithNoAlloc(noAlloc bool) Option {
	return arena.WithNoAlloc(noAlloc)
}

// TensorOverhead returns the worst-case arena bytes one tensor costs on top
// of its data.
func TensorOverhead() int {
	return tensor.TensorOverhead()
}

// DataSize returns the data bytes of a tensor with the given type and shape,
// or -1 if the shape is invalid or too large for any arena.
func DataSize(dtype DataType, shape ...int) int {
	return tensor.DataSize(dtype, shape...)
}
