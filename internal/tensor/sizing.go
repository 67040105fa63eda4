package tensor

import (
	"fmt"

	"github.com/born-ml/arenagraph/internal/arena"
)

// DataAlignment is the alignment of every tensor data region.
const DataAlignment = 16

// TensorOverhead returns the worst-case arena bytes one tensor costs on top of
// its data: the descriptor plus alignment padding for it and its data.
func TensorOverhead() int {
	return descriptorSize + descriptorAlign + DataAlignment
}

// DataSize returns the bytes needed for the data of a tensor with the given
// element type and shape, or -1 if no arena could hold it.
func DataSize(dtype DataType, shape ...int) int {
	n, err := dataBytes(dtype, shape)
	if err != nil {
		return -1
	}
	return n
}

func dataBytes(dtype DataType, s Shape) (int, error) {
	if err := s.Validate(); err != nil {
		return 0, err
	}
	if !dtype.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedType, dtype)
	}
	n := s.NumElements() * dtype.Size()
	if n > arena.MaxCapacity {
		return 0, fmt.Errorf("%w: %v %s needs %d bytes, more than %d", ErrInvalidShape, []int(s), dtype, n, arena.MaxCapacity)
	}
	return n, nil
}

// Estimate sizes an arena before it is opened.
//
// Example, two 4-element float32 inputs and their sum:
//
//	capacity := tensor.Estimate{
//		Tensors: 3,
//		Data:    3 * tensor.DataSize(tensor.Float32, 4),
//		Graph:   graph.Overhead(graph.DefaultSize),
//		Margin:  1024,
//	}.Capacity()
type Estimate struct {
	Tensors int // Number of tensors (leaves and operator outputs)
	Data    int // Total data bytes of tensors whose data lives in the arena
	Graph   int // Bytes reserved for graphs, see graph.Overhead
	Margin  int // Safety margin
}

// Capacity returns the arena capacity the estimate calls for. It is -1 when
// Data or Graph is negative, which is how DataSize and graph.Overhead report
// sizes no arena can hold.
func (e Estimate) Capacity() int {
	if e.Data < 0 || e.Graph < 0 {
		return -1
	}
	return e.Tensors*TensorOverhead() + e.Data + e.Graph + e.Margin
}
