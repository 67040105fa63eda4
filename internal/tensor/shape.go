package tensor

import (
	"fmt"

	"github.com/born-ml/arenagraph/internal/arena"
)

// MaxDims is the maximum number of dimensions a tensor can have.
const MaxDims = 4

// MaxElements bounds the element count of a single tensor.
const MaxElements = arena.MaxCapacity

// Shape represents the dimensions of a tensor, outermost first.
type Shape []int

// NumElements returns the total number of elements in the tensor.
func (s Shape) NumElements() int {
	if len(s) == 0 {
		return 1 // Scalar has 1 element
	}
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Validate checks that the shape has 1 to MaxDims dimensions, all > 0, and
// at most MaxElements elements.
func (s Shape) Validate() error {
	if len(s) == 0 || len(s) > MaxDims {
		return fmt.Errorf("%w: %d dimensions (want 1 to %d)", ErrInvalidShape, len(s), MaxDims)
	}
	n := 1
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("%w: dimension %d is %d (must be > 0)", ErrInvalidShape, i, dim)
		}
		if n > MaxElements/dim {
			return fmt.Errorf("%w: %v has more than %d elements", ErrInvalidShape, []int(s), MaxElements)
		}
		n *= dim
	}
	return nil
}

// Equal checks if two shapes are equal.
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}

// ComputeStrides calculates row-major strides for the shape, in elements.
// stride[i] = product of all dimensions after i.
func (s Shape) ComputeStrides() []int {
	strides := make([]int, len(s))
	if len(s) == 0 {
		return strides
	}

	strides[len(s)-1] = 1
	for i := len(s) - 2; i >= 0; i-- {
		strides[i] = strides[i+1] * s[i+1]
	}
	return strides
}

// Padded returns the extents as a fixed array with unused trailing
// dimensions set to 1.
func (s Shape) Padded() [MaxDims]int64 {
	var ne [MaxDims]int64
	for i := range ne {
		ne[i] = 1
	}
	for i, dim := range s {
		ne[i] = int64(dim)
	}
	return ne
}
