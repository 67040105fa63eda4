package tensor

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors.
var (
	ErrShapeMismatch   = errors.New("shape mismatch")
	ErrInvalidShape    = errors.New("invalid shape")
	ErrInvalidHandle   = errors.New("invalid tensor handle")
	ErrUnsupportedType = errors.New("unsupported data type")
	ErrUnknownOp       = errors.New("unknown operator")
	ErrNoData          = errors.New("tensor has no data")
	ErrNotLeaf         = errors.New("tensor is not a leaf")
	ErrNotOperator     = errors.New("tensor has no operator")
	ErrFrozen          = errors.New("context is frozen for evaluation")
	ErrMisaligned      = errors.New("buffer is not aligned to the element size")
)

// ShapeError reports operands that do not satisfy an operator's arity or
// shape rule. It matches ErrShapeMismatch with errors.Is.
type ShapeError struct {
	Op     Op      // Operator being validated
	Shapes []Shape // Operand shapes, in operand order
	Reason string  // What rule was violated
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	shapes := make([]string, len(e.Shapes))
	for i, s := range e.Shapes {
		shapes[i] = fmt.Sprint([]int(s))
	}
	return fmt.Sprintf("%s: operand shapes %s: %s", e.Op, strings.Join(shapes, " and "), e.Reason)
}

// Unwrap returns ErrShapeMismatch.
func (e *ShapeError) Unwrap() error {
	return ErrShapeMismatch
}
