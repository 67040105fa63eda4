package tensor

import (
	"bytes"
	"fmt"
	"unsafe"
)

// Handle identifies a tensor by the arena offset of its descriptor.
// Handles are only meaningful for the Context that issued them.
type Handle int64

// NoTensor is the zero-operand / missing tensor marker.
const NoTensor Handle = -1

// String implements fmt.Stringer.
func (h Handle) String() string {
	if h == NoTensor {
		return "tensor(none)"
	}
	return fmt.Sprintf("tensor@%d", int64(h))
}

const nameSize = 32

// descriptor is the fixed-layout tensor record stored inside the arena.
// It holds no Go pointers: operands and data are arena offsets.
type descriptor struct {
	dtype     DataType
	op        Op
	nDims     int32
	nOperands int32
	ne        [MaxDims]int64      // extents, unused trailing dims are 1
	nb        [MaxDims]int64      // row-major strides in bytes
	operands  [MaxOperands]Handle // NoTensor when unused
	data      int64               // arena offset of the data region, -1 if unallocated
	nbytes    int64
	name      [nameSize]byte
}

const (
	descriptorSize  = int(unsafe.Sizeof(descriptor{}))
	descriptorAlign = int(unsafe.Alignof(descriptor{}))
)

// init fills a freshly zeroed descriptor.
func (d *descriptor) init(dtype DataType, shape Shape, op Op, operands []Handle) {
	d.dtype = dtype
	d.op = op
	d.nDims = int32(len(shape)) //nolint:gosec // len(shape) <= MaxDims
	d.ne = shape.Padded()

	// Padding dims have extent 1, their stride is the element size.
	size := int64(dtype.Size())
	strides := shape.ComputeStrides()
	for i := range d.nb {
		d.nb[i] = size
		if i < len(strides) {
			d.nb[i] = int64(strides[i]) * size
		}
	}

	d.nOperands = int32(len(operands)) //nolint:gosec // len(operands) <= MaxOperands
	for i := range d.operands {
		d.operands[i] = NoTensor
		if i < len(operands) {
			d.operands[i] = operands[i]
		}
	}

	d.data = -1
	d.nbytes = int64(shape.NumElements() * dtype.Size())
}

func (d *descriptor) shape() Shape {
	s := make(Shape, d.nDims)
	for i := range s {
		s[i] = int(d.ne[i])
	}
	return s
}

func (d *descriptor) numElements() int {
	n := 1
	for _, v := range d.ne {
		n *= int(v)
	}
	return n
}

func (d *descriptor) operandList() []Handle {
	out := make([]Handle, d.nOperands)
	copy(out, d.operands[:d.nOperands])
	return out
}

func (d *descriptor) setName(name string) {
	d.name = [nameSize]byte{}
	copy(d.name[:nameSize-1], name)
}

func (d *descriptor) getName() string {
	if i := bytes.IndexByte(d.name[:], 0); i >= 0 {
		return string(d.name[:i])
	}
	return string(d.name[:])
}
