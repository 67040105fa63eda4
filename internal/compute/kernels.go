package compute

import "github.com/born-ml/arenagraph/internal/tensor"

// kernel computes one contiguous chunk of an element-wise operator. All
// slices have the same length; b is nil for unary operators.
type kernel func(dst, a, b []float32)

// kernels is indexed by operator tag. OpNone has no kernel: leaves are never
// computed.
var kernels = [tensor.OpCount]kernel{
	tensor.OpAdd: addFloat32,
	tensor.OpSub: subFloat32,
	tensor.OpMul: mulFloat32,
	tensor.OpDiv: divFloat32,
	tensor.OpNeg: negFloat32,
	tensor.OpSqr: sqrFloat32,
}

func lookupKernel(op tensor.Op) kernel {
	if !op.Valid() {
		return nil
	}
	return kernels[op]
}

func addFloat32(dst, a, b []float32) {
	for i := range a {
		dst[i] = a[i] + b[i]
	}
}

func subFloat32(dst, a, b []float32) {
	for i := range a {
		dst[i] = a[i] - b[i]
	}
}

func mulFloat32(dst, a, b []float32) {
	for i := range a {
		dst[i] = a[i] * b[i]
	}
}

func divFloat32(dst, a, b []float32) {
	for i := range a {
		dst[i] = a[i] / b[i]
	}
}

func negFloat32(dst, a, _ []float32) {
	for i := range a {
		dst[i] = -a[i]
	}
}

func sqrFloat32(dst, a, _ []float32) {
	for i := range a {
		dst[i] = a[i] * a[i]
	}
}
