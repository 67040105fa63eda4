package tensor

import (
	"fmt"
	"unsafe"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/born-ml/arenagraph/internal/arena"
)

// Context is a tensor session: it owns the arena every descriptor, data
// region and graph is allocated from, and releases them all on Close.
//
// A Context is not safe for concurrent construction. Once evaluation begins
// the context is frozen and no longer accepts construction or leaf writes.
type Context struct {
	id     uuid.UUID
	arena  *arena.Arena
	issued *roaring64.Bitmap
	bound  map[Handle][]byte
	frozen bool
}

// NewContext opens an arena of the given capacity and returns an empty
// context. Size the capacity with Estimate.
func NewContext(capacity int, opts ...arena.Option) (*Context, error) {
	a, err := arena.Open(capacity, opts...)
	if err != nil {
		return nil, err
	}

	c := &Context{
		id:     uuid.New(),
		arena:  a,
		issued: roaring64.New(),
		bound:  make(map[Handle][]byte),
	}

	klog.V(2).InfoS("Opened tensor context", "session", c.id, "capacity", capacity, "noAlloc", a.NoAlloc())
	return c, nil
}

// ID returns the session identifier used in log lines.
func (c *Context) ID() uuid.UUID {
	return c.id
}

// Arena returns the arena backing the context.
func (c *Context) Arena() *arena.Arena {
	return c.arena
}

// Close releases the arena. Every handle and data slice from this context
// becomes invalid.
func (c *Context) Close() error {
	if c.arena.Closed() {
		return nil
	}
	klog.V(2).InfoS("Closing tensor context", "session", c.id, "tensors", c.Len(), "arena", c.arena.String())
	c.bound = nil
	return c.arena.Close()
}

// Freeze marks the start of evaluation. Construction, leaf writes, binding
// and rewiring fail with ErrFrozen afterwards.
func (c *Context) Freeze() {
	c.frozen = true
}

// Frozen reports whether evaluation has begun.
func (c *Context) Frozen() bool {
	return c.frozen
}

// Len returns the number of tensors created.
func (c *Context) Len() int {
	return int(c.issued.GetCardinality()) //nolint:gosec // bounded by arena capacity
}

// Handles returns every tensor handle in creation order.
func (c *Context) Handles() []Handle {
	raw := c.issued.ToArray()
	out := make([]Handle, len(raw))
	for i, v := range raw {
		out[i] = Handle(v) //nolint:gosec // offsets fit in int64
	}
	return out
}

// NewTensor creates a leaf tensor of the given element type and shape.
// Its data region is zeroed; in no-alloc mode it has no data until Bind.
func (c *Context) NewTensor(dtype DataType, shape ...int) (Handle, error) {
	if err := c.checkMutable(); err != nil {
		return NoTensor, err
	}
	s := Shape(shape)
	if _, err := dataBytes(dtype, s); err != nil {
		return NoTensor, err
	}
	return c.newTensor(dtype, s, OpNone, nil)
}

// NewTensor1D creates a 1-D leaf tensor.
func (c *Context) NewTensor1D(dtype DataType, n0 int) (Handle, error) {
	return c.NewTensor(dtype, n0)
}

// NewTensor2D creates a 2-D leaf tensor.
func (c *Context) NewTensor2D(dtype DataType, n0, n1 int) (Handle, error) {
	return c.NewTensor(dtype, n0, n1)
}

// NewTensor3D creates a 3-D leaf tensor.
func (c *Context) NewTensor3D(dtype DataType, n0, n1, n2 int) (Handle, error) {
	return c.NewTensor(dtype, n0, n1, n2)
}

// NewTensor4D creates a 4-D leaf tensor.
func (c *Context) NewTensor4D(dtype DataType, n0, n1, n2, n3 int) (Handle, error) {
	return c.NewTensor(dtype, n0, n1, n2, n3)
}

// NewOp creates a tensor describing op applied to operands. Nothing is
// computed; the output data region is written only by the evaluator.
//
// Operands are validated first: a wrong operand count, differing element
// counts or differing element types fail with a *ShapeError and allocate
// nothing.
func (c *Context) NewOp(op Op, operands ...Handle) (Handle, error) {
	if err := c.checkMutable(); err != nil {
		return NoTensor, err
	}
	if op == OpNone || !op.Valid() {
		return NoTensor, fmt.Errorf("%w: %d", ErrUnknownOp, op)
	}
	descs, err := c.checkOperands(op, operands)
	if err != nil {
		return NoTensor, err
	}
	return c.newTensor(descs[0].dtype, descs[0].shape(), op, operands)
}

// Add creates a + b.
func (c *Context) Add(a, b Handle) (Handle, error) { return c.NewOp(OpAdd, a, b) }

// Sub creates a - b.
func (c *Context) Sub(a, b Handle) (Handle, error) { return c.NewOp(OpSub, a, b) }

// Mul creates a * b.
func (c *Context) Mul(a, b Handle) (Handle, error) { return c.NewOp(OpMul, a, b) }

// Div creates a / b.
func (c *Context) Div(a, b Handle) (Handle, error) { return c.NewOp(OpDiv, a, b) }

// Neg creates -a.
func (c *Context) Neg(a Handle) (Handle, error) { return c.NewOp(OpNeg, a) }

// Sqr creates a * a.
func (c *Context) Sqr(a Handle) (Handle, error) { return c.NewOp(OpSqr, a) }

// Rewire replaces operand i of an operator tensor. The operator's shape rule
// is checked again. Rewire is the only way to build malformed wiring such as
// cycles, which the graph builder rejects.
func (c *Context) Rewire(h Handle, i int, operand Handle) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	d, err := c.lookup(h)
	if err != nil {
		return err
	}
	if d.op == OpNone {
		return fmt.Errorf("%w: %v", ErrNotOperator, h)
	}
	if i < 0 || i >= int(d.nOperands) {
		return fmt.Errorf("%w: %s has %d operands, got index %d", ErrShapeMismatch, d.op, d.nOperands, i)
	}

	operands := d.operandList()
	operands[i] = operand
	if _, err := c.checkOperands(d.op, operands); err != nil {
		return err
	}
	d.operands[i] = operand
	return nil
}

// Shape returns the tensor's shape.
func (c *Context) Shape(h Handle) (Shape, error) {
	d, err := c.lookup(h)
	if err != nil {
		return nil, err
	}
	return d.shape(), nil
}

// DType returns the tensor's element type.
func (c *Context) DType(h Handle) (DataType, error) {
	d, err := c.lookup(h)
	if err != nil {
		return 0, err
	}
	return d.dtype, nil
}

// Op returns the operator that produces the tensor, OpNone for leaves.
func (c *Context) Op(h Handle) (Op, error) {
	d, err := c.lookup(h)
	if err != nil {
		return OpNone, err
	}
	return d.op, nil
}

// Operands returns the tensor's operand handles.
func (c *Context) Operands(h Handle) ([]Handle, error) {
	d, err := c.lookup(h)
	if err != nil {
		return nil, err
	}
	return d.operandList(), nil
}

// IsLeaf reports whether the tensor has no producing operator.
func (c *Context) IsLeaf(h Handle) (bool, error) {
	d, err := c.lookup(h)
	if err != nil {
		return false, err
	}
	return d.op == OpNone, nil
}

// NumElements returns the tensor's element count.
func (c *Context) NumElements(h Handle) (int, error) {
	d, err := c.lookup(h)
	if err != nil {
		return 0, err
	}
	return d.numElements(), nil
}

// NBytes returns the size of the tensor's data in bytes.
func (c *Context) NBytes(h Handle) (int, error) {
	d, err := c.lookup(h)
	if err != nil {
		return 0, err
	}
	return int(d.nbytes), nil
}

// Strides returns the tensor's row-major byte strides, padded to MaxDims.
func (c *Context) Strides(h Handle) ([MaxDims]int64, error) {
	d, err := c.lookup(h)
	if err != nil {
		return [MaxDims]int64{}, err
	}
	return d.nb, nil
}

// Name returns the tensor's name.
func (c *Context) Name(h Handle) (string, error) {
	d, err := c.lookup(h)
	if err != nil {
		return "", err
	}
	return d.getName(), nil
}

// SetName names the tensor. Names longer than 31 bytes are truncated.
func (c *Context) SetName(h Handle, name string) error {
	d, err := c.lookup(h)
	if err != nil {
		return err
	}
	d.setName(name)
	return nil
}

// HasData reports whether the tensor's data is allocated or bound.
func (c *Context) HasData(h Handle) (bool, error) {
	d, err := c.lookup(h)
	if err != nil {
		return false, err
	}
	_, bound := c.bound[h]
	return bound || d.data >= 0, nil
}

// Data returns the tensor's raw data. The slice aliases arena (or bound)
// memory and is valid until Close.
func (c *Context) Data(h Handle) ([]byte, error) {
	d, err := c.lookup(h)
	if err != nil {
		return nil, err
	}
	if buf, ok := c.bound[h]; ok {
		return buf, nil
	}
	if d.data < 0 {
		return nil, fmt.Errorf("%w: %v", ErrNoData, h)
	}
	return c.arena.Bytes(arena.Offset(d.data), int(d.nbytes))
}

// Float32 returns a zero-copy float32 view of the tensor's data.
func (c *Context) Float32(h Handle) ([]float32, error) {
	d, err := c.lookup(h)
	if err != nil {
		return nil, err
	}
	if d.dtype != Float32 {
		return nil, fmt.Errorf("%w: %v is %s, not float32", ErrUnsupportedType, h, d.dtype)
	}
	data, err := c.Data(h)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	//nolint:gosec // unsafe.Slice for zero-copy access, length derived from the data size
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), len(data)/4), nil
}

// SetFloat32 copies values into a float32 leaf tensor.
func (c *Context) SetFloat32(h Handle, values []float32) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	d, err := c.lookup(h)
	if err != nil {
		return err
	}
	if d.op != OpNone {
		return fmt.Errorf("%w: %v is produced by %s", ErrNotLeaf, h, d.op)
	}
	if len(values) != d.numElements() {
		return fmt.Errorf("%w: %v has %d elements, got %d values", ErrShapeMismatch, h, d.numElements(), len(values))
	}
	dst, err := c.Float32(h)
	if err != nil {
		return err
	}
	copy(dst, values)
	return nil
}

// Bind attaches caller-owned memory as the tensor's data. It is meant for
// contexts opened in no-alloc mode; the buffer must stay alive until Close.
// The length must equal NBytes and the address must be aligned to the
// element size.
func (c *Context) Bind(h Handle, buf []byte) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	d, err := c.lookup(h)
	if err != nil {
		return err
	}
	if int64(len(buf)) != d.nbytes {
		return fmt.Errorf("%w: %v needs %d bytes, got %d", ErrShapeMismatch, h, d.nbytes, len(buf))
	}
	if len(buf) > 0 {
		addr := uintptr(unsafe.Pointer(&buf[0])) //nolint:gosec // address is only checked for alignment
		if addr%uintptr(d.dtype.Size()) != 0 {
			return fmt.Errorf("%w: %v", ErrMisaligned, h)
		}
	}
	c.bound[h] = buf
	return nil
}

// BindFloat32 binds a float32 slice as the tensor's data.
func (c *Context) BindFloat32(h Handle, values []float32) error {
	if len(values) == 0 {
		return c.Bind(h, []byte{})
	}
	//nolint:gosec // reinterpreting caller memory, length derived from len(values)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&values[0])), len(values)*4)
	return c.Bind(h, buf)
}

func (c *Context) newTensor(dtype DataType, shape Shape, op Op, operands []Handle) (Handle, error) {
	mark := c.arena.Mark()

	off, mem, err := c.arena.Alloc(descriptorSize, descriptorAlign)
	if err != nil {
		return NoTensor, fmt.Errorf("allocating %s descriptor: %w", op, err)
	}
	//nolint:gosec // descriptor is pointer-free and the region is aligned for it
	d := (*descriptor)(unsafe.Pointer(&mem[0]))
	d.init(dtype, shape, op, operands)

	if !c.arena.NoAlloc() {
		dataOff, _, err := c.arena.Alloc(int(d.nbytes), DataAlignment)
		if err != nil {
			if rerr := c.arena.Rewind(mark); rerr != nil {
				return NoTensor, fmt.Errorf("rewinding after failed allocation: %w", rerr)
			}
			return NoTensor, fmt.Errorf("allocating %s data (%d bytes): %w", op, d.nbytes, err)
		}
		d.data = int64(dataOff)
	}

	h := Handle(off)
	c.issued.Add(uint64(h)) //nolint:gosec // offsets are non-negative
	return h, nil
}

func (c *Context) checkOperands(op Op, operands []Handle) ([]*descriptor, error) {
	descs := make([]*descriptor, len(operands))
	shapes := make([]Shape, len(operands))
	for i, h := range operands {
		d, err := c.lookup(h)
		if err != nil {
			return nil, fmt.Errorf("%s operand %d: %w", op, i, err)
		}
		descs[i] = d
		shapes[i] = d.shape()
	}

	if len(operands) != op.Arity() {
		return nil, &ShapeError{Op: op, Shapes: shapes,
			Reason: fmt.Sprintf("expects %d operands, got %d", op.Arity(), len(operands))}
	}

	for _, d := range descs[1:] {
		if d.numElements() != descs[0].numElements() {
			return nil, &ShapeError{Op: op, Shapes: shapes, Reason: "element counts differ"}
		}
		if d.dtype != descs[0].dtype {
			return nil, &ShapeError{Op: op, Shapes: shapes, Reason: "element types differ"}
		}
	}
	return descs, nil
}

func (c *Context) checkMutable() error {
	if c.frozen {
		return ErrFrozen
	}
	return nil
}

func (c *Context) lookup(h Handle) (*descriptor, error) {
	if c.arena.Closed() {
		return nil, arena.ErrClosed
	}
	if h < 0 || !c.issued.Contains(uint64(h)) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHandle, h)
	}
	mem, err := c.arena.Bytes(arena.Offset(h), descriptorSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v: %w", ErrInvalidHandle, h, err)
	}
	//nolint:gosec // h was issued by newTensor, which aligned the region for a descriptor
	return (*descriptor)(unsafe.Pointer(&mem[0])), nil
}
