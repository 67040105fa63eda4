package tensor

// Op tags the operation that produces a tensor. The set is closed: adding an
// operator means adding a constant here and a kernel entry in the evaluator.
type Op int32

// Operators.
const (
	OpNone Op = iota // leaf tensor, data supplied by the caller
	OpAdd            // a + b
	OpSub            // a - b
	OpMul            // a * b
	OpDiv            // a / b
	OpNeg            // -a
	OpSqr            // a * a

	// OpCount is the number of operators, including OpNone.
	OpCount
)

// MaxOperands is the largest operator arity.
const MaxOperands = 2

// Arity returns the number of operands the operator takes.
func (op Op) Arity() int {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv:
		return 2
	case OpNeg, OpSqr:
		return 1
	default:
		return 0
	}
}

// Valid reports whether op is a known operator.
func (op Op) Valid() bool {
	return op >= OpNone && op < OpCount
}

// String returns the operator name.
func (op Op) String() string {
	switch op {
	case OpNone:
		return "none"
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	case OpNeg:
		return "neg"
	case OpSqr:
		return "sqr"
	default:
		return "unknown"
	}
}
