package backends

import (
	"github.com/gomlx/gopjrt/dtypes"

	"github.com/KevinCoble/graphdsl/types/shapes"
)

// Op represents the output of an operation during the computation graph building time.
//
// It is opaque from the graphdsl perspective: it is simply passed back as input to the
// other Builder methods. Each backend defines its own concrete type.
type Op any

// Builder defines the set of operations needed to build a computation for the graphdsl
// engine. It is the sub-interface of Backend responsible for graph building.
//
// All methods return an error on invalid inputs (unknown shapes, mismatched
// dimensions, unsupported data types); no partial state needs to be cleaned by the
// caller, the Builder is simply discarded.
type Builder interface {
	// Name of the computation being built.
	Name() string

	// OpShape returns the shape of a computation Op.
	// Notice this is not an operation, and it doesn't change the graph being built.
	OpShape(op Op) (shapes.Shape, error)

	// Parameter creates an input parameter for the computation. During execution of a
	// compiled computation this value will need to be fed in the same order it is
	// created.
	Parameter(name string, shape shapes.Shape) (Op, error)

	// Constant creates a constant in the graph with the given flat values and the
	// shape defined by dims. The flat value must be a slice of a supported basic type.
	// The value is copied into the graph.
	Constant(flat any, dims ...int) (Op, error)

	// Iota creates a tensor of the given shape whose elements are their own
	// coordinate along iotaAxis.
	Iota(shape shapes.Shape, iotaAxis int) (Op, error)

	// Unary element-wise operations.

	Abs(x Op) (Op, error)
	Neg(x Op) (Op, error)
	Exp(x Op) (Op, error)
	Log(x Op) (Op, error)
	Sqrt(x Op) (Op, error)
	Tanh(x Op) (Op, error)
	// Logistic computes 1/(1+exp(-x)), aka. the sigmoid function.
	Logistic(x Op) (Op, error)

	// Binary element-wise operations: operands must have equal shapes, except that
	// either side may be a scalar, which broadcasts over the other operand.

	Add(lhs, rhs Op) (Op, error)
	Sub(lhs, rhs Op) (Op, error)
	Mul(lhs, rhs Op) (Op, error)
	Div(lhs, rhs Op) (Op, error)
	Max(lhs, rhs Op) (Op, error)
	Min(lhs, rhs Op) (Op, error)

	// Comparison operations: same shape rules as the binary operations; the result
	// has DType Bool.

	Equal(lhs, rhs Op) (Op, error)
	GreaterThan(lhs, rhs Op) (Op, error)
	LessThan(lhs, rhs Op) (Op, error)

	// Dot computes the matrix multiplication of two rank-2 operands (or a rank-1
	// vector times a rank-2 matrix). The inner dimensions must match.
	Dot(lhs, rhs Op) (Op, error)

	// Where selects element-wise from onTrue or onFalse based on the Bool condition.
	// onTrue and onFalse must have equal shapes (or be scalars); condition must have
	// the same shape or be a scalar.
	Where(condition, onTrue, onFalse Op) (Op, error)

	// Clamp limits x element-wise into [min, max]. min and max must be scalars or
	// have the shape of x.
	Clamp(min, x, max Op) (Op, error)

	// Shape operations.

	// Reshape changes the dimensions without changing the data; the total size must
	// be preserved.
	Reshape(x Op, dims ...int) (Op, error)
	// Transpose permutes the axes according to permutation, which must have exactly
	// one entry per axis of x.
	Transpose(x Op, permutation ...int) (Op, error)
	// Broadcast expands x to the given dimensions: each axis of x must either match
	// the corresponding output dimension or be 1.
	Broadcast(x Op, dims ...int) (Op, error)

	// Reductions. The reduced axes are removed from the output shape. Reducing with
	// no axes reduces over all of them, yielding a scalar.

	ReduceSum(x Op, axes ...int) (Op, error)
	ReduceMax(x Op, axes ...int) (Op, error)

	// ArgMax returns the index of the maximum element along the given axis, with the
	// given output DType (an integer type).
	ArgMax(x Op, axis int, outputDType dtypes.DType) (Op, error)

	// TopK returns the k largest elements along the last axis, sorted in descending
	// order, and their indices (DType Int64).
	TopK(x Op, k int) (values, indices Op, err error)

	// Gradient builds the gradients of the scalar output with respect to each of the
	// inputs, using reverse-mode automatic differentiation. The returned ops are in
	// the same order as inputs; inputs that do not affect output yield zeros.
	Gradient(output Op, inputs ...Op) ([]Op, error)

	// Compile the computation built with the given outputs and return an Executable.
	// After the first Compile call the Builder is frozen -- no new operations can be
	// created -- but Compile may be called again with a different output set, which
	// is how one computation graph serves several execution modes. Each Executable
	// only requires the parameters its outputs actually reach.
	Compile(outputs ...Op) (Executable, error)
}
