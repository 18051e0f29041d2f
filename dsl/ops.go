package dsl

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/KevinCoble/graphdsl/backends"
	"github.com/KevinCoble/graphdsl/types/shapes"
)

// opCode selects the operation an OpNode lowers to.
type opCode int

const (
	opAbsolute opCode = iota
	opNegative
	opExponent
	opLogarithm
	opSquareRoot
	opSquare
	opTanh
	opSigmoid
	opReLU
	opSoftmax
	opReshape
	opTranspose
	opReduceSum
	opReduceMean
	opReduceMax
	opArgMax
	opAddition
	opSubtraction
	opMultiplication
	opDivision
	opMaximum
	opMinimum
	opEqual
	opGreaterThan
	opLessThan
	opMatrixMultiplication
	opSelect
	opClamp
	opTopK
	opMeanAndVariance
)

// OpNode is one math/NN operation declaration: input references plus per-operation
// configuration, lowered to backend ops at emission.
type OpNode struct {
	baseNode
	code  opCode
	arity int

	inputs       []string
	dims         []int
	perm         []int
	axes         []int
	k            int
	propagateNaN bool
	batchExempt  bool
}

func newOp(kindName string, code opCode, arity int, name string) *OpNode {
	n := &OpNode{code: code, arity: arity}
	n.kindName = kindName
	n.name = name
	return n
}

//
// Unary operations.
//

func Absolute(name string) *OpNode   { return newOp("Absolute", opAbsolute, 1, name) }
func Negative(name string) *OpNode   { return newOp("Negative", opNegative, 1, name) }
func Exponent(name string) *OpNode   { return newOp("Exponent", opExponent, 1, name) }
func Logarithm(name string) *OpNode  { return newOp("Logarithm", opLogarithm, 1, name) }
func SquareRoot(name string) *OpNode { return newOp("SquareRoot", opSquareRoot, 1, name) }
func Square(name string) *OpNode     { return newOp("Square", opSquare, 1, name) }
func Tanh(name string) *OpNode       { return newOp("Tanh", opTanh, 1, name) }
func Sigmoid(name string) *OpNode    { return newOp("Sigmoid", opSigmoid, 1, name) }
func ReLU(name string) *OpNode       { return newOp("ReLU", opReLU, 1, name) }

// Softmax normalizes exp(x) along the given axis (negative counts from the end).
func Softmax(name string, axis int) *OpNode {
	n := newOp("Softmax", opSoftmax, 1, name)
	n.axes = []int{axis}
	return n
}

// Reshape changes the dimensions, preserving the total size. For batch graphs the
// batch dimension is prepended to the declared target dimensions unless the node is
// BatchExempt.
func Reshape(name string, dims ...int) *OpNode {
	n := newOp("Reshape", opReshape, 1, name)
	n.dims = dims
	return n
}

// Transpose permutes the axes.
func Transpose(name string, permutation ...int) *OpNode {
	n := newOp("Transpose", opTranspose, 1, name)
	n.perm = permutation
	return n
}

// ReduceSum sums along the given axes (all, if none given), removing them.
func ReduceSum(name string, axes ...int) *OpNode {
	n := newOp("ReduceSum", opReduceSum, 1, name)
	n.axes = axes
	return n
}

// ReduceMean averages along the given axes (all, if none given), removing them.
func ReduceMean(name string, axes ...int) *OpNode {
	n := newOp("ReduceMean", opReduceMean, 1, name)
	n.axes = axes
	return n
}

// ReduceMax takes the maximum along the given axes (all, if none given).
func ReduceMax(name string, axes ...int) *OpNode {
	n := newOp("ReduceMax", opReduceMax, 1, name)
	n.axes = axes
	return n
}

// ArgMax returns the index of the maximum along exactly one axis; requesting more
// than one is a configuration error, surfaced at the node's emission turn.
func ArgMax(name string, axes ...int) *OpNode {
	n := newOp("ArgMax", opArgMax, 1, name)
	n.axes = axes
	if len(axes) != 1 {
		n.setBuildError(errors.Errorf("ArgMax %q requires exactly one axis, got %d",
			n.displayName(), len(axes)))
	}
	return n
}

//
// Binary operations.
//

func Addition(name string) *OpNode       { return newOp("Addition", opAddition, 2, name) }
func Subtraction(name string) *OpNode    { return newOp("Subtraction", opSubtraction, 2, name) }
func Multiplication(name string) *OpNode { return newOp("Multiplication", opMultiplication, 2, name) }
func Division(name string) *OpNode       { return newOp("Division", opDivision, 2, name) }
func Maximum(name string) *OpNode        { return newOp("Maximum", opMaximum, 2, name) }
func Minimum(name string) *OpNode        { return newOp("Minimum", opMinimum, 2, name) }
func Equal(name string) *OpNode          { return newOp("Equal", opEqual, 2, name) }
func GreaterThan(name string) *OpNode    { return newOp("GreaterThan", opGreaterThan, 2, name) }
func LessThan(name string) *OpNode       { return newOp("LessThan", opLessThan, 2, name) }

// MatrixMultiplication multiplies matrices (or matrix and vector), validating the
// inner dimensions.
func MatrixMultiplication(name string) *OpNode {
	return newOp("MatrixMultiplication", opMatrixMultiplication, 2, name)
}

//
// Ternary operations.
//

// Select picks elements from its second or third input based on the Bool first
// input. The two value inputs must have equal shapes.
func Select(name string) *OpNode { return newOp("Select", opSelect, 3, name) }

// Clamp limits its second input to the bounds given by the first and third inputs.
func Clamp(name string) *OpNode { return newOp("Clamp", opClamp, 3, name) }

//
// Multi-output operations.
//

// TopK emits the k largest values along the last axis and their indices, bound as
// name_values and name_indices. Only the values are target-eligible.
func TopK(name string, k int) *OpNode {
	n := newOp("TopK", opTopK, 1, name)
	n.k = k
	return n
}

// MeanAndVariance emits the mean and the (biased) variance along the given axes,
// bound as name_mean and name_variance.
func MeanAndVariance(name string, axes ...int) *OpNode {
	n := newOp("MeanAndVariance", opMeanAndVariance, 1, name)
	n.axes = axes
	return n
}

//
// Modifiers.
//

// WithInput names the single input of a unary operation.
func (n *OpNode) WithInput(ref string) *OpNode {
	return n.WithInputs(ref)
}

// WithInputs names the operation's inputs in order. An empty string (or a missing
// trailing entry) leaves that input bound to the implicit previous output.
func (n *OpNode) WithInputs(refs ...string) *OpNode {
	if len(refs) > n.arity {
		n.setBuildError(errors.Errorf("%s %q takes %d inputs, got %d",
			n.kindName, n.displayName(), n.arity, len(refs)))
		return n
	}
	n.inputs = refs
	return n
}

// TargetForModes marks the operation's eligible outputs as retrievable results for
// the given run modes.
func (n *OpNode) TargetForModes(modes ...string) *OpNode {
	n.addTargets(modes)
	return n
}

// PropagateNaN makes Maximum/Minimum return NaN when either operand is NaN. Other
// operations do not support it; requesting it elsewhere is a configuration error.
func (n *OpNode) PropagateNaN() *OpNode {
	if n.code != opMaximum && n.code != opMinimum {
		n.setBuildError(errors.Errorf("%s %q does not support NaN propagation",
			n.kindName, n.displayName()))
		return n
	}
	n.propagateNaN = true
	return n
}

// BatchExempt opts a Reshape out of automatic batch-dimension insertion.
func (n *OpNode) BatchExempt() *OpNode {
	if n.code != opReshape {
		n.setBuildError(errors.Errorf("%s %q does not take the batch-exempt modifier",
			n.kindName, n.displayName()))
		return n
	}
	n.batchExempt = true
	return n
}

//
// Capability contract.
//

func (n *OpNode) inputRefs() []string {
	refs := make([]string, n.arity)
	copy(refs, n.inputs)
	return refs
}

func (n *OpNode) outputSuffixes() []string {
	switch n.code {
	case opTopK:
		return []string{"_values", "_indices"}
	case opMeanAndVariance:
		return []string{"_mean", "_variance"}
	}
	return []string{""}
}

func (n *OpNode) targetEligibleIndices() []int {
	if n.code == opTopK {
		return []int{0}
	}
	return nil
}

func (n *OpNode) ref(i int) string {
	if i < len(n.inputs) {
		return n.inputs[i]
	}
	return ""
}

func (n *OpNode) resolve(g *Graph) []backends.Op {
	in := make([]backends.Op, n.arity)
	for ii := range in {
		in[ii] = g.resolveInput(n.ref(ii))
	}
	b := g.builder

	switch n.code {
	case opAbsolute:
		return []backends.Op{mustNoError(b.Abs(in[0]))}
	case opNegative:
		return []backends.Op{mustNoError(b.Neg(in[0]))}
	case opExponent:
		return []backends.Op{mustNoError(b.Exp(in[0]))}
	case opLogarithm:
		return []backends.Op{mustNoError(b.Log(in[0]))}
	case opSquareRoot:
		return []backends.Op{mustNoError(b.Sqrt(in[0]))}
	case opSquare:
		return []backends.Op{mustNoError(b.Mul(in[0], in[0]))}
	case opTanh:
		return []backends.Op{mustNoError(b.Tanh(in[0]))}
	case opSigmoid:
		return []backends.Op{mustNoError(b.Logistic(in[0]))}
	case opReLU:
		zero := g.scalarConst(g.opShape(in[0]).DType, 0)
		return []backends.Op{mustNoError(b.Max(in[0], zero))}
	case opSoftmax:
		return []backends.Op{n.emitSoftmax(g, in[0])}

	case opReshape:
		dims := n.dims
		if !n.batchExempt {
			dims = g.withBatchDims(dims)
		}
		return []backends.Op{mustNoError(b.Reshape(in[0], dims...))}
	case opTranspose:
		n.checkPermutation(g, in[0])
		return []backends.Op{mustNoError(b.Transpose(in[0], n.perm...))}
	case opReduceSum:
		return []backends.Op{mustNoError(b.ReduceSum(in[0], n.axes...))}
	case opReduceMax:
		return []backends.Op{mustNoError(b.ReduceMax(in[0], n.axes...))}
	case opReduceMean:
		return []backends.Op{g.reduceMean(in[0], n.axes)}
	case opArgMax:
		return []backends.Op{mustNoError(b.ArgMax(in[0], n.axes[0], dtypes.Int64))}

	case opAddition:
		n.checkEqualShapes(g, in, 0, 1)
		return []backends.Op{mustNoError(b.Add(in[0], in[1]))}
	case opSubtraction:
		n.checkEqualShapes(g, in, 0, 1)
		return []backends.Op{mustNoError(b.Sub(in[0], in[1]))}
	case opMultiplication:
		n.checkEqualShapes(g, in, 0, 1)
		return []backends.Op{mustNoError(b.Mul(in[0], in[1]))}
	case opDivision:
		n.checkEqualShapes(g, in, 0, 1)
		return []backends.Op{mustNoError(b.Div(in[0], in[1]))}
	case opMaximum:
		n.checkEqualShapes(g, in, 0, 1)
		return []backends.Op{n.emitMinMax(g, in[0], in[1], true)}
	case opMinimum:
		n.checkEqualShapes(g, in, 0, 1)
		return []backends.Op{n.emitMinMax(g, in[0], in[1], false)}
	case opEqual:
		n.checkEqualShapes(g, in, 0, 1)
		return []backends.Op{mustNoError(b.Equal(in[0], in[1]))}
	case opGreaterThan:
		n.checkEqualShapes(g, in, 0, 1)
		return []backends.Op{mustNoError(b.GreaterThan(in[0], in[1]))}
	case opLessThan:
		n.checkEqualShapes(g, in, 0, 1)
		return []backends.Op{mustNoError(b.LessThan(in[0], in[1]))}
	case opMatrixMultiplication:
		n.checkInnerDimensions(g, in)
		return []backends.Op{mustNoError(b.Dot(in[0], in[1]))}

	case opSelect:
		n.checkEqualShapes(g, in, 1, 2)
		return []backends.Op{mustNoError(b.Where(in[0], in[1], in[2]))}
	case opClamp:
		return []backends.Op{mustNoError(b.Clamp(in[0], in[1], in[2]))}

	case opTopK:
		values, indices, err := b.TopK(in[0], n.k)
		if err != nil {
			panic(errors.WithStack(err))
		}
		return []backends.Op{values, indices}
	case opMeanAndVariance:
		return n.emitMeanAndVariance(g, in[0])
	}
	exceptions.Panicf("%s %q: unknown operation", n.kindName, n.displayName())
	return nil
}

// checkEqualShapes enforces the exact shape-equality precondition, naming the
// specific inputs involved (or "previous node" for implicit ones).
func (n *OpNode) checkEqualShapes(g *Graph, in []backends.Op, ai, bi int) {
	sa, sb := g.opShape(in[ai]), g.opShape(in[bi])
	if !sa.Equal(sb) {
		exceptions.Panicf("%s %q: shape mismatch between input %s (%s) and input %s (%s)",
			n.kindName, n.displayName(), inputLabel(n.ref(ai)), sa, inputLabel(n.ref(bi)), sb)
	}
}

// checkInnerDimensions validates matrix-multiplication operand shapes before the
// backend sees them, for an error naming the declared inputs.
func (n *OpNode) checkInnerDimensions(g *Graph, in []backends.Op) {
	sa, sb := g.opShape(in[0]), g.opShape(in[1])
	if sa.Rank() < 1 || sa.Rank() > 2 || sb.Rank() < 1 || sb.Rank() > 2 {
		exceptions.Panicf("%s %q: inputs must be rank 1 or 2, got %s (%s) and %s (%s)",
			n.kindName, n.displayName(), inputLabel(n.ref(0)), sa, inputLabel(n.ref(1)), sb)
	}
	if sa.Dim(-1) != sb.Dim(0) {
		exceptions.Panicf("%s %q: inner dimension mismatch between input %s (%s) and input %s (%s)",
			n.kindName, n.displayName(), inputLabel(n.ref(0)), sa, inputLabel(n.ref(1)), sb)
	}
}

// checkPermutation validates the transpose permutation with a fixed-size axis bit
// mask, bounding the supported rank at MaxSupportedAxes.
func (n *OpNode) checkPermutation(g *Graph, x backends.Op) {
	rank := g.opShape(x).Rank()
	if rank > MaxSupportedAxes {
		exceptions.Panicf("%s %q: rank %d exceeds the supported maximum of %d axes",
			n.kindName, n.displayName(), rank, MaxSupportedAxes)
	}
	if len(n.perm) != rank {
		exceptions.Panicf("%s %q: permutation has %d entries for a rank %d input",
			n.kindName, n.displayName(), len(n.perm), rank)
	}
	var seen uint32
	for _, axis := range n.perm {
		if axis < 0 || axis >= rank {
			exceptions.Panicf("%s %q: permutation axis %d out of range for rank %d",
				n.kindName, n.displayName(), axis, rank)
		}
		bit := uint32(1) << uint(axis)
		if seen&bit != 0 {
			exceptions.Panicf("%s %q: permutation repeats axis %d", n.kindName, n.displayName(), axis)
		}
		seen |= bit
	}
}

// emitMinMax lowers Maximum/Minimum, composing NaN propagation when requested: a
// NaN in either operand wins over the numeric result.
func (n *OpNode) emitMinMax(g *Graph, x, y backends.Op, isMax bool) backends.Op {
	b := g.builder
	var result backends.Op
	if isMax {
		result = mustNoError(b.Max(x, y))
	} else {
		result = mustNoError(b.Min(x, y))
	}
	if !n.propagateNaN || !g.opShape(x).DType.IsFloat() {
		return result
	}
	// v == v is false exactly for NaN.
	xNumeric := mustNoError(b.Equal(x, x))
	yNumeric := mustNoError(b.Equal(y, y))
	result = mustNoError(b.Where(yNumeric, result, y))
	return mustNoError(b.Where(xNumeric, result, x))
}

// emitSoftmax composes exp(x - max) / sum(exp(x - max)) along the axis.
func (n *OpNode) emitSoftmax(g *Graph, x backends.Op) backends.Op {
	b := g.builder
	shape := g.opShape(x)
	axes := resolveAxes(shape.Rank(), n.axes, n)
	axis := axes[0]
	max := mustNoError(b.ReduceMax(x, axis))
	maxB := g.broadcastToInput(max, shape, axes)
	exp := mustNoError(b.Exp(mustNoError(b.Sub(x, maxB))))
	sum := mustNoError(b.ReduceSum(exp, axis))
	sumB := g.broadcastToInput(sum, shape, axes)
	return mustNoError(b.Div(exp, sumB))
}

func (n *OpNode) emitMeanAndVariance(g *Graph, x backends.Op) []backends.Op {
	b := g.builder
	shape := g.opShape(x)
	axes := resolveAxes(shape.Rank(), n.axes, n)
	mean := g.reduceMean(x, axes)
	meanB := g.broadcastToInput(mean, shape, axes)
	diff := mustNoError(b.Sub(x, meanB))
	variance := g.reduceMean(mustNoError(b.Mul(diff, diff)), axes)
	return []backends.Op{mean, variance}
}

// reduceMean lowers a mean as sum / count over the reduced axes.
func (g *Graph) reduceMean(x backends.Op, axes []int) backends.Op {
	shape := g.opShape(x)
	resolved := resolveAxes(shape.Rank(), axes, nil)
	sum := mustNoError(g.builder.ReduceSum(x, resolved...))
	count := 1
	for _, axis := range resolved {
		count *= shape.Dim(axis)
	}
	return mustNoError(g.builder.Div(sum, g.scalarConst(shape.DType, float64(count))))
}

// broadcastToInput expands a reduced tensor back to the input shape by restoring
// the reduced axes as size 1 and broadcasting.
func (g *Graph) broadcastToInput(reduced backends.Op, input shapes.Shape, axes []int) backends.Op {
	withOnes := make([]int, input.Rank())
	copy(withOnes, input.Dimensions)
	for _, axis := range axes {
		withOnes[axis] = 1
	}
	reshaped := mustNoError(g.builder.Reshape(reduced, withOnes...))
	return mustNoError(g.builder.Broadcast(reshaped, input.Dimensions...))
}

// resolveAxes adjusts negative axes and validates the range; no axes means all.
func resolveAxes(rank int, axes []int, node *OpNode) []int {
	if len(axes) == 0 {
		all := make([]int, rank)
		for ii := range all {
			all[ii] = ii
		}
		return all
	}
	resolved := make([]int, len(axes))
	for ii, axis := range axes {
		adjusted := axis
		if adjusted < 0 {
			adjusted += rank
		}
		if adjusted < 0 || adjusted >= rank {
			if node != nil {
				exceptions.Panicf("%s %q: axis %d out of range for rank %d",
					node.kindName, node.displayName(), axis, rank)
			}
			exceptions.Panicf("axis %d out of range for rank %d", axis, rank)
		}
		resolved[ii] = adjusted
	}
	return resolved
}
