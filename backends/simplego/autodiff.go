package simplego

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/KevinCoble/graphdsl/backends"
	"github.com/KevinCoble/graphdsl/types/shapes"
)

// Gradient builds the gradients of the scalar output with respect to each of the
// inputs, using reverse-mode automatic differentiation.
//
// The walk runs over node ids in decreasing order: nodes are topologically ordered by
// construction, so every node is visited after all its consumers, and the gradient
// nodes created along the way get larger ids than anything still to visit.
func (b *Builder) Gradient(output backends.Op, inputs ...backends.Op) ([]backends.Op, error) {
	if err := b.checkValid(); err != nil {
		return nil, err
	}
	all := append([]backends.Op{output}, inputs...)
	nodes, err := b.checkOps("Gradient", all...)
	if err != nil {
		return nil, err
	}
	outputNode, wrt := nodes[0], nodes[1:]
	if !outputNode.shape.IsScalar() {
		return nil, errors.Errorf("Gradient: output must be a scalar, got shape %s", outputNode.shape)
	}
	if !outputNode.shape.DType.IsFloat() {
		return nil, errors.Errorf("Gradient: output must be a float, got %s", outputNode.shape.DType)
	}

	var results []backends.Op
	err = exceptions.TryCatch[error](func() {
		adjoints := make(map[int]*Node)
		adjoints[outputNode.id] = b.mustScalar(outputNode.shape.DType, 1)
		for id := outputNode.id; id >= 0; id-- {
			node := b.nodes[id]
			g := adjoints[id]
			if g == nil {
				continue
			}
			vjps := b.vjp(node, g)
			for ii, input := range node.inputs {
				contribution := vjps[ii]
				if contribution == nil {
					continue
				}
				if existing := adjoints[input.id]; existing != nil {
					contribution = b.mustNode(b.Add(existing, contribution))
				}
				adjoints[input.id] = contribution
			}
		}
		results = make([]backends.Op, len(wrt))
		for ii, input := range wrt {
			g := adjoints[input.id]
			if g == nil {
				g = b.mustZeros(input.shape)
			}
			results[ii] = g
		}
	})
	if err != nil {
		return nil, errors.WithMessage(err, "Gradient")
	}
	return results, nil
}

// mustNode converts an (Op, error) pair into a *Node, panicking on error. Used only
// inside the Gradient TryCatch block.
func (b *Builder) mustNode(op backends.Op, err error) *Node {
	if err != nil {
		panic(err)
	}
	return op.(*Node)
}

func (b *Builder) mustScalar(dtype dtypes.DType, value float64) *Node {
	node, err := b.constantScalar(dtype, value)
	if err != nil {
		panic(err)
	}
	return node
}

func (b *Builder) mustZeros(shape shapes.Shape) *Node {
	zero := b.mustScalar(shape.DType, 0)
	if shape.IsScalar() {
		return zero
	}
	reshaped := b.mustNode(b.Reshape(zero, xslicesOnes(shape.Rank())...))
	return b.mustNode(b.Broadcast(reshaped, shape.Dimensions...))
}

// reduceToShape adapts a gradient to the shape of the operand it flows into. The only
// mismatch binary ops can produce is a scalar operand broadcast over the other side,
// in which case the gradient is the full reduction.
func (b *Builder) reduceToShape(g *Node, target shapes.Shape) *Node {
	if g.shape.EqualDimensions(target) {
		return g
	}
	if !target.IsScalar() {
		panic(errors.Errorf("cannot adapt gradient shaped %s to operand shaped %s", g.shape, target))
	}
	return b.mustNode(b.ReduceSum(g))
}

// vjp returns the gradient contribution to each input of node, given the adjoint g
// flowing into node. Nil entries mean no gradient (non-differentiable path).
func (b *Builder) vjp(node *Node, g *Node) []*Node {
	dtype := node.shape.DType
	switch node.opType {
	case backends.OpTypeParameter, backends.OpTypeConstant, backends.OpTypeIota:
		return nil

	case backends.OpTypeAbs:
		x := node.inputs[0]
		zero := b.mustScalar(dtype, 0)
		sign := b.mustNode(b.Where(
			b.mustNode(b.GreaterThan(x, zero)),
			b.mustScalar(dtype, 1), b.mustScalar(dtype, -1)))
		return []*Node{b.mustNode(b.Mul(g, sign))}
	case backends.OpTypeNeg:
		return []*Node{b.mustNode(b.Neg(g))}
	case backends.OpTypeExp:
		return []*Node{b.mustNode(b.Mul(g, node))}
	case backends.OpTypeLog:
		return []*Node{b.mustNode(b.Div(g, node.inputs[0]))}
	case backends.OpTypeSqrt:
		half := b.mustScalar(dtype, 0.5)
		return []*Node{b.mustNode(b.Mul(g, b.mustNode(b.Div(half, node))))}
	case backends.OpTypeTanh:
		one := b.mustScalar(dtype, 1)
		return []*Node{b.mustNode(b.Mul(g, b.mustNode(b.Sub(one, b.mustNode(b.Mul(node, node))))))}
	case backends.OpTypeLogistic:
		one := b.mustScalar(dtype, 1)
		return []*Node{b.mustNode(b.Mul(g,
			b.mustNode(b.Mul(node, b.mustNode(b.Sub(one, node))))))}

	case backends.OpTypeAdd:
		lhs, rhs := node.inputs[0], node.inputs[1]
		return []*Node{b.reduceToShape(g, lhs.shape), b.reduceToShape(g, rhs.shape)}
	case backends.OpTypeSub:
		lhs, rhs := node.inputs[0], node.inputs[1]
		return []*Node{
			b.reduceToShape(g, lhs.shape),
			b.reduceToShape(b.mustNode(b.Neg(g)), rhs.shape)}
	case backends.OpTypeMul:
		lhs, rhs := node.inputs[0], node.inputs[1]
		return []*Node{
			b.reduceToShape(b.mustNode(b.Mul(g, rhs)), lhs.shape),
			b.reduceToShape(b.mustNode(b.Mul(g, lhs)), rhs.shape)}
	case backends.OpTypeDiv:
		lhs, rhs := node.inputs[0], node.inputs[1]
		gl := b.mustNode(b.Div(g, rhs))
		gr := b.mustNode(b.Neg(b.mustNode(b.Div(
			b.mustNode(b.Mul(g, lhs)),
			b.mustNode(b.Mul(rhs, rhs))))))
		return []*Node{b.reduceToShape(gl, lhs.shape), b.reduceToShape(gr, rhs.shape)}
	case backends.OpTypeMax:
		// The kernel picks lhs on ties.
		lhs, rhs := node.inputs[0], node.inputs[1]
		rhsWins := b.mustNode(b.LessThan(lhs, rhs))
		zero := b.mustScalar(dtype, 0)
		return []*Node{
			b.reduceToShape(b.mustNode(b.Where(rhsWins, zero, g)), lhs.shape),
			b.reduceToShape(b.mustNode(b.Where(rhsWins, g, zero)), rhs.shape)}
	case backends.OpTypeMin:
		lhs, rhs := node.inputs[0], node.inputs[1]
		rhsWins := b.mustNode(b.GreaterThan(lhs, rhs))
		zero := b.mustScalar(dtype, 0)
		return []*Node{
			b.reduceToShape(b.mustNode(b.Where(rhsWins, zero, g)), lhs.shape),
			b.reduceToShape(b.mustNode(b.Where(rhsWins, g, zero)), rhs.shape)}

	case backends.OpTypeDot:
		return b.vjpDot(node, g)

	case backends.OpTypeWhere:
		cond, onTrue, onFalse := node.inputs[0], node.inputs[1], node.inputs[2]
		zero := b.mustScalar(dtype, 0)
		return []*Node{
			nil,
			b.reduceToShape(b.mustNode(b.Where(cond, g, zero)), onTrue.shape),
			b.reduceToShape(b.mustNode(b.Where(cond, zero, g)), onFalse.shape)}
	case backends.OpTypeClamp:
		// The clamp bounds are treated as constants.
		lo, x, hi := node.inputs[0], node.inputs[1], node.inputs[2]
		zero := b.mustScalar(dtype, 0)
		below := b.mustNode(b.LessThan(x, lo))
		above := b.mustNode(b.GreaterThan(x, hi))
		gx := b.mustNode(b.Where(below, zero, b.mustNode(b.Where(above, zero, g))))
		return []*Node{nil, gx, nil}

	case backends.OpTypeReshape:
		return []*Node{b.mustNode(b.Reshape(g, node.inputs[0].shape.Dimensions...))}
	case backends.OpTypeTranspose:
		inverse := make([]int, len(node.ints))
		for outAxis, inAxis := range node.ints {
			inverse[inAxis] = outAxis
		}
		return []*Node{b.mustNode(b.Transpose(g, inverse...))}
	case backends.OpTypeBroadcast:
		input := node.inputs[0]
		var sumAxes []int
		for axis, dim := range input.shape.Dimensions {
			if dim == 1 && node.shape.Dim(axis) > 1 {
				sumAxes = append(sumAxes, axis)
			}
		}
		gr := g
		if len(sumAxes) > 0 {
			gr = b.mustNode(b.ReduceSum(g, sumAxes...))
		}
		return []*Node{b.mustNode(b.Reshape(gr, input.shape.Dimensions...))}

	case backends.OpTypeReduceSum:
		input := node.inputs[0]
		withOnes := reducedDimsWithOnes(input.shape, node.ints)
		gB := b.mustNode(b.Reshape(g, withOnes...))
		return []*Node{b.mustNode(b.Broadcast(gB, input.shape.Dimensions...))}
	case backends.OpTypeReduceMax:
		// Ties all receive the gradient.
		input := node.inputs[0]
		withOnes := reducedDimsWithOnes(input.shape, node.ints)
		outB := b.mustNode(b.Broadcast(b.mustNode(b.Reshape(node, withOnes...)), input.shape.Dimensions...))
		gB := b.mustNode(b.Broadcast(b.mustNode(b.Reshape(g, withOnes...)), input.shape.Dimensions...))
		mask := b.mustNode(b.Equal(input, outB))
		zero := b.mustScalar(dtype, 0)
		return []*Node{b.mustNode(b.Where(mask, gB, zero))}

	case backends.OpTypeEqual, backends.OpTypeGreaterThan, backends.OpTypeLessThan,
		backends.OpTypeArgMax, backends.OpTypeTopK:
		return nil
	}
	panic(errors.Errorf("no gradient defined for op %s", node.opType))
}

// vjpDot handles the three rank combinations Dot accepts.
func (b *Builder) vjpDot(node *Node, g *Node) []*Node {
	lhs, rhs := node.inputs[0], node.inputs[1]
	switch {
	case lhs.shape.Rank() == 2 && rhs.shape.Rank() == 2:
		gl := b.mustNode(b.Dot(g, b.mustNode(b.Transpose(rhs, 1, 0))))
		gr := b.mustNode(b.Dot(b.mustNode(b.Transpose(lhs, 1, 0)), g))
		return []*Node{gl, gr}
	case lhs.shape.Rank() == 1:
		// [k]x[k,n] -> [n]
		k, n := lhs.shape.Dim(0), rhs.shape.Dim(1)
		gl := b.mustNode(b.Dot(rhs, g))
		gr := b.mustNode(b.Dot(
			b.mustNode(b.Reshape(lhs, k, 1)),
			b.mustNode(b.Reshape(g, 1, n))))
		return []*Node{gl, gr}
	default:
		// [m,k]x[k] -> [m]
		m, k := lhs.shape.Dim(0), lhs.shape.Dim(1)
		gl := b.mustNode(b.Dot(
			b.mustNode(b.Reshape(g, m, 1)),
			b.mustNode(b.Reshape(rhs, 1, k))))
		gr := b.mustNode(b.Dot(b.mustNode(b.Transpose(lhs, 1, 0)), g))
		return []*Node{gl, gr}
	}
}

// reducedDimsWithOnes returns the input dimensions with the reduced axes replaced by 1.
func reducedDimsWithOnes(input shapes.Shape, axes []int) []int {
	withOnes := make([]int, input.Rank())
	copy(withOnes, input.Dimensions)
	for _, axis := range axes {
		withOnes[axis] = 1
	}
	return withOnes
}

// xslicesOnes returns a slice of n ones, used to reshape a scalar for broadcasting.
func xslicesOnes(n int) []int {
	ones := make([]int, n)
	for ii := range ones {
		ones[ii] = 1
	}
	return ones
}
