package simplego

import (
	"reflect"
	"slices"

	"github.com/pkg/errors"

	"github.com/gomlx/gopjrt/dtypes"

	"github.com/KevinCoble/graphdsl/backends"
	"github.com/KevinCoble/graphdsl/types/shapes"
	"github.com/KevinCoble/graphdsl/types/tensors"
)

// Builder keeps track of the computation graph being defined.
type Builder struct {
	backend  *Backend
	name     string
	compiled bool

	// nodes are only created when their inputs have already been created, so the
	// list is a natural topological ordering of the graph. The executor relies on
	// this invariance.
	nodes []*Node

	// inputs are the nodes created by Parameter, in creation order.
	inputs []*Node
}

// Node is one operation (or input) of the computation being built. It implements the
// opaque backends.Op.
type Node struct {
	builder *Builder
	id      int
	opType  backends.OpType
	inputs  []*Node
	shape   shapes.Shape

	paramName string          // OpTypeParameter
	data      *tensors.Tensor // OpTypeConstant
	ints      []int           // dims (Reshape/Broadcast), permutation (Transpose) or axes (reductions)
	intArg    int             // axis (Iota/ArgMax) or k (TopK)
	dtypeArg  dtypes.DType    // output DType for ArgMax
	outputIdx int             // TopK: 0 for values, 1 for indices
}

// Compile time check.
var _ backends.Builder = (*Builder)(nil)

func newBuilder(backend *Backend, name string) *Builder {
	return &Builder{backend: backend, name: name}
}

// Name of the computation being built.
func (b *Builder) Name() string { return b.name }

func (b *Builder) checkValid() error {
	if b == nil {
		return errors.New("simplego builder is nil")
	}
	if b.compiled {
		return errors.Errorf("computation %q was already compiled, it can no longer be changed", b.name)
	}
	return nil
}

// checkOps converts backends.Op values to *Node, checking they belong to this builder.
func (b *Builder) checkOps(opName string, ops ...backends.Op) ([]*Node, error) {
	nodes := make([]*Node, len(ops))
	for ii, op := range ops {
		node, ok := op.(*Node)
		if !ok || node == nil {
			return nil, errors.Errorf("%s: op #%d is not a valid simplego op (%T)", opName, ii, op)
		}
		if node.builder != b {
			return nil, errors.Errorf("%s: op #%d belongs to a different builder (%q)", opName, ii, node.builder.name)
		}
		nodes[ii] = node
	}
	return nodes, nil
}

func (b *Builder) newNode(opType backends.OpType, shape shapes.Shape, inputs ...*Node) *Node {
	node := &Node{
		builder: b,
		id:      len(b.nodes),
		opType:  opType,
		inputs:  inputs,
		shape:   shape,
	}
	b.nodes = append(b.nodes, node)
	return node
}

// supportedDType lists the data types the simplego backend can execute.
func supportedDType(dtype dtypes.DType) bool {
	switch dtype {
	case dtypes.Bool, dtypes.Int32, dtypes.Int64, dtypes.Float32, dtypes.Float64:
		return true
	}
	return false
}

func checkDType(opName string, dtype dtypes.DType) error {
	if !supportedDType(dtype) {
		return errors.Errorf("%s: data type %s is not supported by the simplego backend", opName, dtype)
	}
	return nil
}

// OpShape returns the shape of a computation Op.
func (b *Builder) OpShape(op backends.Op) (shapes.Shape, error) {
	nodes, err := b.checkOps("OpShape", op)
	if err != nil {
		return shapes.Invalid(), err
	}
	return nodes[0].shape, nil
}

// Parameter creates an input parameter for the computation.
func (b *Builder) Parameter(name string, shape shapes.Shape) (backends.Op, error) {
	if err := b.checkValid(); err != nil {
		return nil, err
	}
	if !shape.Ok() {
		return nil, errors.Errorf("Parameter(%q): invalid shape", name)
	}
	if err := checkDType("Parameter", shape.DType); err != nil {
		return nil, err
	}
	node := b.newNode(backends.OpTypeParameter, shape.Clone())
	node.paramName = name
	b.inputs = append(b.inputs, node)
	return node, nil
}

// Constant creates a constant node with the given flat values and dimensions.
func (b *Builder) Constant(flat any, dims ...int) (backends.Op, error) {
	if err := b.checkValid(); err != nil {
		return nil, err
	}
	flatV := reflect.ValueOf(flat)
	if flatV.Kind() != reflect.Slice {
		return nil, errors.Errorf("Constant: flat must be a slice, got %T", flat)
	}
	dtype := dtypes.FromGoType(flatV.Type().Elem())
	if dtype == dtypes.InvalidDType {
		return nil, errors.Errorf("Constant: unsupported element type %s", flatV.Type().Elem())
	}
	if err := checkDType("Constant", dtype); err != nil {
		return nil, err
	}
	shape := shapes.Shape{DType: dtype, Dimensions: slices.Clone(dims)}
	if flatV.Len() != shape.Size() {
		return nil, errors.Errorf("Constant: flat has %d values, shape %s requires %d", flatV.Len(), shape, shape.Size())
	}
	data := tensors.FromShape(shape)
	data.MutableFlatData(func(dst any) {
		reflect.Copy(reflect.ValueOf(dst), flatV)
	})
	node := b.newNode(backends.OpTypeConstant, shape)
	node.data = data
	return node, nil
}

// constantScalar is used internally (autodiff) to create scalar constants of an
// arbitrary numeric dtype.
func (b *Builder) constantScalar(dtype dtypes.DType, value float64) (*Node, error) {
	t := tensors.ConvertDType(tensors.FromFlatDataAndDimensions([]float64{value}), dtype)
	node := b.newNode(backends.OpTypeConstant, t.Shape())
	node.data = t
	return node, nil
}

// Iota creates a tensor of the given shape whose elements are their own coordinate
// along iotaAxis.
func (b *Builder) Iota(shape shapes.Shape, iotaAxis int) (backends.Op, error) {
	if err := b.checkValid(); err != nil {
		return nil, err
	}
	if err := checkDType("Iota", shape.DType); err != nil {
		return nil, err
	}
	if shape.DType == dtypes.Bool {
		return nil, errors.Errorf("Iota: data type %s is not numeric", shape.DType)
	}
	axis, err := adjustAxis(iotaAxis, shape.Rank(), "Iota")
	if err != nil {
		return nil, err
	}
	node := b.newNode(backends.OpTypeIota, shape.Clone())
	node.intArg = axis
	return node, nil
}

// adjustAxis resolves negative axes and validates the range.
func adjustAxis(axis, rank int, opName string) (int, error) {
	adjusted := axis
	if adjusted < 0 {
		adjusted += rank
	}
	if adjusted < 0 || adjusted >= rank {
		return 0, errors.Errorf("%s: axis %d out of range for rank %d", opName, axis, rank)
	}
	return adjusted, nil
}

//
// Unary operations.
//

func (b *Builder) unaryOp(opType backends.OpType, x backends.Op, floatOnly bool) (backends.Op, error) {
	if err := b.checkValid(); err != nil {
		return nil, err
	}
	nodes, err := b.checkOps(opType.String(), x)
	if err != nil {
		return nil, err
	}
	operand := nodes[0]
	if operand.shape.DType == dtypes.Bool {
		return nil, errors.Errorf("%s: not defined for data type %s", opType, operand.shape.DType)
	}
	if floatOnly && !operand.shape.DType.IsFloat() {
		return nil, errors.Errorf("%s: requires a float data type, got %s", opType, operand.shape.DType)
	}
	return b.newNode(opType, operand.shape.Clone(), operand), nil
}

func (b *Builder) Abs(x backends.Op) (backends.Op, error) {
	return b.unaryOp(backends.OpTypeAbs, x, false)
}

func (b *Builder) Neg(x backends.Op) (backends.Op, error) {
	return b.unaryOp(backends.OpTypeNeg, x, false)
}

func (b *Builder) Exp(x backends.Op) (backends.Op, error) {
	return b.unaryOp(backends.OpTypeExp, x, true)
}

func (b *Builder) Log(x backends.Op) (backends.Op, error) {
	return b.unaryOp(backends.OpTypeLog, x, true)
}

func (b *Builder) Sqrt(x backends.Op) (backends.Op, error) {
	return b.unaryOp(backends.OpTypeSqrt, x, true)
}

func (b *Builder) Tanh(x backends.Op) (backends.Op, error) {
	return b.unaryOp(backends.OpTypeTanh, x, true)
}

func (b *Builder) Logistic(x backends.Op) (backends.Op, error) {
	return b.unaryOp(backends.OpTypeLogistic, x, true)
}

//
// Binary operations.
//

// binaryShape resolves the output dimensions for a binary element-wise operation:
// operands must have the same dimensions, except that either side may be a scalar.
func binaryShape(opType backends.OpType, lhs, rhs *Node) (shapes.Shape, error) {
	if lhs.shape.DType != rhs.shape.DType {
		return shapes.Invalid(), errors.Errorf("%s: operands have different data types: %s and %s",
			opType, lhs.shape.DType, rhs.shape.DType)
	}
	if lhs.shape.IsScalar() {
		return rhs.shape.Clone(), nil
	}
	if rhs.shape.IsScalar() {
		return lhs.shape.Clone(), nil
	}
	if !lhs.shape.EqualDimensions(rhs.shape) {
		return shapes.Invalid(), errors.Errorf("%s: operands have different dimensions: %s and %s",
			opType, lhs.shape, rhs.shape)
	}
	return lhs.shape.Clone(), nil
}

func (b *Builder) binaryOp(opType backends.OpType, lhs, rhs backends.Op, comparison bool) (backends.Op, error) {
	if err := b.checkValid(); err != nil {
		return nil, err
	}
	nodes, err := b.checkOps(opType.String(), lhs, rhs)
	if err != nil {
		return nil, err
	}
	if nodes[0].shape.DType == dtypes.Bool {
		return nil, errors.Errorf("%s: not defined for data type %s", opType, nodes[0].shape.DType)
	}
	shape, err := binaryShape(opType, nodes[0], nodes[1])
	if err != nil {
		return nil, err
	}
	if comparison {
		shape.DType = dtypes.Bool
	}
	return b.newNode(opType, shape, nodes[0], nodes[1]), nil
}

func (b *Builder) Add(lhs, rhs backends.Op) (backends.Op, error) {
	return b.binaryOp(backends.OpTypeAdd, lhs, rhs, false)
}

func (b *Builder) Sub(lhs, rhs backends.Op) (backends.Op, error) {
	return b.binaryOp(backends.OpTypeSub, lhs, rhs, false)
}

func (b *Builder) Mul(lhs, rhs backends.Op) (backends.Op, error) {
	return b.binaryOp(backends.OpTypeMul, lhs, rhs, false)
}

func (b *Builder) Div(lhs, rhs backends.Op) (backends.Op, error) {
	return b.binaryOp(backends.OpTypeDiv, lhs, rhs, false)
}

func (b *Builder) Max(lhs, rhs backends.Op) (backends.Op, error) {
	return b.binaryOp(backends.OpTypeMax, lhs, rhs, false)
}

func (b *Builder) Min(lhs, rhs backends.Op) (backends.Op, error) {
	return b.binaryOp(backends.OpTypeMin, lhs, rhs, false)
}

func (b *Builder) Equal(lhs, rhs backends.Op) (backends.Op, error) {
	return b.binaryOp(backends.OpTypeEqual, lhs, rhs, true)
}

func (b *Builder) GreaterThan(lhs, rhs backends.Op) (backends.Op, error) {
	return b.binaryOp(backends.OpTypeGreaterThan, lhs, rhs, true)
}

func (b *Builder) LessThan(lhs, rhs backends.Op) (backends.Op, error) {
	return b.binaryOp(backends.OpTypeLessThan, lhs, rhs, true)
}

// Dot computes the matrix multiplication of the operands: [m,k]x[k,n], [k]x[k,n] or
// [m,k]x[k]. The inner dimensions must match.
func (b *Builder) Dot(lhs, rhs backends.Op) (backends.Op, error) {
	if err := b.checkValid(); err != nil {
		return nil, err
	}
	nodes, err := b.checkOps("Dot", lhs, rhs)
	if err != nil {
		return nil, err
	}
	l, r := nodes[0], nodes[1]
	if l.shape.DType != r.shape.DType {
		return nil, errors.Errorf("Dot: operands have different data types: %s and %s", l.shape.DType, r.shape.DType)
	}
	if l.shape.DType == dtypes.Bool {
		return nil, errors.Errorf("Dot: not defined for data type %s", l.shape.DType)
	}
	var outDims []int
	switch {
	case l.shape.Rank() == 2 && r.shape.Rank() == 2:
		if l.shape.Dim(1) != r.shape.Dim(0) {
			return nil, errors.Errorf("Dot: inner dimensions do not match: %s and %s", l.shape, r.shape)
		}
		outDims = []int{l.shape.Dim(0), r.shape.Dim(1)}
	case l.shape.Rank() == 1 && r.shape.Rank() == 2:
		if l.shape.Dim(0) != r.shape.Dim(0) {
			return nil, errors.Errorf("Dot: inner dimensions do not match: %s and %s", l.shape, r.shape)
		}
		outDims = []int{r.shape.Dim(1)}
	case l.shape.Rank() == 2 && r.shape.Rank() == 1:
		if l.shape.Dim(1) != r.shape.Dim(0) {
			return nil, errors.Errorf("Dot: inner dimensions do not match: %s and %s", l.shape, r.shape)
		}
		outDims = []int{l.shape.Dim(0)}
	default:
		return nil, errors.Errorf("Dot: requires rank 1 or 2 operands, got %s and %s", l.shape, r.shape)
	}
	shape := shapes.Shape{DType: l.shape.DType, Dimensions: outDims}
	return b.newNode(backends.OpTypeDot, shape, l, r), nil
}

// Where selects element-wise from onTrue or onFalse based on the Bool condition.
func (b *Builder) Where(condition, onTrue, onFalse backends.Op) (backends.Op, error) {
	if err := b.checkValid(); err != nil {
		return nil, err
	}
	nodes, err := b.checkOps("Where", condition, onTrue, onFalse)
	if err != nil {
		return nil, err
	}
	cond, t, f := nodes[0], nodes[1], nodes[2]
	if cond.shape.DType != dtypes.Bool {
		return nil, errors.Errorf("Where: condition must be Bool, got %s", cond.shape)
	}
	if t.shape.DType != f.shape.DType {
		return nil, errors.Errorf("Where: branches have different data types: %s and %s", t.shape.DType, f.shape.DType)
	}
	shape := t.shape.Clone()
	if t.shape.IsScalar() {
		shape = f.shape.Clone()
	} else if !f.shape.IsScalar() && !t.shape.EqualDimensions(f.shape) {
		return nil, errors.Errorf("Where: branches have different dimensions: %s and %s", t.shape, f.shape)
	}
	if !cond.shape.IsScalar() && !shape.IsScalar() && !cond.shape.EqualDimensions(shape) {
		return nil, errors.Errorf("Where: condition dimensions %v do not match branches %v",
			cond.shape.Dimensions, shape.Dimensions)
	}
	if shape.IsScalar() && !cond.shape.IsScalar() {
		shape = shapes.Shape{DType: shape.DType, Dimensions: slices.Clone(cond.shape.Dimensions)}
	}
	return b.newNode(backends.OpTypeWhere, shape, cond, t, f), nil
}

// Clamp limits x element-wise into [min, max].
func (b *Builder) Clamp(min, x, max backends.Op) (backends.Op, error) {
	if err := b.checkValid(); err != nil {
		return nil, err
	}
	nodes, err := b.checkOps("Clamp", min, x, max)
	if err != nil {
		return nil, err
	}
	lo, operand, hi := nodes[0], nodes[1], nodes[2]
	for _, bound := range []*Node{lo, hi} {
		if bound.shape.DType != operand.shape.DType {
			return nil, errors.Errorf("Clamp: bound data type %s does not match operand %s",
				bound.shape.DType, operand.shape.DType)
		}
		if !bound.shape.IsScalar() && !bound.shape.EqualDimensions(operand.shape) {
			return nil, errors.Errorf("Clamp: bound shape %s must be scalar or match operand %s",
				bound.shape, operand.shape)
		}
	}
	if operand.shape.DType == dtypes.Bool {
		return nil, errors.Errorf("Clamp: not defined for data type %s", operand.shape.DType)
	}
	return b.newNode(backends.OpTypeClamp, operand.shape.Clone(), lo, operand, hi), nil
}

//
// Shape operations.
//

// Reshape changes the dimensions preserving the total size.
func (b *Builder) Reshape(x backends.Op, dims ...int) (backends.Op, error) {
	if err := b.checkValid(); err != nil {
		return nil, err
	}
	nodes, err := b.checkOps("Reshape", x)
	if err != nil {
		return nil, err
	}
	operand := nodes[0]
	shape := shapes.Shape{DType: operand.shape.DType, Dimensions: slices.Clone(dims)}
	for _, dim := range dims {
		if dim <= 0 {
			return nil, errors.Errorf("Reshape: invalid dimension %d", dim)
		}
	}
	if shape.Size() != operand.shape.Size() {
		return nil, errors.Errorf("Reshape: cannot reshape %s to %v, total sizes differ", operand.shape, dims)
	}
	node := b.newNode(backends.OpTypeReshape, shape, operand)
	node.ints = slices.Clone(dims)
	return node, nil
}

// Transpose permutes the axes of x according to permutation.
func (b *Builder) Transpose(x backends.Op, permutation ...int) (backends.Op, error) {
	if err := b.checkValid(); err != nil {
		return nil, err
	}
	nodes, err := b.checkOps("Transpose", x)
	if err != nil {
		return nil, err
	}
	operand := nodes[0]
	rank := operand.shape.Rank()
	if len(permutation) != rank {
		return nil, errors.Errorf("Transpose: permutation has %d entries, operand rank is %d -- one entry per axis required",
			len(permutation), rank)
	}
	seen := make([]bool, rank)
	outDims := make([]int, rank)
	for ii, axis := range permutation {
		adjusted, err := adjustAxis(axis, rank, "Transpose")
		if err != nil {
			return nil, err
		}
		if seen[adjusted] {
			return nil, errors.Errorf("Transpose: axis %d appears more than once in permutation %v", adjusted, permutation)
		}
		seen[adjusted] = true
		outDims[ii] = operand.shape.Dim(adjusted)
	}
	node := b.newNode(backends.OpTypeTranspose, shapes.Shape{DType: operand.shape.DType, Dimensions: outDims}, operand)
	node.ints = slices.Clone(permutation)
	for ii, axis := range node.ints {
		if axis < 0 {
			node.ints[ii] = axis + rank
		}
	}
	return node, nil
}

// Broadcast expands x to the given dimensions: each axis of x must either match the
// corresponding output dimension or be 1.
func (b *Builder) Broadcast(x backends.Op, dims ...int) (backends.Op, error) {
	if err := b.checkValid(); err != nil {
		return nil, err
	}
	nodes, err := b.checkOps("Broadcast", x)
	if err != nil {
		return nil, err
	}
	operand := nodes[0]
	if operand.shape.Rank() != len(dims) {
		return nil, errors.Errorf("Broadcast: operand rank %d does not match %d target dimensions",
			operand.shape.Rank(), len(dims))
	}
	for axis, dim := range dims {
		inDim := operand.shape.Dim(axis)
		if inDim != dim && inDim != 1 {
			return nil, errors.Errorf("Broadcast: axis %d has dimension %d, cannot broadcast to %d", axis, inDim, dim)
		}
	}
	node := b.newNode(backends.OpTypeBroadcast, shapes.Shape{DType: operand.shape.DType, Dimensions: slices.Clone(dims)}, operand)
	node.ints = slices.Clone(dims)
	return node, nil
}

//
// Reductions.
//

func (b *Builder) reduceOp(opType backends.OpType, x backends.Op, axes []int) (backends.Op, error) {
	if err := b.checkValid(); err != nil {
		return nil, err
	}
	nodes, err := b.checkOps(opType.String(), x)
	if err != nil {
		return nil, err
	}
	operand := nodes[0]
	if operand.shape.DType == dtypes.Bool {
		return nil, errors.Errorf("%s: not defined for data type %s", opType, operand.shape.DType)
	}
	rank := operand.shape.Rank()
	if len(axes) == 0 {
		axes = make([]int, rank)
		for ii := range axes {
			axes[ii] = ii
		}
	}
	reduced := make([]bool, rank)
	for _, axis := range axes {
		adjusted, err := adjustAxis(axis, rank, opType.String())
		if err != nil {
			return nil, err
		}
		if reduced[adjusted] {
			return nil, errors.Errorf("%s: axis %d appears more than once", opType, adjusted)
		}
		reduced[adjusted] = true
	}
	var outDims []int
	var sortedAxes []int
	for axis := 0; axis < rank; axis++ {
		if reduced[axis] {
			sortedAxes = append(sortedAxes, axis)
		} else {
			outDims = append(outDims, operand.shape.Dim(axis))
		}
	}
	node := b.newNode(opType, shapes.Shape{DType: operand.shape.DType, Dimensions: outDims}, operand)
	node.ints = sortedAxes
	return node, nil
}

func (b *Builder) ReduceSum(x backends.Op, axes ...int) (backends.Op, error) {
	return b.reduceOp(backends.OpTypeReduceSum, x, axes)
}

func (b *Builder) ReduceMax(x backends.Op, axes ...int) (backends.Op, error) {
	return b.reduceOp(backends.OpTypeReduceMax, x, axes)
}

// ArgMax returns the index of the maximum element along the given axis.
func (b *Builder) ArgMax(x backends.Op, axis int, outputDType dtypes.DType) (backends.Op, error) {
	if err := b.checkValid(); err != nil {
		return nil, err
	}
	nodes, err := b.checkOps("ArgMax", x)
	if err != nil {
		return nil, err
	}
	operand := nodes[0]
	if operand.shape.DType == dtypes.Bool {
		return nil, errors.Errorf("ArgMax: not defined for data type %s", operand.shape.DType)
	}
	if !outputDType.IsInt() {
		return nil, errors.Errorf("ArgMax: output data type must be an integer type, got %s", outputDType)
	}
	if err := checkDType("ArgMax", outputDType); err != nil {
		return nil, err
	}
	adjusted, err := adjustAxis(axis, operand.shape.Rank(), "ArgMax")
	if err != nil {
		return nil, err
	}
	var outDims []int
	for ii := 0; ii < operand.shape.Rank(); ii++ {
		if ii != adjusted {
			outDims = append(outDims, operand.shape.Dim(ii))
		}
	}
	node := b.newNode(backends.OpTypeArgMax, shapes.Shape{DType: outputDType, Dimensions: outDims}, operand)
	node.intArg = adjusted
	return node, nil
}

// TopK returns the k largest elements along the last axis and their indices.
func (b *Builder) TopK(x backends.Op, k int) (values, indices backends.Op, err error) {
	if err := b.checkValid(); err != nil {
		return nil, nil, err
	}
	nodes, err := b.checkOps("TopK", x)
	if err != nil {
		return nil, nil, err
	}
	operand := nodes[0]
	if operand.shape.DType == dtypes.Bool {
		return nil, nil, errors.Errorf("TopK: not defined for data type %s", operand.shape.DType)
	}
	if operand.shape.Rank() == 0 {
		return nil, nil, errors.Errorf("TopK: operand must have rank >= 1")
	}
	lastDim := operand.shape.Dim(-1)
	if k < 1 || k > lastDim {
		return nil, nil, errors.Errorf("TopK: k=%d out of range for last axis dimension %d", k, lastDim)
	}
	outDims := slices.Clone(operand.shape.Dimensions)
	outDims[len(outDims)-1] = k
	valuesNode := b.newNode(backends.OpTypeTopK, shapes.Shape{DType: operand.shape.DType, Dimensions: outDims}, operand)
	valuesNode.intArg = k
	indicesNode := b.newNode(backends.OpTypeTopK, shapes.Shape{DType: dtypes.Int64, Dimensions: slices.Clone(outDims)}, operand)
	indicesNode.intArg = k
	indicesNode.outputIdx = 1
	return valuesNode, indicesNode, nil
}

// Compile freezes the computation and returns an Executable for the given outputs.
// It may be called multiple times with different output sets; after the first call
// no new operations can be added.
func (b *Builder) Compile(outputs ...backends.Op) (backends.Executable, error) {
	if b == nil {
		return nil, errors.New("simplego builder is nil")
	}
	if len(outputs) == 0 {
		return nil, errors.Errorf("Compile: computation %q has no outputs", b.name)
	}
	outputNodes, err := b.checkOps("Compile", outputs...)
	if err != nil {
		return nil, err
	}
	b.compiled = true
	return newExecutable(b, outputNodes), nil
}
