package dsl

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/KevinCoble/graphdsl/backends"
	"github.com/KevinCoble/graphdsl/types/shapes"
	"github.com/KevinCoble/graphdsl/types/tensors"
)

// VariableInit identifies the value source of a Variable node.
//
//go:generate go tool enumer -type=VariableInit -trimprefix=VariableInit -output=gen_variableinit_enumer.go variable.go
type VariableInit int

const (
	VariableInitNone VariableInit = iota
	VariableInitTensor
	VariableInitDataTensor
	VariableInitUniform
	VariableInitNormal
	VariableInitOrthogonal
	VariableInitConstant
	VariableInitFromNode
)

// Optimizer selects the update rule used for a learning variable.
//
//go:generate go tool enumer -type=Optimizer -output=gen_optimizer_enumer.go variable.go
type Optimizer int

const (
	GradientDescent Optimizer = iota
	Momentum
)

// VariableNode declares a learnable or persistent parameter. Its initial value is
// materialized during construction from the configured source, and the variable is
// then bound into the graph as a persistent tensor. Associating a loss (with
// TrainableWithLoss) registers it for gradient-descent updates.
type VariableNode struct {
	baseNode
	initKind VariableInit
	shape    shapes.Shape
	shapeSet bool

	source        *tensors.Tensor
	dataRef       string
	fromNode      string
	min, max      float64
	mean, stddev  float64
	bidirectional bool
	fill          float64

	lossName       string
	clip           bool
	clipLo, clipHi float64
	optimizer      Optimizer
}

// Variable declares a parameter. Exactly one value source modifier (FromTensor,
// FromDataTensor, UniformRandomInit, NormalRandomInit, OrthogonalInit,
// ConstantFill or FromNodeTensor) must be applied before construction.
func Variable(name string) *VariableNode {
	n := &VariableNode{}
	n.kindName = "Variable"
	n.name = name
	return n
}

func (n *VariableNode) setInit(kind VariableInit) {
	if n.initKind != VariableInitNone {
		n.setBuildError(errors.Errorf("Variable %q already has a value source (%s)",
			n.displayName(), n.initKind))
		return
	}
	n.initKind = kind
}

// FromTensor initializes the variable by copying a concrete tensor.
func (n *VariableNode) FromTensor(value *tensors.Tensor) *VariableNode {
	n.setInit(VariableInitTensor)
	n.source = value
	return n
}

// FromDataTensor initializes the variable from the enclosing sub-graph instance's
// data-tensor map, keyed by ref.
func (n *VariableNode) FromDataTensor(ref string) *VariableNode {
	n.setInit(VariableInitDataTensor)
	n.dataRef = ref
	return n
}

// FromNodeTensor adopts shape, data type and initial value from another node's
// materialized tensor (a Constant, Variable or RandomUniformTensor declared
// earlier).
func (n *VariableNode) FromNodeTensor(nodeName string) *VariableNode {
	n.setInit(VariableInitFromNode)
	n.fromNode = nodeName
	return n
}

// WithShape declares the variable's data type and dimensions, required by the
// generated-value sources.
func (n *VariableNode) WithShape(shape shapes.Shape) *VariableNode {
	n.shape = shape
	n.shapeSet = true
	return n
}

// UniformRandomInit fills the variable with uniform values in [min, max).
func (n *VariableNode) UniformRandomInit(min, max float64) *VariableNode {
	n.setInit(VariableInitUniform)
	n.min, n.max = min, max
	return n
}

// NormalRandomInit fills the variable with normally distributed values.
func (n *VariableNode) NormalRandomInit(mean, stddev float64) *VariableNode {
	n.setInit(VariableInitNormal)
	n.mean, n.stddev = mean, stddev
	return n
}

// OrthogonalInit fills the variable with stacked orthogonal square blocks, the
// recurrent-cell convention: a shape [gates*H, H] gets one orthogonal H×H block per
// gate (gates inferred from the shape), stacked gate-major.
func (n *VariableNode) OrthogonalInit() *VariableNode {
	n.setInit(VariableInitOrthogonal)
	return n
}

// Bidirectional declares the orthogonal shape as [2, gates*H, H], one stack of
// blocks per direction.
func (n *VariableNode) Bidirectional() *VariableNode {
	n.bidirectional = true
	return n
}

// ConstantFill fills every element with the given value.
func (n *VariableNode) ConstantFill(value float64) *VariableNode {
	n.setInit(VariableInitConstant)
	n.fill = value
	return n
}

// TrainableWithLoss registers the variable for gradient-descent updates against the
// named loss node.
func (n *VariableNode) TrainableWithLoss(lossName string) *VariableNode {
	n.lossName = lossName
	return n
}

// WithGradientClip bounds the gradient applied to this variable's updates.
func (n *VariableNode) WithGradientClip(min, max float64) *VariableNode {
	n.clip = true
	n.clipLo, n.clipHi = min, max
	return n
}

// WithOptimizer selects the update rule. Default is GradientDescent.
func (n *VariableNode) WithOptimizer(optimizer Optimizer) *VariableNode {
	n.optimizer = optimizer
	return n
}

// TargetForModes marks the variable's current value as a retrievable result.
func (n *VariableNode) TargetForModes(modes ...string) *VariableNode {
	n.addTargets(modes)
	return n
}

func (n *VariableNode) inputRefs() []string {
	if n.initKind == VariableInitFromNode {
		return []string{n.fromNode}
	}
	return nil
}

func (n *VariableNode) resolve(g *Graph) []backends.Op {
	if n.name == "" {
		exceptions.Panicf("Variable nodes must be named")
	}
	initial := n.materialize(g)
	full := g.prefix() + n.name
	param := mustNoError(g.builder.Parameter(full, initial.Shape()))
	state := &variableState{name: full, node: n, host: initial, param: param}
	g.variables = append(g.variables, state)
	g.recordHostValue(full, initial.Clone())
	if g.trackVariables {
		entry := &resetEntry{state: state, initial: initial.Clone()}
		if n.initKind == VariableInitFromNode {
			entry.origin = g.hostValues[g.prefix()+n.fromNode]
		}
		g.resets = append(g.resets, entry)
	}
	return []backends.Op{param}
}

// materialize computes the variable's concrete initial tensor from its source.
func (n *VariableNode) materialize(g *Graph) *tensors.Tensor {
	switch n.initKind {
	case VariableInitTensor:
		return n.source.Clone()
	case VariableInitDataTensor:
		return g.dataTensor(n.dataRef).Clone()
	case VariableInitFromNode:
		full := g.prefix() + n.fromNode
		origin, ok := g.hostValues[full]
		if !ok {
			exceptions.Panicf("Variable %q cannot adopt its value from node %q: no materialized tensor",
				n.name, full)
		}
		return origin.Clone()
	case VariableInitUniform:
		n.requireShape()
		return g.uniformTensor(n.shape, n.min, n.max)
	case VariableInitNormal:
		n.requireShape()
		return g.normalTensor(n.shape, n.mean, n.stddev)
	case VariableInitOrthogonal:
		n.requireShape()
		return g.orthogonalTensor(n.shape, n.bidirectional)
	case VariableInitConstant:
		n.requireShape()
		return constantTensor(n.shape, n.fill)
	}
	exceptions.Panicf("Variable %q has no value source", n.name)
	return nil
}

func (n *VariableNode) requireShape() {
	if !n.shapeSet {
		exceptions.Panicf("Variable %q requires a declared shape for %s initialization",
			n.name, n.initKind)
	}
}

// variableState is the runtime slot of one bound variable: the host tensor holds the
// current value, fed to the backend on every run and overwritten by training
// updates.
type variableState struct {
	name string
	node *VariableNode
	host *tensors.Tensor

	param backends.Op

	// Momentum optimizer state.
	velocity      *tensors.Tensor
	velocityParam backends.Op
}

// resetEntry captures a variable's initial value so it can be re-applied later.
type resetEntry struct {
	state   *variableState
	initial *tensors.Tensor
	origin  *tensors.Tensor // adopt-from-node sources: the originating tensor
}

//
// Generated initial values.
//

func (g *Graph) normalTensor(shape shapes.Shape, mean, stddev float64) *tensors.Tensor {
	if !shape.DType.IsFloat() {
		exceptions.Panicf("random normal values require a float data type, got %s", shape.DType)
	}
	value := tensors.FromShape(shape)
	value.MutableFlatData(func(flat any) {
		switch data := flat.(type) {
		case []float32:
			for ii := range data {
				data[ii] = float32(mean + g.rng.NormFloat64()*stddev)
			}
		case []float64:
			for ii := range data {
				data[ii] = mean + g.rng.NormFloat64()*stddev
			}
		default:
			exceptions.Panicf("random normal values not supported for data type %s", shape.DType)
		}
	})
	return value
}

func constantTensor(shape shapes.Shape, fill float64) *tensors.Tensor {
	value := tensors.FromShape(shape)
	value.MutableFlatData(func(flat any) {
		switch data := flat.(type) {
		case []float32:
			for ii := range data {
				data[ii] = float32(fill)
			}
		case []float64:
			for ii := range data {
				data[ii] = fill
			}
		case []int32:
			for ii := range data {
				data[ii] = int32(fill)
			}
		case []int64:
			for ii := range data {
				data[ii] = int64(fill)
			}
		default:
			exceptions.Panicf("constant fill not supported for data type %s", shape.DType)
		}
	})
	return value
}

// orthogonalTensor builds the stacked per-gate orthogonal blocks. The shape is
// [gates*H, H], or [2, gates*H, H] when bidirectional, and the first matrix
// dimension must be an integer multiple of the second.
func (g *Graph) orthogonalTensor(shape shapes.Shape, bidirectional bool) *tensors.Tensor {
	if !shape.DType.IsFloat() {
		exceptions.Panicf("orthogonal initialization requires a float data type, got %s", shape.DType)
	}
	dims := shape.Dimensions
	directions := 1
	var rows, cols int
	switch {
	case !bidirectional && shape.Rank() == 2:
		rows, cols = dims[0], dims[1]
	case bidirectional && shape.Rank() == 3 && dims[0] == 2:
		directions, rows, cols = 2, dims[1], dims[2]
	default:
		exceptions.Panicf("orthogonal initialization requires shape [gates*H, H] (or [2, gates*H, H] bidirectional), got %s", shape)
	}
	if rows%cols != 0 {
		exceptions.Panicf("orthogonal initialization requires the first dimension (%d) to be a multiple of the second (%d)",
			rows, cols)
	}
	gates := rows / cols

	value := tensors.FromShape(shape)
	value.MutableFlatData(func(flat any) {
		set := func(index int, v float64) {
			switch data := flat.(type) {
			case []float32:
				data[index] = float32(v)
			case []float64:
				data[index] = v
			}
		}
		for direction := 0; direction < directions; direction++ {
			for gate := 0; gate < gates; gate++ {
				block := g.orthogonalBlock(cols)
				for i := 0; i < cols; i++ {
					for j := 0; j < cols; j++ {
						row := gate*cols + i
						set(direction*rows*cols+row*cols+j, block.At(i, j))
					}
				}
			}
		}
	})
	return value
}

// orthogonalBlock generates one H×H orthogonal matrix: QR decomposition of a random
// normal matrix, with Q's columns sign-corrected so R's diagonal is non-negative
// (makes the distribution uniform over the orthogonal group, and deterministic
// given the RNG state).
func (g *Graph) orthogonalBlock(h int) *mat.Dense {
	data := make([]float64, h*h)
	for ii := range data {
		data[ii] = g.rng.NormFloat64()
	}
	var qr mat.QR
	qr.Factorize(mat.NewDense(h, h, data))
	var q, r mat.Dense
	qr.QTo(&q)
	qr.RTo(&r)
	for j := 0; j < h; j++ {
		if r.At(j, j) < 0 {
			for i := 0; i < h; i++ {
				q.Set(i, j, -q.At(i, j))
			}
		}
	}
	return &q
}
