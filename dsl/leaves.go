package dsl

import (
	"github.com/gomlx/exceptions"

	"github.com/KevinCoble/graphdsl/backends"
	"github.com/KevinCoble/graphdsl/types/shapes"
	"github.com/KevinCoble/graphdsl/types/tensors"
)

//
// PlaceHolder.
//

// PlaceHolderNode declares an external-input slot, fed with concrete data when a
// run mode executes.
type PlaceHolderNode struct {
	baseNode
	shape       shapes.Shape
	modes       []string
	batchExempt bool
}

// PlaceHolder declares an external input of the given shape. The declared shape does
// not include the batch dimension; it is inserted automatically for batch graphs.
func PlaceHolder(name string, shape shapes.Shape) *PlaceHolderNode {
	n := &PlaceHolderNode{shape: shape}
	n.kindName = "PlaceHolder"
	n.name = name
	return n
}

// ForModes restricts the modes in which this input is fed. Default is all modes.
func (n *PlaceHolderNode) ForModes(modes ...string) *PlaceHolderNode {
	n.modes = append(n.modes, modes...)
	return n
}

// BatchExempt opts this placeholder out of automatic batch-dimension insertion.
func (n *PlaceHolderNode) BatchExempt() *PlaceHolderNode {
	n.batchExempt = true
	return n
}

func (n *PlaceHolderNode) resolve(g *Graph) []backends.Op {
	if n.name == "" {
		exceptions.Panicf("PlaceHolder nodes must be named")
	}
	shape := n.shape
	if !n.batchExempt {
		shape = g.withBatchDimension(shape)
	}
	full := g.prefix() + n.name
	op := mustNoError(g.builder.Parameter(full, shape))
	g.feeds = append(g.feeds, &feedSlot{name: full, shape: shape, modes: n.modes})
	return []backends.Op{op}
}

//
// Constant.
//

// ConstantNode declares a fixed tensor value.
type ConstantNode struct {
	baseNode
	value   *tensors.Tensor
	dataRef string
}

// Constant declares a constant from a concrete tensor.
func Constant(name string, value *tensors.Tensor) *ConstantNode {
	n := &ConstantNode{value: value}
	n.kindName = "Constant"
	n.name = name
	return n
}

// ConstantFromData declares a constant whose value comes from the enclosing
// sub-graph instance's data-tensor map, keyed by ref. This lets one sub-graph
// definition be instantiated with different constant data per instance.
func ConstantFromData(name string, ref string) *ConstantNode {
	n := &ConstantNode{dataRef: ref}
	n.kindName = "Constant"
	n.name = name
	return n
}

// TargetForModes marks the constant's value as a retrievable result for the modes.
func (n *ConstantNode) TargetForModes(modes ...string) *ConstantNode {
	n.addTargets(modes)
	return n
}

func (n *ConstantNode) resolve(g *Graph) []backends.Op {
	value := n.value
	if value == nil {
		value = g.dataTensor(n.dataRef)
	}
	op := g.constantFromTensor(value)
	if n.name != "" {
		g.recordHostValue(g.prefix()+n.name, value)
	}
	return []backends.Op{op}
}

// dataTensor fetches a tensor from the active sub-graph data-tensor map.
func (g *Graph) dataTensor(ref string) *tensors.Tensor {
	if value, ok := g.dataMap[ref]; ok {
		return value
	}
	exceptions.Panicf("data tensor reference %q missing from the active data-tensor map", ref)
	return nil
}

// constantFromTensor emits a backend constant holding the tensor's data.
func (g *Graph) constantFromTensor(value *tensors.Tensor) backends.Op {
	var op backends.Op
	value.ConstFlatData(func(flat any) {
		op = mustNoError(g.builder.Constant(flat, value.Shape().Dimensions...))
	})
	return op
}

//
// RandomUniformTensor.
//

// RandomUniformNode declares a tensor of uniformly distributed random values,
// generated once at construction time from the graph's seeded generator.
type RandomUniformNode struct {
	baseNode
	shape    shapes.Shape
	min, max float64
}

// RandomUniformTensor declares a tensor of random values in [min, max).
func RandomUniformTensor(name string, shape shapes.Shape, min, max float64) *RandomUniformNode {
	n := &RandomUniformNode{shape: shape, min: min, max: max}
	n.kindName = "RandomUniformTensor"
	n.name = name
	return n
}

// TargetForModes marks the generated values as a retrievable result for the modes.
func (n *RandomUniformNode) TargetForModes(modes ...string) *RandomUniformNode {
	n.addTargets(modes)
	return n
}

func (n *RandomUniformNode) resolve(g *Graph) []backends.Op {
	value := g.uniformTensor(n.shape, n.min, n.max)
	op := g.constantFromTensor(value)
	if n.name != "" {
		g.recordHostValue(g.prefix()+n.name, value)
	}
	return []backends.Op{op}
}

// uniformTensor fills a new host tensor with uniform values from the graph RNG.
func (g *Graph) uniformTensor(shape shapes.Shape, min, max float64) *tensors.Tensor {
	if !shape.DType.IsFloat() {
		exceptions.Panicf("random uniform values require a float data type, got %s", shape.DType)
	}
	value := tensors.FromShape(shape)
	value.MutableFlatData(func(flat any) {
		switch data := flat.(type) {
		case []float32:
			for ii := range data {
				data[ii] = float32(min + g.rng.Float64()*(max-min))
			}
		case []float64:
			for ii := range data {
				data[ii] = min + g.rng.Float64()*(max-min)
			}
		default:
			exceptions.Panicf("random uniform values not supported for data type %s", shape.DType)
		}
	})
	return value
}

//
// Coordinate.
//

// CoordinateNode declares a tensor whose elements are their own index along one axis.
type CoordinateNode struct {
	baseNode
	shape shapes.Shape
	axis  int
}

// Coordinate declares a coordinate tensor of the given shape along axis.
func Coordinate(name string, shape shapes.Shape, axis int) *CoordinateNode {
	n := &CoordinateNode{shape: shape, axis: axis}
	n.kindName = "Coordinate"
	n.name = name
	return n
}

// TargetForModes marks the coordinates as a retrievable result for the modes.
func (n *CoordinateNode) TargetForModes(modes ...string) *CoordinateNode {
	n.addTargets(modes)
	return n
}

func (n *CoordinateNode) resolve(g *Graph) []backends.Op {
	return []backends.Op{mustNoError(g.builder.Iota(n.shape, n.axis))}
}

//
// SubGraphPlaceHolder.
//

// SubGraphPlaceHolderNode is an input slot valid only inside a SubGraphDefinition:
// it aliases whatever outer tensor the enclosing SubGraph instance's input map
// supplies for its name.
type SubGraphPlaceHolderNode struct {
	baseNode
}

// SubGraphPlaceHolder declares a substitution slot for sub-graph definitions.
func SubGraphPlaceHolder(name string) *SubGraphPlaceHolderNode {
	n := &SubGraphPlaceHolderNode{}
	n.kindName = "SubGraphPlaceHolder"
	n.name = name
	return n
}

func (n *SubGraphPlaceHolderNode) resolve(g *Graph) []backends.Op {
	if n.name == "" {
		exceptions.Panicf("SubGraphPlaceHolder nodes must be named")
	}
	outer, ok := g.inputMap[n.name]
	if !ok {
		exceptions.Panicf("sub-graph placeholder %q missing from the active input map", n.name)
	}
	return []backends.Op{g.lookup(outer)}
}

// A sub-graph placeholder exists for substitution, not computation, so it always
// passes the referenced check.
func (n *SubGraphPlaceHolderNode) checkReferenced(g *Graph) {}
