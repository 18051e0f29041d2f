package dsl_test

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinCoble/graphdsl/dsl"
	"github.com/KevinCoble/graphdsl/types/shapes"
	"github.com/KevinCoble/graphdsl/types/tensors"
)

// withTarget makes a one-variable graph where the variable is consumed.
func variableGraph(t *testing.T, v *dsl.VariableNode, options ...dsl.GraphOption) *dsl.Graph {
	g, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		v,
		dsl.Negative("out").WithInput(v.Name()).TargetForModes("infer"),
	), options...)
	require.NoError(t, err)
	return g
}

func TestVariableFromTensorRoundTrip(t *testing.T) {
	source := tensors.FromFlatDataAndDimensions([]float32{1.5, -2.5, 3.5}, 3)
	g := variableGraph(t,
		dsl.Variable("w").FromTensor(source),
		dsl.WithVariableTracking())

	first := must.M1(g.ResetData("w"))
	assert.True(t, source.Equal(first))
	// Idempotent across repeated queries.
	second := must.M1(g.ResetData("w"))
	assert.True(t, first.Equal(second))
}

func TestVariableConstantFill(t *testing.T) {
	g := variableGraph(t,
		dsl.Variable("w").WithShape(shapes.Make(dtypes.Float32, 2, 2)).ConstantFill(7))
	values := g.VariableValues()
	assert.Equal(t, [][]float32{{7, 7}, {7, 7}}, values["w"].Value())
}

func TestVariableUniformRequiresShape(t *testing.T) {
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Variable("w").UniformRandomInit(0, 1),
		dsl.Negative("out").WithInput("w").TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a declared shape")
}

func TestVariableMustBeNamed(t *testing.T) {
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("c", tensors.FromFlatDataAndDimensions([]float32{1}, 1)),
		dsl.Variable("").FromTensor(tensors.FromFlatDataAndDimensions([]float32{1}, 1)),
		dsl.Addition("out").WithInputs("c").TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be named")
}

func TestVariableDoubleSourceFails(t *testing.T) {
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Variable("w").ConstantFill(1).UniformRandomInit(0, 1).
			WithShape(shapes.Make(dtypes.Float32, 2)),
		dsl.Negative("out").WithInput("w").TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already has a value source")
}

func TestVariableAdoptsFromNodeTensor(t *testing.T) {
	g, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("seed", tensors.FromFlatDataAndDimensions([]float32{4, 5}, 2)),
		dsl.Variable("w").FromNodeTensor("seed"),
		dsl.Addition("out").WithInputs("seed", "w").TargetForModes("infer"),
	), dsl.WithVariableTracking())
	require.NoError(t, err)
	values := g.VariableValues()
	assert.Equal(t, []float32{4, 5}, values["w"].Value())
	results := must.M1(g.Run("infer", nil))
	assert.Equal(t, []float32{8, 10}, results["out"].Value())
}

func TestVariableFromNodeWithoutMaterializedTensorFails(t *testing.T) {
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("c", tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2)),
		dsl.Negative("n").WithInput("c"),
		dsl.Variable("w").FromNodeTensor("n"),
		dsl.Addition("out").WithInputs("n", "w").TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no materialized tensor")
}

func TestUniformRandomReproducibleWithSeed(t *testing.T) {
	build := func() *tensors.Tensor {
		g := variableGraph(t,
			dsl.Variable("w").WithShape(shapes.Make(dtypes.Float64, 8)).UniformRandomInit(-1, 1),
			dsl.WithSeed(7))
		return g.VariableValues()["w"]
	}
	first, second := build(), build()
	assert.True(t, first.Equal(second))
	for _, v := range first.Float64Values() {
		assert.GreaterOrEqual(t, v, -1.0)
		assert.Less(t, v, 1.0)
	}
}

// An LSTM-style [4*8, 8] weight gets 4 stacked 8×8 blocks, each orthogonal.
func TestOrthogonalInitialization(t *testing.T) {
	const gates, h = 4, 8
	g := variableGraph(t,
		dsl.Variable("w").WithShape(shapes.Make(dtypes.Float64, gates*h, h)).OrthogonalInit(),
		dsl.WithSeed(3))
	flat := g.VariableValues()["w"].Float64Values()

	for gate := 0; gate < gates; gate++ {
		block := flat[gate*h*h : (gate+1)*h*h]
		// blockᵀ · block should be the identity.
		for i := 0; i < h; i++ {
			for j := 0; j < h; j++ {
				var dot float64
				for k := 0; k < h; k++ {
					dot += block[k*h+i] * block[k*h+j]
				}
				expected := 0.0
				if i == j {
					expected = 1.0
				}
				assert.InDelta(t, expected, dot, 1e-9, "gate %d entry (%d,%d)", gate, i, j)
			}
		}
	}
}

func TestOrthogonalRequiresMultipleDimensions(t *testing.T) {
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Variable("w").WithShape(shapes.Make(dtypes.Float64, 10, 4)).OrthogonalInit(),
		dsl.Negative("out").WithInput("w").TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple")
}

func TestBidirectionalOrthogonalShape(t *testing.T) {
	g := variableGraph(t,
		dsl.Variable("w").WithShape(shapes.Make(dtypes.Float64, 2, 6, 3)).
			OrthogonalInit().Bidirectional(),
		dsl.WithSeed(5))
	value := g.VariableValues()["w"]
	assert.Equal(t, []int{2, 6, 3}, value.Shape().Dimensions)

	// Each direction's first block must itself be orthogonal.
	flat := value.Float64Values()
	for direction := 0; direction < 2; direction++ {
		block := flat[direction*18 : direction*18+9]
		var dot float64
		for k := 0; k < 3; k++ {
			dot += block[k*3] * block[k*3]
		}
		assert.InDelta(t, 1.0, dot, 1e-9, "direction %d", direction)
	}
}

func TestResetVariables(t *testing.T) {
	g := variableGraph(t,
		dsl.Variable("w").FromTensor(tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2)),
		dsl.WithVariableTracking())

	require.NoError(t, g.LoadVariableValues(map[string]*tensors.Tensor{
		"w": tensors.FromFlatDataAndDimensions([]float32{9, 9}, 2),
	}))
	assert.Equal(t, []float32{9, 9}, g.VariableValues()["w"].Value())

	require.NoError(t, g.ResetVariables())
	assert.Equal(t, []float32{1, 2}, g.VariableValues()["w"].Value())
}

func TestResetRequiresTracking(t *testing.T) {
	g := variableGraph(t,
		dsl.Variable("w").FromTensor(tensors.FromFlatDataAndDimensions([]float32{1}, 1)))
	require.Error(t, g.ResetVariables())
	_, err := g.ResetData("w")
	require.Error(t, err)
}

func TestLoadVariableValuesValidates(t *testing.T) {
	g := variableGraph(t,
		dsl.Variable("w").FromTensor(tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2)))

	err := g.LoadVariableValues(map[string]*tensors.Tensor{
		"w": tensors.FromFlatDataAndDimensions([]float32{1, 2, 3}, 3),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects shape")

	err = g.LoadVariableValues(map[string]*tensors.Tensor{
		"missing": tensors.FromFlatDataAndDimensions([]float32{1}, 1),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no variable named")
}
