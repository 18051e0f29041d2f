package dsl_test

import (
	"math"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinCoble/graphdsl/dsl"
	"github.com/KevinCoble/graphdsl/types/shapes"
	"github.com/KevinCoble/graphdsl/types/tensors"
)

// evalOne builds a graph from the nodes and runs "infer", returning target name's value.
func evalOne(t *testing.T, name string, nodes []dsl.Node) *tensors.Tensor {
	g, err := dsl.NewGraph(testBackend(t), nodes)
	require.NoError(t, err)
	results := must.M1(g.Run("infer", nil))
	require.Contains(t, results, name)
	return results[name]
}

func TestReLU(t *testing.T) {
	out := evalOne(t, "y", dsl.Nodes(
		dsl.Constant("x", tensors.FromFlatDataAndDimensions([]float32{-2, 0, 3}, 3)),
		dsl.ReLU("y").TargetForModes("infer"),
	))
	assert.Equal(t, []float32{0, 0, 3}, out.Value())
}

func TestSigmoidAndSquare(t *testing.T) {
	out := evalOne(t, "y", dsl.Nodes(
		dsl.Constant("x", tensors.FromFlatDataAndDimensions([]float64{0}, 1)),
		dsl.Sigmoid("s"),
		dsl.Square("y").TargetForModes("infer"),
	))
	assert.InDelta(t, 0.25, out.Float64Values()[0], 1e-9)
}

func TestSoftmax(t *testing.T) {
	out := evalOne(t, "y", dsl.Nodes(
		dsl.Constant("x", tensors.FromFlatDataAndDimensions([]float64{1, 2, 3, 1, 2, 3}, 2, 3)),
		dsl.Softmax("y", -1).TargetForModes("infer"),
	))
	rows := out.Value().([][]float64)
	for _, row := range rows {
		var sum float64
		for _, v := range row {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
		assert.Less(t, row[0], row[1])
		assert.Less(t, row[1], row[2])
	}
}

func TestReduceMean(t *testing.T) {
	out := evalOne(t, "y", dsl.Nodes(
		dsl.Constant("x", tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)),
		dsl.ReduceMean("y", 1).TargetForModes("infer"),
	))
	assert.Equal(t, []float32{2, 5}, out.Value())
}

func TestMeanAndVariance(t *testing.T) {
	g, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("x", tensors.FromFlatDataAndDimensions([]float64{1, 2, 3, 4}, 4)),
		dsl.MeanAndVariance("mv").TargetForModes("infer"),
	))
	require.NoError(t, err)
	results := must.M1(g.Run("infer", nil))
	assert.InDelta(t, 2.5, results["mv_mean"].Float64Values()[0], 1e-9)
	assert.InDelta(t, 1.25, results["mv_variance"].Float64Values()[0], 1e-9)
}

func TestMatrixMultiplication(t *testing.T) {
	out := evalOne(t, "y", dsl.Nodes(
		dsl.Constant("w", tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)),
		dsl.Constant("x", tensors.FromFlatDataAndDimensions([]float32{1, 0, -1}, 3)),
		dsl.MatrixMultiplication("y").WithInputs("w", "x").TargetForModes("infer"),
	))
	assert.Equal(t, []float32{-2, -2}, out.Value())
}

func TestMatrixMultiplicationInnerDimensionMismatch(t *testing.T) {
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("w", tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2)),
		dsl.Constant("x", tensors.FromFlatDataAndDimensions([]float32{1, 2, 3}, 3)),
		dsl.MatrixMultiplication("y").WithInputs("w", "x").TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inner dimension mismatch")
	assert.Contains(t, err.Error(), "w")
	assert.Contains(t, err.Error(), "x")
}

func TestTransposeAndReshape(t *testing.T) {
	out := evalOne(t, "y", dsl.Nodes(
		dsl.Constant("x", tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)),
		dsl.Transpose("tr", 1, 0),
		dsl.Reshape("y", 6).TargetForModes("infer"),
	))
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, out.Value())
}

func TestTransposePermutationValidation(t *testing.T) {
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("x", tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2)),
		dsl.Transpose("y", 0, 0).TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repeats axis")

	_, err = dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("x", tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2)),
		dsl.Transpose("y", 0, 2).TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

func TestSelectAndComparisons(t *testing.T) {
	out := evalOne(t, "y", dsl.Nodes(
		dsl.Constant("a", tensors.FromFlatDataAndDimensions([]float32{1, 5, 3}, 3)),
		dsl.Constant("b", tensors.FromFlatDataAndDimensions([]float32{4, 2, 3}, 3)),
		dsl.GreaterThan("mask").WithInputs("a", "b"),
		dsl.Select("y").WithInputs("mask", "a", "b").TargetForModes("infer"),
	))
	assert.Equal(t, []float32{4, 5, 3}, out.Value())
}

func TestClampTernary(t *testing.T) {
	out := evalOne(t, "y", dsl.Nodes(
		dsl.Constant("lo", tensors.FromFlatDataAndDimensions([]float32{0, 0, 0}, 3)),
		dsl.Constant("x", tensors.FromFlatDataAndDimensions([]float32{-1, 0.5, 2}, 3)),
		dsl.Constant("hi", tensors.FromFlatDataAndDimensions([]float32{1, 1, 1}, 3)),
		dsl.Clamp("y").WithInputs("lo", "x", "hi").TargetForModes("infer"),
	))
	assert.Equal(t, []float32{0, 0.5, 1}, out.Value())
}

func TestMaximumWithNaNPropagation(t *testing.T) {
	nan := float32(math.NaN())
	out := evalOne(t, "y", dsl.Nodes(
		dsl.Constant("a", tensors.FromFlatDataAndDimensions([]float32{1, nan, 3}, 3)),
		dsl.Constant("b", tensors.FromFlatDataAndDimensions([]float32{2, 2, nan}, 3)),
		dsl.Maximum("y").WithInputs("a", "b").PropagateNaN().TargetForModes("infer"),
	))
	values := out.Value().([]float32)
	assert.Equal(t, float32(2), values[0])
	assert.True(t, math.IsNaN(float64(values[1])))
	assert.True(t, math.IsNaN(float64(values[2])))
}

func TestArgMaxSingleAxis(t *testing.T) {
	out := evalOne(t, "y", dsl.Nodes(
		dsl.Constant("x", tensors.FromFlatDataAndDimensions([]float32{3, 9, 4, 8, 1, 2}, 2, 3)),
		dsl.ArgMax("y", -1).TargetForModes("infer"),
	))
	assert.Equal(t, []int64{1, 0}, out.Value())
}

func TestCoordinateTensor(t *testing.T) {
	out := evalOne(t, "y", dsl.Nodes(
		dsl.Coordinate("c", shapes.Make(dtypes.Int64, 2, 3), 1),
		dsl.Absolute("y").TargetForModes("infer"),
	))
	assert.Equal(t, [][]int64{{0, 1, 2}, {0, 1, 2}}, out.Value())
}

func TestRandomUniformTensorNode(t *testing.T) {
	g, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.RandomUniformTensor("r", shapes.Make(dtypes.Float64, 16), 2, 3).TargetForModes("infer"),
	), dsl.WithSeed(11))
	require.NoError(t, err)
	results := must.M1(g.Run("infer", nil))
	for _, v := range results["r"].Float64Values() {
		assert.GreaterOrEqual(t, v, 2.0)
		assert.Less(t, v, 3.0)
	}
}
