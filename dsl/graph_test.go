package dsl_test

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinCoble/graphdsl/backends"
	_ "github.com/KevinCoble/graphdsl/backends/simplego"
	"github.com/KevinCoble/graphdsl/dsl"
	"github.com/KevinCoble/graphdsl/types/shapes"
	"github.com/KevinCoble/graphdsl/types/tensors"
)

func testBackend(t *testing.T) backends.Backend {
	return must.M1(backends.NewWithConfig("go"))
}

func TestImplicitPreviousOutput(t *testing.T) {
	g, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("c", tensors.FromFlatDataAndDimensions([]float32{1, -2, 3}, 3)),
		dsl.Negative("n").TargetForModes("infer"),
	))
	require.NoError(t, err)
	results := must.M1(g.Run("infer", nil))
	assert.Equal(t, []float32{-1, 2, -3}, results["n"].Value())
}

// A configuration-only node between a producer and its implicit consumer leaves
// the chain intact: the consumer still resolves to the producer's output.
func TestImplicitInputSkipsConfigurationNode(t *testing.T) {
	g, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("loss", tensors.FromValue(float32(0.5))),
		dsl.Constant("c", tensors.FromFlatDataAndDimensions([]float32{1, -2, 3}, 3)),
		dsl.Learning("loss"),
		dsl.Negative("n").TargetForModes("infer"),
	))
	require.NoError(t, err)
	results := must.M1(g.Run("infer", nil))
	assert.Equal(t, []float32{-1, 2, -3}, results["n"].Value())
}

func TestExplicitInputResolution(t *testing.T) {
	g, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("a", tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2)),
		dsl.Constant("b", tensors.FromFlatDataAndDimensions([]float32{10, 20}, 2)),
		dsl.Addition("sum").WithInputs("a", "b").TargetForModes("infer"),
	))
	require.NoError(t, err)
	results := must.M1(g.Run("infer", nil))
	assert.Equal(t, []float32{11, 22}, results["sum"].Value())
}

func TestUnknownInputName(t *testing.T) {
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("a", tensors.FromFlatDataAndDimensions([]float32{1}, 1)),
		dsl.Negative("n").WithInput("nope").TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"nope" not found`)
}

func TestUnreferencedNodeFails(t *testing.T) {
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("used", tensors.FromFlatDataAndDimensions([]float32{1}, 1)),
		dsl.Constant("dangling", tensors.FromFlatDataAndDimensions([]float32{2}, 1)),
		dsl.Negative("n").WithInput("used").TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dangling")
	assert.Contains(t, err.Error(), "neither referenced")
}

// Reference order does not matter: a later node can be referenced by an earlier one.
func TestForwardReferenceMarksNode(t *testing.T) {
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Negative("n").WithInput("c").TargetForModes("infer"),
		dsl.Constant("c", tensors.FromFlatDataAndDimensions([]float32{1}, 1)),
	))
	// The forward reference keeps "c" from being flagged as dangling; the emission
	// pass then fails because "c" is not yet emitted when "n" resolves.
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "neither referenced")
	assert.Contains(t, err.Error(), `"c" not found`)
}

func TestTargetRequiresName(t *testing.T) {
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("c", tensors.FromFlatDataAndDimensions([]float32{1}, 1)),
		dsl.Negative("").TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be named")
}

func TestUnnamedNodeAsImplicitLink(t *testing.T) {
	g, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("c", tensors.FromFlatDataAndDimensions([]float32{4, 9}, 2)),
		dsl.SquareRoot(""),
		dsl.Negative("n").TargetForModes("infer"),
	))
	require.NoError(t, err)
	results := must.M1(g.Run("infer", nil))
	assert.Equal(t, []float32{-2, -3}, results["n"].Value())
}

func TestShapeMismatchNamesBothInputs(t *testing.T) {
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("a", tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)),
		dsl.Constant("b", tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 3, 2)),
		dsl.Addition("sum").WithInputs("a", "b").TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shape mismatch")
	assert.Contains(t, err.Error(), "a")
	assert.Contains(t, err.Error(), "b")
}

func TestShapeMismatchLabelsPreviousNode(t *testing.T) {
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("b", tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2)),
		dsl.Constant("", tensors.FromFlatDataAndDimensions([]float32{1, 2, 3}, 3)),
		dsl.Addition("sum").WithInputs("b").TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "previous node")
}

func TestEqualShapeAdditionSucceeds(t *testing.T) {
	g, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("a", tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 2, 3)),
		dsl.Constant("b", tensors.FromFlatDataAndDimensions([]float32{6, 5, 4, 3, 2, 1}, 2, 3)),
		dsl.Addition("sum").WithInputs("a", "b").TargetForModes("infer"),
	))
	require.NoError(t, err)
	results := must.M1(g.Run("infer", nil))
	assert.Equal(t, [][]float32{{7, 7, 7}, {7, 7, 7}}, results["sum"].Value())
}

func TestMultiOutputBindingAndTargetEligibility(t *testing.T) {
	g, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("c", tensors.FromFlatDataAndDimensions([]float32{3, 1, 4, 1, 5}, 5)),
		dsl.TopK("k", 2).TargetForModes("infer"),
		dsl.Negative("negvals").WithInput("k_values").TargetForModes("infer"),
		dsl.Absolute("indices").WithInput("k_indices").TargetForModes("infer"),
	))
	require.NoError(t, err)

	// Only the eligible subset (_values) of the target-marked TopK appears.
	names := must.M1(g.TargetNames("infer"))
	assert.Equal(t, []string{"k_values", "negvals", "indices"}, names)

	results := must.M1(g.Run("infer", nil))
	assert.Equal(t, []float32{5, 4}, results["k_values"].Value())
	assert.Equal(t, []float32{-5, -4}, results["negvals"].Value())
	assert.Equal(t, []int64{4, 2}, results["indices"].Value())
}

func TestDuplicateNameFails(t *testing.T) {
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("c", tensors.FromFlatDataAndDimensions([]float32{1}, 1)),
		dsl.Negative("c").TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate tensor name")
}

func TestDuplicateLearningNodeFails(t *testing.T) {
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("loss", tensors.FromFlatDataAndDimensions([]float32{1}, 1)),
		dsl.Negative("n").WithInput("loss").TargetForModes("infer"),
		dsl.Learning("loss"),
		dsl.Learning("loss"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than one Learning node")
}

func TestDeferredBuildErrors(t *testing.T) {
	// NaN propagation is only supported by Maximum/Minimum.
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("a", tensors.FromFlatDataAndDimensions([]float32{1}, 1)),
		dsl.Constant("b", tensors.FromFlatDataAndDimensions([]float32{2}, 1)),
		dsl.Addition("sum").WithInputs("a", "b").PropagateNaN().TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not support NaN propagation")

	// ArgMax requires a single axis.
	_, err = dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("a", tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 2, 2)),
		dsl.ArgMax("am", 0, 1).TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one axis")
}

func TestNodesFlattening(t *testing.T) {
	block := []dsl.Node{
		dsl.Constant("a", tensors.FromFlatDataAndDimensions([]float32{1}, 1)),
		dsl.Negative("n").WithInput("a"),
	}
	flat := dsl.Nodes(
		block,
		dsl.Absolute("out").WithInput("n").TargetForModes("infer"),
		nil,
	)
	require.Len(t, flat, 3)
	g, err := dsl.NewGraph(testBackend(t), flat)
	require.NoError(t, err)
	results := must.M1(g.Run("infer", nil))
	assert.Equal(t, []float32{1}, results["out"].Value())
}

func TestNodesRejectsForeignValues(t *testing.T) {
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes("not a node"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a Node")
}

func TestPlaceHolderScenario(t *testing.T) {
	g, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.PlaceHolder("x", shapes.Make(dtypes.Float32, 4)),
		dsl.Variable("w").WithShape(shapes.Make(dtypes.Float32, 4)).ConstantFill(2),
		dsl.Multiplication("y").WithInputs("x", "w").TargetForModes("infer"),
	))
	require.NoError(t, err)
	results := must.M1(g.Run("infer", map[string]*tensors.Tensor{
		"x": tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 4),
	}))
	assert.Equal(t, []float32{2, 4, 6, 8}, results["y"].Value())
}

func TestRunValidatesFeeds(t *testing.T) {
	g, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.PlaceHolder("x", shapes.Make(dtypes.Float32, 2)),
		dsl.Negative("y").TargetForModes("infer"),
	))
	require.NoError(t, err)

	_, err = g.Run("infer", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `requires a value for placeholder "x"`)

	_, err = g.Run("infer", map[string]*tensors.Tensor{
		"x": tensors.FromFlatDataAndDimensions([]float32{1, 2, 3}, 3),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects shape")

	_, err = g.Run("nothing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no registered targets")
}

func TestBatchDimensionInsertion(t *testing.T) {
	g, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.PlaceHolder("x", shapes.Make(dtypes.Float32, 2)),
		dsl.Negative("y").TargetForModes("infer"),
	), dsl.WithBatchSize(3))
	require.NoError(t, err)
	results := must.M1(g.Run("infer", map[string]*tensors.Tensor{
		"x": tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4, 5, 6}, 3, 2),
	}))
	assert.Equal(t, [][]float32{{-1, -2}, {-3, -4}, {-5, -6}}, results["y"].Value())
}

func TestBatchExemptPlaceHolder(t *testing.T) {
	g, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.PlaceHolder("x", shapes.Make(dtypes.Float32, 2)).BatchExempt(),
		dsl.Negative("y").TargetForModes("infer"),
	), dsl.WithBatchSize(3))
	require.NoError(t, err)
	results := must.M1(g.Run("infer", map[string]*tensors.Tensor{
		"x": tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2),
	}))
	assert.Equal(t, []float32{-1, -2}, results["y"].Value())
}

func TestPlaceHolderModeRestriction(t *testing.T) {
	g, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.PlaceHolder("x", shapes.Make(dtypes.Float32, 2)).ForModes("train"),
		dsl.Negative("y").TargetForModes("infer"),
	))
	require.NoError(t, err)
	_, err = g.Run("infer", map[string]*tensors.Tensor{
		"x": tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `not declared for mode "infer"`)
	assert.Equal(t, []string{"x"}, g.FeedNames("train"))
}
