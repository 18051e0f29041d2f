package dsl_test

import (
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinCoble/graphdsl/dsl"
	"github.com/KevinCoble/graphdsl/types/tensors"
)

func TestSubGraphPrefixing(t *testing.T) {
	definition := dsl.NewSubGraphDefinition(dsl.Nodes(
		dsl.SubGraphPlaceHolder("in"),
		dsl.Negative("inner"),
	))
	g, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("x", tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2)),
		dsl.SubGraph("S", definition).WithInput("in", "x"),
		dsl.Absolute("out").WithInput("S_inner").TargetForModes("infer"),
	))
	require.NoError(t, err)
	results := must.M1(g.Run("infer", nil))
	assert.Equal(t, []float32{1, 2}, results["out"].Value())
}

func TestNestedSubGraphPrefixing(t *testing.T) {
	innerDef := dsl.NewSubGraphDefinition(dsl.Nodes(
		dsl.SubGraphPlaceHolder("in"),
		dsl.Negative("leaf"),
	))
	outerDef := dsl.NewSubGraphDefinition(dsl.Nodes(
		dsl.SubGraphPlaceHolder("src"),
		dsl.SubGraph("Inner", innerDef).WithInput("in", "src"),
	))
	g, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("x", tensors.FromFlatDataAndDimensions([]float32{3}, 1)),
		dsl.SubGraph("Outer", outerDef).WithInput("src", "x"),
		dsl.Negative("out").WithInput("Outer_Inner_leaf").TargetForModes("infer"),
	))
	require.NoError(t, err)
	results := must.M1(g.Run("infer", nil))
	assert.Equal(t, []float32{3}, results["out"].Value())
}

// The same definition instantiated twice produces independently named tensors, and
// per-instance data tensors flow through the data-tensor map.
func TestSubGraphInstancesWithDataTensors(t *testing.T) {
	definition := dsl.NewSubGraphDefinition(dsl.Nodes(
		dsl.SubGraphPlaceHolder("in"),
		dsl.ConstantFromData("scale", "scaleData"),
		dsl.Multiplication("scaled").WithInputs("in", "scale"),
	))
	g, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("x", tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2)),
		dsl.SubGraph("A", definition).
			WithInput("in", "x").
			WithDataTensor("scaleData", tensors.FromFlatDataAndDimensions([]float32{10, 10}, 2)),
		dsl.SubGraph("B", definition).
			WithInput("in", "x").
			WithDataTensor("scaleData", tensors.FromFlatDataAndDimensions([]float32{100, 100}, 2)),
		dsl.Addition("out").WithInputs("A_scaled", "B_scaled").TargetForModes("infer"),
	))
	require.NoError(t, err)
	results := must.M1(g.Run("infer", nil))
	assert.Equal(t, []float32{110, 220}, results["out"].Value())
}

func TestSubGraphPlaceHolderMissingFromInputMap(t *testing.T) {
	definition := dsl.NewSubGraphDefinition(dsl.Nodes(
		dsl.SubGraphPlaceHolder("in"),
		dsl.Negative("inner"),
	))
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("x", tensors.FromFlatDataAndDimensions([]float32{1}, 1)),
		dsl.SubGraph("S", definition),
		dsl.Negative("out").WithInputs("S_inner").TargetForModes("infer"),
		dsl.Absolute("keep").WithInput("x").TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing from the active input map`)
}

func TestMissingDataTensorReference(t *testing.T) {
	definition := dsl.NewSubGraphDefinition(dsl.Nodes(
		dsl.ConstantFromData("scale", "scaleData"),
	))
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.SubGraph("S", definition),
		dsl.Negative("out").WithInput("S_scale").TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing from the active data-tensor map`)
}

// The implicit-previous-output cursor does not cross a sub-graph boundary.
func TestCursorInvalidAfterSubGraph(t *testing.T) {
	definition := dsl.NewSubGraphDefinition(dsl.Nodes(
		dsl.SubGraphPlaceHolder("in"),
		dsl.Negative("inner"),
	))
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("x", tensors.FromFlatDataAndDimensions([]float32{1}, 1)),
		dsl.SubGraph("S", definition).WithInput("in", "x"),
		dsl.Negative("out").TargetForModes("infer"), // implicit input at the boundary
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no previous output")
}

// Nor does the outer cursor leak into the sub-graph's first node.
func TestCursorDoesNotEnterSubGraph(t *testing.T) {
	definition := dsl.NewSubGraphDefinition(dsl.Nodes(
		dsl.Negative("inner"), // implicit input, but there is no previous output in scope
	))
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("x", tensors.FromFlatDataAndDimensions([]float32{1}, 1)),
		dsl.Absolute("keep").WithInput("x").TargetForModes("infer"),
		dsl.SubGraph("S", definition),
		dsl.Negative("out").WithInput("S_inner").TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no previous output")
}

func TestSubGraphCannotBeTarget(t *testing.T) {
	definition := dsl.NewSubGraphDefinition(dsl.Nodes(
		dsl.SubGraphPlaceHolder("in"),
		dsl.Negative("inner"),
	))
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("x", tensors.FromFlatDataAndDimensions([]float32{1}, 1)),
		dsl.SubGraph("S", definition).WithInput("in", "x").TargetForModes("infer"),
		dsl.Negative("out").WithInput("S_inner").TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be a target")
}

// The referenced rule is delegated into the inner node list: an inner node that
// nothing consumes fails construction.
func TestSubGraphInnerNodeMustBeReferenced(t *testing.T) {
	definition := dsl.NewSubGraphDefinition(dsl.Nodes(
		dsl.SubGraphPlaceHolder("in"),
		dsl.Negative("inner"),
		dsl.Constant("unrelated", tensors.FromFlatDataAndDimensions([]float32{1}, 1)),
	))
	_, err := dsl.NewGraph(testBackend(t), dsl.Nodes(
		dsl.Constant("x", tensors.FromFlatDataAndDimensions([]float32{1}, 1)),
		dsl.SubGraph("S", definition).WithInput("in", "x"),
		dsl.Negative("out").WithInput("S_inner").TargetForModes("infer"),
	))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unrelated")
	assert.Contains(t, err.Error(), "neither referenced")
}
