package simplego

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinCoble/graphdsl/backends"
	"github.com/KevinCoble/graphdsl/types/shapes"
	"github.com/KevinCoble/graphdsl/types/tensors"
)

func newTestBuilder(t *testing.T) *Builder {
	backend, err := New("")
	require.NoError(t, err)
	return backend.Builder(t.Name()).(*Builder)
}

// run compiles the given outputs and executes with inputs, failing the test on error.
func run(t *testing.T, b *Builder, outputs []backends.Op, inputs ...*tensors.Tensor) []*tensors.Tensor {
	exec, err := b.Compile(outputs...)
	require.NoError(t, err)
	results, err := exec.Execute(inputs...)
	require.NoError(t, err)
	return results
}

func TestConstantAndUnary(t *testing.T) {
	b := newTestBuilder(t)
	c, err := b.Constant([]float64{1, -4, 9, -16}, 2, 2)
	require.NoError(t, err)
	abs, err := b.Abs(c)
	require.NoError(t, err)
	neg, err := b.Neg(c)
	require.NoError(t, err)
	results := run(t, b, []backends.Op{abs, neg})
	assert.Equal(t, [][]float64{{1, 4}, {9, 16}}, results[0].Value())
	assert.Equal(t, [][]float64{{-1, 4}, {-9, 16}}, results[1].Value())
}

func TestMathFunctions(t *testing.T) {
	b := newTestBuilder(t)
	c, err := b.Constant([]float32{0, 1, 4}, 3)
	require.NoError(t, err)
	exp, err := b.Exp(c)
	require.NoError(t, err)
	sqrt, err := b.Sqrt(c)
	require.NoError(t, err)
	logistic, err := b.Logistic(c)
	require.NoError(t, err)
	results := run(t, b, []backends.Op{exp, sqrt, logistic})
	expected := tensors.FromFlatDataAndDimensions([]float32{1, 2.718281828, 54.598150033}, 3)
	assert.True(t, results[0].InDelta(expected, 1e-4))
	assert.True(t, results[1].InDelta(tensors.FromFlatDataAndDimensions([]float32{0, 1, 2}, 3), 1e-6))
	assert.True(t, results[2].InDelta(tensors.FromFlatDataAndDimensions([]float32{0.5, 0.731058579, 0.982013790}, 3), 1e-6))
}

func TestBinaryWithScalarBroadcast(t *testing.T) {
	b := newTestBuilder(t)
	x, err := b.Parameter("x", shapes.Make(dtypes.Float32, 2, 2))
	require.NoError(t, err)
	two, err := b.Constant([]float32{2})
	require.NoError(t, err)
	twoScalar, err := b.Reshape(two)
	require.NoError(t, err)
	sum, err := b.Add(x, twoScalar)
	require.NoError(t, err)
	quotient, err := b.Div(twoScalar, x)
	require.NoError(t, err)
	input := tensors.FromFlatDataAndDimensions([]float32{1, 2, 4, 8}, 2, 2)
	results := run(t, b, []backends.Op{sum, quotient}, input)
	assert.Equal(t, [][]float32{{3, 4}, {6, 10}}, results[0].Value())
	assert.Equal(t, [][]float32{{2, 1}, {0.5, 0.25}}, results[1].Value())
}

func TestBinaryShapeMismatch(t *testing.T) {
	b := newTestBuilder(t)
	x, err := b.Parameter("x", shapes.Make(dtypes.Float32, 2, 2))
	require.NoError(t, err)
	y, err := b.Parameter("y", shapes.Make(dtypes.Float32, 3))
	require.NoError(t, err)
	_, err = b.Add(x, y)
	require.Error(t, err)

	yFloat64, err := b.Parameter("y64", shapes.Make(dtypes.Float64, 2, 2))
	require.NoError(t, err)
	_, err = b.Mul(x, yFloat64)
	require.Error(t, err)
}

func TestComparisons(t *testing.T) {
	b := newTestBuilder(t)
	x, err := b.Constant([]int32{1, 5, 3}, 3)
	require.NoError(t, err)
	y, err := b.Constant([]int32{2, 5, 1}, 3)
	require.NoError(t, err)
	eq, err := b.Equal(x, y)
	require.NoError(t, err)
	gt, err := b.GreaterThan(x, y)
	require.NoError(t, err)
	lt, err := b.LessThan(x, y)
	require.NoError(t, err)
	results := run(t, b, []backends.Op{eq, gt, lt})
	assert.Equal(t, []bool{false, true, false}, results[0].Value())
	assert.Equal(t, []bool{false, false, true}, results[1].Value())
	assert.Equal(t, []bool{true, false, false}, results[2].Value())
}

func TestDot(t *testing.T) {
	b := newTestBuilder(t)
	matrix, err := b.Constant([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	vector, err := b.Constant([]float32{1, 0, -1}, 3)
	require.NoError(t, err)
	other, err := b.Constant([]float32{1, 1, 0, 1, 1, 0}, 3, 2)
	require.NoError(t, err)

	matMat, err := b.Dot(matrix, other)
	require.NoError(t, err)
	matVec, err := b.Dot(matrix, vector)
	require.NoError(t, err)
	vecMat, err := b.Dot(vector, other)
	require.NoError(t, err)
	results := run(t, b, []backends.Op{matMat, matVec, vecMat})
	assert.Equal(t, [][]float32{{4, 3}, {10, 9}}, results[0].Value())
	assert.Equal(t, []float32{-2, -2}, results[1].Value())
	assert.Equal(t, []float32{0, 1}, results[2].Value())
}

func TestDotRankValidation(t *testing.T) {
	b := newTestBuilder(t)
	cube, err := b.Constant([]float32{1, 2, 3, 4, 5, 6, 7, 8}, 2, 2, 2)
	require.NoError(t, err)
	vector, err := b.Constant([]float32{1, 2}, 2)
	require.NoError(t, err)
	_, err = b.Dot(cube, vector)
	require.Error(t, err)

	mismatched, err := b.Constant([]float32{1, 2, 3}, 3)
	require.NoError(t, err)
	matrix, err := b.Constant([]float32{1, 2, 3, 4}, 2, 2)
	require.NoError(t, err)
	_, err = b.Dot(matrix, mismatched)
	require.Error(t, err)
}

func TestWhereAndClamp(t *testing.T) {
	b := newTestBuilder(t)
	x, err := b.Constant([]float32{-2, -0.5, 0.5, 2}, 4)
	require.NoError(t, err)
	zero, err := b.Constant([]float32{0})
	require.NoError(t, err)
	zeroScalar, err := b.Reshape(zero)
	require.NoError(t, err)
	one, err := b.Constant([]float32{1})
	require.NoError(t, err)
	oneScalar, err := b.Reshape(one)
	require.NoError(t, err)

	positive, err := b.GreaterThan(x, zeroScalar)
	require.NoError(t, err)
	selected, err := b.Where(positive, x, zeroScalar)
	require.NoError(t, err)
	clamped, err := b.Clamp(zeroScalar, x, oneScalar)
	require.NoError(t, err)
	results := run(t, b, []backends.Op{selected, clamped})
	assert.Equal(t, []float32{0, 0, 0.5, 2}, results[0].Value())
	assert.Equal(t, []float32{0, 0, 0.5, 1}, results[1].Value())
}

func TestIota(t *testing.T) {
	b := newTestBuilder(t)
	rows, err := b.Iota(shapes.Make(dtypes.Int64, 2, 3), 0)
	require.NoError(t, err)
	cols, err := b.Iota(shapes.Make(dtypes.Int64, 2, 3), 1)
	require.NoError(t, err)
	results := run(t, b, []backends.Op{rows, cols})
	assert.Equal(t, [][]int64{{0, 0, 0}, {1, 1, 1}}, results[0].Value())
	assert.Equal(t, [][]int64{{0, 1, 2}, {0, 1, 2}}, results[1].Value())
}

func TestShapeOps(t *testing.T) {
	b := newTestBuilder(t)
	x, err := b.Constant([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	reshaped, err := b.Reshape(x, 3, 2)
	require.NoError(t, err)
	transposed, err := b.Transpose(x, 1, 0)
	require.NoError(t, err)
	row, err := b.Constant([]float32{10, 20, 30}, 1, 3)
	require.NoError(t, err)
	broadcast, err := b.Broadcast(row, 2, 3)
	require.NoError(t, err)
	results := run(t, b, []backends.Op{reshaped, transposed, broadcast})
	assert.Equal(t, [][]float32{{1, 2}, {3, 4}, {5, 6}}, results[0].Value())
	assert.Equal(t, [][]float32{{1, 4}, {2, 5}, {3, 6}}, results[1].Value())
	assert.Equal(t, [][]float32{{10, 20, 30}, {10, 20, 30}}, results[2].Value())
}

func TestReductions(t *testing.T) {
	b := newTestBuilder(t)
	x, err := b.Constant([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	require.NoError(t, err)
	total, err := b.ReduceSum(x)
	require.NoError(t, err)
	perColumn, err := b.ReduceSum(x, 0)
	require.NoError(t, err)
	perRow, err := b.ReduceMax(x, -1)
	require.NoError(t, err)
	results := run(t, b, []backends.Op{total, perColumn, perRow})
	assert.Equal(t, float32(21), results[0].Value())
	assert.Equal(t, []float32{5, 7, 9}, results[1].Value())
	assert.Equal(t, []float32{3, 6}, results[2].Value())
}

func TestArgMaxAndTopK(t *testing.T) {
	b := newTestBuilder(t)
	x, err := b.Constant([]float32{3, 1, 4, 1, 5, 9, 2, 6}, 2, 4)
	require.NoError(t, err)
	argMax, err := b.ArgMax(x, -1, dtypes.Int32)
	require.NoError(t, err)
	values, indices, err := b.TopK(x, 2)
	require.NoError(t, err)
	results := run(t, b, []backends.Op{argMax, values, indices})
	assert.Equal(t, []int32{2, 1}, results[0].Value())
	assert.Equal(t, [][]float32{{4, 3}, {9, 6}}, results[1].Value())
	assert.Equal(t, [][]int64{{2, 0}, {1, 3}}, results[2].Value())
}

func TestTopKTiesPickLowerIndex(t *testing.T) {
	b := newTestBuilder(t)
	x, err := b.Constant([]float32{7, 7, 7, 1}, 4)
	require.NoError(t, err)
	_, indices, err := b.TopK(x, 2)
	require.NoError(t, err)
	results := run(t, b, []backends.Op{indices})
	assert.Equal(t, []int64{0, 1}, results[0].Value())
}

func TestExecuteValidatesInputs(t *testing.T) {
	b := newTestBuilder(t)
	x, err := b.Parameter("x", shapes.Make(dtypes.Float32, 2))
	require.NoError(t, err)
	exec, err := b.Compile(x)
	require.NoError(t, err)

	_, err = exec.Execute()
	require.Error(t, err)
	wrong := tensors.FromFlatDataAndDimensions([]float32{1, 2, 3}, 3)
	_, err = exec.Execute(wrong)
	require.Error(t, err)
}

// Compiling twice from the same builder must work, and each executable only requires
// the parameters reachable from its own outputs.
func TestRecompileWithDifferentOutputs(t *testing.T) {
	b := newTestBuilder(t)
	x, err := b.Parameter("x", shapes.Make(dtypes.Float32, 2))
	require.NoError(t, err)
	y, err := b.Parameter("y", shapes.Make(dtypes.Float32, 2))
	require.NoError(t, err)
	sum, err := b.Add(x, y)
	require.NoError(t, err)

	execBoth, err := b.Compile(sum)
	require.NoError(t, err)
	names, _ := execBoth.Inputs()
	assert.Equal(t, []string{"x", "y"}, names)

	// After the first Compile no new nodes may be added.
	_, err = b.Neg(x)
	require.Error(t, err)

	execX, err := b.Compile(x)
	require.NoError(t, err)
	names, _ = execX.Inputs()
	assert.Equal(t, []string{"x"}, names)

	results, err := execX.Execute(tensors.FromFlatDataAndDimensions([]float32{3, 4}, 2))
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, results[0].Value())

	results, err = execBoth.Execute(
		tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2),
		tensors.FromFlatDataAndDimensions([]float32{10, 20}, 2))
	require.NoError(t, err)
	assert.Equal(t, []float32{11, 22}, results[0].Value())
}

func TestBackendRegistration(t *testing.T) {
	backend, err := backends.NewWithConfig(BackendName)
	require.NoError(t, err)
	assert.Equal(t, BackendName, backend.Name())
}
