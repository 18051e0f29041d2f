package simplego

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/gomlx/gopjrt/dtypes"

	"github.com/KevinCoble/graphdsl/backends"
	"github.com/KevinCoble/graphdsl/types/tensors"
	"github.com/KevinCoble/graphdsl/types/xslices"
)

// number are the numeric Go types the simplego backend executes.
type number interface {
	~int32 | ~int64 | ~float32 | ~float64
}

// flatOf returns the flat data of a tensor as a []T. The dtype was validated at
// building time.
func flatOf[T any](t *tensors.Tensor) (flat []T) {
	t.ConstFlatData(func(f any) { flat = f.([]T) })
	return
}

// mutableFlatOf returns the mutable flat data of a tensor as a []T.
func mutableFlatOf[T any](t *tensors.Tensor) (flat []T) {
	t.MutableFlatData(func(f any) { flat = f.([]T) })
	return
}

// strides returns the row-major strides for the given dimensions.
func strides(dims []int) []int {
	s := make([]int, len(dims))
	stride := 1
	for axis := len(dims) - 1; axis >= 0; axis-- {
		s[axis] = stride
		stride *= dims[axis]
	}
	return s
}

// nextIndex increments coords as an odometer over dims; it returns false after the
// last position.
func nextIndex(coords, dims []int) bool {
	for axis := len(dims) - 1; axis >= 0; axis-- {
		coords[axis]++
		if coords[axis] < dims[axis] {
			return true
		}
		coords[axis] = 0
	}
	return false
}

// evalNode evaluates one node, with the results of its inputs already available.
func evalNode(node *Node, results []*tensors.Tensor) (*tensors.Tensor, error) {
	switch node.opType {
	case backends.OpTypeConstant:
		return node.data, nil
	case backends.OpTypeIota:
		return evalIota(node)
	case backends.OpTypeAbs, backends.OpTypeNeg, backends.OpTypeExp, backends.OpTypeLog,
		backends.OpTypeSqrt, backends.OpTypeTanh, backends.OpTypeLogistic:
		return evalUnary(node, results[node.inputs[0].id])
	case backends.OpTypeAdd, backends.OpTypeSub, backends.OpTypeMul, backends.OpTypeDiv,
		backends.OpTypeMax, backends.OpTypeMin:
		return evalBinary(node, results[node.inputs[0].id], results[node.inputs[1].id])
	case backends.OpTypeEqual, backends.OpTypeGreaterThan, backends.OpTypeLessThan:
		return evalCompare(node, results[node.inputs[0].id], results[node.inputs[1].id])
	case backends.OpTypeDot:
		return evalDot(node, results[node.inputs[0].id], results[node.inputs[1].id])
	case backends.OpTypeWhere:
		return evalWhere(node, results[node.inputs[0].id], results[node.inputs[1].id], results[node.inputs[2].id])
	case backends.OpTypeClamp:
		return evalClamp(node, results[node.inputs[0].id], results[node.inputs[1].id], results[node.inputs[2].id])
	case backends.OpTypeReshape:
		return evalReshape(node, results[node.inputs[0].id])
	case backends.OpTypeTranspose:
		return evalTranspose(node, results[node.inputs[0].id])
	case backends.OpTypeBroadcast:
		return evalBroadcast(node, results[node.inputs[0].id])
	case backends.OpTypeReduceSum, backends.OpTypeReduceMax:
		return evalReduce(node, results[node.inputs[0].id])
	case backends.OpTypeArgMax:
		return evalArgMax(node, results[node.inputs[0].id])
	case backends.OpTypeTopK:
		return evalTopK(node, results[node.inputs[0].id])
	}
	return nil, errors.Errorf("op %s is not implemented by the simplego executor", node.opType)
}

func evalIota(node *Node) (*tensors.Tensor, error) {
	out := tensors.FromShape(node.shape)
	dims := node.shape.Dimensions
	fill := func(set func(flatIdx, coord int)) {
		coords := make([]int, len(dims))
		flatIdx := 0
		for {
			set(flatIdx, coords[node.intArg])
			flatIdx++
			if !nextIndex(coords, dims) {
				break
			}
		}
	}
	switch node.shape.DType {
	case dtypes.Int32:
		flat := mutableFlatOf[int32](out)
		fill(func(i, c int) { flat[i] = int32(c) })
	case dtypes.Int64:
		flat := mutableFlatOf[int64](out)
		fill(func(i, c int) { flat[i] = int64(c) })
	case dtypes.Float32:
		flat := mutableFlatOf[float32](out)
		fill(func(i, c int) { flat[i] = float32(c) })
	case dtypes.Float64:
		flat := mutableFlatOf[float64](out)
		fill(func(i, c int) { flat[i] = float64(c) })
	default:
		return nil, errors.Errorf("Iota: unsupported data type %s", node.shape.DType)
	}
	return out, nil
}

func unaryKernel[T number](op backends.OpType, in, out []T) error {
	switch op {
	case backends.OpTypeAbs:
		for ii, v := range in {
			if v < 0 {
				v = -v
			}
			out[ii] = v
		}
	case backends.OpTypeNeg:
		for ii, v := range in {
			out[ii] = -v
		}
	case backends.OpTypeExp:
		for ii, v := range in {
			out[ii] = T(math.Exp(float64(v)))
		}
	case backends.OpTypeLog:
		for ii, v := range in {
			out[ii] = T(math.Log(float64(v)))
		}
	case backends.OpTypeSqrt:
		for ii, v := range in {
			out[ii] = T(math.Sqrt(float64(v)))
		}
	case backends.OpTypeTanh:
		for ii, v := range in {
			out[ii] = T(math.Tanh(float64(v)))
		}
	case backends.OpTypeLogistic:
		for ii, v := range in {
			out[ii] = T(1.0 / (1.0 + math.Exp(-float64(v))))
		}
	default:
		return errors.Errorf("unary op %s not implemented", op)
	}
	return nil
}

func evalUnary(node *Node, input *tensors.Tensor) (*tensors.Tensor, error) {
	out := tensors.FromShape(node.shape)
	var err error
	switch node.shape.DType {
	case dtypes.Int32:
		err = unaryKernel(node.opType, flatOf[int32](input), mutableFlatOf[int32](out))
	case dtypes.Int64:
		err = unaryKernel(node.opType, flatOf[int64](input), mutableFlatOf[int64](out))
	case dtypes.Float32:
		err = unaryKernel(node.opType, flatOf[float32](input), mutableFlatOf[float32](out))
	case dtypes.Float64:
		err = unaryKernel(node.opType, flatOf[float64](input), mutableFlatOf[float64](out))
	default:
		err = errors.Errorf("unary op %s: unsupported data type %s", node.opType, node.shape.DType)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func binaryKernel[T number](op backends.OpType, a, b []T, aScalar, bScalar bool, out []T) error {
	at := func(flat []T, ii int, scalar bool) T {
		if scalar {
			return flat[0]
		}
		return flat[ii]
	}
	var fn func(x, y T) T
	switch op {
	case backends.OpTypeAdd:
		fn = func(x, y T) T { return x + y }
	case backends.OpTypeSub:
		fn = func(x, y T) T { return x - y }
	case backends.OpTypeMul:
		fn = func(x, y T) T { return x * y }
	case backends.OpTypeDiv:
		fn = func(x, y T) T { return x / y }
	case backends.OpTypeMax:
		fn = func(x, y T) T {
			if x >= y {
				return x
			}
			return y
		}
	case backends.OpTypeMin:
		fn = func(x, y T) T {
			if x <= y {
				return x
			}
			return y
		}
	default:
		return errors.Errorf("binary op %s not implemented", op)
	}
	for ii := range out {
		out[ii] = fn(at(a, ii, aScalar), at(b, ii, bScalar))
	}
	return nil
}

func evalBinary(node *Node, lhs, rhs *tensors.Tensor) (*tensors.Tensor, error) {
	out := tensors.FromShape(node.shape)
	aScalar := lhs.Shape().IsScalar() && !node.shape.IsScalar()
	bScalar := rhs.Shape().IsScalar() && !node.shape.IsScalar()
	var err error
	switch node.shape.DType {
	case dtypes.Int32:
		err = binaryKernel(node.opType, flatOf[int32](lhs), flatOf[int32](rhs), aScalar, bScalar, mutableFlatOf[int32](out))
	case dtypes.Int64:
		err = binaryKernel(node.opType, flatOf[int64](lhs), flatOf[int64](rhs), aScalar, bScalar, mutableFlatOf[int64](out))
	case dtypes.Float32:
		err = binaryKernel(node.opType, flatOf[float32](lhs), flatOf[float32](rhs), aScalar, bScalar, mutableFlatOf[float32](out))
	case dtypes.Float64:
		err = binaryKernel(node.opType, flatOf[float64](lhs), flatOf[float64](rhs), aScalar, bScalar, mutableFlatOf[float64](out))
	default:
		err = errors.Errorf("binary op %s: unsupported data type %s", node.opType, node.shape.DType)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func compareKernel[T number](op backends.OpType, a, b []T, aScalar, bScalar bool, out []bool) error {
	at := func(flat []T, ii int, scalar bool) T {
		if scalar {
			return flat[0]
		}
		return flat[ii]
	}
	var fn func(x, y T) bool
	switch op {
	case backends.OpTypeEqual:
		fn = func(x, y T) bool { return x == y }
	case backends.OpTypeGreaterThan:
		fn = func(x, y T) bool { return x > y }
	case backends.OpTypeLessThan:
		fn = func(x, y T) bool { return x < y }
	default:
		return errors.Errorf("comparison op %s not implemented", op)
	}
	for ii := range out {
		out[ii] = fn(at(a, ii, aScalar), at(b, ii, bScalar))
	}
	return nil
}

func evalCompare(node *Node, lhs, rhs *tensors.Tensor) (*tensors.Tensor, error) {
	out := tensors.FromShape(node.shape)
	outFlat := mutableFlatOf[bool](out)
	aScalar := lhs.Shape().IsScalar() && !node.shape.IsScalar()
	bScalar := rhs.Shape().IsScalar() && !node.shape.IsScalar()
	var err error
	switch lhs.DType() {
	case dtypes.Int32:
		err = compareKernel(node.opType, flatOf[int32](lhs), flatOf[int32](rhs), aScalar, bScalar, outFlat)
	case dtypes.Int64:
		err = compareKernel(node.opType, flatOf[int64](lhs), flatOf[int64](rhs), aScalar, bScalar, outFlat)
	case dtypes.Float32:
		err = compareKernel(node.opType, flatOf[float32](lhs), flatOf[float32](rhs), aScalar, bScalar, outFlat)
	case dtypes.Float64:
		err = compareKernel(node.opType, flatOf[float64](lhs), flatOf[float64](rhs), aScalar, bScalar, outFlat)
	default:
		err = errors.Errorf("comparison op %s: unsupported data type %s", node.opType, lhs.DType())
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// dotKernel computes out[m,n] = sum_k a[m,k]*b[k,n]. Rank 1 operands are treated as
// [1,k] or [k,1] respectively, matching the builder's output shape.
func dotKernel[T number](a, b, out []T, m, k, n int) {
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var acc T
			for kk := 0; kk < k; kk++ {
				acc += a[i*k+kk] * b[kk*n+j]
			}
			out[i*n+j] = acc
		}
	}
}

func evalDot(node *Node, lhs, rhs *tensors.Tensor) (*tensors.Tensor, error) {
	out := tensors.FromShape(node.shape)
	lShape, rShape := lhs.Shape(), rhs.Shape()
	var m, k, n int
	if lShape.Rank() == 2 {
		m, k = lShape.Dim(0), lShape.Dim(1)
	} else {
		m, k = 1, lShape.Dim(0)
	}
	if rShape.Rank() == 2 {
		n = rShape.Dim(1)
	} else {
		n = 1
	}
	switch node.shape.DType {
	case dtypes.Int32:
		dotKernel(flatOf[int32](lhs), flatOf[int32](rhs), mutableFlatOf[int32](out), m, k, n)
	case dtypes.Int64:
		dotKernel(flatOf[int64](lhs), flatOf[int64](rhs), mutableFlatOf[int64](out), m, k, n)
	case dtypes.Float32:
		dotKernel(flatOf[float32](lhs), flatOf[float32](rhs), mutableFlatOf[float32](out), m, k, n)
	case dtypes.Float64:
		dotKernel(flatOf[float64](lhs), flatOf[float64](rhs), mutableFlatOf[float64](out), m, k, n)
	default:
		return nil, errors.Errorf("Dot: unsupported data type %s", node.shape.DType)
	}
	return out, nil
}

func whereKernel[T any](cond []bool, condScalar bool, t []T, tScalar bool, f []T, fScalar bool, out []T) {
	for ii := range out {
		c := cond[0]
		if !condScalar {
			c = cond[ii]
		}
		if c {
			if tScalar {
				out[ii] = t[0]
			} else {
				out[ii] = t[ii]
			}
		} else {
			if fScalar {
				out[ii] = f[0]
			} else {
				out[ii] = f[ii]
			}
		}
	}
}

func evalWhere(node *Node, cond, onTrue, onFalse *tensors.Tensor) (*tensors.Tensor, error) {
	out := tensors.FromShape(node.shape)
	condScalar := cond.Shape().IsScalar() && !node.shape.IsScalar()
	tScalar := onTrue.Shape().IsScalar() && !node.shape.IsScalar()
	fScalar := onFalse.Shape().IsScalar() && !node.shape.IsScalar()
	condFlat := flatOf[bool](cond)
	switch node.shape.DType {
	case dtypes.Bool:
		whereKernel(condFlat, condScalar, flatOf[bool](onTrue), tScalar, flatOf[bool](onFalse), fScalar, mutableFlatOf[bool](out))
	case dtypes.Int32:
		whereKernel(condFlat, condScalar, flatOf[int32](onTrue), tScalar, flatOf[int32](onFalse), fScalar, mutableFlatOf[int32](out))
	case dtypes.Int64:
		whereKernel(condFlat, condScalar, flatOf[int64](onTrue), tScalar, flatOf[int64](onFalse), fScalar, mutableFlatOf[int64](out))
	case dtypes.Float32:
		whereKernel(condFlat, condScalar, flatOf[float32](onTrue), tScalar, flatOf[float32](onFalse), fScalar, mutableFlatOf[float32](out))
	case dtypes.Float64:
		whereKernel(condFlat, condScalar, flatOf[float64](onTrue), tScalar, flatOf[float64](onFalse), fScalar, mutableFlatOf[float64](out))
	default:
		return nil, errors.Errorf("Where: unsupported data type %s", node.shape.DType)
	}
	return out, nil
}

func clampKernel[T number](lo []T, loScalar bool, x []T, hi []T, hiScalar bool, out []T) {
	for ii := range out {
		l, h := lo[0], hi[0]
		if !loScalar {
			l = lo[ii]
		}
		if !hiScalar {
			h = hi[ii]
		}
		v := x[ii]
		if v < l {
			v = l
		}
		if v > h {
			v = h
		}
		out[ii] = v
	}
}

func evalClamp(node *Node, lo, x, hi *tensors.Tensor) (*tensors.Tensor, error) {
	out := tensors.FromShape(node.shape)
	loScalar := lo.Shape().IsScalar() && !node.shape.IsScalar()
	hiScalar := hi.Shape().IsScalar() && !node.shape.IsScalar()
	switch node.shape.DType {
	case dtypes.Int32:
		clampKernel(flatOf[int32](lo), loScalar, flatOf[int32](x), flatOf[int32](hi), hiScalar, mutableFlatOf[int32](out))
	case dtypes.Int64:
		clampKernel(flatOf[int64](lo), loScalar, flatOf[int64](x), flatOf[int64](hi), hiScalar, mutableFlatOf[int64](out))
	case dtypes.Float32:
		clampKernel(flatOf[float32](lo), loScalar, flatOf[float32](x), flatOf[float32](hi), hiScalar, mutableFlatOf[float32](out))
	case dtypes.Float64:
		clampKernel(flatOf[float64](lo), loScalar, flatOf[float64](x), flatOf[float64](hi), hiScalar, mutableFlatOf[float64](out))
	default:
		return nil, errors.Errorf("Clamp: unsupported data type %s", node.shape.DType)
	}
	return out, nil
}

func evalReshape(node *Node, input *tensors.Tensor) (*tensors.Tensor, error) {
	out := tensors.FromShape(node.shape)
	input.ConstFlatData(func(src any) {
		out.MutableFlatData(func(dst any) {
			copyFlat(dst, src)
		})
	})
	return out, nil
}

// copyFlat copies between two flat slices of the same type and length.
func copyFlat(dst, src any) {
	switch d := dst.(type) {
	case []bool:
		copy(d, src.([]bool))
	case []int32:
		copy(d, src.([]int32))
	case []int64:
		copy(d, src.([]int64))
	case []float32:
		copy(d, src.([]float32))
	case []float64:
		copy(d, src.([]float64))
	}
}

func transposeKernel[T any](in, out []T, inDims, perm []int) {
	inStrides := strides(inDims)
	outDims := make([]int, len(perm))
	for ii, axis := range perm {
		outDims[ii] = inDims[axis]
	}
	coords := make([]int, len(outDims))
	if len(outDims) == 0 {
		out[0] = in[0]
		return
	}
	flatIdx := 0
	for {
		inIdx := 0
		for outAxis, coord := range coords {
			inIdx += coord * inStrides[perm[outAxis]]
		}
		out[flatIdx] = in[inIdx]
		flatIdx++
		if !nextIndex(coords, outDims) {
			break
		}
	}
}

func evalTranspose(node *Node, input *tensors.Tensor) (*tensors.Tensor, error) {
	out := tensors.FromShape(node.shape)
	inDims := input.Shape().Dimensions
	switch node.shape.DType {
	case dtypes.Bool:
		transposeKernel(flatOf[bool](input), mutableFlatOf[bool](out), inDims, node.ints)
	case dtypes.Int32:
		transposeKernel(flatOf[int32](input), mutableFlatOf[int32](out), inDims, node.ints)
	case dtypes.Int64:
		transposeKernel(flatOf[int64](input), mutableFlatOf[int64](out), inDims, node.ints)
	case dtypes.Float32:
		transposeKernel(flatOf[float32](input), mutableFlatOf[float32](out), inDims, node.ints)
	case dtypes.Float64:
		transposeKernel(flatOf[float64](input), mutableFlatOf[float64](out), inDims, node.ints)
	default:
		return nil, errors.Errorf("Transpose: unsupported data type %s", node.shape.DType)
	}
	return out, nil
}

func broadcastKernel[T any](in, out []T, inDims, outDims []int) {
	if len(outDims) == 0 {
		out[0] = in[0]
		return
	}
	inStrides := strides(inDims)
	coords := make([]int, len(outDims))
	flatIdx := 0
	for {
		inIdx := 0
		for axis, coord := range coords {
			if inDims[axis] > 1 {
				inIdx += coord * inStrides[axis]
			}
		}
		out[flatIdx] = in[inIdx]
		flatIdx++
		if !nextIndex(coords, outDims) {
			break
		}
	}
}

func evalBroadcast(node *Node, input *tensors.Tensor) (*tensors.Tensor, error) {
	out := tensors.FromShape(node.shape)
	inDims := input.Shape().Dimensions
	outDims := node.shape.Dimensions
	switch node.shape.DType {
	case dtypes.Bool:
		broadcastKernel(flatOf[bool](input), mutableFlatOf[bool](out), inDims, outDims)
	case dtypes.Int32:
		broadcastKernel(flatOf[int32](input), mutableFlatOf[int32](out), inDims, outDims)
	case dtypes.Int64:
		broadcastKernel(flatOf[int64](input), mutableFlatOf[int64](out), inDims, outDims)
	case dtypes.Float32:
		broadcastKernel(flatOf[float32](input), mutableFlatOf[float32](out), inDims, outDims)
	case dtypes.Float64:
		broadcastKernel(flatOf[float64](input), mutableFlatOf[float64](out), inDims, outDims)
	default:
		return nil, errors.Errorf("Broadcast: unsupported data type %s", node.shape.DType)
	}
	return out, nil
}

func reduceKernel[T number](op backends.OpType, in, out []T, inDims, axes []int) {
	reduced := make([]bool, len(inDims))
	for _, axis := range axes {
		reduced[axis] = true
	}
	var outDims []int
	for axis, dim := range inDims {
		if !reduced[axis] {
			outDims = append(outDims, dim)
		}
	}
	outStrides := strides(outDims)
	initialized := make([]bool, len(out))
	coords := make([]int, len(inDims))
	flatIdx := 0
	for {
		outIdx := 0
		outAxis := 0
		for axis, coord := range coords {
			if !reduced[axis] {
				outIdx += coord * outStrides[outAxis]
				outAxis++
			}
		}
		v := in[flatIdx]
		if !initialized[outIdx] {
			out[outIdx] = v
			initialized[outIdx] = true
		} else if op == backends.OpTypeReduceSum {
			out[outIdx] += v
		} else if v > out[outIdx] {
			out[outIdx] = v
		}
		flatIdx++
		if !nextIndex(coords, inDims) {
			break
		}
	}
}

func evalReduce(node *Node, input *tensors.Tensor) (*tensors.Tensor, error) {
	out := tensors.FromShape(node.shape)
	inDims := input.Shape().Dimensions
	switch node.shape.DType {
	case dtypes.Int32:
		reduceKernel(node.opType, flatOf[int32](input), mutableFlatOf[int32](out), inDims, node.ints)
	case dtypes.Int64:
		reduceKernel(node.opType, flatOf[int64](input), mutableFlatOf[int64](out), inDims, node.ints)
	case dtypes.Float32:
		reduceKernel(node.opType, flatOf[float32](input), mutableFlatOf[float32](out), inDims, node.ints)
	case dtypes.Float64:
		reduceKernel(node.opType, flatOf[float64](input), mutableFlatOf[float64](out), inDims, node.ints)
	default:
		return nil, errors.Errorf("%s: unsupported data type %s", node.opType, node.shape.DType)
	}
	return out, nil
}

func argMaxKernel[T number](in []T, inDims []int, axis int) []int64 {
	outSize := 1
	for ii, dim := range inDims {
		if ii != axis {
			outSize *= dim
		}
	}
	bestIdx := make([]int64, outSize)
	bestVal := make([]T, outSize)
	initialized := make([]bool, outSize)
	var outDims []int
	for ii, dim := range inDims {
		if ii != axis {
			outDims = append(outDims, dim)
		}
	}
	outStrides := strides(outDims)
	coords := make([]int, len(inDims))
	flatIdx := 0
	for {
		outIdx := 0
		outAxis := 0
		for a, coord := range coords {
			if a != axis {
				outIdx += coord * outStrides[outAxis]
				outAxis++
			}
		}
		v := in[flatIdx]
		if !initialized[outIdx] || v > bestVal[outIdx] {
			bestVal[outIdx] = v
			bestIdx[outIdx] = int64(coords[axis])
			initialized[outIdx] = true
		}
		flatIdx++
		if !nextIndex(coords, inDims) {
			break
		}
	}
	return bestIdx
}

func evalArgMax(node *Node, input *tensors.Tensor) (*tensors.Tensor, error) {
	inDims := input.Shape().Dimensions
	var indices []int64
	switch input.DType() {
	case dtypes.Int32:
		indices = argMaxKernel(flatOf[int32](input), inDims, node.intArg)
	case dtypes.Int64:
		indices = argMaxKernel(flatOf[int64](input), inDims, node.intArg)
	case dtypes.Float32:
		indices = argMaxKernel(flatOf[float32](input), inDims, node.intArg)
	case dtypes.Float64:
		indices = argMaxKernel(flatOf[float64](input), inDims, node.intArg)
	default:
		return nil, errors.Errorf("ArgMax: unsupported data type %s", input.DType())
	}
	result := tensors.FromFlatDataAndDimensions(indices, node.shape.Dimensions...)
	if node.shape.DType != dtypes.Int64 {
		result = tensors.ConvertDType(result, node.shape.DType)
	}
	return result, nil
}

// topKRow selects the k largest values of row, in descending order; ties resolve to
// the lower index.
func topKRow[T number](row []T, k int) (values []T, indices []int64) {
	order := xslices.Iota(0, len(row))
	sort.SliceStable(order, func(i, j int) bool { return row[order[i]] > row[order[j]] })
	values = make([]T, k)
	indices = make([]int64, k)
	for ii := 0; ii < k; ii++ {
		values[ii] = row[order[ii]]
		indices[ii] = int64(order[ii])
	}
	return
}

func topKKernel[T number](node *Node, input *tensors.Tensor) *tensors.Tensor {
	in := flatOf[T](input)
	rowLen := input.Shape().Dim(-1)
	k := node.intArg
	numRows := input.Size() / rowLen
	out := tensors.FromShape(node.shape)
	if node.outputIdx == 0 {
		dst := mutableFlatOf[T](out)
		for row := 0; row < numRows; row++ {
			values, _ := topKRow(in[row*rowLen:(row+1)*rowLen], k)
			copy(dst[row*k:], values)
		}
	} else {
		dst := mutableFlatOf[int64](out)
		for row := 0; row < numRows; row++ {
			_, indices := topKRow(in[row*rowLen:(row+1)*rowLen], k)
			copy(dst[row*k:], indices)
		}
	}
	return out
}

func evalTopK(node *Node, input *tensors.Tensor) (*tensors.Tensor, error) {
	switch input.DType() {
	case dtypes.Int32:
		return topKKernel[int32](node, input), nil
	case dtypes.Int64:
		return topKKernel[int64](node, input), nil
	case dtypes.Float32:
		return topKKernel[float32](node, input), nil
	case dtypes.Float64:
		return topKKernel[float64](node, input), nil
	}
	return nil, errors.Errorf("TopK: unsupported data type %s", input.DType())
}
