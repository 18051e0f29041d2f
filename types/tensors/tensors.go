// Package tensors implements Tensor, a representation of a multi-dimensional array.
//
// Tensors are defined by their shape (a data type and its axes' dimensions) and their
// actual content, stored as a flat (1D) Go slice of the corresponding Go type.
//
// Tensors are used to initialize constants and variables in a computation graph and to
// feed and fetch values when executing one. They serialize with encoding/gob, which is
// what the graph checkpointing uses.
//
// There are various ways to construct a Tensor:
//
//   - FromShape(shape): a tensor of the given shape with zero values.
//   - FromScalarAndDimensions(value, dims...): filled with the given scalar.
//   - FromFlatDataAndDimensions(data, dims...): from the flattened values.
//   - FromValue(value): from a Go scalar or (regular) multi-dimensional slice,
//     e.g. `FromValue([][]float32{{1, 2}, {3, 5}, {7, 11}})`.
package tensors

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"reflect"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/KevinCoble/graphdsl/types/shapes"
)

// Tensor is a multi-dimensional array of one of the supported data types, backed by a
// flat Go slice.
//
// The flat data is owned by the Tensor: accessors hand out the actual slice, not a
// copy. Use Clone where an independent copy is needed.
type Tensor struct {
	shape shapes.Shape
	flat  any // Slice of the Go type corresponding to shape.DType.
}

// FromShape returns a Tensor of the given shape with the data initialized to zeros.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		panic(errors.New("tensors.FromShape: invalid shape"))
	}
	flat := reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), shape.Size(), shape.Size())
	return &Tensor{shape: shape, flat: flat.Interface()}
}

// FromFlatDataAndDimensions creates a Tensor with the given dimensions, initialized
// with the flattened data. The data length must match the shape size.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	dtype := dtypes.FromGenericsType[T]()
	shape := shapes.Make(dtype, dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("tensors.FromFlatDataAndDimensions: data length %d does not match shape %s (size %d)",
			len(data), shape, shape.Size())
	}
	flat := make([]T, len(data))
	copy(flat, data)
	return &Tensor{shape: shape, flat: flat}
}

// FromScalarAndDimensions creates a Tensor with the given dimensions, filled with the
// scalar value given.
func FromScalarAndDimensions[T dtypes.Supported](value T, dimensions ...int) *Tensor {
	dtype := dtypes.FromGenericsType[T]()
	shape := shapes.Make(dtype, dimensions...)
	flat := make([]T, shape.Size())
	for ii := range flat {
		flat[ii] = value
	}
	return &Tensor{shape: shape, flat: flat}
}

// FromValue creates a Tensor from a Go scalar or multi-dimensional slice. Slices of
// rank > 1 must be regular, that is, all sub-slices must have the same length.
func FromValue(value any) *Tensor {
	if t, ok := value.(*Tensor); ok {
		return t
	}
	shape, err := shapeOfValue(value)
	if err != nil {
		panic(errors.WithMessagef(err, "tensors.FromValue(%T)", value))
	}
	t := FromShape(shape)
	flatV := reflect.ValueOf(t.flat)
	pos := 0
	copyNestedToFlat(reflect.ValueOf(value), flatV, &pos)
	return t
}

// shapeOfValue infers the Shape of a Go scalar or nested slice.
func shapeOfValue(value any) (shapes.Shape, error) {
	v := reflect.ValueOf(value)
	var dims []int
	for v.Kind() == reflect.Slice {
		if v.Len() == 0 {
			return shapes.Invalid(), errors.Errorf("empty slices cannot be converted to tensors")
		}
		dims = append(dims, v.Len())
		v = v.Index(0)
	}
	dtype := dtypes.FromGoType(v.Type())
	if dtype == dtypes.InvalidDType {
		return shapes.Invalid(), errors.Errorf("unsupported element type %s", v.Type())
	}
	return shapes.Shape{DType: dtype, Dimensions: dims}, nil
}

// copyNestedToFlat copies a (regular) nested slice into the flat slice, row-major.
func copyNestedToFlat(v, flat reflect.Value, pos *int) {
	if v.Kind() != reflect.Slice {
		flat.Index(*pos).Set(v)
		*pos++
		return
	}
	for ii := 0; ii < v.Len(); ii++ {
		sub := v.Index(ii)
		if ii > 0 && sub.Kind() == reflect.Slice && sub.Len() != v.Index(0).Len() {
			exceptions.Panicf("tensors.FromValue: irregular nested slice, sub-slice %d has length %d, want %d",
				ii, sub.Len(), v.Index(0).Len())
		}
		copyNestedToFlat(sub, flat, pos)
	}
}

// Shape of the Tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the Tensor's elements.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Rank of the Tensor's shape.
func (t *Tensor) Rank() int { return t.shape.Rank() }

// Size is the number of elements stored, the product of the dimensions.
func (t *Tensor) Size() int { return t.shape.Size() }

// AssertValid panics if the tensor is nil or has been emptied of its data.
func (t *Tensor) AssertValid() {
	if t == nil {
		exceptions.Panicf("tensors.Tensor is nil")
	}
	if t.flat == nil {
		exceptions.Panicf("tensors.Tensor has no data")
	}
}

// ConstFlatData calls accessFn with the flattened data as a slice of the Go type
// corresponding to the DType. Even scalars have a flat representation of one element.
//
// The slice is the actual Tensor data, owned by the Tensor; it must not be changed.
// See MutableFlatData for write access.
func (t *Tensor) ConstFlatData(accessFn func(flat any)) {
	t.AssertValid()
	accessFn(t.flat)
}

// MutableFlatData calls accessFn with the flattened data as a slice of the Go type
// corresponding to the DType, which may be modified in place.
func (t *Tensor) MutableFlatData(accessFn func(flat any)) {
	t.AssertValid()
	accessFn(t.flat)
}

// ConstFlatData is the generics version of Tensor.ConstFlatData. It panics if T does
// not match the tensor's DType.
func ConstFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	t.AssertValid()
	flat, ok := t.flat.([]T)
	if !ok {
		exceptions.Panicf("tensors.ConstFlatData[%T]: tensor holds %s values", flat, t.DType())
	}
	accessFn(flat)
}

// MutableFlatData is the generics version of Tensor.MutableFlatData. It panics if T
// does not match the tensor's DType.
func MutableFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	t.AssertValid()
	flat, ok := t.flat.([]T)
	if !ok {
		exceptions.Panicf("tensors.MutableFlatData[%T]: tensor holds %s values", flat, t.DType())
	}
	accessFn(flat)
}

// Value returns a multi-dimensional Go slice (or scalar, for rank 0) with a copy of
// the Tensor values.
func (t *Tensor) Value() any {
	t.AssertValid()
	flatV := reflect.ValueOf(t.flat)
	if t.Rank() == 0 {
		return flatV.Index(0).Interface()
	}
	pos := 0
	return buildNestedFromFlat(flatV, t.shape.Dimensions, &pos).Interface()
}

func buildNestedFromFlat(flat reflect.Value, dims []int, pos *int) reflect.Value {
	if len(dims) == 1 {
		row := reflect.MakeSlice(flat.Type(), dims[0], dims[0])
		reflect.Copy(row, flat.Slice(*pos, *pos+dims[0]))
		*pos += dims[0]
		return row
	}
	elemType := flat.Type()
	for range dims[1:] {
		elemType = reflect.SliceOf(elemType)
	}
	out := reflect.MakeSlice(elemType, dims[0], dims[0])
	for ii := 0; ii < dims[0]; ii++ {
		out.Index(ii).Set(buildNestedFromFlat(flat, dims[1:], pos))
	}
	return out
}

// Clone returns an independent deep copy of the Tensor.
func (t *Tensor) Clone() *Tensor {
	t.AssertValid()
	clone := FromShape(t.shape)
	reflect.Copy(reflect.ValueOf(clone.flat), reflect.ValueOf(t.flat))
	return clone
}

// CopyFrom overwrites the Tensor data with the data of the other tensor. Shapes must
// be equal.
func (t *Tensor) CopyFrom(other *Tensor) {
	t.AssertValid()
	other.AssertValid()
	if !t.shape.Equal(other.shape) {
		exceptions.Panicf("tensors.CopyFrom: shape %s cannot be copied from shape %s", t.shape, other.shape)
	}
	reflect.Copy(reflect.ValueOf(t.flat), reflect.ValueOf(other.flat))
}

// Equal compares shape and content for exact equality.
func (t *Tensor) Equal(other *Tensor) bool {
	t.AssertValid()
	other.AssertValid()
	if !t.shape.Equal(other.shape) {
		return false
	}
	return reflect.DeepEqual(t.flat, other.flat)
}

// InDelta returns whether the tensors have the same shape and every pair of
// corresponding elements differ by at most delta. It works for any numeric DTypes,
// comparing element values as float64.
func (t *Tensor) InDelta(other *Tensor, delta float64) bool {
	t.AssertValid()
	other.AssertValid()
	if !t.shape.Equal(other.shape) {
		return false
	}
	a := t.Float64Values()
	b := other.Float64Values()
	for ii := range a {
		diff := a[ii] - b[ii]
		if diff < -delta || diff > delta {
			return false
		}
	}
	return true
}

// Float64Values returns a copy of the flat data converted to float64. It panics for
// non-numeric DTypes (Bool).
func (t *Tensor) Float64Values() []float64 {
	t.AssertValid()
	out := make([]float64, t.Size())
	flatV := reflect.ValueOf(t.flat)
	switch flat := t.flat.(type) {
	case []float16.Float16:
		for ii, v := range flat {
			out[ii] = float64(v.Float32())
		}
	case []bool:
		exceptions.Panicf("tensors.Float64Values: not defined for %s tensors", t.DType())
	default:
		for ii := 0; ii < flatV.Len(); ii++ {
			e := flatV.Index(ii)
			if e.CanInt() {
				out[ii] = float64(e.Int())
			} else if e.CanUint() {
				out[ii] = float64(e.Uint())
			} else {
				out[ii] = e.Float()
			}
		}
	}
	return out
}

// ConvertDType returns a new tensor with the same dimensions and the values converted
// to the given DType. Float16 conversions use github.com/x448/float16. Bool converts
// as 0/1 in either direction.
func ConvertDType(t *Tensor, dtype dtypes.DType) *Tensor {
	t.AssertValid()
	if dtype == t.DType() {
		return t.Clone()
	}
	out := FromShape(shapes.Shape{DType: dtype, Dimensions: t.shape.Clone().Dimensions})
	var values []float64
	if t.DType() == dtypes.Bool {
		values = make([]float64, t.Size())
		for ii, v := range t.flat.([]bool) {
			if v {
				values[ii] = 1
			}
		}
	} else {
		values = t.Float64Values()
	}
	switch flat := out.flat.(type) {
	case []float16.Float16:
		for ii, v := range values {
			flat[ii] = float16.Fromfloat32(float32(v))
		}
	case []bool:
		for ii, v := range values {
			flat[ii] = v != 0
		}
	default:
		outV := reflect.ValueOf(out.flat)
		for ii, v := range values {
			e := outV.Index(ii)
			if e.CanInt() {
				e.SetInt(int64(v))
			} else if e.CanUint() {
				e.SetUint(uint64(v))
			} else {
				e.SetFloat(v)
			}
		}
	}
	return out
}

// String returns a compact human-readable representation of the tensor. Large
// tensors print only their leading values.
func (t *Tensor) String() string {
	if t == nil || t.flat == nil {
		return "INVALID TENSOR"
	}
	const maxElements = 16
	var b strings.Builder
	fmt.Fprintf(&b, "%s: ", t.shape)
	flatV := reflect.ValueOf(t.flat)
	n := flatV.Len()
	shown := n
	if shown > maxElements {
		shown = maxElements
	}
	parts := make([]string, 0, shown+1)
	for ii := 0; ii < shown; ii++ {
		parts = append(parts, fmt.Sprintf("%v", flatV.Index(ii).Interface()))
	}
	if shown < n {
		parts = append(parts, fmt.Sprintf("... (%d more)", n-shown))
	}
	fmt.Fprintf(&b, "[%s]", strings.Join(parts, " "))
	return b.String()
}

// gobTensor is the wire format used by GobEncode/GobDecode.
type gobTensor struct {
	DType      dtypes.DType
	Dimensions []int
	Flat       any
}

func init() {
	// Registers the flat slice types that may cross a gob boundary.
	gob.Register([]bool{})
	gob.Register([]int8{})
	gob.Register([]int16{})
	gob.Register([]int32{})
	gob.Register([]int64{})
	gob.Register([]uint8{})
	gob.Register([]uint16{})
	gob.Register([]uint32{})
	gob.Register([]uint64{})
	gob.Register([]float16.Float16{})
	gob.Register([]float32{})
	gob.Register([]float64{})
}

// GobEncode implements gob.GobEncoder.
func (t *Tensor) GobEncode() ([]byte, error) {
	if t == nil || t.flat == nil {
		return nil, errors.New("cannot gob-encode an invalid tensor")
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	err := enc.Encode(gobTensor{DType: t.DType(), Dimensions: t.shape.Dimensions, Flat: t.flat})
	if err != nil {
		return nil, errors.Wrapf(err, "encoding tensor shaped %s", t.shape)
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (t *Tensor) GobDecode(data []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(data))
	var gt gobTensor
	if err := dec.Decode(&gt); err != nil {
		return errors.Wrap(err, "decoding tensor")
	}
	shape := shapes.Shape{DType: gt.DType, Dimensions: gt.Dimensions}
	if reflect.ValueOf(gt.Flat).Len() != shape.Size() {
		return errors.Errorf("decoded tensor data does not match shape %s", shape)
	}
	t.shape = shape
	t.flat = gt.Flat
	return nil
}
