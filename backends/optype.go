package backends

// OpType is an enum of the operations that a Backend.Builder supports. It is used by
// backend implementations to tag their internal graph nodes and by error messages.
type OpType int

//go:generate go tool enumer -type=OpType -trimprefix=OpType -output=gen_optype_enumer.go optype.go

const (
	OpTypeInvalid OpType = iota
	OpTypeParameter
	OpTypeConstant
	OpTypeIota

	OpTypeAbs
	OpTypeNeg
	OpTypeExp
	OpTypeLog
	OpTypeSqrt
	OpTypeTanh
	OpTypeLogistic

	OpTypeAdd
	OpTypeSub
	OpTypeMul
	OpTypeDiv
	OpTypeMax
	OpTypeMin

	OpTypeEqual
	OpTypeGreaterThan
	OpTypeLessThan

	OpTypeDot
	OpTypeWhere
	OpTypeClamp

	OpTypeReshape
	OpTypeTranspose
	OpTypeBroadcast

	OpTypeReduceSum
	OpTypeReduceMax
	OpTypeArgMax
	OpTypeTopK
)
