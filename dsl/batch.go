package dsl

import (
	"github.com/KevinCoble/graphdsl/types/shapes"
)

// withBatchDimension inserts the leading batch axis when the graph runs in batch
// mode. All shape-sensitive nodes use this one helper so the convention cannot
// drift between node types.
func (g *Graph) withBatchDimension(shape shapes.Shape) shapes.Shape {
	if !g.batchGraph {
		return shape
	}
	dims := make([]int, 0, shape.Rank()+1)
	dims = append(dims, g.batchSize)
	dims = append(dims, shape.Dimensions...)
	return shapes.Shape{DType: shape.DType, Dimensions: dims}
}

// withBatchDims is the dimensions-only form used by Reshape targets.
func (g *Graph) withBatchDims(dims []int) []int {
	if !g.batchGraph {
		return dims
	}
	batched := make([]int, 0, len(dims)+1)
	batched = append(batched, g.batchSize)
	batched = append(batched, dims...)
	return batched
}
