package backends

import (
	"github.com/KevinCoble/graphdsl/types/shapes"
	"github.com/KevinCoble/graphdsl/types/tensors"
)

// Executable is the API for compiled computations ready to execute.
//
// An Executable must be safe for concurrent Execute calls.
type Executable interface {
	// Finalize immediately frees resources associated with the executable.
	Finalize()

	// Inputs returns the list of parameter names and shapes, in the order created by
	// the Builder.Parameter calls.
	Inputs() (names []string, inputShapes []shapes.Shape)

	// Outputs returns the shapes of the outputs of the computation, in the order
	// given to the Builder.Compile call.
	Outputs() (outputShapes []shapes.Shape)

	// Execute the computation with the given input tensors. The number and shapes of
	// the inputs must match those returned by Inputs.
	Execute(inputs ...*tensors.Tensor) ([]*tensors.Tensor, error)
}
