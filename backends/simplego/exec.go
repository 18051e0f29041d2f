package simplego

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/KevinCoble/graphdsl/backends"
	"github.com/KevinCoble/graphdsl/types/shapes"
	"github.com/KevinCoble/graphdsl/types/tensors"
)

// Executable holds one output set of a frozen Builder. It assumes the graph in the
// Builder is valid: all shapes and data types were checked at building time, so the
// executor performs no duplicate checks.
type Executable struct {
	backend *Backend
	builder *Builder
	outputs []*Node

	// needed marks the nodes reachable from outputs; only those are evaluated.
	needed []bool

	// params are the reachable parameter nodes, in creation order. Execute expects
	// one input tensor per entry.
	params []*Node
}

// Compile time check.
var _ backends.Executable = (*Executable)(nil)

func newExecutable(b *Builder, outputs []*Node) *Executable {
	e := &Executable{
		backend: b.backend,
		builder: b,
		outputs: outputs,
		needed:  make([]bool, len(b.nodes)),
	}
	var mark func(node *Node)
	mark = func(node *Node) {
		if e.needed[node.id] {
			return
		}
		e.needed[node.id] = true
		for _, input := range node.inputs {
			mark(input)
		}
	}
	for _, output := range outputs {
		mark(output)
	}
	for _, param := range b.inputs {
		if e.needed[param.id] {
			e.params = append(e.params, param)
		}
	}
	klog.V(2).Infof("simplego: compiled %q with %d outputs, %d reachable parameters",
		b.name, len(outputs), len(e.params))
	return e
}

// Finalize immediately frees resources associated with the executable.
func (e *Executable) Finalize() {
	e.outputs = nil
	e.needed = nil
	e.params = nil
}

// Inputs returns the list of reachable parameter names and shapes, in creation order.
func (e *Executable) Inputs() (names []string, inputShapes []shapes.Shape) {
	names = make([]string, len(e.params))
	inputShapes = make([]shapes.Shape, len(e.params))
	for ii, param := range e.params {
		names[ii] = param.paramName
		inputShapes[ii] = param.shape
	}
	return
}

// Outputs returns the shapes of the outputs of the computation.
func (e *Executable) Outputs() (outputShapes []shapes.Shape) {
	outputShapes = make([]shapes.Shape, len(e.outputs))
	for ii, output := range e.outputs {
		outputShapes[ii] = output.shape
	}
	return
}

// Execute the computation with the given input tensors, one per reachable parameter.
func (e *Executable) Execute(inputs ...*tensors.Tensor) ([]*tensors.Tensor, error) {
	if e.needed == nil {
		return nil, errors.New("simplego executable was finalized")
	}
	if len(inputs) != len(e.params) {
		return nil, errors.Errorf("computation %q requires %d inputs, %d given",
			e.builder.name, len(e.params), len(inputs))
	}
	results := make([]*tensors.Tensor, len(e.builder.nodes))
	for ii, param := range e.params {
		input := inputs[ii]
		if input == nil {
			return nil, errors.Errorf("computation %q: input %q is nil", e.builder.name, param.paramName)
		}
		if !input.Shape().Equal(param.shape) {
			return nil, errors.Errorf("computation %q: input %q has shape %s, want %s",
				e.builder.name, param.paramName, input.Shape(), param.shape)
		}
		results[param.id] = input
	}
	for _, node := range e.builder.nodes {
		if !e.needed[node.id] || node.opType == backends.OpTypeParameter {
			continue
		}
		result, err := evalNode(node, results)
		if err != nil {
			return nil, errors.WithMessagef(err, "computation %q, evaluating %s (#%d)",
				e.builder.name, node.opType, node.id)
		}
		results[node.id] = result
	}
	outputs := make([]*tensors.Tensor, len(e.outputs))
	for ii, output := range e.outputs {
		// Outputs may alias a parameter or constant, and several outputs may alias
		// each other; clone so callers own what they receive.
		outputs[ii] = results[output.id].Clone()
	}
	return outputs, nil
}
