package dsl

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/KevinCoble/graphdsl/backends"
	"github.com/KevinCoble/graphdsl/types/tensors"
	"github.com/KevinCoble/graphdsl/types/xslices"
)

// SubGraphDefinition is an ordered node list usable as a reusable template: each
// SubGraph instance inlines it with its own name prefix, input mapping and data
// tensors.
type SubGraphDefinition struct {
	nodes []Node
}

// NewSubGraphDefinition wraps the node list as a reusable template.
func NewSubGraphDefinition(nodes []Node) *SubGraphDefinition {
	return &SubGraphDefinition{nodes: nodes}
}

// SubGraphNode instantiates a SubGraphDefinition under a scoped name prefix: an
// inner node "inner" of an instance named "S" is resolvable from outside as
// "S_inner". The instance's input map redirects the definition's
// SubGraphPlaceHolder slots to outer tensors, and its data-tensor map supplies
// per-instance tensors for FromDataTensor/ConstantFromData references.
type SubGraphNode struct {
	baseNode
	definition *SubGraphDefinition
	inputs     map[string]string
	data       map[string]*tensors.Tensor
}

// SubGraph declares an instance of a definition under the given name.
func SubGraph(name string, definition *SubGraphDefinition) *SubGraphNode {
	n := &SubGraphNode{
		definition: definition,
		inputs:     make(map[string]string),
		data:       make(map[string]*tensors.Tensor),
	}
	n.kindName = "SubGraph"
	n.name = name
	return n
}

// WithInput maps a SubGraphPlaceHolder slot of the definition to an outer-scope
// tensor name.
func (n *SubGraphNode) WithInput(slot, outerName string) *SubGraphNode {
	n.inputs[slot] = outerName
	return n
}

// WithDataTensor supplies a tensor for a data reference used inside the definition.
func (n *SubGraphNode) WithDataTensor(ref string, value *tensors.Tensor) *SubGraphNode {
	n.data[ref] = value
	return n
}

// TargetForModes is invalid for sub-graphs: an instance may emit many unrelated
// tensors, so individual inner nodes must be targeted instead. The error surfaces
// at the node's emission turn.
func (n *SubGraphNode) TargetForModes(modes ...string) *SubGraphNode {
	n.setBuildError(errors.Errorf("SubGraph %q cannot be a target; target its inner nodes instead",
		n.displayName()))
	return n
}

// inputRefs lists the outer-scope names consumed through the input map, so the
// reference pass marks their owners.
func (n *SubGraphNode) inputRefs() []string {
	refs := make([]string, 0, len(n.inputs))
	for _, slot := range xslices.SortedKeys(n.inputs) {
		refs = append(refs, n.inputs[slot])
	}
	return refs
}

// The referenced rule is delegated into the inner node list, so marking the
// instance itself is a no-op and the check recurses.
func (n *SubGraphNode) markReferenced() {}

func (n *SubGraphNode) checkReferenced(g *Graph) {
	for _, inner := range n.definition.nodes {
		inner.checkReferenced(g)
	}
}

func (n *SubGraphNode) resolve(g *Graph) []backends.Op {
	if n.name == "" {
		exceptions.Panicf("SubGraph nodes must be named")
	}
	if n.definition == nil {
		exceptions.Panicf("SubGraph %q has no definition", n.name)
	}

	// Resolve the input map against the current (outer) scope before entering the
	// new one, so slots alias fully-prefixed outer names.
	installed := make(map[string]string, len(n.inputs))
	for slot, outerName := range n.inputs {
		installed[slot] = g.prefix() + outerName
	}

	savedInputs, savedData := g.inputMap, g.dataMap
	savedCursor, savedCursorValid := g.cursor, g.cursorValid
	g.inputMap, g.dataMap = installed, n.data
	g.cursor, g.cursorValid = nil, false
	g.pushPrefix(n.name)

	g.emitNodes(n.definition.nodes)

	g.popPrefix()
	g.inputMap, g.dataMap = savedInputs, savedData
	g.cursor, g.cursorValid = savedCursor, savedCursorValid

	// The instance itself contributes only a boundary marker: its real outputs are
	// the inner nodes' tensors bound under the new prefix. The nil entry leaves the
	// chaining cursor invalid past the boundary.
	return []backends.Op{nil}
}
