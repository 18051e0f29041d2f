package dsl

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/KevinCoble/graphdsl/backends"
)

// Node is one declarative unit of a graph: an operation (or leaf value) with named
// input references, emitted into the backend computation exactly once during
// construction.
//
// Implementations are created by the package's constructor functions (PlaceHolder,
// Constant, Variable, Addition, ...) and configured with their fluent modifiers
// before being handed to NewGraph.
type Node interface {
	// Name returns the declared name, or "" for an unnamed node.
	Name() string

	// TargetModes returns the run modes for which this node's outputs are graph
	// results. Empty means the node is not a direct output.
	TargetModes() []string

	// buildError returns a validation failure recorded by a modifier call at
	// declaration time. It is surfaced when the node's emission turn comes.
	buildError() error

	// inputRefs returns the node's declared input references, in order. An empty
	// string stands for the implicit previous output.
	inputRefs() []string

	// resolve emits the node's backend operation(s). A nil entry marks an
	// intentionally absent output (the sub-graph boundary). A nil slice means the
	// node emits nothing and leaves the chaining cursor untouched.
	resolve(g *Graph) []backends.Op

	// outputSuffixes returns one name suffix per emitted tensor. The default
	// single unsuffixed output is []string{""}.
	outputSuffixes() []string

	// emitsOutputs reports whether resolve produces output tensors at all.
	// Configuration-only nodes return false: they leave the chaining cursor
	// untouched, and the reference pass walks past them the same way.
	emitsOutputs() bool

	// targetEligibleIndices restricts which emitted tensors become mode targets
	// when the node is target-marked. Nil means all outputs are eligible.
	targetEligibleIndices() []int

	markReferenced()
	clearReferenced()
	checkReferenced(g *Graph)
}

// baseNode carries the declaration state shared by every node variant. kindName is
// the user-facing node type (e.g. "Addition"), used in error messages.
type baseNode struct {
	kindName   string
	name       string
	targets    []string
	referenced bool
	buildErr   error
}

func (n *baseNode) Name() string          { return n.name }
func (n *baseNode) kind() string          { return n.kindName }
func (n *baseNode) TargetModes() []string { return n.targets }
func (n *baseNode) buildError() error     { return n.buildErr }
func (n *baseNode) inputRefs() []string   { return nil }

func (n *baseNode) outputSuffixes() []string    { return []string{""} }
func (n *baseNode) emitsOutputs() bool          { return true }
func (n *baseNode) targetEligibleIndices() []int { return nil }

func (n *baseNode) markReferenced()  { n.referenced = true }
func (n *baseNode) clearReferenced() { n.referenced = false }

// checkReferenced fails construction for a node that nothing consumes: it must either
// be referenced by another node's input or be a target for at least one mode.
func (n *baseNode) checkReferenced(g *Graph) {
	if n.referenced || len(n.targets) > 0 {
		return
	}
	exceptions.Panicf("%s node %q is neither referenced by another node nor a target for any mode",
		n.kindName, n.displayName())
}

// displayName labels the node in error messages, with a stand-in for unnamed nodes.
func (n *baseNode) displayName() string {
	if n.name == "" {
		return "*Unnamed*"
	}
	return n.name
}

// addTarget records the target modes, deduplicating repeats.
func (n *baseNode) addTargets(modes []string) {
	for _, mode := range modes {
		found := false
		for _, existing := range n.targets {
			if existing == mode {
				found = true
				break
			}
		}
		if !found {
			n.targets = append(n.targets, mode)
		}
	}
}

// setBuildError records the first declaration-time failure; later ones are dropped so
// the error surfaced at emission is the original mistake.
func (n *baseNode) setBuildError(err error) {
	if n.buildErr == nil {
		n.buildErr = err
	}
}

// Nodes flattens node declarations into the ordered list consumed by NewGraph and
// NewSubGraphDefinition. Arguments may be Node values or []Node slices, so blocks can
// be assembled with ordinary conditionals and loops.
func Nodes(items ...any) []Node {
	var flat []Node
	for _, item := range items {
		switch v := item.(type) {
		case Node:
			flat = append(flat, v)
		case []Node:
			flat = append(flat, v...)
		case nil:
			// Allows optional blocks to contribute nothing.
		default:
			bad := &invalidNode{}
			bad.kindName = "Nodes"
			bad.setBuildError(errors.Errorf("Nodes: item of type %T is not a Node or []Node", v))
			flat = append(flat, bad)
		}
	}
	return flat
}

// invalidNode defers a "not a node" error to construction time, keeping Nodes()
// infallible for declarative use.
type invalidNode struct {
	baseNode
}

func (n *invalidNode) resolve(g *Graph) []backends.Op { return nil }
func (n *invalidNode) emitsOutputs() bool             { return false }
