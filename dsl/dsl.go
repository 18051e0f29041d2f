// Package dsl implements a declarative builder for neural-network computation
// graphs: client code declares an ordered list of named nodes, and Graph resolves
// the name references, validates shapes, allocates learnable variables and lowers
// the declaration onto a backends.Backend, keeping the bookkeeping needed to run the
// result in different modes ("train", "infer", ...), feed external inputs and
// persist learned parameters.
package dsl

import (
	"math/rand"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/KevinCoble/graphdsl/backends"
	"github.com/KevinCoble/graphdsl/types/shapes"
	"github.com/KevinCoble/graphdsl/types/tensors"
)

const (
	// ScopeSeparator joins sub-graph instance names with the names of their inner
	// nodes: node "inner" inside instance "S" is resolvable as "S_inner".
	ScopeSeparator = "_"

	// MaxSupportedAxes bounds the rank of shapes handled by axis-permutation
	// validation, which tracks seen axes in a fixed-size bit mask.
	MaxSupportedAxes = 32
)

// Graph is a fully constructed computation graph. It is built once by NewGraph and
// afterwards immutable except for the learnable-variable value slots, so concurrent
// Run calls (including for different modes) are safe.
type Graph struct {
	backend backends.Backend
	builder backends.Builder
	nodes   []Node

	batchGraph     bool
	batchSize      int
	rng            *rand.Rand
	trackVariables bool

	// Emission state, only mutated during construction.
	ops         map[string]backends.Op     // fully-prefixed name -> emitted op
	hostValues  map[string]*tensors.Tensor // subset of ops whose initial host value is known
	cursor      backends.Op                // most recent primary output, nil when invalid
	cursorValid bool
	prefixStack []string
	inputMap    map[string]string          // sub-graph slot name -> fully-prefixed outer name
	dataMap     map[string]*tensors.Tensor // sub-graph reference name -> tensor

	feeds     []*feedSlot
	targets   map[string][]targetSlot
	variables []*variableState
	resets    []*resetEntry
	learning  *learningConfig
	updates   []*updateSlot

	// Read-only after construction.
	boundParams map[string]*tensors.Tensor
	feedIndex   map[string]*feedSlot

	mu    sync.Mutex
	execs map[string]*modeExec
}

type targetSlot struct {
	name string
	op   backends.Op
}

// GraphOption configures NewGraph.
type GraphOption func(g *Graph)

// WithBatchSize turns on the batch convention: shape-sensitive nodes insert a
// leading batch dimension of the given size.
func WithBatchSize(batchSize int) GraphOption {
	return func(g *Graph) {
		g.batchGraph = true
		g.batchSize = batchSize
	}
}

// WithSeed fixes the random generator used for variable initialization and random
// tensors, making construction reproducible.
func WithSeed(seed int64) GraphOption {
	return func(g *Graph) { g.rng = rand.New(rand.NewSource(seed)) }
}

// WithVariableTracking keeps the initial values of all variables so they can later
// be re-applied (ResetVariables) or replaced (LoadVariableValues, checkpoints)
// without reconstructing the graph.
func WithVariableTracking() GraphOption {
	return func(g *Graph) { g.trackVariables = true }
}

// NewGraph validates and resolves the full declaration, lowering it onto the given
// backend. Construction either fully succeeds or fails with the first violated rule;
// a partially constructed graph is never returned.
func NewGraph(backend backends.Backend, nodes []Node, options ...GraphOption) (*Graph, error) {
	g := &Graph{
		backend:    backend,
		builder:    backend.Builder("graphdsl"),
		nodes:      nodes,
		rng:        rand.New(rand.NewSource(42)),
		ops:        make(map[string]backends.Op),
		hostValues: make(map[string]*tensors.Tensor),
		targets:    make(map[string][]targetSlot),
		execs:      make(map[string]*modeExec),
	}
	for _, option := range options {
		option(g)
	}
	err := exceptions.TryCatch[error](func() {
		g.referencePass()
		g.emissionPass()
		g.checkAllReferenced()
		g.wireLearning()
		g.buildIndexes()
	})
	if err != nil {
		return nil, errors.WithMessage(err, "graph construction failed")
	}
	klog.V(1).Infof("graph constructed: %d nodes, %d feeds, %d variables, %d modes",
		len(g.nodes), len(g.feeds), len(g.variables), len(g.targets))
	return g, nil
}

//
// Reference pass.
//

// referencePass clears all referenced flags and then marks, for every node, the
// owner of each name it references. Omitted (implicit previous) inputs mark the
// closest preceding output-emitting node. Sub-graphs recurse into their definitions.
func (g *Graph) referencePass() {
	clearReferencedFlags(g.nodes)
	owners := make(map[string]Node)
	collectOwners("", g.nodes, owners)
	markReferences("", g.nodes, owners)
}

func clearReferencedFlags(nodes []Node) {
	for _, node := range nodes {
		node.clearReferenced()
		if sg, ok := node.(*SubGraphNode); ok && sg.definition != nil {
			clearReferencedFlags(sg.definition.nodes)
		}
	}
}

// collectOwners registers every emitted name (including multi-output suffixed names
// and sub-graph prefixed inner names) against the node that owns it.
func collectOwners(prefix string, nodes []Node, owners map[string]Node) {
	for _, node := range nodes {
		name := node.Name()
		if name != "" {
			for _, suffix := range node.outputSuffixes() {
				owners[prefix+name+suffix] = node
			}
		}
		if sg, ok := node.(*SubGraphNode); ok && sg.definition != nil {
			collectOwners(prefix+name+ScopeSeparator, sg.definition.nodes, owners)
		}
	}
}

// markReferences walks one node list, marking the owner of every referenced name.
// References are scope-relative, so they are prefixed before the lookup. Unknown
// names are skipped here: the emission pass reports them with full context.
// An implicit reference marks the closest preceding node that emits outputs,
// matching the chaining cursor, which configuration-only nodes do not move.
func markReferences(prefix string, nodes []Node, owners map[string]Node) {
	for ii, node := range nodes {
		for _, ref := range node.inputRefs() {
			if ref == "" {
				for jj := ii - 1; jj >= 0; jj-- {
					if !nodes[jj].emitsOutputs() {
						continue
					}
					nodes[jj].markReferenced()
					break
				}
				continue
			}
			if owner, ok := owners[prefix+ref]; ok {
				owner.markReferenced()
			}
		}
		if sg, ok := node.(*SubGraphNode); ok && sg.definition != nil {
			markReferences(prefix+node.Name()+ScopeSeparator, sg.definition.nodes, owners)
		}
	}
}

func (g *Graph) checkAllReferenced() {
	for _, node := range g.nodes {
		node.checkReferenced(g)
	}
}

//
// Emission pass.
//

// emissionPass walks the top-level node list in declaration order. Sub-graphs
// re-enter emitNodes for their inner lists with the scope installed.
func (g *Graph) emissionPass() {
	g.emitNodes(g.nodes)
}

func (g *Graph) emitNodes(nodes []Node) {
	for _, node := range nodes {
		if err := node.buildError(); err != nil {
			panic(err)
		}
		emitted := node.resolve(g)
		if emitted == nil {
			// Configuration-only node (e.g. Learning): no output, cursor untouched.
			continue
		}
		g.bind(node, emitted)
	}
}

// bind enters a node's emitted tensors into the symbol table under the prefixed,
// suffixed names, registers mode targets and advances the chaining cursor.
func (g *Graph) bind(node Node, emitted []backends.Op) {
	suffixes := node.outputSuffixes()
	if len(suffixes) != len(emitted) {
		exceptions.Panicf("node %q emitted %d tensors but declares %d output suffixes",
			nodeDisplayName(node), len(emitted), len(suffixes))
	}

	name := node.Name()
	prefixed := ""
	if name != "" {
		prefixed = g.prefix() + name
		for ii, op := range emitted {
			if op == nil {
				continue
			}
			full := prefixed + suffixes[ii]
			if _, exists := g.ops[full]; exists {
				exceptions.Panicf("duplicate tensor name %q in graph", full)
			}
			g.ops[full] = op
		}
	}

	if modes := node.TargetModes(); len(modes) > 0 {
		if name == "" {
			exceptions.Panicf("%s node is a target for modes %v and must be named",
				nodeKindName(node), modes)
		}
		eligible := node.targetEligibleIndices()
		if eligible == nil {
			eligible = make([]int, len(emitted))
			for ii := range eligible {
				eligible[ii] = ii
			}
		}
		if len(eligible) == 0 {
			exceptions.Panicf("node %q is a target but declares no target-eligible outputs", prefixed)
		}
		for _, mode := range modes {
			for _, idx := range eligible {
				if idx < 0 || idx >= len(emitted) || emitted[idx] == nil {
					exceptions.Panicf("node %q: target-eligible output #%d does not exist", prefixed, idx)
				}
				g.targets[mode] = append(g.targets[mode],
					targetSlot{name: prefixed + suffixes[idx], op: emitted[idx]})
			}
		}
	}

	// The cursor becomes the primary (first) output; a nil entry leaves the cursor
	// invalid until the next emitting node (the sub-graph boundary case).
	g.cursor = emitted[0]
	g.cursorValid = emitted[0] != nil
}

//
// Name resolution and scoping.
//

// prefix returns the current scope prefix, empty at top level.
func (g *Graph) prefix() string {
	if len(g.prefixStack) == 0 {
		return ""
	}
	return g.prefixStack[len(g.prefixStack)-1]
}

// pushPrefix enters a sub-graph scope: the instance segment is appended to the
// current prefix so names read outer-to-inner ("Outer_Inner_leaf").
func (g *Graph) pushPrefix(segment string) {
	g.prefixStack = append(g.prefixStack, g.prefix()+segment+ScopeSeparator)
}

func (g *Graph) popPrefix() {
	g.prefixStack = g.prefixStack[:len(g.prefixStack)-1]
}

// resolveInput resolves one declared input reference to its emitted op. An empty
// name means the implicit previous output (the cursor).
func (g *Graph) resolveInput(ref string) backends.Op {
	if ref == "" {
		if !g.cursorValid {
			exceptions.Panicf("no previous output available to use as implicit input")
		}
		return g.cursor
	}
	full := g.prefix() + ref
	if op, ok := g.ops[full]; ok {
		return op
	}
	exceptions.Panicf("named tensor %q not found", full)
	return nil
}

// lookup fetches an already-emitted tensor by fully-prefixed name.
func (g *Graph) lookup(fullName string) backends.Op {
	op, ok := g.ops[fullName]
	if !ok {
		exceptions.Panicf("named tensor %q not found", fullName)
	}
	return op
}

// recordHostValue remembers the concrete initial data emitted for a node, so that
// variables adopting "another node's tensor" can capture it.
func (g *Graph) recordHostValue(fullName string, value *tensors.Tensor) {
	if fullName != "" {
		g.hostValues[fullName] = value
	}
}

//
// Shared emission helpers.
//

// mustNoError converts the backend's error returns into construction panics, caught
// at the NewGraph boundary.
func mustNoError[T any](value T, err error) T {
	if err != nil {
		panic(errors.WithStack(err))
	}
	return value
}

// opShape queries the backend shape of an emitted op.
func (g *Graph) opShape(op backends.Op) shapes.Shape {
	return mustNoError(g.builder.OpShape(op))
}

// scalarConst emits a scalar constant of the given dtype.
func (g *Graph) scalarConst(dtype dtypes.DType, value float64) backends.Op {
	var flat any
	switch dtype {
	case dtypes.Float32:
		flat = []float32{float32(value)}
	case dtypes.Float64:
		flat = []float64{value}
	case dtypes.Int32:
		flat = []int32{int32(value)}
	case dtypes.Int64:
		flat = []int64{int64(value)}
	default:
		exceptions.Panicf("cannot build a scalar constant of data type %s", dtype)
	}
	vector := mustNoError(g.builder.Constant(flat, 1))
	return mustNoError(g.builder.Reshape(vector))
}

// inputLabel names an input reference in error messages, with a stand-in for the
// implicit previous output.
func inputLabel(ref string) string {
	if ref == "" {
		return "previous node"
	}
	return ref
}

func nodeDisplayName(node Node) string {
	if node.Name() == "" {
		return "*Unnamed*"
	}
	return node.Name()
}

// nodeKindName extracts the user-facing node type for error messages.
func nodeKindName(node Node) string {
	type kinded interface{ kind() string }
	if k, ok := node.(kinded); ok {
		return k.kind()
	}
	return "node"
}
