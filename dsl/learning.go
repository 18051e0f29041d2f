package dsl

import (
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"

	"github.com/KevinCoble/graphdsl/backends"
	"github.com/KevinCoble/graphdsl/types/tensors"
)

// DefaultLearningMode is the run mode in which variable updates are applied.
const DefaultLearningMode = "train"

// LearningNode configures gradient-descent training for one loss node. At most one
// Learning node may appear in a graph.
type LearningNode struct {
	baseNode
	lossName string
	rate     float64
	momentum float64
	mode     string
}

// Learning declares gradient-descent training against the named loss node, with
// updates applied when running the "train" mode.
func Learning(lossName string) *LearningNode {
	n := &LearningNode{lossName: lossName, rate: 0.01, mode: DefaultLearningMode}
	n.kindName = "Learning"
	return n
}

// WithLearningRate sets the step size. Default is 0.01.
func (n *LearningNode) WithLearningRate(rate float64) *LearningNode {
	n.rate = rate
	return n
}

// WithMomentum sets the velocity-decay coefficient used by Momentum-optimizer
// variables.
func (n *LearningNode) WithMomentum(coefficient float64) *LearningNode {
	n.momentum = coefficient
	return n
}

// ForMode changes the run mode in which updates are applied.
func (n *LearningNode) ForMode(mode string) *LearningNode {
	n.mode = mode
	return n
}

func (n *LearningNode) inputRefs() []string { return []string{n.lossName} }

// A Learning node is configuration only: it is exempt from the referenced rule.
func (n *LearningNode) checkReferenced(g *Graph) {}

func (n *LearningNode) emitsOutputs() bool { return false }

func (n *LearningNode) resolve(g *Graph) []backends.Op {
	if g.learning != nil {
		exceptions.Panicf("more than one Learning node declared in the same graph")
	}
	g.learning = &learningConfig{
		lossName:     g.prefix() + n.lossName,
		declaredLoss: n.lossName,
		rate:         n.rate,
		momentum:     n.momentum,
		mode:         n.mode,
	}
	return nil
}

type learningConfig struct {
	lossName     string // fully prefixed
	declaredLoss string // as declared on the Learning node
	rate         float64
	momentum     float64
	mode         string
}

// updateSlot is one training output: the freshly computed value for a variable's
// host tensor (or its momentum velocity), written back after a training run.
type updateSlot struct {
	state      *variableState
	op         backends.Op
	toVelocity bool
}

// wireLearning builds the gradient-descent update ops for every trainable variable,
// ran once at the end of construction.
func (g *Graph) wireLearning() {
	var trainable []*variableState
	for _, state := range g.variables {
		if state.node.lossName == "" {
			continue
		}
		if g.learning == nil {
			exceptions.Panicf("variable %q is trainable against loss %q but the graph declares no Learning node",
				state.name, state.node.lossName)
		}
		if state.node.lossName != g.learning.declaredLoss {
			exceptions.Panicf("variable %q is trainable against loss %q but the Learning node trains loss %q",
				state.name, state.node.lossName, g.learning.declaredLoss)
		}
		trainable = append(trainable, state)
	}
	if g.learning == nil {
		return
	}
	lossOp := g.lookup(g.learning.lossName)
	lossShape := g.opShape(lossOp)
	if !lossShape.IsScalar() || !lossShape.DType.IsFloat() {
		exceptions.Panicf("loss node %q must resolve to a scalar float, got %s",
			g.learning.lossName, lossShape)
	}
	if len(trainable) == 0 {
		klog.Warningf("graph declares a Learning node for loss %q but no trainable variables",
			g.learning.lossName)
		return
	}

	params := make([]backends.Op, len(trainable))
	for ii, state := range trainable {
		params[ii] = state.param
	}
	grads := mustNoError(g.builder.Gradient(lossOp, params...))

	for ii, state := range trainable {
		grad := grads[ii]
		dtype := state.host.DType()
		if state.node.clip {
			grad = mustNoError(g.builder.Clamp(
				g.scalarConst(dtype, state.node.clipLo), grad,
				g.scalarConst(dtype, state.node.clipHi)))
		}
		rate := g.scalarConst(dtype, g.learning.rate)
		step := mustNoError(g.builder.Mul(rate, grad))

		switch state.node.optimizer {
		case Momentum:
			state.velocity = tensors.FromShape(state.host.Shape())
			state.velocityParam = mustNoError(g.builder.Parameter(state.name+"_velocity", state.host.Shape()))
			decay := g.scalarConst(dtype, g.learning.momentum)
			newVelocity := mustNoError(g.builder.Sub(
				mustNoError(g.builder.Mul(decay, state.velocityParam)), step))
			newValue := mustNoError(g.builder.Add(state.param, newVelocity))
			g.updates = append(g.updates,
				&updateSlot{state: state, op: newVelocity, toVelocity: true},
				&updateSlot{state: state, op: newValue})
		default:
			newValue := mustNoError(g.builder.Sub(state.param, step))
			g.updates = append(g.updates, &updateSlot{state: state, op: newValue})
		}
	}
}
