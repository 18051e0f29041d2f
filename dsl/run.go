package dsl

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/KevinCoble/graphdsl/backends"
	"github.com/KevinCoble/graphdsl/types/shapes"
	"github.com/KevinCoble/graphdsl/types/tensors"
	"github.com/KevinCoble/graphdsl/types/xslices"
)

// feedSlot is one registered placeholder: the input's fully-prefixed name, its
// (batch-adjusted) shape, and the modes it applies to (empty = all).
type feedSlot struct {
	name  string
	shape shapes.Shape
	modes []string
}

func (f *feedSlot) appliesTo(mode string) bool {
	if len(f.modes) == 0 {
		return true
	}
	for _, m := range f.modes {
		if m == mode {
			return true
		}
	}
	return false
}

// modeExec is the compiled executable for one run mode, built lazily on first Run.
type modeExec struct {
	exec        backends.Executable
	inputNames  []string
	targetNames []string
	updates     []*updateSlot
}

// Modes returns the run modes with at least one registered target, sorted.
func (g *Graph) Modes() []string {
	return xslices.SortedKeys(g.targets)
}

// TargetNames returns the ordered target tensor names registered for a mode.
func (g *Graph) TargetNames(mode string) ([]string, error) {
	slots := g.targets[mode]
	if len(slots) == 0 {
		return nil, errors.Errorf("mode %q has no registered targets", mode)
	}
	names := make([]string, len(slots))
	for ii, slot := range slots {
		names[ii] = slot.name
	}
	return names, nil
}

// FeedNames returns the placeholder names applicable to a mode.
func (g *Graph) FeedNames(mode string) []string {
	var names []string
	for _, slot := range g.feeds {
		if slot.appliesTo(mode) {
			names = append(names, slot.name)
		}
	}
	return names
}

// Run executes one mode: it feeds the applicable placeholders from the feeds map
// (keyed by fully-prefixed placeholder name) plus the current variable values,
// executes the mode's compiled graph and returns the target tensors keyed by their
// names. For the learning mode, the variable updates are applied before returning.
//
// Run is safe for concurrent use, including concurrent calls for different modes.
func (g *Graph) Run(mode string, feeds map[string]*tensors.Tensor) (map[string]*tensors.Tensor, error) {
	me, err := g.modeExecutable(mode)
	if err != nil {
		return nil, err
	}
	inputs, err := g.assembleInputs(me, mode, feeds)
	if err != nil {
		return nil, err
	}
	results, err := me.exec.Execute(inputs...)
	if err != nil {
		return nil, errors.WithMessagef(err, "executing mode %q", mode)
	}

	named := make(map[string]*tensors.Tensor, len(me.targetNames))
	for ii, name := range me.targetNames {
		named[name] = results[ii]
	}
	if len(me.updates) > 0 {
		g.mu.Lock()
		for ii, update := range me.updates {
			dst := update.state.host
			if update.toVelocity {
				dst = update.state.velocity
			}
			dst.CopyFrom(results[len(me.targetNames)+ii])
		}
		g.mu.Unlock()
	}
	return named, nil
}

// modeExecutable compiles (once) and returns the executable for a mode.
func (g *Graph) modeExecutable(mode string) (*modeExec, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if me, ok := g.execs[mode]; ok {
		return me, nil
	}

	slots := g.targets[mode]
	if len(slots) == 0 {
		return nil, errors.Errorf("mode %q has no registered targets", mode)
	}
	outputs := make([]backends.Op, 0, len(slots)+len(g.updates))
	targetNames := make([]string, 0, len(slots))
	for _, slot := range slots {
		outputs = append(outputs, slot.op)
		targetNames = append(targetNames, slot.name)
	}
	var updates []*updateSlot
	if g.learning != nil && g.learning.mode == mode {
		updates = g.updates
		for _, update := range updates {
			outputs = append(outputs, update.op)
		}
	}

	exec, err := g.builder.Compile(outputs...)
	if err != nil {
		return nil, errors.WithMessagef(err, "compiling mode %q", mode)
	}
	inputNames, _ := exec.Inputs()
	me := &modeExec{exec: exec, inputNames: inputNames, targetNames: targetNames, updates: updates}
	g.execs[mode] = me
	klog.V(1).Infof("compiled mode %q: %d targets, %d updates, %d inputs",
		mode, len(targetNames), len(updates), len(inputNames))
	return me, nil
}

// assembleInputs matches the executable's required inputs against variable values
// and caller-supplied feeds. Variable values are snapshotted under the lock so a
// concurrent training step cannot tear them.
func (g *Graph) assembleInputs(me *modeExec, mode string, feeds map[string]*tensors.Tensor) ([]*tensors.Tensor, error) {
	inputs := make([]*tensors.Tensor, len(me.inputNames))
	g.mu.Lock()
	defer g.mu.Unlock()
	for ii, name := range me.inputNames {
		if host, ok := g.boundParams[name]; ok {
			inputs[ii] = host.Clone()
			continue
		}
		slot, ok := g.feedIndex[name]
		if !ok {
			return nil, errors.Errorf("mode %q requires input %q which is neither a variable nor a placeholder", mode, name)
		}
		if !slot.appliesTo(mode) {
			return nil, errors.Errorf("placeholder %q is not declared for mode %q but the mode's targets depend on it", name, mode)
		}
		value, ok := feeds[name]
		if !ok {
			return nil, errors.Errorf("mode %q requires a value for placeholder %q", mode, name)
		}
		if !value.Shape().Equal(slot.shape) {
			return nil, errors.Errorf("placeholder %q expects shape %s, got %s", name, slot.shape, value.Shape())
		}
		inputs[ii] = value
	}
	return inputs, nil
}

// buildIndexes finalizes the lookup maps used by Run, called at the end of
// construction. The tensor pointers registered here are stable: resets and loads
// mutate them in place.
func (g *Graph) buildIndexes() {
	g.boundParams = make(map[string]*tensors.Tensor, len(g.variables))
	for _, state := range g.variables {
		g.boundParams[state.name] = state.host
		if state.velocity != nil {
			g.boundParams[state.name+"_velocity"] = state.velocity
		}
	}
	g.feedIndex = make(map[string]*feedSlot, len(g.feeds))
	for _, slot := range g.feeds {
		g.feedIndex[slot.name] = slot
	}
}
