package dsl

import (
	"encoding/gob"
	"io"

	"github.com/pkg/errors"

	"github.com/KevinCoble/graphdsl/types/tensors"
)

// VariableValues snapshots the current value of every variable, keyed by its fully
// prefixed name. The returned tensors are clones, safe to hold across further runs.
func (g *Graph) VariableValues() map[string]*tensors.Tensor {
	g.mu.Lock()
	defer g.mu.Unlock()
	values := make(map[string]*tensors.Tensor, len(g.variables))
	for _, state := range g.variables {
		values[state.name] = state.host.Clone()
	}
	return values
}

// LoadVariableValues overwrites variable values from a snapshot, without
// reconstructing the graph. Every entry must name an existing variable and match
// its shape and data type.
func (g *Graph) LoadVariableValues(values map[string]*tensors.Tensor) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, state := range g.variables {
		value, ok := values[state.name]
		if !ok {
			continue
		}
		if !value.Shape().Equal(state.host.Shape()) {
			return errors.Errorf("variable %q expects shape %s, got %s",
				state.name, state.host.Shape(), value.Shape())
		}
		state.host.CopyFrom(value)
	}
	for name := range values {
		found := false
		for _, state := range g.variables {
			if state.name == name {
				found = true
				break
			}
		}
		if !found {
			return errors.Errorf("no variable named %q in this graph", name)
		}
	}
	return nil
}

// ResetVariables re-applies every variable's captured initial value. The graph must
// have been constructed with WithVariableTracking.
func (g *Graph) ResetVariables() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.trackVariables {
		return errors.New("graph was constructed without WithVariableTracking")
	}
	for _, entry := range g.resets {
		entry.state.host.CopyFrom(entry.initial)
		if entry.state.velocity != nil {
			entry.state.velocity.CopyFrom(tensors.FromShape(entry.state.velocity.Shape()))
		}
	}
	return nil
}

// ResetData returns a copy of the initial value captured for the named variable.
// Repeated queries return equal tensors.
func (g *Graph) ResetData(name string) (*tensors.Tensor, error) {
	if !g.trackVariables {
		return nil, errors.New("graph was constructed without WithVariableTracking")
	}
	for _, entry := range g.resets {
		if entry.state.name == name {
			return entry.initial.Clone(), nil
		}
	}
	return nil, errors.Errorf("no tracked variable named %q in this graph", name)
}

// SaveCheckpoint writes a gob snapshot of all variable values.
func (g *Graph) SaveCheckpoint(w io.Writer) error {
	values := g.VariableValues()
	if err := gob.NewEncoder(w).Encode(values); err != nil {
		return errors.Wrap(err, "encoding checkpoint")
	}
	return nil
}

// LoadCheckpoint restores variable values from a gob snapshot written by
// SaveCheckpoint, validating names and shapes.
func (g *Graph) LoadCheckpoint(r io.Reader) error {
	var values map[string]*tensors.Tensor
	if err := gob.NewDecoder(r).Decode(&values); err != nil {
		return errors.Wrap(err, "decoding checkpoint")
	}
	return g.LoadVariableValues(values)
}
