package runtime

import (
	"errors"
	"fmt"
	"sort"
)

// ErrUndefined is wrapped by lookups of names that were never bound.
var ErrUndefined = errors.New("undefined variable")

// Environment holds a routine's variables. Routines have a single flat scope.
type Environment struct {
	values map[string]Value
}

func NewEnvironment() *Environment {
	return &Environment{values: make(map[string]Value)}
}

// Snapshot returns a copy of the current bindings.
func (e *Environment) Snapshot() map[string]Value {
	out := make(map[string]Value, len(e.values))
	for k, v := range e.values {
		out[k] = v
	}
	return out
}

// Define inserts or replaces a binding.
func (e *Environment) Define(name string, value Value) {
	e.values[name] = value
}

// Assign updates an existing binding.
func (e *Environment) Assign(name string, value Value) error {
	if _, ok := e.values[name]; ok {
		e.values[name] = value
		return nil
	}
	return fmt.Errorf("%w '%s'", ErrUndefined, name)
}

// Get retrieves a binding.
func (e *Environment) Get(name string) (Value, error) {
	if v, ok := e.values[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("%w '%s'", ErrUndefined, name)
}

func (e *Environment) Has(name string) bool {
	_, ok := e.values[name]
	return ok
}

// Keys returns the bindings in sorted order.
func (e *Environment) Keys() []string {
	keys := make([]string, 0, len(e.values))
	for k := range e.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone deep-copies every binding.
func (e *Environment) Clone() *Environment {
	out := NewEnvironment()
	for k, v := range e.values {
		out.values[k] = Copy(v)
	}
	return out
}
