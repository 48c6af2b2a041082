package registry

import (
	"context"
	"fmt"

	"routines/runtime-go/pkg/interpreter"
	"routines/runtime-go/pkg/runtime"
)

// Kind tags which runner executes a routine.
type Kind string

const (
	// KindProgram routines are written in the restricted routine language.
	KindProgram Kind = "program"
	// KindNative routines are Go step functions.
	KindNative Kind = "native"
)

// Routine is an immutable routine definition. Source is set for program
// routines and Native for native ones.
type Routine struct {
	Name        string
	Skill       string
	Description string
	Params      []string
	Kind        Kind
	Source      string
	Native      NativeFunc

	// Origin records where the definition was loaded from, for diagnostics.
	Origin string
}

// QualifiedName is skill.name, or just name for routines without a skill.
func (r *Routine) QualifiedName() string {
	if r.Skill == "" {
		return r.Name
	}
	return r.Skill + "." + r.Name
}

func (r *Routine) String() string {
	return fmt.Sprintf("%s (%s)", r.QualifiedName(), r.Kind)
}

// NativeInput is what a native routine sees on each step.
type NativeInput struct {
	// Args holds the bound parameters.
	Args map[string]runtime.Value
	// State persists between steps of one invocation. Mutate it in place.
	State *runtime.DictValue
	// Resumed is the result of the call the previous step suspended on. It
	// is nil on the first step.
	Resumed runtime.Value
}

// NativeStep is the outcome of one native step: either a call to suspend
// on or a return value.
type NativeStep struct {
	Call   *interpreter.Suspension
	Return runtime.Value
}

// NativeFunc runs one step of a native routine.
type NativeFunc func(ctx context.Context, in *NativeInput) (NativeStep, error)

// Suspend builds a step that pauses on name.
func Suspend(name string, args ...runtime.Value) NativeStep {
	return NativeStep{Call: &interpreter.Suspension{Name: name, Args: args, Kwargs: runtime.NewDict()}}
}

// Return builds a step that completes with value.
func Return(value runtime.Value) NativeStep {
	if value == nil {
		value = runtime.None
	}
	return NativeStep{Return: value}
}
