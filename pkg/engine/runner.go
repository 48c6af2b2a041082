package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"routines/runtime-go/pkg/ast"
	"routines/runtime-go/pkg/interpreter"
	"routines/runtime-go/pkg/registry"
	"routines/runtime-go/pkg/runtime"
)

// frameState is what the engine stores in a frame's state blob. Exactly one
// of Program and Native is set, matching Kind.
type frameState struct {
	Kind    registry.Kind      `json:"kind"`
	Program *interpreter.State `json:"program,omitempty"`
	Native  *nativeState       `json:"native,omitempty"`
}

type nativeState struct {
	Status  interpreter.ExecutionState `json:"status"`
	Args    runtime.Box                `json:"args"`
	State   runtime.Box                `json:"state"`
	Pending *interpreter.Suspension    `json:"pending,omitempty"`
}

func decodeFrameState(data json.RawMessage) (*frameState, error) {
	var fs frameState
	if err := json.Unmarshal(data, &fs); err != nil {
		return nil, fmt.Errorf("engine: decode frame state: %w", err)
	}
	switch fs.Kind {
	case registry.KindProgram:
		if fs.Program == nil {
			return nil, fmt.Errorf("engine: program frame without interpreter state")
		}
		if err := fs.Program.Validate(); err != nil {
			return nil, err
		}
	case registry.KindNative:
		if fs.Native == nil {
			return nil, fmt.Errorf("engine: native frame without state")
		}
	default:
		return nil, fmt.Errorf("engine: unknown frame kind %q", fs.Kind)
	}
	return &fs, nil
}

func (fs *frameState) encode() (json.RawMessage, error) {
	return json.Marshal(fs)
}

// pending returns the call the frame is paused on, if any.
func (fs *frameState) pending() *interpreter.Suspension {
	switch fs.Kind {
	case registry.KindProgram:
		return fs.Program.Pending
	case registry.KindNative:
		return fs.Native.Pending
	}
	return nil
}

// runner executes frames of one routine kind.
type runner interface {
	// init builds the state of a fresh frame with args bound.
	init(args map[string]runtime.Value) *frameState
	// run advances fs. resumed is nil on the first run and holds the result
	// of the pending call afterwards.
	run(ctx context.Context, fs *frameState, resumed runtime.Value) (*interpreter.Result, error)
}

// runnerFor is the single place routine kinds are dispatched.
func (e *Engine) runnerFor(r *registry.Routine) (runner, error) {
	switch r.Kind {
	case registry.KindProgram:
		module, err := e.program(r)
		if err != nil {
			return nil, err
		}
		return &programRunner{module: module, budget: e.maxSteps, logger: e.logger}, nil
	case registry.KindNative:
		return &nativeRunner{fn: r.Native}, nil
	default:
		return nil, fmt.Errorf("engine: %s: unknown routine kind %q", r.QualifiedName(), r.Kind)
	}
}

type programRunner struct {
	module *ast.Module
	budget int
	logger zerolog.Logger
}

func (p *programRunner) interpreter() *interpreter.Interpreter {
	return interpreter.New(p.module, interpreter.WithStepBudget(p.budget), interpreter.WithLogger(p.logger))
}

func (p *programRunner) init(args map[string]runtime.Value) *frameState {
	interp := p.interpreter()
	interp.Load(args)
	return &frameState{Kind: registry.KindProgram, Program: interp.State()}
}

func (p *programRunner) run(_ context.Context, fs *frameState, resumed runtime.Value) (*interpreter.Result, error) {
	interp := p.interpreter()
	if err := interp.SetState(fs.Program); err != nil {
		return nil, err
	}
	defer func() { fs.Program = interp.State() }()
	if resumed != nil {
		return interp.Resume(resumed)
	}
	return interp.Run()
}

type nativeRunner struct {
	fn registry.NativeFunc
}

func (n *nativeRunner) init(args map[string]runtime.Value) *frameState {
	return &frameState{Kind: registry.KindNative, Native: &nativeState{
		Status: interpreter.StateRunning,
		Args:   runtime.Box{Value: kwargsDict(args)},
		State:  runtime.Box{Value: runtime.NewDict()},
	}}
}

func (n *nativeRunner) run(ctx context.Context, fs *frameState, resumed runtime.Value) (*interpreter.Result, error) {
	ns := fs.Native
	switch ns.Status {
	case interpreter.StateCompleted, interpreter.StateError:
		return nil, interpreter.ErrFinished
	case interpreter.StatePaused:
		if resumed == nil {
			return nil, fmt.Errorf("engine: pending call %s needs a result", ns.Pending.Name)
		}
	default:
		if resumed != nil {
			return nil, interpreter.ErrNotPaused
		}
	}

	args, _ := ns.Args.Value.(*runtime.DictValue)
	state, ok := ns.State.Value.(*runtime.DictValue)
	if !ok {
		state = runtime.NewDict()
		ns.State = runtime.Box{Value: state}
	}
	in := &registry.NativeInput{Args: dictMap(args), State: state, Resumed: resumed}
	ns.Status = interpreter.StateRunning
	ns.Pending = nil

	step, err := n.fn(ctx, in)
	if err != nil {
		ns.Status = interpreter.StateError
		return nil, err
	}
	if step.Call != nil {
		if step.Call.Kwargs == nil {
			step.Call.Kwargs = runtime.NewDict()
		}
		ns.Status = interpreter.StatePaused
		ns.Pending = step.Call
		return &interpreter.Result{Status: interpreter.StatePaused, Suspension: step.Call}, nil
	}
	value := step.Return
	if value == nil {
		value = runtime.None
	}
	ns.Status = interpreter.StateCompleted
	return &interpreter.Result{Status: interpreter.StateCompleted, Value: value}, nil
}

func dictMap(d *runtime.DictValue) map[string]runtime.Value {
	out := make(map[string]runtime.Value)
	if d == nil {
		return out
	}
	for _, k := range d.Keys() {
		out[k], _ = d.Get(k)
	}
	return out
}

// bindArgs maps call arguments onto the routine's declared parameters.
// Keyword arguments that match no parameter are bound as extra variables.
func bindArgs(r *registry.Routine, args []runtime.Value, kwargs map[string]runtime.Value) (map[string]runtime.Value, error) {
	if len(args) > len(r.Params) {
		return nil, &interpreter.RuntimeError{
			Kind:    interpreter.KindTypeMismatch,
			Message: fmt.Sprintf("%s takes %d positional arguments but %d were given", r.QualifiedName(), len(r.Params), len(args)),
		}
	}
	bound := make(map[string]runtime.Value, len(r.Params)+len(kwargs))
	for i, v := range args {
		bound[r.Params[i]] = v
	}
	for name, v := range kwargs {
		if _, dup := bound[name]; dup {
			return nil, &interpreter.RuntimeError{
				Kind:    interpreter.KindTypeMismatch,
				Message: fmt.Sprintf("%s got multiple values for argument %q", r.QualifiedName(), name),
			}
		}
		bound[name] = v
	}
	for _, p := range r.Params {
		if _, ok := bound[p]; !ok {
			return nil, &interpreter.RuntimeError{
				Kind:    interpreter.KindTypeMismatch,
				Message: fmt.Sprintf("%s missing argument %q", r.QualifiedName(), p),
			}
		}
	}
	return bound, nil
}
