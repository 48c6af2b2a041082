package interpreter

import (
	"fmt"

	"github.com/rs/zerolog"

	"routines/runtime-go/pkg/ast"
	"routines/runtime-go/pkg/runtime"
)

// Result is what one call to Run or Resume produced: a returned value
// (COMPLETED) or a pending external call (PAUSED).
type Result struct {
	Status     ExecutionState
	Value      runtime.Value
	Suspension *Suspension
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithStepBudget bounds the number of statements a routine may execute.
// Zero means unbounded.
func WithStepBudget(steps int) Option {
	return func(i *Interpreter) { i.budget = steps }
}

// WithLogger sets the logger used for statement tracing.
func WithLogger(logger zerolog.Logger) Option {
	return func(i *Interpreter) { i.logger = logger }
}

// Interpreter executes one validated routine body. It never calls external
// code: reaching an external call pauses it until Resume delivers the result.
type Interpreter struct {
	module *ast.Module
	state  *State
	budget int
	logger zerolog.Logger

	// callIndex counts external calls reached in the evaluation unit that is
	// executing. It is reset whenever a unit starts over.
	callIndex int
}

// New returns an interpreter for module with empty variables.
func New(module *ast.Module, opts ...Option) *Interpreter {
	i := &Interpreter{
		module: module,
		state:  NewState(nil),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Load resets the interpreter to the first statement with args bound as variables.
func (i *Interpreter) Load(args map[string]runtime.Value) {
	env := runtime.NewEnvironment()
	for name, value := range args {
		env.Define(name, value)
	}
	i.state = NewState(env)
	i.callIndex = 0
}

// State exposes the live state. Callers that keep it across Run calls
// should Marshal it.
func (i *Interpreter) State() *State {
	return i.state
}

// SetState replaces the interpreter state, typically with one restored from storage.
func (i *Interpreter) SetState(state *State) error {
	if err := state.Validate(); err != nil {
		return err
	}
	i.state = state
	i.callIndex = 0
	return nil
}

// Status returns the current execution state.
func (i *Interpreter) Status() ExecutionState {
	return i.state.Status
}

// Environment returns the routine's variables.
func (i *Interpreter) Environment() *runtime.Environment {
	return i.state.Variables
}

// Run executes from the program counter until the routine suspends,
// returns, or fails.
func (i *Interpreter) Run() (*Result, error) {
	switch i.state.Status {
	case StatePaused:
		return nil, fmt.Errorf("interpreter: pending call %s needs a result", i.state.Pending.Name)
	case StateCompleted, StateError:
		return nil, ErrFinished
	}
	return i.run()
}

// Resume injects value as the result of the pending external call and continues.
func (i *Interpreter) Resume(value runtime.Value) (*Result, error) {
	if i.state.Status != StatePaused || i.state.Pending == nil {
		if i.state.Status.Terminal() {
			return nil, ErrFinished
		}
		return nil, ErrNotPaused
	}
	if value == nil {
		value = runtime.None
	}
	i.state.Calls = append(i.state.Calls, CallRecord{Name: i.state.Pending.Name, Result: runtime.Box{Value: value}})
	i.state.Pending = nil
	i.state.Status = StateRunning
	return i.run()
}

func (i *Interpreter) run() (*Result, error) {
	if i.module == nil {
		return nil, fmt.Errorf("interpreter: no program loaded")
	}
	s := i.state
	for s.PC < len(i.module.Body) {
		if err := i.execStatement(i.module.Body[s.PC], 0); err != nil {
			return i.settle(err)
		}
		s.PC++
		s.Stack = nil
	}
	return i.complete(runtime.None), nil
}

func (i *Interpreter) settle(err error) (*Result, error) {
	s := i.state
	switch sig := err.(type) {
	case suspendSignal:
		s.Status = StatePaused
		s.Pending = sig.call
		i.logger.Debug().Str("call", sig.call.Name).Int("pc", s.PC).Int("depth", len(s.Stack)).Msg("interpreter suspended")
		return &Result{Status: StatePaused, Suspension: sig.call}, nil
	case returnSignal:
		return i.complete(sig.value), nil
	case breakSignal, continueSignal:
		err = newRuntimeError(KindUnsupportedExpression, "%s", err.Error())
	}
	s.Status = StateError
	s.Error = err.Error()
	s.Calls = nil
	s.Pending = nil
	i.logger.Debug().Err(err).Int("pc", s.PC).Msg("interpreter failed")
	return nil, err
}

func (i *Interpreter) complete(value runtime.Value) *Result {
	s := i.state
	if value == nil {
		value = runtime.None
	}
	s.Status = StateCompleted
	s.Result = &runtime.Box{Value: value}
	s.Stack = nil
	s.Calls = nil
	s.Pending = nil
	s.PC = len(i.module.Body)
	return &Result{Status: StateCompleted, Value: value}
}

// tick counts one executed step against the budget.
func (i *Interpreter) tick() error {
	i.state.Steps++
	if i.budget > 0 && i.state.Steps > i.budget {
		return newRuntimeError(KindStepBudgetExceeded, "routine exceeded %d steps", i.budget)
	}
	return nil
}

// beginUnit starts (or restarts after a resume) an evaluation unit: the part
// of a statement that must finish before its effects are committed.
func (i *Interpreter) beginUnit() {
	i.callIndex = 0
}

// commitUnit discards injected call results once the unit's effects are applied.
func (i *Interpreter) commitUnit() {
	i.state.Calls = nil
	i.callIndex = 0
}

// externalCall replays a previously injected result or suspends.
func (i *Interpreter) externalCall(name string, args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	s := i.state
	if i.callIndex < len(s.Calls) {
		record := s.Calls[i.callIndex]
		if record.Name != name {
			return nil, newRuntimeError(KindReplayDiverged, "expected call to %s on resume, reached %s", record.Name, name)
		}
		i.callIndex++
		return record.Result.Value, nil
	}
	return nil, suspendSignal{call: &Suspension{Name: name, Args: args, Kwargs: kwargs}}
}
