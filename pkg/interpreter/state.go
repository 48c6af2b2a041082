package interpreter

import (
	"encoding/json"
	"fmt"

	"routines/runtime-go/pkg/runtime"
)

// ExecutionState tags where an interpreter is in its lifecycle.
type ExecutionState string

const (
	StateRunning   ExecutionState = "RUNNING"
	StatePaused    ExecutionState = "PAUSED"
	StateCompleted ExecutionState = "COMPLETED"
	StateError     ExecutionState = "ERROR"
)

// Terminal reports whether the state can never run again.
func (s ExecutionState) Terminal() bool {
	return s == StateCompleted || s == StateError
}

// Suspension describes a fully evaluated external call the interpreter is
// waiting on.
type Suspension struct {
	Name   string
	Args   []runtime.Value
	Kwargs *runtime.DictValue
}

type suspensionJSON struct {
	Name   string        `json:"name"`
	Args   []runtime.Box `json:"args"`
	Kwargs runtime.Box   `json:"kwargs"`
}

func (s *Suspension) MarshalJSON() ([]byte, error) {
	kwargs := s.Kwargs
	if kwargs == nil {
		kwargs = runtime.NewDict()
	}
	return json.Marshal(suspensionJSON{Name: s.Name, Args: runtime.BoxAll(s.Args), Kwargs: runtime.Box{Value: kwargs}})
}

func (s *Suspension) UnmarshalJSON(data []byte) error {
	var raw suspensionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Name = raw.Name
	s.Args = runtime.UnboxAll(raw.Args)
	s.Kwargs = runtime.NewDict()
	if raw.Kwargs.Value != nil {
		dict, ok := raw.Kwargs.Value.(*runtime.DictValue)
		if !ok {
			return fmt.Errorf("interpreter: suspension kwargs must be a mapping")
		}
		s.Kwargs = dict
	}
	return nil
}

// KwargsMap returns keyword arguments as a plain map.
func (s *Suspension) KwargsMap() map[string]runtime.Value {
	out := make(map[string]runtime.Value)
	if s.Kwargs == nil {
		return out
	}
	for _, key := range s.Kwargs.Keys() {
		out[key], _ = s.Kwargs.Get(key)
	}
	return out
}

// CallRecord is a result already delivered to an external call inside the
// statement that is currently executing.
type CallRecord struct {
	Name   string      `json:"name"`
	Result runtime.Box `json:"result"`
}

// BlockKind names the compound statement a BlockState belongs to.
type BlockKind string

const (
	BlockIf    BlockKind = "if"
	BlockWhile BlockKind = "while"
	BlockFor   BlockKind = "for"
)

// BlockState is one level of the state stack: the position inside the body
// of a compound statement that is in progress.
type BlockState struct {
	Kind     BlockKind     `json:"kind"`
	Branch   int           `json:"branch,omitempty"`
	Index    int           `json:"index"`
	Items    []runtime.Box `json:"items,omitempty"`
	Position int           `json:"position,omitempty"`
}

// State is the complete serializable snapshot of an interpreter.
type State struct {
	Status    ExecutionState       `json:"status"`
	Variables *runtime.Environment `json:"variables"`
	PC        int                  `json:"pc"`
	Stack     []BlockState         `json:"stack,omitempty"`
	Calls     []CallRecord         `json:"calls,omitempty"`
	Pending   *Suspension          `json:"pending,omitempty"`
	Steps     int                  `json:"steps"`
	Result    *runtime.Box         `json:"result,omitempty"`
	Error     string               `json:"error,omitempty"`
}

// NewState returns a RUNNING state at the first statement.
func NewState(vars *runtime.Environment) *State {
	if vars == nil {
		vars = runtime.NewEnvironment()
	}
	return &State{Status: StateRunning, Variables: vars}
}

// Validate checks the PAUSED-iff-pending invariant and basic shape.
func (s *State) Validate() error {
	if s == nil {
		return fmt.Errorf("interpreter: nil state")
	}
	if s.Variables == nil {
		return fmt.Errorf("interpreter: state has no variables")
	}
	if (s.Status == StatePaused) != (s.Pending != nil) {
		return fmt.Errorf("interpreter: state %s inconsistent with pending call", s.Status)
	}
	switch s.Status {
	case StateRunning, StatePaused, StateCompleted, StateError:
	default:
		return fmt.Errorf("interpreter: unknown execution state %q", s.Status)
	}
	if s.PC < 0 {
		return fmt.Errorf("interpreter: negative program counter")
	}
	return nil
}

// Marshal encodes the state deterministically.
func (s *State) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

// UnmarshalState decodes and validates a state produced by Marshal.
func UnmarshalState(data []byte) (*State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("interpreter: decode state: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
