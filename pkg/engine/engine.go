// Package engine is the public entry point for running routines. It keeps
// one frame stack per session, drives the active frame until it suspends on
// something only the outside world can answer, and resolves every other
// external call itself.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"routines/runtime-go/pkg/ast"
	"routines/runtime-go/pkg/frames"
	"routines/runtime-go/pkg/interpreter"
	"routines/runtime-go/pkg/parser"
	"routines/runtime-go/pkg/registry"
	"routines/runtime-go/pkg/runtime"
	"routines/runtime-go/pkg/store"
)

// RoutineResult reports where a Start or Resume left the session.
type RoutineResult struct {
	Session string
	FrameID string
	Routine string
	Status  interpreter.ExecutionState
	// Value is the routine's return value when Status is COMPLETED.
	Value runtime.Value
	// Pending and Prompt describe the question the session waits on when
	// Status is PAUSED.
	Pending *interpreter.Suspension
	Prompt  string
	// Err is set when the routine failed (ERROR) or ended because an
	// external call failed (COMPLETED with Err).
	Err error
	// Memo holds every call the root frame resolved, for replays.
	Memo *Memo
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithSink sets where events are delivered.
func WithSink(sink Sink) Option {
	return func(e *Engine) {
		if sink != nil {
			e.sink = sink
		}
	}
}

// WithActions sets the resolver for external calls that are neither engine
// intrinsics nor registered routines.
func WithActions(actions ActionResolver) Option {
	return func(e *Engine) { e.actions = actions }
}

// WithMaxSteps bounds the statements one program frame may execute.
func WithMaxSteps(steps int) Option {
	return func(e *Engine) { e.maxSteps = steps }
}

// Engine runs routines from a registry with frame stacks kept in a store.
type Engine struct {
	registry *registry.Registry
	store    store.Store
	actions  ActionResolver
	sink     Sink
	logger   zerolog.Logger
	maxSteps int

	mu       sync.Mutex
	busy     map[string]bool
	programs map[string]*ast.Module
}

// New returns an engine over reg whose frames persist in st.
func New(reg *registry.Registry, st store.Store, opts ...Option) *Engine {
	e := &Engine{
		registry: reg,
		store:    st,
		sink:     nopSink{},
		logger:   zerolog.Nop(),
		busy:     make(map[string]bool),
		programs: make(map[string]*ast.Module),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartOption configures a single Start.
type StartOption func(*startConfig)

type startConfig struct {
	memo *Memo
}

// WithMemo seeds the root frame's memo so calls it covers resolve without
// external input.
func WithMemo(memo *Memo) StartOption {
	return func(c *startConfig) { c.memo = memo }
}

// Start pushes a frame for the named routine and runs it until it completes,
// fails, or waits on the user.
func (e *Engine) Start(ctx context.Context, session, name string, args []runtime.Value, kwargs map[string]runtime.Value, opts ...StartOption) (*RoutineResult, error) {
	var cfg startConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	stack, release, err := e.acquire(session)
	if err != nil {
		return nil, err
	}
	defer release()

	depth, err := stack.Depth(ctx)
	if err != nil {
		return nil, err
	}
	if depth > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSessionActive, session)
	}
	routine, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}
	bound, err := bindArgs(routine, args, kwargs)
	if err != nil {
		return nil, err
	}
	memo := NewMemo()
	if cfg.memo != nil {
		memo = cfg.memo.Clone()
	}
	if _, err := e.push(ctx, stack, routine, bound, memo); err != nil {
		e.emit(Event{Kind: EventError, Session: session, Routine: routine.QualifiedName(), Text: err.Error()})
		return nil, err
	}
	return e.drive(ctx, stack, nil, nil)
}

// Resume delivers value as the answer to the question the session waits on.
// A session that stopped before reaching a question, for example after a
// crash or a cancelled context, is not waiting on one: Resume then ignores
// value and carries on from the last saved frame state. An interrupted call
// takes its result from the memo and is resolved again only when no result
// was recorded.
func (e *Engine) Resume(ctx context.Context, session string, value runtime.Value) (*RoutineResult, error) {
	stack, release, err := e.acquire(session)
	if err != nil {
		return nil, err
	}
	defer release()

	top, err := stack.Peek(ctx)
	if errors.Is(err, frames.ErrEmpty) {
		return nil, fmt.Errorf("%w: %s", ErrNoPausedRoutine, session)
	}
	if err != nil {
		return nil, err
	}
	fs, err := decodeFrameState(top.State)
	if err != nil {
		return nil, err
	}
	call := fs.pending()
	if call == nil {
		e.logger.Info().Str("session", session).Str("frame", top.ID).Msg("running interrupted frame")
		return e.drive(ctx, stack, nil, nil)
	}
	if !isQuestion(call.Name) {
		e.logger.Info().Str("session", session).Str("frame", top.ID).Str("call", call.Name).Msg("finishing interrupted call")
		return e.drive(ctx, stack, nil, call)
	}
	if value == nil {
		value = runtime.None
	}
	memo, err := frameMemo(top)
	if err != nil {
		return nil, err
	}
	memo.record(call, value)
	if err := top.SetAux(memoKey, memo); err != nil {
		return nil, err
	}
	if err := stack.Update(ctx, top); err != nil {
		return nil, err
	}
	e.logger.Debug().Str("session", session).Str("frame", top.ID).Str("call", call.Name).Msg("resuming")
	return e.drive(ctx, stack, value, nil)
}

// Cancel pops every frame of the session and returns them.
func (e *Engine) Cancel(ctx context.Context, session string) ([]frames.Frame, error) {
	stack, release, err := e.acquire(session)
	if err != nil {
		return nil, err
	}
	defer release()
	dropped, err := stack.Clear(ctx)
	if err != nil {
		return nil, err
	}
	if len(dropped) > 0 {
		top := dropped[len(dropped)-1]
		e.emit(Event{Kind: EventStatus, Session: session, FrameID: top.ID, Routine: top.Routine, Status: interpreter.StateError, Text: "cancelled"})
	}
	e.logger.Debug().Str("session", session).Int("frames", len(dropped)).Msg("session cancelled")
	return dropped, nil
}

// Stack returns the session's frames, bottom first.
func (e *Engine) Stack(ctx context.Context, session string) ([]frames.Frame, error) {
	stack, err := frames.New(e.store, session)
	if err != nil {
		return nil, err
	}
	return stack.Frames(ctx)
}

// Sessions lists sessions with persisted frames.
func (e *Engine) Sessions(ctx context.Context) ([]string, error) {
	return frames.Sessions(ctx, e.store)
}

// Registry returns the registry routines are resolved from.
func (e *Engine) Registry() *registry.Registry {
	return e.registry
}

func (e *Engine) acquire(session string) (*frames.Stack, func(), error) {
	stack, err := frames.New(e.store, session)
	if err != nil {
		return nil, nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy[session] {
		return nil, nil, fmt.Errorf("%w: %s", ErrSessionBusy, session)
	}
	e.busy[session] = true
	return stack, func() {
		e.mu.Lock()
		delete(e.busy, session)
		e.mu.Unlock()
	}, nil
}

// program returns the parsed body of a program routine, parsing it once.
func (e *Engine) program(r *registry.Routine) (*ast.Module, error) {
	name := r.QualifiedName()
	e.mu.Lock()
	module, ok := e.programs[name]
	e.mu.Unlock()
	if ok {
		return module, nil
	}
	module, err := parser.Load(r.Source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	e.mu.Lock()
	e.programs[name] = module
	e.mu.Unlock()
	return module, nil
}

func (e *Engine) emit(ev Event) {
	e.sink.Emit(ev)
}

// push creates a frame for routine with its initial state and memo.
func (e *Engine) push(ctx context.Context, stack *frames.Stack, routine *registry.Routine, args map[string]runtime.Value, memo *Memo) (string, error) {
	run, err := e.runnerFor(routine)
	if err != nil {
		return "", err
	}
	state, err := run.init(args).encode()
	if err != nil {
		return "", err
	}
	frame := frames.Frame{Routine: routine.QualifiedName(), State: state}
	if err := frame.SetAux(memoKey, memo); err != nil {
		return "", err
	}
	id, err := stack.PushFrame(ctx, frame)
	if err != nil {
		return "", err
	}
	e.logger.Debug().Str("session", stack.Session()).Str("frame", id).Str("routine", routine.QualifiedName()).Msg("frame pushed")
	e.emit(Event{Kind: EventStatus, Session: stack.Session(), FrameID: id, Routine: routine.QualifiedName(), Status: interpreter.StateRunning, Text: "started"})
	return id, nil
}

// drive runs the active frame and resolves its calls until the session
// waits on the user or the root frame finishes. resumed is the result for
// the active frame's pending call, or nil when the frame has not run yet.
// A non-nil pending is a call the active frame already suspended on; it is
// resolved before the frame runs again.
func (e *Engine) drive(ctx context.Context, stack *frames.Stack, resumed runtime.Value, pending *interpreter.Suspension) (*RoutineResult, error) {
	session := stack.Session()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, err := stack.Peek(ctx)
		if err != nil {
			return nil, err
		}
		routine, err := e.registry.Get(frame.Routine)
		if err != nil {
			return nil, err
		}
		memo, err := frameMemo(frame)
		if err != nil {
			return nil, err
		}

		call := pending
		pending = nil
		if call == nil {
			fs, err := decodeFrameState(frame.State)
			if err != nil {
				return nil, err
			}
			run, err := e.runnerFor(routine)
			if err != nil {
				return e.fail(ctx, stack, frame, routine, err)
			}
			res, runErr := run.run(ctx, fs, resumed)
			resumed = nil
			if runErr != nil {
				return e.fail(ctx, stack, frame, routine, runErr)
			}

			if res.Status == interpreter.StateCompleted {
				if _, err := stack.Return(ctx, func(parent *frames.Frame) error {
					return deliver(parent, res.Value)
				}); err != nil {
					return nil, err
				}
				e.logger.Debug().Str("session", session).Str("frame", frame.ID).Msg("frame popped")
				e.emit(Event{Kind: EventStatus, Session: session, FrameID: frame.ID, Routine: frame.Routine, Status: interpreter.StateCompleted, Text: "completed"})
				depth, err := stack.Depth(ctx)
				if err != nil {
					return nil, err
				}
				if depth == 0 {
					return &RoutineResult{Session: session, FrameID: frame.ID, Routine: frame.Routine, Status: interpreter.StateCompleted, Value: res.Value, Memo: memo}, nil
				}
				resumed = res.Value
				continue
			}

			// The suspended state and the count of the call it waits on are
			// written together so a later Resume can tell whether the call
			// already has a recorded result.
			call = res.Suspension
			memo.count(call)
			state, err := fs.encode()
			if err != nil {
				return nil, err
			}
			frame.State = state
			if err := frame.SetAux(memoKey, memo); err != nil {
				return nil, err
			}
			if err := stack.Update(ctx, frame); err != nil {
				return nil, err
			}
			e.logger.Debug().Str("session", session).Str("frame", frame.ID).Str("call", call.Name).Msg("frame suspended")
		}

		out, err := e.resolve(ctx, stack, frame, routine, call, memo)
		if err != nil {
			return nil, err
		}
		switch {
		case out.failure != nil:
			return e.abort(ctx, stack, frame, routine, out.failure)
		case out.pause:
			e.emit(Event{Kind: EventStatus, Session: session, FrameID: frame.ID, Routine: frame.Routine, Status: interpreter.StatePaused, Text: out.prompt})
			return &RoutineResult{Session: session, FrameID: frame.ID, Routine: frame.Routine, Status: interpreter.StatePaused, Pending: call, Prompt: out.prompt}, nil
		case out.pushed:
			continue
		default:
			resumed = out.value
		}
	}
}

// deliver records a finished child's value in parent's memo as the result
// of the call parent waits on.
func deliver(parent *frames.Frame, value runtime.Value) error {
	fs, err := decodeFrameState(parent.State)
	if err != nil {
		return err
	}
	call := fs.pending()
	if call == nil {
		return nil
	}
	memo, err := frameMemo(parent)
	if err != nil {
		return err
	}
	memo.record(call, value)
	return parent.SetAux(memoKey, memo)
}

// fail handles an error raised by the active frame: the frame moves to
// ERROR and is popped. A failing nested routine unwinds its callers too.
func (e *Engine) fail(ctx context.Context, stack *frames.Stack, frame *frames.Frame, routine *registry.Routine, cause error) (*RoutineResult, error) {
	session := stack.Session()
	e.logger.Warn().Err(cause).Str("session", session).Str("frame", frame.ID).Msg("routine failed")
	e.emit(Event{Kind: EventError, Session: session, FrameID: frame.ID, Routine: frame.Routine, Text: interpreter.Describe(cause, routine.Source)})
	e.emit(Event{Kind: EventStatus, Session: session, FrameID: frame.ID, Routine: frame.Routine, Status: interpreter.StateError, Text: "failed"})

	dropped, err := stack.Clear(ctx)
	if err != nil {
		return nil, err
	}
	result := &RoutineResult{Session: session, FrameID: frame.ID, Routine: frame.Routine, Status: interpreter.StateError, Err: cause}
	if len(dropped) > 1 {
		root := dropped[0]
		result.FrameID, result.Routine = root.ID, root.Routine
		result.Err = &ExternalCallError{Call: frame.Routine, Err: cause}
		e.emit(Event{Kind: EventStatus, Session: session, FrameID: root.ID, Routine: root.Routine, Status: interpreter.StateError, Text: "failed"})
	}
	return result, nil
}

// abort ends the session after an external call failed. The routine is
// reported as completed with an error rather than left paused.
func (e *Engine) abort(ctx context.Context, stack *frames.Stack, frame *frames.Frame, routine *registry.Routine, cause error) (*RoutineResult, error) {
	if _, ok := cause.(*interpreter.RuntimeError); ok {
		return e.fail(ctx, stack, frame, routine, cause)
	}
	session := stack.Session()
	e.logger.Warn().Err(cause).Str("session", session).Str("frame", frame.ID).Msg("external call failed")
	e.emit(Event{Kind: EventInformation, Session: session, FrameID: frame.ID, Routine: frame.Routine, Text: cause.Error()})
	e.emit(Event{Kind: EventError, Session: session, FrameID: frame.ID, Routine: frame.Routine, Text: cause.Error()})

	memo, err := e.memo(ctx, stack)
	if err != nil {
		return nil, err
	}
	dropped, err := stack.Clear(ctx)
	if err != nil {
		return nil, err
	}
	root := dropped[0]
	e.emit(Event{Kind: EventStatus, Session: session, FrameID: root.ID, Routine: root.Routine, Status: interpreter.StateCompleted, Text: "completed with error"})
	return &RoutineResult{Session: session, FrameID: root.ID, Routine: root.Routine, Status: interpreter.StateCompleted, Value: runtime.None, Err: cause, Memo: memo}, nil
}

// memo loads the active frame's memo.
func (e *Engine) memo(ctx context.Context, stack *frames.Stack) (*Memo, error) {
	memo := NewMemo()
	if _, err := stack.GetStateKey(ctx, memoKey, memo); err != nil {
		return nil, err
	}
	return memo, nil
}
