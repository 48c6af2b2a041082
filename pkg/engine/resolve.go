package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"routines/runtime-go/pkg/frames"
	"routines/runtime-go/pkg/interpreter"
	"routines/runtime-go/pkg/registry"
	"routines/runtime-go/pkg/runtime"
)

// Calls the engine answers itself.
const (
	IntrinsicAskUser     = registry.IntrinsicAskUser
	IntrinsicAsk         = registry.IntrinsicAsk
	IntrinsicPrint       = registry.IntrinsicPrint
	IntrinsicSendMessage = registry.IntrinsicSendMessage
	IntrinsicLog         = registry.IntrinsicLog
)

// ActionResolver answers external calls that are not intrinsics or routines.
type ActionResolver interface {
	Resolve(ctx context.Context, name string, args []runtime.Value, kwargs map[string]runtime.Value) (runtime.Value, error)
}

// ActionFunc is one action implementation.
type ActionFunc func(ctx context.Context, args []runtime.Value, kwargs map[string]runtime.Value) (runtime.Value, error)

// Actions is an ActionResolver backed by a map of action names.
type Actions map[string]ActionFunc

func (a Actions) Resolve(ctx context.Context, name string, args []runtime.Value, kwargs map[string]runtime.Value) (runtime.Value, error) {
	fn, ok := a[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActionNotFound, name)
	}
	return fn(ctx, args, kwargs)
}

type outcome struct {
	value   runtime.Value
	pause   bool
	prompt  string
	pushed  bool
	failure error
}

// resolve answers call for the active frame: from its memo first, then as
// an intrinsic, a nested routine, or an action. memo is the frame's memo with
// call already counted. Errors returned directly are engine failures; call
// failures travel in outcome.failure.
func (e *Engine) resolve(ctx context.Context, stack *frames.Stack, frame *frames.Frame, routine *registry.Routine, call *interpreter.Suspension, memo *Memo) (outcome, error) {
	if cached, hit := memo.recall(call); hit {
		e.logger.Debug().Str("frame", frame.ID).Str("call", call.Name).Msg("call replayed from memo")
		return outcome{value: cached}, nil
	}

	session := stack.Session()
	var value runtime.Value = runtime.None
	switch {
	case isQuestion(call.Name):
		return outcome{pause: true, prompt: promptText(call)}, nil

	case call.Name == IntrinsicPrint || call.Name == IntrinsicSendMessage:
		e.emit(Event{Kind: EventMessage, Session: session, FrameID: frame.ID, Routine: frame.Routine, Text: messageText(call)})

	case call.Name == IntrinsicLog:
		e.emit(Event{Kind: EventInformation, Session: session, FrameID: frame.ID, Routine: frame.Routine, Text: messageText(call)})

	default:
		if child, ok := e.registry.Lookup(call.Name, routine.Skill); ok {
			bound, err := bindArgs(child, call.Args, call.KwargsMap())
			if err != nil {
				return outcome{failure: err}, nil
			}
			if _, err := e.runnerFor(child); err != nil {
				return outcome{failure: &ExternalCallError{Call: call.Name, Err: err}}, nil
			}
			if _, err := e.push(ctx, stack, child, bound, NewMemo()); err != nil {
				return outcome{}, err
			}
			return outcome{pushed: true}, nil
		}
		if e.actions == nil {
			return outcome{failure: e.unresolved(call.Name)}, nil
		}
		result, err := e.actions.Resolve(ctx, call.Name, call.Args, call.KwargsMap())
		if errors.Is(err, ErrActionNotFound) {
			return outcome{failure: e.unresolved(call.Name)}, nil
		}
		if err != nil {
			return outcome{failure: &ExternalCallError{Call: call.Name, Err: err}}, nil
		}
		if result != nil {
			value = result
		}
		e.logger.Debug().Str("frame", frame.ID).Str("call", call.Name).Msg("action resolved")
	}

	memo.record(call, value)
	if err := stack.SetStateKey(ctx, memoKey, memo); err != nil {
		return outcome{}, err
	}
	return outcome{value: value}, nil
}

// isQuestion reports whether name is answered by the caller of Resume.
func isQuestion(name string) bool {
	return name == IntrinsicAskUser || name == IntrinsicAsk
}

func (e *Engine) unresolved(name string) error {
	msg := fmt.Sprintf("no action or routine named %s", name)
	if suggestions := e.registry.Suggest(name); len(suggestions) > 0 {
		msg += fmt.Sprintf(" (did you mean %s?)", strings.Join(suggestions, ", "))
	}
	return &interpreter.RuntimeError{Kind: interpreter.KindUnresolvedCall, Message: msg}
}

// promptText is the first positional argument, or the prompt or question
// keyword.
func promptText(call *interpreter.Suspension) string {
	if len(call.Args) > 0 {
		return runtime.Str(call.Args[0])
	}
	kwargs := call.KwargsMap()
	for _, key := range []string{"prompt", "question"} {
		if v, ok := kwargs[key]; ok {
			return runtime.Str(v)
		}
	}
	return ""
}

// messageText joins positional arguments with sep (default a space), or
// uses the text keyword.
func messageText(call *interpreter.Suspension) string {
	kwargs := call.KwargsMap()
	if len(call.Args) == 0 {
		if v, ok := kwargs["text"]; ok {
			return runtime.Str(v)
		}
	}
	sep := " "
	if v, ok := kwargs["sep"]; ok {
		sep = runtime.Str(v)
	}
	parts := make([]string, len(call.Args))
	for i, arg := range call.Args {
		parts[i] = runtime.Str(arg)
	}
	return strings.Join(parts, sep)
}
