package engine

import (
	"errors"
	"fmt"
)

// ErrSessionBusy is returned when a session is already executing.
var ErrSessionBusy = errors.New("engine: session is busy")

// ErrSessionActive is returned by Start when the session still has a
// paused routine. Resume or cancel it first.
var ErrSessionActive = errors.New("engine: session has a paused routine")

// ErrNoPausedRoutine is returned by Resume when the session has no frames.
var ErrNoPausedRoutine = errors.New("engine: no paused routine")

// ErrActionNotFound is returned by an ActionResolver that does not know a name.
var ErrActionNotFound = errors.New("engine: action not found")

// ExternalCallError wraps a failure raised while resolving an external call,
// either an action error or a nested routine that failed.
type ExternalCallError struct {
	Call string
	Err  error
}

func (e *ExternalCallError) Error() string {
	return fmt.Sprintf("external call %s failed: %v", e.Call, e.Err)
}

func (e *ExternalCallError) Unwrap() error { return e.Err }
