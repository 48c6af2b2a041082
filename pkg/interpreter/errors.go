package interpreter

import (
	"errors"
	"fmt"

	"routines/runtime-go/pkg/ast"
)

// ErrorKind classifies a RuntimeError.
type ErrorKind string

const (
	KindUndefinedVariable     ErrorKind = "UndefinedVariable"
	KindTypeMismatch          ErrorKind = "TypeMismatch"
	KindDivisionByZero        ErrorKind = "DivisionByZero"
	KindUnsupportedExpression ErrorKind = "UnsupportedExpression"
	KindIndexError            ErrorKind = "IndexError"
	KindKeyError              ErrorKind = "KeyError"
	KindValueError            ErrorKind = "ValueError"
	KindUnresolvedCall        ErrorKind = "UnresolvedCall"
	KindStepBudgetExceeded    ErrorKind = "StepBudgetExceeded"
	KindReplayDiverged        ErrorKind = "ReplayDiverged"
)

// RuntimeError is a fatal error raised while executing a routine. Span points
// at the innermost expression involved; Statement names the statement kind
// that was executing.
type RuntimeError struct {
	Kind      ErrorKind
	Message   string
	Span      ast.Span
	Statement ast.NodeType
}

func (e *RuntimeError) Error() string {
	if e.Span.Start.Line == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s (line %d, column %d)", e.Kind, e.Message, e.Span.Start.Line, e.Span.Start.Column)
}

// Is matches the kind sentinels below, so errors.Is(err, ErrTypeMismatch) works.
func (e *RuntimeError) Is(target error) bool {
	t, ok := target.(*RuntimeError)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

var (
	ErrUndefinedVariable     = &RuntimeError{Kind: KindUndefinedVariable}
	ErrTypeMismatch          = &RuntimeError{Kind: KindTypeMismatch}
	ErrDivisionByZero        = &RuntimeError{Kind: KindDivisionByZero}
	ErrUnsupportedExpression = &RuntimeError{Kind: KindUnsupportedExpression}
	ErrIndexError            = &RuntimeError{Kind: KindIndexError}
	ErrKeyError              = &RuntimeError{Kind: KindKeyError}
	ErrValueError            = &RuntimeError{Kind: KindValueError}
	ErrUnresolvedCall        = &RuntimeError{Kind: KindUnresolvedCall}
	ErrStepBudgetExceeded    = &RuntimeError{Kind: KindStepBudgetExceeded}
	ErrReplayDiverged        = &RuntimeError{Kind: KindReplayDiverged}
)

// ErrNotPaused is returned by Resume when there is no pending call.
var ErrNotPaused = errors.New("interpreter: no pending call to resume")

// ErrFinished is returned when running an interpreter that already completed or failed.
var ErrFinished = errors.New("interpreter: routine already finished")

func newRuntimeError(kind ErrorKind, format string, args ...any) *RuntimeError {
	return &RuntimeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func typeMismatch(format string, args ...any) *RuntimeError {
	return newRuntimeError(KindTypeMismatch, format, args...)
}

func divisionByZero(message string) *RuntimeError {
	return newRuntimeError(KindDivisionByZero, "%s", message)
}

func valueError(format string, args ...any) *RuntimeError {
	return newRuntimeError(KindValueError, format, args...)
}

// attachSpan fills in the location of a RuntimeError that does not have one yet.
func attachSpan(err error, node ast.Node) error {
	var rtErr *RuntimeError
	if node == nil || !errors.As(err, &rtErr) {
		return err
	}
	if rtErr.Span.Start.Line == 0 {
		rtErr.Span = node.NodeSpan()
	}
	return err
}

func attachStatement(err error, stmt ast.Statement) error {
	var rtErr *RuntimeError
	if stmt == nil || !errors.As(err, &rtErr) {
		return err
	}
	if rtErr.Statement == "" {
		rtErr.Statement = stmt.NodeType()
	}
	if rtErr.Span.Start.Line == 0 {
		rtErr.Span = stmt.NodeSpan()
	}
	return err
}
