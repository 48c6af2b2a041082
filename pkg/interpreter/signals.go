package interpreter

import (
	"fmt"

	"routines/runtime-go/pkg/runtime"
)

// Control flow travels up the executor as error values.

type returnSignal struct {
	value runtime.Value
}

func (returnSignal) Error() string { return "return signal" }

type breakSignal struct{}

func (breakSignal) Error() string { return "break outside loop" }

type continueSignal struct{}

func (continueSignal) Error() string { return "continue outside loop" }

// suspendSignal unwinds to the run loop when evaluation reaches an external
// call whose result has not been injected yet.
type suspendSignal struct {
	call *Suspension
}

func (s suspendSignal) Error() string {
	return fmt.Sprintf("suspended on %s", s.call.Name)
}

func isControlSignal(err error) bool {
	switch err.(type) {
	case returnSignal, breakSignal, continueSignal, suspendSignal:
		return true
	}
	return false
}
