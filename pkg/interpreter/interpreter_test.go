package interpreter

import (
	"errors"
	"testing"

	"routines/runtime-go/pkg/ast"
	"routines/runtime-go/pkg/runtime"
)

func runModule(t *testing.T, module *ast.Module, opts ...Option) (*Interpreter, *Result) {
	t.Helper()
	interp := New(module, opts...)
	res, err := interp.Run()
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	return interp, res
}

func expectPaused(t *testing.T, res *Result, name string, args ...runtime.Value) {
	t.Helper()
	if res.Status != StatePaused || res.Suspension == nil {
		t.Fatalf("expected pause on %s, got %#v", name, res)
	}
	if res.Suspension.Name != name {
		t.Fatalf("expected call %s, got %s", name, res.Suspension.Name)
	}
	if len(res.Suspension.Args) != len(args) {
		t.Fatalf("expected %d args, got %d", len(args), len(res.Suspension.Args))
	}
	for idx, want := range args {
		if !runtime.Equal(res.Suspension.Args[idx], want) {
			t.Fatalf("arg %d: expected %s, got %s", idx, runtime.Repr(want), runtime.Repr(res.Suspension.Args[idx]))
		}
	}
}

func expectCompleted(t *testing.T, res *Result, want runtime.Value) {
	t.Helper()
	if res.Status != StateCompleted {
		t.Fatalf("expected completion, got %s", res.Status)
	}
	if !runtime.Equal(res.Value, want) || res.Value.Kind() != want.Kind() {
		t.Fatalf("expected %s, got %s", runtime.Repr(want), runtime.Repr(res.Value))
	}
}

func resume(t *testing.T, interp *Interpreter, value runtime.Value) *Result {
	t.Helper()
	res, err := interp.Resume(value)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	return res
}

func TestSuspendAndResumeExternalCall(t *testing.T) {
	module := ast.Mod(
		ast.Assign("a", ast.Int(5)),
		ast.Assign("b", ast.Call("action", ast.ID("a"))),
		ast.Ret(ast.ID("b")),
	)
	interp, res := runModule(t, module)
	expectPaused(t, res, "action", runtime.IntegerValue{Val: 5})
	if interp.State().PC != 1 {
		t.Fatalf("expected pc 1 while paused, got %d", interp.State().PC)
	}
	if interp.Environment().Has("b") {
		t.Fatalf("assignment must not happen before the call resolves")
	}
	res = resume(t, interp, runtime.IntegerValue{Val: 42})
	expectCompleted(t, res, runtime.IntegerValue{Val: 42})
}

func TestRunWithoutReturnCompletesWithNone(t *testing.T) {
	_, res := runModule(t, ast.Mod(ast.Assign("x", ast.Int(1))))
	expectCompleted(t, res, runtime.None)
}

func TestTypeMismatchOnStringPlusInt(t *testing.T) {
	interp := New(ast.Mod(ast.Assign("x", ast.Bin("+", ast.Str("a"), ast.Int(1)))))
	_, err := interp.Run()
	if !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
	var rerr *RuntimeError
	if !errors.As(err, &rerr) || rerr.Statement != ast.NodeAssignment {
		t.Fatalf("expected error tagged with assignment, got %#v", err)
	}
	if interp.Status() != StateError {
		t.Fatalf("expected ERROR state, got %s", interp.Status())
	}
	if _, err := interp.Run(); !errors.Is(err, ErrFinished) {
		t.Fatalf("expected ErrFinished on rerun, got %v", err)
	}
}

func TestForLoopSum(t *testing.T) {
	module := ast.Mod(
		ast.Assign("total", ast.Int(0)),
		ast.For("x", ast.List(ast.Int(1), ast.Int(2), ast.Int(3)),
			ast.AugAssign("+=", "total", ast.ID("x")),
		),
		ast.Ret(ast.ID("total")),
	)
	_, res := runModule(t, module)
	expectCompleted(t, res, runtime.IntegerValue{Val: 6})
}

func loopWithCalls() *ast.Module {
	return ast.Mod(
		ast.Assign("total", ast.Int(0)),
		ast.For("x", ast.List(ast.Int(1), ast.Int(2), ast.Int(3)),
			ast.Assign("y", ast.Call("fetch", ast.ID("x"))),
			ast.AugAssign("+=", "total", ast.ID("y")),
		),
		ast.Ret(ast.ID("total")),
	)
}

func TestResumeFromSerializedStateMidLoop(t *testing.T) {
	module := loopWithCalls()
	interp, res := runModule(t, module)
	expectPaused(t, res, "fetch", runtime.IntegerValue{Val: 1})

	for step, value := range []int64{10, 20} {
		data, err := interp.State().Marshal()
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		restored, err := UnmarshalState(data)
		if err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		interp = New(module)
		if err := interp.SetState(restored); err != nil {
			t.Fatalf("set state failed: %v", err)
		}
		res = resume(t, interp, runtime.IntegerValue{Val: value})
		expectPaused(t, res, "fetch", runtime.IntegerValue{Val: int64(step + 2)})
	}
	res = resume(t, interp, runtime.IntegerValue{Val: 30})
	expectCompleted(t, res, runtime.IntegerValue{Val: 60})
}

func TestResumeFromSameSnapshotIsIdempotent(t *testing.T) {
	module := loopWithCalls()
	interp, _ := runModule(t, module)
	resume(t, interp, runtime.IntegerValue{Val: 10})
	data, err := interp.State().Marshal()
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var outcomes []string
	for attempt := 0; attempt < 2; attempt++ {
		restored, err := UnmarshalState(data)
		if err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		next := New(module)
		if err := next.SetState(restored); err != nil {
			t.Fatalf("set state failed: %v", err)
		}
		resume(t, next, runtime.IntegerValue{Val: 20})
		after, err := next.State().Marshal()
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		outcomes = append(outcomes, string(after))
	}
	if outcomes[0] != outcomes[1] {
		t.Fatalf("resuming the same snapshot diverged:\n%s\n%s", outcomes[0], outcomes[1])
	}
}

func TestMultipleCallsInOneStatementReplay(t *testing.T) {
	module := ast.Mod(
		ast.Assign("x", ast.Bin("+", ast.Call("first", ast.Int(1)), ast.Call("second", ast.Int(2)))),
		ast.Ret(ast.ID("x")),
	)
	interp, res := runModule(t, module)
	expectPaused(t, res, "first", runtime.IntegerValue{Val: 1})
	res = resume(t, interp, runtime.IntegerValue{Val: 100})
	expectPaused(t, res, "second", runtime.IntegerValue{Val: 2})
	if len(interp.State().Calls) != 1 {
		t.Fatalf("expected one recorded call, got %d", len(interp.State().Calls))
	}
	res = resume(t, interp, runtime.IntegerValue{Val: 5})
	expectCompleted(t, res, runtime.IntegerValue{Val: 105})
	if len(interp.State().Calls) != 0 {
		t.Fatalf("expected call log cleared after completion")
	}
}

func TestMutatingMethodAppliesOnceAcrossResume(t *testing.T) {
	module := ast.Mod(
		ast.Assign("items", ast.List()),
		ast.Expr(ast.Method(ast.ID("items"), "append", ast.Call("fetch"))),
		ast.Ret(ast.ID("items")),
	)
	interp, res := runModule(t, module)
	expectPaused(t, res, "fetch")
	res = resume(t, interp, runtime.StringValue{Val: "a"})
	expectCompleted(t, res, runtime.NewList(runtime.StringValue{Val: "a"}))
}

func TestSuspendInsideNestedBlocks(t *testing.T) {
	module := ast.Mod(
		ast.Assign("n", ast.Int(0)),
		ast.Assign("seen", ast.List()),
		ast.While(ast.Cmp("<", ast.ID("n"), ast.Int(2)),
			ast.If(ast.Cmp("==", ast.ID("n"), ast.Int(1)),
				ast.Expr(ast.Method(ast.ID("seen"), "append", ast.Call("probe", ast.ID("n")))),
			),
			ast.AugAssign("+=", "n", ast.Int(1)),
		),
		ast.Ret(ast.ID("seen")),
	)
	interp, res := runModule(t, module)
	expectPaused(t, res, "probe", runtime.IntegerValue{Val: 1})
	if depth := len(interp.State().Stack); depth != 2 {
		t.Fatalf("expected while and if frames on the stack, got %d", depth)
	}
	res = resume(t, interp, runtime.StringValue{Val: "ok"})
	expectCompleted(t, res, runtime.NewList(runtime.StringValue{Val: "ok"}))
}

func TestBreakAndContinue(t *testing.T) {
	module := ast.Mod(
		ast.Assign("out", ast.List()),
		ast.For("x", ast.Call("range", ast.Int(10)),
			ast.If(ast.Cmp("==", ast.Bin("%", ast.ID("x"), ast.Int(2)), ast.Int(1)), ast.Continue()),
			ast.If(ast.Cmp(">", ast.ID("x"), ast.Int(6)), ast.Break()),
			ast.Expr(ast.Method(ast.ID("out"), "append", ast.ID("x"))),
		),
		ast.Ret(ast.ID("out")),
	)
	_, res := runModule(t, module)
	want := runtime.NewList(
		runtime.IntegerValue{Val: 0},
		runtime.IntegerValue{Val: 2},
		runtime.IntegerValue{Val: 4},
		runtime.IntegerValue{Val: 6},
	)
	expectCompleted(t, res, want)
}

func TestFormattedString(t *testing.T) {
	module := ast.Mod(
		ast.Assign("name", ast.Str("ada")),
		ast.Assign("score", ast.Flt(3.14159)),
		ast.Ret(ast.FStr(ast.Str("hi "), ast.Interp(ast.ID("name"), ""), ast.Str(": "), ast.Interp(ast.ID("score"), ".2f"))),
	)
	_, res := runModule(t, module)
	expectCompleted(t, res, runtime.StringValue{Val: "hi ada: 3.14"})
}

func TestStepBudgetExceeded(t *testing.T) {
	module := ast.Mod(ast.While(ast.Bool(true), ast.Pass()))
	interp := New(module, WithStepBudget(50))
	_, err := interp.Run()
	if !errors.Is(err, ErrStepBudgetExceeded) {
		t.Fatalf("expected step budget error, got %v", err)
	}
}

func TestConditionMustBeBool(t *testing.T) {
	interp := New(ast.Mod(ast.If(ast.Int(1), ast.Pass())))
	if _, err := interp.Run(); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected type mismatch for int condition, got %v", err)
	}
}

func TestRuntimeErrorKinds(t *testing.T) {
	cases := []struct {
		name string
		expr ast.Expression
		want error
	}{
		{"undefined", ast.ID("missing"), ErrUndefinedVariable},
		{"division", ast.Bin("/", ast.Int(1), ast.Int(0)), ErrDivisionByZero},
		{"modulo", ast.Bin("%", ast.Int(1), ast.Int(0)), ErrDivisionByZero},
		{"index", ast.Index(ast.List(ast.Int(1)), ast.Int(3)), ErrIndexError},
		{"key", ast.Index(ast.Dict(ast.Entry(ast.Str("a"), ast.Int(1))), ast.Str("b")), ErrKeyError},
		{"int parse", ast.Call("int", ast.Str("x")), ErrValueError},
		{"compare", ast.Cmp("<", ast.Int(1), ast.Str("a")), ErrTypeMismatch},
		{"bool arithmetic", ast.Bin("+", ast.Bool(true), ast.Int(1)), ErrTypeMismatch},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			interp := New(ast.Mod(ast.Ret(tc.expr)))
			_, err := interp.Run()
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestResumeRequiresPause(t *testing.T) {
	interp := New(ast.Mod(ast.Ret(ast.Int(1))))
	if _, err := interp.Resume(runtime.None); !errors.Is(err, ErrNotPaused) {
		t.Fatalf("expected ErrNotPaused, got %v", err)
	}
	if _, err := interp.Run(); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if _, err := interp.Resume(runtime.None); !errors.Is(err, ErrFinished) {
		t.Fatalf("expected ErrFinished, got %v", err)
	}
}

func TestLoadBindsArguments(t *testing.T) {
	interp := New(ast.Mod(ast.Ret(ast.Bin("*", ast.ID("n"), ast.Int(2)))))
	interp.Load(map[string]runtime.Value{"n": runtime.IntegerValue{Val: 21}})
	res, err := interp.Run()
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	expectCompleted(t, res, runtime.IntegerValue{Val: 42})
}

func TestDottedExternalCallKeepsKeywords(t *testing.T) {
	call := ast.NewFunctionCall(
		ast.NewAttributeExpression(ast.ID("mail"), ast.ID("send")),
		[]ast.Expression{ast.Str("bob")},
		[]*ast.KeywordArgument{ast.Kw("subject", ast.Str("hi"))},
	)
	interp, res := runModule(t, ast.Mod(ast.Expr(call)))
	expectPaused(t, res, "mail.send", runtime.StringValue{Val: "bob"})
	subject, ok := res.Suspension.KwargsMap()["subject"]
	if !ok || runtime.Str(subject) != "hi" {
		t.Fatalf("expected subject kwarg, got %#v", res.Suspension.KwargsMap())
	}
	res = resume(t, interp, runtime.None)
	expectCompleted(t, res, runtime.None)
}

func TestDescribeRendersCaret(t *testing.T) {
	err := &RuntimeError{
		Kind:    KindTypeMismatch,
		Message: "bad",
		Span:    ast.Span{Start: ast.Position{Line: 2, Column: 5}, End: ast.Position{Line: 2, Column: 8}},
	}
	got := Describe(err, "x = 1\ny = a + 1\n")
	want := "TypeMismatch: bad\n  --> line 2, column 5\n   2 | y = a + 1\n     |     ^^^"
	if got != want {
		t.Fatalf("unexpected rendering:\n%s", got)
	}
}
