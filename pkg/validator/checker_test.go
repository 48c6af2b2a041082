package validator

import (
	"testing"

	"routines/runtime-go/pkg/ast"
)

func constructs(diags []Diagnostic) []string {
	out := make([]string, len(diags))
	for i, d := range diags {
		out[i] = d.Construct
	}
	return out
}

func TestCheckAcceptsAllowedProgram(t *testing.T) {
	module := ast.Mod(
		ast.Assign("items", ast.List()),
		ast.For("x", ast.Call("range", ast.Int(3)),
			ast.If(ast.Cmp("==", ast.ID("x"), ast.Int(1)), ast.Continue()),
			ast.Expr(ast.Method(ast.ID("items"), "append", ast.Method(ast.Str("a"), "upper"))),
		),
		ast.Assign("last", ast.Method(ast.ID("items"), "pop")),
		ast.Expr(ast.NewFunctionCall(
			ast.NewAttributeExpression(ast.ID("weather"), ast.ID("forecast")),
			nil,
			[]*ast.KeywordArgument{ast.Kw("city", ast.Str("paris"))},
		)),
		ast.Ret(ast.ID("items")),
	)
	if diags := Check(module); len(diags) != 0 {
		t.Fatalf("expected no diagnostics, got %v", diags)
	}
}

func TestCheckReportsViolations(t *testing.T) {
	cases := []struct {
		name   string
		module *ast.Module
		want   string
	}{
		{
			name:   "break outside loop",
			module: ast.Mod(ast.Break()),
			want:   "break outside loop",
		},
		{
			name:   "continue inside if without loop",
			module: ast.Mod(ast.If(ast.Bool(true), ast.Continue())),
			want:   "continue outside loop",
		},
		{
			name:   "mutation nested in expression",
			module: ast.Mod(ast.Assign("n", ast.Call("len", ast.Method(ast.ID("xs"), "append", ast.Int(1))))),
			want:   "nested mutation",
		},
		{
			name:   "mutation in augmented assignment",
			module: ast.Mod(ast.AugAssign("+=", "n", ast.Method(ast.ID("xs"), "pop"))),
			want:   "nested mutation",
		},
		{
			name:   "mutation in condition",
			module: ast.Mod(ast.If(ast.Method(ast.ID("xs"), "pop"), ast.Pass())),
			want:   "nested mutation",
		},
		{
			name:   "method on computed receiver",
			module: ast.Mod(ast.Expr(ast.Method(ast.Call("f"), "send"))),
			want:   "attribute call",
		},
		{
			name:   "bare attribute",
			module: ast.Mod(ast.Assign("x", ast.NewAttributeExpression(ast.ID("a"), ast.ID("b")))),
			want:   "attribute access",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			diags := Check(tc.module)
			if len(diags) != 1 || diags[0].Construct != tc.want {
				t.Fatalf("expected one %q diagnostic, got %v", tc.want, constructs(diags))
			}
		})
	}
}

func TestDottedName(t *testing.T) {
	chain := ast.NewAttributeExpression(ast.NewAttributeExpression(ast.ID("a"), ast.ID("b")), ast.ID("c"))
	if name, ok := DottedName(chain); !ok || name != "a.b.c" {
		t.Fatalf("expected a.b.c, got %q %v", name, ok)
	}
	if _, ok := DottedName(ast.NewAttributeExpression(ast.Call("f"), ast.ID("x"))); ok {
		t.Fatalf("expected call receiver to be rejected")
	}
}

func TestMutatingMethodsAreAllowed(t *testing.T) {
	for _, name := range AllowedMethods() {
		if IsMutatingMethod(name) && !IsAllowedMethod(name) {
			t.Fatalf("mutating method %s missing from allow-list", name)
		}
	}
	for _, name := range []string{"append", "extend", "insert", "pop", "remove", "clear", "update"} {
		if !IsMutatingMethod(name) {
			t.Fatalf("expected %s to be mutating", name)
		}
	}
}
