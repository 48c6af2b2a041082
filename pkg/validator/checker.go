package validator

import (
	"fmt"

	"routines/runtime-go/pkg/ast"
)

// Diagnostic represents one rejected construct in a routine body.
type Diagnostic struct {
	Message   string
	Construct string
	Span      ast.Span
}

// Checker walks a lowered module once and records every construct the
// runtime refuses to execute.
type Checker struct {
	loopDepth   int
	diagnostics []Diagnostic
}

// New returns a checker instance.
func New() *Checker {
	return &Checker{}
}

// Check is shorthand for New().CheckModule(module).
func Check(module *ast.Module) []Diagnostic {
	return New().CheckModule(module)
}

// CheckModule validates module and returns diagnostics in source order.
func (c *Checker) CheckModule(module *ast.Module) []Diagnostic {
	c.loopDepth = 0
	c.diagnostics = nil
	if module == nil {
		return []Diagnostic{{Message: "module is nil"}}
	}
	c.checkStatements(module.Body)
	return c.diagnostics
}

func (c *Checker) report(node ast.Node, construct, format string, args ...any) {
	var span ast.Span
	if node != nil {
		span = node.NodeSpan()
	}
	c.diagnostics = append(c.diagnostics, Diagnostic{
		Message:   fmt.Sprintf(format, args...),
		Construct: construct,
		Span:      span,
	})
}

func (c *Checker) checkStatements(stmts []ast.Statement) {
	for _, stmt := range stmts {
		c.checkStatement(stmt)
	}
}

func (c *Checker) checkStatement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.Assignment:
		if s.Target == nil {
			c.report(s, "assignment", "assignment missing target")
			return
		}
		c.checkStatementRoot(s.Value, s.Operator == "=")
	case *ast.ExpressionStatement:
		c.checkStatementRoot(s.Expression, true)
	case *ast.IfStatement:
		for _, clause := range s.Clauses {
			c.checkExpression(clause.Condition)
			c.checkStatements(clause.Body)
		}
		c.checkStatements(s.Else)
	case *ast.WhileLoop:
		c.checkExpression(s.Condition)
		c.loopDepth++
		c.checkStatements(s.Body)
		c.loopDepth--
	case *ast.ForLoop:
		c.checkExpression(s.Iterable)
		c.loopDepth++
		c.checkStatements(s.Body)
		c.loopDepth--
	case *ast.ReturnStatement:
		if s.Argument != nil {
			c.checkExpression(s.Argument)
		}
	case *ast.BreakStatement:
		if c.loopDepth == 0 {
			c.report(s, "break outside loop", "'break' outside loop")
		}
	case *ast.ContinueStatement:
		if c.loopDepth == 0 {
			c.report(s, "continue outside loop", "'continue' outside loop")
		}
	case *ast.PassStatement:
	case nil:
		c.report(nil, "statement", "nil statement")
	default:
		c.report(stmt, string(stmt.NodeType()), "unsupported statement %s", stmt.NodeType())
	}
}

// checkStatementRoot allows a mutating method call when it is the whole
// expression of its statement.
func (c *Checker) checkStatementRoot(expr ast.Expression, allowMutation bool) {
	if call, ok := expr.(*ast.FunctionCall); ok && allowMutation {
		if attr, ok := call.Callee.(*ast.AttributeExpression); ok && IsMutatingMethod(attr.Attribute.Name) {
			c.checkCall(call, true)
			return
		}
	}
	c.checkExpression(expr)
}

func (c *Checker) checkExpression(expr ast.Expression) {
	ast.Inspect(expr, func(node ast.Node) bool {
		switch n := node.(type) {
		case *ast.FunctionCall:
			c.checkCall(n, false)
			return false
		case *ast.AttributeExpression:
			c.report(n, "attribute access", "attribute access is only allowed as a call target")
			return false
		case *ast.SliceExpression:
			return true
		}
		return true
	})
}

func (c *Checker) checkCall(call *ast.FunctionCall, outermost bool) {
	switch callee := call.Callee.(type) {
	case *ast.Identifier:
	case *ast.AttributeExpression:
		method := callee.Attribute.Name
		switch {
		case IsMutatingMethod(method):
			if !outermost {
				c.report(call, "nested mutation", "mutating method .%s() must be the outermost expression of its statement", method)
			}
			c.checkExpression(callee.Object)
		case IsAllowedMethod(method):
			c.checkExpression(callee.Object)
		case isDottedName(callee.Object):
		default:
			c.report(call, "attribute call", "method .%s() is not allowed", method)
		}
	default:
		c.report(call, "computed call", "only named functions and allowed methods can be called")
	}
	for _, arg := range call.Arguments {
		c.checkExpression(arg)
	}
	for _, kw := range call.Keywords {
		c.checkExpression(kw.Value)
	}
}

func isDottedName(expr ast.Expression) bool {
	switch e := expr.(type) {
	case *ast.Identifier:
		return true
	case *ast.AttributeExpression:
		return isDottedName(e.Object)
	default:
		return false
	}
}

// DottedName flattens `a.b.c` into "a.b.c". It reports false for anything
// other than a chain of plain names.
func DottedName(expr ast.Expression) (string, bool) {
	switch e := expr.(type) {
	case *ast.Identifier:
		return e.Name, true
	case *ast.AttributeExpression:
		prefix, ok := DottedName(e.Object)
		if !ok {
			return "", false
		}
		return prefix + "." + e.Attribute.Name, true
	default:
		return "", false
	}
}
