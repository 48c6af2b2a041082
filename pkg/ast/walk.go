package ast

// Inspect traverses node depth-first in source order. Returning false from
// visit skips the node's children.
func Inspect(node Node, visit func(Node) bool) {
	if node == nil || !visit(node) {
		return
	}
	switch n := node.(type) {
	case *Module:
		inspectStatements(n.Body, visit)
	case *ListLiteral:
		inspectExpressions(n.Elements, visit)
	case *DictLiteral:
		for _, entry := range n.Entries {
			Inspect(entry, visit)
		}
	case *DictEntry:
		inspectExpr(n.Key, visit)
		inspectExpr(n.Value, visit)
	case *FormattedString:
		for _, part := range n.Parts {
			Inspect(part, visit)
		}
	case *Interpolation:
		inspectExpr(n.Expression, visit)
	case *UnaryExpression:
		inspectExpr(n.Operand, visit)
	case *BinaryExpression:
		inspectExpr(n.Left, visit)
		inspectExpr(n.Right, visit)
	case *BooleanExpression:
		inspectExpr(n.Left, visit)
		inspectExpr(n.Right, visit)
	case *ComparisonExpression:
		inspectExpressions(n.Operands, visit)
	case *ConditionalExpression:
		inspectExpr(n.Consequence, visit)
		inspectExpr(n.Condition, visit)
		inspectExpr(n.Alternative, visit)
	case *SliceExpression:
		inspectExpr(n.Start, visit)
		inspectExpr(n.Stop, visit)
		inspectExpr(n.Step, visit)
	case *SubscriptExpression:
		inspectExpr(n.Object, visit)
		inspectExpr(n.Index, visit)
	case *AttributeExpression:
		inspectExpr(n.Object, visit)
	case *KeywordArgument:
		inspectExpr(n.Value, visit)
	case *FunctionCall:
		inspectExpr(n.Callee, visit)
		inspectExpressions(n.Arguments, visit)
		for _, kw := range n.Keywords {
			Inspect(kw, visit)
		}
	case *Assignment:
		inspectExpr(n.Value, visit)
	case *ExpressionStatement:
		inspectExpr(n.Expression, visit)
	case *IfStatement:
		for _, clause := range n.Clauses {
			Inspect(clause, visit)
		}
		inspectStatements(n.Else, visit)
	case *IfClause:
		inspectExpr(n.Condition, visit)
		inspectStatements(n.Body, visit)
	case *WhileLoop:
		inspectExpr(n.Condition, visit)
		inspectStatements(n.Body, visit)
	case *ForLoop:
		inspectExpr(n.Iterable, visit)
		inspectStatements(n.Body, visit)
	case *ReturnStatement:
		inspectExpr(n.Argument, visit)
	}
}

func inspectExpr(expr Expression, visit func(Node) bool) {
	if expr == nil {
		return
	}
	Inspect(expr, visit)
}

func inspectExpressions(exprs []Expression, visit func(Node) bool) {
	for _, expr := range exprs {
		inspectExpr(expr, visit)
	}
}

func inspectStatements(stmts []Statement, visit func(Node) bool) {
	for _, stmt := range stmts {
		if stmt != nil {
			Inspect(stmt, visit)
		}
	}
}
