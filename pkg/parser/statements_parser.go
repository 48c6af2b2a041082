package parser

import (
	"fmt"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"routines/runtime-go/pkg/ast"
)

var rejectedStatements = map[string]string{
	"function_definition":     "function definition",
	"class_definition":        "class definition",
	"decorated_definition":    "decorated definition",
	"import_statement":        "import",
	"import_from_statement":   "import",
	"future_import_statement": "import",
	"try_statement":           "exception handling",
	"raise_statement":         "exception handling",
	"with_statement":          "with statement",
	"assert_statement":        "assert statement",
	"global_statement":        "global declaration",
	"nonlocal_statement":      "nonlocal declaration",
	"delete_statement":        "del statement",
	"match_statement":         "match statement",
	"type_alias_statement":    "type alias",
	"print_statement":         "print statement",
	"exec_statement":          "exec statement",
}

var augmentedOperators = map[string]bool{
	"+=": true, "-=": true, "*=": true, "/=": true, "//=": true, "%=": true, "**=": true,
}

// parseStatements lowers the statement children of a module or block.
func parseStatements(node *sitter.Node, source []byte) ([]ast.Statement, error) {
	children := namedChildren(node)
	body := make([]ast.Statement, 0, len(children))
	for _, child := range children {
		stmt, err := parseStatement(child, source)
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			body = append(body, stmt)
		}
	}
	return body, nil
}

func parseBlock(node *sitter.Node, source []byte) ([]ast.Statement, error) {
	if node == nil {
		return nil, fmt.Errorf("parser: missing block")
	}
	if node.Kind() != "block" {
		return nil, wrapSyntaxError(node, fmt.Errorf("parser: expected block, found %s", node.Kind()))
	}
	return parseStatements(node, source)
}

func parseStatement(node *sitter.Node, source []byte) (ast.Statement, error) {
	if construct, ok := rejectedStatements[node.Kind()]; ok {
		return nil, unsupported(node, construct)
	}
	switch node.Kind() {
	case "expression_statement":
		return parseExpressionStatement(node, source)
	case "if_statement":
		return parseIfStatement(node, source)
	case "while_statement":
		if node.ChildByFieldName("alternative") != nil {
			return nil, unsupported(node, "while-else")
		}
		cond, err := parseExpression(node.ChildByFieldName("condition"), source)
		if err != nil {
			return nil, err
		}
		body, err := parseBlock(node.ChildByFieldName("body"), source)
		if err != nil {
			return nil, err
		}
		return spanned(ast.NewWhileLoop(cond, body), node), nil
	case "for_statement":
		return parseForStatement(node, source)
	case "return_statement":
		children := namedChildren(node)
		if len(children) == 0 {
			return spanned(ast.NewReturnStatement(nil), node), nil
		}
		value, err := parseExpression(children[0], source)
		if err != nil {
			return nil, err
		}
		return spanned(ast.NewReturnStatement(value), node), nil
	case "pass_statement":
		return spanned(ast.NewPassStatement(), node), nil
	case "break_statement":
		return spanned(ast.NewBreakStatement(), node), nil
	case "continue_statement":
		return spanned(ast.NewContinueStatement(), node), nil
	default:
		return nil, wrapSyntaxError(node, fmt.Errorf("parser: unsupported statement %q", node.Kind()))
	}
}

func parseExpressionStatement(node *sitter.Node, source []byte) (ast.Statement, error) {
	children := namedChildren(node)
	if len(children) != 1 {
		return nil, unsupported(node, "bare tuple expression")
	}
	child := children[0]
	switch child.Kind() {
	case "assignment":
		return parseAssignment(node, child, source)
	case "augmented_assignment":
		op := sliceContent(child.ChildByFieldName("operator"), source)
		if !augmentedOperators[op] {
			return nil, unsupported(child, fmt.Sprintf("operator %s", op))
		}
		target, err := parseAssignmentTarget(child.ChildByFieldName("left"), source)
		if err != nil {
			return nil, err
		}
		value, err := parseExpression(child.ChildByFieldName("right"), source)
		if err != nil {
			return nil, err
		}
		return spanned(ast.NewAssignment(op, target, value), node), nil
	case "yield":
		return nil, unsupported(child, "yield")
	}
	expr, err := parseExpression(child, source)
	if err != nil {
		return nil, err
	}
	return spanned(ast.NewExpressionStatement(expr), node), nil
}

func parseAssignment(stmtNode, node *sitter.Node, source []byte) (ast.Statement, error) {
	if node.ChildByFieldName("type") != nil {
		return nil, unsupported(node, "type annotation")
	}
	right := node.ChildByFieldName("right")
	if right == nil {
		return nil, unsupported(node, "declaration without value")
	}
	if right.Kind() == "assignment" {
		return nil, unsupported(node, "chained assignment")
	}
	target, err := parseAssignmentTarget(node.ChildByFieldName("left"), source)
	if err != nil {
		return nil, err
	}
	value, err := parseExpression(right, source)
	if err != nil {
		return nil, err
	}
	return spanned(ast.NewAssignment("=", target, value), stmtNode), nil
}

func parseAssignmentTarget(node *sitter.Node, source []byte) (*ast.Identifier, error) {
	if node == nil {
		return nil, fmt.Errorf("parser: assignment missing target")
	}
	switch node.Kind() {
	case "identifier":
		id := ast.NewIdentifier(sliceContent(node, source))
		spanned(id, node)
		return id, nil
	case "attribute":
		return nil, unsupported(node, "attribute assignment")
	case "subscript":
		return nil, unsupported(node, "subscript assignment")
	default:
		return nil, unsupported(node, "destructuring assignment")
	}
}

func parseIfStatement(node *sitter.Node, source []byte) (ast.Statement, error) {
	cond, err := parseExpression(node.ChildByFieldName("condition"), source)
	if err != nil {
		return nil, err
	}
	body, err := parseBlock(node.ChildByFieldName("consequence"), source)
	if err != nil {
		return nil, err
	}
	first := ast.NewIfClause(cond, body)
	spanned(first, node)
	clauses := []*ast.IfClause{first}
	var elseBody []ast.Statement

	for _, child := range namedChildren(node) {
		switch child.Kind() {
		case "elif_clause":
			cond, err := parseExpression(child.ChildByFieldName("condition"), source)
			if err != nil {
				return nil, err
			}
			body, err := parseBlock(child.ChildByFieldName("consequence"), source)
			if err != nil {
				return nil, err
			}
			clause := ast.NewIfClause(cond, body)
			spanned(clause, child)
			clauses = append(clauses, clause)
		case "else_clause":
			elseBody, err = parseBlock(child.ChildByFieldName("body"), source)
			if err != nil {
				return nil, err
			}
		}
	}
	return spanned(ast.NewIfStatement(clauses, elseBody), node), nil
}

func parseForStatement(node *sitter.Node, source []byte) (ast.Statement, error) {
	if hasChildKind(node, "async") {
		return nil, unsupported(node, "async construct")
	}
	if node.ChildByFieldName("alternative") != nil {
		return nil, unsupported(node, "for-else")
	}
	left := node.ChildByFieldName("left")
	if left == nil || left.Kind() != "identifier" {
		return nil, unsupported(node, "destructuring loop target")
	}
	target := ast.NewIdentifier(sliceContent(left, source))
	spanned(target, left)
	iterable, err := parseExpression(node.ChildByFieldName("right"), source)
	if err != nil {
		return nil, err
	}
	body, err := parseBlock(node.ChildByFieldName("body"), source)
	if err != nil {
		return nil, err
	}
	return spanned(ast.NewForLoop(target, iterable, body), node), nil
}
