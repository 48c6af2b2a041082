package parser

import (
	"fmt"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"routines/runtime-go/pkg/ast"
)

var rejectedExpressions = map[string]string{
	"lambda":                   "lambda",
	"await":                    "async construct",
	"yield":                    "yield",
	"list_comprehension":       "comprehension",
	"dictionary_comprehension": "comprehension",
	"set_comprehension":        "comprehension",
	"generator_expression":     "comprehension",
	"set":                      "set literal",
	"named_expression":         "assignment expression",
	"list_splat":               "argument unpacking",
	"dictionary_splat":         "argument unpacking",
	"ellipsis":                 "ellipsis",
}

var binaryOperators = map[string]bool{
	"+": true, "-": true, "*": true, "/": true, "//": true, "%": true, "**": true,
}

var comparisonOperators = map[string]bool{
	"<": true, "<=": true, ">": true, ">=": true, "==": true, "!=": true,
	"in": true, "not in": true, "is": true, "is not": true,
}

func parseExpression(node *sitter.Node, source []byte) (ast.Expression, error) {
	if node == nil {
		return nil, fmt.Errorf("parser: missing expression")
	}
	if construct, ok := rejectedExpressions[node.Kind()]; ok {
		return nil, unsupported(node, construct)
	}

	switch node.Kind() {
	case "identifier":
		return spanned(ast.NewIdentifier(sliceContent(node, source)), node), nil
	case "integer":
		return parseIntegerLiteral(node, source)
	case "float":
		return parseFloatLiteral(node, source)
	case "true":
		return spanned(ast.NewBooleanLiteral(true), node), nil
	case "false":
		return spanned(ast.NewBooleanLiteral(false), node), nil
	case "none":
		return spanned(ast.NewNoneLiteral(), node), nil
	case "string":
		return parseStringNode(node, source)
	case "concatenated_string":
		return parseConcatenatedString(node, source)
	case "parenthesized_expression":
		children := namedChildren(node)
		if len(children) != 1 {
			return nil, wrapSyntaxError(node, fmt.Errorf("parser: malformed parenthesized expression"))
		}
		return parseExpression(children[0], source)
	case "list", "tuple", "expression_list":
		elements, err := parseExpressionList(namedChildren(node), source)
		if err != nil {
			return nil, err
		}
		return spanned(ast.NewListLiteral(elements), node), nil
	case "dictionary":
		return parseDictionary(node, source)
	case "unary_operator":
		op := sliceContent(node.ChildByFieldName("operator"), source)
		if op != "-" && op != "+" {
			return nil, unsupported(node, fmt.Sprintf("operator %s", op))
		}
		operand, err := parseExpression(node.ChildByFieldName("argument"), source)
		if err != nil {
			return nil, err
		}
		return spanned(ast.NewUnaryExpression(op, operand), node), nil
	case "not_operator":
		operand, err := parseExpression(node.ChildByFieldName("argument"), source)
		if err != nil {
			return nil, err
		}
		return spanned(ast.NewUnaryExpression("not", operand), node), nil
	case "binary_operator":
		op := sliceContent(node.ChildByFieldName("operator"), source)
		if !binaryOperators[op] {
			return nil, unsupported(node, fmt.Sprintf("operator %s", op))
		}
		left, right, err := parseOperands(node, source)
		if err != nil {
			return nil, err
		}
		return spanned(ast.NewBinaryExpression(op, left, right), node), nil
	case "boolean_operator":
		op := sliceContent(node.ChildByFieldName("operator"), source)
		left, right, err := parseOperands(node, source)
		if err != nil {
			return nil, err
		}
		return spanned(ast.NewBooleanExpression(op, left, right), node), nil
	case "comparison_operator":
		return parseComparison(node, source)
	case "conditional_expression":
		children := namedChildren(node)
		if len(children) != 3 {
			return nil, wrapSyntaxError(node, fmt.Errorf("parser: malformed conditional expression"))
		}
		exprs, err := parseExpressionList(children, source)
		if err != nil {
			return nil, err
		}
		return spanned(ast.NewConditionalExpression(exprs[1], exprs[0], exprs[2]), node), nil
	case "subscript":
		return parseSubscript(node, source)
	case "call":
		return parseCall(node, source)
	case "attribute":
		return nil, unsupported(node, "attribute access outside a call")
	default:
		return nil, wrapSyntaxError(node, fmt.Errorf("parser: unsupported expression %q", node.Kind()))
	}
}

func parseExpressionList(nodes []*sitter.Node, source []byte) ([]ast.Expression, error) {
	out := make([]ast.Expression, 0, len(nodes))
	for _, child := range nodes {
		expr, err := parseExpression(child, source)
		if err != nil {
			return nil, err
		}
		out = append(out, expr)
	}
	return out, nil
}

func parseOperands(node *sitter.Node, source []byte) (ast.Expression, ast.Expression, error) {
	left, err := parseExpression(node.ChildByFieldName("left"), source)
	if err != nil {
		return nil, nil, err
	}
	right, err := parseExpression(node.ChildByFieldName("right"), source)
	if err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func parseDictionary(node *sitter.Node, source []byte) (ast.Expression, error) {
	children := namedChildren(node)
	entries := make([]*ast.DictEntry, 0, len(children))
	for _, child := range children {
		if child.Kind() != "pair" {
			if construct, ok := rejectedExpressions[child.Kind()]; ok {
				return nil, unsupported(child, construct)
			}
			return nil, wrapSyntaxError(child, fmt.Errorf("parser: unexpected %s in dictionary", child.Kind()))
		}
		key, err := parseExpression(child.ChildByFieldName("key"), source)
		if err != nil {
			return nil, err
		}
		value, err := parseExpression(child.ChildByFieldName("value"), source)
		if err != nil {
			return nil, err
		}
		entry := ast.NewDictEntry(key, value)
		spanned(entry, child)
		entries = append(entries, entry)
	}
	return spanned(ast.NewDictLiteral(entries), node), nil
}

// parseComparison keeps chained comparisons (`a < b < c`) as one node.
func parseComparison(node *sitter.Node, source []byte) (ast.Expression, error) {
	var (
		operators []string
		operands  []ast.Expression
	)
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil || isIgnorableNode(child) {
			continue
		}
		if child.IsNamed() {
			expr, err := parseExpression(child, source)
			if err != nil {
				return nil, err
			}
			operands = append(operands, expr)
			continue
		}
		op := child.Kind()
		if !comparisonOperators[op] {
			return nil, unsupported(child, fmt.Sprintf("operator %s", op))
		}
		operators = append(operators, op)
	}
	if len(operators) == 0 || len(operands) != len(operators)+1 {
		return nil, wrapSyntaxError(node, fmt.Errorf("parser: malformed comparison"))
	}
	return spanned(ast.NewComparisonExpression(operators, operands), node), nil
}

func parseSubscript(node *sitter.Node, source []byte) (ast.Expression, error) {
	children := namedChildren(node)
	if len(children) != 2 {
		return nil, unsupported(node, "multi-dimensional subscript")
	}
	object, err := parseExpression(node.ChildByFieldName("value"), source)
	if err != nil {
		return nil, err
	}
	indexNode := children[1]
	var index ast.Expression
	if indexNode.Kind() == "slice" {
		index, err = parseSlice(indexNode, source)
	} else {
		index, err = parseExpression(indexNode, source)
	}
	if err != nil {
		return nil, err
	}
	return spanned(ast.NewSubscriptExpression(object, index), node), nil
}

func parseSlice(node *sitter.Node, source []byte) (ast.Expression, error) {
	var bounds [3]ast.Expression
	segment := 0
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil || isIgnorableNode(child) {
			continue
		}
		if !child.IsNamed() {
			if child.Kind() == ":" {
				segment++
				if segment > 2 {
					return nil, wrapSyntaxError(node, fmt.Errorf("parser: malformed slice"))
				}
			}
			continue
		}
		expr, err := parseExpression(child, source)
		if err != nil {
			return nil, err
		}
		bounds[segment] = expr
	}
	return spanned(ast.NewSliceExpression(bounds[0], bounds[1], bounds[2]), node), nil
}

func parseCall(node *sitter.Node, source []byte) (ast.Expression, error) {
	callee, err := parseCallee(node.ChildByFieldName("function"), source)
	if err != nil {
		return nil, err
	}
	argsNode := node.ChildByFieldName("arguments")
	if argsNode == nil || argsNode.Kind() != "argument_list" {
		return nil, unsupported(node, "comprehension")
	}

	var (
		args     []ast.Expression
		keywords []*ast.KeywordArgument
	)
	for _, child := range namedChildren(argsNode) {
		if child.Kind() == "keyword_argument" {
			nameNode := child.ChildByFieldName("name")
			name := ast.NewIdentifier(sliceContent(nameNode, source))
			spanned(name, nameNode)
			value, err := parseExpression(child.ChildByFieldName("value"), source)
			if err != nil {
				return nil, err
			}
			kw := ast.NewKeywordArgument(name, value)
			spanned(kw, child)
			keywords = append(keywords, kw)
			continue
		}
		if len(keywords) > 0 {
			return nil, wrapSyntaxError(child, fmt.Errorf("parser: positional argument follows keyword argument"))
		}
		arg, err := parseExpression(child, source)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	if args == nil {
		args = []ast.Expression{}
	}
	return spanned(ast.NewFunctionCall(callee, args, keywords), node), nil
}

// parseCallee accepts a bare name, a method on an arbitrary receiver, or a
// dotted chain of names (`skill.action`). The validator decides which
// attribute calls are allowed.
func parseCallee(node *sitter.Node, source []byte) (ast.Expression, error) {
	if node == nil {
		return nil, fmt.Errorf("parser: call missing callee")
	}
	if node.Kind() != "attribute" {
		if node.Kind() != "identifier" {
			return nil, unsupported(node, "call on a computed value")
		}
		return parseExpression(node, source)
	}
	objectNode := node.ChildByFieldName("object")
	attrNode := node.ChildByFieldName("attribute")
	var (
		object ast.Expression
		err    error
	)
	if objectNode != nil && objectNode.Kind() == "attribute" {
		object, err = parseDottedName(objectNode, source)
	} else {
		object, err = parseExpression(objectNode, source)
	}
	if err != nil {
		return nil, err
	}
	attr := ast.NewIdentifier(sliceContent(attrNode, source))
	spanned(attr, attrNode)
	return spanned(ast.NewAttributeExpression(object, attr), node), nil
}

func parseDottedName(node *sitter.Node, source []byte) (ast.Expression, error) {
	if node == nil {
		return nil, fmt.Errorf("parser: missing attribute receiver")
	}
	switch node.Kind() {
	case "identifier":
		return parseExpression(node, source)
	case "attribute":
		object, err := parseDottedName(node.ChildByFieldName("object"), source)
		if err != nil {
			return nil, err
		}
		attrNode := node.ChildByFieldName("attribute")
		attr := ast.NewIdentifier(sliceContent(attrNode, source))
		spanned(attr, attrNode)
		return spanned(ast.NewAttributeExpression(object, attr), node), nil
	default:
		return nil, unsupported(node, "attribute chain")
	}
}
