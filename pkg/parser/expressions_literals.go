package parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"routines/runtime-go/pkg/ast"
)

func parseIntegerLiteral(node *sitter.Node, source []byte) (ast.Expression, error) {
	text := strings.ReplaceAll(sliceContent(node, source), "_", "")
	if strings.HasSuffix(text, "j") || strings.HasSuffix(text, "J") {
		return nil, unsupported(node, "complex literal")
	}
	if len(text) > 1 && text[0] == '0' && text[1] >= '0' && text[1] <= '9' {
		text = strings.TrimLeft(text, "0")
		if text == "" {
			text = "0"
		}
	}
	value, err := strconv.ParseInt(text, 0, 64)
	if err != nil {
		return nil, wrapSyntaxError(node, fmt.Errorf("parser: integer literal %s out of range", text))
	}
	return spanned(ast.NewIntegerLiteral(value), node), nil
}

func parseFloatLiteral(node *sitter.Node, source []byte) (ast.Expression, error) {
	text := strings.ReplaceAll(sliceContent(node, source), "_", "")
	if strings.HasSuffix(text, "j") || strings.HasSuffix(text, "J") {
		return nil, unsupported(node, "complex literal")
	}
	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, wrapSyntaxError(node, fmt.Errorf("parser: invalid float literal %s", text))
	}
	return spanned(ast.NewFloatLiteral(value), node), nil
}

type stringPrefix struct {
	raw       bool
	formatted bool
}

func readStringPrefix(node *sitter.Node, source []byte) (stringPrefix, error) {
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil || child.Kind() != "string_start" {
			continue
		}
		prefix := strings.ToLower(strings.TrimRight(sliceContent(child, source), `'"`))
		if strings.ContainsRune(prefix, 'b') {
			return stringPrefix{}, unsupported(node, "bytes literal")
		}
		return stringPrefix{
			raw:       strings.ContainsRune(prefix, 'r'),
			formatted: strings.ContainsRune(prefix, 'f'),
		}, nil
	}
	return stringPrefix{}, wrapSyntaxError(node, fmt.Errorf("parser: string missing opening quote"))
}

// stringParts lowers one string node into literal chunks and interpolations.
func stringParts(node *sitter.Node, source []byte) ([]ast.Node, bool, error) {
	prefix, err := readStringPrefix(node, source)
	if err != nil {
		return nil, false, err
	}
	var parts []ast.Node
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "string_content":
			text := sliceContent(child, source)
			if !prefix.raw {
				text = decodeEscapes(text)
			}
			if prefix.formatted {
				text = strings.ReplaceAll(strings.ReplaceAll(text, "{{", "{"), "}}", "}")
			}
			lit := ast.NewStringLiteral(text)
			spanned(lit, child)
			parts = append(parts, lit)
		case "escape_sequence":
			text := sliceContent(child, source)
			if !prefix.raw {
				text = decodeEscapes(text)
			}
			parts = append(parts, ast.NewStringLiteral(text))
		case "interpolation":
			interp, err := parseInterpolation(child, source)
			if err != nil {
				return nil, false, err
			}
			parts = append(parts, interp)
		}
	}
	return parts, prefix.formatted, nil
}

func parseInterpolation(node *sitter.Node, source []byte) (*ast.Interpolation, error) {
	expr, err := parseExpression(node.ChildByFieldName("expression"), source)
	if err != nil {
		return nil, err
	}
	conversion := ""
	if conv := node.ChildByFieldName("type_conversion"); conv != nil {
		conversion = strings.TrimPrefix(sliceContent(conv, source), "!")
		if conversion != "r" && conversion != "s" {
			return nil, unsupported(conv, fmt.Sprintf("conversion !%s", conversion))
		}
	}
	spec := ""
	if specNode := node.ChildByFieldName("format_specifier"); specNode != nil {
		for _, nested := range namedChildren(specNode) {
			if nested.Kind() == "interpolation" {
				return nil, unsupported(nested, "nested format specifier")
			}
		}
		spec = strings.TrimPrefix(sliceContent(specNode, source), ":")
	}
	interp := ast.NewInterpolation(expr, conversion, spec)
	spanned(interp, node)
	return interp, nil
}

func parseStringNode(node *sitter.Node, source []byte) (ast.Expression, error) {
	parts, formatted, err := stringParts(node, source)
	if err != nil {
		return nil, err
	}
	return lowerStringParts(node, parts, formatted), nil
}

func parseConcatenatedString(node *sitter.Node, source []byte) (ast.Expression, error) {
	var (
		all       []ast.Node
		formatted bool
	)
	for _, child := range namedChildren(node) {
		if child.Kind() != "string" {
			continue
		}
		parts, f, err := stringParts(child, source)
		if err != nil {
			return nil, err
		}
		all = append(all, parts...)
		formatted = formatted || f
	}
	return lowerStringParts(node, all, formatted), nil
}

// lowerStringParts folds plain chunks into a single literal unless the string
// carries interpolations.
func lowerStringParts(node *sitter.Node, parts []ast.Node, formatted bool) ast.Expression {
	if !formatted {
		var b strings.Builder
		for _, part := range parts {
			if lit, ok := part.(*ast.StringLiteral); ok {
				b.WriteString(lit.Value)
			}
		}
		return spanned(ast.NewStringLiteral(b.String()), node)
	}
	merged := make([]ast.Node, 0, len(parts))
	for _, part := range parts {
		lit, ok := part.(*ast.StringLiteral)
		if ok && len(merged) > 0 {
			if prev, prevOK := merged[len(merged)-1].(*ast.StringLiteral); prevOK {
				joined := ast.NewStringLiteral(prev.Value + lit.Value)
				ast.SetSpan(joined, prev.NodeSpan())
				merged[len(merged)-1] = joined
				continue
			}
		}
		merged = append(merged, part)
	}
	return spanned(ast.NewFormattedString(merged), node)
}

var simpleEscapes = map[byte]string{
	'\\': "\\", '\'': "'", '"': "\"", 'n': "\n", 't': "\t", 'r': "\r",
	'a': "\a", 'b': "\b", 'f': "\f", 'v': "\v", '0': "\x00", '\n': "",
}

// decodeEscapes applies backslash escapes. Unknown escapes keep the backslash.
func decodeEscapes(text string) string {
	if !strings.ContainsRune(text, '\\') {
		return text
	}
	var b strings.Builder
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '\\' || i+1 >= len(text) {
			b.WriteByte(c)
			continue
		}
		next := text[i+1]
		if rep, ok := simpleEscapes[next]; ok {
			b.WriteString(rep)
			i++
			continue
		}
		width := 0
		switch next {
		case 'x':
			width = 2
		case 'u':
			width = 4
		case 'U':
			width = 8
		}
		if width > 0 && i+2+width <= len(text) {
			if code, err := strconv.ParseUint(text[i+2:i+2+width], 16, 32); err == nil && utf8.ValidRune(rune(code)) {
				b.WriteRune(rune(code))
				i += 1 + width
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}
