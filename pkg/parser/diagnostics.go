package parser

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// SourceLocation captures a source span for load diagnostics.
type SourceLocation struct {
	Line      int
	Column    int
	EndLine   int
	EndColumn int
}

func (l SourceLocation) String() string {
	if l.Line == 0 {
		return "?"
	}
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// SyntaxError reports source that failed to parse or used a construct the
// routine language does not allow. Construct names the rejected node kind
// when the source parsed but was refused.
type SyntaxError struct {
	Message   string
	Construct string
	Location  SourceLocation
}

func (e *SyntaxError) Error() string {
	if e.Location.Line == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (line %d, column %d)", e.Message, e.Location.Line, e.Location.Column)
}

// Unsupported reports whether the source parsed but used a disallowed construct.
func (e *SyntaxError) Unsupported() bool { return e.Construct != "" }

func wrapSyntaxError(node *sitter.Node, err error) error {
	if err == nil {
		return nil
	}
	var syntaxErr *SyntaxError
	if errors.As(err, &syntaxErr) {
		return syntaxErr
	}
	if node == nil {
		return err
	}
	return &SyntaxError{
		Message:  err.Error(),
		Location: locationForNode(node),
	}
}

func unsupported(node *sitter.Node, construct string) *SyntaxError {
	return &SyntaxError{
		Message:   fmt.Sprintf("parser: %s is not supported in routines", construct),
		Construct: construct,
		Location:  locationForNode(node),
	}
}

func syntaxError(root *sitter.Node) *SyntaxError {
	missing := findFirstMissingNode(root)
	errorNode := missing
	if errorNode == nil {
		errorNode = findFirstErrorNode(root)
	}
	if errorNode == nil {
		errorNode = root
	}
	location := SourceLocation{}
	if errorNode != nil {
		location = locationForNode(errorNode)
	}
	message := "parser: syntax error"
	if missing != nil {
		message = fmt.Sprintf("parser: syntax error: expected %s", formatExpectedKind(missing.Kind()))
	}
	return &SyntaxError{
		Message:  message,
		Location: location,
	}
}

func locationForNode(node *sitter.Node) SourceLocation {
	span := spanFromNode(node)
	return SourceLocation{
		Line:      span.Start.Line,
		Column:    span.Start.Column,
		EndLine:   span.End.Line,
		EndColumn: span.End.Column,
	}
}

func findFirstMissingNode(root *sitter.Node) *sitter.Node {
	var best *sitter.Node
	walkNodes(root, func(node *sitter.Node) {
		if node == nil || !node.IsMissing() {
			return
		}
		if best == nil || node.StartByte() < best.StartByte() {
			best = node
		}
	})
	return best
}

func findFirstErrorNode(root *sitter.Node) *sitter.Node {
	var best *sitter.Node
	walkNodes(root, func(node *sitter.Node) {
		if node == nil || !node.IsError() {
			return
		}
		if best == nil || node.StartByte() < best.StartByte() {
			best = node
		}
	})
	return best
}

func walkNodes(root *sitter.Node, visit func(node *sitter.Node)) {
	if root == nil {
		return
	}
	visit(root)
	for i := uint(0); i < root.ChildCount(); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		walkNodes(child, visit)
	}
}

func formatExpectedKind(kind string) string {
	trimmed := strings.TrimSpace(kind)
	if trimmed == "" {
		return "token"
	}
	isSymbol := true
	for _, r := range trimmed {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			isSymbol = false
			break
		}
	}
	if len(trimmed) == 1 || isSymbol {
		return fmt.Sprintf("'%s'", trimmed)
	}
	return strings.ReplaceAll(trimmed, "_", " ")
}
