package parser

import (
	sitter "github.com/tree-sitter/go-tree-sitter"

	"routines/runtime-go/pkg/ast"
)

// Tree-sitter points are zero based; routine diagnostics count from one.
func position(p sitter.Point) ast.Position {
	return ast.Position{Line: int(p.Row) + 1, Column: int(p.Column) + 1}
}

func spanFromNode(node *sitter.Node) ast.Span {
	if node == nil {
		return ast.Span{}
	}
	return ast.Span{Start: position(node.StartPosition()), End: position(node.EndPosition())}
}

// spanned stamps node with the source range of tsNode and returns it.
func spanned[T ast.Node](node T, tsNode *sitter.Node) T {
	if tsNode != nil {
		ast.SetSpan(node, spanFromNode(tsNode))
	}
	return node
}
