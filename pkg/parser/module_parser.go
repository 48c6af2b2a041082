package parser

import (
	"fmt"

	sitter "github.com/tree-sitter/go-tree-sitter"
	python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"routines/runtime-go/pkg/ast"
	"routines/runtime-go/pkg/validator"
)

// ModuleParser wraps a tree-sitter parser configured with the Python grammar
// that routine source is written in.
type ModuleParser struct {
	parser *sitter.Parser
}

// NewModuleParser constructs a parser with the routine grammar loaded.
func NewModuleParser() (*ModuleParser, error) {
	lang := sitter.NewLanguage(python.Language())
	if lang == nil {
		return nil, fmt.Errorf("parser: python language not available")
	}

	p := sitter.NewParser()
	if err := p.SetLanguage(lang); err != nil {
		return nil, fmt.Errorf("parser: %w", err)
	}

	return &ModuleParser{parser: p}, nil
}

// Close releases parser resources.
func (p *ModuleParser) Close() {
	if p == nil || p.parser == nil {
		return
	}
	p.parser.Close()
}

// ParseModule lowers routine source into the AST without the semantic
// validation pass. Unsupported syntax is still rejected here.
func (p *ModuleParser) ParseModule(source []byte) (*ast.Module, error) {
	if p == nil || p.parser == nil {
		return nil, fmt.Errorf("parser: nil parser")
	}

	tree := p.parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("parser: parse returned no tree")
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.Kind() != "module" {
		return nil, fmt.Errorf("parser: unexpected root node")
	}
	if root.HasError() {
		return nil, syntaxError(root)
	}

	body, err := parseStatements(root, source)
	if err != nil {
		return nil, err
	}
	module := ast.NewModule(body)
	spanned(module, root)
	return module, nil
}

// LoadModule parses and validates source, returning a program ready to run.
func (p *ModuleParser) LoadModule(source []byte) (*ast.Module, error) {
	module, err := p.ParseModule(source)
	if err != nil {
		return nil, err
	}
	if diags := validator.Check(module); len(diags) > 0 {
		first := diags[0]
		return nil, &SyntaxError{
			Message:   "parser: " + first.Message,
			Construct: first.Construct,
			Location: SourceLocation{
				Line:      first.Span.Start.Line,
				Column:    first.Span.Start.Column,
				EndLine:   first.Span.End.Line,
				EndColumn: first.Span.End.Column,
			},
		}
	}
	return module, nil
}

// Load is a convenience wrapper that constructs a parser for a single load.
func Load(source string) (*ast.Module, error) {
	p, err := NewModuleParser()
	if err != nil {
		return nil, err
	}
	defer p.Close()
	return p.LoadModule([]byte(source))
}
