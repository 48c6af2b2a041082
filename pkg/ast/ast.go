package ast

type NodeType string

const (
	NodeModule                NodeType = "Module"
	NodeIdentifier            NodeType = "Identifier"
	NodeStringLiteral         NodeType = "StringLiteral"
	NodeIntegerLiteral        NodeType = "IntegerLiteral"
	NodeFloatLiteral          NodeType = "FloatLiteral"
	NodeBooleanLiteral        NodeType = "BooleanLiteral"
	NodeNoneLiteral           NodeType = "NoneLiteral"
	NodeListLiteral           NodeType = "ListLiteral"
	NodeDictLiteral           NodeType = "DictLiteral"
	NodeDictEntry             NodeType = "DictEntry"
	NodeFormattedString       NodeType = "FormattedString"
	NodeInterpolation         NodeType = "Interpolation"
	NodeUnaryExpression       NodeType = "UnaryExpression"
	NodeBinaryExpression      NodeType = "BinaryExpression"
	NodeBooleanExpression     NodeType = "BooleanExpression"
	NodeComparisonExpression  NodeType = "ComparisonExpression"
	NodeConditionalExpression NodeType = "ConditionalExpression"
	NodeSubscriptExpression   NodeType = "SubscriptExpression"
	NodeSliceExpression       NodeType = "SliceExpression"
	NodeAttributeExpression   NodeType = "AttributeExpression"
	NodeFunctionCall          NodeType = "FunctionCall"
	NodeKeywordArgument       NodeType = "KeywordArgument"
	NodeAssignment            NodeType = "Assignment"
	NodeExpressionStatement   NodeType = "ExpressionStatement"
	NodeIfStatement           NodeType = "IfStatement"
	NodeIfClause              NodeType = "IfClause"
	NodeWhileLoop             NodeType = "WhileLoop"
	NodeForLoop               NodeType = "ForLoop"
	NodeReturnStatement       NodeType = "ReturnStatement"
	NodeBreakStatement        NodeType = "BreakStatement"
	NodeContinueStatement     NodeType = "ContinueStatement"
	NodePassStatement         NodeType = "PassStatement"
)

// Position is a 1-based line/column location in routine source.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Span covers the source range a node was lowered from.
type Span struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

type Node interface {
	NodeType() NodeType
	NodeSpan() Span
	isNode()
}

type nodeImpl struct {
	Type     NodeType `json:"type"`
	Location Span     `json:"span"`
}

func newNodeImpl(kind NodeType) nodeImpl {
	return nodeImpl{Type: kind}
}

func (n nodeImpl) NodeType() NodeType { return n.Type }
func (n nodeImpl) NodeSpan() Span     { return n.Location }
func (nodeImpl) isNode()              {}

func (n *nodeImpl) setSpan(span Span) { n.Location = span }

// SetSpan records the source range on any node built by this package.
func SetSpan(node Node, span Span) {
	if node == nil {
		return
	}
	if s, ok := node.(interface{ setSpan(Span) }); ok {
		s.setSpan(span)
	}
}

// Marker interfaces.

type Expression interface {
	Node
	expressionNode()
}

type expressionMarker struct{}

func (expressionMarker) expressionNode() {}

type Statement interface {
	Node
	statementNode()
}

type statementMarker struct{}

func (statementMarker) statementNode() {}

type Literal interface {
	Expression
	literalNode()
}

type literalMarker struct{}

func (literalMarker) literalNode() {}

// Module is a validated routine body.

type Module struct {
	nodeImpl

	Body []Statement `json:"body"`
}

func NewModule(body []Statement) *Module {
	return &Module{nodeImpl: newNodeImpl(NodeModule), Body: body}
}

// Expressions

type Identifier struct {
	nodeImpl
	expressionMarker

	Name string `json:"name"`
}

func NewIdentifier(name string) *Identifier {
	return &Identifier{nodeImpl: newNodeImpl(NodeIdentifier), Name: name}
}

type StringLiteral struct {
	nodeImpl
	expressionMarker
	literalMarker

	Value string `json:"value"`
}

func NewStringLiteral(value string) *StringLiteral {
	return &StringLiteral{nodeImpl: newNodeImpl(NodeStringLiteral), Value: value}
}

type IntegerLiteral struct {
	nodeImpl
	expressionMarker
	literalMarker

	Value int64 `json:"value"`
}

func NewIntegerLiteral(value int64) *IntegerLiteral {
	return &IntegerLiteral{nodeImpl: newNodeImpl(NodeIntegerLiteral), Value: value}
}

type FloatLiteral struct {
	nodeImpl
	expressionMarker
	literalMarker

	Value float64 `json:"value"`
}

func NewFloatLiteral(value float64) *FloatLiteral {
	return &FloatLiteral{nodeImpl: newNodeImpl(NodeFloatLiteral), Value: value}
}

type BooleanLiteral struct {
	nodeImpl
	expressionMarker
	literalMarker

	Value bool `json:"value"`
}

func NewBooleanLiteral(value bool) *BooleanLiteral {
	return &BooleanLiteral{nodeImpl: newNodeImpl(NodeBooleanLiteral), Value: value}
}

type NoneLiteral struct {
	nodeImpl
	expressionMarker
	literalMarker
}

func NewNoneLiteral() *NoneLiteral {
	return &NoneLiteral{nodeImpl: newNodeImpl(NodeNoneLiteral)}
}

type ListLiteral struct {
	nodeImpl
	expressionMarker

	Elements []Expression `json:"elements"`
}

func NewListLiteral(elements []Expression) *ListLiteral {
	return &ListLiteral{nodeImpl: newNodeImpl(NodeListLiteral), Elements: elements}
}

type DictEntry struct {
	nodeImpl

	Key   Expression `json:"key"`
	Value Expression `json:"value"`
}

func NewDictEntry(key, value Expression) *DictEntry {
	return &DictEntry{nodeImpl: newNodeImpl(NodeDictEntry), Key: key, Value: value}
}

type DictLiteral struct {
	nodeImpl
	expressionMarker

	Entries []*DictEntry `json:"entries"`
}

func NewDictLiteral(entries []*DictEntry) *DictLiteral {
	return &DictLiteral{nodeImpl: newNodeImpl(NodeDictLiteral), Entries: entries}
}

// Interpolation is one `{expr!conv:spec}` hole inside a formatted string.
type Interpolation struct {
	nodeImpl

	Expression Expression `json:"expression"`
	Conversion string     `json:"conversion,omitempty"`
	FormatSpec string     `json:"formatSpec,omitempty"`
}

func NewInterpolation(expr Expression, conversion, spec string) *Interpolation {
	return &Interpolation{nodeImpl: newNodeImpl(NodeInterpolation), Expression: expr, Conversion: conversion, FormatSpec: spec}
}

// FormattedString parts are either *StringLiteral or *Interpolation.
type FormattedString struct {
	nodeImpl
	expressionMarker

	Parts []Node `json:"parts"`
}

func NewFormattedString(parts []Node) *FormattedString {
	return &FormattedString{nodeImpl: newNodeImpl(NodeFormattedString), Parts: parts}
}

type UnaryExpression struct {
	nodeImpl
	expressionMarker

	Operator string     `json:"operator"`
	Operand  Expression `json:"operand"`
}

func NewUnaryExpression(op string, operand Expression) *UnaryExpression {
	return &UnaryExpression{nodeImpl: newNodeImpl(NodeUnaryExpression), Operator: op, Operand: operand}
}

type BinaryExpression struct {
	nodeImpl
	expressionMarker

	Operator string     `json:"operator"`
	Left     Expression `json:"left"`
	Right    Expression `json:"right"`
}

func NewBinaryExpression(op string, left, right Expression) *BinaryExpression {
	return &BinaryExpression{nodeImpl: newNodeImpl(NodeBinaryExpression), Operator: op, Left: left, Right: right}
}

// BooleanExpression is a short-circuiting `and`/`or`.
type BooleanExpression struct {
	nodeImpl
	expressionMarker

	Operator string     `json:"operator"`
	Left     Expression `json:"left"`
	Right    Expression `json:"right"`
}

func NewBooleanExpression(op string, left, right Expression) *BooleanExpression {
	return &BooleanExpression{nodeImpl: newNodeImpl(NodeBooleanExpression), Operator: op, Left: left, Right: right}
}

// ComparisonExpression holds a possibly chained comparison: len(Operands) == len(Operators)+1.
type ComparisonExpression struct {
	nodeImpl
	expressionMarker

	Operators []string     `json:"operators"`
	Operands  []Expression `json:"operands"`
}

func NewComparisonExpression(operators []string, operands []Expression) *ComparisonExpression {
	return &ComparisonExpression{nodeImpl: newNodeImpl(NodeComparisonExpression), Operators: operators, Operands: operands}
}

type ConditionalExpression struct {
	nodeImpl
	expressionMarker

	Condition   Expression `json:"condition"`
	Consequence Expression `json:"consequence"`
	Alternative Expression `json:"alternative"`
}

func NewConditionalExpression(condition, consequence, alternative Expression) *ConditionalExpression {
	return &ConditionalExpression{nodeImpl: newNodeImpl(NodeConditionalExpression), Condition: condition, Consequence: consequence, Alternative: alternative}
}

// SliceExpression is only valid as the index of a SubscriptExpression. Nil bounds are open.
type SliceExpression struct {
	nodeImpl
	expressionMarker

	Start Expression `json:"start,omitempty"`
	Stop  Expression `json:"stop,omitempty"`
	Step  Expression `json:"step,omitempty"`
}

func NewSliceExpression(start, stop, step Expression) *SliceExpression {
	return &SliceExpression{nodeImpl: newNodeImpl(NodeSliceExpression), Start: start, Stop: stop, Step: step}
}

type SubscriptExpression struct {
	nodeImpl
	expressionMarker

	Object Expression `json:"object"`
	Index  Expression `json:"index"`
}

func NewSubscriptExpression(object, index Expression) *SubscriptExpression {
	return &SubscriptExpression{nodeImpl: newNodeImpl(NodeSubscriptExpression), Object: object, Index: index}
}

// AttributeExpression only appears as the callee of a FunctionCall.
type AttributeExpression struct {
	nodeImpl
	expressionMarker

	Object    Expression  `json:"object"`
	Attribute *Identifier `json:"attribute"`
}

func NewAttributeExpression(object Expression, attribute *Identifier) *AttributeExpression {
	return &AttributeExpression{nodeImpl: newNodeImpl(NodeAttributeExpression), Object: object, Attribute: attribute}
}

type KeywordArgument struct {
	nodeImpl

	Name  *Identifier `json:"name"`
	Value Expression  `json:"value"`
}

func NewKeywordArgument(name *Identifier, value Expression) *KeywordArgument {
	return &KeywordArgument{nodeImpl: newNodeImpl(NodeKeywordArgument), Name: name, Value: value}
}

type FunctionCall struct {
	nodeImpl
	expressionMarker

	Callee    Expression         `json:"callee"`
	Arguments []Expression       `json:"arguments"`
	Keywords  []*KeywordArgument `json:"keywords,omitempty"`
}

func NewFunctionCall(callee Expression, args []Expression, keywords []*KeywordArgument) *FunctionCall {
	return &FunctionCall{nodeImpl: newNodeImpl(NodeFunctionCall), Callee: callee, Arguments: args, Keywords: keywords}
}

// Statements

// Assignment binds a single name. Operator is "=" or an augmented form such as "+=".
type Assignment struct {
	nodeImpl
	statementMarker

	Operator string      `json:"operator"`
	Target   *Identifier `json:"target"`
	Value    Expression  `json:"value"`
}

func NewAssignment(op string, target *Identifier, value Expression) *Assignment {
	return &Assignment{nodeImpl: newNodeImpl(NodeAssignment), Operator: op, Target: target, Value: value}
}

type ExpressionStatement struct {
	nodeImpl
	statementMarker

	Expression Expression `json:"expression"`
}

func NewExpressionStatement(expr Expression) *ExpressionStatement {
	return &ExpressionStatement{nodeImpl: newNodeImpl(NodeExpressionStatement), Expression: expr}
}

type IfClause struct {
	nodeImpl

	Condition Expression  `json:"condition"`
	Body      []Statement `json:"body"`
}

func NewIfClause(condition Expression, body []Statement) *IfClause {
	return &IfClause{nodeImpl: newNodeImpl(NodeIfClause), Condition: condition, Body: body}
}

// IfStatement stores the `if` clause followed by every `elif` clause in order.
type IfStatement struct {
	nodeImpl
	statementMarker

	Clauses []*IfClause `json:"clauses"`
	Else    []Statement `json:"else,omitempty"`
}

func NewIfStatement(clauses []*IfClause, elseBody []Statement) *IfStatement {
	return &IfStatement{nodeImpl: newNodeImpl(NodeIfStatement), Clauses: clauses, Else: elseBody}
}

type WhileLoop struct {
	nodeImpl
	statementMarker

	Condition Expression  `json:"condition"`
	Body      []Statement `json:"body"`
}

func NewWhileLoop(condition Expression, body []Statement) *WhileLoop {
	return &WhileLoop{nodeImpl: newNodeImpl(NodeWhileLoop), Condition: condition, Body: body}
}

type ForLoop struct {
	nodeImpl
	statementMarker

	Target   *Identifier `json:"target"`
	Iterable Expression  `json:"iterable"`
	Body     []Statement `json:"body"`
}

func NewForLoop(target *Identifier, iterable Expression, body []Statement) *ForLoop {
	return &ForLoop{nodeImpl: newNodeImpl(NodeForLoop), Target: target, Iterable: iterable, Body: body}
}

type ReturnStatement struct {
	nodeImpl
	statementMarker

	Argument Expression `json:"argument,omitempty"`
}

func NewReturnStatement(argument Expression) *ReturnStatement {
	return &ReturnStatement{nodeImpl: newNodeImpl(NodeReturnStatement), Argument: argument}
}

type BreakStatement struct {
	nodeImpl
	statementMarker
}

func NewBreakStatement() *BreakStatement {
	return &BreakStatement{nodeImpl: newNodeImpl(NodeBreakStatement)}
}

type ContinueStatement struct {
	nodeImpl
	statementMarker
}

func NewContinueStatement() *ContinueStatement {
	return &ContinueStatement{nodeImpl: newNodeImpl(NodeContinueStatement)}
}

type PassStatement struct {
	nodeImpl
	statementMarker
}

func NewPassStatement() *PassStatement {
	return &PassStatement{nodeImpl: newNodeImpl(NodePassStatement)}
}
