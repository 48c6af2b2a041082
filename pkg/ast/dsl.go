package ast

// Shorthand constructors used by tests and fixtures.

func ID(name string) *Identifier { return NewIdentifier(name) }

func Str(value string) *StringLiteral { return NewStringLiteral(value) }

func Int(value int64) *IntegerLiteral { return NewIntegerLiteral(value) }

func Flt(value float64) *FloatLiteral { return NewFloatLiteral(value) }

func Bool(value bool) *BooleanLiteral { return NewBooleanLiteral(value) }

func None() *NoneLiteral { return NewNoneLiteral() }

func List(elements ...Expression) *ListLiteral { return NewListLiteral(elements) }

func Dict(entries ...*DictEntry) *DictLiteral { return NewDictLiteral(entries) }

func Entry(key, value Expression) *DictEntry { return NewDictEntry(key, value) }

func Bin(op string, left, right Expression) *BinaryExpression {
	return NewBinaryExpression(op, left, right)
}

func Un(op string, operand Expression) *UnaryExpression { return NewUnaryExpression(op, operand) }

func And(left, right Expression) *BooleanExpression { return NewBooleanExpression("and", left, right) }

func Or(left, right Expression) *BooleanExpression { return NewBooleanExpression("or", left, right) }

func Cmp(op string, left, right Expression) *ComparisonExpression {
	return NewComparisonExpression([]string{op}, []Expression{left, right})
}

func Index(object, index Expression) *SubscriptExpression {
	return NewSubscriptExpression(object, index)
}

func Call(name string, args ...Expression) *FunctionCall {
	return NewFunctionCall(ID(name), args, nil)
}

func CallKw(name string, args []Expression, keywords ...*KeywordArgument) *FunctionCall {
	return NewFunctionCall(ID(name), args, keywords)
}

func Kw(name string, value Expression) *KeywordArgument {
	return NewKeywordArgument(ID(name), value)
}

func Method(object Expression, method string, args ...Expression) *FunctionCall {
	return NewFunctionCall(NewAttributeExpression(object, ID(method)), args, nil)
}

// FStr builds a formatted string from string chunks and *Interpolation holes.
func FStr(parts ...Node) *FormattedString { return NewFormattedString(parts) }

func Interp(expr Expression, spec string) *Interpolation { return NewInterpolation(expr, "", spec) }

func Assign(name string, value Expression) *Assignment {
	return NewAssignment("=", ID(name), value)
}

func AugAssign(op, name string, value Expression) *Assignment {
	return NewAssignment(op, ID(name), value)
}

func Expr(expr Expression) *ExpressionStatement { return NewExpressionStatement(expr) }

func If(condition Expression, body ...Statement) *IfStatement {
	return NewIfStatement([]*IfClause{NewIfClause(condition, body)}, nil)
}

func IfElse(condition Expression, body []Statement, elseBody []Statement) *IfStatement {
	return NewIfStatement([]*IfClause{NewIfClause(condition, body)}, elseBody)
}

func While(condition Expression, body ...Statement) *WhileLoop {
	return NewWhileLoop(condition, body)
}

func For(target string, iterable Expression, body ...Statement) *ForLoop {
	return NewForLoop(ID(target), iterable, body)
}

func Ret(argument Expression) *ReturnStatement { return NewReturnStatement(argument) }

func Break() *BreakStatement { return NewBreakStatement() }

func Continue() *ContinueStatement { return NewContinueStatement() }

func Pass() *PassStatement { return NewPassStatement() }

func Mod(body ...Statement) *Module { return NewModule(body) }
