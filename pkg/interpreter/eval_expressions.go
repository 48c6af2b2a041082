package interpreter

import (
	"strings"

	"routines/runtime-go/pkg/ast"
	"routines/runtime-go/pkg/runtime"
	"routines/runtime-go/pkg/validator"
)

// evaluateExpression reduces node to a value. Reaching an external call
// whose result is not known yet surfaces as a suspendSignal error.
func (i *Interpreter) evaluateExpression(node ast.Expression) (runtime.Value, error) {
	val, err := i.evaluate(node)
	if err != nil {
		return nil, attachSpan(err, node)
	}
	return val, nil
}

func (i *Interpreter) evaluate(node ast.Expression) (runtime.Value, error) {
	switch n := node.(type) {
	case *ast.StringLiteral:
		return runtime.StringValue{Val: n.Value}, nil
	case *ast.IntegerLiteral:
		return runtime.IntegerValue{Val: n.Value}, nil
	case *ast.FloatLiteral:
		return runtime.FloatValue{Val: n.Value}, nil
	case *ast.BooleanLiteral:
		return runtime.BoolValue{Val: n.Value}, nil
	case *ast.NoneLiteral:
		return runtime.None, nil
	case *ast.Identifier:
		val, err := i.state.Variables.Get(n.Name)
		if err != nil {
			return nil, undefinedVariable(n.Name)
		}
		return val, nil
	case *ast.ListLiteral:
		elements, err := i.evaluateAll(n.Elements)
		if err != nil {
			return nil, err
		}
		return runtime.NewList(elements...), nil
	case *ast.DictLiteral:
		return i.evaluateDict(n)
	case *ast.FormattedString:
		return i.evaluateFormattedString(n)
	case *ast.UnaryExpression:
		operand, err := i.evaluateExpression(n.Operand)
		if err != nil {
			return nil, err
		}
		return unaryOperation(n.Operator, operand)
	case *ast.BinaryExpression:
		left, err := i.evaluateExpression(n.Left)
		if err != nil {
			return nil, err
		}
		right, err := i.evaluateExpression(n.Right)
		if err != nil {
			return nil, err
		}
		return binaryOperation(n.Operator, left, right)
	case *ast.BooleanExpression:
		left, err := i.evaluateExpression(n.Left)
		if err != nil {
			return nil, err
		}
		truthy := runtime.Truthy(left)
		if (n.Operator == "and" && !truthy) || (n.Operator == "or" && truthy) {
			return left, nil
		}
		return i.evaluateExpression(n.Right)
	case *ast.ComparisonExpression:
		return i.evaluateComparison(n)
	case *ast.ConditionalExpression:
		cond, err := i.evaluateCondition(n.Condition, "conditional expression")
		if err != nil {
			return nil, err
		}
		if cond {
			return i.evaluateExpression(n.Consequence)
		}
		return i.evaluateExpression(n.Alternative)
	case *ast.SubscriptExpression:
		return i.evaluateSubscript(n)
	case *ast.FunctionCall:
		return i.evaluateCall(n)
	case *ast.AttributeExpression:
		return nil, newRuntimeError(KindUnsupportedExpression, "attribute access is only allowed as a call target")
	case nil:
		return nil, newRuntimeError(KindUnsupportedExpression, "missing expression")
	default:
		return nil, newRuntimeError(KindUnsupportedExpression, "unsupported expression %s", node.NodeType())
	}
}

func (i *Interpreter) evaluateAll(nodes []ast.Expression) ([]runtime.Value, error) {
	out := make([]runtime.Value, 0, len(nodes))
	for _, node := range nodes {
		val, err := i.evaluateExpression(node)
		if err != nil {
			return nil, err
		}
		out = append(out, val)
	}
	return out, nil
}

func (i *Interpreter) evaluateDict(n *ast.DictLiteral) (runtime.Value, error) {
	dict := runtime.NewDict()
	for _, entry := range n.Entries {
		key, err := i.evaluateExpression(entry.Key)
		if err != nil {
			return nil, err
		}
		value, err := i.evaluateExpression(entry.Value)
		if err != nil {
			return nil, err
		}
		k, err := dictKey(key)
		if err != nil {
			return nil, attachSpan(err, entry.Key)
		}
		dict.Set(k, value)
	}
	return dict, nil
}

func dictKey(v runtime.Value) (string, error) {
	s, ok := v.(runtime.StringValue)
	if !ok {
		return "", typeMismatch("dict keys must be str, not %s", runtime.TypeName(v))
	}
	return s.Val, nil
}

func (i *Interpreter) evaluateFormattedString(n *ast.FormattedString) (runtime.Value, error) {
	var b strings.Builder
	for _, part := range n.Parts {
		switch p := part.(type) {
		case *ast.StringLiteral:
			b.WriteString(p.Value)
		case *ast.Interpolation:
			val, err := i.evaluateExpression(p.Expression)
			if err != nil {
				return nil, err
			}
			if p.Conversion == "r" {
				val = runtime.StringValue{Val: runtime.Repr(val)}
			} else if p.Conversion == "s" {
				val = runtime.StringValue{Val: runtime.Str(val)}
			}
			text, err := runtime.FormatValue(val, p.FormatSpec)
			if err != nil {
				return nil, attachSpan(valueError("%s", err.Error()), p)
			}
			b.WriteString(text)
		default:
			return nil, newRuntimeError(KindUnsupportedExpression, "unexpected formatted string part %s", part.NodeType())
		}
	}
	return runtime.StringValue{Val: b.String()}, nil
}

// evaluateComparison short-circuits chains the way `a < b < c` does.
func (i *Interpreter) evaluateComparison(n *ast.ComparisonExpression) (runtime.Value, error) {
	left, err := i.evaluateExpression(n.Operands[0])
	if err != nil {
		return nil, err
	}
	for idx, op := range n.Operators {
		right, err := i.evaluateExpression(n.Operands[idx+1])
		if err != nil {
			return nil, err
		}
		ok, err := compareOperation(op, left, right)
		if err != nil {
			return nil, err
		}
		if !ok {
			return runtime.BoolValue{Val: false}, nil
		}
		left = right
	}
	return runtime.BoolValue{Val: true}, nil
}

func (i *Interpreter) evaluateSubscript(n *ast.SubscriptExpression) (runtime.Value, error) {
	object, err := i.evaluateExpression(n.Object)
	if err != nil {
		return nil, err
	}
	if slice, ok := n.Index.(*ast.SliceExpression); ok {
		bounds := [3]runtime.Value{runtime.None, runtime.None, runtime.None}
		for idx, expr := range []ast.Expression{slice.Start, slice.Stop, slice.Step} {
			if expr == nil {
				continue
			}
			val, err := i.evaluateExpression(expr)
			if err != nil {
				return nil, err
			}
			bounds[idx] = val
		}
		return sliceValue(object, bounds[0], bounds[1], bounds[2])
	}
	index, err := i.evaluateExpression(n.Index)
	if err != nil {
		return nil, err
	}
	return indexValue(object, index)
}

// evaluateCall evaluates every argument before deciding what the callee is.
// Built-ins and allowed methods run immediately; any other name is external.
func (i *Interpreter) evaluateCall(call *ast.FunctionCall) (runtime.Value, error) {
	args, err := i.evaluateAll(call.Arguments)
	if err != nil {
		return nil, err
	}
	kwargs := runtime.NewDict()
	for _, kw := range call.Keywords {
		val, err := i.evaluateExpression(kw.Value)
		if err != nil {
			return nil, err
		}
		if _, dup := kwargs.Get(kw.Name.Name); dup {
			return nil, attachSpan(typeMismatch("keyword argument repeated: %s", kw.Name.Name), kw)
		}
		kwargs.Set(kw.Name.Name, val)
	}

	switch callee := call.Callee.(type) {
	case *ast.Identifier:
		if fn, ok := builtins[callee.Name]; ok {
			return fn(args, kwargs)
		}
		return i.externalCall(callee.Name, args, kwargs)
	case *ast.AttributeExpression:
		method := callee.Attribute.Name
		// Allow-listed methods always act on a value, so a misspelled
		// receiver is an undefined variable rather than an external call.
		if validator.IsAllowedMethod(method) {
			if id, ok := callee.Object.(*ast.Identifier); ok && !i.state.Variables.Has(id.Name) {
				return nil, attachSpan(undefinedVariable(id.Name), id)
			}
			receiver, err := i.evaluateExpression(callee.Object)
			if err != nil {
				return nil, err
			}
			return callMethod(receiver, method, args, kwargs)
		}
		if name, ok := validator.DottedName(callee); ok {
			return i.externalCall(name, args, kwargs)
		}
		return nil, newRuntimeError(KindUnsupportedExpression, "method .%s() is not allowed", method)
	default:
		return nil, newRuntimeError(KindUnsupportedExpression, "only named functions and allowed methods can be called")
	}
}

