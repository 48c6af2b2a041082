package interpreter

import (
	"math"
	"strings"
	"unicode/utf8"

	"routines/runtime-go/pkg/runtime"
)

func unaryOperation(op string, operand runtime.Value) (runtime.Value, error) {
	switch op {
	case "not":
		return runtime.BoolValue{Val: !runtime.Truthy(operand)}, nil
	case "-":
		switch v := operand.(type) {
		case runtime.IntegerValue:
			if v.Val == math.MinInt64 {
				return nil, valueError("integer overflow")
			}
			return runtime.IntegerValue{Val: -v.Val}, nil
		case runtime.FloatValue:
			return runtime.FloatValue{Val: -v.Val}, nil
		}
	case "+":
		switch operand.(type) {
		case runtime.IntegerValue, runtime.FloatValue:
			return operand, nil
		}
	default:
		return nil, newRuntimeError(KindUnsupportedExpression, "unsupported unary operator %s", op)
	}
	return nil, typeMismatch("bad operand type for unary %s: '%s'", op, runtime.TypeName(operand))
}

func operandMismatch(op string, left, right runtime.Value) *RuntimeError {
	return typeMismatch("unsupported operand type(s) for %s: '%s' and '%s'", op, runtime.TypeName(left), runtime.TypeName(right))
}

// binaryOperation applies an arithmetic operator. Integer arithmetic stays
// integral except for `/`; mixing with a float promotes to float.
func binaryOperation(op string, left, right runtime.Value) (runtime.Value, error) {
	li, lInt := left.(runtime.IntegerValue)
	ri, rInt := right.(runtime.IntegerValue)
	if lInt && rInt {
		return integerOperation(op, li.Val, ri.Val)
	}
	lf, lNum := asFloat(left)
	rf, rNum := asFloat(right)
	if lNum && rNum {
		return floatOperation(op, lf, rf)
	}

	switch op {
	case "+":
		switch l := left.(type) {
		case runtime.StringValue:
			if r, ok := right.(runtime.StringValue); ok {
				return runtime.StringValue{Val: l.Val + r.Val}, nil
			}
		case *runtime.ListValue:
			if r, ok := right.(*runtime.ListValue); ok {
				out := make([]runtime.Value, 0, len(l.Elements)+len(r.Elements))
				out = append(out, l.Elements...)
				out = append(out, r.Elements...)
				return runtime.NewList(out...), nil
			}
		}
	case "*":
		if lInt {
			return repeatValue(right, li.Val, op, left)
		}
		if rInt {
			return repeatValue(left, ri.Val, op, right)
		}
	}
	return nil, operandMismatch(op, left, right)
}

func asFloat(v runtime.Value) (float64, bool) {
	switch n := v.(type) {
	case runtime.IntegerValue:
		return float64(n.Val), true
	case runtime.FloatValue:
		return n.Val, true
	}
	return 0, false
}

func repeatValue(seq runtime.Value, count int64, op string, other runtime.Value) (runtime.Value, error) {
	if count < 0 {
		count = 0
	}
	switch s := seq.(type) {
	case runtime.StringValue:
		if count > 0 && int64(len(s.Val))*count > maxMaterialized {
			return nil, valueError("repeated string is too large")
		}
		return runtime.StringValue{Val: strings.Repeat(s.Val, int(count))}, nil
	case *runtime.ListValue:
		if count > 0 && int64(len(s.Elements))*count > maxMaterialized {
			return nil, valueError("repeated list is too large")
		}
		out := make([]runtime.Value, 0, len(s.Elements)*int(count))
		for n := int64(0); n < count; n++ {
			out = append(out, s.Elements...)
		}
		return runtime.NewList(out...), nil
	}
	return nil, operandMismatch(op, seq, other)
}

func integerOperation(op string, a, b int64) (runtime.Value, error) {
	switch op {
	case "+":
		sum := a + b
		if (a > 0 && b > 0 && sum < 0) || (a < 0 && b < 0 && sum >= 0) {
			return nil, valueError("integer overflow")
		}
		return runtime.IntegerValue{Val: sum}, nil
	case "-":
		diff := a - b
		if (a >= 0 && b < 0 && diff < 0) || (a < 0 && b > 0 && diff >= 0) {
			return nil, valueError("integer overflow")
		}
		return runtime.IntegerValue{Val: diff}, nil
	case "*":
		if a != 0 && b != 0 {
			prod := a * b
			if prod/b != a || (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
				return nil, valueError("integer overflow")
			}
			return runtime.IntegerValue{Val: prod}, nil
		}
		return runtime.IntegerValue{Val: 0}, nil
	case "/":
		if b == 0 {
			return nil, divisionByZero("division by zero")
		}
		return runtime.FloatValue{Val: float64(a) / float64(b)}, nil
	case "//":
		if b == 0 {
			return nil, divisionByZero("integer division or modulo by zero")
		}
		if a == math.MinInt64 && b == -1 {
			return nil, valueError("integer overflow")
		}
		q := a / b
		if (a%b != 0) && ((a < 0) != (b < 0)) {
			q--
		}
		return runtime.IntegerValue{Val: q}, nil
	case "%":
		if b == 0 {
			return nil, divisionByZero("integer division or modulo by zero")
		}
		m := a % b
		if m != 0 && ((m < 0) != (b < 0)) {
			m += b
		}
		return runtime.IntegerValue{Val: m}, nil
	case "**":
		if b < 0 {
			if a == 0 {
				return nil, divisionByZero("0.0 cannot be raised to a negative power")
			}
			return runtime.FloatValue{Val: math.Pow(float64(a), float64(b))}, nil
		}
		result := int64(1)
		base := a
		for exp := b; exp > 0; exp >>= 1 {
			if exp&1 == 1 {
				next := result * base
				if base != 0 && next/base != result {
					return nil, valueError("integer overflow")
				}
				result = next
			}
			if exp > 1 {
				sq := base * base
				if base != 0 && sq/base != base {
					return nil, valueError("integer overflow")
				}
				base = sq
			}
		}
		return runtime.IntegerValue{Val: result}, nil
	}
	return nil, newRuntimeError(KindUnsupportedExpression, "unsupported operator %s", op)
}

func floatOperation(op string, a, b float64) (runtime.Value, error) {
	switch op {
	case "+":
		return runtime.FloatValue{Val: a + b}, nil
	case "-":
		return runtime.FloatValue{Val: a - b}, nil
	case "*":
		return runtime.FloatValue{Val: a * b}, nil
	case "/":
		if b == 0 {
			return nil, divisionByZero("float division by zero")
		}
		return runtime.FloatValue{Val: a / b}, nil
	case "//":
		if b == 0 {
			return nil, divisionByZero("float floor division by zero")
		}
		return runtime.FloatValue{Val: math.Floor(a / b)}, nil
	case "%":
		if b == 0 {
			return nil, divisionByZero("float modulo")
		}
		m := math.Mod(a, b)
		if m != 0 && ((m < 0) != (b < 0)) {
			m += b
		}
		return runtime.FloatValue{Val: m}, nil
	case "**":
		if a == 0 && b < 0 {
			return nil, divisionByZero("0.0 cannot be raised to a negative power")
		}
		return runtime.FloatValue{Val: math.Pow(a, b)}, nil
	}
	return nil, newRuntimeError(KindUnsupportedExpression, "unsupported operator %s", op)
}

func compareOperation(op string, left, right runtime.Value) (bool, error) {
	switch op {
	case "==":
		return runtime.Equal(left, right), nil
	case "!=":
		return !runtime.Equal(left, right), nil
	case "is":
		return identical(left, right), nil
	case "is not":
		return !identical(left, right), nil
	case "in":
		return contains(right, left)
	case "not in":
		found, err := contains(right, left)
		return !found, err
	}
	c, err := runtime.Compare(left, right)
	if err != nil {
		return false, typeMismatch("'%s' not supported between instances of '%s' and '%s'", op, runtime.TypeName(left), runtime.TypeName(right))
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, newRuntimeError(KindUnsupportedExpression, "unsupported comparison %s", op)
}

func identical(a, b runtime.Value) bool {
	switch av := a.(type) {
	case *runtime.ListValue:
		bv, ok := b.(*runtime.ListValue)
		return ok && av == bv
	case *runtime.DictValue:
		bv, ok := b.(*runtime.DictValue)
		return ok && av == bv
	}
	if a.Kind() != b.Kind() {
		return false
	}
	return runtime.Equal(a, b)
}

func contains(container, item runtime.Value) (bool, error) {
	switch c := container.(type) {
	case *runtime.ListValue:
		for _, el := range c.Elements {
			if runtime.Equal(el, item) {
				return true, nil
			}
		}
		return false, nil
	case *runtime.DictValue:
		key, ok := item.(runtime.StringValue)
		if !ok {
			return false, nil
		}
		_, found := c.Get(key.Val)
		return found, nil
	case runtime.StringValue:
		sub, ok := item.(runtime.StringValue)
		if !ok {
			return false, typeMismatch("'in <string>' requires string as left operand, not %s", runtime.TypeName(item))
		}
		return strings.Contains(c.Val, sub.Val), nil
	}
	return false, typeMismatch("argument of type '%s' is not iterable", runtime.TypeName(container))
}

func normalizeIndex(index runtime.Value, length int, what string) (int, error) {
	idx, ok := index.(runtime.IntegerValue)
	if !ok {
		return 0, typeMismatch("%s indices must be integers, not %s", what, runtime.TypeName(index))
	}
	n := idx.Val
	if n < 0 {
		n += int64(length)
	}
	if n < 0 || n >= int64(length) {
		return 0, newRuntimeError(KindIndexError, "%s index out of range", what)
	}
	return int(n), nil
}

func indexValue(object, index runtime.Value) (runtime.Value, error) {
	switch o := object.(type) {
	case *runtime.ListValue:
		idx, err := normalizeIndex(index, len(o.Elements), "list")
		if err != nil {
			return nil, err
		}
		return o.Elements[idx], nil
	case runtime.StringValue:
		runes := []rune(o.Val)
		idx, err := normalizeIndex(index, len(runes), "string")
		if err != nil {
			return nil, err
		}
		return runtime.StringValue{Val: string(runes[idx])}, nil
	case *runtime.DictValue:
		key, err := dictKey(index)
		if err != nil {
			return nil, err
		}
		val, ok := o.Get(key)
		if !ok {
			return nil, newRuntimeError(KindKeyError, "%s", runtime.Repr(index))
		}
		return val, nil
	}
	return nil, typeMismatch("'%s' object is not subscriptable", runtime.TypeName(object))
}

func sliceBound(v runtime.Value, def int64) (int64, bool, error) {
	switch b := v.(type) {
	case runtime.NoneValue, nil:
		return def, false, nil
	case runtime.IntegerValue:
		return b.Val, true, nil
	}
	return 0, false, typeMismatch("slice indices must be integers or None, not %s", runtime.TypeName(v))
}

// sliceIndices resolves start/stop/step against length with Python's clamping rules.
func sliceIndices(length int, start, stop, step runtime.Value) ([]int, error) {
	st, _, err := sliceBound(step, 1)
	if err != nil {
		return nil, err
	}
	if st == 0 {
		return nil, valueError("slice step cannot be zero")
	}
	n := int64(length)
	var lo, hi int64
	if st > 0 {
		lo, hi = 0, n
	} else {
		lo, hi = n-1, -1
	}
	clamp := func(v runtime.Value, def int64) (int64, error) {
		x, set, err := sliceBound(v, def)
		if err != nil || !set {
			return x, err
		}
		if x < 0 {
			x += n
		}
		if st > 0 {
			x = max(0, min(x, n))
		} else {
			x = max(-1, min(x, n-1))
		}
		return x, nil
	}
	if lo, err = clamp(start, lo); err != nil {
		return nil, err
	}
	if hi, err = clamp(stop, hi); err != nil {
		return nil, err
	}
	var out []int
	for i := lo; (st > 0 && i < hi) || (st < 0 && i > hi); i += st {
		out = append(out, int(i))
	}
	return out, nil
}

func sliceValue(object, start, stop, step runtime.Value) (runtime.Value, error) {
	switch o := object.(type) {
	case *runtime.ListValue:
		idxs, err := sliceIndices(len(o.Elements), start, stop, step)
		if err != nil {
			return nil, err
		}
		out := make([]runtime.Value, 0, len(idxs))
		for _, idx := range idxs {
			out = append(out, o.Elements[idx])
		}
		return runtime.NewList(out...), nil
	case runtime.StringValue:
		runes := []rune(o.Val)
		idxs, err := sliceIndices(len(runes), start, stop, step)
		if err != nil {
			return nil, err
		}
		var b strings.Builder
		b.Grow(utf8.UTFMax * len(idxs))
		for _, idx := range idxs {
			b.WriteRune(runes[idx])
		}
		return runtime.StringValue{Val: b.String()}, nil
	}
	return nil, typeMismatch("'%s' object is not sliceable", runtime.TypeName(object))
}
