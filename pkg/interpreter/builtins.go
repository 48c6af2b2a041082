package interpreter

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"routines/runtime-go/pkg/runtime"
)

// maxMaterialized caps lists and strings built by range() and repetition.
const maxMaterialized = 1 << 20

type builtinFunc func(args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error)

// builtins are pure functions evaluated in place. They never suspend.
var builtins map[string]builtinFunc

func init() {
	builtins = map[string]builtinFunc{
		"len":       builtinLen,
		"str":       builtinStr,
		"int":       builtinInt,
		"float":     builtinFloat,
		"bool":      builtinBool,
		"list":      builtinList,
		"dict":      builtinDict,
		"range":     builtinRange,
		"min":       func(a []runtime.Value, k *runtime.DictValue) (runtime.Value, error) { return extremum("min", a, k, -1) },
		"max":       func(a []runtime.Value, k *runtime.DictValue) (runtime.Value, error) { return extremum("max", a, k, 1) },
		"sum":       builtinSum,
		"abs":       builtinAbs,
		"round":     builtinRound,
		"sorted":    builtinSorted,
		"reversed":  builtinReversed,
		"enumerate": builtinEnumerate,
		"zip":       builtinZip,
		"any":       func(a []runtime.Value, k *runtime.DictValue) (runtime.Value, error) { return truthAggregate("any", a, k, true) },
		"all":       func(a []runtime.Value, k *runtime.DictValue) (runtime.Value, error) { return truthAggregate("all", a, k, false) },
	}
}

// IsBuiltin reports whether name is evaluated in place rather than suspending.
func IsBuiltin(name string) bool {
	_, ok := builtins[name]
	return ok
}

func arity(name string, args []runtime.Value, kwargs *runtime.DictValue, minArgs, maxArgs int) error {
	if kwargs != nil && kwargs.Len() > 0 {
		return typeMismatch("%s() takes no keyword arguments", name)
	}
	if len(args) < minArgs || (maxArgs >= 0 && len(args) > maxArgs) {
		switch {
		case minArgs == maxArgs:
			return typeMismatch("%s() takes exactly %d argument(s) (%d given)", name, minArgs, len(args))
		case maxArgs < 0:
			return typeMismatch("%s() takes at least %d argument(s) (%d given)", name, minArgs, len(args))
		default:
			return typeMismatch("%s() takes from %d to %d arguments (%d given)", name, minArgs, maxArgs, len(args))
		}
	}
	return nil
}

// splitKwargs pulls the named keyword arguments out and rejects any others.
func splitKwargs(name string, kwargs *runtime.DictValue, allowed ...string) (map[string]runtime.Value, error) {
	out := make(map[string]runtime.Value)
	if kwargs == nil {
		return out, nil
	}
	for _, key := range kwargs.Keys() {
		ok := false
		for _, a := range allowed {
			if a == key {
				ok = true
				break
			}
		}
		if !ok {
			return nil, typeMismatch("%s() got an unexpected keyword argument '%s'", name, key)
		}
		out[key], _ = kwargs.Get(key)
	}
	return out, nil
}

func builtinLen(args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	if err := arity("len", args, kwargs, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case runtime.StringValue:
		return runtime.IntegerValue{Val: int64(len([]rune(v.Val)))}, nil
	case *runtime.ListValue:
		return runtime.IntegerValue{Val: int64(len(v.Elements))}, nil
	case *runtime.DictValue:
		return runtime.IntegerValue{Val: int64(v.Len())}, nil
	}
	return nil, typeMismatch("object of type '%s' has no len()", runtime.TypeName(args[0]))
}

func builtinStr(args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	if err := arity("str", args, kwargs, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return runtime.StringValue{}, nil
	}
	return runtime.StringValue{Val: runtime.Str(args[0])}, nil
}

func builtinInt(args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	if err := arity("int", args, kwargs, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return runtime.IntegerValue{}, nil
	}
	switch v := args[0].(type) {
	case runtime.IntegerValue:
		return v, nil
	case runtime.BoolValue:
		if v.Val {
			return runtime.IntegerValue{Val: 1}, nil
		}
		return runtime.IntegerValue{Val: 0}, nil
	case runtime.FloatValue:
		if math.IsNaN(v.Val) || math.IsInf(v.Val, 0) {
			return nil, valueError("cannot convert float %s to integer", runtime.FormatFloat(v.Val))
		}
		if v.Val >= math.MaxInt64 || v.Val < math.MinInt64 {
			return nil, valueError("integer overflow")
		}
		return runtime.IntegerValue{Val: int64(v.Val)}, nil
	case runtime.StringValue:
		text := strings.ReplaceAll(strings.TrimSpace(v.Val), "_", "")
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, valueError("invalid literal for int() with base 10: %s", runtime.Repr(v))
		}
		return runtime.IntegerValue{Val: n}, nil
	}
	return nil, typeMismatch("int() argument must be a string or a number, not '%s'", runtime.TypeName(args[0]))
}

func builtinFloat(args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	if err := arity("float", args, kwargs, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return runtime.FloatValue{}, nil
	}
	switch v := args[0].(type) {
	case runtime.FloatValue:
		return v, nil
	case runtime.IntegerValue:
		return runtime.FloatValue{Val: float64(v.Val)}, nil
	case runtime.BoolValue:
		if v.Val {
			return runtime.FloatValue{Val: 1}, nil
		}
		return runtime.FloatValue{Val: 0}, nil
	case runtime.StringValue:
		text := strings.ToLower(strings.TrimSpace(v.Val))
		switch text {
		case "inf", "+inf", "infinity":
			return runtime.FloatValue{Val: math.Inf(1)}, nil
		case "-inf", "-infinity":
			return runtime.FloatValue{Val: math.Inf(-1)}, nil
		case "nan":
			return runtime.FloatValue{Val: math.NaN()}, nil
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
		if err != nil {
			return nil, valueError("could not convert string to float: %s", runtime.Repr(v))
		}
		return runtime.FloatValue{Val: f}, nil
	}
	return nil, typeMismatch("float() argument must be a string or a number, not '%s'", runtime.TypeName(args[0]))
}

func builtinBool(args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	if err := arity("bool", args, kwargs, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return runtime.BoolValue{}, nil
	}
	return runtime.BoolValue{Val: runtime.Truthy(args[0])}, nil
}

func builtinList(args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	if err := arity("list", args, kwargs, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return runtime.NewList(), nil
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	return runtime.NewList(items...), nil
}

func builtinDict(args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	if len(args) > 1 {
		return nil, typeMismatch("dict expected at most 1 argument, got %d", len(args))
	}
	out := runtime.NewDict()
	if len(args) == 1 {
		switch src := args[0].(type) {
		case *runtime.DictValue:
			for _, key := range src.Keys() {
				v, _ := src.Get(key)
				out.Set(key, v)
			}
		case *runtime.ListValue:
			for _, el := range src.Elements {
				pair, ok := el.(*runtime.ListValue)
				if !ok || len(pair.Elements) != 2 {
					return nil, valueError("dictionary update sequence element must be a pair")
				}
				key, err := dictKey(pair.Elements[0])
				if err != nil {
					return nil, err
				}
				out.Set(key, pair.Elements[1])
			}
		default:
			return nil, typeMismatch("'%s' object is not iterable", runtime.TypeName(args[0]))
		}
	}
	if kwargs != nil {
		for _, key := range kwargs.Keys() {
			v, _ := kwargs.Get(key)
			out.Set(key, v)
		}
	}
	return out, nil
}

func intArg(name string, v runtime.Value) (int64, error) {
	n, ok := v.(runtime.IntegerValue)
	if !ok {
		return 0, typeMismatch("%s() expects int, not '%s'", name, runtime.TypeName(v))
	}
	return n.Val, nil
}

func builtinRange(args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	if err := arity("range", args, kwargs, 1, 3); err != nil {
		return nil, err
	}
	bounds := make([]int64, len(args))
	for idx, arg := range args {
		n, err := intArg("range", arg)
		if err != nil {
			return nil, err
		}
		bounds[idx] = n
	}
	start, stop, step := int64(0), bounds[0], int64(1)
	if len(bounds) >= 2 {
		start, stop = bounds[0], bounds[1]
	}
	if len(bounds) == 3 {
		step = bounds[2]
	}
	if step == 0 {
		return nil, valueError("range() arg 3 must not be zero")
	}
	var out []runtime.Value
	for n := start; (step > 0 && n < stop) || (step < 0 && n > stop); n += step {
		if len(out) >= maxMaterialized {
			return nil, valueError("range() is too large")
		}
		out = append(out, runtime.IntegerValue{Val: n})
	}
	return runtime.NewList(out...), nil
}

// candidates accepts either one iterable argument or several values.
func candidates(name string, args []runtime.Value) ([]runtime.Value, error) {
	if len(args) == 0 {
		return nil, typeMismatch("%s expected at least 1 argument, got 0", name)
	}
	if len(args) == 1 {
		return iterate(args[0])
	}
	return args, nil
}

func extremum(name string, args []runtime.Value, kwargs *runtime.DictValue, want int) (runtime.Value, error) {
	opts, err := splitKwargs(name, kwargs, "default")
	if err != nil {
		return nil, err
	}
	items, err := candidates(name, args)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		if def, ok := opts["default"]; ok {
			return def, nil
		}
		return nil, valueError("%s() arg is an empty sequence", name)
	}
	best := items[0]
	for _, item := range items[1:] {
		c, err := runtime.Compare(item, best)
		if err != nil {
			return nil, typeMismatch("%s", err.Error())
		}
		if c == want {
			best = item
		}
	}
	return best, nil
}

func builtinSum(args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	opts, err := splitKwargs("sum", kwargs, "start")
	if err != nil {
		return nil, err
	}
	if len(args) < 1 || len(args) > 2 {
		return nil, typeMismatch("sum() takes from 1 to 2 positional arguments (%d given)", len(args))
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	var total runtime.Value = runtime.IntegerValue{}
	if len(args) == 2 {
		total = args[1]
	} else if start, ok := opts["start"]; ok {
		total = start
	}
	if _, ok := total.(runtime.StringValue); ok {
		return nil, typeMismatch("sum() can't sum strings, use ''.join(seq) instead")
	}
	for _, item := range items {
		total, err = binaryOperation("+", total, item)
		if err != nil {
			return nil, err
		}
	}
	return total, nil
}

func builtinAbs(args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	if err := arity("abs", args, kwargs, 1, 1); err != nil {
		return nil, err
	}
	switch v := args[0].(type) {
	case runtime.IntegerValue:
		if v.Val < 0 {
			return unaryOperation("-", v)
		}
		return v, nil
	case runtime.FloatValue:
		return runtime.FloatValue{Val: math.Abs(v.Val)}, nil
	}
	return nil, typeMismatch("bad operand type for abs(): '%s'", runtime.TypeName(args[0]))
}

// builtinRound rounds half to even.
func builtinRound(args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	opts, err := splitKwargs("round", kwargs, "ndigits")
	if err != nil {
		return nil, err
	}
	if len(args) < 1 || len(args) > 2 {
		return nil, typeMismatch("round() takes from 1 to 2 arguments (%d given)", len(args))
	}
	var digits runtime.Value = runtime.None
	if len(args) == 2 {
		digits = args[1]
	} else if d, ok := opts["ndigits"]; ok {
		digits = d
	}
	x, ok := asFloat(args[0])
	if !ok {
		return nil, typeMismatch("type %s doesn't define __round__ method", runtime.TypeName(args[0]))
	}
	if _, none := digits.(runtime.NoneValue); none {
		if iv, isInt := args[0].(runtime.IntegerValue); isInt {
			return iv, nil
		}
		r := math.RoundToEven(x)
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return nil, valueError("cannot convert float %s to integer", runtime.FormatFloat(r))
		}
		return runtime.IntegerValue{Val: int64(r)}, nil
	}
	n, err := intArg("round", digits)
	if err != nil {
		return nil, err
	}
	if iv, isInt := args[0].(runtime.IntegerValue); isInt && n >= 0 {
		return iv, nil
	}
	scale := math.Pow(10, float64(n))
	return runtime.FloatValue{Val: math.RoundToEven(x*scale) / scale}, nil
}

func builtinSorted(args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	opts, err := splitKwargs("sorted", kwargs, "reverse")
	if err != nil {
		return nil, err
	}
	if len(args) != 1 {
		return nil, typeMismatch("sorted expected 1 argument, got %d", len(args))
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	reverse := false
	if r, ok := opts["reverse"]; ok {
		reverse = runtime.Truthy(r)
	}
	var cmpErr error
	sort.SliceStable(items, func(a, b int) bool {
		c, err := runtime.Compare(items[a], items[b])
		if err != nil && cmpErr == nil {
			cmpErr = err
		}
		if reverse {
			return c > 0
		}
		return c < 0
	})
	if cmpErr != nil {
		return nil, typeMismatch("%s", cmpErr.Error())
	}
	return runtime.NewList(items...), nil
}

func builtinReversed(args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	if err := arity("reversed", args, kwargs, 1, 1); err != nil {
		return nil, err
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	for l, r := 0, len(items)-1; l < r; l, r = l+1, r-1 {
		items[l], items[r] = items[r], items[l]
	}
	return runtime.NewList(items...), nil
}

func builtinEnumerate(args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	opts, err := splitKwargs("enumerate", kwargs, "start")
	if err != nil {
		return nil, err
	}
	if len(args) < 1 || len(args) > 2 {
		return nil, typeMismatch("enumerate() takes from 1 to 2 arguments (%d given)", len(args))
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	start := int64(0)
	startVal, hasStart := opts["start"]
	if len(args) == 2 {
		startVal, hasStart = args[1], true
	}
	if hasStart {
		if start, err = intArg("enumerate", startVal); err != nil {
			return nil, err
		}
	}
	out := make([]runtime.Value, len(items))
	for idx, item := range items {
		out[idx] = runtime.NewList(runtime.IntegerValue{Val: start + int64(idx)}, item)
	}
	return runtime.NewList(out...), nil
}

func builtinZip(args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	if err := arity("zip", args, kwargs, 0, -1); err != nil {
		return nil, err
	}
	columns := make([][]runtime.Value, len(args))
	shortest := -1
	for idx, arg := range args {
		items, err := iterate(arg)
		if err != nil {
			return nil, err
		}
		columns[idx] = items
		if shortest < 0 || len(items) < shortest {
			shortest = len(items)
		}
	}
	out := make([]runtime.Value, 0, max(shortest, 0))
	for row := 0; row < shortest; row++ {
		tuple := make([]runtime.Value, len(columns))
		for col := range columns {
			tuple[col] = columns[col][row]
		}
		out = append(out, runtime.NewList(tuple...))
	}
	return runtime.NewList(out...), nil
}

func truthAggregate(name string, args []runtime.Value, kwargs *runtime.DictValue, target bool) (runtime.Value, error) {
	if err := arity(name, args, kwargs, 1, 1); err != nil {
		return nil, err
	}
	items, err := iterate(args[0])
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if runtime.Truthy(item) == target {
			return runtime.BoolValue{Val: target}, nil
		}
	}
	return runtime.BoolValue{Val: !target}, nil
}
