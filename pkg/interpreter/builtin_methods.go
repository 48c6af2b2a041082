package interpreter

import (
	"strings"
	"unicode"

	"routines/runtime-go/pkg/runtime"
)

// callMethod dispatches an allowed method on a value receiver. Mutating
// methods change the receiver in place.
func callMethod(receiver runtime.Value, name string, args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	switch recv := receiver.(type) {
	case runtime.StringValue:
		return stringMethod(recv.Val, name, args, kwargs)
	case *runtime.ListValue:
		return listMethod(recv, name, args, kwargs)
	case *runtime.DictValue:
		return dictMethod(recv, name, args, kwargs)
	}
	return nil, noAttribute(receiver, name)
}

func noAttribute(receiver runtime.Value, name string) *RuntimeError {
	return typeMismatch("'%s' object has no attribute '%s'", runtime.TypeName(receiver), name)
}

func stringArg(method string, v runtime.Value) (string, error) {
	s, ok := v.(runtime.StringValue)
	if !ok {
		return "", typeMismatch("%s() argument must be str, not %s", method, runtime.TypeName(v))
	}
	return s.Val, nil
}

func stringMethod(s, name string, args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	str := func(v string) (runtime.Value, error) { return runtime.StringValue{Val: v}, nil }
	switch name {
	case "upper", "lower", "title", "capitalize", "isdigit":
		if err := arity(name, args, kwargs, 0, 0); err != nil {
			return nil, err
		}
		switch name {
		case "upper":
			return str(strings.ToUpper(s))
		case "lower":
			return str(strings.ToLower(s))
		case "title":
			return str(titleCase(s))
		case "capitalize":
			if s == "" {
				return str(s)
			}
			r := []rune(strings.ToLower(s))
			r[0] = unicode.ToUpper(r[0])
			return str(string(r))
		default:
			if s == "" {
				return runtime.BoolValue{Val: false}, nil
			}
			for _, r := range s {
				if !unicode.IsDigit(r) {
					return runtime.BoolValue{Val: false}, nil
				}
			}
			return runtime.BoolValue{Val: true}, nil
		}
	case "strip", "lstrip", "rstrip":
		if err := arity(name, args, kwargs, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 0 || isNone(args[0]) {
			switch name {
			case "strip":
				return str(strings.TrimSpace(s))
			case "lstrip":
				return str(strings.TrimLeftFunc(s, unicode.IsSpace))
			default:
				return str(strings.TrimRightFunc(s, unicode.IsSpace))
			}
		}
		cutset, err := stringArg(name, args[0])
		if err != nil {
			return nil, err
		}
		switch name {
		case "strip":
			return str(strings.Trim(s, cutset))
		case "lstrip":
			return str(strings.TrimLeft(s, cutset))
		default:
			return str(strings.TrimRight(s, cutset))
		}
	case "split":
		return splitString(s, args, kwargs)
	case "join":
		if err := arity(name, args, kwargs, 1, 1); err != nil {
			return nil, err
		}
		items, err := iterate(args[0])
		if err != nil {
			return nil, err
		}
		parts := make([]string, len(items))
		for idx, item := range items {
			text, ok := item.(runtime.StringValue)
			if !ok {
				return nil, typeMismatch("sequence item %d: expected str instance, %s found", idx, runtime.TypeName(item))
			}
			parts[idx] = text.Val
		}
		return str(strings.Join(parts, s))
	case "replace":
		if err := arity(name, args, kwargs, 2, 3); err != nil {
			return nil, err
		}
		old, err := stringArg(name, args[0])
		if err != nil {
			return nil, err
		}
		repl, err := stringArg(name, args[1])
		if err != nil {
			return nil, err
		}
		count := int64(-1)
		if len(args) == 3 {
			if count, err = intArg(name, args[2]); err != nil {
				return nil, err
			}
		}
		return str(strings.Replace(s, old, repl, int(count)))
	case "startswith", "endswith":
		if err := arity(name, args, kwargs, 1, 1); err != nil {
			return nil, err
		}
		var prefixes []runtime.Value
		if list, ok := args[0].(*runtime.ListValue); ok {
			prefixes = list.Elements
		} else {
			prefixes = args
		}
		for _, p := range prefixes {
			affix, err := stringArg(name, p)
			if err != nil {
				return nil, err
			}
			if (name == "startswith" && strings.HasPrefix(s, affix)) || (name == "endswith" && strings.HasSuffix(s, affix)) {
				return runtime.BoolValue{Val: true}, nil
			}
		}
		return runtime.BoolValue{Val: false}, nil
	case "find":
		if err := arity(name, args, kwargs, 1, 1); err != nil {
			return nil, err
		}
		needle, err := stringArg(name, args[0])
		if err != nil {
			return nil, err
		}
		at := strings.Index(s, needle)
		if at < 0 {
			return runtime.IntegerValue{Val: -1}, nil
		}
		return runtime.IntegerValue{Val: int64(len([]rune(s[:at])))}, nil
	case "count":
		if err := arity(name, args, kwargs, 1, 1); err != nil {
			return nil, err
		}
		needle, err := stringArg(name, args[0])
		if err != nil {
			return nil, err
		}
		return runtime.IntegerValue{Val: int64(strings.Count(s, needle))}, nil
	case "index":
		found, err := stringMethod(s, "find", args, kwargs)
		if err != nil {
			return nil, err
		}
		if found.(runtime.IntegerValue).Val < 0 {
			return nil, valueError("substring not found")
		}
		return found, nil
	}
	return nil, noAttribute(runtime.StringValue{Val: s}, name)
}

func titleCase(s string) string {
	var b strings.Builder
	prevLetter := false
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) && !prevLetter:
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsLetter(r):
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		prevLetter = unicode.IsLetter(r)
	}
	return b.String()
}

func splitString(s string, args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	opts, err := splitKwargs("split", kwargs, "sep", "maxsplit")
	if err != nil {
		return nil, err
	}
	if len(args) > 2 {
		return nil, typeMismatch("split() takes at most 2 arguments (%d given)", len(args))
	}
	var sep runtime.Value = runtime.None
	if len(args) > 0 {
		sep = args[0]
	} else if v, ok := opts["sep"]; ok {
		sep = v
	}
	limit := int64(-1)
	if len(args) > 1 {
		opts["maxsplit"] = args[1]
	}
	if v, ok := opts["maxsplit"]; ok {
		if limit, err = intArg("split", v); err != nil {
			return nil, err
		}
	}

	var parts []string
	if isNone(sep) {
		parts = splitWhitespace(s, limit)
	} else {
		delim, err := stringArg("split", sep)
		if err != nil {
			return nil, err
		}
		if delim == "" {
			return nil, valueError("empty separator")
		}
		n := -1
		if limit >= 0 {
			n = int(limit) + 1
		}
		parts = strings.SplitN(s, delim, n)
	}
	out := make([]runtime.Value, len(parts))
	for idx, part := range parts {
		out[idx] = runtime.StringValue{Val: part}
	}
	return runtime.NewList(out...), nil
}

// splitWhitespace splits on runs of whitespace, keeping the remainder
// unsplit once limit splits have been made.
func splitWhitespace(s string, limit int64) []string {
	if limit < 0 {
		return strings.Fields(s)
	}
	var parts []string
	rest := strings.TrimLeftFunc(s, unicode.IsSpace)
	for rest != "" {
		if int64(len(parts)) == limit {
			parts = append(parts, rest)
			break
		}
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			parts = append(parts, rest)
			break
		}
		parts = append(parts, rest[:end])
		rest = strings.TrimLeftFunc(rest[end:], unicode.IsSpace)
	}
	return parts
}

func isNone(v runtime.Value) bool {
	_, ok := v.(runtime.NoneValue)
	return ok
}

func listMethod(list *runtime.ListValue, name string, args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	switch name {
	case "append":
		if err := arity(name, args, kwargs, 1, 1); err != nil {
			return nil, err
		}
		list.Elements = append(list.Elements, args[0])
		return runtime.None, nil
	case "extend":
		if err := arity(name, args, kwargs, 1, 1); err != nil {
			return nil, err
		}
		items, err := iterate(args[0])
		if err != nil {
			return nil, err
		}
		list.Elements = append(list.Elements, items...)
		return runtime.None, nil
	case "insert":
		if err := arity(name, args, kwargs, 2, 2); err != nil {
			return nil, err
		}
		at, err := intArg(name, args[0])
		if err != nil {
			return nil, err
		}
		n := int64(len(list.Elements))
		if at < 0 {
			at = max(at+n, 0)
		}
		at = min(at, n)
		list.Elements = append(list.Elements, nil)
		copy(list.Elements[at+1:], list.Elements[at:])
		list.Elements[at] = args[1]
		return runtime.None, nil
	case "pop":
		if err := arity(name, args, kwargs, 0, 1); err != nil {
			return nil, err
		}
		if len(list.Elements) == 0 {
			return nil, newRuntimeError(KindIndexError, "pop from empty list")
		}
		var index runtime.Value = runtime.IntegerValue{Val: -1}
		if len(args) == 1 {
			index = args[0]
		}
		at, err := normalizeIndex(index, len(list.Elements), "pop index")
		if err != nil {
			return nil, err
		}
		item := list.Elements[at]
		list.Elements = append(list.Elements[:at], list.Elements[at+1:]...)
		return item, nil
	case "remove":
		if err := arity(name, args, kwargs, 1, 1); err != nil {
			return nil, err
		}
		for idx, el := range list.Elements {
			if runtime.Equal(el, args[0]) {
				list.Elements = append(list.Elements[:idx], list.Elements[idx+1:]...)
				return runtime.None, nil
			}
		}
		return nil, valueError("list.remove(x): x not in list")
	case "clear":
		if err := arity(name, args, kwargs, 0, 0); err != nil {
			return nil, err
		}
		list.Elements = nil
		return runtime.None, nil
	case "index":
		if err := arity(name, args, kwargs, 1, 1); err != nil {
			return nil, err
		}
		for idx, el := range list.Elements {
			if runtime.Equal(el, args[0]) {
				return runtime.IntegerValue{Val: int64(idx)}, nil
			}
		}
		return nil, valueError("%s is not in list", runtime.Repr(args[0]))
	case "count":
		if err := arity(name, args, kwargs, 1, 1); err != nil {
			return nil, err
		}
		total := int64(0)
		for _, el := range list.Elements {
			if runtime.Equal(el, args[0]) {
				total++
			}
		}
		return runtime.IntegerValue{Val: total}, nil
	case "copy":
		if err := arity(name, args, kwargs, 0, 0); err != nil {
			return nil, err
		}
		return runtime.NewList(list.Elements...), nil
	}
	return nil, noAttribute(list, name)
}

func dictMethod(dict *runtime.DictValue, name string, args []runtime.Value, kwargs *runtime.DictValue) (runtime.Value, error) {
	switch name {
	case "get":
		if err := arity(name, args, kwargs, 1, 2); err != nil {
			return nil, err
		}
		key, err := dictKey(args[0])
		if err != nil {
			return nil, err
		}
		if v, ok := dict.Get(key); ok {
			return v, nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return runtime.None, nil
	case "keys", "values", "items":
		if err := arity(name, args, kwargs, 0, 0); err != nil {
			return nil, err
		}
		keys := dict.Keys()
		out := make([]runtime.Value, len(keys))
		for idx, key := range keys {
			v, _ := dict.Get(key)
			switch name {
			case "keys":
				out[idx] = runtime.StringValue{Val: key}
			case "values":
				out[idx] = v
			default:
				out[idx] = runtime.NewList(runtime.StringValue{Val: key}, v)
			}
		}
		return runtime.NewList(out...), nil
	case "update":
		merged, err := builtinDict(args, kwargs)
		if err != nil {
			return nil, err
		}
		src := merged.(*runtime.DictValue)
		for _, key := range src.Keys() {
			v, _ := src.Get(key)
			dict.Set(key, v)
		}
		return runtime.None, nil
	case "pop":
		if err := arity(name, args, kwargs, 1, 2); err != nil {
			return nil, err
		}
		key, err := dictKey(args[0])
		if err != nil {
			return nil, err
		}
		if v, ok := dict.Delete(key); ok {
			return v, nil
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return nil, newRuntimeError(KindKeyError, "%s", runtime.Repr(args[0]))
	case "clear":
		if err := arity(name, args, kwargs, 0, 0); err != nil {
			return nil, err
		}
		dict.Clear()
		return runtime.None, nil
	case "copy":
		if err := arity(name, args, kwargs, 0, 0); err != nil {
			return nil, err
		}
		out := runtime.NewDict()
		for _, key := range dict.Keys() {
			v, _ := dict.Get(key)
			out.Set(key, v)
		}
		return out, nil
	}
	return nil, noAttribute(dict, name)
}
