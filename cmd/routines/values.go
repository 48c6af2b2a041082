package main

import (
	"fmt"
	"strings"

	"routines/runtime-go/pkg/runtime"
)

// parseValue reads text as a JSON value, falling back to a plain string.
func parseValue(text string) runtime.Value {
	if v, err := runtime.UnmarshalValue([]byte(text)); err == nil {
		return v
	}
	return runtime.StringValue{Val: text}
}

// parseCallArgs splits command-line arguments into positional values and
// key=value keyword values. A token is a keyword only when the key is a
// plain identifier, so "a=b c" style strings can still be passed quoted
// as JSON.
func parseCallArgs(tokens []string) ([]runtime.Value, map[string]runtime.Value, error) {
	var args []runtime.Value
	kwargs := make(map[string]runtime.Value)
	for _, tok := range tokens {
		key, value, ok := strings.Cut(tok, "=")
		if ok && isIdentifier(key) {
			if _, dup := kwargs[key]; dup {
				return nil, nil, fmt.Errorf("argument %s given more than once", key)
			}
			kwargs[key] = parseValue(value)
			continue
		}
		if len(kwargs) > 0 {
			return nil, nil, fmt.Errorf("positional argument %q follows keyword arguments", tok)
		}
		args = append(args, parseValue(tok))
	}
	return args, kwargs, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// answerValue converts a typed answer. Answers are strings unless asJSON is
// set, in which case they must be valid JSON.
func answerValue(text string, asJSON bool) (runtime.Value, error) {
	if !asJSON {
		return runtime.StringValue{Val: text}, nil
	}
	v, err := runtime.UnmarshalValue([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("answer is not valid JSON: %w", err)
	}
	return v, nil
}

// renderValue prints strings as-is and every other value as its repr. None
// renders as nothing.
func renderValue(v runtime.Value) string {
	if v == nil || v.Kind() == runtime.KindNone {
		return ""
	}
	if s, ok := v.(runtime.StringValue); ok {
		return s.Val
	}
	return runtime.Repr(v)
}
