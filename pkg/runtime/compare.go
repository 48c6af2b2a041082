package runtime

import (
	"fmt"
	"strings"
)

// Equal implements `==`. Integers and floats compare numerically; other
// kinds are only equal to values of the same kind.
func Equal(a, b Value) bool {
	if an, aok := numeric(a); aok {
		if bn, bok := numeric(b); bok {
			return an == bn
		}
		return false
	}
	switch av := a.(type) {
	case nil, NoneValue:
		switch b.(type) {
		case nil, NoneValue:
			return true
		}
		return false
	case BoolValue:
		bv, ok := b.(BoolValue)
		return ok && av.Val == bv.Val
	case StringValue:
		bv, ok := b.(StringValue)
		return ok && av.Val == bv.Val
	case *ListValue:
		bv, ok := b.(*ListValue)
		if !ok || len(av.Elements) != len(bv.Elements) {
			return false
		}
		for i := range av.Elements {
			if !Equal(av.Elements[i], bv.Elements[i]) {
				return false
			}
		}
		return true
	case *DictValue:
		bv, ok := b.(*DictValue)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		for _, key := range av.keys {
			other, ok := bv.entries[key]
			if !ok || !Equal(av.entries[key], other) {
				return false
			}
		}
		return true
	}
	return false
}

func numeric(v Value) (float64, bool) {
	switch n := v.(type) {
	case IntegerValue:
		return float64(n.Val), true
	case FloatValue:
		return n.Val, true
	}
	return 0, false
}

// Compare orders two values for `<`, `>`, sorted() and friends.
func Compare(a, b Value) (int, error) {
	if ai, ok := a.(IntegerValue); ok {
		if bi, ok := b.(IntegerValue); ok {
			switch {
			case ai.Val < bi.Val:
				return -1, nil
			case ai.Val > bi.Val:
				return 1, nil
			}
			return 0, nil
		}
	}
	if an, aok := numeric(a); aok {
		if bn, bok := numeric(b); bok {
			switch {
			case an < bn:
				return -1, nil
			case an > bn:
				return 1, nil
			}
			return 0, nil
		}
	}
	switch av := a.(type) {
	case StringValue:
		if bv, ok := b.(StringValue); ok {
			return strings.Compare(av.Val, bv.Val), nil
		}
	case BoolValue:
		if bv, ok := b.(BoolValue); ok {
			switch {
			case av.Val == bv.Val:
				return 0, nil
			case !av.Val:
				return -1, nil
			}
			return 1, nil
		}
	case *ListValue:
		if bv, ok := b.(*ListValue); ok {
			for i := 0; i < len(av.Elements) && i < len(bv.Elements); i++ {
				c, err := Compare(av.Elements[i], bv.Elements[i])
				if err != nil || c != 0 {
					return c, err
				}
			}
			switch {
			case len(av.Elements) < len(bv.Elements):
				return -1, nil
			case len(av.Elements) > len(bv.Elements):
				return 1, nil
			}
			return 0, nil
		}
	}
	return 0, fmt.Errorf("'<' not supported between instances of '%s' and '%s'", TypeName(a), TypeName(b))
}

// Truthy reports the truth value bool() would give v.
func Truthy(v Value) bool {
	switch val := v.(type) {
	case nil, NoneValue:
		return false
	case BoolValue:
		return val.Val
	case IntegerValue:
		return val.Val != 0
	case FloatValue:
		return val.Val != 0
	case StringValue:
		return val.Val != ""
	case *ListValue:
		return len(val.Elements) > 0
	case *DictValue:
		return val.Len() > 0
	}
	return true
}
