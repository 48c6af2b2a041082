package runtime

import (
	"fmt"
)

// Kind identifies the runtime value category.
type Kind int

const (
	KindNone Kind = iota
	KindBool
	KindInteger
	KindFloat
	KindString
	KindList
	KindDict
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "NoneType"
	case KindBool:
		return "bool"
	case KindInteger:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "str"
	case KindList:
		return "list"
	case KindDict:
		return "dict"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is any value a routine can hold in a variable. Every Value is
// serializable through the codec in this package.
type Value interface {
	Kind() Kind
}

type NoneValue struct{}

func (NoneValue) Kind() Kind { return KindNone }

type BoolValue struct {
	Val bool
}

func (BoolValue) Kind() Kind { return KindBool }

type IntegerValue struct {
	Val int64
}

func (IntegerValue) Kind() Kind { return KindInteger }

type FloatValue struct {
	Val float64
}

func (FloatValue) Kind() Kind { return KindFloat }

type StringValue struct {
	Val string
}

func (StringValue) Kind() Kind { return KindString }

// ListValue is shared by reference, so list methods mutate in place.
type ListValue struct {
	Elements []Value
}

func (*ListValue) Kind() Kind { return KindList }

// NewList wraps elements without copying.
func NewList(elements ...Value) *ListValue {
	if elements == nil {
		elements = []Value{}
	}
	return &ListValue{Elements: elements}
}

// None is the shared None value.
var None Value = NoneValue{}

// TypeName returns the user-facing type name of v.
func TypeName(v Value) string {
	if v == nil {
		return KindNone.String()
	}
	return v.Kind().String()
}

// Copy returns a deep copy of v. Scalars are returned as is.
func Copy(v Value) Value {
	switch val := v.(type) {
	case *ListValue:
		out := make([]Value, len(val.Elements))
		for i, el := range val.Elements {
			out[i] = Copy(el)
		}
		return &ListValue{Elements: out}
	case *DictValue:
		out := NewDict()
		for _, key := range val.keys {
			out.Set(key, Copy(val.entries[key]))
		}
		return out
	default:
		return v
	}
}
