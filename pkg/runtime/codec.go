package runtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Values encode to plain JSON. Integers never carry a fraction or exponent
// while floats always do, so the two survive a round trip. Dicts keep their
// insertion order. Non-finite floats encode as {"$float": "inf"|"-inf"|"nan"}.

const floatTag = "$float"

// MarshalValue encodes v deterministically.
func MarshalValue(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalValue decodes a value produced by MarshalValue.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("runtime: trailing data after value")
	}
	return v, nil
}

// CanonicalKey renders v as its deterministic encoding, for use as a map key.
func CanonicalKey(v Value) string {
	data, err := MarshalValue(v)
	if err != nil {
		return fmt.Sprintf("<%s>", TypeName(v))
	}
	return string(data)
}

func encodeValue(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil, NoneValue:
		buf.WriteString("null")
	case BoolValue:
		buf.WriteString(strconv.FormatBool(val.Val))
	case IntegerValue:
		buf.WriteString(strconv.FormatInt(val.Val, 10))
	case FloatValue:
		encodeFloat(buf, val.Val)
	case StringValue:
		encodeString(buf, val.Val)
	case *ListValue:
		buf.WriteByte('[')
		for i, el := range val.Elements {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, el); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *DictValue:
		buf.WriteByte('{')
		for i, key := range val.keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			encodeString(buf, key)
			buf.WriteByte(':')
			if err := encodeValue(buf, val.entries[key]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("runtime: cannot encode %T", v)
	}
	return nil
}

func encodeFloat(buf *bytes.Buffer, f float64) {
	switch {
	case math.IsNaN(f):
		fmt.Fprintf(buf, `{%q:"nan"}`, floatTag)
	case math.IsInf(f, 1):
		fmt.Fprintf(buf, `{%q:"inf"}`, floatTag)
	case math.IsInf(f, -1):
		fmt.Fprintf(buf, `{%q:"-inf"}`, floatTag)
	default:
		text := strconv.FormatFloat(f, 'g', -1, 64)
		if !strings.ContainsAny(text, ".eE") {
			text += ".0"
		}
		buf.WriteString(text)
	}
}

func encodeString(buf *bytes.Buffer, s string) {
	data, _ := json.Marshal(s)
	buf.Write(data)
}

func decodeValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("runtime: decode value: %w", err)
	}
	switch t := tok.(type) {
	case nil:
		return None, nil
	case bool:
		return BoolValue{Val: t}, nil
	case json.Number:
		return decodeNumber(t)
	case string:
		return StringValue{Val: t}, nil
	case json.Delim:
		switch t {
		case '[':
			list := NewList()
			for dec.More() {
				el, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				list.Elements = append(list.Elements, el)
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("runtime: decode list: %w", err)
			}
			return list, nil
		case '{':
			dict := NewDict()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, fmt.Errorf("runtime: decode dict: %w", err)
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("runtime: dict key %v is not a string", keyTok)
				}
				el, err := decodeValue(dec)
				if err != nil {
					return nil, err
				}
				dict.Set(key, el)
			}
			if _, err := dec.Token(); err != nil {
				return nil, fmt.Errorf("runtime: decode dict: %w", err)
			}
			return unwrapFloatTag(dict), nil
		}
	}
	return nil, fmt.Errorf("runtime: unexpected token %v", tok)
}

func decodeNumber(n json.Number) (Value, error) {
	text := n.String()
	if strings.ContainsAny(text, ".eE") {
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("runtime: decode float %s: %w", text, err)
		}
		return FloatValue{Val: f}, nil
	}
	i, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("runtime: decode int %s: %w", text, err)
	}
	return IntegerValue{Val: i}, nil
}

func unwrapFloatTag(dict *DictValue) Value {
	if dict.Len() != 1 {
		return dict
	}
	raw, ok := dict.Get(floatTag)
	if !ok {
		return dict
	}
	s, ok := raw.(StringValue)
	if !ok {
		return dict
	}
	switch s.Val {
	case "nan":
		return FloatValue{Val: math.NaN()}
	case "inf":
		return FloatValue{Val: math.Inf(1)}
	case "-inf":
		return FloatValue{Val: math.Inf(-1)}
	}
	return dict
}

// Box adapts a Value to encoding/json so it can sit inside tagged structs.
type Box struct {
	Value Value
}

func (b Box) MarshalJSON() ([]byte, error) {
	return MarshalValue(b.Value)
}

func (b *Box) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalValue(data)
	if err != nil {
		return err
	}
	b.Value = v
	return nil
}

// BoxAll wraps each value.
func BoxAll(values []Value) []Box {
	out := make([]Box, len(values))
	for i, v := range values {
		out[i] = Box{Value: v}
	}
	return out
}

// UnboxAll unwraps each box.
func UnboxAll(boxes []Box) []Value {
	out := make([]Value, len(boxes))
	for i, b := range boxes {
		out[i] = b.Value
	}
	return out
}

// MarshalJSON encodes the environment as an object with sorted keys.
func (e *Environment) MarshalJSON() ([]byte, error) {
	dict := NewDict()
	for _, key := range e.Keys() {
		dict.Set(key, e.values[key])
	}
	return MarshalValue(dict)
}

func (e *Environment) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalValue(data)
	if err != nil {
		return err
	}
	dict, ok := v.(*DictValue)
	if !ok {
		return fmt.Errorf("runtime: environment must be an object, got %s", TypeName(v))
	}
	e.values = make(map[string]Value, dict.Len())
	for _, key := range dict.keys {
		e.values[key] = dict.entries[key]
	}
	return nil
}
