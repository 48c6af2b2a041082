package runtime

import (
	"encoding/json"
	"math"
	"testing"
)

func sampleDict() *DictValue {
	d := NewDict()
	d.Set("zeta", IntegerValue{Val: 1})
	d.Set("alpha", FloatValue{Val: 1})
	d.Set("list", NewList(StringValue{Val: "x"}, None, BoolValue{Val: true}))
	return d
}

func TestMarshalValueKeepsIntFloatDistinction(t *testing.T) {
	cases := []struct {
		value Value
		want  string
	}{
		{IntegerValue{Val: 3}, "3"},
		{FloatValue{Val: 3}, "3.0"},
		{FloatValue{Val: 0.5}, "0.5"},
		{FloatValue{Val: 1e21}, "1e+21"},
		{FloatValue{Val: math.Inf(-1)}, `{"$float":"-inf"}`},
		{StringValue{Val: "a\"b"}, `"a\"b"`},
		{None, "null"},
		{sampleDict(), `{"zeta":1,"alpha":1.0,"list":["x",null,true]}`},
	}
	for _, tc := range cases {
		data, err := MarshalValue(tc.value)
		if err != nil {
			t.Fatalf("marshal %s: %v", Repr(tc.value), err)
		}
		if string(data) != tc.want {
			t.Fatalf("expected %s, got %s", tc.want, data)
		}
		back, err := UnmarshalValue(data)
		if err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if back.Kind() != tc.value.Kind() || !Equal(back, tc.value) {
			t.Fatalf("round trip changed %s into %s", Repr(tc.value), Repr(back))
		}
	}
}

func TestUnmarshalValuePreservesDictOrder(t *testing.T) {
	back, err := UnmarshalValue([]byte(`{"b":1,"a":2,"c":3}`))
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	dict, ok := back.(*DictValue)
	if !ok {
		t.Fatalf("expected dict, got %#v", back)
	}
	keys := dict.Keys()
	if len(keys) != 3 || keys[0] != "b" || keys[1] != "a" || keys[2] != "c" {
		t.Fatalf("unexpected key order %v", keys)
	}
}

func TestUnmarshalValueRejectsTrailingData(t *testing.T) {
	if _, err := UnmarshalValue([]byte(`1 2`)); err == nil {
		t.Fatalf("expected trailing data error")
	}
}

func TestEnvironmentJSONIsSorted(t *testing.T) {
	env := NewEnvironment()
	env.Define("b", IntegerValue{Val: 2})
	env.Define("a", StringValue{Val: "x"})
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"a":"x","b":2}` {
		t.Fatalf("unexpected encoding %s", data)
	}
	var back Environment
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, err := back.Get("b"); err != nil || !Equal(v, IntegerValue{Val: 2}) {
		t.Fatalf("expected b=2, got %v %v", v, err)
	}
}

func TestReprAndStr(t *testing.T) {
	cases := []struct {
		value Value
		repr  string
		str   string
	}{
		{None, "None", "None"},
		{BoolValue{Val: true}, "True", "True"},
		{FloatValue{Val: 2}, "2.0", "2.0"},
		{FloatValue{Val: 1e-5}, "1e-05", "1e-05"},
		{StringValue{Val: "it's"}, `"it's"`, "it's"},
		{NewList(IntegerValue{Val: 1}, StringValue{Val: "a"}), "[1, 'a']", "[1, 'a']"},
		{sampleDict(), "{'zeta': 1, 'alpha': 1.0, 'list': ['x', None, True]}", "{'zeta': 1, 'alpha': 1.0, 'list': ['x', None, True]}"},
	}
	for _, tc := range cases {
		if got := Repr(tc.value); got != tc.repr {
			t.Fatalf("repr: expected %s, got %s", tc.repr, got)
		}
		if got := Str(tc.value); got != tc.str {
			t.Fatalf("str: expected %s, got %s", tc.str, got)
		}
	}
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		value Value
		spec  string
		want  string
	}{
		{IntegerValue{Val: 42}, "", "42"},
		{IntegerValue{Val: 42}, ">5", "   42"},
		{IntegerValue{Val: 42}, "<5", "42   "},
		{IntegerValue{Val: 42}, "^6", "  42  "},
		{IntegerValue{Val: -42}, "06", "-00042"},
		{IntegerValue{Val: 1234567}, ",", "1,234,567"},
		{IntegerValue{Val: 255}, "#x", "0xff"},
		{IntegerValue{Val: 5}, "b", "101"},
		{IntegerValue{Val: 7}, "+", "+7"},
		{FloatValue{Val: 3.14159}, ".2f", "3.14"},
		{FloatValue{Val: 0.25}, ".0%", "25%"},
		{FloatValue{Val: 1234.5}, ",.1f", "1,234.5"},
		{FloatValue{Val: 12345.678}, ".2e", "1.23e+04"},
		{StringValue{Val: "ab"}, "*^6", "**ab**"},
		{StringValue{Val: "abcdef"}, ".3", "abc"},
		{BoolValue{Val: true}, "", "True"},
	}
	for _, tc := range cases {
		got, err := FormatValue(tc.value, tc.spec)
		if err != nil {
			t.Fatalf("format %s with %q: %v", Repr(tc.value), tc.spec, err)
		}
		if got != tc.want {
			t.Fatalf("format %s with %q: expected %q, got %q", Repr(tc.value), tc.spec, tc.want, got)
		}
	}
}

func TestFormatValueErrors(t *testing.T) {
	cases := []struct {
		value Value
		spec  string
	}{
		{StringValue{Val: "x"}, "d"},
		{IntegerValue{Val: 1}, ".2"},
		{FloatValue{Val: 1}, "x"},
		{IntegerValue{Val: 1}, "q"},
	}
	for _, tc := range cases {
		if _, err := FormatValue(tc.value, tc.spec); err == nil {
			t.Fatalf("expected error formatting %s with %q", Repr(tc.value), tc.spec)
		}
	}
}

func TestEqualAndCompare(t *testing.T) {
	if !Equal(IntegerValue{Val: 1}, FloatValue{Val: 1}) {
		t.Fatalf("expected 1 == 1.0")
	}
	if Equal(BoolValue{Val: true}, IntegerValue{Val: 1}) {
		t.Fatalf("bools are not numbers")
	}
	if !Equal(sampleDict(), sampleDict()) {
		t.Fatalf("expected equal dicts")
	}
	if c, err := Compare(NewList(IntegerValue{Val: 1}), NewList(IntegerValue{Val: 1}, IntegerValue{Val: 0})); err != nil || c != -1 {
		t.Fatalf("expected shorter list first, got %d %v", c, err)
	}
	if _, err := Compare(IntegerValue{Val: 1}, StringValue{Val: "1"}); err == nil {
		t.Fatalf("expected int/str comparison to fail")
	}
}

func TestCopyIsDeep(t *testing.T) {
	orig := NewList(NewList(IntegerValue{Val: 1}))
	dup := Copy(orig).(*ListValue)
	inner := dup.Elements[0].(*ListValue)
	inner.Elements = append(inner.Elements, IntegerValue{Val: 2})
	if len(orig.Elements[0].(*ListValue).Elements) != 1 {
		t.Fatalf("copy shares nested list")
	}
}
