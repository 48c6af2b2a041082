package runtime

import (
	"math"
	"strconv"
	"strings"
)

// Str renders v the way the routine language's str() does.
func Str(v Value) string {
	if s, ok := v.(StringValue); ok {
		return s.Val
	}
	return Repr(v)
}

// Repr renders v as a literal, quoting strings.
func Repr(v Value) string {
	var b strings.Builder
	writeRepr(&b, v)
	return b.String()
}

func writeRepr(b *strings.Builder, v Value) {
	switch val := v.(type) {
	case nil, NoneValue:
		b.WriteString("None")
	case BoolValue:
		if val.Val {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case IntegerValue:
		b.WriteString(strconv.FormatInt(val.Val, 10))
	case FloatValue:
		b.WriteString(FormatFloat(val.Val))
	case StringValue:
		b.WriteString(quote(val.Val))
	case *ListValue:
		b.WriteByte('[')
		for i, el := range val.Elements {
			if i > 0 {
				b.WriteString(", ")
			}
			writeRepr(b, el)
		}
		b.WriteByte(']')
	case *DictValue:
		b.WriteByte('{')
		for i, key := range val.keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(quote(key))
			b.WriteString(": ")
			writeRepr(b, val.entries[key])
		}
		b.WriteByte('}')
	default:
		b.WriteString("<" + TypeName(v) + ">")
	}
}

// FormatFloat produces the shortest round-tripping text, switching to
// exponent notation outside 1e-4 <= |f| < 1e16.
func FormatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	exp := strconv.FormatFloat(f, 'e', -1, 64)
	mark := strings.IndexByte(exp, 'e')
	power, _ := strconv.Atoi(exp[mark+1:])
	if f != 0 && (power < -4 || power >= 16) {
		return exp
	}
	text := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(text, '.') {
		text += ".0"
	}
	return text
}

func quote(s string) string {
	q := byte('\'')
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}
	var b strings.Builder
	b.WriteByte(q)
	for _, r := range s {
		switch {
		case r == rune(q) || r == '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\t':
			b.WriteString(`\t`)
		case r == '\r':
			b.WriteString(`\r`)
		case r < 0x20 || r == 0x7f:
			b.WriteString(`\x`)
			h := strconv.FormatInt(int64(r), 16)
			if len(h) < 2 {
				b.WriteByte('0')
			}
			b.WriteString(h)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte(q)
	return b.String()
}
