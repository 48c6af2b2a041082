package runtime

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// FormatSpec is a parsed `[[fill]align][sign][#][0][width][grouping][.precision][type]`.
type FormatSpec struct {
	Fill      rune
	Align     byte
	Sign      byte
	Alternate bool
	Width     int
	Grouping  byte
	Precision int
	Type      byte
}

// FormatError reports an invalid specifier or one that does not apply to the value.
type FormatError struct {
	Spec    string
	Message string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid format specifier '%s': %s", e.Spec, e.Message)
}

// ParseFormatSpec parses the text after ':' in an interpolation.
func ParseFormatSpec(spec string) (FormatSpec, error) {
	out := FormatSpec{Fill: ' ', Precision: -1}
	rest := spec
	if r, size := utf8.DecodeRuneInString(rest); size > 0 && len(rest) > size && isAlign(rest[size]) {
		out.Fill = r
		out.Align = rest[size]
		rest = rest[size+1:]
	} else if len(rest) > 0 && isAlign(rest[0]) {
		out.Align = rest[0]
		rest = rest[1:]
	}
	if len(rest) > 0 && (rest[0] == '+' || rest[0] == '-' || rest[0] == ' ') {
		out.Sign = rest[0]
		rest = rest[1:]
	}
	if len(rest) > 0 && rest[0] == '#' {
		out.Alternate = true
		rest = rest[1:]
	}
	if len(rest) > 0 && rest[0] == '0' {
		if out.Align == 0 {
			out.Fill = '0'
			out.Align = '='
		}
		rest = rest[1:]
	}
	digits := leadingDigits(rest)
	if digits != "" {
		out.Width, _ = strconv.Atoi(digits)
		rest = rest[len(digits):]
	}
	if len(rest) > 0 && (rest[0] == ',' || rest[0] == '_') {
		out.Grouping = rest[0]
		rest = rest[1:]
	}
	if len(rest) > 0 && rest[0] == '.' {
		digits := leadingDigits(rest[1:])
		if digits == "" {
			return out, &FormatError{Spec: spec, Message: "format specifier missing precision"}
		}
		out.Precision, _ = strconv.Atoi(digits)
		rest = rest[1+len(digits):]
	}
	if len(rest) == 1 && strings.ContainsRune("sdfFeEgGxXob%n", rune(rest[0])) {
		out.Type = rest[0]
		rest = ""
	}
	if rest != "" {
		return out, &FormatError{Spec: spec, Message: "unknown format code"}
	}
	return out, nil
}

func isAlign(c byte) bool {
	return c == '<' || c == '>' || c == '^' || c == '='
}

func leadingDigits(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}

// FormatValue applies spec to v the way an f-string interpolation does.
func FormatValue(v Value, spec string) (string, error) {
	if spec == "" {
		return Str(v), nil
	}
	fs, err := ParseFormatSpec(spec)
	if err != nil {
		return "", err
	}
	fail := func(msg string) (string, error) {
		return "", &FormatError{Spec: spec, Message: msg}
	}

	switch val := v.(type) {
	case StringValue:
		if fs.Type != 0 && fs.Type != 's' {
			return fail(fmt.Sprintf("unknown format code '%c' for str", fs.Type))
		}
		if fs.Sign != 0 || fs.Grouping != 0 || fs.Align == '=' {
			return fail("sign, grouping and '=' alignment are not allowed for str")
		}
		text := val.Val
		if fs.Precision >= 0 && utf8.RuneCountInString(text) > fs.Precision {
			text = string([]rune(text)[:fs.Precision])
		}
		return pad(text, "", fs, '<'), nil
	case BoolValue:
		if fs.Type == 0 || fs.Type == 's' {
			return pad(Str(val), "", fs, '<'), nil
		}
		n := int64(0)
		if val.Val {
			n = 1
		}
		return formatInteger(n, fs, spec)
	case IntegerValue:
		return formatInteger(val.Val, fs, spec)
	case FloatValue:
		return formatFloatSpec(val.Val, fs, spec)
	default:
		if fs.Type != 0 && fs.Type != 's' {
			return fail(fmt.Sprintf("unknown format code '%c' for %s", fs.Type, TypeName(v)))
		}
		return pad(Str(v), "", fs, '<'), nil
	}
}

func formatInteger(n int64, fs FormatSpec, spec string) (string, error) {
	switch fs.Type {
	case 'e', 'E', 'f', 'F', 'g', 'G', '%':
		return formatFloatSpec(float64(n), fs, spec)
	case 's':
		return "", &FormatError{Spec: spec, Message: "unknown format code 's' for int"}
	}
	if fs.Precision >= 0 {
		return "", &FormatError{Spec: spec, Message: "precision not allowed in integer format specifier"}
	}
	neg := n < 0
	mag := uint64(n)
	if neg {
		mag = uint64(-n)
	}
	var digits, prefix string
	switch fs.Type {
	case 'x':
		digits, prefix = strconv.FormatUint(mag, 16), "0x"
	case 'X':
		digits, prefix = strings.ToUpper(strconv.FormatUint(mag, 16)), "0X"
	case 'o':
		digits, prefix = strconv.FormatUint(mag, 8), "0o"
	case 'b':
		digits, prefix = strconv.FormatUint(mag, 2), "0b"
	default:
		digits = strconv.FormatUint(mag, 10)
	}
	if fs.Grouping != 0 {
		digits = group(digits, fs.Grouping)
	}
	head := signText(neg, fs.Sign)
	if fs.Alternate {
		head += prefix
	}
	return pad(digits, head, fs, '>'), nil
}

func formatFloatSpec(f float64, fs FormatSpec, spec string) (string, error) {
	if fs.Type == 's' || fs.Type == 'x' || fs.Type == 'X' || fs.Type == 'o' || fs.Type == 'b' {
		return "", &FormatError{Spec: spec, Message: fmt.Sprintf("unknown format code '%c' for float", fs.Type)}
	}
	neg := math.Signbit(f) && !math.IsNaN(f)
	mag := math.Abs(f)
	prec := fs.Precision
	var body string
	switch fs.Type {
	case 'f', 'F':
		body = strconv.FormatFloat(mag, 'f', defaultPrecision(prec, 6), 64)
	case 'e', 'E':
		body = strconv.FormatFloat(mag, byte(fs.Type), defaultPrecision(prec, 6), 64)
	case 'g', 'G':
		p := defaultPrecision(prec, 6)
		if p == 0 {
			p = 1
		}
		body = strconv.FormatFloat(mag, byte(fs.Type), p, 64)
	case '%':
		body = strconv.FormatFloat(mag*100, 'f', defaultPrecision(prec, 6), 64) + "%"
	default:
		if prec >= 0 {
			p := prec
			if p == 0 {
				p = 1
			}
			body = strconv.FormatFloat(mag, 'g', p, 64)
		} else {
			body = FormatFloat(mag)
		}
	}
	if math.IsInf(f, 0) {
		body = "inf"
	} else if math.IsNaN(f) {
		body = "nan"
	}
	if fs.Type == 'F' || fs.Type == 'E' || fs.Type == 'G' {
		body = strings.ToUpper(body)
	}
	if fs.Grouping != 0 {
		intPart, frac := body, ""
		if i := strings.IndexAny(body, ".e%"); i >= 0 {
			intPart, frac = body[:i], body[i:]
		}
		body = group(intPart, fs.Grouping) + frac
	}
	return pad(body, signText(neg, fs.Sign), fs, '>'), nil
}

func defaultPrecision(p, fallback int) int {
	if p < 0 {
		return fallback
	}
	return p
}

func signText(neg bool, sign byte) string {
	switch {
	case neg:
		return "-"
	case sign == '+':
		return "+"
	case sign == ' ':
		return " "
	}
	return ""
}

func group(digits string, sep byte) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// pad applies width and alignment. head is the sign/prefix, which '='
// alignment keeps to the left of the padding.
func pad(body, head string, fs FormatSpec, defaultAlign byte) string {
	align := fs.Align
	if align == 0 {
		align = defaultAlign
	}
	length := utf8.RuneCountInString(head) + utf8.RuneCountInString(body)
	if fs.Width <= length {
		return head + body
	}
	fill := strings.Repeat(string(fs.Fill), fs.Width-length)
	switch align {
	case '<':
		return head + body + fill
	case '^':
		n := fs.Width - length
		left := strings.Repeat(string(fs.Fill), n/2)
		right := strings.Repeat(string(fs.Fill), n-n/2)
		return left + head + body + right
	case '=':
		return head + fill + body
	default:
		return fill + head + body
	}
}
