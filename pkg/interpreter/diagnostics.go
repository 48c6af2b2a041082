package interpreter

import (
	"errors"
	"fmt"
	"strings"
)

// Describe renders err with the offending source line and a caret under the
// column it points at. Errors without a location render as err.Error().
func Describe(err error, source string) string {
	var rerr *RuntimeError
	if !errors.As(err, &rerr) || rerr.Span.Start.Line == 0 {
		return err.Error()
	}
	lines := strings.Split(source, "\n")
	line := rerr.Span.Start.Line
	if line > len(lines) {
		return err.Error()
	}
	text := strings.TrimRight(lines[line-1], "\r")
	col := rerr.Span.Start.Column
	if col < 1 {
		col = 1
	}
	width := 1
	if rerr.Span.End.Line == line && rerr.Span.End.Column > col {
		width = rerr.Span.End.Column - col
	}
	if col-1+width > len(text) {
		width = max(len(text)-(col-1), 1)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", rerr.Kind, rerr.Message)
	fmt.Fprintf(&b, "  --> line %d, column %d\n", line, col)
	fmt.Fprintf(&b, "%4d | %s\n", line, text)
	fmt.Fprintf(&b, "     | %s%s", strings.Repeat(" ", col-1), strings.Repeat("^", width))
	return b.String()
}
