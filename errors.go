package talc

import (
	"fmt"
	"strings"

	"github.com/talweave/talc/internal/loc"
	"github.com/talweave/talc/internal/runtime"
)

// RenderError is the render-time failure type: it carries the failing
// expression's source, the template location, a source excerpt with a
// caret offset, and a bounded variables snapshot. Use errors.As to
// reach it, and Unwrap to reach the original failure — the Go
// substitute for the source language's multiply-inheriting wrapper, so
// both "is it a render error" and "is it the original kind" checks
// succeed.
type RenderError = runtime.RenderError

// CompileError aggregates every error diagnostic one cook collected.
type CompileError struct {
	Filename string
	Messages []loc.DiagnosticMessage
}

func (e *CompileError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("%s: compilation failed", e.Filename)
	}
	first := e.Messages[0]
	head := first.Text
	if first.Location != nil {
		head = fmt.Sprintf("%s:%d:%d: %s", e.Filename, first.Location.Line, first.Location.Column, first.Text)
	} else {
		head = fmt.Sprintf("%s: %s", e.Filename, head)
	}
	if len(e.Messages) == 1 {
		return head
	}
	return fmt.Sprintf("%s (and %d more errors)", head, len(e.Messages)-1)
}

// Report renders every collected diagnostic as a multi-line listing,
// one message per line, for CLI-style output.
func (e *CompileError) Report() string {
	var b strings.Builder
	for i, m := range e.Messages {
		if i > 0 {
			b.WriteByte('\n')
		}
		if m.Location != nil {
			fmt.Fprintf(&b, "%s:%d:%d: %s", e.Filename, m.Location.Line, m.Location.Column, m.Text)
		} else {
			fmt.Fprintf(&b, "%s: %s", e.Filename, m.Text)
		}
	}
	return b.String()
}
