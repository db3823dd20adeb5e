// Grounded on dpotapov's chtml/err.go: captureStack plus a wrapping
// ComponentError carrying (err, path, stack, File, Line, Column,
// Length). RenderError below is the render-time half of spec §7's error
// taxonomy (TemplateError's ParseError/LanguageError/ExpressionError
// subkinds are compile-time and live in internal/loc instead).
package runtime

import (
	"fmt"
	"runtime/debug"
)

// RenderError wraps a failure that occurred while rendering a specific
// element, carrying enough of the source to print a one-line excerpt
// with a caret (spec §7) and a Go stack trace for debug-mode reporting.
type RenderError struct {
	Err      error
	Template string
	Line     int
	Column   int
	Length   int
	Excerpt  string
	Caret    int
	// Vars is a snapshot of the scope at failure time, each value
	// stringified to a bounded single-line preview (spec §7).
	Vars  map[string]string
	stack string
}

func NewRenderError(err error, template string, line, column, length int) *RenderError {
	return &RenderError{
		Err:      err,
		Template: template,
		Line:     line,
		Column:   column,
		Length:   length,
		stack:    string(debug.Stack()),
	}
}

func (e *RenderError) Error() string {
	if e.Template == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s:%d:%d: %s", e.Template, e.Line, e.Column, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Stack returns the captured Go stack trace, surfaced only when the
// template's Settings.Debug is on.
func (e *RenderError) Stack() string { return e.stack }

// WithExcerpt attaches a one-line source excerpt and caret offset,
// filled in by the template driver once it has access to the
// handler.Handler that owns the line table.
func (e *RenderError) WithExcerpt(excerpt string, caret int) *RenderError {
	e.Excerpt = excerpt
	e.Caret = caret
	return e
}

// previewWidth bounds each variable preview in a RenderError snapshot to
// one readable line.
const previewWidth = 60

// SnapshotVars captures every visible scope variable as a bounded,
// single-line preview for RenderError reporting.
func SnapshotVars(s *Scope) map[string]string {
	out := make(map[string]string)
	for _, k := range s.Keys() {
		v, _ := s.Get(k)
		out[k] = preview(v)
	}
	return out
}

func preview(v any) string {
	s := Stringify(v)
	if idx := indexAny(s, "\n\r"); idx >= 0 {
		s = s[:idx] + "..."
	}
	if len(s) > previewWidth {
		s = s[:previewWidth] + "..."
	}
	return s
}

func indexAny(s, chars string) int {
	for i := 0; i < len(s); i++ {
		for j := 0; j < len(chars); j++ {
			if s[i] == chars[j] {
				return i
			}
		}
	}
	return -1
}
