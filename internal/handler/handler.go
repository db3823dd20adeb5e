// Package handler collects compile-time diagnostics as a template is
// tokenized, parsed, bound and compiled, and turns them into
// loc.DiagnosticMessage values once a line/column lookup table is
// available. Adapted from the teacher compiler's internal/handler package:
// same Append*/Diagnostics shape, with the syscall/js bridge (this module
// has no WASM host) and the sourcemap dependency (this module emits no
// source maps — it has no second-language text output to map back to
// the original template) dropped.
package handler

import (
	"errors"
	"strings"

	"github.com/talweave/talc/internal/loc"
)

// Handler accumulates errors, warnings, info and hints for a single
// template compilation. It is not safe for concurrent use by multiple
// compiles; the template driver (component I) creates one Handler per
// cook.
type Handler struct {
	sourcetext string
	filename   string
	lineTable  []int // byte offset of the start of each line, 0-based
	errors     []error
	warnings   []error
	infos      []error
	hints      []error
}

func NewHandler(sourcetext string, filename string) *Handler {
	return &Handler{
		sourcetext: sourcetext,
		filename:   filename,
		lineTable:  buildLineTable(sourcetext),
		errors:     make([]error, 0),
		warnings:   make([]error, 0),
		infos:      make([]error, 0),
		hints:      make([]error, 0),
	}
}

func buildLineTable(src string) []int {
	table := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			table = append(table, i+1)
		}
	}
	return table
}

// GetLineAndColumnForLocation converts a byte offset into a 1-based
// line/column pair by binary-searching the line table.
func (h *Handler) GetLineAndColumnForLocation(l loc.Loc) (int, int) {
	lo, hi := 0, len(h.lineTable)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if h.lineTable[mid] <= l.Start {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	line := lo + 1
	column := l.Start - h.lineTable[lo] + 1
	return line, column
}

func (h *Handler) HasErrors() bool {
	return len(h.errors) > 0
}

func (h *Handler) AppendError(err error) {
	h.errors = append(h.errors, err)
}

func (h *Handler) AppendWarning(err error) {
	h.warnings = append(h.warnings, err)
}

func (h *Handler) AppendInfo(err error) {
	h.infos = append(h.infos, err)
}

func (h *Handler) AppendHint(err error) {
	h.hints = append(h.hints, err)
}

func (h *Handler) Errors() []loc.DiagnosticMessage {
	msgs := make([]loc.DiagnosticMessage, 0, len(h.errors))
	for _, err := range h.errors {
		if err != nil {
			msgs = append(msgs, h.toMessage(loc.ErrorType, err))
		}
	}
	return msgs
}

func (h *Handler) Warnings() []loc.DiagnosticMessage {
	msgs := make([]loc.DiagnosticMessage, 0, len(h.warnings))
	for _, err := range h.warnings {
		if err != nil {
			msgs = append(msgs, h.toMessage(loc.WarningType, err))
		}
	}
	return msgs
}

// Diagnostics returns every collected message across all four severities,
// errors first, in the order the teacher compiler's Handler.Diagnostics
// reports them.
func (h *Handler) Diagnostics() []loc.DiagnosticMessage {
	msgs := make([]loc.DiagnosticMessage, 0, len(h.errors)+len(h.warnings)+len(h.infos)+len(h.hints))
	for _, err := range h.errors {
		if err != nil {
			msgs = append(msgs, h.toMessage(loc.ErrorType, err))
		}
	}
	for _, err := range h.warnings {
		if err != nil {
			msgs = append(msgs, h.toMessage(loc.WarningType, err))
		}
	}
	for _, err := range h.infos {
		if err != nil {
			msgs = append(msgs, h.toMessage(loc.InformationType, err))
		}
	}
	for _, err := range h.hints {
		if err != nil {
			msgs = append(msgs, h.toMessage(loc.HintType, err))
		}
	}
	return msgs
}

func (h *Handler) toMessage(severity loc.DiagnosticSeverity, err error) loc.DiagnosticMessage {
	var rangedError *loc.ErrorWithRange
	switch {
	case errors.As(err, &rangedError):
		line, column := h.GetLineAndColumnForLocation(rangedError.Range.Loc)
		location := &loc.DiagnosticLocation{
			File:   h.filename,
			Line:   line,
			Column: column,
			Length: rangedError.Range.Len,
		}
		message := rangedError.ToMessage(location)
		message.Severity = int(severity)
		return message
	default:
		return loc.DiagnosticMessage{Text: err.Error(), Severity: int(severity)}
	}
}

// Excerpt returns a single-line source excerpt around loc, truncated to
// width bytes, plus the caret offset within that excerpt — the "source
// excerpt with a caret" spec §7 requires for user-visible errors.
func (h *Handler) Excerpt(l loc.Loc, width int) (line string, caret int) {
	_, col := h.GetLineAndColumnForLocation(l)
	lineIdx := 0
	for i, start := range h.lineTable {
		if start <= l.Start {
			lineIdx = i
		} else {
			break
		}
	}
	start := h.lineTable[lineIdx]
	end := len(h.sourcetext)
	if lineIdx+1 < len(h.lineTable) {
		end = h.lineTable[lineIdx+1]
	}
	raw := strings.TrimRight(h.sourcetext[start:end], "\n")
	caret = col - 1
	if len(raw) <= width {
		return raw, caret
	}
	if caret >= width {
		// Keep the caret visible by windowing around it.
		windowStart := caret - width/2
		if windowStart < 0 {
			windowStart = 0
		}
		windowEnd := windowStart + width
		if windowEnd > len(raw) {
			windowEnd = len(raw)
			windowStart = windowEnd - width
			if windowStart < 0 {
				windowStart = 0
			}
		}
		return raw[windowStart:windowEnd], caret - windowStart
	}
	return raw[:width], caret
}
