package runtime

import "strings"

// Markup wraps a string that must NOT be HTML-escaped on insertion: the
// result of a `structure:` expression (spec §4.D/§4.F.5).
type Markup string

// HTML returns the pre-escaped text, satisfying HTMLer so Markup flows
// through the same capability check as host values.
func (m Markup) HTML() string { return string(m) }

// HTMLer is the pre-escaped capability: any inserted value whose type
// provides an HTML() string method (the __html__-protocol substitute)
// is inserted as structure, bypassing escaping.
type HTMLer interface {
	HTML() string
}

// AsMarkup reports whether v carries the pre-escaped capability, and
// returns its markup text if so.
func AsMarkup(v any) (Markup, bool) {
	switch x := v.(type) {
	case Markup:
		return x, true
	case HTMLer:
		return Markup(x.HTML()), true
	}
	return "", false
}

// Escape HTML-escapes s the way plain (non-structure) content insertion
// requires: `<`, `>`, `&`, `"` become entities (spec invariant 8). This
// is intentionally a small, fixed table rather than html.EscapeString's
// full quintet (html.EscapeString also escapes `'`, which TAL's own
// invariant does not call for) — kept in this package rather than
// reaching for the stdlib html package so the escaped set stays exactly
// what spec invariant 8 names.
func Escape(s string) string {
	if !strings.ContainsAny(s, "<>&\"") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 16)
	for _, r := range s {
		switch r {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			b.WriteString("&amp;")
		case '"':
			b.WriteString("&quot;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// RenderText converts a dynamic value to its rendered string form,
// escaping it unless it carries the pre-escaped capability (Markup, or
// any HTMLer host value).
func RenderText(v any) string {
	if v == nil {
		return ""
	}
	if m, ok := AsMarkup(v); ok {
		return string(m)
	}
	if s, ok := v.(string); ok {
		return Escape(s)
	}
	return Escape(Stringify(v))
}

// Stringify renders a dynamic value to its unescaped text form, used by
// RenderText's default branch and by the attribute writer.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	}
	if m, ok := AsMarkup(v); ok {
		return string(m)
	}
	return stringifyFallback(v)
}
