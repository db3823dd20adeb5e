package tales

import (
	"strings"

	"github.com/talweave/talc/internal/runtime"
)

// stringProgram is the compiled form of a "string:" expression: a
// sequence of literal text runs interleaved with sub-expressions. Unlike
// interpolation in text/attribute content (component E), braces are
// optional here: a bare "$name" is recognized, not just "${name}" (spec
// §4.D/§4.E — "braces mandatory outside string: expressions").
type stringProgram struct {
	parts []stringPart
}

type stringPart struct {
	literal string // used when expr == nil
	expr    *Program
}

func (sp *stringProgram) eval(env Env) (any, error) {
	var b strings.Builder
	for _, part := range sp.parts {
		if part.expr == nil {
			b.WriteString(part.literal)
			continue
		}
		v, err := part.expr.Eval(env)
		if err != nil {
			return nil, err
		}
		b.WriteString(toStringValue(v))
	}
	return b.String(), nil
}

func toStringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	}
	if m, ok := runtime.AsMarkup(v); ok {
		return string(m)
	}
	return stringifyAny(v)
}

// parseStringExpr scans a "string:" payload for "$$" (literal "$"),
// "$identifier" and "${ expr }" interpolations, compiling each
// sub-expression through the same registry (always as a default/python:
// payload, since string: never nests another prefix token directly
// after "$").
func parseStringExpr(payload string, r *Registry) (*stringProgram, error) {
	sp := &stringProgram{}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			sp.parts = append(sp.parts, stringPart{literal: lit.String()})
			lit.Reset()
		}
	}
	i := 0
	for i < len(payload) {
		c := payload[i]
		if c != '$' {
			lit.WriteByte(c)
			i++
			continue
		}
		if i+1 < len(payload) && payload[i+1] == '$' {
			lit.WriteByte('$')
			i += 2
			continue
		}
		if i+1 < len(payload) && payload[i+1] == '{' {
			end := strings.IndexByte(payload[i+2:], '}')
			if end < 0 {
				lit.WriteByte(c)
				i++
				continue
			}
			inner := payload[i+2 : i+2+end]
			flush()
			prog, err := r.compileOne(inner, loc0())
			if err != nil {
				return nil, err
			}
			sp.parts = append(sp.parts, stringPart{expr: prog})
			i = i + 2 + end + 1
			continue
		}
		// Bare "$identifier": identifier runs while alnum/'_'/'.'.
		j := i + 1
		for j < len(payload) && isIdentByte(payload[j]) {
			j++
		}
		if j == i+1 {
			lit.WriteByte(c)
			i++
			continue
		}
		flush()
		prog, err := r.compileOne(payload[i+1:j], loc0())
		if err != nil {
			return nil, err
		}
		sp.parts = append(sp.parts, stringPart{expr: prog})
		i = j
	}
	flush()
	return sp, nil
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '.' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}
