// Package interpolate lowers `${expr}` interpolation sequences found in
// text nodes, attribute values and (optionally) comments into a sequence
// of literal-text and compiled-expression parts (spec component E).
//
// Grounded directly on dpotapov's chtml/expr.go exprLexer/stateFn
// machinery: lexText emits literal runs until it sees a delimiter,
// lexLeftDelim/lexExpr/lexRightDelim scan the bracket-depth-aware
// expression body, and atRightDelim/scanString handle nested
// brackets and quoted strings inside the expression. Differences from
// CHTML: the delimiters here are always "${"/"}" (never configurable),
// "$$" reduces to a literal "$" (new, CHTML has no such escape), and
// there is no backslash-escaping of "$".
package interpolate

import (
	"fmt"

	"github.com/talweave/talc/internal/loc"
	"github.com/talweave/talc/internal/tales"
)

// Part is one literal-text or compiled-expression chunk of an
// interpolated string.
type Part struct {
	Literal string // valid when Expr == nil
	Expr    *tales.Program
}

// Lower splits src (the decoded text of a text node, attribute value, or
// comment body) into Parts, compiling every `${...}` span through
// registry. loc0 is the byte offset of src within the original template,
// so each compiled expression's loc.Range is relative to the whole file,
// not to src.
func Lower(src string, loc0 int, registry *tales.Registry) ([]Part, error) {
	l := &lexer{input: src}
	var parts []Part
	var lit []byte
	flush := func() {
		if len(lit) > 0 {
			parts = append(parts, Part{Literal: string(lit)})
			lit = lit[:0]
		}
	}
	for {
		item := l.next()
		switch item.typ {
		case itemEOF:
			flush()
			return parts, nil
		case itemText:
			lit = append(lit, item.val...)
		case itemDollar:
			lit = append(lit, '$')
		case itemExpr:
			flush()
			rg := loc.Range{Loc: loc.Loc{Start: loc0 + item.pos}, Len: len(item.val)}
			prog, err := registry.Compile(item.val, rg)
			if err != nil {
				return nil, err
			}
			parts = append(parts, Part{Expr: prog})
		case itemError:
			return nil, &loc.ErrorWithRange{
				Code:  loc.ERROR_UNCLOSED_EXPRESSION,
				Text:  item.val,
				Range: loc.Range{Loc: loc.Loc{Start: loc0 + item.pos}, Len: 1},
			}
		}
	}
}

// itemType tags a lexed item, mirroring dpotapov's exprLexer item kinds
// trimmed to what this simpler (no configurable-delimiter) lexer needs.
type itemType int

const (
	itemText itemType = iota
	itemDollar
	itemExpr
	itemEOF
	itemError
)

type item struct {
	typ itemType
	val string
	pos int
}

// lexer scans for "${...}" and "$$" inside an already-decoded string.
// Unlike dpotapov's version this has no stateFn indirection — TAL's
// delimiter set is fixed, so the state machine collapses to a single
// loop with a small amount of lookahead, while still tracking bracket
// depth and quoted-string runs the same way lexExpr/scanString do.
type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() item {
	if l.pos >= len(l.input) {
		return item{typ: itemEOF, pos: l.pos}
	}
	start := l.pos
	for l.pos < len(l.input) {
		if l.input[l.pos] == '$' {
			if l.pos > start {
				return item{typ: itemText, val: l.input[start:l.pos], pos: start}
			}
			return l.lexDollar()
		}
		l.pos++
	}
	return item{typ: itemText, val: l.input[start:l.pos], pos: start}
}

func (l *lexer) lexDollar() item {
	start := l.pos
	if l.pos+1 < len(l.input) && l.input[l.pos+1] == '$' {
		l.pos += 2
		return item{typ: itemDollar, pos: start}
	}
	if l.pos+1 < len(l.input) && l.input[l.pos+1] == '{' {
		bodyStart := l.pos + 2
		depth := 1
		i := bodyStart
		for i < len(l.input) && depth > 0 {
			switch l.input[i] {
			case '{':
				depth++
				i++
			case '}':
				depth--
				if depth == 0 {
					break
				}
				i++
			case '\'', '"':
				i = skipQuoted(l.input, i)
			default:
				i++
			}
		}
		if depth != 0 {
			l.pos = len(l.input)
			return item{typ: itemError, val: fmt.Sprintf("unclosed interpolation starting at offset %d", start), pos: start}
		}
		body := l.input[bodyStart:i]
		l.pos = i + 1
		return item{typ: itemExpr, val: body, pos: bodyStart}
	}
	// A lone "$" not followed by "{" or another "$" is a literal dollar,
	// passed through unchanged — interpolation only triggers on "${".
	l.pos++
	return item{typ: itemText, val: "$", pos: start}
}

func skipQuoted(s string, i int) int {
	quote := s[i]
	i++
	for i < len(s) {
		if s[i] == '\\' && i+1 < len(s) {
			i += 2
			continue
		}
		if s[i] == quote {
			return i + 1
		}
		i++
	}
	return i
}
