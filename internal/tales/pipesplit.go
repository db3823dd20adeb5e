package tales

import "strings"

// splitPipes splits expr on top-level "|" into its ordered fallback
// candidates, treating "||" as an escaped literal pipe (reduced to a
// single "|" in the resulting candidate text) and never splitting
// inside brackets, parens, braces or quotes.
//
// Grounded on dpotapov's chtml/expr.go exprLexer/stateFn scanner
// (lexExpr's bracket-depth tracking and scanString's quote handling),
// reused here for a different purpose: that lexer scans `${...}`
// delimiters, this one scans one already-delimited expression string for
// top-level separators. The state-machine shape — a running depth
// counter, a quote-aware inner scan — is the part actually grounded in
// the teacher pattern.
func splitPipes(expr string) []string {
	var out []string
	var cur strings.Builder
	depth := 0
	i := 0
	for i < len(expr) {
		c := expr[i]
		switch c {
		case '(', '[', '{':
			depth++
			cur.WriteByte(c)
			i++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
			cur.WriteByte(c)
			i++
		case '\'', '"':
			end := scanQuoted(expr, i)
			cur.WriteString(expr[i:end])
			i = end
		case '|':
			if depth == 0 && i+1 < len(expr) && expr[i+1] == '|' {
				cur.WriteByte('|')
				i += 2
				continue
			}
			if depth == 0 {
				out = append(out, strings.TrimSpace(cur.String()))
				cur.Reset()
				i++
				continue
			}
			cur.WriteByte(c)
			i++
		default:
			cur.WriteByte(c)
			i++
		}
	}
	out = append(out, strings.TrimSpace(cur.String()))
	return out
}

// scanQuoted returns the index just past the closing quote matching
// expr[start], honoring backslash escapes within the quoted run.
func scanQuoted(expr string, start int) int {
	quote := expr[start]
	i := start + 1
	for i < len(expr) {
		if expr[i] == '\\' && i+1 < len(expr) {
			i += 2
			continue
		}
		if expr[i] == quote {
			return i + 1
		}
		i++
	}
	return len(expr)
}
