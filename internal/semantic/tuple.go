package semantic

import "strings"

// Target is the left-hand side of a `define`/`repeat` clause: either a
// single Name, or a Names tuple for "(a, b, c) expr" positional
// unpacking. The star form ("*rest") is not supported (spec §4.F).
type Target struct {
	Names []string // len==1 for a plain name, len>1 for a tuple target
}

// ParseTarget splits "name expr" or "(a, b, c) expr" into its target and
// remaining expression text. Depth-aware so a tuple target can't be
// confused by a paren inside the expression that follows it (the split
// point is the first top-level space after a balanced leading "(...)",
// or the first space when there is no leading paren).
func ParseTarget(clause string) (Target, string) {
	clause = strings.TrimSpace(clause)
	if len(clause) == 0 || clause[0] != '(' {
		idx := strings.IndexByte(clause, ' ')
		if idx < 0 {
			return Target{Names: []string{clause}}, ""
		}
		return Target{Names: []string{clause[:idx]}}, strings.TrimSpace(clause[idx+1:])
	}
	depth := 0
	end := -1
	for i, c := range clause {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				end = i
			}
		}
		if end >= 0 {
			break
		}
	}
	if end < 0 {
		// Unterminated tuple target; treat the whole thing as one name
		// so the caller's later expression compile reports a clear
		// error instead of this helper panicking on a bad split.
		return Target{Names: []string{clause}}, ""
	}
	inner := clause[1:end]
	names := splitTupleNames(inner)
	rest := strings.TrimSpace(clause[end+1:])
	return Target{Names: names}, rest
}

func splitTupleNames(inner string) []string {
	var names []string
	for _, part := range strings.Split(inner, ",") {
		name := strings.TrimSpace(part)
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Unpack assigns value positionally to target's names: a single-name
// Target binds value directly; a tuple Target indexes into value (which
// must be a slice of at least len(target.Names) elements, positional
// unpacking with no star form per spec §4.F).
func Unpack(target Target, value any, assign func(name string, v any)) error {
	if len(target.Names) == 1 {
		assign(target.Names[0], value)
		return nil
	}
	items, err := asIndexable(value)
	if err != nil {
		return err
	}
	if len(items) < len(target.Names) {
		return errTupleLength(len(target.Names), len(items))
	}
	for i, name := range target.Names {
		assign(name, items[i])
	}
	return nil
}
