package runtime

// RepeatDict maps an active loop's variable name to its Repeat record.
// Entries exist only while their loop is active; nested loops shadow
// outer entries only on name collision (spec §3).
type RepeatDict map[string]*Repeat

// Repeat is the per-iteration state object exposed as `repeat.<name>`
// inside a `tal:repeat` body: index, number, even/odd, start/end,
// first/last, length and the letter/roman numbering helpers.
type Repeat struct {
	items []any
	index int

	// groupKey, when non-nil, evaluates a key-path against an item for
	// the legacy first/last grouping semantics: First/Last then compare
	// the current item's key against its neighbour's, not raw equality.
	groupKey func(item any) any
}

// NewRepeat creates a Repeat over items, starting at index 0.
func NewRepeat(items []any, groupKey func(any) any) *Repeat {
	return &Repeat{items: items, groupKey: groupKey}
}

// Advance moves to the next item, returning false once the sequence is
// exhausted. Callers call Advance before using any Repeat accessor for a
// given iteration, mirroring a standard Go `for ok := r.Advance(); ok; …`
// loop shape.
func (r *Repeat) Advance() bool {
	r.index++
	return r.index <= len(r.items)
}

func (r *Repeat) current() any {
	if r.index < 1 || r.index > len(r.items) {
		return nil
	}
	return r.items[r.index-1]
}

func (r *Repeat) Index() int  { return r.index - 1 }
func (r *Repeat) Number() int { return r.index }
func (r *Repeat) Even() bool  { return r.Index()%2 == 0 }
func (r *Repeat) Odd() bool   { return !r.Even() }
func (r *Repeat) Start() bool { return r.index == 1 }
func (r *Repeat) End() bool   { return r.index == len(r.items) }
func (r *Repeat) Length() int { return len(r.items) }

// First reports whether the current item starts a new group: true at
// the first item, or whenever the group key differs from the previous
// item's.
func (r *Repeat) First() bool {
	if r.Start() {
		return true
	}
	if r.groupKey == nil {
		return false
	}
	return !equalValues(r.groupKey(r.current()), r.groupKey(r.items[r.index-2]))
}

// Last reports whether the current item ends a group: true at the last
// item, or whenever the group key differs from the next item's.
func (r *Repeat) Last() bool {
	if r.End() {
		return true
	}
	if r.groupKey == nil {
		return false
	}
	return !equalValues(r.groupKey(r.current()), r.groupKey(r.items[r.index]))
}

var numerals = []struct {
	value  int
	letter string
}{
	{1000, "M"}, {900, "CM"}, {500, "D"}, {400, "CD"},
	{100, "C"}, {90, "XC"}, {50, "L"}, {40, "XL"},
	{10, "X"}, {9, "IX"}, {5, "V"}, {4, "IV"}, {1, "I"},
}

// Roman returns the current 1-based Number in upper-case Roman numerals.
func (r *Repeat) Roman() string {
	n := r.Number()
	var b []byte
	for _, num := range numerals {
		for n >= num.value {
			b = append(b, num.letter...)
			n -= num.value
		}
	}
	return string(b)
}

// RomanLower returns Roman in lower case; spec's "roman"/"Roman" pair
// maps to RomanLower/Roman here since Go exported names are already
// capitalized by convention.
func (r *Repeat) RomanLower() string {
	s := r.Roman()
	out := make([]byte, len(s))
	for i := range s {
		out[i] = s[i] + ('a' - 'A')
	}
	return string(out)
}

// Letter returns the current 1-based Number as a lower-case spreadsheet-
// style letter sequence: a, b, ..., z, aa, ab, ....
func (r *Repeat) Letter() string {
	n := r.Number()
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('a' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

// LetterUpper is Letter uppercased, matching spec's "Letter" accessor.
func (r *Repeat) LetterUpper() string {
	s := r.Letter()
	out := make([]byte, len(s))
	for i := range s {
		out[i] = s[i] - ('a' - 'A')
	}
	return string(out)
}

func equalValues(a, b any) bool {
	return a == b
}

// Attr resolves one of the record's named accessors. The spec's field
// set pairs lowercase letter/roman with capitalized Letter/Roman as
// distinct casings, which case-insensitive reflection would collapse,
// so the expression layer resolves repeat.<var>.<name> through this
// explicit table instead.
func (r *Repeat) Attr(name string) (any, bool) {
	switch name {
	case "index":
		return r.Index(), true
	case "number":
		return r.Number(), true
	case "even":
		return r.Even(), true
	case "odd":
		return r.Odd(), true
	case "start":
		return r.Start(), true
	case "end":
		return r.End(), true
	case "first":
		return r.First(), true
	case "last":
		return r.Last(), true
	case "length":
		return r.Length(), true
	case "letter":
		return r.Letter(), true
	case "Letter":
		return r.LetterUpper(), true
	case "roman":
		return r.RomanLower(), true
	case "Roman":
		return r.Roman(), true
	}
	return nil, false
}
