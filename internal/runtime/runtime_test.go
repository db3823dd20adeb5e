package runtime

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestScopePrecedence(t *testing.T) {
	root := NewRootScope(DefaultBuiltins(), map[string]any{"arg": "A", "True": "shadowed"})

	// Render-time keywords shadow built-ins.
	if v, _ := root.Get("True"); v != "shadowed" {
		t.Errorf("argument must shadow builtin: %v", v)
	}
	// Built-ins resolve when nothing shadows them.
	if v, _ := root.Get("None"); v != nil {
		t.Errorf("None: %v", v)
	}

	child := root.Spawn()
	child.Set("x", 1)
	if v, _ := child.Get("x"); v != 1 {
		t.Errorf("local: %v", v)
	}
	if v, _ := child.Get("arg"); v != "A" {
		t.Errorf("outer frame must be visible: %v", v)
	}

	grand := child.Spawn()
	grand.Set("x", 2)
	if v, _ := grand.Get("x"); v != 2 {
		t.Errorf("inner local must shadow outer: %v", v)
	}
	if v, _ := child.Get("x"); v != 1 {
		t.Errorf("outer local must be untouched: %v", v)
	}

	grand.SetGlobal("g", "G")
	if v, ok := root.Get("g"); !ok || v != "G" {
		t.Errorf("global layer must be shared across frames: %v", v)
	}
}

func TestScopeKeys(t *testing.T) {
	root := NewRootScope(map[string]any{"b": 1}, map[string]any{"a": 2})
	child := root.Spawn()
	child.Set("c", 3)
	keys := child.Keys()
	sort.Strings(keys)
	if diff := cmp.Diff([]string{"a", "b", "c"}, keys); diff != "" {
		t.Errorf("Keys mismatch:\n%s", diff)
	}
}

func TestRepeatAccessors(t *testing.T) {
	r := NewRepeat([]any{"a", "b", "c"}, nil)
	type step struct {
		index, number int
		even, odd     bool
		start, end    bool
		letter, roman string
	}
	want := []step{
		{0, 1, true, false, true, false, "a", "I"},
		{1, 2, false, true, false, false, "b", "II"},
		{2, 3, true, false, false, true, "c", "III"},
	}
	i := 0
	for r.Advance() {
		w := want[i]
		if r.Index() != w.index || r.Number() != w.number || r.Even() != w.even ||
			r.Odd() != w.odd || r.Start() != w.start || r.End() != w.end {
			t.Errorf("step %d: %+v", i, r)
		}
		if r.Letter() != w.letter || r.Roman() != w.roman {
			t.Errorf("step %d: letter %q roman %q", i, r.Letter(), r.Roman())
		}
		if r.Length() != 3 {
			t.Errorf("length: %d", r.Length())
		}
		i++
	}
	if i != 3 {
		t.Errorf("iterated %d times", i)
	}
}

func TestRepeatFirstLastWithoutGrouping(t *testing.T) {
	r := NewRepeat([]any{"x", "y"}, nil)
	r.Advance()
	if !r.First() || r.Last() {
		t.Errorf("first item: First=%v Last=%v", r.First(), r.Last())
	}
	r.Advance()
	if r.First() || !r.Last() {
		t.Errorf("last item: First=%v Last=%v", r.First(), r.Last())
	}
}

func TestRepeatGrouping(t *testing.T) {
	type row struct{ Dept string }
	items := []any{row{"a"}, row{"a"}, row{"b"}}
	r := NewRepeat(items, func(item any) any { return item.(row).Dept })
	var firsts, lasts []bool
	for r.Advance() {
		firsts = append(firsts, r.First())
		lasts = append(lasts, r.Last())
	}
	if diff := cmp.Diff([]bool{true, false, true}, firsts); diff != "" {
		t.Errorf("firsts:\n%s", diff)
	}
	if diff := cmp.Diff([]bool{false, true, true}, lasts); diff != "" {
		t.Errorf("lasts:\n%s", diff)
	}
}

func TestRepeatAttrTable(t *testing.T) {
	r := NewRepeat([]any{"a", "b", "c", "d"}, nil)
	for i := 0; i < 4; i++ {
		r.Advance()
	}
	cases := []struct {
		name string
		want any
	}{
		{"index", 3},
		{"number", 4},
		{"letter", "d"},
		{"Letter", "D"},
		{"roman", "iv"},
		{"Roman", "IV"},
		{"length", 4},
		{"end", true},
	}
	for _, tt := range cases {
		v, ok := r.Attr(tt.name)
		if !ok || v != tt.want {
			t.Errorf("Attr(%q): got %v, %v; want %v", tt.name, v, ok, tt.want)
		}
	}
	if _, ok := r.Attr("Number"); ok {
		t.Error("casings outside the record's field set must not resolve")
	}
}

func TestRepeatLetterSequences(t *testing.T) {
	r := &Repeat{items: make([]any, 28), index: 27}
	if got := r.Letter(); got != "aa" {
		t.Errorf("27th letter: %q", got)
	}
	if got := r.LetterUpper(); got != "AA" {
		t.Errorf("27th Letter: %q", got)
	}
	r.index = 4
	if got := r.RomanLower(); got != "iv" {
		t.Errorf("roman 4: %q", got)
	}
}

func TestEscape(t *testing.T) {
	tests := []struct{ in, want string }{
		{`a < b`, `a &lt; b`},
		{`a > b`, `a &gt; b`},
		{`a & b`, `a &amp; b`},
		{`say "hi"`, `say &quot;hi&quot;`},
		{`clean`, `clean`},
		{`'single' stays`, `'single' stays`},
	}
	for _, tt := range tests {
		if got := Escape(tt.in); got != tt.want {
			t.Errorf("Escape(%q): got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderText(t *testing.T) {
	if got := RenderText("A & B"); got != "A &amp; B" {
		t.Errorf("plain string: %q", got)
	}
	if got := RenderText(Markup("<em>x</em>")); got != "<em>x</em>" {
		t.Errorf("markup must not be escaped: %q", got)
	}
	if got := RenderText(nil); got != "" {
		t.Errorf("nil: %q", got)
	}
}

func TestStringify(t *testing.T) {
	if got := Stringify(true); got != "True" {
		t.Errorf("bool: %q", got)
	}
	if got := Stringify(42); got != "42" {
		t.Errorf("int: %q", got)
	}
	if got := Stringify(nil); got != "" {
		t.Errorf("nil: %q", got)
	}
}

func TestDefaultSentinelIdentity(t *testing.T) {
	if !IsDefault(Default) {
		t.Error("IsDefault(Default) must hold")
	}
	if IsDefault(struct{}{}) {
		t.Error("an anonymous empty struct is not the sentinel")
	}
	if IsDefault(nil) || IsDefault("default") {
		t.Error("false positives")
	}
}

func TestAttrWriterAlgorithm(t *testing.T) {
	boolSet := map[string]bool{"checked": true}

	t.Run("none drops", func(t *testing.T) {
		w := NewAttrWriter(boolSet)
		w.SetStatic("href", "/x")
		w.SetDynamic("href", nil)
		if pairs := w.Pairs(); len(pairs) != 0 {
			t.Errorf("got %+v", pairs)
		}
	})

	t.Run("default keeps static", func(t *testing.T) {
		w := NewAttrWriter(boolSet)
		w.SetStatic("href", "/x")
		w.SetDynamic("href", Default)
		pairs := w.Pairs()
		if len(pairs) != 1 || pairs[0].Value != "/x" {
			t.Errorf("got %+v", pairs)
		}
	})

	t.Run("default with no static stays absent", func(t *testing.T) {
		w := NewAttrWriter(boolSet)
		w.SetDynamic("href", Default)
		if pairs := w.Pairs(); len(pairs) != 0 {
			t.Errorf("got %+v", pairs)
		}
	})

	t.Run("boolean truthy renders name as value", func(t *testing.T) {
		w := NewAttrWriter(boolSet)
		w.SetDynamic("checked", true)
		pairs := w.Pairs()
		if len(pairs) != 1 || pairs[0].Name != "checked" || pairs[0].Value != "checked" {
			t.Errorf("got %+v", pairs)
		}
	})

	t.Run("boolean falsy drops", func(t *testing.T) {
		w := NewAttrWriter(boolSet)
		w.SetStatic("checked", "checked")
		w.SetDynamic("checked", false)
		if pairs := w.Pairs(); len(pairs) != 0 {
			t.Errorf("got %+v", pairs)
		}
	})

	t.Run("dict value contributes entries", func(t *testing.T) {
		w := NewAttrWriter(boolSet)
		w.SetDynamic("ignored", map[string]any{"data-a": "1", "data-b": "2"})
		pairs := w.Pairs()
		if len(pairs) != 2 {
			t.Errorf("got %+v", pairs)
		}
	})

	t.Run("case insensitive match keeps existing casing", func(t *testing.T) {
		w := NewAttrWriter(boolSet)
		w.SetStatic("HREF", "/old")
		w.SetDynamic("href", "/new")
		pairs := w.Pairs()
		if len(pairs) != 1 || pairs[0].Name != "HREF" || pairs[0].Value != "/new" {
			t.Errorf("got %+v", pairs)
		}
	})

	t.Run("stringifies other values", func(t *testing.T) {
		w := NewAttrWriter(boolSet)
		w.SetDynamic("width", 80)
		pairs := w.Pairs()
		if len(pairs) != 1 || pairs[0].Value != "80" {
			t.Errorf("got %+v", pairs)
		}
	})

	t.Run("order is first-set order", func(t *testing.T) {
		w := NewAttrWriter(boolSet)
		w.SetStatic("a", "1")
		w.SetStatic("b", "2")
		w.SetDynamic("a", "9")
		pairs := w.Pairs()
		if len(pairs) != 2 || pairs[0].Name != "a" || pairs[1].Name != "b" {
			t.Errorf("got %+v", pairs)
		}
	})
}

func TestNopTranslatorSubstitutesNames(t *testing.T) {
	got := NopTranslator{}.Translate("", "", "greet", "Hello ${who}!", map[string]string{"who": "Ada"})
	if got != "Hello Ada!" {
		t.Errorf("got %q", got)
	}
	got = NopTranslator{}.Translate("", "", "greet", "No names here", nil)
	if got != "No names here" {
		t.Errorf("got %q", got)
	}
	got = NopTranslator{}.Translate("", "", "greet", "Keep ${unknown}", map[string]string{"who": "x"})
	if got != "Keep ${unknown}" {
		t.Errorf("got %q", got)
	}
}

func TestTruthy(t *testing.T) {
	truthy := []any{true, 1, "x", []any{0}, map[string]any{"k": 1}, 0.5}
	falsy := []any{nil, false, 0, "", []any{}, map[string]any{}, 0.0}
	for _, v := range truthy {
		if !Truthy(v) {
			t.Errorf("Truthy(%v) = false", v)
		}
	}
	for _, v := range falsy {
		if Truthy(v) {
			t.Errorf("Truthy(%v) = true", v)
		}
	}
}

func TestSnapshotVarsBounded(t *testing.T) {
	s := NewRootScope(map[string]any{}, map[string]any{
		"long":  "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		"multi": "line1\nline2",
		"short": "ok",
	})
	vars := SnapshotVars(s)
	if vars["short"] != "ok" {
		t.Errorf("short: %q", vars["short"])
	}
	if len(vars["long"]) > previewWidth+3 {
		t.Errorf("long preview not bounded: %d", len(vars["long"]))
	}
	if vars["multi"] != "line1..." {
		t.Errorf("multi-line preview: %q", vars["multi"])
	}
}
