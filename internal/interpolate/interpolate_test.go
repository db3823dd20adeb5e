package interpolate

import (
	"errors"
	"testing"

	"github.com/talweave/talc/internal/loc"
	"github.com/talweave/talc/internal/tales"
)

func lower(t *testing.T, src string) []Part {
	t.Helper()
	parts, err := Lower(src, 0, tales.NewRegistry(nil, nil))
	if err != nil {
		t.Fatalf("Lower(%q): %v", src, err)
	}
	return parts
}

// shape renders parts back to a compact signature: literal text as-is,
// expressions as «source».
func shape(parts []Part) string {
	out := ""
	for _, p := range parts {
		if p.Expr == nil {
			out += p.Literal
		} else {
			out += "«" + p.Expr.Source + "»"
		}
	}
	return out
}

func TestLower(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"plain text", "plain text"},
		{"a ${x} b", "a «x» b"},
		{"${x}${y}", "«x»«y»"},
		{"${'A & B'}", "«'A & B'»"},
		{"price: $$5", "price: $5"},
		{"$$${x}", "$«x»"},
		{"lone $ dollar", "lone $ dollar"},
		{"$x no braces", "$x no braces"},
		{"${f({'k': 1})}", "«f({'k': 1})»"},
		{"${'}' + x}", "«'}' + x»"},
		{"", ""},
	}
	for _, tt := range tests {
		got := shape(lower(t, tt.src))
		if got != tt.want {
			t.Errorf("Lower(%q): got %q, want %q", tt.src, got, tt.want)
		}
	}
}

func TestLowerUnclosed(t *testing.T) {
	_, err := Lower("text ${never closed", 0, tales.NewRegistry(nil, nil))
	var ranged *loc.ErrorWithRange
	if !errors.As(err, &ranged) || ranged.Code != loc.ERROR_UNCLOSED_EXPRESSION {
		t.Errorf("got %v", err)
	}
}

func TestLowerOffsets(t *testing.T) {
	parts, err := Lower("ab ${x} cd", 100, tales.NewRegistry(nil, nil))
	if err != nil {
		t.Fatal(err)
	}
	if len(parts) != 3 || parts[1].Expr == nil {
		t.Fatalf("bad parts: %+v", parts)
	}
	// The expression body "x" starts 5 bytes into the string, plus the
	// caller's base offset.
	if got := parts[1].Expr.Range.Loc.Start; got != 105 {
		t.Errorf("got offset %d, want 105", got)
	}
}
