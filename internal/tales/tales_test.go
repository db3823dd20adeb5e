package tales

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/talweave/talc/internal/loc"
	"github.com/talweave/talc/internal/runtime"
)

// mapEnv is the minimal Env used by these tests.
type mapEnv map[string]any

func (m mapEnv) Get(name string) (any, bool) { v, ok := m[name]; return v, ok }
func (m mapEnv) Set(name string, val any)    { m[name] = val }
func (m mapEnv) Keys() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

type stubResolver struct{ loaded map[string]any }

func (r *stubResolver) Resolve(path string) (any, error) {
	if v, ok := r.loaded[path]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no template %q", path)
}

type stubImporter struct{ names map[string]any }

func (i *stubImporter) Import(name string) (any, error) {
	if v, ok := i.names[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("no module %q", name)
}

func testRegistry() *Registry {
	return NewRegistry(
		&stubResolver{loaded: map[string]any{"layout.pt": "LAYOUT"}},
		&stubImporter{names: map[string]any{"text.upper": "UPPER"}},
	)
}

func eval(t *testing.T, expr string, env mapEnv) any {
	t.Helper()
	p, err := testRegistry().Compile(expr, loc.Range{})
	if err != nil {
		t.Fatalf("Compile(%q): %v", expr, err)
	}
	v, err := p.Eval(env)
	if err != nil {
		t.Fatalf("Eval(%q): %v", expr, err)
	}
	return v
}

func TestSplitPipes(t *testing.T) {
	tests := []struct {
		expr string
		want []string
	}{
		{"a", []string{"a"}},
		{"a | b", []string{"a", "b"}},
		{"a | b | c", []string{"a", "b", "c"}},
		{"a || b", []string{"a | b"}},
		{"f(x | y)", []string{"f(x | y)"}},
		{"'a | b' | c", []string{"'a | b'", "c"}},
		{"xs[0] | default", []string{"xs[0]", "default"}},
	}
	for _, tt := range tests {
		got := splitPipes(tt.expr)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("splitPipes(%q) mismatch (-want +got):\n%s", tt.expr, diff)
		}
	}
}

func TestEvalPython(t *testing.T) {
	tests := []struct {
		expr string
		env  mapEnv
		want any
	}{
		{"1 + 2", mapEnv{}, 3},
		{"'Hello, ' + name", mapEnv{"name": "World"}, "Hello, World"},
		{"python: 2 * n", mapEnv{"n": 4}, 8},
		{"ok", mapEnv{"ok": true}, true},
		{"user.name", mapEnv{"user": map[string]any{"name": "Ada"}}, "Ada"},
		{"xs[1]", mapEnv{"xs": []any{10, 20}}, 20},
	}
	for _, tt := range tests {
		if got := eval(t, tt.expr, tt.env); got != tt.want {
			t.Errorf("eval(%q): got %v (%T), want %v", tt.expr, got, got, tt.want)
		}
	}
}

func TestEvalDefaultLiteral(t *testing.T) {
	if v := eval(t, "default", mapEnv{}); !runtime.IsDefault(v) {
		t.Errorf("got %v, want the default sentinel", v)
	}
}

func TestEvalStringExpression(t *testing.T) {
	env := mapEnv{"name": "Ada", "user": map[string]any{"city": "Turin"}}
	tests := []struct {
		expr string
		want string
	}{
		{"string:Hello, $name!", "Hello, Ada!"},
		{"string:${name} of ${user.city}", "Ada of Turin"},
		{"string:cost $$5", "cost $5"},
		{"string:plain text", "plain text"},
		{"string:$name$name", "AdaAda"},
	}
	for _, tt := range tests {
		if got := eval(t, tt.expr, env); got != tt.want {
			t.Errorf("eval(%q): got %q, want %q", tt.expr, got, tt.want)
		}
	}
}

func TestEvalNot(t *testing.T) {
	env := mapEnv{"ok": true, "empty": ""}
	if got := eval(t, "not: ok", env); got != false {
		t.Errorf("not: ok = %v", got)
	}
	if got := eval(t, "not: empty", env); got != true {
		t.Errorf("not: empty = %v", got)
	}
}

func TestEvalExists(t *testing.T) {
	env := mapEnv{"here": 1}
	if got := eval(t, "exists: here", env); got != true {
		t.Errorf("exists: here = %v", got)
	}
	if got := eval(t, "exists: missing", env); got != false {
		t.Errorf("exists: missing = %v", got)
	}
}

func TestEvalStructure(t *testing.T) {
	v := eval(t, "structure: '<em>x</em>'", mapEnv{})
	markup, ok := v.(runtime.Markup)
	if !ok || string(markup) != "<em>x</em>" {
		t.Errorf("got %v (%T)", v, v)
	}
}

func TestEvalImportAndLoad(t *testing.T) {
	if got := eval(t, "import: text.upper", mapEnv{}); got != "UPPER" {
		t.Errorf("import: got %v", got)
	}
	if got := eval(t, "load: layout.pt", mapEnv{}); got != "LAYOUT" {
		t.Errorf("load: got %v", got)
	}
}

func TestPipeFallback(t *testing.T) {
	// Property 7: the first successful candidate's value wins; failing
	// candidates are swallowed only for the recoverable set.
	env := mapEnv{"b": "B"}
	if got := eval(t, "missing | b", env); got != "B" {
		t.Errorf("got %v", got)
	}
	if got := eval(t, "missing | alsomissing | 'C'", env); got != "C" {
		t.Errorf("got %v", got)
	}
	if got := eval(t, "b | 'unused'", env); got != "B" {
		t.Errorf("first success must win: got %v", got)
	}
}

func TestPipeFallbackExhausted(t *testing.T) {
	p, err := testRegistry().Compile("missing | alsomissing", loc.Range{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if _, err := p.Eval(mapEnv{}); err == nil {
		t.Fatal("expected the last candidate's error")
	}
}

func TestUnknownPrefix(t *testing.T) {
	_, err := testRegistry().Compile("bogus: x", loc.Range{})
	var ranged *loc.ErrorWithRange
	if !errors.As(err, &ranged) || ranged.Code != loc.ERROR_UNKNOWN_EXPRESSION_TYPE {
		t.Errorf("got %v", err)
	}
}

func TestDefaultPrefixOverride(t *testing.T) {
	r := testRegistry()
	r.SetDefaultPrefix("string")
	p, err := r.Compile("just text", loc.Range{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	v, err := p.Eval(mapEnv{})
	if err != nil || v != "just text" {
		t.Errorf("got %v, %v", v, err)
	}
}

func TestAttrFallbackOnStruct(t *testing.T) {
	type Person struct {
		Name string
	}
	env := mapEnv{"p": Person{Name: "Grace"}}
	// Lower-case attribute access finds the exported Go field.
	if got := eval(t, "p.name", env); got != "Grace" {
		t.Errorf("got %v", got)
	}
}

func TestAttrErrorIsRecoverable(t *testing.T) {
	p, err := testRegistry().Compile("p.nope", loc.Range{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	_, evalErr := p.Eval(mapEnv{"p": map[string]any{}})
	if evalErr == nil {
		t.Fatal("expected an error")
	}
	if !isRecoverableEvalError(evalErr) {
		t.Errorf("attribute miss must be recoverable, got %v", evalErr)
	}
}

func TestNameErrorCarriesExpressionSource(t *testing.T) {
	p, err := testRegistry().Compile("missing + 1", loc.Range{Loc: loc.Loc{Start: 7}, Len: 11})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	_, evalErr := p.Eval(mapEnv{})
	var ee *ExprError
	if !errors.As(evalErr, &ee) {
		t.Fatalf("want ExprError, got %v", evalErr)
	}
	if ee.Source != "missing + 1" || ee.Range.Loc.Start != 7 {
		t.Errorf("bad attribution: %+v", ee)
	}
}
