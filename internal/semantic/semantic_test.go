package semantic

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	talc "github.com/talweave/talc/internal"
	"github.com/talweave/talc/internal/bind"
	"github.com/talweave/talc/internal/handler"
	"github.com/talweave/talc/internal/ir"
	"github.com/talweave/talc/internal/loc"
	"github.com/talweave/talc/internal/tales"
)

func TestOrderIsCanonical(t *testing.T) {
	// Property 2: statement execution order never depends on authoring
	// order.
	scrambled := []bind.Statement{
		{Kind: bind.OnError},
		{Kind: bind.Attributes},
		{Kind: bind.Content},
		{Kind: bind.Repeat},
		{Kind: bind.Condition},
		{Kind: bind.Define},
	}
	got := Order(scrambled)
	want := []bind.Kind{bind.Define, bind.Condition, bind.Repeat, bind.Content, bind.Attributes, bind.OnError}
	for i, k := range want {
		if got[i].Kind != k {
			t.Fatalf("position %d: got %s, want %s", i, got[i].Kind, k)
		}
	}
}

func TestOrderIsStableWithinRank(t *testing.T) {
	stmts := []bind.Statement{
		{Kind: bind.Attributes, Expr: "href a"},
		{Kind: bind.Attributes, Expr: "title b"},
	}
	got := Order(stmts)
	if got[0].Expr != "href a" || got[1].Expr != "title b" {
		t.Errorf("same-kind statements must keep source order: %+v", got)
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		clause string
		names  []string
		rest   string
	}{
		{"x 1 + 2", []string{"x"}, "1 + 2"},
		{"name", []string{"name"}, ""},
		{"(a, b) pairs", []string{"a", "b"}, "pairs"},
		{"(a, b, c) f(x, y)", []string{"a", "b", "c"}, "f(x, y)"},
	}
	for _, tt := range tests {
		target, rest := ParseTarget(tt.clause)
		if diff := cmp.Diff(tt.names, target.Names); diff != "" {
			t.Errorf("ParseTarget(%q) names mismatch:\n%s", tt.clause, diff)
		}
		if rest != tt.rest {
			t.Errorf("ParseTarget(%q) rest: got %q, want %q", tt.clause, rest, tt.rest)
		}
	}
}

func TestUnpack(t *testing.T) {
	got := map[string]any{}
	assign := func(name string, v any) { got[name] = v }

	if err := Unpack(Target{Names: []string{"x"}}, 42, assign); err != nil {
		t.Fatal(err)
	}
	if got["x"] != 42 {
		t.Errorf("single assign: %v", got)
	}

	if err := Unpack(Target{Names: []string{"a", "b"}}, []any{1, 2}, assign); err != nil {
		t.Fatal(err)
	}
	if got["a"] != 1 || got["b"] != 2 {
		t.Errorf("tuple assign: %v", got)
	}

	if err := Unpack(Target{Names: []string{"a", "b", "c"}}, []any{1, 2}, assign); err == nil {
		t.Error("short sequence must fail")
	}
	if err := Unpack(Target{Names: []string{"a", "b"}}, 7, assign); err == nil {
		t.Error("non-sequence must fail")
	}
}

func compileSource(t *testing.T, source string, opts Options) (*ir.Template, error) {
	t.Helper()
	h := handler.NewHandler(source, "test.pt")
	doc, err := talc.Parse(strings.NewReader(source), h)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	talc.BindStatements(doc, talc.BindOptions{Strict: opts.Strict}, h)
	if h.HasErrors() {
		t.Fatalf("bind errors: %v", h.Errors())
	}
	return Compile(doc, tales.NewRegistry(nil, nil), opts, h)
}

func TestCompileBasicShape(t *testing.T) {
	tmpl, err := compileSource(t, `<div tal:condition="ok"><p tal:content="msg">x</p></div>`, Options{})
	if err != nil {
		t.Fatal(err)
	}
	div := tmpl.Root.Children[0]
	if div.Kind != ir.KindElement || div.Statements == nil || div.Statements.Condition == nil {
		t.Fatalf("bad div: %+v", div)
	}
	p := div.Children[0]
	if p.Statements == nil || p.Statements.Content == nil || p.Statements.Content.IsReplace {
		t.Fatalf("bad p: %+v", p)
	}
}

func TestCompileMacroCapture(t *testing.T) {
	tmpl, err := compileSource(t, `<div metal:define-macro="page"><span metal:define-slot="body">default</span></div>`, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tmpl.Macros["page"]; !ok {
		t.Fatalf("macro not captured: %v", tmpl.Macros)
	}
}

func TestCompileFillerIndexing(t *testing.T) {
	tmpl, err := compileSource(t, `<div metal:use-macro="'page'"><em metal:fill-slot="body">filled</em></div>`, Options{})
	if err != nil {
		t.Fatal(err)
	}
	div := tmpl.Root.Children[0]
	fillers := div.Statements.Macro.Fillers
	if len(fillers) != 1 || fillers["body"] == nil {
		t.Fatalf("fillers not indexed: %+v", fillers)
	}
}

func TestCompileInvariantViolations(t *testing.T) {
	tests := []struct {
		name   string
		source string
		code   loc.DiagnosticCode
		opts   Options
	}{
		{
			name:   "content and replace conflict",
			source: `<p tal:content="a" tal:replace="b">x</p>`,
			code:   loc.ERROR_CONTENT_AND_REPLACE,
		},
		{
			name:   "case without switch",
			source: `<p tal:case="1">x</p>`,
			code:   loc.ERROR_CASE_WITHOUT_SWITCH,
		},
		{
			name:   "fill-slot outside use-macro",
			source: `<p metal:fill-slot="s">x</p>`,
			code:   loc.ERROR_FILL_SLOT_NOT_IN_MACRO,
		},
		{
			name:   "reserved name in strict mode",
			source: `<p tal:define="translate 1">x</p>`,
			code:   loc.ERROR_RESERVED_NAME,
			opts:   Options{Strict: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := compileSource(t, tt.source, tt.opts)
			if err == nil {
				t.Fatal("expected a compile error")
			}
			var te *loc.TemplateError
			if !errors.As(err, &te) {
				t.Fatalf("want TemplateError, got %v", err)
			}
			if te.Inner.Code != tt.code {
				t.Errorf("got code %d, want %d", te.Inner.Code, tt.code)
			}
			if te.Kind != loc.LanguageErrorKind {
				t.Errorf("got kind %s, want LanguageError", te.Kind)
			}
		})
	}
}

func TestCompileReservedNameLaxMode(t *testing.T) {
	if _, err := compileSource(t, `<p tal:define="translate 1">x</p>`, Options{}); err != nil {
		t.Errorf("lax mode must allow shadowing: %v", err)
	}
}

func TestCompileCaseInsideSwitch(t *testing.T) {
	source := `<div tal:switch="n"><p tal:case="1">one</p><p tal:case="2">two</p></div>`
	if _, err := compileSource(t, source, Options{}); err != nil {
		t.Errorf("case under switch must compile: %v", err)
	}
}

func TestCompileCodeBlock(t *testing.T) {
	tmpl, err := compileSource(t, `<?python total = 2 * 3
greeting = 'hi'
?><p>x</p>`, Options{})
	if err != nil {
		t.Fatal(err)
	}
	block := tmpl.Root.Children[0]
	if block.Kind != ir.KindCodeBlock {
		t.Fatalf("got kind %s", block.Kind)
	}
	if len(block.Assigns) != 2 || block.Assigns[0].Names[0] != "total" || block.Assigns[1].Names[0] != "greeting" {
		t.Fatalf("bad assigns: %+v", block.Assigns)
	}
}

func TestCompileCodeBlockRejectsNonAssignment(t *testing.T) {
	_, err := compileSource(t, `<?python 1 == 2 ?><p>x</p>`, Options{})
	var te *loc.TemplateError
	if !errors.As(err, &te) || te.Inner.Code != loc.ERROR_BAD_CODE_BLOCK {
		t.Errorf("got %v", err)
	}
}

func TestCompileI18NLexicalInheritance(t *testing.T) {
	source := `<div i18n:domain="shop"><p i18n:translate="">Buy now</p></div>`
	tmpl, err := compileSource(t, source, Options{})
	if err != nil {
		t.Fatal(err)
	}
	p := tmpl.Root.Children[0].Children[0]
	if p.Statements == nil || p.Statements.I18N == nil {
		t.Fatalf("missing i18n clause: %+v", p)
	}
	if p.Statements.I18N.Domain != "shop" {
		t.Errorf("domain not inherited: %q", p.Statements.I18N.Domain)
	}
}

func TestCompileGlobalDefine(t *testing.T) {
	tmpl, err := compileSource(t, `<div tal:define="global site 'talweave'">x</div>`, Options{})
	if err != nil {
		t.Fatal(err)
	}
	div := tmpl.Root.Children[0]
	defs := div.Statements.Define
	if len(defs) != 1 || !defs[0].Global || defs[0].Names[0] != "site" {
		t.Fatalf("bad define: %+v", defs)
	}
}

func TestCompileMetaInterpolationOff(t *testing.T) {
	source := `<div meta:interpolation="off"><p>${not.lowered}</p></div>`
	tmpl, err := compileSource(t, source, Options{})
	if err != nil {
		t.Fatal(err)
	}
	p := tmpl.Root.Children[0].Children[0]
	text := p.Children[0]
	if len(text.Text.Parts) != 1 || text.Text.Parts[0].Expr != nil {
		t.Errorf("interpolation should be off in the subtree: %+v", text.Text.Parts)
	}
}
