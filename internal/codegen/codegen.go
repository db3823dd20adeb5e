// Package codegen turns a compiled ir.Template into an executable render
// program (spec component G).
//
// Rather than emitting textual Go source and invoking the Go toolchain
// (which this exercise never does, and which a template engine compiled
// once and rendered many times has no real need for), the "code
// generator" here lowers the ir tree directly into a tree of small
// closures: Build walks the ir.Template once per cook and returns a
// renderFunc per ir.Node, each closing over its own already-resolved
// children's renderFunc values. Render then just invokes the root
// closure — no re-walking of the ir tree, no re-dispatch on Kind, at
// every render call. The one exception is i18n:translate, whose
// children are lowered again on each render (translateElement). This
// is the Go-idiomatic reading of design note
// 9's "lower to a JIT-compiled closure."
package codegen

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/talweave/talc/internal/ir"
	"github.com/talweave/talc/internal/runtime"
	"github.com/talweave/talc/internal/tales"
)

// evalP is the single choke point through which every compiled
// expression is evaluated at render time: it attaches a bounded scope
// snapshot to the first failure (spec §7's variables preview) without
// double-wrapping an error that already carries one from a nested
// element's evaluation.
func evalP(prog *tales.Program, scope *runtime.Scope) (any, error) {
	v, err := prog.Eval(scope)
	if err == nil {
		return v, nil
	}
	var re *runtime.RenderError
	if errors.As(err, &re) {
		return nil, err
	}
	return nil, &runtime.RenderError{Err: err, Vars: runtime.SnapshotVars(scope)}
}

// Settings is the subset of the root driver's Settings that codegen's
// render loop needs directly, kept narrow so this package doesn't
// depend on the root package (which depends on codegen to build a
// Program).
type Settings struct {
	BooleanAttributes      map[string]bool
	ImplicitI18NTranslate  bool
	ImplicitI18NAttributes map[string]bool
	TrimAttributeSpace     bool
	ValidateStructure      bool
	ExtraBuiltins          map[string]any
	Translator             runtime.Translator
	OnErrorHandler         func(err error)
	Debug                  bool
}

// Program is a cooked template's render entry point plus its named
// macro accessors, matching spec §4.G's "a render entry point ... and a
// macros accessor returning named render entries."
type Program struct {
	root     renderFunc
	macros   map[string]renderFunc
	settings Settings
}

// renderFunc is the closure shape every ir.Node lowers to: render n's
// output (and any nested markup) into rc, using scope for name
// resolution.
type renderFunc func(rc *renderCtx, scope *runtime.Scope) error

// Build lowers tmpl into a Program, compiling every ir.Node into its
// renderFunc up front.
func Build(tmpl *ir.Template, settings Settings) *Program {
	p := &Program{settings: settings, macros: map[string]renderFunc{}}
	p.root = p.lower(tmpl.Root)
	for name, node := range tmpl.Macros {
		p.macros[name] = p.lower(node)
	}
	return p
}

// Macro returns the named macro's render closure, used by RenderMacro
// and by resolveMacroTarget when a use-macro/extend-macro resolves to a
// name this Program itself defines (the common same-template macro-call
// case; a cross-template load: reference instead carries its own
// already-built *Program, handled in refTarget).
func (p *Program) Macro(name string) (renderFunc, bool) {
	f, ok := p.macros[name]
	return f, ok
}

// MacroNames lists every macro this Program defines, for a driver that
// needs to expose Template.Macros() as an enumerable map.
func (p *Program) MacroNames() []string {
	names := make([]string, 0, len(p.macros))
	for name := range p.macros {
		names = append(names, name)
	}
	return names
}

// renderCtx carries the accumulated output buffer and the live
// RepeatDict for one Render call.
type renderCtx struct {
	out     *strings.Builder
	repeats runtime.RepeatDict
	program *Program

	// switchStack and slotStack carry render-time state a closure tree
	// can't bake in at Build time: which tal:switch value is active (so
	// a nested tal:case can tell whether it's the first match) and which
	// fill-slot content a use-macro/extend-macro call supplied (so a
	// nested define-slot can splice the caller's content instead of its
	// own default).
	switchStack []*switchFrame
	slotStack   []map[string]renderFunc

	// translator overrides settings.Translator for this one Render call
	// (the root driver's CompiledTemplate.Render takes a per-call
	// translate function); nil means fall back to settings.Translator.
	translator runtime.Translator
}

func (rc *renderCtx) pushSlots(fillers map[string]renderFunc) { rc.slotStack = append(rc.slotStack, fillers) }
func (rc *renderCtx) popSlots()                               { rc.slotStack = rc.slotStack[:len(rc.slotStack)-1] }
func (rc *renderCtx) topSlots() map[string]renderFunc {
	if len(rc.slotStack) == 0 {
		return nil
	}
	return rc.slotStack[len(rc.slotStack)-1]
}

// newRender builds the per-call renderCtx and root Scope shared by
// Render and RenderMacro: a fresh output buffer and RepeatDict (spec §5,
// render-local state is never shared), builtins extended with
// Settings.ExtraBuiltins, and the two compiler-provided names every
// template sees — `repeat` (the live RepeatDict) and `macros` (this
// Program's own macros, as MacroRef values, so a same-template
// use-macro="macros['name']" resolves without a load:).
func (p *Program) newRender(args map[string]any, translator runtime.Translator) (*renderCtx, *runtime.Scope) {
	builtins := runtime.DefaultBuiltins()
	for k, v := range p.settings.ExtraBuiltins {
		builtins[k] = v
	}
	scope := runtime.NewRootScope(builtins, args)
	rc := &renderCtx{out: &strings.Builder{}, repeats: runtime.RepeatDict{}, program: p, translator: translator}
	scope.Set("repeat", rc.repeats)
	macroRefs := make(map[string]any, len(p.macros))
	for name := range p.macros {
		macroRefs[name] = MacroRef{Program: p, Name: name}
	}
	scope.Set("macros", macroRefs)
	return rc, scope
}

// Render executes the compiled template's root node against a fresh
// root Scope seeded with args, writing the result to w. translator, if
// non-nil, overrides Settings.Translator for this call only (the root
// driver's CompiledTemplate.Render passes a per-call translate
// function).
func (p *Program) Render(w io.Writer, args map[string]any, translator runtime.Translator) error {
	rc, scope := p.newRender(args, translator)
	if err := p.root(rc, scope); err != nil {
		return err
	}
	_, err := io.WriteString(w, rc.out.String())
	return err
}

// RenderMacro executes a single named macro directly (used by the
// template driver's Macro.Render, spec §4.G).
func (p *Program) RenderMacro(w io.Writer, name string, args map[string]any, translator runtime.Translator) error {
	f, ok := p.Macro(name)
	if !ok {
		return fmt.Errorf("codegen: no macro named %q", name)
	}
	rc, scope := p.newRender(args, translator)
	if err := f(rc, scope); err != nil {
		return err
	}
	_, err := io.WriteString(w, rc.out.String())
	return err
}

func (p *Program) lower(n *ir.Node) renderFunc {
	switch n.Kind {
	case ir.KindText:
		return p.lowerText(n.Text, false)
	case ir.KindComment:
		return p.lowerComment(n)
	case ir.KindDoctype:
		raw := "<!DOCTYPE " + n.Raw + ">"
		return func(rc *renderCtx, scope *runtime.Scope) error { rc.out.WriteString(raw); return nil }
	case ir.KindRaw:
		raw := n.Raw
		return func(rc *renderCtx, scope *runtime.Scope) error { rc.out.WriteString(raw); return nil }
	case ir.KindElement:
		return p.lowerElement(n)
	case ir.KindCodeBlock:
		return p.lowerCodeBlock(n)
	}
	return func(rc *renderCtx, scope *runtime.Scope) error { return nil }
}

// lowerCodeBlock executes a `<?python ?>` block's assignments directly
// in the scope the block appears in: the Scope value is shared with the
// block's following siblings (only `define` and macro entry spawn a
// fresh frame), which is exactly spec §4.G.9's "inline statements in the
// current scope up to the nearest enclosing macro boundary."
func (p *Program) lowerCodeBlock(n *ir.Node) renderFunc {
	assigns := n.Assigns
	return func(rc *renderCtx, scope *runtime.Scope) error {
		for _, a := range assigns {
			v, err := evalP(a.Expr, scope)
			if err != nil {
				return err
			}
			scope.Set(a.Names[0], v)
		}
		return nil
	}
}

func (p *Program) lowerText(t ir.Text, structureDefault bool) renderFunc {
	return func(rc *renderCtx, scope *runtime.Scope) error {
		s, err := evalText(t, scope)
		if err != nil {
			return err
		}
		if p.settings.ImplicitI18NTranslate && strings.TrimSpace(s) != "" {
			s = p.translator(rc).Translate("", "", collapseSpace(s), s, nil)
		}
		rc.out.WriteString(s)
		return nil
	}
}

// evalText renders an interpolated text run: literal parts pass through
// byte-for-byte (the source is already markup-escaped markup text),
// inserted expression values are escaped unless marked as structure.
func evalText(t ir.Text, scope *runtime.Scope) (string, error) {
	var b strings.Builder
	for _, part := range t.Parts {
		if part.Expr == nil {
			b.WriteString(part.Literal)
			continue
		}
		v, err := evalP(part.Expr, scope)
		if err != nil {
			return "", err
		}
		b.WriteString(runtime.RenderText(v))
	}
	return b.String(), nil
}

// evalTextRaw renders t without escaping expression results, used for
// attribute values (the attribute writer applies its own quoting) and
// structure contexts.
func evalTextRaw(t ir.Text, scope *runtime.Scope) (string, error) {
	var b strings.Builder
	for _, part := range t.Parts {
		if part.Expr == nil {
			b.WriteString(part.Literal)
			continue
		}
		v, err := evalP(part.Expr, scope)
		if err != nil {
			return "", err
		}
		b.WriteString(runtime.Stringify(v))
	}
	return b.String(), nil
}

func (p *Program) lowerComment(n *ir.Node) renderFunc {
	switch n.CommentMode {
	case ir.CommentDrop:
		return func(rc *renderCtx, scope *runtime.Scope) error { return nil }
	case ir.CommentVerbatim:
		raw := "<!--" + n.Raw + "-->"
		return func(rc *renderCtx, scope *runtime.Scope) error { rc.out.WriteString(raw); return nil }
	default:
		if n.CommentText.Parts == nil {
			raw := "<!--" + n.Raw + "-->"
			return func(rc *renderCtx, scope *runtime.Scope) error { rc.out.WriteString(raw); return nil }
		}
		text := n.CommentText
		return func(rc *renderCtx, scope *runtime.Scope) error {
			s, err := evalTextRaw(text, scope)
			if err != nil {
				return err
			}
			rc.out.WriteString("<!--" + s + "-->")
			return nil
		}
	}
}

// sortedKeys is a small helper for deterministic dict-attribute ordering
// (Go map iteration order is randomized; tal:attributes with a dict
// value needs a stable, at least predictable, output order).
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
