package codegen

import (
	"fmt"
	"strings"

	"github.com/talweave/talc/internal/ir"
	"github.com/talweave/talc/internal/runtime"
	"github.com/talweave/talc/internal/semantic"
)

// lowerUseMacro builds the renderFunc for an element carrying
// metal:use-macro or metal:extend-macro: the element's own tag,
// attributes and static children are discarded entirely and replaced by
// the resolved macro body, with this call's fill-slot descendants
// spliced into the macro's define-slot positions.
//
// Any define on the element runs first, in a fresh frame, so the macro
// expression can use the names it binds; the macro body then runs in a
// frame of its own. extend-macro resolves its target the same way as
// use-macro; the one difference is that its own fillers are merged with
// the filler layer already on the stack, the caller's layer winning on
// a name collision.
func (p *Program) lowerUseMacro(n *ir.Node, stmts *ir.Statements, ownChildren renderFunc) renderFunc {
	expr := stmts.Macro.UseMacro
	if expr == nil {
		expr = stmts.Macro.ExtendMacro
	}
	fillerFns := make(map[string]renderFunc, len(stmts.Macro.Fillers))
	for name, node := range stmts.Macro.Fillers {
		fillerFns[name] = p.lower(node)
	}

	isExtend := stmts.Macro.UseMacro == nil && stmts.Macro.ExtendMacro != nil

	return func(rc *renderCtx, scope *runtime.Scope) error {
		if len(stmts.Define) > 0 {
			scope = scope.Spawn()
			for _, d := range stmts.Define {
				v, err := evalP(d.Expr, scope)
				if err != nil {
					return err
				}
				if err := semantic.Unpack(semantic.Target{Names: d.Names}, v, func(name string, val any) {
					if d.Global {
						scope.SetGlobal(name, val)
					} else {
						scope.Set(name, val)
					}
				}); err != nil {
					return err
				}
			}
		}
		v, err := evalP(expr, scope)
		if err != nil {
			return err
		}
		target, err := p.resolveMacroTarget(v)
		if err != nil {
			return err
		}
		fillers := fillerFns
		if isExtend {
			// extend-macro composes filler layers outward-in: this
			// macro's own fillers seed the map, and the caller's layer
			// (already on the stack) overrides on name collision, so the
			// outermost filler wins (spec §3's nested-slot extension).
			merged := make(map[string]renderFunc, len(fillerFns))
			for name, f := range fillerFns {
				merged[name] = f
			}
			for name, f := range rc.topSlots() {
				merged[name] = f
			}
			fillers = merged
		}
		rc.pushSlots(fillers)
		err = target(rc, scope.Spawn())
		rc.popSlots()
		return err
	}
}

// resolveMacroTarget turns a use-macro/extend-macro expression's
// evaluated value into a renderFunc. A bare string names a macro this
// same Program defines (spec's common same-template `macro:name` case);
// any other value is expected to already be a resolved macro reference
// produced by a load:/import: TALES program evaluating a cross-template
// macro lookup.
func (p *Program) resolveMacroTarget(v any) (renderFunc, error) {
	switch t := v.(type) {
	case string:
		f, ok := p.Macro(t)
		if !ok {
			return nil, fmt.Errorf("codegen: no macro named %q", t)
		}
		return f, nil
	case MacroRef:
		return refTarget(t)
	case MacroSource:
		return refTarget(t.MacroRef())
	default:
		return nil, fmt.Errorf("codegen: use-macro expression did not resolve to a macro, got %T", v)
	}
}

// refTarget resolves a MacroRef to its render closure. An empty Name
// addresses the referenced program's whole document, so a template
// loaded with load: is itself usable as a macro source (spec §4.D).
func refTarget(ref MacroRef) (renderFunc, error) {
	if ref.Program == nil {
		return nil, fmt.Errorf("codegen: macro reference to an uncooked template")
	}
	if ref.Name == "" {
		return ref.Program.root, nil
	}
	f, ok := ref.Program.Macro(ref.Name)
	if !ok {
		return nil, fmt.Errorf("codegen: referenced template has no macro named %q", ref.Name)
	}
	return f, nil
}

// MacroRef lets a cross-template load: TALES expression hand codegen a
// reference into another cooked Program's named macro — or, with an
// empty Name, the program's whole document. The root driver's
// tales.Resolver implementation constructs these; codegen never needs to
// know how that resolution happened.
type MacroRef struct {
	Program *Program
	Name    string
}

// MacroSource is implemented by the root driver's macro handle type and
// by the driver's Template itself, so a use-macro expression that
// resolved to either (via the Macros accessor or a load: expression)
// can be unwrapped here without codegen importing the driver.
type MacroSource interface {
	MacroRef() MacroRef
}

// translateElement implements i18n:translate: it renders n's children
// into a default-text string, diverting any child marked i18n:name into
// the mapping under that name and leaving a "${name}" placeholder in its
// place, then hands domain/context/msgID/defaultText/mapping to the
// configured Translator (NopTranslator when none is set).
func (p *Program) translateElement(rc *renderCtx, scope *runtime.Scope, n *ir.Node, clause *ir.I18NClause) (string, error) {
	var defaultText strings.Builder
	mapping := map[string]string{}

	for _, child := range n.Children {
		name := ""
		if child.Kind == ir.KindElement && child.Statements != nil && child.Statements.I18N != nil {
			name = child.Statements.I18N.Name
		}
		if name == "" {
			sub := &strings.Builder{}
			subRC := &renderCtx{out: sub, repeats: rc.repeats, program: rc.program, switchStack: rc.switchStack, slotStack: rc.slotStack, translator: rc.translator}
			if err := p.lower(child)(subRC, scope); err != nil {
				return "", err
			}
			defaultText.WriteString(sub.String())
			continue
		}
		sub := &strings.Builder{}
		subRC := &renderCtx{out: sub, repeats: rc.repeats, program: rc.program, switchStack: rc.switchStack, slotStack: rc.slotStack, translator: rc.translator}
		if err := p.lower(child)(subRC, scope); err != nil {
			return "", err
		}
		mapping[name] = sub.String()
		defaultText.WriteString("${" + name + "}")
	}

	msgID := clause.MsgID
	if msgID == "" {
		// Derived message ids normalise the inner text: whitespace runs
		// collapse so reformatting the template never changes the id.
		msgID = collapseSpace(defaultText.String())
	}
	if msgID == "" {
		// An empty string is never translated (spec §4.H).
		return defaultText.String(), nil
	}
	return p.translator(rc).Translate(clause.Domain, clause.Context, msgID, defaultText.String(), mapping), nil
}
