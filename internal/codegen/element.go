package codegen

import (
	"fmt"
	"reflect"
	"strings"

	talc "github.com/talweave/talc/internal"
	"github.com/talweave/talc/internal/handler"
	"github.com/talweave/talc/internal/ir"
	"github.com/talweave/talc/internal/runtime"
	"github.com/talweave/talc/internal/semantic"
)

// switchFrame tracks one active tal:switch's comparison value and
// whether a case has already matched, giving tal:case's first-match
// property (invariant 4) without needing a generic "ordering pass
// result" object threaded through render — the stack itself is the
// state a nested switch/case pair needs.
type switchFrame struct {
	value   any
	matched bool
}

func (rc *renderCtx) pushSwitch(v any) { rc.switchStack = append(rc.switchStack, &switchFrame{value: v}) }
func (rc *renderCtx) popSwitch()       { rc.switchStack = rc.switchStack[:len(rc.switchStack)-1] }
func (rc *renderCtx) topSwitch() *switchFrame {
	if len(rc.switchStack) == 0 {
		return nil
	}
	return rc.switchStack[len(rc.switchStack)-1]
}

func (p *Program) lowerElement(n *ir.Node) renderFunc {
	attrs := n.Attrs
	tag := n.Tag
	void := n.Void
	selfClosing := n.SelfClosing
	childFns := make([]renderFunc, len(n.Children))
	for i, c := range n.Children {
		childFns[i] = p.lower(c)
	}
	renderChildren := func(rc *renderCtx, scope *runtime.Scope) error {
		for _, f := range childFns {
			if err := f(rc, scope); err != nil {
				return err
			}
		}
		return nil
	}

	stmts := n.Statements
	if stmts == nil {
		if tag == "" {
			// The document root has no tag of its own; only its children render.
			return renderChildren
		}
		return func(rc *renderCtx, scope *runtime.Scope) error {
			return p.renderTag(rc, scope, tag, attrs, void, selfClosing, false, renderChildren)
		}
	}
	if stmts.Macro != nil && (stmts.Macro.UseMacro != nil || stmts.Macro.ExtendMacro != nil) {
		return p.lowerUseMacro(n, stmts, renderChildren)
	}

	body := func(rc *renderCtx, scope *runtime.Scope) error {
		return p.renderElementBody(rc, scope, n, renderChildren)
	}
	if stmts.Macro != nil && stmts.Macro.DefineSlot != "" {
		slotName := stmts.Macro.DefineSlot
		defaultBody := body
		body = func(rc *renderCtx, scope *runtime.Scope) error {
			if fillers := rc.topSlots(); fillers != nil {
				if filler, ok := fillers[slotName]; ok {
					return filler(rc, scope)
				}
			}
			return defaultBody(rc, scope)
		}
	}
	if stmts.OnError != nil {
		return p.wrapOnError(n, body)
	}
	return body
}

// renderElementBody executes one element's statement pipeline in a fixed
// order: define, switch, condition, repeat, then (in the helpers called
// below) case, content/replace, i18n:translate, omit-tag and attributes.
// Each step is a plain sequential Go statement rather than a dynamic
// dispatch over a sorted list, so the order is simply the order of the
// calls here and in those helpers.
func (p *Program) renderElementBody(rc *renderCtx, scope *runtime.Scope, n *ir.Node, renderChildren renderFunc) error {
	stmts := n.Statements

	if len(stmts.Define) > 0 {
		scope = scope.Spawn()
		for _, d := range stmts.Define {
			v, err := evalP(d.Expr, scope)
			if err != nil {
				return err
			}
			target := semantic.Target{Names: d.Names}
			if err := semantic.Unpack(target, v, func(name string, val any) {
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

	if stmts.Switch != nil {
		v, err := evalP(stmts.Switch, scope)
		if err != nil {
			return err
		}
		rc.pushSwitch(v)
		defer rc.popSwitch()
	}

	if stmts.Condition != nil {
		v, err := evalP(stmts.Condition, scope)
		if err != nil {
			return err
		}
		if !runtime.IsDefault(v) && !runtime.Truthy(v) {
			return nil
		}
	}

	if stmts.Repeat != nil {
		return p.renderRepeat(rc, scope, n, renderChildren)
	}

	return p.renderCaseAndRest(rc, scope, n, renderChildren)
}

func (p *Program) renderRepeat(rc *renderCtx, scope *runtime.Scope, n *ir.Node, renderChildren renderFunc) error {
	stmts := n.Statements
	v, err := evalP(stmts.Repeat.Expr, scope)
	if err != nil {
		return err
	}
	items, err := toSequence(v)
	if err != nil {
		return err
	}
	varName := stmts.Repeat.VarNames[0]
	rep := runtime.NewRepeat(items, nil)
	// A nested loop reusing an outer loop's variable name shadows the
	// outer repeat entry for its duration (spec §3); restore the outer
	// entry on exit so invariant 5 holds for the inner loop without
	// clobbering the still-active outer one.
	shadowed, hadShadowed := rc.repeats[varName]
	restore := func() {
		if hadShadowed {
			rc.repeats[varName] = shadowed
		} else {
			delete(rc.repeats, varName)
		}
	}
	for rep.Advance() {
		iterScope := scope.Spawn()
		idx := rep.Index()
		target := semantic.Target{Names: stmts.Repeat.VarNames}
		if err := semantic.Unpack(target, items[idx], func(name string, val any) {
			iterScope.Set(name, val)
		}); err != nil {
			restore()
			return err
		}
		rc.repeats[varName] = rep
		if err := p.renderCaseAndRest(rc, iterScope, n, renderChildren); err != nil {
			restore()
			return err
		}
	}
	restore()
	return nil
}

func toSequence(v any) ([]any, error) {
	if items, ok := v.([]any); ok {
		return items, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	}
	return nil, fmt.Errorf("codegen: cannot repeat over non-sequence value of type %T", v)
}

func (p *Program) renderCaseAndRest(rc *renderCtx, scope *runtime.Scope, n *ir.Node, renderChildren renderFunc) error {
	stmts := n.Statements
	if stmts.Case != nil {
		v, err := evalP(stmts.Case, scope)
		if err != nil {
			return err
		}
		frame := rc.topSwitch()
		if frame == nil || frame.matched || !valuesEqual(frame.value, v) {
			return nil
		}
		frame.matched = true
	}
	return p.renderContentAndTag(rc, scope, n, renderChildren)
}

func (p *Program) renderContentAndTag(rc *renderCtx, scope *runtime.Scope, n *ir.Node, renderChildren renderFunc) error {
	stmts := n.Statements

	renderInner := renderChildren
	omit := false
	replacedInner := false

	if stmts.Content != nil {
		v, err := evalP(stmts.Content.Expr, scope)
		if err != nil {
			return err
		}
		switch {
		case runtime.IsDefault(v):
			// leave markup unchanged
		case v == nil || v == false:
			renderInner = func(rc *renderCtx, scope *runtime.Scope) error { return nil }
			replacedInner = true
			if stmts.Content.IsReplace {
				omit = true
			}
		default:
			text := renderValue(v, stmts.Content.ForceNoEscape)
			if _, isMarkup := runtime.AsMarkup(v); isMarkup || stmts.Content.ForceNoEscape {
				if err := p.validateStructure(text); err != nil {
					return err
				}
			}
			renderInner = func(rc *renderCtx, scope *runtime.Scope) error { rc.out.WriteString(text); return nil }
			replacedInner = true
			if stmts.Content.IsReplace {
				omit = true
			}
		}
	}

	if stmts.I18N != nil && stmts.I18N.Translate {
		text, err := p.translateElement(rc, scope, n, stmts.I18N)
		if err != nil {
			return err
		}
		renderInner = func(rc *renderCtx, scope *runtime.Scope) error { rc.out.WriteString(text); return nil }
		replacedInner = true
	}

	if stmts.OmitTag != nil {
		if stmts.OmitTag.Expr == nil {
			omit = true
		} else {
			v, err := evalP(stmts.OmitTag.Expr, scope)
			if err != nil {
				return err
			}
			if !runtime.IsDefault(v) && runtime.Truthy(v) {
				omit = true
			}
		}
	}

	return p.renderTagWithAttrs(rc, scope, n, omit, replacedInner, renderInner)
}

func (p *Program) renderTagWithAttrs(rc *renderCtx, scope *runtime.Scope, n *ir.Node, omit, replacedInner bool, renderInner renderFunc) error {
	writer := runtime.NewAttrWriter(p.settings.BooleanAttributes)
	for _, a := range n.Attrs {
		// A boolean attribute whose value is interpolated follows the
		// same truthy/falsy rendering as a tal:attributes clause (spec
		// §4.G.4: the rule applies to ${...} in the attribute position
		// too), so the evaluated value goes in dynamically instead of
		// being stringified.
		if p.settings.BooleanAttributes[strings.ToLower(a.Name)] && hasExprPart(a.Value) {
			v, err := evalAttrValue(a.Value, scope)
			if err != nil {
				return err
			}
			writer.SetDynamic(a.Name, v)
			continue
		}
		v, err := evalTextRaw(a.Value, scope)
		if err != nil {
			return err
		}
		if p.settings.TrimAttributeSpace {
			v = collapseSpace(v)
		}
		if p.translateAttr(n, a.Name) {
			v = p.translator(rc).Translate(i18nDomain(n), i18nContext(n), v, v, nil)
		}
		writer.SetStatic(a.Name, v)
	}
	if n.Statements != nil {
		for _, ac := range n.Statements.Attrs {
			v, err := evalP(ac.Expr, scope)
			if err != nil {
				return err
			}
			writer.SetDynamic(ac.Name, v)
		}
	}
	// A non-void element written self-closing in the source still takes
	// an open/close pair once a content statement supplied inner markup.
	selfClosing := n.SelfClosing && !replacedInner
	return p.renderTag(rc, scope, n.Tag, nil, n.Void, selfClosing, omit, renderInner, writer)
}

func hasExprPart(t ir.Text) bool {
	for _, part := range t.Parts {
		if part.Expr != nil {
			return true
		}
	}
	return false
}

// evalAttrValue evaluates an interpolated attribute value preserving
// the expression's dynamic type where the value is a single ${...}: a
// bare boolean or nil then drives the boolean-attribute rules directly
// rather than through its stringified form.
func evalAttrValue(t ir.Text, scope *runtime.Scope) (any, error) {
	if len(t.Parts) == 1 && t.Parts[0].Expr != nil {
		return evalP(t.Parts[0].Expr, scope)
	}
	return evalTextRaw(t, scope)
}

// translateAttr reports whether a static attribute's value should run
// through the translator: named in the element's i18n:attributes, or in
// the configured implicit set.
func (p *Program) translateAttr(n *ir.Node, name string) bool {
	if n.Statements != nil && n.Statements.I18N != nil && n.Statements.I18N.Attrs[name] {
		return true
	}
	return p.settings.ImplicitI18NAttributes[name]
}

func (p *Program) translator(rc *renderCtx) runtime.Translator {
	if rc.translator != nil {
		return rc.translator
	}
	if p.settings.Translator != nil {
		return p.settings.Translator
	}
	return runtime.NopTranslator{}
}

func i18nDomain(n *ir.Node) string {
	if n.Statements != nil && n.Statements.I18N != nil {
		return n.Statements.I18N.Domain
	}
	return ""
}

func i18nContext(n *ir.Node) string {
	if n.Statements != nil && n.Statements.I18N != nil {
		return n.Statements.I18N.Context
	}
	return ""
}

// collapseSpace implements trim_attribute_space: runs of attribute
// whitespace collapse to a single space (spec §9's ambiguity note —
// only to a single space, never removed entirely).
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// validateStructure reparses a structure insertion when the
// validate-structure switch is on, so malformed injected markup fails
// the render instead of corrupting the surrounding document.
func (p *Program) validateStructure(s string) error {
	if !p.settings.ValidateStructure {
		return nil
	}
	h := handler.NewHandler(s, "<structure>")
	if _, err := talc.Parse(strings.NewReader(s), h); err != nil {
		return err
	}
	if msgs := h.Errors(); len(msgs) > 0 {
		return fmt.Errorf("structure insertion is not well-formed: %s", msgs[0].Text)
	}
	return nil
}

// renderTag writes an element's opening tag (from a pre-built writer
// when present, else straight from static attrs), its inner content, and
// closing tag, honoring void-element and omit-tag rules.
func (p *Program) renderTag(rc *renderCtx, scope *runtime.Scope, tag string, attrs []ir.Attr, void, selfClosing, omit bool, renderInner renderFunc, writer ...*runtime.AttrWriter) error {
	var pairs []runtime.AttrPair
	if len(writer) > 0 && writer[0] != nil {
		pairs = writer[0].Pairs()
	} else {
		w := runtime.NewAttrWriter(p.settings.BooleanAttributes)
		for _, a := range attrs {
			v, err := evalTextRaw(a.Value, scope)
			if err != nil {
				return err
			}
			w.SetStatic(a.Name, v)
		}
		pairs = w.Pairs()
	}

	if omit {
		return renderInner(rc, scope)
	}

	rc.out.WriteByte('<')
	rc.out.WriteString(tag)
	for _, pair := range pairs {
		rc.out.WriteByte(' ')
		rc.out.WriteString(pair.Name)
		rc.out.WriteString(`="`)
		rc.out.WriteString(runtime.Escape(pair.Value))
		rc.out.WriteByte('"')
	}
	if void || selfClosing {
		rc.out.WriteString(" />")
		return nil
	}
	rc.out.WriteByte('>')
	if err := renderInner(rc, scope); err != nil {
		return err
	}
	rc.out.WriteString("</")
	rc.out.WriteString(tag)
	rc.out.WriteByte('>')
	return nil
}

func renderValue(v any, forceNoEscape bool) string {
	if markup, ok := runtime.AsMarkup(v); ok {
		return string(markup)
	}
	if forceNoEscape {
		return runtime.Stringify(v)
	}
	return runtime.RenderText(v)
}

func valuesEqual(a, b any) bool {
	return a == b
}

func (p *Program) wrapOnError(n *ir.Node, body renderFunc) renderFunc {
	return func(rc *renderCtx, scope *runtime.Scope) (err error) {
		snapshot := rc.out.Len()
		defer func() {
			// tal:on-error catches everything, including a panic from a
			// host value's method, and still guarantees an end tag.
			if r := recover(); r != nil {
				err = fmt.Errorf("panic during render: %v", r)
			}
			if err == nil {
				return
			}
			if p.settings.OnErrorHandler != nil {
				p.settings.OnErrorHandler(err)
			}
			// Discard any partial output the failing body already wrote
			// and substitute the element with the error expression's
			// result, keeping static attributes and dropping dynamic
			// ones (spec §4.G.8). The `error` variable is bound to the
			// exception within the error expression.
			truncated := rc.out.String()[:snapshot]
			rc.out.Reset()
			rc.out.WriteString(truncated)
			errScope := scope.Spawn()
			errScope.Set("error", err)
			v, evalErr := evalP(n.Statements.OnError.Expr, errScope)
			if evalErr != nil {
				return
			}
			err = p.renderTag(rc, errScope, n.Tag, n.Attrs, n.Void, n.SelfClosing, false, func(rc *renderCtx, scope *runtime.Scope) error {
				rc.out.WriteString(renderValue(v, false))
				return nil
			})
		}()
		err = body(rc, scope)
		return err
	}
}
