// Package runtime implements the render-time support library (spec
// component H): the layered Scope, the RepeatDict/Repeat loop-state
// objects, the attribute writer, markup/escaping helpers, translation
// invocation and the Default sentinel.
//
// Scope is modeled on dpotapov's chtml.Scope interface (Spawn/Vars),
// generalized with the four-layer precedence spec §3 requires: builtin
// layer (non-redefinable names), global layer (explicit `global`
// define), local layer (nested frames, shadowing outer locals) and
// argument layer (render-time keywords, the outermost/weakest-priority
// layer conceptually but applied first so locals can still shadow them
// within a macro body).
package runtime

// Scope is a mapping from identifier to value with TAL's four-layer
// precedence. It satisfies tales.Env so TALES programs can evaluate
// directly against it.
type Scope struct {
	parent  *Scope
	builtin map[string]any // shared, read-only, same map instance as the root
	global  map[string]any // shared pointer-to-map semantics: one instance per Scope tree, written by SetGlobal
	local   map[string]any
	closed  bool
}

// NewRootScope creates the top-level Scope for one render, seeded with
// the builtin layer (non-redefinable names float/int/len/None/True/
// False plus any compiler-internal reserved names) and argument-layer
// keywords passed to the render call.
func NewRootScope(builtins map[string]any, args map[string]any) *Scope {
	s := &Scope{
		builtin: builtins,
		global:  map[string]any{},
		local:   map[string]any{},
	}
	for k, v := range args {
		s.local[k] = v
	}
	return s
}

// Spawn returns a child Scope sharing this Scope's builtin and global
// layers but with a fresh local layer, used whenever an element opens a
// lexical scope via `define` or enters a macro body.
func (s *Scope) Spawn() *Scope {
	return &Scope{
		parent:  s,
		builtin: s.builtin,
		global:  s.global,
		local:   map[string]any{},
	}
}

// Get resolves name through the local frames innermost-first, then
// global, then builtin. The argument layer is the root frame's local
// layer, so it is searched last among the locals: a name defined in an
// inner frame shadows an argument of the same name.
func (s *Scope) Get(name string) (any, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.local[name]; ok {
			return v, true
		}
		if cur.parent == nil {
			break
		}
	}
	if v, ok := s.global[name]; ok {
		return v, true
	}
	if v, ok := s.builtin[name]; ok {
		return v, true
	}
	return nil, false
}

// Set defines name in this Scope's local layer (a plain `define`).
func (s *Scope) Set(name string, val any) {
	s.local[name] = val
}

// SetGlobal defines name in the shared global layer (`define ... global`).
func (s *Scope) SetGlobal(name string, val any) {
	s.global[name] = val
}

// Unset removes name from this Scope's local layer, used when a repeat
// loop exits to enforce invariant 5 (repeat scope never leaks).
func (s *Scope) Unset(name string) {
	delete(s.local, name)
}

// Keys enumerates every visible name across all four layers, innermost
// shadowing outermost, so user expressions can introspect the Scope
// (spec §3: "the scope object is iterable and dict-like at runtime").
func (s *Scope) Keys() []string {
	seen := map[string]bool{}
	var out []string
	add := func(m map[string]any) {
		for k := range m {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	for cur := s; cur != nil; cur = cur.parent {
		add(cur.local)
	}
	add(s.global)
	add(s.builtin)
	return out
}

// DefaultBuiltins returns the non-redefinable builtin-layer names spec §3
// requires: float/int/len/None/True/False (plus range, which tal:repeat
// expressions lean on constantly). `len`, `float`, `int` and `range` are
// plain Go functions operating on the same dynamic values TALES
// expressions traffic in.
func DefaultBuiltins() map[string]any {
	return map[string]any{
		"None":  nil,
		"True":  true,
		"False": false,
		"float": func(v any) (float64, error) { return toFloat(v) },
		"int":   func(v any) (int, error) { return toInt(v) },
		"len":   func(v any) (int, error) { return Len(v) },
		"range": func(n int) []any {
			out := make([]any, n)
			for i := range out {
				out[i] = i
			}
			return out
		},
	}
}

// ReservedNames is the compiler-internal name set spec §9 requires to
// stay disjoint from user scope. In strict mode a `define` of one of
// these is a compile-time error; otherwise it silently shadows.
var ReservedNames = map[string]bool{
	"econtext":  true,
	"rcontext":  true,
	"translate": true,
	"decode":    true,
	"convert":   true,
}
