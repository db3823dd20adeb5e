// Package tales implements the TALES expression compiler registry (spec
// component D): prefix dispatch (python/string/exists/not/import/load/
// structure), the default/python: backend on top of expr-lang/expr, and
// the pipe-fallback chain.
//
// Grounded primarily on dpotapov's chtml/expr.go: the same idea of a
// registry keyed by prefix string, each entry a small compiler function,
// and a default backend that parses with expr-lang/expr's parser package
// and compiles with its compiler package, evaluated later with vm.Run.
package tales

import (
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/compiler"
	"github.com/expr-lang/expr/conf"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"

	"github.com/talweave/talc/internal/loc"
	"github.com/talweave/talc/internal/runtime"
)

// Program is the compiled form of one TALES expression: a thin wrapper
// around whichever backend actually produced it. Exactly one of the
// eval fields is set, realizing design note 9's "IR plus codegen
// backend" as a tagged union over evaluator kind.
type Program struct {
	Source string
	Range  loc.Range

	vmProgram *vm.Program // python:/default backend
	idents    []string    // free identifiers, for NameError semantics
	str       *stringProgram
	inner     *Program  // structure:/not:/exists: wrap an inner program
	chain     []*Program // pipe-fallback chain
	kind      progKind

	importName string
	importer   Importer
	loadPath   string
	resolver   Resolver
}

type progKind int

const (
	kindVM progKind = iota
	kindString
	kindNot
	kindExists
	kindStructure
	kindImport
	kindLoad
)

// Env is the render-time environment a Program evaluates against. It is
// a minimal interface rather than the concrete runtime.Scope so tests
// and embedders can evaluate against a plain map-backed environment.
type Env interface {
	Get(name string) (any, bool)
	Set(name string, val any)
	Keys() []string
}

// Registry dispatches a TALES payload (everything after an optional
// "prefix:") to the compiler registered for that prefix. The zero
// Registry is not usable; use NewRegistry.
type Registry struct {
	compilers     map[string]func(payload string, r *Registry) (*Program, error)
	resolver      Resolver
	importer      Importer
	defaultPrefix string
}

// SetDefaultPrefix changes which registered compiler handles a prefixless
// expression (the `default_expression` option, normally "python").
func (r *Registry) SetDefaultPrefix(prefix string) {
	if prefix != "" {
		r.defaultPrefix = prefix
	}
}

// Resolver loads another template by path, used by load:. Kept as an
// interface so this package has no dependency on the root Template
// type (which depends on tales to compile its own expressions —
// importing it here would cycle).
type Resolver interface {
	Resolve(path string) (any, error)
}

// Importer resolves a dotted name against a registered namespace of Go
// values, the Go-idiomatic substitute for Python's import system
// (design note 9).
type Importer interface {
	Import(dottedName string) (any, error)
}

func NewRegistry(resolver Resolver, importer Importer) *Registry {
	r := &Registry{resolver: resolver, importer: importer, defaultPrefix: "python"}
	r.compilers = map[string]func(string, *Registry) (*Program, error){
		"python":    compilePython,
		"string":    compileString,
		"exists":    compileExists,
		"not":       compileNot,
		"import":    compileImport,
		"load":      compileLoad,
		"structure": compileStructure,
	}
	return r
}

// splitPrefix separates an optional "prefix:" from the payload. Absent a
// recognized prefix, the whole string is payload and the prefix is the
// registry's default, normally "python" (spec §4.D).
func (r *Registry) splitPrefix(expr string) (prefix, payload string) {
	idx := strings.IndexByte(expr, ':')
	if idx < 0 {
		return r.defaultPrefix, expr
	}
	candidate := expr[:idx]
	if !isIdent(candidate) {
		return r.defaultPrefix, expr
	}
	return candidate, expr[idx+1:]
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || (i > 0 && '0' <= r && r <= '9') {
			continue
		}
		return false
	}
	return true
}

// Compile compiles one TALES expression string, handling the top-level
// pipe (|) fallback chain: each candidate is compiled independently and
// wrapped so the runtime can try them in order. Expression source is
// entity-decoded first (the fixed amp/lt/gt/quot set, spec §4.H), so
// `a &lt; b` written in a text interpolation compiles as `a < b`.
func (r *Registry) Compile(expr string, rg loc.Range) (*Program, error) {
	expr = decodeEntities(expr)
	candidates := splitPipes(expr)
	if len(candidates) == 1 {
		return r.compileOne(candidates[0], rg)
	}
	progs := make([]*Program, 0, len(candidates))
	for _, c := range candidates {
		p, err := r.compileOne(c, rg)
		if err != nil {
			return nil, err
		}
		progs = append(progs, p)
	}
	return &Program{Source: expr, Range: rg, kind: kindFallbackChain, chain: progs}, nil
}

func (r *Registry) compileOne(expr string, rg loc.Range) (*Program, error) {
	prefix, payload := r.splitPrefix(strings.TrimSpace(expr))
	compile, ok := r.compilers[prefix]
	if !ok {
		return nil, &loc.ErrorWithRange{
			Code:  loc.ERROR_UNKNOWN_EXPRESSION_TYPE,
			Text:  fmt.Sprintf("unknown expression type %q", prefix),
			Range: rg,
		}
	}
	p, err := compile(payload, r)
	if err != nil {
		if rangedErr, ok := err.(*loc.ErrorWithRange); ok {
			return nil, rangedErr
		}
		return nil, &loc.ErrorWithRange{Code: loc.ERROR_UNKNOWN_EXPRESSION_TYPE, Text: err.Error(), Range: rg}
	}
	p.Range = rg
	p.Source = expr
	return p, nil
}

const kindFallbackChain progKind = 100

// Eval runs a compiled Program against env, implementing the pipe
// fallback's catch-and-continue semantics: AttributeError, LookupError,
// TypeError, NameError and render errors from an earlier candidate are
// swallowed and the next candidate is tried (spec §4.D).
func (p *Program) Eval(env Env) (any, error) {
	switch p.kind {
	case kindFallbackChain:
		var lastErr error
		for _, c := range p.chain {
			v, err := c.Eval(env)
			if err == nil {
				return v, nil
			}
			lastErr = err
			if !isRecoverableEvalError(err) {
				return nil, err
			}
		}
		return nil, lastErr
	case kindVM:
		// A free identifier the scope doesn't bind is a name error — a
		// member of the recoverable set, checked up front so the
		// fallback semantics don't depend on how the VM models a
		// missing environment entry.
		for _, name := range p.idents {
			if _, ok := env.Get(name); !ok {
				return nil, &ExprError{Source: p.Source, Range: p.Range,
					Err: Recoverable(fmt.Errorf("name %q is not defined", name))}
			}
		}
		v, err := runVM(p.vmProgram, env)
		if err != nil {
			return nil, &ExprError{Source: p.Source, Range: p.Range, Err: err}
		}
		return v, nil
	case kindString:
		return p.str.eval(env)
	case kindNot:
		v, err := p.inner.Eval(env)
		if err != nil {
			if isRecoverableEvalError(err) {
				return false, nil
			}
			return nil, err
		}
		return !runtime.Truthy(v), nil
	case kindExists:
		_, err := p.inner.Eval(env)
		if err != nil && !isRecoverableEvalError(err) {
			return nil, err
		}
		return err == nil, nil
	case kindStructure:
		v, err := p.inner.Eval(env)
		if err != nil {
			return nil, err
		}
		return runtime.Markup(runtime.Stringify(v)), nil
	case kindImport:
		return p.inner.Eval(env)
	case kindLoad:
		return p.inner.Eval(env)
	case kindImportLeaf:
		v, err := p.importer.Import(p.importName)
		if err != nil {
			return nil, Recoverable(err)
		}
		return v, nil
	case kindLoadLeaf:
		v, err := p.resolver.Resolve(p.loadPath)
		if err != nil {
			return nil, Recoverable(err)
		}
		return v, nil
	case kindDefaultLiteral:
		return runtime.Default, nil
	}
	return nil, fmt.Errorf("tales: program with unset kind")
}

func loc0() loc.Range { return loc.Range{} }

// exprEntities is the fixed decode set applied to expression source
// before compilation, matching the tokenizer's table (spec §9 pins it to
// exactly these four names).
var exprEntities = [...][2]string{
	{"&lt;", "<"},
	{"&gt;", ">"},
	{"&quot;", "\""},
	{"&amp;", "&"}, // last, so "&amp;lt;" decodes to "&lt;" not "<"
}

func decodeEntities(s string) string {
	if !strings.ContainsRune(s, '&') {
		return s
	}
	for _, pair := range exprEntities {
		s = strings.ReplaceAll(s, pair[0], pair[1])
	}
	return s
}

func stringifyAny(v any) string {
	return fmt.Sprintf("%v", v)
}

// ExprError attaches the failing expression's literal source slice to an
// evaluation error, so the driver can report the template location and a
// caret excerpt (spec §7). Recoverability is a property of the wrapped
// error, checked through Unwrap, so wrapping never hides a catchable
// failure from the pipe fallback.
type ExprError struct {
	Source string
	Range  loc.Range
	Err    error
}

func (e *ExprError) Error() string {
	return fmt.Sprintf("error evaluating %q: %v", e.Source, e.Err)
}

func (e *ExprError) Unwrap() error { return e.Err }

// evalError marks an error as one of the four TALES-recoverable
// exception classes (AttributeError/LookupError/TypeError/NameError),
// or a downstream render error, so the pipe fallback and exists:/not:
// know to catch it rather than propagate it.
type evalError struct {
	inner error
}

func (e *evalError) Error() string { return e.inner.Error() }
func (e *evalError) Unwrap() error { return e.inner }

func isRecoverableEvalError(err error) bool {
	var ee *evalError
	return errors.As(err, &ee)
}

// Recoverable wraps err as a TALES-recoverable evaluation failure, used
// by attribute/item lookup helpers and by the runtime's name resolution.
func Recoverable(err error) error {
	if err == nil {
		return nil
	}
	return &evalError{inner: err}
}

// exprConfig builds the expr-lang/expr compiler config shared by every
// python:-backed Program: no static type checking (TALES has no type
// system to check against, unlike CHTML's Shape layer) and the talAttr
// function registered so the attribute-fallback patch can call it.
func exprConfig() *conf.Config {
	c := conf.CreateNew()
	opts := []expr.Option{
		expr.Function("talAttr", func(params ...any) (any, error) {
			if len(params) != 2 {
				return nil, fmt.Errorf("talAttr: expected 2 arguments")
			}
			name, _ := params[1].(string)
			return talAttr(params[0], name)
		}),
		expr.Function("talAttrCall", func(params ...any) (any, error) {
			if len(params) < 2 {
				return nil, fmt.Errorf("talAttrCall: expected at least 2 arguments")
			}
			name, _ := params[1].(string)
			return callMethod(params[0], name, params[2:])
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// talAttr performs TALES's attribute-then-item fallback lookup: try a Go
// struct field or method by reflection first, then fall back to a
// map/index access, re-raising the original error if neither exists.
// Registered as a builtin function and patched into every MemberNode so
// default/python: expressions resolve identifiers through a Scope-backed
// Env rather than a static Go type.
func talAttr(obj any, name string) (any, error) {
	if env, ok := obj.(Env); ok {
		if v, ok := env.Get(name); ok {
			return v, nil
		}
		return nil, Recoverable(fmt.Errorf("name %q is not defined", name))
	}
	if m, ok := obj.(map[string]any); ok {
		if v, ok := m[name]; ok {
			return v, nil
		}
		return nil, Recoverable(fmt.Errorf("key %q not found", name))
	}
	// Repeat records resolve through their explicit accessor table:
	// letter/Letter and roman/Roman are distinct casings that
	// case-insensitive method reflection would collapse into one.
	if rep, ok := obj.(*runtime.Repeat); ok {
		if v, ok := rep.Attr(name); ok {
			return v, nil
		}
		return nil, Recoverable(fmt.Errorf("repeat record has no attribute %q", name))
	}
	return reflectAttr(obj, name)
}

// compilePython special-cases the bare "default" keyword (spec §4.F's
// default-sentinel propagation): used without a prefix, it compiles to a
// constant evaluating to runtime.Default rather than being parsed as a
// Python expression (an identifier named "default" would otherwise just
// be an undefined name lookup).
func compilePython(payload string, r *Registry) (*Program, error) {
	if strings.TrimSpace(payload) == "default" {
		return &Program{kind: kindDefaultLiteral}, nil
	}
	tree, err := parser.Parse(payload)
	if err != nil {
		return nil, err
	}
	idents := collectIdents(&tree.Node)
	patchAttrFallback(&tree.Node)
	program, err := compiler.Compile(tree, exprConfig())
	if err != nil {
		return nil, err
	}
	return &Program{vmProgram: program, kind: kindVM, idents: idents}, nil
}

// collectIdents gathers the expression's free identifiers before the
// attribute-fallback patch rewrites member bases, so the evaluator can
// enforce name-error semantics independently of the VM's own handling
// of a missing environment entry.
func collectIdents(node *ast.Node) []string {
	c := &identCollector{seen: map[string]bool{}}
	ast.Walk(node, c)
	return c.names
}

type identCollector struct {
	seen  map[string]bool
	names []string
}

func (c *identCollector) Visit(node *ast.Node) {
	if id, ok := (*node).(*ast.IdentifierNode); ok {
		if !c.seen[id.Value] {
			c.seen[id.Value] = true
			c.names = append(c.names, id.Value)
		}
	}
}

// patchAttrFallback rewrites every ast.MemberNode into a call to
// talAttr, the pattern grounded on chtml/expr.go's transformCastShapes
// AST-patch approach (there for static Shape casts; here for dynamic
// attribute-then-item fallback).
func patchAttrFallback(node *ast.Node) {
	ast.Walk(node, &attrPatcher{})
}

type attrPatcher struct{}

func (p *attrPatcher) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.MemberNode:
		// Dot access (and ["literal"] access) parses to a StringNode
		// property; a dynamic index like xs[i] is an IdentifierNode and
		// is left to the VM's own indexing.
		if prop, ok := n.Property.(*ast.StringNode); ok {
			ast.Patch(node, &ast.CallNode{
				Callee:    &ast.IdentifierNode{Value: "talAttr"},
				Arguments: []ast.Node{n.Node, &ast.StringNode{Value: prop.Value}},
			})
		}
	case *ast.CallNode:
		// The walk is bottom-up, so a method call's callee has already
		// been rewritten into talAttr(obj, name); fold the call into
		// talAttrCall so the method is invoked with its arguments
		// instead of being invoked bare at access time.
		inner, ok := n.Callee.(*ast.CallNode)
		if !ok {
			return
		}
		id, ok := inner.Callee.(*ast.IdentifierNode)
		if !ok || id.Value != "talAttr" {
			return
		}
		args := make([]ast.Node, 0, 2+len(n.Arguments))
		args = append(args, inner.Arguments[0], inner.Arguments[1])
		args = append(args, n.Arguments...)
		ast.Patch(node, &ast.CallNode{
			Callee:    &ast.IdentifierNode{Value: "talAttrCall"},
			Arguments: args,
		})
	}
}

// runVM flattens env into the map[string]any expr-lang/expr's VM expects
// as a running environment, so a bare identifier like "name" resolves to
// whatever the Scope currently binds it to. Attribute/item access below
// a bare name goes through talAttr (see patchAttrFallback) instead of the
// VM's own struct-field reflection.
func runVM(program *vm.Program, env Env) (any, error) {
	m := make(map[string]any, len(env.Keys()))
	for _, k := range env.Keys() {
		if v, ok := env.Get(k); ok {
			m[k] = v
		}
	}
	v, err := vm.Run(program, m)
	if err != nil {
		return nil, Recoverable(err)
	}
	return v, nil
}

func compileString(payload string, r *Registry) (*Program, error) {
	sp, err := parseStringExpr(payload, r)
	if err != nil {
		return nil, err
	}
	return &Program{str: sp, kind: kindString}, nil
}

func compileNot(payload string, r *Registry) (*Program, error) {
	inner, err := r.compileOne(payload, loc.Range{})
	if err != nil {
		return nil, err
	}
	return &Program{inner: inner, kind: kindNot}, nil
}

func compileExists(payload string, r *Registry) (*Program, error) {
	inner, err := r.compileOne(payload, loc.Range{})
	if err != nil {
		return nil, err
	}
	return &Program{inner: inner, kind: kindExists}, nil
}

func compileStructure(payload string, r *Registry) (*Program, error) {
	inner, err := r.compileOne(payload, loc.Range{})
	if err != nil {
		return nil, err
	}
	return &Program{inner: inner, kind: kindStructure}, nil
}

func compileImport(payload string, r *Registry) (*Program, error) {
	name := strings.TrimSpace(payload)
	return &Program{
		inner: &Program{kind: kindImportLeaf, importName: name, importer: r.importer},
		kind:  kindImport,
	}, nil
}

func compileLoad(payload string, r *Registry) (*Program, error) {
	path := strings.TrimSpace(payload)
	return &Program{
		inner: &Program{kind: kindLoadLeaf, loadPath: path, resolver: r.resolver},
		kind:  kindLoad,
	}, nil
}

const (
	kindImportLeaf     progKind = 101
	kindLoadLeaf       progKind = 102
	kindDefaultLiteral progKind = 103
)
