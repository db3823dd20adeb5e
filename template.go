package talc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"

	markup "github.com/talweave/talc/internal"
	"github.com/talweave/talc/internal/cache"
	"github.com/talweave/talc/internal/codegen"
	"github.com/talweave/talc/internal/handler"
	"github.com/talweave/talc/internal/ir"
	"github.com/talweave/talc/internal/loc"
	"github.com/talweave/talc/internal/runtime"
	"github.com/talweave/talc/internal/semantic"
	"github.com/talweave/talc/internal/tales"
)

// CompiledTemplate is the callable surface a cooked template or one of
// its named macros exposes: render with a variable mapping, an optional
// translation callable, and optional keyword-argument layers (later
// layers shadow earlier ones and the built-in names, but never persist
// across macro invocations).
type CompiledTemplate interface {
	Render(vars map[string]any, translate TranslateFunc, kwargs ...map[string]any) (string, error)
}

// Template is the driver for one template source (a string or a file).
// It cooks lazily on first render unless Settings.Eager or Debug is set;
// the uncooked-to-cooked transition is exclusive (one compile per
// template, concurrent first-renders serialise on it) and subsequent
// renders are lock-free reads of the installed artifact, except with
// Settings.AutoReload, where every render takes the lock to compare the
// file's signature.
type Template struct {
	settings Settings
	path     string // file-backed templates; "" for string sources
	source   []byte // string sources; nil for file-backed

	mu       sync.Mutex
	artifact atomic.Pointer[artifact]
	cookErr  error
	diskSig  string // file metadata signature at last cook, for auto-reload
	cache    *cache.Cache
}

// artifact is one cooked compile result, immutable once installed.
type artifact struct {
	program *codegen.Program
	handler *handler.Handler
	irTmpl  *ir.Template
}

// New builds a Template from an in-memory source string. A nil settings
// uses DefaultSettings (the environment layer).
func New(source string, settings *Settings) (*Template, error) {
	t := newTemplate(settings)
	t.source = []byte(source)
	return t.finishConstruct()
}

// NewFile builds a Template backed by a file path. The path is resolved
// against Settings.SearchPath if not found directly.
func NewFile(path string, settings *Settings) (*Template, error) {
	t := newTemplate(settings)
	resolved, err := resolveSearchPath(path, "", t.settings.SearchPath)
	if err != nil {
		return nil, err
	}
	t.path = resolved
	return t.finishConstruct()
}

func newTemplate(settings *Settings) *Template {
	s := DefaultSettings()
	if settings != nil {
		s = *settings
	}
	return &Template{settings: s}
}

func (t *Template) finishConstruct() (*Template, error) {
	if t.settings.CacheDir != "" {
		c, err := cache.New(t.settings.CacheDir)
		if err != nil {
			return nil, fmt.Errorf("talc: opening cache dir: %w", err)
		}
		t.cache = c
	}
	if t.settings.Eager || t.settings.Debug {
		if _, err := t.cooked(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Filename returns the display name used in diagnostics.
func (t *Template) Filename() string {
	if t.path != "" {
		return t.path
	}
	return "<string>"
}

// Render cooks if necessary and renders with vars as the scope mapping,
// translate as the per-call translation callable, and kwargs as extra
// keyword-argument layers (spec §6's compiled-template interface).
func (t *Template) Render(vars map[string]any, translate TranslateFunc, kwargs ...map[string]any) (string, error) {
	a, err := t.cooked()
	if err != nil {
		return "", err
	}
	var b strings.Builder
	if err := a.program.Render(&b, mergeArgs(vars, kwargs), translatorFor(translate)); err != nil {
		return "", t.decorateRenderError(a, err)
	}
	return b.String(), nil
}

// Macro is a named render entry of a cooked template.
type Macro struct {
	name string
	tmpl *Template
	prog *codegen.Program
}

// Name returns the macro's metal:define-macro name.
func (m *Macro) Name() string { return m.name }

// MacroRef identifies this macro to a use-macro expression that
// resolved to it at render time.
func (m *Macro) MacroRef() codegen.MacroRef {
	return codegen.MacroRef{Program: m.prog, Name: m.name}
}

// Render renders just this macro's subtree, same signature as a whole
// template.
func (m *Macro) Render(vars map[string]any, translate TranslateFunc, kwargs ...map[string]any) (string, error) {
	var b strings.Builder
	if err := m.prog.RenderMacro(&b, m.name, mergeArgs(vars, kwargs), translatorFor(translate)); err != nil {
		a := m.tmpl.artifact.Load()
		return "", m.tmpl.decorateRenderError(a, err)
	}
	return b.String(), nil
}

// Macros returns every named macro the template defines, cooking first
// if necessary. The map is freshly built per call and safe to mutate.
func (t *Template) Macros() (map[string]*Macro, error) {
	a, err := t.cooked()
	if err != nil {
		return nil, err
	}
	out := map[string]*Macro{}
	for _, name := range a.program.MacroNames() {
		out[name] = &Macro{name: name, tmpl: t, prog: a.program}
	}
	return out, nil
}

// MacroRef lets the template itself stand as a macro source: a
// metal:use-macro expression that resolved to a whole loaded template
// (load: other.pt) renders that template's document in place of the
// calling element, with the caller's fill-slot subtrees spliced into
// any define-slot it contains.
func (t *Template) MacroRef() codegen.MacroRef {
	a, err := t.cooked()
	if err != nil {
		return codegen.MacroRef{}
	}
	return codegen.MacroRef{Program: a.program}
}

// Diagnostics returns the warnings and errors collected while cooking;
// empty until the template has been cooked.
func (t *Template) Diagnostics() []loc.DiagnosticMessage {
	a := t.artifact.Load()
	if a == nil {
		return nil
	}
	return a.handler.Diagnostics()
}

// cooked returns the installed artifact, cooking under the lock when the
// template is uncooked or (with AutoReload) the backing file changed.
func (t *Template) cooked() (*artifact, error) {
	if a := t.artifact.Load(); a != nil && !t.settings.AutoReload {
		return a, nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if a := t.artifact.Load(); a != nil {
		if !t.settings.AutoReload || t.diskSig == t.fileSignature() {
			return a, nil
		}
	} else if t.cookErr != nil && (!t.settings.AutoReload || t.diskSig == t.fileSignature()) {
		return nil, t.cookErr
	}
	a, err := t.cook()
	t.diskSig = t.fileSignature()
	if err != nil {
		t.cookErr = err
		return nil, err
	}
	t.cookErr = nil
	t.artifact.Store(a)
	return a, nil
}

// fileSignature is the cheap reload probe: size plus mtime, empty for
// string-backed templates (which never reload).
func (t *Template) fileSignature() string {
	if t.path == "" {
		return ""
	}
	info, err := os.Stat(t.path)
	if err != nil {
		return "missing"
	}
	return fmt.Sprintf("%d-%d", info.Size(), info.ModTime().UnixNano())
}

func (t *Template) readSource() ([]byte, error) {
	if t.path == "" {
		return t.source, nil
	}
	return os.ReadFile(t.path)
}

// cook runs the whole compile pipeline: read, decode, tokenize+parse,
// bind (possibly via the disk cache), semantic compile, code generation.
func (t *Template) cook() (*artifact, error) {
	src, err := t.readSource()
	if err != nil {
		return nil, fmt.Errorf("talc: reading template source: %w", err)
	}
	text := decodeSource(src, t.settings.Encoding)
	h := handler.NewHandler(text, t.Filename())

	doc, err := t.boundTree(src, text, h)
	if err != nil {
		return nil, err
	}
	if t.settings.RestrictedNamespace {
		checkRestrictedNamespaces(doc, h)
	}
	if h.HasErrors() {
		return nil, &CompileError{Filename: t.Filename(), Messages: h.Errors()}
	}

	registry := tales.NewRegistry(&templateResolver{t: t}, &moduleImporter{modules: t.settings.Modules})
	registry.SetDefaultPrefix(t.settings.DefaultExpression)

	tmpl, err := semantic.Compile(doc, registry, semantic.Options{
		Strict:                     t.settings.Strict,
		EnableCommentInterpolation: t.settings.EnableCommentInterpolation,
		BooleanAttributes:          t.settings.booleanAttributes(),
		ImplicitI18NAttributes:     t.settings.ImplicitI18NAttributes,
	}, h)
	if err != nil {
		return nil, t.decorateCompileError(h, err)
	}
	if h.HasErrors() {
		return nil, &CompileError{Filename: t.Filename(), Messages: h.Errors()}
	}

	program := codegen.Build(tmpl, codegen.Settings{
		BooleanAttributes:      t.settings.booleanAttributes(),
		ImplicitI18NTranslate:  t.settings.ImplicitI18NTranslate,
		ImplicitI18NAttributes: t.settings.ImplicitI18NAttributes,
		TrimAttributeSpace:     t.settings.TrimAttributeSpace,
		ValidateStructure:      t.settings.ValidateStructure,
		ExtraBuiltins:          t.settings.ExtraBuiltins,
		Translator:             translatorFor(t.settings.Translate),
		OnErrorHandler:         t.settings.OnErrorHandler,
		Debug:                  t.settings.Debug,
	})
	return &artifact{program: program, handler: h, irTmpl: tmpl}, nil
}

// DumpAST serialises the cooked template's compiled tree as indented
// JSON, for tooling and the CLI's `ast` mode.
func (t *Template) DumpAST() ([]byte, error) {
	a, err := t.cooked()
	if err != nil {
		return nil, err
	}
	return codegen.DumpJSON(a.irTmpl)
}

// boundTree parses and namespace-binds the source, going through the
// disk cache when one is configured: the cached artifact is the bound
// tree (the markup-side work), keyed by source digest, settings digest
// and the host runtime's module-set digest (spec §5/§6).
func (t *Template) boundTree(src []byte, text string, h *handler.Handler) (*markup.Node, error) {
	var key string
	if t.cache != nil {
		key = cache.Digest(src, t.settings.digest(), hostRuntimeDigest())
		if data, ok, err := t.cache.Load(key); err == nil && ok {
			if doc, err := markup.DecodeNode(data); err == nil {
				return doc, nil
			}
			// A corrupt or stale entry is just a miss.
		}
	}
	doc, err := markup.Parse(strings.NewReader(text), h)
	if err != nil {
		return nil, err
	}
	markup.BindStatements(doc, markup.BindOptions{
		Strict:               t.settings.Strict,
		EnableDataAttributes: t.settings.EnableDataAttributes,
	}, h)
	if t.cache != nil && !h.HasErrors() {
		if data, err := markup.EncodeNode(doc); err == nil {
			_ = t.cache.Store(key, data) // cache failures never fail a cook
		}
	}
	return doc, nil
}

// hostRuntimeDigest folds the build's module set into the cache key so a
// rebuilt binary with different dependency versions never reads an old
// process's cached artifacts.
func hostRuntimeDigest() []byte {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return []byte("unknown")
	}
	var b strings.Builder
	b.WriteString(info.GoVersion)
	b.WriteByte(';')
	b.WriteString(info.Main.Path)
	b.WriteByte('@')
	b.WriteString(info.Main.Version)
	for _, dep := range info.Deps {
		b.WriteByte(';')
		b.WriteString(dep.Path)
		b.WriteByte('@')
		b.WriteString(dep.Version)
	}
	return []byte(b.String())
}

// recognisedPrefixes are the namespace prefixes RestrictedNamespace
// accepts on passthrough attributes.
var recognisedPrefixes = map[string]bool{
	"": true, "tal": true, "metal": true, "i18n": true, "meta": true,
	"xml": true, "xmlns": true, "xlink": true,
}

func checkRestrictedNamespaces(doc *markup.Node, h *handler.Handler) {
	markup.Walk(doc, func(n *markup.Node) bool {
		for _, a := range n.Attr {
			if !recognisedPrefixes[a.Namespace] {
				h.AppendError(&loc.ErrorWithRange{
					Code:  loc.ERROR_UNKNOWN_NAMESPACE,
					Text:  fmt.Sprintf("attribute namespace %q is outside the recognised set", a.Namespace),
					Range: loc.Range{Loc: a.KeyLoc, Len: len(a.Namespace) + 1 + len(a.Key)},
				})
			}
		}
		return true
	})
}

// decorateCompileError resolves a loc-ranged compile error into a
// CompileError carrying the resolved file position: the ranged error is
// fed through the handler so its byte offset becomes a line/column.
func (t *Template) decorateCompileError(h *handler.Handler, err error) error {
	var ranged *loc.ErrorWithRange
	if errors.As(err, &ranged) {
		h.AppendError(ranged)
		return &CompileError{Filename: t.Filename(), Messages: h.Errors()}
	}
	return err
}

// decorateRenderError fills template/position/excerpt fields into a
// RenderError using the cook-time handler's line table, so a render
// failure reports the failing expression's literal source with a caret.
func (t *Template) decorateRenderError(a *artifact, err error) error {
	var re *runtime.RenderError
	if !errors.As(err, &re) {
		re = &runtime.RenderError{Err: err}
		err = re
	}
	re.Template = truncateName(t.Filename(), 64)
	var ee *tales.ExprError
	if a != nil && errors.As(err, &ee) {
		line, col := a.handler.GetLineAndColumnForLocation(ee.Range.Loc)
		re.Line = line
		re.Column = col
		re.Length = ee.Range.Len
		excerpt, caret := a.handler.Excerpt(ee.Range.Loc, 80)
		re.WithExcerpt(excerpt, caret)
	}
	return err
}

// truncateName bounds a filename to the display width spec §7 requires,
// keeping the tail (the basename end is the informative part).
func truncateName(name string, width int) string {
	if len(name) <= width {
		return name
	}
	return "..." + name[len(name)-width+3:]
}

func mergeArgs(vars map[string]any, kwargs []map[string]any) map[string]any {
	out := make(map[string]any, len(vars))
	for k, v := range vars {
		out[k] = v
	}
	for _, kw := range kwargs {
		for k, v := range kw {
			out[k] = v
		}
	}
	return out
}

func translatorFor(fn TranslateFunc) runtime.Translator {
	if fn == nil {
		return nil
	}
	return runtime.TranslatorFromFunc(runtime.TranslateFunc(fn))
}

// templateResolver implements tales.Resolver for load: expressions:
// paths resolve relative to the referring template's directory, then
// the search path, and the loaded template cooks immediately so a bad
// load: reference fails the referring render rather than a later macro
// call.
type templateResolver struct {
	t *Template
}

func (r *templateResolver) Resolve(path string) (any, error) {
	base := ""
	if r.t.path != "" {
		base = filepath.Dir(r.t.path)
	}
	full, err := resolveSearchPath(path, base, r.t.settings.SearchPath)
	if err != nil {
		return nil, err
	}
	sub, err := NewFile(full, &r.t.settings)
	if err != nil {
		return nil, err
	}
	if _, err := sub.cooked(); err != nil {
		return nil, err
	}
	return sub, nil
}

func resolveSearchPath(path, base string, search []string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	roots := make([]string, 0, len(search)+2)
	if base != "" {
		roots = append(roots, base)
	}
	roots = append(roots, search...)
	roots = append(roots, ".")
	for _, root := range roots {
		candidate := filepath.Join(root, path)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("talc: template %q not found in search path", path)
}

// moduleImporter implements tales.Importer over the configured Modules
// namespace: dotted paths descend through nested map[string]any values,
// the engine's substitute for a host-language import system.
type moduleImporter struct {
	modules map[string]any
}

func (i *moduleImporter) Import(dotted string) (any, error) {
	if i.modules == nil {
		return nil, fmt.Errorf("no module namespace configured for import of %q", dotted)
	}
	segments := strings.Split(dotted, ".")
	var cur any = i.modules
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("cannot import %q: %q is not a namespace", dotted, seg)
		}
		cur, ok = m[seg]
		if !ok {
			return nil, fmt.Errorf("cannot import %q: %q not found", dotted, seg)
		}
	}
	return cur, nil
}
