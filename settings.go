// Package talc is a template compiler for an attribute-oriented markup
// template language in the Zope Page Templates lineage: TAL control
// attributes, TALES expressions, METAL macros/slots and I18N translation
// annotations, compiled from well-formed XML/permissive HTML into an
// executable render program.
//
// The pipeline lives under internal/: tokenizer and markup parser
// (internal), namespace filter and statement binder (internal/bind),
// TALES expression registry (internal/tales), interpolation lowerer
// (internal/interpolate), semantic/ordering pass (internal/semantic),
// code generator (internal/codegen) and render-time support library
// (internal/runtime). This package is the template driver: it owns the
// uncooked-to-cooked lifecycle, the disk cache, auto-reload, and the
// public Render/Macros surface.
package talc

import (
	"sort"
	"strings"

	"github.com/talweave/talc/internal/envconfig"
)

// TranslateFunc is the translation callable a render accepts: given the
// message's domain, context, id, default text and named-substructure
// mapping, it returns the translated text. A nil TranslateFunc leaves
// i18n:translate to substitute the mapping into the default text.
type TranslateFunc func(domain, context, msgID, defaultText string, mapping map[string]string) string

// Settings carries every configuration option the engine accepts. The
// zero value plus DefaultSettings' environment layer is a working
// configuration; tests and embedders override individual fields.
type Settings struct {
	// AutoReload re-cooks a file-backed template when the file's
	// metadata digest changes between renders.
	AutoReload bool
	// Debug keeps richer diagnostics and captures render stacks; it also
	// implies eager cooking.
	Debug bool
	// Eager cooks at construction time instead of on first render.
	Eager bool
	// Strict makes unknown expression types, unknown control-namespace
	// attributes and reserved-name defines compile-time errors.
	Strict bool
	// Encoding forces the byte-input decoding; empty means negotiate
	// from the XML declaration, else UTF-8 with replacement.
	Encoding string
	// BooleanAttributes is the set of attribute names rendered in
	// name="name"/absent boolean form. Nil means DefaultBooleanAttributes.
	BooleanAttributes map[string]bool
	// ImplicitI18NTranslate translates unmarked text by default.
	ImplicitI18NTranslate bool
	// ImplicitI18NAttributes names attributes translated by default.
	ImplicitI18NAttributes map[string]bool
	// TrimAttributeSpace collapses attribute whitespace runs to a single
	// space.
	TrimAttributeSpace bool
	// EnableDataAttributes accepts HTML5 data-tal-* control attributes.
	EnableDataAttributes bool
	// EnableCommentInterpolation evaluates ${...} inside comments.
	EnableCommentInterpolation bool
	// RestrictedNamespace rejects namespace prefixes outside the
	// recognised set.
	RestrictedNamespace bool
	// ValidateStructure checks structure insertions for well-formedness
	// at render time; populated from TALC_VALIDATE_STRUCTURE.
	ValidateStructure bool
	// ExtraBuiltins adds names to the builtin scope layer.
	ExtraBuiltins map[string]any
	// Modules is the namespace import: expressions resolve dotted paths
	// against, the engine's substitute for a host import system.
	Modules map[string]any
	// SearchPath lists the roots load: expressions and NewFile resolve
	// relative template paths against, tried in order after the current
	// template's own directory.
	SearchPath []string
	// DefaultExpression is the TALES prefix applied to prefixless
	// expressions; empty means "python".
	DefaultExpression string
	// Translate supplies the default translation callable; the
	// per-render argument overrides it.
	Translate TranslateFunc
	// OnErrorHandler is invoked with the original error whenever
	// tal:on-error substitutes an element.
	OnErrorHandler func(error)
	// CacheDir, when non-empty, enables the shared disk cache of bound
	// parse artifacts under that directory.
	CacheDir string
}

// DefaultBooleanAttributes is the HTML boolean-attribute set used when
// Settings.BooleanAttributes is nil.
var DefaultBooleanAttributes = map[string]bool{
	"autofocus": true, "autoplay": true, "checked": true, "controls": true,
	"default": true, "defer": true, "disabled": true, "formnovalidate": true,
	"hidden": true, "ismap": true, "loop": true, "multiple": true,
	"muted": true, "novalidate": true, "open": true, "readonly": true,
	"required": true, "reversed": true, "selected": true,
}

// DefaultSettings returns Settings populated from the environment layer
// (TALC_DEBUG, TALC_EAGER, TALC_CACHE_DIR, TALC_RELOAD,
// TALC_VALIDATE_STRUCTURE), the process-wide defaults every Template
// starts from when constructed with a nil *Settings.
func DefaultSettings() Settings {
	env := envconfig.Load()
	return Settings{
		Debug:                      env.Debug,
		Eager:                      env.Eager || env.Debug,
		AutoReload:                 env.AutoReload,
		ValidateStructure:          env.ValidateStructure,
		CacheDir:                   env.CacheDir,
		EnableCommentInterpolation: true,
	}
}

func (s *Settings) booleanAttributes() map[string]bool {
	if s.BooleanAttributes != nil {
		return s.BooleanAttributes
	}
	return DefaultBooleanAttributes
}

// digest serialises every field that affects code generation into a
// stable byte string, the settings component of the disk-cache key
// (spec §5): two processes with different generation-relevant settings
// must never share a cached artifact.
func (s *Settings) digest() []byte {
	var b []byte
	flag := func(name string, v bool) {
		b = append(b, name...)
		if v {
			b = append(b, "=1;"...)
		} else {
			b = append(b, "=0;"...)
		}
	}
	flag("strict", s.Strict)
	flag("debug", s.Debug)
	flag("trim", s.TrimAttributeSpace)
	flag("data-attrs", s.EnableDataAttributes)
	flag("comment-interp", s.EnableCommentInterpolation)
	flag("restricted-ns", s.RestrictedNamespace)
	flag("implicit-i18n", s.ImplicitI18NTranslate)
	b = append(b, "bool-attrs="...)
	b = append(b, sortedNames(s.booleanAttributes())...)
	b = append(b, ";implicit-i18n-attrs="...)
	b = append(b, sortedNames(s.ImplicitI18NAttributes)...)
	b = append(b, ";default-expr="...)
	b = append(b, s.DefaultExpression...)
	b = append(b, ';')
	return b
}

func sortedNames(set map[string]bool) string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
