// Package bind implements the namespace filter and statement binder
// (spec component C): it recognizes the TAL/METAL/I18N/META control
// namespaces (and the short-form "tal"/"metal"/"i18n"/"meta" prefixes
// used without a declared xmlns, Chameleon-style), splits each
// recognized attribute's payload into one or more typed Statement
// values, and reports unknown control-namespace attributes in strict
// mode.
//
// Structurally grounded on the teacher compiler's transform.walk visitor
// (internal/transform/transform.go), applied here as a pre-pass instead
// of a post-pass: every attribute on an element is visited once and
// either recognized (becomes a Statement) or passed through.
package bind

import (
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/talweave/talc/internal/loc"
)

// Canonical namespace URIs, spec §6.
const (
	NamespaceTAL   = "http://xml.zope.org/namespaces/tal"
	NamespaceMETAL = "http://xml.zope.org/namespaces/metal"
	NamespaceI18N  = "http://xml.zope.org/namespaces/i18n"
	NamespaceMETA  = "http://xml.zope.org/namespaces/meta"
)

// shortPrefixNamespace maps the Chameleon-compatible short prefixes
// (used without a declared xmlns binding) directly to their canonical
// namespace, since most real-world templates never bother declaring the
// xml namespaces at all.
var shortPrefixNamespace = map[string]string{
	"tal":   NamespaceTAL,
	"metal": NamespaceMETAL,
	"i18n":  NamespaceI18N,
	"meta":  NamespaceMETA,
}

// Kind identifies which control attribute a Statement came from.
type Kind int

const (
	Define Kind = iota
	Switch
	Condition
	Repeat
	Case
	Content
	Replace
	OmitTag
	Attributes
	OnError
	DefineMacro
	UseMacro
	ExtendMacro
	DefineSlot
	FillSlot
	I18NTranslate
	I18NDomain
	I18NSource
	I18NTarget
	I18NName
	I18NAttributes
	I18NData
	I18NContext
	MetaInterpolation
)

func (k Kind) String() string {
	switch k {
	case Define:
		return "define"
	case Switch:
		return "switch"
	case Condition:
		return "condition"
	case Repeat:
		return "repeat"
	case Case:
		return "case"
	case Content:
		return "content"
	case Replace:
		return "replace"
	case OmitTag:
		return "omit-tag"
	case Attributes:
		return "attributes"
	case OnError:
		return "on-error"
	case DefineMacro:
		return "define-macro"
	case UseMacro:
		return "use-macro"
	case ExtendMacro:
		return "extend-macro"
	case DefineSlot:
		return "define-slot"
	case FillSlot:
		return "fill-slot"
	case I18NTranslate:
		return "i18n-translate"
	case I18NDomain:
		return "i18n-domain"
	case I18NSource:
		return "i18n-source"
	case I18NTarget:
		return "i18n-target"
	case I18NName:
		return "i18n-name"
	case I18NAttributes:
		return "i18n-attributes"
	case I18NData:
		return "i18n-data"
	case I18NContext:
		return "i18n-context"
	case MetaInterpolation:
		return "meta-interpolation"
	}
	return "unknown"
}

// localNameKind maps a control attribute's (namespace-independent) local
// name to its Kind. TAL, METAL, I18N and meta local names live in one
// table; `attributes` maps to TAL's Attributes here, and resolveKind
// handles the I18N and meta namespaces with their own switches.
var localNameKind = map[string]Kind{
	"define":             Define,
	"switch":             Switch,
	"condition":          Condition,
	"repeat":             Repeat,
	"case":               Case,
	"content":            Content,
	"replace":            Replace,
	"omit-tag":           OmitTag,
	"attributes":         Attributes,
	"on-error":           OnError,
	"define-macro":       DefineMacro,
	"use-macro":          UseMacro,
	"extend-macro":       ExtendMacro,
	"define-slot":  DefineSlot,
	"fill-slot":    FillSlot,
	"translate":    I18NTranslate,
	"domain":       I18NDomain,
	"source":       I18NSource,
	"target":       I18NTarget,
	"name":         I18NName,
	"data":         I18NData,
	"context":      I18NContext,
	"interpolation": MetaInterpolation,
}

// Statement is a typed control attribute bound to an element, holding
// its expression payload(s) unparsed (component D parses them later).
// Expr2 is used only by the binary forms (on-error's fallback markup is
// carried separately; i18n:data takes a single expression so Expr2 is
// presently unused but kept for forms a future statement may need).
type Statement struct {
	Kind  Kind
	Expr  string
	Expr2 string
	Range loc.Range
}

// Attr is the subset of a parsed attribute that Bind needs. It exists so
// this package never has to import the tokenizer's Node/Attribute types
// (which would create an import cycle, since the tokenizer's Node in
// turn holds a []Statement).
type Attr struct {
	Namespace string
	Key       string
	Val       string
	KeyLoc    loc.Loc
	ValLoc    loc.Loc
	Quote     byte
	Unquoted  bool
	Empty     bool
}

// Settings controls how Bind recognizes control attributes.
type Settings struct {
	Strict                bool
	EnableDataAttributes  bool
}

// semicolonSplitter splits a ";"-separated statement payload while
// respecting the ";;" escape (a doubled semicolon is a literal one), a
// grammar RE2 cannot express directly (no lookaround), hence regexp2.
var semicolonSplitter = regexp2.MustCompile(`(?:[^;]|;;)+`, regexp2.None)

// SplitStatements splits a "tal:attributes"/"tal:define"-style
// semicolon-separated payload into its top-level clauses, un-escaping
// ";;" to ";" in each clause.
func SplitStatements(payload string) []string {
	var out []string
	m, _ := semicolonSplitter.FindStringMatch(payload)
	for m != nil {
		out = append(out, strings.ReplaceAll(strings.TrimSpace(m.String()), ";;", ";"))
		m, _ = semicolonSplitter.FindNextMatch(m)
	}
	return out
}

// Result is what Bind returns for one element: its recognized
// statements (already split on ";" where that applies) plus the
// attributes that should remain on the element's final Attr list.
type Result struct {
	Statements []Statement
	Passthrough []Attr
}

// Bind classifies attrs into control Statements and passthrough
// attributes. Bind only reports a MetaInterpolation statement when the
// element sets one directly; the inherited meta:interpolation state is
// tracked and applied recursively by component F, since Bind operates
// one element at a time.
func Bind(attrs []Attr, settings Settings, h diagnostics) Result {
	var res Result
	for _, a := range attrs {
		ns := a.Namespace
		canonical, isControlPrefix := shortPrefixNamespace[ns]
		if !isControlPrefix {
			canonical = ns
		}
		if canonical != NamespaceTAL && canonical != NamespaceMETAL &&
			canonical != NamespaceI18N && canonical != NamespaceMETA {
			if settings.EnableDataAttributes && strings.HasPrefix(a.Key, "data-tal-") {
				localKey := strings.TrimPrefix(a.Key, "data-tal-")
				if kind, ok := resolveKind(NamespaceTAL, localKey); ok {
					res.Statements = append(res.Statements, splitInto(kind, a)...)
					continue
				}
			}
			res.Passthrough = append(res.Passthrough, a)
			continue
		}
		kind, ok := resolveKind(canonical, a.Key)
		if !ok {
			if settings.Strict {
				h.AppendError(&loc.ErrorWithRange{
					Code: loc.ERROR_UNKNOWN_NAMESPACE,
					Text: "unrecognized control attribute \"" + a.Key + "\" in namespace " + canonical,
					Range: loc.Range{Loc: a.KeyLoc, Len: len(a.Key)},
				})
				continue
			}
			res.Passthrough = append(res.Passthrough, a)
			continue
		}
		res.Statements = append(res.Statements, splitInto(kind, a)...)
	}
	return res
}

// diagnostics is the narrow slice of *handler.Handler that Bind needs,
// kept as an interface (rather than importing internal/handler
// directly) so this package stays a leaf with zero sibling-package
// imports besides loc.
type diagnostics interface {
	AppendError(err error)
}

// resolveKind maps (namespace, local-name) to a Kind, resolving the few
// local names ("name", "data", "source", ...) that are shared textually
// between TAL's on-error fallback grammar and I18N's attributes, since
// they only mean one thing once the namespace is known.
func resolveKind(namespace, localName string) (Kind, bool) {
	switch namespace {
	case NamespaceI18N:
		switch localName {
		case "translate":
			return I18NTranslate, true
		case "domain":
			return I18NDomain, true
		case "source":
			return I18NSource, true
		case "target":
			return I18NTarget, true
		case "name":
			return I18NName, true
		case "attributes":
			return I18NAttributes, true
		case "data":
			return I18NData, true
		case "context":
			return I18NContext, true
		}
		return 0, false
	case NamespaceMETA:
		if localName == "interpolation" {
			return MetaInterpolation, true
		}
		return 0, false
	default: // TAL, METAL
		if k, ok := localNameKind[localName]; ok {
			switch k {
			case I18NTranslate, I18NDomain, I18NSource, I18NTarget, I18NName, I18NAttributes, I18NData, I18NContext, MetaInterpolation:
				return 0, false
			}
			return k, true
		}
		return 0, false
	}
}

// semicolonSplitKinds lists the only Kinds (`attributes`, `define`,
// `i18n:attributes`) whose value is split on top-level semicolons into
// several Statements of the same Kind; every other Kind keeps its whole
// value as a single payload.
var semicolonSplitKinds = map[Kind]bool{
	Define:         true,
	Attributes:     true,
	I18NAttributes: true,
}

func splitInto(kind Kind, a Attr) []Statement {
	if !semicolonSplitKinds[kind] {
		return []Statement{{Kind: kind, Expr: a.Val, Range: loc.Range{Loc: a.ValLoc, Len: len(a.Val)}}}
	}
	var out []Statement
	for _, clause := range SplitStatements(a.Val) {
		out = append(out, Statement{Kind: kind, Expr: clause, Range: loc.Range{Loc: a.ValLoc, Len: len(a.Val)}})
	}
	return out
}
