// Package ir defines the tagged-variant tree the semantic pass (component
// F) produces and the code generator (component G) consumes: every
// element's statements resolved, ordered, and compiled into tales
// Programs, with macro/slot/i18n structure already linked. ir holds pure
// data — no render-time behavior — so semantic (which builds it) and
// codegen (which interprets it into executable closures) stay decoupled,
// mirroring design note 9's "IR plus codegen backend" split.
package ir

import (
	"github.com/talweave/talc/internal/interpolate"
	"github.com/talweave/talc/internal/tales"
)

// Text is a literal or interpolated run of text (or a comment body, or
// an attribute value), pre-split into literal/expression Parts by
// component E.
type Text struct {
	Parts []interpolate.Part
}

// Attr is one static attribute, its value already lowered into Text so
// any `${...}` it contains compiles once at cook time.
type Attr struct {
	Name  string
	Value Text
}

// NodeKind distinguishes the shapes a Node can take.
type NodeKind int

const (
	KindElement NodeKind = iota
	KindText
	KindComment
	KindDoctype
	KindRaw // PI / XML decl / CDATA passthrough
	// KindCodeBlock is a `<?python ... ?>` code-block PI, lowered to a
	// sequence of assignments executed in the enclosing scope (up to the
	// nearest macro boundary) rather than passed through as markup.
	KindCodeBlock
)

func (k NodeKind) String() string {
	switch k {
	case KindElement:
		return "Element"
	case KindText:
		return "Text"
	case KindComment:
		return "Comment"
	case KindDoctype:
		return "Doctype"
	case KindRaw:
		return "Raw"
	case KindCodeBlock:
		return "CodeBlock"
	}
	return "Invalid"
}

// Node is one element, text run, comment, doctype or raw passthrough
// node in the compiled tree.
type Node struct {
	Kind NodeKind

	Tag         string
	Attrs       []Attr
	SelfClosing bool
	Void        bool
	Children    []*Node

	Text          Text   // KindText
	CommentText   Text   // KindComment (nil Parts if verbatim/drop — see CommentMode)
	CommentMode   CommentMode
	Raw           string // KindDoctype / KindRaw

	Statements *Statements // nil if the element carries no control attributes

	// Assigns is the lowered body of a KindCodeBlock node: one
	// name-to-program assignment per non-blank line.
	Assigns []DefineClause
}

// CommentMode distinguishes the three comment variants spec §4.A defines.
type CommentMode int

const (
	CommentNormal CommentMode = iota
	CommentDrop
	CommentVerbatim
)

// Statements bundles every compiled control-attribute effect attached to
// one element, already resolved and ordered per spec §4.F. Each field is
// nil/zero unless the corresponding tal:/metal:/i18n: attribute was
// present.
type Statements struct {
	Define    []DefineClause
	Switch    *tales.Program
	Condition *tales.Program
	Repeat    *RepeatClause
	Case      *tales.Program

	Content *ContentClause // content or replace
	OmitTag *OmitTagClause
	Attrs   []AttrClause
	OnError *OnErrorClause

	Macro *MacroClause
	I18N  *I18NClause
}

type DefineClause struct {
	Names  []string // >1 for tuple-unpacking targets
	Global bool
	Expr   *tales.Program
}

type RepeatClause struct {
	VarNames []string // >1 for tuple-unpacking targets
	Expr     *tales.Program
}

// ContentClause carries whether the source statement was `replace`
// (which also omits the tag) or `content`, and whether the value is
// pre-escaped via the `structure` keyword prefix on the statement text
// itself (distinct from the `structure:` TALES prefix on the
// expression, which tales.Program.Eval already accounts for by
// returning a runtime.Markup).
type ContentClause struct {
	Expr         *tales.Program
	IsReplace    bool
	ForceNoEscape bool
}

type OmitTagClause struct {
	Expr *tales.Program // nil means unconditional omit (bare "omit-tag")
}

type AttrClause struct {
	Name string
	Expr *tales.Program
}

type OnErrorClause struct {
	Expr *tales.Program
}

// MacroClause covers define-macro, use-macro, extend-macro, define-slot
// and fill-slot, since a single element can only sensibly carry one of
// these in practice but the resolved tree keeps them as one struct for
// simplicity of the codegen switch.
type MacroClause struct {
	DefineMacro string
	UseMacro    *tales.Program // deferred: evaluated at render time to a macro name or reference
	ExtendMacro *tales.Program
	DefineSlot  string
	FillSlot    string

	// Fillers is populated on a use-macro/extend-macro element: the
	// fill-slot descendants captured by name, ready to splice into the
	// resolved macro's define-slot positions (spec §4.F macro linking).
	Fillers map[string]*Node
}

// I18NClause carries the inherited lexical i18n environment plus this
// element's own translate/name/data directives.
type I18NClause struct {
	Translate bool
	MsgID     string // explicit id, or "" to derive from normalized inner text
	Domain    string
	Context   string
	Source    string
	Target    string
	Name      string          // i18n:name on a capture sub-template
	Data      *tales.Program  // i18n:data
	Attrs     map[string]bool // i18n:attributes names
}

// Template is the compiled output of the whole pipeline: a root Node
// plus every named macro (define-macro targets), ready for codegen.
type Template struct {
	Root   *Node
	Macros map[string]*Node
}
