package semantic

import (
	"strconv"
	"strings"

	talc "github.com/talweave/talc/internal"
	"github.com/talweave/talc/internal/bind"
	"github.com/talweave/talc/internal/handler"
	"github.com/talweave/talc/internal/interpolate"
	"github.com/talweave/talc/internal/ir"
	"github.com/talweave/talc/internal/loc"
	"github.com/talweave/talc/internal/runtime"
	"github.com/talweave/talc/internal/tales"
)

// Options controls the semantic pass.
type Options struct {
	Strict                     bool
	EnableCommentInterpolation bool
	BooleanAttributes          map[string]bool
	ImplicitI18NAttributes     map[string]bool
}

// i18nEnv is the lexically inherited walk environment: the i18n
// domain/context/source/target attributes (copy-on-descend down the
// recursive walk — the same "closure captures mutable outer state"
// idiom the teacher's Transform uses for shouldScope/definedVars,
// adapted to plain value copying since Go structs copy by assignment),
// the live meta:interpolation state, and the two structural facts the
// invariant checks need: whether an ancestor carries tal:switch
// (invariant 4) and whether one carries metal:use-macro (invariant 3).
type i18nEnv struct {
	domain, context, source, target string
	interpolationOn                 bool
	inSwitch                        bool
	inUseMacro                      bool
}

type compiler struct {
	registry *tales.Registry
	handler  *handler.Handler
	opts     Options
	macros   map[string]*ir.Node
}

// Compile runs the semantic/ordering pass over doc, producing the
// ir.Template that codegen consumes.
func Compile(doc *talc.Node, registry *tales.Registry, opts Options, h *handler.Handler) (*ir.Template, error) {
	c := &compiler{registry: registry, handler: h, opts: opts, macros: map[string]*ir.Node{}}
	env := i18nEnv{interpolationOn: true}
	root, err := c.compileNode(doc, env)
	if err != nil {
		return nil, err
	}
	return &ir.Template{Root: root, Macros: c.macros}, nil
}

func (c *compiler) compileNode(n *talc.Node, env i18nEnv) (*ir.Node, error) {
	switch n.Type {
	case talc.DocumentNode:
		out := &ir.Node{Kind: ir.KindElement}
		children, err := c.compileChildren(n, env)
		if err != nil {
			return nil, err
		}
		out.Children = children
		return out, nil
	case talc.TextNode:
		if !env.interpolationOn {
			return &ir.Node{Kind: ir.KindText, Text: literalText(n.Data)}, nil
		}
		parts, err := c.lowerText(n.Data, n.Loc.Start)
		if err != nil {
			return nil, err
		}
		return &ir.Node{Kind: ir.KindText, Text: ir.Text{Parts: parts}}, nil
	case talc.CommentNode:
		return c.compileComment(n, env)
	case talc.DoctypeNode:
		return &ir.Node{Kind: ir.KindDoctype, Raw: n.Data}, nil
	case talc.ProcessingInstructionNode:
		if n.Target == "python" {
			return c.compileCodeBlock(n)
		}
		return &ir.Node{Kind: ir.KindRaw, Raw: "<?" + n.Target + " " + n.Data + "?>"}, nil
	case talc.XMLDeclNode:
		return &ir.Node{Kind: ir.KindRaw, Raw: "<?xml " + n.Data + "?>"}, nil
	case talc.ElementNode:
		return c.compileElement(n, env)
	}
	return &ir.Node{Kind: ir.KindRaw}, nil
}

func (c *compiler) compileComment(n *talc.Node, env i18nEnv) (*ir.Node, error) {
	mode := ir.CommentNormal
	switch n.Target {
	case "drop":
		mode = ir.CommentDrop
	case "verbatim":
		mode = ir.CommentVerbatim
	}
	if mode != ir.CommentNormal || !env.interpolationOn || !c.opts.EnableCommentInterpolation {
		return &ir.Node{Kind: ir.KindComment, CommentMode: mode, Raw: n.Data}, nil
	}
	parts, err := c.lowerText(n.Data, n.Loc.Start)
	if err != nil {
		return nil, err
	}
	return &ir.Node{Kind: ir.KindComment, CommentMode: mode, CommentText: ir.Text{Parts: parts}}, nil
}

// compileCodeBlock lowers a `<?python ... ?>` code-block PI into a
// sequence of scope assignments: one "name = expr" per non-blank,
// non-comment line, each right-hand side compiled through the TALES
// registry exactly like a define clause. The assignments execute in the
// enclosing scope up to the nearest macro boundary (spec §4.G.9).
func (c *compiler) compileCodeBlock(n *talc.Node) (*ir.Node, error) {
	out := &ir.Node{Kind: ir.KindCodeBlock}
	for _, line := range strings.Split(n.Data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := assignIndex(line)
		if idx < 0 {
			return nil, loc.NewTemplateError(loc.LanguageErrorKind, loc.ERROR_BAD_CODE_BLOCK,
				"code block line is not an assignment: "+line,
				loc.Range{Loc: n.Loc, Len: len(line)})
		}
		name := strings.TrimSpace(line[:idx])
		expr := strings.TrimSpace(line[idx+1:])
		prog, err := c.registry.Compile(expr, loc.Range{Loc: n.Loc, Len: len(expr)})
		if err != nil {
			return nil, err
		}
		out.Assigns = append(out.Assigns, ir.DefineClause{Names: []string{name}, Expr: prog})
	}
	return out, nil
}

// assignIndex finds the "=" of a plain assignment, rejecting "==", "<=",
// ">=", "!=" so a bare comparison line reports a clear error instead of
// silently binding a mangled name.
func assignIndex(line string) int {
	for i := 0; i < len(line); i++ {
		if line[i] != '=' {
			continue
		}
		if i+1 < len(line) && line[i+1] == '=' {
			i++
			continue
		}
		if i > 0 && strings.IndexByte("<>!=", line[i-1]) >= 0 {
			continue
		}
		return i
	}
	return -1
}

func (c *compiler) compileChildren(n *talc.Node, env i18nEnv) ([]*ir.Node, error) {
	var out []*ir.Node
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		cn, err := c.compileNode(child, env)
		if err != nil {
			return nil, err
		}
		out = append(out, cn)
	}
	return out, nil
}

func (c *compiler) lowerText(src string, loc0 int) ([]interpolate.Part, error) {
	return interpolate.Lower(src, loc0, c.registry)
}

// literalText wraps src as a single uninterpolated Part, used inside
// subtrees where meta:interpolation="off" applies.
func literalText(src string) ir.Text {
	return ir.Text{Parts: []interpolate.Part{{Literal: src}}}
}

func (c *compiler) compileElement(n *talc.Node, env i18nEnv) (*ir.Node, error) {
	out := &ir.Node{Kind: ir.KindElement, Tag: n.Data, SelfClosing: n.SelfClosing, Void: talc.IsVoidElement(n.Data)}

	stmts := Order(n.Statements)
	compiled, nextEnv, err := c.compileStatements(stmts, env)
	if err != nil {
		return nil, err
	}
	out.Statements = compiled

	for _, a := range n.Attr {
		name := a.Key
		if a.Namespace != "" {
			name = a.Namespace + ":" + a.Key
		}
		if !nextEnv.interpolationOn {
			out.Attrs = append(out.Attrs, ir.Attr{Name: name, Value: literalText(a.Val)})
			continue
		}
		parts, err := c.lowerText(a.Val, a.ValLoc.Start)
		if err != nil {
			return nil, err
		}
		out.Attrs = append(out.Attrs, ir.Attr{Name: name, Value: ir.Text{Parts: parts}})
	}

	children, err := c.compileChildren(n, nextEnv)
	if err != nil {
		return nil, err
	}
	out.Children = children

	if compiled != nil && compiled.Macro != nil {
		if compiled.Macro.DefineMacro != "" {
			c.macros[compiled.Macro.DefineMacro] = out
		}
		if compiled.Macro.UseMacro != nil || compiled.Macro.ExtendMacro != nil {
			compiled.Macro.Fillers = collectFillers(out)
		}
	}

	return out, nil
}

// collectFillers indexes every fill-slot descendant of a use-macro/
// extend-macro element by name, not descending into a nested use-macro
// subtree (that subtree's fill-slots belong to the nested macro call,
// per invariant 3).
func collectFillers(n *ir.Node) map[string]*ir.Node {
	fillers := map[string]*ir.Node{}
	var walk func(*ir.Node)
	walk = func(cur *ir.Node) {
		for _, child := range cur.Children {
			if child.Statements != nil && child.Statements.Macro != nil {
				if fs := child.Statements.Macro.FillSlot; fs != "" {
					fillers[fs] = child
				}
				if child.Statements.Macro.UseMacro != nil || child.Statements.Macro.ExtendMacro != nil {
					continue // nested macro call: its descendants are its own
				}
			}
			walk(child)
		}
	}
	walk(n)
	return fillers
}

func (c *compiler) compileStatements(stmts []bind.Statement, env i18nEnv) (*ir.Statements, i18nEnv, error) {
	if len(stmts) == 0 {
		return nil, env, nil
	}
	out := &ir.Statements{}
	nextEnv := env
	for _, s := range stmts {
		rg := s.Range
		switch s.Kind {
		case bind.Define:
			clause := s.Expr
			global := false
			if strings.HasPrefix(clause, "global ") {
				global = true
				clause = strings.TrimSpace(strings.TrimPrefix(clause, "global "))
			}
			target, expr := ParseTarget(clause)
			if c.opts.Strict {
				for _, name := range target.Names {
					if runtime.ReservedNames[name] {
						return nil, env, loc.NewTemplateError(loc.LanguageErrorKind, loc.ERROR_RESERVED_NAME,
							"cannot define reserved name "+strconv.Quote(name), rg)
					}
				}
			}
			prog, err := c.registry.Compile(expr, rg)
			if err != nil {
				return nil, env, err
			}
			out.Define = append(out.Define, ir.DefineClause{Names: target.Names, Global: global, Expr: prog})
		case bind.Switch:
			prog, err := c.registry.Compile(s.Expr, rg)
			if err != nil {
				return nil, env, err
			}
			out.Switch = prog
			nextEnv.inSwitch = true
		case bind.Condition:
			prog, err := c.registry.Compile(s.Expr, rg)
			if err != nil {
				return nil, env, err
			}
			out.Condition = prog
		case bind.Repeat:
			target, expr := ParseTarget(s.Expr)
			prog, err := c.registry.Compile(expr, rg)
			if err != nil {
				return nil, env, err
			}
			out.Repeat = &ir.RepeatClause{VarNames: target.Names, Expr: prog}
		case bind.Case:
			if !env.inSwitch {
				return nil, env, loc.NewTemplateError(loc.LanguageErrorKind, loc.ERROR_CASE_WITHOUT_SWITCH,
					"tal:case requires an enclosing tal:switch element", rg)
			}
			prog, err := c.registry.Compile(s.Expr, rg)
			if err != nil {
				return nil, env, err
			}
			out.Case = prog
		case bind.Content, bind.Replace:
			if out.Content != nil {
				return nil, env, loc.NewTemplateError(loc.LanguageErrorKind, loc.ERROR_CONTENT_AND_REPLACE,
					"tal:content and tal:replace cannot be combined on one element", rg)
			}
			expr := s.Expr
			forceNoEscape := false
			if strings.HasPrefix(expr, "structure ") || expr == "structure" {
				forceNoEscape = true
				expr = strings.TrimSpace(strings.TrimPrefix(expr, "structure"))
			} else if strings.HasPrefix(expr, "text ") {
				expr = strings.TrimSpace(strings.TrimPrefix(expr, "text"))
			}
			prog, err := c.registry.Compile(expr, rg)
			if err != nil {
				return nil, env, err
			}
			out.Content = &ir.ContentClause{Expr: prog, IsReplace: s.Kind == bind.Replace, ForceNoEscape: forceNoEscape}
		case bind.OmitTag:
			if strings.TrimSpace(s.Expr) == "" {
				out.OmitTag = &ir.OmitTagClause{}
				continue
			}
			prog, err := c.registry.Compile(s.Expr, rg)
			if err != nil {
				return nil, env, err
			}
			out.OmitTag = &ir.OmitTagClause{Expr: prog}
		case bind.Attributes:
			name, expr := splitAttrClause(s.Expr)
			prog, err := c.registry.Compile(expr, rg)
			if err != nil {
				return nil, env, err
			}
			out.Attrs = append(out.Attrs, ir.AttrClause{Name: name, Expr: prog})
		case bind.OnError:
			prog, err := c.registry.Compile(s.Expr, rg)
			if err != nil {
				return nil, env, err
			}
			out.OnError = &ir.OnErrorClause{Expr: prog}
		case bind.DefineMacro:
			out.Macro = ensureMacro(out.Macro)
			out.Macro.DefineMacro = strings.TrimSpace(s.Expr)
		case bind.UseMacro:
			prog, err := c.registry.Compile(s.Expr, rg)
			if err != nil {
				return nil, env, err
			}
			out.Macro = ensureMacro(out.Macro)
			out.Macro.UseMacro = prog
			nextEnv.inUseMacro = true
		case bind.ExtendMacro:
			prog, err := c.registry.Compile(s.Expr, rg)
			if err != nil {
				return nil, env, err
			}
			out.Macro = ensureMacro(out.Macro)
			out.Macro.ExtendMacro = prog
			nextEnv.inUseMacro = true
		case bind.DefineSlot:
			out.Macro = ensureMacro(out.Macro)
			out.Macro.DefineSlot = strings.TrimSpace(s.Expr)
		case bind.FillSlot:
			if !env.inUseMacro {
				return nil, env, loc.NewTemplateError(loc.LanguageErrorKind, loc.ERROR_FILL_SLOT_NOT_IN_MACRO,
					"metal:fill-slot requires an enclosing metal:use-macro element", rg)
			}
			out.Macro = ensureMacro(out.Macro)
			out.Macro.FillSlot = strings.TrimSpace(s.Expr)
		case bind.I18NTranslate:
			out.I18N = ensureI18N(out.I18N, nextEnv)
			out.I18N.Translate = true
			out.I18N.MsgID = strings.TrimSpace(s.Expr)
		case bind.I18NName:
			out.I18N = ensureI18N(out.I18N, nextEnv)
			out.I18N.Name = strings.TrimSpace(s.Expr)
		case bind.I18NData:
			prog, err := c.registry.Compile(s.Expr, rg)
			if err != nil {
				return nil, env, err
			}
			out.I18N = ensureI18N(out.I18N, nextEnv)
			out.I18N.Data = prog
		case bind.I18NDomain:
			nextEnv.domain = strings.TrimSpace(s.Expr)
		case bind.I18NContext:
			nextEnv.context = strings.TrimSpace(s.Expr)
		case bind.I18NSource:
			nextEnv.source = strings.TrimSpace(s.Expr)
		case bind.I18NTarget:
			nextEnv.target = strings.TrimSpace(s.Expr)
		case bind.I18NAttributes:
			out.I18N = ensureI18N(out.I18N, nextEnv)
			if out.I18N.Attrs == nil {
				out.I18N.Attrs = map[string]bool{}
			}
			for _, name := range strings.Fields(strings.ReplaceAll(s.Expr, ",", " ")) {
				out.I18N.Attrs[name] = true
			}
		case bind.MetaInterpolation:
			nextEnv.interpolationOn = strings.TrimSpace(s.Expr) != "off"
		}
	}
	if out.I18N != nil {
		out.I18N.Domain = nextEnv.domain
		out.I18N.Context = nextEnv.context
		out.I18N.Source = nextEnv.source
		out.I18N.Target = nextEnv.target
	}
	return out, nextEnv, nil
}

func ensureMacro(m *ir.MacroClause) *ir.MacroClause {
	if m == nil {
		return &ir.MacroClause{}
	}
	return m
}

func ensureI18N(i *ir.I18NClause, env i18nEnv) *ir.I18NClause {
	if i == nil {
		return &ir.I18NClause{Domain: env.domain, Context: env.context, Source: env.source, Target: env.target}
	}
	return i
}

// splitAttrClause splits one `tal:attributes` clause into its attribute
// name and expression, same "first space" rule ParseTarget uses for
// define/repeat targets (the grammar is identical: name, then
// whitespace, then expression).
func splitAttrClause(clause string) (name, expr string) {
	clause = strings.TrimSpace(clause)
	idx := strings.IndexByte(clause, ' ')
	if idx < 0 {
		return clause, "default"
	}
	return clause[:idx], strings.TrimSpace(clause[idx+1:])
}
