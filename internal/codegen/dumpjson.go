package codegen

import (
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/iancoleman/strcase"

	"github.com/talweave/talc/internal/ir"
)

// ASTNode is the JSON shape of one compiled ir.Node, the debug/tooling
// counterpart of the executable backend: same idea as the teacher
// compiler's print-to-json.go ASTNode, with TAL's statement kinds in
// place of Astro's directive kinds.
type ASTNode struct {
	Type       string    `json:"type"`
	Name       string    `json:"name,omitempty"`
	Value      string    `json:"value,omitempty"`
	Attributes []ASTAttr `json:"attributes,omitempty"`
	Statements []ASTStmt `json:"statements,omitempty"`
	Children   []ASTNode `json:"children,omitempty"`
}

type ASTAttr struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ASTStmt is one control statement on an element, its compiled
// expression shown as the original TALES source text.
type ASTStmt struct {
	Kind string `json:"kind"`
	Name string `json:"name,omitempty"`
	Expr string `json:"expression,omitempty"`
}

// DumpJSON serialises tmpl's compiled tree as indented, deterministic
// JSON, for the CLI's `ast` mode and for snapshotting in tests.
func DumpJSON(tmpl *ir.Template) ([]byte, error) {
	root := toASTNode(tmpl.Root)
	return json.Marshal(root, json.Deterministic(true), jsontext.WithIndent("  "))
}

func toASTNode(n *ir.Node) ASTNode {
	out := ASTNode{Type: strcase.ToKebab(n.Kind.String())}
	switch n.Kind {
	case ir.KindElement:
		out.Name = n.Tag
		for _, a := range n.Attrs {
			out.Attributes = append(out.Attributes, ASTAttr{Name: a.Name, Value: textSource(a.Value)})
		}
		out.Statements = toASTStmts(n.Statements)
	case ir.KindText:
		out.Value = textSource(n.Text)
	case ir.KindComment:
		if n.CommentText.Parts != nil {
			out.Value = textSource(n.CommentText)
		} else {
			out.Value = n.Raw
		}
	case ir.KindDoctype, ir.KindRaw:
		out.Value = n.Raw
	case ir.KindCodeBlock:
		for _, a := range n.Assigns {
			out.Statements = append(out.Statements, ASTStmt{Kind: "assign", Name: a.Names[0], Expr: a.Expr.Source})
		}
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, toASTNode(c))
	}
	return out
}

func toASTStmts(stmts *ir.Statements) []ASTStmt {
	if stmts == nil {
		return nil
	}
	var out []ASTStmt
	add := func(kind, name, expr string) {
		out = append(out, ASTStmt{Kind: kind, Name: name, Expr: expr})
	}
	for _, d := range stmts.Define {
		name := d.Names[0]
		if len(d.Names) > 1 {
			name = "(" + joinNames(d.Names) + ")"
		}
		kind := "define"
		if d.Global {
			kind = "define-global"
		}
		add(kind, name, d.Expr.Source)
	}
	if stmts.Switch != nil {
		add("switch", "", stmts.Switch.Source)
	}
	if stmts.Condition != nil {
		add("condition", "", stmts.Condition.Source)
	}
	if stmts.Repeat != nil {
		add("repeat", joinNames(stmts.Repeat.VarNames), stmts.Repeat.Expr.Source)
	}
	if stmts.Case != nil {
		add("case", "", stmts.Case.Source)
	}
	if stmts.Content != nil {
		kind := "content"
		if stmts.Content.IsReplace {
			kind = "replace"
		}
		add(kind, "", stmts.Content.Expr.Source)
	}
	if stmts.OmitTag != nil {
		expr := ""
		if stmts.OmitTag.Expr != nil {
			expr = stmts.OmitTag.Expr.Source
		}
		add("omit-tag", "", expr)
	}
	for _, a := range stmts.Attrs {
		add("attributes", a.Name, a.Expr.Source)
	}
	if stmts.OnError != nil {
		add("on-error", "", stmts.OnError.Expr.Source)
	}
	if m := stmts.Macro; m != nil {
		if m.DefineMacro != "" {
			add("define-macro", m.DefineMacro, "")
		}
		if m.UseMacro != nil {
			add("use-macro", "", m.UseMacro.Source)
		}
		if m.ExtendMacro != nil {
			add("extend-macro", "", m.ExtendMacro.Source)
		}
		if m.DefineSlot != "" {
			add("define-slot", m.DefineSlot, "")
		}
		if m.FillSlot != "" {
			add("fill-slot", m.FillSlot, "")
		}
	}
	if i := stmts.I18N; i != nil {
		if i.Translate {
			add("i18n-translate", "", i.MsgID)
		}
		if i.Name != "" {
			add("i18n-name", i.Name, "")
		}
	}
	return out
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}

func textSource(t ir.Text) string {
	var out string
	for _, p := range t.Parts {
		if p.Expr == nil {
			out += p.Literal
		} else {
			out += "${" + p.Expr.Source + "}"
		}
	}
	return out
}
