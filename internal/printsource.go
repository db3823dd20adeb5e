package talc

import "strings"

// PrintToSource re-serialises a parsed Node tree back to template text,
// the same round-trip printer the teacher compiler exposes for its own
// tree. After BindStatements has run, control-namespace attributes have
// been lifted off Node.Attr into Node.Statements, so the printed output
// is the source minus control attributes — exactly the losslessness
// contract of testable property 1.
func PrintToSource(b *strings.Builder, n *Node) {
	if n == nil {
		return
	}
	switch n.Type {
	case DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			PrintToSource(b, c)
		}
	case TextNode:
		b.WriteString(n.Data)
	case CommentNode:
		b.WriteString("<!--")
		switch n.Target {
		case "verbatim":
			b.WriteByte('?')
		case "drop":
			b.WriteByte('!')
		}
		b.WriteString(n.Data)
		b.WriteString("-->")
	case DoctypeNode:
		b.WriteString("<!DOCTYPE ")
		b.WriteString(n.Data)
		b.WriteString(">")
	case XMLDeclNode:
		b.WriteString("<?xml ")
		b.WriteString(n.Data)
		b.WriteString("?>")
	case ProcessingInstructionNode:
		b.WriteString("<?")
		b.WriteString(n.Target)
		b.WriteString(" ")
		b.WriteString(n.Data)
		b.WriteString("?>")
	case ElementNode:
		b.WriteByte('<')
		b.WriteString(n.Data)
		for _, a := range n.Attr {
			b.WriteByte(' ')
			printAttribute(b, a)
		}
		if n.SelfClosing {
			b.WriteString("/>")
			return
		}
		b.WriteByte('>')
		if voidElements[n.Data] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			PrintToSource(b, c)
		}
		b.WriteString("</")
		b.WriteString(n.Data)
		b.WriteByte('>')
	}
}

func printAttribute(b *strings.Builder, a Attribute) {
	if a.Namespace != "" {
		b.WriteString(a.Namespace)
		b.WriteByte(':')
	}
	b.WriteString(a.Key)
	switch a.Type {
	case EmptyAttribute:
	case UnquotedAttribute:
		b.WriteByte('=')
		b.WriteString(a.Val)
	default:
		q := a.Quote
		if q == 0 {
			q = '"'
		}
		b.WriteByte('=')
		b.WriteByte(q)
		b.WriteString(escapeAttrVal(a.Val))
		b.WriteByte(q)
	}
}

// escapeAttrVal re-encodes the fixed entity set the tokenizer decoded,
// so a parsed attribute value prints back to its source form.
func escapeAttrVal(s string) string {
	if !strings.ContainsAny(s, `&<>"`) {
		return s
	}
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	return s
}
