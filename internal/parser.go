package talc

import (
	"io"

	"github.com/talweave/talc/internal/handler"
	"github.com/talweave/talc/internal/loc"
)

// voidElements never have an end tag and are never pushed onto the open
// element stack, same list the teacher compiler carries minus the
// Astro-only additions.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// IsVoidElement reports whether tag never takes an end tag, so the
// semantic pass and printers can emit the self-closing form for it.
func IsVoidElement(tag string) bool {
	return voidElements[tag]
}

type parser struct {
	tok     *Tokenizer
	h       *handler.Handler
	doc     *Node
	stack   []*Node
	errored bool
}

// Parse tokenizes and parses r into a Node tree rooted at a DocumentNode.
// Diagnostics raised while tokenizing or parsing are appended to h; a
// malformed template still yields a best-effort tree so downstream
// passes can be exercised on any errors they can still detect, matching
// the teacher compiler's "never stop at first error" philosophy.
func Parse(r io.Reader, h *handler.Handler) (*Node, error) {
	tok, err := NewTokenizer(r, h)
	if err != nil {
		return nil, err
	}
	tok.AllowCDATA(true)

	p := &parser{
		tok: tok,
		h:   h,
		doc: &Node{Type: DocumentNode},
	}
	p.stack = []*Node{p.doc}
	p.run()
	return p.doc, nil
}

func (p *parser) top() *Node {
	return p.stack[len(p.stack)-1]
}

func (p *parser) push(n *Node) {
	p.top().AppendChild(n)
	p.stack = append(p.stack, n)
}

func (p *parser) pop() *Node {
	n := p.stack[len(p.stack)-1]
	p.stack = p.stack[:len(p.stack)-1]
	return n
}

func (p *parser) appendLeaf(n *Node) {
	p.top().AppendChild(n)
}

func (p *parser) run() {
	for {
		tt := p.tok.Next()
		if tt == ErrorToken {
			if p.tok.Err() != io.EOF {
				p.errored = true
			}
			break
		}
		t := p.tok.Token()
		switch tt {
		case TextToken:
			p.appendLeaf(&Node{Type: TextNode, Data: t.Data, Loc: t.Loc})
		case CommentToken, DropCommentToken, VerbatimCommentToken:
			nt := CommentNode
			n := &Node{Type: nt, Data: t.Data, Loc: t.Loc}
			n.DataAtom = 0
			// Stash the original token kind in DataLoc's Start field's
			// sign bit would be cute and unreadable; instead record it
			// plainly via Target so the printer and interpolation lowerer
			// can tell the three comment kinds apart without re-lexing.
			switch tt {
			case DropCommentToken:
				n.Target = "drop"
			case VerbatimCommentToken:
				n.Target = "verbatim"
			}
			p.appendLeaf(n)
		case DoctypeToken:
			p.appendLeaf(&Node{Type: DoctypeNode, Data: t.Data, Loc: t.Loc})
		case XMLDeclToken:
			p.appendLeaf(&Node{Type: XMLDeclNode, Data: t.Data, Loc: t.Loc})
		case ProcessingInstructionToken:
			p.appendLeaf(&Node{Type: ProcessingInstructionNode, Data: t.Data, Target: t.Target, Loc: t.Loc})
		case CDATAToken:
			p.appendLeaf(&Node{Type: TextNode, Data: t.Data, Loc: t.Loc})
		case StartTagToken:
			n := &Node{
				Type:     ElementNode,
				DataAtom: t.DataAtom,
				Data:     t.Data,
				Attr:     t.Attr,
				Loc:      t.Loc,
			}
			if voidElements[t.Data] {
				p.appendLeaf(n)
			} else {
				p.push(n)
			}
		case SelfClosingTagToken:
			n := &Node{
				Type:        ElementNode,
				DataAtom:    t.DataAtom,
				Data:        t.Data,
				Attr:        t.Attr,
				Loc:         t.Loc,
				SelfClosing: true,
			}
			p.appendLeaf(n)
		case EndTagToken:
			p.closeTo(t)
		}
	}
}

// closeTo pops the open-element stack up to and including the nearest
// matching start tag. An end tag with no matching open element is a
// parse error (spec §4.B) but does not abort parsing: it is simply
// dropped, matching the teacher compiler's error-tolerant recovery.
func (p *parser) closeTo(end Token) {
	for i := len(p.stack) - 1; i >= 1; i-- {
		if p.stack[i].Data == end.Data {
			for len(p.stack) > i {
				p.pop()
			}
			return
		}
	}
	p.h.AppendError(&loc.ErrorWithRange{
		Code: loc.ERROR_UNEXPECTED_END_TAG,
		Text: "unexpected closing tag </" + end.Data + ">, no matching open tag",
		Range: loc.Range{
			Loc: end.Loc,
			Len: len(end.Data) + 3,
		},
	})
}
