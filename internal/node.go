package talc

import (
	"github.com/talweave/talc/internal/bind"
	"github.com/talweave/talc/internal/loc"
	"golang.org/x/net/html/atom"
)

// NodeType distinguishes the kinds of node in the parsed tree (spec §4.B).
type NodeType uint32

const (
	DocumentNode NodeType = iota
	ElementNode
	TextNode
	CommentNode
	DoctypeNode
	ProcessingInstructionNode
	XMLDeclNode
)

// Node is one element, text run, comment, doctype or processing
// instruction in the parsed template tree. It follows the teacher
// compiler's doubly-linked sibling/first-child tree shape (Parent,
// FirstChild, LastChild, PrevSibling, NextSibling). Bind annotates this
// tree in place; semantic then builds a separate ir.Template tree from
// it, which codegen lowers.
type Node struct {
	Parent, FirstChild, LastChild, PrevSibling, NextSibling *Node

	Type     NodeType
	DataAtom atom.Atom
	Data     string // tag name, text content, comment body, etc.
	Target   string // PI target
	Attr     []Attribute

	Loc     loc.Loc
	DataLoc loc.Loc

	// SelfClosing records whether a start tag was written as "<foo/>" so
	// the printer (used for the VerbatimComment/debug paths) can
	// round-trip it.
	SelfClosing bool

	// Statements holds the control attributes bound by component C. Nil
	// for nodes with no recognized tal:/metal:/i18n:/meta: attributes,
	// which is most nodes in a real template.
	Statements []bind.Statement
}

// AppendChild adds c as the last child of n, same semantics as the
// teacher compiler's Node.AppendChild.
func (n *Node) AppendChild(c *Node) {
	if c.Parent != nil || c.PrevSibling != nil || c.NextSibling != nil {
		panic("talc: AppendChild called for an attached child Node")
	}
	last := n.LastChild
	if last != nil {
		last.NextSibling = c
	} else {
		n.FirstChild = c
	}
	n.LastChild = c
	c.Parent = n
	c.PrevSibling = last
}

// RemoveChild removes c from n's children, same semantics as the teacher
// compiler's Node.RemoveChild.
func (n *Node) RemoveChild(c *Node) {
	if c.Parent != n {
		panic("talc: RemoveChild called for a non-child Node")
	}
	if n.FirstChild == c {
		n.FirstChild = c.NextSibling
	}
	if c.NextSibling != nil {
		c.NextSibling.PrevSibling = c.PrevSibling
	}
	if n.LastChild == c {
		n.LastChild = c.PrevSibling
	}
	if c.PrevSibling != nil {
		c.PrevSibling.NextSibling = c.NextSibling
	}
	c.Parent = nil
	c.PrevSibling = nil
	c.NextSibling = nil
}

// InsertBefore inserts newChild as a child of n, immediately before
// oldChild in the sibling order. If oldChild is nil, newChild is appended
// to the end of n's children.
func (n *Node) InsertBefore(newChild, oldChild *Node) {
	if oldChild == nil {
		n.AppendChild(newChild)
		return
	}
	if oldChild.Parent != n {
		panic("talc: InsertBefore called for a non-child oldChild")
	}
	newChild.Parent = n
	newChild.PrevSibling = oldChild.PrevSibling
	newChild.NextSibling = oldChild
	if oldChild.PrevSibling != nil {
		oldChild.PrevSibling.NextSibling = newChild
	} else {
		n.FirstChild = newChild
	}
	oldChild.PrevSibling = newChild
}

// Attribute returns the attribute with the given namespace and key, and
// whether it was present.
func (n *Node) Attribute(namespace, key string) (Attribute, bool) {
	for _, a := range n.Attr {
		if a.Namespace == namespace && a.Key == key {
			return a, true
		}
	}
	return Attribute{}, false
}

// Walk calls fn for n and every descendant, depth-first, pre-order. fn
// returning false skips n's children (but not its following siblings).
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		Walk(c, fn)
		c = next
	}
}

// Children returns n's child nodes as a slice, for callers that want
// random access or to mutate the child list while iterating (Walk's
// next-pointer capture already tolerates removal of the current node but
// not arbitrary reordering).
func Children(n *Node) []*Node {
	var out []*Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}
