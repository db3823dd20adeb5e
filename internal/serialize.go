package talc

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/talweave/talc/internal/bind"
	"github.com/talweave/talc/internal/loc"
	"golang.org/x/net/html/atom"
)

// nodeRecord is one Node flattened into a pointer-free, gob-encodable
// shape: a pre-order traversal turns the doubly-linked Parent/FirstChild/
// LastChild/PrevSibling/NextSibling tree into a flat slice, with
// NumChildren recording how many of the records that follow belong to
// this one, so DecodeNode can rebuild the pointer tree with AppendChild
// alone.
type nodeRecord struct {
	Type        NodeType
	DataAtom    uint32
	Data        string
	Target      string
	Attr        []Attribute
	Loc         loc.Loc
	DataLoc     loc.Loc
	SelfClosing bool
	Statements  []bind.Statement
	NumChildren int
}

// EncodeNode serializes root (and its whole subtree) into a disk-cacheable
// byte slice. Intended for internal/cache: the output is the "bound
// markup" artifact a cook keys by source digest, letting a later cook
// skip tokenizing, parsing and namespace-binding the same source again.
func EncodeNode(root *Node) ([]byte, error) {
	var records []nodeRecord
	var flatten func(n *Node)
	flatten = func(n *Node) {
		count := 0
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			count++
		}
		records = append(records, nodeRecord{
			Type:        n.Type,
			DataAtom:    uint32(n.DataAtom),
			Data:        n.Data,
			Target:      n.Target,
			Attr:        n.Attr,
			Loc:         n.Loc,
			DataLoc:     n.DataLoc,
			SelfClosing: n.SelfClosing,
			Statements:  n.Statements,
			NumChildren: count,
		})
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			flatten(c)
		}
	}
	flatten(root)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(records); err != nil {
		return nil, fmt.Errorf("talc: encode node tree: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeNode is EncodeNode's inverse.
func DecodeNode(data []byte) (*Node, error) {
	var records []nodeRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&records); err != nil {
		return nil, fmt.Errorf("talc: decode node tree: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("talc: decode node tree: empty record set")
	}
	pos := 0
	var build func() (*Node, error)
	build = func() (*Node, error) {
		if pos >= len(records) {
			return nil, fmt.Errorf("talc: decode node tree: truncated record set")
		}
		rec := records[pos]
		pos++
		n := &Node{
			Type:        rec.Type,
			DataAtom:    atom.Atom(rec.DataAtom),
			Data:        rec.Data,
			Target:      rec.Target,
			Attr:        rec.Attr,
			Loc:         rec.Loc,
			DataLoc:     rec.DataLoc,
			SelfClosing: rec.SelfClosing,
			Statements:  rec.Statements,
		}
		for i := 0; i < rec.NumChildren; i++ {
			child, err := build()
			if err != nil {
				return nil, err
			}
			n.AppendChild(child)
		}
		return n, nil
	}
	root, err := build()
	if err != nil {
		return nil, err
	}
	if pos != len(records) {
		return nil, fmt.Errorf("talc: decode node tree: %d unread records", len(records)-pos)
	}
	return root, nil
}
