package talc

import (
	"github.com/talweave/talc/internal/bind"
	"github.com/talweave/talc/internal/handler"
)

// BindOptions controls BindStatements; it mirrors the subset of
// Settings the binder needs without this package depending on the root
// Settings type (which in turn depends on this package).
type BindOptions struct {
	Strict               bool
	EnableDataAttributes bool
}

// BindStatements walks doc, applying component C (namespace filter &
// statement binder) to every element: recognized tal:/metal:/i18n:/
// meta: attributes are converted into Node.Statements and removed from
// Node.Attr; everything else is left as a passthrough attribute.
func BindStatements(doc *Node, opts BindOptions, h *handler.Handler) {
	settings := bind.Settings{Strict: opts.Strict, EnableDataAttributes: opts.EnableDataAttributes}
	Walk(doc, func(n *Node) bool {
		if n.Type != ElementNode || len(n.Attr) == 0 {
			return true
		}
		attrs := make([]bind.Attr, len(n.Attr))
		for i, a := range n.Attr {
			attrs[i] = bind.Attr{
				Namespace: a.Namespace,
				Key:       a.Key,
				Val:       a.Val,
				KeyLoc:    a.KeyLoc,
				ValLoc:    a.ValLoc,
				Quote:     a.Quote,
				Unquoted:  a.Type == UnquotedAttribute,
				Empty:     a.Type == EmptyAttribute,
			}
		}
		result := bind.Bind(attrs, settings, h)
		n.Statements = result.Statements
		n.Attr = n.Attr[:0]
		for _, a := range result.Passthrough {
			typ := QuotedAttribute
			switch {
			case a.Unquoted:
				typ = UnquotedAttribute
			case a.Empty:
				typ = EmptyAttribute
			}
			n.Attr = append(n.Attr, Attribute{
				Namespace: a.Namespace,
				Key:       a.Key,
				Val:       a.Val,
				KeyLoc:    a.KeyLoc,
				ValLoc:    a.ValLoc,
				Quote:     a.Quote,
				Type:      typ,
			})
		}
		return true
	})
}
