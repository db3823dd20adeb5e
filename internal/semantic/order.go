// Package semantic implements the ordering pass, tuple unpacking,
// default-sentinel propagation rules, macro/slot linking and translation
// capture (spec component F).
//
// Grounded on the teacher compiler's internal/transform/transform.go:
// Transform(doc, opts, h) calling a fixed sequence of mutator passes
// keyed off node kind, and preprocess.go's ordering of those mutations
// before the final print. TAL semantics need the order to be an
// explicit, inspectable per-element data-driven sort (a Kind-to-rank
// table) rather than the teacher's implicit "fixed Go source order",
// because statement *authoring* order on one element must never affect
// execution order.
package semantic

import (
	"sort"

	"github.com/talweave/talc/internal/bind"
)

// rank gives each bind.Kind its position in spec §4.F's canonical
// execution order: define, switch, condition, repeat, case, content/
// replace, omit-tag, attributes, on-error. Statement kinds with no
// ordering significance of their own (macro/slot/i18n attributes) sort
// alongside the statement they logically annotate.
var rank = map[bind.Kind]int{
	bind.Define:         0,
	bind.DefineMacro:     0,
	bind.ExtendMacro:     0,
	bind.UseMacro:        0,
	bind.Switch:          1,
	bind.Condition:       2,
	bind.Repeat:          3,
	bind.Case:            4,
	bind.Content:         5,
	bind.Replace:         5,
	bind.I18NTranslate:   5,
	bind.I18NName:        5,
	bind.I18NData:        5,
	bind.OmitTag:         6,
	bind.Attributes:      7,
	bind.I18NAttributes:  7,
	bind.DefineSlot:      7,
	bind.FillSlot:        7,
	bind.OnError:         8,
	// Lexically inherited, order-independent annotations sort first so
	// they're visible to every later rank when a single element carries
	// several of these at once (rare, but well-defined).
	bind.I18NDomain:          -1,
	bind.I18NContext:         -1,
	bind.I18NSource:          -1,
	bind.I18NTarget:          -1,
	bind.MetaInterpolation:   -1,
}

// Order sorts stmts into the canonical execution order, stable within
// each rank so that two statements of the same kind on one element (for
// example two `tal:attributes` clauses split from one semicolon-joined
// attribute) keep their source order.
func Order(stmts []bind.Statement) []bind.Statement {
	out := make([]bind.Statement, len(stmts))
	copy(out, stmts)
	sort.SliceStable(out, func(i, j int) bool {
		return rank[out[i].Kind] < rank[out[j].Kind]
	})
	return out
}
