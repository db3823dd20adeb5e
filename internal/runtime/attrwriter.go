package runtime

import (
	"reflect"
	"sort"
	"strings"
)

// AttrWriter accumulates an element's final attribute set per spec
// §4.G.4's single-pass algorithm: start from the static attributes
// (recorded with SetStatic, their `${...}` already interpolated by the
// caller), then apply each `tal:attributes` entry (dropping on a None
// value, writing a boolean name-as-value for a configured boolean
// attribute, merging a dict-typed value as its own set of dynamic
// attributes).
type AttrWriter struct {
	order []string
	attrs map[string]any // nil value means "boolean, present with no value"
	boolSet map[string]bool
}

// NewAttrWriter returns an empty AttrWriter using boolSet as the set of
// boolean attribute names; static attributes are added with SetStatic.
func NewAttrWriter(boolSet map[string]bool) *AttrWriter {
	return &AttrWriter{
		attrs:   map[string]any{},
		boolSet: boolSet,
	}
}

// SetStatic records a static (already interpolated) attribute value.
func (w *AttrWriter) SetStatic(name, value string) {
	w.set(name, value)
}

// SetDynamic applies one `tal:attributes` entry (or one key of a
// dict-typed value): name is matched case-insensitively against any
// already-present static attribute (spec: "the casing of the produced
// name is that of the tal:attributes clause, for a name not already
// present; for a name that matches an existing attribute case-
// insensitively, the existing casing is kept").
func (w *AttrWriter) SetDynamic(name string, value any) {
	if value == nil {
		w.Drop(name)
		return
	}
	if IsDefault(value) {
		return
	}
	if dict, ok := asStringMap(value); ok {
		keys := make([]string, 0, len(dict))
		for k := range dict {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			w.SetDynamic(k, dict[k])
		}
		return
	}
	resolved := w.resolveCasing(name)
	if w.boolSet[strings.ToLower(resolved)] {
		if Truthy(value) {
			w.setRaw(resolved, resolved)
		} else {
			w.Drop(resolved)
		}
		return
	}
	w.set(resolved, Stringify(value))
}

// Drop removes name (case-insensitively) from the attribute set,
// implementing the `tal:attributes` None-drops-the-attribute rule.
func (w *AttrWriter) Drop(name string) {
	resolved := w.resolveCasing(name)
	if _, ok := w.attrs[resolved]; ok {
		delete(w.attrs, resolved)
		for i, n := range w.order {
			if n == resolved {
				w.order = append(w.order[:i], w.order[i+1:]...)
				break
			}
		}
	}
}

func (w *AttrWriter) set(name string, value any) {
	resolved := w.resolveCasing(name)
	w.setRaw(resolved, value)
}

func (w *AttrWriter) setRaw(name string, value any) {
	if _, exists := w.attrs[name]; !exists {
		w.order = append(w.order, name)
	}
	w.attrs[name] = value
}

func (w *AttrWriter) resolveCasing(name string) string {
	lower := strings.ToLower(name)
	for _, existing := range w.order {
		if strings.ToLower(existing) == lower {
			return existing
		}
	}
	return name
}

// Pairs returns the final ordered (name, stringValue) pairs, in the
// order attributes were first set.
func (w *AttrWriter) Pairs() []AttrPair {
	out := make([]AttrPair, 0, len(w.order))
	for _, name := range w.order {
		out = append(out, AttrPair{Name: name, Value: Stringify(w.attrs[name])})
	}
	return out
}

type AttrPair struct {
	Name  string
	Value string
}

func asStringMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil, false
	}
	out := map[string]any{}
	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool { return stringifyFallback(keys[i].Interface()) < stringifyFallback(keys[j].Interface()) })
	for _, k := range keys {
		ks, ok := k.Interface().(string)
		if !ok {
			return nil, false
		}
		out[ks] = rv.MapIndex(k).Interface()
	}
	return out, true
}
