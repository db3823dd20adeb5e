package tales

import (
	"fmt"
	"reflect"
	"strings"
)

// reflectAttr implements the "attribute lookup fallback" spec §4.F
// describes: try a Go struct field or method by name first (case
// sensitive, then title-cased to match common Go exported-field
// conventions for values coming from host code), then fall back to a
// string-keyed map lookup, then a method on a non-struct value, and
// otherwise return a recoverable "has no attribute" error. Slices and
// arrays are not indexed here.
func reflectAttr(obj any, name string) (any, error) {
	if obj == nil {
		return nil, Recoverable(fmt.Errorf("attribute %q on None", name))
	}
	v := reflect.ValueOf(obj)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, Recoverable(fmt.Errorf("attribute %q on nil pointer", name))
		}
		v = v.Elem()
	}

	if v.Kind() == reflect.Struct {
		if fv := fieldByAnyCase(v, name); fv.IsValid() {
			return fv.Interface(), nil
		}
		if mv := methodByAnyCase(reflect.ValueOf(obj), name); mv.IsValid() {
			return callNoArgMethod(mv)
		}
	}

	if v.Kind() == reflect.Map {
		key := reflect.ValueOf(name)
		if key.Type().AssignableTo(v.Type().Key()) {
			mv := v.MapIndex(key)
			if mv.IsValid() {
				return mv.Interface(), nil
			}
		}
	}

	if mv := methodByAnyCase(reflect.ValueOf(obj), name); mv.IsValid() {
		return callNoArgMethod(mv)
	}

	return nil, Recoverable(fmt.Errorf("%T has no attribute %q", obj, name))
}

func fieldByAnyCase(v reflect.Value, name string) reflect.Value {
	if f, ok := v.Type().FieldByName(name); ok && f.PkgPath == "" {
		return v.FieldByName(name)
	}
	titled := strings.ToUpper(name[:1]) + name[1:]
	if f, ok := v.Type().FieldByName(titled); ok && f.PkgPath == "" {
		return v.FieldByName(titled)
	}
	return reflect.Value{}
}

func methodByAnyCase(v reflect.Value, name string) reflect.Value {
	if mv := v.MethodByName(name); mv.IsValid() {
		return mv
	}
	return v.MethodByName(strings.ToUpper(name[:1]) + name[1:])
}

// callMethod invokes obj's method (or func-valued attribute) name with
// args, the call-position counterpart of talAttr's access-position
// lookup. A reflection panic (arity or type mismatch) surfaces as a
// recoverable TypeError-class failure rather than unwinding the render.
func callMethod(obj any, name string, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, Recoverable(fmt.Errorf("calling %q: %v", name, r))
		}
	}()
	mv := methodByAnyCase(reflect.ValueOf(obj), name)
	if !mv.IsValid() {
		v, attrErr := talAttr(obj, name)
		if attrErr != nil {
			return nil, attrErr
		}
		mv = reflect.ValueOf(v)
		if mv.Kind() != reflect.Func {
			return nil, Recoverable(fmt.Errorf("%q is not callable", name))
		}
	}
	mt := mv.Type()
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		if a == nil && i < mt.NumIn() {
			in[i] = reflect.Zero(mt.In(i))
			continue
		}
		in[i] = reflect.ValueOf(a)
	}
	return methodResult(mv.Call(in))
}

func callNoArgMethod(mv reflect.Value) (any, error) {
	mt := mv.Type()
	if mt.NumIn() != 0 {
		return nil, Recoverable(fmt.Errorf("method requires arguments, cannot use as attribute"))
	}
	return methodResult(mv.Call(nil))
}

func methodResult(out []reflect.Value) (any, error) {
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0].Interface(), nil
	default:
		if err, ok := out[len(out)-1].Interface().(error); ok {
			return out[0].Interface(), err
		}
		return out[0].Interface(), nil
	}
}
