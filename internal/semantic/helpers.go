package semantic

import (
	"fmt"
	"reflect"
)

func asIndexable(v any) ([]any, error) {
	if items, ok := v.([]any); ok {
		return items, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot unpack non-sequence value of type %T", v)
}

func errTupleLength(want, got int) error {
	return fmt.Errorf("not enough values to unpack (expected %d, got %d)", want, got)
}
