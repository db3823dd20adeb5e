package runtime

import (
	"fmt"
	"reflect"
)

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		var f float64
		if _, err := fmt.Sscanf(x, "%g", &f); err != nil {
			return 0, fmt.Errorf("could not convert %q to float", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("could not convert %T to float", v)
}

func toInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		return int(x), nil
	case string:
		var i int
		if _, err := fmt.Sscanf(x, "%d", &i); err != nil {
			return 0, fmt.Errorf("could not convert %q to int", x)
		}
		return i, nil
	}
	return 0, fmt.Errorf("could not convert %T to int", v)
}

// Len implements Python-style len() over TALES's dynamic values: string
// byte length, or the element count of a slice/array/map.
func Len(v any) (int, error) {
	switch x := v.(type) {
	case string:
		return len(x), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		return rv.Len(), nil
	}
	return 0, fmt.Errorf("object of type %T has no len()", v)
}

// Truthy implements the runtime's truthiness test, used by `condition`
// and by tales's `not:` evaluation (tales imports runtime for it).
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case int64:
		return x != 0
	case float64:
		return x != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() != 0
	}
	return true
}
