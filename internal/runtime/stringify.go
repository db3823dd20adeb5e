package runtime

import "fmt"

// stringifyFallback handles every value Stringify's fast-path switch
// doesn't: numbers, slices, maps and user host values, via fmt — the
// same pragmatic fallback Go's text/template uses for "whatever the
// pipeline produced."
func stringifyFallback(v any) string {
	return fmt.Sprintf("%v", v)
}
