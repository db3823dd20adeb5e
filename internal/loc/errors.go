package loc

import "fmt"

// ErrorWithRange is a compile-time error tied to a literal slice of the
// source template. Every diagnostic raised while tokenizing, parsing,
// binding statements or compiling expressions carries one of these so the
// final report can always cite the offending template text, per spec
// §7's "ParseError (tokeniser/parser), LanguageError (ordering, illegal
// combinations, unknown expression type), ExpressionError (invalid
// expression payload)" taxonomy.
type ErrorWithRange struct {
	Code       DiagnosticCode
	Text       string
	Hint       string
	Suggestion string
	Range      Range
}

func (e *ErrorWithRange) Error() string {
	return e.Text
}

// ToMessage resolves a raw ErrorWithRange into a caller-facing
// DiagnosticMessage once a concrete file location is known.
func (e *ErrorWithRange) ToMessage(location *DiagnosticLocation) DiagnosticMessage {
	return DiagnosticMessage{
		Code:       e.Code,
		Text:       e.Text,
		Hint:       e.Hint,
		Suggestion: e.Suggestion,
		Location:   location,
	}
}

// TemplateErrorKind distinguishes the three TemplateError subkinds from
// spec §7 without needing three separate Go types with duplicated
// plumbing.
type TemplateErrorKind int

const (
	ParseErrorKind TemplateErrorKind = iota
	LanguageErrorKind
	ExpressionErrorKind
)

func (k TemplateErrorKind) String() string {
	switch k {
	case ParseErrorKind:
		return "ParseError"
	case LanguageErrorKind:
		return "LanguageError"
	case ExpressionErrorKind:
		return "ExpressionError"
	default:
		return "TemplateError"
	}
}

// TemplateError is the base compile-time error type from spec §7. It wraps
// an ErrorWithRange (for position reporting) and carries a Kind so callers
// can distinguish tokenizer/parser failures from ordering/illegal-
// combination failures from bad expression payloads.
type TemplateError struct {
	Kind  TemplateErrorKind
	Inner *ErrorWithRange
}

func NewTemplateError(kind TemplateErrorKind, code DiagnosticCode, text string, r Range) *TemplateError {
	return &TemplateError{
		Kind:  kind,
		Inner: &ErrorWithRange{Code: code, Text: text, Range: r},
	}
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Inner.Text)
}

func (e *TemplateError) Unwrap() error {
	return e.Inner
}
