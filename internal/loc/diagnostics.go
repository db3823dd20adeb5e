package loc

// DiagnosticCode identifies a specific compile-time diagnostic. Codes are
// grouped by severity band the same way the teacher compiler groups them
// (1000s errors, 2000s warnings, 3000s info, 4000s hints) so a caller can
// tell a diagnostic's rough severity from its code alone, before even
// consulting Severity.
type DiagnosticCode int

const (
	ERROR DiagnosticCode = 1000 + iota
	ERROR_UNTERMINATED_COMMENT
	ERROR_DOUBLE_HYPHEN_IN_COMMENT
	ERROR_UNEXPECTED_END_TAG
	ERROR_UNTERMINATED_TAG
	ERROR_UNTERMINATED_ATTRIBUTE
	ERROR_UNKNOWN_NAMESPACE
	ERROR_CONTENT_AND_REPLACE
	ERROR_FILL_SLOT_NOT_IN_MACRO
	ERROR_CASE_WITHOUT_SWITCH
	ERROR_UNKNOWN_EXPRESSION_TYPE
	ERROR_RESERVED_NAME
	ERROR_BAD_TUPLE_TARGET
	ERROR_UNCLOSED_EXPRESSION
	ERROR_UNESCAPED_PIPE
	ERROR_BAD_CODE_BLOCK
)

const (
	WARNING DiagnosticCode = 2000 + iota
	WARNING_UNEXPECTED_CHARACTER
	WARNING_DEPRECATED_ATTRIBUTE
	WARNING_UNKNOWN_SLOT_FILL
	WARNING_IGNORED_I18N_NAME
)

const (
	INFO DiagnosticCode = 3000 + iota
)

const (
	HINT DiagnosticCode = 4000 + iota
)

// DiagnosticSeverity mirrors the LSP severity ordering: smaller is worse.
type DiagnosticSeverity int

const (
	ErrorType DiagnosticSeverity = iota + 1
	WarningType
	InformationType
	HintType
)

// DiagnosticLocation is the resolved, human-facing position of a
// diagnostic: a filename, 1-based line/column, and the byte length of the
// offending span.
type DiagnosticLocation struct {
	File   string
	Line   int
	Column int
	Length int
}

// DiagnosticMessage is what a caller of this module actually wants back:
// text plus an optional location and severity. Text-only messages (no
// location) are used for diagnostics with no sensible source span, such as
// configuration errors.
type DiagnosticMessage struct {
	Code       DiagnosticCode
	Text       string
	Hint       string
	Suggestion string
	Severity   int
	Location   *DiagnosticLocation
}
