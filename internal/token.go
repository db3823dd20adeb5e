// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package talc implements the tokenizer, markup parser and element tree
// (spec components A and B) for the TAL/METAL/I18N template compiler.
//
// The Tokenizer below is a direct descendant of Go's standard library
// html.Tokenizer (by way of the teacher compiler's own fork of it),
// generalized from HTML5 tokenization to the permissive XML/HTML dialect
// spec §4.A describes: single/double/unquoted attribute values, XML
// processing instructions (including the `<?python ?>` code-block PI),
// XML declarations, three comment variants (normal, drop `<!--! -->`,
// verbatim `<!--? -->`), and CDATA sections.
package talc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/talweave/talc/internal/handler"
	"github.com/talweave/talc/internal/loc"
	"golang.org/x/net/html/atom"
)

// TokenType is the type of a Token.
type TokenType uint32

const (
	ErrorToken TokenType = iota
	TextToken
	StartTagToken
	EndTagToken
	SelfClosingTagToken
	CommentToken
	// DropCommentToken is the `<!--! ... -->` variant: dropped entirely,
	// never reaches the element tree (spec §4.A).
	DropCommentToken
	// VerbatimCommentToken is the `<!--? ... -->` variant: kept verbatim,
	// not subject to interpolation (spec §4.A, §4.E).
	VerbatimCommentToken
	DoctypeToken
	XMLDeclToken
	// ProcessingInstructionToken covers `<?name ... ?>`, including the
	// `<?python ... ?>` code-block PI (spec §4.G.9).
	ProcessingInstructionToken
	CDATAToken
	EntityRefToken
)

// AttributeType is the quoting style of an attribute value.
type AttributeType uint32

const (
	// QuotedAttribute covers both single- and double-quoted values; the
	// quote rune actually used is recorded on the Attribute so output
	// can round-trip it (testable property 1).
	QuotedAttribute AttributeType = iota
	// UnquotedAttribute is an attribute value with no surrounding quotes
	// at all, permitted by spec §4.A's permissive grammar.
	UnquotedAttribute
	// EmptyAttribute is a bare attribute name with no `=value` at all.
	EmptyAttribute
)

func (t AttributeType) String() string {
	switch t {
	case QuotedAttribute:
		return "quoted"
	case UnquotedAttribute:
		return "unquoted"
	case EmptyAttribute:
		return "empty"
	}
	return "Invalid(" + strconv.Itoa(int(t)) + ")"
}

// ErrBufferExceeded means that the buffering limit was exceeded.
var ErrBufferExceeded = errors.New("max buffer exceeded")

func (t TokenType) String() string {
	switch t {
	case ErrorToken:
		return "Error"
	case TextToken:
		return "Text"
	case StartTagToken:
		return "StartTag"
	case EndTagToken:
		return "EndTag"
	case SelfClosingTagToken:
		return "SelfClosingTag"
	case CommentToken:
		return "Comment"
	case DropCommentToken:
		return "DropComment"
	case VerbatimCommentToken:
		return "VerbatimComment"
	case DoctypeToken:
		return "Doctype"
	case XMLDeclToken:
		return "XMLDecl"
	case ProcessingInstructionToken:
		return "ProcessingInstruction"
	case CDATAToken:
		return "CDATA"
	case EntityRefToken:
		return "EntityRef"
	}
	return "Invalid(" + strconv.Itoa(int(t)) + ")"
}

// Attribute is an attribute namespace-key-value triple, following the same
// shape as the teacher's Attribute but with TAL's simpler attribute-value
// grammar (quoted/unquoted/empty, never JSX-style expression attributes).
// Namespace is non-empty for foreign attributes like `tal:` or `xlink:`.
// Val is unescaped; quote style is remembered in Type/Quote so output can
// reproduce the source byte-for-byte outside of control attributes
// (testable property 1).
type Attribute struct {
	Namespace string
	Key       string
	KeyLoc    loc.Loc
	Val       string
	ValLoc    loc.Loc
	Quote     byte // '"', '\'', or 0 for unquoted/empty
	Type      AttributeType
}

// Token consists of a TokenType and some Data (tag name for start and end
// tags, content for text, comments, doctypes and PIs). DataAtom is the
// well-known-tag atom for Data, or zero if Data is not a known tag name.
type Token struct {
	Type     TokenType
	DataAtom atom.Atom
	Data     string
	Target   string // PI target, e.g. "python" for `<?python ?>`
	Attr     []Attribute
	Loc      loc.Loc
}

func (t Token) tagString() string {
	if len(t.Attr) == 0 {
		return t.Data
	}
	buf := bytes.NewBufferString(t.Data)
	for _, a := range t.Attr {
		buf.WriteByte(' ')
		if a.Namespace != "" {
			buf.WriteString(a.Namespace)
			buf.WriteByte(':')
		}
		switch a.Type {
		case QuotedAttribute:
			q := a.Quote
			if q == 0 {
				q = '"'
			}
			buf.WriteString(a.Key)
			buf.WriteByte('=')
			buf.WriteByte(q)
			buf.WriteString(a.Val)
			buf.WriteByte(q)
		case UnquotedAttribute:
			buf.WriteString(a.Key)
			buf.WriteByte('=')
			buf.WriteString(a.Val)
		case EmptyAttribute:
			buf.WriteString(a.Key)
		}
	}
	return buf.String()
}

func (t Token) String() string {
	switch t.Type {
	case ErrorToken:
		return ""
	case TextToken:
		return t.Data
	case StartTagToken:
		return "<" + t.tagString() + ">"
	case EndTagToken:
		return "</" + t.tagString() + ">"
	case SelfClosingTagToken:
		return "<" + t.tagString() + "/>"
	case CommentToken:
		return "<!--" + t.Data + "-->"
	case DropCommentToken:
		return "<!--!" + t.Data + "-->"
	case VerbatimCommentToken:
		return "<!--?" + t.Data + "-->"
	case DoctypeToken:
		return "<!DOCTYPE " + t.Data + ">"
	case XMLDeclToken:
		return "<?xml " + t.Data + "?>"
	case ProcessingInstructionToken:
		return "<?" + t.Target + " " + t.Data + "?>"
	case CDATAToken:
		return "<![CDATA[" + t.Data + "]]>"
	}
	return "Invalid(" + strconv.Itoa(int(t.Type)) + ")"
}

// Tokenizer returns a stream of lexical Tokens from a single-pass scan of
// decoded source text (spec §4.A).
type Tokenizer struct {
	r         io.Reader
	tt        TokenType
	prevToken Token
	err       error

	raw  loc.Span
	buf  []byte
	data loc.Span

	pendingAttr     [2]loc.Span
	pendingAttrType AttributeType
	pendingQuote    byte
	attr            [][2]loc.Span
	attrTypes       []AttributeType
	attrQuotes      []byte
	nAttrReturned   int

	piTarget string

	rawTag     string
	textIsRaw  bool
	convertNUL bool
	allowCDATA bool

	handler *handler.Handler
}

// AllowCDATA sets whether the tokenizer recognizes `<![CDATA[foo]]>` as the
// text "foo" rather than a bogus comment.
func (z *Tokenizer) AllowCDATA(allowCDATA bool) {
	z.allowCDATA = allowCDATA
}

// Err returns the error associated with the most recent ErrorToken, or nil.
func (z *Tokenizer) Err() error {
	if z.tt != ErrorToken {
		return nil
	}
	return z.err
}

func (z *Tokenizer) readByte() byte {
	if z.raw.End >= len(z.buf) {
		z.err = io.EOF
		return 0
	}
	x := z.buf[z.raw.End]
	z.raw.End++
	return x
}

// Buffered returns the slice of input buffered but not yet tokenized.
func (z *Tokenizer) Buffered() []byte {
	return z.buf[z.raw.End:]
}

func (z *Tokenizer) skipWhiteSpace() {
	if z.err != nil {
		return
	}
	for {
		c := z.readByte()
		if z.err != nil {
			return
		}
		// spec §4.A: \r and \t are accepted anywhere whitespace may appear,
		// same as \n and ' ', so unicode.IsSpace is the right predicate.
		if !unicode.IsSpace(rune(c)) {
			z.raw.End--
			return
		}
	}
}

// rawTags are the elements whose content is never tokenized as markup:
// the tokenizer reads bytes verbatim until the matching end tag. Trimmed
// from the teacher's Astro-only rawTags list down to the spec §4.F set.
var rawTags = map[string]bool{
	"script":   true,
	"style":    true,
	"pre":      true,
	"textarea": true,
	"title":    true,
}

// readRawOrRCDATA reads until the next "</foo>" where foo is z.rawTag.
func (z *Tokenizer) readRawOrRCDATA() {
	if z.Token().Type == SelfClosingTagToken {
		z.data.End = z.raw.End
		z.rawTag = ""
		return
	}
loop:
	for {
		c := z.readByte()
		if z.err != nil {
			break loop
		}
		if c != '<' {
			continue loop
		}
		c = z.readByte()
		if z.err != nil {
			break loop
		}
		if c != '/' {
			z.raw.End--
			continue loop
		}
		if z.readRawEndTag() || z.err != nil {
			break loop
		}
	}
	z.data.End = z.raw.End
	z.textIsRaw = z.rawTag != "textarea" && z.rawTag != "title"
	z.rawTag = ""
}

func (z *Tokenizer) readRawEndTag() bool {
	for i := 0; i < len(z.rawTag); i++ {
		c := z.readByte()
		if z.err != nil {
			return false
		}
		if c != z.rawTag[i] && c != z.rawTag[i]-('a'-'A') {
			z.raw.End--
			return false
		}
	}
	c := z.readByte()
	if z.err != nil {
		return false
	}
	switch c {
	case ' ', '\n', '\r', '\t', '\f', '/', '>':
		z.raw.End -= 3 + len(z.rawTag)
		return true
	}
	z.raw.End--
	return false
}

// readComment reads the body of a comment (the drop `<!--!` and verbatim
// `<!--?` variants are classified afterwards by commentVariant), raising
// a hard error on an embedded `--` per spec §4.A/§4.B.
func (z *Tokenizer) readComment() {
	z.data.Start = z.raw.End
	// The opening "<!--" counts as two dashes so "<!-->" closes as an
	// empty comment, but must not itself trip the embedded-"--" error.
	dashCount := 2
	atStart := true
	for {
		c := z.readByte()
		if z.err != nil {
			z.data.End = z.raw.End
			return
		}
		switch c {
		case '-':
			dashCount++
			continue
		case '>':
			if dashCount >= 2 {
				z.data.End = z.raw.End - 3
				if z.data.End < z.data.Start {
					z.data.End = z.data.Start
				}
				return
			}
		default:
			if dashCount >= 2 && !atStart {
				// "--" followed by something other than ">" is a hard
				// error, spec §4.B.
				z.handler.AppendError(&loc.ErrorWithRange{
					Code: loc.ERROR_DOUBLE_HYPHEN_IN_COMMENT,
					Text: "'--' is not allowed inside a comment",
					Range: loc.Range{
						Loc: loc.Loc{Start: z.raw.End - 1 - dashCount},
						Len: dashCount,
					},
				})
			}
		}
		dashCount = 0
		atStart = false
	}
}

// readUntil reads raw bytes until the literal terminator is found
// (inclusive), used for doctypes, CDATA and processing instructions.
func (z *Tokenizer) readUntil(terminator string) (body loc.Span, ok bool) {
	start := z.raw.End
	for {
		idx := bytes.Index(z.buf[z.raw.End:], []byte(terminator))
		if idx >= 0 {
			body = loc.Span{Start: start, End: z.raw.End + idx}
			z.raw.End += idx + len(terminator)
			return body, true
		}
		// Need more data than is buffered; since Tokenizer reads its whole
		// input up front (see NewTokenizer), absence here means EOF.
		z.err = io.EOF
		return loc.Span{Start: start, End: len(z.buf)}, false
	}
}

func (z *Tokenizer) readMarkupDeclaration() TokenType {
	declStart := z.raw.End
	var s [7]byte
	for i := range s {
		c := z.readByte()
		if z.err != nil {
			z.data = loc.Span{Start: declStart, End: z.raw.End}
			return CommentToken
		}
		s[i] = c
	}
	if string(s[:]) == "[CDATA[" && z.allowCDATA {
		body, _ := z.readUntil("]]>")
		z.data = body
		return CDATAToken
	}
	z.raw.End = declStart
	body, _ := z.readUntil(">")
	z.data = body
	return CommentToken // bogus comment fallback, same idea as the Go html package
}

func (z *Tokenizer) readDoctype() {
	const s = "DOCTYPE"
	for i := 0; i < len(s); i++ {
		if c := z.readByte(); z.err != nil || (c != s[i] && c != s[i]+('a'-'A')) {
			// Not a doctype after all; consume through ">" as a bogus
			// declaration so scanning can continue past it.
			body, _ := z.readUntil(">")
			z.data = body
			return
		}
	}
	z.skipWhiteSpace()
	if z.err != nil {
		return
	}
	body, _ := z.readUntil(">")
	z.data = body
}

// readProcessingInstruction reads `<?target ... ?>`, recording the target
// (spec §4.A's `<?python ... ?>` code-block PI is just the target
// "python"; this tokenizer does not special-case it beyond recording the
// target — component G decides what "python" means).
func (z *Tokenizer) readProcessingInstruction() TokenType {
	targetStart := z.raw.End
	for {
		c := z.readByte()
		if z.err != nil || unicode.IsSpace(rune(c)) || c == '?' {
			if z.err == nil {
				z.raw.End--
			}
			break
		}
	}
	target := string(z.buf[targetStart:z.raw.End])
	z.piTarget = target
	z.skipWhiteSpace()
	z.data.Start = z.raw.End
	body, _ := z.readUntil("?>")
	z.data = body
	if strings.EqualFold(target, "xml") {
		return XMLDeclToken
	}
	return ProcessingInstructionToken
}

// Next scans the next token and returns its type.
func (z *Tokenizer) Next() TokenType {
	z.raw.Start = z.raw.End
	z.data.Start = z.raw.End
	z.data.End = z.raw.End
	if z.err != nil {
		z.tt = ErrorToken
		return z.tt
	}
	if z.rawTag != "" {
		if z.rawTag == "script" || z.rawTag == "style" || z.rawTag == "pre" || z.rawTag == "textarea" || z.rawTag == "title" {
			z.readRawOrRCDATA()
			z.tt = TextToken
			return z.tt
		}
	}

	c := z.readByte()
	if z.err != nil {
		z.tt = ErrorToken
		return z.tt
	}
	if c != '<' {
		z.raw.End--
		z.readText()
		z.tt = TextToken
		return z.tt
	}

	c = z.readByte()
	if z.err != nil {
		z.tt = TextToken // lone trailing '<'
		return z.tt
	}
	switch {
	case c == '!':
		return z.tokenizeMarkupDecl()
	case c == '?':
		z.tt = z.readProcessingInstruction()
		return z.tt
	case c == '/':
		return z.tokenizeEndTag()
	case 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z':
		z.raw.End--
		return z.tokenizeStartTag()
	default:
		z.raw.End -= 2
		z.readText()
		z.tt = TextToken
		return z.tt
	}
}

func (z *Tokenizer) tokenizeMarkupDecl() TokenType {
	c := z.readByte()
	if z.err != nil {
		z.tt = ErrorToken
		return z.tt
	}
	switch {
	case c == '-' && z.peek() == '-':
		z.raw.End++
		z.readComment()
		variant := z.commentVariant()
		z.tt = variant
		return z.tt
	case c == 'D' || c == 'd':
		z.raw.End--
		z.readDoctype()
		z.tt = DoctypeToken
		return z.tt
	case c == '[':
		z.raw.End--
		z.tt = z.readMarkupDeclaration()
		return z.tt
	default:
		z.raw.End--
		z.tt = z.readMarkupDeclaration()
		return z.tt
	}
}

func (z *Tokenizer) peek() byte {
	if z.raw.End >= len(z.buf) {
		return 0
	}
	return z.buf[z.raw.End]
}

// commentVariant inspects the first byte of an already-scanned comment
// body to classify drop/verbatim/normal, per spec §4.A.
func (z *Tokenizer) commentVariant() TokenType {
	if z.data.End > z.data.Start {
		switch z.buf[z.data.Start] {
		case '!':
			z.data.Start++
			return DropCommentToken
		case '?':
			z.data.Start++
			return VerbatimCommentToken
		}
	}
	return CommentToken
}

func (z *Tokenizer) readText() {
	z.textIsRaw = false
	for {
		idx := bytes.IndexByte(z.buf[z.raw.End:], '<')
		if idx < 0 {
			z.raw.End = len(z.buf)
			z.err = io.EOF
			break
		}
		// A '<' inside a ${...} that is still open belongs to the expression.
		open := bytes.LastIndex(z.buf[z.raw.Start:z.raw.End+idx], []byte("${"))
		if open >= 0 && bytes.IndexByte(z.buf[z.raw.Start+open:z.raw.End+idx], '}') < 0 {
			if end := bytes.IndexByte(z.buf[z.raw.End+idx:], '}'); end >= 0 {
				z.raw.End += idx + end + 1
				continue
			}
		}
		z.raw.End += idx
		break
	}
	z.data.End = z.raw.End
}

func (z *Tokenizer) tokenizeEndTag() TokenType {
	nameStart := z.raw.End
	for {
		c := z.readByte()
		if z.err != nil || c == '>' {
			break
		}
	}
	z.data = loc.Span{Start: nameStart, End: z.raw.End - 1}
	for z.data.End > z.data.Start && unicode.IsSpace(rune(z.buf[z.data.End-1])) {
		z.data.End--
	}
	z.rawTag = ""
	z.attr = z.attr[:0]
	z.attrTypes = z.attrTypes[:0]
	z.attrQuotes = z.attrQuotes[:0]
	z.nAttrReturned = 0
	z.tt = EndTagToken
	return z.tt
}

func (z *Tokenizer) tokenizeStartTag() TokenType {
	nameStart := z.raw.End
	for {
		c := z.readByte()
		if z.err != nil {
			z.data = loc.Span{Start: nameStart, End: z.raw.End}
			z.tt = StartTagToken
			return z.tt
		}
		if unicode.IsSpace(rune(c)) || c == '>' || c == '/' {
			z.raw.End--
			break
		}
	}
	z.data = loc.Span{Start: nameStart, End: z.raw.End}
	z.attr = z.attr[:0]
	z.attrTypes = z.attrTypes[:0]
	z.attrQuotes = z.attrQuotes[:0]
	z.nAttrReturned = 0

	selfClosing := false
	for {
		z.skipWhiteSpace()
		if z.err != nil {
			break
		}
		c := z.readByte()
		if z.err != nil {
			break
		}
		if c == '>' {
			break
		}
		if c == '/' {
			if z.peek() == '>' {
				z.raw.End++
				selfClosing = true
				break
			}
			continue
		}
		z.raw.End--
		if !z.readAttribute() {
			break
		}
	}

	name := strings.ToLower(string(z.buf[nameStart:z.data.End]))
	z.rawTag = ""
	if rawTags[name] {
		z.rawTag = name
	}
	if selfClosing {
		z.tt = SelfClosingTagToken
	} else {
		z.tt = StartTagToken
	}
	return z.tt
}

// readAttribute reads one `name`, `name=value`, `name="value"` or
// `name='value'` attribute. Returns false if scanning should stop (error
// or tag close was reached).
func (z *Tokenizer) readAttribute() bool {
	keyStart := z.raw.End
	for {
		c := z.readByte()
		if z.err != nil {
			return false
		}
		if unicode.IsSpace(rune(c)) || c == '=' || c == '>' || c == '/' {
			z.raw.End--
			break
		}
	}
	keySpan := loc.Span{Start: keyStart, End: z.raw.End}
	if keySpan.Len() == 0 {
		// Nothing but whitespace/'/'/'>' — not a real attribute.
		z.readByte()
		return true
	}
	z.skipWhiteSpace()
	if z.err != nil {
		z.pushAttr(keySpan, loc.Span{}, EmptyAttribute, 0)
		return false
	}
	if z.peek() != '=' {
		z.pushAttr(keySpan, loc.Span{}, EmptyAttribute, 0)
		return true
	}
	z.raw.End++ // consume '='
	z.skipWhiteSpace()
	if z.err != nil {
		z.pushAttr(keySpan, loc.Span{}, EmptyAttribute, 0)
		return false
	}
	quote := z.peek()
	if quote == '"' || quote == '\'' {
		z.raw.End++
		valStart := z.raw.End
		for {
			c := z.readByte()
			if z.err != nil {
				break
			}
			if c == quote {
				break
			}
		}
		valEnd := z.raw.End
		if z.err == nil {
			valEnd--
		}
		z.pushAttr(keySpan, loc.Span{Start: valStart, End: valEnd}, QuotedAttribute, quote)
		return true
	}
	// Unquoted value: spec §4.A permits this. Runs until whitespace or '>'.
	valStart := z.raw.End
	for {
		c := z.peek()
		if c == 0 || unicode.IsSpace(rune(c)) || c == '>' {
			break
		}
		z.raw.End++
	}
	z.pushAttr(keySpan, loc.Span{Start: valStart, End: z.raw.End}, UnquotedAttribute, 0)
	return true
}

func (z *Tokenizer) pushAttr(key, val loc.Span, typ AttributeType, quote byte) {
	z.attr = append(z.attr, [2]loc.Span{key, val})
	z.attrTypes = append(z.attrTypes, typ)
	z.attrQuotes = append(z.attrQuotes, quote)
}

// Token returns the current Token; valid only after a call to Next that
// did not return ErrorToken, and only until the next call to Next.
func (z *Tokenizer) Token() Token {
	t := Token{Type: z.tt, Loc: loc.Loc{Start: z.raw.Start}}
	switch z.tt {
	case TextToken, CommentToken, DropCommentToken, VerbatimCommentToken, DoctypeToken, CDATAToken:
		t.Data = z.unescapedData()
	case XMLDeclToken, ProcessingInstructionToken:
		t.Data = string(z.buf[z.data.Start:z.data.End])
		t.Target = z.piTarget
	case StartTagToken, SelfClosingTagToken, EndTagToken:
		t.Data = strings.ToLower(string(z.buf[z.data.Start:z.data.End]))
		t.DataAtom = atom.Lookup(z.buf[z.data.Start:z.data.End])
		for i := range z.attr {
			key := string(z.buf[z.attr[i][0].Start:z.attr[i][0].End])
			val := string(z.buf[z.attr[i][1].Start:z.attr[i][1].End])
			ns := ""
			localKey := key
			if idx := strings.IndexByte(key, ':'); idx >= 0 {
				ns = key[:idx]
				localKey = key[idx+1:]
			}
			t.Attr = append(t.Attr, Attribute{
				Namespace: ns,
				Key:       localKey,
				KeyLoc:    loc.Loc{Start: z.attr[i][0].Start},
				Val:       unescapeEntities(val),
				ValLoc:    loc.Loc{Start: z.attr[i][1].Start},
				Quote:     z.attrQuotes[i],
				Type:      z.attrTypes[i],
			})
		}
	}
	return t
}

// unescapedData returns the current token's data slice. Text content is
// deliberately NOT entity-decoded: literal template text passes through
// to the output byte-for-byte (testable property 1), and the expression
// layer decodes the fixed entity set inside ${...} spans itself (spec
// §4.H). Attribute values ARE decoded (see Token), since their decoded
// form is what both the expression compiler and the re-escaping
// attribute writer consume.
func (z *Tokenizer) unescapedData() string {
	return string(z.buf[z.data.Start:z.data.End])
}

// htmlEntities is the fixed decode table spec §9 calls for: exactly
// `amp`, `lt`, `gt`, `quot` (named) plus numeric character references.
// This intentionally does NOT implement the full HTML5 named-entity
// table (spec's Non-goals exclude full HTML5 conformance).
var htmlEntities = map[string]rune{
	"amp":  '&',
	"lt":   '<',
	"gt":   '>',
	"quot": '"',
}

func unescapeEntities(s string) string {
	if !strings.ContainsRune(s, '&') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '&' {
			b.WriteByte(s[i])
			continue
		}
		end := strings.IndexByte(s[i+1:], ';')
		if end < 0 || end > 12 {
			b.WriteByte(s[i])
			continue
		}
		name := s[i+1 : i+1+end]
		if r, ok := htmlEntities[name]; ok {
			b.WriteRune(r)
			i += end + 1
			continue
		}
		if strings.HasPrefix(name, "#") {
			if r, ok := parseNumericRef(name[1:]); ok {
				b.WriteRune(r)
				i += end + 1
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func parseNumericRef(s string) (rune, bool) {
	hex := false
	if strings.HasPrefix(s, "x") || strings.HasPrefix(s, "X") {
		hex = true
		s = s[1:]
	}
	base := 10
	if hex {
		base = 16
	}
	n, err := strconv.ParseInt(s, base, 32)
	if err != nil {
		return 0, false
	}
	return rune(n), true
}

// NewTokenizer returns a new Tokenizer reading from r, reading r to
// completion up front. Templates are compiled once and rendered many
// times (spec §4.I), so buffering the whole source is the right
// trade-off: it simplifies raw-text scanning and lets every Token's Loc
// remain valid for the lifetime of the parsed tree.
func NewTokenizer(r io.Reader, h *handler.Handler) (*Tokenizer, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading template source: %w", err)
	}
	return &Tokenizer{
		buf:     buf,
		handler: h,
	}, nil
}
