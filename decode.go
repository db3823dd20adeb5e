package talc

import (
	"strings"
)

// decodeSource negotiates the input encoding per spec §4.B: an explicit
// Settings.Encoding wins, else the XML declaration's encoding attribute,
// else UTF-8; decoding errors degrade to the replacement character
// rather than failing the cook.
func decodeSource(src []byte, encoding string) string {
	enc := encoding
	if enc == "" {
		enc = sniffXMLDeclEncoding(src)
	}
	switch strings.ToLower(enc) {
	case "latin-1", "latin1", "iso-8859-1", "iso8859-1":
		return decodeLatin1(src)
	default:
		// UTF-8, or an encoding this engine doesn't carry a table for:
		// decode as UTF-8 with replacement.
		return strings.ToValidUTF8(string(src), "�")
	}
}

// sniffXMLDeclEncoding extracts the encoding pseudo-attribute from a
// leading XML declaration, if any.
func sniffXMLDeclEncoding(src []byte) string {
	head := string(src)
	if len(head) > 256 {
		head = head[:256]
	}
	if !strings.HasPrefix(head, "<?xml") {
		return ""
	}
	end := strings.Index(head, "?>")
	if end < 0 {
		return ""
	}
	decl := head[:end]
	idx := strings.Index(decl, "encoding=")
	if idx < 0 {
		return ""
	}
	rest := decl[idx+len("encoding="):]
	if len(rest) < 2 {
		return ""
	}
	quote := rest[0]
	if quote != '"' && quote != '\'' {
		return ""
	}
	closeIdx := strings.IndexByte(rest[1:], quote)
	if closeIdx < 0 {
		return ""
	}
	return rest[1 : 1+closeIdx]
}

func decodeLatin1(src []byte) string {
	var b strings.Builder
	b.Grow(len(src))
	for _, c := range src {
		b.WriteRune(rune(c))
	}
	return b.String()
}
