package talc

import (
	"strings"
	"testing"

	"github.com/talweave/talc/internal/handler"
	"github.com/talweave/talc/internal/testutil"
)

func parse(t *testing.T, source string) (*Node, *handler.Handler) {
	t.Helper()
	h := handler.NewHandler(source, "test.pt")
	doc, err := Parse(strings.NewReader(source), h)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return doc, h
}

func TestParseTreeShape(t *testing.T) {
	doc, h := parse(t, `<html><body><p>Hi</p><p>Bye</p></body></html>`)
	if h.HasErrors() {
		t.Fatalf("unexpected errors: %v", h.Errors())
	}
	html := doc.FirstChild
	if html == nil || html.Data != "html" {
		t.Fatalf("bad root element: %+v", html)
	}
	body := html.FirstChild
	if body == nil || body.Data != "body" {
		t.Fatalf("bad body: %+v", body)
	}
	ps := Children(body)
	if len(ps) != 2 || ps[0].Data != "p" || ps[1].Data != "p" {
		t.Fatalf("bad children: %+v", ps)
	}
	if ps[0].FirstChild.Data != "Hi" || ps[1].FirstChild.Data != "Bye" {
		t.Errorf("bad text children")
	}
}

func TestParseVoidElements(t *testing.T) {
	doc, _ := parse(t, `<div><br><img src="x.png"><span>y</span></div>`)
	div := doc.FirstChild
	kids := Children(div)
	if len(kids) != 3 {
		t.Fatalf("void elements must not capture following siblings: %+v", kids)
	}
	if kids[0].Data != "br" || kids[1].Data != "img" || kids[2].Data != "span" {
		t.Errorf("bad children order: %s %s %s", kids[0].Data, kids[1].Data, kids[2].Data)
	}
}

func TestParseUnexpectedEndTag(t *testing.T) {
	_, h := parse(t, `<div></span></div>`)
	if !h.HasErrors() {
		t.Fatal("expected an error for the unmatched end tag")
	}
}

func TestParseRoundTrip(t *testing.T) {
	// Property 1: re-serialising the tree reproduces the source.
	sources := []string{
		`<html><body class="x"><p>Hello</p></body></html>`,
		`<div id='a' data-x=plain hidden>text</div>`,
		`<!DOCTYPE html><html><head><title>t</title></head><body></body></html>`,
		`<ul><li>one</li><li>two</li></ul>`,
		`<div><!-- note --><br/></div>`,
		`<?xml version="1.0"?><root><leaf/></root>`,
		`<p>before<em>mid</em>after</p>`,
		`<p>a &amp; b &copy; c</p>`,
		`<a href="a &lt; b" title='q'>x</a>`,
	}
	for _, source := range sources {
		doc, h := parse(t, source)
		if h.HasErrors() {
			t.Fatalf("%s: unexpected errors: %v", source, h.Errors())
		}
		var b strings.Builder
		PrintToSource(&b, doc)
		if got := b.String(); got != source {
			t.Errorf("round trip mismatch:\n%s", testutil.LineDiff(source, got))
		}
	}
}

func TestParseRoundTripStripsControlAttributes(t *testing.T) {
	// After binding, control attributes are gone but everything else
	// survives byte-for-byte.
	source := `<div class="box" tal:condition="ok"><p tal:content="msg">x</p></div>`
	doc, h := parse(t, source)
	BindStatements(doc, BindOptions{}, h)
	if h.HasErrors() {
		t.Fatalf("unexpected errors: %v", h.Errors())
	}
	var b strings.Builder
	PrintToSource(&b, doc)
	want := `<div class="box"><p>x</p></div>`
	if got := b.String(); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	source := `<div class="box" tal:repeat="i items"><p tal:content="i">x</p></div>`
	doc, h := parse(t, source)
	BindStatements(doc, BindOptions{}, h)
	data, err := EncodeNode(doc)
	if err != nil {
		t.Fatalf("EncodeNode: %v", err)
	}
	back, err := DecodeNode(data)
	if err != nil {
		t.Fatalf("DecodeNode: %v", err)
	}
	var a, b strings.Builder
	PrintToSource(&a, doc)
	PrintToSource(&b, back)
	if a.String() != b.String() {
		t.Errorf("decode mismatch:\n%s", testutil.LineDiff(a.String(), b.String()))
	}
	div := back.FirstChild
	if len(div.Statements) != 1 || div.Statements[0].Kind.String() != "repeat" {
		t.Errorf("statements lost in serialization: %+v", div.Statements)
	}
}

func TestParseStatementBinding(t *testing.T) {
	doc, h := parse(t, `<div tal:define="x 1; y 2" tal:condition="x" metal:define-macro="m" unknown:thing="z"></div>`)
	BindStatements(doc, BindOptions{}, h)
	div := doc.FirstChild
	if len(div.Statements) != 4 {
		t.Fatalf("got %d statements, want 4: %+v", len(div.Statements), div.Statements)
	}
	if len(div.Attr) != 1 || div.Attr[0].Namespace != "unknown" {
		t.Errorf("unknown-namespace attribute should pass through: %+v", div.Attr)
	}
}
