package talc

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

var (
	_ CompiledTemplate = (*Template)(nil)
	_ CompiledTemplate = (*Macro)(nil)
)

func TestRenderString(t *testing.T) {
	tmpl, err := New(`<p tal:content="'Hello, ' + name">x</p>`, &Settings{})
	assert.NilError(t, err)
	out, err := tmpl.Render(map[string]any{"name": "World"}, nil)
	assert.NilError(t, err)
	assert.Equal(t, out, `<p>Hello, World</p>`)
}

func TestRenderKeywordArgsShadow(t *testing.T) {
	tmpl, err := New(`<p tal:content="v">x</p>`, &Settings{})
	assert.NilError(t, err)
	out, err := tmpl.Render(map[string]any{"v": "vars"}, nil, map[string]any{"v": "kwargs"})
	assert.NilError(t, err)
	assert.Equal(t, out, `<p>kwargs</p>`)

	// The kwargs layer does not persist: a second render without it
	// sees only vars.
	out, err = tmpl.Render(map[string]any{"v": "vars"}, nil)
	assert.NilError(t, err)
	assert.Equal(t, out, `<p>vars</p>`)
}

func TestRenderIsRepeatable(t *testing.T) {
	tmpl, err := New(`<ul><li tal:repeat="i range(2)" tal:content="i"/></ul>`, &Settings{})
	assert.NilError(t, err)
	first, err := tmpl.Render(nil, nil)
	assert.NilError(t, err)
	second, err := tmpl.Render(nil, nil)
	assert.NilError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, first, `<ul><li>0</li><li>1</li></ul>`)
}

func TestMacrosAccessor(t *testing.T) {
	tmpl, err := New(`<nav metal:define-macro="menu"><a tal:content="target">x</a></nav>`, &Settings{})
	assert.NilError(t, err)
	macros, err := tmpl.Macros()
	assert.NilError(t, err)
	m, ok := macros["menu"]
	assert.Assert(t, ok, "macros: %v", macros)
	assert.Equal(t, m.Name(), "menu")
	out, err := m.Render(map[string]any{"target": "Home"}, nil)
	assert.NilError(t, err)
	assert.Equal(t, out, `<nav><a>Home</a></nav>`)
}

func TestUseMacroAcrossTemplates(t *testing.T) {
	layout, err := New(`<html metal:define-macro="main"><body><div metal:define-slot="content">default</div></body></html>`, &Settings{})
	assert.NilError(t, err)

	page, err := New(`<div metal:use-macro="layout.macros['main']"><p metal:fill-slot="content">Filler</p></div>`, &Settings{})
	assert.NilError(t, err)

	out, err := page.Render(map[string]any{"layout": layout}, nil)
	assert.NilError(t, err)
	assert.Equal(t, out, `<html><body><p>Filler</p></body></html>`)
}

func TestLoadExpression(t *testing.T) {
	dir := t.TempDir()
	layoutPath := filepath.Join(dir, "layout.pt")
	assert.NilError(t, os.WriteFile(layoutPath, []byte(`<html metal:define-macro="main"><div metal:define-slot="content">default</div></html>`), 0o644))
	pagePath := filepath.Join(dir, "page.pt")
	assert.NilError(t, os.WriteFile(pagePath, []byte(`<section tal:define="layout load: layout.pt" metal:use-macro="layout.macros['main']"><p metal:fill-slot="content">Body</p></section>`), 0o644))

	tmpl, err := NewFile(pagePath, &Settings{})
	assert.NilError(t, err)
	out, err := tmpl.Render(nil, nil)
	assert.NilError(t, err)
	assert.Equal(t, out, `<html><p>Body</p></html>`)
}

func TestUseMacroOnLoadedTemplate(t *testing.T) {
	// A template loaded with load: is itself a macro source: use-macro
	// renders its whole document, with fill-slot subtrees spliced in.
	dir := t.TempDir()
	bannerPath := filepath.Join(dir, "banner.pt")
	assert.NilError(t, os.WriteFile(bannerPath, []byte(`<aside><div metal:define-slot="content">default</div></aside>`), 0o644))
	pagePath := filepath.Join(dir, "page.pt")
	assert.NilError(t, os.WriteFile(pagePath, []byte(`<section metal:use-macro="load: banner.pt"><p metal:fill-slot="content">Hi</p></section>`), 0o644))

	tmpl, err := NewFile(pagePath, &Settings{})
	assert.NilError(t, err)
	out, err := tmpl.Render(nil, nil)
	assert.NilError(t, err)
	assert.Equal(t, out, `<aside><p>Hi</p></aside>`)
}

func TestCompileErrorStrict(t *testing.T) {
	tmpl, err := New(`<div tal:bogus="x">y</div>`, &Settings{Strict: true})
	assert.NilError(t, err)
	_, err = tmpl.Render(nil, nil)
	var ce *CompileError
	assert.Assert(t, errors.As(err, &ce), "got %v", err)
	assert.Assert(t, len(ce.Messages) == 1)
	assert.Assert(t, strings.Contains(ce.Error(), "bogus"))
}

func TestCompileErrorIsSticky(t *testing.T) {
	tmpl, err := New(`<div tal:content="1 +">y</div>`, &Settings{})
	assert.NilError(t, err)
	_, err1 := tmpl.Render(nil, nil)
	assert.Assert(t, err1 != nil)
	_, err2 := tmpl.Render(nil, nil)
	assert.Equal(t, err1.Error(), err2.Error())
}

func TestEagerCookReportsErrors(t *testing.T) {
	_, err := New(`<div tal:bogus="x">y</div>`, &Settings{Strict: true, Eager: true})
	var ce *CompileError
	assert.Assert(t, errors.As(err, &ce), "got %v", err)
}

func TestRenderErrorDecoration(t *testing.T) {
	tmpl, err := New("<div>\n  <p tal:content=\"nope.boom\">x</p>\n</div>", &Settings{})
	assert.NilError(t, err)
	_, err = tmpl.Render(nil, nil)
	var re *RenderError
	assert.Assert(t, errors.As(err, &re), "got %v", err)
	assert.Equal(t, re.Template, "<string>")
	assert.Equal(t, re.Line, 2)
	assert.Assert(t, re.Column > 0)
	assert.Assert(t, re.Excerpt != "")
	assert.Assert(t, len(re.Vars) > 0)
	// The original failure stays reachable through the wrapper.
	assert.Assert(t, re.Unwrap() != nil)
}

func TestAutoReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.pt")
	assert.NilError(t, os.WriteFile(path, []byte(`<p tal:content="v">x</p>`), 0o644))

	tmpl, err := NewFile(path, &Settings{AutoReload: true})
	assert.NilError(t, err)
	out, err := tmpl.Render(map[string]any{"v": 1}, nil)
	assert.NilError(t, err)
	assert.Equal(t, out, `<p>1</p>`)

	assert.NilError(t, os.WriteFile(path, []byte(`<b tal:content="v">x</b>`), 0o644))
	future := time.Now().Add(2 * time.Second)
	assert.NilError(t, os.Chtimes(path, future, future))

	out, err = tmpl.Render(map[string]any{"v": 1}, nil)
	assert.NilError(t, err)
	assert.Equal(t, out, `<b>1</b>`)
}

func TestNoReloadWithoutOption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.pt")
	assert.NilError(t, os.WriteFile(path, []byte(`<p tal:content="v">x</p>`), 0o644))

	tmpl, err := NewFile(path, &Settings{})
	assert.NilError(t, err)
	_, err = tmpl.Render(map[string]any{"v": 1}, nil)
	assert.NilError(t, err)

	assert.NilError(t, os.WriteFile(path, []byte(`<b tal:content="v">x</b>`), 0o644))
	future := time.Now().Add(2 * time.Second)
	assert.NilError(t, os.Chtimes(path, future, future))

	out, err := tmpl.Render(map[string]any{"v": 1}, nil)
	assert.NilError(t, err)
	assert.Equal(t, out, `<p>1</p>`, "a cooked template must not re-cook without auto_reload")
}

func TestDiskCache(t *testing.T) {
	cacheDir := t.TempDir()
	source := `<p tal:content="v">x</p>`

	first, err := New(source, &Settings{CacheDir: cacheDir})
	assert.NilError(t, err)
	out, err := first.Render(map[string]any{"v": "a"}, nil)
	assert.NilError(t, err)
	assert.Equal(t, out, `<p>a</p>`)

	entries, err := os.ReadDir(cacheDir)
	assert.NilError(t, err)
	assert.Assert(t, len(entries) == 1, "one cache entry, got %d", len(entries))

	// A second template with the same source and settings reads the
	// cached bound tree and must render identically.
	second, err := New(source, &Settings{CacheDir: cacheDir})
	assert.NilError(t, err)
	out, err = second.Render(map[string]any{"v": "a"}, nil)
	assert.NilError(t, err)
	assert.Equal(t, out, `<p>a</p>`)
}

func TestDumpASTDeterministic(t *testing.T) {
	// Property 6: compiling the same source with the same settings twice
	// produces byte-identical artifacts.
	source := `<div tal:define="x 1"><p tal:content="x" tal:condition="x">y</p></div>`
	a, err := New(source, &Settings{})
	assert.NilError(t, err)
	b, err := New(source, &Settings{})
	assert.NilError(t, err)
	dumpA, err := a.DumpAST()
	assert.NilError(t, err)
	dumpB, err := b.DumpAST()
	assert.NilError(t, err)
	assert.Equal(t, string(dumpA), string(dumpB))
}

func TestTranslateSetting(t *testing.T) {
	upper := func(domain, context, msgID, defaultText string, mapping map[string]string) string {
		return strings.ToUpper(defaultText)
	}
	tmpl, err := New(`<p i18n:translate="">hi there</p>`, &Settings{Translate: upper})
	assert.NilError(t, err)
	out, err := tmpl.Render(nil, nil)
	assert.NilError(t, err)
	assert.Equal(t, out, `<p>HI THERE</p>`)
}

func TestPerRenderTranslateOverrides(t *testing.T) {
	tmpl, err := New(`<p i18n:translate="">hi</p>`, &Settings{})
	assert.NilError(t, err)
	out, err := tmpl.Render(nil, func(domain, context, msgID, defaultText string, mapping map[string]string) string {
		return "[" + defaultText + "]"
	})
	assert.NilError(t, err)
	assert.Equal(t, out, `<p>[hi]</p>`)
}

func TestEncodingLatin1(t *testing.T) {
	src := append([]byte(`<?xml version="1.0" encoding="ISO-8859-1"?><p>caf`), 0xE9, '<', '/', 'p', '>')
	tmpl, err := New(string(src), &Settings{})
	assert.NilError(t, err)
	out, err := tmpl.Render(nil, nil)
	assert.NilError(t, err)
	assert.Assert(t, strings.Contains(out, "café"), "got %q", out)
}

func TestEncodingInvalidUTF8Degrades(t *testing.T) {
	src := append([]byte(`<p>a`), 0xFF, 'b', '<', '/', 'p', '>')
	tmpl, err := New(string(src), &Settings{})
	assert.NilError(t, err)
	out, err := tmpl.Render(nil, nil)
	assert.NilError(t, err)
	assert.Assert(t, strings.Contains(out, "�"), "got %q", out)
}

func TestRestrictedNamespace(t *testing.T) {
	source := `<div weird:thing="x">y</div>`

	lax, err := New(source, &Settings{})
	assert.NilError(t, err)
	out, err := lax.Render(nil, nil)
	assert.NilError(t, err)
	assert.Equal(t, out, `<div weird:thing="x">y</div>`)

	restricted, err := New(source, &Settings{RestrictedNamespace: true})
	assert.NilError(t, err)
	_, err = restricted.Render(nil, nil)
	var ce *CompileError
	assert.Assert(t, errors.As(err, &ce), "got %v", err)
}

func TestDefaultSettingsFromEnvironment(t *testing.T) {
	t.Setenv("TALC_DEBUG", "1")
	t.Setenv("TALC_EAGER", "")
	t.Setenv("TALC_CACHE_DIR", "")
	t.Setenv("TALC_RELOAD", "on")
	t.Setenv("TALC_VALIDATE_STRUCTURE", "")
	s := DefaultSettings()
	assert.Assert(t, s.Debug)
	assert.Assert(t, s.Eager, "debug implies eager")
	assert.Assert(t, s.AutoReload)
}

func TestModulesImport(t *testing.T) {
	settings := &Settings{
		Modules: map[string]any{
			"site": map[string]any{"name": "talweave"},
		},
	}
	tmpl, err := New(`<p tal:define="n import: site.name" tal:content="n">x</p>`, settings)
	assert.NilError(t, err)
	out, err := tmpl.Render(nil, nil)
	assert.NilError(t, err)
	assert.Equal(t, out, `<p>talweave</p>`)
}

func TestConcurrentFirstRender(t *testing.T) {
	tmpl, err := New(`<p tal:content="v">x</p>`, &Settings{})
	assert.NilError(t, err)
	done := make(chan string, 8)
	for i := 0; i < 8; i++ {
		go func() {
			out, err := tmpl.Render(map[string]any{"v": "ok"}, nil)
			if err != nil {
				done <- err.Error()
				return
			}
			done <- out
		}()
	}
	for i := 0; i < 8; i++ {
		assert.Equal(t, <-done, `<p>ok</p>`)
	}
}
