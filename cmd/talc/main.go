// Command talc compiles and renders a template from the command line:
//
//	talc render page.pt name=World
//	talc ast page.pt
//	talc check page.pt
//
// Variables are passed as name=value pairs (values are strings); richer
// bindings belong to embedding programs, not this tool.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	talc "github.com/talweave/talc"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("talc", flag.ContinueOnError)
	strict := fs.Bool("strict", false, "treat unknown expression types and namespaces as errors")
	debug := fs.Bool("debug", false, "eager cooking and richer diagnostics")
	trim := fs.Bool("trim-attribute-space", false, "collapse attribute whitespace")
	cacheDir := fs.String("cache-dir", "", "disk cache directory (default $TALC_CACHE_DIR)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if len(rest) < 2 {
		fmt.Fprintln(os.Stderr, "usage: talc [flags] render|ast|check <template> [name=value ...]")
		return 2
	}
	mode, path := rest[0], rest[1]

	settings := talc.DefaultSettings()
	settings.Strict = *strict
	settings.Debug = settings.Debug || *debug
	settings.TrimAttributeSpace = *trim
	if *cacheDir != "" {
		settings.CacheDir = *cacheDir
	}

	tmpl, err := talc.NewFile(path, &settings)
	if err != nil {
		return report(err)
	}

	switch mode {
	case "render":
		vars := map[string]any{}
		for _, pair := range rest[2:] {
			name, value, ok := strings.Cut(pair, "=")
			if !ok {
				fmt.Fprintf(os.Stderr, "talc: bad variable %q, want name=value\n", pair)
				return 2
			}
			vars[name] = value
		}
		out, err := tmpl.Render(vars, nil)
		if err != nil {
			return report(err)
		}
		fmt.Print(out)
	case "ast":
		data, err := tmpl.DumpAST()
		if err != nil {
			return report(err)
		}
		os.Stdout.Write(data)
		fmt.Println()
	case "check":
		if _, err := tmpl.Macros(); err != nil {
			return report(err)
		}
		for _, d := range tmpl.Diagnostics() {
			if d.Location != nil {
				fmt.Fprintf(os.Stderr, "%s:%d:%d: %s\n", path, d.Location.Line, d.Location.Column, d.Text)
			} else {
				fmt.Fprintf(os.Stderr, "%s: %s\n", path, d.Text)
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "talc: unknown mode %q\n", mode)
		return 2
	}
	return 0
}

func report(err error) int {
	var ce *talc.CompileError
	if errors.As(err, &ce) {
		fmt.Fprintln(os.Stderr, ce.Report())
		return 1
	}
	var re *talc.RenderError
	if errors.As(err, &re) {
		fmt.Fprintln(os.Stderr, re.Error())
		if re.Excerpt != "" {
			fmt.Fprintln(os.Stderr, "  "+re.Excerpt)
			fmt.Fprintln(os.Stderr, "  "+strings.Repeat(" ", re.Caret)+"^")
		}
		return 1
	}
	fmt.Fprintln(os.Stderr, "talc:", err)
	return 1
}
