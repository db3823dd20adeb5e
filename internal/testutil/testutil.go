// Package testutil adapts the teacher compiler's internal/test_utils
// helpers (dedent, ANSI colored diffs, named snapshots) from astro's
// js/css/jsx output kinds to this compiler's markup/diagnostic output.
package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/google/go-cmp/cmp"
	"github.com/lithammer/dedent"
	"github.com/pkg/diff"
)

// Dedent strips a common leading-whitespace margin and collapses runs of
// blank lines, the same normalization the teacher applies before
// comparing expected/actual template fixtures written as indented Go
// string literals.
func Dedent(input string) string {
	return dedent.Dedent(
		strings.ReplaceAll(
			strings.TrimLeft(
				strings.TrimRight(input, " \n\r"),
				" \t\r\n"),
			"\n\n\n", "\n\n"),
	)
}

// ANSIDiff renders a cmp.Diff with red/green ANSI coloring for
// terminal-readable test failure output.
func ANSIDiff(x, y any, opts ...cmp.Option) string {
	escapeCode := func(code int) string { return fmt.Sprintf("\x1b[%dm", code) }
	d := cmp.Diff(x, y, opts...)
	if d == "" {
		return ""
	}
	lines := strings.Split(d, "\n")
	for i, l := range lines {
		switch {
		case strings.HasPrefix(l, "-"):
			lines[i] = escapeCode(31) + l + escapeCode(0)
		case strings.HasPrefix(l, "+"):
			lines[i] = escapeCode(32) + l + escapeCode(0)
		}
	}
	return strings.Join(lines, "\n")
}

// LineDiff renders a unified byte-level diff between two rendered
// outputs, used for the round-trip/losslessness property tests (spec
// §8 properties 1 and 6) where a cmp.Diff on two long HTML strings is
// far less readable than a line diff.
func LineDiff(want, got string) string {
	var b strings.Builder
	_ = diff.Text("want", "got", want, got, &b)
	return b.String()
}

// RedactTestName strips characters a filesystem or a snapshot file name
// can't carry, mirroring the teacher's RedactTestName.
func RedactTestName(name string) string {
	r := strings.NewReplacer(
		"#", "_", "<", "_", ">", "_", ")", "_", "(", "_",
		":", "_", " ", "_", "'", "_", `"`, "_", "@", "_",
		"`", "_", "+", "_",
	)
	return r.Replace(name)
}

// OutputKind labels a snapshot's fenced-code-block language.
type OutputKind int

const (
	HTMLOutput OutputKind = iota
	DiagnosticOutput
)

var outputKindName = map[OutputKind]string{
	HTMLOutput:       "html",
	DiagnosticOutput: "text",
}

// SnapshotOptions mirrors the teacher's SnapshotOptions, narrowed to the
// two output kinds this compiler produces: rendered markup and
// diagnostic listings.
type SnapshotOptions struct {
	Testing      *testing.T
	TestCaseName string
	Input        string
	Output       string
	Kind         OutputKind
	FolderName   string
}

// MakeSnapshot records a snapshot containing both a test case's input
// template and its compiled/rendered output, so a snapshot review shows
// the full picture without cross-referencing the test source.
func MakeSnapshot(opts *SnapshotOptions) {
	folder := "__snapshots__"
	if opts.FolderName != "" {
		folder = opts.FolderName
	}
	s := snaps.WithConfig(
		snaps.Filename(RedactTestName(opts.TestCaseName)),
		snaps.Dir(folder),
	)

	var b strings.Builder
	b.WriteString("## Input\n\n```\n")
	b.WriteString(Dedent(opts.Input))
	b.WriteString("\n```\n\n## Output\n\n```")
	b.WriteString(outputKindName[opts.Kind])
	b.WriteByte('\n')
	b.WriteString(Dedent(opts.Output))
	b.WriteString("\n```")

	s.MatchSnapshot(opts.Testing, b.String())
}
