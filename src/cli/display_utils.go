package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"go.lsp.dev/protocol"

	"lsp-tester/src/server/diagnostics"
)

// FileReport is the outcome of one file in a run
type FileReport struct {
	Path        string
	LanguageID  string
	Diagnostics []protocol.Diagnostic
	// Err is set when the file could not be opened or no diagnostics arrived in time
	Err error
}

// RunReport collects what a run observed
type RunReport struct {
	Language string
	Server   string
	Files    []FileReport
}

// ReportOptions configures report rendering
type ReportOptions struct {
	NoColor bool
}

// Counts totals diagnostics by severity across all files
func (r *RunReport) Counts() map[protocol.DiagnosticSeverity]int {
	all := []protocol.Diagnostic{}
	for _, f := range r.Files {
		all = append(all, f.Diagnostics...)
	}
	return diagnostics.CountBySeverity(all)
}

// Failed counts files that produced no result
func (r *RunReport) Failed() int {
	n := 0
	for _, f := range r.Files {
		if f.Err != nil {
			n++
		}
	}
	return n
}

// HasErrors reports error diagnostics or failed files
func (r *RunReport) HasErrors() bool {
	return r.Counts()[protocol.DiagnosticSeverityError] > 0 || r.Failed() > 0
}

type palette struct {
	header, path, dim, ok *color.Color
	severity              map[protocol.DiagnosticSeverity]*color.Color
}

func newPalette(noColor bool) *palette {
	p := &palette{
		header: color.New(color.FgCyan, color.Bold),
		path:   color.New(color.Bold),
		dim:    color.New(color.FgHiBlack),
		ok:     color.New(color.FgGreen),
		severity: map[protocol.DiagnosticSeverity]*color.Color{
			protocol.DiagnosticSeverityError:       color.New(color.FgRed, color.Bold),
			protocol.DiagnosticSeverityWarning:     color.New(color.FgYellow),
			protocol.DiagnosticSeverityInformation: color.New(color.FgCyan),
			protocol.DiagnosticSeverityHint:        color.New(color.FgHiBlack),
		},
	}
	if noColor {
		for _, c := range []*color.Color{p.header, p.path, p.dim, p.ok} {
			c.DisableColor()
		}
		for _, c := range p.severity {
			c.DisableColor()
		}
	}
	return p
}

func (p *palette) forSeverity(sev protocol.DiagnosticSeverity) *color.Color {
	if c, ok := p.severity[sev]; ok {
		return c
	}
	return p.severity[protocol.DiagnosticSeverityError]
}

// RenderReport writes a per-file diagnostics listing followed by a summary line.
//
// Example output:
//
//	python (pyright 1.1.0)
//
//	main.py
//	  3:9   warning  TODO comment  [fakelsp]
//	util.py
//	  ✓ no diagnostics
//
//	2 files: 0 errors, 1 warning, 0 infos, 0 hints
func RenderReport(w io.Writer, r *RunReport, opts *ReportOptions) {
	noColor := false
	if opts != nil {
		noColor = opts.NoColor
	}
	p := newPalette(noColor)

	if r.Server != "" {
		p.header.Fprintf(w, "%s (%s)\n\n", r.Language, r.Server)
	} else {
		p.header.Fprintf(w, "%s\n\n", r.Language)
	}

	for _, f := range r.Files {
		p.path.Fprintln(w, f.Path)

		if f.Err != nil {
			p.forSeverity(protocol.DiagnosticSeverityError).Fprintf(w, "  ✗ %v\n", f.Err)
			continue
		}
		if len(f.Diagnostics) == 0 {
			p.ok.Fprintln(w, "  ✓ no diagnostics")
			continue
		}

		for _, d := range f.Diagnostics {
			pos := fmt.Sprintf("%d:%d", d.Range.Start.Line+1, d.Range.Start.Character+1)
			fmt.Fprintf(w, "  %-6s ", pos)
			p.forSeverity(d.Severity).Fprint(w, padRight(severityName(d.Severity), 8))
			fmt.Fprintf(w, " %s", d.Message)
			if d.Source != "" {
				p.dim.Fprintf(w, "  [%s]", d.Source)
			}
			fmt.Fprintln(w)
		}
	}

	counts := r.Counts()
	fmt.Fprintln(w)
	summary := fmt.Sprintf("%s: %s, %s, %s, %s",
		plural(len(r.Files), "file"),
		plural(counts[protocol.DiagnosticSeverityError], "error"),
		plural(counts[protocol.DiagnosticSeverityWarning], "warning"),
		plural(counts[protocol.DiagnosticSeverityInformation], "info"),
		plural(counts[protocol.DiagnosticSeverityHint], "hint"),
	)
	if failed := r.Failed(); failed > 0 {
		summary += fmt.Sprintf(" (%d failed)", failed)
	}
	if r.HasErrors() {
		p.forSeverity(protocol.DiagnosticSeverityError).Fprintln(w, summary)
	} else {
		p.ok.Fprintln(w, summary)
	}
}

func severityName(sev protocol.DiagnosticSeverity) string {
	switch sev {
	case protocol.DiagnosticSeverityError:
		return "error"
	case protocol.DiagnosticSeverityWarning:
		return "warning"
	case protocol.DiagnosticSeverityInformation:
		return "info"
	case protocol.DiagnosticSeverityHint:
		return "hint"
	default:
		return "unknown"
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

func padRight(s string, width int) string {
	for len(s) < width {
		s += " "
	}
	return s
}
