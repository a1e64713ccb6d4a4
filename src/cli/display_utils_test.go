package cli

import (
	"bytes"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.lsp.dev/protocol"
)

func diagAt(line, col uint32, sev protocol.DiagnosticSeverity, msg, source string) protocol.Diagnostic {
	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: line, Character: col},
			End:   protocol.Position{Line: line, Character: col + 1},
		},
		Severity: sev,
		Message:  msg,
		Source:   source,
	}
}

func TestRenderReportWithoutColor(t *testing.T) {
	report := &RunReport{
		Language: "python",
		Server:   "pyright 1.1.0",
		Files: []FileReport{
			{
				Path: "main.py",
				Diagnostics: []protocol.Diagnostic{
					diagAt(2, 8, protocol.DiagnosticSeverityWarning, "TODO comment", "fakelsp"),
					diagAt(10, 0, protocol.DiagnosticSeverityError, "undefined name", ""),
				},
			},
			{Path: "util.py", Diagnostics: []protocol.Diagnostic{}},
		},
	}

	var buf bytes.Buffer
	RenderReport(&buf, report, &ReportOptions{NoColor: true})

	expected := "python (pyright 1.1.0)\n" +
		"\n" +
		"main.py\n" +
		"  3:9    warning  TODO comment  [fakelsp]\n" +
		"  11:1   error    undefined name\n" +
		"util.py\n" +
		"  ✓ no diagnostics\n" +
		"\n" +
		"2 files: 1 error, 1 warning, 0 infos, 0 hints\n"
	assert.Equal(t, expected, buf.String())
}

func TestRenderReportFailedFile(t *testing.T) {
	report := &RunReport{
		Language: "go",
		Files: []FileReport{
			{Path: "missing.go", Err: stderrors.New("failed to read file missing.go")},
		},
	}

	var buf bytes.Buffer
	RenderReport(&buf, report, &ReportOptions{NoColor: true})

	out := buf.String()
	assert.Contains(t, out, "go\n\nmissing.go\n")
	assert.Contains(t, out, "  ✗ failed to read file missing.go\n")
	assert.Contains(t, out, "1 file: 0 errors, 0 warnings, 0 infos, 0 hints (1 failed)\n")
}

func TestRunReportHasErrors(t *testing.T) {
	tests := []struct {
		name     string
		files    []FileReport
		expected bool
	}{
		{name: "empty", files: nil, expected: false},
		{
			name: "warnings only",
			files: []FileReport{{Diagnostics: []protocol.Diagnostic{
				diagAt(0, 0, protocol.DiagnosticSeverityWarning, "w", ""),
				diagAt(1, 0, protocol.DiagnosticSeverityHint, "h", ""),
			}}},
			expected: false,
		},
		{
			name: "error diagnostic",
			files: []FileReport{{Diagnostics: []protocol.Diagnostic{
				diagAt(0, 0, protocol.DiagnosticSeverityError, "e", ""),
			}}},
			expected: true,
		},
		{
			name:     "failed file",
			files:    []FileReport{{Err: stderrors.New("timeout")}},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &RunReport{Files: tt.files}
			assert.Equal(t, tt.expected, r.HasErrors())
		})
	}
}

func TestServerLabel(t *testing.T) {
	assert.Equal(t, "gopls", serverLabel(nil, "/usr/local/bin/gopls"))
	assert.Equal(t, "gopls", serverLabel(&protocol.ServerInfo{}, "gopls"))
	assert.Equal(t, "pyright", serverLabel(&protocol.ServerInfo{Name: "pyright"}, "x"))
	assert.Equal(t, "pyright 1.1", serverLabel(&protocol.ServerInfo{Name: "pyright", Version: "1.1"}, "x"))
}
