package capabilities

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
)

func decode(t *testing.T, raw string) protocol.ServerCapabilities {
	t.Helper()
	var result protocol.InitializeResult
	require.NoError(t, json.Unmarshal([]byte(raw), &result))
	return result.Capabilities
}

func TestSupportsMethodStandard(t *testing.T) {
	caps := decode(t, `{"capabilities": {
		"textDocumentSync": 1,
		"workspaceSymbolProvider": true,
		"completionProvider": {"triggerCharacters": ["."]},
		"definitionProvider": {},
		"referencesProvider": false
	}}`)

	tests := []struct {
		method   string
		expected bool
	}{
		{protocol.MethodInitialize, true},
		{protocol.MethodWorkspaceSymbol, true},
		{protocol.MethodTextDocumentCompletion, true},
		{protocol.MethodTextDocumentDefinition, true},
		{protocol.MethodTextDocumentReferences, false},
		{protocol.MethodTextDocumentHover, false},
		{protocol.MethodTextDocumentDidOpen, true},
		{protocol.MethodTextDocumentDidChange, true},
		{"custom/extension", true},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			assert.Equal(t, tt.expected, SupportsMethod(caps, "jedi-language-server", tt.method))
		})
	}
}

func TestSupportsMethodOverrides(t *testing.T) {
	caps := decode(t, `{"capabilities": {}}`)

	methods := []string{
		protocol.MethodTextDocumentDefinition,
		protocol.MethodTextDocumentReferences,
		protocol.MethodTextDocumentHover,
		protocol.MethodTextDocumentDocumentSymbol,
		protocol.MethodTextDocumentCompletion,
	}
	for _, command := range []string{"jdtls", "/opt/OmniSharp/OmniSharp"} {
		for _, m := range methods {
			assert.True(t, SupportsMethod(caps, command, m), "%s should support %s", command, m)
		}
	}
	assert.False(t, SupportsMethod(caps, "gopls", protocol.MethodTextDocumentHover))
}

func TestSyncKind(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		kind      protocol.TextDocumentSyncKind
		openClose bool
	}{
		{name: "omitted", raw: `{"capabilities": {}}`, kind: protocol.TextDocumentSyncKindNone},
		{name: "bare full", raw: `{"capabilities": {"textDocumentSync": 1}}`, kind: protocol.TextDocumentSyncKindFull, openClose: true},
		{name: "bare none", raw: `{"capabilities": {"textDocumentSync": 0}}`, kind: protocol.TextDocumentSyncKindNone},
		{
			name:      "options incremental",
			raw:       `{"capabilities": {"textDocumentSync": {"openClose": true, "change": 2}}}`,
			kind:      protocol.TextDocumentSyncKindIncremental,
			openClose: true,
		},
		{
			name: "options without openClose",
			raw:  `{"capabilities": {"textDocumentSync": {"change": 1}}}`,
			kind: protocol.TextDocumentSyncKindFull,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := decode(t, tt.raw)
			assert.Equal(t, tt.kind, SyncKind(caps))
			assert.Equal(t, tt.openClose, OpenClose(caps))
		})
	}
}

func TestSyncKindTypedValues(t *testing.T) {
	caps := protocol.ServerCapabilities{TextDocumentSync: protocol.TextDocumentSyncKindIncremental}
	assert.Equal(t, protocol.TextDocumentSyncKindIncremental, SyncKind(caps))
	assert.True(t, OpenClose(caps))

	caps = protocol.ServerCapabilities{TextDocumentSync: &protocol.TextDocumentSyncOptions{OpenClose: true, Change: protocol.TextDocumentSyncKindFull}}
	assert.Equal(t, protocol.TextDocumentSyncKindFull, SyncKind(caps))
	assert.True(t, OpenClose(caps))
}
