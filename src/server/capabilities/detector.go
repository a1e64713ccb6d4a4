// Package capabilities interprets the capabilities a server announces in its initialize result.
package capabilities

import (
	"strings"

	"go.lsp.dev/protocol"
)

// SupportsMethod reports whether a server announced support for method. Lifecycle and
// document sync methods are always allowed; methods without a capability flag are
// assumed supported. serverCommand enables known under-reporting overrides.
func SupportsMethod(caps protocol.ServerCapabilities, serverCommand, method string) bool {
	if underReports(serverCommand) {
		switch method {
		case protocol.MethodTextDocumentDefinition, protocol.MethodTextDocumentReferences,
			protocol.MethodTextDocumentHover, protocol.MethodTextDocumentDocumentSymbol,
			protocol.MethodTextDocumentCompletion:
			return true
		}
	}

	switch method {
	case protocol.MethodInitialize, protocol.MethodShutdown, protocol.MethodExit:
		return true
	case protocol.MethodTextDocumentDidOpen, protocol.MethodTextDocumentDidClose:
		return OpenClose(caps)
	case protocol.MethodTextDocumentDidChange:
		return SyncKind(caps) != protocol.TextDocumentSyncKindNone
	case protocol.MethodTextDocumentCompletion:
		return caps.CompletionProvider != nil
	case protocol.MethodTextDocumentHover:
		return isSupported(caps.HoverProvider)
	case protocol.MethodTextDocumentDefinition:
		return isSupported(caps.DefinitionProvider)
	case protocol.MethodTextDocumentReferences:
		return isSupported(caps.ReferencesProvider)
	case protocol.MethodTextDocumentDocumentSymbol:
		return isSupported(caps.DocumentSymbolProvider)
	case protocol.MethodWorkspaceSymbol:
		return isSupported(caps.WorkspaceSymbolProvider)
	case protocol.MethodTextDocumentCodeAction:
		return isSupported(caps.CodeActionProvider)
	case protocol.MethodTextDocumentFormatting:
		return isSupported(caps.DocumentFormattingProvider)
	case protocol.MethodTextDocumentRename:
		return isSupported(caps.RenameProvider)
	default:
		return true
	}
}

// jdtls and OmniSharp handle the core textDocument requests but often leave them out
func underReports(serverCommand string) bool {
	cmd := strings.ToLower(serverCommand)
	return strings.Contains(cmd, "jdtls") || strings.Contains(cmd, "omnisharp")
}

// SyncKind returns the didChange mode. textDocumentSync is either a bare kind or an
// options object; when omitted the server wants no sync.
func SyncKind(caps protocol.ServerCapabilities) protocol.TextDocumentSyncKind {
	switch v := caps.TextDocumentSync.(type) {
	case protocol.TextDocumentSyncKind:
		return v
	case float64:
		return protocol.TextDocumentSyncKind(v)
	case *protocol.TextDocumentSyncOptions:
		if v != nil {
			return v.Change
		}
	case map[string]interface{}:
		if change, ok := v["change"].(float64); ok {
			return protocol.TextDocumentSyncKind(change)
		}
	}
	return protocol.TextDocumentSyncKindNone
}

// OpenClose reports whether didOpen/didClose should be sent. A bare kind other than
// None implies open/close notifications.
func OpenClose(caps protocol.ServerCapabilities) bool {
	switch v := caps.TextDocumentSync.(type) {
	case *protocol.TextDocumentSyncOptions:
		return v != nil && v.OpenClose
	case map[string]interface{}:
		openClose, _ := v["openClose"].(bool)
		return openClose
	default:
		return SyncKind(caps) != protocol.TextDocumentSyncKindNone
	}
}

func isSupported(capability interface{}) bool {
	if capability == nil {
		return false
	}

	if boolVal, ok := capability.(bool); ok {
		return boolVal
	}

	// Options objects, even empty ones, mean supported
	return true
}
