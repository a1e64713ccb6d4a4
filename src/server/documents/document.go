package documents

import (
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// Document is an immutable snapshot of a tracked text document
type Document struct {
	uri        uri.URI
	languageID string
	version    int32
	text       string
}

func (d Document) URI() uri.URI       { return d.uri }
func (d Document) LanguageID() string { return d.languageID }
func (d Document) Version() int32     { return d.version }
func (d Document) Text() string       { return d.text }

// GetText returns the document text exactly as last sent to the server
func (d Document) GetText() string { return d.text }

// fullTextChange is a whole-document content change. protocol.TextDocumentContentChangeEvent
// always serializes a range, which would turn the change into an incremental edit.
type fullTextChange struct {
	Text string `json:"text"`
}

// didChangeParams mirrors protocol.DidChangeTextDocumentParams with full-text changes
type didChangeParams struct {
	TextDocument   protocol.VersionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []fullTextChange                         `json:"contentChanges"`
}

// DidOpenParams builds textDocument/didOpen params for a snapshot
func DidOpenParams(doc Document) *protocol.DidOpenTextDocumentParams {
	return &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{
			URI:        doc.uri,
			LanguageID: protocol.LanguageIdentifier(doc.languageID),
			Version:    doc.version,
			Text:       doc.text,
		},
	}
}

// DidChangeParams builds textDocument/didChange params carrying one full-text change
func DidChangeParams(doc Document) interface{} {
	return &didChangeParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: doc.uri},
			Version:                doc.version,
		},
		ContentChanges: []fullTextChange{{Text: doc.text}},
	}
}

// DidCloseParams builds textDocument/didClose params
func DidCloseParams(u uri.URI) *protocol.DidCloseTextDocumentParams {
	return &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: u},
	}
}
