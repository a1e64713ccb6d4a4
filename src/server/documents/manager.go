// Package documents tracks the text and version of every document the harness has opened.
package documents

import (
	"sort"
	"sync"

	"go.lsp.dev/uri"

	"lsp-tester/src/internal/errors"
	"lsp-tester/src/internal/registry"
)

// StateManager holds one Document per open URI. A failed call leaves the mapping unchanged.
type StateManager struct {
	mu   sync.RWMutex
	docs map[uri.URI]Document
}

// NewStateManager creates an empty manager
func NewStateManager() *StateManager {
	return &StateManager{
		docs: make(map[uri.URI]Document),
	}
}

// Open starts tracking a document at version 1
func (m *StateManager) Open(u uri.URI, languageID, text string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.docs[u]; exists {
		return Document{}, errors.NewAlreadyOpenError(string(u))
	}
	doc := Document{
		uri:        u,
		languageID: languageID,
		version:    1,
		text:       text,
	}
	m.docs[u] = doc
	return doc, nil
}

// Change replaces the text and bumps the version by one
func (m *StateManager) Change(u uri.URI, newText string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, exists := m.docs[u]
	if !exists {
		return Document{}, errors.NewNotOpenError(string(u))
	}
	doc.version++
	doc.text = newText
	m.docs[u] = doc
	return doc, nil
}

// Close stops tracking a document
func (m *StateManager) Close(u uri.URI) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.docs[u]; !exists {
		return errors.NewNotOpenError(string(u))
	}
	delete(m.docs, u)
	return nil
}

// Get returns the current snapshot
func (m *StateManager) Get(u uri.URI) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, exists := m.docs[u]
	if !exists {
		return Document{}, errors.NewNotOpenError(string(u))
	}
	return doc, nil
}

// CurrentVersion reports the version of an open document
func (m *StateManager) CurrentVersion(u uri.URI) (int32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, exists := m.docs[u]
	return doc.version, exists
}

// URIs returns the open URIs in sorted order
func (m *StateManager) URIs() []uri.URI {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]uri.URI, 0, len(m.docs))
	for u := range m.docs {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of open documents
func (m *StateManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// DetectLanguageID returns the LSP languageId for a file path or URI
func DetectLanguageID(path string) string {
	return registry.DetectLanguageID(path)
}
