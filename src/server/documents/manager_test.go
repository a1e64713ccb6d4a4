package documents

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/uri"

	"lsp-tester/src/internal/errors"
)

const testURI = uri.URI("file:///work/src/app.ts")

func TestOpenStartsAtVersionOne(t *testing.T) {
	m := NewStateManager()
	doc, err := m.Open(testURI, "typescript", "  const a = 1;\n")
	require.NoError(t, err)

	assert.Equal(t, testURI, doc.URI())
	assert.Equal(t, "typescript", doc.LanguageID())
	assert.Equal(t, int32(1), doc.Version())
	assert.Equal(t, "  const a = 1;\n", doc.Text(), "text is never trimmed")
	assert.Equal(t, doc.Text(), doc.GetText())
	assert.Equal(t, 1, m.Len())
}

func TestVersionsIncreaseByOnePerChange(t *testing.T) {
	m := NewStateManager()
	_, err := m.Open(testURI, "typescript", "v1")
	require.NoError(t, err)

	const changes = 5
	for i := 1; i <= changes; i++ {
		doc, err := m.Change(testURI, fmt.Sprintf("v%d", i+1))
		require.NoError(t, err)
		assert.Equal(t, int32(i+1), doc.Version())
	}

	doc, err := m.Get(testURI)
	require.NoError(t, err)
	assert.Equal(t, int32(1+changes), doc.Version())
	assert.Equal(t, fmt.Sprintf("v%d", 1+changes), doc.Text())

	v, ok := m.CurrentVersion(testURI)
	assert.True(t, ok)
	assert.Equal(t, int32(1+changes), v)
}

func TestSnapshotsAreImmutable(t *testing.T) {
	m := NewStateManager()
	before, err := m.Open(testURI, "typescript", "old")
	require.NoError(t, err)

	_, err = m.Change(testURI, "new")
	require.NoError(t, err)

	assert.Equal(t, "old", before.Text())
	assert.Equal(t, int32(1), before.Version())
}

func TestFailedOperationsLeaveStateUntouched(t *testing.T) {
	m := NewStateManager()
	_, err := m.Open(testURI, "typescript", "original")
	require.NoError(t, err)

	_, err = m.Open(testURI, "javascript", "replacement")
	assert.True(t, errors.IsAlreadyOpenError(err))

	other := uri.URI("file:///work/src/missing.ts")
	_, err = m.Change(other, "x")
	assert.True(t, errors.IsNotOpenError(err))
	assert.True(t, errors.IsNotOpenError(m.Close(other)))
	_, err = m.Get(other)
	assert.True(t, errors.IsNotOpenError(err))
	_, ok := m.CurrentVersion(other)
	assert.False(t, ok)

	doc, err := m.Get(testURI)
	require.NoError(t, err)
	assert.Equal(t, "typescript", doc.LanguageID())
	assert.Equal(t, "original", doc.Text())
	assert.Equal(t, int32(1), doc.Version())
	assert.Equal(t, 1, m.Len())
}

func TestCloseThenReopen(t *testing.T) {
	m := NewStateManager()
	_, err := m.Open(testURI, "typescript", "a")
	require.NoError(t, err)
	_, err = m.Change(testURI, "b")
	require.NoError(t, err)

	require.NoError(t, m.Close(testURI))
	assert.Equal(t, 0, m.Len())
	_, err = m.Change(testURI, "c")
	assert.True(t, errors.IsNotOpenError(err))

	doc, err := m.Open(testURI, "typescript", "fresh")
	require.NoError(t, err)
	assert.Equal(t, int32(1), doc.Version())
}

func TestURIsSorted(t *testing.T) {
	m := NewStateManager()
	for _, u := range []uri.URI{"file:///c.py", "file:///a.py", "file:///b.py"} {
		_, err := m.Open(u, "python", "")
		require.NoError(t, err)
	}
	assert.Equal(t, []uri.URI{"file:///a.py", "file:///b.py", "file:///c.py"}, m.URIs())
}

func TestConcurrentChanges(t *testing.T) {
	m := NewStateManager()
	_, err := m.Open(testURI, "typescript", "")
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Change(testURI, "x")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, _ := m.CurrentVersion(testURI)
	assert.Equal(t, int32(1+workers), v)
}

func TestNotificationParams(t *testing.T) {
	m := NewStateManager()
	doc, err := m.Open(testURI, "typescript", "let x = 1;")
	require.NoError(t, err)

	open, err := json.Marshal(DidOpenParams(doc))
	require.NoError(t, err)
	assert.JSONEq(t, `{"textDocument":{"uri":"file:///work/src/app.ts","languageId":"typescript","version":1,"text":"let x = 1;"}}`, string(open))

	doc, err = m.Change(testURI, "let x = 2;")
	require.NoError(t, err)
	change, err := json.Marshal(DidChangeParams(doc))
	require.NoError(t, err)
	assert.JSONEq(t, `{"textDocument":{"uri":"file:///work/src/app.ts","version":2},"contentChanges":[{"text":"let x = 2;"}]}`, string(change))

	closeParams, err := json.Marshal(DidCloseParams(testURI))
	require.NoError(t, err)
	assert.JSONEq(t, `{"textDocument":{"uri":"file:///work/src/app.ts"}}`, string(closeParams))
}

func TestDetectLanguageID(t *testing.T) {
	assert.Equal(t, "typescript", DetectLanguageID("/work/src/app.ts"))
	assert.Equal(t, "python", DetectLanguageID("file:///work/main.py"))
	assert.Equal(t, "plaintext", DetectLanguageID("/work/Makefile"))
}
