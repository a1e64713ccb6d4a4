package diagnostics

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"lsp-tester/src/internal/errors"
	rpc "lsp-tester/src/server/protocol"
)

const docURI = uri.URI("file:///work/app.ts")

// versionTable is a VersionSource tests can move by hand
type versionTable struct {
	mu       sync.Mutex
	versions map[uri.URI]int32
}

func newVersionTable() *versionTable {
	return &versionTable{versions: make(map[uri.URI]int32)}
}

func (vt *versionTable) set(u uri.URI, v int32) {
	vt.mu.Lock()
	vt.versions[u] = v
	vt.mu.Unlock()
}

func (vt *versionTable) remove(u uri.URI) {
	vt.mu.Lock()
	delete(vt.versions, u)
	vt.mu.Unlock()
}

func (vt *versionTable) CurrentVersion(u uri.URI) (int32, bool) {
	vt.mu.Lock()
	defer vt.mu.Unlock()
	v, ok := vt.versions[u]
	return v, ok
}

func diag(msg string, sev protocol.DiagnosticSeverity) protocol.Diagnostic {
	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: 0, Character: 0},
			End:   protocol.Position{Line: 0, Character: 4},
		},
		Severity: sev,
		Source:   "test",
		Message:  msg,
	}
}

func publish(v *Validator, u uri.URI, version uint32, diags ...protocol.Diagnostic) {
	v.Record(protocol.PublishDiagnosticsParams{URI: u, Version: version, Diagnostics: diags})
}

func TestDiagnosticsForEmptyIsNonNil(t *testing.T) {
	vt := newVersionTable()
	vt.set(docURI, 1)
	v := NewValidator(vt)

	got := v.DiagnosticsFor(docURI)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	_, ok := v.Latest(docURI)
	assert.False(t, ok)
}

func TestDiscardsUntrackedURIs(t *testing.T) {
	vt := newVersionTable()
	v := NewValidator(vt)

	publish(v, docURI, 1, diag("late", protocol.DiagnosticSeverityError))
	vt.set(docURI, 1)
	assert.Empty(t, v.DiagnosticsFor(docURI), "publish before open is not retained")
}

func TestMissingVersionStampedWithCurrent(t *testing.T) {
	vt := newVersionTable()
	vt.set(docURI, 3)
	v := NewValidator(vt)

	publish(v, docURI, 0, diag("x", protocol.DiagnosticSeverityWarning))
	snap, ok := v.Latest(docURI)
	require.True(t, ok)
	assert.Equal(t, int32(3), snap.Version)
	assert.Equal(t, docURI, snap.URI)
	assert.False(t, snap.ReceivedAt.IsZero())
}

func TestNeverReturnsFutureVersion(t *testing.T) {
	vt := newVersionTable()
	vt.set(docURI, 1)
	v := NewValidator(vt)

	publish(v, docURI, 1, diag("v1", protocol.DiagnosticSeverityError))
	publish(v, docURI, 2, diag("v2", protocol.DiagnosticSeverityError))

	got := v.DiagnosticsFor(docURI)
	require.Len(t, got, 1)
	assert.Equal(t, "v1", got[0].Message)

	vt.set(docURI, 2)
	got = v.DiagnosticsFor(docURI)
	require.Len(t, got, 1)
	assert.Equal(t, "v2", got[0].Message)
}

func TestOutOfOrderVersions(t *testing.T) {
	vt := newVersionTable()
	vt.set(docURI, 3)
	v := NewValidator(vt)

	publish(v, docURI, 3, diag("v3", protocol.DiagnosticSeverityError))
	publish(v, docURI, 2, diag("v2", protocol.DiagnosticSeverityError))

	got := v.DiagnosticsFor(docURI)
	require.Len(t, got, 1)
	assert.Equal(t, "v3", got[0].Message, "highest version wins over arrival order")
}

func TestLatestArrivalWinsForEqualVersion(t *testing.T) {
	vt := newVersionTable()
	vt.set(docURI, 1)
	v := NewValidator(vt)

	publish(v, docURI, 1, diag("first", protocol.DiagnosticSeverityError))
	publish(v, docURI, 1)

	assert.Empty(t, v.DiagnosticsFor(docURI))
}

func TestPublishOrderPreserved(t *testing.T) {
	vt := newVersionTable()
	vt.set(docURI, 1)
	v := NewValidator(vt)

	publish(v, docURI, 1,
		diag("c", protocol.DiagnosticSeverityHint),
		diag("a", protocol.DiagnosticSeverityError),
		diag("b", protocol.DiagnosticSeverityWarning),
	)
	got := v.DiagnosticsFor(docURI)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{got[0].Message, got[1].Message, got[2].Message})

	got[0].Message = "mutated"
	assert.Equal(t, "c", v.DiagnosticsFor(docURI)[0].Message, "callers get a copy")
}

func TestAwaitReturnsAlreadyVisibleSnapshot(t *testing.T) {
	vt := newVersionTable()
	vt.set(docURI, 1)
	v := NewValidator(vt)
	publish(v, docURI, 1, diag("ready", protocol.DiagnosticSeverityError))

	got, err := v.AwaitDiagnostics(context.Background(), docURI, nil, 50*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestAwaitWakesOnPublish(t *testing.T) {
	vt := newVersionTable()
	vt.set(docURI, 1)
	v := NewValidator(vt)

	go func() {
		time.Sleep(20 * time.Millisecond)
		publish(v, docURI, 1)
		time.Sleep(20 * time.Millisecond)
		publish(v, docURI, 1, diag("Cannot find name 'foo'", protocol.DiagnosticSeverityError))
	}()

	got, err := v.AwaitDiagnostics(context.Background(), docURI, Count(1), 2*time.Second)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Cannot find name 'foo'", got[0].Message)
}

func TestAwaitTimesOutAndLateArrivalStillRecorded(t *testing.T) {
	vt := newVersionTable()
	vt.set(docURI, 1)
	v := NewValidator(vt)

	_, err := v.AwaitDiagnostics(context.Background(), docURI, Any, 30*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.IsTimeoutError(err))

	publish(v, docURI, 1, diag("late", protocol.DiagnosticSeverityInformation))
	assert.Len(t, v.DiagnosticsFor(docURI), 1)
}

func TestAwaitContextCancelled(t *testing.T) {
	vt := newVersionTable()
	vt.set(docURI, 1)
	v := NewValidator(vt)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := v.AwaitDiagnostics(ctx, docURI, Any, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAwaitAfterChangeIgnoresStaleVersion(t *testing.T) {
	vt := newVersionTable()
	vt.set(docURI, 1)
	v := NewValidator(vt)
	publish(v, docURI, 1, diag("old", protocol.DiagnosticSeverityError))

	vt.set(docURI, 2)
	assert.Len(t, v.DiagnosticsFor(docURI), 1, "version 1 stays visible until version 2 arrives")

	go func() {
		time.Sleep(20 * time.Millisecond)
		publish(v, docURI, 2)
	}()
	got, err := v.AwaitDiagnostics(context.Background(), docURI, AtLeastVersion(2), 2*time.Second)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestForget(t *testing.T) {
	vt := newVersionTable()
	vt.set(docURI, 1)
	v := NewValidator(vt)
	publish(v, docURI, 1, diag("x", protocol.DiagnosticSeverityError))

	v.Forget(docURI)
	vt.remove(docURI)
	publish(v, docURI, 1, diag("after close", protocol.DiagnosticSeverityError))

	vt.set(docURI, 1)
	assert.Empty(t, v.DiagnosticsFor(docURI), "reopened document starts clean")
}

// closingSource closes the document during its first lookup, the way a
// CloseDocument can land between a publish's open check and its store
type closingSource struct {
	*versionTable
	once    sync.Once
	onFirst func(uri.URI)
}

func (cs *closingSource) CurrentVersion(u uri.URI) (int32, bool) {
	version, ok := cs.versionTable.CurrentVersion(u)
	cs.once.Do(func() { cs.onFirst(u) })
	return version, ok
}

func TestRecordDropsPublishRacingClose(t *testing.T) {
	vt := newVersionTable()
	vt.set(docURI, 1)
	cs := &closingSource{versionTable: vt}
	v := NewValidator(cs)
	cs.onFirst = func(u uri.URI) {
		vt.remove(u)
		v.Forget(u)
	}

	publish(v, docURI, 1, diag("stale from closed document", protocol.DiagnosticSeverityError))

	vt.set(docURI, 1)
	assert.Empty(t, v.DiagnosticsFor(docURI), "reopened document must not see the closed one's diagnostics")
}

func TestAwaitReleasesWaitSignal(t *testing.T) {
	tests := []struct {
		name string
		ctx  func() (context.Context, context.CancelFunc)
		want func(t *testing.T, err error)
	}{
		{
			name: "timeout",
			ctx:  func() (context.Context, context.CancelFunc) { return context.WithCancel(context.Background()) },
			want: func(t *testing.T, err error) { assert.True(t, errors.IsTimeoutError(err)) },
		},
		{
			name: "cancelled",
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 10*time.Millisecond)
			},
			want: func(t *testing.T, err error) { assert.ErrorIs(t, err, context.DeadlineExceeded) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vt := newVersionTable()
			vt.set(docURI, 1)
			v := NewValidator(vt)

			ctx, cancel := tt.ctx()
			defer cancel()
			_, err := v.AwaitDiagnostics(ctx, docURI, Any, 30*time.Millisecond)
			require.Error(t, err)
			tt.want(t, err)

			v.mu.Lock()
			defer v.mu.Unlock()
			assert.Empty(t, v.changed)
		})
	}
}

func TestAwaitSharedSignalSurvivesOneWaiterLeaving(t *testing.T) {
	vt := newVersionTable()
	vt.set(docURI, 1)
	v := NewValidator(vt)

	result := make(chan error, 1)
	go func() {
		_, err := v.AwaitDiagnostics(context.Background(), docURI, Any, 2*time.Second)
		result <- err
	}()
	require.Eventually(t, func() bool {
		v.mu.Lock()
		defer v.mu.Unlock()
		return len(v.changed) == 1
	}, time.Second, 5*time.Millisecond)

	_, err := v.AwaitDiagnostics(context.Background(), docURI, Any, 20*time.Millisecond)
	require.Error(t, err)

	publish(v, docURI, 1, diag("ready", protocol.DiagnosticSeverityError))
	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("remaining waiter was not woken")
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	assert.Empty(t, v.changed)
}

func TestSubscribeDecodesNotifications(t *testing.T) {
	vt := newVersionTable()
	vt.set(docURI, 1)
	v := NewValidator(vt)

	h := rpc.NewMessageHandler(nopSender{})
	v.Subscribe(h)

	body, err := rpc.EncodeNotification(protocol.MethodTextDocumentPublishDiagnostics, map[string]interface{}{
		"uri": string(docURI),
		"diagnostics": []map[string]interface{}{{
			"range":    map[string]interface{}{"start": map[string]int{"line": 2, "character": 1}, "end": map[string]int{"line": 2, "character": 5}},
			"severity": 1,
			"code":     2304,
			"source":   "ts",
			"message":  "Cannot find name 'foo'.",
			"relatedInformation": []map[string]interface{}{{
				"location": map[string]interface{}{
					"uri":   string(docURI),
					"range": map[string]interface{}{"start": map[string]int{"line": 0, "character": 0}, "end": map[string]int{"line": 0, "character": 1}},
				},
				"message": "declared here",
			}},
		}},
	})
	require.NoError(t, err)
	h.Dispatch(body)
	h.Dispatch([]byte(`{"jsonrpc":"2.0","method":"textDocument/publishDiagnostics","params":{"uri":42}}`))

	got := v.DiagnosticsFor(docURI)
	require.Len(t, got, 1)
	assert.Equal(t, protocol.DiagnosticSeverityError, got[0].Severity)
	assert.Equal(t, uint32(2), got[0].Range.Start.Line)
	assert.Equal(t, "ts", got[0].Source)
	require.Len(t, got[0].RelatedInformation, 1)
	assert.Equal(t, "declared here", got[0].RelatedInformation[0].Message)
}

type nopSender struct{}

func (nopSender) Send([]byte) error { return nil }

func TestPredicates(t *testing.T) {
	snap := Snapshot{
		Version: 2,
		Diagnostics: []protocol.Diagnostic{
			{Message: "Unused variable 'x'", Severity: protocol.DiagnosticSeverityWarning, Source: "eslint"},
			{Message: "Type 'string' is not assignable", Severity: protocol.DiagnosticSeverityError, Source: "ts"},
		},
	}
	empty := Snapshot{Version: 1}

	tests := []struct {
		name string
		pred Predicate
		snap Snapshot
		want bool
	}{
		{"any on empty", Any, empty, true},
		{"none on empty", None, empty, true},
		{"none on populated", None, snap, false},
		{"count match", Count(2), snap, true},
		{"count mismatch", Count(1), snap, false},
		{"has error", HasSeverity(protocol.DiagnosticSeverityError), snap, true},
		{"no hint", HasSeverity(protocol.DiagnosticSeverityHint), snap, false},
		{"contains", ContainsMessage("not assignable"), snap, true},
		{"matches", MatchesMessage(regexp.MustCompile(`^Unused variable '\w+'$`)), snap, true},
		{"source", FromSource("eslint"), snap, true},
		{"missing source", FromSource("pyright"), snap, false},
		{"version reached", AtLeastVersion(2), snap, true},
		{"version not reached", AtLeastVersion(3), snap, false},
		{"all true", All(Count(2), FromSource("ts")), snap, true},
		{"all false", All(Count(2), FromSource("pyright")), snap, false},
		{"all of nothing", All(), empty, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pred(tt.snap))
		})
	}
}

func TestFilterAndCountBySeverity(t *testing.T) {
	diags := []protocol.Diagnostic{
		{Message: "a", Severity: protocol.DiagnosticSeverityError},
		{Message: "b", Severity: protocol.DiagnosticSeverityWarning},
		{Message: "c", Severity: protocol.DiagnosticSeverityError},
		{Message: "d"},
	}

	errs := Filter(diags, func(d protocol.Diagnostic) bool { return d.Severity == protocol.DiagnosticSeverityError })
	require.Len(t, errs, 2)
	assert.Equal(t, "a", errs[0].Message)
	assert.Equal(t, "c", errs[1].Message)

	counts := CountBySeverity(diags)
	assert.Equal(t, 3, counts[protocol.DiagnosticSeverityError])
	assert.Equal(t, 1, counts[protocol.DiagnosticSeverityWarning])
	assert.Equal(t, 0, counts[protocol.DiagnosticSeverityHint])
}
