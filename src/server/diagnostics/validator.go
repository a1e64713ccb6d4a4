// Package diagnostics collects publishDiagnostics notifications and answers
// version-aware queries about them.
package diagnostics

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"lsp-tester/src/internal/common"
	"lsp-tester/src/internal/constants"
	"lsp-tester/src/internal/errors"
	rpc "lsp-tester/src/server/protocol"
)

// VersionSource reports the current version of an open document
type VersionSource interface {
	CurrentVersion(u uri.URI) (int32, bool)
}

// NotificationSubscriber is the part of the message handler the validator listens on
type NotificationSubscriber interface {
	OnNotification(method string, fn rpc.NotificationHandler)
}

// Snapshot is one publishDiagnostics payload, keyed by URI and document version
type Snapshot struct {
	URI         uri.URI
	Version     int32
	Diagnostics []protocol.Diagnostic
	ReceivedAt  time.Time
}

// Validator stores diagnostics snapshots per URI. A query only ever sees the
// snapshot with the highest version not newer than the document's current version.
type Validator struct {
	versions VersionSource
	logger   *common.SafeLogger

	mu        sync.Mutex
	snapshots map[uri.URI][]Snapshot // arrival order
	changed   map[uri.URI]*changeSignal
}

// changeSignal is closed on the next publish or Forget for its URI
type changeSignal struct {
	ch      chan struct{}
	waiters int
}

// Option configures a Validator
type Option func(*Validator)

// WithLogger sets the validator's logger
func WithLogger(logger *common.SafeLogger) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// NewValidator creates a validator gated on versions
func NewValidator(versions VersionSource, opts ...Option) *Validator {
	v := &Validator{
		versions:  versions,
		logger:    common.LSPLogger,
		snapshots: make(map[uri.URI][]Snapshot),
		changed:   make(map[uri.URI]*changeSignal),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Subscribe registers the validator for textDocument/publishDiagnostics
func (v *Validator) Subscribe(sub NotificationSubscriber) {
	sub.OnNotification(protocol.MethodTextDocumentPublishDiagnostics, func(params json.RawMessage) {
		var p protocol.PublishDiagnosticsParams
		if err := json.Unmarshal(params, &p); err != nil {
			v.logger.Warn("Discarding malformed publishDiagnostics: %s", common.SanitizeErrorForLogging(err))
			return
		}
		v.Record(p)
	})
}

// Record stores a publish. Publishes for documents that are not open are dropped.
// A publish without a version is attributed to the document's current version.
func (v *Validator) Record(params protocol.PublishDiagnosticsParams) {
	u := params.URI
	if _, open := v.versions.CurrentVersion(u); !open {
		v.logger.Debug("Discarding diagnostics for %s: document not open", u)
		return
	}

	diags := make([]protocol.Diagnostic, len(params.Diagnostics))
	copy(diags, params.Diagnostics)

	v.mu.Lock()
	// Close runs before Forget, so a document closed since the first lookup shows here
	current, open := v.versions.CurrentVersion(u)
	if !open {
		v.mu.Unlock()
		v.logger.Debug("Discarding diagnostics for %s: document closed", u)
		return
	}
	version := int32(params.Version)
	if version == 0 {
		version = current
	}
	v.snapshots[u] = append(v.snapshots[u], Snapshot{
		URI:         u,
		Version:     version,
		Diagnostics: diags,
		ReceivedAt:  time.Now(),
	})
	v.pruneLocked(u, current)
	v.signalLocked(u)
	v.mu.Unlock()

	if version > current {
		v.logger.Debug("Stored diagnostics for %s at future version %d (current %d)", u, version, current)
	} else {
		v.logger.Debug("Recorded %d diagnostics for %s version %d", len(diags), u, version)
	}
}

// DiagnosticsFor returns the visible diagnostics for u; empty, never nil, when none arrived
func (v *Validator) DiagnosticsFor(u uri.URI) []protocol.Diagnostic {
	snap, ok := v.Latest(u)
	if !ok {
		return []protocol.Diagnostic{}
	}
	return snap.Diagnostics
}

// Latest returns a copy of the visible snapshot for u
func (v *Validator) Latest(u uri.URI) (Snapshot, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visibleLocked(u)
}

// AwaitDiagnostics blocks until the visible snapshot for u satisfies pred, the timeout
// elapses, or ctx ends. A snapshot that is already visible is checked first. A nil
// pred accepts any snapshot; a zero timeout uses the default diagnostics timeout.
func (v *Validator) AwaitDiagnostics(ctx context.Context, u uri.URI, pred Predicate, timeout time.Duration) ([]protocol.Diagnostic, error) {
	if pred == nil {
		pred = Any
	}
	if timeout <= 0 {
		timeout = constants.DefaultDiagnosticsTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		v.mu.Lock()
		snap, ok := v.visibleLocked(u)
		if ok && pred(snap) {
			v.mu.Unlock()
			return snap.Diagnostics, nil
		}
		sig := v.watchLocked(u)
		v.mu.Unlock()

		select {
		case <-sig.ch:
			v.release(u, sig)
		case <-timer.C:
			v.release(u, sig)
			return nil, errors.NewTimeoutError("await diagnostics for "+string(u), "", timeout)
		case <-ctx.Done():
			v.release(u, sig)
			return nil, ctx.Err()
		}
	}
}

// Forget drops every snapshot for u and wakes its waiters
func (v *Validator) Forget(u uri.URI) {
	v.mu.Lock()
	defer v.mu.Unlock()

	delete(v.snapshots, u)
	v.signalLocked(u)
}

func (v *Validator) watchLocked(u uri.URI) *changeSignal {
	sig, ok := v.changed[u]
	if !ok {
		sig = &changeSignal{ch: make(chan struct{})}
		v.changed[u] = sig
	}
	sig.waiters++
	return sig
}

// release drops the signal once its last waiter leaves without a publish
func (v *Validator) release(u uri.URI, sig *changeSignal) {
	v.mu.Lock()
	defer v.mu.Unlock()

	sig.waiters--
	if sig.waiters == 0 && v.changed[u] == sig {
		delete(v.changed, u)
	}
}

func (v *Validator) signalLocked(u uri.URI) {
	if sig, ok := v.changed[u]; ok {
		close(sig.ch)
		delete(v.changed, u)
	}
}

// visibleLocked picks the highest version <= current; later arrivals win ties
func (v *Validator) visibleLocked(u uri.URI) (Snapshot, bool) {
	current, open := v.versions.CurrentVersion(u)
	if !open {
		return Snapshot{}, false
	}

	best := -1
	for i, snap := range v.snapshots[u] {
		if snap.Version > current {
			continue
		}
		if best < 0 || snap.Version >= v.snapshots[u][best].Version {
			best = i
		}
	}
	if best < 0 {
		return Snapshot{}, false
	}

	snap := v.snapshots[u][best]
	snap.Diagnostics = append([]protocol.Diagnostic{}, snap.Diagnostics...)
	return snap, true
}

// pruneLocked drops snapshots older than the visible one. Versions only grow while a
// document stays open, so those can never become visible again.
func (v *Validator) pruneLocked(u uri.URI, current int32) {
	list := v.snapshots[u]
	floor := int32(-1)
	for _, snap := range list {
		if snap.Version <= current && snap.Version > floor {
			floor = snap.Version
		}
	}
	kept := list[:0]
	for _, snap := range list {
		if snap.Version >= floor {
			kept = append(kept, snap)
		}
	}
	v.snapshots[u] = kept
}
