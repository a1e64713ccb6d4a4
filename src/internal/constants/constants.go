package constants

import "time"

// Timeout constants for harness operations
const (
	// DefaultRequestTimeout bounds a single request/response round trip
	DefaultRequestTimeout = 10 * time.Second

	// DefaultInitializeTimeout bounds the initialize handshake; servers index on startup
	DefaultInitializeTimeout = 30 * time.Second

	// DefaultDiagnosticsTimeout is the wait used by AwaitDiagnostics callers that pass 0
	DefaultDiagnosticsTimeout = 5 * time.Second

	// Shutdown sequence
	ShutdownRequestTimeout = 2 * time.Second
	ExitNotifyTimeout      = 1 * time.Second
	ProcessShutdownTimeout = 5 * time.Second

	// LateResponseWindow is how long a timed-out id is remembered so a late reply logs at debug
	LateResponseWindow = 30 * time.Second
)

// Transport sizes
const (
	// LSPResponseBufferSize is the read buffer for server output. Large enough for
	// big publishDiagnostics payloads without repeated small reads.
	LSPResponseBufferSize = 1024 * 1024

	// MaxFrameSize rejects absurd Content-Length values before allocating
	MaxFrameSize = 256 * 1024 * 1024
)

// Client identity sent in initialize
const (
	ClientName = "lsp-tester"
)
