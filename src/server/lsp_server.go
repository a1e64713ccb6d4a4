// Package server is the harness facade: it drives one language server session
// through initialize, document sync, diagnostics queries and shutdown.
package server

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"lsp-tester/src/config"
	"lsp-tester/src/internal/common"
	"lsp-tester/src/internal/constants"
	"lsp-tester/src/internal/errors"
	"lsp-tester/src/internal/types"
	"lsp-tester/src/internal/version"
	"lsp-tester/src/server/capabilities"
	"lsp-tester/src/server/diagnostics"
	"lsp-tester/src/server/documents"
	"lsp-tester/src/server/process"
	rpc "lsp-tester/src/server/protocol"
	"lsp-tester/src/server/transport"
)

// Options configures an LSPServer. Zero durations fall back to the harness defaults.
type Options struct {
	RequestTimeout     time.Duration
	InitializeTimeout  time.Duration
	DiagnosticsTimeout time.Duration
	ShutdownTimeout    time.Duration

	// RootDir becomes rootUri and the single workspace folder; defaults to the
	// server's working dir, then the current directory
	RootDir string

	// Settings answers workspace/configuration, looked up by section
	Settings map[string]interface{}

	// ProcessManager overrides how servers are spawned
	ProcessManager process.ProcessManager
}

// OptionsFromConfig maps configuration file values onto Options
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{}
	}
	t := cfg.Timeouts.WithDefaults()
	return Options{
		RequestTimeout:     t.Request,
		InitializeTimeout:  t.Initialize,
		DiagnosticsTimeout: t.Diagnostics,
		ShutdownTimeout:    t.Shutdown,
		Settings:           cfg.Settings,
	}
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = constants.DefaultRequestTimeout
	}
	if o.InitializeTimeout <= 0 {
		o.InitializeTimeout = constants.DefaultInitializeTimeout
	}
	if o.DiagnosticsTimeout <= 0 {
		o.DiagnosticsTimeout = constants.DefaultDiagnosticsTimeout
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = constants.ProcessShutdownTimeout
	}
	return o
}

// LSPServer is the public harness API over a single session
type LSPServer struct {
	opts    Options
	session *Session
	logger  *common.SafeLogger

	docs      *documents.StateManager
	validator *diagnostics.Validator
	pm        process.ProcessManager

	mu         sync.RWMutex
	transport  *transport.Transport
	handler    *rpc.MessageHandler
	proc       *process.ProcessInfo
	command    string
	initResult protocol.InitializeResult

	closedOnce sync.Once
	closed     chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewLSPServer creates a harness with a fresh, uninitialized session
func NewLSPServer(opts Options) *LSPServer {
	opts = opts.withDefaults()
	session := newSession()
	docs := documents.NewStateManager()

	s := &LSPServer{
		opts:      opts,
		session:   session,
		logger:    session.logger,
		docs:      docs,
		validator: diagnostics.NewValidator(docs, diagnostics.WithLogger(session.logger)),
		pm:        opts.ProcessManager,
		closed:    make(chan struct{}),
	}
	if s.pm == nil {
		s.pm = process.NewLSPProcessManager(
			process.WithShutdownTimeout(opts.ShutdownTimeout),
			process.WithLogger(session.logger),
		)
	}
	return s
}

// SessionID returns the id attached to this harness's log lines
func (s *LSPServer) SessionID() string {
	return s.session.ID()
}

// State returns the session state
func (s *LSPServer) State() SessionState {
	return s.session.State()
}

// Done is closed once the session reaches Closed
func (s *LSPServer) Done() <-chan struct{} {
	return s.closed
}

// Initialize spawns the server described by cfg and runs the initialize handshake
func (s *LSPServer) Initialize(ctx context.Context, cfg types.ClientConfig) error {
	if err := s.session.transition("initialize", StateInitializing, StateUninitialized); err != nil {
		return err
	}

	command := cfg.String()
	if err := cfg.Validate(); err != nil {
		s.markClosed()
		return errors.NewHandshakeError(command, err)
	}
	if s.opts.RootDir == "" && cfg.WorkingDir != "" {
		s.opts.RootDir = cfg.WorkingDir
	}

	name := filepath.Base(cfg.Command)
	proc, err := s.pm.StartProcess(cfg, name)
	if err != nil {
		s.markClosed()
		return errors.NewHandshakeError(command, err)
	}

	s.mu.Lock()
	s.proc = proc
	s.mu.Unlock()

	go s.pm.MonitorProcess(proc, func(exitErr error) {
		s.connectionLost("server process exited")
	})

	return s.handshake(ctx, proc.Conn(), command, cfg.InitializationOptions)
}

// Attach runs the handshake over an already connected stream, for servers the
// harness does not spawn itself
func (s *LSPServer) Attach(ctx context.Context, conn io.ReadWriteCloser) error {
	if err := s.session.transition("initialize", StateInitializing, StateUninitialized); err != nil {
		return err
	}
	return s.handshake(ctx, conn, "", nil)
}

func (s *LSPServer) handshake(ctx context.Context, conn io.ReadWriteCloser, command string, initOpts interface{}) error {
	t := transport.New(conn, transport.WithLogger(s.logger))
	h := rpc.NewMessageHandler(t,
		rpc.WithDefaultTimeout(s.opts.RequestTimeout),
		rpc.WithLogger(s.logger),
	)
	t.OnMessage(h.Dispatch)
	s.registerHandlers(h)

	s.mu.Lock()
	s.transport = t
	s.handler = h
	s.command = command
	s.mu.Unlock()

	t.Start()
	go s.watchTransport(t, h)

	raw, err := h.RequestWithTimeout(ctx, protocol.MethodInitialize, s.initializeParams(initOpts), s.opts.InitializeTimeout)
	if err != nil {
		s.abort()
		return errors.NewHandshakeError(command, err)
	}

	var result protocol.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		s.abort()
		return errors.NewHandshakeError(command, errors.NewDecodeError(protocol.MethodInitialize, err))
	}

	if err := h.Notify(protocol.MethodInitialized, &protocol.InitializedParams{}); err != nil {
		s.abort()
		return errors.NewHandshakeError(command, err)
	}

	s.mu.Lock()
	s.initResult = result
	s.mu.Unlock()

	if err := s.session.transition("initialize", StateReady, StateInitializing); err != nil {
		s.abort()
		return errors.NewHandshakeError(command, errors.ErrConnectionClosed)
	}

	if !capabilities.OpenClose(result.Capabilities) {
		s.logger.Warn("Server did not announce openClose sync; didOpen/didChange are sent regardless")
	}

	if result.ServerInfo != nil {
		s.logger.Info("Session ready: server=%s %s", result.ServerInfo.Name, result.ServerInfo.Version)
	} else {
		s.logger.Info("Session ready: command=%s", command)
	}
	return nil
}

func (s *LSPServer) initializeParams(initOpts interface{}) *protocol.InitializeParams {
	root, err := common.ValidateAndGetWorkingDir(s.opts.RootDir)
	if err != nil {
		s.logger.Warn("Invalid root dir %q, using current directory: %v", s.opts.RootDir, err)
		root, _ = common.ValidateAndGetWorkingDir("")
	}
	rootURI := uri.File(root)

	return &protocol.InitializeParams{
		ProcessID:             int32(os.Getpid()),
		ClientInfo:            version.ClientInfo(),
		RootPath:              root,
		RootURI:               rootURI,
		InitializationOptions: initOpts,
		Capabilities: protocol.ClientCapabilities{
			Workspace: &protocol.WorkspaceClientCapabilities{
				Configuration:    true,
				WorkspaceFolders: true,
			},
			TextDocument: &protocol.TextDocumentClientCapabilities{
				Synchronization: &protocol.TextDocumentSyncClientCapabilities{},
				PublishDiagnostics: &protocol.PublishDiagnosticsClientCapabilities{
					RelatedInformation: true,
					VersionSupport:     true,
				},
			},
			Window: &protocol.WindowClientCapabilities{
				WorkDoneProgress: true,
			},
		},
		Trace: protocol.TraceOff,
		WorkspaceFolders: []protocol.WorkspaceFolder{
			{URI: string(rootURI), Name: filepath.Base(root)},
		},
	}
}

// watchTransport closes the session when the stream ends
func (s *LSPServer) watchTransport(t *transport.Transport, h *rpc.MessageHandler) {
	<-t.Done()
	if err := t.Err(); err != nil {
		s.logger.Warn("Transport stopped: %v", err)
	}
	s.connectionLost("stream closed")
}

// connectionLost fails pending requests and moves the session to Closed
func (s *LSPServer) connectionLost(reason string) {
	s.mu.RLock()
	t, h := s.transport, s.handler
	s.mu.RUnlock()

	if h != nil {
		h.Close(errors.ErrConnectionClosed)
	}
	if t != nil {
		_ = t.Close()
	}

	switch s.session.State() {
	case StateShuttingDown, StateClosed:
		s.logger.Debug("Connection ended: %s", reason)
	default:
		s.logger.Warn("Connection lost: %s", reason)
	}
	s.markClosed()
}

// abort tears the session down after a failed handshake
func (s *LSPServer) abort() {
	s.mu.RLock()
	proc := s.proc
	s.mu.RUnlock()

	s.markClosed()
	if proc != nil {
		if err := s.pm.StopProcess(context.Background(), proc, nil); err != nil {
			s.logger.Debug("Stopping server after failed handshake: %v", err)
		}
	}
	s.connectionLost("handshake failed")
}

func (s *LSPServer) markClosed() {
	s.session.close()
	s.closedOnce.Do(func() {
		close(s.closed)
	})
}

func (s *LSPServer) rpcHandler() *rpc.MessageHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handler
}

// OpenDocument reads path and opens it with a languageId detected from its extension
func (s *LSPServer) OpenDocument(ctx context.Context, path string) (documents.Document, error) {
	if err := s.session.requireReady("open document"); err != nil {
		return documents.Document{}, err
	}

	abs, err := common.AbsPath(path)
	if err != nil {
		return documents.Document{}, err
	}
	data, err := common.ReadDocumentFile(abs)
	if err != nil {
		return documents.Document{}, err
	}

	return s.OpenText(ctx, uri.File(abs), documents.DetectLanguageID(abs), string(data))
}

// OpenText opens in-memory content under u
func (s *LSPServer) OpenText(ctx context.Context, u uri.URI, languageID, text string) (documents.Document, error) {
	if err := s.session.requireReady("open document"); err != nil {
		return documents.Document{}, err
	}
	if err := ctx.Err(); err != nil {
		return documents.Document{}, err
	}

	doc, err := s.docs.Open(u, languageID, text)
	if err != nil {
		return documents.Document{}, err
	}
	if err := s.rpcHandler().Notify(protocol.MethodTextDocumentDidOpen, documents.DidOpenParams(doc)); err != nil {
		return doc, err
	}
	s.logger.Debug("Opened %s (languageId=%s, version=%d)", u, languageID, doc.Version())
	return doc, nil
}

// ChangeDocument replaces the whole text of an open document
func (s *LSPServer) ChangeDocument(ctx context.Context, u uri.URI, text string) (documents.Document, error) {
	if err := s.session.requireReady("change document"); err != nil {
		return documents.Document{}, err
	}
	if err := ctx.Err(); err != nil {
		return documents.Document{}, err
	}

	doc, err := s.docs.Change(u, text)
	if err != nil {
		return documents.Document{}, err
	}
	if err := s.rpcHandler().Notify(protocol.MethodTextDocumentDidChange, documents.DidChangeParams(doc)); err != nil {
		return doc, err
	}
	return doc, nil
}

// CloseDocument stops tracking a document and drops its diagnostics
func (s *LSPServer) CloseDocument(ctx context.Context, u uri.URI) error {
	if err := s.session.requireReady("close document"); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.docs.Close(u); err != nil {
		return err
	}
	s.validator.Forget(u)
	return s.rpcHandler().Notify(protocol.MethodTextDocumentDidClose, documents.DidCloseParams(u))
}

// Document returns the current snapshot of an open document
func (s *LSPServer) Document(u uri.URI) (documents.Document, error) {
	return s.docs.Get(u)
}

// OpenDocuments lists the URIs currently open, sorted
func (s *LSPServer) OpenDocuments() []uri.URI {
	return s.docs.URIs()
}

// DiagnosticsFor returns the diagnostics visible for u right now
func (s *LSPServer) DiagnosticsFor(u uri.URI) []protocol.Diagnostic {
	return s.validator.DiagnosticsFor(u)
}

// AwaitDiagnostics waits until the visible diagnostics for an open document satisfy
// pred. A zero timeout uses the configured diagnostics timeout.
func (s *LSPServer) AwaitDiagnostics(ctx context.Context, u uri.URI, pred diagnostics.Predicate, timeout time.Duration) ([]protocol.Diagnostic, error) {
	if err := s.session.requireReady("await diagnostics"); err != nil {
		return nil, err
	}
	if _, open := s.docs.CurrentVersion(u); !open {
		return nil, errors.NewNotOpenError(string(u))
	}
	if timeout <= 0 {
		timeout = s.opts.DiagnosticsTimeout
	}
	return s.validator.AwaitDiagnostics(ctx, u, pred, timeout)
}

// Call sends any other request once the session is ready and decodes the result
func (s *LSPServer) Call(ctx context.Context, method string, params, result interface{}) error {
	if err := s.session.requireReady(method); err != nil {
		return err
	}
	return s.rpcHandler().Call(ctx, method, params, result)
}

// ServerCapabilities returns what the server announced in its initialize result
func (s *LSPServer) ServerCapabilities() protocol.ServerCapabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initResult.Capabilities
}

// Supports reports whether the server announced a capability for method
func (s *LSPServer) Supports(method string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return capabilities.SupportsMethod(s.initResult.Capabilities, s.command, method)
}

// ServerInfo returns the server's self-description, nil if it sent none
func (s *LSPServer) ServerInfo() *protocol.ServerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initResult.ServerInfo
}

// Shutdown sends shutdown and exit, closes the stream and stops the process.
// Only the first call does any work; later calls return nil.
func (s *LSPServer) Shutdown(ctx context.Context) error {
	first := false
	s.shutdownOnce.Do(func() {
		first = true
		s.shutdownErr = s.teardown(ctx)
	})
	if first {
		return s.shutdownErr
	}
	return nil
}

func (s *LSPServer) teardown(ctx context.Context) error {
	if s.session.transition("shutdown", StateClosed, StateUninitialized) == nil {
		s.markClosed()
		return nil
	}

	graceful := s.session.transition("shutdown", StateShuttingDown, StateReady) == nil

	s.mu.RLock()
	proc, t, h := s.proc, s.transport, s.handler
	s.mu.RUnlock()

	var err error
	switch {
	case proc != nil:
		var sender process.ShutdownSender
		if graceful {
			sender = s
		}
		err = s.pm.StopProcess(ctx, proc, sender)
	case graceful:
		err = s.sendShutdownSequence(ctx)
	}

	if t != nil {
		_ = t.Close()
	}
	if h != nil {
		h.Close(errors.ErrConnectionClosed)
	}
	s.markClosed()
	s.logger.Info("Session closed")
	return err
}

func (s *LSPServer) sendShutdownSequence(ctx context.Context) error {
	shutdownCtx, cancel := common.WithTimeout(ctx, constants.ShutdownRequestTimeout)
	defer cancel()
	if err := s.SendShutdownRequest(shutdownCtx); err != nil && !errors.IsConnectionClosed(err) {
		return err
	}
	exitCtx, exitCancel := common.WithTimeout(ctx, constants.ExitNotifyTimeout)
	defer exitCancel()
	if err := s.SendExitNotification(exitCtx); err != nil && !errors.IsConnectionClosed(err) {
		return err
	}
	return nil
}

// SendShutdownRequest sends the shutdown request (process.ShutdownSender)
func (s *LSPServer) SendShutdownRequest(ctx context.Context) error {
	h := s.rpcHandler()
	if h == nil {
		return errors.ErrConnectionClosed
	}
	_, err := h.RequestWithTimeout(ctx, protocol.MethodShutdown, nil, constants.ShutdownRequestTimeout)
	return err
}

// SendExitNotification sends the exit notification (process.ShutdownSender)
func (s *LSPServer) SendExitNotification(ctx context.Context) error {
	h := s.rpcHandler()
	if h == nil {
		return errors.ErrConnectionClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.Notify(protocol.MethodExit, nil)
}
