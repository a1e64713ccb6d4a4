// Package fakelsp is a scripted language server for exercising the harness.
//
// It speaks LSP through go.lsp.dev/jsonrpc2's own stream so the harness codec is
// checked against an independent framing implementation. Diagnostics follow a
// fixed rule set (see Analyze) so tests can predict them exactly.
package fakelsp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"lsp-tester/src/internal/common"
)

const (
	// ServerName is reported in the initialize result
	ServerName = "fakelsp"
	// ServerVersion is reported in the initialize result
	ServerVersion = "0.1.0"

	// MethodEcho is a custom request answered with its own params
	MethodEcho = "fakelsp/echo"
	// MethodCrash makes the server exit without replying
	MethodCrash = "fakelsp/crash"
)

// Options scripts the server's behavior
type Options struct {
	// InitializeError, when set, is returned instead of an initialize result
	InitializeError *jsonrpc2.Error
	// Silent drops every request without replying
	Silent bool
	// OmitVersion publishes diagnostics without a document version
	OmitVersion bool
	// DiagnosticsDelay postpones every publish
	DiagnosticsDelay time.Duration
	// RequestConfiguration sends workspace/configuration after initialized
	RequestConfiguration bool
	// ConfigurationSection is the section asked for
	ConfigurationSection string
}

// Received is one inbound message as the server saw it
type Received struct {
	Method string
	Params json.RawMessage
}

// Server is a fake language server bound to one stream
type Server struct {
	opts   Options
	stream jsonrpc2.Stream
	logger *common.SafeLogger

	writeMu sync.Mutex

	mu          sync.Mutex
	received    []Received
	docs        map[uri.URI]string
	configReply json.RawMessage
	shutdown    bool

	pending sync.WaitGroup
	exited  chan struct{}
	exitErr error
}

// New binds a server to conn; call Serve to run it
func New(conn io.ReadWriteCloser, opts Options) *Server {
	if opts.ConfigurationSection == "" {
		opts.ConfigurationSection = ServerName
	}
	return &Server{
		opts:   opts,
		stream: jsonrpc2.NewStream(conn),
		logger: common.NewSafeLogger("fakelsp"),
		docs:   make(map[uri.URI]string),
		exited: make(chan struct{}),
	}
}

// Serve handles messages until the stream ends or exit arrives
func (s *Server) Serve(ctx context.Context) error {
	defer close(s.exited)
	defer s.stream.Close()

	for {
		msg, _, err := s.stream.Read(ctx)
		if err != nil {
			if stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrClosedPipe) || stderrors.Is(err, os.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			s.exitErr = err
			return err
		}

		switch m := msg.(type) {
		case *jsonrpc2.Call:
			s.record(m.Method(), json.RawMessage(m.Params()))
			if m.Method() == MethodCrash {
				return nil
			}
			if s.opts.Silent {
				continue
			}
			s.handleCall(ctx, m)
		case *jsonrpc2.Notification:
			s.record(m.Method(), json.RawMessage(m.Params()))
			if m.Method() == protocol.MethodExit {
				s.pending.Wait()
				return nil
			}
			s.handleNotification(ctx, m)
		case *jsonrpc2.Response:
			s.handleResponse(m)
		}
	}
}

// Done is closed when Serve returns
func (s *Server) Done() <-chan struct{} {
	return s.exited
}

// Received returns every message received so far, in order
func (s *Server) Received() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Received(nil), s.received...)
}

// Methods returns the method names received so far, in order
func (s *Server) Methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	for i, r := range s.received {
		out[i] = r.Method
	}
	return out
}

// Text returns the server's view of a document
func (s *Server) Text(u uri.URI) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, ok := s.docs[u]
	return text, ok
}

// ConfigurationReply returns the client's answer to workspace/configuration
func (s *Server) ConfigurationReply() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configReply
}

// ShutdownReceived reports whether shutdown was requested
func (s *Server) ShutdownReceived() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

func (s *Server) record(method string, params json.RawMessage) {
	s.mu.Lock()
	s.received = append(s.received, Received{Method: method, Params: append(json.RawMessage(nil), params...)})
	s.mu.Unlock()
}

func (s *Server) write(ctx context.Context, msg jsonrpc2.Message) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.stream.Write(ctx, msg); err != nil {
		s.logger.Debug("write failed: %v", err)
	}
}

func (s *Server) reply(ctx context.Context, id jsonrpc2.ID, result interface{}, err error) {
	resp, encErr := jsonrpc2.NewResponse(id, result, err)
	if encErr != nil {
		s.logger.Error("encode reply: %v", encErr)
		return
	}
	s.write(ctx, resp)
}

func (s *Server) handleCall(ctx context.Context, call *jsonrpc2.Call) {
	switch call.Method() {
	case protocol.MethodInitialize:
		if s.opts.InitializeError != nil {
			s.reply(ctx, call.ID(), nil, s.opts.InitializeError)
			return
		}
		s.reply(ctx, call.ID(), &protocol.InitializeResult{
			Capabilities: protocol.ServerCapabilities{
				TextDocumentSync: protocol.TextDocumentSyncKindFull,
				HoverProvider:    true,
			},
			ServerInfo: &protocol.ServerInfo{Name: ServerName, Version: ServerVersion},
		}, nil)
	case protocol.MethodShutdown:
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		s.reply(ctx, call.ID(), nil, nil)
	case MethodEcho:
		s.reply(ctx, call.ID(), json.RawMessage(call.Params()), nil)
	default:
		s.reply(ctx, call.ID(), nil, jsonrpc2.Errorf(jsonrpc2.MethodNotFound, "method not found: %s", call.Method()))
	}
}

func (s *Server) handleNotification(ctx context.Context, n *jsonrpc2.Notification) {
	switch n.Method() {
	case protocol.MethodInitialized:
		note, _ := jsonrpc2.NewNotification(protocol.MethodWindowLogMessage, &protocol.LogMessageParams{
			Type:    protocol.MessageTypeInfo,
			Message: ServerName + " ready",
		})
		s.write(ctx, note)
		if s.opts.RequestConfiguration {
			call, _ := jsonrpc2.NewCall(jsonrpc2.NewStringID("cfg-1"), protocol.MethodWorkspaceConfiguration, &protocol.ConfigurationParams{
				Items: []protocol.ConfigurationItem{{Section: s.opts.ConfigurationSection}},
			})
			s.write(ctx, call)
		}
	case protocol.MethodTextDocumentDidOpen:
		var p protocol.DidOpenTextDocumentParams
		if err := json.Unmarshal(n.Params(), &p); err != nil {
			s.logger.Warn("bad didOpen params: %v", err)
			return
		}
		s.setText(p.TextDocument.URI, p.TextDocument.Text)
		s.publish(ctx, p.TextDocument.URI, p.TextDocument.Version, Analyze(p.TextDocument.Text))
	case protocol.MethodTextDocumentDidChange:
		var p struct {
			TextDocument   protocol.VersionedTextDocumentIdentifier `json:"textDocument"`
			ContentChanges []struct {
				Range *protocol.Range `json:"range,omitempty"`
				Text  string          `json:"text"`
			} `json:"contentChanges"`
		}
		if err := json.Unmarshal(n.Params(), &p); err != nil || len(p.ContentChanges) == 0 {
			s.logger.Warn("bad didChange params: %v", err)
			return
		}
		last := p.ContentChanges[len(p.ContentChanges)-1]
		if last.Range != nil {
			s.logger.Warn("incremental change received for %s; only full sync is supported", p.TextDocument.URI)
			return
		}
		s.setText(p.TextDocument.URI, last.Text)
		s.publish(ctx, p.TextDocument.URI, p.TextDocument.Version, Analyze(last.Text))
	case protocol.MethodTextDocumentDidClose:
		var p protocol.DidCloseTextDocumentParams
		if err := json.Unmarshal(n.Params(), &p); err != nil {
			return
		}
		s.mu.Lock()
		delete(s.docs, p.TextDocument.URI)
		s.mu.Unlock()
		s.publish(ctx, p.TextDocument.URI, 0, []protocol.Diagnostic{})
	}
}

func (s *Server) handleResponse(resp *jsonrpc2.Response) {
	id := fmt.Sprintf("%v", resp.ID())
	if id != "cfg-1" {
		s.logger.Warn("unexpected response id %s", id)
		return
	}
	s.mu.Lock()
	s.configReply = append(json.RawMessage(nil), json.RawMessage(resp.Result())...)
	s.mu.Unlock()
}

func (s *Server) setText(u uri.URI, text string) {
	s.mu.Lock()
	s.docs[u] = text
	s.mu.Unlock()
}

func (s *Server) publish(ctx context.Context, u uri.URI, version int32, diags []protocol.Diagnostic) {
	params := &protocol.PublishDiagnosticsParams{URI: u, Diagnostics: diags}
	if !s.opts.OmitVersion && version > 0 {
		params.Version = uint32(version)
	}
	note, err := jsonrpc2.NewNotification(protocol.MethodTextDocumentPublishDiagnostics, params)
	if err != nil {
		s.logger.Error("encode diagnostics: %v", err)
		return
	}

	if s.opts.DiagnosticsDelay <= 0 {
		s.write(ctx, note)
		return
	}
	s.pending.Add(1)
	time.AfterFunc(s.opts.DiagnosticsDelay, func() {
		defer s.pending.Done()
		s.write(ctx, note)
	})
}

// Analyze is the fake server's whole "language": every line containing TODO yields a
// warning and every line containing the word error yields an error, in line order.
func Analyze(text string) []protocol.Diagnostic {
	diags := []protocol.Diagnostic{}
	for i, line := range strings.Split(text, "\n") {
		if col := strings.Index(line, "TODO"); col >= 0 {
			diags = append(diags, diagnostic(i, col, len("TODO"), protocol.DiagnosticSeverityWarning, "TODO comment"))
		}
		if col := strings.Index(line, "error"); col >= 0 {
			diags = append(diags, diagnostic(i, col, len("error"), protocol.DiagnosticSeverityError, fmt.Sprintf("error marker on line %d", i+1)))
		}
	}
	return diags
}

func diagnostic(line, col, length int, sev protocol.DiagnosticSeverity, msg string) protocol.Diagnostic {
	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: uint32(line), Character: uint32(col)},
			End:   protocol.Position{Line: uint32(line), Character: uint32(col + length)},
		},
		Severity: sev,
		Source:   ServerName,
		Message:  msg,
	}
}
