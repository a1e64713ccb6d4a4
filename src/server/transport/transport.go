// Package transport frames LSP messages over a byte stream.
package transport

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"

	"lsp-tester/src/internal/common"
	"lsp-tester/src/internal/constants"
	"lsp-tester/src/internal/errors"
)

// Option configures a Transport
type Option func(*Transport)

// WithLogger sets the logger used by the read loop
func WithLogger(logger *common.SafeLogger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// Transport moves whole message bodies over a stream using Content-Length framing.
// Sends are serialized; inbound frames are delivered one at a time from a single
// read goroutine, in arrival order.
type Transport struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader
	logger *common.SafeLogger

	writeMu sync.Mutex

	handlerMu sync.RWMutex
	handler   func(body []byte)

	startOnce sync.Once
	closeOnce sync.Once
	closed    atomic.Bool
	done      chan struct{}

	errMu sync.Mutex
	err   error
}

// New wraps a stream. Call OnMessage then Start.
func New(conn io.ReadWriteCloser, opts ...Option) *Transport {
	t := &Transport{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, constants.LSPResponseBufferSize),
		logger: common.LSPLogger,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send writes one frame
func (t *Transport) Send(body []byte) error {
	if t.closed.Load() {
		return errors.ErrConnectionClosed
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := WriteFrame(t.conn, body); err != nil {
		if t.closed.Load() {
			return errors.ErrConnectionClosed
		}
		if isBrokenPipe(err) {
			return fmt.Errorf("%w: %v", errors.ErrConnectionClosed, err)
		}
		return errors.WrapWithContext("write frame", err)
	}
	return nil
}

// OnMessage registers the callback that receives every inbound frame body
func (t *Transport) OnMessage(fn func(body []byte)) {
	t.handlerMu.Lock()
	t.handler = fn
	t.handlerMu.Unlock()
}

// Start launches the read loop. Calling it more than once has no effect.
func (t *Transport) Start() {
	t.startOnce.Do(func() {
		go t.readLoop()
	})
}

// Done is closed when the read loop exits
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Err reports why the read loop stopped; nil for EOF or a local Close
func (t *Transport) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

// Close closes the stream. The process on the other end is left alone.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		err = t.conn.Close()
	})
	return err
}

func (t *Transport) readLoop() {
	defer close(t.done)

	for {
		body, err := ReadFrame(t.reader)
		if err != nil {
			if stderrors.Is(err, ErrMissingContentLength) {
				t.logger.Warn("Skipping frame: %v", err)
				continue
			}
			t.finish(err)
			return
		}

		t.handlerMu.RLock()
		handler := t.handler
		t.handlerMu.RUnlock()

		if handler == nil {
			t.logger.Debug("Dropping %d byte frame: no handler registered", len(body))
			continue
		}
		handler(body)
	}
}

func (t *Transport) finish(err error) {
	if err == io.EOF || t.closed.Load() {
		t.logger.Debug("Read loop finished")
		return
	}
	t.logger.Error("Read loop stopped: %v", err)
	t.errMu.Lock()
	t.err = err
	t.errMu.Unlock()
}

// isBrokenPipe reports whether a write failed because the peer went away
func isBrokenPipe(err error) bool {
	return stderrors.Is(err, syscall.EPIPE) ||
		stderrors.Is(err, io.ErrClosedPipe) ||
		stderrors.Is(err, os.ErrClosed)
}
