package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.lsp.dev/jsonrpc2"

	"lsp-tester/src/internal/common"
	"lsp-tester/src/internal/constants"
	"lsp-tester/src/internal/errors"
)

// Sender writes one encoded message body to the peer
type Sender interface {
	Send(body []byte) error
}

// NotificationHandler receives the raw params of an inbound notification
type NotificationHandler func(params json.RawMessage)

// RequestHandler answers a server-to-client request
type RequestHandler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// HandlerOption configures a MessageHandler
type HandlerOption func(*MessageHandler)

// WithDefaultTimeout sets the timeout used by Request and Call
func WithDefaultTimeout(timeout time.Duration) HandlerOption {
	return func(h *MessageHandler) {
		if timeout > 0 {
			h.defaultTimeout = timeout
		}
	}
}

// WithLogger sets the logger for dispatch diagnostics
func WithLogger(logger *common.SafeLogger) HandlerOption {
	return func(h *MessageHandler) {
		h.logger = logger
	}
}

// pendingRequest is an outstanding request. It resolves exactly once: by its
// response, its deadline, the caller's context, or Close.
type pendingRequest struct {
	method string
	issued time.Time
	once   sync.Once
	done   chan struct{}
	result json.RawMessage
	err    error
}

func (p *pendingRequest) resolve(result json.RawMessage, err error) {
	p.once.Do(func() {
		p.result = result
		p.err = err
		close(p.done)
	})
}

// MessageHandler correlates outbound requests with inbound responses and routes
// notifications and server requests to registered handlers.
type MessageHandler struct {
	sender         Sender
	logger         *common.SafeLogger
	defaultTimeout time.Duration

	nextID atomic.Int32

	mu             sync.Mutex
	pending        map[jsonrpc2.ID]*pendingRequest
	recentTimeouts map[jsonrpc2.ID]time.Time
	closed         bool
	closeErr       error

	subMu           sync.RWMutex
	notifyHandlers  map[string][]NotificationHandler
	requestHandlers map[string]RequestHandler

	ctx    context.Context
	cancel context.CancelFunc
}

// NewMessageHandler creates a handler that writes through sender
func NewMessageHandler(sender Sender, opts ...HandlerOption) *MessageHandler {
	ctx, cancel := context.WithCancel(context.Background())
	h := &MessageHandler{
		sender:          sender,
		logger:          common.LSPLogger,
		defaultTimeout:  constants.DefaultRequestTimeout,
		pending:         make(map[jsonrpc2.ID]*pendingRequest),
		recentTimeouts:  make(map[jsonrpc2.ID]time.Time),
		notifyHandlers:  make(map[string][]NotificationHandler),
		requestHandlers: make(map[string]RequestHandler),
		ctx:             ctx,
		cancel:          cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Request sends a request and waits for its response using the default timeout
func (h *MessageHandler) Request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	return h.RequestWithTimeout(ctx, method, params, 0)
}

// RequestWithTimeout sends a request and waits at most timeout for its response.
// A zero timeout means the handler default. Nothing is sent to the peer when the
// wait ends early; a response arriving afterwards is dropped.
func (h *MessageHandler) RequestWithTimeout(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = h.defaultTimeout
	}

	id := jsonrpc2.NewNumberID(h.nextID.Add(1))
	body, err := EncodeCall(id, method, params)
	if err != nil {
		return nil, err
	}

	pr := &pendingRequest{
		method: method,
		issued: time.Now(),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		err := h.closeErr
		h.mu.Unlock()
		return nil, err
	}
	h.pending[id] = pr
	h.mu.Unlock()

	h.logger.Debug("Sending request: method=%s, id=%v", method, id)
	if err := h.sender.Send(body); err != nil {
		h.abandon(id, false)
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-pr.done:
	case <-timer.C:
		h.abandon(id, true)
		h.logger.Warn("Request timed out: method=%s, id=%v, timeout=%v", method, id, timeout)
		pr.resolve(nil, errors.NewTimeoutError("request", method, timeout))
	case <-ctx.Done():
		h.abandon(id, true)
		pr.resolve(nil, ctx.Err())
	}

	<-pr.done
	return pr.result, pr.err
}

// Call sends a request and decodes its result into result, which may be nil
func (h *MessageHandler) Call(ctx context.Context, method string, params, result interface{}) error {
	raw, err := h.Request(ctx, method, params)
	if err != nil {
		return err
	}
	if result == nil || isNullResult(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return errors.NewDecodeError(method, err)
	}
	return nil
}

// Notify sends a notification. Notifications reach the wire in the order Notify is called.
func (h *MessageHandler) Notify(method string, params interface{}) error {
	h.mu.Lock()
	closed, closeErr := h.closed, h.closeErr
	h.mu.Unlock()
	if closed {
		return closeErr
	}

	body, err := EncodeNotification(method, params)
	if err != nil {
		return err
	}
	h.logger.Debug("Sending notification: method=%s", method)
	return h.sender.Send(body)
}

// OnNotification appends a subscriber for method. Subscribers run in registration order.
func (h *MessageHandler) OnNotification(method string, fn NotificationHandler) {
	h.subMu.Lock()
	h.notifyHandlers[method] = append(h.notifyHandlers[method], fn)
	h.subMu.Unlock()
}

// OnRequest sets the handler for a server-to-client request method
func (h *MessageHandler) OnRequest(method string, fn RequestHandler) {
	h.subMu.Lock()
	h.requestHandlers[method] = fn
	h.subMu.Unlock()
}

// Dispatch handles one inbound frame body. It never returns an error: malformed
// input and unmatched responses are logged and absorbed.
func (h *MessageHandler) Dispatch(body []byte) {
	msg, err := DecodeMessage(body)
	if err != nil {
		h.logger.Warn("Discarding undecodable message: %s", common.SanitizeErrorForLogging(err))
		return
	}

	switch m := msg.(type) {
	case *jsonrpc2.Response:
		h.handleResponse(m)
	case *jsonrpc2.Notification:
		h.handleNotification(m.Method(), json.RawMessage(m.Params()))
	case *jsonrpc2.Call:
		h.handleServerRequest(m)
	default:
		h.logger.Warn("Discarding message of unexpected type %T", msg)
	}
}

// Close fails every pending request with err (ErrConnectionClosed when nil) and rejects new ones
func (h *MessageHandler) Close(err error) {
	if err == nil {
		err = errors.ErrConnectionClosed
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.closeErr = err
	pending := h.pending
	h.pending = make(map[jsonrpc2.ID]*pendingRequest)
	h.mu.Unlock()

	h.cancel()
	for id, pr := range pending {
		h.logger.Debug("Failing pending request: method=%s, id=%v", pr.method, id)
		pr.resolve(nil, err)
	}
}

// Pending returns the number of outstanding requests
func (h *MessageHandler) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// abandon removes a pending entry; remembered ids turn a later response into a debug line
func (h *MessageHandler) abandon(id jsonrpc2.ID, remember bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.pending, id)
	if !remember {
		return
	}

	now := time.Now()
	h.recentTimeouts[id] = now
	for reqID, at := range h.recentTimeouts {
		if now.Sub(at) > constants.LateResponseWindow {
			delete(h.recentTimeouts, reqID)
		}
	}
}

func (h *MessageHandler) handleResponse(resp *jsonrpc2.Response) {
	id := resp.ID()

	h.mu.Lock()
	pr, ok := h.pending[id]
	if ok {
		delete(h.pending, id)
	}
	timedOutAt, late := h.recentTimeouts[id]
	if late {
		delete(h.recentTimeouts, id)
	}
	h.mu.Unlock()

	if !ok {
		if late {
			h.logger.Debug("Received late response for previously timed-out request: id=%v (timed out %v ago)", id, time.Since(timedOutAt))
		} else {
			h.logger.Warn("No matching request found for response: id=%v", id)
		}
		return
	}

	h.logger.Debug("Received response: method=%s, id=%v, elapsed=%v", pr.method, id, time.Since(pr.issued))
	if rerr := resp.Err(); rerr != nil {
		h.logger.Warn("LSP response contains error: method=%s, id=%v, error=%s", pr.method, id, common.SanitizeErrorForLogging(rerr))
		pr.resolve(nil, toProtocolError(pr.method, rerr))
		return
	}
	pr.resolve(json.RawMessage(resp.Result()), nil)
}

func (h *MessageHandler) handleNotification(method string, params json.RawMessage) {
	h.subMu.RLock()
	subs := h.notifyHandlers[method]
	h.subMu.RUnlock()

	if len(subs) == 0 {
		h.logger.Debug("Ignoring notification with no subscriber: method=%s", method)
		return
	}
	for _, fn := range subs {
		h.invokeSubscriber(method, fn, params)
	}
}

func (h *MessageHandler) invokeSubscriber(method string, fn NotificationHandler, params json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Notification subscriber for %s panicked: %v", method, r)
		}
	}()
	fn(params)
}

func (h *MessageHandler) handleServerRequest(call *jsonrpc2.Call) {
	method := call.Method()
	id := call.ID()
	params := json.RawMessage(call.Params())

	h.subMu.RLock()
	fn := h.requestHandlers[method]
	h.subMu.RUnlock()

	h.logger.Debug("Received server request: method=%s, id=%v", method, id)

	// The reply is written off the read loop: Send can block until the peer
	// reads, and the peer may itself be blocked writing to us.
	go func() {
		var result interface{}
		var err error
		if fn != nil {
			result, err = h.runRequestHandler(method, fn, params)
		}

		body, encErr := EncodeResponse(id, result, err)
		if encErr != nil {
			h.logger.Error("Failed to encode reply to %s: %v", method, encErr)
			return
		}
		if sendErr := h.sender.Send(body); sendErr != nil {
			h.logger.Debug("Failed to reply to %s: %v", method, sendErr)
		}
	}()
}

func (h *MessageHandler) runRequestHandler(method string, fn RequestHandler, params json.RawMessage) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Request handler for %s panicked: %v", method, r)
			result, err = nil, fmt.Errorf("handler for %s panicked", method)
		}
	}()
	return fn(h.ctx, params)
}
