package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutError(t *testing.T) {
	err := NewTimeoutError("request", "textDocument/hover", 2*time.Second)
	assert.Equal(t, "timeout error for request textDocument/hover (timeout: 2s)", err.Error())

	noMethod := NewTimeoutError("await diagnostics", "", 500*time.Millisecond)
	assert.Equal(t, "timeout error for await diagnostics (timeout: 500ms)", noMethod.Error())

	assert.True(t, IsTimeoutError(err))
	assert.True(t, IsTimeoutError(fmt.Errorf("outer: %w", err)))
	assert.True(t, IsTimeoutError(context.DeadlineExceeded))
	assert.False(t, IsTimeoutError(context.Canceled))
	assert.False(t, IsTimeoutError(nil))
}

func TestProtocolError(t *testing.T) {
	err := NewProtocolError("initialize", InternalError, "boom")
	assert.Equal(t, "LSP error -32603 on initialize: boom", err.Error())
	assert.True(t, IsProtocolError(err))
	assert.False(t, IsMethodNotFound(err))

	var pe *ProtocolError
	require.True(t, stderrors.As(err, &pe))
	assert.Equal(t, CategoryJSONRPC, pe.Category())

	notFound := NewProtocolError("custom/thing", MethodNotFound, "no such method")
	assert.True(t, IsMethodNotFound(fmt.Errorf("call: %w", notFound)))
}

func TestDecodeError(t *testing.T) {
	cause := stderrors.New("unexpected end of JSON input")
	err := NewDecodeError("shutdown", cause)

	assert.True(t, IsProtocolError(err))
	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Error(), "Invalid response")

	var pe *ProtocolError
	require.True(t, stderrors.As(err, &pe))
	assert.Equal(t, InvalidResponse, pe.Code)
	assert.Equal(t, CategoryHarness, pe.Category())
}

func TestHandshakeError(t *testing.T) {
	cause := NewTimeoutError("request", "initialize", time.Second)
	err := NewHandshakeError("typescript-language-server", cause)

	assert.Equal(t, "initialize handshake with typescript-language-server failed: "+cause.Error(), err.Error())
	assert.True(t, IsHandshakeError(err))
	assert.True(t, IsTimeoutError(err), "cause should stay reachable")

	attached := NewHandshakeError("", ErrConnectionClosed)
	assert.Equal(t, "initialize handshake failed: connection closed", attached.Error())
	assert.True(t, IsConnectionClosed(attached))
}

func TestCancellationAndWrap(t *testing.T) {
	assert.True(t, IsCancellationError(fmt.Errorf("wait: %w", context.Canceled)))
	assert.False(t, IsCancellationError(context.DeadlineExceeded))

	assert.Nil(t, WrapWithContext("open", nil))
	wrapped := WrapWithContext("open", ErrConnectionClosed)
	assert.Equal(t, "open: connection closed", wrapped.Error())
	assert.True(t, IsConnectionClosed(wrapped))
}

func TestErrorCodeCategories(t *testing.T) {
	tests := []struct {
		code     int
		category string
		message  string
	}{
		{ParseError, CategoryJSONRPC, "Parse error"},
		{MethodNotFound, CategoryJSONRPC, "Method not found"},
		{ServerNotInitialized, CategoryJSONRPC, "Server not initialized"},
		{RequestCancelled, CategoryLSP, "Request cancelled"},
		{RequestFailed, CategoryLSP, "Request failed"},
		{ConnectionLost, CategoryHarness, "Connection lost"},
		{1, CategoryUnknown, "Unknown error"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.category, GetErrorCodeCategory(tt.code))
			assert.Equal(t, tt.message, GetErrorCodeMessage(tt.code))
		})
	}
}
