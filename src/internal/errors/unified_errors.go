package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"
)

// ErrConnectionClosed is returned to callers whose request was pending when the stream closed
var ErrConnectionClosed = stderrors.New("connection closed")

// TimeoutError represents a request or wait that hit its deadline
type TimeoutError struct {
	Operation string        `json:"operation"`
	Method    string        `json:"method,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
}

func (e *TimeoutError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("timeout error for %s %s (timeout: %v)", e.Operation, e.Method, e.Timeout)
	}
	return fmt.Sprintf("timeout error for %s (timeout: %v)", e.Operation, e.Timeout)
}

// NewTimeoutError creates a new TimeoutError
func NewTimeoutError(operation, method string, timeout time.Duration) error {
	return &TimeoutError{
		Operation: operation,
		Method:    method,
		Timeout:   timeout,
	}
}

// ProtocolError represents an error payload returned by the server, or a response
// whose result could not be decoded.
type ProtocolError struct {
	Method  string `json:"method"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *ProtocolError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("LSP error %d on %s: %s: %v", e.Code, e.Method, e.Message, e.Cause)
	}
	return fmt.Sprintf("LSP error %d on %s: %s", e.Code, e.Method, e.Message)
}

func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// Category returns the error code category
func (e *ProtocolError) Category() string {
	return GetErrorCodeCategory(e.Code)
}

// NewProtocolError creates a ProtocolError for a server error payload
func NewProtocolError(method string, code int, message string) error {
	return &ProtocolError{
		Method:  method,
		Code:    code,
		Message: message,
	}
}

// NewDecodeError creates a ProtocolError for a result that could not be decoded
func NewDecodeError(method string, cause error) error {
	return &ProtocolError{
		Method:  method,
		Code:    InvalidResponse,
		Message: GetErrorCodeMessage(InvalidResponse),
		Cause:   cause,
	}
}

// HandshakeError represents a failed initialize exchange
type HandshakeError struct {
	Command string `json:"command"`
	Cause   error  `json:"-"`
}

func (e *HandshakeError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("initialize handshake with %s failed: %v", e.Command, e.Cause)
	}
	return fmt.Sprintf("initialize handshake failed: %v", e.Cause)
}

func (e *HandshakeError) Unwrap() error {
	return e.Cause
}

// NewHandshakeError creates a new HandshakeError
func NewHandshakeError(command string, cause error) error {
	return &HandshakeError{Command: command, Cause: cause}
}

// IsTimeoutError checks if the error chain contains a TimeoutError or a deadline expiry
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if stderrors.As(err, &te) {
		return true
	}
	return stderrors.Is(err, context.DeadlineExceeded)
}

// IsCancellationError checks if the error is a context cancellation
func IsCancellationError(err error) bool {
	return err != nil && stderrors.Is(err, context.Canceled)
}

// IsProtocolError checks if the error chain contains a ProtocolError
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return err != nil && stderrors.As(err, &pe)
}

// IsMethodNotFound reports whether the server rejected the method as unknown
func IsMethodNotFound(err error) bool {
	var pe *ProtocolError
	return err != nil && stderrors.As(err, &pe) && pe.Code == MethodNotFound
}

// IsHandshakeError checks if the error chain contains a HandshakeError
func IsHandshakeError(err error) bool {
	var he *HandshakeError
	return err != nil && stderrors.As(err, &he)
}

// IsNotReadyError checks if the error chain contains a NotReadyError
func IsNotReadyError(err error) bool {
	var ne *NotReadyError
	return err != nil && stderrors.As(err, &ne)
}

// IsNotOpenError checks if the error chain contains a NotOpenError
func IsNotOpenError(err error) bool {
	var ne *NotOpenError
	return err != nil && stderrors.As(err, &ne)
}

// IsAlreadyOpenError checks if the error chain contains an AlreadyOpenError
func IsAlreadyOpenError(err error) bool {
	var ae *AlreadyOpenError
	return err != nil && stderrors.As(err, &ae)
}

// IsConnectionClosed checks if the error chain contains ErrConnectionClosed
func IsConnectionClosed(err error) bool {
	return err != nil && stderrors.Is(err, ErrConnectionClosed)
}

// WrapWithContext wraps an error with operation context
func WrapWithContext(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", operation, err)
}
