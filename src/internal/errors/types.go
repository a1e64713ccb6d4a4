package errors

import (
	"fmt"
)

// NotOpenError is returned for document operations on a URI that is not tracked
type NotOpenError struct {
	URI string
}

func (e *NotOpenError) Error() string {
	return fmt.Sprintf("document %s is not open", e.URI)
}

// NewNotOpenError creates a new NotOpenError
func NewNotOpenError(uri string) error {
	return &NotOpenError{URI: uri}
}

// AlreadyOpenError is returned when opening a URI that is already tracked
type AlreadyOpenError struct {
	URI string
}

func (e *AlreadyOpenError) Error() string {
	return fmt.Sprintf("document %s is already open", e.URI)
}

// NewAlreadyOpenError creates a new AlreadyOpenError
func NewAlreadyOpenError(uri string) error {
	return &AlreadyOpenError{URI: uri}
}

// NotReadyError is returned when an operation is attempted in the wrong session state
type NotReadyError struct {
	Operation string
	State     string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("cannot %s: session is %s", e.Operation, e.State)
}

// NewNotReadyError creates a new NotReadyError
func NewNotReadyError(operation, state string) error {
	return &NotReadyError{Operation: operation, State: state}
}
