package server

import (
	"sync"

	"github.com/google/uuid"

	"lsp-tester/src/internal/common"
	"lsp-tester/src/internal/errors"
)

// SessionState is the lifecycle position of a session
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateInitializing
	StateReady
	StateShuttingDown
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting down"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session tracks one server connection's lifecycle. Every LSPServer owns a fresh one.
type Session struct {
	id     string
	logger *common.SafeLogger

	mu    sync.RWMutex
	state SessionState
}

func newSession() *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		logger: common.LSPLogger.With("session", id[:8]),
	}
}

// ID returns the session's unique id
func (s *Session) ID() string {
	return s.id
}

// State returns the current state
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// transition moves from one of the allowed states to next, or returns a
// NotReadyError naming the state the session is actually in.
func (s *Session) transition(operation string, next SessionState, from ...SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range from {
		if s.state == st {
			s.logger.Debug("Session state %s -> %s (%s)", s.state, next, operation)
			s.state = next
			return nil
		}
	}
	return errors.NewNotReadyError(operation, s.state.String())
}

// requireReady fails with NotReadyError unless the session is Ready
func (s *Session) requireReady(operation string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateReady {
		return errors.NewNotReadyError(operation, s.state.String())
	}
	return nil
}

// close forces Closed and reports whether this call changed the state
func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	s.logger.Debug("Session state %s -> %s", s.state, StateClosed)
	s.state = StateClosed
	return true
}
