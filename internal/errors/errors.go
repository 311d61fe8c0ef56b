package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the closed taxonomy callers branch on.
// Every failure surfaced by the SDK wraps one of these or is one of the
// typed errors below.
var (
	// ErrProcessNotRunning indicates the agent process is not running.
	// Stop() rejects every pending request with this error.
	ErrProcessNotRunning = errors.New("agent process not running")

	// ErrInitializationFailed indicates the initialize handshake did not
	// produce a usable protocol version.
	ErrInitializationFailed = errors.New("initialization failed")

	// ErrAuthenticationRequired indicates the agent requires authentication
	// before the requested operation.
	ErrAuthenticationRequired = errors.New("authentication required")

	// ErrSessionNotFound indicates the agent does not know the session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidParams indicates the agent rejected the request parameters.
	ErrInvalidParams = errors.New("invalid params")

	// ErrMethodNotFound indicates the agent does not implement the method.
	ErrMethodNotFound = errors.New("method not found")

	// ErrCancelled indicates the operation was cancelled.
	ErrCancelled = errors.New("cancelled")

	// ErrInvalidResponse indicates the agent responded with an unusable shape.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrTurnActive indicates a prompt was issued while another turn is
	// still streaming on the same session.
	ErrTurnActive = errors.New("turn already active")
)

// JSON-RPC error codes, standard plus the two protocol extensions.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeAuthRequired     = -32000
	CodeResourceNotFound = -32002
	CodeRequestCancelled = -32800
)

// RPCError carries a JSON-RPC error the taxonomy has no sentinel for.
type RPCError struct {
	Code    int
	Message string
	Data    any
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// TransportError wraps a failure in the byte transport underneath a request.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProcessExitError indicates the agent subprocess exited on its own.
type ProcessExitError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("agent process exited (code %d): %s", e.ExitCode, e.Stderr)
	}

	return fmt.Sprintf("agent process exited (code %d): %v", e.ExitCode, e.Err)
}

func (e *ProcessExitError) Unwrap() error {
	return e.Err
}

// FromCode maps a JSON-RPC error onto the taxonomy so callers branch on
// semantics instead of magic numbers.
func FromCode(code int, message string, data any) error {
	switch code {
	case CodeMethodNotFound:
		return fmt.Errorf("%w: %s", ErrMethodNotFound, message)
	case CodeInvalidParams:
		return fmt.Errorf("%w: %s", ErrInvalidParams, message)
	case CodeAuthRequired:
		return fmt.Errorf("%w: %s", ErrAuthenticationRequired, message)
	case CodeResourceNotFound:
		return fmt.Errorf("%w: %s", ErrSessionNotFound, message)
	case CodeRequestCancelled:
		return fmt.Errorf("%w: %s", ErrCancelled, message)
	default:
		return &RPCError{Code: code, Message: message, Data: data}
	}
}
