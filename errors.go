package acpsdk

import (
	"errors"

	acperrors "github.com/hostbridge/acp-sdk-go/internal/errors"
)

// The closed error taxonomy. Every failure surfaced by the SDK wraps one
// of these sentinels or is one of the typed errors below; callers branch
// with errors.Is / errors.As.
var (
	// ErrProcessNotRunning indicates the agent process is not running.
	ErrProcessNotRunning = acperrors.ErrProcessNotRunning

	// ErrInitializationFailed indicates the handshake did not produce a
	// usable protocol version.
	ErrInitializationFailed = acperrors.ErrInitializationFailed

	// ErrAuthenticationRequired indicates the agent requires authentication.
	ErrAuthenticationRequired = acperrors.ErrAuthenticationRequired

	// ErrSessionNotFound indicates the agent does not know the session id.
	ErrSessionNotFound = acperrors.ErrSessionNotFound

	// ErrInvalidParams indicates the agent rejected the request parameters.
	ErrInvalidParams = acperrors.ErrInvalidParams

	// ErrMethodNotFound indicates the agent does not implement the method.
	ErrMethodNotFound = acperrors.ErrMethodNotFound

	// ErrCancelled indicates the operation was cancelled.
	ErrCancelled = acperrors.ErrCancelled

	// ErrInvalidResponse indicates the agent responded with an unusable shape.
	ErrInvalidResponse = acperrors.ErrInvalidResponse

	// ErrTurnActive indicates Prompt was called while a turn is streaming.
	ErrTurnActive = acperrors.ErrTurnActive

	// ErrAlreadyStarted indicates Start was called twice. Clients are
	// single-use.
	ErrAlreadyStarted = errors.New("client already started")
)

// RPCError carries a JSON-RPC error code outside the sentinel taxonomy.
type RPCError = acperrors.RPCError

// TransportError wraps a failure in the byte transport.
type TransportError = acperrors.TransportError

// ProcessExitError indicates the agent subprocess exited on its own.
type ProcessExitError = acperrors.ProcessExitError
