// Package protocol implements the JSON-RPC connection to the agent process:
// request-id allocation, pending-request correlation, and dispatch of
// inbound frames to the single notification and request handler slots.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hostbridge/acp-sdk-go/internal/errors"
	"github.com/hostbridge/acp-sdk-go/internal/transport"
	"github.com/hostbridge/acp-sdk-go/internal/wire"
)

// NotificationHandler receives agent notifications. At most one handler is
// installed at a time: the session running the active turn.
type NotificationHandler func(method string, params wire.Object)

// RequestHandler receives agent-initiated requests (permission prompts).
// The handler replies later via Respond with the same id.
type RequestHandler func(id any, method string, params wire.Object)

// Call tracks one outgoing request until its response arrives or the
// connection stops. A call settles exactly once.
type Call struct {
	id     int64
	method string
	done   chan struct{}
	result wire.Object
	err    error
}

// Done is closed once the call has settled.
func (c *Call) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the call settles or the context expires.
func (c *Call) Wait(ctx context.Context) (wire.Object, error) {
	select {
	case <-c.done:
		return c.result, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Conn is one JSON-RPC connection to one agent subprocess.
type Conn struct {
	log       *slog.Logger
	transport transport.Transport

	nextID atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]*Call

	handlerMu      sync.RWMutex
	notifyHandler  NotificationHandler
	requestHandler RequestHandler

	errMu    sync.RWMutex
	fatalErr error

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewConn creates a connection over the given transport.
func NewConn(log *slog.Logger, tr transport.Transport) *Conn {
	return &Conn{
		log:       log.With("component", "conn"),
		transport: tr,
		pending:   make(map[int64]*Call, 8),
		done:      make(chan struct{}),
	}
}

// Start launches the transport and begins dispatching inbound frames.
func (c *Conn) Start(ctx context.Context) error {
	if err := c.transport.Start(ctx); err != nil {
		return err
	}

	frames, errs := c.transport.ReadFrames(ctx)

	c.wg.Add(1)

	go c.readLoop(ctx, frames, errs)

	c.log.Debug("Connection started")

	return nil
}

// Stop terminates the transport and rejects every pending request with
// ErrProcessNotRunning, so no caller can hang past shutdown. Safe to call
// multiple times.
func (c *Conn) Stop() {
	c.closeOnce.Do(func() {
		close(c.done)
	})

	_ = c.transport.Stop()

	c.rejectAll(errors.ErrProcessNotRunning)
	c.wg.Wait()
	c.log.Debug("Connection stopped")
}

// Done is closed when the connection stops or hits a fatal error.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// FatalError returns the transport error that killed the connection, if any.
func (c *Conn) FatalError() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()

	return c.fatalErr
}

func (c *Conn) setFatalError(err error) {
	c.errMu.Lock()

	if c.fatalErr == nil {
		c.fatalErr = err
	}

	c.errMu.Unlock()

	c.closeOnce.Do(func() {
		close(c.done)
	})

	// A dead process can never answer: fail pending requests rather than
	// leaving them hanging until Stop.
	c.rejectAll(err)
}

// SetNotificationHandler installs (or with nil clears) the single
// notification slot.
func (c *Conn) SetNotificationHandler(h NotificationHandler) {
	c.handlerMu.Lock()
	c.notifyHandler = h
	c.handlerMu.Unlock()
}

// SetRequestHandler installs (or with nil clears) the single incoming
// request slot.
func (c *Conn) SetRequestHandler(h RequestHandler) {
	c.handlerMu.Lock()
	c.requestHandler = h
	c.handlerMu.Unlock()
}

// Send serializes and writes a request, returning the pending call. The
// pending entry is registered before the write and deregistered again if
// the write fails, so no settled-nor-settleable entries are left behind.
func (c *Conn) Send(ctx context.Context, method string, params any) (*Call, error) {
	id := c.nextID.Add(1)

	call := &Call{id: id, method: method, done: make(chan struct{})}

	c.pendingMu.Lock()
	c.pending[id] = call
	c.pendingMu.Unlock()

	data, err := json.Marshal(wire.NewRequest(id, method, params))
	if err != nil {
		c.claim(id)

		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}

	c.log.Debug("Sending request", "method", method, "id", id)

	if err := c.transport.Send(ctx, data); err != nil {
		c.claim(id)

		return nil, err
	}

	return call, nil
}

// Call sends a request and blocks for its response.
func (c *Conn) Call(ctx context.Context, method string, params any) (wire.Object, error) {
	call, err := c.Send(ctx, method, params)
	if err != nil {
		return nil, err
	}

	return call.Wait(ctx)
}

// Notify sends a fire-and-forget notification.
func (c *Conn) Notify(ctx context.Context, method string, params any) error {
	data, err := json.Marshal(wire.NewNotification(method, params))
	if err != nil {
		return fmt.Errorf("marshal %s notification: %w", method, err)
	}

	c.log.Debug("Sending notification", "method", method)

	return c.transport.Send(ctx, data)
}

// Respond answers an agent-initiated request, echoing its id.
func (c *Conn) Respond(ctx context.Context, id any, result any, rpcErr *wire.Error) error {
	data, err := json.Marshal(&wire.Response{
		JSONRPC: wire.Version,
		ID:      id,
		Result:  result,
		Error:   rpcErr,
	})
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}

	return c.transport.Send(ctx, data)
}

// claim removes and returns the pending call for id, if any. Claiming is
// the single point of response-to-request matching: each call can be
// claimed at most once.
func (c *Conn) claim(id int64) *Call {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	call, ok := c.pending[id]
	if !ok {
		return nil
	}

	delete(c.pending, id)

	return call
}

func (c *Conn) rejectAll(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[int64]*Call)
	c.pendingMu.Unlock()

	for _, call := range pending {
		call.err = err
		close(call.done)
	}
}

func (c *Conn) readLoop(ctx context.Context, frames <-chan []byte, errs <-chan error) {
	defer c.wg.Done()

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}

			c.dispatch(ctx, frame)

		case err, ok := <-errs:
			if !ok {
				return
			}

			if err != nil {
				c.log.Debug("Transport error", "error", err)
				c.setFatalError(err)

				return
			}

		case <-c.done:
			return

		case <-ctx.Done():
			return
		}
	}
}

// dispatch classifies one inbound frame by shape. Malformed and unroutable
// frames are protocol noise: dropped, never thrown.
func (c *Conn) dispatch(ctx context.Context, frame []byte) {
	msg, err := wire.Decode(frame)
	if err != nil {
		c.log.Debug("Dropping malformed frame", "error", err)

		return
	}

	switch msg.Kind {
	case wire.KindResponse:
		c.dispatchResponse(msg)

	case wire.KindRequest:
		c.dispatchRequest(ctx, msg)

	case wire.KindNotification:
		c.handlerMu.RLock()
		handler := c.notifyHandler
		c.handlerMu.RUnlock()

		if handler == nil {
			c.log.Debug("Dropping notification with no handler", "method", msg.Method)

			return
		}

		handler(msg.Method, msg.Params)

	default:
		c.log.Debug("Dropping frame with no method or id")
	}
}

func (c *Conn) dispatchResponse(msg *wire.Message) {
	id, ok := msg.ResponseID()
	if !ok {
		c.log.Debug("Dropping response with foreign id", "id", msg.ID)

		return
	}

	call := c.claim(id)
	if call == nil {
		// Stale reply after cancellation or shutdown.
		c.log.Debug("Dropping response for unknown request", "id", id)

		return
	}

	if msg.Err != nil {
		call.err = errors.FromCode(msg.Err.Code, msg.Err.Message, msg.Err.Data)
	} else {
		call.result = msg.Result
	}

	c.log.Debug("Request settled", "method", call.method, "id", id, "error", call.err)

	close(call.done)
}

func (c *Conn) dispatchRequest(ctx context.Context, msg *wire.Message) {
	c.handlerMu.RLock()
	handler := c.requestHandler
	c.handlerMu.RUnlock()

	if handler == nil {
		c.log.Debug("Rejecting agent request with no handler", "method", msg.Method)

		_ = c.Respond(ctx, msg.ID, nil, &wire.Error{
			Code:    errors.CodeMethodNotFound,
			Message: fmt.Sprintf("no handler for %s", msg.Method),
		})

		return
	}

	handler(msg.ID, msg.Method, msg.Params)
}
