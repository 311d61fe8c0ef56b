package acpsdk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	acperrors "github.com/hostbridge/acp-sdk-go/internal/errors"
	"github.com/hostbridge/acp-sdk-go/internal/protocol"
	"github.com/hostbridge/acp-sdk-go/internal/wire"
)

// Session is one conversation with the agent. A session is either idle or
// running exactly one turn; Prompt during an active turn fails with
// ErrTurnActive rather than queueing.
//
// Tool calls accumulate across the session keyed by their id, so a
// tool_call_update arriving for an id created earlier in the turn merges
// into the same entity the consumer already holds.
type Session struct {
	client *Client
	conn   *protocol.Conn
	log    *slog.Logger
	id     string

	mu         sync.Mutex
	turnActive bool
	stream     *UpdateStream
	turnLog    *slog.Logger

	toolCalls map[string]*ToolCall
	toolOrder []string

	models         []ModelInfo
	modes          []ModeInfo
	currentModelID string
	currentModeID  string
	configOptions  []ConfigOption

	lastStop StopReason
}

func newSession(c *Client, id string) *Session {
	return &Session{
		client:    c,
		conn:      c.conn,
		log:       c.log.With("component", "session", "session_id", id),
		id:        id,
		toolCalls: make(map[string]*ToolCall),
	}
}

// applyCatalog folds the model, mode, and config-option catalogs from a
// session/new or session/load result into the session.
func (s *Session) applyCatalog(result wire.Object) {
	if result == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if models := result.Obj("models"); models != nil {
		s.currentModelID, s.models = parseModels(models)
	}

	if modes := result.Obj("modes"); modes != nil {
		s.currentModeID, s.modes = parseModes(modes)
	}

	if result.Has("configOptions") {
		s.configOptions = parseConfigOptions(result.Objs("configOptions"))
	}
}

// ID returns the agent-assigned session id.
func (s *Session) ID() string {
	return s.id
}

// Models returns the models the agent advertised for this session.
func (s *Session) Models() []ModelInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.models
}

// Modes returns the modes the agent advertised for this session.
func (s *Session) Modes() []ModeInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.modes
}

// ConfigOptions returns the current config-option menu.
func (s *Session) ConfigOptions() []ConfigOption {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.configOptions
}

// CurrentModelID returns the selected model id, if the agent reported one.
func (s *Session) CurrentModelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.currentModelID
}

// CurrentModeID returns the selected mode id, if the agent reported one.
func (s *Session) CurrentModeID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.currentModeID
}

// ToolCalls returns every tool call seen this session, in creation order.
func (s *Session) ToolCalls() []*ToolCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	calls := make([]*ToolCall, 0, len(s.toolOrder))
	for _, id := range s.toolOrder {
		calls = append(calls, s.toolCalls[id])
	}

	return calls
}

// LastStopReason reports why the most recently finished turn ended.
func (s *Session) LastStopReason() StopReason {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lastStop
}

// Prompt starts a turn with a single text message. See PromptBlocks.
func (s *Session) Prompt(ctx context.Context, text string) (*UpdateStream, error) {
	return s.PromptBlocks(ctx, Text(text))
}

// PromptBlocks starts a turn and returns the stream of its updates.
//
// The returned stream stays open until the agent's prompt response arrives
// plus a short grace window for trailing notifications, the turn errors,
// or Cancel is called. Exactly one of those closes it; the stream always
// terminates.
func (s *Session) PromptBlocks(ctx context.Context, blocks ...ContentBlock) (*UpdateStream, error) {
	s.mu.Lock()

	if s.turnActive {
		s.mu.Unlock()

		return nil, ErrTurnActive
	}

	stream := newUpdateStream()
	turnLog := s.log.With("turn_id", ulid.Make().String())

	s.turnActive = true
	s.stream = stream
	s.turnLog = turnLog
	s.mu.Unlock()

	s.conn.SetNotificationHandler(s.handleNotification)
	s.conn.SetRequestHandler(s.handleRequest)

	call, err := s.conn.Send(ctx, "session/prompt", map[string]any{
		"sessionId": s.id,
		"prompt":    blocks,
	})
	if err != nil {
		s.endTurn(stream, "", err)

		return nil, err
	}

	turnLog.Info("Turn started", "blocks", len(blocks))

	go s.awaitTurn(stream, call)

	return stream, nil
}

// awaitTurn settles the turn once the prompt response arrives. A normal
// completion keeps the stream open for the grace window so notifications
// that raced the response still land.
func (s *Session) awaitTurn(stream *UpdateStream, call *protocol.Call) {
	<-call.Done()

	result, err := call.Wait(context.Background())

	switch {
	case errors.Is(err, ErrCancelled):
		s.endTurn(stream, StopReasonCancelled, nil)

	case err != nil:
		s.endTurn(stream, "", err)

	default:
		reason := StopReason(result.Str("stopReason"))
		if reason == "" {
			reason = StopReasonEndTurn
		}

		grace := s.client.opts.GraceWindow
		if grace <= 0 {
			s.endTurn(stream, reason, nil)

			return
		}

		time.AfterFunc(grace, func() {
			s.endTurn(stream, reason, nil)
		})
	}
}

// endTurn closes out one turn exactly once. Late calls for a turn that
// Cancel or a racing path already ended are no-ops, checked by stream
// identity.
func (s *Session) endTurn(stream *UpdateStream, reason StopReason, err error) {
	s.mu.Lock()

	if s.stream != stream {
		s.mu.Unlock()

		return
	}

	s.turnActive = false
	s.stream = nil

	if reason != "" {
		s.lastStop = reason
	}

	turnLog := s.turnLog
	s.turnLog = nil
	s.mu.Unlock()

	s.conn.SetNotificationHandler(nil)
	s.conn.SetRequestHandler(nil)

	stream.closeWith(reason, err)

	if turnLog != nil {
		turnLog.Info("Turn finished", "stop_reason", reason, "error", err)
	}
}

// Cancel ends the active turn immediately: the stream closes with
// StopReasonCancelled without waiting for the grace window, and a
// best-effort session/cancel notification tells the agent to stop. The
// agent's eventual prompt response settles against an already-closed turn
// and is discarded. Cancelling an idle session is a no-op.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	stream := s.stream
	active := s.turnActive
	s.mu.Unlock()

	if !active || stream == nil {
		return nil
	}

	err := s.conn.Notify(ctx, "session/cancel", map[string]any{
		"sessionId": s.id,
	})

	s.endTurn(stream, StopReasonCancelled, nil)

	return err
}

// PromptResult is the collected outcome of a fully drained turn.
type PromptResult struct {
	// Text is the agent's visible response, chunks concatenated in order.
	Text string

	// ToolCalls are the calls created during the turn, in creation order,
	// each merged to its final state.
	ToolCalls []*ToolCall

	// StopReason reports why the turn ended.
	StopReason StopReason
}

// PromptAndWait runs a whole turn and blocks until it finishes, returning
// the assembled result. Permission requests arriving during the turn are
// left unanswered, so use the streaming API for agents that ask.
func (s *Session) PromptAndWait(ctx context.Context, text string) (*PromptResult, error) {
	stream, err := s.Prompt(ctx, text)
	if err != nil {
		return nil, err
	}

	res := &PromptResult{}

	var sb strings.Builder

	seen := make(map[string]bool)

	for update := range stream.Updates() {
		switch u := update.(type) {
		case *AgentTextUpdate:
			sb.WriteString(u.Text)

		case *ToolCallUpdate:
			if !seen[u.ToolCall.ID] {
				seen[u.ToolCall.ID] = true
				res.ToolCalls = append(res.ToolCalls, u.ToolCall)
			}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, err
	}

	res.Text = sb.String()
	res.StopReason = stream.StopReason()

	return res, nil
}

// SetModel switches the session's model. The confirmed id is taken from
// the agent's response when present, otherwise the requested id is assumed.
func (s *Session) SetModel(ctx context.Context, modelID string) error {
	result, err := s.conn.Call(ctx, "session/set_model", map[string]any{
		"sessionId": s.id,
		"modelId":   modelID,
	})
	if err != nil {
		return fmt.Errorf("session/set_model: %w", err)
	}

	confirmed := result.Str("currentModelId")
	if confirmed == "" {
		if models := result.Obj("models"); models != nil {
			confirmed = models.Str("currentModelId")
		}
	}

	if confirmed == "" {
		confirmed = modelID
	}

	s.mu.Lock()
	s.currentModelID = confirmed
	s.mu.Unlock()

	s.log.Info("Model changed", "model_id", confirmed)

	return nil
}

// SetMode switches the session's mode. Confirmation follows the same rules
// as SetModel.
func (s *Session) SetMode(ctx context.Context, modeID string) error {
	result, err := s.conn.Call(ctx, "session/set_mode", map[string]any{
		"sessionId": s.id,
		"modeId":    modeID,
	})
	if err != nil {
		return fmt.Errorf("session/set_mode: %w", err)
	}

	confirmed := result.Str("currentModeId")
	if confirmed == "" {
		if modes := result.Obj("modes"); modes != nil {
			confirmed = modes.Str("currentModeId")
		}
	}

	if confirmed == "" {
		confirmed = modeID
	}

	s.mu.Lock()
	s.currentModeID = confirmed
	s.mu.Unlock()

	s.log.Info("Mode changed", "mode_id", confirmed)

	return nil
}

// SetConfigOption sets one config option and returns the refreshed menu.
// The menu is replaced wholesale from the response when present: changing
// one option may reshape what the others offer.
func (s *Session) SetConfigOption(ctx context.Context, optionID, value string) ([]ConfigOption, error) {
	result, err := s.conn.Call(ctx, "session/set_config_option", map[string]any{
		"sessionId": s.id,
		"optionId":  optionID,
		"value":     value,
	})
	if err != nil {
		return nil, fmt.Errorf("session/set_config_option: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if result.Has("configOptions") {
		s.configOptions = parseConfigOptions(result.Objs("configOptions"))
	}

	return s.configOptions, nil
}

// handleNotification runs on the connection's read loop during an active
// turn. Unknown update tags and foreign session ids are dropped, never
// fatal: agents ahead of this SDK may stream shapes it does not know.
func (s *Session) handleNotification(method string, params wire.Object) {
	if method != "session/update" {
		s.log.Debug("Ignoring notification", "method", method)

		return
	}

	if sid := params.Str("sessionId"); sid != "" && sid != s.id {
		s.log.Debug("Dropping update for other session", "session_id", sid)

		return
	}

	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()

	if stream == nil {
		return
	}

	update := params.Obj("update")
	if update == nil {
		return
	}

	switch tag := update.Str("sessionUpdate"); tag {
	case "agent_message_chunk":
		stream.push(&AgentTextUpdate{Text: contentText(update.Obj("content"))})

	case "agent_thought_chunk", "thought_chunk":
		stream.push(&ThoughtUpdate{Text: contentText(update.Obj("content"))})

	case "user_message_chunk":
		stream.push(&UserTextUpdate{Text: contentText(update.Obj("content"))})

	case "tool_call":
		stream.push(&ToolCallUpdate{ToolCall: s.upsertToolCall(update)})

	case "tool_call_update":
		tc := s.mergeToolCall(update)
		if tc == nil {
			// Update for an id we never saw created. Dropped rather than
			// conjuring a half-initialized entity.
			s.log.Debug("Dropping update for unknown tool call",
				"tool_call_id", update.Str("toolCallId"))

			return
		}

		stream.push(&ToolCallUpdate{ToolCall: tc})

	case "plan":
		stream.push(&PlanUpdate{Entries: parsePlanEntries(update.Objs("entries"))})

	case "config_options_update":
		options := parseConfigOptions(update.Objs("configOptions"))

		s.mu.Lock()
		s.configOptions = options
		s.mu.Unlock()

		stream.push(&ConfigOptionsUpdate{Options: options})

	case "current_mode_update":
		modeID := update.Str("currentModeId")
		if modeID == "" {
			modeID = update.Str("modeId")
		}

		s.mu.Lock()
		s.currentModeID = modeID
		s.mu.Unlock()

		stream.push(&ModeChangedUpdate{ModeID: modeID})

	default:
		s.log.Debug("Dropping unknown session update", "session_update", tag)
	}
}

// upsertToolCall creates the entity for a tool_call event, or merges if the
// agent reused an id it already announced.
func (s *Session) upsertToolCall(update wire.Object) *ToolCall {
	id := update.Str("toolCallId")

	s.mu.Lock()
	defer s.mu.Unlock()

	if tc, ok := s.toolCalls[id]; ok {
		tc.merge(update)

		return tc
	}

	tc := newToolCall(update)
	s.toolCalls[id] = tc
	s.toolOrder = append(s.toolOrder, id)

	return tc
}

// mergeToolCall folds a tool_call_update into its entity, or returns nil
// for an unknown id.
func (s *Session) mergeToolCall(update wire.Object) *ToolCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	tc, ok := s.toolCalls[update.Str("toolCallId")]
	if !ok {
		return nil
	}

	tc.merge(update)

	return tc
}

// handleRequest routes agent-initiated requests during an active turn.
// Only session/request_permission is understood; anything else is answered
// method-not-found so the agent is never left awaiting a reply.
func (s *Session) handleRequest(id any, method string, params wire.Object) {
	if method != "session/request_permission" {
		s.log.Debug("Rejecting agent request", "method", method)

		_ = s.conn.Respond(context.Background(), id, nil, &wire.Error{
			Code:    acperrors.CodeMethodNotFound,
			Message: fmt.Sprintf("unsupported method %s", method),
		})

		return
	}

	if sid := params.Str("sessionId"); sid != "" && sid != s.id {
		s.log.Debug("Cancelling permission request for other session", "session_id", sid)

		_ = s.conn.Respond(context.Background(), id, map[string]any{
			"outcome": map[string]any{"outcome": "cancelled"},
		}, nil)

		return
	}

	req := &PermissionRequest{
		Options:   parsePermissionOptions(params.Objs("options")),
		conn:      s.conn,
		requestID: id,
	}

	if tc := params.Obj("toolCall"); tc != nil {
		req.ToolCallID = tc.Str("toolCallId")
	}

	s.mu.Lock()
	stream := s.stream
	s.mu.Unlock()

	if stream == nil {
		// No turn to surface the request on; answer cancelled so the agent
		// does not stall forever.
		_ = req.Cancel(context.Background())

		return
	}

	s.log.Debug("Permission requested",
		"tool_call_id", req.ToolCallID, "options", len(req.Options))

	stream.push(&PermissionRequestUpdate{Request: req})
}
