package acpsdk

import (
	"context"
	"sync/atomic"

	"github.com/hostbridge/acp-sdk-go/internal/protocol"
)

// SessionUpdate is one event streamed during a turn. It is a tagged union:
// use a type switch to determine the concrete type.
type SessionUpdate interface {
	UpdateType() string
}

// Compile-time verification that all update types implement SessionUpdate.
var (
	_ SessionUpdate = (*AgentTextUpdate)(nil)
	_ SessionUpdate = (*ThoughtUpdate)(nil)
	_ SessionUpdate = (*UserTextUpdate)(nil)
	_ SessionUpdate = (*ToolCallUpdate)(nil)
	_ SessionUpdate = (*PlanUpdate)(nil)
	_ SessionUpdate = (*PermissionRequestUpdate)(nil)
	_ SessionUpdate = (*ConfigOptionsUpdate)(nil)
	_ SessionUpdate = (*ModeChangedUpdate)(nil)
)

// AgentTextUpdate is a chunk of the agent's visible response text.
type AgentTextUpdate struct {
	Text string
}

// UpdateType implements SessionUpdate.
func (u *AgentTextUpdate) UpdateType() string { return "text" }

// ThoughtUpdate is a chunk of the agent's reasoning text.
type ThoughtUpdate struct {
	Text string
}

// UpdateType implements SessionUpdate.
func (u *ThoughtUpdate) UpdateType() string { return "thinking" }

// UserTextUpdate is a replayed chunk of user input, seen when loading an
// existing session's history.
type UserTextUpdate struct {
	Text string
}

// UpdateType implements SessionUpdate.
func (u *UserTextUpdate) UpdateType() string { return "user_text" }

// ToolCallUpdate reports that a tool call was created or changed. ToolCall
// points at the session's live entity, already merged up to this event.
type ToolCallUpdate struct {
	ToolCall *ToolCall
}

// UpdateType implements SessionUpdate.
func (u *ToolCallUpdate) UpdateType() string { return "tool_call" }

// PlanUpdate carries a wholesale replacement of the agent's plan.
type PlanUpdate struct {
	Entries []PlanEntry
}

// UpdateType implements SessionUpdate.
func (u *PlanUpdate) UpdateType() string { return "plan" }

// PermissionRequestUpdate delivers a live permission request. The turn
// stalls on the agent side until Respond or Cancel is called; the stream
// never auto-answers.
type PermissionRequestUpdate struct {
	Request *PermissionRequest
}

// UpdateType implements SessionUpdate.
func (u *PermissionRequestUpdate) UpdateType() string { return "permission_request" }

// ConfigOptionsUpdate carries a wholesale replacement of the session's
// config-option menu.
type ConfigOptionsUpdate struct {
	Options []ConfigOption
}

// UpdateType implements SessionUpdate.
func (u *ConfigOptionsUpdate) UpdateType() string { return "config_update" }

// ModeChangedUpdate reports that the agent switched the session mode.
type ModeChangedUpdate struct {
	ModeID string
}

// UpdateType implements SessionUpdate.
func (u *ModeChangedUpdate) UpdateType() string { return "mode_changed" }

// PermissionRequest is a live agent-to-client request asking the user to
// authorize a tool call. It is answered at most once; later calls to
// Respond or Cancel, in any order, send nothing.
type PermissionRequest struct {
	ToolCallID string
	Options    []PermissionOption

	conn      *protocol.Conn
	requestID any
	responded atomic.Bool
}

// Respond answers the request by selecting one of its options.
func (p *PermissionRequest) Respond(ctx context.Context, optionID string) error {
	if !p.responded.CompareAndSwap(false, true) {
		return nil
	}

	return p.conn.Respond(ctx, p.requestID, map[string]any{
		"outcome": map[string]any{
			"outcome":  "selected",
			"optionId": optionID,
		},
	}, nil)
}

// Cancel answers the request without selecting an option.
func (p *PermissionRequest) Cancel(ctx context.Context) error {
	if !p.responded.CompareAndSwap(false, true) {
		return nil
	}

	return p.conn.Respond(ctx, p.requestID, map[string]any{
		"outcome": map[string]any{
			"outcome": "cancelled",
		},
	}, nil)
}
