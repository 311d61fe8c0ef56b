package acpsdk

import "github.com/hostbridge/acp-sdk-go/internal/wire"

// ToolCallKind classifies a tool call by its effect.
type ToolCallKind string

const (
	ToolKindRead  ToolCallKind = "read"
	ToolKindWrite ToolCallKind = "write"
	ToolKindOther ToolCallKind = "other"
)

// ToolCallStatus is the lifecycle state of a tool call.
type ToolCallStatus string

const (
	ToolStatusPending    ToolCallStatus = "pending"
	ToolStatusInProgress ToolCallStatus = "in_progress"
	ToolStatusCompleted  ToolCallStatus = "completed"
	ToolStatusFailed     ToolCallStatus = "failed"
	ToolStatusCancelled  ToolCallStatus = "cancelled"
)

// ToolCallDiff is one file modification reported for a tool call.
type ToolCallDiff struct {
	Path    string `json:"path"`
	OldText string `json:"oldText,omitempty"`
	NewText string `json:"newText,omitempty"`
}

// ToolCallLocation is one file location a tool call touched.
type ToolCallLocation struct {
	Path string `json:"path"`
	Line int    `json:"line,omitempty"`
}

// ToolCall is a mutable entity tracking one agent-side tool invocation.
// Its id is the stable key across its entire lifecycle: a tool_call event
// creates it, and every tool_call_update referencing the same id merges
// into it. Merge semantics: scalars overwrite, arrays append, text
// concatenates.
type ToolCall struct {
	ID        string             `json:"id"`
	Title     string             `json:"title,omitempty"`
	Kind      ToolCallKind       `json:"kind,omitempty"`
	Status    ToolCallStatus     `json:"status"`
	RawInput  map[string]any     `json:"rawInput,omitempty"`
	RawOutput map[string]any     `json:"rawOutput,omitempty"`
	Diffs     []ToolCallDiff     `json:"diffs,omitempty"`
	Locations []ToolCallLocation `json:"locations,omitempty"`
	Text      string             `json:"text,omitempty"`
}

// newToolCall builds the entity from a tool_call wire update.
func newToolCall(u wire.Object) *ToolCall {
	tc := &ToolCall{
		ID:     u.Str("toolCallId"),
		Status: ToolStatusPending,
	}

	tc.merge(u)

	return tc
}

// merge folds a tool_call or tool_call_update payload into the entity.
func (tc *ToolCall) merge(u wire.Object) {
	if v := u.Str("title"); v != "" {
		tc.Title = v
	}

	if v := u.Str("kind"); v != "" {
		tc.Kind = ToolCallKind(v)
	}

	if v := u.Str("status"); v != "" {
		tc.Status = ToolCallStatus(v)
	}

	if in := u.Obj("rawInput"); in != nil {
		tc.RawInput = in
	}

	if out := u.Obj("rawOutput"); out != nil {
		tc.RawOutput = out
	}

	for _, item := range u.Objs("content") {
		switch item.Str("type") {
		case "content":
			tc.Text += contentText(item.Obj("content"))

		case "diff":
			tc.Diffs = append(tc.Diffs, ToolCallDiff{
				Path:    item.Str("path"),
				OldText: item.Str("oldText"),
				NewText: item.Str("newText"),
			})
		}
	}

	for _, loc := range u.Objs("locations") {
		tc.Locations = append(tc.Locations, ToolCallLocation{
			Path: loc.Str("path"),
			Line: loc.Int("line"),
		})
	}
}
