package acpsdk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// promptSession builds a started client with one session "s1". The handle
// callback scripts agent behavior for everything past the session setup.
func promptSession(t *testing.T, handle func(f *fakeTransport, msg map[string]any)) (*Session, *fakeTransport) {
	t.Helper()

	client, f := newTestClient(t, defaultInitResult(), func(f *fakeTransport, msg map[string]any) {
		if msg["method"] == "session/new" {
			f.reply(msg["id"], map[string]any{"sessionId": "s1"})

			return
		}

		if handle != nil {
			handle(f, msg)
		}
	})

	require.NoError(t, client.Start(context.Background()))

	session, err := client.NewSession(context.Background(), "/work", nil)
	require.NoError(t, err)

	return session, f
}

func sessionUpdate(update map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"method":  "session/update",
		"params":  map[string]any{"sessionId": "s1", "update": update},
	}
}

func textChunk(tag, text string) map[string]any {
	return map[string]any{
		"sessionUpdate": tag,
		"content":       map[string]any{"type": "text", "text": text},
	}
}

func TestPromptStreamsUpdates(t *testing.T) {
	session, _ := promptSession(t, func(f *fakeTransport, msg map[string]any) {
		if msg["method"] != "session/prompt" {
			return
		}

		p := params(msg)
		require.Equal(t, "s1", p["sessionId"])
		require.NotEmpty(t, p["prompt"])

		f.deliver(sessionUpdate(textChunk("agent_thought_chunk", "hmm")))
		f.deliver(sessionUpdate(textChunk("agent_message_chunk", "Hel")))
		f.deliver(sessionUpdate(textChunk("agent_message_chunk", "lo")))
		f.deliver(sessionUpdate(map[string]any{
			"sessionUpdate": "plan",
			"entries": []any{
				map[string]any{"content": "read files", "status": "pending"},
			},
		}))
		f.reply(msg["id"], map[string]any{"stopReason": "end_turn"})
	})

	stream, err := session.Prompt(context.Background(), "say hello")
	require.NoError(t, err)

	var updates []SessionUpdate
	for update := range stream.Updates() {
		updates = append(updates, update)
	}

	require.NoError(t, stream.Err())
	require.Equal(t, StopReasonEndTurn, stream.StopReason())
	require.Equal(t, StopReasonEndTurn, session.LastStopReason())

	require.Len(t, updates, 4)
	require.Equal(t, "hmm", updates[0].(*ThoughtUpdate).Text)
	require.Equal(t, "Hel", updates[1].(*AgentTextUpdate).Text)
	require.Equal(t, "lo", updates[2].(*AgentTextUpdate).Text)

	plan := updates[3].(*PlanUpdate)
	require.Len(t, plan.Entries, 1)
	require.Equal(t, "read files", plan.Entries[0].Content)
}

func TestPromptWhileTurnActive(t *testing.T) {
	session, _ := promptSession(t, nil)

	_, err := session.Prompt(context.Background(), "first")
	require.NoError(t, err)

	_, err = session.Prompt(context.Background(), "second")
	require.ErrorIs(t, err, ErrTurnActive)

	require.NoError(t, session.Cancel(context.Background()))
}

func TestCancelClosesStream(t *testing.T) {
	session, f := promptSession(t, func(f *fakeTransport, msg map[string]any) {
		if msg["method"] == "session/prompt" {
			f.deliver(sessionUpdate(textChunk("agent_message_chunk", "partial")))
		}
	})

	stream, err := session.Prompt(context.Background(), "slow work")
	require.NoError(t, err)

	var first SessionUpdate
	for update := range stream.Updates() {
		first = update

		break
	}

	require.Equal(t, "partial", first.(*AgentTextUpdate).Text)

	require.NoError(t, session.Cancel(context.Background()))

	for range stream.Updates() { //nolint:revive // draining
	}

	require.NoError(t, stream.Err())
	require.Equal(t, StopReasonCancelled, stream.StopReason())
	require.Equal(t, StopReasonCancelled, session.LastStopReason())
	require.Contains(t, f.sentMethods(), "session/cancel")

	// Cancelling again is a no-op.
	require.NoError(t, session.Cancel(context.Background()))

	// The session is free for the next turn.
	_, err = session.Prompt(context.Background(), "again")
	require.NoError(t, err)
	require.NoError(t, session.Cancel(context.Background()))
}

func TestAgentCancelledResponse(t *testing.T) {
	session, _ := promptSession(t, func(f *fakeTransport, msg map[string]any) {
		if msg["method"] == "session/prompt" {
			f.replyError(msg["id"], -32800, "request cancelled")
		}
	})

	stream, err := session.Prompt(context.Background(), "whatever")
	require.NoError(t, err)

	for range stream.Updates() { //nolint:revive // draining
	}

	// A cancelled turn is a normal ending, not a failure.
	require.NoError(t, stream.Err())
	require.Equal(t, StopReasonCancelled, stream.StopReason())
}

func TestPromptErrorClosesStream(t *testing.T) {
	session, _ := promptSession(t, func(f *fakeTransport, msg map[string]any) {
		if msg["method"] == "session/prompt" {
			f.replyError(msg["id"], -32603, "agent crashed")
		}
	})

	stream, err := session.Prompt(context.Background(), "whatever")
	require.NoError(t, err)

	for range stream.Updates() { //nolint:revive // draining
	}

	var rpcErr *RPCError
	require.ErrorAs(t, stream.Err(), &rpcErr)
	require.Equal(t, -32603, rpcErr.Code)
}

func TestToolCallLifecycle(t *testing.T) {
	session, _ := promptSession(t, func(f *fakeTransport, msg map[string]any) {
		if msg["method"] != "session/prompt" {
			return
		}

		f.deliver(sessionUpdate(map[string]any{
			"sessionUpdate": "tool_call",
			"toolCallId":    "t1",
			"title":         "Read main.go",
			"kind":          "read",
			"status":        "in_progress",
			"rawInput":      map[string]any{"path": "main.go"},
			"content": []any{
				map[string]any{
					"type":    "content",
					"content": map[string]any{"type": "text", "text": "package "},
				},
			},
		}))
		f.deliver(sessionUpdate(map[string]any{
			"sessionUpdate": "tool_call_update",
			"toolCallId":    "t1",
			"status":        "completed",
			"content": []any{
				map[string]any{
					"type":    "content",
					"content": map[string]any{"type": "text", "text": "main"},
				},
				map[string]any{
					"type":    "diff",
					"path":    "main.go",
					"oldText": "a",
					"newText": "b",
				},
			},
			"locations": []any{map[string]any{"path": "main.go", "line": 1}},
		}))
		f.reply(msg["id"], map[string]any{"stopReason": "end_turn"})
	})

	stream, err := session.Prompt(context.Background(), "read it")
	require.NoError(t, err)

	var events []*ToolCallUpdate

	for update := range stream.Updates() {
		if tc, ok := update.(*ToolCallUpdate); ok {
			events = append(events, tc)
		}
	}

	require.Len(t, events, 2)
	// Both events point at the same live entity.
	require.Same(t, events[0].ToolCall, events[1].ToolCall)

	calls := session.ToolCalls()
	require.Len(t, calls, 1)

	tc := calls[0]
	require.Equal(t, "t1", tc.ID)
	require.Equal(t, "Read main.go", tc.Title)
	require.Equal(t, ToolKindRead, tc.Kind)
	require.Equal(t, ToolStatusCompleted, tc.Status)
	require.Equal(t, "package main", tc.Text)
	require.Len(t, tc.Diffs, 1)
	require.Equal(t, "main.go", tc.Diffs[0].Path)
	require.Len(t, tc.Locations, 1)
	require.Equal(t, 1, tc.Locations[0].Line)
}

func TestUnknownToolCallUpdateDropped(t *testing.T) {
	session, _ := promptSession(t, func(f *fakeTransport, msg map[string]any) {
		if msg["method"] != "session/prompt" {
			return
		}

		f.deliver(sessionUpdate(map[string]any{
			"sessionUpdate": "tool_call_update",
			"toolCallId":    "ghost",
			"status":        "completed",
		}))
		f.reply(msg["id"], map[string]any{"stopReason": "end_turn"})
	})

	stream, err := session.Prompt(context.Background(), "hi")
	require.NoError(t, err)

	for update := range stream.Updates() {
		_, isToolCall := update.(*ToolCallUpdate)
		require.False(t, isToolCall)
	}

	require.Empty(t, session.ToolCalls())
}

func TestUpdatesForOtherSessionDropped(t *testing.T) {
	session, _ := promptSession(t, func(f *fakeTransport, msg map[string]any) {
		if msg["method"] != "session/prompt" {
			return
		}

		f.deliver(map[string]any{
			"jsonrpc": "2.0",
			"method":  "session/update",
			"params": map[string]any{
				"sessionId": "someone-else",
				"update":    textChunk("agent_message_chunk", "wrong door"),
			},
		})
		f.deliver(sessionUpdate(textChunk("agent_message_chunk", "mine")))
		f.reply(msg["id"], map[string]any{"stopReason": "end_turn"})
	})

	stream, err := session.Prompt(context.Background(), "hi")
	require.NoError(t, err)

	var texts []string

	for update := range stream.Updates() {
		if u, ok := update.(*AgentTextUpdate); ok {
			texts = append(texts, u.Text)
		}
	}

	require.Equal(t, []string{"mine"}, texts)
}

func TestUnknownUpdateTagDropped(t *testing.T) {
	session, _ := promptSession(t, func(f *fakeTransport, msg map[string]any) {
		if msg["method"] != "session/prompt" {
			return
		}

		f.deliver(sessionUpdate(map[string]any{"sessionUpdate": "holographic_chunk", "x": 1}))
		f.reply(msg["id"], map[string]any{"stopReason": "end_turn"})
	})

	stream, err := session.Prompt(context.Background(), "hi")
	require.NoError(t, err)

	count := 0
	for range stream.Updates() {
		count++
	}

	require.Zero(t, count)
}

func TestModeAndConfigUpdatesDuringTurn(t *testing.T) {
	session, _ := promptSession(t, func(f *fakeTransport, msg map[string]any) {
		if msg["method"] != "session/prompt" {
			return
		}

		f.deliver(sessionUpdate(map[string]any{
			"sessionUpdate": "current_mode_update",
			"currentModeId": "plan",
		}))
		f.deliver(sessionUpdate(map[string]any{
			"sessionUpdate": "config_options_update",
			"configOptions": []any{
				map[string]any{"id": "mode", "category": "mode", "currentValue": "plan"},
			},
		}))
		f.reply(msg["id"], map[string]any{"stopReason": "end_turn"})
	})

	stream, err := session.Prompt(context.Background(), "switch")
	require.NoError(t, err)

	var updates []SessionUpdate
	for update := range stream.Updates() {
		updates = append(updates, update)
	}

	require.Len(t, updates, 2)
	require.Equal(t, "plan", updates[0].(*ModeChangedUpdate).ModeID)
	require.Len(t, updates[1].(*ConfigOptionsUpdate).Options, 1)

	require.Equal(t, "plan", session.CurrentModeID())
	require.Len(t, session.ConfigOptions(), 1)
}

func TestPermissionRequestAnsweredOnce(t *testing.T) {
	var promptID any

	session, f := promptSession(t, func(f *fakeTransport, msg map[string]any) {
		if msg["method"] != "session/prompt" {
			return
		}

		promptID = msg["id"]

		f.deliver(map[string]any{
			"jsonrpc": "2.0",
			"id":      "perm-1",
			"method":  "session/request_permission",
			"params": map[string]any{
				"sessionId": "s1",
				"toolCall":  map[string]any{"toolCallId": "t1"},
				"options": []any{
					map[string]any{"optionId": "allow", "name": "Allow", "kind": "allow_once"},
					map[string]any{"optionId": "deny", "name": "Deny", "kind": "reject_once"},
				},
			},
		})
	})

	stream, err := session.Prompt(context.Background(), "edit the file")
	require.NoError(t, err)

	answered := false

	for update := range stream.Updates() {
		pu, ok := update.(*PermissionRequestUpdate)
		require.True(t, ok)

		req := pu.Request
		require.Equal(t, "t1", req.ToolCallID)
		require.Len(t, req.Options, 2)
		require.Equal(t, PermissionAllowOnce, req.Options[0].Kind)

		require.NoError(t, req.Respond(context.Background(), "allow"))

		reply := f.lastSent()
		require.Equal(t, "perm-1", reply["id"])

		outcome := reply["result"].(map[string]any)["outcome"].(map[string]any)
		require.Equal(t, "selected", outcome["outcome"])
		require.Equal(t, "allow", outcome["optionId"])

		// Second answers send nothing.
		before := f.sentCount()
		require.NoError(t, req.Respond(context.Background(), "deny"))
		require.NoError(t, req.Cancel(context.Background()))
		require.Equal(t, before, f.sentCount())

		answered = true

		f.reply(promptID, map[string]any{"stopReason": "end_turn"})
	}

	require.True(t, answered)
	require.Equal(t, StopReasonEndTurn, stream.StopReason())
}

func TestPromptAndWaitCollectsTurn(t *testing.T) {
	session, _ := promptSession(t, func(f *fakeTransport, msg map[string]any) {
		if msg["method"] != "session/prompt" {
			return
		}

		f.deliver(sessionUpdate(textChunk("agent_message_chunk", "The answer ")))
		f.deliver(sessionUpdate(textChunk("agent_message_chunk", "is 42.")))
		f.deliver(sessionUpdate(map[string]any{
			"sessionUpdate": "tool_call",
			"toolCallId":    "t1",
			"title":         "Compute",
			"status":        "completed",
		}))
		f.reply(msg["id"], map[string]any{"stopReason": "max_tokens"})
	})

	result, err := session.PromptAndWait(context.Background(), "the question")
	require.NoError(t, err)
	require.Equal(t, "The answer is 42.", result.Text)
	require.Equal(t, StopReasonMaxTokens, result.StopReason)
	require.Len(t, result.ToolCalls, 1)
	require.Equal(t, "Compute", result.ToolCalls[0].Title)
}

func TestSetModel(t *testing.T) {
	session, _ := promptSession(t, func(f *fakeTransport, msg map[string]any) {
		if msg["method"] == "session/set_model" {
			require.Equal(t, "m2", params(msg)["modelId"])
			f.reply(msg["id"], map[string]any{"currentModelId": "m2"})
		}
	})

	require.NoError(t, session.SetModel(context.Background(), "m2"))
	require.Equal(t, "m2", session.CurrentModelID())
}

func TestSetModeAssumesRequestedOnSilentAgent(t *testing.T) {
	session, _ := promptSession(t, func(f *fakeTransport, msg map[string]any) {
		if msg["method"] == "session/set_mode" {
			f.reply(msg["id"], map[string]any{})
		}
	})

	require.NoError(t, session.SetMode(context.Background(), "plan"))
	require.Equal(t, "plan", session.CurrentModeID())
}

func TestSetConfigOptionRefreshesMenu(t *testing.T) {
	session, _ := promptSession(t, func(f *fakeTransport, msg map[string]any) {
		if msg["method"] == "session/set_config_option" {
			p := params(msg)
			require.Equal(t, "thought_level", p["optionId"])
			require.Equal(t, "high", p["value"])

			f.reply(msg["id"], map[string]any{
				"configOptions": []any{
					map[string]any{
						"id":           "thought_level",
						"category":     "thought_level",
						"currentValue": "high",
					},
				},
			})
		}
	})

	options, err := session.SetConfigOption(context.Background(), "thought_level", "high")
	require.NoError(t, err)
	require.Len(t, options, 1)
	require.Equal(t, "high", options[0].CurrentValue)
	require.Equal(t, "high", session.ConfigOptions()[0].CurrentValue)
}

func TestSetModelErrorPreservesState(t *testing.T) {
	session, _ := promptSession(t, func(f *fakeTransport, msg map[string]any) {
		if msg["method"] == "session/set_model" {
			f.replyError(msg["id"], -32602, "no such model")
		}
	})

	err := session.SetModel(context.Background(), "bogus")
	require.ErrorIs(t, err, ErrInvalidParams)
	require.Empty(t, session.CurrentModelID())
}
