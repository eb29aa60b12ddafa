// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"testing"
	"time"

	"github.com/jeranaias/sagechat-tui/internal/protocol"
)

// =============================================================================
// FRAME DECODE TESTS
// =============================================================================

func TestFromFrame_BasicMessage(t *testing.T) {
	raw := `{"type":"assistant","message_id":"m1","role":"assistant","content":"Hello","agent_name":"planner"}`
	f := &protocol.Frame{Type: "assistant", MessageID: "m1", Raw: []byte(raw), Timestamp: time.Now()}

	msg, err := FromFrame(f)
	if err != nil {
		t.Fatalf("FromFrame() error: %v", err)
	}
	if msg.ID != "m1" || msg.Role != RoleAssistant || msg.Content != "Hello" {
		t.Errorf("decoded message wrong: %+v", msg)
	}
	if msg.AgentName != "planner" {
		t.Errorf("AgentName = %q, want planner", msg.AgentName)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Timestamp should default to frame arrival time")
	}
}

func TestFromFrame_WireTimestamp(t *testing.T) {
	raw := `{"type":"assistant","message_id":"m1","role":"assistant","content":"x","timestamp":1700000000.5}`
	f := &protocol.Frame{Type: "assistant", MessageID: "m1", Raw: []byte(raw)}

	msg, err := FromFrame(f)
	if err != nil {
		t.Fatalf("FromFrame() error: %v", err)
	}
	want := time.Unix(1700000000, int64(500*time.Millisecond))
	if !msg.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", msg.Timestamp, want)
	}
}

func TestFromFrame_ToolCalls(t *testing.T) {
	raw := `{"type":"tool_call","message_id":"m3","role":"assistant",` +
		`"tool_calls":[{"id":"c1","function":{"name":"search","arguments":"{\"q\":\"go\"}"}}]}`
	f := &protocol.Frame{Type: "tool_call", MessageID: "m3", Raw: []byte(raw)}

	msg, err := FromFrame(f)
	if err != nil {
		t.Fatalf("FromFrame() error: %v", err)
	}
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("ToolCalls length = %d, want 1", len(msg.ToolCalls))
	}
	if msg.ToolCalls[0].Function.Name != "search" {
		t.Errorf("Function.Name = %q, want search", msg.ToolCalls[0].Function.Name)
	}
}

func TestFromFrame_FallsBackToFrameMessageID(t *testing.T) {
	raw := `{"type":"assistant","role":"assistant","content":"x"}`
	f := &protocol.Frame{Type: "assistant", MessageID: "from-frame", Raw: []byte(raw)}

	msg, err := FromFrame(f)
	if err != nil {
		t.Fatalf("FromFrame() error: %v", err)
	}
	if msg.ID != "from-frame" {
		t.Errorf("ID = %q, want from-frame", msg.ID)
	}
}

// =============================================================================
// MERGE POLICY TESTS
// =============================================================================

func TestMessage_StrategyFor(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want MergeStrategy
	}{
		{"tool role replaces", Message{Role: RoleTool}, MergeReplace},
		{"tool_call_result type replaces", Message{Role: RoleAssistant, Type: TypeToolCallResult}, MergeReplace},
		{"assistant concat-merges", Message{Role: RoleAssistant}, MergeConcat},
		{"user concat-merges", Message{Role: RoleUser}, MergeConcat},
		{"final_answer concat-merges", Message{Role: RoleAssistant, Type: TypeFinalAnswer}, MergeConcat},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.msg.StrategyFor(); got != tc.want {
				t.Errorf("StrategyFor() = %v, want %v", got, tc.want)
			}
		})
	}
}

// =============================================================================
// DISPLAY TESTS
// =============================================================================

func TestMessage_DisplayContent(t *testing.T) {
	msg := &Message{Content: "raw", ShowContent: "pretty"}
	if got := msg.DisplayContent(); got != "pretty" {
		t.Errorf("DisplayContent() = %q, want show_content override", got)
	}

	msg.ShowContent = ""
	if got := msg.DisplayContent(); got != "raw" {
		t.Errorf("DisplayContent() = %q, want raw content", got)
	}
}

func TestMessage_Preview(t *testing.T) {
	msg := NewUserMessage("héllo wörld this is a long message over the limit")
	preview := msg.Preview(10)
	if len([]rune(preview)) != 10 {
		t.Errorf("Preview(10) rune length = %d, want 10", len([]rune(preview)))
	}
}

func TestMessage_Clone(t *testing.T) {
	msg := &Message{
		ID:        "m1",
		Role:      RoleAssistant,
		ToolCalls: []ToolCall{{ID: "c1"}},
		Metadata:  map[string]any{"tokens": 5},
	}

	cp := msg.Clone()
	cp.ToolCalls[0].ID = "changed"
	cp.Metadata["tokens"] = 99

	if msg.ToolCalls[0].ID != "c1" {
		t.Error("Clone() shares ToolCalls backing array")
	}
	if msg.Metadata["tokens"] != 5 {
		t.Error("Clone() shares Metadata map")
	}
}
