// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"testing"
	"time"
)

// =============================================================================
// UPSERT TESTS
// =============================================================================

func TestConversation_ApplyAppendsFreshID(t *testing.T) {
	conv := NewConversation()

	appended := conv.Apply(&Message{ID: "m1", Role: RoleAssistant, Content: "hi"})
	if !appended {
		t.Error("Apply() = false for fresh id, want true")
	}
	if conv.MessageCount() != 1 {
		t.Errorf("MessageCount() = %d, want 1", conv.MessageCount())
	}
}

func TestConversation_ApplyConcatenatesContent(t *testing.T) {
	// Scenario: incremental token streaming of assistant text.
	conv := NewConversation()

	conv.Apply(&Message{ID: "m1", Role: RoleAssistant, Content: "Hel"})
	appended := conv.Apply(&Message{ID: "m1", Role: RoleAssistant, Content: "lo"})

	if appended {
		t.Error("Apply() = true for repeated id, want false")
	}
	if conv.MessageCount() != 1 {
		t.Fatalf("MessageCount() = %d, want 1", conv.MessageCount())
	}
	if got := conv.GetMessageByID("m1").Content; got != "Hello" {
		t.Errorf("Content = %q, want Hello", got)
	}
}

func TestConversation_ApplyOverwritesFieldsOnMerge(t *testing.T) {
	conv := NewConversation()

	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	second := time.Date(2025, 1, 1, 0, 0, 5, 0, time.UTC)

	conv.Apply(&Message{ID: "m1", Role: RoleAssistant, Type: "execution", Content: "a", Timestamp: first})
	conv.Apply(&Message{ID: "m1", Role: RoleAssistant, Type: TypeFinalAnswer, Content: "b", Timestamp: second,
		Metadata: map[string]any{"tokens": 12}})

	got := conv.GetMessageByID("m1")
	if got.Content != "ab" {
		t.Errorf("Content = %q, want ab", got.Content)
	}
	if got.Type != TypeFinalAnswer {
		t.Errorf("Type = %q, want %q (incoming overwrites)", got.Type, TypeFinalAnswer)
	}
	if !got.Timestamp.Equal(second) {
		t.Errorf("Timestamp = %v, want incoming %v", got.Timestamp, second)
	}
	if got.Metadata["tokens"] != 12 {
		t.Error("Metadata not overwritten by incoming frame")
	}
}

func TestConversation_ToolResultReplacesWholesale(t *testing.T) {
	// Scenario C: a tool-call message followed by a tool-result frame
	// with the same id leaves exactly the tool result, no merged fields.
	conv := NewConversation()

	conv.Apply(&Message{
		ID: "m3", Role: RoleAssistant, Type: TypeToolCall,
		Content:   "calling search",
		ToolCalls: []ToolCall{{ID: "c1", Function: FunctionCall{Name: "search"}}},
		AgentName: "executor",
	})
	conv.Apply(&Message{
		ID: "m3", Role: RoleTool, Type: TypeToolCallResult,
		Content: "result payload", ToolCallID: "c1",
	})

	if conv.MessageCount() != 1 {
		t.Fatalf("MessageCount() = %d, want 1", conv.MessageCount())
	}
	got := conv.GetMessageByID("m3")
	if got.Content != "result payload" {
		t.Errorf("Content = %q, want the tool result only", got.Content)
	}
	if len(got.ToolCalls) != 0 {
		t.Error("replace left ToolCalls from the prior entry")
	}
	if got.AgentName != "" {
		t.Error("replace left AgentName from the prior entry")
	}
	if got.Role != RoleTool {
		t.Errorf("Role = %q, want tool", got.Role)
	}
}

func TestConversation_UpdatePreservesPosition(t *testing.T) {
	conv := NewConversation()

	conv.Apply(&Message{ID: "a", Role: RoleUser, Content: "q"})
	conv.Apply(&Message{ID: "b", Role: RoleAssistant, Content: "x"})
	conv.Apply(&Message{ID: "c", Role: RoleAssistant, Content: "y"})
	conv.Apply(&Message{ID: "b", Role: RoleAssistant, Content: "x2"})

	if conv.MessageCount() != 3 {
		t.Fatalf("MessageCount() = %d, want 3", conv.MessageCount())
	}
	order := []string{conv.Messages[0].ID, conv.Messages[1].ID, conv.Messages[2].ID}
	want := []string{"a", "b", "c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
	if conv.Messages[1].Content != "xx2" {
		t.Errorf("updated entry content = %q, want xx2", conv.Messages[1].Content)
	}
}

func TestConversation_ApplyDefaultsTimestamp(t *testing.T) {
	conv := NewConversation()
	conv.Apply(&Message{ID: "m1", Role: RoleAssistant, Content: "x"})
	if conv.GetMessageByID("m1").Timestamp.IsZero() {
		t.Error("Apply() left a zero timestamp")
	}
}

// =============================================================================
// HISTORY MANAGEMENT TESTS
// =============================================================================

func TestConversation_TitleFromFirstUserMessage(t *testing.T) {
	conv := NewConversation()
	conv.AddUserMessage("What is the plan for today?")
	if conv.GetTitle() != "What is the plan for today?" {
		t.Errorf("GetTitle() = %q", conv.GetTitle())
	}
}

func TestConversation_RemoveMessage(t *testing.T) {
	conv := NewConversation()
	conv.Apply(&Message{ID: "a", Role: RoleUser, Content: "1"})
	conv.Apply(&Message{ID: "b", Role: RoleAssistant, Content: "2"})

	if !conv.RemoveMessage("a") {
		t.Fatal("RemoveMessage(a) = false")
	}
	if conv.RemoveMessage("a") {
		t.Error("RemoveMessage(a) twice = true")
	}
	// Index must stay consistent after removal.
	if got := conv.GetMessageByID("b"); got == nil || got.Content != "2" {
		t.Error("index broken after RemoveMessage")
	}
}

func TestConversation_PruneKeepsSystemMessages(t *testing.T) {
	conv := NewConversation()
	conv.AddSystemMessage("system prompt")
	for i := 0; i < MaxMessages+10; i++ {
		conv.AddMessage(NewMessage(RoleAssistant, "x"))
	}

	if conv.MessageCount() != MaxMessages+1 {
		t.Errorf("MessageCount() = %d, want %d", conv.MessageCount(), MaxMessages+1)
	}
	if conv.Messages[0].Role != RoleSystem {
		t.Error("system message was pruned")
	}
}

func TestConversation_CloneIsDeep(t *testing.T) {
	conv := NewConversation()
	conv.Apply(&Message{ID: "m1", Role: RoleAssistant, Content: "orig"})

	clone := conv.Clone()
	clone.Apply(&Message{ID: "m1", Role: RoleAssistant, Content: "-more"})

	if conv.GetMessageByID("m1").Content != "orig" {
		t.Error("Clone() shares message pointers with the original")
	}
}
