// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jeranaias/sagechat-tui/internal/model"
)

func newTestStore(t *testing.T) *ConversationStore {
	t.Helper()
	store, err := NewConversationStoreAtPath(filepath.Join(t.TempDir(), "conversations.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// =============================================================================
// CONVERSATION STORE TESTS
// =============================================================================

func TestConversationStore_SaveAndLoad(t *testing.T) {
	store := newTestStore(t)

	conv := model.NewConversation()
	conv.SessionID = "sess-1"
	conv.AddUserMessage("Hello")
	conv.Apply(&model.Message{
		ID:        "a1",
		Role:      model.RoleAssistant,
		Type:      "assistant",
		Content:   "Hi there!",
		AgentName: "sage",
		Timestamp: time.Now(),
	})

	if err := store.Save(conv); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(conv.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want sess-1", loaded.SessionID)
	}
	if loaded.MessageCount() != 2 {
		t.Fatalf("MessageCount = %d, want 2", loaded.MessageCount())
	}
	if loaded.Messages[0].Content != "Hello" {
		t.Errorf("first message = %q, want Hello", loaded.Messages[0].Content)
	}
	got := loaded.GetMessageByID("a1")
	if got == nil {
		t.Fatal("message a1 missing after reload")
	}
	if got.Role != model.RoleAssistant || got.AgentName != "sage" {
		t.Errorf("message fields not preserved: role=%q agent=%q", got.Role, got.AgentName)
	}
}

func TestConversationStore_ToolCallsRoundTrip(t *testing.T) {
	store := newTestStore(t)

	conv := model.NewConversation()
	conv.AddUserMessage("search something")
	conv.Apply(&model.Message{
		ID:   "t1",
		Role: model.RoleAssistant,
		Type: model.TypeToolCall,
		ToolCalls: []model.ToolCall{
			{ID: "c1", Type: "function", Function: model.FunctionCall{
				Name:      "web_search",
				Arguments: `{"query":"golang"}`,
			}},
		},
		Timestamp: time.Now(),
	})

	if err := store.Save(conv); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(conv.ID)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	got := loaded.GetMessageByID("t1")
	if got == nil {
		t.Fatal("tool call message missing")
	}
	if len(got.ToolCalls) != 1 || got.ToolCalls[0].Function.Name != "web_search" {
		t.Errorf("tool calls not preserved: %+v", got.ToolCalls)
	}
}

func TestConversationStore_SaveIsUpsert(t *testing.T) {
	store := newTestStore(t)

	conv := model.NewConversation()
	conv.AddUserMessage("first")
	if err := store.Save(conv); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	conv.AddUserMessage("second")
	if err := store.Save(conv); err != nil {
		t.Fatalf("re-Save failed: %v", err)
	}

	metas, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(metas) != 1 {
		t.Fatalf("expected 1 conversation after upsert, got %d", len(metas))
	}
	if metas[0].MessageCount != 2 {
		t.Errorf("MessageCount = %d, want 2", metas[0].MessageCount)
	}
}

func TestConversationStore_SaveSkipsEmpty(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(model.NewConversation()); err != nil {
		t.Fatalf("Save of empty conversation should be a no-op: %v", err)
	}
	metas, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(metas) != 0 {
		t.Errorf("empty conversation should not be stored, got %d rows", len(metas))
	}
}

func TestConversationStore_LoadMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load("conv_nope")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestConversationStore_ListOrdering(t *testing.T) {
	store := newTestStore(t)

	older := model.NewConversation()
	older.AddUserMessage("older")
	if err := store.Save(older); err != nil {
		t.Fatal(err)
	}

	// Force a distinct updated_at for deterministic ordering.
	time.Sleep(1100 * time.Millisecond)

	newer := model.NewConversation()
	newer.AddUserMessage("newer")
	if err := store.Save(newer); err != nil {
		t.Fatal(err)
	}

	metas, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(metas))
	}
	if metas[0].ID != newer.ID {
		t.Errorf("most recent conversation should list first")
	}
}

func TestConversationStore_Search(t *testing.T) {
	store := newTestStore(t)

	match := model.NewConversation()
	match.AddUserMessage("tell me about goroutines")
	if err := store.Save(match); err != nil {
		t.Fatal(err)
	}

	other := model.NewConversation()
	other.AddUserMessage("what is the weather")
	if err := store.Save(other); err != nil {
		t.Fatal(err)
	}

	metas, err := store.Search("goroutine")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(metas) != 1 || metas[0].ID != match.ID {
		t.Errorf("expected only the goroutine conversation, got %d results", len(metas))
	}
}

func TestConversationStore_Delete(t *testing.T) {
	store := newTestStore(t)

	conv := model.NewConversation()
	conv.AddUserMessage("ephemeral")
	if err := store.Save(conv); err != nil {
		t.Fatal(err)
	}

	if err := store.Delete(conv.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load(conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
	if err := store.Delete(conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Errorf("double delete should report not found, got %v", err)
	}
}

func TestConversationStore_EnforceLimit(t *testing.T) {
	store := newTestStore(t)
	store.MaxConversations = 3

	for i := 0; i < 5; i++ {
		conv := model.NewConversation()
		conv.AddUserMessage(fmt.Sprintf("conversation %d", i))
		if err := store.Save(conv); err != nil {
			t.Fatal(err)
		}
	}

	metas, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(metas) != 3 {
		t.Errorf("expected retention cap of 3, got %d", len(metas))
	}
}
