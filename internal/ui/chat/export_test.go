// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/jeranaias/sagechat-tui/internal/model"
)

func exportFixture() *model.Conversation {
	conv := model.NewConversation()
	conv.AddUserMessage("What is the capital of France?")
	conv.Apply(&model.Message{
		ID:      "msg_1",
		Role:    model.RoleAssistant,
		Content: "The capital of France is **Paris**.",
	})
	conv.Apply(&model.Message{
		ID:   "msg_2",
		Role: model.RoleAssistant,
		Type: model.TypeToolCall,
		ToolCalls: []model.ToolCall{
			{ID: "tc1", Function: model.FunctionCall{Name: "web_search", Arguments: `{"q":"paris"}`}},
		},
	})
	return conv
}

func TestExportMarkdown(t *testing.T) {
	t.Setenv("SAGECHAT_CONFIG_DIR", t.TempDir())
	conv := exportFixture()

	path, err := ExportConversation(conv, "markdown")
	if err != nil {
		t.Fatalf("ExportConversation: %v", err)
	}
	if !strings.HasSuffix(path, ".md") {
		t.Errorf("path = %q, want .md suffix", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	out := string(data)

	for _, want := range []string{
		"# What is the capital of France?",
		"## You",
		"## Assistant",
		"The capital of France is **Paris**.",
		"tool call: `web_search`",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q", want)
		}
	}
}

func TestExportJSON(t *testing.T) {
	t.Setenv("SAGECHAT_CONFIG_DIR", t.TempDir())
	conv := exportFixture()

	path, err := ExportConversation(conv, "json")
	if err != nil {
		t.Fatalf("ExportConversation: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}

	var decoded model.Conversation
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("export is not valid JSON: %v", err)
	}
	if decoded.ID != conv.ID {
		t.Errorf("decoded ID = %q, want %q", decoded.ID, conv.ID)
	}
	if len(decoded.Messages) != len(conv.Messages) {
		t.Errorf("decoded %d messages, want %d", len(decoded.Messages), len(conv.Messages))
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	t.Setenv("SAGECHAT_CONFIG_DIR", t.TempDir())
	if _, err := ExportConversation(exportFixture(), "pdf"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestExportRejectsEmptyConversation(t *testing.T) {
	t.Setenv("SAGECHAT_CONFIG_DIR", t.TempDir())
	if _, err := ExportConversation(model.NewConversation(), "markdown"); err == nil {
		t.Error("expected error for empty conversation")
	}
}

func TestFormatSessionList(t *testing.T) {
	out := formatSessionList(nil, "")
	if !strings.Contains(out, "(none)") {
		t.Errorf("empty list output %q missing placeholder", out)
	}

	conv := exportFixture()
	out = formatSessionList([]model.ConversationMeta{conv.GetMeta()}, "france")
	if !strings.Contains(out, "france") {
		t.Errorf("search output %q missing query", out)
	}
	if !strings.Contains(out, conv.ID) {
		t.Errorf("output %q missing conversation id", out)
	}
}
