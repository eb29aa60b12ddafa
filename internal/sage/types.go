// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sage provides the HTTP client for the Sage multi-agent chat server.
package sage

import (
	"github.com/google/uuid"

	"github.com/jeranaias/sagechat-tui/internal/model"
)

// =============================================================================
// CHAT TYPES
// =============================================================================

// ChatMessage is one message in OpenAI-compatible request format.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage creates a user chat message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// NewSystemMessage creates a system chat message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// ChatMessagesFrom converts conversation history into request format.
// Tool messages and error notices are skipped: tool execution state is
// server-side and must not round-trip through the request.
func ChatMessagesFrom(conv *model.Conversation) []ChatMessage {
	messages := make([]ChatMessage, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		if msg.Role == model.RoleTool || msg.IsError() {
			continue
		}
		content := msg.Content
		if content == "" {
			continue
		}
		messages = append(messages, ChatMessage{
			Role:    msg.Role.String(),
			Content: content,
		})
	}
	return messages
}

// =============================================================================
// STREAM REQUEST
// =============================================================================

// StreamRequest is the payload for POST /api/stream.
type StreamRequest struct {
	Messages  []ChatMessage `json:"messages"`
	SessionID string        `json:"session_id,omitempty"`
	UserID    string        `json:"user_id,omitempty"`

	// Orchestration flags
	DeepThinking bool `json:"deep_thinking"`
	MultiAgent   bool `json:"multi_agent"`
	MoreSuggest  bool `json:"more_suggest,omitempty"`
	ForceSummary bool `json:"force_summary,omitempty"`
	MaxLoopCount int  `json:"max_loop_count,omitempty"`

	// Optional context and capability restriction
	SystemContext  map[string]any `json:"system_context,omitempty"`
	SystemPrefix   string         `json:"system_prefix,omitempty"`
	AvailableTools []string       `json:"available_tools,omitempty"`
}

// NewSessionID generates a session identifier for a fresh stream.
func NewSessionID() string {
	return uuid.NewString()
}

// =============================================================================
// COLLABORATOR TYPES
// =============================================================================

// InterruptRequest is the payload for the out-of-band session interrupt.
type InterruptRequest struct {
	Message string `json:"message"`
}

// ToolInfo describes one server-side tool.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Type        string         `json:"type"`
	Source      string         `json:"source"`
}

// SystemStatus is the /api/health response.
type SystemStatus struct {
	Status         string `json:"status"`
	ServiceName    string `json:"service_name"`
	ToolsCount     int    `json:"tools_count"`
	ActiveSessions int    `json:"active_sessions"`
	Version        string `json:"version"`
}
