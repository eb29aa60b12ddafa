// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"math"
	"time"

	"github.com/jeranaias/sagechat-tui/internal/protocol"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	case RoleTool:
		return "Tool"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPES (wire "type" field)
// =============================================================================

// Wire message types the merge policy cares about. The server emits
// many more (planning, observation, final_answer, ...); everything not
// listed here follows the default concat-merge policy.
const (
	TypeToolCall       = "tool_call"
	TypeToolCallResult = "tool_call_result"
	TypeFinalAnswer    = "final_answer"
	TypeError          = "error"
	TypeTokenUsage     = "token_usage"
)

// =============================================================================
// TOOL CALL TYPE
// =============================================================================

// ToolCall is one tool invocation requested by the assistant,
// in OpenAI-compatible format.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall is the function name and raw JSON arguments of a tool call.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a conversation.
//
// The JSON tags match the Sage server wire format, except Timestamp:
// the server sends Unix seconds as a float, decoded in FromFrame.
type Message struct {
	// Identity
	ID   string `json:"message_id"`
	Role Role   `json:"role"`
	Type string `json:"type,omitempty"`

	// Content
	Content string `json:"content,omitempty"`
	// ShowContent overrides Content for rendering when present
	// (the server uses it for assistant-visible formatting).
	ShowContent string `json:"show_content,omitempty"`

	// Tool calling
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`

	// Attribution and metadata
	AgentName string         `json:"agent_name,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`

	// Timestamp is the arrival (or server) time. Not marshalled in wire
	// format; persisted separately by the storage layer.
	Timestamp time.Time `json:"-"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        generateID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) *Message {
	return NewMessage(RoleSystem, content)
}

// NewErrorMessage creates an error-styled system message, used to
// surface a transport failure inside the conversation.
func NewErrorMessage(content string) *Message {
	msg := NewMessage(RoleSystem, content)
	msg.Type = TypeError
	return msg
}

// FromFrame decodes a stream frame's payload into a Message.
// The frame must be a message frame (atomic or reassembled); the wire
// float timestamp is honored when present, otherwise the frame's
// arrival time is used, otherwise now.
func FromFrame(f *protocol.Frame) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(f.Raw, &msg); err != nil {
		return nil, err
	}

	// Wire timestamps are Unix seconds with a fractional part.
	var wire struct {
		Timestamp float64 `json:"timestamp"`
	}
	if err := json.Unmarshal(f.Raw, &wire); err == nil && wire.Timestamp > 0 {
		sec, frac := math.Modf(wire.Timestamp)
		msg.Timestamp = time.Unix(int64(sec), int64(frac*float64(time.Second)))
	} else if !f.Timestamp.IsZero() {
		msg.Timestamp = f.Timestamp
	} else {
		msg.Timestamp = time.Now()
	}

	if msg.ID == "" {
		msg.ID = f.MessageID
	}
	return &msg, nil
}

// =============================================================================
// MERGE POLICY
// =============================================================================

// MergeStrategy decides how a repeated message_id folds into the
// existing conversation entry.
type MergeStrategy int

const (
	// MergeConcat overwrites fields and concatenates content
	// (incremental token streaming of assistant text).
	MergeConcat MergeStrategy = iota

	// MergeReplace replaces the existing entry wholesale, keeping no
	// fields from the prior entry (tool results supersede tool calls).
	MergeReplace
)

// mergePolicy is the explicit role/type → strategy table. Lookups fall
// back to MergeConcat for anything unlisted.
var mergePolicy = map[string]MergeStrategy{
	"role:" + string(RoleTool):   MergeReplace,
	"type:" + TypeToolCallResult: MergeReplace,
}

// StrategyFor returns the merge strategy an incoming message uses when
// its message_id already exists in the conversation.
func (m *Message) StrategyFor() MergeStrategy {
	if s, ok := mergePolicy["role:"+string(m.Role)]; ok {
		return s
	}
	if s, ok := mergePolicy["type:"+m.Type]; ok {
		return s
	}
	return MergeConcat
}

// mergeInto folds the incoming message into an existing entry with
// concat semantics: every present field overwrites, content is
// concatenated (existing + incoming), timestamp always takes the
// incoming value (or now if the incoming carries none).
func (m *Message) mergeInto(existing *Message) {
	existing.Content = existing.Content + m.Content
	if m.ShowContent != "" {
		existing.ShowContent = existing.ShowContent + m.ShowContent
	}

	if m.Role != "" {
		existing.Role = m.Role
	}
	if m.Type != "" {
		existing.Type = m.Type
	}
	if len(m.ToolCalls) > 0 {
		existing.ToolCalls = m.ToolCalls
	}
	if m.ToolCallID != "" {
		existing.ToolCallID = m.ToolCallID
	}
	if m.AgentName != "" {
		existing.AgentName = m.AgentName
	}
	if len(m.Metadata) > 0 {
		existing.Metadata = m.Metadata
	}

	if m.Timestamp.IsZero() {
		existing.Timestamp = time.Now()
	} else {
		existing.Timestamp = m.Timestamp
	}
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// DisplayContent returns the content to render: the show_content
// override when the server provided one, the raw content otherwise.
func (m *Message) DisplayContent() string {
	if m.ShowContent != "" {
		return m.ShowContent
	}
	return m.Content
}

// Preview returns a truncated preview of the message content.
// Uses rune-based truncation to handle Unicode correctly.
func (m *Message) Preview(maxLen int) string {
	content := m.DisplayContent()
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no renderable content.
func (m *Message) IsEmpty() bool {
	return m.Content == "" && m.ShowContent == "" && len(m.ToolCalls) == 0
}

// IsError reports whether this message carries a stream error payload.
func (m *Message) IsError() bool {
	return m.Type == TypeError
}

// EstimateTokens gives a rough estimate of token count.
// Uses the approximation of ~4 characters per token.
func (m *Message) EstimateTokens() int {
	return (len(m.DisplayContent()) + 3) / 4
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	cp := *m
	if m.ToolCalls != nil {
		cp.ToolCalls = append([]ToolCall(nil), m.ToolCalls...)
	}
	if m.Metadata != nil {
		cp.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateID creates a unique message ID.
func generateID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "msg_" + hex.EncodeToString(bytes)
}
