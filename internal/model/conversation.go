// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// MaxMessages is the maximum number of messages to keep in conversation
// history. When exceeded, old messages are pruned to prevent unbounded
// memory growth.
const MaxMessages = 1000

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds a complete chat conversation with history and metadata.
//
// The message list is insertion-ordered with at most one entry per
// message ID. Apply is the only mutation path for streamed messages;
// it upserts by identity per the merge policy in message.go. The
// Conversation is not safe for concurrent use - stream delivery and
// rendering both run on the single UI event loop.
type Conversation struct {
	// Identity
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Messages
	Messages []*Message `json:"messages"`

	// Agent configuration
	AgentName string `json:"agent_name,omitempty"`

	// Context tracking
	TokensUsed int `json:"tokens_used"`

	// byID indexes messages for O(1) upsert lookups.
	byID map[string]int
}

// NewConversation creates a new conversation with a generated ID.
func NewConversation() *Conversation {
	return &Conversation{
		ID:        generateConversationID(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		Messages:  make([]*Message, 0),
		byID:      make(map[string]int),
	}
}

// =============================================================================
// MESSAGE UPSERT (the Merger)
// =============================================================================

// Apply folds one incoming message into the conversation.
//
// A fresh message_id appends at the end; a repeated message_id updates
// the existing entry in place (position unchanged) following the
// message's merge strategy: tool results replace wholesale, everything
// else overwrites fields and concatenates content.
//
// Returns true when a brand-new message was appended - the presentation
// layer uses this to force scroll-to-bottom.
func (c *Conversation) Apply(incoming *Message) bool {
	c.ensureIndex()
	c.UpdatedAt = time.Now()

	if incoming.Timestamp.IsZero() {
		incoming.Timestamp = time.Now()
	}

	idx, exists := c.byID[incoming.ID]
	if !exists || incoming.ID == "" {
		c.appendMessage(incoming)
		return true
	}

	switch incoming.StrategyFor() {
	case MergeReplace:
		// No leftover fields from the prior entry.
		c.Messages[idx] = incoming
	default:
		incoming.mergeInto(c.Messages[idx])
	}

	c.updateTokenEstimate()
	return false
}

// AddMessage appends a locally-created message (user input, error
// notices) without merge semantics.
func (c *Conversation) AddMessage(msg *Message) {
	c.ensureIndex()
	c.appendMessage(msg)
	c.UpdatedAt = time.Now()
}

// AddUserMessage creates and adds a user message.
func (c *Conversation) AddUserMessage(content string) *Message {
	msg := NewUserMessage(content)
	c.AddMessage(msg)
	return msg
}

// AddSystemMessage creates and adds a system message.
func (c *Conversation) AddSystemMessage(content string) *Message {
	msg := NewSystemMessage(content)
	c.AddMessage(msg)
	return msg
}

// AddErrorMessage creates and adds an error-styled system message.
func (c *Conversation) AddErrorMessage(content string) *Message {
	msg := NewErrorMessage(content)
	c.AddMessage(msg)
	return msg
}

// appendMessage does the actual append plus index/title/prune upkeep.
func (c *Conversation) appendMessage(msg *Message) {
	c.byID[msg.ID] = len(c.Messages)
	c.Messages = append(c.Messages, msg)
	c.updateTokenEstimate()
	c.updateTitle()
	c.pruneOldMessages()
}

// ensureIndex rebuilds the ID index after deserialization.
func (c *Conversation) ensureIndex() {
	if c.byID != nil {
		return
	}
	c.byID = make(map[string]int, len(c.Messages))
	for i, msg := range c.Messages {
		c.byID[msg.ID] = i
	}
}

// rebuildIndex recomputes positions after a structural change.
func (c *Conversation) rebuildIndex() {
	c.byID = make(map[string]int, len(c.Messages))
	for i, msg := range c.Messages {
		c.byID[msg.ID] = i
	}
}

// =============================================================================
// MESSAGE ACCESS
// =============================================================================

// GetLastMessage returns the most recent message, or nil if empty.
func (c *Conversation) GetLastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// GetLastAssistantMessage returns the most recent assistant message.
func (c *Conversation) GetLastAssistantMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			return c.Messages[i]
		}
	}
	return nil
}

// GetLastUserMessage returns the most recent user message.
func (c *Conversation) GetLastUserMessage() *Message {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i]
		}
	}
	return nil
}

// GetMessageByID returns a message by its ID, or nil.
func (c *Conversation) GetMessageByID(id string) *Message {
	c.ensureIndex()
	if idx, ok := c.byID[id]; ok {
		return c.Messages[idx]
	}
	return nil
}

// MessageCount returns the number of messages.
func (c *Conversation) MessageCount() int {
	return len(c.Messages)
}

// IsEmpty returns true if there are no messages.
func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// GetHistory returns the message history for display.
func (c *Conversation) GetHistory() []*Message {
	return c.Messages
}

// ClearHistory removes all messages from the conversation.
func (c *Conversation) ClearHistory() {
	c.Messages = make([]*Message, 0)
	c.byID = make(map[string]int)
	c.TokensUsed = 0
	c.UpdatedAt = time.Now()
}

// RemoveMessage removes a message by ID.
func (c *Conversation) RemoveMessage(id string) bool {
	c.ensureIndex()
	idx, ok := c.byID[id]
	if !ok {
		return false
	}
	c.Messages = append(c.Messages[:idx], c.Messages[idx+1:]...)
	c.rebuildIndex()
	c.UpdatedAt = time.Now()
	c.updateTokenEstimate()
	return true
}

// =============================================================================
// TOKEN TRACKING
// =============================================================================

// EstimateTokens estimates the total token count of the conversation.
func (c *Conversation) EstimateTokens() int {
	total := 0
	for _, msg := range c.Messages {
		total += msg.EstimateTokens()
		// Overhead for message structure (~4 tokens per message)
		total += 4
	}
	return total
}

// updateTokenEstimate refreshes the cached token usage.
func (c *Conversation) updateTokenEstimate() {
	c.TokensUsed = c.EstimateTokens()
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// updateTitle auto-generates a title from the first user message if not set.
func (c *Conversation) updateTitle() {
	if c.Title != "" {
		return
	}
	for _, msg := range c.Messages {
		if msg.Role == RoleUser {
			c.Title = msg.Preview(50)
			return
		}
	}
}

// SetTitle manually sets the conversation title.
func (c *Conversation) SetTitle(title string) {
	c.Title = title
	c.UpdatedAt = time.Now()
}

// GetTitle returns the conversation title or a default.
func (c *Conversation) GetTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return "New Conversation"
}

// =============================================================================
// SERIALIZATION HELPERS
// =============================================================================

// Preview returns a short preview of the conversation.
func (c *Conversation) Preview() string {
	if len(c.Messages) == 0 {
		return "Empty conversation"
	}
	first := c.GetLastUserMessage()
	if first == nil {
		first = c.Messages[0]
	}
	return first.Preview(100)
}

// GetMeta returns metadata about the conversation.
func (c *Conversation) GetMeta() ConversationMeta {
	return ConversationMeta{
		ID:           c.ID,
		SessionID:    c.SessionID,
		Title:        c.GetTitle(),
		AgentName:    c.AgentName,
		MessageCount: len(c.Messages),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Preview:      c.Preview(),
	}
}

// ConversationMeta holds lightweight metadata for listing.
type ConversationMeta struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	Title        string    `json:"title"`
	AgentName    string    `json:"agent_name,omitempty"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Preview      string    `json:"preview"`
}

// Clone creates a deep copy of the conversation.
func (c *Conversation) Clone() *Conversation {
	clone := &Conversation{
		ID:         c.ID,
		SessionID:  c.SessionID,
		Title:      c.Title,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
		AgentName:  c.AgentName,
		TokensUsed: c.TokensUsed,
		Messages:   make([]*Message, len(c.Messages)),
	}
	for i, msg := range c.Messages {
		clone.Messages[i] = msg.Clone()
	}
	clone.rebuildIndex()
	return clone
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateConversationID creates a unique conversation ID.
func generateConversationID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "conv_" + hex.EncodeToString(bytes)
}

// pruneOldMessages removes old messages when conversation history
// exceeds MaxMessages. Keeps system messages and the most recent
// MaxMessages non-system messages.
func (c *Conversation) pruneOldMessages() {
	if len(c.Messages) <= MaxMessages {
		return
	}

	var systemMessages []*Message
	var otherMessages []*Message
	for _, msg := range c.Messages {
		if msg.Role == RoleSystem {
			systemMessages = append(systemMessages, msg)
		} else {
			otherMessages = append(otherMessages, msg)
		}
	}

	if len(otherMessages) > MaxMessages {
		otherMessages = otherMessages[len(otherMessages)-MaxMessages:]
	}

	c.Messages = make([]*Message, 0, len(systemMessages)+len(otherMessages))
	c.Messages = append(c.Messages, systemMessages...)
	c.Messages = append(c.Messages, otherMessages...)
	c.rebuildIndex()
}
