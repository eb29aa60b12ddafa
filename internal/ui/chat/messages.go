// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file defines all Bubble Tea message types used by the chat interface.
// Messages are organized into the following categories:
//   - Streaming: Stream lifecycle events bridged from the stream controller
//   - Server: Health checks and tool listing
//   - Conversation: Load, save, list, and delete against the local store
//   - UI State: Ticks and status updates
//
// All message types follow Bubble Tea conventions and are immutable.
package chat

import (
	"time"

	"github.com/jeranaias/sagechat-tui/internal/config"
	"github.com/jeranaias/sagechat-tui/internal/model"
	"github.com/jeranaias/sagechat-tui/internal/sage"
)

// =============================================================================
// STREAMING MESSAGES
// =============================================================================

// StreamStartedMsg signals that a streaming session has been initiated.
type StreamStartedMsg struct {
	SessionID string
	StartTime time.Time
}

// StreamUpdateMsg delivers one merged conversation entry from the stream.
// Appended reports whether the entry is new (drives auto-scroll) or an
// in-place update of an existing entry.
type StreamUpdateMsg struct {
	Message  *model.Message
	Appended bool
}

// StreamCompletedMsg signals that the server closed the stream normally.
type StreamCompletedMsg struct{}

// StreamAbortedMsg signals a user-initiated stop. Not an error.
type StreamAbortedMsg struct{}

// StreamErrorMsg signals a fatal transport failure.
type StreamErrorMsg struct {
	Err error
}

// StreamWarningMsg carries a non-fatal diagnostic (malformed frame,
// chunk anomaly). Displayed in the status line, never as an error.
type StreamWarningMsg struct {
	Warning string
}

// StreamTickMsg is sent at the render frame rate during streaming so
// merged updates are painted in batches instead of per frame arrival.
type StreamTickMsg struct {
	Time time.Time
}

// =============================================================================
// SERVER MESSAGES
// =============================================================================

// HealthMsg reports Sage server reachability.
type HealthMsg struct {
	Status *sage.SystemStatus
	Err    error
}

// ToolsMsg delivers the server-side tool registry.
type ToolsMsg struct {
	Tools []sage.ToolInfo
	Err   error
}

// =============================================================================
// CONVERSATION MESSAGES
// =============================================================================

// ConversationSavedMsg confirms a save to the local store.
type ConversationSavedMsg struct {
	ID     string
	Silent bool // Autosave: suppress the status line confirmation
	Err    error
}

// ConversationLoadedMsg delivers a conversation loaded from the store.
type ConversationLoadedMsg struct {
	Conversation *model.Conversation
	Err          error
}

// ConversationDeletedMsg confirms a delete from the store.
type ConversationDeletedMsg struct {
	ID  string
	Err error
}

// SessionListMsg delivers stored conversation metadata.
type SessionListMsg struct {
	Sessions []model.ConversationMeta
	Query    string // Non-empty when this is a search result
	Err      error
}

// ExportCompleteMsg confirms a transcript export.
type ExportCompleteMsg struct {
	Path string
	Err  error
}

// =============================================================================
// UI STATE MESSAGES
// =============================================================================

// ConfigReloadedMsg delivers a hot-reloaded configuration from the
// on-disk config watcher.
type ConfigReloadedMsg struct {
	Config *config.Config
}

// StatusMsg sets a transient status line message.
type StatusMsg struct {
	Text string
}

// HealthTickMsg schedules the periodic background health probe.
type HealthTickMsg struct {
	Time time.Time
}
