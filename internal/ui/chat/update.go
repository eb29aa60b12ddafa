// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file implements the Bubble Tea update loop: key handling, stream
// event processing, store results, and window resizing.
package chat

import (
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/sagechat-tui/internal/util"
)

// =============================================================================
// UPDATE DISPATCH
// =============================================================================

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg)
	case tea.KeyMsg:
		return m.handleKey(msg)

	case StreamStartedMsg:
		m.statusText = ""
		return m, nil
	case StreamUpdateMsg:
		return m.handleStreamUpdate(msg)
	case StreamWarningMsg:
		// Non-fatal: logged for diagnostics, never shown to the user.
		log.Printf("stream warning: %s", msg.Warning)
		return m, m.awaitStream()
	case StreamCompletedMsg:
		return m.handleStreamCompleted()
	case StreamAbortedMsg:
		return m.handleStreamAborted()
	case StreamErrorMsg:
		return m.handleStreamError(msg)
	case StreamTickMsg:
		return m.handleStreamTick()

	case HealthMsg:
		return m.handleHealth(msg)
	case HealthTickMsg:
		return m, tea.Batch(m.checkHealthCmd(), healthTickCmd())
	case ToolsMsg:
		return m.handleTools(msg)

	case ConversationSavedMsg:
		return m.handleSaved(msg)
	case ConversationLoadedMsg:
		return m.handleLoaded(msg)
	case ConversationDeletedMsg:
		return m.handleDeleted(msg)
	case SessionListMsg:
		return m.handleSessionList(msg)
	case ExportCompleteMsg:
		return m.handleExportComplete(msg)

	case ConfigReloadedMsg:
		return m.handleConfigReloaded(msg)

	case StatusMsg:
		m.setStatus(msg.Text)
		return m, nil

	case spinner.TickMsg:
		if !m.streaming {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	return m.updateComponents(msg)
}

// awaitStream re-arms the stream event pump while a stream is active.
func (m *Model) awaitStream() tea.Cmd {
	if m.handle == nil {
		return nil
	}
	return m.handle.awaitEvent()
}

// =============================================================================
// LAYOUT
// =============================================================================

// handleResize recomputes component sizes and rebuilds the renderer.
func (m *Model) handleResize(msg tea.WindowSizeMsg) (tea.Model, tea.Cmd) {
	m.width = msg.Width
	m.height = msg.Height

	headerHeight := 2
	inputHeight := 3
	statusHeight := 1
	viewportHeight := msg.Height - headerHeight - inputHeight - statusHeight
	if viewportHeight < 1 {
		viewportHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(msg.Width, viewportHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = viewportHeight
	}
	m.input.Width = msg.Width - 6

	// Word wrap depends on width, so the renderer is rebuilt per resize.
	m.initMarkdownRenderer(msg.Width - 4)
	m.refreshTranscript(false)
	return m, nil
}

// =============================================================================
// KEY HANDLING
// =============================================================================

// handleKey processes keyboard input.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if m.streaming {
			m.stopStream()
			m.setStatus("Stopping...")
			return m, nil
		}
		if m.showHelp {
			m.showHelp = false
		}
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.Clear):
		m.refreshTranscript(false)
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.handleSubmit()

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	case key.Matches(msg, m.keys.Home):
		m.viewport.GotoTop()
		return m, nil
	case key.Matches(msg, m.keys.End):
		m.viewport.GotoBottom()
		return m, nil
	case key.Matches(msg, m.keys.Up):
		m.viewport.LineUp(1)
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.viewport.LineDown(1)
		return m, nil
	}

	return m.updateComponents(msg)
}

// handleSubmit sends the input line: slash commands are dispatched
// locally, everything else becomes a user message and starts a stream.
func (m *Model) handleSubmit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	if line == "" {
		return m, nil
	}

	if strings.HasPrefix(line, "/") {
		m.input.Reset()
		return m, m.handleSlashCommand(line)
	}

	if !m.serverHealthy {
		m.setStatus("Server unreachable - check that Sage is running")
		return m, nil
	}

	if m.streaming {
		// Abort the active stream first; the new message goes out once
		// the old controller has terminated.
		m.pendingSubmit = line
		m.input.Reset()
		m.stopStream()
		m.setStatus("Stopping previous response...")
		return m, nil
	}

	m.input.Reset()
	m.conversation.AddUserMessage(line)
	m.refreshTranscript(true)
	return m, m.beginStream()
}

// submitPending sends input queued behind a now-terminated stream.
func (m *Model) submitPending() tea.Cmd {
	if m.pendingSubmit == "" {
		return nil
	}
	line := m.pendingSubmit
	m.pendingSubmit = ""
	m.conversation.AddUserMessage(line)
	m.refreshTranscript(true)
	return m.beginStream()
}

// =============================================================================
// STREAM EVENTS
// =============================================================================

// handleStreamUpdate folds one merged message into the display. The
// transcript repaint is deferred to the coalescer; only auto-scroll on
// newly appended entries happens eagerly.
func (m *Model) handleStreamUpdate(msg StreamUpdateMsg) (tea.Model, tea.Cmd) {
	if msg.Appended {
		m.refreshTranscript(true)
		m.coalescer.Flush()
	}
	return m, m.awaitStream()
}

// handleStreamTick repaints the transcript if coalesced updates are due
// and re-arms the tick while streaming.
func (m *Model) handleStreamTick() (tea.Model, tea.Cmd) {
	if !m.streaming {
		return m, nil
	}
	if m.coalescer.ShouldFlush() {
		m.coalescer.Flush()
		m.refreshTranscript(m.viewport.AtBottom())
	}
	return m, streamTickCmd()
}

func (m *Model) handleStreamCompleted() (tea.Model, tea.Cmd) {
	m.endStream()
	m.refreshTranscript(true)
	elapsed := time.Since(m.streamStart).Round(100 * time.Millisecond)
	m.setStatus("Done in " + elapsed.String())
	// Autosave after every completed exchange.
	return m, tea.Batch(m.saveConversationCmd(true), m.submitPending())
}

func (m *Model) handleStreamAborted() (tea.Model, tea.Cmd) {
	m.endStream()
	// Partial content stays in the transcript.
	m.refreshTranscript(true)
	m.setStatus("Stopped")
	return m, tea.Batch(m.saveConversationCmd(true), m.submitPending())
}

func (m *Model) handleStreamError(msg StreamErrorMsg) (tea.Model, tea.Cmd) {
	m.endStream()
	m.lastError = msg.Err
	m.pendingSubmit = "" // don't auto-retry into a failing server
	m.conversation.AddErrorMessage(msg.Err.Error())
	m.refreshTranscript(true)
	return m, m.checkHealthCmd()
}

// =============================================================================
// SERVER EVENTS
// =============================================================================

func (m *Model) handleHealth(msg HealthMsg) (tea.Model, tea.Cmd) {
	wasHealthy := m.serverHealthy
	m.serverHealthy = msg.Err == nil
	m.serverStatus = msg.Status
	if !wasHealthy && m.serverHealthy {
		m.setStatus("Connected to " + m.client.Config().BaseURL)
	}
	return m, nil
}

func (m *Model) handleTools(msg ToolsMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.setStatus("Failed to list tools: " + msg.Err.Error())
		return m, nil
	}
	var b strings.Builder
	b.WriteString("Available tools (" + util.IntToString(len(msg.Tools)) + "):\n")
	for _, tool := range msg.Tools {
		b.WriteString("  " + tool.Name)
		if tool.Description != "" {
			b.WriteString(" - " + tool.Description)
		}
		b.WriteString("\n")
	}
	m.conversation.AddSystemMessage(b.String())
	m.refreshTranscript(true)
	return m, nil
}

// handleConfigReloaded applies a hot-reloaded config. Display options
// take effect immediately; server and theme changes need a restart.
func (m *Model) handleConfigReloaded(msg ConfigReloadedMsg) (tea.Model, tea.Cmd) {
	m.cfg = msg.Config
	m.initMarkdownRenderer(m.width - 4)
	m.refreshTranscript(false)
	m.setStatus("Configuration reloaded")
	return m, nil
}

// =============================================================================
// STORE EVENTS
// =============================================================================

func (m *Model) handleSaved(msg ConversationSavedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.setStatus("Save failed: " + msg.Err.Error())
		return m, nil
	}
	if !msg.Silent {
		m.setStatus("Saved " + msg.ID)
	}
	return m, nil
}

func (m *Model) handleLoaded(msg ConversationLoadedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.setStatus("Load failed: " + msg.Err.Error())
		return m, nil
	}
	if m.streaming {
		m.stopStream()
		m.endStream()
	}
	m.conversation = msg.Conversation
	m.refreshTranscript(true)
	m.setStatus("Loaded " + msg.Conversation.GetTitle())
	return m, nil
}

func (m *Model) handleDeleted(msg ConversationDeletedMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.setStatus("Delete failed: " + msg.Err.Error())
		return m, nil
	}
	m.setStatus("Deleted " + msg.ID)
	return m, nil
}

func (m *Model) handleSessionList(msg SessionListMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.setStatus("Failed to list conversations: " + msg.Err.Error())
		return m, nil
	}
	m.conversation.AddSystemMessage(formatSessionList(msg.Sessions, msg.Query))
	m.refreshTranscript(true)
	return m, nil
}

func (m *Model) handleExportComplete(msg ExportCompleteMsg) (tea.Model, tea.Cmd) {
	if msg.Err != nil {
		m.setStatus("Export failed: " + msg.Err.Error())
		return m, nil
	}
	m.setStatus("Exported to " + msg.Path)
	return m, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// updateComponents forwards unhandled messages to the focused components.
// Key presses go to the input only; the viewport has its own default
// bindings that would otherwise scroll while the user types.
func (m *Model) updateComponents(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	if _, isKey := msg.(tea.KeyMsg); !isKey {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// setStatus sets a transient status line message.
func (m *Model) setStatus(text string) {
	m.statusText = text
	m.statusSetAt = time.Now()
}
