// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file implements slash commands and the asynchronous commands
// that talk to the server and the local conversation store.
package chat

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/sagechat-tui/internal/model"
)

// =============================================================================
// ASYNC COMMANDS
// =============================================================================

// probeTimeout bounds the background health and tools probes.
const probeTimeout = 5 * time.Second

// checkHealthCmd probes the server health endpoint.
func (m *Model) checkHealthCmd() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		status, err := client.Health(ctx)
		return HealthMsg{Status: status, Err: err}
	}
}

// listToolsCmd fetches the server-side tool registry.
func (m *Model) listToolsCmd() tea.Cmd {
	client := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		tools, err := client.ListTools(ctx)
		return ToolsMsg{Tools: tools, Err: err}
	}
}

// healthTickCmd schedules the next periodic health probe.
func healthTickCmd() tea.Cmd {
	return tea.Tick(healthInterval, func(t time.Time) tea.Msg {
		return HealthTickMsg{Time: t}
	})
}

// saveConversationCmd persists the active conversation. silent marks
// autosaves, which suppress the status line confirmation.
func (m *Model) saveConversationCmd(silent bool) tea.Cmd {
	if m.store == nil || m.conversation.IsEmpty() {
		return nil
	}
	store := m.store
	// Clone so the save sees a consistent snapshot even if a stream
	// keeps merging into the live conversation.
	conv := m.conversation.Clone()
	return func() tea.Msg {
		err := store.Save(conv)
		return ConversationSavedMsg{ID: conv.ID, Silent: silent, Err: err}
	}
}

// loadConversationCmd loads a stored conversation by ID.
func (m *Model) loadConversationCmd(id string) tea.Cmd {
	if m.store == nil {
		return statusCmd("Persistence is disabled")
	}
	store := m.store
	return func() tea.Msg {
		conv, err := store.Load(id)
		return ConversationLoadedMsg{Conversation: conv, Err: err}
	}
}

// deleteConversationCmd removes a stored conversation by ID.
func (m *Model) deleteConversationCmd(id string) tea.Cmd {
	if m.store == nil {
		return statusCmd("Persistence is disabled")
	}
	store := m.store
	return func() tea.Msg {
		err := store.Delete(id)
		return ConversationDeletedMsg{ID: id, Err: err}
	}
}

// listSessionsCmd lists stored conversations, optionally filtered.
func (m *Model) listSessionsCmd(query string) tea.Cmd {
	if m.store == nil {
		return statusCmd("Persistence is disabled")
	}
	store := m.store
	return func() tea.Msg {
		if query == "" {
			sessions, err := store.List()
			return SessionListMsg{Sessions: sessions, Err: err}
		}
		sessions, err := store.Search(query)
		return SessionListMsg{Sessions: sessions, Query: query, Err: err}
	}
}

// exportConversationCmd writes the transcript to a file.
func (m *Model) exportConversationCmd(format string) tea.Cmd {
	conv := m.conversation.Clone()
	return func() tea.Msg {
		path, err := ExportConversation(conv, format)
		return ExportCompleteMsg{Path: path, Err: err}
	}
}

// statusCmd sets a transient status message.
func statusCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return StatusMsg{Text: text}
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand dispatches a "/command arg" input line.
// Returns the follow-up command, or nil when nothing async is needed.
func (m *Model) handleSlashCommand(line string) tea.Cmd {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd := strings.ToLower(fields[0])
	arg := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

	switch cmd {
	case "/help":
		m.showHelp = !m.showHelp
		return nil

	case "/new":
		return m.startNewConversation()

	case "/clear":
		m.conversation.ClearHistory()
		m.refreshTranscript(true)
		return statusCmd("History cleared")

	case "/save":
		if c := m.saveConversationCmd(false); c != nil {
			return c
		}
		return statusCmd("Nothing to save")

	case "/sessions":
		return m.listSessionsCmd("")

	case "/search":
		if arg == "" {
			return statusCmd("Usage: /search <query>")
		}
		return m.listSessionsCmd(arg)

	case "/load":
		if arg == "" {
			return statusCmd("Usage: /load <conversation-id>")
		}
		return m.loadConversationCmd(arg)

	case "/delete":
		if arg == "" {
			return statusCmd("Usage: /delete <conversation-id>")
		}
		return m.deleteConversationCmd(arg)

	case "/tools":
		return m.listToolsCmd()

	case "/health":
		return m.checkHealthCmd()

	case "/export":
		format := arg
		if format == "" {
			format = "markdown"
		}
		if format != "markdown" && format != "json" {
			return statusCmd("Usage: /export [markdown|json]")
		}
		return m.exportConversationCmd(format)

	case "/quit", "/exit":
		m.quitting = true
		return tea.Quit

	default:
		return statusCmd("Unknown command: " + cmd + " (try /help)")
	}
}

// startNewConversation autosaves the current conversation and begins a
// fresh one.
func (m *Model) startNewConversation() tea.Cmd {
	save := m.saveConversationCmd(true)
	m.conversation = model.NewConversation()
	m.refreshTranscript(true)
	if save != nil {
		return tea.Batch(save, statusCmd("Started new conversation"))
	}
	return statusCmd("Started new conversation")
}
