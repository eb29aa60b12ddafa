// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file implements rendering: the transcript, header, input area,
// status bar, and the help overlay.
package chat

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/sagechat-tui/internal/model"
	"github.com/jeranaias/sagechat-tui/internal/util"
)

// =============================================================================
// MAIN VIEW
// =============================================================================

// View renders the complete chat interface.
func (m *Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if !m.ready {
		return "Starting sagechat..."
	}

	sections := []string{
		m.renderHeader(),
		m.viewport.View(),
		m.renderInput(),
		m.renderStatusBar(),
	}

	view := lipgloss.JoinVertical(lipgloss.Left, sections...)
	if m.showHelp {
		return lipgloss.JoinVertical(lipgloss.Left, view, m.renderHelp())
	}
	return view
}

// =============================================================================
// HEADER
// =============================================================================

// renderHeader renders the title bar with conversation info.
func (m *Model) renderHeader() string {
	title := m.theme.HeaderTitle.Render("sagechat")
	subtitle := m.theme.HeaderSubtitle.Render(
		util.TruncateWidth(m.conversation.GetTitle(), max(m.width-30, 10)),
	)
	line := m.theme.Header.Render(title + "  " + subtitle)
	return line + "\n"
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// refreshTranscript rebuilds the viewport content from the conversation
// and optionally scrolls to the bottom. This is the only place the
// transcript text is produced; the coalescer decides when it runs
// during streaming.
func (m *Model) refreshTranscript(scrollToBottom bool) {
	if !m.ready {
		return
	}
	var b strings.Builder
	for _, msg := range m.conversation.GetHistory() {
		rendered := m.renderMessage(msg)
		if rendered == "" {
			continue
		}
		b.WriteString(rendered)
		b.WriteString("\n\n")
	}

	if m.streaming {
		b.WriteString(m.spin.View())
		b.WriteString(m.theme.ThinkingText.Render(" thinking..."))
		b.WriteString("\n")
	}

	m.viewport.SetContent(b.String())
	if scrollToBottom {
		m.viewport.GotoBottom()
	}
}

// renderMessage renders one transcript entry, or "" when the entry is
// hidden by configuration (tool traffic) or has nothing to show.
func (m *Model) renderMessage(msg *model.Message) string {
	isToolTraffic := msg.Role == model.RoleTool ||
		msg.Type == model.TypeToolCall || msg.Type == model.TypeToolCallResult
	if isToolTraffic && !m.cfg.UI.ShowToolCalls {
		return ""
	}
	if msg.IsEmpty() && !isToolTraffic {
		return ""
	}

	label := m.renderLabel(msg)
	body := m.renderBody(msg)

	style := m.theme.MessageStyle(msg.Role.String())
	if msg.IsError() {
		style = m.theme.ErrorMessage
	}
	wrapped := style.Width(max(m.width-4, 20)).Render(body)
	return label + "\n" + wrapped
}

// renderLabel renders the role line: role name, optional agent badge,
// optional timestamp.
func (m *Model) renderLabel(msg *model.Message) string {
	parts := []string{m.theme.RoleLabel.Render(msg.Role.DisplayName())}
	if msg.AgentName != "" {
		parts = append(parts, m.theme.AgentBadge.Render("["+msg.AgentName+"]"))
	}
	if m.cfg.UI.ShowTimestamps && !msg.Timestamp.IsZero() {
		parts = append(parts, m.theme.Timestamp.Render(msg.Timestamp.Format("15:04:05")))
	}
	return strings.Join(parts, " ")
}

// renderBody renders the message content. Completed assistant messages
// go through the markdown renderer; everything else is plain, including
// the assistant message still being streamed (markdown on a partial
// document flickers badly).
func (m *Model) renderBody(msg *model.Message) string {
	content := msg.DisplayContent()

	if len(msg.ToolCalls) > 0 && content == "" {
		var calls []string
		for _, tc := range msg.ToolCalls {
			calls = append(calls, "calling "+tc.Function.Name+"("+util.TruncateRunes(tc.Function.Arguments, 120)+")")
		}
		return strings.Join(calls, "\n")
	}

	streamingThis := m.streaming && m.conversation.GetLastMessage() == msg
	if msg.Role == model.RoleAssistant && !streamingThis {
		return strings.TrimRight(m.renderMarkdown(content), "\n")
	}
	return content
}

// =============================================================================
// INPUT AND STATUS BAR
// =============================================================================

// renderInput renders the input area.
func (m *Model) renderInput() string {
	return m.theme.InputContainer.Width(max(m.width-2, 20)).Render(m.input.View())
}

// renderStatusBar renders server state, token usage, transient status,
// and the short help line.
func (m *Model) renderStatusBar() string {
	var health string
	if m.serverHealthy {
		health = m.theme.StatusHealthy.Render("● online")
	} else {
		health = m.theme.StatusDown.Render("● offline")
	}

	tokens := m.theme.ShortcutDesc.Render("~" + util.IntToString(m.conversation.TokensUsed) + " tok")

	center := m.statusText
	if center != "" && time.Since(m.statusSetAt) > statusTimeout {
		center = ""
	}
	if center == "" {
		var keys []string
		for _, b := range m.keys.ShortHelp() {
			keys = append(keys,
				m.theme.ShortcutKey.Render(b.Help().Key)+" "+
					m.theme.ShortcutDesc.Render(b.Help().Desc))
		}
		center = strings.Join(keys, "  ")
	}

	left := health + "  " + tokens + "  "
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(center) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.StatusBar.Width(m.width).Render(left + center + strings.Repeat(" ", gap))
}

// =============================================================================
// HELP OVERLAY
// =============================================================================

// renderHelp renders the full key binding and slash command reference.
func (m *Model) renderHelp() string {
	var b strings.Builder
	b.WriteString(m.theme.HeaderTitle.Render("Keys") + "\n")
	for _, group := range m.keys.FullHelp() {
		for _, binding := range group {
			b.WriteString("  " + m.theme.ShortcutKey.Render(util.PadWidth(binding.Help().Key, 12)))
			b.WriteString(m.theme.ShortcutDesc.Render(binding.Help().Desc) + "\n")
		}
	}
	b.WriteString(m.theme.HeaderTitle.Render("Commands") + "\n")
	for _, c := range [][2]string{
		{"/new", "start a new conversation"},
		{"/clear", "clear history"},
		{"/save", "save conversation"},
		{"/sessions", "list saved conversations"},
		{"/search <q>", "search saved conversations"},
		{"/load <id>", "load a conversation"},
		{"/delete <id>", "delete a conversation"},
		{"/export [fmt]", "export transcript (markdown, json)"},
		{"/tools", "list server tools"},
		{"/health", "check server health"},
		{"/quit", "exit"},
	} {
		b.WriteString("  " + m.theme.ShortcutKey.Render(util.PadWidth(c[0], 14)))
		b.WriteString(m.theme.ShortcutDesc.Render(c[1]) + "\n")
	}
	return m.theme.WelcomeBox.Render(strings.TrimRight(b.String(), "\n"))
}

// =============================================================================
// SESSION LIST FORMATTING
// =============================================================================

// formatSessionList renders stored conversation metadata as a system
// message body.
func formatSessionList(sessions []model.ConversationMeta, query string) string {
	var b strings.Builder
	if query != "" {
		b.WriteString("Conversations matching \"" + query + "\":\n")
	} else {
		b.WriteString("Saved conversations:\n")
	}
	if len(sessions) == 0 {
		b.WriteString("  (none)\n")
		return b.String()
	}
	for _, s := range sessions {
		b.WriteString("  " + s.ID + "  ")
		b.WriteString(util.PadWidth(util.TruncateWidth(s.Title, 40), 40))
		b.WriteString("  " + util.IntToString(s.MessageCount) + " msgs")
		b.WriteString("  " + s.UpdatedAt.Format("2006-01-02 15:04"))
		b.WriteString("\n")
	}
	return b.String()
}
