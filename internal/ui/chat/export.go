// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file implements transcript export to markdown and JSON files.
package chat

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/sagechat-tui/internal/config"
	"github.com/jeranaias/sagechat-tui/internal/model"
	"github.com/jeranaias/sagechat-tui/internal/util"
)

// =============================================================================
// EXPORT
// =============================================================================

// ExportConversation writes the transcript to the exports directory
// under the config dir and returns the written path. Supported formats
// are "markdown" and "json".
func ExportConversation(conv *model.Conversation, format string) (string, error) {
	if conv.IsEmpty() {
		return "", fmt.Errorf("nothing to export")
	}

	dir, err := config.ConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve export directory: %w", err)
	}
	exportDir := filepath.Join(dir, "exports")

	stamp := time.Now().Format("20060102-150405")
	var name string
	var data []byte

	switch format {
	case "json":
		name = conv.ID + "-" + stamp + ".json"
		data, err = json.MarshalIndent(conv, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode conversation: %w", err)
		}
	case "markdown":
		name = conv.ID + "-" + stamp + ".md"
		data = []byte(renderTranscriptMarkdown(conv))
	default:
		return "", fmt.Errorf("unsupported export format %q", format)
	}

	path := filepath.Join(exportDir, name)
	if err := util.AtomicWriteFileWithDir(path, data, 0644, 0755); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}

// renderTranscriptMarkdown renders the conversation as a markdown
// document with a metadata header.
func renderTranscriptMarkdown(conv *model.Conversation) string {
	var b strings.Builder

	b.WriteString("# " + conv.GetTitle() + "\n\n")
	b.WriteString("- Conversation: " + conv.ID + "\n")
	if conv.SessionID != "" {
		b.WriteString("- Session: " + conv.SessionID + "\n")
	}
	b.WriteString("- Created: " + conv.CreatedAt.Format(time.RFC3339) + "\n")
	b.WriteString("- Messages: " + util.IntToString(conv.MessageCount()) + "\n")
	b.WriteString("\n---\n\n")

	for _, msg := range conv.GetHistory() {
		if msg.IsEmpty() && len(msg.ToolCalls) == 0 {
			continue
		}

		heading := "## " + msg.Role.DisplayName()
		if msg.AgentName != "" {
			heading += " (" + msg.AgentName + ")"
		}
		if !msg.Timestamp.IsZero() {
			heading += " - " + msg.Timestamp.Format("15:04:05")
		}
		b.WriteString(heading + "\n\n")

		for _, tc := range msg.ToolCalls {
			b.WriteString("> tool call: `" + tc.Function.Name + "`\n")
			if tc.Function.Arguments != "" {
				b.WriteString(">\n> ```json\n> " + tc.Function.Arguments + "\n> ```\n")
			}
			b.WriteString("\n")
		}

		if content := msg.DisplayContent(); content != "" {
			b.WriteString(content + "\n")
		}
		b.WriteString("\n")
	}

	return b.String()
}
