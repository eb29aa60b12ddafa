// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the main chat view component for the sagechat TUI.

The chat package implements a complete terminal-based chat interface
using the Bubble Tea framework. It drives streaming conversations with
the Sage multi-agent server and persists transcripts locally.

# Key Components

## Model (model.go)

The Model struct is the central Bubble Tea model that maintains all chat
state:
  - The active conversation and its streaming session
  - Input handling and viewport scrolling
  - Server health tracking
  - The glamour markdown renderer for completed assistant messages

## Update Loop (update.go)

Handles all Bubble Tea messages and user interactions: keyboard input,
stream lifecycle events, store results, health probes, and resizing.

## View Rendering (view.go)

Rendering for the complete interface: header, transcript with
role-specific styling and agent badges, input area, status bar, and
the help overlay.

## Streaming (streaming.go)

The bridge between the stream controller and the event loop, plus an
update coalescer that caps transcript repaints at 30fps while frames
arrive.

## Commands (commands.go)

Slash command dispatch (/new, /save, /sessions, /load, /export, ...)
and the asynchronous commands that call the server and the local store.

## Export (export.go)

Transcript export to markdown or JSON files under the config directory.

# Architecture

The package follows the Elm architecture via Bubble Tea:

	User Input → Update → Model State → View → Terminal

Stream frames arrive on a dedicated goroutine owned by the stream
controller and are forwarded over a channel into the Update loop, so
all model mutation stays on the event loop.
*/
package chat
