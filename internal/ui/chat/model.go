// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file defines the main model structure and initialization.
package chat

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/sagechat-tui/internal/config"
	"github.com/jeranaias/sagechat-tui/internal/model"
	"github.com/jeranaias/sagechat-tui/internal/sage"
	"github.com/jeranaias/sagechat-tui/internal/storage"
	"github.com/jeranaias/sagechat-tui/internal/ui/styles"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// healthInterval is how often the server is probed in the background.
	healthInterval = 15 * time.Second

	// statusTimeout is how long a transient status message stays visible.
	statusTimeout = 5 * time.Second

	// inputCharLimit caps the input field length.
	inputCharLimit = 4000
)

// =============================================================================
// MODEL DEFINITION
// =============================================================================

// Model is the Bubble Tea model for the chat interface. It owns the
// active conversation, the streaming session (at most one at a time),
// and all visual components.
type Model struct {
	// Collaborators
	cfg    *config.Config
	theme  *styles.Theme
	client *sage.Client
	store  *storage.ConversationStore // nil when persistence is disabled

	// Conversation state
	conversation *model.Conversation

	// Streaming state. handle is non-nil exactly while a stream is
	// active; each send creates a fresh one (controllers are single-use).
	streaming   bool
	handle      *streamHandle
	coalescer   *UpdateCoalescer
	streamStart time.Time

	// pendingSubmit holds input sent while a stream was still active.
	// The active stream is aborted first; the input is submitted once
	// the old controller reaches a terminal state, so two streams never
	// mutate the conversation concurrently.
	pendingSubmit string

	// Components
	viewport   viewport.Model
	input      textinput.Model
	spin       spinner.Model
	keys       KeyMap
	mdRenderer *glamour.TermRenderer // nil when markdown is off or init failed

	// Layout
	width  int
	height int
	ready  bool

	// Status
	serverHealthy bool
	serverStatus  *sage.SystemStatus
	statusText    string
	statusSetAt   time.Time
	lastError     error
	showHelp      bool
	quitting      bool
}

// New creates a chat model wired to the given collaborators. store may
// be nil when persistence is disabled.
func New(cfg *config.Config, client *sage.Client, store *storage.ConversationStore, theme *styles.Theme) *Model {
	input := textinput.New()
	input.Placeholder = "Type a message, or /help for commands..."
	input.CharLimit = inputCharLimit
	input.Prompt = theme.InputPrompt.Render("> ")
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = theme.Spinner

	return &Model{
		cfg:          cfg,
		theme:        theme,
		client:       client,
		store:        store,
		conversation: model.NewConversation(),
		coalescer:    NewUpdateCoalescer(),
		input:        input,
		spin:         spin,
		keys:         DefaultKeyMap(),
	}
}

// Conversation exposes the active conversation (used by export and tests).
func (m *Model) Conversation() *model.Conversation {
	return m.conversation
}

// Init starts background work: cursor blink and the first health probe.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.checkHealthCmd(),
		healthTickCmd(),
	)
}

// =============================================================================
// MARKDOWN RENDERER
// =============================================================================

// initMarkdownRenderer (re)creates the glamour renderer for the current
// viewport width. Glamour can fail in odd terminal environments; a nil
// renderer means plain text, never a crash.
func (m *Model) initMarkdownRenderer(width int) {
	if !m.cfg.UI.Markdown {
		m.mdRenderer = nil
		return
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		m.mdRenderer = nil
		return
	}
	m.mdRenderer = r
}

// renderMarkdown renders content as markdown, falling back to the raw
// text when the renderer is unavailable or errors.
func (m *Model) renderMarkdown(content string) string {
	if m.mdRenderer == nil {
		return content
	}
	out, err := m.mdRenderer.Render(content)
	if err != nil {
		return content
	}
	return out
}

// =============================================================================
// STREAM LIFECYCLE
// =============================================================================

// beginStream creates a fresh controller for the conversation and
// launches it. Returns the commands that pump stream events and drive
// the spinner and repaint ticks.
func (m *Model) beginStream() tea.Cmd {
	m.coalescer.Reset()
	m.handle = newStreamHandle(m.client, m.conversation, m.coalescer)
	if ttl := m.cfg.Stream.AssemblyTTLSecs; ttl > 0 {
		m.handle.ctrl.SetAssemblyTTL(time.Duration(ttl) * time.Second)
	}

	// Assign the session ID here rather than letting the controller
	// generate one: the UI reads it for display while the stream runs.
	if m.conversation.SessionID == "" {
		m.conversation.SessionID = sage.NewSessionID()
	}

	req := &sage.StreamRequest{
		Messages:       sage.ChatMessagesFrom(m.conversation),
		SessionID:      m.conversation.SessionID,
		DeepThinking:   m.cfg.Stream.DeepThinking,
		MultiAgent:     m.cfg.Stream.MultiAgent,
		MaxLoopCount:   m.cfg.Stream.MaxLoopCount,
		SystemPrefix:   m.cfg.Stream.SystemPrefix,
		AvailableTools: m.cfg.Stream.AvailableTools,
	}

	m.streaming = true
	m.streamStart = time.Now()
	m.lastError = nil

	// Cancellation comes from StreamController.Stop, not this context:
	// the Bubble Tea program must outlive any single stream.
	handle := m.handle
	startCmd := func() tea.Msg {
		go handle.run(context.Background(), req)
		return StreamStartedMsg{SessionID: req.SessionID, StartTime: time.Now()}
	}

	return tea.Batch(startCmd, handle.awaitEvent(), m.spin.Tick, streamTickCmd())
}

// endStream clears streaming state after a terminal event.
func (m *Model) endStream() {
	m.streaming = false
	m.handle = nil
	m.coalescer.Reset()
}

// stopStream requests a user abort of the active stream.
func (m *Model) stopStream() {
	if m.handle != nil {
		m.handle.stop("user pressed esc")
	}
}
