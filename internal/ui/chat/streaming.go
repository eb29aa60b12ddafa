// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat provides the chat view component for the TUI.
//
// This file implements streaming optimization for smooth, flicker-free
// rendering while messages arrive. Merged updates are coalesced and the
// transcript is repainted at a capped frame rate, since a busy
// multi-agent session can deliver far more frame updates per second
// than a terminal can usefully draw.
package chat

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/sagechat-tui/internal/model"
	"github.com/jeranaias/sagechat-tui/internal/sage"
)

// =============================================================================
// UPDATE COALESCER
// =============================================================================

// UpdateCoalescer batches transcript repaints during streaming.
// Updates are noted as they arrive and consumed in batches when:
// 1. The batch size threshold is reached, or
// 2. Enough time has passed since the last repaint (33ms for 30fps)
//
// Thread-safety: updates are noted from the stream goroutine while
// repaints happen in the main Bubble Tea loop.
type UpdateCoalescer struct {
	mu        sync.Mutex
	pending   int
	lastFlush time.Time

	batchSize   int
	minInterval time.Duration
}

// NewUpdateCoalescer creates a coalescer with default settings:
// repaint every 15 updates or every 33ms, whichever comes first.
func NewUpdateCoalescer() *UpdateCoalescer {
	const (
		defaultBatchSize = 15
		defaultMaxFPS    = 30
	)
	return &UpdateCoalescer{
		batchSize:   defaultBatchSize,
		minInterval: time.Second / defaultMaxFPS,
		lastFlush:   time.Now(),
	}
}

// Note records one pending transcript update. Thread-safe.
func (c *UpdateCoalescer) Note() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending++
}

// ShouldFlush reports whether a repaint is due. Thread-safe.
func (c *UpdateCoalescer) ShouldFlush() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == 0 {
		return false
	}
	return c.pending >= c.batchSize || time.Since(c.lastFlush) >= c.minInterval
}

// Flush consumes all pending updates and returns how many there were.
// A zero return means no repaint is needed. Thread-safe.
func (c *UpdateCoalescer) Flush() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.pending
	c.pending = 0
	c.lastFlush = time.Now()
	return n
}

// Pending returns the number of updates waiting for a repaint.
func (c *UpdateCoalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Reset discards pending updates without repainting.
func (c *UpdateCoalescer) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = 0
	c.lastFlush = time.Now()
}

// streamTickCmd schedules the next streaming repaint check at 30fps.
func streamTickCmd() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(t time.Time) tea.Msg {
		return StreamTickMsg{Time: t}
	})
}

// =============================================================================
// STREAM BRIDGE
// =============================================================================

// streamHandle bridges one StreamController run into the Bubble Tea
// event loop. Controller callbacks fire on the stream goroutine and are
// forwarded over a channel that the Update loop drains one message at a
// time via awaitEvent.
type streamHandle struct {
	ctrl   *sage.StreamController
	events chan tea.Msg
}

// eventBuffer bounds how far the stream can run ahead of the renderer.
const eventBuffer = 256

// newStreamHandle wires a controller to an event channel.
func newStreamHandle(client *sage.Client, conv *model.Conversation, coalescer *UpdateCoalescer) *streamHandle {
	h := &streamHandle{
		events: make(chan tea.Msg, eventBuffer),
	}
	h.ctrl = sage.NewStreamController(client, conv, sage.Callbacks{
		OnMessage: func(msg *model.Message, appended bool) {
			coalescer.Note()
			h.events <- StreamUpdateMsg{Message: msg, Appended: appended}
		},
		OnWarn: func(warning string) {
			// Drop warnings rather than stall the stream on a full queue.
			select {
			case h.events <- StreamWarningMsg{Warning: warning}:
			default:
			}
		},
	})
	return h
}

// run consumes the stream to a terminal state and emits exactly one
// terminal event. Runs on its own goroutine.
func (h *streamHandle) run(ctx context.Context, req *sage.StreamRequest) {
	err := h.ctrl.Run(ctx, req)
	switch {
	case err != nil:
		h.events <- StreamErrorMsg{Err: err}
	case h.ctrl.State() == sage.StateAborted:
		h.events <- StreamAbortedMsg{}
	default:
		h.events <- StreamCompletedMsg{}
	}
}

// awaitEvent returns a command that delivers the next stream event.
// Re-issued by the Update loop after each event until a terminal one.
func (h *streamHandle) awaitEvent() tea.Cmd {
	return func() tea.Msg {
		return <-h.events
	}
}

// stop requests a user abort of the in-flight stream.
func (h *streamHandle) stop(reason string) bool {
	return h.ctrl.Stop(reason)
}
