// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sage provides the HTTP client for the Sage multi-agent chat server.
package sage

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/jeranaias/sagechat-tui/internal/model"
	"github.com/jeranaias/sagechat-tui/internal/protocol"
)

// =============================================================================
// STREAM STATE
// =============================================================================

// StreamState is the lifecycle state of one streaming session.
// All terminal states are final: a new stream means a new controller.
type StreamState int

const (
	StateIdle      StreamState = iota // Created, not started
	StateStreaming                    // Reading frames
	StateCompleted                    // Server closed the stream normally
	StateAborted                      // User-initiated stop (not an error)
	StateErrored                      // Transport failure
)

// String returns a human-readable state name.
func (s StreamState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// ErrAlreadyStarted is returned by Run when the controller has left the
// idle state; terminated controllers are never restarted.
var ErrAlreadyStarted = errors.New("stream controller already started")

// =============================================================================
// CALLBACKS
// =============================================================================

// Callbacks are the contract surfaces the presentation layer depends on.
//
// OnMessage fires once per successfully merged frame, with the merged
// conversation entry and whether it was newly appended (the appended
// flag drives scroll-to-bottom). OnComplete fires once on graceful
// stream end. OnError fires once on fatal transport failure. A user
// abort fires neither OnComplete nor OnError.
//
// All callbacks are invoked from the goroutine running Run, strictly in
// frame arrival order.
type Callbacks struct {
	OnMessage  func(msg *model.Message, appended bool)
	OnComplete func()
	OnError    func(err error)

	// OnWarn receives non-fatal diagnostics (malformed lines, chunk
	// protocol anomalies). Log-only; never surfaced to the user.
	OnWarn func(warning string)
}

// =============================================================================
// STREAM CONTROLLER
// =============================================================================

// sweepInterval is how often the read loop checks for stale chunk
// assembly buffers.
const sweepInterval = 30 * time.Second

// StreamController owns one streaming request's lifecycle from
// initiation to completion, abort, or error. It wires the frame
// decoder, the chunk reassembler, and the conversation merge into a
// single pipeline fed from the response body.
//
// Run blocks for the life of the stream; Stop may be called from any
// goroutine. State transitions: idle → streaming → {completed |
// aborted | errored}.
type StreamController struct {
	client *Client
	conv   *model.Conversation
	cb     Callbacks

	decoder   *protocol.Decoder
	assembler *protocol.Reassembler

	mu        sync.Mutex
	state     StreamState
	cancel    context.CancelFunc
	stopped   bool // Stop was called; suppress the resulting cancellation
	sessionID string

	lastSweep time.Time
}

// NewStreamController creates a controller bound to one conversation.
// The conversation must not be mutated by anyone else while the stream
// is active.
func NewStreamController(client *Client, conv *model.Conversation, cb Callbacks) *StreamController {
	sc := &StreamController{
		client: client,
		conv:   conv,
		cb:     cb,
		state:  StateIdle,
	}
	sc.decoder = protocol.NewDecoder(func(e *protocol.DecodeError) {
		sc.warn(e.Error())
	})
	sc.assembler = protocol.NewReassembler(sc.warn)
	return sc
}

// SetAssemblyTTL overrides the stale chunk-buffer TTL.
func (sc *StreamController) SetAssemblyTTL(ttl time.Duration) {
	sc.assembler.SetTTL(ttl)
}

// State returns the current lifecycle state.
func (sc *StreamController) State() StreamState {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.state
}

// SessionID returns the session identifier of the active stream.
func (sc *StreamController) SessionID() string {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sessionID
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Run opens the stream and consumes it until a terminal state.
// It returns nil for completed and aborted sessions, and the transport
// error for errored ones (the same error passed to OnError).
func (sc *StreamController) Run(ctx context.Context, req *StreamRequest) error {
	streamCtx, err := sc.begin(ctx, req)
	if err != nil {
		return err
	}

	body, err := sc.client.OpenStream(streamCtx, req)
	if err != nil {
		if sc.wasStopped(streamCtx) {
			sc.finishAborted()
			return nil
		}
		sc.finishErrored(err)
		return err
	}
	defer body.Close()

	return sc.readLoop(streamCtx, body)
}

// begin transitions idle → streaming and installs the cancel handle.
func (sc *StreamController) begin(ctx context.Context, req *StreamRequest) (context.Context, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.state != StateIdle {
		return nil, ErrAlreadyStarted
	}

	if req.SessionID == "" {
		req.SessionID = NewSessionID()
	}
	sc.sessionID = req.SessionID
	sc.conv.SessionID = req.SessionID

	streamCtx, cancel := context.WithCancel(ctx)
	sc.cancel = cancel
	sc.state = StateStreaming
	sc.lastSweep = time.Now()
	return streamCtx, nil
}

// Stop aborts the in-flight stream. The local read is cancelled
// immediately; a best-effort interrupt notification is sent to the
// server in the background and its failure is only logged. Safe to
// call from any goroutine; a no-op unless currently streaming.
func (sc *StreamController) Stop(reason string) bool {
	sc.mu.Lock()
	if sc.state != StateStreaming || sc.stopped {
		sc.mu.Unlock()
		return false
	}
	sc.stopped = true
	cancel := sc.cancel
	sessionID := sc.sessionID
	sc.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	// Fire-and-forget: local abort never waits on the server.
	go func() {
		ctx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := sc.client.Interrupt(ctx, sessionID, reason); err != nil {
			sc.warn("session interrupt failed: " + err.Error())
		}
	}()

	return true
}

// =============================================================================
// READ LOOP
// =============================================================================

// readLoop pumps the response body through the frame pipeline until
// EOF, abort, or a transport error.
func (sc *StreamController) readLoop(ctx context.Context, body io.Reader) error {
	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)

		// Bytes read before an error (or EOF) still carry frames:
		// anything fully decoded before an abort is delivered.
		if n > 0 {
			sc.processBytes(buf[:n])
		}

		if now := time.Now(); now.Sub(sc.lastSweep) >= sweepInterval {
			sc.lastSweep = now
			sc.assembler.SweepStale(now)
		}

		if err == nil {
			continue
		}
		if err == io.EOF {
			sc.finishCompleted()
			return nil
		}
		if sc.wasStopped(ctx) {
			sc.finishAborted()
			return nil
		}
		wrapped := &ClientError{Type: ErrTypeConnection, Message: "stream read failed", Cause: err}
		sc.finishErrored(wrapped)
		return wrapped
	}
}

// processBytes feeds one byte chunk through decode → reassemble → merge.
func (sc *StreamController) processBytes(chunk []byte) {
	for _, frame := range sc.decoder.Feed(chunk) {
		if frame.Kind() == protocol.KindStreamEnd {
			// Terminal marker only; never merged.
			continue
		}

		routed, err := sc.assembler.OnFrame(frame)
		if err != nil {
			// Chunk protocol errors drop one message, not the stream.
			sc.warn(err.Error())
			continue
		}
		if routed == nil {
			continue
		}

		msg, err := model.FromFrame(routed)
		if err != nil {
			sc.warn("undecodable message frame for " + routed.MessageID + ": " + err.Error())
			continue
		}

		appended := sc.conv.Apply(msg)
		if sc.cb.OnMessage != nil {
			sc.cb.OnMessage(msg, appended)
		}
	}
}

// =============================================================================
// TERMINAL TRANSITIONS
// =============================================================================

// wasStopped reports whether the stream ended because of a local abort
// (explicit Stop or parent context cancellation) rather than a fault.
func (sc *StreamController) wasStopped(ctx context.Context) bool {
	sc.mu.Lock()
	stopped := sc.stopped
	sc.mu.Unlock()
	return stopped || errors.Is(ctx.Err(), context.Canceled)
}

func (sc *StreamController) finishCompleted() {
	sc.teardown(StateCompleted)
	if sc.cb.OnComplete != nil {
		sc.cb.OnComplete()
	}
}

func (sc *StreamController) finishAborted() {
	// Not an error: no OnError, no OnComplete. The conversation keeps
	// everything merged before the abort.
	sc.teardown(StateAborted)
}

func (sc *StreamController) finishErrored(err error) {
	sc.teardown(StateErrored)
	if sc.cb.OnError != nil {
		sc.cb.OnError(err)
	}
}

// teardown releases stream resources and enters a terminal state.
func (sc *StreamController) teardown(final StreamState) {
	sc.mu.Lock()
	if sc.cancel != nil {
		sc.cancel()
		sc.cancel = nil
	}
	sc.state = final
	sc.mu.Unlock()

	if discarded := sc.decoder.Close(); discarded > 0 {
		sc.warn("discarded trailing partial line at stream end")
	}
	if pending := sc.assembler.PendingCount(); pending > 0 {
		sc.warn("discarding incomplete chunk assemblies at stream end")
	}
	sc.assembler.Reset()
}

func (sc *StreamController) warn(warning string) {
	if sc.cb.OnWarn != nil {
		sc.cb.OnWarn(warning)
	}
}
