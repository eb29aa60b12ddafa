// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol implements the Sage server's NDJSON stream protocol.
package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// feedChunks runs a frame sequence through a reassembler and returns
// all emitted frames plus the last error.
func feedChunks(t *testing.T, r *Reassembler, frames []*Frame) ([]*Frame, error) {
	t.Helper()
	var out []*Frame
	var lastErr error
	for _, f := range frames {
		emitted, err := r.OnFrame(f)
		if err != nil {
			lastErr = err
		}
		if emitted != nil {
			out = append(out, emitted)
		}
	}
	return out, lastErr
}

// =============================================================================
// REASSEMBLY TESTS
// =============================================================================

func TestReassembler_InOrderSequence(t *testing.T) {
	r := NewReassembler(nil)

	payload := `{"type":"assistant","message_id":"m1","content":"hello world"}`
	frames := []*Frame{
		{Type: TypeChunkStart, MessageID: "m1", TotalChunks: 2, OriginalType: "assistant"},
		{Type: TypeJSONChunk, MessageID: "m1", ChunkIndex: 0, ChunkData: payload[:20], TotalChunks: 2},
		{Type: TypeJSONChunk, MessageID: "m1", ChunkIndex: 1, ChunkData: payload[20:], TotalChunks: 2},
		{Type: TypeChunkEnd, MessageID: "m1"},
	}

	out, err := feedChunks(t, r, frames)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("emitted %d frames, want 1", len(out))
	}
	if string(out[0].Raw) != payload {
		t.Errorf("reassembled payload = %q, want %q", out[0].Raw, payload)
	}
	if out[0].Type != "assistant" || out[0].MessageID != "m1" {
		t.Errorf("reassembled frame parsed wrong: %+v", out[0])
	}
	if r.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after reassembly, want 0", r.PendingCount())
	}
}

func TestReassembler_OutOfOrderSequence(t *testing.T) {
	r := NewReassembler(nil)

	// Scenario B from the server contract: chunk 1 arrives before chunk 0.
	frames := []*Frame{
		{Type: TypeChunkStart, MessageID: "m2", TotalChunks: 2},
		{Type: TypeJSONChunk, MessageID: "m2", ChunkIndex: 1, ChunkData: `"}`},
		{Type: TypeJSONChunk, MessageID: "m2", ChunkIndex: 0, ChunkData: `{"type":"assistant","content":"hi`},
		{Type: TypeChunkEnd, MessageID: "m2"},
	}

	out, err := feedChunks(t, r, frames)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("emitted %d frames, want 1", len(out))
	}
	want := `{"type":"assistant","content":"hi"}`
	if string(out[0].Raw) != want {
		t.Errorf("reassembled payload = %q, want %q", out[0].Raw, want)
	}
}

func TestReassembler_DuplicateChunksIgnored(t *testing.T) {
	var warnings []string
	r := NewReassembler(func(w string) { warnings = append(warnings, w) })

	frames := []*Frame{
		{Type: TypeChunkStart, MessageID: "m1", TotalChunks: 2},
		{Type: TypeJSONChunk, MessageID: "m1", ChunkIndex: 0, ChunkData: `{"type":"assistant",`},
		{Type: TypeJSONChunk, MessageID: "m1", ChunkIndex: 0, ChunkData: `GARBAGE`},
		{Type: TypeJSONChunk, MessageID: "m1", ChunkIndex: 1, ChunkData: `"message_id":"m1"}`},
		{Type: TypeChunkEnd, MessageID: "m1"},
	}

	out, err := feedChunks(t, r, frames)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("emitted %d frames, want 1", len(out))
	}
	want := `{"type":"assistant","message_id":"m1"}`
	if string(out[0].Raw) != want {
		t.Errorf("duplicate chunk altered payload: got %q, want %q", out[0].Raw, want)
	}
	if len(warnings) == 0 {
		t.Error("expected a duplicate-chunk warning")
	}
}

func TestReassembler_MissingChunkStartFallback(t *testing.T) {
	r := NewReassembler(nil)

	// No chunk_start: the first json_chunk must create a fallback
	// buffer from its own total_chunks.
	frames := []*Frame{
		{Type: TypeJSONChunk, MessageID: "m1", ChunkIndex: 0, ChunkData: `{"type":"assistant",`, TotalChunks: 2},
		{Type: TypeJSONChunk, MessageID: "m1", ChunkIndex: 1, ChunkData: `"message_id":"m1"}`, TotalChunks: 2},
		{Type: TypeChunkEnd, MessageID: "m1"},
	}

	out, err := feedChunks(t, r, frames)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("emitted %d frames, want 1", len(out))
	}
}

func TestReassembler_IncompleteSequenceFailsSafe(t *testing.T) {
	r := NewReassembler(nil)

	// chunk 1 of 2 never arrives; the truncated concatenation must not
	// parse, must not emit, and must not leave a buffer behind.
	frames := []*Frame{
		{Type: TypeChunkStart, MessageID: "m1", TotalChunks: 2},
		{Type: TypeJSONChunk, MessageID: "m1", ChunkIndex: 0, ChunkData: `{"type":"assistant",`},
		{Type: TypeChunkEnd, MessageID: "m1"},
	}

	out, err := feedChunks(t, r, frames)
	if len(out) != 0 {
		t.Fatalf("emitted %d frames from incomplete sequence, want 0", len(out))
	}

	var asmErr *AssemblyError
	if !errors.As(err, &asmErr) {
		t.Fatalf("error = %v, want *AssemblyError", err)
	}
	if asmErr.Expected != 2 || len(asmErr.Received) != 1 {
		t.Errorf("diagnostics wrong: expected=%d received=%v", asmErr.Expected, asmErr.Received)
	}
	if r.PendingCount() != 0 {
		t.Error("failed sequence left a buffer behind")
	}
}

func TestReassembler_UnderCountSequenceNeverEmits(t *testing.T) {
	r := NewReassembler(nil)

	// Only 1 of 2 announced chunks arrives, but that single fragment is
	// a complete JSON document on its own. The count mismatch must fail
	// the sequence; parseability of the truncation proves nothing.
	frames := []*Frame{
		{Type: TypeChunkStart, MessageID: "m1", TotalChunks: 2},
		{Type: TypeJSONChunk, MessageID: "m1", ChunkIndex: 0,
			ChunkData: `{"type":"assistant","message_id":"m1","content":"partial"}`},
		{Type: TypeChunkEnd, MessageID: "m1"},
	}

	out, err := feedChunks(t, r, frames)
	if len(out) != 0 {
		t.Fatalf("emitted %d frames from under-count sequence, want 0", len(out))
	}

	var asmErr *AssemblyError
	if !errors.As(err, &asmErr) {
		t.Fatalf("error = %v, want *AssemblyError", err)
	}
	if asmErr.Expected != 2 || len(asmErr.Received) != 1 {
		t.Errorf("diagnostics wrong: expected=%d received=%v", asmErr.Expected, asmErr.Received)
	}
	if r.PendingCount() != 0 {
		t.Error("failed sequence left a buffer behind")
	}
}

func TestReassembler_ChunkEndWithoutBuffer(t *testing.T) {
	var warnings []string
	r := NewReassembler(func(w string) { warnings = append(warnings, w) })

	out, err := r.OnFrame(&Frame{Type: TypeChunkEnd, MessageID: "ghost"})
	if out != nil || err != nil {
		t.Fatalf("OnFrame() = (%v, %v), want (nil, nil)", out, err)
	}
	if len(warnings) != 1 {
		t.Errorf("got %d warnings, want 1", len(warnings))
	}
}

func TestReassembler_InterleavedMessages(t *testing.T) {
	r := NewReassembler(nil)

	// Two chunked messages interleaved: reassembly is keyed by
	// message_id and neither blocks the other.
	frames := []*Frame{
		{Type: TypeChunkStart, MessageID: "a", TotalChunks: 2},
		{Type: TypeChunkStart, MessageID: "b", TotalChunks: 2},
		{Type: TypeJSONChunk, MessageID: "a", ChunkIndex: 0, ChunkData: `{"type":"assistant",`},
		{Type: TypeJSONChunk, MessageID: "b", ChunkIndex: 0, ChunkData: `{"type":"tool",`},
		{Type: TypeJSONChunk, MessageID: "b", ChunkIndex: 1, ChunkData: `"message_id":"b"}`},
		{Type: TypeJSONChunk, MessageID: "a", ChunkIndex: 1, ChunkData: `"message_id":"a"}`},
		{Type: TypeChunkEnd, MessageID: "b"},
		{Type: TypeChunkEnd, MessageID: "a"},
	}

	out, err := feedChunks(t, r, frames)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("emitted %d frames, want 2", len(out))
	}
	if out[0].MessageID != "b" || out[1].MessageID != "a" {
		t.Errorf("completion order = %q, %q; want b, a", out[0].MessageID, out[1].MessageID)
	}
}

func TestReassembler_PassThroughNonChunkFrames(t *testing.T) {
	r := NewReassembler(nil)

	in := &Frame{Type: "assistant", MessageID: "m1"}
	out, err := r.OnFrame(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != in {
		t.Error("non-chunk frame should pass through unchanged")
	}
}

func TestReassembler_RoundTripLargePayload(t *testing.T) {
	r := NewReassembler(nil)

	// Build a payload larger than one chunk and split it exactly the way
	// the server does (fixed-size slices).
	big := map[string]any{
		"type":       "assistant",
		"message_id": "m1",
		"content":    string(make([]byte, 0)),
	}
	content := make([]byte, 0, 40000)
	for i := 0; i < 40000; i++ {
		content = append(content, byte('a'+i%26))
	}
	big["content"] = string(content)
	payload, err := json.Marshal(big)
	if err != nil {
		t.Fatal(err)
	}

	const chunkSize = 8192
	total := (len(payload) + chunkSize - 1) / chunkSize

	frames := []*Frame{{Type: TypeChunkStart, MessageID: "m1", TotalChunks: total}}
	for i := 0; i < total; i++ {
		end := (i + 1) * chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		frames = append(frames, &Frame{
			Type: TypeJSONChunk, MessageID: "m1",
			ChunkIndex: i, ChunkData: string(payload[i*chunkSize : end]),
			TotalChunks: total,
		})
	}
	frames = append(frames, &Frame{Type: TypeChunkEnd, MessageID: "m1"})

	out, err := feedChunks(t, r, frames)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("emitted %d frames, want 1", len(out))
	}
	if string(out[0].Raw) != string(payload) {
		t.Error("reassembled payload is not byte-identical to the original")
	}
}

// =============================================================================
// STALE BUFFER SWEEP TESTS
// =============================================================================

func TestReassembler_SweepStale(t *testing.T) {
	r := NewReassembler(nil)
	r.SetTTL(time.Minute)

	r.OnFrame(&Frame{Type: TypeChunkStart, MessageID: "orphan", TotalChunks: 3})
	r.OnFrame(&Frame{Type: TypeJSONChunk, MessageID: "orphan", ChunkIndex: 0, ChunkData: "{"})

	if removed := r.SweepStale(time.Now()); removed != 0 {
		t.Errorf("fresh buffer swept: removed = %d, want 0", removed)
	}

	if removed := r.SweepStale(time.Now().Add(2 * time.Minute)); removed != 1 {
		t.Errorf("SweepStale() = %d, want 1", removed)
	}
	if r.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after sweep, want 0", r.PendingCount())
	}
}

func TestReassembler_Reset(t *testing.T) {
	r := NewReassembler(nil)
	r.OnFrame(&Frame{Type: TypeChunkStart, MessageID: "a", TotalChunks: 1})
	r.OnFrame(&Frame{Type: TypeChunkStart, MessageID: "b", TotalChunks: 1})

	r.Reset()
	if r.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after Reset, want 0", r.PendingCount())
	}
}
