// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol implements the Sage server's NDJSON stream protocol.
package protocol

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// ASSEMBLY ERRORS
// =============================================================================

// AssemblyError reports a chunk sequence that could not be reassembled.
// Like decode errors these are non-fatal: the affected message is
// dropped, its buffer cleared, and the stream continues.
type AssemblyError struct {
	MessageID string
	Expected  int   // Announced total_chunks (0 if never announced)
	Received  []int // Distinct chunk indices that arrived, sorted
	Cause     error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("reassembly failed for message %s (received %d of %d chunks): %v",
		e.MessageID, len(e.Received), e.Expected, e.Cause)
}

func (e *AssemblyError) Unwrap() error {
	return e.Cause
}

// =============================================================================
// ASSEMBLY BUFFER
// =============================================================================

// assembly holds in-flight fragments for one chunked message.
type assembly struct {
	messageID    string
	originalType string
	totalChunks  int

	// fragments in arrival order; sorted by index at reassembly time.
	fragments []fragment

	// seen guards against duplicate chunk_index deliveries.
	seen map[int]bool

	// lastActivity drives the stale-entry sweep.
	lastActivity time.Time
}

type fragment struct {
	index int
	data  string
}

// indices returns the distinct received chunk indices, sorted.
func (a *assembly) indices() []int {
	out := make([]int, 0, len(a.fragments))
	for _, f := range a.fragments {
		out = append(out, f.index)
	}
	sort.Ints(out)
	return out
}

// =============================================================================
// CHUNK REASSEMBLER
// =============================================================================

// DefaultAssemblyTTL is how long an assembly buffer may sit idle before
// SweepStale discards it. The server never resends chunks, so an entry
// this stale will never complete.
const DefaultAssemblyTTL = 2 * time.Minute

// Reassembler reconstructs messages the server split into json_chunk
// frames. It owns the per-message assembly buffers and emits exactly
// one atomic frame per successfully completed sequence; partial or
// malformed sequences are dropped, never emitted.
//
// Not safe for concurrent use: the stream controller feeds it from a
// single goroutine.
type Reassembler struct {
	buffers map[string]*assembly
	ttl     time.Duration

	// onWarn, if set, receives non-fatal protocol anomalies
	// (duplicate chunks, chunk_end with no buffer, stale sweeps).
	onWarn func(string)
}

// NewReassembler creates a reassembler with the default buffer TTL.
// onWarn may be nil.
func NewReassembler(onWarn func(string)) *Reassembler {
	return &Reassembler{
		buffers: make(map[string]*assembly),
		ttl:     DefaultAssemblyTTL,
		onWarn:  onWarn,
	}
}

// SetTTL overrides the stale-buffer TTL. Zero or negative values are ignored.
func (r *Reassembler) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		r.ttl = ttl
	}
}

// OnFrame consumes one chunk-protocol frame.
//
// Returns (frame, nil) when the frame completed a sequence and the
// reassembled payload parsed as a Frame; (nil, nil) when the frame was
// absorbed into buffer state; (nil, err) when a sequence terminated
// but could not be reassembled.
//
// Frames that are not chunk-protocol frames are returned unchanged so
// callers can route unconditionally.
func (r *Reassembler) OnFrame(f *Frame) (*Frame, error) {
	switch f.Kind() {
	case KindChunkStart:
		r.start(f)
		return nil, nil
	case KindJSONChunk:
		r.addChunk(f)
		return nil, nil
	case KindChunkEnd:
		return r.finish(f)
	default:
		return f, nil
	}
}

// start creates (or replaces) the assembly buffer for a message.
// A replace discards any stale fragments from a previous attempt.
func (r *Reassembler) start(f *Frame) {
	if prev, ok := r.buffers[f.MessageID]; ok && len(prev.fragments) > 0 {
		r.warnf("chunk_start for %s replaces %d buffered fragments", f.MessageID, len(prev.fragments))
	}
	r.buffers[f.MessageID] = &assembly{
		messageID:    f.MessageID,
		originalType: f.OriginalType,
		totalChunks:  f.TotalChunks,
		seen:         make(map[int]bool),
		lastActivity: time.Now(),
	}
}

// addChunk records one fragment, tolerating a missed chunk_start by
// creating a fallback buffer from the chunk's own total_chunks (the
// server repeats total_chunks on every json_chunk). Duplicate indices
// are ignored so retransmissions cannot corrupt the payload.
func (r *Reassembler) addChunk(f *Frame) {
	buf, ok := r.buffers[f.MessageID]
	if !ok {
		r.warnf("json_chunk for %s with no chunk_start; creating fallback buffer", f.MessageID)
		buf = &assembly{
			messageID:   f.MessageID,
			totalChunks: f.TotalChunks,
			seen:        make(map[int]bool),
		}
		r.buffers[f.MessageID] = buf
	}

	if buf.seen[f.ChunkIndex] {
		r.warnf("duplicate chunk %d for %s ignored", f.ChunkIndex, f.MessageID)
		return
	}
	buf.seen[f.ChunkIndex] = true
	buf.fragments = append(buf.fragments, fragment{index: f.ChunkIndex, data: f.ChunkData})
	buf.lastActivity = time.Now()
}

// finish completes a sequence: sort by index, concatenate, parse.
// The buffer entry is removed on both success and failure; a failed
// sequence is never retried.
func (r *Reassembler) finish(f *Frame) (*Frame, error) {
	buf, ok := r.buffers[f.MessageID]
	if !ok {
		r.warnf("chunk_end for %s with no buffered chunks", f.MessageID)
		return nil, nil
	}
	delete(r.buffers, f.MessageID)

	// An announced total that never arrived in full means the payload is
	// truncated; a truncated concatenation can still parse as valid JSON,
	// so the count is checked before parsing, never inferred from it.
	if buf.totalChunks > 0 && len(buf.fragments) != buf.totalChunks {
		return nil, &AssemblyError{
			MessageID: f.MessageID,
			Expected:  buf.totalChunks,
			Received:  buf.indices(),
			Cause:     fmt.Errorf("chunk_end after %d of %d chunks", len(buf.fragments), buf.totalChunks),
		}
	}

	sort.SliceStable(buf.fragments, func(i, j int) bool {
		return buf.fragments[i].index < buf.fragments[j].index
	})

	var payload strings.Builder
	for _, frag := range buf.fragments {
		payload.WriteString(frag.data)
	}

	merged, err := ParseFrame([]byte(payload.String()))
	if err != nil {
		return nil, &AssemblyError{
			MessageID: f.MessageID,
			Expected:  buf.totalChunks,
			Received:  buf.indices(),
			Cause:     err,
		}
	}

	// The reassembled payload carries no transport timestamp of its own;
	// tag it with the chunk_end arrival time.
	if !f.Timestamp.IsZero() {
		merged.Timestamp = f.Timestamp
	}
	if merged.MessageID == "" {
		merged.MessageID = f.MessageID
	}
	return merged, nil
}

// SweepStale discards assembly buffers idle longer than the TTL and
// returns how many were removed. The server never terminates abandoned
// sequences, so without this sweep orphaned buffers would accumulate
// for the life of the session.
func (r *Reassembler) SweepStale(now time.Time) int {
	removed := 0
	for id, buf := range r.buffers {
		if now.Sub(buf.lastActivity) > r.ttl {
			delete(r.buffers, id)
			removed++
			r.warnf("discarded stale assembly buffer for %s (%d fragments)", id, len(buf.fragments))
		}
	}
	return removed
}

// Reset discards all assembly buffers. Called on session teardown.
func (r *Reassembler) Reset() {
	r.buffers = make(map[string]*assembly)
}

// PendingCount returns the number of in-flight assembly buffers.
func (r *Reassembler) PendingCount() int {
	return len(r.buffers)
}

func (r *Reassembler) warnf(format string, args ...any) {
	if r.onWarn != nil {
		r.onWarn(fmt.Sprintf(format, args...))
	}
}
