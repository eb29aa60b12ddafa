// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol implements the Sage server's NDJSON stream protocol:
// frame decoding, and reassembly of oversized payloads that the server
// splits into ordered chunks.
package protocol

import (
	"encoding/json"
	"time"
)

// =============================================================================
// FRAME KINDS
// =============================================================================

// FrameKind classifies a decoded stream frame.
// The chunk-protocol kinds are control frames consumed by the Reassembler;
// KindMessage frames carry a complete message payload and flow straight to
// the conversation merge step.
type FrameKind int

const (
	// KindMessage is any frame whose type is not a chunk-protocol marker.
	// The payload is a complete logical message.
	KindMessage FrameKind = iota

	// KindChunkStart announces a chunked transmission for one message.
	KindChunkStart

	// KindJSONChunk carries one fragment of a chunked payload.
	KindJSONChunk

	// KindChunkEnd signals that all fragments for a message were sent.
	KindChunkEnd

	// KindStreamEnd is the terminal sentinel for the whole stream.
	// It carries no payload and is never merged into the conversation.
	KindStreamEnd
)

// String returns the wire name of the frame kind.
func (k FrameKind) String() string {
	switch k {
	case KindChunkStart:
		return TypeChunkStart
	case KindJSONChunk:
		return TypeJSONChunk
	case KindChunkEnd:
		return TypeChunkEnd
	case KindStreamEnd:
		return TypeStreamEnd
	default:
		return "message"
	}
}

// Wire values of the "type" field for chunk-protocol frames.
const (
	TypeChunkStart = "chunk_start"
	TypeJSONChunk  = "json_chunk"
	TypeChunkEnd   = "chunk_end"
	TypeStreamEnd  = "stream_end"
)

// =============================================================================
// FRAME
// =============================================================================

// Frame is one decoded JSON object from a single line of the stream.
//
// Only the fields of the chunk protocol contract are decoded eagerly;
// for KindMessage frames the full line is retained in Raw so the merge
// step can unmarshal the complete message payload.
type Frame struct {
	// Type is the raw "type" field from the wire.
	Type string `json:"type"`

	// MessageID identifies the logical message this frame belongs to.
	// Required on all chunk-protocol frames and on message frames.
	MessageID string `json:"message_id"`

	// TotalChunks is the announced fragment count (chunk_start, and the
	// server also repeats it on every json_chunk).
	TotalChunks int `json:"total_chunks,omitempty"`

	// ChunkIndex is the zero-based position of this fragment (json_chunk).
	ChunkIndex int `json:"chunk_index,omitempty"`

	// ChunkData is the payload fragment (json_chunk).
	ChunkData string `json:"chunk_data,omitempty"`

	// OriginalType is the payload type being split (chunk_start, informational).
	OriginalType string `json:"original_type,omitempty"`

	// Raw is the complete JSON line the frame was decoded from.
	Raw json.RawMessage `json:"-"`

	// Timestamp is when the frame was decoded (or reassembled).
	Timestamp time.Time `json:"-"`
}

// Kind maps the wire type to the closed frame-kind enum.
// Every type that is not a chunk-protocol marker is a message frame,
// whatever its concrete type string (assistant, tool_call, error, ...).
func (f *Frame) Kind() FrameKind {
	switch f.Type {
	case TypeChunkStart:
		return KindChunkStart
	case TypeJSONChunk:
		return KindJSONChunk
	case TypeChunkEnd:
		return KindChunkEnd
	case TypeStreamEnd:
		return KindStreamEnd
	default:
		return KindMessage
	}
}

// IsChunkProtocol reports whether the frame is part of the chunk
// transport protocol (and therefore routed to the Reassembler rather
// than merged directly).
func (f *Frame) IsChunkProtocol() bool {
	switch f.Kind() {
	case KindChunkStart, KindJSONChunk, KindChunkEnd:
		return true
	default:
		return false
	}
}

// ParseFrame decodes one NDJSON line into a Frame.
// The original line is retained in Raw for downstream payload decoding.
func ParseFrame(line []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return nil, err
	}
	// Copy: the decode buffer backing the line is reused between reads.
	f.Raw = append(json.RawMessage(nil), line...)
	f.Timestamp = time.Now()
	return &f, nil
}
