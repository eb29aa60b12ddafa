// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol implements the Sage server's NDJSON stream protocol.
package protocol

import (
	"bytes"
	"strings"
)

// =============================================================================
// DECODE ERROR
// =============================================================================

// DecodeError reports one line that could not be parsed as JSON.
// Decode errors are non-fatal: the line is dropped and the stream
// continues, so one malformed frame never loses the conversation.
type DecodeError struct {
	Line  string // Offending line, truncated for diagnostics
	Cause error
}

func (e *DecodeError) Error() string {
	return "malformed stream line: " + e.Cause.Error()
}

func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// =============================================================================
// FRAME DECODER
// =============================================================================

// Decoder turns successive byte chunks from a streaming response body
// into complete newline-delimited JSON frames.
//
// A partial trailing line is retained across Feed calls so that frames
// split across read boundaries are reassembled correctly. The decoder
// holds no other state and performs no I/O itself.
type Decoder struct {
	// buf holds the trailing partial line from the previous Feed.
	buf bytes.Buffer

	// onError, if set, receives non-fatal per-line decode errors.
	onError func(*DecodeError)
}

// NewDecoder creates a frame decoder. onError may be nil; it receives
// one DecodeError per malformed line and must not block.
func NewDecoder(onError func(*DecodeError)) *Decoder {
	return &Decoder{onError: onError}
}

// Feed appends a byte chunk and returns all frames completed by it, in
// arrival order. Malformed lines are reported through the error hook
// and skipped; they never abort the stream.
func (d *Decoder) Feed(chunk []byte) []*Frame {
	d.buf.Write(chunk)

	data := d.buf.Bytes()
	last := bytes.LastIndexByte(data, '\n')
	if last < 0 {
		// No complete line yet; keep accumulating.
		return nil
	}

	// Parse the completed region before touching the buffer: complete
	// aliases the buffer's backing array, so rewriting the trailing
	// partial line first would overwrite the lines being parsed.
	complete := data[:last]
	var frames []*Frame
	for _, line := range bytes.Split(complete, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		frame, err := ParseFrame(line)
		if err != nil {
			d.reportError(line, err)
			continue
		}
		frames = append(frames, frame)
	}

	rest := append([]byte(nil), data[last+1:]...)
	d.buf.Reset()
	d.buf.Write(rest)
	return frames
}

// Close discards any buffered partial line. A trailing line with no
// terminating newline is not a valid frame and must not be parsed.
// Returns the number of bytes discarded (for diagnostics).
func (d *Decoder) Close() int {
	n := d.buf.Len()
	d.buf.Reset()
	return n
}

// Pending returns the size of the buffered partial line.
func (d *Decoder) Pending() int {
	return d.buf.Len()
}

// reportError forwards a decode error to the hook, truncating the
// offending line so diagnostics stay readable.
func (d *Decoder) reportError(line []byte, err error) {
	if d.onError == nil {
		return
	}
	const maxDiag = 200
	diag := string(line)
	if len(diag) > maxDiag {
		diag = strings.ToValidUTF8(diag[:maxDiag], "") + "..."
	}
	d.onError(&DecodeError{Line: diag, Cause: err})
}
