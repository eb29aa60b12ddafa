// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"
	"testing"
	"time"
)

func TestCoalescerFlushOnBatchSize(t *testing.T) {
	c := NewUpdateCoalescer()

	// Just under the batch threshold, right after a flush: not due yet.
	c.Flush()
	for i := 0; i < 14; i++ {
		c.Note()
	}
	if c.Pending() >= 15 && c.ShouldFlush() {
		t.Fatal("unexpected pending count")
	}

	c.Note()
	if !c.ShouldFlush() {
		t.Error("batch threshold reached, flush should be due")
	}
	if got := c.Flush(); got != 15 {
		t.Errorf("Flush() = %d, want 15", got)
	}
	if c.Pending() != 0 {
		t.Errorf("pending after flush = %d, want 0", c.Pending())
	}
}

func TestCoalescerFlushOnInterval(t *testing.T) {
	c := NewUpdateCoalescer()
	c.Flush()

	c.Note()
	time.Sleep(50 * time.Millisecond)
	if !c.ShouldFlush() {
		t.Error("interval elapsed with pending update, flush should be due")
	}
}

func TestCoalescerNothingPending(t *testing.T) {
	c := NewUpdateCoalescer()
	time.Sleep(50 * time.Millisecond)
	if c.ShouldFlush() {
		t.Error("no pending updates, flush should not be due")
	}
	if got := c.Flush(); got != 0 {
		t.Errorf("Flush() = %d, want 0", got)
	}
}

func TestCoalescerReset(t *testing.T) {
	c := NewUpdateCoalescer()
	c.Note()
	c.Note()
	c.Reset()
	if c.Pending() != 0 {
		t.Errorf("pending after reset = %d, want 0", c.Pending())
	}
}

func TestCoalescerConcurrentNotes(t *testing.T) {
	c := NewUpdateCoalescer()
	c.Flush()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Note()
			}
		}()
	}
	wg.Wait()

	if got := c.Flush(); got != 800 {
		t.Errorf("Flush() = %d, want 800", got)
	}
}
