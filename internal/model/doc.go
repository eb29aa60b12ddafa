// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types used throughout the application
// for representing chat sessions and the messages the Sage server streams
// into them.
//
// # Key Types
//
//   - Conversation: Insertion-ordered message list with identity-based upsert
//   - Message: Single message with role, content, timestamp, and optional tool calls
//   - Role: Message role enumeration (user, assistant, system, tool)
//
// # Usage
//
// Create a conversation and fold an incoming stream frame into it:
//
//	conv := model.NewConversation()
//	msg, err := model.FromFrame(frame)
//	if err == nil {
//	    appended := conv.Apply(msg)
//	    _ = appended // true when a brand-new message was added
//	}
package model
