// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence for sagechat.
//
// Conversations and their transcripts are stored in a local SQLite
// database (~/.sagechat/conversations.db by default) using the pure Go
// modernc.org/sqlite driver, so no cgo or system sqlite is required.
//
// # Key Types
//
//   - ConversationStore: SQLite-backed save/load/list/search/delete
//   - StoreError: typed storage failures with a not-found sentinel
//
// # Usage
//
// Open the default store and save a conversation:
//
//	store, err := storage.NewConversationStore()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	if err := store.Save(conv); err != nil {
//	    log.Printf("save failed: %v", err)
//	}
//
// Retention is enforced on save: once MaxConversations is exceeded the
// oldest conversations (by update time) are pruned.
package storage
