// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sage provides the HTTP client for communicating with the Sage
// multi-agent chat server.
//
// This package implements the streaming session client: it opens the
// NDJSON stream endpoint, runs the decode → reassemble → merge pipeline
// over the response body, and exposes the session lifecycle through
// callbacks. It also covers the non-streaming collaborator calls
// (health, agent listing, session interrupt).
//
// # Key Types
//
//   - Client: HTTP client with typed errors and retry for non-streaming calls
//   - StreamController: one streaming session's lifecycle (start/stop/callbacks)
//   - StreamRequest: the chat request payload for /api/stream
//
// # Usage
//
//	client := sage.NewClient()
//	ctrl := sage.NewStreamController(client, conv, sage.Callbacks{
//	    OnMessage:  func(msg *model.Message, appended bool) { ... },
//	    OnComplete: func() { ... },
//	    OnError:    func(err error) { ... },
//	})
//	go ctrl.Run(context.Background(), req)
//	...
//	ctrl.Stop("user pressed esc") // abort, never reported as an error
package sage
