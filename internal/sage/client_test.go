// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package sage provides the HTTP client for the Sage multi-agent chat server.
package sage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/jeranaias/sagechat-tui/internal/model"
)

// newTestClient builds a client against a test server with a limiter
// permissive enough for back-to-back calls.
func newTestClient(serverURL string) *Client {
	return NewClientWithConfig(&ClientConfig{
		BaseURL:        serverURL,
		InterruptRate:  rate.Limit(1000),
		InterruptBurst: 1000,
	})
}

// =============================================================================
// HEALTH TESTS
// =============================================================================

func TestClient_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/health", r.URL.Path)
		json.NewEncoder(w).Encode(SystemStatus{
			Status:      "ok",
			ServiceName: "SageStreamService",
			ToolsCount:  12,
		})
	}))
	defer srv.Close()

	status, err := newTestClient(srv.URL).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, 12, status.ToolsCount)
}

func TestClient_HealthServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // Closed immediately: connection refused.

	_, err := newTestClient(srv.URL).Health(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

// =============================================================================
// TOOL LISTING TESTS
// =============================================================================

func TestClient_ListTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tools", r.URL.Path)
		json.NewEncoder(w).Encode([]ToolInfo{
			{Name: "file_search", Type: "basic", Source: "builtin"},
			{Name: "sql_query", Type: "mcp", Source: "mcp://db"},
		})
	}))
	defer srv.Close()

	tools, err := newTestClient(srv.URL).ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "file_search", tools[0].Name)
}

// =============================================================================
// INTERRUPT TESTS
// =============================================================================

func TestClient_Interrupt(t *testing.T) {
	var gotPath string
	var gotReq InterruptRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Interrupt(context.Background(), "sess-1", "user stopped generation")
	require.NoError(t, err)
	assert.Equal(t, "/api/sessions/sess-1/interrupt", gotPath)
	assert.Equal(t, "user stopped generation", gotReq.Message)
}

func TestClient_InterruptUnknownSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Interrupt(context.Background(), "ghost", "stop")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestClient_InterruptRateLimited(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClientWithConfig(&ClientConfig{
		BaseURL:        srv.URL,
		InterruptRate:  rate.Limit(0.001),
		InterruptBurst: 1,
	})

	require.NoError(t, client.Interrupt(context.Background(), "s", "stop"))
	// Second call lands inside the limiter window and is suppressed
	// locally without touching the server.
	err := client.Interrupt(context.Background(), "s", "stop")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestClient_InterruptRequiresSessionID(t *testing.T) {
	err := newTestClient("http://127.0.0.1:0").Interrupt(context.Background(), "", "stop")
	assert.Error(t, err)
}

// =============================================================================
// REQUEST CONVERSION TESTS
// =============================================================================

func TestChatMessagesFrom_SkipsToolAndErrorMessages(t *testing.T) {
	conv := model.NewConversation()
	conv.AddUserMessage("question")
	conv.Apply(&model.Message{ID: "a1", Role: model.RoleAssistant, Content: "answer"})
	conv.Apply(&model.Message{ID: "t1", Role: model.RoleTool, Content: "tool output", ToolCallID: "c1"})
	conv.AddErrorMessage("stream failed")

	messages := ChatMessagesFrom(conv)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "assistant", messages[1].Role)
}

func TestNewSessionID_Unique(t *testing.T) {
	assert.NotEqual(t, NewSessionID(), NewSessionID())
}
