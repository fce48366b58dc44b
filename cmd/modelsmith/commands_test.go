// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelsmith-dev/modelsmith/internal/server"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// fakeAPI serves canned replies and records request bodies by path.
type fakeAPI struct {
	t      *testing.T
	routes map[string]any
	bodies map[string][]byte
}

func newFakeAPI(t *testing.T, routes map[string]any) (*fakeAPI, string) {
	t.Helper()
	f := &fakeAPI{t: t, routes: routes, bodies: map[string][]byte{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	reply, ok := f.routes[key]
	if !ok {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"status":404,"detail":"no route","errors":[{"location":"code","value":"agent.session.not_found"}]}`))
		return
	}
	if r.Body != nil {
		var raw json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&raw); err == nil {
			f.bodies[key] = raw
		}
	}
	w.Header().Set("Content-Type", "application/json")
	require.NoError(f.t, json.NewEncoder(w).Encode(reply))
}

func (f *fakeAPI) body(key string, dest any) {
	f.t.Helper()
	require.Contains(f.t, f.bodies, key)
	require.NoError(f.t, json.Unmarshal(f.bodies[key], dest))
}

func TestRequestCommand(t *testing.T) {
	api, addr := newFakeAPI(t, map[string]any{
		"POST /requests": server.TurnReply{
			Message:      "Opened draft PR #7",
			SessionID:    "s-1",
			Branch:       "modelsmith/s-1",
			PRNumber:     7,
			Updated:      []string{"models/orders.sql"},
			LintWarnings: map[string]string{"models/b.sql": "L001", "models/a.sql": "L003"},
		},
	})

	out, _, err := runCLI(t, "request", "--address", addr, "--file", "models/orders.sql", "add", "a", "column")
	require.NoError(t, err)

	var req server.TurnRequest
	api.body("POST /requests", &req)
	assert.Equal(t, "add a column", req.AnalystPrompt)
	assert.Equal(t, []string{"models/orders.sql"}, req.FileNames)
	assert.Empty(t, req.SessionID)

	assert.Equal(t, "Opened draft PR #7\n"+
		"lint warning models/a.sql: L003\n"+
		"lint warning models/b.sql: L001\n"+
		"Continue with: modelsmith request --session s-1 \"...\"\n", out)
}

func TestRequestCommand_Finalized(t *testing.T) {
	api, addr := newFakeAPI(t, map[string]any{
		"POST /requests": server.TurnReply{Message: "PR #7 is ready for review", SessionID: "s-1", Finalized: true},
	})

	out, _, err := runCLI(t, "request", "--address", addr, "--session", "s-1", "looks good")
	require.NoError(t, err)
	assert.Equal(t, "PR #7 is ready for review\n", out)

	var req server.TurnRequest
	api.body("POST /requests", &req)
	assert.Equal(t, "s-1", req.SessionID)
}

func TestRequestCommand_ServerError(t *testing.T) {
	_, addr := newFakeAPI(t, map[string]any{})

	_, _, err := runCLI(t, "request", "--address", addr, "edit orders.sql")
	require.Error(t, err)
	assert.True(t, mserr.HasCode(err, mserr.CodeCLIRequestFailure))
	assert.Contains(t, err.Error(), "no route")
}

func TestRequestCommand_BlankPrompt(t *testing.T) {
	_, _, err := runCLI(t, "request", "--address", "127.0.0.1:1", "  ")
	require.Error(t, err)
	assert.True(t, mserr.HasCode(err, mserr.CodeCLIInputInvalid))
}

func TestTranslateCommand(t *testing.T) {
	api, addr := newFakeAPI(t, map[string]any{
		"POST /translate-and-forward": server.TranslateReply{
			TurnReply: server.TurnReply{Message: "Updated 1 file", SessionID: "s-2"},
			Files:     []string{"orders.sql", "orders.yml"},
			Prompt:    "add a total_value column",
		},
	})

	out, _, err := runCLI(t, "translate", "--address", addr, "--session", "s-2", "we need order totals")
	require.NoError(t, err)

	var req server.TranslateRequest
	api.body("POST /translate-and-forward", &req)
	assert.Equal(t, server.TranslateRequest{Prompt: "we need order totals", SessionID: "s-2"}, req)

	assert.True(t, strings.HasPrefix(out, "Files: orders.sql, orders.yml\nInstruction: add a total_value column\nUpdated 1 file\n"), out)
}

func TestSessionsCommand(t *testing.T) {
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, addr := newFakeAPI(t, map[string]any{
		"GET /api/v1/sessions": map[string]any{"sessions": []server.SessionView{
			{ID: "s-1", Branch: "modelsmith/s-1", PRNumber: 7, UpdatedAt: updated},
			{ID: "s-2", Branch: "modelsmith/s-2", UpdatedAt: updated},
		}},
	})

	out, _, err := runCLI(t, "sessions", "--address", addr)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"ID", "BRANCH", "PR", "UPDATED"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"s-1", "modelsmith/s-1", "#7", "2026-03-01T12:00:00Z"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"s-2", "modelsmith/s-2", "-", "2026-03-01T12:00:00Z"}, strings.Fields(lines[2]))
}

func TestSessionsCommand_Empty(t *testing.T) {
	_, addr := newFakeAPI(t, map[string]any{
		"GET /api/v1/sessions": map[string]any{"sessions": []server.SessionView{}},
	})

	out, _, err := runCLI(t, "sessions", "--address", addr)
	require.NoError(t, err)
	assert.Equal(t, "No open sessions\n", out)
}

func TestSessionsShowCommand(t *testing.T) {
	_, addr := newFakeAPI(t, map[string]any{
		"GET /api/v1/sessions/s-1": server.SessionView{
			ID:             "s-1",
			Branch:         "modelsmith/s-1",
			BaseBranch:     "main",
			PRNumber:       7,
			PRURL:          "https://github.com/acme/analytics/pull/7",
			OriginalPrompt: "add a column",
			UpdatedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
	})

	out, _, err := runCLI(t, "sessions", "show", "--address", addr, "s-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Branch:   modelsmith/s-1 (from main)\n")
	assert.Contains(t, out, "Draft PR: #7 https://github.com/acme/analytics/pull/7\n")
	assert.Contains(t, out, "Prompt:   add a column\n")
}

func TestSessionsShowCommand_NotFound(t *testing.T) {
	_, addr := newFakeAPI(t, map[string]any{})

	_, _, err := runCLI(t, "sessions", "show", "--address", addr, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent.session.not_found")
}
