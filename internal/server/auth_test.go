// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelsmith-dev/modelsmith/internal/agent"
	"github.com/modelsmith-dev/modelsmith/internal/server"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

type forbiddingValidator struct{}

func (forbiddingValidator) ValidateToken(context.Context, string) (*server.Client, error) {
	return nil, mserr.New(mserr.CodeServerAuthForbidden, "token revoked")
}

func authedServer(t *testing.T, a *fakeAgent) *server.Server {
	t.Helper()
	tokens, err := server.NewStaticTokens([]server.Token{
		{Name: "analyst-ui", Token: "tok-ui"},
		{Name: "translator", Token: "tok-tr"},
	})
	require.NoError(t, err)
	return newServer(t, server.Config{TokenValidator: tokens}, server.Deps{Agent: a})
}

func postTurn(t *testing.T, srv *server.Server, authorization string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/requests",
		strings.NewReader(`{"session_id":"s1","analyst_prompt":"edit orders.sql"}`))
	req.Header.Set("Content-Type", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestStaticTokens(t *testing.T) {
	v, err := server.NewStaticTokens([]server.Token{{Name: "ui", Token: "secret"}})
	require.NoError(t, err)

	c, err := v.ValidateToken(context.Background(), "secret")
	require.NoError(t, err)
	assert.Equal(t, "ui", c.Name)

	_, err = v.ValidateToken(context.Background(), "secret2")
	assert.True(t, mserr.HasCode(err, mserr.CodeServerAuthUnauthorized))
}

func TestStaticTokens_RejectsEmpty(t *testing.T) {
	_, err := server.NewStaticTokens([]server.Token{{Name: "ui"}})
	require.Error(t, err)
	assert.True(t, mserr.HasCode(err, mserr.CodeServerConfigInvalid))
}

func TestAuth_PublicPathsSkipAuth(t *testing.T) {
	srv := authedServer(t, &fakeAgent{})

	for _, path := range []string{"/health", "/openapi.json"} {
		t.Run(path, func(t *testing.T) {
			w := do(t, srv, http.MethodGet, path, nil)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestAuth_Rejections(t *testing.T) {
	a := &fakeAgent{}
	srv := authedServer(t, a)

	tests := []struct {
		name          string
		authorization string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic tok-ui"},
		{"empty token", "Bearer "},
		{"unknown token", "Bearer tok-other"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postTurn(t, srv, tt.authorization)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
			assert.Equal(t, string(mserr.CodeServerAuthUnauthorized), decode[problemBody](t, w).code())
		})
	}
	assert.Empty(t, a.seen(), "rejected requests must not reach the agent")
}

func TestAuth_ValidTokenReachesHandler(t *testing.T) {
	var caller string
	a := &fakeAgent{fn: func(ctx context.Context, t agent.Turn) (*agent.Reply, error) {
		if c, ok := server.ClientFrom(ctx); ok {
			caller = c.Name
		}
		return &agent.Reply{SessionID: t.SessionID}, nil
	}}
	srv := authedServer(t, a)

	w := postTurn(t, srv, "Bearer tok-tr")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "translator", caller)

	w = postTurn(t, srv, "bearer tok-ui")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_ForbiddenIs403(t *testing.T) {
	srv := newServer(t, server.Config{TokenValidator: forbiddingValidator{}}, server.Deps{})

	w := postTurn(t, srv, "Bearer revoked")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, string(mserr.CodeServerAuthForbidden), decode[problemBody](t, w).code())
}

func TestAuth_DisabledWithoutValidator(t *testing.T) {
	srv := newServer(t, server.Config{}, server.Deps{})

	w := postTurn(t, srv, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
