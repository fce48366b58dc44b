// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package server

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// Client identifies the caller behind a bearer token.
type Client struct {
	Name string
}

// TokenValidator resolves a bearer token to a Client. Failures carry
// CodeServerAuthUnauthorized or CodeServerAuthForbidden.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Client, error)
}

// Token is one configured API token.
type Token struct {
	Name  string
	Token string
}

// StaticTokens validates against a fixed token list. Only SHA-256 digests
// are kept.
type StaticTokens struct {
	digests [][32]byte
	names   []string
}

// NewStaticTokens hashes tokens. Entries with an empty token are rejected.
func NewStaticTokens(tokens []Token) (*StaticTokens, error) {
	v := &StaticTokens{}
	for i, t := range tokens {
		if t.Token == "" {
			return nil, mserr.Errorf(mserr.CodeServerConfigInvalid, "auth token %d (%s) is empty", i, t.Name)
		}
		v.digests = append(v.digests, sha256.Sum256([]byte(t.Token)))
		v.names = append(v.names, t.Name)
	}
	return v, nil
}

// ValidateToken compares against every digest so timing does not reveal
// which entry matched.
func (v *StaticTokens) ValidateToken(_ context.Context, token string) (*Client, error) {
	candidate := sha256.Sum256([]byte(token))
	match := -1
	for i, d := range v.digests {
		if subtle.ConstantTimeCompare(d[:], candidate[:]) == 1 {
			match = i
		}
	}
	if match < 0 {
		return nil, mserr.New(mserr.CodeServerAuthUnauthorized, "invalid token")
	}
	return &Client{Name: v.names[match]}, nil
}

type clientKey struct{}

// ClientFrom returns the authenticated caller, if any.
func ClientFrom(ctx context.Context) (*Client, bool) {
	c, ok := ctx.Value(clientKey{}).(*Client)
	return c, ok
}

// publicPaths never require a token.
var publicPaths = map[string]bool{
	"/health":       true,
	"/openapi.json": true,
	"/openapi.yaml": true,
	"/docs":         true,
}

// authMiddleware requires "Authorization: Bearer <token>" on every
// non-public path. A nil validator disables auth.
func authMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if validator == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				writeProblem(w, mserr.New(mserr.CodeServerAuthUnauthorized, "missing bearer token"))
				return
			}

			client, err := validator.ValidateToken(r.Context(), strings.TrimSpace(token))
			if err != nil {
				slog.Info("request rejected", "path", r.URL.Path, "code", mserr.CodeOf(err))
				if !mserr.IsUnauthorized(err) {
					err = mserr.New(mserr.CodeServerAuthUnauthorized, "validating token: "+err.Error())
				}
				writeProblem(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientKey{}, client)))
		})
	}
}
