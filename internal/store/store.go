// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package store holds draft-PR session state between analyst turns.
//
// Losing a record is safe: the next turn for that id starts a new session
// on a new branch. Turns for one id are serialized by the caller, so
// backends only guarantee safety across different ids.
package store

import (
	"context"
	"time"
)

// Session ties successive instructions to one branch and one pull request.
type Session struct {
	ID         string `json:"session_id"`
	Branch     string `json:"branch"`
	BaseBranch string `json:"base_branch"`
	// PRNumber is zero until the draft pull request exists.
	PRNumber int    `json:"pr_number,omitempty"`
	PRURL    string `json:"pr_url,omitempty"`
	// OriginalPrompt is the first turn's instruction. Later turns never
	// overwrite it; the final PR title summarizes the whole session.
	OriginalPrompt string `json:"original_prompt"`
	// Committed is set once the branch carries a modelsmith commit, so a
	// draft PR that failed to open is retried on a later turn.
	Committed bool      `json:"committed"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPR reports whether the session's draft pull request has been opened.
func (s *Session) HasPR() bool {
	return s != nil && s.PRNumber > 0
}

// Clone returns a copy that shares nothing with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// SessionStore maps session ids to live sessions. Put replaces the whole
// record. Get of an unknown id returns a not-found error. Remove of an
// unknown id is not an error.
type SessionStore interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, session *Session) error
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Session, error)
	Close() error
}
