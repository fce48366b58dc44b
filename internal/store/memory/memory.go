// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package memory is the in-process session store.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/modelsmith-dev/modelsmith/internal/store"
)

func init() {
	store.RegisterBackend("memory", func(store.Config) (store.SessionStore, error) {
		return New(), nil
	})
}

// Compile-time interface check.
var _ store.SessionStore = (*Store)(nil)

// Store keeps sessions in a map. Records are copied on the way in and out so
// callers never share a *store.Session with the map.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*store.Session
}

func New() *Store {
	return &Store{sessions: make(map[string]*store.Session)}
}

func (s *Store) Get(_ context.Context, id string) (*store.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, store.NotFound(id)
	}
	return sess.Clone(), nil
}

func (s *Store) Put(_ context.Context, session *store.Session) error {
	if err := store.Validate(session); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session.Clone()
	return nil
}

func (s *Store) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *Store) List(_ context.Context) ([]*store.Session, error) {
	s.mu.RLock()
	out := make([]*store.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	s.mu.RUnlock()

	sortSessions(out)
	return out, nil
}

func (s *Store) Close() error { return nil }

func sortSessions(out []*store.Session) {
	slices.SortFunc(out, func(a, b *store.Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
