// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package store

import (
	"slices"
	"sync"

	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// DefaultBackend is used when Config.Backend is empty.
const DefaultBackend = "memory"

// Config selects and parameterizes a backend.
type Config struct {
	Backend string
	// Path is the database file for file-backed stores.
	Path string
}

// Factory opens a SessionStore for a backend.
type Factory func(cfg Config) (SessionStore, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterBackend registers a named backend. Backend packages call this from
// init(). This function is goroutine-safe.
func RegisterBackend(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

// Backends lists registered backend names, sorted.
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Open creates the SessionStore for cfg.Backend.
func Open(cfg Config) (SessionStore, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = DefaultBackend
	}

	factoriesMu.RLock()
	factory, ok := factories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, mserr.Errorf(mserr.CodeStoreBackendUnsupported, "unsupported storage backend: %q", backend)
	}

	return factory(cfg)
}

// NotFound builds the error every backend returns for an unknown id.
func NotFound(id string) error {
	return mserr.New(mserr.CodeStoreSessionGetNotFound, "session not found: "+id, mserr.FieldSessionID(id))
}

// Validate checks the fields every backend requires on Put.
func Validate(s *Session) error {
	switch {
	case s == nil:
		return mserr.New(mserr.CodeStoreInvalidInput, "session is nil")
	case s.ID == "":
		return mserr.New(mserr.CodeStoreInvalidInput, "session id is required")
	case s.Branch == "":
		return mserr.New(mserr.CodeStoreInvalidInput, "session branch is required", mserr.FieldSessionID(s.ID))
	}
	return nil
}
