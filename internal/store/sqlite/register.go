// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package sqlite

import (
	"os"
	"path/filepath"

	"github.com/modelsmith-dev/modelsmith/internal/store"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// DefaultFile is the database file name used when Config.Path is a directory
// or empty.
const DefaultFile = "sessions.db"

func init() {
	store.RegisterBackend("sqlite", open)
}

func open(cfg store.Config) (store.SessionStore, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultFile
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, DefaultFile)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, mserr.Wrap(err, mserr.CodeStoreDatabaseFailure, "creating data directory")
	}
	return NewSessionStore(path)
}
