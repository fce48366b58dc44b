// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package sqlite is a file-backed session store. Several server processes on
// one host can share a database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/modelsmith-dev/modelsmith/internal/store"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// Compile-time interface check.
var _ store.SessionStore = (*SessionStore)(nil)

// SessionStore implements store.SessionStore backed by SQLite.
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore opens (or creates) a SQLite database at dbPath and
// initialises the sessions table.
func NewSessionStore(dbPath string) (*SessionStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, mserr.Wrap(err, mserr.CodeStoreDatabaseFailure, "opening sqlite db")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, mserr.Wrap(err, mserr.CodeStoreDatabaseFailure, "pinging sqlite db")
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, mserr.Wrap(err, mserr.CodeStoreDatabaseFailure, "migrating sqlite db")
	}

	return &SessionStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	branch          TEXT NOT NULL,
	base_branch     TEXT NOT NULL DEFAULT '',
	pr_number       INTEGER NOT NULL DEFAULT 0,
	pr_url          TEXT NOT NULL DEFAULT '',
	original_prompt TEXT NOT NULL DEFAULT '',
	committed       INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL,
	updated_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
`
	if _, err := db.Exec(ddl); err != nil {
		return err
	}

	// Databases created before the committed column.
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('sessions') WHERE name = 'committed'`).Scan(&n); err != nil {
		return err
	}
	if n == 0 {
		if _, err := db.Exec(`ALTER TABLE sessions ADD COLUMN committed INTEGER NOT NULL DEFAULT 0`); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

const selectColumns = `SELECT id, branch, base_branch, pr_number, pr_url, original_prompt, committed, created_at, updated_at FROM sessions`

func (s *SessionStore) Get(ctx context.Context, id string) (*store.Session, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound(id)
	}
	if err != nil {
		return nil, mserr.Wrap(err, mserr.CodeStoreDatabaseFailure, "getting session", mserr.FieldSessionID(id))
	}
	return sess, nil
}

// Put inserts or replaces every column of the record in one statement.
func (s *SessionStore) Put(ctx context.Context, session *store.Session) error {
	if err := store.Validate(session); err != nil {
		return err
	}

	const q = `INSERT INTO sessions (id, branch, base_branch, pr_number, pr_url, original_prompt, committed, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	branch = excluded.branch,
	base_branch = excluded.base_branch,
	pr_number = excluded.pr_number,
	pr_url = excluded.pr_url,
	original_prompt = excluded.original_prompt,
	committed = excluded.committed,
	created_at = excluded.created_at,
	updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, q,
		session.ID,
		session.Branch,
		session.BaseBranch,
		session.PRNumber,
		session.PRURL,
		session.OriginalPrompt,
		session.Committed,
		formatTime(session.CreatedAt),
		formatTime(session.UpdatedAt),
	)
	if err != nil {
		return mserr.Wrap(err, mserr.CodeStoreDatabaseFailure, "putting session", mserr.FieldSessionID(session.ID))
	}
	return nil
}

func (s *SessionStore) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return mserr.Wrap(err, mserr.CodeStoreDatabaseFailure, "removing session", mserr.FieldSessionID(id))
	}
	return nil
}

func (s *SessionStore) List(ctx context.Context) ([]*store.Session, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at, id`)
	if err != nil {
		return nil, mserr.Wrap(err, mserr.CodeStoreDatabaseFailure, "listing sessions")
	}
	defer rows.Close()

	var out []*store.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, mserr.Wrap(err, mserr.CodeStoreDatabaseFailure, "scanning session")
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, mserr.Wrap(err, mserr.CodeStoreDatabaseFailure, "iterating sessions")
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*store.Session, error) {
	var sess store.Session
	var createdAt, updatedAt string
	err := row.Scan(
		&sess.ID,
		&sess.Branch,
		&sess.BaseBranch,
		&sess.PRNumber,
		&sess.PRURL,
		&sess.OriginalPrompt,
		&sess.Committed,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	sess.CreatedAt = parseTime(createdAt)
	sess.UpdatedAt = parseTime(updatedAt)
	return &sess, nil
}

// formatTime serialises a time for storage.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
