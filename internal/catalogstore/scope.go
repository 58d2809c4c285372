// Package catalogstore implements the global (GSM) and local (LSM) shard
// catalogs on top of embedded SQLite, plus in-memory stand-ins of the same
// interfaces for fast unit tests. Every catalog mutation runs inside a
// transaction scope so a crash mid-operation leaves the database in one of
// a small number of recognizable states for the recovery scanner
// (internal/opengine) to resume from.
package catalogstore

import (
	"context"
	"database/sql"
	"fmt"
)

// ScopeKind selects the transaction isolation a scope opens, mirroring the
// three access patterns the global and local catalogs need: ScopeNone,
// ScopeReadOnly (a read-only snapshot), and ScopeReadWrite. ScopeNone does
// not skip the transaction: it opens one with default options and commits
// it, exactly as ScopeReadWrite does. Scopes serialize with each other
// because each catalog database uses a single connection (see openSQLite).
type ScopeKind int

const (
	ScopeNone ScopeKind = iota
	ScopeReadOnly
	ScopeReadWrite
)

// transaction runs fn inside a scope of the requested kind against db,
// committing on success and rolling back on error or panic. It is generic
// over the return type so callers get their result back typed, without a
// second round of unwrapping — the same shape
// `jesseduffield-lazydocker`'s vendored sqlite blob-info cache uses for its
// own `transaction[T any]` helper around database/sql.
func transaction[T any](ctx context.Context, db *sql.DB, kind ScopeKind, fn func(*sql.Tx) (T, error)) (T, error) {
	var zero T

	if kind == ScopeNone {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return zero, fmt.Errorf("catalogstore: begin: %w", err)
		}
		result, err := fn(tx)
		if err != nil {
			_ = tx.Rollback()
			return zero, err
		}
		if err := tx.Commit(); err != nil {
			return zero, fmt.Errorf("catalogstore: commit: %w", err)
		}
		return result, nil
	}

	opts := &sql.TxOptions{}
	if kind == ScopeReadOnly {
		opts.ReadOnly = true
	}

	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return zero, fmt.Errorf("catalogstore: begin: %w", err)
	}

	result, err := fn(tx)
	if err != nil {
		_ = tx.Rollback()
		return zero, err
	}
	if err := tx.Commit(); err != nil {
		return zero, fmt.Errorf("catalogstore: commit: %w", err)
	}
	return result, nil
}

// openSQLite opens an embedded SQLite database at path (or ":memory:")
// with the pragma set the catalog relies on: foreign keys enforced, WAL
// journaling so readers don't block the single writer, and a busy timeout
// so concurrent-writer contention surfaces as a retryable SQLITE_BUSY
// instead of an immediate failure.
func openSQLite(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalogstore: open %s: %w", path, err)
	}
	// A single connection keeps BEGIN EXCLUSIVE semantics simple: SQLite
	// only has one writer anyway, and multiple *sql.DB connections each
	// think they can open a write transaction, which just turns into more
	// SQLITE_BUSY retries instead of less.
	db.SetMaxOpenConns(1)
	return db, nil
}
