package shardmaperr

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
)

func TestErrorFormatting(t *testing.T) {
	err := New(CategoryRangeShardMap, CodeMappingRangeAlreadyMapped, "range overlaps an existing mapping")
	if got, want := err.Error(), "RangeShardMap/MappingRangeAlreadyMapped: range overlaps an existing mapping"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	wrapped := Wrap(CategoryGeneral, CodeStorageOperationFailure, "insert failed", fmt.Errorf("disk full"))
	if wrapped.Unwrap() == nil {
		t.Errorf("expected Unwrap() to return the wrapped cause")
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", New(CategoryListShardMap, CodeMappingIsNotOffline, "must take offline first"))
	if !HasCode(err, CodeMappingIsNotOffline) {
		t.Errorf("expected HasCode to see through fmt.Errorf wrapping")
	}
	if HasCode(err, CodeVersionMismatch) {
		t.Errorf("expected HasCode to report false for an unrelated code")
	}
}

func TestErrorsIsMatchesOnCategoryAndCode(t *testing.T) {
	a := New(CategoryShardMapManager, CodeShardDoesNotExist, "shard 7 not found")
	b := New(CategoryShardMapManager, CodeShardDoesNotExist, "")
	if !errors.Is(a, b) {
		t.Errorf("expected errors with matching category/code to satisfy errors.Is regardless of message")
	}

	c := New(CategoryShardMapManager, CodeShardMapDoesNotExist, "")
	if errors.Is(a, c) {
		t.Errorf("expected errors with differing codes to not satisfy errors.Is")
	}
}

func TestIsTransientSqliteBusy(t *testing.T) {
	err := sqlite3.Error{Code: sqlite3.ErrBusy}
	if !IsTransient(err) {
		t.Errorf("expected SQLITE_BUSY to classify as transient")
	}
}

func TestIsTransientSqliteConstraint(t *testing.T) {
	err := sqlite3.Error{Code: sqlite3.ErrConstraint}
	if IsTransient(err) {
		t.Errorf("expected SQLITE_CONSTRAINT to classify as permanent")
	}
}

func TestIsTransientBadConn(t *testing.T) {
	if !IsTransient(driver.ErrBadConn) {
		t.Errorf("expected driver.ErrBadConn to classify as transient")
	}
}

func TestIsTransientContextCancellation(t *testing.T) {
	if IsTransient(context.Canceled) {
		t.Errorf("expected context.Canceled to classify as permanent (caller gave up, not a storage fault)")
	}
}

func TestIsTransientShardMapErrorDelegatesToCause(t *testing.T) {
	transientCause := sqlite3.Error{Code: sqlite3.ErrLocked}
	wrapped := Wrap(CategoryGeneral, CodeStorageOperationFailure, "update failed", transientCause)
	if !IsTransient(wrapped) {
		t.Errorf("expected a StorageOperationFailure wrapping a transient cause to itself be transient")
	}

	permanentCause := errors.New("constraint violation")
	wrapped2 := Wrap(CategoryGeneral, CodeStorageOperationFailure, "update failed", permanentCause)
	if IsTransient(wrapped2) {
		t.Errorf("expected a StorageOperationFailure wrapping a non-transient cause to be permanent")
	}
}
