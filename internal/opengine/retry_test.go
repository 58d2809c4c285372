package opengine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"
)

func TestDoRetriesTransientErrors(t *testing.T) {
	attempts := 0
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

	err := Do(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return sqlite3.Error{Code: sqlite3.ErrBusy}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	attempts := 0
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond}
	permanent := errors.New("not found")

	err := Do(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("expected the permanent error back, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for a permanent error, got %d", attempts)
	}
}

func TestDoDefaultPolicyTriesOnce(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Policy{}, func(ctx context.Context) error {
		attempts++
		return sqlite3.Error{Code: sqlite3.ErrBusy}
	})
	if err == nil {
		t.Fatalf("expected an error from the default no-retry policy")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt under the default policy, got %d", attempts)
	}
}
