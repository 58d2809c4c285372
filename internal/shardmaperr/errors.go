// Package shardmaperr defines the error taxonomy shared across the catalog
// store, operation engine, and shard-map façade (spec.md §7), plus the
// classifier that decides whether a given storage-layer error is transient
// (worth a retry/backoff pass) or permanent.
package shardmaperr

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/mattn/go-sqlite3"
)

// Category groups error Codes by the subsystem that raised them, matching
// spec.md §7's category list.
type Category int

const (
	CategoryShardMapManager Category = iota
	CategoryListShardMap
	CategoryRangeShardMap
	CategoryRecovery
	CategoryGeneral
)

func (c Category) String() string {
	switch c {
	case CategoryShardMapManager:
		return "ShardMapManager"
	case CategoryListShardMap:
		return "ListShardMap"
	case CategoryRangeShardMap:
		return "RangeShardMap"
	case CategoryRecovery:
		return "Recovery"
	case CategoryGeneral:
		return "General"
	default:
		return fmt.Sprintf("Category(%d)", int(c))
	}
}

// Code is a specific, stable error identifier within a Category.
type Code int

const (
	CodeShardMapAlreadyExists Code = iota
	CodeShardMapDoesNotExist
	CodeShardDoesNotExist
	CodeShardLocationAlreadyExists
	CodeMappingDoesNotExist
	CodeMappingIsNotOffline
	CodeMappingIsOffline
	CodeMappingAlreadyLocked
	CodeMappingLockOwnerIDDoesNotMatch
	CodeMappingRangeAlreadyMapped
	CodeMappingPointAlreadyMapped
	CodeVersionMismatch
	CodeStorageOperationFailure
	CodeRecoveryInProgress
	CodeInvalidArgument
	CodeConnectionKilled
)

func (c Code) String() string {
	names := map[Code]string{
		CodeShardMapAlreadyExists:          "ShardMapAlreadyExists",
		CodeShardMapDoesNotExist:           "ShardMapDoesNotExist",
		CodeShardDoesNotExist:              "ShardDoesNotExist",
		CodeShardLocationAlreadyExists:     "ShardLocationAlreadyExists",
		CodeMappingDoesNotExist:            "MappingDoesNotExist",
		CodeMappingIsNotOffline:            "MappingIsNotOffline",
		CodeMappingIsOffline:               "MappingIsOffline",
		CodeMappingAlreadyLocked:           "MappingAlreadyLocked",
		CodeMappingLockOwnerIDDoesNotMatch: "MappingLockOwnerIdDoesNotMatch",
		CodeMappingRangeAlreadyMapped:      "MappingRangeAlreadyMapped",
		CodeMappingPointAlreadyMapped:      "MappingPointAlreadyMapped",
		CodeVersionMismatch:                "VersionMismatch",
		CodeStorageOperationFailure:        "StorageOperationFailure",
		CodeRecoveryInProgress:             "RecoveryInProgress",
		CodeInvalidArgument:                "InvalidArgument",
		CodeConnectionKilled:               "ConnectionKilled",
	}
	if name, ok := names[c]; ok {
		return name
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// ShardMapError is the concrete error type returned across package
// boundaries. Category and Code are meant to be switched on by callers;
// the message is for logs and humans.
type ShardMapError struct {
	Category Category
	Code     Code
	Message  string
	Cause    error
}

func (e *ShardMapError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s/%s: %s", e.Category, e.Code, e.Message)
}

func (e *ShardMapError) Unwrap() error { return e.Cause }

// New constructs a ShardMapError with no wrapped cause.
func New(cat Category, code Code, message string) *ShardMapError {
	return &ShardMapError{Category: cat, Code: code, Message: message}
}

// Wrap constructs a ShardMapError carrying an underlying cause.
func Wrap(cat Category, code Code, message string, cause error) *ShardMapError {
	return &ShardMapError{Category: cat, Code: code, Message: message, Cause: cause}
}

// Is supports errors.Is by matching on Category+Code, ignoring Message and
// Cause, so callers can write errors.Is(err, shardmaperr.New(cat, code, "")).
func (e *ShardMapError) Is(target error) bool {
	var other *ShardMapError
	if !errors.As(target, &other) {
		return false
	}
	return e.Category == other.Category && e.Code == other.Code
}

// HasCode reports whether err is (or wraps) a ShardMapError with the given
// code, regardless of category.
func HasCode(err error, code Code) bool {
	var smErr *ShardMapError
	if errors.As(err, &smErr) {
		return smErr.Code == code
	}
	return false
}

// ErrInvalidArgument is a ready-made General/InvalidArgument error for
// façade-boundary validation failures (SPEC_FULL Open Question #2).
var ErrInvalidArgument = New(CategoryGeneral, CodeInvalidArgument, "invalid argument")

// ErrConnectionKilled is returned to callers using a connection opened under
// a mapping generation that has since gone offline (spec.md §4.8).
var ErrConnectionKilled = New(CategoryGeneral, CodeConnectionKilled, "connection killed: mapping went offline")

// IsTransient classifies err as worth retrying under the backoff policy
// (spec.md §4.7). It recognizes sqlite3 busy/locked errors, network errors
// (including context.DeadlineExceeded, which satisfies net.Error) and
// driver.ErrBadConn; context.Canceled is permanent. Everything else —
// including every *ShardMapError except CodeStorageOperationFailure — as
// permanent.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	var smErr *ShardMapError
	if errors.As(err, &smErr) {
		if smErr.Code == CodeStorageOperationFailure {
			return smErr.Cause != nil && IsTransient(smErr.Cause)
		}
		return false
	}

	return false
}
