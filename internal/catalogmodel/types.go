// Package catalogmodel defines the data types stored in the global and
// local shard catalogs: shard maps, shards, mappings, lock tokens, and the
// pending-operation log entries used to recover from a crash mid-commit.
package catalogmodel

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/shardcatalog/internal/keycodec"
)

// ShardMapType distinguishes the two catalog flavors spec.md §3 defines.
type ShardMapType int

const (
	// ShardMapTypeList maps individual key values to shards.
	ShardMapTypeList ShardMapType = iota
	// ShardMapTypeRange maps contiguous key ranges to shards.
	ShardMapTypeRange
)

func (t ShardMapType) String() string {
	switch t {
	case ShardMapTypeList:
		return "list"
	case ShardMapTypeRange:
		return "range"
	default:
		return fmt.Sprintf("ShardMapType(%d)", int(t))
	}
}

// ShardMap is the named catalog of mappings for one key type. It owns no
// mutable state itself — shards and mappings are rows keyed by ShardMapID in
// the catalog store — but callers that hold one in memory after a query
// treat it as a read-only snapshot.
type ShardMap struct {
	ID      uuid.UUID
	Name    string
	Type    ShardMapType
	KeyType keycodec.KeyType
}

// ShardLocation identifies the physical database a shard's data lives in.
// The catalog never connects anywhere itself; it hands this back to callers
// so they can open their own connection (spec.md §6 "the catalog never
// proxies data").
type ShardLocation struct {
	Server   string
	Database string
}

func (l ShardLocation) String() string {
	return fmt.Sprintf("%s/%s", l.Server, l.Database)
}

// ShardStatus is the online/offline flag a shard carries independent of any
// mapping that points at it.
type ShardStatus int

const (
	ShardStatusOnline ShardStatus = iota
	ShardStatusOffline
)

func (s ShardStatus) String() string {
	if s == ShardStatusOffline {
		return "offline"
	}
	return "online"
}

// Shard is a single physical location registered under a shard map.
type Shard struct {
	ID       uuid.UUID
	MapID    uuid.UUID
	Location ShardLocation
	Status   ShardStatus
	Version  int64
}

// MappingStatus mirrors ShardStatus but is tracked independently per
// mapping, per spec.md §3 ("a mapping's status is independent of its
// shard's status").
type MappingStatus int

const (
	MappingStatusOnline MappingStatus = iota
	MappingStatusOffline
)

func (s MappingStatus) String() string {
	if s == MappingStatusOffline {
		return "offline"
	}
	return "online"
}

// UnlockedToken is the sentinel LockOwnerID value meaning "not locked".
var UnlockedToken = uuid.Nil

// ForceUnlockToken is the sentinel LockOwnerID accepted by UnlockMapping
// (but never by LockMapping) to clear any lock regardless of owner.
var ForceUnlockToken = uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")

// PointMapping maps a single encoded key to a shard.
type PointMapping struct {
	ID          uuid.UUID
	MapID       uuid.UUID
	ShardID     uuid.UUID
	Key         []byte // keycodec-encoded
	Status      MappingStatus
	LockOwnerID uuid.UUID
	Version     int64
}

// IsLocked reports whether the mapping currently carries a lock.
func (m PointMapping) IsLocked() bool {
	return m.LockOwnerID != UnlockedToken
}

// RangeMapping maps a half-open key range [Low, High) to a shard. An empty
// Low is negative infinity; an empty High is positive infinity
// (keycodec.NegativeInfinity / PositiveInfinity).
type RangeMapping struct {
	ID          uuid.UUID
	MapID       uuid.UUID
	ShardID     uuid.UUID
	Low         []byte
	High        []byte
	Status      MappingStatus
	LockOwnerID uuid.UUID
	Version     int64
}

// IsLocked reports whether the mapping currently carries a lock.
func (m RangeMapping) IsLocked() bool {
	return m.LockOwnerID != UnlockedToken
}

// OperationKind names a multi-phase catalog operation, recorded in the
// pending-operations log so the recovery scanner knows which phase sequence
// to resume (spec.md §4.4, §4.9).
type OperationKind int

const (
	OperationAddMapping OperationKind = iota
	OperationRemoveMapping
	OperationUpdateMapping
	OperationSplitMapping
	OperationMergeMapping
)

func (k OperationKind) String() string {
	switch k {
	case OperationAddMapping:
		return "AddMapping"
	case OperationRemoveMapping:
		return "RemoveMapping"
	case OperationUpdateMapping:
		return "UpdateMapping"
	case OperationSplitMapping:
		return "SplitMapping"
	case OperationMergeMapping:
		return "MergeMapping"
	default:
		return fmt.Sprintf("OperationKind(%d)", int(k))
	}
}

// OperationPhase records the last Do phase an operation has *completed*,
// per spec.md §4.4's phase list. PhaseNotStarted is logged before the first
// phase runs, so a crash before any phase completes is recognizable as
// "nothing to undo" rather than colliding with PhaseGlobalPreLocal's own
// completed state.
type OperationPhase int

const (
	PhaseNotStarted OperationPhase = iota
	PhaseGlobalPreLocal
	PhaseLocalSource
	PhaseLocalTarget
	PhaseGlobalPostLocal
	PhaseCommitted
)

func (p OperationPhase) String() string {
	switch p {
	case PhaseNotStarted:
		return "NotStarted"
	case PhaseGlobalPreLocal:
		return "GlobalPreLocal"
	case PhaseLocalSource:
		return "LocalSource"
	case PhaseLocalTarget:
		return "LocalTarget"
	case PhaseGlobalPostLocal:
		return "GlobalPostLocal"
	case PhaseCommitted:
		return "Committed"
	default:
		return fmt.Sprintf("OperationPhase(%d)", int(p))
	}
}

// PendingOperation is a row in the operations log: a durable record of an
// in-flight multi-phase operation, written before the first phase runs and
// removed once GlobalPostLocal commits or, after a failed phase, once the
// Undo pass has run. The recovery scanner
// (internal/opengine/recovery.go) replays or undoes whatever is left behind
// by a crash.
type PendingOperation struct {
	ID          uuid.UUID
	MapID       uuid.UUID
	Kind        OperationKind
	Phase       OperationPhase
	SourceShard uuid.UUID
	TargetShard uuid.UUID // zero UUID when the operation touches one shard
	Payload     []byte    // operation-specific encoded state
	StartedAt   time.Time
}

// Snapshot is a read-only, defensively-copied view of a shard map's
// mappings, returned by catalog store queries that need to hand back a
// stable picture under concurrent mutation. It mirrors the teacher's
// pattern of returning copies rather than live references (see
// internal/shard.Shard.Info in the reference implementation this repo grew
// from).
type Snapshot struct {
	Map      ShardMap
	Shards   []Shard
	Points   []PointMapping
	Ranges   []RangeMapping
	Captured time.Time
}

// Clone returns a deep-enough copy safe for a caller to mutate without
// affecting the original.
func (s *Snapshot) Clone() *Snapshot {
	return &Snapshot{
		Map:      s.Map,
		Shards:   append([]Shard(nil), s.Shards...),
		Points:   append([]PointMapping(nil), s.Points...),
		Ranges:   append([]RangeMapping(nil), s.Ranges...),
		Captured: s.Captured,
	}
}
