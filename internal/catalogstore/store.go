package catalogstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
)

// GlobalStore is the storage contract for the global shard map (GSM):
// shard map/shard registration and the mapping tables, plus the
// pending-operations log the recovery scanner drains. Two implementations
// satisfy it: SQLGlobalStore (embedded SQLite, the production backing) and
// MemoryGlobalStore (a mutex-guarded in-memory double used by tests that
// don't want a file on disk).
type GlobalStore interface {
	CreateShardMap(ctx context.Context, m catalogmodel.ShardMap) error
	GetShardMap(ctx context.Context, name string) (catalogmodel.ShardMap, error)
	DeleteShardMap(ctx context.Context, id uuid.UUID) error

	AddShard(ctx context.Context, s catalogmodel.Shard) error
	RemoveShard(ctx context.Context, id uuid.UUID) error
	GetShards(ctx context.Context, mapID uuid.UUID) ([]catalogmodel.Shard, error)
	SetShardStatus(ctx context.Context, id uuid.UUID, status catalogmodel.ShardStatus) error

	AddPointMapping(ctx context.Context, m catalogmodel.PointMapping) error
	RemovePointMapping(ctx context.Context, id uuid.UUID) error
	GetPointMapping(ctx context.Context, mapID uuid.UUID, key []byte) (catalogmodel.PointMapping, error)
	ListPointMappings(ctx context.Context, mapID uuid.UUID) ([]catalogmodel.PointMapping, error)
	UpdatePointMapping(ctx context.Context, m catalogmodel.PointMapping) error

	AddRangeMapping(ctx context.Context, m catalogmodel.RangeMapping) error
	RemoveRangeMapping(ctx context.Context, id uuid.UUID) error
	GetRangeMappingForKey(ctx context.Context, mapID uuid.UUID, key []byte) (catalogmodel.RangeMapping, error)
	ListRangeMappings(ctx context.Context, mapID uuid.UUID) ([]catalogmodel.RangeMapping, error)
	UpdateRangeMapping(ctx context.Context, m catalogmodel.RangeMapping) error

	LogOperation(ctx context.Context, op catalogmodel.PendingOperation) error
	AdvanceOperation(ctx context.Context, id uuid.UUID, phase catalogmodel.OperationPhase) error
	DeleteOperation(ctx context.Context, id uuid.UUID) error
	ListPendingOperations(ctx context.Context) ([]catalogmodel.PendingOperation, error)

	Close() error
}

// LocalStore is the storage contract for one shard's local shard map
// (LSM): a trimmed replica of the mappings that claim this shard, used to
// validate a connection without a round trip to the global catalog.
type LocalStore interface {
	SetShardIdentity(ctx context.Context, mapID, shardID uuid.UUID, loc catalogmodel.ShardLocation) error

	UpsertLocalPointMapping(ctx context.Context, m catalogmodel.PointMapping) error
	RemoveLocalPointMapping(ctx context.Context, id uuid.UUID) error
	GetLocalPointMapping(ctx context.Context, mapID uuid.UUID, key []byte) (catalogmodel.PointMapping, error)

	UpsertLocalRangeMapping(ctx context.Context, m catalogmodel.RangeMapping) error
	RemoveLocalRangeMapping(ctx context.Context, id uuid.UUID) error
	GetLocalRangeMappingForKey(ctx context.Context, mapID uuid.UUID, key []byte) (catalogmodel.RangeMapping, error)

	Close() error
}
