package catalogstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
	"github.com/dreamware/shardcatalog/internal/keycodec"
	"github.com/dreamware/shardcatalog/internal/shardmaperr"
)

// newTestGlobalStores returns every GlobalStore implementation the catalog
// ships, so contract tests run against both without duplicating them.
func newTestGlobalStores(t *testing.T) map[string]GlobalStore {
	t.Helper()
	sqlStore, err := NewSQLGlobalStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { sqlStore.Close() })

	return map[string]GlobalStore{
		"sql":    sqlStore,
		"memory": NewMemoryGlobalStore(),
	}
}

func TestGlobalStoreShardMapLifecycle(t *testing.T) {
	for name, store := range newTestGlobalStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			m := catalogmodel.ShardMap{ID: uuid.New(), Name: "tenants", Type: catalogmodel.ShardMapTypeList, KeyType: keycodec.KeyTypeInt64}

			require.NoError(t, store.CreateShardMap(ctx, m))

			_, err := store.GetShardMap(ctx, "missing")
			assert.True(t, shardmaperr.HasCode(err, shardmaperr.CodeShardMapDoesNotExist))

			got, err := store.GetShardMap(ctx, "tenants")
			require.NoError(t, err)
			assert.Equal(t, m.Name, got.Name)
			assert.Equal(t, m.Type, got.Type)

			err = store.CreateShardMap(ctx, m)
			assert.True(t, shardmaperr.HasCode(err, shardmaperr.CodeShardMapAlreadyExists))

			require.NoError(t, store.DeleteShardMap(ctx, m.ID))
			_, err = store.GetShardMap(ctx, "tenants")
			assert.True(t, shardmaperr.HasCode(err, shardmaperr.CodeShardMapDoesNotExist))
		})
	}
}

func TestGlobalStorePointMappingLifecycle(t *testing.T) {
	for name, store := range newTestGlobalStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mapID := uuid.New()
			shardID := uuid.New()
			require.NoError(t, store.CreateShardMap(ctx, catalogmodel.ShardMap{ID: mapID, Name: "m-" + name, Type: catalogmodel.ShardMapTypeList}))
			require.NoError(t, store.AddShard(ctx, catalogmodel.Shard{ID: shardID, MapID: mapID, Location: catalogmodel.ShardLocation{Server: "s1", Database: "d1"}}))

			key, err := keycodec.Encode(keycodec.KeyTypeInt64, int64(42))
			require.NoError(t, err)

			pm := catalogmodel.PointMapping{ID: uuid.New(), MapID: mapID, ShardID: shardID, Key: key, LockOwnerID: catalogmodel.UnlockedToken}
			require.NoError(t, store.AddPointMapping(ctx, pm))

			err = store.AddPointMapping(ctx, catalogmodel.PointMapping{ID: uuid.New(), MapID: mapID, ShardID: shardID, Key: key, LockOwnerID: catalogmodel.UnlockedToken})
			assert.True(t, shardmaperr.HasCode(err, shardmaperr.CodeMappingPointAlreadyMapped))

			got, err := store.GetPointMapping(ctx, mapID, key)
			require.NoError(t, err)
			assert.Equal(t, pm.ShardID, got.ShardID)

			got.Status = catalogmodel.MappingStatusOffline
			require.NoError(t, store.UpdatePointMapping(ctx, got))

			// Stale version must be rejected.
			err = store.UpdatePointMapping(ctx, got)
			assert.True(t, shardmaperr.HasCode(err, shardmaperr.CodeVersionMismatch))

			require.NoError(t, store.RemovePointMapping(ctx, pm.ID))
			_, err = store.GetPointMapping(ctx, mapID, key)
			assert.True(t, shardmaperr.HasCode(err, shardmaperr.CodeMappingDoesNotExist))
		})
	}
}

func TestGlobalStoreRangeMappingOverlap(t *testing.T) {
	for name, store := range newTestGlobalStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mapID := uuid.New()
			shardID := uuid.New()
			require.NoError(t, store.CreateShardMap(ctx, catalogmodel.ShardMap{ID: mapID, Name: "r-" + name, Type: catalogmodel.ShardMapTypeRange}))
			require.NoError(t, store.AddShard(ctx, catalogmodel.Shard{ID: shardID, MapID: mapID, Location: catalogmodel.ShardLocation{Server: "s1", Database: "d1"}}))

			low100, _ := keycodec.Encode(keycodec.KeyTypeInt32, int32(100))
			low200, _ := keycodec.Encode(keycodec.KeyTypeInt32, int32(200))
			low150, _ := keycodec.Encode(keycodec.KeyTypeInt32, int32(150))

			require.NoError(t, store.AddRangeMapping(ctx, catalogmodel.RangeMapping{
				ID: uuid.New(), MapID: mapID, ShardID: shardID, Low: low100, High: low200, LockOwnerID: catalogmodel.UnlockedToken,
			}))

			err := store.AddRangeMapping(ctx, catalogmodel.RangeMapping{
				ID: uuid.New(), MapID: mapID, ShardID: shardID, Low: low150, High: nil, LockOwnerID: catalogmodel.UnlockedToken,
			})
			assert.True(t, shardmaperr.HasCode(err, shardmaperr.CodeMappingRangeAlreadyMapped))

			// Adjacent, non-overlapping range is fine.
			require.NoError(t, store.AddRangeMapping(ctx, catalogmodel.RangeMapping{
				ID: uuid.New(), MapID: mapID, ShardID: shardID, Low: low200, High: nil, LockOwnerID: catalogmodel.UnlockedToken,
			}))

			key150, _ := keycodec.Encode(keycodec.KeyTypeInt32, int32(150))
			got, err := store.GetRangeMappingForKey(ctx, mapID, key150)
			require.NoError(t, err)
			assert.Equal(t, shardID, got.ShardID)
		})
	}
}

func TestGlobalStorePendingOperationLog(t *testing.T) {
	for name, store := range newTestGlobalStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			op := catalogmodel.PendingOperation{
				ID: uuid.New(), MapID: uuid.New(), Kind: catalogmodel.OperationAddMapping,
				Phase: catalogmodel.PhaseGlobalPreLocal, SourceShard: uuid.New(),
			}
			require.NoError(t, store.LogOperation(ctx, op))

			pending, err := store.ListPendingOperations(ctx)
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, catalogmodel.PhaseGlobalPreLocal, pending[0].Phase)

			require.NoError(t, store.AdvanceOperation(ctx, op.ID, catalogmodel.PhaseLocalSource))
			pending, err = store.ListPendingOperations(ctx)
			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, catalogmodel.PhaseLocalSource, pending[0].Phase)

			require.NoError(t, store.DeleteOperation(ctx, op.ID))
			pending, err = store.ListPendingOperations(ctx)
			require.NoError(t, err)
			assert.Empty(t, pending)
		})
	}
}
