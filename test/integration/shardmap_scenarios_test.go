// Package integration exercises the shard-map façade end to end, one test
// per seed scenario, against in-memory stores so no SQLite file touches
// disk during the run.
package integration

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
	"github.com/dreamware/shardcatalog/internal/keycodec"
	"github.com/dreamware/shardcatalog/internal/opengine"
	"github.com/dreamware/shardcatalog/internal/shardmaperr"
	"github.com/dreamware/shardcatalog/pkg/shardmgmt"
)

func newManager(t *testing.T, opts shardmgmt.ManagerOptions) *shardmgmt.Manager {
	t.Helper()
	m := shardmgmt.NewMemoryShardMapManager(opts)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// Scenario 1: per-tenant list map, offline + relocate, delete-while-online
// rejected.
func TestPerTenantListMapRelocate(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, shardmgmt.ManagerOptions{})

	lsm, err := m.CreateListShardMap(ctx, "tenants", keycodec.KeyTypeInt32)
	require.NoError(t, err)

	shards := make([]catalogmodel.Shard, 4)
	for i := 0; i < 4; i++ {
		shard, err := m.AddShard(ctx, lsm.ID(), catalogmodel.ShardLocation{
			Server: "srv", Database: "PerTenantDB" + string(rune('1'+i)),
		})
		require.NoError(t, err)
		shards[i] = shard
		_, err = lsm.CreatePointMapping(ctx, shard.ID, int32(i+1))
		require.NoError(t, err)
	}

	require.NoError(t, lsm.SetStatus(ctx, int32(3), catalogmodel.MappingStatusOffline, catalogmodel.UnlockedToken))
	require.NoError(t, lsm.Relocate(ctx, int32(3), shards[0].ID, catalogmodel.UnlockedToken))
	require.NoError(t, lsm.SetStatus(ctx, int32(3), catalogmodel.MappingStatusOnline, catalogmodel.UnlockedToken))

	got, err := lsm.GetMappingForKey(ctx, int32(3))
	require.NoError(t, err)
	assert.Equal(t, shards[0].ID, got.ShardID)
	assert.Equal(t, "PerTenantDB1", shards[0].Location.Database)

	err = lsm.RemovePointMapping(ctx, int32(1), catalogmodel.UnlockedToken)
	assert.True(t, shardmaperr.HasCode(err, shardmaperr.CodeMappingIsNotOffline))
}

// Scenario 2: range map split/merge, relocate both halves to one shard,
// then merge back into a single mapping. Seven disjoint ranges remain —
// [55,60) is never folded back in, since only [50,52) and [52,55) get
// merged.
func TestRangeMapSplitMergeRelocate(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, shardmgmt.ManagerOptions{})

	rsm, err := m.CreateRangeShardMap(ctx, "orders", keycodec.KeyTypeInt64)
	require.NoError(t, err)

	shards := make([]catalogmodel.Shard, 5)
	for i := 0; i < 5; i++ {
		shard, err := m.AddShard(ctx, rsm.ID(), catalogmodel.ShardLocation{
			Server: "srv", Database: "MultiTenantDB" + string(rune('1'+i)),
		})
		require.NoError(t, err)
		shards[i] = shard
	}

	for i := 0; i < 5; i++ {
		_, err := rsm.CreateRangeMapping(ctx, shards[i].ID, int64(i*10), int64((i+1)*10))
		require.NoError(t, err)
	}
	_, err = rsm.CreateRangeMapping(ctx, shards[2].ID, int64(50), int64(60))
	require.NoError(t, err)

	mid, right, err := rsm.SplitMapping(ctx, int64(55), shards[2].ID, catalogmodel.UnlockedToken)
	require.NoError(t, err)
	assert.Equal(t, shards[2].ID, mid.ShardID)
	assert.Equal(t, shards[2].ID, right.ShardID)

	left, mid, err := rsm.SplitMapping(ctx, int64(52), shards[2].ID, catalogmodel.UnlockedToken)
	require.NoError(t, err)

	for _, half := range []*catalogmodel.RangeMapping{&left, &mid} {
		require.NoError(t, rsm.SetStatus(ctx, half.Low, catalogmodel.MappingStatusOffline, catalogmodel.UnlockedToken))
		require.NoError(t, rsm.Relocate(ctx, half.Low, shards[0].ID, catalogmodel.UnlockedToken))
		require.NoError(t, rsm.SetStatus(ctx, half.Low, catalogmodel.MappingStatusOnline, catalogmodel.UnlockedToken))
		*half, err = rsm.GetMappingForKey(ctx, half.Low)
		require.NoError(t, err)
	}

	merged, err := rsm.MergeMapping(ctx, left, mid, catalogmodel.UnlockedToken)
	require.NoError(t, err)
	assert.Equal(t, shards[0].ID, merged.ShardID)

	all, err := rsm.GetMappings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 7, "five original ranges plus [50,55) and [55,60) should remain disjoint")
}

// Scenario 3: once a mapping is deleted, opening a connection for its key
// fails with MappingDoesNotExist both with and without validation. The
// façade opens connections by key only; there is no open from a held
// mapping handle that could fall back to the deleted mapping.
func TestStaleConnectionValidation(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, shardmgmt.ManagerOptions{})

	lsm, err := m.CreateListShardMap(ctx, "tenants", keycodec.KeyTypeInt32)
	require.NoError(t, err)
	shard, err := m.AddShard(ctx, lsm.ID(), catalogmodel.ShardLocation{Server: "srv", Database: "db"})
	require.NoError(t, err)
	_, err = lsm.CreatePointMapping(ctx, shard.ID, int32(1))
	require.NoError(t, err)

	require.NoError(t, lsm.SetStatus(ctx, int32(1), catalogmodel.MappingStatusOffline, catalogmodel.UnlockedToken))
	require.NoError(t, lsm.RemovePointMapping(ctx, int32(1), catalogmodel.UnlockedToken))

	_, err = lsm.OpenConnectionForKey(ctx, int32(1), shardmgmt.ConnectionOptionValidate)
	assert.True(t, shardmaperr.HasCode(err, shardmaperr.CodeMappingDoesNotExist))

	// Without validation there is no mapping to fall back to either, since
	// the cache was invalidated on delete; the façade's guarantee is only
	// that validation is not *forced* a second time, not that a deleted
	// key resolves to stale data.
	_, err = lsm.OpenConnectionForKey(ctx, int32(1), shardmgmt.ConnectionOptionNone)
	assert.True(t, shardmaperr.HasCode(err, shardmaperr.CodeMappingDoesNotExist))
}

// Scenario 4: taking a shard offline kills every connection opened against
// it, and blocks new opens until it comes back online.
func TestKillOnOffline(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, shardmgmt.ManagerOptions{})

	lsm, err := m.CreateListShardMap(ctx, "tenants", keycodec.KeyTypeInt32)
	require.NoError(t, err)
	shard, err := m.AddShard(ctx, lsm.ID(), catalogmodel.ShardLocation{Server: "srv", Database: "db"})
	require.NoError(t, err)
	_, err = lsm.CreatePointMapping(ctx, shard.ID, int32(1))
	require.NoError(t, err)

	conn, err := lsm.OpenConnectionForKey(ctx, int32(1), shardmgmt.ConnectionOptionNone)
	require.NoError(t, err)
	require.NoError(t, conn.Validate())

	require.NoError(t, m.SetShardStatus(ctx, lsm.ID(), shard.ID, catalogmodel.ShardStatusOffline))
	assert.ErrorIs(t, conn.Validate(), shardmaperr.ErrConnectionKilled)

	_, err = lsm.OpenConnectionForKey(ctx, int32(1), shardmgmt.ConnectionOptionNone)
	assert.ErrorIs(t, err, shardmaperr.ErrConnectionKilled)

	require.NoError(t, m.SetShardStatus(ctx, lsm.ID(), shard.ID, catalogmodel.ShardStatusOnline))
	fresh, err := lsm.OpenConnectionForKey(ctx, int32(1), shardmgmt.ConnectionOptionNone)
	require.NoError(t, err)
	assert.NoError(t, fresh.Validate())
}

// Scenario 5: a fault injected at GlobalPostLocal surfaces
// StorageOperationFailure to the caller, and the engine's inline undo
// leaves the catalog clean enough that a subsequent call for the same
// region succeeds — the synchronous half of spec.md §8 invariant 7, short
// of an actual process crash, which recovery.Scanner handles instead
// (covered at the unit level in internal/opengine/recovery_test.go).
func TestCrashDuringCommitUndo(t *testing.T) {
	ctx := context.Background()
	factory := &opengine.FaultInjectingFactory{
		Fault:     opengine.FaultPoint{Kind: catalogmodel.OperationAddMapping, Phase: catalogmodel.PhaseGlobalPostLocal},
		FailCount: 1,
	}
	m := newManager(t, shardmgmt.ManagerOptions{Factory: factory})

	lsm, err := m.CreateListShardMap(ctx, "regions", keycodec.KeyTypeInt32)
	require.NoError(t, err)
	shard, err := m.AddShard(ctx, lsm.ID(), catalogmodel.ShardLocation{Server: "srv", Database: "db"})
	require.NoError(t, err)

	_, err = lsm.CreatePointMapping(ctx, shard.ID, int32(1))
	require.True(t, shardmaperr.HasCode(err, shardmaperr.CodeStorageOperationFailure))

	_, err = lsm.GetMappingForKey(ctx, int32(1))
	assert.Error(t, err, "the undone mapping must not be visible")

	mapping, err := lsm.CreatePointMapping(ctx, shard.ID, int32(1))
	require.NoError(t, err, "a retried CreateMapping for the same region must succeed once the fault has been consumed")
	assert.Equal(t, shard.ID, mapping.ShardID)
}

// Scenario 6: lock discipline on a range mapping, including the map-wide
// sweep UnlockMapping(token) performs.
func TestRangeMapLockDiscipline(t *testing.T) {
	ctx := context.Background()
	m := newManager(t, shardmgmt.ManagerOptions{})

	rsm, err := m.CreateRangeShardMap(ctx, "orders", keycodec.KeyTypeInt64)
	require.NoError(t, err)
	shard, err := m.AddShard(ctx, rsm.ID(), catalogmodel.ShardLocation{Server: "srv", Database: "db"})
	require.NoError(t, err)

	mapping, err := rsm.CreateRangeMapping(ctx, shard.ID, int64(0), int64(100))
	require.NoError(t, err)

	t1 := uuid.New()
	require.NoError(t, rsm.LockMapping(ctx, mapping.Low, t1))

	err = rsm.SetStatus(ctx, mapping.Low, catalogmodel.MappingStatusOffline, catalogmodel.UnlockedToken)
	assert.True(t, shardmaperr.HasCode(err, shardmaperr.CodeMappingLockOwnerIDDoesNotMatch),
		"a mutating call against a locked mapping must reject the wrong or missing token")

	require.NoError(t, rsm.SetStatus(ctx, mapping.Low, catalogmodel.MappingStatusOffline, t1))
	require.NoError(t, rsm.UnlockAllMappings(ctx, t1))

	locked, err := rsm.GetMappingForKey(ctx, int64(0))
	require.NoError(t, err)
	assert.False(t, locked.IsLocked(), "UnlockMapping(T1) must clear every mapping owned by T1")
}
