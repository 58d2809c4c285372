package shardmgmt

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

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewMemoryShardMapManager(ManagerOptions{})
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestListShardMapAddLookupRemovePointMapping(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	lsm, err := m.CreateListShardMap(ctx, "tenants", keycodec.KeyTypeInt32)
	require.NoError(t, err)

	shard, err := m.AddShard(ctx, lsm.ID(), catalogmodel.ShardLocation{Server: "db1", Database: "tenants_1"})
	require.NoError(t, err)

	_, err = lsm.CreatePointMapping(ctx, shard.ID, int32(42))
	require.NoError(t, err)

	got, err := lsm.GetMappingForKey(ctx, int32(42))
	require.NoError(t, err)
	assert.Equal(t, shard.ID, got.ShardID)

	err = lsm.SetStatus(ctx, int32(42), catalogmodel.MappingStatusOffline, catalogmodel.UnlockedToken)
	require.NoError(t, err)

	err = lsm.RemovePointMapping(ctx, int32(42), catalogmodel.UnlockedToken)
	require.NoError(t, err)

	_, err = lsm.GetMappingForKey(ctx, int32(42))
	assert.Error(t, err)
}

func TestListShardMapLockUnlockDiscipline(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	lsm, err := m.CreateListShardMap(ctx, "tenants", keycodec.KeyTypeInt32)
	require.NoError(t, err)
	shard, err := m.AddShard(ctx, lsm.ID(), catalogmodel.ShardLocation{Server: "db1", Database: "d1"})
	require.NoError(t, err)
	_, err = lsm.CreatePointMapping(ctx, shard.ID, int32(1))
	require.NoError(t, err)

	owner := uuid.New()
	require.NoError(t, lsm.LockMapping(ctx, int32(1), owner))

	otherOwner := uuid.New()
	err = lsm.LockMapping(ctx, int32(1), otherOwner)
	assert.Error(t, err, "locking an already-locked mapping must fail")

	err = lsm.UnlockMapping(ctx, int32(1), otherOwner)
	assert.Error(t, err, "unlocking with the wrong owner must fail")

	require.NoError(t, lsm.UnlockMapping(ctx, int32(1), catalogmodel.ForceUnlockToken))

	require.NoError(t, lsm.LockMapping(ctx, int32(1), owner))
}

func TestRangeShardMapSplitAndMerge(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	rsm, err := m.CreateRangeShardMap(ctx, "orders", keycodec.KeyTypeInt64)
	require.NoError(t, err)

	shardA, err := m.AddShard(ctx, rsm.ID(), catalogmodel.ShardLocation{Server: "db1", Database: "a"})
	require.NoError(t, err)
	shardB, err := m.AddShard(ctx, rsm.ID(), catalogmodel.ShardLocation{Server: "db2", Database: "b"})
	require.NoError(t, err)

	_, err = rsm.CreateRangeMapping(ctx, shardA.ID, int64(0), int64(100))
	require.NoError(t, err)

	left, right, err := rsm.SplitMapping(ctx, int64(50), shardB.ID, catalogmodel.UnlockedToken)
	require.NoError(t, err)
	assert.Equal(t, shardA.ID, left.ShardID)
	assert.Equal(t, shardB.ID, right.ShardID)

	belowSplit, err := rsm.GetMappingForKey(ctx, int64(10))
	require.NoError(t, err)
	assert.Equal(t, shardA.ID, belowSplit.ShardID)

	aboveSplit, err := rsm.GetMappingForKey(ctx, int64(60))
	require.NoError(t, err)
	assert.Equal(t, shardB.ID, aboveSplit.ShardID)

	// Merging ranges on different shards must be rejected (spec.md §4.6,
	// §8 invariant 6) rather than silently dropping right's region onto
	// left's shard.
	_, err = rsm.MergeMapping(ctx, left, right, catalogmodel.UnlockedToken)
	assert.True(t, shardmaperr.HasCode(err, shardmaperr.CodeInvalidArgument))

	require.NoError(t, rsm.SetStatus(ctx, right.Low, catalogmodel.MappingStatusOffline, catalogmodel.UnlockedToken))
	require.NoError(t, rsm.Relocate(ctx, right.Low, shardA.ID, catalogmodel.UnlockedToken))
	require.NoError(t, rsm.SetStatus(ctx, right.Low, catalogmodel.MappingStatusOnline, catalogmodel.UnlockedToken))
	right, err = rsm.GetMappingForKey(ctx, right.Low)
	require.NoError(t, err)

	merged, err := rsm.MergeMapping(ctx, left, right, catalogmodel.UnlockedToken)
	require.NoError(t, err)
	assert.Equal(t, shardA.ID, merged.ShardID)

	final, err := rsm.GetMappingForKey(ctx, int64(60))
	require.NoError(t, err)
	assert.Equal(t, shardA.ID, final.ShardID)
}

func TestSetShardStatusOfflineInvalidatesConnections(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	lsm, err := m.CreateListShardMap(ctx, "tenants", keycodec.KeyTypeInt32)
	require.NoError(t, err)
	shard, err := m.AddShard(ctx, lsm.ID(), catalogmodel.ShardLocation{Server: "db1", Database: "d1"})
	require.NoError(t, err)
	_, err = lsm.CreatePointMapping(ctx, shard.ID, int32(7))
	require.NoError(t, err)

	conn, err := lsm.OpenConnectionForKey(ctx, int32(7), ConnectionOptionNone)
	require.NoError(t, err)
	require.NoError(t, conn.Validate())

	require.NoError(t, m.SetShardStatus(ctx, lsm.ID(), shard.ID, catalogmodel.ShardStatusOffline))

	assert.ErrorIs(t, conn.Validate(), shardmaperr.ErrConnectionKilled)
}
