package opengine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
	"github.com/dreamware/shardcatalog/internal/catalogstore"
	"github.com/dreamware/shardcatalog/internal/keycodec"
)

func TestScannerUndoesCrashedOperation(t *testing.T) {
	ctx := context.Background()
	global := catalogstore.NewMemoryGlobalStore()
	local := catalogstore.NewMemoryLocalStore()
	resolver := func(shardID uuid.UUID) (catalogstore.LocalStore, error) { return local, nil }

	mapID := uuid.New()
	shardID := uuid.New()
	key, _ := keycodec.Encode(keycodec.KeyTypeInt64, int64(11))
	mapping := catalogmodel.PointMapping{ID: uuid.New(), MapID: mapID, ShardID: shardID, Key: key, LockOwnerID: catalogmodel.UnlockedToken}

	// Simulate a crash right after GlobalPreLocal committed, before
	// LocalSource ran: the mapping exists in the GSM and a pending-op row
	// says only GlobalPreLocal completed.
	require.NoError(t, global.AddPointMapping(ctx, mapping))
	opID := uuid.New()
	require.NoError(t, global.LogOperation(ctx, catalogmodel.PendingOperation{
		ID: opID, MapID: mapID, Kind: catalogmodel.OperationAddMapping,
		Phase: catalogmodel.PhaseGlobalPreLocal, SourceShard: shardID, StartedAt: time.Now(),
	}))

	rehydrator := RehydratorFunc(func(ctx context.Context, p catalogmodel.PendingOperation) (Operation, error) {
		return NewAddPointMappingOp(global, resolver, mapping), nil
	})
	runner := NewRunner(global)
	scanner := NewScanner(global, rehydrator, runner)

	require.NoError(t, scanner.Run(ctx))

	_, err := global.GetPointMapping(ctx, mapID, key)
	require.Error(t, err, "recovery should have undone the half-finished AddMapping")

	pending, err := global.ListPendingOperations(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestScannerCleansUpCommittedOperation(t *testing.T) {
	ctx := context.Background()
	global := catalogstore.NewMemoryGlobalStore()

	opID := uuid.New()
	require.NoError(t, global.LogOperation(ctx, catalogmodel.PendingOperation{
		ID: opID, MapID: uuid.New(), Kind: catalogmodel.OperationAddMapping,
		Phase: catalogmodel.PhaseGlobalPostLocal, StartedAt: time.Now(),
	}))

	scanner := NewScanner(global, RehydratorFunc(func(context.Context, catalogmodel.PendingOperation) (Operation, error) {
		t.Fatal("a fully-committed operation should never be rehydrated")
		return nil, nil
	}), NewRunner(global))

	require.NoError(t, scanner.Run(ctx))

	pending, err := global.ListPendingOperations(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)
}
