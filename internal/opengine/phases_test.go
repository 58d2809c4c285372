package opengine

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
	"github.com/dreamware/shardcatalog/internal/catalogstore"
	"github.com/dreamware/shardcatalog/internal/keycodec"
)

func newTestRunner(t *testing.T) (*Runner, catalogstore.GlobalStore, LocalResolver) {
	t.Helper()
	global := catalogstore.NewMemoryGlobalStore()
	local := catalogstore.NewMemoryLocalStore()
	resolver := func(shardID uuid.UUID) (catalogstore.LocalStore, error) { return local, nil }
	runner := NewRunner(global)
	return runner, global, resolver
}

func TestRunnerCommitsAddMapping(t *testing.T) {
	runner, global, locals := newTestRunner(t)
	ctx := context.Background()

	mapID := uuid.New()
	shardID := uuid.New()
	key, _ := keycodec.Encode(keycodec.KeyTypeInt64, int64(7))
	mapping := catalogmodel.PointMapping{ID: uuid.New(), MapID: mapID, ShardID: shardID, Key: key, LockOwnerID: catalogmodel.UnlockedToken}

	op := NewAddPointMappingOp(global, locals, mapping)
	require.NoError(t, runner.Run(ctx, op))

	got, err := global.GetPointMapping(ctx, mapID, key)
	require.NoError(t, err)
	assert.Equal(t, shardID, got.ShardID)

	pending, err := global.ListPendingOperations(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "a successful run must not leave a pending-operation row behind")
}

func TestRunnerUndoesOnLocalFailure(t *testing.T) {
	global := catalogstore.NewMemoryGlobalStore()
	failingLocals := func(shardID uuid.UUID) (catalogstore.LocalStore, error) {
		return nil, assertErr
	}
	runner := NewRunner(global)
	ctx := context.Background()

	mapID := uuid.New()
	shardID := uuid.New()
	key, _ := keycodec.Encode(keycodec.KeyTypeInt64, int64(9))
	mapping := catalogmodel.PointMapping{ID: uuid.New(), MapID: mapID, ShardID: shardID, Key: key, LockOwnerID: catalogmodel.UnlockedToken}

	op := NewAddPointMappingOp(global, failingLocals, mapping)
	err := runner.Run(ctx, op)
	require.Error(t, err)

	// GlobalPreLocal committed the mapping; since LocalSource failed, the
	// undo pass must have removed it again.
	_, err = global.GetPointMapping(ctx, mapID, key)
	require.Error(t, err)

	pending, err := global.ListPendingOperations(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestFaultInjectingFactoryFailsNamedPhase(t *testing.T) {
	runner, global, locals := newTestRunner(t)
	runner.Factory = &FaultInjectingFactory{
		Fault:     FaultPoint{Kind: catalogmodel.OperationAddMapping, Phase: catalogmodel.PhaseLocalSource},
		FailCount: 1,
	}
	ctx := context.Background()

	mapID := uuid.New()
	shardID := uuid.New()
	key, _ := keycodec.Encode(keycodec.KeyTypeInt64, int64(3))
	mapping := catalogmodel.PointMapping{ID: uuid.New(), MapID: mapID, ShardID: shardID, Key: key, LockOwnerID: catalogmodel.UnlockedToken}

	op := NewAddPointMappingOp(global, locals, mapping)
	err := runner.Run(ctx, op)
	require.Error(t, err, "the injected fault should fail the run")

	_, err = global.GetPointMapping(ctx, mapID, key)
	require.Error(t, err, "the failed run should have undone its GlobalPreLocal write")
}

var assertErr = errLocalUnavailable{}

type errLocalUnavailable struct{}

func (errLocalUnavailable) Error() string { return "local store unavailable" }
