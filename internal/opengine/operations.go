package opengine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
	"github.com/dreamware/shardcatalog/internal/catalogstore"
)

// LocalResolver returns the LocalStore for a given shard, so an Operation
// can reach the LSM on whichever shard it needs without the engine knowing
// about connection pooling.
type LocalResolver func(shardID uuid.UUID) (catalogstore.LocalStore, error)

// addPointMappingOp implements Operation for spec.md's AddMapping verb on a
// list shard map: register the mapping in the GSM during GlobalPreLocal,
// replicate it to the owning shard's LSM during LocalSource, and there is
// nothing left to commit in GlobalPostLocal beyond marking the operation
// done — the mapping is already visible after GlobalPreLocal since list
// maps have no source shard to migrate away from.
type addPointMappingOp struct {
	global  catalogstore.GlobalStore
	locals  LocalResolver
	mapping catalogmodel.PointMapping
}

// NewAddPointMappingOp constructs the AddMapping operation for a list shard
// map point mapping.
func NewAddPointMappingOp(global catalogstore.GlobalStore, locals LocalResolver, m catalogmodel.PointMapping) Operation {
	return &addPointMappingOp{global: global, locals: locals, mapping: m}
}

func (o *addPointMappingOp) Kind() catalogmodel.OperationKind { return catalogmodel.OperationAddMapping }
func (o *addPointMappingOp) MapID() uuid.UUID                 { return o.mapping.MapID }
func (o *addPointMappingOp) SourceShard() uuid.UUID           { return o.mapping.ShardID }
func (o *addPointMappingOp) TargetShard() uuid.UUID           { return uuid.Nil }

func (o *addPointMappingOp) GlobalPreLocal(ctx context.Context) error {
	return o.global.AddPointMapping(ctx, o.mapping)
}

func (o *addPointMappingOp) LocalSource(ctx context.Context) error {
	local, err := o.locals(o.mapping.ShardID)
	if err != nil {
		return err
	}
	return local.UpsertLocalPointMapping(ctx, o.mapping)
}

func (o *addPointMappingOp) LocalTarget(ctx context.Context) error { return nil }

func (o *addPointMappingOp) GlobalPostLocal(ctx context.Context) error { return nil }

func (o *addPointMappingOp) UndoLocalTarget(ctx context.Context) error { return nil }

func (o *addPointMappingOp) UndoLocalSource(ctx context.Context) error {
	local, err := o.locals(o.mapping.ShardID)
	if err != nil {
		return err
	}
	return local.RemoveLocalPointMapping(ctx, o.mapping.ID)
}

func (o *addPointMappingOp) UndoGlobalPostLocal(ctx context.Context) error {
	return o.global.RemovePointMapping(ctx, o.mapping.ID)
}

func (o *addPointMappingOp) Payload() []byte {
	return []byte(fmt.Sprintf("add-point:%s:%s", o.mapping.MapID, o.mapping.ID))
}

// removePointMappingOp implements Operation for RemoveMapping: the mapping
// must already be offline (enforced by the façade before the operation is
// constructed), so the engine's job is purely to delete it from both the
// LSM and GSM in the right order to survive a crash partway through.
type removePointMappingOp struct {
	global  catalogstore.GlobalStore
	locals  LocalResolver
	mapping catalogmodel.PointMapping
}

// NewRemovePointMappingOp constructs the RemoveMapping operation for a list
// shard map point mapping.
func NewRemovePointMappingOp(global catalogstore.GlobalStore, locals LocalResolver, m catalogmodel.PointMapping) Operation {
	return &removePointMappingOp{global: global, locals: locals, mapping: m}
}

func (o *removePointMappingOp) Kind() catalogmodel.OperationKind {
	return catalogmodel.OperationRemoveMapping
}
func (o *removePointMappingOp) MapID() uuid.UUID       { return o.mapping.MapID }
func (o *removePointMappingOp) SourceShard() uuid.UUID { return o.mapping.ShardID }
func (o *removePointMappingOp) TargetShard() uuid.UUID { return uuid.Nil }

func (o *removePointMappingOp) GlobalPreLocal(ctx context.Context) error { return nil }

func (o *removePointMappingOp) LocalSource(ctx context.Context) error {
	local, err := o.locals(o.mapping.ShardID)
	if err != nil {
		return err
	}
	return local.RemoveLocalPointMapping(ctx, o.mapping.ID)
}

func (o *removePointMappingOp) LocalTarget(ctx context.Context) error { return nil }

func (o *removePointMappingOp) GlobalPostLocal(ctx context.Context) error {
	return o.global.RemovePointMapping(ctx, o.mapping.ID)
}

func (o *removePointMappingOp) UndoLocalTarget(ctx context.Context) error { return nil }

func (o *removePointMappingOp) UndoLocalSource(ctx context.Context) error {
	local, err := o.locals(o.mapping.ShardID)
	if err != nil {
		return err
	}
	return local.UpsertLocalPointMapping(ctx, o.mapping)
}

func (o *removePointMappingOp) UndoGlobalPostLocal(ctx context.Context) error { return nil }

func (o *removePointMappingOp) Payload() []byte {
	return []byte(fmt.Sprintf("remove-point:%s:%s", o.mapping.MapID, o.mapping.ID))
}

// updateMappingStatusOp implements Operation for the status-change half of
// UpdateMapping (SPEC_FULL Open Question #1: status change is applied
// before any location change, as its own operation run).
type updateMappingStatusOp struct {
	global    catalogstore.GlobalStore
	locals    LocalResolver
	mapping   catalogmodel.PointMapping
	prevState catalogmodel.MappingStatus
}

// NewUpdateMappingStatusOp constructs the status-change operation.
func NewUpdateMappingStatusOp(global catalogstore.GlobalStore, locals LocalResolver, m catalogmodel.PointMapping, prevStatus catalogmodel.MappingStatus) Operation {
	return &updateMappingStatusOp{global: global, locals: locals, mapping: m, prevState: prevStatus}
}

func (o *updateMappingStatusOp) Kind() catalogmodel.OperationKind {
	return catalogmodel.OperationUpdateMapping
}
func (o *updateMappingStatusOp) MapID() uuid.UUID       { return o.mapping.MapID }
func (o *updateMappingStatusOp) SourceShard() uuid.UUID { return o.mapping.ShardID }
func (o *updateMappingStatusOp) TargetShard() uuid.UUID { return uuid.Nil }

func (o *updateMappingStatusOp) GlobalPreLocal(ctx context.Context) error {
	return o.global.UpdatePointMapping(ctx, o.mapping)
}

func (o *updateMappingStatusOp) LocalSource(ctx context.Context) error {
	local, err := o.locals(o.mapping.ShardID)
	if err != nil {
		return err
	}
	return local.UpsertLocalPointMapping(ctx, o.mapping)
}

func (o *updateMappingStatusOp) LocalTarget(ctx context.Context) error     { return nil }
func (o *updateMappingStatusOp) GlobalPostLocal(ctx context.Context) error { return nil }
func (o *updateMappingStatusOp) UndoLocalTarget(ctx context.Context) error { return nil }

func (o *updateMappingStatusOp) UndoLocalSource(ctx context.Context) error {
	local, err := o.locals(o.mapping.ShardID)
	if err != nil {
		return err
	}
	reverted := o.mapping
	reverted.Status = o.prevState
	return local.UpsertLocalPointMapping(ctx, reverted)
}

// UndoGlobalPostLocal reverses GlobalPreLocal's status change. GlobalPreLocal
// bumped the stored version by one on success, so the revert targets that
// post-update version rather than the pre-update one GlobalPreLocal read.
func (o *updateMappingStatusOp) UndoGlobalPostLocal(ctx context.Context) error {
	reverted := o.mapping
	reverted.Status = o.prevState
	reverted.Version = o.mapping.Version + 1
	return o.global.UpdatePointMapping(ctx, reverted)
}

func (o *updateMappingStatusOp) Payload() []byte {
	return []byte(fmt.Sprintf("update-status:%s:%s", o.mapping.MapID, o.mapping.ID))
}

// addRangeMappingOp implements Operation for AddMapping on a range shard
// map: register the range in the GSM during GlobalPreLocal and replicate it
// to the owning shard's LSM during LocalSource, mirroring
// addPointMappingOp's list-map shape.
type addRangeMappingOp struct {
	global  catalogstore.GlobalStore
	locals  LocalResolver
	mapping catalogmodel.RangeMapping
}

// NewAddRangeMappingOp constructs the AddMapping operation for a range
// shard map.
func NewAddRangeMappingOp(global catalogstore.GlobalStore, locals LocalResolver, m catalogmodel.RangeMapping) Operation {
	return &addRangeMappingOp{global: global, locals: locals, mapping: m}
}

func (o *addRangeMappingOp) Kind() catalogmodel.OperationKind { return catalogmodel.OperationAddMapping }
func (o *addRangeMappingOp) MapID() uuid.UUID                 { return o.mapping.MapID }
func (o *addRangeMappingOp) SourceShard() uuid.UUID           { return o.mapping.ShardID }
func (o *addRangeMappingOp) TargetShard() uuid.UUID           { return uuid.Nil }

func (o *addRangeMappingOp) GlobalPreLocal(ctx context.Context) error {
	return o.global.AddRangeMapping(ctx, o.mapping)
}

func (o *addRangeMappingOp) LocalSource(ctx context.Context) error {
	local, err := o.locals(o.mapping.ShardID)
	if err != nil {
		return err
	}
	return local.UpsertLocalRangeMapping(ctx, o.mapping)
}

func (o *addRangeMappingOp) LocalTarget(ctx context.Context) error     { return nil }
func (o *addRangeMappingOp) GlobalPostLocal(ctx context.Context) error { return nil }
func (o *addRangeMappingOp) UndoLocalTarget(ctx context.Context) error { return nil }

func (o *addRangeMappingOp) UndoLocalSource(ctx context.Context) error {
	local, err := o.locals(o.mapping.ShardID)
	if err != nil {
		return err
	}
	return local.RemoveLocalRangeMapping(ctx, o.mapping.ID)
}

func (o *addRangeMappingOp) UndoGlobalPostLocal(ctx context.Context) error {
	return o.global.RemoveRangeMapping(ctx, o.mapping.ID)
}

func (o *addRangeMappingOp) Payload() []byte {
	return []byte(fmt.Sprintf("add-range:%s:%s", o.mapping.MapID, o.mapping.ID))
}

// splitRangeMappingOp implements Operation for SplitMapping: an existing
// range [original.Low, original.High) is shrunk to [original.Low, splitKey)
// in place and a new range [splitKey, original.High) is registered,
// optionally on a different shard — the two-shard case is why LocalTarget
// exists at all for this operation, unlike the point-mapping operations
// above which never touch a second shard.
type splitRangeMappingOp struct {
	global   catalogstore.GlobalStore
	locals   LocalResolver
	original catalogmodel.RangeMapping
	left     catalogmodel.RangeMapping
	right    catalogmodel.RangeMapping
}

// NewSplitRangeMappingOp constructs the SplitMapping operation. rightShardID
// may equal original.ShardID to split a range without relocating either
// half.
func NewSplitRangeMappingOp(global catalogstore.GlobalStore, locals LocalResolver, original catalogmodel.RangeMapping, splitKey []byte, rightShardID uuid.UUID) Operation {
	left := original
	left.High = splitKey
	right := catalogmodel.RangeMapping{
		ID: uuid.New(), MapID: original.MapID, ShardID: rightShardID,
		Low: splitKey, High: original.High, Status: original.Status,
		LockOwnerID: original.LockOwnerID,
	}
	return &splitRangeMappingOp{global: global, locals: locals, original: original, left: left, right: right}
}

func (o *splitRangeMappingOp) Kind() catalogmodel.OperationKind { return catalogmodel.OperationSplitMapping }
func (o *splitRangeMappingOp) MapID() uuid.UUID                 { return o.original.MapID }
func (o *splitRangeMappingOp) SourceShard() uuid.UUID           { return o.original.ShardID }
func (o *splitRangeMappingOp) TargetShard() uuid.UUID           { return o.right.ShardID }

func (o *splitRangeMappingOp) GlobalPreLocal(ctx context.Context) error {
	if err := o.global.UpdateRangeMapping(ctx, o.left); err != nil {
		return err
	}
	return o.global.AddRangeMapping(ctx, o.right)
}

func (o *splitRangeMappingOp) LocalSource(ctx context.Context) error {
	local, err := o.locals(o.left.ShardID)
	if err != nil {
		return err
	}
	return local.UpsertLocalRangeMapping(ctx, o.left)
}

func (o *splitRangeMappingOp) LocalTarget(ctx context.Context) error {
	local, err := o.locals(o.right.ShardID)
	if err != nil {
		return err
	}
	return local.UpsertLocalRangeMapping(ctx, o.right)
}

func (o *splitRangeMappingOp) GlobalPostLocal(ctx context.Context) error { return nil }

func (o *splitRangeMappingOp) UndoLocalTarget(ctx context.Context) error {
	local, err := o.locals(o.right.ShardID)
	if err != nil {
		return err
	}
	return local.RemoveLocalRangeMapping(ctx, o.right.ID)
}

func (o *splitRangeMappingOp) UndoLocalSource(ctx context.Context) error {
	local, err := o.locals(o.left.ShardID)
	if err != nil {
		return err
	}
	return local.UpsertLocalRangeMapping(ctx, o.original)
}

// UndoGlobalPostLocal reverses GlobalPreLocal: drop the new right half and
// restore the left half's original, unshrunk High. The left row's version
// was bumped once by GlobalPreLocal's update, so the restore targets that
// post-update version.
func (o *splitRangeMappingOp) UndoGlobalPostLocal(ctx context.Context) error {
	if err := o.global.RemoveRangeMapping(ctx, o.right.ID); err != nil {
		return err
	}
	restored := o.original
	restored.Version = o.left.Version + 1
	return o.global.UpdateRangeMapping(ctx, restored)
}

func (o *splitRangeMappingOp) Payload() []byte {
	return []byte(fmt.Sprintf("split-range:%s:%s:%s", o.original.MapID, o.original.ID, o.right.ID))
}

// mergeRangeMappingOp implements Operation for MergeMapping: two adjacent
// ranges (left.High == right.Low) collapse into one, keeping left's ID and
// shard and extending left.High to right.High, then dropping right.
type mergeRangeMappingOp struct {
	global catalogstore.GlobalStore
	locals LocalResolver
	left   catalogmodel.RangeMapping
	right  catalogmodel.RangeMapping
	merged catalogmodel.RangeMapping
}

// NewMergeRangeMappingOp constructs the MergeMapping operation. left and
// right must already be adjacent (left.High == right.Low) and share a shard
// (left.ShardID == right.ShardID); the façade is responsible for checking
// both before constructing this operation.
func NewMergeRangeMappingOp(global catalogstore.GlobalStore, locals LocalResolver, left, right catalogmodel.RangeMapping) Operation {
	merged := left
	merged.High = right.High
	return &mergeRangeMappingOp{global: global, locals: locals, left: left, right: right, merged: merged}
}

func (o *mergeRangeMappingOp) Kind() catalogmodel.OperationKind { return catalogmodel.OperationMergeMapping }
func (o *mergeRangeMappingOp) MapID() uuid.UUID                 { return o.left.MapID }
func (o *mergeRangeMappingOp) SourceShard() uuid.UUID           { return o.left.ShardID }
func (o *mergeRangeMappingOp) TargetShard() uuid.UUID           { return o.right.ShardID }

func (o *mergeRangeMappingOp) GlobalPreLocal(ctx context.Context) error {
	if err := o.global.UpdateRangeMapping(ctx, o.merged); err != nil {
		return err
	}
	return o.global.RemoveRangeMapping(ctx, o.right.ID)
}

func (o *mergeRangeMappingOp) LocalSource(ctx context.Context) error {
	local, err := o.locals(o.merged.ShardID)
	if err != nil {
		return err
	}
	return local.UpsertLocalRangeMapping(ctx, o.merged)
}

func (o *mergeRangeMappingOp) LocalTarget(ctx context.Context) error {
	if o.right.ShardID == o.left.ShardID {
		return nil
	}
	local, err := o.locals(o.right.ShardID)
	if err != nil {
		return err
	}
	return local.RemoveLocalRangeMapping(ctx, o.right.ID)
}

func (o *mergeRangeMappingOp) GlobalPostLocal(ctx context.Context) error { return nil }

func (o *mergeRangeMappingOp) UndoLocalTarget(ctx context.Context) error {
	if o.right.ShardID == o.left.ShardID {
		return nil
	}
	local, err := o.locals(o.right.ShardID)
	if err != nil {
		return err
	}
	return local.UpsertLocalRangeMapping(ctx, o.right)
}

func (o *mergeRangeMappingOp) UndoLocalSource(ctx context.Context) error {
	local, err := o.locals(o.left.ShardID)
	if err != nil {
		return err
	}
	return local.UpsertLocalRangeMapping(ctx, o.left)
}

// UndoGlobalPostLocal reverses GlobalPreLocal: restore left's original
// (pre-merge) High, then re-insert right. The merged row's version was
// bumped once by GlobalPreLocal's update. The shrink comes first because
// the merged row still covers right's range and would fail the re-insert's
// overlap check.
func (o *mergeRangeMappingOp) UndoGlobalPostLocal(ctx context.Context) error {
	restored := o.left
	restored.Version = o.merged.Version + 1
	if err := o.global.UpdateRangeMapping(ctx, restored); err != nil {
		return err
	}
	return o.global.AddRangeMapping(ctx, o.right)
}

func (o *mergeRangeMappingOp) Payload() []byte {
	return []byte(fmt.Sprintf("merge-range:%s:%s:%s", o.left.MapID, o.left.ID, o.right.ID))
}
