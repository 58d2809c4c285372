package shardmgmt

import (
	"bytes"
	"context"

	"github.com/google/uuid"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
	"github.com/dreamware/shardcatalog/internal/keycodec"
	"github.com/dreamware/shardcatalog/internal/opengine"
	"github.com/dreamware/shardcatalog/internal/shardmaperr"
)

// RangeShardMap is a typed handle onto a range shard map: contiguous
// half-open key ranges assigned to shards, per spec.md §3.
type RangeShardMap struct {
	mgr  *Manager
	meta catalogmodel.ShardMap
}

// ID returns the shard map's catalog identifier.
func (r *RangeShardMap) ID() uuid.UUID { return r.meta.ID }

// Name returns the shard map's name.
func (r *RangeShardMap) Name() string { return r.meta.Name }

// KeyType returns the shard map's declared key type.
func (r *RangeShardMap) KeyType() keycodec.KeyType { return r.meta.KeyType }

func (r *RangeShardMap) encode(key any) ([]byte, error) {
	return encodeKey(r.meta.KeyType, key)
}

// CreateRangeMapping registers [low, high) on shardID. A nil low means
// negative infinity; a nil high means positive infinity
// (keycodec.NegativeInfinity/PositiveInfinity).
func (r *RangeShardMap) CreateRangeMapping(ctx context.Context, shardID uuid.UUID, low, high any) (catalogmodel.RangeMapping, error) {
	lowBytes, err := r.boundary(low)
	if err != nil {
		return catalogmodel.RangeMapping{}, err
	}
	highBytes, err := r.boundary(high)
	if err != nil {
		return catalogmodel.RangeMapping{}, err
	}

	mapping := catalogmodel.RangeMapping{
		ID: uuid.New(), MapID: r.meta.ID, ShardID: shardID,
		Low: lowBytes, High: highBytes, Status: catalogmodel.MappingStatusOnline,
	}

	op := opengine.NewAddRangeMappingOp(r.mgr.global, r.mgr.localResolver(ctx, r.meta.ID), mapping)
	if err := r.mgr.runner.Run(ctx, op); err != nil {
		return catalogmodel.RangeMapping{}, err
	}
	return mapping, nil
}

func (r *RangeShardMap) boundary(key any) ([]byte, error) {
	if key == nil {
		return keycodec.NegativeInfinity(), nil
	}
	return r.encode(key)
}

// SplitMapping splits the range mapping currently covering splitKey into
// two, assigning the new upper half to rightShardID (which may equal the
// original shard to split without relocating). Both halves inherit the
// original's lock token (spec.md §8 invariant 6); if the original is
// locked, token must match.
func (r *RangeShardMap) SplitMapping(ctx context.Context, splitKey any, rightShardID, token uuid.UUID) (catalogmodel.RangeMapping, catalogmodel.RangeMapping, error) {
	encoded, err := r.encode(splitKey)
	if err != nil {
		return catalogmodel.RangeMapping{}, catalogmodel.RangeMapping{}, err
	}

	original, err := r.mgr.global.GetRangeMappingForKey(ctx, r.meta.ID, encoded)
	if err != nil {
		return catalogmodel.RangeMapping{}, catalogmodel.RangeMapping{}, err
	}
	if err := checkLockToken(shardmaperr.CategoryRangeShardMap, original.IsLocked(), original.LockOwnerID, token); err != nil {
		return catalogmodel.RangeMapping{}, catalogmodel.RangeMapping{}, err
	}
	if len(original.Low) > 0 && bytes.Equal(original.Low, encoded) {
		return catalogmodel.RangeMapping{}, catalogmodel.RangeMapping{}, shardmaperr.ErrInvalidArgument
	}

	op := opengine.NewSplitRangeMappingOp(r.mgr.global, r.mgr.localResolver(ctx, r.meta.ID), original, encoded, rightShardID)
	if err := r.mgr.runner.Run(ctx, op); err != nil {
		return catalogmodel.RangeMapping{}, catalogmodel.RangeMapping{}, err
	}
	r.mgr.cache.InvalidateMap(r.meta.ID.String())

	left, err := r.mgr.global.GetRangeMappingForKey(ctx, r.meta.ID, original.Low)
	if err != nil {
		return catalogmodel.RangeMapping{}, catalogmodel.RangeMapping{}, err
	}
	right, err := r.mgr.global.GetRangeMappingForKey(ctx, r.meta.ID, encoded)
	if err != nil {
		return catalogmodel.RangeMapping{}, catalogmodel.RangeMapping{}, err
	}
	return left, right, nil
}

// MergeMapping merges two adjacent range mappings (left.High == right.Low)
// already on the same shard (left.ShardID == right.ShardID) into one,
// keeping left's shard assignment. If either half is locked, token must
// match its owner.
func (r *RangeShardMap) MergeMapping(ctx context.Context, left, right catalogmodel.RangeMapping, token uuid.UUID) (catalogmodel.RangeMapping, error) {
	if !bytes.Equal(left.High, right.Low) {
		return catalogmodel.RangeMapping{}, shardmaperr.New(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeInvalidArgument,
			"ranges are not adjacent")
	}
	if left.ShardID != right.ShardID {
		return catalogmodel.RangeMapping{}, shardmaperr.New(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeInvalidArgument,
			"ranges are not on the same shard")
	}
	if err := checkLockToken(shardmaperr.CategoryRangeShardMap, left.IsLocked(), left.LockOwnerID, token); err != nil {
		return catalogmodel.RangeMapping{}, err
	}
	if err := checkLockToken(shardmaperr.CategoryRangeShardMap, right.IsLocked(), right.LockOwnerID, token); err != nil {
		return catalogmodel.RangeMapping{}, err
	}

	op := opengine.NewMergeRangeMappingOp(r.mgr.global, r.mgr.localResolver(ctx, r.meta.ID), left, right)
	if err := r.mgr.runner.Run(ctx, op); err != nil {
		return catalogmodel.RangeMapping{}, err
	}
	r.mgr.cache.InvalidateMap(r.meta.ID.String())

	return r.mgr.global.GetRangeMappingForKey(ctx, r.meta.ID, left.Low)
}

// GetMappingForKey resolves key to the range mapping currently covering it,
// consulting the mapping cache before falling back to the global catalog.
func (r *RangeShardMap) GetMappingForKey(ctx context.Context, key any) (catalogmodel.RangeMapping, error) {
	encoded, err := r.encode(key)
	if err != nil {
		return catalogmodel.RangeMapping{}, err
	}

	if cached, ok := r.mgr.cache.GetRange(r.meta.ID.String(), encoded); ok {
		return cached, nil
	}

	mapping, err := r.mgr.global.GetRangeMappingForKey(ctx, r.meta.ID, encoded)
	if err != nil {
		return catalogmodel.RangeMapping{}, err
	}
	r.mgr.cache.PutRange(r.meta.ID.String(), encoded, mapping)
	return mapping, nil
}

// GetMappings lists every range mapping registered under this shard map.
func (r *RangeShardMap) GetMappings(ctx context.Context) ([]catalogmodel.RangeMapping, error) {
	return r.mgr.global.ListRangeMappings(ctx, r.meta.ID)
}

// SetStatus transitions a range mapping online/offline. Unlike
// ListShardMap.SetStatus it is not run through the operation engine: like
// Relocate, it is a direct GSM-plus-LSM mutation. If the mapping is
// locked, token must match its lock owner.
func (r *RangeShardMap) SetStatus(ctx context.Context, key any, status catalogmodel.MappingStatus, token uuid.UUID) error {
	encoded, err := r.encode(key)
	if err != nil {
		return err
	}
	mapping, err := r.mgr.global.GetRangeMappingForKey(ctx, r.meta.ID, encoded)
	if err != nil {
		return err
	}
	if err := checkLockToken(shardmaperr.CategoryRangeShardMap, mapping.IsLocked(), mapping.LockOwnerID, token); err != nil {
		return err
	}
	mapping.Status = status
	if err := r.mgr.global.UpdateRangeMapping(ctx, mapping); err != nil {
		return err
	}
	if local, err := r.mgr.localResolver(ctx, r.meta.ID)(mapping.ShardID); err == nil {
		if err := local.UpsertLocalRangeMapping(ctx, mapping); err != nil {
			return err
		}
	}
	r.mgr.cache.InvalidateMap(r.meta.ID.String())
	if status == catalogmodel.MappingStatusOffline {
		r.mgr.kill.MarkOffline(mapping.ShardID)
	}
	return nil
}

// Relocate changes a range mapping's shard assignment. The mapping must
// already be offline, mirroring ListShardMap.Relocate; it is a direct
// GSM-plus-LSM mutation bypassing the operation engine.
func (r *RangeShardMap) Relocate(ctx context.Context, key any, newShardID, token uuid.UUID) error {
	encoded, err := r.encode(key)
	if err != nil {
		return err
	}
	mapping, err := r.mgr.global.GetRangeMappingForKey(ctx, r.meta.ID, encoded)
	if err != nil {
		return err
	}
	if err := checkLockToken(shardmaperr.CategoryRangeShardMap, mapping.IsLocked(), mapping.LockOwnerID, token); err != nil {
		return err
	}
	if mapping.Status != catalogmodel.MappingStatusOffline {
		return shardmaperr.New(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeMappingIsNotOffline,
			"mapping must be taken offline before it can be relocated")
	}

	oldShard := mapping.ShardID
	mapping.ShardID = newShardID
	if err := r.mgr.global.UpdateRangeMapping(ctx, mapping); err != nil {
		return err
	}

	resolver := r.mgr.localResolver(ctx, r.meta.ID)
	if oldLocal, err := resolver(oldShard); err == nil {
		_ = oldLocal.RemoveLocalRangeMapping(ctx, mapping.ID)
	}
	if newLocal, err := resolver(newShardID); err == nil {
		if err := newLocal.UpsertLocalRangeMapping(ctx, mapping); err != nil {
			return err
		}
	}
	r.mgr.cache.InvalidateMap(r.meta.ID.String())
	return nil
}

// UnlockAllMappings clears every range mapping on this map locked by owner,
// mirroring ListShardMap.UnlockAllMappings.
func (r *RangeShardMap) UnlockAllMappings(ctx context.Context, owner uuid.UUID) error {
	mappings, err := r.mgr.global.ListRangeMappings(ctx, r.meta.ID)
	if err != nil {
		return err
	}
	for _, m := range mappings {
		if m.LockOwnerID != owner {
			continue
		}
		m.LockOwnerID = catalogmodel.UnlockedToken
		if err := r.mgr.global.UpdateRangeMapping(ctx, m); err != nil {
			return err
		}
	}
	r.mgr.cache.InvalidateMap(r.meta.ID.String())
	return nil
}

// LockMapping acquires a lock on the range mapping under owner.
func (r *RangeShardMap) LockMapping(ctx context.Context, key any, owner uuid.UUID) error {
	if owner == catalogmodel.UnlockedToken || owner == catalogmodel.ForceUnlockToken {
		return shardmaperr.ErrInvalidArgument
	}
	encoded, err := r.encode(key)
	if err != nil {
		return err
	}
	mapping, err := r.mgr.global.GetRangeMappingForKey(ctx, r.meta.ID, encoded)
	if err != nil {
		return err
	}
	if mapping.IsLocked() {
		return shardmaperr.New(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeMappingAlreadyLocked, "mapping already locked")
	}
	mapping.LockOwnerID = owner
	return r.mgr.global.UpdateRangeMapping(ctx, mapping)
}

// UnlockMapping releases a lock, honoring the ForceUnlockToken override
// rule (SPEC_FULL Open Question #3).
func (r *RangeShardMap) UnlockMapping(ctx context.Context, key any, owner uuid.UUID) error {
	encoded, err := r.encode(key)
	if err != nil {
		return err
	}
	mapping, err := r.mgr.global.GetRangeMappingForKey(ctx, r.meta.ID, encoded)
	if err != nil {
		return err
	}
	if !mapping.IsLocked() {
		return nil
	}
	if owner != catalogmodel.ForceUnlockToken && mapping.LockOwnerID != owner {
		return shardmaperr.New(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeMappingLockOwnerIDDoesNotMatch, "lock owner id does not match")
	}
	mapping.LockOwnerID = catalogmodel.UnlockedToken
	return r.mgr.global.UpdateRangeMapping(ctx, mapping)
}
