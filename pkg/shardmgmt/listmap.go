package shardmgmt

import (
	"context"

	"github.com/google/uuid"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
	"github.com/dreamware/shardcatalog/internal/keycodec"
	"github.com/dreamware/shardcatalog/internal/opengine"
	"github.com/dreamware/shardcatalog/internal/shardmaperr"
)

// ListShardMap is a typed handle onto a list shard map: one encoded key per
// shard, per spec.md §3.
type ListShardMap struct {
	mgr  *Manager
	meta catalogmodel.ShardMap
}

// ID returns the shard map's catalog identifier.
func (l *ListShardMap) ID() uuid.UUID { return l.meta.ID }

// Name returns the shard map's name.
func (l *ListShardMap) Name() string { return l.meta.Name }

// KeyType returns the shard map's declared key type.
func (l *ListShardMap) KeyType() keycodec.KeyType { return l.meta.KeyType }

func (l *ListShardMap) encode(key any) ([]byte, error) {
	return encodeKey(l.meta.KeyType, key)
}

// CreatePointMapping assigns key to shardID, running the AddMapping
// operation through the operation engine so a crash mid-commit leaves
// behind a log entry the recovery scanner can unwind (spec.md §4.4).
func (l *ListShardMap) CreatePointMapping(ctx context.Context, shardID uuid.UUID, key any) (catalogmodel.PointMapping, error) {
	encoded, err := l.encode(key)
	if err != nil {
		return catalogmodel.PointMapping{}, err
	}

	mapping := catalogmodel.PointMapping{
		ID:      uuid.New(),
		MapID:   l.meta.ID,
		ShardID: shardID,
		Key:     encoded,
		Status:  catalogmodel.MappingStatusOnline,
	}

	op := opengine.NewAddPointMappingOp(l.mgr.global, l.mgr.localResolver(ctx, l.meta.ID), mapping)
	if err := l.mgr.runner.Run(ctx, op); err != nil {
		return catalogmodel.PointMapping{}, err
	}
	l.mgr.cache.PutPoint(l.meta.ID.String(), encoded, mapping)
	return mapping, nil
}

// RemovePointMapping deletes a mapping. The mapping must already be offline,
// mirroring spec.md §4.3's offline-before-mutate invariant, and if locked,
// token must match its lock owner.
func (l *ListShardMap) RemovePointMapping(ctx context.Context, key any, token uuid.UUID) error {
	encoded, err := l.encode(key)
	if err != nil {
		return err
	}

	mapping, err := l.mgr.global.GetPointMapping(ctx, l.meta.ID, encoded)
	if err != nil {
		return err
	}
	if err := checkLockToken(shardmaperr.CategoryListShardMap, mapping.IsLocked(), mapping.LockOwnerID, token); err != nil {
		return err
	}
	if mapping.Status != catalogmodel.MappingStatusOffline {
		return shardmaperr.New(shardmaperr.CategoryListShardMap, shardmaperr.CodeMappingIsNotOffline,
			"mapping must be taken offline before it can be removed")
	}

	op := opengine.NewRemovePointMappingOp(l.mgr.global, l.mgr.localResolver(ctx, l.meta.ID), mapping)
	if err := l.mgr.runner.Run(ctx, op); err != nil {
		return err
	}
	l.mgr.cache.Invalidate(l.meta.ID.String(), encoded)
	return nil
}

// GetMappingForKey resolves key to its current mapping, consulting the
// mapping cache before falling back to the global catalog (spec.md §4.5).
func (l *ListShardMap) GetMappingForKey(ctx context.Context, key any) (catalogmodel.PointMapping, error) {
	encoded, err := l.encode(key)
	if err != nil {
		return catalogmodel.PointMapping{}, err
	}

	if cached, ok := l.mgr.cache.GetPoint(l.meta.ID.String(), encoded); ok {
		return cached, nil
	}

	mapping, err := l.mgr.global.GetPointMapping(ctx, l.meta.ID, encoded)
	if err != nil {
		return catalogmodel.PointMapping{}, err
	}
	l.mgr.cache.PutPoint(l.meta.ID.String(), encoded, mapping)
	return mapping, nil
}

// GetMappings lists every point mapping registered under this shard map.
func (l *ListShardMap) GetMappings(ctx context.Context) ([]catalogmodel.PointMapping, error) {
	return l.mgr.global.ListPointMappings(ctx, l.meta.ID)
}

// SetStatus transitions a mapping online/offline. The status change runs
// through the operation engine as its own operation (SPEC_FULL Open
// Question #1), independent from any location change. If the mapping is
// locked, token must match its lock owner.
func (l *ListShardMap) SetStatus(ctx context.Context, key any, status catalogmodel.MappingStatus, token uuid.UUID) error {
	encoded, err := l.encode(key)
	if err != nil {
		return err
	}
	mapping, err := l.mgr.global.GetPointMapping(ctx, l.meta.ID, encoded)
	if err != nil {
		return err
	}
	if err := checkLockToken(shardmaperr.CategoryListShardMap, mapping.IsLocked(), mapping.LockOwnerID, token); err != nil {
		return err
	}
	prev := mapping.Status
	mapping.Status = status

	op := opengine.NewUpdateMappingStatusOp(l.mgr.global, l.mgr.localResolver(ctx, l.meta.ID), mapping, prev)
	if err := l.mgr.runner.Run(ctx, op); err != nil {
		return err
	}
	l.mgr.cache.Invalidate(l.meta.ID.String(), encoded)
	if status == catalogmodel.MappingStatusOffline {
		l.mgr.kill.MarkOffline(mapping.ShardID)
	}
	return nil
}

// Relocate changes a mapping's shard assignment. The mapping must already be
// offline, matching spec.md §4.3's offline-before-mutate invariant; this is
// the location half of UpdateMapping's two sub-steps (SPEC_FULL Open
// Question #1 — status is changed first, via SetStatus, as its own call).
// It is a single GSM-plus-LSM mutation, not run through the operation
// engine: retrying it after a partial failure is safe, since the mapping
// stays offline and invisible to readers throughout.
func (l *ListShardMap) Relocate(ctx context.Context, key any, newShardID, token uuid.UUID) error {
	encoded, err := l.encode(key)
	if err != nil {
		return err
	}
	mapping, err := l.mgr.global.GetPointMapping(ctx, l.meta.ID, encoded)
	if err != nil {
		return err
	}
	if err := checkLockToken(shardmaperr.CategoryListShardMap, mapping.IsLocked(), mapping.LockOwnerID, token); err != nil {
		return err
	}
	if mapping.Status != catalogmodel.MappingStatusOffline {
		return shardmaperr.New(shardmaperr.CategoryListShardMap, shardmaperr.CodeMappingIsNotOffline,
			"mapping must be taken offline before it can be relocated")
	}

	oldShard := mapping.ShardID
	mapping.ShardID = newShardID
	if err := l.mgr.global.UpdatePointMapping(ctx, mapping); err != nil {
		return err
	}

	resolver := l.mgr.localResolver(ctx, l.meta.ID)
	if oldLocal, err := resolver(oldShard); err == nil {
		_ = oldLocal.RemoveLocalPointMapping(ctx, mapping.ID)
	}
	if newLocal, err := resolver(newShardID); err == nil {
		if err := newLocal.UpsertLocalPointMapping(ctx, mapping); err != nil {
			return err
		}
	}
	l.mgr.cache.Invalidate(l.meta.ID.String(), encoded)
	return nil
}

// UnlockAllMappings clears every mapping on this map locked by owner
// (spec.md §8 invariant 4: "UnlockMapping(token) clears every mapping with
// that owner"), rather than requiring the caller to look each one up by key.
func (l *ListShardMap) UnlockAllMappings(ctx context.Context, owner uuid.UUID) error {
	mappings, err := l.mgr.global.ListPointMappings(ctx, l.meta.ID)
	if err != nil {
		return err
	}
	for _, m := range mappings {
		if m.LockOwnerID != owner {
			continue
		}
		m.LockOwnerID = catalogmodel.UnlockedToken
		if err := l.mgr.global.UpdatePointMapping(ctx, m); err != nil {
			return err
		}
		l.mgr.cache.Invalidate(l.meta.ID.String(), m.Key)
	}
	return nil
}

// LockMapping acquires a lock on the mapping under owner, failing if it is
// already locked by any owner, including owner itself. Locking is a single
// GSM-only mutation (the LSM copy of the mapping is not updated), so it bypasses the
// operation engine and relies on the store's optimistic-concurrency update.
func (l *ListShardMap) LockMapping(ctx context.Context, key any, owner uuid.UUID) error {
	if owner == catalogmodel.UnlockedToken || owner == catalogmodel.ForceUnlockToken {
		return shardmaperr.ErrInvalidArgument
	}
	encoded, err := l.encode(key)
	if err != nil {
		return err
	}
	mapping, err := l.mgr.global.GetPointMapping(ctx, l.meta.ID, encoded)
	if err != nil {
		return err
	}
	if mapping.IsLocked() {
		return shardmaperr.New(shardmaperr.CategoryListShardMap, shardmaperr.CodeMappingAlreadyLocked, "mapping already locked")
	}
	mapping.LockOwnerID = owner
	return l.mgr.global.UpdatePointMapping(ctx, mapping)
}

// UnlockMapping releases a lock. owner must match the current lock holder,
// unless owner is catalogmodel.ForceUnlockToken (SPEC_FULL Open Question
// #3), which clears any lock regardless of who holds it.
func (l *ListShardMap) UnlockMapping(ctx context.Context, key any, owner uuid.UUID) error {
	encoded, err := l.encode(key)
	if err != nil {
		return err
	}
	mapping, err := l.mgr.global.GetPointMapping(ctx, l.meta.ID, encoded)
	if err != nil {
		return err
	}
	if !mapping.IsLocked() {
		return nil
	}
	if owner != catalogmodel.ForceUnlockToken && mapping.LockOwnerID != owner {
		return shardmaperr.New(shardmaperr.CategoryListShardMap, shardmaperr.CodeMappingLockOwnerIDDoesNotMatch, "lock owner id does not match")
	}
	mapping.LockOwnerID = catalogmodel.UnlockedToken
	return l.mgr.global.UpdatePointMapping(ctx, mapping)
}
