package shardmgmt

import (
	"context"

	"github.com/google/uuid"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
	"github.com/dreamware/shardcatalog/internal/shardmaperr"
)

// Connection is the result of resolving a key to a shard: the location a
// caller should dial themselves, plus enough identity to detect a
// kill-on-offline event (spec.md §4.8) on a long-lived connection.
type Connection struct {
	Location catalogmodel.ShardLocation
	ShardID  [16]byte
	killed   func() bool
}

// Validate reports shardmaperr.ErrConnectionKilled if the shard this
// connection points at, or any mapping on that shard, has been taken
// offline since it was opened.
func (c Connection) Validate() error {
	if c.killed() {
		return shardmaperr.ErrConnectionKilled
	}
	return nil
}

// OpenConnectionForKey resolves key on l to its shard's location, validating
// against the mapping cache first and falling back to the catalog, per
// spec.md §4.5-§4.8. ConnectionOptionValidate forces a fresh catalog lookup
// even when a cache entry exists.
func (l *ListShardMap) OpenConnectionForKey(ctx context.Context, key any, opts ConnectionOptions) (Connection, error) {
	if opts&^knownConnectionOptions != 0 {
		return Connection{}, shardmaperr.ErrInvalidArgument
	}

	var mapping catalogmodel.PointMapping
	var err error
	if opts&ConnectionOptionValidate != 0 {
		var encoded []byte
		encoded, err = l.encode(key)
		if err == nil {
			mapping, err = l.mgr.global.GetPointMapping(ctx, l.meta.ID, encoded)
		}
	} else {
		mapping, err = l.GetMappingForKey(ctx, key)
	}
	if err != nil {
		return Connection{}, err
	}
	if mapping.Status == catalogmodel.MappingStatusOffline {
		return Connection{}, shardmaperr.New(shardmaperr.CategoryListShardMap, shardmaperr.CodeMappingIsOffline, "mapping is offline")
	}
	return l.mgr.openConnection(ctx, l.meta.ID, mapping.ShardID)
}

// OpenConnectionForKey resolves key on r to its shard's location.
func (r *RangeShardMap) OpenConnectionForKey(ctx context.Context, key any, opts ConnectionOptions) (Connection, error) {
	if opts&^knownConnectionOptions != 0 {
		return Connection{}, shardmaperr.ErrInvalidArgument
	}

	var mapping catalogmodel.RangeMapping
	var err error
	if opts&ConnectionOptionValidate != 0 {
		encoded, encErr := r.encode(key)
		if encErr != nil {
			return Connection{}, encErr
		}
		mapping, err = r.mgr.global.GetRangeMappingForKey(ctx, r.meta.ID, encoded)
	} else {
		mapping, err = r.GetMappingForKey(ctx, key)
	}
	if err != nil {
		return Connection{}, err
	}
	if mapping.Status == catalogmodel.MappingStatusOffline {
		return Connection{}, shardmaperr.New(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeMappingIsOffline, "mapping is offline")
	}
	return r.mgr.openConnection(ctx, r.meta.ID, mapping.ShardID)
}

// openConnection looks up shardID's location and wires it to the kill
// registry generation current at open time, so a caller can Validate a
// long-held Connection after taking that shard offline out from under it.
func (m *Manager) openConnection(ctx context.Context, mapID, shardID uuid.UUID) (Connection, error) {
	shards, err := m.global.GetShards(ctx, mapID)
	if err != nil {
		return Connection{}, err
	}
	for _, s := range shards {
		if s.ID != shardID {
			continue
		}
		if s.Status == catalogmodel.ShardStatusOffline {
			return Connection{}, shardmaperr.ErrConnectionKilled
		}
		gen := m.kill.CurrentGeneration(shardID)
		return Connection{
			Location: s.Location,
			ShardID:  s.ID,
			killed:   func() bool { return !m.kill.IsCurrent(shardID, gen) },
		}, nil
	}
	return Connection{}, shardmaperr.New(shardmaperr.CategoryShardMapManager, shardmaperr.CodeShardDoesNotExist, "shard not registered")
}

// OpenConnectionAsync resolves a connection without blocking the caller's
// goroutine, honoring ctx cancellation — the async counterpart spec.md §6
// calls for alongside the synchronous OpenConnectionForKey.
func (l *ListShardMap) OpenConnectionAsync(ctx context.Context, key any, opts ConnectionOptions) <-chan ConnectionResult {
	out := make(chan ConnectionResult, 1)
	go func() {
		conn, err := l.OpenConnectionForKey(ctx, key, opts)
		select {
		case out <- ConnectionResult{Connection: conn, Err: err}:
		case <-ctx.Done():
		}
	}()
	return out
}

// OpenConnectionAsync resolves a connection without blocking the caller's
// goroutine, honoring ctx cancellation.
func (r *RangeShardMap) OpenConnectionAsync(ctx context.Context, key any, opts ConnectionOptions) <-chan ConnectionResult {
	out := make(chan ConnectionResult, 1)
	go func() {
		conn, err := r.OpenConnectionForKey(ctx, key, opts)
		select {
		case out <- ConnectionResult{Connection: conn, Err: err}:
		case <-ctx.Done():
		}
	}()
	return out
}

// ConnectionResult is the value delivered on an OpenConnectionAsync channel.
type ConnectionResult struct {
	Connection Connection
	Err        error
}
