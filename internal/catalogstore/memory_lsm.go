package catalogstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
	"github.com/dreamware/shardcatalog/internal/shardmaperr"
)

// MemoryLocalStore is an in-memory LocalStore, the test-side counterpart to
// SQLLocalStore.
type MemoryLocalStore struct {
	mu       sync.RWMutex
	shardID  uuid.UUID
	mapID    uuid.UUID
	location catalogmodel.ShardLocation
	points   map[uuid.UUID]catalogmodel.PointMapping
	ranges   map[uuid.UUID]catalogmodel.RangeMapping
}

// NewMemoryLocalStore returns an empty, immediately-usable store.
func NewMemoryLocalStore() *MemoryLocalStore {
	return &MemoryLocalStore{
		points: make(map[uuid.UUID]catalogmodel.PointMapping),
		ranges: make(map[uuid.UUID]catalogmodel.RangeMapping),
	}
}

func (l *MemoryLocalStore) Close() error { return nil }

func (l *MemoryLocalStore) SetShardIdentity(_ context.Context, mapID, shardID uuid.UUID, loc catalogmodel.ShardLocation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mapID, l.shardID, l.location = mapID, shardID, loc
	return nil
}

func (l *MemoryLocalStore) UpsertLocalPointMapping(_ context.Context, m catalogmodel.PointMapping) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.points[m.ID] = m
	return nil
}

func (l *MemoryLocalStore) RemoveLocalPointMapping(_ context.Context, id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.points, id)
	return nil
}

func (l *MemoryLocalStore) GetLocalPointMapping(_ context.Context, mapID uuid.UUID, key []byte) (catalogmodel.PointMapping, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, m := range l.points {
		if m.MapID == mapID && string(m.Key) == string(key) {
			return m, nil
		}
	}
	return catalogmodel.PointMapping{}, shardmaperr.New(shardmaperr.CategoryListShardMap, shardmaperr.CodeMappingDoesNotExist,
		"no local mapping for key")
}

func (l *MemoryLocalStore) UpsertLocalRangeMapping(_ context.Context, m catalogmodel.RangeMapping) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ranges[m.ID] = m
	return nil
}

func (l *MemoryLocalStore) RemoveLocalRangeMapping(_ context.Context, id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.ranges, id)
	return nil
}

func (l *MemoryLocalStore) GetLocalRangeMappingForKey(_ context.Context, mapID uuid.UUID, key []byte) (catalogmodel.RangeMapping, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, m := range l.ranges {
		if m.MapID == mapID && keyInRange(key, m.Low, m.High) {
			return m, nil
		}
	}
	return catalogmodel.RangeMapping{}, shardmaperr.New(shardmaperr.CategoryListShardMap, shardmaperr.CodeMappingDoesNotExist,
		"no local range mapping covers key")
}
