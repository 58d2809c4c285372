package catalogstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
	"github.com/dreamware/shardcatalog/internal/shardmaperr"
)

// MemoryGlobalStore is an in-memory GlobalStore used by tests that want the
// catalog's business rules (overlap checks, optimistic concurrency, the
// operations log) without a SQLite file. It is structured the way the
// teacher's ShardRegistry is: one mutex guarding a handful of maps, with
// every accessor returning a defensive copy.
type MemoryGlobalStore struct {
	mu sync.RWMutex

	mapsByName map[string]catalogmodel.ShardMap
	shards     map[uuid.UUID]catalogmodel.Shard
	points     map[uuid.UUID]catalogmodel.PointMapping
	ranges     map[uuid.UUID]catalogmodel.RangeMapping
	ops        map[uuid.UUID]catalogmodel.PendingOperation
}

// NewMemoryGlobalStore returns an empty, immediately-usable store.
func NewMemoryGlobalStore() *MemoryGlobalStore {
	return &MemoryGlobalStore{
		mapsByName: make(map[string]catalogmodel.ShardMap),
		shards:     make(map[uuid.UUID]catalogmodel.Shard),
		points:     make(map[uuid.UUID]catalogmodel.PointMapping),
		ranges:     make(map[uuid.UUID]catalogmodel.RangeMapping),
		ops:        make(map[uuid.UUID]catalogmodel.PendingOperation),
	}
}

func (g *MemoryGlobalStore) Close() error { return nil }

func (g *MemoryGlobalStore) CreateShardMap(_ context.Context, m catalogmodel.ShardMap) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.mapsByName[m.Name]; ok {
		return shardmaperr.New(shardmaperr.CategoryShardMapManager, shardmaperr.CodeShardMapAlreadyExists,
			"shard map "+m.Name+" already exists")
	}
	g.mapsByName[m.Name] = m
	return nil
}

func (g *MemoryGlobalStore) GetShardMap(_ context.Context, name string) (catalogmodel.ShardMap, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.mapsByName[name]
	if !ok {
		return catalogmodel.ShardMap{}, shardmaperr.New(shardmaperr.CategoryShardMapManager, shardmaperr.CodeShardMapDoesNotExist,
			"shard map "+name+" does not exist")
	}
	return m, nil
}

func (g *MemoryGlobalStore) DeleteShardMap(_ context.Context, id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for name, m := range g.mapsByName {
		if m.ID == id {
			delete(g.mapsByName, name)
			return nil
		}
	}
	return shardmaperr.New(shardmaperr.CategoryShardMapManager, shardmaperr.CodeShardMapDoesNotExist, "shard map does not exist")
}

func (g *MemoryGlobalStore) AddShard(_ context.Context, s catalogmodel.Shard) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, existing := range g.shards {
		if existing.MapID == s.MapID && existing.Location == s.Location {
			return shardmaperr.New(shardmaperr.CategoryShardMapManager, shardmaperr.CodeShardLocationAlreadyExists,
				"shard location already registered")
		}
	}
	g.shards[s.ID] = s
	return nil
}

func (g *MemoryGlobalStore) RemoveShard(_ context.Context, id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.shards[id]; !ok {
		return shardmaperr.New(shardmaperr.CategoryShardMapManager, shardmaperr.CodeShardDoesNotExist, "shard does not exist")
	}
	delete(g.shards, id)
	return nil
}

func (g *MemoryGlobalStore) GetShards(_ context.Context, mapID uuid.UUID) ([]catalogmodel.Shard, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []catalogmodel.Shard
	for _, s := range g.shards {
		if s.MapID == mapID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (g *MemoryGlobalStore) SetShardStatus(_ context.Context, id uuid.UUID, status catalogmodel.ShardStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.shards[id]
	if !ok {
		return shardmaperr.New(shardmaperr.CategoryShardMapManager, shardmaperr.CodeShardDoesNotExist, "shard does not exist")
	}
	s.Status = status
	s.Version++
	g.shards[id] = s
	return nil
}

func (g *MemoryGlobalStore) AddPointMapping(_ context.Context, m catalogmodel.PointMapping) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, existing := range g.points {
		if existing.MapID == m.MapID && string(existing.Key) == string(m.Key) {
			return shardmaperr.New(shardmaperr.CategoryListShardMap, shardmaperr.CodeMappingPointAlreadyMapped, "key is already mapped")
		}
	}
	g.points[m.ID] = m
	return nil
}

func (g *MemoryGlobalStore) RemovePointMapping(_ context.Context, id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.points[id]; !ok {
		return shardmaperr.New(shardmaperr.CategoryListShardMap, shardmaperr.CodeMappingDoesNotExist, "point mapping does not exist")
	}
	delete(g.points, id)
	return nil
}

func (g *MemoryGlobalStore) GetPointMapping(_ context.Context, mapID uuid.UUID, key []byte) (catalogmodel.PointMapping, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, m := range g.points {
		if m.MapID == mapID && string(m.Key) == string(key) {
			return m, nil
		}
	}
	return catalogmodel.PointMapping{}, shardmaperr.New(shardmaperr.CategoryListShardMap, shardmaperr.CodeMappingDoesNotExist, "no mapping for key")
}

func (g *MemoryGlobalStore) ListPointMappings(_ context.Context, mapID uuid.UUID) ([]catalogmodel.PointMapping, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []catalogmodel.PointMapping
	for _, m := range g.points {
		if m.MapID == mapID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (g *MemoryGlobalStore) UpdatePointMapping(_ context.Context, m catalogmodel.PointMapping) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	existing, ok := g.points[m.ID]
	if !ok {
		return shardmaperr.New(shardmaperr.CategoryListShardMap, shardmaperr.CodeMappingDoesNotExist, "point mapping does not exist")
	}
	if existing.Version != m.Version {
		return shardmaperr.New(shardmaperr.CategoryListShardMap, shardmaperr.CodeVersionMismatch, "mapping was modified concurrently")
	}
	m.Version++
	g.points[m.ID] = m
	return nil
}

func (g *MemoryGlobalStore) AddRangeMapping(_ context.Context, m catalogmodel.RangeMapping) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, existing := range g.ranges {
		if existing.MapID != m.MapID {
			continue
		}
		if rangesOverlap(m.Low, m.High, existing.Low, existing.High) {
			return shardmaperr.New(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeMappingRangeAlreadyMapped,
				"range overlaps an existing mapping")
		}
	}
	g.ranges[m.ID] = m
	return nil
}

func (g *MemoryGlobalStore) RemoveRangeMapping(_ context.Context, id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.ranges[id]; !ok {
		return shardmaperr.New(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeMappingDoesNotExist, "range mapping does not exist")
	}
	delete(g.ranges, id)
	return nil
}

func (g *MemoryGlobalStore) GetRangeMappingForKey(_ context.Context, mapID uuid.UUID, key []byte) (catalogmodel.RangeMapping, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, m := range g.ranges {
		if m.MapID == mapID && keyInRange(key, m.Low, m.High) {
			return m, nil
		}
	}
	return catalogmodel.RangeMapping{}, shardmaperr.New(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeMappingDoesNotExist,
		"no range mapping covers key")
}

func (g *MemoryGlobalStore) ListRangeMappings(_ context.Context, mapID uuid.UUID) ([]catalogmodel.RangeMapping, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []catalogmodel.RangeMapping
	for _, m := range g.ranges {
		if m.MapID == mapID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (g *MemoryGlobalStore) UpdateRangeMapping(_ context.Context, m catalogmodel.RangeMapping) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	existing, ok := g.ranges[m.ID]
	if !ok {
		return shardmaperr.New(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeMappingDoesNotExist, "range mapping does not exist")
	}
	if existing.Version != m.Version {
		return shardmaperr.New(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeVersionMismatch, "mapping was modified concurrently")
	}
	m.Version++
	g.ranges[m.ID] = m
	return nil
}

func (g *MemoryGlobalStore) LogOperation(_ context.Context, op catalogmodel.PendingOperation) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops[op.ID] = op
	return nil
}

func (g *MemoryGlobalStore) AdvanceOperation(_ context.Context, id uuid.UUID, phase catalogmodel.OperationPhase) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	op, ok := g.ops[id]
	if !ok {
		return shardmaperr.New(shardmaperr.CategoryRecovery, shardmaperr.CodeMappingDoesNotExist, "pending operation does not exist")
	}
	op.Phase = phase
	g.ops[id] = op
	return nil
}

func (g *MemoryGlobalStore) DeleteOperation(_ context.Context, id uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.ops, id)
	return nil
}

func (g *MemoryGlobalStore) ListPendingOperations(_ context.Context) ([]catalogmodel.PendingOperation, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]catalogmodel.PendingOperation, 0, len(g.ops))
	for _, op := range g.ops {
		out = append(out, op)
	}
	return out, nil
}
