package shardmgmt

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
	"github.com/dreamware/shardcatalog/internal/catalogstore"
	"github.com/dreamware/shardcatalog/internal/keycodec"
	"github.com/dreamware/shardcatalog/internal/mapcache"
	"github.com/dreamware/shardcatalog/internal/opengine"
	"github.com/dreamware/shardcatalog/internal/shardmaperr"
)

// Manager is the ShardMapManager of spec.md §6: the entry point for
// creating and looking up shard maps, opening shard connections, and
// running catalog mutations through the operation engine.
type Manager struct {
	opts   ManagerOptions
	global catalogstore.GlobalStore
	cache  *mapcache.Cache
	runner *opengine.Runner
	kill   *catalogstore.KillRegistry
	logger *zap.Logger

	mu     sync.Mutex
	locals map[uuid.UUID]catalogstore.LocalStore
}

func newManager(global catalogstore.GlobalStore, opts ManagerOptions) *Manager {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CacheBaseTTL <= 0 {
		opts.CacheBaseTTL = DefaultCacheBaseTTL
	}
	if opts.CacheMaxTTL <= 0 {
		opts.CacheMaxTTL = DefaultCacheMaxTTL
	}
	if opts.RetryPolicy.MaxAttempts <= 0 {
		opts.RetryPolicy = opengine.DefaultPolicy
	}

	m := &Manager{
		opts:   opts,
		global: global,
		cache:  mapcache.New(opts.CacheBaseTTL, opts.CacheMaxTTL),
		kill:   catalogstore.NewKillRegistry(),
		logger: opts.Logger,
		locals: make(map[uuid.UUID]catalogstore.LocalStore),
	}
	runner := opengine.NewRunner(global)
	runner.Retry = opts.RetryPolicy
	runner.Logger = opts.Logger
	if opts.Factory != nil {
		runner.Factory = opts.Factory
	}
	m.runner = runner
	return m
}

// NewSqlShardMapManager opens (creating if necessary) a SQLite-backed
// global catalog and runs the recovery scanner over any pending operations
// left behind by a previous crash before returning, per spec.md §4.9.
func NewSqlShardMapManager(ctx context.Context, opts ManagerOptions) (*Manager, error) {
	if opts.GlobalCatalogPath == "" {
		return nil, shardmaperr.ErrInvalidArgument
	}
	global, err := catalogstore.NewSQLGlobalStore(opts.GlobalCatalogPath, opts.Logger)
	if err != nil {
		return nil, err
	}
	m := newManager(global, opts)
	if err := m.recover(ctx); err != nil {
		global.Close()
		return nil, err
	}
	return m, nil
}

// NewMemoryShardMapManager builds a Manager over in-memory stores, for
// tests and short-lived tooling that don't want a SQLite file.
func NewMemoryShardMapManager(opts ManagerOptions) *Manager {
	return newManager(catalogstore.NewMemoryGlobalStore(), opts)
}

// recover runs the operation engine's recovery scanner using a rehydrator
// that reconstructs no operation kind: a pending-operation payload from
// this façade carries only map and mapping ids, not the mapping itself.
// Rows that already reached GlobalPostLocal are cleared by the scanner;
// every other crash-left row is logged, skipped and left in the operations
// log, and its partial effects are not undone.
func (m *Manager) recover(ctx context.Context) error {
	rehydrator := opengine.RehydratorFunc(func(ctx context.Context, p catalogmodel.PendingOperation) (opengine.Operation, error) {
		return nil, fmt.Errorf("shardmgmt: no rehydrator registered for operation %s", p.Kind)
	})
	scanner := opengine.NewScanner(m.global, rehydrator, m.runner)
	scanner.Logger = m.logger
	return scanner.Run(ctx)
}

// Close releases the Manager's catalog connections.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, local := range m.locals {
		local.Close()
	}
	return m.global.Close()
}

func (m *Manager) localStore(shard catalogmodel.Shard) (catalogstore.LocalStore, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if local, ok := m.locals[shard.ID]; ok {
		return local, nil
	}

	var local catalogstore.LocalStore
	if m.opts.LocalCatalogDir == "" {
		local = catalogstore.NewMemoryLocalStore()
	} else {
		path := filepath.Join(m.opts.LocalCatalogDir, shard.ID.String()+".db")
		sqlLocal, err := catalogstore.NewSQLLocalStore(path, m.logger)
		if err != nil {
			return nil, err
		}
		local = sqlLocal
	}
	if err := local.SetShardIdentity(context.Background(), shard.MapID, shard.ID, shard.Location); err != nil {
		return nil, err
	}
	m.locals[shard.ID] = local
	return local, nil
}

func (m *Manager) localResolver(ctx context.Context, mapID uuid.UUID) opengine.LocalResolver {
	return func(shardID uuid.UUID) (catalogstore.LocalStore, error) {
		shards, err := m.global.GetShards(ctx, mapID)
		if err != nil {
			return nil, err
		}
		for _, s := range shards {
			if s.ID == shardID {
				return m.localStore(s)
			}
		}
		return nil, shardmaperr.New(shardmaperr.CategoryShardMapManager, shardmaperr.CodeShardDoesNotExist, "shard not registered")
	}
}

// CreateListShardMap registers a new list shard map and returns a typed
// handle to it.
func (m *Manager) CreateListShardMap(ctx context.Context, name string, keyType keycodec.KeyType) (*ListShardMap, error) {
	sm := catalogmodel.ShardMap{ID: uuid.New(), Name: name, Type: catalogmodel.ShardMapTypeList, KeyType: keyType}
	if err := m.global.CreateShardMap(ctx, sm); err != nil {
		return nil, err
	}
	return &ListShardMap{mgr: m, meta: sm}, nil
}

// CreateRangeShardMap registers a new range shard map and returns a typed
// handle to it.
func (m *Manager) CreateRangeShardMap(ctx context.Context, name string, keyType keycodec.KeyType) (*RangeShardMap, error) {
	sm := catalogmodel.ShardMap{ID: uuid.New(), Name: name, Type: catalogmodel.ShardMapTypeRange, KeyType: keyType}
	if err := m.global.CreateShardMap(ctx, sm); err != nil {
		return nil, err
	}
	return &RangeShardMap{mgr: m, meta: sm}, nil
}

// GetListShardMap looks up an existing list shard map by name.
func (m *Manager) GetListShardMap(ctx context.Context, name string) (*ListShardMap, error) {
	sm, err := m.global.GetShardMap(ctx, name)
	if err != nil {
		return nil, err
	}
	if sm.Type != catalogmodel.ShardMapTypeList {
		return nil, shardmaperr.New(shardmaperr.CategoryShardMapManager, shardmaperr.CodeShardMapDoesNotExist,
			name+" is not a list shard map")
	}
	return &ListShardMap{mgr: m, meta: sm}, nil
}

// GetRangeShardMap looks up an existing range shard map by name.
func (m *Manager) GetRangeShardMap(ctx context.Context, name string) (*RangeShardMap, error) {
	sm, err := m.global.GetShardMap(ctx, name)
	if err != nil {
		return nil, err
	}
	if sm.Type != catalogmodel.ShardMapTypeRange {
		return nil, shardmaperr.New(shardmaperr.CategoryShardMapManager, shardmaperr.CodeShardMapDoesNotExist,
			name+" is not a range shard map")
	}
	return &RangeShardMap{mgr: m, meta: sm}, nil
}

// AddShard registers a new physical shard location under a shard map.
func (m *Manager) AddShard(ctx context.Context, mapID uuid.UUID, loc catalogmodel.ShardLocation) (catalogmodel.Shard, error) {
	shard := catalogmodel.Shard{ID: uuid.New(), MapID: mapID, Location: loc, Status: catalogmodel.ShardStatusOnline}
	if err := m.global.AddShard(ctx, shard); err != nil {
		return catalogmodel.Shard{}, err
	}
	return shard, nil
}

// SetShardStatus marks a shard online or offline. Taking a shard offline
// invalidates every cached mapping for every shard map it participates in,
// per the kill-on-offline contract of spec.md §4.8.
func (m *Manager) SetShardStatus(ctx context.Context, mapID, shardID uuid.UUID, status catalogmodel.ShardStatus) error {
	if err := m.global.SetShardStatus(ctx, shardID, status); err != nil {
		return err
	}
	if status == catalogmodel.ShardStatusOffline {
		m.cache.InvalidateMap(mapID.String())
		m.kill.MarkOffline(shardID)
	}
	return nil
}
