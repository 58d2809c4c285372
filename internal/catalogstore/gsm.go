package catalogstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
	"github.com/dreamware/shardcatalog/internal/shardmaperr"
)

// SQLGlobalStore is the embedded-SQLite-backed GlobalStore implementation:
// the production catalog backing named in SPEC_FULL.md §4.2.
type SQLGlobalStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLGlobalStore opens (creating if necessary) the global catalog
// database at path and ensures its schema exists. Pass ":memory:" for a
// throwaway database that still exercises the real SQL path, as opposed to
// MemoryGlobalStore which skips SQL entirely.
func NewSQLGlobalStore(path string, logger *zap.Logger) (*SQLGlobalStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(globalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalogstore: create global schema: %w", err)
	}
	return &SQLGlobalStore{db: db, logger: logger}, nil
}

func (g *SQLGlobalStore) Close() error { return g.db.Close() }

func (g *SQLGlobalStore) CreateShardMap(ctx context.Context, m catalogmodel.ShardMap) error {
	_, err := g.db.ExecContext(ctx,
		`INSERT INTO shard_maps (id, name, map_type, key_type) VALUES (?, ?, ?, ?)`,
		m.ID.String(), m.Name, int(m.Type), int(m.KeyType))
	if err != nil {
		if isUniqueConstraint(err) {
			return shardmaperr.New(shardmaperr.CategoryShardMapManager, shardmaperr.CodeShardMapAlreadyExists,
				fmt.Sprintf("shard map %q already exists", m.Name))
		}
		return shardmaperr.Wrap(shardmaperr.CategoryShardMapManager, shardmaperr.CodeStorageOperationFailure,
			"create shard map", err)
	}
	g.logger.Info("shard map created", zap.String("name", m.Name), zap.Stringer("type", m.Type))
	return nil
}

func (g *SQLGlobalStore) GetShardMap(ctx context.Context, name string) (catalogmodel.ShardMap, error) {
	var m catalogmodel.ShardMap
	var id string
	var mapType, keyType int
	err := g.db.QueryRowContext(ctx,
		`SELECT id, name, map_type, key_type FROM shard_maps WHERE name = ?`, name,
	).Scan(&id, &m.Name, &mapType, &keyType)
	if errors.Is(err, sql.ErrNoRows) {
		return catalogmodel.ShardMap{}, shardmaperr.New(shardmaperr.CategoryShardMapManager, shardmaperr.CodeShardMapDoesNotExist,
			fmt.Sprintf("shard map %q does not exist", name))
	}
	if err != nil {
		return catalogmodel.ShardMap{}, shardmaperr.Wrap(shardmaperr.CategoryShardMapManager, shardmaperr.CodeStorageOperationFailure,
			"get shard map", err)
	}
	m.ID = uuid.MustParse(id)
	m.Type = catalogmodel.ShardMapType(mapType)
	m.KeyType = parseKeyType(keyType)
	return m, nil
}

func (g *SQLGlobalStore) DeleteShardMap(ctx context.Context, id uuid.UUID) error {
	res, err := g.db.ExecContext(ctx, `DELETE FROM shard_maps WHERE id = ?`, id.String())
	if err != nil {
		return shardmaperr.Wrap(shardmaperr.CategoryShardMapManager, shardmaperr.CodeStorageOperationFailure,
			"delete shard map", err)
	}
	return requireRowAffected(res, shardmaperr.CategoryShardMapManager, shardmaperr.CodeShardMapDoesNotExist, "shard map")
}

func (g *SQLGlobalStore) AddShard(ctx context.Context, s catalogmodel.Shard) error {
	_, err := g.db.ExecContext(ctx,
		`INSERT INTO shards (id, map_id, server, database, status, version) VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID.String(), s.MapID.String(), s.Location.Server, s.Location.Database, int(s.Status), s.Version)
	if err != nil {
		if isUniqueConstraint(err) {
			return shardmaperr.New(shardmaperr.CategoryShardMapManager, shardmaperr.CodeShardLocationAlreadyExists,
				fmt.Sprintf("shard location %s already registered", s.Location))
		}
		return shardmaperr.Wrap(shardmaperr.CategoryShardMapManager, shardmaperr.CodeStorageOperationFailure, "add shard", err)
	}
	return nil
}

func (g *SQLGlobalStore) RemoveShard(ctx context.Context, id uuid.UUID) error {
	res, err := g.db.ExecContext(ctx, `DELETE FROM shards WHERE id = ?`, id.String())
	if err != nil {
		return shardmaperr.Wrap(shardmaperr.CategoryShardMapManager, shardmaperr.CodeStorageOperationFailure, "remove shard", err)
	}
	return requireRowAffected(res, shardmaperr.CategoryShardMapManager, shardmaperr.CodeShardDoesNotExist, "shard")
}

func (g *SQLGlobalStore) GetShards(ctx context.Context, mapID uuid.UUID) ([]catalogmodel.Shard, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT id, server, database, status, version FROM shards WHERE map_id = ?`, mapID.String())
	if err != nil {
		return nil, shardmaperr.Wrap(shardmaperr.CategoryShardMapManager, shardmaperr.CodeStorageOperationFailure, "list shards", err)
	}
	defer rows.Close()

	var out []catalogmodel.Shard
	for rows.Next() {
		var id, server, database string
		var status int
		var version int64
		if err := rows.Scan(&id, &server, &database, &status, &version); err != nil {
			return nil, shardmaperr.Wrap(shardmaperr.CategoryShardMapManager, shardmaperr.CodeStorageOperationFailure, "scan shard", err)
		}
		out = append(out, catalogmodel.Shard{
			ID:       uuid.MustParse(id),
			MapID:    mapID,
			Location: catalogmodel.ShardLocation{Server: server, Database: database},
			Status:   catalogmodel.ShardStatus(status),
			Version:  version,
		})
	}
	return out, rows.Err()
}

func (g *SQLGlobalStore) SetShardStatus(ctx context.Context, id uuid.UUID, status catalogmodel.ShardStatus) error {
	res, err := g.db.ExecContext(ctx,
		`UPDATE shards SET status = ?, version = version + 1 WHERE id = ?`, int(status), id.String())
	if err != nil {
		return shardmaperr.Wrap(shardmaperr.CategoryShardMapManager, shardmaperr.CodeStorageOperationFailure, "set shard status", err)
	}
	return requireRowAffected(res, shardmaperr.CategoryShardMapManager, shardmaperr.CodeShardDoesNotExist, "shard")
}

func (g *SQLGlobalStore) AddPointMapping(ctx context.Context, m catalogmodel.PointMapping) error {
	_, err := g.db.ExecContext(ctx,
		`INSERT INTO mappings_point (id, map_id, shard_id, key_bytes, status, lock_owner_id, version) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID.String(), m.MapID.String(), m.ShardID.String(), m.Key, int(m.Status), m.LockOwnerID.String(), m.Version)
	if err != nil {
		if isUniqueConstraint(err) {
			return shardmaperr.New(shardmaperr.CategoryListShardMap, shardmaperr.CodeMappingPointAlreadyMapped,
				"key is already mapped")
		}
		return shardmaperr.Wrap(shardmaperr.CategoryListShardMap, shardmaperr.CodeStorageOperationFailure, "add point mapping", err)
	}
	return nil
}

func (g *SQLGlobalStore) RemovePointMapping(ctx context.Context, id uuid.UUID) error {
	res, err := g.db.ExecContext(ctx, `DELETE FROM mappings_point WHERE id = ?`, id.String())
	if err != nil {
		return shardmaperr.Wrap(shardmaperr.CategoryListShardMap, shardmaperr.CodeStorageOperationFailure, "remove point mapping", err)
	}
	return requireRowAffected(res, shardmaperr.CategoryListShardMap, shardmaperr.CodeMappingDoesNotExist, "point mapping")
}

func (g *SQLGlobalStore) GetPointMapping(ctx context.Context, mapID uuid.UUID, key []byte) (catalogmodel.PointMapping, error) {
	var m catalogmodel.PointMapping
	var id, shardID, lockOwner string
	err := g.db.QueryRowContext(ctx,
		`SELECT id, shard_id, status, lock_owner_id, version FROM mappings_point WHERE map_id = ? AND key_bytes = ?`,
		mapID.String(), key,
	).Scan(&id, &shardID, &m.Status, &lockOwner, &m.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return catalogmodel.PointMapping{}, shardmaperr.New(shardmaperr.CategoryListShardMap, shardmaperr.CodeMappingDoesNotExist,
			"no mapping for key")
	}
	if err != nil {
		return catalogmodel.PointMapping{}, shardmaperr.Wrap(shardmaperr.CategoryListShardMap, shardmaperr.CodeStorageOperationFailure,
			"get point mapping", err)
	}
	m.ID = uuid.MustParse(id)
	m.MapID = mapID
	m.ShardID = uuid.MustParse(shardID)
	m.Key = key
	m.LockOwnerID = uuid.MustParse(lockOwner)
	return m, nil
}

func (g *SQLGlobalStore) ListPointMappings(ctx context.Context, mapID uuid.UUID) ([]catalogmodel.PointMapping, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT id, shard_id, key_bytes, status, lock_owner_id, version FROM mappings_point WHERE map_id = ?`, mapID.String())
	if err != nil {
		return nil, shardmaperr.Wrap(shardmaperr.CategoryListShardMap, shardmaperr.CodeStorageOperationFailure, "list point mappings", err)
	}
	defer rows.Close()

	var out []catalogmodel.PointMapping
	for rows.Next() {
		var id, shardID, lockOwner string
		var key []byte
		var status int
		var version int64
		if err := rows.Scan(&id, &shardID, &key, &status, &lockOwner, &version); err != nil {
			return nil, shardmaperr.Wrap(shardmaperr.CategoryListShardMap, shardmaperr.CodeStorageOperationFailure, "scan point mapping", err)
		}
		out = append(out, catalogmodel.PointMapping{
			ID: uuid.MustParse(id), MapID: mapID, ShardID: uuid.MustParse(shardID),
			Key: key, Status: catalogmodel.MappingStatus(status), LockOwnerID: uuid.MustParse(lockOwner), Version: version,
		})
	}
	return out, rows.Err()
}

// UpdatePointMapping performs an optimistic-concurrency update: the write
// only applies if the stored version still matches m.Version, and the
// version is bumped on success, enforcing the version-monotonicity
// invariant of spec.md §3.
func (g *SQLGlobalStore) UpdatePointMapping(ctx context.Context, m catalogmodel.PointMapping) error {
	res, err := g.db.ExecContext(ctx,
		`UPDATE mappings_point SET shard_id = ?, status = ?, lock_owner_id = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		m.ShardID.String(), int(m.Status), m.LockOwnerID.String(), m.ID.String(), m.Version)
	if err != nil {
		return shardmaperr.Wrap(shardmaperr.CategoryListShardMap, shardmaperr.CodeStorageOperationFailure, "update point mapping", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return shardmaperr.New(shardmaperr.CategoryListShardMap, shardmaperr.CodeVersionMismatch,
			"mapping was modified concurrently")
	}
	return nil
}

// AddRangeMapping checks the new range against every existing range for the
// same map and inserts it in one exclusive transaction, so two concurrent
// AddRangeMapping calls for overlapping ranges can't both pass the overlap
// check before either commits.
func (g *SQLGlobalStore) AddRangeMapping(ctx context.Context, m catalogmodel.RangeMapping) error {
	_, err := transaction(ctx, g.db, ScopeReadWrite, func(tx *sql.Tx) (struct{}, error) {
		overlap, err := rangeOverlapsTx(ctx, tx, m.MapID, m.Low, m.High, uuid.Nil)
		if err != nil {
			return struct{}{}, err
		}
		if overlap {
			return struct{}{}, shardmaperr.New(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeMappingRangeAlreadyMapped,
				"range overlaps an existing mapping")
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO mappings_range (id, map_id, shard_id, low_bytes, high_bytes, status, lock_owner_id, version) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID.String(), m.MapID.String(), m.ShardID.String(), m.Low, m.High, int(m.Status), m.LockOwnerID.String(), m.Version)
		if err != nil {
			return struct{}{}, shardmaperr.Wrap(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeStorageOperationFailure, "add range mapping", err)
		}
		return struct{}{}, nil
	})
	return err
}

// rangeOverlapsTx runs the overlap scan against tx so AddRangeMapping can
// call it inside the same transaction as its insert.
func rangeOverlapsTx(ctx context.Context, tx *sql.Tx, mapID uuid.UUID, low, high []byte, excludeID uuid.UUID) (bool, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, low_bytes, high_bytes FROM mappings_range WHERE map_id = ?`, mapID.String())
	if err != nil {
		return false, shardmaperr.Wrap(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeStorageOperationFailure, "scan ranges for overlap", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var existingLow, existingHigh []byte
		if err := rows.Scan(&id, &existingLow, &existingHigh); err != nil {
			return false, shardmaperr.Wrap(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeStorageOperationFailure, "scan range row", err)
		}
		if id == excludeID.String() {
			continue
		}
		if rangesOverlap(low, high, existingLow, existingHigh) {
			return true, nil
		}
	}
	return false, rows.Err()
}

// rangesOverlap reports whether half-open ranges [aLow,aHigh) and
// [bLow,bHigh) intersect. An empty bound is unbounded on that side
// (keycodec negative/positive infinity).
func rangesOverlap(aLow, aHigh, bLow, bHigh []byte) bool {
	aHighUnbounded := len(aHigh) == 0
	bHighUnbounded := len(bHigh) == 0
	lowOK := aHighUnbounded || len(bLow) == 0 || compareBytes(bLow, aHigh) < 0
	highOK := bHighUnbounded || len(aLow) == 0 || compareBytes(aLow, bHigh) < 0
	return lowOK && highOK
}

func (g *SQLGlobalStore) RemoveRangeMapping(ctx context.Context, id uuid.UUID) error {
	res, err := g.db.ExecContext(ctx, `DELETE FROM mappings_range WHERE id = ?`, id.String())
	if err != nil {
		return shardmaperr.Wrap(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeStorageOperationFailure, "remove range mapping", err)
	}
	return requireRowAffected(res, shardmaperr.CategoryRangeShardMap, shardmaperr.CodeMappingDoesNotExist, "range mapping")
}

func (g *SQLGlobalStore) GetRangeMappingForKey(ctx context.Context, mapID uuid.UUID, key []byte) (catalogmodel.RangeMapping, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT id, shard_id, low_bytes, high_bytes, status, lock_owner_id, version FROM mappings_range WHERE map_id = ?`, mapID.String())
	if err != nil {
		return catalogmodel.RangeMapping{}, shardmaperr.Wrap(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeStorageOperationFailure,
			"scan ranges", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, shardID, lockOwner string
		var low, high []byte
		var status int
		var version int64
		if err := rows.Scan(&id, &shardID, &low, &high, &status, &lockOwner, &version); err != nil {
			return catalogmodel.RangeMapping{}, shardmaperr.Wrap(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeStorageOperationFailure,
				"scan range row", err)
		}
		if keyInRange(key, low, high) {
			return catalogmodel.RangeMapping{
				ID: uuid.MustParse(id), MapID: mapID, ShardID: uuid.MustParse(shardID),
				Low: low, High: high, Status: catalogmodel.MappingStatus(status),
				LockOwnerID: uuid.MustParse(lockOwner), Version: version,
			}, nil
		}
	}
	if err := rows.Err(); err != nil {
		return catalogmodel.RangeMapping{}, shardmaperr.Wrap(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeStorageOperationFailure,
			"scan ranges", err)
	}
	return catalogmodel.RangeMapping{}, shardmaperr.New(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeMappingDoesNotExist,
		"no range mapping covers key")
}

func keyInRange(key, low, high []byte) bool {
	if len(low) > 0 && compareBytes(key, low) < 0 {
		return false
	}
	if len(high) > 0 && compareBytes(key, high) >= 0 {
		return false
	}
	return true
}

func (g *SQLGlobalStore) ListRangeMappings(ctx context.Context, mapID uuid.UUID) ([]catalogmodel.RangeMapping, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT id, shard_id, low_bytes, high_bytes, status, lock_owner_id, version FROM mappings_range WHERE map_id = ? ORDER BY low_bytes`,
		mapID.String())
	if err != nil {
		return nil, shardmaperr.Wrap(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeStorageOperationFailure, "list range mappings", err)
	}
	defer rows.Close()

	var out []catalogmodel.RangeMapping
	for rows.Next() {
		var id, shardID, lockOwner string
		var low, high []byte
		var status int
		var version int64
		if err := rows.Scan(&id, &shardID, &low, &high, &status, &lockOwner, &version); err != nil {
			return nil, shardmaperr.Wrap(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeStorageOperationFailure, "scan range mapping", err)
		}
		out = append(out, catalogmodel.RangeMapping{
			ID: uuid.MustParse(id), MapID: mapID, ShardID: uuid.MustParse(shardID),
			Low: low, High: high, Status: catalogmodel.MappingStatus(status),
			LockOwnerID: uuid.MustParse(lockOwner), Version: version,
		})
	}
	return out, rows.Err()
}

func (g *SQLGlobalStore) UpdateRangeMapping(ctx context.Context, m catalogmodel.RangeMapping) error {
	res, err := g.db.ExecContext(ctx,
		`UPDATE mappings_range SET shard_id = ?, low_bytes = ?, high_bytes = ?, status = ?, lock_owner_id = ?, version = version + 1
		 WHERE id = ? AND version = ?`,
		m.ShardID.String(), m.Low, m.High, int(m.Status), m.LockOwnerID.String(), m.ID.String(), m.Version)
	if err != nil {
		return shardmaperr.Wrap(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeStorageOperationFailure, "update range mapping", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return shardmaperr.New(shardmaperr.CategoryRangeShardMap, shardmaperr.CodeVersionMismatch,
			"mapping was modified concurrently")
	}
	return nil
}

func (g *SQLGlobalStore) LogOperation(ctx context.Context, op catalogmodel.PendingOperation) error {
	_, err := g.db.ExecContext(ctx,
		`INSERT INTO operations_log (id, map_id, kind, phase, source_shard, target_shard, payload, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		op.ID.String(), op.MapID.String(), int(op.Kind), int(op.Phase), op.SourceShard.String(), op.TargetShard.String(),
		op.Payload, op.StartedAt.Format(timeLayout))
	if err != nil {
		return shardmaperr.Wrap(shardmaperr.CategoryRecovery, shardmaperr.CodeStorageOperationFailure, "log operation", err)
	}
	return nil
}

func (g *SQLGlobalStore) AdvanceOperation(ctx context.Context, id uuid.UUID, phase catalogmodel.OperationPhase) error {
	res, err := g.db.ExecContext(ctx, `UPDATE operations_log SET phase = ? WHERE id = ?`, int(phase), id.String())
	if err != nil {
		return shardmaperr.Wrap(shardmaperr.CategoryRecovery, shardmaperr.CodeStorageOperationFailure, "advance operation", err)
	}
	return requireRowAffected(res, shardmaperr.CategoryRecovery, shardmaperr.CodeMappingDoesNotExist, "pending operation")
}

func (g *SQLGlobalStore) DeleteOperation(ctx context.Context, id uuid.UUID) error {
	_, err := g.db.ExecContext(ctx, `DELETE FROM operations_log WHERE id = ?`, id.String())
	if err != nil {
		return shardmaperr.Wrap(shardmaperr.CategoryRecovery, shardmaperr.CodeStorageOperationFailure, "delete operation", err)
	}
	return nil
}

func (g *SQLGlobalStore) ListPendingOperations(ctx context.Context) ([]catalogmodel.PendingOperation, error) {
	rows, err := g.db.QueryContext(ctx,
		`SELECT id, map_id, kind, phase, source_shard, target_shard, payload, started_at FROM operations_log ORDER BY started_at`)
	if err != nil {
		return nil, shardmaperr.Wrap(shardmaperr.CategoryRecovery, shardmaperr.CodeStorageOperationFailure, "list pending operations", err)
	}
	defer rows.Close()

	var out []catalogmodel.PendingOperation
	for rows.Next() {
		var id, mapID, sourceShard, targetShard, startedAt string
		var kind, phase int
		var payload []byte
		if err := rows.Scan(&id, &mapID, &kind, &phase, &sourceShard, &targetShard, &payload, &startedAt); err != nil {
			return nil, shardmaperr.Wrap(shardmaperr.CategoryRecovery, shardmaperr.CodeStorageOperationFailure, "scan operation", err)
		}
		started, err := parseTime(startedAt)
		if err != nil {
			return nil, shardmaperr.Wrap(shardmaperr.CategoryRecovery, shardmaperr.CodeStorageOperationFailure, "parse operation timestamp", err)
		}
		out = append(out, catalogmodel.PendingOperation{
			ID: uuid.MustParse(id), MapID: uuid.MustParse(mapID),
			Kind: catalogmodel.OperationKind(kind), Phase: catalogmodel.OperationPhase(phase),
			SourceShard: uuid.MustParse(sourceShard), TargetShard: uuid.MustParse(targetShard),
			Payload: payload, StartedAt: started,
		})
	}
	return out, rows.Err()
}
