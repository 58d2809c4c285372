package catalogstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
	"github.com/dreamware/shardcatalog/internal/shardmaperr"
)

// SQLLocalStore is the embedded-SQLite-backed LocalStore implementation:
// one file per shard, holding the trimmed replica of mappings that claim
// that shard (SPEC_FULL.md §4.3).
type SQLLocalStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLLocalStore opens (creating if necessary) a shard's local catalog
// database at path.
func NewSQLLocalStore(path string, logger *zap.Logger) (*SQLLocalStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := openSQLite(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(localSchema); err != nil {
		db.Close()
		return nil, shardmaperr.Wrap(shardmaperr.CategoryGeneral, shardmaperr.CodeStorageOperationFailure, "create local schema", err)
	}
	return &SQLLocalStore{db: db, logger: logger}, nil
}

func (l *SQLLocalStore) Close() error { return l.db.Close() }

func (l *SQLLocalStore) SetShardIdentity(ctx context.Context, mapID, shardID uuid.UUID, loc catalogmodel.ShardLocation) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO local_shard (map_id, shard_id, server, database) VALUES (?, ?, ?, ?)
		 ON CONFLICT(shard_id) DO UPDATE SET map_id = excluded.map_id, server = excluded.server, database = excluded.database`,
		mapID.String(), shardID.String(), loc.Server, loc.Database)
	if err != nil {
		return shardmaperr.Wrap(shardmaperr.CategoryGeneral, shardmaperr.CodeStorageOperationFailure, "set shard identity", err)
	}
	return nil
}

func (l *SQLLocalStore) UpsertLocalPointMapping(ctx context.Context, m catalogmodel.PointMapping) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO local_mappings_point (id, map_id, key_bytes, status, lock_owner_id, version) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(map_id, key_bytes) DO UPDATE SET
		   id = excluded.id, status = excluded.status, lock_owner_id = excluded.lock_owner_id, version = excluded.version`,
		m.ID.String(), m.MapID.String(), m.Key, int(m.Status), m.LockOwnerID.String(), m.Version)
	if err != nil {
		return shardmaperr.Wrap(shardmaperr.CategoryGeneral, shardmaperr.CodeStorageOperationFailure, "upsert local point mapping", err)
	}
	return nil
}

func (l *SQLLocalStore) RemoveLocalPointMapping(ctx context.Context, id uuid.UUID) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM local_mappings_point WHERE id = ?`, id.String())
	if err != nil {
		return shardmaperr.Wrap(shardmaperr.CategoryGeneral, shardmaperr.CodeStorageOperationFailure, "remove local point mapping", err)
	}
	return nil
}

func (l *SQLLocalStore) GetLocalPointMapping(ctx context.Context, mapID uuid.UUID, key []byte) (catalogmodel.PointMapping, error) {
	var m catalogmodel.PointMapping
	var id, lockOwner string
	err := l.db.QueryRowContext(ctx,
		`SELECT id, status, lock_owner_id, version FROM local_mappings_point WHERE map_id = ? AND key_bytes = ?`,
		mapID.String(), key,
	).Scan(&id, &m.Status, &lockOwner, &m.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return catalogmodel.PointMapping{}, shardmaperr.New(shardmaperr.CategoryListShardMap, shardmaperr.CodeMappingDoesNotExist,
			"no local mapping for key")
	}
	if err != nil {
		return catalogmodel.PointMapping{}, shardmaperr.Wrap(shardmaperr.CategoryGeneral, shardmaperr.CodeStorageOperationFailure,
			"get local point mapping", err)
	}
	m.ID = uuid.MustParse(id)
	m.MapID = mapID
	m.Key = key
	m.LockOwnerID = uuid.MustParse(lockOwner)
	return m, nil
}

func (l *SQLLocalStore) UpsertLocalRangeMapping(ctx context.Context, m catalogmodel.RangeMapping) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM local_mappings_range WHERE id = ?`, m.ID.String())
	if err != nil {
		return shardmaperr.Wrap(shardmaperr.CategoryGeneral, shardmaperr.CodeStorageOperationFailure, "upsert local range mapping", err)
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO local_mappings_range (id, map_id, low_bytes, high_bytes, status, lock_owner_id, version) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID.String(), m.MapID.String(), m.Low, m.High, int(m.Status), m.LockOwnerID.String(), m.Version)
	if err != nil {
		return shardmaperr.Wrap(shardmaperr.CategoryGeneral, shardmaperr.CodeStorageOperationFailure, "upsert local range mapping", err)
	}
	return nil
}

func (l *SQLLocalStore) RemoveLocalRangeMapping(ctx context.Context, id uuid.UUID) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM local_mappings_range WHERE id = ?`, id.String())
	if err != nil {
		return shardmaperr.Wrap(shardmaperr.CategoryGeneral, shardmaperr.CodeStorageOperationFailure, "remove local range mapping", err)
	}
	return nil
}

func (l *SQLLocalStore) GetLocalRangeMappingForKey(ctx context.Context, mapID uuid.UUID, key []byte) (catalogmodel.RangeMapping, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, low_bytes, high_bytes, status, lock_owner_id, version FROM local_mappings_range WHERE map_id = ?`, mapID.String())
	if err != nil {
		return catalogmodel.RangeMapping{}, shardmaperr.Wrap(shardmaperr.CategoryGeneral, shardmaperr.CodeStorageOperationFailure,
			"scan local ranges", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, lockOwner string
		var low, high []byte
		var status int
		var version int64
		if err := rows.Scan(&id, &low, &high, &status, &lockOwner, &version); err != nil {
			return catalogmodel.RangeMapping{}, shardmaperr.Wrap(shardmaperr.CategoryGeneral, shardmaperr.CodeStorageOperationFailure,
				"scan local range row", err)
		}
		if keyInRange(key, low, high) {
			return catalogmodel.RangeMapping{
				ID: uuid.MustParse(id), MapID: mapID, Low: low, High: high,
				Status: catalogmodel.MappingStatus(status), LockOwnerID: uuid.MustParse(lockOwner), Version: version,
			}, nil
		}
	}
	if err := rows.Err(); err != nil {
		return catalogmodel.RangeMapping{}, shardmaperr.Wrap(shardmaperr.CategoryGeneral, shardmaperr.CodeStorageOperationFailure,
			"scan local ranges", err)
	}
	return catalogmodel.RangeMapping{}, shardmaperr.New(shardmaperr.CategoryListShardMap, shardmaperr.CodeMappingDoesNotExist,
		"no local range mapping covers key")
}
