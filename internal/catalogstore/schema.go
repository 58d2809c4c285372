package catalogstore

// globalSchema creates the global shard map (GSM) tables: the catalog of
// shard maps, shards, point mappings, range mappings, and the
// pending-operations log the recovery scanner reads on startup.
const globalSchema = `
CREATE TABLE IF NOT EXISTS shard_maps (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL UNIQUE,
	map_type INTEGER NOT NULL,
	key_type INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS shards (
	id       TEXT PRIMARY KEY,
	map_id   TEXT NOT NULL REFERENCES shard_maps(id),
	server   TEXT NOT NULL,
	database TEXT NOT NULL,
	status   INTEGER NOT NULL,
	version  INTEGER NOT NULL,
	UNIQUE(map_id, server, database)
);

CREATE TABLE IF NOT EXISTS mappings_point (
	id            TEXT PRIMARY KEY,
	map_id        TEXT NOT NULL REFERENCES shard_maps(id),
	shard_id      TEXT NOT NULL REFERENCES shards(id),
	key_bytes     BLOB NOT NULL,
	status        INTEGER NOT NULL,
	lock_owner_id TEXT NOT NULL,
	version       INTEGER NOT NULL,
	UNIQUE(map_id, key_bytes)
);

CREATE TABLE IF NOT EXISTS mappings_range (
	id            TEXT PRIMARY KEY,
	map_id        TEXT NOT NULL REFERENCES shard_maps(id),
	shard_id      TEXT NOT NULL REFERENCES shards(id),
	low_bytes     BLOB NOT NULL,
	high_bytes    BLOB NOT NULL,
	status        INTEGER NOT NULL,
	lock_owner_id TEXT NOT NULL,
	version       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_mappings_range_map_low ON mappings_range(map_id, low_bytes);

CREATE TABLE IF NOT EXISTS operations_log (
	id           TEXT PRIMARY KEY,
	map_id       TEXT NOT NULL,
	kind         INTEGER NOT NULL,
	phase        INTEGER NOT NULL,
	source_shard TEXT NOT NULL,
	target_shard TEXT NOT NULL,
	payload      BLOB NOT NULL,
	started_at   TEXT NOT NULL
);
`
