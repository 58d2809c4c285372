package catalogstore

// localSchema creates the local shard map (LSM) tables kept on each shard:
// a trimmed copy of the mappings that claim to live on this shard, kept in
// step by the operation engine's local phases. Connection validation in
// pkg/shardmgmt reads the global catalog and does not read these tables.
const localSchema = `
CREATE TABLE IF NOT EXISTS local_shard (
	map_id   TEXT NOT NULL,
	shard_id TEXT NOT NULL PRIMARY KEY,
	server   TEXT NOT NULL,
	database TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS local_mappings_point (
	id            TEXT PRIMARY KEY,
	map_id        TEXT NOT NULL,
	key_bytes     BLOB NOT NULL,
	status        INTEGER NOT NULL,
	lock_owner_id TEXT NOT NULL,
	version       INTEGER NOT NULL,
	UNIQUE(map_id, key_bytes)
);

CREATE TABLE IF NOT EXISTS local_mappings_range (
	id            TEXT PRIMARY KEY,
	map_id        TEXT NOT NULL,
	low_bytes     BLOB NOT NULL,
	high_bytes    BLOB NOT NULL,
	status        INTEGER NOT NULL,
	lock_owner_id TEXT NOT NULL,
	version       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_local_mappings_range_low ON local_mappings_range(map_id, low_bytes);
`
