// Package shardmgmt is the public façade of the sharded data directory: the
// ShardMapManager and the ListShardMap/RangeShardMap types (keys passed as
// any and checked against the map's key type at run time) spec.md
// §6 describes, built on top of internal/catalogstore,
// internal/opengine, and internal/mapcache.
package shardmgmt

import (
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dreamware/shardcatalog/internal/opengine"
)

// LockOwnerID identifies a lock holder. It is the façade's re-export of the
// UUID type the catalog stores lock tokens as, so callers don't need to
// import internal/catalogmodel or google/uuid themselves.
type LockOwnerID = uuid.UUID

// ManagerOptions configures a Manager. It follows the teacher's pattern of
// a small explicit option struct rather than a config file loader — the
// catalog is opened with a connection string, not a config file.
type ManagerOptions struct {
	// GlobalCatalogPath is the SQLite file (or ":memory:") backing the
	// global shard map.
	GlobalCatalogPath string

	// LocalCatalogDir, if non-empty, is the directory one SQLite file per
	// shard's local catalog is created under. If empty, local catalogs are
	// kept in-memory (internal/catalogstore.MemoryLocalStore) — useful for
	// tests and for deployments that run the local catalog on the shard
	// itself via a separate process.
	LocalCatalogDir string

	// CacheBaseTTL/CacheMaxTTL configure the mapping cache (spec.md §4.5).
	// Zero values fall back to DefaultCacheBaseTTL/DefaultCacheMaxTTL.
	CacheBaseTTL time.Duration
	CacheMaxTTL  time.Duration

	// RetryPolicy governs every catalog operation the Manager runs through
	// the operation engine. The zero value is opengine.DefaultPolicy (try
	// once, no retries), matching spec.md §4.7's stated default.
	RetryPolicy opengine.Policy

	// Factory wraps every Operation the Manager runs through the engine. A
	// nil Factory defaults to opengine.DefaultFactory{} (passthrough); tests
	// substitute an opengine.FaultInjectingFactory here to exercise the
	// crash-during-commit recovery path (spec.md §8 scenario 5) through the
	// façade rather than the engine package directly.
	Factory opengine.OperationFactory

	// Logger receives structured log output. A nil Logger is replaced with
	// zap.NewNop(), so the library stays silent unless a caller opts in.
	Logger *zap.Logger
}

// DefaultCacheBaseTTL and DefaultCacheMaxTTL are the mapping cache defaults
// when ManagerOptions leaves them unset.
const (
	DefaultCacheBaseTTL = 30 * time.Second
	DefaultCacheMaxTTL  = 10 * time.Minute
)

// ConnectionOptions are bit flags passed to OpenConnectionForKey,
// mirroring spec.md §6's enumerated connection options.
type ConnectionOptions uint32

const (
	// ConnectionOptionNone requests no special validation beyond the
	// default offline-check.
	ConnectionOptionNone ConnectionOptions = 0
	// ConnectionOptionValidate re-reads the mapping from the global
	// catalog before handing back the connection, even if a cached mapping
	// says it's fine. The shard's local shard map is not consulted.
	ConnectionOptionValidate ConnectionOptions = 1 << iota
)

// knownConnectionOptions is the set of bits the façade recognizes; anything
// else is rejected at the boundary (SPEC_FULL Open Question #2).
const knownConnectionOptions = ConnectionOptionValidate
