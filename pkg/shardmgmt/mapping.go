package shardmgmt

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dreamware/shardcatalog/internal/keycodec"
	"github.com/dreamware/shardcatalog/internal/shardmaperr"
)

// checkLockToken enforces spec.md §8 invariant 4: a destructive call
// against a locked mapping must carry the owning token.
func checkLockToken(cat shardmaperr.Category, locked bool, lockOwner, token uuid.UUID) error {
	if locked && lockOwner != token {
		return shardmaperr.New(cat, shardmaperr.CodeMappingLockOwnerIDDoesNotMatch, "lock owner id does not match")
	}
	return nil
}

// encodeKey converts a caller-supplied key value into the keycodec-encoded
// bytes a shard map of the given key type stores mappings under.
// ListShardMap/RangeShardMap take keys as any and resolve the concrete type
// with this single type switch at the boundary, so the rest of the façade
// only ever handles []byte. A []byte key on a map whose key type is not
// KeyTypeBinary is taken as already encoded, e.g. a RangeMapping's Low.
func encodeKey(keyType keycodec.KeyType, key any) ([]byte, error) {
	if b, ok := key.([]byte); ok && keyType != keycodec.KeyTypeBinary {
		return b, nil
	}
	v, err := resolveKeyValue(keyType, key)
	if err != nil {
		return nil, err
	}
	return keycodec.Encode(keyType, v)
}

// resolveKeyValue narrows an integer key's Go type to the exact
// width keycodec.Encode expects, so callers can pass an int or int64 for a
// KeyTypeInt32 map without having to know the catalog's internal width.
func resolveKeyValue(keyType keycodec.KeyType, key any) (any, error) {
	switch keyType {
	case keycodec.KeyTypeInt32:
		switch n := key.(type) {
		case int32:
			return n, nil
		case int:
			return int32(n), nil
		case int64:
			return int32(n), nil
		}
	case keycodec.KeyTypeInt64:
		switch n := key.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		}
	default:
		return key, nil
	}
	return nil, fmt.Errorf("shardmgmt: key type %v cannot hold a %T", keyType, key)
}
