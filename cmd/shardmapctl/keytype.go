package main

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
	"github.com/dreamware/shardcatalog/internal/keycodec"
)

// parseKey converts a command-line string into the Go value keycodec.Encode
// expects for keyType, so every subcommand can accept keys as plain text
// regardless of the shard map's declared key type.
func parseKey(keyType keycodec.KeyType, raw string) (any, error) {
	switch keyType {
	case keycodec.KeyTypeInt32:
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid int32 key %q: %w", raw, err)
		}
		return int32(n), nil
	case keycodec.KeyTypeInt64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid int64 key %q: %w", raw, err)
		}
		return n, nil
	case keycodec.KeyTypeUUID:
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid uuid key %q: %w", raw, err)
		}
		return id, nil
	case keycodec.KeyTypeBinary:
		return []byte(raw), nil
	default:
		return nil, fmt.Errorf("shardmapctl: unsupported key type %v for a CLI-supplied key", keyType)
	}
}

// parseKeyTypeFlag converts the --key-type flag value into a keycodec.KeyType.
func parseKeyTypeFlag(raw string) (keycodec.KeyType, error) {
	switch raw {
	case "int32":
		return keycodec.KeyTypeInt32, nil
	case "int64":
		return keycodec.KeyTypeInt64, nil
	case "uuid":
		return keycodec.KeyTypeUUID, nil
	case "binary":
		return keycodec.KeyTypeBinary, nil
	default:
		return 0, fmt.Errorf("unsupported --key-type %q (want int32, int64, uuid, or binary)", raw)
	}
}

// parseStatusFlag converts the set-status subcommand's status argument into
// a catalogmodel.MappingStatus.
func parseStatusFlag(raw string) (catalogmodel.MappingStatus, error) {
	switch raw {
	case "online":
		return catalogmodel.MappingStatusOnline, nil
	case "offline":
		return catalogmodel.MappingStatusOffline, nil
	default:
		return 0, fmt.Errorf("unsupported status %q (want online or offline)", raw)
	}
}
