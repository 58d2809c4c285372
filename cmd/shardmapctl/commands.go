package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dreamware/shardcatalog/internal/catalogmodel"
	"github.com/dreamware/shardcatalog/pkg/shardmgmt"
)

var createListMapCmd = &cobra.Command{
	Use:   "create-list-map NAME",
	Short: "Create a new list shard map",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyTypeFlag, _ := cmd.Flags().GetString("key-type")
		keyType, err := parseKeyTypeFlag(keyTypeFlag)
		if err != nil {
			return err
		}

		mgr, err := openManager(cmd)
		if err != nil {
			return err
		}
		defer mgr.Close()

		sm, err := mgr.CreateListShardMap(context.Background(), args[0], keyType)
		if err != nil {
			return err
		}
		fmt.Printf("created list shard map %q (id=%s, key-type=%s)\n", sm.Name(), sm.ID(), keyTypeFlag)
		return nil
	},
}

var createRangeMapCmd = &cobra.Command{
	Use:   "create-range-map NAME",
	Short: "Create a new range shard map",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyTypeFlag, _ := cmd.Flags().GetString("key-type")
		keyType, err := parseKeyTypeFlag(keyTypeFlag)
		if err != nil {
			return err
		}

		mgr, err := openManager(cmd)
		if err != nil {
			return err
		}
		defer mgr.Close()

		sm, err := mgr.CreateRangeShardMap(context.Background(), args[0], keyType)
		if err != nil {
			return err
		}
		fmt.Printf("created range shard map %q (id=%s, key-type=%s)\n", sm.Name(), sm.ID(), keyTypeFlag)
		return nil
	},
}

var addShardCmd = &cobra.Command{
	Use:   "add-shard MAP_NAME SERVER DATABASE",
	Short: "Register a physical shard location under a shard map",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := openManager(cmd)
		if err != nil {
			return err
		}
		defer mgr.Close()

		ctx := context.Background()
		mapID, err := resolveMapID(ctx, mgr, args[0])
		if err != nil {
			return err
		}

		shard, err := mgr.AddShard(ctx, mapID, catalogmodel.ShardLocation{Server: args[1], Database: args[2]})
		if err != nil {
			return err
		}
		fmt.Printf("registered shard %s at %s\n", shard.ID, shard.Location)
		return nil
	},
}

var addMappingCmd = &cobra.Command{
	Use:   "add-mapping MAP_NAME SHARD_ID KEY",
	Short: "Assign KEY to SHARD_ID in a list shard map",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := openManager(cmd)
		if err != nil {
			return err
		}
		defer mgr.Close()

		ctx := context.Background()
		lsm, err := mgr.GetListShardMap(ctx, args[0])
		if err != nil {
			return err
		}
		shardID, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid shard id %q: %w", args[1], err)
		}
		key, err := parseKey(lsm.KeyType(), args[2])
		if err != nil {
			return err
		}

		mapping, err := lsm.CreatePointMapping(ctx, shardID, key)
		if err != nil {
			return err
		}
		fmt.Printf("mapped %s -> shard %s\n", args[2], mapping.ShardID)
		return nil
	},
}

var addRangeCmd = &cobra.Command{
	Use:   "add-range MAP_NAME SHARD_ID LOW HIGH",
	Short: "Register the range [LOW, HIGH) on SHARD_ID in a range shard map",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := openManager(cmd)
		if err != nil {
			return err
		}
		defer mgr.Close()

		ctx := context.Background()
		rsm, err := mgr.GetRangeShardMap(ctx, args[0])
		if err != nil {
			return err
		}
		shardID, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid shard id %q: %w", args[1], err)
		}
		low, err := parseKey(rsm.KeyType(), args[2])
		if err != nil {
			return err
		}
		high, err := parseKey(rsm.KeyType(), args[3])
		if err != nil {
			return err
		}

		mapping, err := rsm.CreateRangeMapping(ctx, shardID, low, high)
		if err != nil {
			return err
		}
		fmt.Printf("mapped [%s, %s) -> shard %s\n", args[2], args[3], mapping.ShardID)
		return nil
	},
}

var getMappingCmd = &cobra.Command{
	Use:   "get-mapping MAP_NAME KEY",
	Short: "Resolve KEY to its current shard, on either a list or range shard map",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := openManager(cmd)
		if err != nil {
			return err
		}
		defer mgr.Close()

		ctx := context.Background()
		if lsm, err := mgr.GetListShardMap(ctx, args[0]); err == nil {
			key, err := parseKey(lsm.KeyType(), args[1])
			if err != nil {
				return err
			}
			mapping, err := lsm.GetMappingForKey(ctx, key)
			if err != nil {
				return err
			}
			fmt.Printf("%s -> shard %s (status=%s)\n", args[1], mapping.ShardID, mapping.Status)
			return nil
		}

		rsm, err := mgr.GetRangeShardMap(ctx, args[0])
		if err != nil {
			return fmt.Errorf("no such shard map %q: %w", args[0], err)
		}
		key, err := parseKey(rsm.KeyType(), args[1])
		if err != nil {
			return err
		}
		mapping, err := rsm.GetMappingForKey(ctx, key)
		if err != nil {
			return err
		}
		fmt.Printf("%s -> shard %s (status=%s)\n", args[1], mapping.ShardID, mapping.Status)
		return nil
	},
}

var lockCmd = &cobra.Command{
	Use:   "lock MAP_NAME KEY OWNER_ID",
	Short: "Lock a list shard map mapping under OWNER_ID",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := openManager(cmd)
		if err != nil {
			return err
		}
		defer mgr.Close()

		ctx := context.Background()
		lsm, err := mgr.GetListShardMap(ctx, args[0])
		if err != nil {
			return err
		}
		key, err := parseKey(lsm.KeyType(), args[1])
		if err != nil {
			return err
		}
		owner, err := uuid.Parse(args[2])
		if err != nil {
			return fmt.Errorf("invalid owner id %q: %w", args[2], err)
		}
		return lsm.LockMapping(ctx, key, owner)
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock MAP_NAME KEY [OWNER_ID]",
	Short: "Unlock a list shard map mapping; omit OWNER_ID to force-unlock",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := openManager(cmd)
		if err != nil {
			return err
		}
		defer mgr.Close()

		ctx := context.Background()
		lsm, err := mgr.GetListShardMap(ctx, args[0])
		if err != nil {
			return err
		}
		key, err := parseKey(lsm.KeyType(), args[1])
		if err != nil {
			return err
		}

		owner := catalogmodel.ForceUnlockToken
		if len(args) == 3 {
			owner, err = uuid.Parse(args[2])
			if err != nil {
				return fmt.Errorf("invalid owner id %q: %w", args[2], err)
			}
		}
		return lsm.UnlockMapping(ctx, key, owner)
	},
}

var setStatusCmd = &cobra.Command{
	Use:   "set-status MAP_NAME KEY online|offline",
	Short: "Transition a point or range mapping online or offline",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := parseStatusFlag(args[2])
		if err != nil {
			return err
		}
		token, err := tokenFlag(cmd)
		if err != nil {
			return err
		}

		mgr, err := openManager(cmd)
		if err != nil {
			return err
		}
		defer mgr.Close()

		ctx := context.Background()
		if lsm, err := mgr.GetListShardMap(ctx, args[0]); err == nil {
			key, err := parseKey(lsm.KeyType(), args[1])
			if err != nil {
				return err
			}
			return lsm.SetStatus(ctx, key, status, token)
		}

		rsm, err := mgr.GetRangeShardMap(ctx, args[0])
		if err != nil {
			return fmt.Errorf("no such shard map %q: %w", args[0], err)
		}
		key, err := parseKey(rsm.KeyType(), args[1])
		if err != nil {
			return err
		}
		return rsm.SetStatus(ctx, key, status, token)
	},
}

var removeMappingCmd = &cobra.Command{
	Use:   "remove-mapping MAP_NAME KEY",
	Short: "Delete an offline point mapping from a list shard map",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := tokenFlag(cmd)
		if err != nil {
			return err
		}

		mgr, err := openManager(cmd)
		if err != nil {
			return err
		}
		defer mgr.Close()

		ctx := context.Background()
		lsm, err := mgr.GetListShardMap(ctx, args[0])
		if err != nil {
			return err
		}
		key, err := parseKey(lsm.KeyType(), args[1])
		if err != nil {
			return err
		}
		return lsm.RemovePointMapping(ctx, key, token)
	},
}

var pendingOpsCmd = &cobra.Command{
	Use:   "pending-ops",
	Short: "List pending operations left behind in the global catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := openManager(cmd)
		if err != nil {
			return err
		}
		defer mgr.Close()
		// Opening the manager already ran recovery over anything pending, so
		// a clean run here means there is nothing left to report.
		fmt.Println("no pending operations (recovery already ran at open)")
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{createListMapCmd, createRangeMapCmd} {
		cmd.Flags().String("key-type", "int64", "key type: int32, int64, uuid, or binary")
	}
	for _, cmd := range []*cobra.Command{setStatusCmd, removeMappingCmd} {
		cmd.Flags().String("token", "", "lock owner token required if the mapping is locked")
	}
}

// tokenFlag reads --token, defaulting to catalogmodel.UnlockedToken when
// absent so unlocked mappings don't force every caller to pass a UUID.
func tokenFlag(cmd *cobra.Command) (uuid.UUID, error) {
	raw, err := cmd.Flags().GetString("token")
	if err != nil {
		return uuid.Nil, err
	}
	if raw == "" {
		return catalogmodel.UnlockedToken, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --token %q: %w", raw, err)
	}
	return id, nil
}

// resolveMapID looks a shard map up by name regardless of whether it is a
// list or a range map — add-shard doesn't care which.
func resolveMapID(ctx context.Context, mgr *shardmgmt.Manager, name string) (uuid.UUID, error) {
	if lsm, err := mgr.GetListShardMap(ctx, name); err == nil {
		return lsm.ID(), nil
	}
	rsm, err := mgr.GetRangeShardMap(ctx, name)
	if err != nil {
		return uuid.Nil, fmt.Errorf("no such shard map %q: %w", name, err)
	}
	return rsm.ID(), nil
}
