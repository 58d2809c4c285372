// Command shardmapctl is an operator CLI over the sharded data directory's
// catalog: creating shard maps and shards, registering mappings, and
// inspecting or force-unlocking them — everything an operator would
// otherwise reach for a one-off SQL script for.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "shardmapctl",
	Short: "Inspect and administer a shard map catalog",
	Long: `shardmapctl operates directly on a shard map catalog's SQLite file:
creating shard maps and shards, registering point/range mappings, resolving
a key to its shard, and force-unlocking a stuck mapping.`,
}

func init() {
	rootCmd.PersistentFlags().String("catalog", "shardmap.db", "path to the global catalog SQLite file")

	rootCmd.AddCommand(createListMapCmd)
	rootCmd.AddCommand(createRangeMapCmd)
	rootCmd.AddCommand(addShardCmd)
	rootCmd.AddCommand(addMappingCmd)
	rootCmd.AddCommand(addRangeCmd)
	rootCmd.AddCommand(getMappingCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(setStatusCmd)
	rootCmd.AddCommand(removeMappingCmd)
	rootCmd.AddCommand(pendingOpsCmd)
}
