package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dreamware/shardcatalog/pkg/shardmgmt"
)

// openManager opens the catalog named by the --catalog persistent flag,
// running recovery over any pending operations before returning — the same
// startup sequence a long-running process would go through.
func openManager(cmd *cobra.Command) (*shardmgmt.Manager, error) {
	catalogPath, err := cmd.Flags().GetString("catalog")
	if err != nil {
		return nil, err
	}
	return shardmgmt.NewSqlShardMapManager(context.Background(), shardmgmt.ManagerOptions{
		GlobalCatalogPath: catalogPath,
	})
}
