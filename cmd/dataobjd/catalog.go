package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dataforge/objectcore/pkg/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect or repair an agent's catalog",
	Long: `These subcommands bootstrap their own single-node Raft group over
the named data directory, the same way the agent process itself does;
run them against a stopped agent's data directory, never a live one.`,
}

var catalogInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Dump every row currently held in the catalog",
	RunE:  runCatalogInspect,
}

var catalogUnlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Force-recover every orphaned INTERMEDIATE replica, regardless of age",
	RunE:  runCatalogUnlock,
}

func init() {
	catalogCmd.PersistentFlags().String("node-id", "agent-1", "Catalog node ID")
	catalogCmd.PersistentFlags().String("bind-addr", "127.0.0.1:7947", "Raft bind address (a scratch port; no peer needs it)")
	catalogCmd.PersistentFlags().String("data-dir", "./dataobjd-data", "Catalog data directory")

	catalogCmd.AddCommand(catalogInspectCmd)
	catalogCmd.AddCommand(catalogUnlockCmd)
}

func openAdminCatalog(cmd *cobra.Command) (*catalog.Catalog, error) {
	nodeID, _ := cmd.Flags().GetString("node-id")
	bindAddr, _ := cmd.Flags().GetString("bind-addr")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	cat, err := catalog.NewCatalog(catalog.Config{NodeID: nodeID, BindAddr: bindAddr, DataDir: dataDir})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %v", err)
	}
	if err := cat.Bootstrap(); err != nil {
		return nil, fmt.Errorf("failed to bootstrap catalog: %v", err)
	}
	return cat, nil
}

func runCatalogInspect(cmd *cobra.Command, args []string) error {
	cat, err := openAdminCatalog(cmd)
	if err != nil {
		return err
	}
	defer cat.Close()

	rows, err := cat.Rows()
	if err != nil {
		return fmt.Errorf("failed to read catalog rows: %v", err)
	}
	if len(rows) == 0 {
		fmt.Println("(no rows)")
		return nil
	}
	for _, row := range rows {
		fmt.Printf("data_id=%s resc_id=%s resc_hier=%s repl_num=%s status=%s size=%s path=%s\n",
			row.DataID, row.RescID, row.RescHier, row.DataReplNum, row.DataStatus, row.DataSize, row.DataPath)
	}
	return nil
}

func runCatalogUnlock(cmd *cobra.Command, args []string) error {
	cat, err := openAdminCatalog(cmd)
	if err != nil {
		return err
	}
	defer cat.Close()

	// an orphan bound of 0 recovers every INTERMEDIATE row regardless
	// of how recently it was touched, for manual post-crash recovery.
	recovered, err := cat.RecoverOrphanLocks(context.Background(), 0)
	if err != nil {
		return fmt.Errorf("failed to recover orphan locks: %v", err)
	}
	fmt.Printf("recovered %d orphaned replica(s)\n", recovered)
	return nil
}
