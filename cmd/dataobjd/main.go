package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dataforge/objectcore/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dataobjd",
	Short: "dataobjd - data-object lifecycle agent",
	Long: `dataobjd runs a single data-object lifecycle agent: the
resource-hierarchy resolver, L1 descriptor table, replica access
table, logical locking state table, finalize engine, and catalog for
one zone's worth of replicas, plus the admin tooling to inspect and
recover its catalog.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("dataobjd version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Agent config file (YAML); defaults built in if omitted")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(agentCmd)
	rootCmd.AddCommand(catalogCmd)
	rootCmd.AddCommand(applyCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
