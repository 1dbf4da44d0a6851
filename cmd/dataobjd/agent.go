package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dataforge/objectcore/pkg/catalog"
	"github.com/dataforge/objectcore/pkg/config"
	"github.com/dataforge/objectcore/pkg/metrics"
	"github.com/dataforge/objectcore/pkg/resource"
	"github.com/dataforge/objectcore/pkg/rules"
	"github.com/dataforge/objectcore/pkg/session"
	"github.com/dataforge/objectcore/pkg/sweeper"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Run the data-object lifecycle agent",
	Long: `Run starts this agent's catalog (a single-node Raft group over a
bbolt-backed store), its logical locking/finalize/resolver stack, the
default resource plugin, the orphan-lock sweeper, and a metrics
endpoint, then blocks until interrupted.`,
	RunE: runAgent,
}

func init() {
	agentCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Metrics HTTP listen address")
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := loadAgentConfig(cmd)
	if err != nil {
		return err
	}
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	fmt.Println("Starting dataobjd agent...")
	fmt.Printf("  Node ID: %s\n", cfg.Catalog.NodeID)
	fmt.Printf("  Zone: %s\n", cfg.LocalZone)
	fmt.Printf("  Raft bind address: %s\n", cfg.Catalog.BindAddr)
	fmt.Printf("  Catalog data directory: %s\n", cfg.Catalog.DataDir)

	cat, err := catalog.NewCatalog(catalog.Config{
		NodeID:   cfg.Catalog.NodeID,
		BindAddr: cfg.Catalog.BindAddr,
		DataDir:  cfg.Catalog.DataDir,
	})
	if err != nil {
		return fmt.Errorf("failed to create catalog: %v", err)
	}
	if err := cat.Bootstrap(); err != nil {
		return fmt.Errorf("failed to bootstrap catalog: %v", err)
	}
	fmt.Println("✓ Catalog bootstrapped")

	plugin, err := buildPlugin(cfg.Resource)
	if err != nil {
		return fmt.Errorf("failed to build resource plugin: %v", err)
	}

	sess := session.New(cat, rules.NopHooks{}, session.Config{
		LocalZone:      cfg.LocalZone,
		MaxDescriptors: cfg.L1.MaxDescriptors,
	})
	sess.RegisterPlugin(plugin)
	fmt.Printf("✓ Resource plugin registered: %s (%s)\n", cfg.Resource.Name, cfg.Resource.Kind)

	sweep := sweeper.New(cat, sweeper.Config{
		Interval:    cfg.Sweeper.Interval,
		OrphanBound: cfg.Sweeper.OrphanBound,
	})
	sweep.Start()
	fmt.Printf("✓ Sweeper started (interval=%s, orphan bound=%s)\n", cfg.Sweeper.Interval, cfg.Sweeper.OrphanBound)

	go func() {
		http.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(metricsAddr, nil); err != nil {
			fmt.Fprintf(os.Stderr, "metrics server error: %v\n", err)
		}
	}()
	fmt.Printf("✓ Metrics endpoint: http://%s/metrics\n", metricsAddr)

	fmt.Println()
	fmt.Println("Agent is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\nShutting down...")

	sweep.Stop()
	sess.Shutdown()
	if err := cat.Close(); err != nil {
		return fmt.Errorf("failed to shut down catalog: %v", err)
	}

	fmt.Println("✓ Shutdown complete")
	return nil
}

func loadAgentConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildPlugin(cfg config.ResourceConfig) (resource.Plugin, error) {
	switch cfg.Kind {
	case "", "fs":
		return resource.NewFSPlugin(cfg.Name, cfg.VaultRoot), nil
	case "content":
		return resource.NewContentPlugin(cfg.Name, cfg.ContentDir)
	default:
		return nil, fmt.Errorf("unknown resource plugin kind %q", cfg.Kind)
	}
}
