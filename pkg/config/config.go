// Package config loads the agent configuration file: the catalog's
// data directory and Raft bind address, the L1 descriptor table's
// capacity, the default resource plugin, the sweeper's schedule, and
// the logger's level/format. Grounded on cmd/warren/apply.go's
// yaml.Unmarshal usage, generalized from a one-off resource manifest
// to the agent's own startup configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// CatalogConfig controls the per-agent Raft group and its on-disk
// store, mirroring catalog.Config.
type CatalogConfig struct {
	NodeID   string `yaml:"nodeID"`
	BindAddr string `yaml:"bindAddr"`
	DataDir  string `yaml:"dataDir"`
}

// L1Config controls the L1 descriptor table's fixed capacity.
type L1Config struct {
	MaxDescriptors int `yaml:"maxDescriptors"`
}

// ResourceConfig selects and parameterizes the default resource plugin
// an agent registers at startup. Kind is either "fs" or "content".
type ResourceConfig struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"`
	VaultRoot  string `yaml:"vaultRoot"`  // fs plugin
	ContentDir string `yaml:"contentDir"` // content plugin
}

// SweeperConfig controls the orphan-lock recovery loop.
type SweeperConfig struct {
	Interval    time.Duration `yaml:"interval"`
	OrphanBound time.Duration `yaml:"orphanBound"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the full agent configuration file shape.
type Config struct {
	LocalZone string         `yaml:"localZone"`
	Catalog   CatalogConfig  `yaml:"catalog"`
	L1        L1Config       `yaml:"l1"`
	Resource  ResourceConfig `yaml:"resource"`
	Sweeper   SweeperConfig  `yaml:"sweeper"`
	Log       LogConfig      `yaml:"log"`
}

// Default returns a Config usable out of the box for a single-node
// demo agent.
func Default() *Config {
	return &Config{
		LocalZone: "tempZone",
		Catalog: CatalogConfig{
			NodeID:   "agent-1",
			BindAddr: "127.0.0.1:7946",
			DataDir:  "./dataobjd-data",
		},
		L1: L1Config{MaxDescriptors: 1024},
		Resource: ResourceConfig{
			Name:      "demoResc",
			Kind:      "fs",
			VaultRoot: "./dataobjd-data/vault",
		},
		Sweeper: SweeperConfig{
			Interval:    30 * time.Second,
			OrphanBound: 5 * time.Minute,
		},
		Log: LogConfig{Level: "info", JSON: false},
	}
}

// Load reads and parses the YAML config file at path, filling any
// zero-valued field from Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Catalog.NodeID == "" {
		cfg.Catalog.NodeID = "agent-1"
	}
	if cfg.L1.MaxDescriptors <= 0 {
		cfg.L1.MaxDescriptors = 1024
	}
	if cfg.Sweeper.Interval <= 0 {
		cfg.Sweeper.Interval = 30 * time.Second
	}
	if cfg.Sweeper.OrphanBound <= 0 {
		cfg.Sweeper.OrphanBound = 5 * time.Minute
	}
	return cfg, nil
}
