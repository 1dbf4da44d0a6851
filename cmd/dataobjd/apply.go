package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dataforge/objectcore/pkg/catalog"
	"github.com/dataforge/objectcore/pkg/finalize"
	"github.com/dataforge/objectcore/pkg/replica"
	"github.com/dataforge/objectcore/pkg/resource"
	"github.com/dataforge/objectcore/pkg/rules"
	"github.com/dataforge/objectcore/pkg/session"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create and close a demo object layout from a YAML file",
	Long: `Apply reads a YAML file describing a handful of logical objects
and drives a CREATE-then-close through a fresh, short-lived agent
stack, for demoing or smoke-testing a deployment without a client.

Example:
  dataobjd apply -f layout.yaml --data-dir ./demo-data`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML layout file to apply (required)")
	applyCmd.Flags().String("node-id", "apply-1", "Catalog node ID")
	applyCmd.Flags().String("bind-addr", "127.0.0.1:7948", "Raft bind address (a scratch port)")
	applyCmd.Flags().String("data-dir", "./dataobjd-apply-data", "Catalog and vault data directory")
	_ = applyCmd.MarkFlagRequired("file")
}

// demoLayout is the YAML shape `apply` reads: a flat list of objects to
// create, each with inline content so the demo needs no separate write
// path.
type demoLayout struct {
	Objects []demoObject `yaml:"objects"`
}

type demoObject struct {
	Path           string `yaml:"path"`
	Owner          string `yaml:"owner"`
	Zone           string `yaml:"zone"`
	Content        string `yaml:"content"`
	RegisterChksum bool   `yaml:"registerChecksum"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	nodeID, _ := cmd.Flags().GetString("node-id")
	bindAddr, _ := cmd.Flags().GetString("bind-addr")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}
	var layout demoLayout
	if err := yaml.Unmarshal(data, &layout); err != nil {
		return fmt.Errorf("failed to parse YAML: %v", err)
	}
	if len(layout.Objects) == 0 {
		return fmt.Errorf("layout has no objects")
	}

	cat, err := catalog.NewCatalog(catalog.Config{NodeID: nodeID, BindAddr: bindAddr, DataDir: dataDir})
	if err != nil {
		return fmt.Errorf("failed to create catalog: %v", err)
	}
	defer cat.Close()
	if err := cat.Bootstrap(); err != nil {
		return fmt.Errorf("failed to bootstrap catalog: %v", err)
	}

	plugin := resource.NewFSPlugin("demoResc", filepath.Join(dataDir, "vault"))
	sess := session.New(cat, rules.NopHooks{}, session.Config{LocalZone: layout.Objects[0].Zone, MaxDescriptors: 64})
	sess.RegisterPlugin(plugin)

	ctx := context.Background()
	for _, obj := range layout.Objects {
		if err := applyObject(ctx, sess, obj); err != nil {
			return fmt.Errorf("failed to apply %s: %v", obj.Path, err)
		}
		fmt.Printf("✓ %s (%d bytes)\n", obj.Path, len(obj.Content))
	}
	return nil
}

func applyObject(ctx context.Context, sess *session.Session, obj demoObject) error {
	pid := uuid.NewString()
	hints := replica.ConditionalInput{}
	if obj.RegisterChksum {
		hints[replica.KwRegChksum] = "1"
	}

	result, err := sess.Open(ctx, session.OpenRequest{
		Operation:   resource.OpCreate,
		Kind:        replica.Create,
		LogicalPath: obj.Path,
		Hints:       hints,
		PID:         pid,
		DataName:    filepath.Base(obj.Path),
		OwnerUser:   obj.Owner,
		OwnerZone:   obj.Zone,
		SourceSlot:  -1,
	})
	if err != nil {
		return err
	}

	target, err := sess.ReplicaAt(result.Slot)
	if err != nil {
		return err
	}

	// Plugins expose no byte-stream write API (an explicit Non-goal);
	// the demo writes the vault file directly and reports the byte
	// count back to the session the way an out-of-band writer would.
	if err := os.WriteFile(target.PhysicalPath, []byte(obj.Content), 0o644); err != nil {
		return fmt.Errorf("failed to write vault file: %w", err)
	}
	if err := sess.RecordWrite(result.Slot, int64(len(obj.Content))); err != nil {
		return err
	}

	_, err = sess.Close(ctx, result.Slot, finalize.CloseInput{PID: pid})
	return err
}
