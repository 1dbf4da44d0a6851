// Package catalog implements the catalog finalize executor: the
// transactional commit point every state-table mutation passes
// through, and the row-level lookup the resolver reads back from.
// It is a single-node-per-agent Raft group (hashicorp/raft over a
// bbolt-backed FSM) rather than a joinable cluster, matching the
// data-object core's one-catalog-per-agent topology.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/dataforge/objectcore/pkg/errs"
	"github.com/dataforge/objectcore/pkg/log"
	"github.com/dataforge/objectcore/pkg/metrics"
	"github.com/dataforge/objectcore/pkg/replica"
)

// Config holds the construction parameters for a Catalog.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// Catalog is the transactional commit point for replica state-table
// mutations (via Commit, satisfying locking.Committer) and the
// logical-path resolution source the resolver reads from (via Lookup,
// satisfying resolver.ObjectLookup).
type Catalog struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft  *raft.Raft
	fsm   *fsm
	store Store
}

// NewCatalog opens the catalog's on-disk store and FSM but does not
// start Raft; call Bootstrap to do that.
func NewCatalog(cfg Config) (*Catalog, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create catalog data directory: %w", err)
	}

	store, err := NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog store: %w", err)
	}

	return &Catalog{
		nodeID:   cfg.NodeID,
		bindAddr: cfg.BindAddr,
		dataDir:  cfg.DataDir,
		fsm:      newFSM(store),
		store:    store,
	}, nil
}

// Bootstrap starts a single-node Raft group over the catalog's FSM.
// Every agent runs its own catalog; there is no join path since rows
// are scoped to the replicas this agent's resources hold.
func (c *Catalog) Bootstrap() error {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(c.nodeID)

	addr, err := net.ResolveTCPAddr("tcp", c.bindAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(c.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(c.dataDir, 2, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStorePath := filepath.Join(c.dataDir, "catalog-raft-log.db")
	logStore, err := raftboltdb.NewBoltStore(logStorePath)
	if err != nil {
		return fmt.Errorf("failed to create log store: %w", err)
	}

	stableStorePath := filepath.Join(c.dataDir, "catalog-raft-stable.db")
	stableStore, err := raftboltdb.NewBoltStore(stableStorePath)
	if err != nil {
		return fmt.Errorf("failed to create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, c.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("failed to create raft: %w", err)
	}
	c.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: config.LocalID, Address: transport.LocalAddr()},
		},
	}
	future := c.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to bootstrap catalog raft group: %w", err)
	}
	return nil
}

// Commit applies a data_object_finalize payload through Raft and
// returns once it is durable. It satisfies locking.Committer.
func (c *Catalog) Commit(ctx context.Context, payload json.RawMessage) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.CatalogCommitDuration)

	if c.raft == nil {
		return errs.New(errs.SysInternalErr, "catalog.Commit")
	}

	cmd := Command{Op: opFinalize, Data: payload}
	data, err := json.Marshal(cmd)
	if err != nil {
		return errs.Wrap(errs.SysInternalErr, "catalog.Commit", err)
	}

	future := c.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		metrics.CatalogCommitErrorsTotal.WithLabelValues("raft_apply").Inc()
		return errs.Wrap(errs.SysLibraryError, "catalog.Commit", err)
	}

	if resp := future.Response(); resp != nil {
		if applyErr, ok := resp.(error); ok && applyErr != nil {
			metrics.CatalogCommitErrorsTotal.WithLabelValues(strconv.Itoa(int(errs.CodeOf(applyErr)))).Inc()
			return applyErr
		}
	}
	return nil
}

// BindPath records the logical_path -> data_id association a CREATE
// establishes before any finalize payload for the object exists.
func (c *Catalog) BindPath(ctx context.Context, logicalPath string, dataID int64) error {
	if c.raft == nil {
		return errs.New(errs.SysInternalErr, "catalog.BindPath")
	}

	payload, err := json.Marshal(bindPathPayload{
		LogicalPath: logicalPath,
		DataID:      strconv.FormatInt(dataID, 10),
	})
	if err != nil {
		return errs.Wrap(errs.SysInternalErr, "catalog.BindPath", err)
	}

	cmd := Command{Op: opBindPath, Data: payload}
	data, err := json.Marshal(cmd)
	if err != nil {
		return errs.Wrap(errs.SysInternalErr, "catalog.BindPath", err)
	}

	future := c.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return errs.Wrap(errs.SysLibraryError, "catalog.BindPath", err)
	}
	if resp := future.Response(); resp != nil {
		if applyErr, ok := resp.(error); ok && applyErr != nil {
			return applyErr
		}
	}
	return nil
}

// Lookup resolves logicalPath to the object it currently names,
// reconstructed from its committed rows. It satisfies
// resolver.ObjectLookup and reads directly from the store rather than
// going through Raft, matching the read/write split the catalog's
// cluster-manager lineage uses throughout.
func (c *Catalog) Lookup(ctx context.Context, logicalPath string) (*replica.Object, error) {
	dataIDStr, found, err := c.store.ResolvePath(logicalPath)
	if err != nil {
		return nil, errs.Wrap(errs.SysLibraryError, "catalog.Lookup", err)
	}
	if !found {
		return nil, errs.New(errs.SysReplicaDoesNotExist, "catalog.Lookup")
	}

	rows, err := c.store.RowsByDataID(dataIDStr)
	if err != nil {
		return nil, errs.Wrap(errs.SysLibraryError, "catalog.Lookup", err)
	}
	if len(rows) == 0 {
		return nil, errs.New(errs.SysReplicaDoesNotExist, "catalog.Lookup")
	}

	obj, err := objectFromRows(logicalPath, dataIDStr, rows)
	if err != nil {
		return nil, errs.Wrap(errs.SysInternalErr, "catalog.Lookup", err)
	}
	return obj, nil
}

// Rows returns every row currently held in the catalog, for the
// catalog inspect admin command.
func (c *Catalog) Rows() ([]Row, error) {
	return c.store.AllRows()
}

// Close stops the raft group and the underlying store.
func (c *Catalog) Close() error {
	if c.raft != nil {
		future := c.raft.Shutdown()
		if err := future.Error(); err != nil {
			log.WithComponent("catalog").Warn().Err(err).Msg("raft shutdown reported an error")
		}
	}
	return c.store.Close()
}

// objectFromRows rebuilds a *replica.Object from its catalog rows,
// reversing the string-typed Canonical encoding back into Object's and
// Replica's typed fields.
func objectFromRows(logicalPath, dataIDStr string, rows []Row) (*replica.Object, error) {
	dataID, err := strconv.ParseInt(dataIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("catalog: bad data_id %q: %w", dataIDStr, err)
	}

	first := rows[0].Canonical
	collID, err := strconv.ParseInt(first.CollID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("catalog: bad coll_id %q: %w", first.CollID, err)
	}

	obj := &replica.Object{
		DataID:       dataID,
		CollectionID: collID,
		LogicalPath:  logicalPath,
		DataName:     first.DataName,
		OwnerUser:    first.DataOwnerName,
		OwnerZone:    first.DataOwnerZone,
	}

	for _, row := range rows {
		r, err := replicaFromCanonical(row.Canonical)
		if err != nil {
			return nil, err
		}
		obj.Replicas = append(obj.Replicas, r)
	}
	return obj, nil
}

func replicaFromCanonical(c replica.Canonical) (*replica.Replica, error) {
	dataID, err := strconv.ParseInt(c.DataID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("catalog: bad data_id %q: %w", c.DataID, err)
	}
	replNum, err := strconv.Atoi(c.DataReplNum)
	if err != nil {
		return nil, fmt.Errorf("catalog: bad data_repl_num %q: %w", c.DataReplNum, err)
	}
	rescID, err := strconv.ParseInt(c.RescID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("catalog: bad resc_id %q: %w", c.RescID, err)
	}
	size, err := strconv.ParseInt(c.DataSize, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("catalog: bad data_size %q: %w", c.DataSize, err)
	}
	statusInt, err := strconv.Atoi(c.DataStatus)
	if err != nil {
		return nil, fmt.Errorf("catalog: bad data_status %q: %w", c.DataStatus, err)
	}
	mapID, err := strconv.ParseInt(c.DataMapID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("catalog: bad data_map_id %q: %w", c.DataMapID, err)
	}

	return &replica.Replica{
		DataID:            dataID,
		ReplicaNumber:     replNum,
		ResourceHierarchy: c.RescHier,
		LeafResourceID:    rescID,
		Size:              size,
		Checksum:          c.DataChecksum,
		PhysicalPath:      c.DataPath,
		Mode:              c.DataMode,
		TypeName:          c.DataTypeName,
		Version:           c.DataVersion,
		CreateTS:          c.CreateTS,
		ModifyTS:          c.ModifyTS,
		ExpiryTS:          c.DataExpiryTS,
		StatusVal:         replica.Status(statusInt),
		Comment:           c.RComment,
		MapID:             mapID,
	}, nil
}
