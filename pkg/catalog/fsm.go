package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/dataforge/objectcore/pkg/errs"
	"github.com/dataforge/objectcore/pkg/replica"
)

// Command is the Raft log entry envelope: an operation name plus its
// raw JSON payload, dispatched by fsm.Apply.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opFinalize = "finalize"
	opBindPath = "bind_path"
)

// finalizePayload mirrors locking.Entry.ToJSON's wire shape: one
// before/after pair per replica, plus the object's data_id.
type finalizePayload struct {
	DataID   string        `json:"data_id"`
	Replicas []replicaPair `json:"replicas"`
}

type replicaPair struct {
	Before replica.Canonical `json:"before"`
	After  replica.Canonical `json:"after"`
}

type bindPathPayload struct {
	LogicalPath string `json:"logical_path"`
	DataID      string `json:"data_id"`
}

// fsm implements raft.FSM over a Store, applying one finalize or
// bind_path command per committed log entry.
type fsm struct {
	mu    sync.RWMutex
	store Store
}

func newFSM(store Store) *fsm {
	return &fsm{store: store}
}

// Apply parses and applies one committed Command. A non-nil return
// value is surfaced to the submitter via ApplyFuture.Response();
// Catalog.Commit returns it to its caller unchanged (an *errs.E for a
// bad payload, a plain error for an unknown Op).
func (f *fsm) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return errs.Wrap(errs.InputArgNotWellFormed, "catalog.fsm.Apply", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opFinalize:
		return f.applyFinalize(cmd.Data)
	case opBindPath:
		return f.applyBindPath(cmd.Data)
	default:
		return fmt.Errorf("catalog: unknown command %q", cmd.Op)
	}
}

func (f *fsm) applyFinalize(data json.RawMessage) error {
	var payload finalizePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return errs.Wrap(errs.InputArgNotWellFormed, "catalog.fsm.applyFinalize", err)
	}
	if payload.DataID == "" {
		return errs.New(errs.SysInvalidInputParam, "catalog.fsm.applyFinalize")
	}

	for _, pair := range payload.Replicas {
		if pair.After.RescID == "" {
			return errs.New(errs.SysInvalidInputParam, "catalog.fsm.applyFinalize")
		}
		if err := f.store.PutRow(pair.After.RescID, payload.DataID, Row{Canonical: pair.After}); err != nil {
			return errs.Wrap(errs.SysLibraryError, "catalog.fsm.applyFinalize", err)
		}
	}
	return nil
}

func (f *fsm) applyBindPath(data json.RawMessage) error {
	var payload bindPathPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return errs.Wrap(errs.InputArgNotWellFormed, "catalog.fsm.applyBindPath", err)
	}
	if payload.LogicalPath == "" || payload.DataID == "" {
		return errs.New(errs.SysInvalidInputParam, "catalog.fsm.applyBindPath")
	}
	if err := f.store.BindPath(payload.LogicalPath, payload.DataID); err != nil {
		return errs.Wrap(errs.SysLibraryError, "catalog.fsm.applyBindPath", err)
	}
	return nil
}

// Snapshot captures every row and path binding as one JSON document.
func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	rows, err := f.store.AllRows()
	if err != nil {
		return nil, fmt.Errorf("catalog: list rows for snapshot: %w", err)
	}
	paths, err := f.store.AllPaths()
	if err != nil {
		return nil, fmt.Errorf("catalog: list paths for snapshot: %w", err)
	}

	return &snapshot{Rows: rows, Paths: paths}, nil
}

// Restore replays a snapshot's rows and path bindings into the store.
func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("catalog: decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, row := range snap.Rows {
		if err := f.store.PutRow(row.RescID, row.DataID, row); err != nil {
			return fmt.Errorf("catalog: restore row: %w", err)
		}
	}
	for path, dataID := range snap.Paths {
		if err := f.store.BindPath(path, dataID); err != nil {
			return fmt.Errorf("catalog: restore path: %w", err)
		}
	}
	return nil
}

type snapshot struct {
	Rows  []Row
	Paths map[string]string
}

func (s *snapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *snapshot) Release() {}
