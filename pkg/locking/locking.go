package locking

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dataforge/objectcore/pkg/errs"
	"github.com/dataforge/objectcore/pkg/log"
	"github.com/dataforge/objectcore/pkg/metrics"
	"github.com/dataforge/objectcore/pkg/replica"
)

// Committer commits a data_object_finalize payload to the catalog. It is
// satisfied by *catalog.Catalog; declared here (rather than imported
// from pkg/catalog) so locking depends only on the shape it needs, not
// on raft/bbolt.
type Committer interface {
	Commit(ctx context.Context, payload json.RawMessage) error
}

// PartialWrite describes a mid-replicate failure where some bytes had
// already landed in the vault before the error.
type PartialWrite struct {
	VaultSize int64
}

// ReleaseOutcome is what pkg/finalize has already computed about how a
// close should resolve; Table.ReleaseSuccess turns it into sibling
// status transitions and commits the result.
type ReleaseOutcome struct {
	// TargetStatus is the target replica's final status (normally GOOD).
	TargetStatus replica.Status

	// StaleAllSiblings corresponds to the STALE_ALL_INTERMEDIATE_REPLICAS
	// signal: every WRITE_LOCK_ON_REPLICA sibling becomes STALE.
	StaleAllSiblings bool

	// MirrorSource and SourceReplicaNumber apply to every destination
	// kind (REPL_DEST, COPY_DEST, PHYMV_DEST): the source replica is
	// restored to its pre-acquire status rather than forced to STALE
	// alongside the other siblings.
	MirrorSource        bool
	SourceReplicaNumber int
}

// Table is the process-wide replica state table, keyed by logical path.
// Safe for concurrent use.
type Table struct {
	mu        sync.Mutex
	entries   map[string]*Entry
	committer Committer
}

// New builds a Table that commits through committer.
func New(committer Committer) *Table {
	return &Table{
		entries:   make(map[string]*Entry),
		committer: committer,
	}
}

// Acquire implements the logical-locking algorithm for a write-open of
// obj's replica targetNumber. On success, obj's replicas
// are mutated in place to reflect the committed statuses (target
// INTERMEDIATE, siblings WRITE_LOCK_ON_REPLICA) and the state-table
// entry is retained for the matching Release call.
func (t *Table) Acquire(ctx context.Context, obj *replica.Object, targetNumber int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	target := obj.ReplicaByNumber(targetNumber)
	if target == nil {
		return errs.New(errs.SysReplicaDoesNotExist, "locking.Acquire")
	}

	siblingLog := log.WithComponent("locking")
	for _, sibling := range obj.Siblings(targetNumber) {
		if sibling.Status().IsLocked() {
			metrics.LockBusyTotal.Inc()
			siblingLog.Debug().
				Int64("data_id", obj.DataID).
				Int("replica_number", sibling.ReplicaNumber).
				Msg("write-open rejected: sibling already locked")
			return errs.New(errs.HierarchyLocked, "locking.Acquire")
		}
	}

	entry := &Entry{
		DataID:       obj.DataID,
		CollectionID: obj.CollectionID,
		LogicalPath:  obj.LogicalPath,
		DataName:     obj.DataName,
		OwnerUser:    obj.OwnerUser,
		OwnerZone:    obj.OwnerZone,
	}
	for _, r := range obj.Replicas {
		before := r.Clone()
		after := r.Clone()
		if r.ReplicaNumber == targetNumber {
			after.SetStatus(replica.Intermediate)
		} else {
			after.SetStatus(replica.WriteLockOnReplica)
		}
		entry.Replicas = append(entry.Replicas, &ReplicaDiff{Before: before, After: after})
	}

	payload, err := entry.ToJSON()
	if err != nil {
		return errs.Wrap(errs.SysInternalErr, "locking.Acquire", err)
	}

	if err := t.committer.Commit(ctx, payload); err != nil {
		return err
	}

	applyDiffs(obj, entry.Replicas)
	t.entries[obj.LogicalPath] = entry
	metrics.LockAcquiredTotal.Inc()
	return nil
}

// ReleaseSuccess implements the success path of logical-lock release.
// obj must be the same object (with up-to-date replica
// content, size, checksum, etc., already applied by the caller) that
// was passed to the matching Acquire.
func (t *Table) ReleaseSuccess(ctx context.Context, obj *replica.Object, targetNumber int, outcome ReleaseOutcome) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[obj.LogicalPath]
	if !ok {
		return errs.New(errs.SysInvalidInputParam, "locking.ReleaseSuccess")
	}

	next := &Entry{
		DataID: entry.DataID, CollectionID: entry.CollectionID, LogicalPath: entry.LogicalPath,
		DataName: entry.DataName, OwnerUser: entry.OwnerUser, OwnerZone: entry.OwnerZone,
	}
	for _, d := range entry.Replicas {
		before := d.After.Clone()
		live := obj.ReplicaByNumber(d.After.ReplicaNumber)
		if live == nil {
			continue
		}
		after := live.Clone()

		switch {
		case after.ReplicaNumber == targetNumber:
			after.SetStatus(outcome.TargetStatus)
		case outcome.MirrorSource && after.ReplicaNumber == outcome.SourceReplicaNumber:
			// source replica reverts to its pre-acquire status (normally
			// GOOD) rather than staying WRITE_LOCK_ON_REPLICA.
			after.SetStatus(d.Before.Status())
		case outcome.StaleAllSiblings || after.Status() == replica.WriteLockOnReplica:
			after.SetStatus(replica.Stale)
		}
		next.Replicas = append(next.Replicas, &ReplicaDiff{Before: before, After: after})
	}

	payload, err := next.ToJSON()
	if err != nil {
		return errs.Wrap(errs.SysInternalErr, "locking.ReleaseSuccess", err)
	}
	if err := t.committer.Commit(ctx, payload); err != nil {
		// Commit failure here is fatal to this close: the target stays
		// INTERMEDIATE, subject to sweeper recovery.
		return err
	}

	applyDiffs(obj, next.Replicas)
	delete(t.entries, obj.LogicalPath)
	metrics.LockReleasedTotal.WithLabelValues("success").Inc()
	return nil
}

// ReleaseFailure implements the failure path of logical-lock release:
// the target reverts INTERMEDIATE->STALE and siblings restore
// their remembered pre-acquire status. partial, if non-nil, records a
// mid-replicate vault size for later repair detection.
func (t *Table) ReleaseFailure(ctx context.Context, obj *replica.Object, targetNumber int, partial *PartialWrite) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[obj.LogicalPath]
	if !ok {
		return errs.New(errs.SysInvalidInputParam, "locking.ReleaseFailure")
	}

	next := &Entry{
		DataID: entry.DataID, CollectionID: entry.CollectionID, LogicalPath: entry.LogicalPath,
		DataName: entry.DataName, OwnerUser: entry.OwnerUser, OwnerZone: entry.OwnerZone,
	}
	for _, d := range entry.Replicas {
		before := d.After.Clone()
		live := obj.ReplicaByNumber(d.After.ReplicaNumber)
		if live == nil {
			continue
		}
		after := live.Clone()

		if after.ReplicaNumber == targetNumber {
			after.SetStatus(replica.Stale)
			if partial != nil {
				after.Size = partial.VaultSize
			}
		} else {
			// d.Before holds the status remembered at Acquire time,
			// i.e. the sibling's status before this write-open began.
			after.SetStatus(d.Before.Status())
		}
		next.Replicas = append(next.Replicas, &ReplicaDiff{Before: before, After: after})
	}

	payload, err := next.ToJSON()
	if err != nil {
		return errs.Wrap(errs.SysInternalErr, "locking.ReleaseFailure", err)
	}
	if err := t.committer.Commit(ctx, payload); err != nil {
		return err
	}

	applyDiffs(obj, next.Replicas)
	delete(t.entries, obj.LogicalPath)
	metrics.LockReleasedTotal.WithLabelValues("failure").Inc()
	return nil
}

// Lookup returns the state-table entry for logicalPath, or nil if none
// is open.
func (t *Table) Lookup(logicalPath string) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[logicalPath]
}

// Erase drops the state-table entry for logicalPath without committing
// anything.
func (t *Table) Erase(logicalPath string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, logicalPath)
}

// Entries returns a snapshot of every open state-table entry.
func (t *Table) Entries() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	return out
}

func applyDiffs(obj *replica.Object, diffs []*ReplicaDiff) {
	for _, d := range diffs {
		if live := obj.ReplicaByNumber(d.After.ReplicaNumber); live != nil {
			live.SetStatus(d.After.Status())
		}
	}
}
