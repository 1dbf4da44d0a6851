// Package finalize implements the finalize engine: the close-time
// orchestration that consolidates a replica's size, checksum, and
// status, commits the result to the catalog through the logical
// locking state table, and runs post-processing hooks.
package finalize

import (
	"context"
	"strings"
	"sync"

	"github.com/dataforge/objectcore/pkg/accesstable"
	"github.com/dataforge/objectcore/pkg/errs"
	"github.com/dataforge/objectcore/pkg/l1table"
	"github.com/dataforge/objectcore/pkg/locking"
	"github.com/dataforge/objectcore/pkg/log"
	"github.com/dataforge/objectcore/pkg/metrics"
	"github.com/dataforge/objectcore/pkg/replica"
	"github.com/dataforge/objectcore/pkg/resource"
	"github.com/dataforge/objectcore/pkg/rules"
)

// CloseInput is the client-supplied close request.
type CloseInput struct {
	// PID identifies the closing process for replica-access-table
	// bookkeeping.
	PID string

	// RemoteBytesWritten is the cross-zone write count a remote peer
	// reported; authoritative over the local descriptor's BytesWritten
	// whenever it is larger (the local count is 0 for a forwarded open).
	RemoteBytesWritten int64
}

// Result is what a successful or failed Close reports.
type Result struct {
	Status    replica.Status
	Committed bool
}

// Engine orchestrates a close. It owns no table itself; all state lives
// in the tables it is constructed with, so a Session can share them
// across opens and closes without the engine holding process-global
// state.
type Engine struct {
	l1      *l1table.Table
	locking *locking.Table
	access  *accesstable.Table
	hooks   rules.Hooks

	mu      sync.RWMutex
	plugins map[string]resource.Plugin
}

// New builds an Engine over the given tables. hooks may be rules.NopHooks{}.
func New(l1 *l1table.Table, lockTable *locking.Table, access *accesstable.Table, hooks rules.Hooks) *Engine {
	return &Engine{
		l1:      l1,
		locking: lockTable,
		access:  access,
		hooks:   hooks,
		plugins: make(map[string]resource.Plugin),
	}
}

// RegisterPlugin adds p to the set the engine dispatches physical
// close/stat/chksum calls through, keyed by its root resource name.
func (e *Engine) RegisterPlugin(p resource.Plugin) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.plugins[p.Name()] = p
}

func (e *Engine) pluginFor(r *replica.Replica) (resource.Plugin, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	root := r.ResourceHierarchy
	if i := strings.IndexByte(root, ';'); i >= 0 {
		root = root[:i]
	}
	p, ok := e.plugins[root]
	return p, ok
}

// Close runs the finalize algorithm for the open tracked by slot. obj
// must be the live object containing the replica that slot's
// descriptor opened (same Replica value desc.ReplicaView points at).
func (e *Engine) Close(ctx context.Context, slot int, obj *replica.Object, in CloseInput) (Result, error) {
	finalizeLog := log.WithComponent("finalize")
	timer := metrics.NewTimer()

	// read the operation kind before close frees the slot
	opLabel := "UNKNOWN"
	if desc, derr := e.l1.Get(slot); derr == nil {
		opLabel = desc.OperationKind.String()
	}

	result, err := e.close(ctx, slot, obj, in)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.FinalizeOutcomesTotal.WithLabelValues(opLabel, outcome).Inc()
	timer.ObserveDuration(metrics.FinalizeDuration)
	finalizeLog.Debug().
		Int("slot", slot).
		Str("outcome", outcome).
		Msg("close complete")
	return result, err
}

func (e *Engine) close(ctx context.Context, slot int, obj *replica.Object, in CloseInput) (Result, error) {
	desc, err := e.l1.Get(slot)
	if err != nil {
		return Result{}, err
	}
	target := desc.ReplicaView
	if target == nil {
		return Result{}, errs.New(errs.SysInvalidInputParam, "finalize.Close")
	}

	var accessEntry *accesstable.Entry
	if desc.ReplicaToken != "" {
		accessEntry = e.access.ErasePID(desc.ReplicaToken, in.PID)
	}

	var source *replica.Replica
	if desc.SourceDescriptor >= 0 {
		if srcDesc, serr := e.l1.Get(desc.SourceDescriptor); serr == nil {
			source = srcDesc.ReplicaView
		}
	}

	failErr := e.reconcile(ctx, desc, target, source, in)

	if failErr != nil {
		desc.OperStatus = failErr
		if relErr := e.locking.ReleaseFailure(ctx, obj, target.ReplicaNumber, partialWrite(desc)); relErr != nil {
			return Result{}, relErr
		}
		if accessEntry != nil {
			e.access.Restore(accessEntry)
		}
		_ = e.l1.Free(slot)
		return Result{Status: replica.Stale}, failErr
	}

	outcome := e.computeOutcome(desc, target, source)
	if err := e.locking.ReleaseSuccess(ctx, obj, target.ReplicaNumber, outcome); err != nil {
		if accessEntry != nil {
			e.access.Restore(accessEntry)
		}
		return Result{}, err
	}

	if desc.PurgeCacheFlag {
		e.enqueueTrim(target)
	}
	if desc.LockFD != 0 {
		log.WithComponent("finalize").Debug().Int("lock_fd", desc.LockFD).Msg("releasing lock handle")
	}

	e.runPostHooks(ctx, desc, obj, target)

	_ = e.l1.Free(slot)
	return Result{Status: target.StatusVal, Committed: true}, nil
}

// reconcile runs steps 1-3 of the close algorithm (physical close, size
// reconciliation, checksum policy), mutating target in place. For a
// writer it returns a non-nil error for any failure in steps 1-3; a
// physical close error does not stop steps 2-3 and is returned after
// them. For a non-writer a physical close error is only logged.
func (e *Engine) reconcile(ctx context.Context, desc *l1table.Descriptor, target, source *replica.Replica, in CloseInput) error {
	plugin, ok := e.pluginFor(target)
	if !ok {
		return errs.New(errs.SysUnsupportedOperation, "finalize.reconcile")
	}

	closeErr := plugin.Close(ctx, target, desc.PhysicalFD)
	if closeErr != nil {
		log.WithComponent("finalize").Warn().Err(closeErr).Msg("physical close failed")
	}

	if !desc.OperationKind.IsWriter() {
		return nil
	}

	bytesWritten := desc.BytesWritten
	if in.RemoteBytesWritten > bytesWritten {
		bytesWritten = in.RemoteBytesWritten
	}
	desc.BytesWritten = bytesWritten

	stat, err := plugin.Stat(ctx, target)
	if err != nil {
		return err
	}
	switch {
	case stat.Unknown:
		target.Size = bytesWritten
	case stat.Size != bytesWritten:
		if !desc.RequestSnapshot.Has(replica.KwNoChkCopyLen) {
			return errs.New(errs.SysCopyLenErr, "finalize.reconcile")
		}
		target.Size = bytesWritten
	default:
		target.Size = stat.Size
	}

	if err := e.reconcileChecksum(ctx, plugin, desc, target, source); err != nil {
		return err
	}
	return closeErr
}

func (e *Engine) reconcileChecksum(ctx context.Context, plugin resource.Plugin, desc *l1table.Descriptor, target, source *replica.Replica) error {
	switch desc.ChecksumFlag {
	case l1table.ChecksumNone:
		return nil

	case l1table.ChecksumRegister:
		sum, err := plugin.Chksum(ctx, target)
		if err != nil {
			return err
		}
		target.Checksum = sum
		return nil

	case l1table.ChecksumVerify:
		if desc.RequestSnapshot.Has(replica.KwDirectArchiveAcc) {
			if source != nil {
				target.Checksum = source.Checksum
			}
			return nil
		}

		if desc.OperationKind.IsDestination() && source != nil && source.Checksum != "" {
			target.ConditionalInput = target.ConditionalInput.Clone()
			target.ConditionalInput[replica.KwOrigChksum] = source.Checksum
		}

		sum, err := plugin.Chksum(ctx, target)
		if err != nil {
			return err
		}

		expected := desc.ExpectedChecksum
		if desc.OperationKind.IsDestination() && source != nil {
			expected = source.Checksum
		}
		if expected != "" && sum != expected {
			return errs.New(errs.UserChksumMismatch, "finalize.reconcileChecksum")
		}
		target.Checksum = sum
		return nil

	default:
		return nil
	}
}

// computeOutcome implements step 4: deriving the target's final status
// and the sibling-transition policy, per operation kind.
func (e *Engine) computeOutcome(desc *l1table.Descriptor, target, source *replica.Replica) locking.ReleaseOutcome {
	switch {
	case desc.OperationKind.IsDestination():
		// The source's live status is WRITE_LOCK_ON_REPLICA for the
		// duration of this close (Acquire already locked every sibling),
		// so "mirror the source" means the status it settles back to,
		// which is GOOD for any valid replicate/copy/phymv source.
		status := replica.Good
		target.SetStatus(status)
		outcome := locking.ReleaseOutcome{TargetStatus: status, MirrorSource: true}
		if source != nil {
			outcome.SourceReplicaNumber = source.ReplicaNumber
		}
		return outcome

	case desc.OperationKind.IsWriter():
		if desc.BytesWritten > 0 {
			target.SetStatus(replica.Good)
			return locking.ReleaseOutcome{TargetStatus: replica.Good, StaleAllSiblings: true}
		}
		// zero bytes written: ACL/metadata-only close, status unchanged.
		return locking.ReleaseOutcome{TargetStatus: target.StatusVal}

	default:
		return locking.ReleaseOutcome{TargetStatus: replica.Good}
	}
}

func partialWrite(desc *l1table.Descriptor) *locking.PartialWrite {
	if desc.BytesWritten <= 0 {
		return nil
	}
	return &locking.PartialWrite{VaultSize: desc.BytesWritten}
}

func (e *Engine) enqueueTrim(target *replica.Replica) {
	log.WithComponent("finalize").Info().
		Str("resc_hier", target.ResourceHierarchy).
		Int("replica_number", target.ReplicaNumber).
		Msg("purge_cache_flag set: trim enqueued")
}

// runPostHooks applies step 8's static post-processing hooks. Their
// outcome is informational: a hook error is logged but never returned,
// since commits already happened.
func (e *Engine) runPostHooks(ctx context.Context, desc *l1table.Descriptor, obj *replica.Object, target *replica.Replica) {
	defer func() {
		if r := recover(); r != nil {
			log.WithComponent("finalize").Error().Interface("panic", r).Msg("post-processing hook panicked")
		}
	}()

	switch desc.OperationKind {
	case replica.Create:
		e.hooks.AcPostProcForCreate(ctx, obj, target)
	case replica.OpenRead, replica.OpenWrite:
		e.hooks.AcPostProcForOpen(ctx, obj, target)
	case replica.Put:
		e.hooks.AcPostProcForPut(ctx, obj, target)
	case replica.ReplDest:
		e.hooks.AcPostProcForRepl(ctx, obj, target)
	case replica.CopyDest:
		e.hooks.AcPostProcForCopy(ctx, obj, target)
	case replica.PhymvDest:
		e.hooks.AcPostProcForPhymv(ctx, obj, target)
	}
}
