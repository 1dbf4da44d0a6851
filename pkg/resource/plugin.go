// Package resource defines the physical-storage plugin interface the
// core dispatches through, and two concrete plugins: a default
// filesystem-backed plugin and a content-addressable plugin
// built on containerd's blob store. Neither plugin exposes a
// byte-stream read/write API: physical I/O after open is an explicit
// non-goal of this module; plugins only ever see CREATE/OPEN/CLOSE/
// STAT/CHKSUM/UNLINK.
package resource

import (
	"context"

	"github.com/dataforge/objectcore/pkg/replica"
)

// Operation is the coarse operation kind the resolver and plugins share;
// it is a separate enum, coarser than replica.OperationKind, since
// resolution only needs CREATE/OPEN/WRITE/UNLINK. OPEN covers both read and write opens
// before the resolver's own rewriting rules narrow it.
type Operation int

const (
	OpCreate Operation = iota
	OpOpen
	OpWrite
	OpUnlink
)

func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "CREATE"
	case OpOpen:
		return "OPEN"
	case OpWrite:
		return "WRITE"
	case OpUnlink:
		return "UNLINK"
	default:
		return "UNKNOWN"
	}
}

// Stat is the subset of a physical replica's on-disk state the finalize
// engine needs after close: its size and the plugin's own notion of a
// modify timestamp.
type Stat struct {
	Size     int64
	ModifyTS string
	// Unknown is set when the plugin cannot determine size (the
	// UNKNOWN_FILE_SZ case during close-time size reconciliation);
	// callers must then trust the L1 slot's own bytes_written count.
	Unknown bool
}

// Plugin is the uniform dispatch table a physical-storage resource
// plugin implements. Votes are in [0,1]; 0 means refuse.
type Plugin interface {
	// Name is the plugin instance's root resource name, used by the
	// resolver to key its registry and by hint tie-breaking.
	Name() string

	// ResolveRescHier returns this plugin's candidate hierarchy and
	// vote for op against the (possibly nil, for CREATE) existing
	// object.
	ResolveRescHier(ctx context.Context, obj *replica.Object, op Operation, hints replica.ConditionalInput) (hierarchy string, vote float64, err error)

	Create(ctx context.Context, r *replica.Replica) (fd int, err error)
	Open(ctx context.Context, r *replica.Replica) (fd int, err error)
	Close(ctx context.Context, r *replica.Replica, fd int) error
	Stat(ctx context.Context, r *replica.Replica) (Stat, error)
	Chksum(ctx context.Context, r *replica.Replica) (string, error)
	Unlink(ctx context.Context, r *replica.Replica) error
}
