// Package l1table implements the L1 descriptor table: a fixed-size,
// process-wide table of in-flight replica opens. Allocation is a linear
// scan for an unused slot; lookup by slot index is O(1). The table is
// not itself thread-safe; callers serialize allocate/free on their own
// table-level lock, since a session's descriptor traffic is already
// single-threaded on its own hot path.
package l1table

import (
	"github.com/dataforge/objectcore/pkg/errs"
	"github.com/dataforge/objectcore/pkg/metrics"
	"github.com/dataforge/objectcore/pkg/replica"
)

// reservedSlots keeps slot numbers 0-2 out of circulation so they never
// collide with well-known fd numbers a caller might confuse them with.
const reservedSlots = 3

// DefaultMaxDescriptors is the table size used when Config.MaxDescriptors
// is left at zero.
const DefaultMaxDescriptors = 1024

// ChecksumFlag selects the checksum policy a slot's close should apply.
type ChecksumFlag int

const (
	ChecksumNone ChecksumFlag = iota
	ChecksumVerify
	ChecksumRegister
)

// Descriptor is one slot's state, mirroring the fields of an L1 descriptor.
type Descriptor struct {
	InUse bool

	OperationKind replica.OperationKind
	OpenType      string

	// RequestSnapshot is the client's open/close request as received
	// (conditional input plus any operation-specific fields the plugin
	// or finalize engine need to see again at close).
	RequestSnapshot replica.ConditionalInput

	// ReplicaView is the open replica this slot tracks.
	ReplicaView *replica.Replica

	// PhysicalFD is the storage-plugin-level handle returned by CREATE
	// or OPEN; opaque to this package.
	PhysicalFD int

	BytesWritten     int64
	ExpectedSize     int64
	SourceDescriptor int // peer slot for COPY/REPL; -1 if none

	ChecksumFlag      ChecksumFlag
	ExpectedChecksum  string

	LockFD       int
	ReplicaToken string

	// OperStatus is the last error observed on this slot, nil if none.
	OperStatus error

	PurgeCacheFlag bool
	RemoteZoneHost string // non-empty if this open was forwarded
}

// Config configures a Table.
type Config struct {
	// MaxDescriptors is the table size including reserved slots 0-2.
	// Zero means DefaultMaxDescriptors.
	MaxDescriptors int
}

// Table is the fixed-size descriptor table. Zero value is not usable;
// construct with New.
type Table struct {
	slots []Descriptor
}

// New builds a Table sized per cfg.
func New(cfg Config) *Table {
	size := cfg.MaxDescriptors
	if size <= 0 {
		size = DefaultMaxDescriptors
	}
	return &Table{slots: make([]Descriptor, size)}
}

// Allocate scans for the first free slot at index >= 3, marks it in use
// with the given descriptor, and returns its slot index. Returns
// errs.SysOutOfL1Desc if the table is full. Callers hold their own
// table-level lock around Allocate/Free.
func (t *Table) Allocate(d Descriptor) (int, error) {
	for i := reservedSlots; i < len(t.slots); i++ {
		if !t.slots[i].InUse {
			d.InUse = true
			t.slots[i] = d
			return i, nil
		}
	}
	metrics.L1AllocFailuresTotal.Inc()
	return 0, errs.New(errs.SysOutOfL1Desc, "l1table.Allocate")
}

// Get returns a pointer to the descriptor at slot, or an error if slot
// is out of range or not in use. The returned pointer aliases the
// table's internal storage; callers mutate it in place rather than
// round-tripping through Get/set.
func (t *Table) Get(slot int) (*Descriptor, error) {
	if slot < 0 || slot >= len(t.slots) {
		return nil, errs.New(errs.BadInputDescIndex, "l1table.Get")
	}
	if !t.slots[slot].InUse {
		return nil, errs.New(errs.DescriptorNotInUse, "l1table.Get")
	}
	return &t.slots[slot], nil
}

// Free clears slot, releasing it back to the allocator. Freeing a slot
// that isn't in use is a no-op; Close paths that race with a concurrent
// teardown should not fail merely because the slot is already gone.
func (t *Table) Free(slot int) error {
	if slot < 0 || slot >= len(t.slots) {
		return errs.New(errs.BadInputDescIndex, "l1table.Free")
	}
	t.slots[slot] = Descriptor{}
	return nil
}

// InUseCount returns the number of currently-allocated slots, for
// metrics (pkg/metrics.L1SlotsInUse).
func (t *Table) InUseCount() int {
	n := 0
	for i := range t.slots {
		if t.slots[i].InUse {
			n++
		}
	}
	return n
}

// Capacity returns the table's total slot count, including reserved
// slots 0-2.
func (t *Table) Capacity() int {
	return len(t.slots)
}
