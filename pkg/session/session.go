// Package session implements the per-agent facade: one struct
// aggregating the L1 descriptor table, replica access table, logical
// locking state table, resource-hierarchy resolver, and finalize
// engine, constructed once per agent instead of as package-level
// singletons. Grounded on pkg/manager/manager.go's Manager, which
// aggregates every subsystem a cluster node needs behind one struct
// built once in NewManager.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dataforge/objectcore/pkg/accesstable"
	"github.com/dataforge/objectcore/pkg/catalog"
	"github.com/dataforge/objectcore/pkg/errs"
	"github.com/dataforge/objectcore/pkg/finalize"
	"github.com/dataforge/objectcore/pkg/l1table"
	"github.com/dataforge/objectcore/pkg/locking"
	"github.com/dataforge/objectcore/pkg/log"
	"github.com/dataforge/objectcore/pkg/metrics"
	"github.com/dataforge/objectcore/pkg/replica"
	"github.com/dataforge/objectcore/pkg/resolver"
	"github.com/dataforge/objectcore/pkg/resource"
	"github.com/dataforge/objectcore/pkg/rules"
)

// Config controls how a Session's tables are sized and identified.
type Config struct {
	LocalZone      string
	MaxDescriptors int
}

// CatalogClient is everything a Session needs from the catalog: the
// commit point locking.Table applies state-table diffs through, the
// lookup resolver.Resolver reads hierarchies from, and the path-binding
// call CREATE uses to register a new object's logical path. Depending
// on this instead of *catalog.Catalog keeps Session testable without a
// raft-backed harness, mirroring locking.Committer and
// resolver.ObjectLookup.
type CatalogClient interface {
	locking.Committer
	resolver.ObjectLookup
	BindPath(ctx context.Context, logicalPath string, dataID int64) error
}

var _ CatalogClient = (*catalog.Catalog)(nil)

// Session is the per-agent facade every client-facing operation goes
// through. It owns no physical resources itself; it wires together the
// tables and engines that do.
type Session struct {
	cfg     Config
	catalog CatalogClient
	hooks   rules.Hooks

	l1       *l1table.Table
	access   *accesstable.Table
	locking  *locking.Table
	resolve  *resolver.Resolver
	finalize *finalize.Engine

	mu      sync.Mutex
	plugins map[string]resource.Plugin
	objects map[int]*replica.Object // slot -> live object, for Close

	idMu   sync.Mutex
	nextID int64
}

// New builds a Session over cat, the shared catalog this agent's
// resolver reads from and locking/finalize commit through.
func New(cat CatalogClient, hooks rules.Hooks, cfg Config) *Session {
	l1 := l1table.New(l1table.Config{MaxDescriptors: cfg.MaxDescriptors})
	access := accesstable.New()
	lockTable := locking.New(cat)

	return &Session{
		cfg:      cfg,
		catalog:  cat,
		hooks:    hooks,
		l1:       l1,
		access:   access,
		locking:  lockTable,
		resolve:  resolver.New(cat, cfg.LocalZone),
		finalize: finalize.New(l1, lockTable, access, hooks),
		plugins:  make(map[string]resource.Plugin),
		objects:  make(map[int]*replica.Object),
	}
}

// RegisterPlugin adds p to both the resolver's voting pool and the
// finalize engine's close-time dispatch table.
func (s *Session) RegisterPlugin(p resource.Plugin) {
	s.mu.Lock()
	s.plugins[p.Name()] = p
	s.mu.Unlock()

	s.resolve.RegisterPlugin(p)
	s.finalize.RegisterPlugin(p)
}

func (s *Session) pluginForHierarchy(hier string) (resource.Plugin, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plugins[rootOf(hier)]
	return p, ok
}

func rootOf(hier string) string {
	if i := strings.IndexByte(hier, ';'); i >= 0 {
		return hier[:i]
	}
	return hier
}

// nextReplicaNumber returns the lowest replica number not already in use
// on obj, for minting a new destination replica on a REPL_DEST/COPY_DEST/
// PHYMV_DEST open.
func nextReplicaNumber(obj *replica.Object) int {
	n := 0
	for obj.ReplicaByNumber(n) != nil {
		n++
	}
	return n
}

func (s *Session) allocateDataID() int64 {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	s.nextID++
	return s.nextID
}

// OpenRequest is a client-facing open/create/put request.
type OpenRequest struct {
	Operation   resource.Operation
	Kind        replica.OperationKind
	LogicalPath string
	Hints       replica.ConditionalInput
	PID         string

	// CollectionID/DataName/OwnerUser/OwnerZone seed a new object on
	// CREATE; ignored otherwise.
	CollectionID int64
	DataName     string
	OwnerUser    string
	OwnerZone    string

	// SourceSlot is the already-open source descriptor for a
	// REPL_DEST/COPY_DEST/PHYMV_DEST open; -1 if none.
	SourceSlot int
}

// OpenResult is what Open returns.
type OpenResult struct {
	Slot           int
	RemoteZoneHost string
}

// Open resolves req's target hierarchy, builds or locates the target
// replica, acquires the logical lock for a writer kind, and allocates
// an L1 slot for the open. It satisfies the single entry point every
// higher-level operation (open, create, put, replicate, copy, phymv)
// goes through.
func (s *Session) Open(ctx context.Context, req OpenRequest) (OpenResult, error) {
	openLog := log.WithComponent("session")

	if req.Kind == replica.Create {
		preObj := &replica.Object{
			CollectionID: req.CollectionID,
			LogicalPath:  req.LogicalPath,
			DataName:     req.DataName,
			OwnerUser:    req.OwnerUser,
			OwnerZone:    req.OwnerZone,
		}
		if err := s.hooks.AcSetRescSchemeForCreate(ctx, preObj, req.Hints); err != nil {
			return OpenResult{}, errs.Wrap(errs.PermissionDeniedByHook, "session.Open", err)
		}
	}

	result, err := s.resolve.Resolve(ctx, req.Operation, req.LogicalPath, req.Hints)
	if err != nil {
		return OpenResult{}, err
	}
	if result.RemoteZoneHost != "" {
		return OpenResult{RemoteZoneHost: result.RemoteZoneHost}, nil
	}

	obj, err := s.objectForOpen(ctx, req, result)
	if err != nil {
		return OpenResult{}, err
	}

	target := obj.ReplicaByHierarchy(result.Hierarchy)
	if target == nil {
		return OpenResult{}, errs.New(errs.SysReplicaDoesNotExist, "session.Open")
	}

	plugin, ok := s.pluginForHierarchy(result.Hierarchy)
	if !ok {
		return OpenResult{}, errs.New(errs.SysUnsupportedOperation, "session.Open")
	}

	if err := s.hooks.AcPreprocForDataObjOpen(ctx, obj, target, req.Hints); err != nil {
		return OpenResult{}, errs.Wrap(errs.PermissionDeniedByHook, "session.Open", err)
	}

	if req.Kind.IsWriter() {
		if err := s.locking.Acquire(ctx, obj, target.ReplicaNumber); err != nil {
			return OpenResult{}, err
		}
	}

	var fd int
	if req.Kind == replica.Create {
		fd, err = plugin.Create(ctx, target)
	} else {
		fd, err = plugin.Open(ctx, target)
	}
	if err != nil {
		if req.Kind.IsWriter() {
			_ = s.locking.ReleaseFailure(ctx, obj, target.ReplicaNumber, nil)
		}
		return OpenResult{}, err
	}

	checksumFlag := checksumFlagFor(req.Hints)
	desc := l1table.Descriptor{
		OperationKind:    req.Kind,
		OpenType:         req.Operation.String(),
		RequestSnapshot:  req.Hints,
		ReplicaView:      target,
		PhysicalFD:       fd,
		SourceDescriptor: -1,
		ChecksumFlag:     checksumFlag,
		// the replica's checksum as it stood before this open is what
		// VERIFY_CHKSUM compares the post-write checksum against.
		ExpectedChecksum: target.Checksum,
	}
	if req.SourceSlot >= 0 {
		desc.SourceDescriptor = req.SourceSlot
	}

	if req.Kind.IsWriter() {
		token, tokErr := s.access.Issue(obj.DataID, target.ReplicaNumber, req.PID)
		if tokErr != nil {
			_ = s.locking.ReleaseFailure(ctx, obj, target.ReplicaNumber, nil)
			return OpenResult{}, errs.Wrap(errs.SysInternalErr, "session.Open", tokErr)
		}
		desc.ReplicaToken = token
	}

	s.mu.Lock()
	slot, err := s.l1.Allocate(desc)
	if err == nil {
		s.objects[slot] = obj
	}
	s.mu.Unlock()
	if err != nil {
		if desc.ReplicaToken != "" {
			s.access.ErasePID(desc.ReplicaToken, req.PID)
		}
		if req.Kind.IsWriter() {
			_ = s.locking.ReleaseFailure(ctx, obj, target.ReplicaNumber, nil)
		}
		return OpenResult{}, err
	}
	metrics.L1SlotsInUse.Set(float64(s.l1.InUseCount()))

	if req.Kind == replica.Create {
		if err := s.catalog.BindPath(ctx, req.LogicalPath, obj.DataID); err != nil {
			openLog.Warn().Err(err).Str("logical_path", req.LogicalPath).Msg("bind_path commit failed")
		}
	}

	openLog.Debug().Int("slot", slot).Str("logical_path", req.LogicalPath).Str("hierarchy", result.Hierarchy).Msg("open complete")
	return OpenResult{Slot: slot}, nil
}

// objectForOpen returns the object req.Kind operates against: a freshly
// minted single-replica object for CREATE, or the catalog's full
// object for an existing path. The resolver's own Result.Replicas is
// not reused here since it carries only the replica slice, not the
// object-level fields (collection, owner) Close's finalize payload
// needs; Lookup is the single source for those.
func (s *Session) objectForOpen(ctx context.Context, req OpenRequest, result resolver.Result) (*replica.Object, error) {
	if req.Kind != replica.Create {
		obj, err := s.catalog.Lookup(ctx, req.LogicalPath)
		if err != nil {
			return nil, err
		}
		if req.Kind.IsDestination() && obj.ReplicaByHierarchy(result.Hierarchy) == nil {
			obj.Replicas = append(obj.Replicas, &replica.Replica{
				DataID:            obj.DataID,
				ReplicaNumber:     nextReplicaNumber(obj),
				ResourceHierarchy: result.Hierarchy,
				TypeName:          "generic",
				Version:           "1",
				Mode:              "0644",
				StatusVal:         replica.Intermediate,
			})
		}
		return obj, nil
	}

	dataID := s.allocateDataID()
	target := &replica.Replica{
		DataID:            dataID,
		ReplicaNumber:     0,
		ResourceHierarchy: result.Hierarchy,
		TypeName:          "generic",
		Version:           "1",
		Mode:              "0644",
		StatusVal:         replica.Intermediate,
	}
	return &replica.Object{
		DataID:       dataID,
		CollectionID: req.CollectionID,
		LogicalPath:  req.LogicalPath,
		DataName:     req.DataName,
		OwnerUser:    req.OwnerUser,
		OwnerZone:    req.OwnerZone,
		Replicas:     []*replica.Replica{target},
	}, nil
}

func checksumFlagFor(hints replica.ConditionalInput) l1table.ChecksumFlag {
	switch {
	case hints.Has(replica.KwVerifyChksum):
		return l1table.ChecksumVerify
	case hints.Has(replica.KwRegChksum):
		return l1table.ChecksumRegister
	default:
		return l1table.ChecksumNone
	}
}

// ReplicaAt returns the replica an open slot tracks, so a caller that
// writes to the physical resource out of band (this module's plugins
// expose no byte-stream write API) can address it directly.
func (s *Session) ReplicaAt(slot int) (*replica.Replica, error) {
	desc, err := s.l1.Get(slot)
	if err != nil {
		return nil, err
	}
	return desc.ReplicaView, nil
}

// RecordWrite adds n to the byte count Close's size reconciliation
// compares against the plugin's own stat. The returned descriptor
// pointer aliases the L1 table's internal storage, so this mutates it
// in place rather than round-tripping through a setter.
func (s *Session) RecordWrite(slot int, n int64) error {
	desc, err := s.l1.Get(slot)
	if err != nil {
		return err
	}
	desc.BytesWritten += n
	return nil
}

// Close runs the finalize algorithm for slot and releases the session's
// bookkeeping for it.
func (s *Session) Close(ctx context.Context, slot int, in finalize.CloseInput) (finalize.Result, error) {
	s.mu.Lock()
	obj, ok := s.objects[slot]
	s.mu.Unlock()
	if !ok {
		return finalize.Result{}, errs.New(errs.DescriptorNotInUse, "session.Close")
	}

	result, err := s.finalize.Close(ctx, slot, obj, in)

	s.mu.Lock()
	delete(s.objects, slot)
	s.mu.Unlock()
	metrics.L1SlotsInUse.Set(float64(s.l1.InUseCount()))

	return result, err
}

// Shutdown drops every open slot's bookkeeping without attempting to
// close it cleanly; an orphaned write-open is left for the sweeper to
// recover. Used on agent teardown, mirroring Manager.Shutdown's
// best-effort cleanup.
func (s *Session) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for slot := range s.objects {
		delete(s.objects, slot)
	}
}

// String identifies the session for logging, e.g. when an agent runs
// more than one (tests only; production runs one per process).
func (s *Session) String() string {
	return fmt.Sprintf("session(zone=%s)", s.cfg.LocalZone)
}
