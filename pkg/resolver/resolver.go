// Package resolver implements the resource-hierarchy resolver: given an
// operation, a logical path, and client hints, it picks the winning
// storage hierarchy via a voting protocol among registered resource
// plugins.
package resolver

import (
	"context"
	"strings"
	"sync"

	"github.com/dataforge/objectcore/pkg/errs"
	"github.com/dataforge/objectcore/pkg/log"
	"github.com/dataforge/objectcore/pkg/metrics"
	"github.com/dataforge/objectcore/pkg/replica"
	"github.com/dataforge/objectcore/pkg/resource"
)

// directChildHints lists the conditional-input keywords that name a
// resource; if any of their values contains a hierarchy separator, the
// caller is addressing a non-root (child) resource directly, which is
// rejected with DIRECT_CHILD_ACCESS.
var directChildHints = []string{
	replica.KwRescHierStr,
	replica.KwRescName,
	replica.KwDestRescName,
	replica.KwDefRescName,
	replica.KwBackupRescName,
}

// tieBreakHints is the preference order used to break a tie among
// equally-voted hierarchies.
var tieBreakHints = []string{
	replica.KwDestRescName,
	replica.KwDefRescName,
	replica.KwBackupRescName,
	replica.KwRescName,
}

// ObjectLookup resolves a logical path to its current replica set. It is
// satisfied by pkg/catalog's query side; declared here so resolver does
// not depend on raft/bbolt.
type ObjectLookup interface {
	// Lookup returns errs.SysReplicaDoesNotExist if no object exists at
	// logicalPath.
	Lookup(ctx context.Context, logicalPath string) (*replica.Object, error)
}

// Result is what Resolve returns on success.
type Result struct {
	Hierarchy string
	Vote      float64
	Replicas  []*replica.Replica

	// RemoteZoneHost is non-empty when the object lives in another zone;
	// Hierarchy/Vote/Replicas are meaningless in that case and the
	// caller must forward the open to the named peer.
	RemoteZoneHost string

	// Operation is the operation actually resolved against, after any
	// CREATE->WRITE rewriting.
	Operation resource.Operation
}

// Resolver implements the voting protocol.
type Resolver struct {
	mu                 sync.RWMutex
	plugins            map[string]resource.Plugin
	specialCollections map[string]string
	lookup             ObjectLookup
	localZone          string
}

// New builds a Resolver. lookup supplies the existing replica set for a
// logical path (nil/SysReplicaDoesNotExist for an object that does not
// yet exist, which is only valid for CREATE). localZone names this
// agent's zone, used to detect remote-zone objects.
func New(lookup ObjectLookup, localZone string) *Resolver {
	return &Resolver{
		plugins:            make(map[string]resource.Plugin),
		specialCollections: make(map[string]string),
		lookup:             lookup,
		localZone:          localZone,
	}
}

// RegisterPlugin adds p to the set of root resources the resolver votes
// across.
func (r *Resolver) RegisterPlugin(p resource.Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins[p.Name()] = p
}

// RegisterSpecialCollection marks logicalPath as a special collection
// (mount or link) whose hierarchy is fixed rather than voted.
func (r *Resolver) RegisterSpecialCollection(logicalPath, hierarchy string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specialCollections[logicalPath] = hierarchy
}

// Resolve runs the full resolution pipeline: direct-child-access
// validation, special-collection short-circuit, object lookup,
// remote-zone detection, operation rewriting, and voting.
func (r *Resolver) Resolve(ctx context.Context, op resource.Operation, logicalPath string, hints replica.ConditionalInput) (Result, error) {
	resolverLog := log.WithComponent("resolver")
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ResolverVoteDuration)

	result, err := r.resolve(ctx, op, logicalPath, hints)

	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.ResolverOutcomesTotal.WithLabelValues(op.String(), outcome).Inc()
	resolverLog.Debug().
		Str("logical_path", logicalPath).
		Str("operation", op.String()).
		Str("outcome", outcome).
		Msg("resolve complete")
	return result, err
}

func (r *Resolver) resolve(ctx context.Context, op resource.Operation, logicalPath string, hints replica.ConditionalInput) (Result, error) {
	for _, kw := range directChildHints {
		if v := hints.Get(kw); v != "" && strings.Contains(v, ";") {
			return Result{}, errs.New(errs.DirectChildAccess, "resolver.Resolve")
		}
	}

	r.mu.RLock()
	if hier, ok := r.specialCollections[logicalPath]; ok {
		r.mu.RUnlock()
		return Result{Hierarchy: hier, Vote: 1.0, Operation: op}, nil
	}
	r.mu.RUnlock()

	obj, lookupErr := r.lookup.Lookup(ctx, logicalPath)
	if lookupErr != nil {
		if op != resource.OpCreate {
			return Result{}, lookupErr
		}
		obj = nil
	}

	if obj != nil && obj.OwnerZone != "" && obj.OwnerZone != r.localZone {
		return Result{RemoteZoneHost: obj.OwnerZone, Operation: op}, nil
	}

	effectiveOp := op
	if effectiveOp == resource.OpCreate && hints.Has(replica.KwReplNum) {
		effectiveOp = resource.OpWrite
	}

	hier, vote, err := r.vote(ctx, obj, effectiveOp, hints)
	if err != nil {
		return Result{}, err
	}

	if effectiveOp == resource.OpCreate && obj != nil && obj.ReplicaByHierarchy(hier) != nil {
		effectiveOp = resource.OpWrite
		if !hints.Has(replica.KwForceFlag) {
			return Result{}, errs.New(errs.OverwriteWithoutForceFlag, "resolver.Resolve")
		}
	}

	var replicas []*replica.Replica
	if obj != nil {
		replicas = obj.Replicas
	}
	return Result{Hierarchy: hier, Vote: vote, Replicas: replicas, Operation: effectiveOp}, nil
}

func (r *Resolver) vote(ctx context.Context, obj *replica.Object, op resource.Operation, hints replica.ConditionalInput) (string, float64, error) {
	r.mu.RLock()
	plugins := make([]resource.Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		plugins = append(plugins, p)
	}
	r.mu.RUnlock()

	if len(plugins) == 0 {
		return "", 0, errs.New(errs.HierarchyError, "resolver.vote")
	}

	resolverLog := log.WithComponent("resolver")
	type candidate struct {
		hierarchy string
		vote      float64
		rootName  string
	}
	var best *candidate

	for _, p := range plugins {
		hier, v, err := p.ResolveRescHier(ctx, obj, op, hints)
		if err != nil {
			resolverLog.Debug().Str("plugin", p.Name()).Err(err).Msg("plugin vote failed")
			continue
		}
		if v <= 0 {
			continue
		}
		c := &candidate{hierarchy: hier, vote: v, rootName: p.Name()}
		if best == nil || v > best.vote || (v == best.vote && preferred(c.rootName, hints, best.rootName)) {
			best = c
		}
	}

	if best == nil {
		return "", 0, errs.New(errs.HierarchyError, "resolver.vote")
	}
	return best.hierarchy, best.vote, nil
}

// preferred reports whether candidate root name `a` should win a tie
// against the current best `b`, based on which one (if either) matches
// a hint keyword, in tieBreakHints preference order.
func preferred(a string, hints replica.ConditionalInput, b string) bool {
	for _, kw := range tieBreakHints {
		want := hints.Get(kw)
		if want == "" {
			continue
		}
		aMatch := a == want
		bMatch := b == want
		if aMatch && !bMatch {
			return true
		}
		if bMatch {
			return false
		}
	}
	return false
}
