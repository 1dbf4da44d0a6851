package resolver

import (
	"context"
	"testing"

	"github.com/dataforge/objectcore/pkg/errs"
	"github.com/dataforge/objectcore/pkg/replica"
	"github.com/dataforge/objectcore/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlugin struct {
	name string
	vote float64
	hier string
	err  error
}

func (f *fakePlugin) Name() string { return f.name }
func (f *fakePlugin) ResolveRescHier(_ context.Context, obj *replica.Object, op resource.Operation, _ replica.ConditionalInput) (string, float64, error) {
	if f.err != nil {
		return "", 0, f.err
	}
	hier := f.hier
	if hier == "" {
		hier = f.name
	}
	return hier, f.vote, nil
}
func (f *fakePlugin) Create(context.Context, *replica.Replica) (int, error)      { return 1, nil }
func (f *fakePlugin) Open(context.Context, *replica.Replica) (int, error)        { return 1, nil }
func (f *fakePlugin) Close(context.Context, *replica.Replica, int) error         { return nil }
func (f *fakePlugin) Stat(context.Context, *replica.Replica) (resource.Stat, error) {
	return resource.Stat{}, nil
}
func (f *fakePlugin) Chksum(context.Context, *replica.Replica) (string, error) { return "", nil }
func (f *fakePlugin) Unlink(context.Context, *replica.Replica) error           { return nil }

type fakeLookup struct {
	obj *replica.Object
	err error
}

func (f *fakeLookup) Lookup(context.Context, string) (*replica.Object, error) {
	return f.obj, f.err
}

func TestResolveCreatePicksHighestVote(t *testing.T) {
	lookup := &fakeLookup{err: errs.New(errs.SysReplicaDoesNotExist, "test")}
	r := New(lookup, "tempZone")
	r.RegisterPlugin(&fakePlugin{name: "rescA", vote: 0.5})
	r.RegisterPlugin(&fakePlugin{name: "rescB", vote: 0.9})

	result, err := r.Resolve(context.Background(), resource.OpCreate, "/tempZone/home/rods/foo", nil)
	require.NoError(t, err)
	assert.Equal(t, "rescB", result.Hierarchy)
	assert.Equal(t, 0.9, result.Vote)
}

func TestResolveNoVotesFails(t *testing.T) {
	lookup := &fakeLookup{err: errs.New(errs.SysReplicaDoesNotExist, "test")}
	r := New(lookup, "tempZone")
	r.RegisterPlugin(&fakePlugin{name: "rescA", vote: 0})

	_, err := r.Resolve(context.Background(), resource.OpCreate, "/tempZone/home/rods/foo", nil)
	require.Error(t, err)
	var e *errs.E
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.HierarchyError, e.Code)
}

func TestResolveOpenMissingObjectFails(t *testing.T) {
	lookup := &fakeLookup{err: errs.New(errs.SysReplicaDoesNotExist, "test")}
	r := New(lookup, "tempZone")
	r.RegisterPlugin(&fakePlugin{name: "rescA", vote: 1.0})

	_, err := r.Resolve(context.Background(), resource.OpOpen, "/tempZone/home/rods/foo", nil)
	require.Error(t, err)
	var e *errs.E
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.SysReplicaDoesNotExist, e.Code)
}

func TestResolveCreateOnExistingRootRequiresForceFlag(t *testing.T) {
	obj := &replica.Object{
		OwnerZone: "tempZone",
		Replicas:  []*replica.Replica{{ReplicaNumber: 0, ResourceHierarchy: "rescA"}},
	}
	lookup := &fakeLookup{obj: obj}
	r := New(lookup, "tempZone")
	r.RegisterPlugin(&fakePlugin{name: "rescA", vote: 1.0})

	_, err := r.Resolve(context.Background(), resource.OpCreate, "/tempZone/home/rods/foo", nil)
	require.Error(t, err)
	var e *errs.E
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.OverwriteWithoutForceFlag, e.Code)

	hints := replica.ConditionalInput{replica.KwForceFlag: ""}
	result, err := r.Resolve(context.Background(), resource.OpCreate, "/tempZone/home/rods/foo", hints)
	require.NoError(t, err)
	assert.Equal(t, resource.OpWrite, result.Operation)
}

func TestResolveCreateWithReplNumRewritesToWrite(t *testing.T) {
	obj := &replica.Object{
		OwnerZone: "tempZone",
		Replicas:  []*replica.Replica{{ReplicaNumber: 0, ResourceHierarchy: "rescA"}},
	}
	lookup := &fakeLookup{obj: obj}
	r := New(lookup, "tempZone")
	r.RegisterPlugin(&fakePlugin{name: "rescA", vote: 1.0})

	hints := replica.ConditionalInput{replica.KwReplNum: "0"}
	result, err := r.Resolve(context.Background(), resource.OpCreate, "/tempZone/home/rods/foo", hints)
	require.NoError(t, err)
	assert.Equal(t, resource.OpWrite, result.Operation)
}

func TestResolveRemoteZoneFlags(t *testing.T) {
	obj := &replica.Object{OwnerZone: "otherZone"}
	lookup := &fakeLookup{obj: obj}
	r := New(lookup, "tempZone")
	r.RegisterPlugin(&fakePlugin{name: "rescA", vote: 1.0})

	result, err := r.Resolve(context.Background(), resource.OpOpen, "/otherZone/home/rods/foo", nil)
	require.NoError(t, err)
	assert.Equal(t, "otherZone", result.RemoteZoneHost)
}

func TestResolveSpecialCollectionShortCircuits(t *testing.T) {
	lookup := &fakeLookup{err: errs.New(errs.SysReplicaDoesNotExist, "test")}
	r := New(lookup, "tempZone")
	r.RegisterSpecialCollection("/tempZone/home/rods/mounted", "mountResc")

	result, err := r.Resolve(context.Background(), resource.OpOpen, "/tempZone/home/rods/mounted", nil)
	require.NoError(t, err)
	assert.Equal(t, "mountResc", result.Hierarchy)
	assert.Equal(t, 1.0, result.Vote)
}

func TestResolveDirectChildAccessRejected(t *testing.T) {
	lookup := &fakeLookup{err: errs.New(errs.SysReplicaDoesNotExist, "test")}
	r := New(lookup, "tempZone")
	r.RegisterPlugin(&fakePlugin{name: "rescA", vote: 1.0})

	hints := replica.ConditionalInput{replica.KwRescName: "root;mid;leaf"}
	_, err := r.Resolve(context.Background(), resource.OpCreate, "/tempZone/home/rods/foo", hints)
	require.Error(t, err)
	var e *errs.E
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.DirectChildAccess, e.Code)
}

func TestResolveTieBreaksOnHint(t *testing.T) {
	lookup := &fakeLookup{err: errs.New(errs.SysReplicaDoesNotExist, "test")}
	r := New(lookup, "tempZone")
	r.RegisterPlugin(&fakePlugin{name: "rescA", vote: 0.8})
	r.RegisterPlugin(&fakePlugin{name: "rescB", vote: 0.8})

	hints := replica.ConditionalInput{replica.KwDestRescName: "rescB"}
	result, err := r.Resolve(context.Background(), resource.OpCreate, "/tempZone/home/rods/foo", hints)
	require.NoError(t, err)
	assert.Equal(t, "rescB", result.Hierarchy)
}
