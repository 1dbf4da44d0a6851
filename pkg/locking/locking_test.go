package locking

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dataforge/objectcore/pkg/errs"
	"github.com/dataforge/objectcore/pkg/replica"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCommitter struct {
	commits  []json.RawMessage
	failNext bool
}

func (f *fakeCommitter) Commit(_ context.Context, payload json.RawMessage) error {
	if f.failNext {
		f.failNext = false
		return errs.New(errs.SysLibraryError, "fakeCommitter.Commit")
	}
	f.commits = append(f.commits, payload)
	return nil
}

func twoReplicaObject() *replica.Object {
	return &replica.Object{
		DataID:      4021,
		LogicalPath: "/tempZone/home/rods/foo",
		Replicas: []*replica.Replica{
			{ReplicaNumber: 0, ResourceHierarchy: "rescA", StatusVal: replica.Good, Checksum: "c1", Size: 7},
			{ReplicaNumber: 1, ResourceHierarchy: "rescB", StatusVal: replica.Good, Checksum: "c1", Size: 7},
		},
	}
}

func TestAcquireSetsTargetIntermediateAndSiblingsWriteLocked(t *testing.T) {
	committer := &fakeCommitter{}
	table := New(committer)
	obj := twoReplicaObject()

	err := table.Acquire(context.Background(), obj, 0)
	require.NoError(t, err)

	assert.Equal(t, replica.Intermediate, obj.ReplicaByNumber(0).Status())
	assert.Equal(t, replica.WriteLockOnReplica, obj.ReplicaByNumber(1).Status())
	assert.Len(t, committer.commits, 1)
}

func TestAcquireFailsWhenSiblingAlreadyLocked(t *testing.T) {
	committer := &fakeCommitter{}
	table := New(committer)
	obj := twoReplicaObject()
	obj.Replicas[1].StatusVal = replica.Intermediate

	err := table.Acquire(context.Background(), obj, 0)
	require.Error(t, err)
	var e *errs.E
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.HierarchyLocked, e.Code)
	assert.Empty(t, committer.commits, "no commit should happen on a rejected acquire")
}

func TestAcquireFailsOnUnknownTarget(t *testing.T) {
	table := New(&fakeCommitter{})
	obj := twoReplicaObject()

	err := table.Acquire(context.Background(), obj, 99)
	require.Error(t, err)
	var e *errs.E
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.SysReplicaDoesNotExist, e.Code)
}

func TestReleaseSuccessWriteMarksTargetGoodSiblingStale(t *testing.T) {
	committer := &fakeCommitter{}
	table := New(committer)
	obj := twoReplicaObject()
	require.NoError(t, table.Acquire(context.Background(), obj, 0))

	// simulate finalize having written new content to the target
	obj.ReplicaByNumber(0).Size = 5
	obj.ReplicaByNumber(0).Checksum = "c2"

	err := table.ReleaseSuccess(context.Background(), obj, 0, ReleaseOutcome{
		TargetStatus:     replica.Good,
		StaleAllSiblings: true,
	})
	require.NoError(t, err)

	assert.Equal(t, replica.Good, obj.ReplicaByNumber(0).Status())
	assert.Equal(t, replica.Stale, obj.ReplicaByNumber(1).Status())
	assert.Nil(t, table.Lookup(obj.LogicalPath))
}

func TestReleaseSuccessReplicateDestPreservesMatchingSource(t *testing.T) {
	committer := &fakeCommitter{}
	table := New(committer)
	obj := twoReplicaObject()
	require.NoError(t, table.Acquire(context.Background(), obj, 1))

	err := table.ReleaseSuccess(context.Background(), obj, 1, ReleaseOutcome{
		TargetStatus:        replica.Good,
		MirrorSource:        true,
		SourceReplicaNumber: 0,
	})
	require.NoError(t, err)

	assert.Equal(t, replica.Good, obj.ReplicaByNumber(1).Status())
	assert.Equal(t, replica.Good, obj.ReplicaByNumber(0).Status(), "source must not be forced stale when mirrored")
}

func TestReleaseFailureRevertsTargetAndSiblings(t *testing.T) {
	committer := &fakeCommitter{}
	table := New(committer)
	obj := twoReplicaObject()
	require.NoError(t, table.Acquire(context.Background(), obj, 0))

	err := table.ReleaseFailure(context.Background(), obj, 0, nil)
	require.NoError(t, err)

	assert.Equal(t, replica.Stale, obj.ReplicaByNumber(0).Status())
	assert.Equal(t, replica.Good, obj.ReplicaByNumber(1).Status(), "sibling must restore its remembered original status")
}

func TestReleaseFailureRecordsPartialVaultSize(t *testing.T) {
	committer := &fakeCommitter{}
	table := New(committer)
	obj := twoReplicaObject()
	require.NoError(t, table.Acquire(context.Background(), obj, 0))

	err := table.ReleaseFailure(context.Background(), obj, 0, &PartialWrite{VaultSize: 3})
	require.NoError(t, err)

	assert.Equal(t, int64(3), obj.ReplicaByNumber(0).Size)
}

func TestReleaseCommitFailureLeavesTargetIntermediate(t *testing.T) {
	committer := &fakeCommitter{}
	table := New(committer)
	obj := twoReplicaObject()
	require.NoError(t, table.Acquire(context.Background(), obj, 0))

	committer.failNext = true
	err := table.ReleaseSuccess(context.Background(), obj, 0, ReleaseOutcome{TargetStatus: replica.Good, StaleAllSiblings: true})
	require.Error(t, err)

	assert.Equal(t, replica.Intermediate, obj.ReplicaByNumber(0).Status(), "target must remain INTERMEDIATE on commit failure, subject to sweeper recovery")
	assert.NotNil(t, table.Lookup(obj.LogicalPath), "state table entry must survive a failed commit for a later retry")
}

func TestReleaseUnknownLogicalPathFails(t *testing.T) {
	table := New(&fakeCommitter{})
	obj := twoReplicaObject()

	err := table.ReleaseSuccess(context.Background(), obj, 0, ReleaseOutcome{})
	require.Error(t, err)
	var e *errs.E
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.SysInvalidInputParam, e.Code)
}
