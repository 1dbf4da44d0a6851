package l1table

import (
	"testing"

	"github.com/dataforge/objectcore/pkg/errs"
	"github.com/dataforge/objectcore/pkg/replica"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateSkipsReservedSlots(t *testing.T) {
	table := New(Config{MaxDescriptors: 10})

	slot, err := table.Allocate(Descriptor{OperationKind: replica.OpenWrite})
	require.NoError(t, err)
	assert.Equal(t, 3, slot)
}

func TestAllocateReturnsFirstFreeSlot(t *testing.T) {
	table := New(Config{MaxDescriptors: 10})

	first, err := table.Allocate(Descriptor{})
	require.NoError(t, err)
	second, err := table.Allocate(Descriptor{})
	require.NoError(t, err)
	assert.Equal(t, first+1, second)

	require.NoError(t, table.Free(first))
	third, err := table.Allocate(Descriptor{})
	require.NoError(t, err)
	assert.Equal(t, first, third, "freed slot should be reused before scanning past it")
}

func TestAllocateFullTableFails(t *testing.T) {
	table := New(Config{MaxDescriptors: 4}) // slots 0-2 reserved, only slot 3 usable

	_, err := table.Allocate(Descriptor{})
	require.NoError(t, err)

	_, err = table.Allocate(Descriptor{})
	require.Error(t, err)
	var e *errs.E
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.SysOutOfL1Desc, e.Code)

	assert.Equal(t, 1, table.InUseCount(), "a failed allocate must not corrupt table state")
}

func TestGetOutOfRange(t *testing.T) {
	table := New(Config{MaxDescriptors: 10})

	_, err := table.Get(-1)
	require.Error(t, err)
	var e *errs.E
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.BadInputDescIndex, e.Code)

	_, err = table.Get(100)
	require.Error(t, err)
}

func TestGetNotInUse(t *testing.T) {
	table := New(Config{MaxDescriptors: 10})

	_, err := table.Get(3)
	require.Error(t, err)
	var e *errs.E
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errs.DescriptorNotInUse, e.Code)
}

func TestFreeThenGetFails(t *testing.T) {
	table := New(Config{MaxDescriptors: 10})

	slot, err := table.Allocate(Descriptor{})
	require.NoError(t, err)
	require.NoError(t, table.Free(slot))

	_, err = table.Get(slot)
	require.Error(t, err)
}

func TestFreeAlreadyFreeIsNoop(t *testing.T) {
	table := New(Config{MaxDescriptors: 10})
	require.NoError(t, table.Free(5))
	assert.Equal(t, 0, table.InUseCount())
}

func TestDefaultCapacity(t *testing.T) {
	table := New(Config{})
	assert.Equal(t, DefaultMaxDescriptors, table.Capacity())
}

func TestInUseCount(t *testing.T) {
	table := New(Config{MaxDescriptors: 10})
	assert.Equal(t, 0, table.InUseCount())

	slot, err := table.Allocate(Descriptor{})
	require.NoError(t, err)
	assert.Equal(t, 1, table.InUseCount())

	require.NoError(t, table.Free(slot))
	assert.Equal(t, 0, table.InUseCount())
}
