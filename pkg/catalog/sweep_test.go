package catalog

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dataforge/objectcore/pkg/replica"
)

func TestRecoverOrphanLocksTransitionsStaleRowsOnly(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	require.NoError(t, c.BindPath(ctx, "/tempZone/home/alice/old.dat", 1))
	require.NoError(t, c.Commit(ctx, sampleFinalizePayload(t, 1, 1, 0, replica.Intermediate, 5, "")))

	require.NoError(t, c.BindPath(ctx, "/tempZone/home/alice/fresh.dat", 2))
	require.NoError(t, c.Commit(ctx, sampleFinalizePayload(t, 2, 2, 0, replica.Intermediate, 5, "")))

	// Age row 1 by rewriting it directly in the store with an old
	// modify_ts, simulating a crash long enough ago to be orphaned;
	// row 2 gets a current modify_ts so it reads as still in-flight.
	rows, err := c.store.RowsByDataID("1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	aged := rows[0]
	aged.ModifyTS = "1"
	require.NoError(t, c.store.PutRow(aged.RescID, aged.DataID, aged))

	freshRows, err := c.store.RowsByDataID("2")
	require.NoError(t, err)
	require.Len(t, freshRows, 1)
	freshRow := freshRows[0]
	freshRow.ModifyTS = strconv.FormatInt(time.Now().Unix(), 10)
	require.NoError(t, c.store.PutRow(freshRow.RescID, freshRow.DataID, freshRow))

	recovered, err := c.RecoverOrphanLocks(ctx, time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, recovered)

	obj, err := c.Lookup(ctx, "/tempZone/home/alice/old.dat")
	require.NoError(t, err)
	require.Equal(t, replica.Stale, obj.Replicas[0].Status())

	fresh, err := c.Lookup(ctx, "/tempZone/home/alice/fresh.dat")
	require.NoError(t, err)
	require.Equal(t, replica.Intermediate, fresh.Replicas[0].Status())
}

func TestRecoverOrphanLocksNoneToRecover(t *testing.T) {
	c := newTestCatalog(t)
	n, err := c.RecoverOrphanLocks(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
