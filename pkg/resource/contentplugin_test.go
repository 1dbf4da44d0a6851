package resource

import (
	"context"
	"testing"

	"github.com/dataforge/objectcore/pkg/replica"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentPluginCreateCloseStatChksumUnlink(t *testing.T) {
	ctx := context.Background()
	plugin, err := NewContentPlugin("contentResc", t.TempDir())
	require.NoError(t, err)

	r := &replica.Replica{DataID: 4021, ReplicaNumber: 0}
	fd, err := plugin.Create(ctx, r)
	require.NoError(t, err)

	// The physical write path itself is out of scope for this module;
	// here we write directly through the internal writer to exercise
	// Close's commit-and-digest step the way a plugin-internal caller
	// would after the (non-goal) byte-stream write completed.
	w := plugin.writers[fd]
	n, err := w.Write([]byte("testing"))
	require.NoError(t, err)
	require.Equal(t, 7, n)

	require.NoError(t, plugin.Close(ctx, r, fd))
	assert.Contains(t, r.PhysicalPath, "sha256:")
	assert.Equal(t, int64(7), r.Size)

	st, err := plugin.Stat(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, int64(7), st.Size)

	sum, err := plugin.Chksum(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, r.PhysicalPath, sum)

	require.NoError(t, plugin.Unlink(ctx, r))
}

func TestContentPluginResolveRescHierVotesForOwnHierarchy(t *testing.T) {
	ctx := context.Background()
	plugin, err := NewContentPlugin("contentResc", t.TempDir())
	require.NoError(t, err)

	hier, vote, err := plugin.ResolveRescHier(ctx, nil, OpCreate, nil)
	require.NoError(t, err)
	assert.Equal(t, "contentResc", hier)
	assert.Equal(t, 1.0, vote)
}
