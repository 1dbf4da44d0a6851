package accesstable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndContains(t *testing.T) {
	table := New()

	token, err := table.Issue(4021, 0, "pid-1")
	require.NoError(t, err)
	assert.Len(t, token, 64) // 32 bytes hex-encoded

	entry := table.Contains(token)
	require.NotNil(t, entry)
	assert.Equal(t, int64(4021), entry.DataID)
	assert.Equal(t, "pid-1", entry.PID)
}

func TestIssueTokensAreUnique(t *testing.T) {
	table := New()

	a, err := table.Issue(1, 0, "pid-1")
	require.NoError(t, err)
	b, err := table.Issue(2, 0, "pid-1")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestContainsUnknownToken(t *testing.T) {
	table := New()
	assert.Nil(t, table.Contains("does-not-exist"))
}

func TestErasePIDRemovesOnlyOnMatch(t *testing.T) {
	table := New()
	token, err := table.Issue(4021, 0, "pid-1")
	require.NoError(t, err)

	assert.Nil(t, table.ErasePID(token, "pid-2"), "wrong pid must not erase")
	assert.NotNil(t, table.Contains(token))

	erased := table.ErasePID(token, "pid-1")
	require.NotNil(t, erased)
	assert.Equal(t, token, erased.Token)
	assert.Nil(t, table.Contains(token))
}

func TestRestoreReinsertsErasedEntry(t *testing.T) {
	table := New()
	token, err := table.Issue(4021, 0, "pid-1")
	require.NoError(t, err)

	erased := table.ErasePID(token, "pid-1")
	require.NotNil(t, erased)
	require.Nil(t, table.Contains(token))

	table.Restore(erased)
	restored := table.Contains(token)
	require.NotNil(t, restored)
	assert.Equal(t, int64(4021), restored.DataID)
	assert.Equal(t, []string{token}, table.TokensForPID("pid-1"))
}

func TestTokensForPIDEnumeration(t *testing.T) {
	table := New()
	a, err := table.Issue(1, 0, "pid-1")
	require.NoError(t, err)
	b, err := table.Issue(2, 1, "pid-1")
	require.NoError(t, err)
	_, err = table.Issue(3, 0, "pid-2")
	require.NoError(t, err)

	tokens := table.TokensForPID("pid-1")
	assert.ElementsMatch(t, []string{a, b}, tokens)
	assert.Len(t, table.TokensForPID("pid-2"), 1)
	assert.Empty(t, table.TokensForPID("pid-missing"))
}

func TestErasePIDThenRestoreLeavesOtherTokensIntact(t *testing.T) {
	table := New()
	a, err := table.Issue(1, 0, "pid-1")
	require.NoError(t, err)
	b, err := table.Issue(2, 1, "pid-1")
	require.NoError(t, err)

	erased := table.ErasePID(a, "pid-1")
	require.NotNil(t, erased)
	assert.Equal(t, []string{b}, table.TokensForPID("pid-1"))

	table.Restore(erased)
	assert.ElementsMatch(t, []string{a, b}, table.TokensForPID("pid-1"))
}
