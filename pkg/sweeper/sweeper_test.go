package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRecoverer struct {
	recovered int
	err       error
	calls     int
	lastBound time.Duration
}

func (f *fakeRecoverer) RecoverOrphanLocks(_ context.Context, olderThan time.Duration) (int, error) {
	f.calls++
	f.lastBound = olderThan
	return f.recovered, f.err
}

func TestSweepOnceReturnsRecoveredCount(t *testing.T) {
	cat := &fakeRecoverer{recovered: 3}
	s := New(cat, Config{OrphanBound: 2 * time.Minute})

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, 1, cat.calls)
	require.Equal(t, 2*time.Minute, cat.lastBound)
}

func TestNewFillsDefaults(t *testing.T) {
	s := New(&fakeRecoverer{}, Config{})
	require.Equal(t, 30*time.Second, s.cfg.Interval)
	require.Equal(t, 5*time.Minute, s.cfg.OrphanBound)
}

func TestStartStopRunsAtLeastOneSweep(t *testing.T) {
	cat := &fakeRecoverer{recovered: 1}
	s := New(cat, Config{Interval: 10 * time.Millisecond, OrphanBound: time.Minute})

	s.Start()
	require.Eventually(t, func() bool {
		return cat.calls > 0
	}, time.Second, 5*time.Millisecond)
	s.Stop()
}

func TestSweepPropagatesError(t *testing.T) {
	cat := &fakeRecoverer{err: context.DeadlineExceeded}
	s := New(cat, Config{})

	_, err := s.SweepOnce(context.Background())
	require.Error(t, err)
}
