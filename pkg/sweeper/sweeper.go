// Package sweeper implements the periodic orphan-lock recovery loop: a
// ticker that finds catalog rows left INTERMEDIATE by a crashed or
// abandoned write-open and transitions them to STALE so the replica
// becomes usable again instead of staying locked forever.
package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dataforge/objectcore/pkg/log"
	"github.com/dataforge/objectcore/pkg/metrics"
)

// Recoverer is the catalog-side operation the sweeper drives. Declared
// here rather than imported from pkg/catalog so sweeper depends only on
// the shape it needs.
type Recoverer interface {
	RecoverOrphanLocks(ctx context.Context, olderThan time.Duration) (int, error)
}

// Config controls the sweeper's cadence and orphan bound.
type Config struct {
	// Interval between sweeps. Defaults to 30s if zero.
	Interval time.Duration

	// OrphanBound is how long a row may sit INTERMEDIATE before the
	// sweeper treats it as orphaned. Defaults to 5 minutes if zero.
	OrphanBound time.Duration
}

// Sweeper runs Config.Interval-spaced recovery passes against a
// Recoverer until stopped.
type Sweeper struct {
	catalog Recoverer
	cfg     Config
	logger  zerolog.Logger

	mu     sync.Mutex
	stopCh chan struct{}
}

// New builds a Sweeper over catalog, filling in Config defaults.
func New(catalog Recoverer, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.OrphanBound <= 0 {
		cfg.OrphanBound = 5 * time.Minute
	}
	return &Sweeper{
		catalog: catalog,
		cfg:     cfg,
		logger:  log.WithComponent("sweeper"),
		stopCh:  make(chan struct{}),
	}
}

// Start begins the sweep loop in a background goroutine.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop ends the sweep loop. Safe to call once; a second call panics on
// the closed channel, matching reconciler.Stop's single-shot contract.
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.cfg.Interval).Dur("orphan_bound", s.cfg.OrphanBound).Msg("sweeper started")

	for {
		select {
		case <-ticker.C:
			if err := s.sweep(); err != nil {
				s.logger.Error().Err(err).Msg("sweep cycle failed")
			}
		case <-s.stopCh:
			s.logger.Info().Msg("sweeper stopped")
			return
		}
	}
}

func (s *Sweeper) sweep() error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SweepDuration)

	s.mu.Lock()
	defer s.mu.Unlock()

	recovered, err := s.catalog.RecoverOrphanLocks(context.Background(), s.cfg.OrphanBound)
	if err != nil {
		return err
	}
	if recovered > 0 {
		metrics.SweeperOrphansRecoveredTotal.Add(float64(recovered))
		s.logger.Warn().Int("recovered", recovered).Msg("recovered orphaned INTERMEDIATE locks")
	}
	return nil
}

// SweepOnce runs a single recovery pass synchronously, for callers
// (tests, an admin CLI command) that want an immediate sweep rather
// than waiting for the ticker.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.catalog.RecoverOrphanLocks(ctx, s.cfg.OrphanBound)
}
