// Package reconciler re-drives ledger notarization for incidents that a
// process restart left stranded in the pending state. Freshly created
// incidents are notarized by their own goroutine; this worker only picks up
// rows whose goroutine died before reaching a terminal state.
package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"kora/internal/domain"
	"kora/internal/logging"
	"kora/internal/ports"
)

// Notarizer is the slice of the pipeline the sweeper drives.
type Notarizer interface {
	Renotarize(ctx context.Context, inc *domain.Incident)
}

type Config struct {
	Interval  time.Duration
	StaleAge  time.Duration
	BatchSize int
}

// Run sweeps on an interval until ctx is canceled. The first sweep happens
// immediately so restart recovery does not wait a full interval.
func Run(ctx context.Context, claimer ports.PendingClaimer, notarizer Notarizer, cfg Config) {
	log := logging.Component("reconciler")
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.StaleAge <= 0 {
		cfg.StaleAge = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}

	sweep(ctx, claimer, notarizer, cfg, log)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweep(ctx, claimer, notarizer, cfg, log)
		}
	}
}

func sweep(ctx context.Context, claimer ports.PendingClaimer, notarizer Notarizer, cfg Config, log zerolog.Logger) {
	claimed, err := claimer.ClaimStalePending(ctx, cfg.StaleAge, cfg.BatchSize)
	if err != nil {
		log.Warn().Err(err).Msg("claiming stale pending incidents failed")
		return
	}
	if len(claimed) == 0 {
		return
	}
	log.Info().Int("count", len(claimed)).Msg("re-driving orphaned notarizations")

	var wg sync.WaitGroup
	for i := range claimed {
		inc := claimed[i]
		wg.Add(1)
		go func() {
			defer wg.Done()
			notarizer.Renotarize(ctx, &inc)
		}()
	}
	wg.Wait()
}
