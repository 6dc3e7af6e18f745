package workers

import (
	"context"
	"time"

	"hermes/internal/domain/option"
	"hermes/internal/services/greeks"
	"hermes/internal/services/router"
)

// GreeksWorker recomputes the risk picture for every watched option
// series on a fixed cadence. Each cycle reads fresh reserves, so the
// stored snapshots track the pool rather than a stale cache.
type GreeksWorker struct {
	*BaseWorker
	markets *router.Service
	pricing *greeks.Service
	watch   []*option.Terms
}

// NewGreeksWorker creates a greeks recomputation worker
func NewGreeksWorker(markets *router.Service, pricing *greeks.Service, watch []*option.Terms, interval time.Duration, enabled bool) *GreeksWorker {
	return &GreeksWorker{
		BaseWorker: NewBaseWorker("greeks", interval, enabled),
		markets:    markets,
		pricing:    pricing,
		watch:      watch,
	}
}

// Run computes one snapshot per watched option. A failure on one series
// does not stop the rest; the first error is reported after the sweep.
func (w *GreeksWorker) Run(ctx context.Context) error {
	start := time.Now()

	var firstErr error
	for _, terms := range w.watch {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if terms.Expired(time.Now()) {
			continue
		}

		pool, err := w.markets.PoolSnapshot(ctx, terms)
		if err != nil {
			w.Log().Warnw("Failed to read pool",
				"option", terms.Address.Hex(),
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		if _, err := w.pricing.Compute(ctx, terms, pool); err != nil {
			w.Log().Warnw("Failed to compute greeks",
				"option", terms.Address.Hex(),
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	if firstErr != nil {
		w.RecordError(firstErr, time.Since(start))
		return firstErr
	}
	w.RecordRun(time.Since(start))
	return nil
}
