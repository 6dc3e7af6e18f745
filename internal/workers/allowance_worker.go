package workers

import (
	"context"
	"time"

	"hermes/internal/services/desk"
	"hermes/pkg/errors"
)

// AllowanceWorker re-reads the armed selection's allowances so an
// approval granted from another window is picked up without the trader
// touching anything.
type AllowanceWorker struct {
	*BaseWorker
	desk *desk.Service
}

// NewAllowanceWorker creates an allowance refresh worker
func NewAllowanceWorker(d *desk.Service, interval time.Duration, enabled bool) *AllowanceWorker {
	return &AllowanceWorker{
		BaseWorker: NewBaseWorker("allowance", interval, enabled),
		desk:       d,
	}
}

// Run refreshes the current selection. No selection is not an error.
func (w *AllowanceWorker) Run(ctx context.Context) error {
	start := time.Now()

	sel, err := w.desk.Refresh(ctx)
	if err != nil {
		if errors.Is(err, errors.ErrNoSelection) {
			w.RecordRun(time.Since(start))
			return nil
		}
		w.RecordError(err, time.Since(start))
		return err
	}

	w.Log().Debugw("Selection allowances refreshed",
		"operation", sel.Operation,
		"approved", sel.Ready(),
	)
	w.RecordRun(time.Since(start))
	return nil
}
