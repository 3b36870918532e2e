package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// WindowStore is the test access the sweep needs.
type WindowStore interface {
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// WindowWorker periodically flips active=false on tests whose window has
// passed. Admission already rejects out-of-window tests on its own clock
// check; the sweep just keeps the stored flag honest so listings and the
// one-active-test slot don't stay occupied by a dead window.
type WindowWorker struct {
	tests    WindowStore
	interval time.Duration
	log      zerolog.Logger
}

// NewWindowWorker creates a new WindowWorker.
func NewWindowWorker(tests WindowStore, interval time.Duration, log zerolog.Logger) *WindowWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &WindowWorker{
		tests:    tests,
		interval: interval,
		log:      log.With().Str("component", "window_worker").Logger(),
	}
}

// Start runs the sweep loop until ctx is cancelled.
func (w *WindowWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("WindowWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("WindowWorker stopping")
			return
		case <-ticker.C:
			closed, err := w.tests.DeactivateExpired(ctx, time.Now())
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.log.Error().Err(err).Msg("Window sweep failed")
				continue
			}
			if closed > 0 {
				w.log.Info().Int64("closed", closed).Msg("Deactivated tests past their window")
			}
		}
	}
}
