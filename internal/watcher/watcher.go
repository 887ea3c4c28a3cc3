// Package watcher drives the reconciler on a fixed schedule.
package watcher

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Runner is one reconciliation pass. Failures are the runner's to report; the
// watcher only logs them and keeps ticking.
type Runner interface {
	Run(ctx context.Context) error
}

type Watcher struct {
	runner   Runner
	interval time.Duration
}

func New(runner Runner, interval time.Duration) *Watcher {
	return &Watcher{
		runner:   runner,
		interval: interval,
	}
}

// Start runs one pass immediately, then one per interval, until the context
// is cancelled.
func (w *Watcher) Start(ctx context.Context) error {
	log.Info().Dur("interval", w.interval).Msg("starting mailbox watcher")

	if err := w.runner.Run(ctx); err != nil {
		log.Error().Err(err).Msg("reconciliation pass failed")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("watcher shutting down")
			return ctx.Err()
		case <-ticker.C:
			if err := w.runner.Run(ctx); err != nil {
				log.Error().Err(err).Msg("reconciliation pass failed")
			}
		}
	}
}
