package topup

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Poller is the part of Service the worker drives
type Poller interface {
	PollPending(ctx context.Context, limit uint64) (int, error)
}

// Worker polls unresolved requests on a ticker and on wake-ups
type Worker struct {
	poller       Poller
	interval     time.Duration
	batch        uint64
	idleLogEvery time.Duration
}

// NewWorker creates status-poll worker
func NewWorker(poller Poller, interval time.Duration, batch int) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batch <= 0 {
		batch = 50
	}
	return &Worker{
		poller:       poller,
		interval:     interval,
		batch:        uint64(batch),
		idleLogEvery: time.Minute,
	}
}

// Run blocks until ctx is done. wake may be nil.
func (w *Worker) Run(ctx context.Context, wake <-chan struct{}) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	lastIdleLog := time.Time{}

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("momo-worker stopped")
			return
		case <-wake:
			// immediate poll
		case <-ticker.C:
		}

		start := time.Now()
		n, err := w.poller.PollPending(ctx, w.batch)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			log.Error().Err(err).Msg("DB error while listing pending momo requests")
			continue
		}
		if n == 0 {
			now := time.Now()
			if lastIdleLog.IsZero() || now.Sub(lastIdleLog) >= w.idleLogEvery {
				log.Info().Msg("Idle: no pending momo requests")
				lastIdleLog = now
			}
			continue
		}

		log.Info().
			Int("requests", n).
			Dur("took", time.Since(start)).
			Msg("Polled pending momo requests")
	}
}
