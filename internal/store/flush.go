// ABOUTME: Periodic flush loop for stores that can re-persist their state on demand
// ABOUTME: Runs until its context is cancelled; a zero interval disables it

package store

import (
	"context"
	"log/slog"
	"time"
)

// Flusher is implemented by stores that can write their full state on demand.
type Flusher interface {
	Flush(ctx context.Context) error
}

// PeriodicFlusher calls Flush on a fixed interval.
type PeriodicFlusher struct {
	target   Flusher
	interval time.Duration
	logger   *slog.Logger
}

// NewPeriodicFlusher creates a flusher for target. A non-positive interval
// makes Run return immediately.
func NewPeriodicFlusher(target Flusher, interval time.Duration, logger *slog.Logger) *PeriodicFlusher {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeriodicFlusher{
		target:   target,
		interval: interval,
		logger:   logger.With("component", "flusher"),
	}
}

// Run flushes every interval until ctx is done. Flush errors are logged and
// the loop keeps going; the next tick retries.
func (f *PeriodicFlusher) Run(ctx context.Context) {
	if f.interval <= 0 {
		return
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.logger.Info("periodic flush enabled", "interval", f.interval)
	for {
		select {
		case <-ticker.C:
			if err := f.target.Flush(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				f.logger.Error("periodic flush failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
