package tokenstore

import (
	"context"
	"log/slog"
	"time"

	"classroom-access/internal/obs"
)

// Sweeper periodically removes expired blocklist entries. It complements the
// opportunistic sweep done on logout for deployments with little logout traffic.
type Sweeper struct {
	Store            Store
	AccessRetention  time.Duration
	RefreshRetention time.Duration
	Interval         time.Duration
	Log              *slog.Logger
	Metrics          *obs.Metrics
}

// Run sweeps once immediately and then every Interval until ctx is done.
func (s Sweeper) Run(ctx context.Context) {
	if s.Store == nil || s.Interval <= 0 {
		return
	}
	log := s.Log
	if log == nil {
		log = slog.Default()
	}

	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		s.Once(ctx, log)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Once runs a single sweep and reports the outcome.
func (s Sweeper) Once(ctx context.Context, log *slog.Logger) (int64, error) {
	n, err := s.Store.Sweep(ctx, s.AccessRetention, s.RefreshRetention)
	s.Metrics.ObserveSweep(n, err)
	if err != nil {
		if log != nil {
			log.ErrorContext(ctx, "blocklist sweep failed", "err", err)
		}
		return 0, err
	}
	if log != nil && n > 0 {
		log.InfoContext(ctx, "blocklist swept", "removed", n)
	}
	return n, nil
}
