package sweeper

import (
	"context"
	"time"

	"optifish/pkg/logger"
)

type Expirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// Sweeper periodically flips active campaigns past their expiry to expired.
// Listings already filter on expires_at; the sweep keeps the status column honest.
type Sweeper struct {
	expirer  Expirer
	interval time.Duration
}

func New(e Expirer, interval time.Duration) *Sweeper {
	return &Sweeper{expirer: e, interval: interval}
}

// Run sweeps once immediately, then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return nil
	}
	logger.Info().Dur("interval", s.interval).Msg("expiry sweeper started")

	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			logger.Info().Msg("expiry sweeper stopped")
			return nil
		case <-t.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	n, err := s.expirer.ExpireStale(ctx)
	if err != nil {
		if ctx.Err() == nil {
			logger.Error().Err(err).Msg("expire stale group buys")
		}
		return
	}
	if n > 0 {
		logger.Info().Int64("expired", n).Msg("group buys expired")
	}
}
