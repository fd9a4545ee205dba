package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sessionkeeper/internal/logging"
)

type sweepable interface {
	Sweep(ctx context.Context) (int64, error)
}

// Sweeper periodically purges dead ledger rows until its context ends.
type Sweeper struct {
	target   sweepable
	interval time.Duration
	logger   logging.Logger
}

func NewSweeper(target sweepable, interval time.Duration, logger logging.Logger) *Sweeper {
	return &Sweeper{target: target, interval: interval, logger: logger.With("module", "sweeper")}
}

// Run blocks until ctx is done. A non-positive interval disables sweeping.
func (s *Sweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info(ctx, "sweeper disabled")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	n, err := s.target.Sweep(ctx)
	if err != nil {
		s.logger.Error(ctx, "sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info(ctx, "swept refresh tokens", "count", n)
	}
}
