package engine

import (
	"context"
	"time"

	"github.com/dmitrijs2005/appconnect/internal/logging"
	"github.com/dmitrijs2005/appconnect/internal/store/clipboard"
)

// DefaultSweepInterval is how often expired clipboard items are removed.
const DefaultSweepInterval = 24 * time.Hour

// Sweeper periodically expires stale clipboard items.
type Sweeper struct {
	store    clipboard.Repository
	interval time.Duration
	log      logging.Logger
	now      func() int64
}

// NewSweeper builds a sweeper; interval <= 0 selects the default.
func NewSweeper(store clipboard.Repository, interval time.Duration, log logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		log:      log.With("component", "sweeper"),
		now:      func() int64 { return time.Now().UnixMilli() },
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	count, err := s.store.Sweep(ctx, s.now())
	if err != nil {
		s.log.Error(ctx, "sweep failed", "error", err)
		return
	}
	if count > 0 {
		s.log.Info(ctx, "expired items removed", "count", count)
	}
}
