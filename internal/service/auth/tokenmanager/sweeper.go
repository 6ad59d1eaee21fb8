package tokenmanager

import (
	"context"
	"time"

	"github.com/finxlab/finx/internal/logger"
)

const defaultSweepInterval = time.Hour

// Sweeper periodically purges expired and revoked refresh tokens.
// Storage errors are logged and retried on the next tick, never escalated.
type Sweeper struct {
	interval time.Duration
	manager  *TokenManager
	logger   logger.Logger
}

func NewSweeper(manager *TokenManager, interval time.Duration, logger logger.Logger) *Sweeper {
	if interval == 0 {
		interval = defaultSweepInterval
	}

	return &Sweeper{
		interval: interval,
		manager:  manager,
		logger:   logger,
	}
}

// Run sweeps until the context is cancelled.
// Returned channel is closed when the sweeper is completely stopped.
func (s *Sweeper) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	s.logger.Debug("Starting refresh token sweeper", "interval", s.interval)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Debug("Sweeper stopped by context")
				return

			case <-ticker.C:
				count, err := s.manager.PurgeExpired(ctx)
				if err != nil {
					s.logger.Error("Failed to purge refresh tokens, will retry next tick", "error", err)
					continue
				}

				if count > 0 {
					s.logger.Info("Purged refresh tokens", "count", count)
				}
			}
		}
	}()

	return idleStopped
}
