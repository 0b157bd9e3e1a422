package cron

import (
	"context"
	"time"

	"go.uber.org/zap"

	"findmycoach/services/booking"
)

// StartPendingSweep runs the PENDING reconciliation sweep on a fixed interval
// until the context is canceled. Each pass re-queries gateway state for stale
// PENDING bookings before acting, so a lost authorize response is eventually
// resolved without ever risking a duplicate hold.
func StartPendingSweep(ctx context.Context, sweeper *booking.PendingSweeper, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("pending sweep shutdown signal received")
			return
		case <-ticker.C:
			logger.Debug("running pending sweep")
			sweeper.Run(ctx)
		}
	}
}
