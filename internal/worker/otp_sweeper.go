package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper removes expired passcode challenges.
type Sweeper interface {
	Sweep() int
}

// StartOTPSweeper runs sweeper every interval until ctx is cancelled. The returned channel
// closes once the loop has exited.
func StartOTPSweeper(ctx context.Context, sweeper Sweeper, interval time.Duration, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if sweeper == nil || interval <= 0 {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := sweeper.Sweep(); removed > 0 {
					logger.Debug("expired otp challenges removed", zap.Int("count", removed))
				}
			}
		}
	}()
	return done
}
