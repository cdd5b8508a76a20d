package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/clinic-service/internal/service"
)

// Config bundles the background work started alongside the HTTP server.
type Config struct {
	Notifications *service.NotificationService
	OTP           Sweeper
	SweepInterval time.Duration
	Logger        *zap.Logger
}

// Start subscribes the notification handlers and launches the periodic jobs. The returned
// channel closes when every job has stopped.
func Start(ctx context.Context, cfg Config) <-chan struct{} {
	if cfg.Notifications != nil {
		cfg.Notifications.RegisterHandlers()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return StartOTPSweeper(ctx, cfg.OTP, cfg.SweepInterval, logger)
}
