package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/inkwell-app/inkwell/internal/ratelimit"
	"github.com/inkwell-app/inkwell/internal/repositories"
)

// CleanupManager periodically removes dead OTP records from the database and
// sweeps idle rate-limit buckets out of memory.
type CleanupManager struct {
	otpRepo  *repositories.OTPRepository
	limiters []*ratelimit.MemoryLimiter
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	otpRepo *repositories.OTPRepository,
	limiters []*ratelimit.MemoryLimiter,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		otpRepo:  otpRepo,
		limiters: limiters,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	rowsDeleted, err := cm.otpRepo.DeleteDead(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to cleanup dead otp records", slog.Any("error", err))
	} else if rowsDeleted > 0 {
		cm.logger.Info("dead otp cleanup completed", slog.Int64("rows_deleted", rowsDeleted))
	}

	swept := 0
	for _, l := range cm.limiters {
		swept += l.Sweep()
	}
	if swept > 0 {
		cm.logger.Info("rate limit buckets swept", slog.Int("buckets", swept))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
