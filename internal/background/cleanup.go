package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/kestrelworks/beacon/internal/middleware"
	"github.com/kestrelworks/beacon/internal/session"
)

// ResetTokenStore is the slice of the user repository the sweeper needs.
type ResetTokenStore interface {
	ClearExpiredResetTokens(ctx context.Context) (int64, error)
}

// CleanupManager periodically sweeps expired sessions, stale rate-limit
// counters, and expired password-reset tokens.
type CleanupManager struct {
	sessions   *session.Manager
	counters   middleware.CounterStore
	resetStore ResetTokenStore
	logger     *slog.Logger
	interval   time.Duration
	stopCh     chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	sessions *session.Manager,
	counters middleware.CounterStore,
	resetStore ResetTokenStore,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		sessions:   sessions,
		counters:   counters,
		resetStore: resetStore,
		logger:     logger,
		interval:   interval,
		stopCh:     make(chan struct{}),
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
	sessionsDeleted := cm.sessions.DeleteExpired()
	countersDeleted := cm.counters.DeleteExpired()

	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tokensCleared, err := cm.resetStore.ClearExpiredResetTokens(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to clear expired reset tokens", slog.Any("error", err))
	}

	if sessionsDeleted > 0 || countersDeleted > 0 || tokensCleared > 0 {
		cm.logger.Info("cleanup sweep completed",
			slog.Int("sessions_deleted", sessionsDeleted),
			slog.Int("counters_deleted", countersDeleted),
			slog.Int64("reset_tokens_cleared", tokensCleared))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
