package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/bastion/internal/metrics"
)

// IdleSweeper deletes attempt records idle for longer than idleTTL
type IdleSweeper interface {
	DeleteIdle(ctx context.Context, idleTTL time.Duration) (int64, error)
}

// CleanupManager periodically evicts idle, unlocked attempt records. Lock
// expiry never depends on it; it only bounds store growth.
type CleanupManager struct {
	sweeper  IdleSweeper
	metrics  *metrics.Metrics
	logger   *slog.Logger
	interval time.Duration
	idleTTL  time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager. m may be nil.
func NewCleanupManager(sweeper IdleSweeper, m *metrics.Metrics, logger *slog.Logger, interval, idleTTL time.Duration) *CleanupManager {
	return &CleanupManager{
		sweeper:  sweeper,
		metrics:  m,
		logger:   logger,
		interval: interval,
		idleTTL:  idleTTL,
		timeout:  30 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start runs a sweep immediately and then on every tick until Stop is called
// or ctx is cancelled
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce performs a single sweep and returns the number of deleted records
func (cm *CleanupManager) RunOnce(ctx context.Context) int64 {
	start := time.Now()

	sweepCtx, cancel := context.WithTimeout(ctx, cm.timeout)
	defer cancel()

	deleted, err := cm.sweeper.DeleteIdle(sweepCtx, cm.idleTTL)
	if cm.metrics != nil {
		cm.metrics.ObserveSweepDuration(time.Since(start).Seconds())
	}
	if err != nil {
		cm.logger.Error("failed to sweep idle attempt records", slog.Any("error", err))
		if cm.metrics != nil {
			cm.metrics.IncrementSweepRuns("error")
		}
		return 0
	}

	if cm.metrics != nil {
		cm.metrics.IncrementSweepRuns("ok")
		cm.metrics.AddSweptRecords(deleted)
	}
	if deleted > 0 {
		cm.logger.Info("idle attempt records swept", slog.Int64("rows_deleted", deleted))
	}
	return deleted
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
