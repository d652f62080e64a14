package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/persistence"
	"github.com/spec-kit/sla-service/internal/service"
)

const sweepLeaseKey = "sla:sweep:lease"

// SweepWorker runs the breach reconciler on a fixed interval. The
// interval is the staleness bound for persisted breach flags; reads that
// reconcile lazily are exact regardless. A redis lease keeps multiple
// replicas from sweeping simultaneously; overlap would still be harmless
// since flag writes are monotonic, the lease just avoids duplicate work.
type SweepWorker struct {
	reconciler *service.ReconcilerService
	redis      *persistence.Redis
	logger     *zap.Logger
	instanceID string
	interval   time.Duration
}

// NewSweepWorker constructs the worker.
func NewSweepWorker(reconciler *service.ReconcilerService, redis *persistence.Redis, logger *zap.Logger, instanceID string, interval time.Duration) *SweepWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &SweepWorker{
		reconciler: reconciler,
		redis:      redis,
		logger:     logger,
		instanceID: instanceID,
		interval:   interval,
	}
}

// Run sweeps until the context is cancelled. Sweep errors are logged and
// retried on the next cycle; they never stop the loop.
func (w *SweepWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *SweepWorker) runOnce(ctx context.Context) {
	if !w.acquireLease(ctx) {
		return
	}
	if _, _, err := w.reconciler.Sweep(ctx); err != nil {
		w.logger.Error("sweep failed", zap.Error(err))
	}
}

// acquireLease takes the sweep lease for one interval. Without a redis
// client (single-instance deployments) the worker always proceeds.
func (w *SweepWorker) acquireLease(ctx context.Context) bool {
	if w.redis == nil || w.redis.Client == nil {
		return true
	}
	ok, err := w.redis.Client.SetNX(ctx, sweepLeaseKey, w.instanceID, w.interval).Result()
	if err != nil {
		w.logger.Warn("sweep lease unavailable; proceeding", zap.Error(err))
		return true
	}
	return ok
}
