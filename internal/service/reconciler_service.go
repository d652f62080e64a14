package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/observability"
	"github.com/spec-kit/sla-service/internal/repository"
)

// ReconcilerService derives breach state for SLA-tracked tickets. Breach
// flags are monotonic: the repository write is conditional on the flag
// still being false and the obligation still unmet and overdue, so
// reconciling is idempotent and safe to run concurrently with itself and
// with lifecycle writes. It runs both as a periodic sweep and lazily
// before reads that need an exact answer.
type ReconcilerService struct {
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
	batchSize  int
	now        func() time.Time
}

// ReconcilerDependencies bundles collaborators for the reconciler.
type ReconcilerDependencies struct {
	TicketRepo repository.TicketRepository
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
	BatchSize  int
}

// NewReconcilerService constructs the service.
func NewReconcilerService(deps ReconcilerDependencies) *ReconcilerService {
	batch := deps.BatchSize
	if batch <= 0 {
		batch = 500
	}
	return &ReconcilerService{
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		batchSize:  batch,
		now:        time.Now,
	}
}

// ReconcileTicket evaluates both obligations of one ticket and persists
// any false-to-true flag transitions. The ticket is updated in place so
// callers serialize current state. Returns whether this call changed
// anything; re-running on an already-breached ticket is a no-op.
func (s *ReconcilerService) ReconcileTicket(ctx context.Context, ticket *domain.Ticket) (bool, error) {
	if !ticket.Tracked() {
		return false, nil
	}
	now := s.now()
	changed := false

	if ticket.ResponseState(now, 0) == domain.ObligationBreached && !ticket.SlaResponseBreached {
		transitioned, err := s.tickets.MarkBreached(ctx, ticket.ID, domain.ObligationResponse, now)
		if err != nil {
			return changed, err
		}
		if transitioned {
			ticket.SlaResponseBreached = true
			changed = true
			s.onBreach(ctx, ticket, domain.ObligationResponse, *ticket.SlaResponseDueAt)
		}
	}

	if ticket.ResolutionState(now, 0) == domain.ObligationBreached && !ticket.SlaResolutionBreached {
		transitioned, err := s.tickets.MarkBreached(ctx, ticket.ID, domain.ObligationResolution, now)
		if err != nil {
			return changed, err
		}
		if transitioned {
			ticket.SlaResolutionBreached = true
			changed = true
			s.onBreach(ctx, ticket, domain.ObligationResolution, *ticket.SlaResolutionDueAt)
		}
	}

	return changed, nil
}

// Sweep reconciles every tracked ticket with an unmet obligation past
// due. A failure on one ticket is logged and skipped; the rest of the
// pass continues, and the failed ticket is picked up again next cycle.
func (s *ReconcilerService) Sweep(ctx context.Context) (flagged, failed int, err error) {
	now := s.now()
	overdue, err := s.tickets.ListOverdue(ctx, now, s.batchSize)
	if err != nil {
		return 0, 0, err
	}

	for i := range overdue {
		changed, rerr := s.ReconcileTicket(ctx, &overdue[i])
		if rerr != nil {
			failed++
			if s.logger != nil {
				s.logger.Warn("reconcile failed",
					zap.String("ticket_id", overdue[i].ID),
					zap.Error(rerr))
			}
			continue
		}
		if changed {
			flagged++
		}
	}

	s.metrics.RecordSweep(failed)
	if s.logger != nil && (flagged > 0 || failed > 0) {
		s.logger.Info("sweep complete",
			zap.Int("candidates", len(overdue)),
			zap.Int("flagged", flagged),
			zap.Int("failed", failed))
	}
	return flagged, failed, nil
}

func (s *ReconcilerService) onBreach(ctx context.Context, ticket *domain.Ticket, obligation domain.ObligationType, dueAt time.Time) {
	s.metrics.RecordBreach(string(obligation))
	if s.dispatcher == nil {
		return
	}
	eventType := events.EventSlaResponseBreached
	if obligation == domain.ObligationResolution {
		eventType = events.EventSlaResolutionBreached
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticket.ID,
		Timestamp: s.now(),
		Payload: events.SlaBreachedPayload{
			Obligation: obligation,
			DueAt:      dueAt,
			Priority:   ticket.Priority,
		},
	})
}
