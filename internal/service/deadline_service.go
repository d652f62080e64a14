package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/repository"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

// DeadlineService binds tickets to policies at creation and records the
// lifecycle events that satisfy SLA obligations. Due timestamps are
// computed exactly once, from the ticket's creation time; a later priority
// change or policy edit never rewrites them. Deadline math is wall-clock
// minute addition; the business-hours flag on a policy is stored but not
// consulted here.
type DeadlineService struct {
	policies   repository.PolicyRepository
	tickets    repository.TicketRepository
	dispatcher events.Dispatcher
	now        func() time.Time
}

// DeadlineDependencies bundles collaborators for the deadline service.
type DeadlineDependencies struct {
	PolicyRepo repository.PolicyRepository
	TicketRepo repository.TicketRepository
	Dispatcher events.Dispatcher
}

// NewDeadlineService constructs the service.
func NewDeadlineService(deps DeadlineDependencies) *DeadlineService {
	return &DeadlineService{
		policies:   deps.PolicyRepo,
		tickets:    deps.TicketRepo,
		dispatcher: deps.Dispatcher,
		now:        time.Now,
	}
}

// TicketCreatedInput mirrors the ticket-created callback from the CRUD
// subsystem.
type TicketCreatedInput struct {
	TicketID    string
	ExternalKey string
	UserID      string
	AssignedTo  *string
	Status      domain.TicketStatus
	Priority    domain.TicketPriority
	CreatedAt   time.Time
}

// RegisterTicket projects a freshly created ticket and assigns its SLA,
// when the priority has an active policy. The due pair is computed before
// the single insert, so a ticket can never be stored with half its
// deadlines. Redelivery of the same event is a no-op and answers with the
// persisted state; the stored due pair never moves, even when the active
// policy changed between deliveries.
func (s *DeadlineService) RegisterTicket(ctx context.Context, input TicketCreatedInput) (*domain.Ticket, error) {
	if input.TicketID == "" || input.UserID == "" {
		return nil, apperrors.NewValidationError("ticket_id and user_id required", nil)
	}
	if !input.Priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": input.Priority})
	}
	if input.CreatedAt.IsZero() {
		return nil, apperrors.NewValidationError("created_at required", nil)
	}

	ticket := &domain.Ticket{
		ID:          input.TicketID,
		ExternalKey: input.ExternalKey,
		UserID:      input.UserID,
		AssignedTo:  input.AssignedTo,
		Status:      input.Status,
		Priority:    input.Priority,
		CreatedAt:   input.CreatedAt,
	}
	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusOpen
	}

	policy, err := s.policies.Resolve(ctx, input.Priority)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if policy != nil {
		responseDue := input.CreatedAt.Add(policy.ResponseBudget())
		resolutionDue := input.CreatedAt.Add(policy.ResolutionBudget())
		ticket.SlaPolicyID = &policy.ID
		ticket.SlaName = &policy.Name
		ticket.SlaResponseDueAt = &responseDue
		ticket.SlaResolutionDueAt = &resolutionDue
	}

	inserted, err := s.tickets.Create(ctx, ticket)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	if !inserted {
		stored, err := s.tickets.GetByID(ctx, ticket.ID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		return stored, nil
	}

	if policy != nil {
		s.publish(ctx, events.Event{
			Type:     events.EventSlaAssigned,
			TicketID: ticket.ID,
			Payload: events.SlaAssignedPayload{
				PolicyID:        policy.ID,
				PolicyName:      policy.Name,
				Priority:        ticket.Priority,
				ResponseDueAt:   *ticket.SlaResponseDueAt,
				ResolutionDueAt: *ticket.SlaResolutionDueAt,
			},
		})
	}
	return ticket, nil
}

// RecordFirstResponse marks the response obligation met. First write wins;
// replays keep the earliest timestamp. An existing breach flag is left
// untouched: a late answer does not un-breach the ticket.
func (s *DeadlineService) RecordFirstResponse(ctx context.Context, ticketID string, at time.Time) (*domain.Ticket, error) {
	return s.recordEvent(ctx, ticketID, at, s.tickets.RecordFirstResponse)
}

// RecordResolution marks the resolution obligation met.
func (s *DeadlineService) RecordResolution(ctx context.Context, ticketID string, at time.Time) (*domain.Ticket, error) {
	return s.recordEvent(ctx, ticketID, at, s.tickets.RecordResolution)
}

func (s *DeadlineService) recordEvent(ctx context.Context, ticketID string, at time.Time, write func(context.Context, string, time.Time) error) (*domain.Ticket, error) {
	if ticketID == "" {
		return nil, apperrors.NewValidationError("ticket_id required", nil)
	}
	if at.IsZero() {
		at = s.now()
	}
	if _, err := s.tickets.GetByID(ctx, ticketID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if err := write(ctx, ticketID, at); err != nil {
		return nil, apperrors.MapError(err)
	}
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return ticket, nil
}

func (s *DeadlineService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}
