package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/api/dto"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/service"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

// EventsHandler ingests ticket lifecycle callbacks from the CRUD
// subsystem. All three endpoints are idempotent: redelivery of an event
// never changes already-recorded state.
type EventsHandler struct {
	deadlines *service.DeadlineService
}

// NewEventsHandler constructs handler.
func NewEventsHandler(deadlineService *service.DeadlineService) *EventsHandler {
	return &EventsHandler{deadlines: deadlineService}
}

// TicketCreated POST /internal/events/ticket-created. Responds with the
// due timestamps assigned to the ticket, which the caller writes back to
// its own record.
func (h *EventsHandler) TicketCreated(c *fiber.Ctx) error {
	var req dto.TicketCreatedRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.deadlines.RegisterTicket(c.UserContext(), service.TicketCreatedInput{
		TicketID:    req.TicketID,
		ExternalKey: req.ExternalKey,
		UserID:      req.UserID,
		AssignedTo:  req.AssignedTo,
		Status:      req.Status,
		Priority:    req.Priority,
		CreatedAt:   req.CreatedAt,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": fiber.Map{
		"ticket_id":             ticket.ID,
		"sla_policy_id":         ticket.SlaPolicyID,
		"sla_name":              ticket.SlaName,
		"sla_response_due_at":   ticket.SlaResponseDueAt,
		"sla_resolution_due_at": ticket.SlaResolutionDueAt,
	}})
}

// FirstResponse POST /internal/events/first-response.
func (h *EventsHandler) FirstResponse(c *fiber.Ctx) error {
	return h.recordEvent(c, h.deadlines.RecordFirstResponse)
}

// Resolved POST /internal/events/resolved.
func (h *EventsHandler) Resolved(c *fiber.Ctx) error {
	return h.recordEvent(c, h.deadlines.RecordResolution)
}

func (h *EventsHandler) recordEvent(c *fiber.Ctx, record func(ctx context.Context, ticketID string, at time.Time) (*domain.Ticket, error)) error {
	var req dto.TicketEventRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := record(c.UserContext(), req.TicketID, req.OccurredAt)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"ticket_id":               ticket.ID,
		"first_response_at":       ticket.FirstResponseAt,
		"resolved_at":             ticket.ResolvedAt,
		"sla_response_breached":   ticket.SlaResponseBreached,
		"sla_resolution_breached": ticket.SlaResolutionBreached,
	}})
}
