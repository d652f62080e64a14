package dto

import (
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
)

// TicketCreatedRequest mirrors the ticket-created lifecycle callback.
type TicketCreatedRequest struct {
	TicketID    string                `json:"ticket_id"`
	ExternalKey string                `json:"external_key"`
	UserID      string                `json:"user_id"`
	AssignedTo  *string               `json:"assigned_to"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	CreatedAt   time.Time             `json:"created_at"`
}

// TicketEventRequest carries the first-response and resolved callbacks.
// A zero occurred_at means "now".
type TicketEventRequest struct {
	TicketID   string    `json:"ticket_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
