package events

import (
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSlaAssigned           EventType = "sla_assigned"
	EventSlaResponseBreached   EventType = "sla_response_breached"
	EventSlaResolutionBreached EventType = "sla_resolution_breached"
)

// Event represents a domain event emitted by the compliance engine.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// SlaAssignedPayload payload.
type SlaAssignedPayload struct {
	PolicyID        string                `json:"policy_id"`
	PolicyName      string                `json:"policy_name"`
	Priority        domain.TicketPriority `json:"priority"`
	ResponseDueAt   time.Time             `json:"response_due_at"`
	ResolutionDueAt time.Time             `json:"resolution_due_at"`
}

// SlaBreachedPayload payload for either breach event.
type SlaBreachedPayload struct {
	Obligation domain.ObligationType `json:"obligation"`
	DueAt      time.Time             `json:"due_at"`
	Priority   domain.TicketPriority `json:"priority"`
}
