package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// Ticket is the SLA-relevant projection of a support ticket. The owning
// CRUD subsystem holds the full record; this service tracks only what the
// compliance engine needs. Due timestamps, once set, never change for the
// life of the ticket; breach flags only ever go from false to true.
type Ticket struct {
	ID          string
	ExternalKey string
	UserID      string
	AssignedTo  *string
	Status      TicketStatus
	Priority    TicketPriority
	CreatedAt   time.Time
	UpdatedAt   time.Time

	SlaPolicyID           *string
	SlaName               *string
	SlaResponseDueAt      *time.Time
	SlaResolutionDueAt    *time.Time
	FirstResponseAt       *time.Time
	ResolvedAt            *time.Time
	SlaResponseBreached   bool
	SlaResolutionBreached bool
}

// Tracked reports whether the ticket is bound to an SLA policy. Untracked
// tickets carry no due timestamps and never breach.
func (t *Ticket) Tracked() bool {
	return t.SlaPolicyID != nil
}
