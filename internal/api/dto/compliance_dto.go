package dto

import (
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
)

// ObligationStatsResponse summarizes one obligation.
type ObligationStatsResponse struct {
	Total     int     `json:"total"`
	Breached  int     `json:"breached"`
	Compliant int     `json:"compliant"`
	Rate      float64 `json:"rate"`
	AtRisk    int     `json:"at_risk"`
}

// PriorityStatsResponse is the per-priority breakdown.
type PriorityStatsResponse struct {
	Priority   domain.TicketPriority   `json:"priority"`
	Total      int                     `json:"total"`
	Response   ObligationStatsResponse `json:"response"`
	Resolution ObligationStatsResponse `json:"resolution"`
}

// ComplianceStatsResponse is the full stats payload.
type ComplianceStatsResponse struct {
	TrackedTotal int                     `json:"tracked_total"`
	Response     ObligationStatsResponse `json:"response"`
	Resolution   ObligationStatsResponse `json:"resolution"`
	ByPriority   []PriorityStatsResponse `json:"by_priority"`
}

// TicketSlaResponse is the SLA block serialized on a ticket record.
// Remaining values are signed seconds, null when the obligation is met
// or the ticket carries no policy.
type TicketSlaResponse struct {
	TicketID                string                 `json:"ticket_id"`
	ExternalKey             string                 `json:"external_key"`
	Priority                domain.TicketPriority  `json:"priority"`
	SlaName                 *string                `json:"sla_name"`
	SlaResponseDueAt        *time.Time             `json:"sla_response_due_at"`
	SlaResolutionDueAt      *time.Time             `json:"sla_resolution_due_at"`
	SlaResponseBreached     bool                   `json:"sla_response_breached"`
	SlaResolutionBreached   bool                   `json:"sla_resolution_breached"`
	ResponseState           domain.ObligationState `json:"response_state"`
	ResolutionState         domain.ObligationState `json:"resolution_state"`
	ResponseTimeRemaining   *int64                 `json:"response_time_remaining"`
	ResolutionTimeRemaining *int64                 `json:"resolution_time_remaining"`
	FirstResponseAt         *time.Time             `json:"first_response_at"`
	ResolvedAt              *time.Time             `json:"resolved_at"`
}

// AtRiskTicketResponse is one at-risk listing entry.
type AtRiskTicketResponse struct {
	TicketID           string                 `json:"ticket_id"`
	ExternalKey        string                 `json:"external_key"`
	Priority           domain.TicketPriority  `json:"priority"`
	AssignedTo         *string                `json:"assigned_to"`
	SlaName            *string                `json:"sla_name"`
	SlaResponseDueAt   *time.Time             `json:"sla_response_due_at"`
	SlaResolutionDueAt *time.Time             `json:"sla_resolution_due_at"`
	ResponseState      domain.ObligationState `json:"response_state"`
	ResolutionState    domain.ObligationState `json:"resolution_state"`
}

// BreachedTicketResponse is one breached listing entry.
type BreachedTicketResponse struct {
	TicketID              string                `json:"ticket_id"`
	ExternalKey           string                `json:"external_key"`
	Priority              domain.TicketPriority `json:"priority"`
	AssignedTo            *string               `json:"assigned_to"`
	SlaName               *string               `json:"sla_name"`
	SlaResponseDueAt      *time.Time            `json:"sla_response_due_at"`
	SlaResolutionDueAt    *time.Time            `json:"sla_resolution_due_at"`
	SlaResponseBreached   bool                  `json:"sla_response_breached"`
	SlaResolutionBreached bool                  `json:"sla_resolution_breached"`
}

// BreachedListResponse is one page of breached tickets.
type BreachedListResponse struct {
	Tickets  []BreachedTicketResponse `json:"tickets"`
	Total    int                      `json:"total"`
	Page     int                      `json:"page"`
	PageSize int                      `json:"page_size"`
}
