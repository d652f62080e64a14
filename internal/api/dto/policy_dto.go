package dto

import (
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
)

// CreatePolicyRequest payload.
type CreatePolicyRequest struct {
	Name              string                `json:"name"`
	Priority          domain.TicketPriority `json:"priority"`
	ResponseMinutes   int                   `json:"response_minutes"`
	ResolutionMinutes int                   `json:"resolution_minutes"`
	BusinessHoursOnly bool                  `json:"business_hours_only"`
	IsActive          bool                  `json:"is_active"`
}

// UpdatePolicyRequest carries a partial update; absent fields keep their
// current values.
type UpdatePolicyRequest struct {
	Name              *string                `json:"name"`
	Priority          *domain.TicketPriority `json:"priority"`
	ResponseMinutes   *int                   `json:"response_minutes"`
	ResolutionMinutes *int                   `json:"resolution_minutes"`
	BusinessHoursOnly *bool                  `json:"business_hours_only"`
	IsActive          *bool                  `json:"is_active"`
}

// PolicyResponse serializes a policy.
type PolicyResponse struct {
	ID                string                `json:"id"`
	Name              string                `json:"name"`
	Priority          domain.TicketPriority `json:"priority"`
	ResponseMinutes   int                   `json:"response_minutes"`
	ResolutionMinutes int                   `json:"resolution_minutes"`
	BusinessHoursOnly bool                  `json:"business_hours_only"`
	IsActive          bool                  `json:"is_active"`
	CreatedAt         time.Time             `json:"created_at"`
	UpdatedAt         time.Time             `json:"updated_at"`
}
