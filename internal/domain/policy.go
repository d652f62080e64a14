package domain

import "time"

// SlaPolicy is a named rule binding response and resolution time budgets
// to one priority level. At most one policy per priority is active at any
// instant; activation of a new policy deactivates its siblings.
type SlaPolicy struct {
	ID                string
	Name              string
	Priority          TicketPriority
	ResponseMinutes   int
	ResolutionMinutes int
	BusinessHoursOnly bool
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ResponseBudget returns the response window as a duration.
func (p *SlaPolicy) ResponseBudget() time.Duration {
	return time.Duration(p.ResponseMinutes) * time.Minute
}

// ResolutionBudget returns the resolution window as a duration.
func (p *SlaPolicy) ResolutionBudget() time.Duration {
	return time.Duration(p.ResolutionMinutes) * time.Minute
}
