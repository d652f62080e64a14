package service

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-service/internal/config"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

// ComplianceService answers read-only SLA analytics, scoped by caller
// role before any aggregation: a client sees only their own tickets, an
// agent sees tickets assigned to them or unassigned, an admin sees
// everything.
type ComplianceService struct {
	tickets    repository.TicketRepository
	reconciler *ReconcilerService
	cfg        config.SlaConfig
	now        func() time.Time
}

// ComplianceDependencies bundles collaborators for the compliance service.
type ComplianceDependencies struct {
	TicketRepo repository.TicketRepository
	Reconciler *ReconcilerService
	SlaConfig  config.SlaConfig
}

// NewComplianceService constructs the service.
func NewComplianceService(deps ComplianceDependencies) *ComplianceService {
	return &ComplianceService{
		tickets:    deps.TicketRepo,
		reconciler: deps.Reconciler,
		cfg:        deps.SlaConfig,
		now:        time.Now,
	}
}

// ObligationStats summarizes one obligation across the selection.
type ObligationStats struct {
	Total     int
	Breached  int
	Compliant int
	Rate      float64
	AtRisk    int
}

// PriorityStats is the per-priority breakdown of the same stats.
type PriorityStats struct {
	Priority   domain.TicketPriority
	Total      int
	Response   ObligationStats
	Resolution ObligationStats
}

// ComplianceStats is the full stats payload.
type ComplianceStats struct {
	TrackedTotal int
	Response     ObligationStats
	Resolution   ObligationStats
	ByPriority   []PriorityStats
}

// StatsQuery bounds a compliance stats request. Nil window overrides use
// the configured defaults (30 min response, 60 min resolution).
type StatsQuery struct {
	From                    *time.Time
	To                      *time.Time
	ResponseAtRiskMinutes   *int
	ResolutionAtRiskMinutes *int
}

// Stats computes compliance rates over SLA-tracked tickets in scope.
// With zero tracked tickets both rates are 100, not a division error.
func (s *ComplianceService) Stats(ctx context.Context, principal *domain.Principal, query StatsQuery) (*ComplianceStats, error) {
	scope, err := scopeForPrincipal(principal)
	if err != nil {
		return nil, err
	}
	if query.From != nil && query.To != nil && query.To.Before(*query.From) {
		return nil, apperrors.NewValidationError("date_to before date_from", nil)
	}

	respWindow := s.cfg.ResponseAtRiskWindow()
	if query.ResponseAtRiskMinutes != nil {
		if *query.ResponseAtRiskMinutes <= 0 {
			return nil, apperrors.NewValidationError("response at-risk minutes must be positive", nil)
		}
		respWindow = time.Duration(*query.ResponseAtRiskMinutes) * time.Minute
	}
	resWindow := s.cfg.ResolutionAtRiskWindow()
	if query.ResolutionAtRiskMinutes != nil {
		if *query.ResolutionAtRiskMinutes <= 0 {
			return nil, apperrors.NewValidationError("resolution at-risk minutes must be positive", nil)
		}
		resWindow = time.Duration(*query.ResolutionAtRiskMinutes) * time.Minute
	}

	filter := repository.ComplianceFilter{Scope: scope, From: query.From, To: query.To}
	rows, err := s.tickets.ComplianceCounts(ctx, filter, s.now(), respWindow, resWindow)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	stats := &ComplianceStats{}
	byPriority := make(map[domain.TicketPriority]repository.ComplianceCountRow, len(rows))
	for _, row := range rows {
		byPriority[row.Priority] = row
		stats.TrackedTotal += row.Total
		stats.Response.Total += row.Total
		stats.Response.Breached += row.ResponseBreached
		stats.Response.AtRisk += row.ResponseAtRisk
		stats.Resolution.Total += row.Total
		stats.Resolution.Breached += row.ResolutionBreached
		stats.Resolution.AtRisk += row.ResolutionAtRisk
	}
	finalizeStats(&stats.Response)
	finalizeStats(&stats.Resolution)

	for _, priority := range domain.AllPriorities {
		row, ok := byPriority[priority]
		if !ok {
			row = repository.ComplianceCountRow{Priority: priority}
		}
		entry := PriorityStats{
			Priority: priority,
			Total:    row.Total,
			Response: ObligationStats{
				Total:    row.Total,
				Breached: row.ResponseBreached,
				AtRisk:   row.ResponseAtRisk,
			},
			Resolution: ObligationStats{
				Total:    row.Total,
				Breached: row.ResolutionBreached,
				AtRisk:   row.ResolutionAtRisk,
			},
		}
		finalizeStats(&entry.Response)
		finalizeStats(&entry.Resolution)
		stats.ByPriority = append(stats.ByPriority, entry)
	}

	return stats, nil
}

// AtRiskTicket pairs a ticket with its obligation classification at query
// time.
type AtRiskTicket struct {
	Ticket          domain.Ticket
	ResponseState   domain.ObligationState
	ResolutionState domain.ObligationState
}

// AtRisk lists tickets with an obligation due within the lookahead
// window, soonest deadline first, capped at the configured result size.
func (s *ComplianceService) AtRisk(ctx context.Context, principal *domain.Principal, minutes int) ([]AtRiskTicket, error) {
	scope, err := scopeForPrincipal(principal)
	if err != nil {
		return nil, err
	}
	if minutes <= 0 {
		return nil, apperrors.NewValidationError("minutes must be positive", map[string]any{"minutes": minutes})
	}

	now := s.now()
	window := time.Duration(minutes) * time.Minute
	tickets, err := s.tickets.ListAtRisk(ctx, scope, now, window, s.cfg.AtRiskListLimit)
	if err != nil {
		return nil, apperrors.MapError(err)
	}

	result := make([]AtRiskTicket, 0, len(tickets))
	for _, ticket := range tickets {
		result = append(result, AtRiskTicket{
			Ticket:          ticket,
			ResponseState:   ticket.ResponseState(now, window),
			ResolutionState: ticket.ResolutionState(now, window),
		})
	}
	return result, nil
}

// BreachedPage is one page of the breached listing.
type BreachedPage struct {
	Tickets  []domain.Ticket
	Total    int
	Page     int
	PageSize int
}

// Breached pages through tickets with at least one persisted breach flag,
// optionally filtered to one obligation type.
func (s *ComplianceService) Breached(ctx context.Context, principal *domain.Principal, obligation *domain.ObligationType, page, pageSize int) (*BreachedPage, error) {
	scope, err := scopeForPrincipal(principal)
	if err != nil {
		return nil, err
	}
	if obligation != nil && !obligation.Valid() {
		return nil, apperrors.NewValidationError("type must be response or resolution", map[string]any{"type": *obligation})
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	tickets, total, err := s.tickets.ListBreached(ctx, repository.BreachedFilter{
		Scope:  scope,
		Type:   obligation,
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return &BreachedPage{Tickets: tickets, Total: total, Page: page, PageSize: pageSize}, nil
}

// TicketSlaView is the serialized SLA block of one ticket. Remaining
// durations are signed and nil when the obligation is already met or the
// ticket is untracked.
type TicketSlaView struct {
	Ticket              *domain.Ticket
	ResponseState       domain.ObligationState
	ResolutionState     domain.ObligationState
	ResponseRemaining   *time.Duration
	ResolutionRemaining *time.Duration
}

// TicketSla fetches one ticket's SLA state, reconciling it lazily first
// so breach flags are current at read time regardless of sweep phase.
func (s *ComplianceService) TicketSla(ctx context.Context, principal *domain.Principal, ticketID string) (*TicketSlaView, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
		}
		return nil, apperrors.MapError(err)
	}
	if err := checkTicketVisible(principal, ticket); err != nil {
		return nil, err
	}

	if s.reconciler != nil {
		if _, err := s.reconciler.ReconcileTicket(ctx, ticket); err != nil {
			return nil, apperrors.MapError(err)
		}
	}

	now := s.now()
	return &TicketSlaView{
		Ticket:              ticket,
		ResponseState:       ticket.ResponseState(now, s.cfg.ResponseAtRiskWindow()),
		ResolutionState:     ticket.ResolutionState(now, s.cfg.ResolutionAtRiskWindow()),
		ResponseRemaining:   domain.TimeRemaining(ticket.SlaResponseDueAt, ticket.FirstResponseAt, now),
		ResolutionRemaining: domain.TimeRemaining(ticket.SlaResolutionDueAt, ticket.ResolvedAt, now),
	}, nil
}

func scopeForPrincipal(principal *domain.Principal) (repository.TicketScope, error) {
	if principal == nil {
		return repository.TicketScope{}, apperrors.NewUnauthorized("authentication required")
	}
	switch principal.Role {
	case domain.RoleAdmin:
		return repository.TicketScope{}, nil
	case domain.RoleAgent:
		agentID := principal.SubjectID
		return repository.TicketScope{AgentID: &agentID}, nil
	case domain.RoleClient:
		userID := principal.SubjectID
		return repository.TicketScope{UserID: &userID}, nil
	default:
		return repository.TicketScope{}, apperrors.NewForbidden("unknown role")
	}
}

func checkTicketVisible(principal *domain.Principal, ticket *domain.Ticket) error {
	if principal == nil {
		return apperrors.NewUnauthorized("authentication required")
	}
	switch principal.Role {
	case domain.RoleAdmin:
		return nil
	case domain.RoleAgent:
		if ticket.AssignedTo == nil || *ticket.AssignedTo == principal.SubjectID {
			return nil
		}
		return apperrors.NewForbidden("ticket assigned to another agent")
	case domain.RoleClient:
		if ticket.UserID == principal.SubjectID {
			return nil
		}
		return apperrors.NewForbidden("not the ticket owner")
	default:
		return apperrors.NewForbidden("unknown role")
	}
}

func finalizeStats(stats *ObligationStats) {
	stats.Compliant = stats.Total - stats.Breached
	if stats.Total == 0 {
		stats.Rate = 100
		return
	}
	stats.Rate = math.Round(float64(stats.Compliant)/float64(stats.Total)*100*100) / 100
}
