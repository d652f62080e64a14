package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/api/dto"
	"github.com/spec-kit/sla-service/internal/auth"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/service"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

// ComplianceHandler serves the role-scoped SLA analytics endpoints.
type ComplianceHandler struct {
	service *service.ComplianceService
}

// NewComplianceHandler constructs handler.
func NewComplianceHandler(complianceService *service.ComplianceService) *ComplianceHandler {
	return &ComplianceHandler{service: complianceService}
}

// Stats GET /sla/compliance.
func (h *ComplianceHandler) Stats(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	query := service.StatsQuery{}
	var err error
	if query.From, err = parseTimeParam(c.Query("date_from"), "date_from"); err != nil {
		return err
	}
	if query.To, err = parseTimeParam(c.Query("date_to"), "date_to"); err != nil {
		return err
	}
	if query.ResponseAtRiskMinutes, err = parseIntParam(c.Query("response_at_risk_minutes"), "response_at_risk_minutes"); err != nil {
		return err
	}
	if query.ResolutionAtRiskMinutes, err = parseIntParam(c.Query("resolution_at_risk_minutes"), "resolution_at_risk_minutes"); err != nil {
		return err
	}

	stats, err := h.service.Stats(c.UserContext(), principal, query)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": complianceStatsResponse(stats)})
}

// AtRisk GET /sla/at-risk.
func (h *ComplianceHandler) AtRisk(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	minutes := 60
	if raw := c.Query("minutes"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return apperrors.NewValidationError("invalid minutes", map[string]any{"minutes": raw})
		}
		minutes = parsed
	}

	items, err := h.service.AtRisk(c.UserContext(), principal, minutes)
	if err != nil {
		return err
	}
	resp := make([]dto.AtRiskTicketResponse, 0, len(items))
	for i := range items {
		resp = append(resp, atRiskTicketResponse(&items[i]))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Breached GET /sla/breached.
func (h *ComplianceHandler) Breached(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}

	var obligation *domain.ObligationType
	if raw := c.Query("type"); raw != "" {
		t := domain.ObligationType(raw)
		obligation = &t
	}
	page := parsePositiveInt(c.Query("page"), 1)
	pageSize := parsePositiveInt(c.Query("page_size"), 20)

	result, err := h.service.Breached(c.UserContext(), principal, obligation, page, pageSize)
	if err != nil {
		return err
	}

	tickets := make([]dto.BreachedTicketResponse, 0, len(result.Tickets))
	for i := range result.Tickets {
		tickets = append(tickets, breachedTicketResponse(&result.Tickets[i]))
	}
	return c.JSON(fiber.Map{"data": dto.BreachedListResponse{
		Tickets:  tickets,
		Total:    result.Total,
		Page:     result.Page,
		PageSize: result.PageSize,
	}})
}

// TicketSla GET /tickets/:id/sla.
func (h *ComplianceHandler) TicketSla(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	view, err := h.service.TicketSla(c.UserContext(), principal, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSlaResponse(view)})
}

func parseTimeParam(val, name string) (*time.Time, error) {
	if val == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid "+name, map[string]any{name: val})
	}
	return &t, nil
}

func parseIntParam(val, name string) (*int, error) {
	if val == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid "+name, map[string]any{name: val})
	}
	return &parsed, nil
}

func parsePositiveInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func complianceStatsResponse(stats *service.ComplianceStats) dto.ComplianceStatsResponse {
	byPriority := make([]dto.PriorityStatsResponse, 0, len(stats.ByPriority))
	for _, entry := range stats.ByPriority {
		byPriority = append(byPriority, dto.PriorityStatsResponse{
			Priority:   entry.Priority,
			Total:      entry.Total,
			Response:   obligationStatsResponse(entry.Response),
			Resolution: obligationStatsResponse(entry.Resolution),
		})
	}
	return dto.ComplianceStatsResponse{
		TrackedTotal: stats.TrackedTotal,
		Response:     obligationStatsResponse(stats.Response),
		Resolution:   obligationStatsResponse(stats.Resolution),
		ByPriority:   byPriority,
	}
}

func obligationStatsResponse(stats service.ObligationStats) dto.ObligationStatsResponse {
	return dto.ObligationStatsResponse{
		Total:     stats.Total,
		Breached:  stats.Breached,
		Compliant: stats.Compliant,
		Rate:      stats.Rate,
		AtRisk:    stats.AtRisk,
	}
}

func atRiskTicketResponse(item *service.AtRiskTicket) dto.AtRiskTicketResponse {
	return dto.AtRiskTicketResponse{
		TicketID:           item.Ticket.ID,
		ExternalKey:        item.Ticket.ExternalKey,
		Priority:           item.Ticket.Priority,
		AssignedTo:         item.Ticket.AssignedTo,
		SlaName:            item.Ticket.SlaName,
		SlaResponseDueAt:   item.Ticket.SlaResponseDueAt,
		SlaResolutionDueAt: item.Ticket.SlaResolutionDueAt,
		ResponseState:      item.ResponseState,
		ResolutionState:    item.ResolutionState,
	}
}

func breachedTicketResponse(ticket *domain.Ticket) dto.BreachedTicketResponse {
	return dto.BreachedTicketResponse{
		TicketID:              ticket.ID,
		ExternalKey:           ticket.ExternalKey,
		Priority:              ticket.Priority,
		AssignedTo:            ticket.AssignedTo,
		SlaName:               ticket.SlaName,
		SlaResponseDueAt:      ticket.SlaResponseDueAt,
		SlaResolutionDueAt:    ticket.SlaResolutionDueAt,
		SlaResponseBreached:   ticket.SlaResponseBreached,
		SlaResolutionBreached: ticket.SlaResolutionBreached,
	}
}

func ticketSlaResponse(view *service.TicketSlaView) dto.TicketSlaResponse {
	return dto.TicketSlaResponse{
		TicketID:                view.Ticket.ID,
		ExternalKey:             view.Ticket.ExternalKey,
		Priority:                view.Ticket.Priority,
		SlaName:                 view.Ticket.SlaName,
		SlaResponseDueAt:        view.Ticket.SlaResponseDueAt,
		SlaResolutionDueAt:      view.Ticket.SlaResolutionDueAt,
		SlaResponseBreached:     view.Ticket.SlaResponseBreached,
		SlaResolutionBreached:   view.Ticket.SlaResolutionBreached,
		ResponseState:           view.ResponseState,
		ResolutionState:         view.ResolutionState,
		ResponseTimeRemaining:   durationSeconds(view.ResponseRemaining),
		ResolutionTimeRemaining: durationSeconds(view.ResolutionRemaining),
		FirstResponseAt:         view.Ticket.FirstResponseAt,
		ResolvedAt:              view.Ticket.ResolvedAt,
	}
}

func durationSeconds(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	secs := int64(d.Seconds())
	return &secs
}
