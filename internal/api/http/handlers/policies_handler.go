package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/api/dto"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/service"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

// PoliciesHandler manages the admin SLA policy endpoints.
type PoliciesHandler struct {
	service *service.PolicyService
}

// NewPoliciesHandler constructs handler.
func NewPoliciesHandler(policyService *service.PolicyService) *PoliciesHandler {
	return &PoliciesHandler{service: policyService}
}

// CreatePolicy POST /admin/sla-policies.
func (h *PoliciesHandler) CreatePolicy(c *fiber.Ctx) error {
	var req dto.CreatePolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	policy, err := h.service.CreatePolicy(c.UserContext(), service.PolicyCreateInput{
		Name:              req.Name,
		Priority:          req.Priority,
		ResponseMinutes:   req.ResponseMinutes,
		ResolutionMinutes: req.ResolutionMinutes,
		BusinessHoursOnly: req.BusinessHoursOnly,
		IsActive:          req.IsActive,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": policyResponse(policy)})
}

// ListPolicies GET /admin/sla-policies.
func (h *PoliciesHandler) ListPolicies(c *fiber.Ctx) error {
	policies, err := h.service.ListPolicies(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.PolicyResponse, 0, len(policies))
	for i := range policies {
		items = append(items, policyResponse(&policies[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetPolicy GET /admin/sla-policies/:id.
func (h *PoliciesHandler) GetPolicy(c *fiber.Ctx) error {
	policy, err := h.service.GetPolicy(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": policyResponse(policy)})
}

// UpdatePolicy PATCH /admin/sla-policies/:id.
func (h *PoliciesHandler) UpdatePolicy(c *fiber.Ctx) error {
	var req dto.UpdatePolicyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	policy, err := h.service.UpdatePolicy(c.UserContext(), c.Params("id"), service.PolicyPatch{
		Name:              req.Name,
		Priority:          req.Priority,
		ResponseMinutes:   req.ResponseMinutes,
		ResolutionMinutes: req.ResolutionMinutes,
		BusinessHoursOnly: req.BusinessHoursOnly,
		IsActive:          req.IsActive,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": policyResponse(policy)})
}

// DeletePolicy DELETE /admin/sla-policies/:id.
func (h *PoliciesHandler) DeletePolicy(c *fiber.Ctx) error {
	if err := h.service.DeletePolicy(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func policyResponse(policy *domain.SlaPolicy) dto.PolicyResponse {
	return dto.PolicyResponse{
		ID:                policy.ID,
		Name:              policy.Name,
		Priority:          policy.Priority,
		ResponseMinutes:   policy.ResponseMinutes,
		ResolutionMinutes: policy.ResolutionMinutes,
		BusinessHoursOnly: policy.BusinessHoursOnly,
		IsActive:          policy.IsActive,
		CreatedAt:         policy.CreatedAt,
		UpdatedAt:         policy.UpdatedAt,
	}
}
