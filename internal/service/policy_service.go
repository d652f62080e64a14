package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

// PolicyService manages the SLA policy taxonomy. The single-active-per-
// priority invariant is enforced by the repository inside one transaction;
// this layer validates input and maps store outcomes onto the error
// taxonomy before any state mutation happens.
type PolicyService struct {
	policies repository.PolicyRepository
}

// NewPolicyService constructs the service.
func NewPolicyService(policies repository.PolicyRepository) *PolicyService {
	return &PolicyService{policies: policies}
}

// PolicyCreateInput describes policy creation payload.
type PolicyCreateInput struct {
	Name              string
	Priority          domain.TicketPriority
	ResponseMinutes   int
	ResolutionMinutes int
	BusinessHoursOnly bool
	IsActive          bool
}

// PolicyPatch describes a partial policy update. Nil fields are left
// untouched.
type PolicyPatch struct {
	Name              *string
	Priority          *domain.TicketPriority
	ResponseMinutes   *int
	ResolutionMinutes *int
	BusinessHoursOnly *bool
	IsActive          *bool
}

// CreatePolicy validates and persists a new policy. When the new policy is
// active, every other policy for the same priority is deactivated in the
// same transaction.
func (s *PolicyService) CreatePolicy(ctx context.Context, input PolicyCreateInput) (*domain.SlaPolicy, error) {
	policy := &domain.SlaPolicy{
		Name:              strings.TrimSpace(input.Name),
		Priority:          input.Priority,
		ResponseMinutes:   input.ResponseMinutes,
		ResolutionMinutes: input.ResolutionMinutes,
		BusinessHoursOnly: input.BusinessHoursOnly,
		IsActive:          input.IsActive,
	}
	if err := validatePolicy(policy); err != nil {
		return nil, err
	}
	if err := s.policies.Create(ctx, policy); err != nil {
		return nil, apperrors.MapError(err)
	}
	return policy, nil
}

// UpdatePolicy applies a patch to an existing policy. Activating the
// policy, explicitly or by moving an active policy to another priority,
// deactivates all other active policies for the resulting priority.
func (s *PolicyService) UpdatePolicy(ctx context.Context, id string, patch PolicyPatch) (*domain.SlaPolicy, error) {
	policy, err := s.policies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("policy", map[string]any{"policy_id": id})
		}
		return nil, apperrors.MapError(err)
	}

	if patch.Name != nil {
		policy.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Priority != nil {
		policy.Priority = *patch.Priority
	}
	if patch.ResponseMinutes != nil {
		policy.ResponseMinutes = *patch.ResponseMinutes
	}
	if patch.ResolutionMinutes != nil {
		policy.ResolutionMinutes = *patch.ResolutionMinutes
	}
	if patch.BusinessHoursOnly != nil {
		policy.BusinessHoursOnly = *patch.BusinessHoursOnly
	}
	if patch.IsActive != nil {
		policy.IsActive = *patch.IsActive
	}

	if err := validatePolicy(policy); err != nil {
		return nil, err
	}
	if err := s.policies.Update(ctx, policy); err != nil {
		return nil, apperrors.MapError(err)
	}
	return policy, nil
}

// DeletePolicy removes a policy. Fails with Conflict while any ticket
// still references it: existing due timestamps keep their provenance.
func (s *PolicyService) DeletePolicy(ctx context.Context, id string) error {
	err := s.policies.Delete(ctx, id)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrPolicyReferenced):
		return apperrors.NewConflict("policy referenced by tickets", map[string]any{"policy_id": id})
	case errors.Is(err, pgx.ErrNoRows):
		return apperrors.NewNotFound("policy", map[string]any{"policy_id": id})
	default:
		return apperrors.MapError(err)
	}
}

// GetPolicy fetches a policy by id.
func (s *PolicyService) GetPolicy(ctx context.Context, id string) (*domain.SlaPolicy, error) {
	policy, err := s.policies.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("policy", map[string]any{"policy_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return policy, nil
}

// ListPolicies returns all policies ordered by priority.
func (s *PolicyService) ListPolicies(ctx context.Context) ([]domain.SlaPolicy, error) {
	policies, err := s.policies.List(ctx)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return policies, nil
}

// ResolvePolicy returns the active policy for a priority, or nil when the
// priority has none; tickets created then are simply untracked.
func (s *PolicyService) ResolvePolicy(ctx context.Context, priority domain.TicketPriority) (*domain.SlaPolicy, error) {
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}
	policy, err := s.policies.Resolve(ctx, priority)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return policy, nil
}

func validatePolicy(policy *domain.SlaPolicy) error {
	details := map[string]any{}
	if policy.Name == "" {
		details["name"] = "required"
	}
	if !policy.Priority.Valid() {
		details["priority"] = "must be one of low, medium, high, urgent"
	}
	if policy.ResponseMinutes <= 0 {
		details["response_minutes"] = "must be positive"
	}
	if policy.ResolutionMinutes <= 0 {
		details["resolution_minutes"] = "must be positive"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid policy", details)
	}
	return nil
}
