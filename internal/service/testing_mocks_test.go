package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/repository"
)

var (
	_ repository.PolicyRepository = (*mockPolicyRepository)(nil)
	_ repository.TicketRepository = (*mockTicketRepository)(nil)
	_ events.Dispatcher           = (*recordingDispatcher)(nil)
)

// mockPolicyRepository keeps policies in memory with the same activation
// semantics as the postgres implementation.
type mockPolicyRepository struct {
	policies   map[string]*domain.SlaPolicy
	referenced map[string]bool
	seq        int
}

func newMockPolicyRepository() *mockPolicyRepository {
	return &mockPolicyRepository{
		policies:   make(map[string]*domain.SlaPolicy),
		referenced: make(map[string]bool),
	}
}

func (m *mockPolicyRepository) nextID() string {
	m.seq++
	return fmt.Sprintf("policy-%d", m.seq)
}

func (m *mockPolicyRepository) deactivateSiblings(priority domain.TicketPriority, excludeID string) {
	for _, p := range m.policies {
		if p.Priority == priority && p.IsActive && p.ID != excludeID {
			p.IsActive = false
		}
	}
}

func (m *mockPolicyRepository) Create(_ context.Context, policy *domain.SlaPolicy) error {
	if policy.IsActive {
		m.deactivateSiblings(policy.Priority, "")
	}
	policy.ID = m.nextID()
	policy.CreatedAt = time.Now()
	policy.UpdatedAt = policy.CreatedAt
	stored := *policy
	m.policies[policy.ID] = &stored
	return nil
}

func (m *mockPolicyRepository) Update(_ context.Context, policy *domain.SlaPolicy) error {
	if _, ok := m.policies[policy.ID]; !ok {
		return pgx.ErrNoRows
	}
	if policy.IsActive {
		m.deactivateSiblings(policy.Priority, policy.ID)
	}
	policy.UpdatedAt = time.Now()
	stored := *policy
	m.policies[policy.ID] = &stored
	return nil
}

func (m *mockPolicyRepository) Delete(_ context.Context, id string) error {
	if _, ok := m.policies[id]; !ok {
		return pgx.ErrNoRows
	}
	if m.referenced[id] {
		return repository.ErrPolicyReferenced
	}
	delete(m.policies, id)
	return nil
}

func (m *mockPolicyRepository) GetByID(_ context.Context, id string) (*domain.SlaPolicy, error) {
	policy, ok := m.policies[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *policy
	return &copied, nil
}

func (m *mockPolicyRepository) List(_ context.Context) ([]domain.SlaPolicy, error) {
	result := make([]domain.SlaPolicy, 0, len(m.policies))
	for _, p := range m.policies {
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockPolicyRepository) Resolve(_ context.Context, priority domain.TicketPriority) (*domain.SlaPolicy, error) {
	for _, p := range m.policies {
		if p.Priority == priority && p.IsActive {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

// mockTicketRepository mirrors the conditional write semantics of the
// postgres ticket projection: first-wins event timestamps and monotonic
// breach flags rechecked against current state at write time.
type mockTicketRepository struct {
	tickets map[string]*domain.Ticket
	// markErr forces MarkBreached to fail for one ticket id.
	markErr map[string]error
}

func newMockTicketRepository() *mockTicketRepository {
	return &mockTicketRepository{
		tickets: make(map[string]*domain.Ticket),
		markErr: make(map[string]error),
	}
}

func (m *mockTicketRepository) Create(_ context.Context, ticket *domain.Ticket) (bool, error) {
	if _, ok := m.tickets[ticket.ID]; ok {
		return false, nil
	}
	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusOpen
	}
	stored := *ticket
	m.tickets[ticket.ID] = &stored
	return true, nil
}

func (m *mockTicketRepository) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	ticket, ok := m.tickets[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *ticket
	return &copied, nil
}

func (m *mockTicketRepository) RecordFirstResponse(_ context.Context, id string, at time.Time) error {
	ticket, ok := m.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if ticket.FirstResponseAt == nil {
		ticket.FirstResponseAt = &at
	}
	return nil
}

func (m *mockTicketRepository) RecordResolution(_ context.Context, id string, at time.Time) error {
	ticket, ok := m.tickets[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if ticket.ResolvedAt == nil {
		ticket.ResolvedAt = &at
		ticket.Status = domain.TicketStatusResolved
	}
	return nil
}

func (m *mockTicketRepository) MarkBreached(_ context.Context, id string, obligation domain.ObligationType, now time.Time) (bool, error) {
	if err := m.markErr[id]; err != nil {
		return false, err
	}
	ticket, ok := m.tickets[id]
	if !ok || ticket.SlaPolicyID == nil {
		return false, nil
	}
	switch obligation {
	case domain.ObligationResponse:
		if ticket.SlaResponseBreached || ticket.FirstResponseAt != nil {
			return false, nil
		}
		if ticket.SlaResponseDueAt == nil || ticket.SlaResponseDueAt.After(now) {
			return false, nil
		}
		ticket.SlaResponseBreached = true
		return true, nil
	case domain.ObligationResolution:
		if ticket.SlaResolutionBreached || ticket.ResolvedAt != nil {
			return false, nil
		}
		if ticket.SlaResolutionDueAt == nil || ticket.SlaResolutionDueAt.After(now) {
			return false, nil
		}
		ticket.SlaResolutionBreached = true
		return true, nil
	}
	return false, fmt.Errorf("unknown obligation %q", obligation)
}

func (m *mockTicketRepository) ListOverdue(_ context.Context, now time.Time, limit int) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for _, t := range m.tickets {
		if t.SlaPolicyID == nil {
			continue
		}
		responseOverdue := t.FirstResponseAt == nil && !t.SlaResponseBreached &&
			t.SlaResponseDueAt != nil && !t.SlaResponseDueAt.After(now)
		resolutionOverdue := t.ResolvedAt == nil && !t.SlaResolutionBreached &&
			t.SlaResolutionDueAt != nil && !t.SlaResolutionDueAt.After(now)
		if responseOverdue || resolutionOverdue {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func inScope(t *domain.Ticket, scope repository.TicketScope) bool {
	if scope.UserID != nil && t.UserID != *scope.UserID {
		return false
	}
	if scope.AgentID != nil && t.AssignedTo != nil && *t.AssignedTo != *scope.AgentID {
		return false
	}
	return true
}

func nearestDue(t *domain.Ticket) time.Time {
	far := time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)
	due := far
	if t.FirstResponseAt == nil && t.SlaResponseDueAt != nil && t.SlaResponseDueAt.Before(due) {
		due = *t.SlaResponseDueAt
	}
	if t.ResolvedAt == nil && t.SlaResolutionDueAt != nil && t.SlaResolutionDueAt.Before(due) {
		due = *t.SlaResolutionDueAt
	}
	return due
}

func (m *mockTicketRepository) ListAtRisk(_ context.Context, scope repository.TicketScope, now time.Time, window time.Duration, limit int) ([]domain.Ticket, error) {
	cutoff := now.Add(window)
	var result []domain.Ticket
	for _, t := range m.tickets {
		if t.SlaPolicyID == nil || !inScope(t, scope) {
			continue
		}
		responseAtRisk := t.FirstResponseAt == nil && !t.SlaResponseBreached &&
			t.SlaResponseDueAt != nil && t.SlaResponseDueAt.After(now) && !t.SlaResponseDueAt.After(cutoff)
		resolutionAtRisk := t.ResolvedAt == nil && !t.SlaResolutionBreached &&
			t.SlaResolutionDueAt != nil && t.SlaResolutionDueAt.After(now) && !t.SlaResolutionDueAt.After(cutoff)
		if responseAtRisk || resolutionAtRisk {
			result = append(result, *t)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return nearestDue(&result[i]).Before(nearestDue(&result[j]))
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *mockTicketRepository) ListBreached(_ context.Context, filter repository.BreachedFilter) ([]domain.Ticket, int, error) {
	var matched []domain.Ticket
	for _, t := range m.tickets {
		if t.SlaPolicyID == nil || !inScope(t, filter.Scope) {
			continue
		}
		keep := t.SlaResponseBreached || t.SlaResolutionBreached
		if filter.Type != nil {
			switch *filter.Type {
			case domain.ObligationResponse:
				keep = t.SlaResponseBreached
			case domain.ObligationResolution:
				keep = t.SlaResolutionBreached
			}
		}
		if keep {
			matched = append(matched, *t)
		}
	}
	// Most recently flagged first, matching the store's ORDER BY.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *mockTicketRepository) ComplianceCounts(_ context.Context, filter repository.ComplianceFilter, now time.Time, responseWindow, resolutionWindow time.Duration) ([]repository.ComplianceCountRow, error) {
	respCutoff := now.Add(responseWindow)
	resCutoff := now.Add(resolutionWindow)
	buckets := make(map[domain.TicketPriority]*repository.ComplianceCountRow)
	for _, t := range m.tickets {
		if t.SlaPolicyID == nil || !inScope(t, filter.Scope) {
			continue
		}
		if filter.From != nil && t.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && t.CreatedAt.After(*filter.To) {
			continue
		}
		row, ok := buckets[t.Priority]
		if !ok {
			row = &repository.ComplianceCountRow{Priority: t.Priority}
			buckets[t.Priority] = row
		}
		row.Total++
		if t.SlaResponseBreached {
			row.ResponseBreached++
		} else if t.FirstResponseAt == nil && t.SlaResponseDueAt != nil &&
			t.SlaResponseDueAt.After(now) && !t.SlaResponseDueAt.After(respCutoff) {
			row.ResponseAtRisk++
		}
		if t.SlaResolutionBreached {
			row.ResolutionBreached++
		} else if t.ResolvedAt == nil && t.SlaResolutionDueAt != nil &&
			t.SlaResolutionDueAt.After(now) && !t.SlaResolutionDueAt.After(resCutoff) {
			row.ResolutionAtRisk++
		}
	}
	var rows []repository.ComplianceCountRow
	for _, row := range buckets {
		rows = append(rows, *row)
	}
	return rows, nil
}

// recordingDispatcher captures published events in order.
type recordingDispatcher struct {
	published []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.published = append(d.published, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) ofType(eventType events.EventType) []events.Event {
	var out []events.Event
	for _, e := range d.published {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
