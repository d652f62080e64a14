package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

func seedPolicy(t *testing.T, repo *mockPolicyRepository, priority domain.TicketPriority, response, resolution int) *domain.SlaPolicy {
	t.Helper()
	policy := &domain.SlaPolicy{
		Name:              string(priority) + " tier",
		Priority:          priority,
		ResponseMinutes:   response,
		ResolutionMinutes: resolution,
		IsActive:          true,
	}
	if err := repo.Create(context.Background(), policy); err != nil {
		t.Fatalf("seed policy: %v", err)
	}
	return policy
}

func newDeadlineFixture(t *testing.T) (*DeadlineService, *mockPolicyRepository, *mockTicketRepository, *recordingDispatcher) {
	t.Helper()
	policies := newMockPolicyRepository()
	tickets := newMockTicketRepository()
	dispatcher := &recordingDispatcher{}
	svc := NewDeadlineService(DeadlineDependencies{
		PolicyRepo: policies,
		TicketRepo: tickets,
		Dispatcher: dispatcher,
	})
	return svc, policies, tickets, dispatcher
}

func TestRegisterTicketComputesDueTimestamps(t *testing.T) {
	t.Parallel()
	svc, policies, _, dispatcher := newDeadlineFixture(t)
	policy := seedPolicy(t, policies, domain.PriorityUrgent, 30, 240)

	createdAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ticket, err := svc.RegisterTicket(context.Background(), TicketCreatedInput{
		TicketID:  "t-1",
		UserID:    "u-1",
		Priority:  domain.PriorityUrgent,
		CreatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if !ticket.Tracked() {
		t.Fatal("ticket not tracked despite active policy")
	}
	if *ticket.SlaPolicyID != policy.ID {
		t.Errorf("policy id = %s, want %s", *ticket.SlaPolicyID, policy.ID)
	}
	wantResponse := createdAt.Add(30 * time.Minute)
	if !ticket.SlaResponseDueAt.Equal(wantResponse) {
		t.Errorf("response due = %v, want %v", ticket.SlaResponseDueAt, wantResponse)
	}
	wantResolution := createdAt.Add(240 * time.Minute)
	if !ticket.SlaResolutionDueAt.Equal(wantResolution) {
		t.Errorf("resolution due = %v, want %v", ticket.SlaResolutionDueAt, wantResolution)
	}

	assigned := dispatcher.ofType(events.EventSlaAssigned)
	if len(assigned) != 1 {
		t.Fatalf("assigned events = %d, want 1", len(assigned))
	}
	payload, ok := assigned[0].Payload.(events.SlaAssignedPayload)
	if !ok {
		t.Fatalf("payload type %T", assigned[0].Payload)
	}
	if payload.PolicyID != policy.ID || !payload.ResponseDueAt.Equal(wantResponse) {
		t.Errorf("payload = %+v", payload)
	}
}

func TestRegisterTicketWithoutActivePolicy(t *testing.T) {
	t.Parallel()
	svc, _, _, dispatcher := newDeadlineFixture(t)

	ticket, err := svc.RegisterTicket(context.Background(), TicketCreatedInput{
		TicketID:  "t-1",
		UserID:    "u-1",
		Priority:  domain.PriorityLow,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if ticket.Tracked() {
		t.Error("ticket tracked with no active policy for its priority")
	}
	if ticket.SlaResponseDueAt != nil || ticket.SlaResolutionDueAt != nil {
		t.Error("untracked ticket carries due timestamps")
	}
	if len(dispatcher.published) != 0 {
		t.Errorf("published %d events, want 0", len(dispatcher.published))
	}
}

func TestRegisterTicketRedeliveryKeepsOriginalDeadlines(t *testing.T) {
	t.Parallel()
	svc, policies, tickets, dispatcher := newDeadlineFixture(t)
	seedPolicy(t, policies, domain.PriorityHigh, 60, 480)

	createdAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	input := TicketCreatedInput{
		TicketID:  "t-1",
		UserID:    "u-1",
		Priority:  domain.PriorityHigh,
		CreatedAt: createdAt,
	}
	if _, err := svc.RegisterTicket(context.Background(), input); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	// A policy edit between deliveries must not move the stored deadlines,
	// and the redelivery response must echo the persisted pair, not a pair
	// recomputed from the now-active policy.
	seedPolicy(t, policies, domain.PriorityHigh, 10, 20)
	redelivered, err := svc.RegisterTicket(context.Background(), input)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	stored, err := tickets.GetByID(context.Background(), "t-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := createdAt.Add(60 * time.Minute)
	if !stored.SlaResponseDueAt.Equal(want) {
		t.Errorf("stored response due = %v, want %v", stored.SlaResponseDueAt, want)
	}
	if !redelivered.SlaResponseDueAt.Equal(*stored.SlaResponseDueAt) {
		t.Errorf("redelivery response due = %v, stored = %v",
			redelivered.SlaResponseDueAt, stored.SlaResponseDueAt)
	}
	if !redelivered.SlaResolutionDueAt.Equal(*stored.SlaResolutionDueAt) {
		t.Errorf("redelivery resolution due = %v, stored = %v",
			redelivered.SlaResolutionDueAt, stored.SlaResolutionDueAt)
	}
	if got := dispatcher.ofType(events.EventSlaAssigned); len(got) != 1 {
		t.Errorf("assigned events = %d, want 1 (none on redelivery)", len(got))
	}
}

func TestRegisterTicketValidation(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newDeadlineFixture(t)
	createdAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		input TicketCreatedInput
	}{
		{"missing ticket id", TicketCreatedInput{UserID: "u-1", Priority: domain.PriorityLow, CreatedAt: createdAt}},
		{"missing user id", TicketCreatedInput{TicketID: "t-1", Priority: domain.PriorityLow, CreatedAt: createdAt}},
		{"unknown priority", TicketCreatedInput{TicketID: "t-1", UserID: "u-1", Priority: "blocker", CreatedAt: createdAt}},
		{"zero created_at", TicketCreatedInput{TicketID: "t-1", UserID: "u-1", Priority: domain.PriorityLow}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := svc.RegisterTicket(context.Background(), tc.input)
			var derr *apperrors.DomainError
			if !errors.As(err, &derr) || derr.Code != "VALIDATION_FAILED" {
				t.Fatalf("expected VALIDATION_FAILED, got %v", err)
			}
		})
	}
}

func TestRecordFirstResponseFirstWriteWins(t *testing.T) {
	t.Parallel()
	svc, policies, _, _ := newDeadlineFixture(t)
	seedPolicy(t, policies, domain.PriorityMedium, 120, 1440)

	createdAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.RegisterTicket(context.Background(), TicketCreatedInput{
		TicketID: "t-1", UserID: "u-1", Priority: domain.PriorityMedium, CreatedAt: createdAt,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	first := createdAt.Add(10 * time.Minute)
	ticket, err := svc.RecordFirstResponse(context.Background(), "t-1", first)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !ticket.FirstResponseAt.Equal(first) {
		t.Fatalf("first response = %v, want %v", ticket.FirstResponseAt, first)
	}

	ticket, err = svc.RecordFirstResponse(context.Background(), "t-1", createdAt.Add(20*time.Minute))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !ticket.FirstResponseAt.Equal(first) {
		t.Errorf("replay moved first response to %v, want %v kept", ticket.FirstResponseAt, first)
	}
}

func TestRecordResolutionSetsStatus(t *testing.T) {
	t.Parallel()
	svc, policies, _, _ := newDeadlineFixture(t)
	seedPolicy(t, policies, domain.PriorityMedium, 120, 1440)

	createdAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := svc.RegisterTicket(context.Background(), TicketCreatedInput{
		TicketID: "t-1", UserID: "u-1", Priority: domain.PriorityMedium, CreatedAt: createdAt,
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	ticket, err := svc.RecordResolution(context.Background(), "t-1", createdAt.Add(time.Hour))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if ticket.Status != domain.TicketStatusResolved {
		t.Errorf("status = %s, want %s", ticket.Status, domain.TicketStatusResolved)
	}
	if ticket.ResolvedAt == nil {
		t.Error("resolved_at not set")
	}
}

func TestRecordEventUnknownTicket(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newDeadlineFixture(t)

	_, err := svc.RecordFirstResponse(context.Background(), "ghost", time.Now())
	var derr *apperrors.DomainError
	if !errors.As(err, &derr) || derr.Code != "NOT_FOUND" {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestRecordEventZeroTimestampUsesClock(t *testing.T) {
	t.Parallel()
	svc, policies, _, _ := newDeadlineFixture(t)
	seedPolicy(t, policies, domain.PriorityMedium, 120, 1440)

	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	if _, err := svc.RegisterTicket(context.Background(), TicketCreatedInput{
		TicketID: "t-1", UserID: "u-1", Priority: domain.PriorityMedium,
		CreatedAt: fixed.Add(-time.Hour),
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	ticket, err := svc.RecordFirstResponse(context.Background(), "t-1", time.Time{})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !ticket.FirstResponseAt.Equal(fixed) {
		t.Errorf("first response = %v, want clock time %v", ticket.FirstResponseAt, fixed)
	}
}
