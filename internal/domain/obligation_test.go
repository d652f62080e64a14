package domain

import (
	"testing"
	"time"
)

func tp(t time.Time) *time.Time { return &t }

func TestClassifyObligation(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	lookahead := 30 * time.Minute

	cases := []struct {
		name     string
		dueAt    *time.Time
		eventAt  *time.Time
		breached bool
		want     ObligationState
	}{
		{
			name: "untracked obligation pending",
			want: ObligationPending,
		},
		{
			name:  "due beyond lookahead pending",
			dueAt: tp(now.Add(2 * time.Hour)),
			want:  ObligationPending,
		},
		{
			name:  "due within lookahead at risk",
			dueAt: tp(now.Add(10 * time.Minute)),
			want:  ObligationAtRisk,
		},
		{
			name:  "due exactly at lookahead boundary at risk",
			dueAt: tp(now.Add(lookahead)),
			want:  ObligationAtRisk,
		},
		{
			name:  "due exactly now not yet breached",
			dueAt: tp(now),
			want:  ObligationAtRisk,
		},
		{
			name:  "past due breached",
			dueAt: tp(now.Add(-time.Minute)),
			want:  ObligationBreached,
		},
		{
			name:    "event recorded met",
			dueAt:   tp(now.Add(-time.Hour)),
			eventAt: tp(now.Add(-90 * time.Minute)),
			want:    ObligationMet,
		},
		{
			name:    "late event still met when never flagged",
			dueAt:   tp(now.Add(-2 * time.Hour)),
			eventAt: tp(now.Add(-time.Hour)),
			want:    ObligationMet,
		},
		{
			name:     "persisted flag dominates late event",
			dueAt:    tp(now.Add(-2 * time.Hour)),
			eventAt:  tp(now.Add(-time.Hour)),
			breached: true,
			want:     ObligationBreached,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := ClassifyObligation(tc.dueAt, tc.eventAt, tc.breached, now, lookahead)
			if got != tc.want {
				t.Errorf("ClassifyObligation() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestClassifyObligationZeroLookahead(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	got := ClassifyObligation(tp(now.Add(time.Second)), nil, false, now, 0)
	if got != ObligationPending {
		t.Errorf("due soon with zero lookahead = %s, want %s", got, ObligationPending)
	}
}

func TestTimeRemaining(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	if got := TimeRemaining(nil, nil, now); got != nil {
		t.Errorf("no deadline: got %v, want nil", got)
	}
	if got := TimeRemaining(tp(now.Add(time.Hour)), tp(now), now); got != nil {
		t.Errorf("met obligation: got %v, want nil", got)
	}
	if got := TimeRemaining(tp(now.Add(time.Hour)), nil, now); got == nil || *got != time.Hour {
		t.Errorf("future deadline: got %v, want 1h", got)
	}
	if got := TimeRemaining(tp(now.Add(-15*time.Minute)), nil, now); got == nil || *got != -15*time.Minute {
		t.Errorf("overdue deadline: got %v, want -15m", got)
	}
}

func TestTicketObligationStates(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	policyID := "policy-1"

	ticket := &Ticket{
		ID:                 "t-1",
		SlaPolicyID:        &policyID,
		SlaResponseDueAt:   tp(now.Add(-time.Hour)),
		SlaResolutionDueAt: tp(now.Add(3 * time.Hour)),
		FirstResponseAt:    tp(now.Add(-2 * time.Hour)),
	}
	if got := ticket.ResponseState(now, 0); got != ObligationMet {
		t.Errorf("response state = %s, want %s", got, ObligationMet)
	}
	if got := ticket.ResolutionState(now, 0); got != ObligationPending {
		t.Errorf("resolution state = %s, want %s", got, ObligationPending)
	}
	if !ticket.Tracked() {
		t.Error("ticket with policy id not tracked")
	}
	if (&Ticket{}).Tracked() {
		t.Error("ticket without policy id tracked")
	}
}
