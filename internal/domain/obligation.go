package domain

import "time"

// ObligationType distinguishes the two deadlines a policy imposes.
type ObligationType string

const (
	ObligationResponse   ObligationType = "response"
	ObligationResolution ObligationType = "resolution"
)

// Valid reports whether t names a known obligation.
func (t ObligationType) Valid() bool {
	return t == ObligationResponse || t == ObligationResolution
}

// ObligationState classifies a single obligation at a point in time.
type ObligationState string

const (
	ObligationPending  ObligationState = "PENDING"
	ObligationMet      ObligationState = "MET"
	ObligationAtRisk   ObligationState = "AT_RISK"
	ObligationBreached ObligationState = "BREACHED"
)

// ClassifyObligation evaluates one obligation. A persisted breach flag is
// permanent and dominates: a late event never un-breaches. Otherwise a
// recorded event is terminal Met regardless of timing; the engine only
// flags unanswered-and-overdue, never late-but-answered. AtRisk is a
// read-time classification for obligations due within the lookahead
// window; it is never persisted.
func ClassifyObligation(dueAt, eventAt *time.Time, breached bool, now time.Time, lookahead time.Duration) ObligationState {
	if breached {
		return ObligationBreached
	}
	if eventAt != nil {
		return ObligationMet
	}
	if dueAt == nil {
		return ObligationPending
	}
	if now.After(*dueAt) {
		return ObligationBreached
	}
	if lookahead > 0 && !dueAt.After(now.Add(lookahead)) {
		return ObligationAtRisk
	}
	return ObligationPending
}

// TimeRemaining returns the signed duration until dueAt, or nil when the
// obligation has no deadline or its event is already recorded.
func TimeRemaining(dueAt, eventAt *time.Time, now time.Time) *time.Duration {
	if dueAt == nil || eventAt != nil {
		return nil
	}
	d := dueAt.Sub(now)
	return &d
}

// ResponseState classifies the ticket's response obligation.
func (t *Ticket) ResponseState(now time.Time, lookahead time.Duration) ObligationState {
	return ClassifyObligation(t.SlaResponseDueAt, t.FirstResponseAt, t.SlaResponseBreached, now, lookahead)
}

// ResolutionState classifies the ticket's resolution obligation.
func (t *Ticket) ResolutionState(now time.Time, lookahead time.Duration) ObligationState {
	return ClassifyObligation(t.SlaResolutionDueAt, t.ResolvedAt, t.SlaResolutionBreached, now, lookahead)
}
