package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-service/internal/domain"
)

// TicketScope restricts queries to the tickets a caller may see. A nil
// scope field applies no restriction; admins carry an empty scope. An
// agent sees tickets assigned to them or unassigned.
type TicketScope struct {
	UserID  *string
	AgentID *string
}

// ComplianceFilter bounds compliance aggregation.
type ComplianceFilter struct {
	Scope TicketScope
	From  *time.Time
	To    *time.Time
}

// ComplianceCountRow is one priority bucket of SLA-tracked tickets.
type ComplianceCountRow struct {
	Priority           domain.TicketPriority
	Total              int
	ResponseBreached   int
	ResolutionBreached int
	ResponseAtRisk     int
	ResolutionAtRisk   int
}

// BreachedFilter selects breached tickets for the paginated listing.
type BreachedFilter struct {
	Scope  TicketScope
	Type   *domain.ObligationType
	Limit  int
	Offset int
}

// TicketRepository encapsulates the SLA ticket projection. Event writes
// are first-wins and breach writes are monotonic conditional updates, so
// every mutation is safe to repeat and safe under concurrent writers.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	RecordFirstResponse(ctx context.Context, id string, at time.Time) error
	RecordResolution(ctx context.Context, id string, at time.Time) error
	MarkBreached(ctx context.Context, id string, obligation domain.ObligationType, now time.Time) (bool, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Ticket, error)
	ListAtRisk(ctx context.Context, scope TicketScope, now time.Time, window time.Duration, limit int) ([]domain.Ticket, error)
	ListBreached(ctx context.Context, filter BreachedFilter) ([]domain.Ticket, int, error)
	ComplianceCounts(ctx context.Context, filter ComplianceFilter, now time.Time, responseWindow, resolutionWindow time.Duration) ([]ComplianceCountRow, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `t.id, t.external_key, t.user_id, t.assigned_to, t.status, t.priority,
               t.created_at, t.updated_at, t.sla_policy_id, p.name,
               t.sla_response_due_at, t.sla_resolution_due_at,
               t.first_response_at, t.resolved_at,
               t.sla_response_breached, t.sla_resolution_breached`

const ticketFrom = ` FROM tickets t LEFT JOIN sla_policies p ON p.id = t.sla_policy_id`

// Create inserts the projection row. The ticket id comes from the owning
// CRUD subsystem; a repeated delivery of the same creation event is a
// no-op. Returns whether this call inserted the row.
func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) (bool, error) {
	const query = `
        INSERT INTO tickets (id, external_key, user_id, assigned_to, status, priority, created_at,
                             sla_policy_id, sla_response_due_at, sla_resolution_due_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (id) DO NOTHING`
	cmd, err := r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.ExternalKey,
		ticket.UserID,
		ticket.AssignedTo,
		ticket.Status,
		ticket.Priority,
		ticket.CreatedAt,
		ticket.SlaPolicyID,
		ticket.SlaResponseDueAt,
		ticket.SlaResolutionDueAt,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ticketFrom + ` WHERE t.id=$1`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.ExternalKey,
		&ticket.UserID,
		&ticket.AssignedTo,
		&ticket.Status,
		&ticket.Priority,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.SlaPolicyID,
		&ticket.SlaName,
		&ticket.SlaResponseDueAt,
		&ticket.SlaResolutionDueAt,
		&ticket.FirstResponseAt,
		&ticket.ResolvedAt,
		&ticket.SlaResponseBreached,
		&ticket.SlaResolutionBreached,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// RecordFirstResponse sets first_response_at once; later calls keep the
// earliest recorded value.
func (r *ticketRepository) RecordFirstResponse(ctx context.Context, id string, at time.Time) error {
	const query = `
        UPDATE tickets SET first_response_at=$2, updated_at=NOW()
        WHERE id=$1 AND first_response_at IS NULL`
	_, err := r.pool.Exec(ctx, query, id, at)
	return err
}

// RecordResolution sets resolved_at once.
func (r *ticketRepository) RecordResolution(ctx context.Context, id string, at time.Time) error {
	const query = `
        UPDATE tickets SET resolved_at=$2, status=$3, updated_at=NOW()
        WHERE id=$1 AND resolved_at IS NULL`
	_, err := r.pool.Exec(ctx, query, id, at, domain.TicketStatusResolved)
	return err
}

// MarkBreached flips one breach flag from false to true, and only when
// the obligation is still unmet and overdue at the given instant. The
// worst outcome of a concurrent race is a write of true over true, so the
// update needs no lock. Returns whether this call made the transition.
func (r *ticketRepository) MarkBreached(ctx context.Context, id string, obligation domain.ObligationType, now time.Time) (bool, error) {
	var query string
	switch obligation {
	case domain.ObligationResponse:
		query = `
            UPDATE tickets SET sla_response_breached=TRUE, updated_at=NOW()
            WHERE id=$1 AND sla_policy_id IS NOT NULL AND sla_response_breached=FALSE
              AND first_response_at IS NULL AND sla_response_due_at <= $2`
	case domain.ObligationResolution:
		query = `
            UPDATE tickets SET sla_resolution_breached=TRUE, updated_at=NOW()
            WHERE id=$1 AND sla_policy_id IS NOT NULL AND sla_resolution_breached=FALSE
              AND resolved_at IS NULL AND sla_resolution_due_at <= $2`
	default:
		return false, fmt.Errorf("unknown obligation %q", obligation)
	}
	cmd, err := r.pool.Exec(ctx, query, id, now)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

// ListOverdue returns tracked tickets with at least one unmet obligation
// past due and not yet flagged. This is the sweep work set.
func (r *ticketRepository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + ticketColumns + ticketFrom + `
        WHERE t.sla_policy_id IS NOT NULL AND (
            (t.first_response_at IS NULL AND t.sla_response_breached=FALSE AND t.sla_response_due_at <= $1)
            OR (t.resolved_at IS NULL AND t.sla_resolution_breached=FALSE AND t.sla_resolution_due_at <= $1))
        ORDER BY t.created_at
        LIMIT ` + fmt.Sprintf("%d", limit)
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// ListAtRisk returns tickets with an unmet, unbreached obligation due
// within the window, soonest deadline first. An obligation whose event is
// already recorded sorts as infinitely far.
func (r *ticketRepository) ListAtRisk(ctx context.Context, scope TicketScope, now time.Time, window time.Duration, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 50
	}
	cutoff := now.Add(window)

	clauses, args := scopeClauses(scope, nil)
	args = append(args, now)
	nowPh := len(args)
	args = append(args, cutoff)
	cutoffPh := len(args)

	clauses = append(clauses, "t.sla_policy_id IS NOT NULL")
	clauses = append(clauses, fmt.Sprintf(`(
        (t.first_response_at IS NULL AND t.sla_response_breached=FALSE AND t.sla_response_due_at > $%d AND t.sla_response_due_at <= $%d)
        OR (t.resolved_at IS NULL AND t.sla_resolution_breached=FALSE AND t.sla_resolution_due_at > $%d AND t.sla_resolution_due_at <= $%d))`,
		nowPh, cutoffPh, nowPh, cutoffPh))

	query := fmt.Sprintf(`SELECT %s%s WHERE %s
        ORDER BY LEAST(
            CASE WHEN t.first_response_at IS NULL AND t.sla_response_due_at IS NOT NULL THEN t.sla_response_due_at ELSE 'infinity'::timestamptz END,
            CASE WHEN t.resolved_at IS NULL AND t.sla_resolution_due_at IS NOT NULL THEN t.sla_resolution_due_at ELSE 'infinity'::timestamptz END)
        LIMIT %d`,
		ticketColumns, ticketFrom, strings.Join(clauses, " AND "), limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

// ListBreached pages through tickets with a persisted breach flag,
// optionally restricted to one obligation type. Returns the page and the
// total match count.
func (r *ticketRepository) ListBreached(ctx context.Context, filter BreachedFilter) ([]domain.Ticket, int, error) {
	clauses, args := scopeClauses(filter.Scope, nil)
	clauses = append(clauses, "t.sla_policy_id IS NOT NULL")

	breachClause := "(t.sla_response_breached=TRUE OR t.sla_resolution_breached=TRUE)"
	if filter.Type != nil {
		switch *filter.Type {
		case domain.ObligationResponse:
			breachClause = "t.sla_response_breached=TRUE"
		case domain.ObligationResolution:
			breachClause = "t.sla_resolution_breached=TRUE"
		}
	}
	clauses = append(clauses, breachClause)

	where := strings.Join(clauses, " AND ")

	var total int
	countQuery := `SELECT COUNT(*)` + ticketFrom + ` WHERE ` + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s%s WHERE %s ORDER BY t.updated_at DESC LIMIT %d OFFSET %d`,
		ticketColumns, ticketFrom, where, limit, offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

// ComplianceCounts aggregates tracked tickets per priority within the
// scope and creation date range. At-risk counts use the supplied
// per-obligation lookahead windows.
func (r *ticketRepository) ComplianceCounts(ctx context.Context, filter ComplianceFilter, now time.Time, responseWindow, resolutionWindow time.Duration) ([]ComplianceCountRow, error) {
	clauses, args := scopeClauses(filter.Scope, nil)
	clauses = append(clauses, "t.sla_policy_id IS NOT NULL")

	if filter.From != nil {
		args = append(args, *filter.From)
		clauses = append(clauses, fmt.Sprintf("t.created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		clauses = append(clauses, fmt.Sprintf("t.created_at <= $%d", len(args)))
	}

	args = append(args, now)
	nowPh := len(args)
	args = append(args, now.Add(responseWindow))
	respCutoffPh := len(args)
	args = append(args, now.Add(resolutionWindow))
	resCutoffPh := len(args)

	query := fmt.Sprintf(`
        SELECT t.priority,
               COUNT(*),
               COUNT(*) FILTER (WHERE t.sla_response_breached),
               COUNT(*) FILTER (WHERE t.sla_resolution_breached),
               COUNT(*) FILTER (WHERE t.sla_response_breached=FALSE AND t.first_response_at IS NULL
                                  AND t.sla_response_due_at > $%d AND t.sla_response_due_at <= $%d),
               COUNT(*) FILTER (WHERE t.sla_resolution_breached=FALSE AND t.resolved_at IS NULL
                                  AND t.sla_resolution_due_at > $%d AND t.sla_resolution_due_at <= $%d)
        FROM tickets t
        WHERE %s
        GROUP BY t.priority`,
		nowPh, respCutoffPh, nowPh, resCutoffPh, strings.Join(clauses, " AND "))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ComplianceCountRow
	for rows.Next() {
		var row ComplianceCountRow
		if err := rows.Scan(
			&row.Priority,
			&row.Total,
			&row.ResponseBreached,
			&row.ResolutionBreached,
			&row.ResponseAtRisk,
			&row.ResolutionAtRisk,
		); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func scopeClauses(scope TicketScope, args []any) ([]string, []any) {
	clauses := []string{"1=1"}
	if scope.UserID != nil {
		args = append(args, *scope.UserID)
		clauses = append(clauses, fmt.Sprintf("t.user_id=$%d", len(args)))
	}
	if scope.AgentID != nil {
		args = append(args, *scope.AgentID)
		clauses = append(clauses, fmt.Sprintf("(t.assigned_to=$%d OR t.assigned_to IS NULL)", len(args)))
	}
	return clauses, args
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.ExternalKey,
			&ticket.UserID,
			&ticket.AssignedTo,
			&ticket.Status,
			&ticket.Priority,
			&ticket.CreatedAt,
			&ticket.UpdatedAt,
			&ticket.SlaPolicyID,
			&ticket.SlaName,
			&ticket.SlaResponseDueAt,
			&ticket.SlaResolutionDueAt,
			&ticket.FirstResponseAt,
			&ticket.ResolvedAt,
			&ticket.SlaResponseBreached,
			&ticket.SlaResolutionBreached,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
