package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/sla-service/internal/domain"
)

// ErrPolicyReferenced signals a delete attempt on a policy that tickets
// still reference. Deleting it would orphan due-date provenance.
var ErrPolicyReferenced = errors.New("policy referenced by tickets")

// PolicyRepository encapsulates SLA policy persistence. Activation runs
// inside a transaction so two concurrent activations for one priority
// cannot both commit active; a partial unique index on (priority) WHERE
// is_active backs the invariant at the store level.
type PolicyRepository interface {
	Create(ctx context.Context, policy *domain.SlaPolicy) error
	Update(ctx context.Context, policy *domain.SlaPolicy) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.SlaPolicy, error)
	List(ctx context.Context) ([]domain.SlaPolicy, error)
	Resolve(ctx context.Context, priority domain.TicketPriority) (*domain.SlaPolicy, error)
}

type policyRepository struct {
	pool *pgxpool.Pool
}

// NewPolicyRepository instantiates repository.
func NewPolicyRepository(pool *pgxpool.Pool) PolicyRepository {
	return &policyRepository{pool: pool}
}

const policyColumns = `id, name, priority, response_minutes, resolution_minutes, business_hours_only, is_active, created_at, updated_at`

func (r *policyRepository) Create(ctx context.Context, policy *domain.SlaPolicy) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if policy.IsActive {
		if err := deactivateSiblings(ctx, tx, policy.Priority, ""); err != nil {
			return err
		}
	}

	const query = `
        INSERT INTO sla_policies (name, priority, response_minutes, resolution_minutes, business_hours_only, is_active)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, query,
		policy.Name,
		policy.Priority,
		policy.ResponseMinutes,
		policy.ResolutionMinutes,
		policy.BusinessHoursOnly,
		policy.IsActive,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *policyRepository) Update(ctx context.Context, policy *domain.SlaPolicy) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if policy.IsActive {
		if err := deactivateSiblings(ctx, tx, policy.Priority, policy.ID); err != nil {
			return err
		}
	}

	const query = `
        UPDATE sla_policies SET name=$1, priority=$2, response_minutes=$3, resolution_minutes=$4,
            business_hours_only=$5, is_active=$6, updated_at=NOW()
        WHERE id=$7
        RETURNING updated_at`
	if err := tx.QueryRow(ctx, query,
		policy.Name,
		policy.Priority,
		policy.ResponseMinutes,
		policy.ResolutionMinutes,
		policy.BusinessHoursOnly,
		policy.IsActive,
		policy.ID,
	).Scan(&policy.UpdatedAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// deactivateSiblings clears every other active policy for the priority.
// NULLIF folds the create path's empty exclude id to NULL before the uuid
// cast, so the predicate never depends on subexpression evaluation order.
func deactivateSiblings(ctx context.Context, tx pgx.Tx, priority domain.TicketPriority, excludeID string) error {
	const query = `
        UPDATE sla_policies SET is_active=FALSE, updated_at=NOW()
        WHERE priority=$1 AND is_active=TRUE AND id IS DISTINCT FROM NULLIF($2, '')::uuid`
	_, err := tx.Exec(ctx, query, priority, excludeID)
	return err
}

func (r *policyRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var refs int64
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE sla_policy_id=$1`, id).Scan(&refs); err != nil {
		return err
	}
	if refs > 0 {
		return ErrPolicyReferenced
	}

	cmd, err := tx.Exec(ctx, `DELETE FROM sla_policies WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	return tx.Commit(ctx)
}

func (r *policyRepository) GetByID(ctx context.Context, id string) (*domain.SlaPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sla_policies WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

// Resolve returns the currently active policy for a priority, or nil when
// no active policy exists (tickets of that priority are then untracked).
func (r *policyRepository) Resolve(ctx context.Context, priority domain.TicketPriority) (*domain.SlaPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sla_policies WHERE priority=$1 AND is_active=TRUE`
	policy, err := r.fetchSingle(ctx, query, priority)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return policy, nil
}

func (r *policyRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.SlaPolicy, error) {
	var policy domain.SlaPolicy
	if err := r.pool.QueryRow(ctx, query, arg).Scan(
		&policy.ID,
		&policy.Name,
		&policy.Priority,
		&policy.ResponseMinutes,
		&policy.ResolutionMinutes,
		&policy.BusinessHoursOnly,
		&policy.IsActive,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *policyRepository) List(ctx context.Context) ([]domain.SlaPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sla_policies ORDER BY priority, created_at`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SlaPolicy
	for rows.Next() {
		var policy domain.SlaPolicy
		if err := rows.Scan(
			&policy.ID,
			&policy.Name,
			&policy.Priority,
			&policy.ResponseMinutes,
			&policy.ResolutionMinutes,
			&policy.BusinessHoursOnly,
			&policy.IsActive,
			&policy.CreatedAt,
			&policy.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, policy)
	}
	return result, rows.Err()
}
