package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/jengahub/be-gl-governance/internal/apperrors"
	"github.com/jengahub/be-gl-governance/internal/database"
)

// BudgetRepository persists ceiling allocations. Actual spend is never stored
// here; the registry recomputes it from journal lines on every read.
type BudgetRepository struct {
	db *database.DB
}

// NewBudgetRepository creates a new BudgetRepository.
func NewBudgetRepository(db *database.DB) *BudgetRepository {
	return &BudgetRepository{db: db}
}

// Upsert creates or replaces the allocation for (tenant, period, account).
func (r *BudgetRepository) UpsertAllocation(ctx context.Context, allocation *BudgetAllocation) error {
	query := `
		INSERT INTO budget_allocations
		    (tenant_id, period_id, account_id, limit_amount)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant_id, period_id, account_id)
		DO UPDATE SET limit_amount = EXCLUDED.limit_amount,
		              updated_at   = NOW()
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		allocation.TenantID,
		allocation.PeriodID,
		allocation.AccountID,
		allocation.Limit,
	).Scan(&allocation.ID, &allocation.CreatedAt, &allocation.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to upsert budget allocation")
	}
	return nil
}

// GetAllocation retrieves one allocation.
func (r *BudgetRepository) GetAllocation(ctx context.Context, tenantID, periodID, accountID string) (*BudgetAllocation, error) {
	query := `
		SELECT id, tenant_id, period_id, account_id, limit_amount, created_at, updated_at
		FROM budget_allocations
		WHERE tenant_id = $1 AND period_id = $2 AND account_id = $3
	`

	allocation := &BudgetAllocation{}
	err := r.db.QueryRow(ctx, query, tenantID, periodID, accountID).Scan(
		&allocation.ID,
		&allocation.TenantID,
		&allocation.PeriodID,
		&allocation.AccountID,
		&allocation.Limit,
		&allocation.CreatedAt,
		&allocation.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("budget_allocation", accountID)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get budget allocation")
	}
	return allocation, nil
}

// ListByPeriod returns all allocations in a fiscal period.
func (r *BudgetRepository) ListAllocationsByPeriod(ctx context.Context, tenantID, periodID string) ([]*BudgetAllocation, error) {
	query := `
		SELECT id, tenant_id, period_id, account_id, limit_amount, created_at, updated_at
		FROM budget_allocations
		WHERE tenant_id = $1 AND period_id = $2
		ORDER BY account_id ASC
	`

	rows, err := r.db.Query(ctx, query, tenantID, periodID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list budget allocations")
	}
	defer rows.Close()

	var allocations []*BudgetAllocation
	for rows.Next() {
		allocation := &BudgetAllocation{}
		err := rows.Scan(
			&allocation.ID,
			&allocation.TenantID,
			&allocation.PeriodID,
			&allocation.AccountID,
			&allocation.Limit,
			&allocation.CreatedAt,
			&allocation.UpdatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan budget allocation")
		}
		allocations = append(allocations, allocation)
	}
	return allocations, rows.Err()
}

var _ BudgetStore = (*BudgetRepository)(nil)
