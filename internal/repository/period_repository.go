package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jengahub/be-gl-governance/internal/apperrors"
	"github.com/jengahub/be-gl-governance/internal/database"
)

// PeriodRepository persists fiscal periods.
type PeriodRepository struct {
	db *database.DB
}

// NewPeriodRepository creates a new PeriodRepository.
func NewPeriodRepository(db *database.DB) *PeriodRepository {
	return &PeriodRepository{db: db}
}

// Create inserts a new fiscal period.
func (r *PeriodRepository) CreatePeriod(ctx context.Context, period *FiscalPeriod) error {
	query := `
		INSERT INTO fiscal_periods
		    (tenant_id, name, start_date, end_date, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		period.TenantID,
		period.Name,
		period.StartDate,
		period.EndDate,
		period.Status,
	).Scan(&period.ID, &period.CreatedAt, &period.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create fiscal period")
	}
	return nil
}

// GetByID retrieves a period within a tenant.
func (r *PeriodRepository) GetPeriodByID(ctx context.Context, tenantID, id string) (*FiscalPeriod, error) {
	query := `
		SELECT id, tenant_id, name, start_date, end_date, status, created_at, updated_at
		FROM fiscal_periods
		WHERE tenant_id = $1 AND id = $2
	`

	period, err := r.scanPeriod(r.db.QueryRow(ctx, query, tenantID, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("fiscal_period", id)
	}
	return period, err
}

// FindCovering returns the period containing date, or nil when none exists.
func (r *PeriodRepository) FindCovering(ctx context.Context, tenantID string, date time.Time) (*FiscalPeriod, error) {
	query := `
		SELECT id, tenant_id, name, start_date, end_date, status, created_at, updated_at
		FROM fiscal_periods
		WHERE tenant_id = $1
		  AND start_date <= $2
		  AND end_date >= $2
		ORDER BY start_date DESC
		LIMIT 1
	`

	period, err := r.scanPeriod(r.db.QueryRow(ctx, query, tenantID, date))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return period, err
}

// List returns a tenant's periods ordered by start date.
func (r *PeriodRepository) ListPeriods(ctx context.Context, tenantID string) ([]*FiscalPeriod, error) {
	query := `
		SELECT id, tenant_id, name, start_date, end_date, status, created_at, updated_at
		FROM fiscal_periods
		WHERE tenant_id = $1
		ORDER BY start_date ASC
	`

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list fiscal periods")
	}
	defer rows.Close()

	var periods []*FiscalPeriod
	for rows.Next() {
		period, err := r.scanPeriod(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan fiscal period")
		}
		periods = append(periods, period)
	}
	return periods, rows.Err()
}

// UpdateStatus opens or closes a period.
func (r *PeriodRepository) UpdatePeriodStatus(ctx context.Context, tenantID, id, status string) error {
	query := `
		UPDATE fiscal_periods
		SET status     = $3,
		    updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, tenantID, id, status).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.NotFound("fiscal_period", id)
	}
	return err
}

// ── scan helper ───────────────────────────────────────────────────────────────

type periodScanner interface {
	Scan(dest ...any) error
}

func (r *PeriodRepository) scanPeriod(row periodScanner) (*FiscalPeriod, error) {
	period := &FiscalPeriod{}
	err := row.Scan(
		&period.ID,
		&period.TenantID,
		&period.Name,
		&period.StartDate,
		&period.EndDate,
		&period.Status,
		&period.CreatedAt,
		&period.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return period, nil
}

var _ PeriodStore = (*PeriodRepository)(nil)
