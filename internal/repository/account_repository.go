package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/jengahub/be-gl-governance/internal/apperrors"
	"github.com/jengahub/be-gl-governance/internal/database"
)

// AccountRepository handles chart-of-accounts rows. Balance and version are
// written only by JournalRepository.Commit.
type AccountRepository struct {
	db *database.DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account with a zero balance.
func (r *AccountRepository) CreateAccount(ctx context.Context, account *Account) error {
	query := `
		INSERT INTO accounts
		    (tenant_id, code, name, account_type, subtype,
		     balance, is_active, is_tracked_for_budget, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		account.TenantID,
		account.Code,
		account.Name,
		account.Type,
		account.Subtype,
		account.Balance,
		account.IsActive,
		account.IsTrackedForBudget,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create account")
	}
	return nil
}

// GetByID retrieves an account within a tenant.
func (r *AccountRepository) GetAccountByID(ctx context.Context, tenantID, id string) (*Account, error) {
	query := `
		SELECT id, tenant_id, code, name, account_type, subtype,
		       balance, is_active, is_tracked_for_budget, version,
		       created_at, updated_at
		FROM accounts
		WHERE tenant_id = $1 AND id = $2
	`

	account, err := r.scanAccount(r.db.QueryRow(ctx, query, tenantID, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("account", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get account")
	}
	return account, nil
}

// GetByCode retrieves an account by its tenant-unique code.
func (r *AccountRepository) GetAccountByCode(ctx context.Context, tenantID, code string) (*Account, error) {
	query := `
		SELECT id, tenant_id, code, name, account_type, subtype,
		       balance, is_active, is_tracked_for_budget, version,
		       created_at, updated_at
		FROM accounts
		WHERE tenant_id = $1 AND code = $2
	`

	account, err := r.scanAccount(r.db.QueryRow(ctx, query, tenantID, code))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("account", code)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get account")
	}
	return account, nil
}

// List returns a tenant's accounts ordered by code.
func (r *AccountRepository) ListAccounts(ctx context.Context, tenantID string, activeOnly bool) ([]*Account, error) {
	query := `
		SELECT id, tenant_id, code, name, account_type, subtype,
		       balance, is_active, is_tracked_for_budget, version,
		       created_at, updated_at
		FROM accounts
		WHERE tenant_id = $1
	`
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY code ASC"

	rows, err := r.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list accounts")
	}
	defer rows.Close()

	var accounts []*Account
	for rows.Next() {
		account, err := r.scanAccount(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan account")
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// SetActive toggles an account's active flag. The version bump invalidates
// any in-flight commit that read the account before the toggle.
func (r *AccountRepository) SetAccountActive(ctx context.Context, tenantID, id string, active bool) error {
	query := `
		UPDATE accounts
		SET is_active  = $3,
		    version    = version + 1,
		    updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, tenantID, id, active).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperrors.NotFound("account", id)
	}
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to update account")
	}
	return nil
}

// ── scan helper ───────────────────────────────────────────────────────────────

type accountScanner interface {
	Scan(dest ...any) error
}

func (r *AccountRepository) scanAccount(row accountScanner) (*Account, error) {
	account := &Account{}
	err := row.Scan(
		&account.ID,
		&account.TenantID,
		&account.Code,
		&account.Name,
		&account.Type,
		&account.Subtype,
		&account.Balance,
		&account.IsActive,
		&account.IsTrackedForBudget,
		&account.Version,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return account, nil
}

var _ AccountStore = (*AccountRepository)(nil)
