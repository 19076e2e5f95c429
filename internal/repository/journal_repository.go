package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/jengahub/be-gl-governance/internal/apperrors"
	"github.com/jengahub/be-gl-governance/internal/database"
)

// JournalRepository persists journal entries and is the sole writer of
// account balances. Commit runs entry insert, line inserts and balance
// updates in a single transaction.
type JournalRepository struct {
	db *database.DB
}

// NewJournalRepository creates a new JournalRepository.
func NewJournalRepository(db *database.DB) *JournalRepository {
	return &JournalRepository{db: db}
}

// Commit inserts the entry and its lines, then applies every balance delta
// with a version precondition. A stale version rolls the whole transaction
// back with ErrCodeConflict so the posting engine can re-read and retry.
func (r *JournalRepository) Commit(ctx context.Context, entry *JournalEntry, deltas []BalanceDelta) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		entryQuery := `
			INSERT INTO journal_entries
			    (tenant_id, description, reference, effective_date, reversal_of)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id, created_at
		`

		err := tx.QueryRow(ctx, entryQuery,
			entry.TenantID,
			entry.Description,
			entry.Reference,
			entry.EffectiveDate,
			entry.ReversalOf,
		).Scan(&entry.ID, &entry.CreatedAt)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to insert journal entry")
		}

		lineQuery := `
			INSERT INTO journal_lines
			    (entry_id, tenant_id, account_id, side, amount)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`

		for _, line := range entry.Lines {
			line.EntryID = entry.ID
			err := tx.QueryRow(ctx, lineQuery,
				entry.ID,
				entry.TenantID,
				line.AccountID,
				line.Side,
				line.Amount,
			).Scan(&line.ID)
			if err != nil {
				return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to insert journal line")
			}
		}

		balanceQuery := `
			UPDATE accounts
			SET balance    = balance + $4,
			    version    = version + 1,
			    updated_at = NOW()
			WHERE tenant_id = $1 AND id = $2 AND version = $3
		`

		for _, delta := range deltas {
			tag, err := tx.Exec(ctx, balanceQuery,
				entry.TenantID, delta.AccountID, delta.ExpectedVersion, delta.Delta)
			if err != nil {
				return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to update account balance")
			}
			if tag.RowsAffected() == 0 {
				return apperrors.Newf(apperrors.ErrCodeConflict,
					"account %s was modified concurrently", delta.AccountID)
			}
		}

		return nil
	})
}

// GetByID retrieves an entry with its lines.
func (r *JournalRepository) GetEntryByID(ctx context.Context, tenantID, id string) (*JournalEntry, error) {
	query := `
		SELECT id, tenant_id, description, reference, effective_date, reversal_of, created_at
		FROM journal_entries
		WHERE tenant_id = $1 AND id = $2
	`

	entry := &JournalEntry{}
	err := r.db.QueryRow(ctx, query, tenantID, id).Scan(
		&entry.ID,
		&entry.TenantID,
		&entry.Description,
		&entry.Reference,
		&entry.EffectiveDate,
		&entry.ReversalOf,
		&entry.CreatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("journal_entry", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get journal entry")
	}

	if err := r.loadLines(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// List returns a tenant's entries newest-first, with lines.
func (r *JournalRepository) ListEntries(ctx context.Context, tenantID string, limit, offset int) ([]*JournalEntry, error) {
	query := `
		SELECT id, tenant_id, description, reference, effective_date, reversal_of, created_at
		FROM journal_entries
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.Query(ctx, query, tenantID, limit, offset)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list journal entries")
	}
	defer rows.Close()

	var entries []*JournalEntry
	for rows.Next() {
		entry := &JournalEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.TenantID,
			&entry.Description,
			&entry.Reference,
			&entry.EffectiveDate,
			&entry.ReversalOf,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan journal entry")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if err := r.loadLines(ctx, entry); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// SumByAccount returns the signed sum of line amounts for one account inside
// a date window. Debits count positive, credits negative.
func (r *JournalRepository) SumByAccount(ctx context.Context, tenantID, accountID string, from, to time.Time) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(
		    CASE WHEN l.side = 'debit' THEN l.amount ELSE -l.amount END
		), 0)
		FROM journal_lines l
		JOIN journal_entries e ON e.id = l.entry_id
		WHERE l.tenant_id = $1
		  AND l.account_id = $2
		  AND e.effective_date >= $3
		  AND e.effective_date <= $4
	`

	var sum decimal.Decimal
	err := r.db.QueryRow(ctx, query, tenantID, accountID, from, to).Scan(&sum)
	if err != nil {
		return decimal.Zero, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to sum journal lines")
	}
	return sum, nil
}

// ── internal ──────────────────────────────────────────────────────────────────

func (r *JournalRepository) loadLines(ctx context.Context, entry *JournalEntry) error {
	query := `
		SELECT id, entry_id, account_id, side, amount
		FROM journal_lines
		WHERE entry_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.Query(ctx, query, entry.ID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to load journal lines")
	}
	defer rows.Close()

	for rows.Next() {
		line := &JournalLine{}
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Side, &line.Amount); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan journal line")
		}
		entry.Lines = append(entry.Lines, line)
	}
	return rows.Err()
}

var _ JournalStore = (*JournalRepository)(nil)
