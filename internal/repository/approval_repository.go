package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jengahub/be-gl-governance/internal/apperrors"
	"github.com/jengahub/be-gl-governance/internal/database"
)

// ApprovalRepository persists approval requests and their decision trails.
// Requests are never deleted; terminal rows form the audit history.
type ApprovalRepository struct {
	db *database.DB
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(db *database.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// Create inserts a pending request at level 1.
func (r *ApprovalRepository) CreateRequest(ctx context.Context, request *ApprovalRequest) error {
	query := `
		INSERT INTO approval_requests
		    (tenant_id, module, action, status,
		     current_level, total_levels, amount,
		     requested_by, reason, payload)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7,
		        $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		request.TenantID,
		request.Module,
		request.Action,
		request.Status,
		request.CurrentLevel,
		request.TotalLevels,
		request.Amount,
		request.RequestedBy,
		request.Reason,
		request.Payload,
	).Scan(&request.ID, &request.CreatedAt, &request.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create approval request")
	}
	return nil
}

// GetByID retrieves a request with its decision trail.
func (r *ApprovalRepository) GetRequestByID(ctx context.Context, tenantID, id string) (*ApprovalRequest, error) {
	query := `
		SELECT id, tenant_id, module, action, status,
		       current_level, total_levels, amount,
		       requested_by, reason, payload,
		       completed_at, created_at, updated_at
		FROM approval_requests
		WHERE tenant_id = $1 AND id = $2
	`

	request, err := r.scanRequest(r.db.QueryRow(ctx, query, tenantID, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("approval_request", id)
	}
	if err != nil {
		return nil, err
	}

	if err := r.loadDecisions(ctx, request); err != nil {
		return nil, err
	}
	return request, nil
}

// ListPending returns a tenant's open requests oldest-first.
func (r *ApprovalRepository) ListPending(ctx context.Context, tenantID string) ([]*ApprovalRequest, error) {
	query := `
		SELECT id, tenant_id, module, action, status,
		       current_level, total_levels, amount,
		       requested_by, reason, payload,
		       completed_at, created_at, updated_at
		FROM approval_requests
		WHERE tenant_id = $1 AND status = 'pending'
		ORDER BY created_at ASC
	`
	return r.list(ctx, query, tenantID)
}

// ListByRequester returns every request a user has submitted, newest-first.
func (r *ApprovalRepository) ListByRequester(ctx context.Context, tenantID, userID string) ([]*ApprovalRequest, error) {
	query := `
		SELECT id, tenant_id, module, action, status,
		       current_level, total_levels, amount,
		       requested_by, reason, payload,
		       completed_at, created_at, updated_at
		FROM approval_requests
		WHERE tenant_id = $1 AND requested_by = $2
		ORDER BY created_at DESC
	`
	return r.list(ctx, query, tenantID, userID)
}

// Advance records a decision and transitions the request in one transaction.
// The UPDATE carries the status and level precondition, so of any number of
// concurrent deciders exactly one succeeds; the rest get ErrCodeConflict and
// no decision row.
func (r *ApprovalRepository) Advance(
	ctx context.Context,
	tenantID, requestID string,
	fromLevel int,
	decision *ApprovalDecision,
	toStatus string,
	toLevel int,
	completedAt *time.Time,
) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		transitionQuery := `
			UPDATE approval_requests
			SET status        = $4,
			    current_level = $5,
			    completed_at  = $6,
			    updated_at    = NOW()
			WHERE tenant_id = $1
			  AND id = $2
			  AND status = 'pending'
			  AND current_level = $3
		`

		tag, err := tx.Exec(ctx, transitionQuery,
			tenantID, requestID, fromLevel, toStatus, toLevel, completedAt)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to transition approval request")
		}
		if tag.RowsAffected() == 0 {
			return apperrors.New(apperrors.ErrCodeConflict,
				"approval request was decided concurrently or is already terminal")
		}

		decisionQuery := `
			INSERT INTO approval_decisions
			    (request_id, tenant_id, level, user_id, decision, comment)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, decided_at
		`

		decision.RequestID = requestID
		err = tx.QueryRow(ctx, decisionQuery,
			requestID,
			tenantID,
			decision.Level,
			decision.UserID,
			decision.Decision,
			decision.Comment,
		).Scan(&decision.ID, &decision.DecidedAt)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to record approval decision")
		}

		return nil
	})
}

// ── internal ──────────────────────────────────────────────────────────────────

func (r *ApprovalRepository) list(ctx context.Context, query string, args ...any) ([]*ApprovalRequest, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to list approval requests")
	}
	defer rows.Close()

	var requests []*ApprovalRequest
	for rows.Next() {
		request, err := r.scanRequest(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan approval request")
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, request := range requests {
		if err := r.loadDecisions(ctx, request); err != nil {
			return nil, err
		}
	}
	return requests, nil
}

func (r *ApprovalRepository) loadDecisions(ctx context.Context, request *ApprovalRequest) error {
	query := `
		SELECT id, request_id, level, user_id, decision, comment, decided_at
		FROM approval_decisions
		WHERE request_id = $1
		ORDER BY decided_at ASC
	`

	rows, err := r.db.Query(ctx, query, request.ID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to load approval decisions")
	}
	defer rows.Close()

	for rows.Next() {
		decision := &ApprovalDecision{}
		err := rows.Scan(
			&decision.ID,
			&decision.RequestID,
			&decision.Level,
			&decision.UserID,
			&decision.Decision,
			&decision.Comment,
			&decision.DecidedAt,
		)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to scan approval decision")
		}
		request.Decisions = append(request.Decisions, decision)
	}
	return rows.Err()
}

type requestScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalRepository) scanRequest(row requestScanner) (*ApprovalRequest, error) {
	request := &ApprovalRequest{}
	err := row.Scan(
		&request.ID,
		&request.TenantID,
		&request.Module,
		&request.Action,
		&request.Status,
		&request.CurrentLevel,
		&request.TotalLevels,
		&request.Amount,
		&request.RequestedBy,
		&request.Reason,
		&request.Payload,
		&request.CompletedAt,
		&request.CreatedAt,
		&request.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return request, nil
}

var _ ApprovalStore = (*ApprovalRepository)(nil)
