package service

import (
	"context"
	"time"

	"github.com/jengahub/be-gl-governance/internal/apperrors"
	"github.com/jengahub/be-gl-governance/internal/logger"
	"github.com/jengahub/be-gl-governance/internal/repository"
)

// WorkflowService is the approval state machine. The only legal transitions
// are Pending(level n) → Pending(level n+1), Pending → Approved and
// Pending → Rejected; both terminal states are final. The terminal
// transition is a status-preconditioned store update, so of two concurrent
// submissions exactly one wins and the loser gets a conflict.
type WorkflowService struct {
	approvals repository.ApprovalStore
	log       *logger.Logger
}

// NewWorkflowService creates a new workflow service.
func NewWorkflowService(approvals repository.ApprovalStore, log *logger.Logger) *WorkflowService {
	return &WorkflowService{approvals: approvals, log: log}
}

// DecideRequest represents a decision submission against a pending request.
type DecideRequest struct {
	TenantID  string
	RequestID string
	Level     int
	UserID    string
	Decision  string
	Comment   *string
}

// SubmitDecision validates a decision against the chain protocol and
// advances the request. It returns the request in its post-decision state;
// the caller checks for Approved to trigger the deferred mutation.
func (s *WorkflowService) SubmitDecision(ctx context.Context, req *DecideRequest) (*repository.ApprovalRequest, error) {
	if req.Decision != repository.DecisionApprove && req.Decision != repository.DecisionReject {
		return nil, apperrors.InvalidInput("decision", "decision must be approve or reject")
	}
	if req.UserID == "" {
		return nil, apperrors.InvalidInput("user_id", "deciding user is required")
	}

	request, err := s.approvals.GetRequestByID(ctx, req.TenantID, req.RequestID)
	if err != nil {
		return nil, err
	}

	if request.Terminal() {
		return nil, apperrors.Newf(apperrors.ErrCodeAlreadyTerminal,
			"request is already %s", request.Status)
	}
	if req.Level != request.CurrentLevel {
		return nil, apperrors.Newf(apperrors.ErrCodeWrongLevel,
			"decision targets level %d but request is at level %d", req.Level, request.CurrentLevel)
	}
	// Separation of duties is unconditional: no requester ever decides on
	// their own mutation, at any level.
	if req.UserID == request.RequestedBy {
		return nil, apperrors.New(apperrors.ErrCodeSelfApproval,
			"requester cannot decide on their own request")
	}

	decision := &repository.ApprovalDecision{
		RequestID: req.RequestID,
		Level:     req.Level,
		UserID:    req.UserID,
		Decision:  req.Decision,
		Comment:   req.Comment,
	}

	now := time.Now().UTC()
	toStatus := repository.ApprovalStatusPending
	toLevel := request.CurrentLevel
	var completedAt *time.Time

	switch {
	case req.Decision == repository.DecisionReject:
		// Any rejecting authority vetoes the whole chain.
		toStatus = repository.ApprovalStatusRejected
		completedAt = &now
	case request.CurrentLevel < request.TotalLevels:
		toLevel = request.CurrentLevel + 1
	default:
		toStatus = repository.ApprovalStatusApproved
		completedAt = &now
	}

	if err := s.approvals.Advance(ctx, req.TenantID, req.RequestID, request.CurrentLevel,
		decision, toStatus, toLevel, completedAt); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("request_id", req.RequestID).
		Str("tenant_id", req.TenantID).
		Str("module", request.Module).
		Int("level", req.Level).
		Str("decision", req.Decision).
		Str("status", toStatus).
		Str("decided_by", req.UserID).
		Msg("Approval decision recorded")

	return s.approvals.GetRequestByID(ctx, req.TenantID, req.RequestID)
}

// GetRequest retrieves one approval request with its decision trail.
func (s *WorkflowService) GetRequest(ctx context.Context, tenantID, id string) (*repository.ApprovalRequest, error) {
	return s.approvals.GetRequestByID(ctx, tenantID, id)
}

// ListPending lists the tenant's open requests, oldest first.
func (s *WorkflowService) ListPending(ctx context.Context, tenantID string) ([]*repository.ApprovalRequest, error) {
	return s.approvals.ListPending(ctx, tenantID)
}

// ListByRequester lists every request a user has raised, terminal ones
// included. Requests are never deleted; this is the audit view.
func (s *WorkflowService) ListByRequester(ctx context.Context, tenantID, userID string) ([]*repository.ApprovalRequest, error) {
	return s.approvals.ListByRequester(ctx, tenantID, userID)
}
