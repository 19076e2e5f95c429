package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jengahub/be-gl-governance/internal/apperrors"
	"github.com/jengahub/be-gl-governance/internal/logger"
	"github.com/jengahub/be-gl-governance/internal/repository"
)

// AuditRecord is one immutable line in the external audit trail.
type AuditRecord struct {
	TenantID   string          `json:"tenant_id"`
	Module     string          `json:"module"`
	Action     string          `json:"action"`
	EventType  string          `json:"event_type"`
	Amount     decimal.Decimal `json:"amount"`
	ActorID    string          `json:"actor_id"`
	ResourceID string          `json:"resource_id,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// AuditSink receives audit records of governed mutations. Implementations
// are best-effort: they log failures and never propagate them, so the audit
// pipeline cannot interrupt ledger operations.
type AuditSink interface {
	RecordMutation(ctx context.Context, record *AuditRecord)
}

// EventSink receives workflow lifecycle events for notification delivery.
// Best-effort, like AuditSink.
type EventSink interface {
	PublishEvent(ctx context.Context, eventType, tenantID, actorID, resourceID string, payload map[string]interface{})
}

// GovernanceService is the governed mutation façade: the single entry point
// through which modules mutate financial state. Every intent is evaluated
// by the policy engine first, then either committed immediately or frozen
// behind an approval chain. Clear and approved intents run through the same
// committer dispatch.
type GovernanceService struct {
	policy    *PolicyService
	posting   *PostingService
	workflow  *WorkflowService
	approvals repository.ApprovalStore
	audit     AuditSink
	events    EventSink
	log       *logger.Logger
}

// NewGovernanceService creates a new governance service. audit and events
// may be nil; the façade then skips publishing.
func NewGovernanceService(
	policy *PolicyService,
	posting *PostingService,
	workflow *WorkflowService,
	approvals repository.ApprovalStore,
	audit AuditSink,
	events EventSink,
	log *logger.Logger,
) *GovernanceService {
	return &GovernanceService{
		policy:    policy,
		posting:   posting,
		workflow:  workflow,
		approvals: approvals,
		audit:     audit,
		events:    events,
		log:       log,
	}
}

// SubmitResult is the outcome of a mutation submission: either the mutation
// executed and Entry/Account hold what it produced, or it was queued and
// RequestID names the pending approval request.
type SubmitResult struct {
	Executed  bool
	Entry     *repository.JournalEntry
	Account   *repository.Account
	RequestID string
	Reason    string
	Warning   string
}

// DecideResult is the outcome of an approval decision. Executed is true
// only when this decision completed the chain and the deferred mutation
// committed.
type DecideResult struct {
	Request  *repository.ApprovalRequest
	Executed bool
	Entry    *repository.JournalEntry
	Account  *repository.Account
}

// Submit evaluates an intent against tenant policy and either commits it
// immediately or queues it for approval. The underlying resources stay
// untouched while a request is queued.
func (s *GovernanceService) Submit(ctx context.Context, tenantID, requestedBy string, intent *Intent) (*SubmitResult, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if requestedBy == "" {
		return nil, apperrors.InvalidInput("requested_by", "requesting user is required")
	}

	amount := intent.Amount()
	decision, err := s.policy.EvaluateMutation(ctx, tenantID, intent.Module(), intent.Kind,
		amount, intent.Ratio(), intent.BudgetAccountID(), intent.EffectiveDate())
	if err != nil {
		return nil, err
	}

	if decision.RequireApproval {
		payload, err := EncodeIntent(intent)
		if err != nil {
			return nil, err
		}

		request := &repository.ApprovalRequest{
			TenantID:     tenantID,
			Module:       intent.Module(),
			Action:       intent.Kind,
			Status:       repository.ApprovalStatusPending,
			CurrentLevel: 1,
			TotalLevels:  decision.Levels,
			Amount:       amount,
			RequestedBy:  requestedBy,
			Reason:       decision.Reason,
			Payload:      payload,
		}
		if err := s.approvals.CreateRequest(ctx, request); err != nil {
			return nil, err
		}

		s.log.Info().
			Str("request_id", request.ID).
			Str("tenant_id", tenantID).
			Str("module", request.Module).
			Str("action", request.Action).
			Str("amount", amount.String()).
			Str("reason", decision.Reason).
			Int("total_levels", decision.Levels).
			Msg("Mutation queued for approval")

		s.recordAudit(ctx, tenantID, intent, "mutation_queued", amount, requestedBy, request.ID, decision.Reason)
		s.publishEvent(ctx, "approval_required", tenantID, requestedBy, request.ID, map[string]interface{}{
			"module": request.Module,
			"action": request.Action,
			"amount": amount.String(),
			"reason": decision.Reason,
		})

		return &SubmitResult{RequestID: request.ID, Reason: decision.Reason, Warning: decision.Warning}, nil
	}

	entry, account, err := s.commit(ctx, tenantID, intent)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeStrictBudgetBlock) {
			s.recordAudit(ctx, tenantID, intent, "mutation_blocked", amount, requestedBy, "", "")
		}
		return nil, err
	}

	resourceID := ""
	if entry != nil {
		resourceID = entry.ID
	} else if account != nil {
		resourceID = account.ID
	}
	s.recordAudit(ctx, tenantID, intent, "mutation_executed", amount, requestedBy, resourceID, "")

	return &SubmitResult{Executed: true, Entry: entry, Account: account, Warning: decision.Warning}, nil
}

// Decide records an approval decision and, when the chain completes,
// replays the stored intent through the same committer path Submit uses.
// The store-level status precondition makes the terminal transition win
// exactly once under concurrent decisions.
func (s *GovernanceService) Decide(ctx context.Context, req *DecideRequest) (*DecideResult, error) {
	request, err := s.workflow.SubmitDecision(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &DecideResult{Request: request}

	switch request.Status {
	case repository.ApprovalStatusRejected:
		s.publishEvent(ctx, "request_rejected", req.TenantID, req.UserID, request.ID, map[string]interface{}{
			"module": request.Module,
			"action": request.Action,
		})
		s.recordAuditRaw(ctx, req.TenantID, request.Module, request.Action, "mutation_rejected",
			request.Amount, req.UserID, request.ID, request.Reason)

	case repository.ApprovalStatusApproved:
		intent, err := DecodeIntent(request.Payload)
		if err != nil {
			return nil, err
		}
		entry, account, err := s.commit(ctx, req.TenantID, intent)
		if err != nil {
			// The request stays approved; the deferred effect failed and the
			// error surfaces to the final decider.
			s.log.Error().Err(err).
				Str("request_id", request.ID).
				Str("tenant_id", req.TenantID).
				Msg("Deferred mutation failed after approval")
			s.recordAuditRaw(ctx, req.TenantID, request.Module, request.Action, "execution_failed",
				request.Amount, req.UserID, request.ID, "")
			return nil, err
		}
		result.Executed = true
		result.Entry = entry
		result.Account = account

		resourceID := request.ID
		if entry != nil {
			resourceID = entry.ID
		}
		s.publishEvent(ctx, "request_approved", req.TenantID, req.UserID, request.ID, map[string]interface{}{
			"module": request.Module,
			"action": request.Action,
			"amount": request.Amount.String(),
		})
		s.recordAuditRaw(ctx, req.TenantID, request.Module, request.Action, "mutation_executed",
			request.Amount, req.UserID, resourceID, request.Reason)

	default:
		s.publishEvent(ctx, "approval_advanced", req.TenantID, req.UserID, request.ID, map[string]interface{}{
			"module":        request.Module,
			"current_level": request.CurrentLevel,
			"total_levels":  request.TotalLevels,
		})
	}

	return result, nil
}

// commit dispatches an intent to its committer. Ledger moves go through the
// posting engine; compound mutations build their journal representation
// here and post it the same way. The strict-budget execution check runs
// first, so a Clear submission and a post-approval replay face the same
// gatekeeping.
func (s *GovernanceService) commit(ctx context.Context, tenantID string, intent *Intent) (*repository.JournalEntry, *repository.Account, error) {
	if err := s.policy.AuthorizeExecution(ctx, tenantID,
		intent.BudgetAccountID(), intent.EffectiveDate(), intent.Amount()); err != nil {
		return nil, nil, err
	}

	switch intent.Kind {
	case IntentTransferFunds:
		t := intent.TransferFunds
		description := t.Description
		if description == "" {
			description = "Funds transfer"
		}
		entry, err := s.posting.PostEntry(ctx, &PostEntryRequest{
			TenantID:      tenantID,
			Description:   description,
			EffectiveDate: intent.EffectiveDate(),
			Lines: []*PostLineRequest{
				{AccountID: t.ToAccountID, Side: repository.SideDebit, Amount: t.Amount},
				{AccountID: t.FromAccountID, Side: repository.SideCredit, Amount: t.Amount},
			},
		})
		return entry, nil, err

	case IntentRegisterAccount:
		t := intent.RegisterAccount
		account, err := s.posting.RegisterAccount(ctx, &RegisterAccountRequest{
			TenantID:           tenantID,
			Code:               t.Code,
			Name:               t.Name,
			Type:               t.Type,
			Subtype:            t.Subtype,
			IsTrackedForBudget: t.IsTrackedForBudget,
		})
		return nil, account, err

	case IntentCreatePurchaseOrder:
		t := intent.CreatePurchaseOrder
		description := t.Description
		if description == "" {
			description = fmt.Sprintf("Purchase order: %s", t.Supplier)
		}
		entry, err := s.posting.PostEntry(ctx, &PostEntryRequest{
			TenantID:      tenantID,
			Description:   description,
			EffectiveDate: intent.EffectiveDate(),
			Lines: []*PostLineRequest{
				{AccountID: t.ExpenseAccountID, Side: repository.SideDebit, Amount: t.Amount},
				{AccountID: t.PayableAccountID, Side: repository.SideCredit, Amount: t.Amount},
			},
		})
		return entry, nil, err

	case IntentWriteOffStock:
		t := intent.WriteOffStock
		entry, err := s.posting.PostEntry(ctx, &PostEntryRequest{
			TenantID:      tenantID,
			Description:   fmt.Sprintf("Stock write-off: %s x %s", t.ItemName, t.Quantity.String()),
			EffectiveDate: intent.EffectiveDate(),
			Lines: []*PostLineRequest{
				{AccountID: t.ShrinkageAccountID, Side: repository.SideDebit, Amount: t.Amount},
				{AccountID: t.InventoryAccountID, Side: repository.SideCredit, Amount: t.Amount},
			},
		})
		return entry, nil, err

	case IntentFinalizeInvoice:
		t := intent.FinalizeInvoice
		entry, err := s.posting.PostEntry(ctx, &PostEntryRequest{
			TenantID:      tenantID,
			Description:   fmt.Sprintf("Invoice %s finalized", t.InvoiceNumber),
			EffectiveDate: intent.EffectiveDate(),
			Lines: []*PostLineRequest{
				{AccountID: t.ReceivableAccountID, Side: repository.SideDebit, Amount: t.Amount},
				{AccountID: t.RevenueAccountID, Side: repository.SideCredit, Amount: t.Amount},
			},
		})
		return entry, nil, err

	case IntentFileTaxReturn:
		t := intent.FileTaxReturn
		entry, err := s.posting.PostEntry(ctx, &PostEntryRequest{
			TenantID:      tenantID,
			Description:   fmt.Sprintf("Tax return %s", t.ReturnPeriod),
			EffectiveDate: intent.EffectiveDate(),
			Lines: []*PostLineRequest{
				{AccountID: t.TaxExpenseAccountID, Side: repository.SideDebit, Amount: t.Amount},
				{AccountID: t.TaxPayableAccountID, Side: repository.SideCredit, Amount: t.Amount},
			},
		})
		return entry, nil, err
	}

	return nil, nil, apperrors.InvalidInput("kind", "unknown intent kind")
}

func (s *GovernanceService) recordAudit(ctx context.Context, tenantID string, intent *Intent, eventType string, amount decimal.Decimal, actorID, resourceID, reason string) {
	s.recordAuditRaw(ctx, tenantID, intent.Module(), intent.Kind, eventType, amount, actorID, resourceID, reason)
}

func (s *GovernanceService) recordAuditRaw(ctx context.Context, tenantID, module, action, eventType string, amount decimal.Decimal, actorID, resourceID, reason string) {
	if s.audit == nil {
		return
	}
	s.audit.RecordMutation(ctx, &AuditRecord{
		TenantID:   tenantID,
		Module:     module,
		Action:     action,
		EventType:  eventType,
		Amount:     amount,
		ActorID:    actorID,
		ResourceID: resourceID,
		Reason:     reason,
		OccurredAt: time.Now().UTC(),
	})
}

func (s *GovernanceService) publishEvent(ctx context.Context, eventType, tenantID, actorID, resourceID string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	s.events.PublishEvent(ctx, eventType, tenantID, actorID, resourceID, payload)
}
