package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"

	"github.com/jengahub/be-gl-governance/internal/apperrors"
	"github.com/jengahub/be-gl-governance/internal/logger"
	"github.com/jengahub/be-gl-governance/internal/repository"
)

// maxCommitAttempts bounds the optimistic-concurrency retry loop on balance
// version conflicts. Past this, the conflict surfaces to the caller.
const maxCommitAttempts = 3

// ReferenceSource issues document reference numbers. The production
// implementation calls the external sequence service; a local fallback is
// used when it is unreachable or unconfigured.
type ReferenceSource interface {
	NextReference(ctx context.Context, tenantID, kind string) (string, error)
}

// PostingService is the journal posting engine: the sole writer of account
// balances. Every balanced entry commits atomically together with its
// balance deltas, or not at all.
type PostingService struct {
	accounts   repository.AccountStore
	journals   repository.JournalStore
	periods    repository.PeriodStore
	references ReferenceSource
	log        *logger.Logger
}

// NewPostingService creates a new posting service. references may be nil;
// entries then carry no reference number.
func NewPostingService(
	accounts repository.AccountStore,
	journals repository.JournalStore,
	periods repository.PeriodStore,
	references ReferenceSource,
	log *logger.Logger,
) *PostingService {
	return &PostingService{
		accounts:   accounts,
		journals:   journals,
		periods:    periods,
		references: references,
		log:        log,
	}
}

// RegisterAccountRequest represents a register account request.
type RegisterAccountRequest struct {
	TenantID           string
	Code               string
	Name               string
	Type               string
	Subtype            *string
	IsTrackedForBudget bool
}

// PostLineRequest is one leg of a posting request.
type PostLineRequest struct {
	AccountID string
	Side      string
	Amount    decimal.Decimal
}

// PostEntryRequest represents a journal posting request.
type PostEntryRequest struct {
	TenantID      string
	Description   string
	EffectiveDate time.Time
	Lines         []*PostLineRequest
}

var validAccountTypes = map[string]bool{
	repository.AccountTypeAsset:     true,
	repository.AccountTypeLiability: true,
	repository.AccountTypeEquity:    true,
	repository.AccountTypeIncome:    true,
	repository.AccountTypeExpense:   true,
}

// RegisterAccount adds an account to the tenant's chart of accounts with a
// zero opening balance.
func (s *PostingService) RegisterAccount(ctx context.Context, req *RegisterAccountRequest) (*repository.Account, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, apperrors.InvalidInput("code", "account code is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperrors.InvalidInput("name", "account name is required")
	}
	accountType := strings.ToLower(req.Type)
	if !validAccountTypes[accountType] {
		return nil, apperrors.InvalidInput("type", "invalid account type")
	}

	if existing, err := s.accounts.GetAccountByCode(ctx, req.TenantID, req.Code); err == nil && existing != nil {
		return nil, apperrors.Newf(apperrors.ErrCodeConflict, "account code %q already exists", req.Code)
	} else if err != nil && !apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
		return nil, err
	}

	account := &repository.Account{
		TenantID:           req.TenantID,
		Code:               req.Code,
		Name:               req.Name,
		Type:               accountType,
		Subtype:            req.Subtype,
		Balance:            decimal.Zero,
		IsActive:           true,
		IsTrackedForBudget: req.IsTrackedForBudget,
	}

	if err := s.accounts.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account_id", account.ID).
		Str("account_code", account.Code).
		Str("tenant_id", account.TenantID).
		Str("type", account.Type).
		Msg("Account registered")

	return account, nil
}

// GetAccount retrieves an account by ID.
func (s *PostingService) GetAccount(ctx context.Context, tenantID, id string) (*repository.Account, error) {
	return s.accounts.GetAccountByID(ctx, tenantID, id)
}

// ListAccounts lists the tenant's chart of accounts.
func (s *PostingService) ListAccounts(ctx context.Context, tenantID string, activeOnly bool) ([]*repository.Account, error) {
	return s.accounts.ListAccounts(ctx, tenantID, activeOnly)
}

// SetAccountActive activates or deactivates an account.
func (s *PostingService) SetAccountActive(ctx context.Context, tenantID, id string, active bool) error {
	if err := s.accounts.SetAccountActive(ctx, tenantID, id, active); err != nil {
		return err
	}
	s.log.Info().
		Str("account_id", id).
		Str("tenant_id", tenantID).
		Bool("active", active).
		Msg("Account active flag updated")
	return nil
}

// PostEntry validates and commits a balanced journal entry. On version
// conflicts from concurrent postings to the same account it re-reads
// balances and retries up to maxCommitAttempts before surfacing the
// conflict.
func (s *PostingService) PostEntry(ctx context.Context, req *PostEntryRequest) (*repository.JournalEntry, error) {
	deltas, err := s.validateLines(req.Lines)
	if err != nil {
		return nil, err
	}

	// Effective dates are stored at day granularity, matching period bounds,
	// so variance windows never miss an intra-day timestamp.
	effectiveDate := repository.DayOf(req.EffectiveDate)

	period, err := s.periods.FindCovering(ctx, req.TenantID, effectiveDate)
	if err != nil {
		return nil, err
	}
	if period == nil || period.Status != repository.PeriodStatusOpen {
		return nil, apperrors.Newf(apperrors.ErrCodePeriodLocked,
			"no open fiscal period covers %s", effectiveDate.Format("2006-01-02"))
	}

	var reference *string
	if s.references != nil {
		ref, refErr := s.references.NextReference(ctx, req.TenantID, "journal")
		if refErr != nil {
			// Reference numbering is a collaborator, not a gatekeeper.
			s.log.Warn().Err(refErr).Str("tenant_id", req.TenantID).Msg("Failed to obtain reference number")
		} else {
			reference = &ref
		}
	}

	entry := &repository.JournalEntry{
		TenantID:      req.TenantID,
		Description:   req.Description,
		Reference:     reference,
		EffectiveDate: effectiveDate,
	}
	for _, line := range req.Lines {
		entry.Lines = append(entry.Lines, &repository.JournalLine{
			AccountID: line.AccountID,
			Side:      strings.ToLower(line.Side),
			Amount:    line.Amount,
		})
	}

	if err := s.commitWithRetry(ctx, entry, deltas); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("entry_id", entry.ID).
		Str("tenant_id", entry.TenantID).
		Str("period_id", period.ID).
		Int("line_count", len(entry.Lines)).
		Msg("Journal entry posted")

	return entry, nil
}

// ReverseEntry posts a new entry that mirrors every line of the original
// with sides flipped. The original is never modified.
func (s *PostingService) ReverseEntry(ctx context.Context, tenantID, entryID, description string) (*repository.JournalEntry, error) {
	original, err := s.journals.GetEntryByID(ctx, tenantID, entryID)
	if err != nil {
		return nil, err
	}

	now := repository.DayOf(time.Now())
	period, err := s.periods.FindCovering(ctx, tenantID, now)
	if err != nil {
		return nil, err
	}
	if period == nil || period.Status != repository.PeriodStatusOpen {
		return nil, apperrors.New(apperrors.ErrCodePeriodLocked, "no open fiscal period covers today")
	}

	if description == "" {
		description = fmt.Sprintf("Reversal of %s", original.ID)
	}

	var reference *string
	if s.references != nil {
		if ref, refErr := s.references.NextReference(ctx, tenantID, "journal"); refErr == nil {
			reference = &ref
		}
	}

	entry := &repository.JournalEntry{
		TenantID:      tenantID,
		Description:   description,
		Reference:     reference,
		EffectiveDate: now,
		ReversalOf:    &original.ID,
	}
	lines := make([]*PostLineRequest, 0, len(original.Lines))
	for _, line := range original.Lines {
		side := repository.SideDebit
		if line.Side == repository.SideDebit {
			side = repository.SideCredit
		}
		entry.Lines = append(entry.Lines, &repository.JournalLine{
			AccountID: line.AccountID,
			Side:      side,
			Amount:    line.Amount,
		})
		lines = append(lines, &PostLineRequest{AccountID: line.AccountID, Side: side, Amount: line.Amount})
	}

	deltas, err := s.validateLines(lines)
	if err != nil {
		return nil, err
	}

	if err := s.commitWithRetry(ctx, entry, deltas); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("entry_id", entry.ID).
		Str("reversal_of", original.ID).
		Str("tenant_id", tenantID).
		Msg("Journal entry reversed")

	return entry, nil
}

// GetEntry retrieves a journal entry with its lines.
func (s *PostingService) GetEntry(ctx context.Context, tenantID, id string) (*repository.JournalEntry, error) {
	return s.journals.GetEntryByID(ctx, tenantID, id)
}

// ListEntries lists journal entries with pagination, newest first.
func (s *PostingService) ListEntries(ctx context.Context, tenantID string, page, pageSize int) ([]*repository.JournalEntry, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 50
	}
	return s.journals.ListEntries(ctx, tenantID, pageSize, (page-1)*pageSize)
}

// lineDelta is the net signed amount a set of lines applies to one account.
type lineDelta struct {
	accountID string
	delta     decimal.Decimal
}

// validateLines checks line shape and exact balance, returning the ordered
// net delta per account. Account existence is verified later, against the
// balances read inside the commit loop.
func (s *PostingService) validateLines(lines []*PostLineRequest) ([]lineDelta, error) {
	if len(lines) < 2 {
		return nil, apperrors.InvalidInput("lines", "entry must have at least 2 lines")
	}

	debits := decimal.Zero
	credits := decimal.Zero
	order := make([]string, 0, len(lines))
	byAccount := make(map[string]decimal.Decimal)

	for _, line := range lines {
		if line.AccountID == "" {
			return nil, apperrors.InvalidInput("account_id", "line account is required")
		}
		if !line.Amount.IsPositive() {
			return nil, apperrors.InvalidInput("amount", "line amount must be positive")
		}
		signed := line.Amount
		switch strings.ToLower(line.Side) {
		case repository.SideDebit:
			debits = debits.Add(line.Amount)
		case repository.SideCredit:
			credits = credits.Add(line.Amount)
			signed = line.Amount.Neg()
		default:
			return nil, apperrors.InvalidInput("side", "side must be debit or credit")
		}
		if _, seen := byAccount[line.AccountID]; !seen {
			order = append(order, line.AccountID)
		}
		byAccount[line.AccountID] = byAccount[line.AccountID].Add(signed)
	}

	if !debits.Equal(credits) {
		return nil, apperrors.Newf(apperrors.ErrCodeUnbalanced,
			"debits (%s) do not equal credits (%s)", debits.String(), credits.String())
	}

	deltas := make([]lineDelta, 0, len(order))
	for _, accountID := range order {
		deltas = append(deltas, lineDelta{accountID: accountID, delta: byAccount[accountID]})
	}
	return deltas, nil
}

// commitWithRetry resolves current account versions and commits the entry,
// retrying on balance version conflicts with exponential backoff.
func (s *PostingService) commitWithRetry(ctx context.Context, entry *repository.JournalEntry, deltas []lineDelta) error {
	attempt := func() (struct{}, error) {
		balanceDeltas := make([]repository.BalanceDelta, 0, len(deltas))
		for _, d := range deltas {
			account, err := s.accounts.GetAccountByID(ctx, entry.TenantID, d.accountID)
			if err != nil {
				if apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
					return struct{}{}, backoff.Permanent(
						apperrors.Newf(apperrors.ErrCodeUnknownAccount, "account %q does not exist", d.accountID))
				}
				return struct{}{}, backoff.Permanent(err)
			}
			if !account.IsActive {
				return struct{}{}, backoff.Permanent(
					apperrors.Newf(apperrors.ErrCodeUnknownAccount, "account %q is inactive", account.Code))
			}
			balanceDeltas = append(balanceDeltas, repository.BalanceDelta{
				AccountID:       account.ID,
				Delta:           d.delta,
				ExpectedVersion: account.Version,
			})
		}

		if err := s.journals.Commit(ctx, entry, balanceDeltas); err != nil {
			if apperrors.Retryable(err) {
				s.log.Debug().
					Str("tenant_id", entry.TenantID).
					Msg("Balance version conflict, retrying commit")
				return struct{}{}, err
			}
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	}

	_, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(maxCommitAttempts))
	return err
}
