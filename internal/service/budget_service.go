package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jengahub/be-gl-governance/internal/apperrors"
	"github.com/jengahub/be-gl-governance/internal/logger"
	"github.com/jengahub/be-gl-governance/internal/repository"
)

// BudgetService is the budget registry: it owns allocation ceilings and the
// fiscal period calendar, and derives variance from the ledger on every
// read. Actual spend is never stored, so it can never drift from the
// journal.
type BudgetService struct {
	budgets  repository.BudgetStore
	periods  repository.PeriodStore
	accounts repository.AccountStore
	journals repository.JournalStore
	log      *logger.Logger
}

// NewBudgetService creates a new budget service.
func NewBudgetService(
	budgets repository.BudgetStore,
	periods repository.PeriodStore,
	accounts repository.AccountStore,
	journals repository.JournalStore,
	log *logger.Logger,
) *BudgetService {
	return &BudgetService{
		budgets:  budgets,
		periods:  periods,
		accounts: accounts,
		journals: journals,
		log:      log,
	}
}

// SetAllocationRequest represents a set allocation request.
type SetAllocationRequest struct {
	TenantID  string
	PeriodID  string
	AccountID string
	Limit     decimal.Decimal
}

// CreatePeriodRequest represents a create fiscal period request.
type CreatePeriodRequest struct {
	TenantID  string
	Name      string
	StartDate time.Time
	EndDate   time.Time
}

// SetAllocation creates or replaces a ceiling for one account in one period.
// Writes against a closed period fail with period_locked.
func (s *BudgetService) SetAllocation(ctx context.Context, req *SetAllocationRequest) (*repository.BudgetAllocation, error) {
	if req.Limit.IsNegative() {
		return nil, apperrors.InvalidInput("limit", "allocation limit cannot be negative")
	}

	period, err := s.periods.GetPeriodByID(ctx, req.TenantID, req.PeriodID)
	if err != nil {
		return nil, err
	}
	if period.Status == repository.PeriodStatusClosed {
		return nil, apperrors.Newf(apperrors.ErrCodePeriodLocked,
			"period %q is closed and no longer accepts allocations", period.Name)
	}

	account, err := s.accounts.GetAccountByID(ctx, req.TenantID, req.AccountID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
			return nil, apperrors.Newf(apperrors.ErrCodeUnknownAccount, "account %q does not exist", req.AccountID)
		}
		return nil, err
	}

	allocation := &repository.BudgetAllocation{
		TenantID:  req.TenantID,
		PeriodID:  req.PeriodID,
		AccountID: req.AccountID,
		Limit:     req.Limit,
	}
	if err := s.budgets.UpsertAllocation(ctx, allocation); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tenant_id", req.TenantID).
		Str("period_id", req.PeriodID).
		Str("account_code", account.Code).
		Str("limit", req.Limit.String()).
		Msg("Budget allocation set")

	return allocation, nil
}

// GetVariance computes the actual-vs-ceiling view for every allocation in a
// period. Actuals are summed from journal lines inside the period's date
// window at call time.
func (s *BudgetService) GetVariance(ctx context.Context, tenantID, periodID string) ([]*repository.BudgetVarianceRow, error) {
	period, err := s.periods.GetPeriodByID(ctx, tenantID, periodID)
	if err != nil {
		return nil, err
	}

	allocations, err := s.budgets.ListAllocationsByPeriod(ctx, tenantID, periodID)
	if err != nil {
		return nil, err
	}

	rows := make([]*repository.BudgetVarianceRow, 0, len(allocations))
	for _, allocation := range allocations {
		actual, err := s.journals.SumByAccount(ctx, tenantID, allocation.AccountID, period.StartDate, period.EndDate)
		if err != nil {
			return nil, err
		}

		row := &repository.BudgetVarianceRow{
			AccountID: allocation.AccountID,
			Limit:     allocation.Limit,
			Actual:    actual,
		}
		if account, err := s.accounts.GetAccountByID(ctx, tenantID, allocation.AccountID); err == nil {
			row.AccountCode = account.Code
		}
		if allocation.Limit.IsPositive() {
			row.Utilization = actual.Div(allocation.Limit)
			row.Breached = row.Utilization.GreaterThan(decimal.NewFromInt(1))
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// ProjectedUtilization returns (actual + amount) / limit for one account in
// the period covering date. The second return is false when no allocation
// exists, which the policy engine treats as "no budget rule applies".
func (s *BudgetService) ProjectedUtilization(ctx context.Context, tenantID, accountID string, date time.Time, amount decimal.Decimal) (decimal.Decimal, bool, error) {
	period, err := s.periods.FindCovering(ctx, tenantID, repository.DayOf(date))
	if err != nil {
		return decimal.Zero, false, err
	}
	if period == nil {
		return decimal.Zero, false, nil
	}

	allocation, err := s.budgets.GetAllocation(ctx, tenantID, period.ID, accountID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	if !allocation.Limit.IsPositive() {
		return decimal.Zero, false, nil
	}

	actual, err := s.journals.SumByAccount(ctx, tenantID, accountID, period.StartDate, period.EndDate)
	if err != nil {
		return decimal.Zero, false, err
	}

	return actual.Add(amount).Div(allocation.Limit), true, nil
}

// CreatePeriod adds a fiscal period in the Open state.
func (s *BudgetService) CreatePeriod(ctx context.Context, req *CreatePeriodRequest) (*repository.FiscalPeriod, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, apperrors.InvalidInput("name", "period name is required")
	}

	// Period bounds share the day granularity of entry effective dates.
	startDate := repository.DayOf(req.StartDate)
	endDate := repository.DayOf(req.EndDate)
	if endDate.Before(startDate) {
		return nil, apperrors.InvalidInput("end_date", "end date cannot be before start date")
	}

	existing, err := s.periods.ListPeriods(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	for _, p := range existing {
		if !endDate.Before(p.StartDate) && !startDate.After(p.EndDate) {
			return nil, apperrors.Newf(apperrors.ErrCodeConflict,
				"period overlaps existing period %q", p.Name)
		}
	}

	period := &repository.FiscalPeriod{
		TenantID:  req.TenantID,
		Name:      req.Name,
		StartDate: startDate,
		EndDate:   endDate,
		Status:    repository.PeriodStatusOpen,
	}
	if err := s.periods.CreatePeriod(ctx, period); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("period_id", period.ID).
		Str("tenant_id", period.TenantID).
		Str("name", period.Name).
		Msg("Fiscal period created")

	return period, nil
}

// ClosePeriod moves a period to Closed. Closed periods reject allocation
// writes and, through the posting engine's period check, new postings dated
// inside their range.
func (s *BudgetService) ClosePeriod(ctx context.Context, tenantID, periodID string) (*repository.FiscalPeriod, error) {
	period, err := s.periods.GetPeriodByID(ctx, tenantID, periodID)
	if err != nil {
		return nil, err
	}
	if period.Status == repository.PeriodStatusClosed {
		return nil, apperrors.Newf(apperrors.ErrCodeConflict, "period %q is already closed", period.Name)
	}

	if err := s.periods.UpdatePeriodStatus(ctx, tenantID, periodID, repository.PeriodStatusClosed); err != nil {
		return nil, err
	}
	period.Status = repository.PeriodStatusClosed

	s.log.Info().
		Str("period_id", periodID).
		Str("tenant_id", tenantID).
		Str("name", period.Name).
		Msg("Fiscal period closed")

	return period, nil
}

// ListPeriods lists the tenant's fiscal periods.
func (s *BudgetService) ListPeriods(ctx context.Context, tenantID string) ([]*repository.FiscalPeriod, error) {
	return s.periods.ListPeriods(ctx, tenantID)
}
