package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jengahub/be-gl-governance/internal/logger"
	"github.com/jengahub/be-gl-governance/internal/repository"
	"github.com/jengahub/be-gl-governance/internal/repository/memory"
)

// testEnv wires every service against one in-memory store.
type testEnv struct {
	store      *memory.Store
	posting    *PostingService
	budgets    *BudgetService
	policy     *PolicyService
	workflow   *WorkflowService
	governance *GovernanceService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	log := logger.Nop()

	posting := NewPostingService(store, store, store, nil, log)
	budgets := NewBudgetService(store, store, store, store, log)
	policy := NewPolicyService(store, budgets, log)
	workflow := NewWorkflowService(store, log)
	governance := NewGovernanceService(policy, posting, workflow, store, nil, nil, log)

	return &testEnv{
		store:      store,
		posting:    posting,
		budgets:    budgets,
		policy:     policy,
		workflow:   workflow,
		governance: governance,
	}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// openPeriod creates an open fiscal period covering all of 2026.
func (e *testEnv) openPeriod(t *testing.T, tenantID string) *repository.FiscalPeriod {
	t.Helper()
	period, err := e.budgets.CreatePeriod(context.Background(), &CreatePeriodRequest{
		TenantID:  tenantID,
		Name:      "FY2026",
		StartDate: date("2026-01-01"),
		EndDate:   date("2026-12-31"),
	})
	require.NoError(t, err)
	return period
}

func (e *testEnv) account(t *testing.T, tenantID, code, accountType string) *repository.Account {
	t.Helper()
	account, err := e.posting.RegisterAccount(context.Background(), &RegisterAccountRequest{
		TenantID:           tenantID,
		Code:               code,
		Name:               "Account " + code,
		Type:               accountType,
		IsTrackedForBudget: accountType == repository.AccountTypeExpense,
	})
	require.NoError(t, err)
	return account
}
