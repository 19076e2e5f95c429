package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengahub/be-gl-governance/internal/apperrors"
	"github.com/jengahub/be-gl-governance/internal/repository"
)

func seedAccount(t *testing.T, s *Store, tenantID, code string) *repository.Account {
	t.Helper()
	account := &repository.Account{
		TenantID: tenantID,
		Code:     code,
		Name:     "Account " + code,
		Type:     repository.AccountTypeAsset,
		Balance:  decimal.Zero,
		IsActive: true,
	}
	require.NoError(t, s.CreateAccount(context.Background(), account))
	return account
}

func TestCommit_StaleVersionAppliesNothing(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	a := seedAccount(t, s, "tenant-1", "1000")
	b := seedAccount(t, s, "tenant-1", "2000")

	entry := &repository.JournalEntry{
		TenantID:      "tenant-1",
		EffectiveDate: time.Now(),
		Lines: []*repository.JournalLine{
			{AccountID: a.ID, Side: repository.SideDebit, Amount: decimal.NewFromInt(100)},
			{AccountID: b.ID, Side: repository.SideCredit, Amount: decimal.NewFromInt(100)},
		},
	}
	deltas := []repository.BalanceDelta{
		{AccountID: a.ID, Delta: decimal.NewFromInt(100), ExpectedVersion: 0},
		{AccountID: b.ID, Delta: decimal.NewFromInt(-100), ExpectedVersion: 7}, // stale
	}

	err := s.Commit(ctx, entry, deltas)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConflict, apperrors.Code(err))

	// Neither delta landed, no entry recorded.
	first, err := s.GetAccountByID(ctx, "tenant-1", a.ID)
	require.NoError(t, err)
	assert.True(t, first.Balance.IsZero())
	assert.Equal(t, int64(0), first.Version)

	entries, err := s.ListEntries(ctx, "tenant-1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCommit_BumpsVersions(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	a := seedAccount(t, s, "tenant-1", "1000")
	b := seedAccount(t, s, "tenant-1", "2000")

	entry := &repository.JournalEntry{
		TenantID:      "tenant-1",
		EffectiveDate: time.Now(),
		Lines: []*repository.JournalLine{
			{AccountID: a.ID, Side: repository.SideDebit, Amount: decimal.NewFromInt(50)},
			{AccountID: b.ID, Side: repository.SideCredit, Amount: decimal.NewFromInt(50)},
		},
	}
	require.NoError(t, s.Commit(ctx, entry, []repository.BalanceDelta{
		{AccountID: a.ID, Delta: decimal.NewFromInt(50), ExpectedVersion: 0},
		{AccountID: b.ID, Delta: decimal.NewFromInt(-50), ExpectedVersion: 0},
	}))
	require.NotEmpty(t, entry.ID)

	first, err := s.GetAccountByID(ctx, "tenant-1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Version)
	assert.True(t, first.Balance.Equal(decimal.NewFromInt(50)))
}

// Deactivation bumps the version so a commit that read the account as
// active before the toggle fails its version check.
func TestSetAccountActive_InvalidatesInFlightCommits(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	a := seedAccount(t, s, "tenant-1", "1000")
	b := seedAccount(t, s, "tenant-1", "2000")

	// A commit reads both accounts at version 0, then a deactivates.
	require.NoError(t, s.SetAccountActive(ctx, "tenant-1", a.ID, false))

	entry := &repository.JournalEntry{
		TenantID:      "tenant-1",
		EffectiveDate: time.Now(),
		Lines: []*repository.JournalLine{
			{AccountID: a.ID, Side: repository.SideDebit, Amount: decimal.NewFromInt(100)},
			{AccountID: b.ID, Side: repository.SideCredit, Amount: decimal.NewFromInt(100)},
		},
	}
	err := s.Commit(ctx, entry, []repository.BalanceDelta{
		{AccountID: a.ID, Delta: decimal.NewFromInt(100), ExpectedVersion: 0},
		{AccountID: b.ID, Delta: decimal.NewFromInt(-100), ExpectedVersion: 0},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConflict, apperrors.Code(err))

	stored, err := s.GetAccountByID(ctx, "tenant-1", a.ID)
	require.NoError(t, err)
	assert.True(t, stored.Balance.IsZero())
	assert.Equal(t, int64(1), stored.Version)
}

func TestTenantIsolation(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	a := seedAccount(t, s, "tenant-1", "1000")

	_, err := s.GetAccountByID(ctx, "tenant-2", a.ID)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.Code(err))

	accounts, err := s.ListAccounts(ctx, "tenant-2", false)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestAdvance_PreconditionGuardsTerminalTransition(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()
	request := &repository.ApprovalRequest{
		TenantID:     "tenant-1",
		Module:       "procurement",
		Action:       "create_purchase_order",
		Status:       repository.ApprovalStatusPending,
		CurrentLevel: 1,
		TotalLevels:  1,
		Amount:       decimal.NewFromInt(60000),
		RequestedBy:  "maker",
	}
	require.NoError(t, s.CreateRequest(ctx, request))

	now := time.Now()
	decision := &repository.ApprovalDecision{Level: 1, UserID: "checker", Decision: repository.DecisionApprove}
	require.NoError(t, s.Advance(ctx, "tenant-1", request.ID, 1, decision,
		repository.ApprovalStatusApproved, 1, &now))

	// Second advance hits the terminal precondition.
	other := &repository.ApprovalDecision{Level: 1, UserID: "checker-2", Decision: repository.DecisionApprove}
	err := s.Advance(ctx, "tenant-1", request.ID, 1, other,
		repository.ApprovalStatusApproved, 1, &now)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConflict, apperrors.Code(err))

	stored, err := s.GetRequestByID(ctx, "tenant-1", request.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Decisions, 1)
}

func TestUpsertAllocation_ReplacesLimit(t *testing.T) {
	t.Parallel()

	s := NewStore()
	ctx := context.Background()

	allocation := &repository.BudgetAllocation{
		TenantID:  "tenant-1",
		PeriodID:  "p1",
		AccountID: "a1",
		Limit:     decimal.NewFromInt(1000),
	}
	require.NoError(t, s.UpsertAllocation(ctx, allocation))
	firstID := allocation.ID

	updated := &repository.BudgetAllocation{
		TenantID:  "tenant-1",
		PeriodID:  "p1",
		AccountID: "a1",
		Limit:     decimal.NewFromInt(2500),
	}
	require.NoError(t, s.UpsertAllocation(ctx, updated))
	assert.Equal(t, firstID, updated.ID)

	stored, err := s.GetAllocation(ctx, "tenant-1", "p1", "a1")
	require.NoError(t, err)
	assert.True(t, stored.Limit.Equal(decimal.NewFromInt(2500)))
}
