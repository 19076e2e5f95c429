package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengahub/be-gl-governance/internal/apperrors"
	"github.com/jengahub/be-gl-governance/internal/repository"
)

func TestSetAllocation_ClosedPeriodFails(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	period := env.openPeriod(t, "tenant-1")
	expense := env.account(t, "tenant-1", "5000", repository.AccountTypeExpense)

	_, err := env.budgets.ClosePeriod(ctx, "tenant-1", period.ID)
	require.NoError(t, err)

	_, err = env.budgets.SetAllocation(ctx, &SetAllocationRequest{
		TenantID:  "tenant-1",
		PeriodID:  period.ID,
		AccountID: expense.ID,
		Limit:     dec("10000"),
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodePeriodLocked, apperrors.Code(err))
}

func TestSetAllocation_UnknownAccountFails(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	period := env.openPeriod(t, "tenant-1")

	_, err := env.budgets.SetAllocation(context.Background(), &SetAllocationRequest{
		TenantID:  "tenant-1",
		PeriodID:  period.ID,
		AccountID: "missing",
		Limit:     dec("10000"),
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeUnknownAccount, apperrors.Code(err))
}

func TestGetVariance_RecomputedFromLedger(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	period := env.openPeriod(t, "tenant-1")
	cash := env.account(t, "tenant-1", "1000", repository.AccountTypeAsset)
	expense := env.account(t, "tenant-1", "5000", repository.AccountTypeExpense)

	_, err := env.budgets.SetAllocation(ctx, &SetAllocationRequest{
		TenantID:  "tenant-1",
		PeriodID:  period.ID,
		AccountID: expense.ID,
		Limit:     dec("1000"),
	})
	require.NoError(t, err)

	// No postings yet: actual and utilization are zero.
	rows, err := env.budgets.GetVariance(ctx, "tenant-1", period.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Actual.IsZero())
	assert.False(t, rows[0].Breached)

	post := func(amount string) {
		_, err := env.posting.PostEntry(ctx, &PostEntryRequest{
			TenantID:      "tenant-1",
			EffectiveDate: date("2026-04-01"),
			Lines: []*PostLineRequest{
				{AccountID: expense.ID, Side: repository.SideDebit, Amount: dec(amount)},
				{AccountID: cash.ID, Side: repository.SideCredit, Amount: dec(amount)},
			},
		})
		require.NoError(t, err)
	}

	post("400")
	rows, err = env.budgets.GetVariance(ctx, "tenant-1", period.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Actual.Equal(dec("400")), "actual = %s", rows[0].Actual)
	assert.True(t, rows[0].Utilization.Equal(dec("0.4")), "utilization = %s", rows[0].Utilization)
	assert.False(t, rows[0].Breached)

	post("700")
	rows, err = env.budgets.GetVariance(ctx, "tenant-1", period.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Actual.Equal(dec("1100")), "actual = %s", rows[0].Actual)
	assert.True(t, rows[0].Breached, "utilization %s should breach", rows[0].Utilization)
	assert.Equal(t, expense.Code, rows[0].AccountCode)
}

func TestGetVariance_IgnoresPostingsOutsidePeriod(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	q1, err := env.budgets.CreatePeriod(ctx, &CreatePeriodRequest{
		TenantID:  "tenant-1",
		Name:      "Q1",
		StartDate: date("2026-01-01"),
		EndDate:   date("2026-03-31"),
	})
	require.NoError(t, err)
	_, err = env.budgets.CreatePeriod(ctx, &CreatePeriodRequest{
		TenantID:  "tenant-1",
		Name:      "Q2",
		StartDate: date("2026-04-01"),
		EndDate:   date("2026-06-30"),
	})
	require.NoError(t, err)

	cash := env.account(t, "tenant-1", "1000", repository.AccountTypeAsset)
	expense := env.account(t, "tenant-1", "5000", repository.AccountTypeExpense)

	_, err = env.budgets.SetAllocation(ctx, &SetAllocationRequest{
		TenantID:  "tenant-1",
		PeriodID:  q1.ID,
		AccountID: expense.ID,
		Limit:     dec("1000"),
	})
	require.NoError(t, err)

	// One posting in Q1, one in Q2. Only the Q1 posting counts.
	for _, d := range []string{"2026-02-15", "2026-05-15"} {
		_, err := env.posting.PostEntry(ctx, &PostEntryRequest{
			TenantID:      "tenant-1",
			EffectiveDate: date(d),
			Lines: []*PostLineRequest{
				{AccountID: expense.ID, Side: repository.SideDebit, Amount: dec("300")},
				{AccountID: cash.ID, Side: repository.SideCredit, Amount: dec("300")},
			},
		})
		require.NoError(t, err)
	}

	rows, err := env.budgets.GetVariance(ctx, "tenant-1", q1.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Actual.Equal(dec("300")), "actual = %s", rows[0].Actual)
}

// An intra-day timestamp on the period's last day must land inside the
// variance window, not slip past the end bound.
func TestGetVariance_CountsIntraDayPostingOnLastDay(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	period := env.openPeriod(t, "tenant-1")
	cash := env.account(t, "tenant-1", "1000", repository.AccountTypeAsset)
	expense := env.account(t, "tenant-1", "5000", repository.AccountTypeExpense)

	_, err := env.budgets.SetAllocation(ctx, &SetAllocationRequest{
		TenantID:  "tenant-1",
		PeriodID:  period.ID,
		AccountID: expense.ID,
		Limit:     dec("1000"),
	})
	require.NoError(t, err)

	// Noon on the period's closing day.
	_, err = env.posting.PostEntry(ctx, &PostEntryRequest{
		TenantID:      "tenant-1",
		Description:   "year-end accrual",
		EffectiveDate: time.Date(2026, 12, 31, 12, 0, 0, 0, time.UTC),
		Lines: []*PostLineRequest{
			{AccountID: expense.ID, Side: repository.SideDebit, Amount: dec("500")},
			{AccountID: cash.ID, Side: repository.SideCredit, Amount: dec("500")},
		},
	})
	require.NoError(t, err)

	rows, err := env.budgets.GetVariance(ctx, "tenant-1", period.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Actual.Equal(dec("500")), "actual = %s", rows[0].Actual)

	projected, ok, err := env.budgets.ProjectedUtilization(ctx, "tenant-1", expense.ID,
		time.Date(2026, 12, 31, 23, 30, 0, 0, time.UTC), dec("100"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, projected.Equal(dec("0.6")), "projected = %s", projected)
}

func TestCreatePeriod_OverlapFails(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	env.openPeriod(t, "tenant-1")

	_, err := env.budgets.CreatePeriod(ctx, &CreatePeriodRequest{
		TenantID:  "tenant-1",
		Name:      "Overlapping",
		StartDate: date("2026-06-01"),
		EndDate:   date("2027-05-31"),
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConflict, apperrors.Code(err))

	// Same range for another tenant is fine.
	_, err = env.budgets.CreatePeriod(ctx, &CreatePeriodRequest{
		TenantID:  "tenant-2",
		Name:      "FY2026",
		StartDate: date("2026-01-01"),
		EndDate:   date("2026-12-31"),
	})
	require.NoError(t, err)
}

func TestProjectedUtilization(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	period := env.openPeriod(t, "tenant-1")
	cash := env.account(t, "tenant-1", "1000", repository.AccountTypeAsset)
	expense := env.account(t, "tenant-1", "5000", repository.AccountTypeExpense)

	// No allocation: the budget rule does not apply.
	_, ok, err := env.budgets.ProjectedUtilization(ctx, "tenant-1", expense.ID, date("2026-03-01"), dec("100"))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = env.budgets.SetAllocation(ctx, &SetAllocationRequest{
		TenantID:  "tenant-1",
		PeriodID:  period.ID,
		AccountID: expense.ID,
		Limit:     dec("1000"),
	})
	require.NoError(t, err)

	_, err = env.posting.PostEntry(ctx, &PostEntryRequest{
		TenantID:      "tenant-1",
		EffectiveDate: date("2026-03-01"),
		Lines: []*PostLineRequest{
			{AccountID: expense.ID, Side: repository.SideDebit, Amount: dec("600")},
			{AccountID: cash.ID, Side: repository.SideCredit, Amount: dec("600")},
		},
	})
	require.NoError(t, err)

	projected, ok, err := env.budgets.ProjectedUtilization(ctx, "tenant-1", expense.ID, date("2026-03-02"), dec("300"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, projected.Equal(dec("0.9")), "projected = %s", projected)
}
