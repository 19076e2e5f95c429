package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengahub/be-gl-governance/internal/apperrors"
	"github.com/jengahub/be-gl-governance/internal/repository"
)

func testPolicy() *repository.PolicyConfig {
	return &repository.PolicyConfig{
		TenantID:          "tenant-1",
		AbsoluteCeiling:   decPtr("50000"),
		BudgetEnforcement: repository.EnforcementAdvisory,
		BudgetThreshold:   dec("0.8"),
		DefaultLevels:     2,
		ModulePolicies: []repository.ModulePolicy{
			{Module: ModuleSales, Levels: 3, MaxRatio: decPtr("0.15")},
		},
	}
}

func TestEvaluate_RulePrecedence(t *testing.T) {
	t.Parallel()

	projectedHigh := dec("0.95")

	tests := []struct {
		name       string
		policy     func() *repository.PolicyConfig
		input      EvaluationInput
		wantGated  bool
		wantReason string
		wantLevels int
	}{
		{
			name:   "amount above absolute ceiling is gated",
			policy: testPolicy,
			input: EvaluationInput{
				Module: ModuleProcurement,
				Amount: dec("50000.01"),
			},
			wantGated:  true,
			wantReason: ReasonAbsoluteCeiling,
			wantLevels: 2,
		},
		{
			name:   "amount at ceiling passes",
			policy: testPolicy,
			input: EvaluationInput{
				Module: ModuleProcurement,
				Amount: dec("50000"),
			},
			wantGated: false,
		},
		{
			name: "absolute ceiling wins over budget rule",
			policy: func() *repository.PolicyConfig {
				p := testPolicy()
				p.BudgetEnforcement = repository.EnforcementStrict
				return p
			},
			input: EvaluationInput{
				Module:               ModuleProcurement,
				Amount:               dec("60000"),
				ProjectedUtilization: &projectedHigh,
			},
			wantGated:  true,
			wantReason: ReasonAbsoluteCeiling,
			wantLevels: 2,
		},
		{
			name: "strict budget breach above threshold is gated",
			policy: func() *repository.PolicyConfig {
				p := testPolicy()
				p.BudgetEnforcement = repository.EnforcementStrict
				return p
			},
			input: EvaluationInput{
				Module:               ModuleProcurement,
				Amount:               dec("100"),
				ProjectedUtilization: &projectedHigh,
			},
			wantGated:  true,
			wantReason: ReasonBudgetThreshold,
			wantLevels: 2,
		},
		{
			name:   "sales discount above module ratio uses module chain length",
			policy: testPolicy,
			input: EvaluationInput{
				Module: ModuleSales,
				Amount: dec("100"),
				Ratio:  decPtr("0.20"),
			},
			wantGated:  true,
			wantReason: ReasonModuleRatio,
			wantLevels: 3,
		},
		{
			name:   "sales discount at module ratio passes",
			policy: testPolicy,
			input: EvaluationInput{
				Module: ModuleSales,
				Amount: dec("100"),
				Ratio:  decPtr("0.15"),
			},
			wantGated: false,
		},
		{
			name:   "small clean mutation is clear",
			policy: testPolicy,
			input: EvaluationInput{
				Module: ModuleTreasury,
				Amount: dec("100"),
			},
			wantGated: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Evaluate(tt.policy(), tt.input)
			assert.Equal(t, tt.wantGated, d.RequireApproval)
			if tt.wantGated {
				assert.Equal(t, tt.wantReason, d.Reason)
				assert.Equal(t, tt.wantLevels, d.Levels)
			}
		})
	}
}

func TestEvaluate_AdvisoryWarnsWithoutGating(t *testing.T) {
	t.Parallel()

	projected := dec("0.90")
	d := Evaluate(testPolicy(), EvaluationInput{
		Module:               ModuleProcurement,
		Amount:               dec("100"),
		ProjectedUtilization: &projected,
	})

	assert.False(t, d.RequireApproval)
	assert.NotEmpty(t, d.Warning)
}

// Advisory breach must still let the module ratio rule gate.
func TestEvaluate_AdvisoryFallsThroughToRatioRule(t *testing.T) {
	t.Parallel()

	projected := dec("0.90")
	d := Evaluate(testPolicy(), EvaluationInput{
		Module:               ModuleSales,
		Amount:               dec("100"),
		Ratio:                decPtr("0.50"),
		ProjectedUtilization: &projected,
	})

	assert.True(t, d.RequireApproval)
	assert.Equal(t, ReasonModuleRatio, d.Reason)
	assert.NotEmpty(t, d.Warning)
}

// A fully consumed ceiling still queues under strict enforcement; whether the
// approved mutation may execute is decided separately by AuthorizeExecution.
func TestEvaluate_StrictFullyConsumedCeilingStillQueues(t *testing.T) {
	t.Parallel()

	policy := testPolicy()
	policy.BudgetEnforcement = repository.EnforcementStrict
	projected := dec("1.05")

	d := Evaluate(policy, EvaluationInput{
		Module:               ModuleProcurement,
		Amount:               dec("100"),
		ProjectedUtilization: &projected,
	})

	assert.True(t, d.RequireApproval)
	assert.Equal(t, ReasonBudgetThreshold, d.Reason)
}

func TestAuthorizeExecution_StrictCeiling(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	period := env.openPeriod(t, "tenant-1")
	expense := env.account(t, "tenant-1", "5000", repository.AccountTypeExpense)

	_, err := env.budgets.SetAllocation(ctx, &SetAllocationRequest{
		TenantID:  "tenant-1",
		PeriodID:  period.ID,
		AccountID: expense.ID,
		Limit:     dec("1000"),
	})
	require.NoError(t, err)

	policy := testPolicy()
	policy.BudgetEnforcement = repository.EnforcementStrict
	_, err = env.policy.UpsertPolicy(ctx, policy)
	require.NoError(t, err)

	// A fully consumed ceiling refuses execution under strict enforcement.
	err = env.policy.AuthorizeExecution(ctx, "tenant-1", expense.ID, date("2026-03-15"), dec("1500"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeStrictBudgetBlock, apperrors.Code(err))

	// Below the ceiling the same check passes.
	require.NoError(t,
		env.policy.AuthorizeExecution(ctx, "tenant-1", expense.ID, date("2026-03-15"), dec("900")))

	// Advisory enforcement never refuses execution.
	policy.BudgetEnforcement = repository.EnforcementAdvisory
	_, err = env.policy.UpsertPolicy(ctx, policy)
	require.NoError(t, err)
	require.NoError(t,
		env.policy.AuthorizeExecution(ctx, "tenant-1", expense.ID, date("2026-03-15"), dec("1500")))
}

// Identical inputs must always produce identical decisions.
func TestEvaluate_Deterministic(t *testing.T) {
	t.Parallel()

	policy := testPolicy()
	projected := dec("0.85")
	input := EvaluationInput{
		Module:               ModuleSales,
		Amount:               dec("40000"),
		Ratio:                decPtr("0.10"),
		ProjectedUtilization: &projected,
	}

	first := Evaluate(policy, input)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, Evaluate(policy, input))
	}
}

func TestPolicyService_DefaultsWhenUnconfigured(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	policy, err := env.policy.GetPolicy(context.Background(), "brand-new-tenant")
	require.NoError(t, err)

	assert.Nil(t, policy.AbsoluteCeiling)
	assert.Equal(t, repository.EnforcementAdvisory, policy.BudgetEnforcement)
	assert.Equal(t, 1, policy.LevelsFor(ModuleTreasury))
}

func TestPolicyService_UpsertValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.policy.UpsertPolicy(ctx, &repository.PolicyConfig{
		TenantID:          "tenant-1",
		BudgetEnforcement: "casual",
		BudgetThreshold:   dec("0.8"),
	})
	require.Error(t, err)

	negative := dec("-1")
	_, err = env.policy.UpsertPolicy(ctx, &repository.PolicyConfig{
		TenantID:          "tenant-1",
		AbsoluteCeiling:   &negative,
		BudgetEnforcement: repository.EnforcementStrict,
		BudgetThreshold:   dec("0.8"),
	})
	require.Error(t, err)

	stored, err := env.policy.UpsertPolicy(ctx, testPolicy())
	require.NoError(t, err)
	assert.Equal(t, 3, stored.LevelsFor(ModuleSales))

	reloaded, err := env.policy.GetPolicy(ctx, "tenant-1")
	require.NoError(t, err)
	require.NotNil(t, reloaded.AbsoluteCeiling)
	assert.True(t, reloaded.AbsoluteCeiling.Equal(decimal.NewFromInt(50000)))
}
