package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jengahub/be-gl-governance/internal/apperrors"
	"github.com/jengahub/be-gl-governance/internal/logger"
	"github.com/jengahub/be-gl-governance/internal/repository"
)

// Gating reasons carried on approval requests and surfaced to callers.
const (
	ReasonAbsoluteCeiling = "absolute_ceiling"
	ReasonBudgetThreshold = "budget_threshold"
	ReasonModuleRatio     = "module_ratio"
)

// Decision is the outcome of a policy evaluation.
type Decision struct {
	// RequireApproval gates the mutation behind an approval chain of Levels
	// stages for Reason. When false the mutation is clear to execute.
	RequireApproval bool
	Levels          int
	Reason          string

	// Warning is an advisory-mode budget notice returned to the caller. It
	// never gates or blocks.
	Warning string
}

// EvaluationInput is everything a policy evaluation looks at. The variance
// context is resolved by the service wrapper before the pure evaluation so
// the rule logic itself has no side effects.
type EvaluationInput struct {
	Module string
	Action string
	Amount decimal.Decimal
	// Ratio is a module-supplied fraction (e.g. discount percentage as a
	// fraction) checked against the module's configured ceiling. Nil when
	// the mutation carries no ratio.
	Ratio *decimal.Decimal
	// ProjectedUtilization is (actual + amount) / limit for the targeted
	// account's allocation in the covering period. Nil when the mutation
	// names no account or the account has no allocation.
	ProjectedUtilization *decimal.Decimal
}

var decimalOne = decimal.NewFromInt(1)

// Evaluate applies the tenant's ruleset to one mutation. Rules run in fixed
// order and the first match wins: absolute ceiling, then budget variance,
// then module ratio, then clear. Identical inputs always produce identical
// decisions.
func Evaluate(policy *repository.PolicyConfig, in EvaluationInput) Decision {
	if policy.AbsoluteCeiling != nil && in.Amount.GreaterThan(*policy.AbsoluteCeiling) {
		return Decision{
			RequireApproval: true,
			Levels:          policy.LevelsFor(in.Module),
			Reason:          ReasonAbsoluteCeiling,
		}
	}

	if in.ProjectedUtilization != nil && policy.BudgetThreshold.IsPositive() &&
		in.ProjectedUtilization.GreaterThan(policy.BudgetThreshold) {
		switch policy.BudgetEnforcement {
		case repository.EnforcementStrict:
			// Strict enforcement gates here; whether the approved mutation may
			// actually execute is re-checked at commit time by
			// AuthorizeExecution.
			return Decision{
				RequireApproval: true,
				Levels:          policy.LevelsFor(in.Module),
				Reason:          ReasonBudgetThreshold,
			}
		default:
			// Advisory: warn, keep evaluating lower-precedence rules.
			warning := "projected budget utilization " + in.ProjectedUtilization.StringFixed(4) +
				" exceeds threshold " + policy.BudgetThreshold.StringFixed(4)
			d := evaluateRatio(policy, in)
			d.Warning = warning
			return d
		}
	}

	return evaluateRatio(policy, in)
}

func evaluateRatio(policy *repository.PolicyConfig, in EvaluationInput) Decision {
	if in.Ratio != nil {
		if maxRatio := policy.MaxRatioFor(in.Module); maxRatio != nil && in.Ratio.GreaterThan(*maxRatio) {
			return Decision{
				RequireApproval: true,
				Levels:          policy.LevelsFor(in.Module),
				Reason:          ReasonModuleRatio,
			}
		}
	}
	return Decision{}
}

// PolicyService resolves tenant policy configuration and variance context,
// then delegates to the pure Evaluate.
type PolicyService struct {
	policies repository.PolicyStore
	budgets  *BudgetService
	log      *logger.Logger
}

// NewPolicyService creates a new policy service.
func NewPolicyService(policies repository.PolicyStore, budgets *BudgetService, log *logger.Logger) *PolicyService {
	return &PolicyService{policies: policies, budgets: budgets, log: log}
}

// defaultPolicy is the configuration for tenants that never customized
// anything: no ceilings, advisory budgets warned above 80%, single-stage
// chains.
func defaultPolicy(tenantID string) *repository.PolicyConfig {
	return &repository.PolicyConfig{
		TenantID:          tenantID,
		BudgetEnforcement: repository.EnforcementAdvisory,
		BudgetThreshold:   decimal.NewFromFloat(0.8),
		DefaultLevels:     1,
	}
}

// GetPolicy returns the tenant's policy, falling back to defaults when none
// was ever stored.
func (s *PolicyService) GetPolicy(ctx context.Context, tenantID string) (*repository.PolicyConfig, error) {
	policy, err := s.policies.GetPolicy(ctx, tenantID)
	if err != nil {
		if apperrors.IsCode(err, apperrors.ErrCodeNotFound) {
			return defaultPolicy(tenantID), nil
		}
		return nil, err
	}
	return policy, nil
}

// UpsertPolicy validates and stores a tenant's policy configuration.
func (s *PolicyService) UpsertPolicy(ctx context.Context, policy *repository.PolicyConfig) (*repository.PolicyConfig, error) {
	if policy.BudgetEnforcement != repository.EnforcementAdvisory &&
		policy.BudgetEnforcement != repository.EnforcementStrict {
		return nil, apperrors.InvalidInput("budget_enforcement", "must be advisory or strict")
	}
	if policy.BudgetThreshold.IsNegative() {
		return nil, apperrors.InvalidInput("budget_threshold", "threshold cannot be negative")
	}
	if policy.AbsoluteCeiling != nil && policy.AbsoluteCeiling.IsNegative() {
		return nil, apperrors.InvalidInput("absolute_ceiling", "ceiling cannot be negative")
	}
	if policy.DefaultLevels < 0 {
		return nil, apperrors.InvalidInput("default_levels", "levels cannot be negative")
	}
	for _, mp := range policy.ModulePolicies {
		if mp.Module == "" {
			return nil, apperrors.InvalidInput("module_policies", "module name is required")
		}
		if mp.Levels < 0 {
			return nil, apperrors.InvalidInput("module_policies", "levels cannot be negative")
		}
		if mp.MaxRatio != nil && mp.MaxRatio.IsNegative() {
			return nil, apperrors.InvalidInput("module_policies", "max ratio cannot be negative")
		}
	}

	if err := s.policies.UpsertPolicy(ctx, policy); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("tenant_id", policy.TenantID).
		Str("budget_enforcement", policy.BudgetEnforcement).
		Int("module_policies", len(policy.ModulePolicies)).
		Msg("Policy configuration updated")

	return policy, nil
}

// AuthorizeExecution is the commit-time budget check. Under strict
// enforcement a mutation whose projected spend consumes the account's entire
// ceiling may not execute, approved or not, until someone raises the
// allocation. Advisory tenants and mutations without a budgeted account
// always pass.
func (s *PolicyService) AuthorizeExecution(ctx context.Context, tenantID, accountID string, effectiveDate time.Time, amount decimal.Decimal) error {
	if accountID == "" {
		return nil
	}

	policy, err := s.GetPolicy(ctx, tenantID)
	if err != nil {
		return err
	}
	if policy.BudgetEnforcement != repository.EnforcementStrict {
		return nil
	}

	projected, ok, err := s.budgets.ProjectedUtilization(ctx, tenantID, accountID, effectiveDate, amount)
	if err != nil {
		return err
	}
	if ok && projected.GreaterThanOrEqual(decimalOne) {
		return apperrors.Newf(apperrors.ErrCodeStrictBudgetBlock,
			"projected utilization %s consumes the full budget ceiling under strict enforcement",
			projected.StringFixed(4))
	}
	return nil
}

// EvaluateMutation resolves policy and budget context for one mutation and
// runs the ruleset. accountID may be empty when the mutation targets no
// single budgeted account.
func (s *PolicyService) EvaluateMutation(
	ctx context.Context,
	tenantID, module, action string,
	amount decimal.Decimal,
	ratio *decimal.Decimal,
	accountID string,
	effectiveDate time.Time,
) (Decision, error) {
	policy, err := s.GetPolicy(ctx, tenantID)
	if err != nil {
		return Decision{}, err
	}

	in := EvaluationInput{Module: module, Action: action, Amount: amount, Ratio: ratio}
	if accountID != "" {
		projected, ok, err := s.budgets.ProjectedUtilization(ctx, tenantID, accountID, effectiveDate, amount)
		if err != nil {
			return Decision{}, err
		}
		if ok {
			in.ProjectedUtilization = &projected
		}
	}

	decision := Evaluate(policy, in)

	s.log.Debug().
		Str("tenant_id", tenantID).
		Str("module", module).
		Str("action", action).
		Str("amount", amount.String()).
		Bool("require_approval", decision.RequireApproval).
		Str("reason", decision.Reason).
		Msg("Policy evaluated")

	return decision, nil
}
