package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/jengahub/be-gl-governance/internal/apperrors"
	"github.com/jengahub/be-gl-governance/internal/database"
)

// PolicyRepository persists tenant policy configurations. Module policies are
// stored as a JSONB array on the row.
type PolicyRepository struct {
	db *database.DB
}

// NewPolicyRepository creates a new PolicyRepository.
func NewPolicyRepository(db *database.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// Get retrieves a tenant's policy configuration.
func (r *PolicyRepository) GetPolicy(ctx context.Context, tenantID string) (*PolicyConfig, error) {
	query := `
		SELECT tenant_id, absolute_ceiling, budget_enforcement, budget_threshold,
		       default_levels, module_policies, created_at, updated_at
		FROM policy_configs
		WHERE tenant_id = $1
	`

	policy := &PolicyConfig{}
	var modulesJSON []byte

	err := r.db.QueryRow(ctx, query, tenantID).Scan(
		&policy.TenantID,
		&policy.AbsoluteCeiling,
		&policy.BudgetEnforcement,
		&policy.BudgetThreshold,
		&policy.DefaultLevels,
		&modulesJSON,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("policy_config", tenantID)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to get policy config")
	}

	if len(modulesJSON) > 0 {
		if err := json.Unmarshal(modulesJSON, &policy.ModulePolicies); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to unmarshal module policies")
		}
	}
	return policy, nil
}

// Upsert creates or replaces a tenant's policy configuration.
func (r *PolicyRepository) UpsertPolicy(ctx context.Context, policy *PolicyConfig) error {
	modulesJSON, err := json.Marshal(policy.ModulePolicies)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to marshal module policies")
	}

	query := `
		INSERT INTO policy_configs
		    (tenant_id, absolute_ceiling, budget_enforcement, budget_threshold,
		     default_levels, module_policies)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id)
		DO UPDATE SET absolute_ceiling   = EXCLUDED.absolute_ceiling,
		              budget_enforcement = EXCLUDED.budget_enforcement,
		              budget_threshold   = EXCLUDED.budget_threshold,
		              default_levels     = EXCLUDED.default_levels,
		              module_policies    = EXCLUDED.module_policies,
		              updated_at         = NOW()
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		policy.TenantID,
		policy.AbsoluteCeiling,
		policy.BudgetEnforcement,
		policy.BudgetThreshold,
		policy.DefaultLevels,
		modulesJSON,
	).Scan(&policy.CreatedAt, &policy.UpdatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to upsert policy config")
	}
	return nil
}

var _ PolicyStore = (*PolicyRepository)(nil)
