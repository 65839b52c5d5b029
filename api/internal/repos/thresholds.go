package repos

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"mold-inspection-backend/api/internal/models"
)

// ThresholdsRepo backs the runtime-editable rule store consumed by the
// schedule engine and alert dispatcher.
type ThresholdsRepo struct {
	pool *pgxpool.Pool
}

func NewThresholdsRepo(pool *pgxpool.Pool) *ThresholdsRepo {
	return &ThresholdsRepo{pool: pool}
}

func (r *ThresholdsRepo) GetRule(ctx context.Context, key string) (models.ThresholdRule, error) {
	var rule models.ThresholdRule
	err := r.pool.QueryRow(ctx, `
		SELECT rule_key, value, min_value, max_value, description, updated_by, updated_at
		FROM threshold_rules
		WHERE rule_key = $1
	`, key).
		Scan(&rule.RuleKey, &rule.Value, &rule.MinValue, &rule.MaxValue, &rule.Description, &rule.UpdatedBy, &rule.UpdatedAt)
	return rule, err
}

func (r *ThresholdsRepo) ListRules(ctx context.Context) ([]models.ThresholdRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rule_key, value, min_value, max_value, description, updated_by, updated_at
		FROM threshold_rules
		ORDER BY rule_key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.ThresholdRule
	for rows.Next() {
		var rule models.ThresholdRule
		if err := rows.Scan(&rule.RuleKey, &rule.Value, &rule.MinValue, &rule.MaxValue, &rule.Description, &rule.UpdatedBy, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// SetRule updates a rule's value after checking it against the rule's own
// declared bounds. New rule keys are not creatable at runtime.
func (r *ThresholdsRepo) SetRule(ctx context.Context, key string, value float64, updatedBy string) (models.ThresholdRule, error) {
	rule, err := r.GetRule(ctx, key)
	if err != nil {
		return models.ThresholdRule{}, err
	}
	if value < rule.MinValue || value > rule.MaxValue {
		return models.ThresholdRule{}, fmt.Errorf("%w: %s must be within [%v, %v]", models.ErrValidation, key, rule.MinValue, rule.MaxValue)
	}
	err = r.pool.QueryRow(ctx, `
		UPDATE threshold_rules
		SET value = $2, updated_by = $3, updated_at = now()
		WHERE rule_key = $1
		RETURNING rule_key, value, min_value, max_value, description, updated_by, updated_at
	`, key, value, nullIfEmpty(updatedBy)).
		Scan(&rule.RuleKey, &rule.Value, &rule.MinValue, &rule.MaxValue, &rule.Description, &rule.UpdatedBy, &rule.UpdatedAt)
	return rule, err
}
