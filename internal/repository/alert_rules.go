package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"agrimon-alert/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertRulesRepository owns the alert_rules table. Rules are created via
// AddRule and removed via RemoveRule; they never expire implicitly.
type AlertRulesRepository struct {
	db                *sql.DB
	logger            *zap.Logger
	defaultCooldownMs int64
}

// NewAlertRulesRepository creates the rule store. defaultCooldownMs is
// applied to rules added without a cooldown.
func NewAlertRulesRepository(db *sql.DB, logger *zap.Logger, defaultCooldownMs int64) *AlertRulesRepository {
	return &AlertRulesRepository{
		db:                db,
		logger:            logger,
		defaultCooldownMs: defaultCooldownMs,
	}
}

// AddRule normalizes and stores a rule: missing id/createdAt/severity/
// cooldown/enabled get defaults, and the threshold shape is validated
// against the condition. Returns the stored rule.
func (r *AlertRulesRepository) AddRule(ctx context.Context, spec models.RuleSpec) (*models.AlertRule, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("rule name is required")
	}
	if spec.Metric == "" {
		return nil, fmt.Errorf("rule metric is required")
	}
	if err := spec.Threshold.Validate(spec.Condition); err != nil {
		return nil, fmt.Errorf("invalid rule threshold: %w", err)
	}

	rule := models.AlertRule{
		ID:         spec.ID,
		Name:       spec.Name,
		Metric:     spec.Metric,
		Condition:  spec.Condition,
		Threshold:  spec.Threshold,
		Severity:   spec.Severity,
		CooldownMs: spec.CooldownMs,
		Enabled:    true,
		TenantID:   spec.TenantID,
		SectorID:   spec.SectorID,
		CreatedAt:  time.Now().UTC(),
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.Severity == "" {
		rule.Severity = models.SeverityWarning
	}
	if rule.CooldownMs <= 0 {
		rule.CooldownMs = r.defaultCooldownMs
	}
	if spec.Enabled != nil {
		rule.Enabled = *spec.Enabled
	}

	thresholdJSON, err := json.Marshal(rule.Threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal threshold: %w", err)
	}

	query := `
		INSERT INTO alert_rules (
			rule_id, name, metric, condition, threshold,
			severity, cooldown_ms, enabled, tenant_id, sector_id, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID,
		rule.Name,
		rule.Metric,
		string(rule.Condition),
		thresholdJSON,
		string(rule.Severity),
		rule.CooldownMs,
		rule.Enabled,
		rule.TenantID,
		rule.SectorID,
		rule.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert alert rule: %w", err)
	}

	r.logger.Info("Alert rule added",
		zap.String("rule_id", rule.ID),
		zap.String("metric", rule.Metric),
		zap.String("condition", string(rule.Condition)),
	)

	return &rule, nil
}

// RemoveRule deletes a rule. Returns true iff a rule with that id existed.
func (r *AlertRulesRepository) RemoveRule(ctx context.Context, ruleID string) (bool, error) {
	if ruleID == "" {
		return false, fmt.Errorf("rule_id is required")
	}

	result, err := r.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE rule_id = $1`, ruleID)
	if err != nil {
		return false, fmt.Errorf("failed to delete alert rule: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// ListRules returns rules matching the filters in insertion order. Tenant
// and sector filters admit rules without that scope (global rules apply to
// every tenant/sector); the enabled filter matches exactly.
func (r *AlertRulesRepository) ListRules(ctx context.Context, filters models.RuleFilters) ([]models.AlertRule, error) {
	where := []string{}
	args := []interface{}{}
	argN := 1

	if filters.TenantID != nil {
		where = append(where, fmt.Sprintf("(tenant_id IS NULL OR tenant_id = $%d)", argN))
		args = append(args, *filters.TenantID)
		argN++
	}
	if filters.SectorID != nil {
		where = append(where, fmt.Sprintf("(sector_id IS NULL OR sector_id = $%d)", argN))
		args = append(args, *filters.SectorID)
		argN++
	}
	if filters.Enabled != nil {
		where = append(where, fmt.Sprintf("enabled = $%d", argN))
		args = append(args, *filters.Enabled)
		argN++
	}

	query := `
		SELECT rule_id, name, metric, condition, threshold,
		       severity, cooldown_ms, enabled, tenant_id, sector_id, created_at
		FROM alert_rules
	`
	for i, clause := range where {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY created_at ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert rules: %w", err)
	}
	defer rows.Close()

	rules := []models.AlertRule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alert rules: %w", err)
	}

	return rules, nil
}

// GetRule fetches a single rule by id. Returns nil, nil when absent.
func (r *AlertRulesRepository) GetRule(ctx context.Context, ruleID string) (*models.AlertRule, error) {
	if ruleID == "" {
		return nil, fmt.Errorf("rule_id is required")
	}

	query := `
		SELECT rule_id, name, metric, condition, threshold,
		       severity, cooldown_ms, enabled, tenant_id, sector_id, created_at
		FROM alert_rules
		WHERE rule_id = $1
	`

	rule, err := scanRule(r.db.QueryRowContext(ctx, query, ruleID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rule, nil
}

// CountRules returns the total number of stored rules.
func (r *AlertRulesRepository) CountRules(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alert_rules`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count alert rules: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*models.AlertRule, error) {
	var rule models.AlertRule
	var condition, severity string
	var thresholdJSON []byte
	var tenantID, sectorID sql.NullString

	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Metric,
		&condition,
		&thresholdJSON,
		&severity,
		&rule.CooldownMs,
		&rule.Enabled,
		&tenantID,
		&sectorID,
		&rule.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan alert rule: %w", err)
	}

	rule.Condition = models.Condition(condition)
	rule.Severity = models.Severity(severity)
	if err := json.Unmarshal(thresholdJSON, &rule.Threshold); err != nil {
		return nil, fmt.Errorf("failed to unmarshal threshold: %w", err)
	}
	if tenantID.Valid {
		rule.TenantID = &tenantID.String
	}
	if sectorID.Valid {
		rule.SectorID = &sectorID.String
	}

	return &rule, nil
}
