package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"agrimon-alert/internal/models"

	"go.uber.org/zap"
)

// AlertsRepository owns the alerts history table: append-only writes,
// most-recent-first bounded reads.
type AlertsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertsRepository creates the alert history store.
func NewAlertsRepository(db *sql.DB, logger *zap.Logger) *AlertsRepository {
	return &AlertsRepository{
		db:     db,
		logger: logger,
	}
}

// CreateAlert appends a triggered alert to history.
func (r *AlertsRepository) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if alert == nil {
		return fmt.Errorf("alert is required")
	}
	if alert.ID == "" {
		return fmt.Errorf("alert id is required")
	}

	thresholdJSON, err := json.Marshal(alert.Threshold)
	if err != nil {
		return fmt.Errorf("failed to marshal threshold: %w", err)
	}

	query := `
		INSERT INTO alerts (
			alert_id, rule_id, rule_name, sector_id, sector_name, ranch_name,
			metric, value, threshold, condition, severity,
			title, description, action, triggered_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`

	_, err = r.db.ExecContext(ctx, query,
		alert.ID,
		alert.RuleID,
		alert.RuleName,
		alert.SectorID,
		alert.SectorName,
		alert.RanchName,
		alert.Metric,
		alert.Value,
		thresholdJSON,
		string(alert.Condition),
		string(alert.Severity),
		alert.Title,
		alert.Description,
		alert.Action,
		alert.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}

	return nil
}

// RecentAlerts returns at most limit alerts, most recent first. Ties on
// triggered_at fall back to insertion order via the seq column.
func (r *AlertsRepository) RecentAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	query := `
		SELECT alert_id, rule_id, rule_name, sector_id, sector_name, ranch_name,
		       metric, value, threshold, condition, severity,
		       title, description, action, triggered_at
		FROM alerts
		ORDER BY triggered_at DESC, seq DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		var alert models.Alert
		var condition, severity string
		var thresholdJSON []byte
		var ranchName, action sql.NullString

		err := rows.Scan(
			&alert.ID,
			&alert.RuleID,
			&alert.RuleName,
			&alert.SectorID,
			&alert.SectorName,
			&ranchName,
			&alert.Metric,
			&alert.Value,
			&thresholdJSON,
			&condition,
			&severity,
			&alert.Title,
			&alert.Description,
			&action,
			&alert.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}

		alert.Condition = models.Condition(condition)
		alert.Severity = models.Severity(severity)
		if len(thresholdJSON) > 0 {
			if err := json.Unmarshal(thresholdJSON, &alert.Threshold); err != nil {
				return nil, fmt.Errorf("failed to unmarshal threshold: %w", err)
			}
		}
		if ranchName.Valid {
			alert.RanchName = &ranchName.String
		}
		if action.Valid {
			alert.Action = &action.String
		}

		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, nil
}
