package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"agrimon-alert/internal/models"

	"go.uber.org/zap"
)

// DeliveriesRepository owns the notification_deliveries log: append-only
// writes, most-recent-first bounded reads.
type DeliveriesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDeliveriesRepository creates the delivery log store.
func NewDeliveriesRepository(db *sql.DB, logger *zap.Logger) *DeliveriesRepository {
	return &DeliveriesRepository{
		db:     db,
		logger: logger,
	}
}

// CreateDelivery appends one delivery record.
func (r *DeliveriesRepository) CreateDelivery(ctx context.Context, record *models.DeliveryRecord) error {
	if record == nil {
		return fmt.Errorf("delivery record is required")
	}
	if record.ID == "" {
		return fmt.Errorf("delivery id is required")
	}

	payloadJSON, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}
	resultJSON, err := json.Marshal(record.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `
		INSERT INTO notification_deliveries (
			delivery_id, channel, recipient, payload, result, delivered_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)
	`

	_, err = r.db.ExecContext(ctx, query,
		record.ID,
		record.Channel,
		record.Recipient,
		payloadJSON,
		resultJSON,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert delivery record: %w", err)
	}

	return nil
}

// RecentDeliveries returns at most limit records, most recent first. Ties on
// delivered_at fall back to insertion order via the seq column.
func (r *DeliveriesRepository) RecentDeliveries(ctx context.Context, limit int) ([]models.DeliveryRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}

	query := `
		SELECT delivery_id, channel, recipient, payload, result, delivered_at
		FROM notification_deliveries
		ORDER BY delivered_at DESC, seq DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query delivery records: %w", err)
	}
	defer rows.Close()

	records := []models.DeliveryRecord{}
	for rows.Next() {
		var record models.DeliveryRecord
		var payloadJSON, resultJSON []byte

		err := rows.Scan(
			&record.ID,
			&record.Channel,
			&record.Recipient,
			&payloadJSON,
			&resultJSON,
			&record.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan delivery record: %w", err)
		}

		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &record.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}
		if len(resultJSON) > 0 {
			if err := json.Unmarshal(resultJSON, &record.Result); err != nil {
				return nil, fmt.Errorf("failed to unmarshal result: %w", err)
			}
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate delivery records: %w", err)
	}

	return records, nil
}
