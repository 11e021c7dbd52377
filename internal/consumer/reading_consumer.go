package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"agrimon-alert/internal/config"
	"agrimon-alert/internal/evaluator"
	"agrimon-alert/internal/models"
	"agrimon-alert/internal/mqtt"

	"go.uber.org/zap"
)

// AlertEvaluator is the engine surface the consumer drives.
type AlertEvaluator interface {
	EvaluateAndNotify(ctx context.Context, userID, sectorID string, reading models.Reading, meta models.SectorMeta) ([]evaluator.AlertNotification, error)
}

// readingMessage is the JSON body published on the readings topic. The
// sector id comes from the topic path, not the body.
type readingMessage struct {
	Reading    models.Reading `json:"reading"`
	SectorName string         `json:"sectorName,omitempty"`
	RanchName  *string        `json:"ranchName,omitempty"`
	UserID     string         `json:"userId,omitempty"`
}

// ReadingConsumer subscribes to sector readings over MQTT and feeds each
// one through the evaluation engine. Topic layout:
// agrimon/{tenantId}/sector/{sectorId}/readings
type ReadingConsumer struct {
	config     *config.Config
	mqttClient *mqtt.Client
	cache      *CacheManager
	evaluator  AlertEvaluator
	logger     *zap.Logger
}

// NewReadingConsumer creates the consumer.
func NewReadingConsumer(
	cfg *config.Config,
	mqttClient *mqtt.Client,
	cache *CacheManager,
	eval AlertEvaluator,
	logger *zap.Logger,
) *ReadingConsumer {
	return &ReadingConsumer{
		config:     cfg,
		mqttClient: mqttClient,
		cache:      cache,
		evaluator:  eval,
		logger:     logger,
	}
}

// Start subscribes to the readings topic and blocks until ctx is done.
func (c *ReadingConsumer) Start(ctx context.Context) error {
	topic := c.config.MQTT.ReadingsTopic

	err := c.mqttClient.Subscribe(topic, c.config.MQTT.QoS, func(msgTopic string, payload []byte) error {
		return c.HandleMessage(ctx, msgTopic, payload)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to readings: %w", err)
	}

	c.logger.Info("Reading consumer started",
		zap.String("topic", topic),
		zap.String("tenant_id", c.config.TenantID),
	)

	<-ctx.Done()

	if err := c.mqttClient.Unsubscribe(topic); err != nil {
		c.logger.Warn("Failed to unsubscribe from readings",
			zap.Error(err),
		)
	}
	c.logger.Info("Reading consumer stopped")
	return nil
}

// HandleMessage processes one readings message: cache the reading, run the
// engine, and cache any fired alerts. Messages for other tenants are
// ignored.
func (c *ReadingConsumer) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	tenantID, sectorID, err := parseReadingTopic(topic)
	if err != nil {
		return err
	}

	if c.config.TenantID != "" && tenantID != c.config.TenantID {
		c.logger.Debug("Ignoring reading for other tenant",
			zap.String("tenant_id", tenantID),
			zap.String("sector_id", sectorID),
		)
		return nil
	}

	var msg readingMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal reading message: %w", err)
	}
	if len(msg.Reading) == 0 {
		return fmt.Errorf("reading message carries no metrics: topic=%s", topic)
	}

	if err := c.cache.StoreLatestReading(ctx, sectorID, msg.Reading); err != nil {
		// cache is advisory; evaluation still runs
		c.logger.Warn("Failed to cache reading",
			zap.String("sector_id", sectorID),
			zap.Error(err),
		)
	}

	userID := msg.UserID
	if userID == "" {
		userID = c.config.Notify.DefaultUser
	}
	meta := models.SectorMeta{
		Name:      msg.SectorName,
		RanchName: msg.RanchName,
	}

	results, err := c.evaluator.EvaluateAndNotify(ctx, userID, sectorID, msg.Reading, meta)
	if err != nil {
		return fmt.Errorf("failed to evaluate reading: %w", err)
	}

	if len(results) > 0 {
		fired := make([]models.Alert, 0, len(results))
		for _, r := range results {
			fired = append(fired, r.Alert)
		}
		if err := c.cache.UpdateAlertCache(ctx, sectorID, fired); err != nil {
			c.logger.Warn("Failed to cache alerts",
				zap.String("sector_id", sectorID),
				zap.Error(err),
			)
		}
	}

	return nil
}

// parseReadingTopic extracts tenant and sector ids from a readings topic.
func parseReadingTopic(topic string) (tenantID, sectorID string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 5 || parts[0] != "agrimon" || parts[2] != "sector" || parts[4] != "readings" {
		return "", "", fmt.Errorf("unexpected readings topic: %s", topic)
	}
	return parts[1], parts[3], nil
}
