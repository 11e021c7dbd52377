package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"agrimon-alert/internal/config"
	"agrimon-alert/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// CacheManager keeps the latest reading and the latest triggered alerts per
// sector in Redis, where the dashboard layer reads them. Entries carry a
// short TTL so stale sectors age out on their own.
type CacheManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewCacheManager creates the cache manager.
func NewCacheManager(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) *CacheManager {
	return &CacheManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

func (c *CacheManager) readingKey(sectorID string) string {
	return fmt.Sprintf("%s%s%s",
		c.config.Alert.Cache.ReadingKeyPrefix,
		sectorID,
		c.config.Alert.Cache.ReadingSuffix,
	)
}

func (c *CacheManager) alertKey(sectorID string) string {
	return fmt.Sprintf("%s%s%s",
		c.config.Alert.Cache.AlertKeyPrefix,
		sectorID,
		c.config.Alert.Cache.AlertSuffix,
	)
}

func (c *CacheManager) ttl() time.Duration {
	return time.Duration(c.config.Alert.Cache.CacheTTL) * time.Second
}

// StoreLatestReading caches a sector's most recent reading.
func (c *CacheManager) StoreLatestReading(ctx context.Context, sectorID string, reading models.Reading) error {
	jsonData, err := json.Marshal(reading)
	if err != nil {
		return fmt.Errorf("failed to marshal reading: %w", err)
	}

	if err := c.redisClient.Set(ctx, c.readingKey(sectorID), jsonData, c.ttl()).Err(); err != nil {
		return fmt.Errorf("failed to set reading cache: %w", err)
	}

	return nil
}

// LatestReading returns the cached reading for a sector.
func (c *CacheManager) LatestReading(ctx context.Context, sectorID string) (models.Reading, error) {
	val, err := c.redisClient.Get(ctx, c.readingKey(sectorID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("no cached reading for sector: %s", sectorID)
		}
		return nil, fmt.Errorf("failed to get reading cache: %w", err)
	}

	var reading models.Reading
	if err := json.Unmarshal([]byte(val), &reading); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reading: %w", err)
	}

	return reading, nil
}

// UpdateAlertCache caches the alerts most recently fired for a sector.
func (c *CacheManager) UpdateAlertCache(ctx context.Context, sectorID string, alerts []models.Alert) error {
	jsonData, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	if err := c.redisClient.Set(ctx, c.alertKey(sectorID), jsonData, c.ttl()).Err(); err != nil {
		return fmt.Errorf("failed to set alert cache: %w", err)
	}

	c.logger.Debug("Updated alert cache",
		zap.String("sector_id", sectorID),
		zap.Int("alert_count", len(alerts)),
	)

	return nil
}

// SectorIDs lists the sectors with a cached reading, by scanning keys.
func (c *CacheManager) SectorIDs(ctx context.Context) ([]string, error) {
	pattern := fmt.Sprintf("%s*%s",
		c.config.Alert.Cache.ReadingKeyPrefix,
		c.config.Alert.Cache.ReadingSuffix,
	)

	var sectorIDs []string
	iter := c.redisClient.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		sectorID := key[len(c.config.Alert.Cache.ReadingKeyPrefix):]
		sectorID = sectorID[:len(sectorID)-len(c.config.Alert.Cache.ReadingSuffix)]
		sectorIDs = append(sectorIDs, sectorID)
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan reading keys: %w", err)
	}

	return sectorIDs, nil
}
