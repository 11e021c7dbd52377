package evaluator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// CooldownEntry is one live suppression entry: the rule last fired for the
// sector at LastTriggered and stays suppressed until its cooldown elapses.
type CooldownEntry struct {
	RuleID        string    `json:"ruleId"`
	SectorID      string    `json:"sectorId"`
	LastTriggered time.Time `json:"lastTriggered"`
}

// CooldownStore tracks per-(rule, sector) suppression state. A pair is
// Cooling while an entry exists and Armed otherwise.
type CooldownStore interface {
	// Cooling reports whether the pair has a live suppression entry.
	Cooling(ctx context.Context, ruleID, sectorID string) (bool, error)
	// MarkTriggered writes or refreshes the entry with the given lifetime.
	MarkTriggered(ctx context.Context, ruleID, sectorID string, cooldown time.Duration) error
	// Entries lists all live suppression entries.
	Entries(ctx context.Context) ([]CooldownEntry, error)
}

// RedisCooldownStore keeps cooldown entries as Redis keys whose TTL equals
// the rule's cooldown. Expiry is handled by Redis, so the set never grows
// beyond the rules currently in the Cooling state.
type RedisCooldownStore struct {
	client    *redis.Client
	keyPrefix string
	logger    *zap.Logger
}

// NewRedisCooldownStore creates a cooldown store under the given key prefix.
func NewRedisCooldownStore(client *redis.Client, keyPrefix string, logger *zap.Logger) *RedisCooldownStore {
	return &RedisCooldownStore{
		client:    client,
		keyPrefix: keyPrefix,
		logger:    logger,
	}
}

func (s *RedisCooldownStore) key(ruleID, sectorID string) string {
	return fmt.Sprintf("%s%s:%s", s.keyPrefix, ruleID, sectorID)
}

// Cooling reports whether a live entry exists for the pair.
func (s *RedisCooldownStore) Cooling(ctx context.Context, ruleID, sectorID string) (bool, error) {
	count, err := s.client.Exists(ctx, s.key(ruleID, sectorID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cooldown state: %w", err)
	}
	return count > 0, nil
}

// MarkTriggered records the trigger time with TTL = cooldown. Re-firing
// after expiry refreshes both the timestamp and the TTL.
func (s *RedisCooldownStore) MarkTriggered(ctx context.Context, ruleID, sectorID string, cooldown time.Duration) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	err := s.client.Set(ctx, s.key(ruleID, sectorID), now, cooldown).Err()
	if err != nil {
		return fmt.Errorf("failed to set cooldown state: %w", err)
	}
	return nil
}

// Entries scans all live cooldown keys and returns their trigger times.
// Keys that expire between the scan and the read are skipped.
func (s *RedisCooldownStore) Entries(ctx context.Context) ([]CooldownEntry, error) {
	entries := []CooldownEntry{}

	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()

		val, err := s.client.Get(ctx, key).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			return nil, fmt.Errorf("failed to read cooldown entry: %w", err)
		}

		lastTriggered, err := time.Parse(time.RFC3339Nano, val)
		if err != nil {
			s.logger.Warn("Skipping malformed cooldown entry",
				zap.String("key", key),
				zap.String("value", val),
			)
			continue
		}

		// key layout: <prefix><ruleID>:<sectorID>; rule ids carry no colon
		pair := strings.TrimPrefix(key, s.keyPrefix)
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}

		entries = append(entries, CooldownEntry{
			RuleID:        parts[0],
			SectorID:      parts[1],
			LastTriggered: lastTriggered,
		})
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cooldown entries: %w", err)
	}

	return entries, nil
}
