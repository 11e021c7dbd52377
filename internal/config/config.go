package config

import (
	"fmt"
	"os"
	"strconv"
)

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN builds a lib/pq connection string.
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig holds broker settings for the readings subscription.
type MQTTConfig struct {
	Broker        string
	ClientID      string
	Username      string
	Password      string
	QoS           byte
	ReadingsTopic string // wildcard topic for sector readings
}

// Config is the alert service configuration, loaded from environment
// variables with local-development defaults.
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// Tenant this instance evaluates for. Empty means no tenant scoping:
	// only globally-scoped rules apply.
	TenantID string

	Alert struct {
		// Cooldown applied when a rule is added without one.
		DefaultCooldownMs int64
		// Result bound for history reads when callers pass none.
		HistoryLimit int
		// Seed the fixed default rule set when the rule table is empty.
		SeedDefaultRules bool

		Cache struct {
			ReadingKeyPrefix  string // latest-reading cache key prefix
			ReadingSuffix     string
			AlertKeyPrefix    string // triggered-alert cache key prefix
			AlertSuffix       string
			CacheTTL          int    // seconds
			CooldownKeyPrefix string // per-(rule,sector) cooldown keys
		}
	}

	Notify struct {
		// Per-channel send timeout (seconds). A channel that exceeds it is
		// recorded as failed; siblings are unaffected.
		SendTimeout int
		// Simulated latency of the stub channels (milliseconds).
		StubLatencyMs int
		// Result bound for delivery log reads when callers pass none.
		LogLimit int
		// User notified on the streaming path when readings carry no user.
		DefaultUser string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "agrimon")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "agrimon-alert")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(getEnvInt("MQTT_QOS", 1))
	cfg.MQTT.ReadingsTopic = getEnv("MQTT_READINGS_TOPIC", "agrimon/+/sector/+/readings")

	cfg.TenantID = getEnv("TENANT_ID", "")

	cfg.Alert.DefaultCooldownMs = int64(getEnvInt("ALERT_DEFAULT_COOLDOWN_MS", 1800000)) // 30 minutes
	cfg.Alert.HistoryLimit = getEnvInt("ALERT_HISTORY_LIMIT", 100)
	cfg.Alert.SeedDefaultRules = getEnv("ALERT_SEED_DEFAULT_RULES", "true") == "true"

	cfg.Alert.Cache.ReadingKeyPrefix = getEnv("CACHE_READING_PREFIX", "agrimon:sector:")
	cfg.Alert.Cache.ReadingSuffix = ":reading"
	cfg.Alert.Cache.AlertKeyPrefix = getEnv("CACHE_ALERT_PREFIX", "agrimon:sector:")
	cfg.Alert.Cache.AlertSuffix = ":alerts"
	cfg.Alert.Cache.CacheTTL = getEnvInt("CACHE_TTL", 300)
	cfg.Alert.Cache.CooldownKeyPrefix = getEnv("CACHE_COOLDOWN_PREFIX", "agrimon:cooldown:")

	cfg.Notify.SendTimeout = getEnvInt("NOTIFY_SEND_TIMEOUT", 10)
	cfg.Notify.StubLatencyMs = getEnvInt("NOTIFY_STUB_LATENCY_MS", 100)
	cfg.Notify.LogLimit = getEnvInt("NOTIFY_LOG_LIMIT", 50)
	cfg.Notify.DefaultUser = getEnv("NOTIFY_DEFAULT_USER", "default")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
