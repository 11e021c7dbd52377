package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.User)
	assert.Equal(t, "agrimon", cfg.Database.Database)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Redis.DB)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "agrimon-alert", cfg.MQTT.ClientID)
	assert.Equal(t, "agrimon/+/sector/+/readings", cfg.MQTT.ReadingsTopic)

	assert.Equal(t, "", cfg.TenantID)

	assert.Equal(t, int64(1800000), cfg.Alert.DefaultCooldownMs)
	assert.Equal(t, 100, cfg.Alert.HistoryLimit)
	assert.True(t, cfg.Alert.SeedDefaultRules)
	assert.Equal(t, "agrimon:sector:", cfg.Alert.Cache.ReadingKeyPrefix)
	assert.Equal(t, ":reading", cfg.Alert.Cache.ReadingSuffix)
	assert.Equal(t, ":alerts", cfg.Alert.Cache.AlertSuffix)
	assert.Equal(t, 300, cfg.Alert.Cache.CacheTTL)
	assert.Equal(t, "agrimon:cooldown:", cfg.Alert.Cache.CooldownKeyPrefix)

	assert.Equal(t, 10, cfg.Notify.SendTimeout)
	assert.Equal(t, 100, cfg.Notify.StubLatencyMs)
	assert.Equal(t, 50, cfg.Notify.LogLimit)
	assert.Equal(t, "default", cfg.Notify.DefaultUser)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Setenv("DB_HOST", "test-host")
	os.Setenv("DB_NAME", "test-db")
	os.Setenv("REDIS_ADDR", "test-redis:6380")
	os.Setenv("MQTT_BROKER", "tcp://test-broker:1883")
	os.Setenv("TENANT_ID", "rancho-norte")
	os.Setenv("ALERT_DEFAULT_COOLDOWN_MS", "60000")
	os.Setenv("ALERT_SEED_DEFAULT_RULES", "false")
	os.Setenv("NOTIFY_SEND_TIMEOUT", "5")
	os.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, "test-db", cfg.Database.Database)
	assert.Equal(t, "test-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "tcp://test-broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "rancho-norte", cfg.TenantID)
	assert.Equal(t, int64(60000), cfg.Alert.DefaultCooldownMs)
	assert.False(t, cfg.Alert.SeedDefaultRules)
	assert.Equal(t, 5, cfg.Notify.SendTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)

	os.Clearenv()
}

func TestGetEnvInt_MalformedFallsBack(t *testing.T) {
	os.Setenv("TEST_INT_KEY", "not-a-number")
	assert.Equal(t, 42, getEnvInt("TEST_INT_KEY", 42))
	os.Unsetenv("TEST_INT_KEY")

	assert.Equal(t, 7, getEnvInt("TEST_INT_MISSING", 7))
}
