package evaluator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"agrimon-alert/internal/models"
)

type fakeRuleSource struct {
	rules       []models.AlertRule
	lastFilters models.RuleFilters
}

func (f *fakeRuleSource) ListRules(ctx context.Context, filters models.RuleFilters) ([]models.AlertRule, error) {
	f.lastFilters = filters
	return f.rules, nil
}

type fakeAlertLog struct {
	created    []models.Alert
	lastLimit  int
	failWrites bool
}

func (f *fakeAlertLog) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if f.failWrites {
		return fmt.Errorf("history unavailable")
	}
	f.created = append(f.created, *alert)
	return nil
}

func (f *fakeAlertLog) RecentAlerts(ctx context.Context, limit int) ([]models.Alert, error) {
	f.lastLimit = limit
	recent := []models.Alert{}
	for i := len(f.created) - 1; i >= 0 && len(recent) < limit; i-- {
		recent = append(recent, f.created[i])
	}
	return recent, nil
}

type notifyCall struct {
	userID string
	alert  models.Alert
}

type fakeNotifier struct {
	calls []notifyCall
}

func (f *fakeNotifier) SendAlert(ctx context.Context, userID string, alert models.Alert) ([]models.ChannelOutcome, error) {
	f.calls = append(f.calls, notifyCall{userID: userID, alert: alert})
	return []models.ChannelOutcome{
		{Channel: models.ChannelEmail, Status: models.OutcomeSent, Delivered: true},
	}, nil
}

type engineFixture struct {
	engine   *Engine
	rules    *fakeRuleSource
	alerts   *fakeAlertLog
	notifier *fakeNotifier
	redis    *miniredis.Miniredis
}

func newEngineFixture(t *testing.T, tenantID string, rules ...models.AlertRule) *engineFixture {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ruleSource := &fakeRuleSource{rules: rules}
	alertLog := &fakeAlertLog{}
	notifier := &fakeNotifier{}
	cooldowns := NewRedisCooldownStore(client, "agrimon:cooldown:", zap.NewNop())

	return &engineFixture{
		engine:   NewEngine(tenantID, ruleSource, alertLog, cooldowns, notifier, 100, zap.NewNop()),
		rules:    ruleSource,
		alerts:   alertLog,
		notifier: notifier,
		redis:    mr,
	}
}

func tempRule(id string, cooldownMs int64) models.AlertRule {
	return models.AlertRule{
		ID:         id,
		Name:       "High air temperature",
		Metric:     "air_temperature",
		Condition:  models.ConditionAbove,
		Threshold:  models.ScalarThreshold(40),
		Severity:   models.SeverityCritical,
		CooldownMs: cooldownMs,
		Enabled:    true,
	}
}

func TestEvaluate_FiresOnBreach(t *testing.T) {
	fx := newEngineFixture(t, "", tempRule("rule-1", 60000))
	ctx := context.Background()

	ranch := "North Ranch"
	alerts, err := fx.engine.Evaluate(ctx, "sector-7",
		models.Reading{"air_temperature": 42.5},
		models.SectorMeta{Name: "Sector 7", RanchName: &ranch},
	)

	require.NoError(t, err)
	require.Len(t, alerts, 1)

	alert := alerts[0]
	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, "rule-1", alert.RuleID)
	assert.Equal(t, "sector-7", alert.SectorID)
	assert.Equal(t, "Sector 7", alert.SectorName)
	assert.Equal(t, 42.5, alert.Value)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, "High air temperature: air_temperature = 42.5", alert.Title)
	assert.Contains(t, alert.Description, "above")

	// fired alerts land in history
	require.Len(t, fx.alerts.created, 1)
	assert.Equal(t, alert.ID, fx.alerts.created[0].ID)
}

func TestEvaluate_BoundaryDoesNotFire(t *testing.T) {
	fx := newEngineFixture(t, "", tempRule("rule-1", 60000))

	alerts, err := fx.engine.Evaluate(context.Background(), "sector-7",
		models.Reading{"air_temperature": 40.0},
		models.SectorMeta{Name: "Sector 7"},
	)

	require.NoError(t, err)
	assert.Empty(t, alerts, "comparisons are strict: the threshold value itself never fires")
}

func TestEvaluate_SkipsMissingOrNonNumericMetric(t *testing.T) {
	fx := newEngineFixture(t, "", tempRule("rule-1", 60000))
	ctx := context.Background()

	alerts, err := fx.engine.Evaluate(ctx, "sector-7",
		models.Reading{"soil_humidity": 55.0},
		models.SectorMeta{Name: "Sector 7"},
	)
	require.NoError(t, err)
	assert.Empty(t, alerts)

	alerts, err = fx.engine.Evaluate(ctx, "sector-7",
		models.Reading{"air_temperature": "hot"},
		models.SectorMeta{Name: "Sector 7"},
	)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestEvaluate_CooldownSuppressesUntilExpiry(t *testing.T) {
	fx := newEngineFixture(t, "", tempRule("rule-1", 1000))
	ctx := context.Background()
	reading := models.Reading{"air_temperature": 45.0}
	meta := models.SectorMeta{Name: "Sector 7"}

	alerts, err := fx.engine.Evaluate(ctx, "sector-7", reading, meta)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	fx.redis.FastForward(500 * time.Millisecond)
	alerts, err = fx.engine.Evaluate(ctx, "sector-7", models.Reading{"air_temperature": 46.0}, meta)
	require.NoError(t, err)
	assert.Empty(t, alerts, "a still-breaching reading inside the window is suppressed")

	fx.redis.FastForward(501 * time.Millisecond)
	alerts, err = fx.engine.Evaluate(ctx, "sector-7", models.Reading{"air_temperature": 41.0}, meta)
	require.NoError(t, err)
	require.Len(t, alerts, 1, "the pair re-arms once the window elapses")
	assert.Equal(t, 41.0, alerts[0].Value)
}

func TestEvaluate_SectorsCoolIndependently(t *testing.T) {
	fx := newEngineFixture(t, "", tempRule("rule-1", 60000))
	ctx := context.Background()
	reading := models.Reading{"air_temperature": 45.0}

	alerts, err := fx.engine.Evaluate(ctx, "sector-7", reading, models.SectorMeta{Name: "Sector 7"})
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	alerts, err = fx.engine.Evaluate(ctx, "sector-8", reading, models.SectorMeta{Name: "Sector 8"})
	require.NoError(t, err)
	require.Len(t, alerts, 1, "cooldown state is per (rule, sector), not per rule")
}

func TestEvaluate_MultipleRulesFireFromOneReading(t *testing.T) {
	humidityRule := models.AlertRule{
		ID:         "rule-2",
		Name:       "Low relative humidity",
		Metric:     "air_humidity",
		Condition:  models.ConditionBelow,
		Threshold:  models.ScalarThreshold(65),
		Severity:   models.SeverityWarning,
		CooldownMs: 60000,
		Enabled:    true,
	}
	fx := newEngineFixture(t, "", tempRule("rule-1", 60000), humidityRule)

	alerts, err := fx.engine.Evaluate(context.Background(), "sector-7",
		models.Reading{"air_temperature": 45.0, "air_humidity": 50.0},
		models.SectorMeta{Name: "Sector 7"},
	)

	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "rule-1", alerts[0].RuleID)
	assert.Equal(t, "rule-2", alerts[1].RuleID)
}

func TestEvaluate_HistoryWriteFailureStillFires(t *testing.T) {
	fx := newEngineFixture(t, "", tempRule("rule-1", 60000))
	fx.alerts.failWrites = true
	ctx := context.Background()
	reading := models.Reading{"air_temperature": 45.0}
	meta := models.SectorMeta{Name: "Sector 7"}

	alerts, err := fx.engine.Evaluate(ctx, "sector-7", reading, meta)
	require.NoError(t, err)
	require.Len(t, alerts, 1, "a history outage must not swallow the alert")

	// cooldown was still set despite the failed write
	alerts, err = fx.engine.Evaluate(ctx, "sector-7", reading, meta)
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestEvaluate_AppliesTenantFilter(t *testing.T) {
	fx := newEngineFixture(t, "tenant-a", tempRule("rule-1", 60000))

	_, err := fx.engine.Evaluate(context.Background(), "sector-7",
		models.Reading{"air_temperature": 45.0},
		models.SectorMeta{Name: "Sector 7"},
	)
	require.NoError(t, err)

	require.NotNil(t, fx.rules.lastFilters.TenantID)
	assert.Equal(t, "tenant-a", *fx.rules.lastFilters.TenantID)
	require.NotNil(t, fx.rules.lastFilters.SectorID)
	assert.Equal(t, "sector-7", *fx.rules.lastFilters.SectorID)
	require.NotNil(t, fx.rules.lastFilters.Enabled)
	assert.True(t, *fx.rules.lastFilters.Enabled)
}

func TestEvaluateAndNotify(t *testing.T) {
	fx := newEngineFixture(t, "", tempRule("rule-1", 60000))

	results, err := fx.engine.EvaluateAndNotify(context.Background(), "grower-1", "sector-7",
		models.Reading{"air_temperature": 45.0},
		models.SectorMeta{Name: "Sector 7"},
	)

	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, results[0].Notifications, 1)
	assert.Equal(t, models.OutcomeSent, results[0].Notifications[0].Status)

	require.Len(t, fx.notifier.calls, 1)
	assert.Equal(t, "grower-1", fx.notifier.calls[0].userID)
	assert.Equal(t, results[0].Alert.ID, fx.notifier.calls[0].alert.ID)
}

func TestTriggerFromInsights(t *testing.T) {
	fx := newEngineFixture(t, "")
	ctx := context.Background()

	action := "Open the vents"
	insights := []models.Insight{
		{Severity: models.SeverityOK, Title: "Readings nominal"},
		{ID: "insight-1", Severity: models.SeverityCritical, Title: "Heat stress building", Description: "Canopy temperature trending up", Action: &action},
	}

	results, err := fx.engine.TriggerFromInsights(ctx, "grower-1", insights, models.SectorMeta{Name: "Sector 7"})
	require.NoError(t, err)
	require.Len(t, results, 1, "ok insights are informational and never dispatched")

	alert := results[0].Alert
	assert.Equal(t, "insight-1", alert.ID)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, "Sector 7", alert.SectorName)
	require.NotNil(t, alert.Action)
	assert.Equal(t, action, *alert.Action)
	assert.False(t, alert.Timestamp.IsZero())

	// the insight path never consults cooldown state
	results, err = fx.engine.TriggerFromInsights(ctx, "grower-1", insights, models.SectorMeta{Name: "Sector 7"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Len(t, fx.notifier.calls, 2)
}

func TestTriggerFromInsights_AssignsMissingID(t *testing.T) {
	fx := newEngineFixture(t, "")

	results, err := fx.engine.TriggerFromInsights(context.Background(), "grower-1",
		[]models.Insight{{Severity: models.SeverityWarning, Title: "Humidity drifting"}},
		models.SectorMeta{},
	)

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Alert.ID)
}

func TestActiveAlerts(t *testing.T) {
	fx := newEngineFixture(t, "", tempRule("rule-1", 60000))
	ctx := context.Background()

	active, err := fx.engine.ActiveAlerts(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = fx.engine.Evaluate(ctx, "sector-7",
		models.Reading{"air_temperature": 45.0},
		models.SectorMeta{Name: "Sector 7"},
	)
	require.NoError(t, err)

	active, err = fx.engine.ActiveAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "rule-1:sector-7", active[0].Key)
	assert.Equal(t, "rule-1", active[0].RuleID)
	assert.Equal(t, "sector-7", active[0].SectorID)
	assert.False(t, active[0].LastTriggered.IsZero())
}

func TestAlertHistory_DefaultsLimit(t *testing.T) {
	fx := newEngineFixture(t, "")

	_, err := fx.engine.AlertHistory(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 100, fx.alerts.lastLimit)

	_, err = fx.engine.AlertHistory(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, fx.alerts.lastLimit)
}
