package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"agrimon-alert/internal/config"
	"agrimon-alert/internal/consumer"
	"agrimon-alert/internal/database"
	"agrimon-alert/internal/evaluator"
	"agrimon-alert/internal/models"
	"agrimon-alert/internal/mqtt"
	"agrimon-alert/internal/notifier"
	redisclient "agrimon-alert/internal/redis"
	"agrimon-alert/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// defaultRules is the fixed rule set seeded on first start against an empty
// rule table.
var defaultRules = []models.RuleSpec{
	{Name: "High air temperature", Metric: "air_temperature", Condition: models.ConditionAbove, Threshold: models.ScalarThreshold(40), Severity: models.SeverityCritical},
	{Name: "Low air temperature", Metric: "air_temperature", Condition: models.ConditionBelow, Threshold: models.ScalarThreshold(18), Severity: models.SeverityWarning},
	{Name: "Low relative humidity", Metric: "relative_humidity", Condition: models.ConditionBelow, Threshold: models.ScalarThreshold(65), Severity: models.SeverityWarning},
	{Name: "Dry soil", Metric: "soil_humidity", Condition: models.ConditionBelow, Threshold: models.ScalarThreshold(30), Severity: models.SeverityCritical},
	{Name: "Saturated soil", Metric: "soil_humidity", Condition: models.ConditionAbove, Threshold: models.ScalarThreshold(80), Severity: models.SeverityWarning},
}

// AlertService is the composition root: it owns the stores, the channel
// registry, the dispatcher, the evaluation engine, and the reading
// consumer, and exposes the operations the API layer maps onto.
type AlertService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqtt.Client
	logger      *zap.Logger

	rulesRepo      *repository.AlertRulesRepository
	alertsRepo     *repository.AlertsRepository
	deliveriesRepo *repository.DeliveriesRepository
	prefsRepo      *repository.PreferencesRepository

	cooldowns    *evaluator.RedisCooldownStore
	registry     *notifier.Registry
	dispatcher   *notifier.Dispatcher
	engine       *evaluator.Engine
	cacheManager *consumer.CacheManager
	consumer     *consumer.ReadingConsumer
}

// NewAlertService connects the backing stores and wires the pipeline.
func NewAlertService(cfg *config.Config, logger *zap.Logger) (*AlertService, error) {
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	rdb := redisclient.NewRedisClient(&cfg.Redis)
	if err := redisclient.Ping(context.Background(), rdb); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}

	rulesRepo := repository.NewAlertRulesRepository(db, logger, cfg.Alert.DefaultCooldownMs)
	alertsRepo := repository.NewAlertsRepository(db, logger)
	deliveriesRepo := repository.NewDeliveriesRepository(db, logger)
	prefsRepo := repository.NewPreferencesRepository(db, logger)

	cooldowns := evaluator.NewRedisCooldownStore(rdb, cfg.Alert.Cache.CooldownKeyPrefix, logger)

	stubLatency := time.Duration(cfg.Notify.StubLatencyMs) * time.Millisecond
	registry := notifier.NewRegistry()
	registry.Register(models.ChannelEmail, notifier.NewEmailChannel(logger, stubLatency))
	registry.Register(models.ChannelWhatsApp, notifier.NewWhatsAppChannel(logger, stubLatency))
	registry.Register(models.ChannelCall, notifier.NewCallChannel(logger, stubLatency))

	dispatcher := notifier.NewDispatcher(
		registry,
		prefsRepo,
		deliveriesRepo,
		time.Duration(cfg.Notify.SendTimeout)*time.Second,
		cfg.Notify.LogLimit,
		logger,
	)

	engine := evaluator.NewEngine(
		cfg.TenantID,
		rulesRepo,
		alertsRepo,
		cooldowns,
		dispatcher,
		cfg.Alert.HistoryLimit,
		logger,
	)

	cacheManager := consumer.NewCacheManager(cfg, rdb, logger)
	readingConsumer := consumer.NewReadingConsumer(cfg, mqttClient, cacheManager, engine, logger)

	return &AlertService{
		config:         cfg,
		db:             db,
		redisClient:    rdb,
		mqttClient:     mqttClient,
		logger:         logger,
		rulesRepo:      rulesRepo,
		alertsRepo:     alertsRepo,
		deliveriesRepo: deliveriesRepo,
		prefsRepo:      prefsRepo,
		cooldowns:      cooldowns,
		registry:       registry,
		dispatcher:     dispatcher,
		engine:         engine,
		cacheManager:   cacheManager,
		consumer:       readingConsumer,
	}, nil
}

// Start seeds default rules if needed and runs the reading consumer until
// ctx is done.
func (s *AlertService) Start(ctx context.Context) error {
	s.logger.Info("Starting alert service",
		zap.String("tenant_id", s.config.TenantID),
		zap.Strings("channels", s.registry.IDs()),
	)

	if err := s.seedDefaultRules(ctx); err != nil {
		return err
	}

	return s.consumer.Start(ctx)
}

// Stop closes the broker, database, and Redis connections.
func (s *AlertService) Stop() error {
	s.logger.Info("Stopping alert service")

	s.mqttClient.Disconnect()

	if err := database.Close(s.db); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}
	if err := redisclient.Close(s.redisClient); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	return nil
}

func (s *AlertService) seedDefaultRules(ctx context.Context) error {
	if !s.config.Alert.SeedDefaultRules {
		return nil
	}

	count, err := s.rulesRepo.CountRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to count rules: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, spec := range defaultRules {
		if _, err := s.rulesRepo.AddRule(ctx, spec); err != nil {
			return fmt.Errorf("failed to seed rule %q: %w", spec.Name, err)
		}
	}

	s.logger.Info("Seeded default alert rules",
		zap.Int("count", len(defaultRules)),
	)
	return nil
}

// AddRule stores a normalized rule and returns it.
func (s *AlertService) AddRule(ctx context.Context, spec models.RuleSpec) (*models.AlertRule, error) {
	return s.rulesRepo.AddRule(ctx, spec)
}

// RemoveRule deletes a rule; true iff it existed.
func (s *AlertService) RemoveRule(ctx context.Context, ruleID string) (bool, error) {
	return s.rulesRepo.RemoveRule(ctx, ruleID)
}

// ListRules returns rules matching the filters.
func (s *AlertService) ListRules(ctx context.Context, filters models.RuleFilters) ([]models.AlertRule, error) {
	return s.rulesRepo.ListRules(ctx, filters)
}

// AlertHistory returns past alerts, most recent first.
func (s *AlertService) AlertHistory(ctx context.Context, limit int) ([]models.Alert, error) {
	return s.engine.AlertHistory(ctx, limit)
}

// ActiveAlerts lists (rule, sector) pairs currently in cooldown.
func (s *AlertService) ActiveAlerts(ctx context.Context) ([]evaluator.ActiveAlert, error) {
	return s.engine.ActiveAlerts(ctx)
}

// GetPreferences returns a user's preferences, or the defaults when the
// user never saved any. Reads never persist the defaults.
func (s *AlertService) GetPreferences(ctx context.Context, userID string) (models.Preferences, error) {
	if userID == "" {
		userID = s.config.Notify.DefaultUser
	}
	prefs, err := s.prefsRepo.GetPreferences(ctx, userID)
	if err != nil {
		return models.Preferences{}, err
	}
	if prefs == nil {
		return models.DefaultPreferences(), nil
	}
	return *prefs, nil
}

// SetPreferences merges a partial update onto the user's current (or
// default) preferences, persists, and returns the merged result.
func (s *AlertService) SetPreferences(ctx context.Context, userID string, patch models.PreferencesPatch) (models.Preferences, error) {
	if userID == "" {
		userID = s.config.Notify.DefaultUser
	}
	current, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return models.Preferences{}, err
	}
	merged := current.Merge(patch)
	if err := s.prefsRepo.UpsertPreferences(ctx, userID, merged); err != nil {
		return models.Preferences{}, err
	}
	return merged, nil
}

// SendTestNotification sends a test message through a named channel.
func (s *AlertService) SendTestNotification(ctx context.Context, channel, recipient, message string) (*models.DeliveryResult, error) {
	return s.dispatcher.SendTest(ctx, channel, recipient, message)
}

// DeliveryLog returns past deliveries, most recent first.
func (s *AlertService) DeliveryLog(ctx context.Context, limit int) ([]models.DeliveryRecord, error) {
	return s.dispatcher.DeliveryLog(ctx, limit)
}

// SendReport fans a generated report out over the user's report channels.
func (s *AlertService) SendReport(ctx context.Context, userID string, report models.Report) ([]models.ChannelOutcome, error) {
	if userID == "" {
		userID = s.config.Notify.DefaultUser
	}
	return s.dispatcher.SendReport(ctx, userID, report)
}

// TriggerFromInsights dispatches analyzer insights, bypassing rules and
// cooldown.
func (s *AlertService) TriggerFromInsights(ctx context.Context, userID string, insights []models.Insight, meta models.SectorMeta) ([]evaluator.AlertNotification, error) {
	if userID == "" {
		userID = s.config.Notify.DefaultUser
	}
	return s.engine.TriggerFromInsights(ctx, userID, insights, meta)
}
