package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"agrimon-alert/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RuleSource provides the rules applicable to an evaluation pass. The engine
// holds read-only references; rule ownership stays with the store.
type RuleSource interface {
	ListRules(ctx context.Context, filters models.RuleFilters) ([]models.AlertRule, error)
}

// AlertLog is the append-only alert history.
type AlertLog interface {
	CreateAlert(ctx context.Context, alert *models.Alert) error
	RecentAlerts(ctx context.Context, limit int) ([]models.Alert, error)
}

// AlertNotifier fans a triggered alert out to a user's configured channels.
type AlertNotifier interface {
	SendAlert(ctx context.Context, userID string, alert models.Alert) ([]models.ChannelOutcome, error)
}

// AlertNotification pairs a fired alert with its per-channel outcomes.
type AlertNotification struct {
	Alert         models.Alert            `json:"alert"`
	Notifications []models.ChannelOutcome `json:"notifications"`
}

// ActiveAlert reports one (rule, sector) pair currently in the Cooling
// state. There is no de-assertion signal, so this lists suppressed pairs,
// not conditions that are still true.
type ActiveAlert struct {
	Key           string    `json:"key"`
	RuleID        string    `json:"ruleId"`
	SectorID      string    `json:"sectorId"`
	LastTriggered time.Time `json:"lastTriggered"`
}

// Engine evaluates incoming sector readings against the enabled rules,
// suppresses repeat firing per (rule, sector) via the cooldown store, and
// hands fired alerts to the notifier.
type Engine struct {
	tenantID     string
	rules        RuleSource
	alerts       AlertLog
	cooldowns    CooldownStore
	notifier     AlertNotifier
	historyLimit int
	logger       *zap.Logger
}

// NewEngine creates the evaluation engine. tenantID may be empty, in which
// case only globally-scoped rules apply.
func NewEngine(
	tenantID string,
	rules RuleSource,
	alerts AlertLog,
	cooldowns CooldownStore,
	notifier AlertNotifier,
	historyLimit int,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		tenantID:     tenantID,
		rules:        rules,
		alerts:       alerts,
		cooldowns:    cooldowns,
		notifier:     notifier,
		historyLimit: historyLimit,
		logger:       logger,
	}
}

// Evaluate checks one reading against every applicable enabled rule and
// returns the alerts fired by this call. A rule is skipped when its metric
// is missing or non-numeric, when its condition holds at the boundary
// (comparisons are strict), or when its (rule, sector) pair is Cooling.
// Each fired rule is appended to history and its cooldown entry refreshed
// before the batch is returned.
func (e *Engine) Evaluate(ctx context.Context, sectorID string, reading models.Reading, meta models.SectorMeta) ([]models.Alert, error) {
	enabled := true
	filters := models.RuleFilters{
		SectorID: &sectorID,
		Enabled:  &enabled,
	}
	if e.tenantID != "" {
		filters.TenantID = &e.tenantID
	}

	rules, err := e.rules.ListRules(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}

	triggered := []models.Alert{}
	for i := range rules {
		rule := &rules[i]

		value, ok := reading.Metric(rule.Metric)
		if !ok {
			continue
		}
		if !rule.Breaches(value) {
			continue
		}

		cooling, err := e.cooldowns.Cooling(ctx, rule.ID, sectorID)
		if err != nil {
			e.logger.Error("Failed to check cooldown state",
				zap.String("rule_id", rule.ID),
				zap.String("sector_id", sectorID),
				zap.Error(err),
			)
			continue
		}
		if cooling {
			continue
		}

		alert := e.buildAlert(rule, sectorID, meta, value)

		if err := e.alerts.CreateAlert(ctx, &alert); err != nil {
			e.logger.Error("Failed to record alert",
				zap.String("alert_id", alert.ID),
				zap.String("rule_id", rule.ID),
				zap.Error(err),
			)
			// keep going: the alert still counts as fired
		}

		if err := e.cooldowns.MarkTriggered(ctx, rule.ID, sectorID, rule.Cooldown()); err != nil {
			e.logger.Error("Failed to set cooldown",
				zap.String("rule_id", rule.ID),
				zap.String("sector_id", sectorID),
				zap.Error(err),
			)
		}

		e.logger.Info("Alert triggered",
			zap.String("alert_id", alert.ID),
			zap.String("rule_id", rule.ID),
			zap.String("sector_id", sectorID),
			zap.String("metric", rule.Metric),
			zap.Float64("value", value),
			zap.String("severity", string(alert.Severity)),
		)

		triggered = append(triggered, alert)
	}

	return triggered, nil
}

// EvaluateAndNotify runs Evaluate and dispatches each fired alert to the
// user's channels. Dispatch failures are logged per alert and never affect
// evaluation semantics.
func (e *Engine) EvaluateAndNotify(ctx context.Context, userID, sectorID string, reading models.Reading, meta models.SectorMeta) ([]AlertNotification, error) {
	triggered, err := e.Evaluate(ctx, sectorID, reading, meta)
	if err != nil {
		return nil, err
	}

	results := []AlertNotification{}
	for _, alert := range triggered {
		outcomes, err := e.notifier.SendAlert(ctx, userID, alert)
		if err != nil {
			e.logger.Error("Failed to dispatch alert",
				zap.String("alert_id", alert.ID),
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}
		results = append(results, AlertNotification{
			Alert:         alert,
			Notifications: outcomes,
		})
	}

	return results, nil
}

// TriggerFromInsights dispatches pre-classified insights directly, bypassing
// rule evaluation and cooldown suppression entirely. Repeated calls with the
// same insight re-notify every time; this path is for interactive or manual
// triggers, not the streaming path. Insights with severity "ok" are skipped.
func (e *Engine) TriggerFromInsights(ctx context.Context, userID string, insights []models.Insight, meta models.SectorMeta) ([]AlertNotification, error) {
	results := []AlertNotification{}

	for _, insight := range insights {
		if insight.Severity == models.SeverityOK {
			continue
		}

		alert := models.Alert{
			ID:          insight.ID,
			SectorName:  meta.Name,
			RanchName:   meta.RanchName,
			Severity:    insight.Severity,
			Title:       insight.Title,
			Description: insight.Description,
			Action:      insight.Action,
			Timestamp:   insight.Timestamp,
		}
		if alert.ID == "" {
			alert.ID = uuid.New().String()
		}
		if alert.Timestamp.IsZero() {
			alert.Timestamp = time.Now().UTC()
		}

		if err := e.alerts.CreateAlert(ctx, &alert); err != nil {
			e.logger.Error("Failed to record insight alert",
				zap.String("alert_id", alert.ID),
				zap.Error(err),
			)
		}

		outcomes, err := e.notifier.SendAlert(ctx, userID, alert)
		if err != nil {
			e.logger.Error("Failed to dispatch insight alert",
				zap.String("alert_id", alert.ID),
				zap.String("user_id", userID),
				zap.Error(err),
			)
		}

		results = append(results, AlertNotification{
			Alert:         alert,
			Notifications: outcomes,
		})
	}

	return results, nil
}

// AlertHistory returns past alerts, most recent first. A non-positive limit
// falls back to the configured default.
func (e *Engine) AlertHistory(ctx context.Context, limit int) ([]models.Alert, error) {
	if limit <= 0 {
		limit = e.historyLimit
	}
	return e.alerts.RecentAlerts(ctx, limit)
}

// ActiveAlerts lists the (rule, sector) pairs currently in the Cooling state
// with their last trigger times.
func (e *Engine) ActiveAlerts(ctx context.Context) ([]ActiveAlert, error) {
	entries, err := e.cooldowns.Entries(ctx)
	if err != nil {
		return nil, err
	}

	active := make([]ActiveAlert, 0, len(entries))
	for _, entry := range entries {
		active = append(active, ActiveAlert{
			Key:           entry.RuleID + ":" + entry.SectorID,
			RuleID:        entry.RuleID,
			SectorID:      entry.SectorID,
			LastTriggered: entry.LastTriggered,
		})
	}
	return active, nil
}

func (e *Engine) buildAlert(rule *models.AlertRule, sectorID string, meta models.SectorMeta, value float64) models.Alert {
	sectorName := meta.Name
	if sectorName == "" {
		sectorName = sectorID
	}

	valueStr := strconv.FormatFloat(value, 'f', -1, 64)
	thresholdJSON, err := json.Marshal(rule.Threshold)
	if err != nil {
		thresholdJSON = []byte("null")
	}

	return models.Alert{
		ID:          uuid.New().String(),
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		SectorID:    sectorID,
		SectorName:  sectorName,
		RanchName:   meta.RanchName,
		Metric:      rule.Metric,
		Value:       value,
		Threshold:   rule.Threshold,
		Condition:   rule.Condition,
		Severity:    rule.Severity,
		Title:       fmt.Sprintf("%s: %s = %s", rule.Name, rule.Metric, valueStr),
		Description: fmt.Sprintf("%s is %s (rule: %s %s)", rule.Metric, valueStr, rule.Condition, thresholdJSON),
		Timestamp:   time.Now().UTC(),
	}
}
