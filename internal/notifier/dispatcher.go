package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"agrimon-alert/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PreferenceSource resolves stored per-user preferences. A nil result means
// the user never saved any; the dispatcher substitutes the defaults without
// persisting them.
type PreferenceSource interface {
	GetPreferences(ctx context.Context, userID string) (*models.Preferences, error)
}

// DeliveryLog records successful sends.
type DeliveryLog interface {
	CreateDelivery(ctx context.Context, record *models.DeliveryRecord) error
	RecentDeliveries(ctx context.Context, limit int) ([]models.DeliveryRecord, error)
}

// Dispatcher fans alerts and reports out to a user's configured channels.
// Channels fail independently: one channel's error becomes a failed outcome
// entry and never aborts delivery to its siblings. There is no retry; this
// is best-effort, at-most-once-per-trigger delivery.
type Dispatcher struct {
	registry    *Registry
	preferences PreferenceSource
	deliveries  DeliveryLog
	sendTimeout time.Duration
	logLimit    int
	logger      *zap.Logger
}

// NewDispatcher creates the dispatcher. sendTimeout bounds each channel
// send; a channel that exceeds it is recorded as failed.
func NewDispatcher(
	registry *Registry,
	preferences PreferenceSource,
	deliveries DeliveryLog,
	sendTimeout time.Duration,
	logLimit int,
	logger *zap.Logger,
) *Dispatcher {
	return &Dispatcher{
		registry:    registry,
		preferences: preferences,
		deliveries:  deliveries,
		sendTimeout: sendTimeout,
		logLimit:    logLimit,
		logger:      logger,
	}
}

// Send delivers one payload through a named channel. Unknown channels fail
// with ErrUnknownChannel; channel transport errors propagate unmodified.
// A successful send is appended to the delivery log.
func (d *Dispatcher) Send(ctx context.Context, channelID, recipient string, payload models.Payload) (*models.DeliveryResult, error) {
	channel, err := d.registry.Resolve(channelID)
	if err != nil {
		return nil, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	result, err := channel.Send(sendCtx, recipient, payload)
	if err != nil {
		return nil, err
	}

	record := &models.DeliveryRecord{
		ID:        uuid.New().String(),
		Channel:   channelID,
		Recipient: recipient,
		Payload:   payload,
		Result:    *result,
		Timestamp: time.Now().UTC(),
	}
	if err := d.deliveries.CreateDelivery(ctx, record); err != nil {
		// the message left the building; a log write failure must not
		// turn the send into an error
		d.logger.Error("Failed to record delivery",
			zap.String("channel", channelID),
			zap.String("delivery_id", record.ID),
			zap.Error(err),
		)
	}

	return result, nil
}

// SendAlert resolves the user's preferences and attempts delivery on every
// configured alert channel with a contact address. Alerts below the user's
// minimum severity are not dispatched. Returns one outcome per attempted
// channel.
func (d *Dispatcher) SendAlert(ctx context.Context, userID string, alert models.Alert) ([]models.ChannelOutcome, error) {
	prefs, err := d.resolvePreferences(ctx, userID)
	if err != nil {
		return nil, err
	}

	if alert.Severity.Rank() < prefs.AlertSeverity.Rank() {
		d.logger.Debug("Alert below user's minimum severity, not dispatched",
			zap.String("user_id", userID),
			zap.String("alert_id", alert.ID),
			zap.String("severity", string(alert.Severity)),
			zap.String("minimum", string(prefs.AlertSeverity)),
		)
		return []models.ChannelOutcome{}, nil
	}

	payload := models.Payload{
		Type:       models.PayloadAlert,
		Subject:    fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title),
		Body:       alert.Description,
		Action:     alert.Action,
		SectorName: alert.SectorName,
		RanchName:  alert.RanchName,
	}

	return d.fanOut(ctx, prefs.AlertChannels, prefs.Contacts, payload), nil
}

// SendReport fans a report out over the user's report channels.
func (d *Dispatcher) SendReport(ctx context.Context, userID string, report models.Report) ([]models.ChannelOutcome, error) {
	prefs, err := d.resolvePreferences(ctx, userID)
	if err != nil {
		return nil, err
	}

	payload := models.Payload{
		Type:     models.PayloadReport,
		Subject:  report.Title,
		Body:     report.Summary,
		Sections: report.Sections,
		Period:   report.Period,
	}

	return d.fanOut(ctx, prefs.ReportChannels, prefs.Contacts, payload), nil
}

// SendTest sends a test notification through a named channel, for the
// manual test operation exposed by the API layer.
func (d *Dispatcher) SendTest(ctx context.Context, channelID, recipient, message string) (*models.DeliveryResult, error) {
	if message == "" {
		message = "This is a test notification from the alert service."
	}
	return d.Send(ctx, channelID, recipient, models.Payload{
		Type:    models.PayloadAlert,
		Subject: "Agrimon test notification",
		Body:    message,
	})
}

// DeliveryLog returns past deliveries, most recent first. A non-positive
// limit falls back to the configured default.
func (d *Dispatcher) DeliveryLog(ctx context.Context, limit int) ([]models.DeliveryRecord, error) {
	if limit <= 0 {
		limit = d.logLimit
	}
	return d.deliveries.RecentDeliveries(ctx, limit)
}

// fanOut attempts delivery on each configured channel. Channels without a
// contact address are skipped silently; the rest produce exactly one
// outcome each, sent or failed.
func (d *Dispatcher) fanOut(ctx context.Context, channels []string, contacts map[string]string, payload models.Payload) []models.ChannelOutcome {
	outcomes := []models.ChannelOutcome{}

	for _, channelID := range channels {
		contact := contacts[channelID]
		if contact == "" {
			// not configured, not an error
			continue
		}

		result, err := d.Send(ctx, channelID, contact, payload)
		if err != nil {
			d.logger.Warn("Channel delivery failed",
				zap.String("channel", channelID),
				zap.Error(err),
			)
			outcomes = append(outcomes, models.ChannelOutcome{
				Channel: channelID,
				Status:  models.OutcomeFailed,
				Error:   err.Error(),
			})
			continue
		}

		outcomes = append(outcomes, models.ChannelOutcome{
			Channel:   channelID,
			Status:    models.OutcomeSent,
			Provider:  result.Provider,
			MessageID: result.MessageID,
			Delivered: result.Delivered,
		})
	}

	return outcomes
}

func (d *Dispatcher) resolvePreferences(ctx context.Context, userID string) (models.Preferences, error) {
	prefs, err := d.preferences.GetPreferences(ctx, userID)
	if err != nil {
		return models.Preferences{}, fmt.Errorf("failed to resolve preferences: %w", err)
	}
	if prefs == nil {
		return models.DefaultPreferences(), nil
	}
	return *prefs, nil
}
