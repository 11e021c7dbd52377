package notifier

import (
	"context"
	"fmt"
	"time"

	"agrimon-alert/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WhatsAppChannel is a stub messaging provider: it renders a compact
// emoji-prefixed message, logs it, simulates latency, and reports success.
type WhatsAppChannel struct {
	logger  *zap.Logger
	latency time.Duration
}

// NewWhatsAppChannel creates the stub messaging channel.
func NewWhatsAppChannel(logger *zap.Logger, latency time.Duration) *WhatsAppChannel {
	return &WhatsAppChannel{
		logger:  logger,
		latency: latency,
	}
}

// Send delivers a terse messaging-style rendering of the payload.
func (c *WhatsAppChannel) Send(ctx context.Context, recipient string, payload models.Payload) (*models.DeliveryResult, error) {
	if recipient == "" {
		return nil, fmt.Errorf("whatsapp recipient is required")
	}

	var message string
	if payload.Type == models.PayloadAlert {
		message = fmt.Sprintf("⚠️ *%s*\n%s", payload.Subject, payload.Body)
		if payload.Action != nil && *payload.Action != "" {
			message += fmt.Sprintf("\n\n📋 %s", *payload.Action)
		}
	} else {
		message = fmt.Sprintf("📊 *%s*\n%s", payload.Subject, payload.Body)
	}

	c.logger.Info("WhatsApp stub delivery",
		zap.String("to", recipient),
		zap.String("message", message),
	)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.latency):
	}

	return &models.DeliveryResult{
		Provider:  "whatsapp-stub",
		MessageID: "wa-" + uuid.New().String(),
		Delivered: true,
	}, nil
}
