package notifier

import (
	"context"
	"fmt"
	"time"

	"agrimon-alert/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EmailChannel is a stub email provider: it logs the rendered message,
// simulates provider latency, and reports success. Swap the body of Send
// for a real provider (SES, SendGrid, SMTP) without touching callers.
type EmailChannel struct {
	logger  *zap.Logger
	latency time.Duration
}

// NewEmailChannel creates the stub email channel.
func NewEmailChannel(logger *zap.Logger, latency time.Duration) *EmailChannel {
	return &EmailChannel{
		logger:  logger,
		latency: latency,
	}
}

// Send delivers a plain subject/body rendering of the payload.
func (c *EmailChannel) Send(ctx context.Context, recipient string, payload models.Payload) (*models.DeliveryResult, error) {
	if recipient == "" {
		return nil, fmt.Errorf("email recipient is required")
	}

	c.logger.Info("Email stub delivery",
		zap.String("to", recipient),
		zap.String("subject", payload.Subject),
		zap.String("body", payload.Body),
	)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.latency):
	}

	return &models.DeliveryResult{
		Provider:  "email-stub",
		MessageID: "email-" + uuid.New().String(),
		Delivered: true,
	}, nil
}
