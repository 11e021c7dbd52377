package notifier

import (
	"context"
	"fmt"
	"time"

	"agrimon-alert/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CallChannel is a stub voice provider: it renders a short spoken-style
// script, logs it, simulates latency, and reports success. A real provider
// (Twilio voice and a script endpoint) slots in behind the same interface.
type CallChannel struct {
	logger  *zap.Logger
	latency time.Duration
}

// NewCallChannel creates the stub voice channel.
func NewCallChannel(logger *zap.Logger, latency time.Duration) *CallChannel {
	return &CallChannel{
		logger:  logger,
		latency: latency,
	}
}

// Send delivers a spoken-style rendering of the payload.
func (c *CallChannel) Send(ctx context.Context, recipient string, payload models.Payload) (*models.DeliveryResult, error) {
	if recipient == "" {
		return nil, fmt.Errorf("call recipient is required")
	}

	var script string
	if payload.Type == models.PayloadAlert {
		script = fmt.Sprintf("Alert. %s. %s", payload.Subject, payload.Body)
	} else {
		script = fmt.Sprintf("Report. %s", payload.Subject)
	}
	if runes := []rune(script); len(runes) > 200 {
		script = string(runes[:200])
	}

	c.logger.Info("Call stub delivery",
		zap.String("to", recipient),
		zap.String("script", script),
	)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(c.latency):
	}

	return &models.DeliveryResult{
		Provider:  "call-stub",
		MessageID: "call-" + uuid.New().String(),
		Delivered: true,
	}, nil
}
