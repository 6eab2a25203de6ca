package app

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/domain"
	"go.uber.org/zap"
)

// NotificationConsumer delivers queued SMS requests.
type NotificationConsumer struct {
	sender SMSSender
	logger *zap.Logger
}

func NewNotificationConsumer(sender SMSSender, logger *zap.Logger) *NotificationConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationConsumer{sender: sender, logger: logger.Named("notification_consumer")}
}

// HandleMessage always acknowledges: notifications are best-effort and a failing
// SMS gateway must not build up a redelivery loop.
func (c *NotificationConsumer) HandleMessage(body []byte) bool {
	var event domain.SMSNotificationEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.logger.Warn("failed to unmarshal sms request", zap.Error(err))
		return true
	}
	if strings.TrimSpace(event.PhoneNumber) == "" || strings.TrimSpace(event.Message) == "" {
		c.logger.Warn("sms request missing phone or message")
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.sender.Send(ctx, event.PhoneNumber, event.Message); err != nil {
		c.logger.Warn("sms delivery failed", zap.String("phone", maskPhone(event.PhoneNumber)), zap.Error(err))
		return true
	}
	return true
}
