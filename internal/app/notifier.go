package app

import (
	"context"
	"strings"
	"time"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/domain"
	"github.com/Turabayo/she-saves-bloom-sub000/pkg/rabbitmq"
)

// SMSSender delivers a text message synchronously.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

// DirectNotifier calls the SMS service inline. Used when no broker is configured.
type DirectNotifier struct {
	sender SMSSender
}

func NewDirectNotifier(sender SMSSender) *DirectNotifier {
	return &DirectNotifier{sender: sender}
}

func (n *DirectNotifier) Notify(ctx context.Context, phone, message string) error {
	return n.sender.Send(ctx, phone, message)
}

// QueuedNotifier publishes an SMS request for NotificationConsumer to deliver.
type QueuedNotifier struct {
	publisher rabbitmq.Publisher
}

func NewQueuedNotifier(publisher rabbitmq.Publisher) *QueuedNotifier {
	return &QueuedNotifier{publisher: publisher}
}

func (n *QueuedNotifier) Notify(ctx context.Context, phone, message string) error {
	return n.publisher.Publish(ctx, domain.EventsExchange, domain.RoutingKeySMSRequested, domain.SMSNotificationEvent{
		PhoneNumber: strings.TrimSpace(phone),
		Message:     message,
		RequestedAt: time.Now().UTC(),
	})
}
