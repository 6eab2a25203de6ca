package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/Turabayo/she-saves-bloom-sub000/internal/domain"
	"go.uber.org/zap"
)

type senderStub struct {
	mu     sync.Mutex
	phones []string
	msgs   []string
	err    error
}

func (s *senderStub) Send(ctx context.Context, phone, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phones = append(s.phones, phone)
	s.msgs = append(s.msgs, message)
	return s.err
}

func TestNotificationConsumer_DeliversValidRequest(t *testing.T) {
	sender := &senderStub{}
	c := NewNotificationConsumer(sender, zap.NewNop())

	body, _ := json.Marshal(domain.SMSNotificationEvent{PhoneNumber: "250788123456", Message: "hello"})
	if !c.HandleMessage(body) {
		t.Fatal("expected message to be acknowledged")
	}
	if len(sender.phones) != 1 || sender.phones[0] != "250788123456" || sender.msgs[0] != "hello" {
		t.Fatalf("unexpected delivery %v %v", sender.phones, sender.msgs)
	}
}

func TestNotificationConsumer_AcksBadInput(t *testing.T) {
	sender := &senderStub{}
	c := NewNotificationConsumer(sender, zap.NewNop())

	for _, body := range []string{`not json`, `{"phoneNumber":"","message":"x"}`, `{"phoneNumber":"250788123456"}`} {
		if !c.HandleMessage([]byte(body)) {
			t.Fatalf("expected %q to be acknowledged", body)
		}
	}
	if len(sender.phones) != 0 {
		t.Fatal("invalid requests must not be delivered")
	}
}

func TestNotificationConsumer_AcksDeliveryFailure(t *testing.T) {
	c := NewNotificationConsumer(&senderStub{err: errBoom}, zap.NewNop())
	body, _ := json.Marshal(domain.SMSNotificationEvent{PhoneNumber: "250788123456", Message: "hello"})
	if !c.HandleMessage(body) {
		t.Fatal("delivery failures must not requeue")
	}
}

func TestQueuedNotifier_PublishesSMSRequest(t *testing.T) {
	pub := &publisherStub{}
	n := NewQueuedNotifier(pub)

	if err := n.Notify(context.Background(), " 250788123456 ", "hi"); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}
	if len(pub.routingKeys) != 1 || pub.routingKeys[0] != domain.RoutingKeySMSRequested {
		t.Fatalf("unexpected routing keys %v", pub.routingKeys)
	}
	event, ok := pub.bodies[0].(domain.SMSNotificationEvent)
	if !ok || event.PhoneNumber != "250788123456" || event.Message != "hi" {
		t.Fatalf("unexpected event %+v", pub.bodies[0])
	}
}

func TestDirectNotifier_SendsInline(t *testing.T) {
	sender := &senderStub{}
	if err := NewDirectNotifier(sender).Notify(context.Background(), "250788123456", "hi"); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}
	if len(sender.msgs) != 1 {
		t.Fatal("expected inline delivery")
	}
}
