package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jogardn/office-meals/internal/notifier"
	"github.com/jogardn/office-meals/pkg/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

type fakeChannel struct {
	declared   []string
	published  []amqp.Publishing
	exchanges  []string
	publishErr error
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return nil
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.exchanges = append(f.exchanges, exchange)
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func TestPublisherDeclaresFanout(t *testing.T) {
	ch := &fakeChannel{}
	if _, err := NewPublisher(ch, testLogger()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(ch.declared) != 1 || ch.declared[0] != "notifications_fanout:fanout" {
		t.Errorf("Expected fanout exchange declaration, got %v", ch.declared)
	}
}

func TestPublisherNotify(t *testing.T) {
	ch := &fakeChannel{}
	p, err := NewPublisher(ch, testLogger())
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	n := notifier.Notification{
		Kind:    notifier.KindNewOrder,
		Title:   "New order",
		Body:    "Budi ordered 1 item.",
		OrderID: "o-1",
		Status:  models.StatusSubmitted,
	}
	if err := p.Notify(context.Background(), n); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(ch.published) != 1 || ch.exchanges[0] != NotificationsExchange {
		t.Fatalf("Expected one publish to %s, got %v", NotificationsExchange, ch.exchanges)
	}
	msg := ch.published[0]
	if msg.ContentType != "application/json" || msg.Type != "new_order" {
		t.Errorf("Unexpected publishing: %+v", msg)
	}

	var got notifier.Notification
	if err := json.Unmarshal(msg.Body, &got); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if got.OrderID != "o-1" || got.Body != n.Body {
		t.Errorf("Unexpected body: %+v", got)
	}
}

func TestPublisherWrapsErrors(t *testing.T) {
	boom := errors.New("channel closed")
	ch := &fakeChannel{}
	p, _ := NewPublisher(ch, testLogger())
	ch.publishErr = boom

	if err := p.Notify(context.Background(), notifier.Notification{}); !errors.Is(err, boom) {
		t.Errorf("Expected wrapped channel error, got %v", err)
	}

	p.Close()
	if !ch.closed {
		t.Error("Expected channel to be closed")
	}
}
