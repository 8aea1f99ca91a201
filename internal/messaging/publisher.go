package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jogardn/office-meals/internal/notifier"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const NotificationsExchange = "notifications_fanout"

const publishTimeout = 10 * time.Second

// Channel is the part of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher fans notifications out to every queue bound to the
// notifications exchange. It implements notifier.Sink.
type Publisher struct {
	conn     *amqp.Connection
	channel  Channel
	exchange string
	logger   *logrus.Logger
}

func Dial(url string, logger *logrus.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	p, err := NewPublisher(ch, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewPublisher declares the fanout exchange on ch.
func NewPublisher(ch Channel, logger *logrus.Logger) (*Publisher, error) {
	if err := ch.ExchangeDeclare(NotificationsExchange, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("failed to declare exchange %s: %w", NotificationsExchange, err)
	}

	return &Publisher{
		channel:  ch,
		exchange: NotificationsExchange,
		logger:   logger,
	}, nil
}

func (p *Publisher) Notify(ctx context.Context, n notifier.Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(ctx, p.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    n.Timestamp,
		Type:         string(n.Kind),
		Body:         body,
	})
	if err != nil {
		p.logger.WithError(err).WithField("exchange", p.exchange).Error("Failed to publish notification")
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"exchange": p.exchange,
		"order_id": n.OrderID,
		"kind":     n.Kind,
	}).Debug("Notification published to RabbitMQ")
	return nil
}

func (p *Publisher) Close() error {
	err := p.channel.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
