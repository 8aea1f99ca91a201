package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/jogardn/office-meals/internal/notifier"
	"github.com/sirupsen/logrus"
)

const (
	NotificationsTopic = "meal.notifications"
)

type NotificationEvent struct {
	Kind      notifier.Kind `json:"kind"`
	Title     string        `json:"title"`
	Body      string        `json:"body"`
	OrderID   string        `json:"order_id"`
	Status    string        `json:"status"`
	Recipient string        `json:"recipient,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	EventTime time.Time     `json:"event_time"`
}

// KafkaProducer publishes notifications so other services (mail, chat bots)
// can relay them. It implements notifier.Sink.
type KafkaProducer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *logrus.Logger
}

// NewKafkaProducer connects to a comma separated broker list.
func NewKafkaProducer(brokers string, logger *logrus.Logger) (*KafkaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer(strings.Split(brokers, ","), config)
	if err != nil {
		return nil, err
	}

	return NewKafkaProducerWithClient(producer, logger), nil
}

func NewKafkaProducerWithClient(producer sarama.SyncProducer, logger *logrus.Logger) *KafkaProducer {
	return &KafkaProducer{
		producer: producer,
		topic:    NotificationsTopic,
		logger:   logger,
	}
}

func (p *KafkaProducer) Notify(ctx context.Context, n notifier.Notification) error {
	event := NotificationEvent{
		Kind:      n.Kind,
		Title:     n.Title,
		Body:      n.Body,
		OrderID:   n.OrderID,
		Status:    string(n.Status),
		Recipient: n.Recipient,
		CreatedAt: n.Timestamp,
		EventTime: time.Now(),
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(event.OrderID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(event.Kind)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).Error("Failed to send message to Kafka")
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"topic":     p.topic,
		"partition": partition,
		"offset":    offset,
		"order_id":  event.OrderID,
		"kind":      event.Kind,
	}).Info("Notification published to Kafka")

	return nil
}

func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}
