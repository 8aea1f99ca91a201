package notifier

import (
	"context"
	"errors"
	"time"

	"github.com/jogardn/office-meals/pkg/models"
	"github.com/sirupsen/logrus"
)

// Notification is what a sink receives. Title and Body are ready to display;
// the rest is metadata for sinks that route or key messages.
type Notification struct {
	Kind      Kind               `json:"kind"`
	Title     string             `json:"title"`
	Body      string             `json:"body"`
	OrderID   string             `json:"order_id"`
	Status    models.OrderStatus `json:"status"`
	Recipient string             `json:"recipient,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// Sink delivers notifications. Permission, display and delivery guarantees
// belong to the sink.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// MultiSink fans out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type LogSink struct {
	logger *logrus.Logger
}

func NewLogSink(logger *logrus.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (l *LogSink) Notify(ctx context.Context, n Notification) error {
	l.logger.WithFields(logrus.Fields{
		"kind":      n.Kind,
		"order_id":  n.OrderID,
		"status":    n.Status,
		"recipient": n.Recipient,
	}).Infof("%s: %s", n.Title, n.Body)
	return nil
}

// Wants reports which events an observer is notified about: fulfillers hear
// about new orders, requesters about progress on their own orders.
func (o Observer) Wants(k Kind) bool {
	switch o.Role {
	case models.RoleFulfiller:
		return k == KindNewOrder
	case models.RoleRequester:
		return k == KindStatusChanged || k == KindLineUnavailable
	default:
		return true
	}
}

// Dispatcher feeds snapshots through a Detector and sends the resulting
// notifications to a sink.
type Dispatcher struct {
	observer Observer
	detector *Detector
	sink     Sink
	logger   *logrus.Logger
	now      func() time.Time
}

func NewDispatcher(observer Observer, sink Sink, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		observer: observer,
		detector: NewDetector(observer),
		sink:     sink,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle processes one snapshot and returns how many notifications were sent.
// Sink failures are logged; they never stop later notifications.
func (d *Dispatcher) Handle(ctx context.Context, orders []models.Order) int {
	sent := 0
	for _, e := range d.detector.Observe(orders) {
		if !d.observer.Wants(e.Kind) {
			continue
		}

		n := Notification{
			Kind:      e.Kind,
			Title:     e.Title(),
			Body:      e.Body(),
			OrderID:   e.Order.ID,
			Status:    e.Order.Status,
			Recipient: d.observer.UserID,
			Timestamp: d.now(),
		}
		if err := d.sink.Notify(ctx, n); err != nil {
			d.logger.WithError(err).WithFields(logrus.Fields{
				"kind":     n.Kind,
				"order_id": n.OrderID,
			}).Error("Failed to deliver notification")
			continue
		}
		sent++
	}
	return sent
}

// Consumer adapts Handle to a subscription callback.
func (d *Dispatcher) Consumer(ctx context.Context) func([]models.Order) {
	return func(orders []models.Order) {
		d.Handle(ctx, orders)
	}
}
