package store

import (
	"context"
	"time"

	"github.com/jogardn/office-meals/internal/gateway"
	"github.com/jogardn/office-meals/internal/lifecycle"
	"github.com/jogardn/office-meals/internal/localcache"
	"github.com/jogardn/office-meals/internal/poller"
	"github.com/jogardn/office-meals/pkg/models"
	"github.com/sirupsen/logrus"
)

func (s *Service) ListOrders(ctx context.Context) ([]models.Order, error) {
	return list[models.Order](ctx, s, gateway.Request{Collection: collectionOrders}, localcache.KeyOrders)
}

// SaveOrder creates the order when its id is not persisted yet and updates it
// otherwise. The returned order carries the id assigned by whichever store
// accepted the write.
func (s *Service) SaveOrder(ctx context.Context, o models.Order) (models.Order, error) {
	saved, err := save(ctx, s, collectionOrders, localcache.KeyOrders, o.ID, o)
	if err != nil {
		return models.Order{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"order_id":     saved.ID,
		"status":       saved.Status,
		"total_amount": saved.TotalAmount.String(),
		"items_count":  len(saved.Items),
	}).Info("Order saved")
	return saved, nil
}

func (s *Service) SubscribeOrders(ctx context.Context, interval time.Duration, onData func([]models.Order)) (unsubscribe func()) {
	if interval <= 0 {
		interval = poller.OrdersInterval
	}
	return poller.Subscribe(ctx, s.logger, collectionOrders, interval, s.ListOrders, onData)
}

// PlaceOrder validates the cart locally, optionally stores the chosen runner
// as the requester's preferred one, and saves the new order. Validation
// failures never reach the remote store.
func (s *Service) PlaceOrder(ctx context.Context, cart *lifecycle.Cart, p lifecycle.Placement, savePreferred bool) (models.Order, error) {
	o, err := lifecycle.Place(cart, p, s.now())
	if err != nil {
		return models.Order{}, err
	}

	s.savePreferredRunner(ctx, p, savePreferred)
	return s.SaveOrder(ctx, o)
}

// ResubmitOrder replaces a submitted order's contents under the same id.
func (s *Service) ResubmitOrder(ctx context.Context, existing models.Order, cart *lifecycle.Cart, p lifecycle.Placement, savePreferred bool) (models.Order, error) {
	o, err := lifecycle.Resubmit(existing, cart, p, s.now())
	if err != nil {
		return models.Order{}, err
	}

	s.savePreferredRunner(ctx, p, savePreferred)
	return s.SaveOrder(ctx, o)
}

func (s *Service) AdvanceOrder(ctx context.Context, o models.Order) (models.Order, error) {
	next, err := lifecycle.Advance(o)
	if err != nil {
		return o, err
	}
	return s.SaveOrder(ctx, next)
}

func (s *Service) MarkOrderPaid(ctx context.Context, o models.Order) (models.Order, error) {
	paid, err := lifecycle.MarkPaid(o)
	if err != nil {
		return o, err
	}
	return s.SaveOrder(ctx, paid)
}

// SetOrderStatus applies any legal transition, including cancelling an order
// as unavailable.
func (s *Service) SetOrderStatus(ctx context.Context, o models.Order, status models.OrderStatus) (models.Order, error) {
	moved, err := lifecycle.Transition(o, status)
	if err != nil {
		return o, err
	}
	return s.SaveOrder(ctx, moved)
}

func (s *Service) ToggleOrderLine(ctx context.Context, o models.Order, index int) (models.Order, error) {
	toggled, err := lifecycle.ToggleLine(o, index)
	if err != nil {
		return o, err
	}
	return s.SaveOrder(ctx, toggled)
}

func (s *Service) savePreferredRunner(ctx context.Context, p lifecycle.Placement, enabled bool) {
	if !enabled || p.RunnerID == p.Requester.PreferredRunner {
		return
	}
	runner := p.RunnerID
	if _, err := s.UpdateUser(ctx, p.Requester.ID, models.UserPatch{PreferredRunner: &runner}); err != nil {
		s.logger.WithError(err).WithField("user_id", p.Requester.ID).Warn("Failed to save preferred runner")
	}
}
