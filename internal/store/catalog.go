package store

import (
	"context"
	"time"

	"github.com/jogardn/office-meals/internal/gateway"
	"github.com/jogardn/office-meals/internal/localcache"
	"github.com/jogardn/office-meals/internal/poller"
	"github.com/jogardn/office-meals/pkg/models"
	"github.com/sirupsen/logrus"
)

func (s *Service) ListShops(ctx context.Context) ([]models.Shop, error) {
	return list[models.Shop](ctx, s, gateway.Request{Collection: collectionShops}, localcache.KeyShops)
}

func (s *Service) SaveShop(ctx context.Context, shop models.Shop) (models.Shop, error) {
	return save(ctx, s, collectionShops, localcache.KeyShops, shop.ID, shop)
}

func (s *Service) DeleteShop(ctx context.Context, id string) error {
	return s.remove(ctx, collectionShops, localcache.KeyShops, id)
}

// DeleteShopWithMenus deletes a shop and then each of its menus, one call per
// menu. Stores do not cascade on their own.
func (s *Service) DeleteShopWithMenus(ctx context.Context, shopID string) error {
	menus, err := s.ListMenus(ctx)
	if err != nil {
		return err
	}
	if err := s.DeleteShop(ctx, shopID); err != nil {
		return err
	}

	deleted := 0
	for _, m := range menus {
		if m.ShopID != shopID {
			continue
		}
		if err := s.DeleteMenu(ctx, m.ID); err != nil {
			return err
		}
		deleted++
	}

	s.logger.WithFields(logrus.Fields{
		"shop_id":       shopID,
		"menus_deleted": deleted,
	}).Info("Shop deleted with its menus")
	return nil
}

func (s *Service) ListMenus(ctx context.Context) ([]models.MenuItem, error) {
	return list[models.MenuItem](ctx, s, gateway.Request{Collection: collectionMenus}, localcache.KeyMenus)
}

func (s *Service) SaveMenu(ctx context.Context, menu models.MenuItem) (models.MenuItem, error) {
	return save(ctx, s, collectionMenus, localcache.KeyMenus, menu.ID, menu)
}

func (s *Service) DeleteMenu(ctx context.Context, id string) error {
	return s.remove(ctx, collectionMenus, localcache.KeyMenus, id)
}

func (s *Service) SubscribeShops(ctx context.Context, interval time.Duration, onData func([]models.Shop)) (unsubscribe func()) {
	if interval <= 0 {
		interval = poller.CatalogInterval
	}
	return poller.Subscribe(ctx, s.logger, collectionShops, interval, s.ListShops, onData)
}

func (s *Service) SubscribeMenus(ctx context.Context, interval time.Duration, onData func([]models.MenuItem)) (unsubscribe func()) {
	if interval <= 0 {
		interval = poller.CatalogInterval
	}
	return poller.Subscribe(ctx, s.logger, collectionMenus, interval, s.ListMenus, onData)
}
