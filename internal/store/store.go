package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jogardn/office-meals/internal/gateway"
	"github.com/jogardn/office-meals/internal/localcache"
	"github.com/jogardn/office-meals/internal/reconcile"
	"github.com/jogardn/office-meals/pkg/models"
	"github.com/sirupsen/logrus"
)

const (
	collectionOrders = "orders"
	collectionShops  = "shops"
	collectionMenus  = "menus"
	collectionUsers  = "users"
)

// Service is the storage layer used by a session. Every call goes to the
// remote store first and falls back to the local cache only when the remote
// store is unavailable. Typed remote failures (bad credentials, not found,
// other HTTP errors) are returned to the caller unchanged.
//
// Writes are fire-and-forget with respect to subscriptions: a saved document
// shows up on the next tick, not immediately. Callers wanting instant feedback
// should update their own state with the returned value.
type Service struct {
	client   *gateway.Client
	cache    *localcache.Cache
	analyzer *reconcile.Analyzer
	logger   *logrus.Logger
	now      func() time.Time
}

func NewService(client *gateway.Client, cache *localcache.Cache, logger *logrus.Logger) *Service {
	return &Service{
		client:   client,
		cache:    cache,
		analyzer: reconcile.NewAnalyzer(logger),
		logger:   logger,
		now:      time.Now,
	}
}

func (s *Service) Client() *gateway.Client {
	return s.client
}

func (s *Service) Analyzer() *reconcile.Analyzer {
	return s.analyzer
}

func isUnavailable(err error) bool {
	return errors.Is(err, gateway.ErrRemoteUnavailable)
}

func (s *Service) fallback(op, key string, err error) {
	s.logger.WithError(err).WithFields(logrus.Fields{
		"operation": op,
		"key":       key,
	}).Debug("Using local cache")
}

func list[T any](ctx context.Context, s *Service, req gateway.Request, key string) ([]T, error) {
	raw, err := s.client.Send(ctx, req)
	if err != nil {
		if !isUnavailable(err) {
			return nil, err
		}
		s.fallback("list", key, err)
		return readCache[T](s.cache, key)
	}
	return decodeList[T](raw)
}

// save writes doc under id, creating it when id is not a persisted id.
func save[T any](ctx context.Context, s *Service, collection, key, id string, doc T) (T, error) {
	var zero T

	body, err := toDocument(doc)
	if err != nil {
		return zero, err
	}
	delete(body, "id")

	req := gateway.Request{Collection: collection, Method: http.MethodPost, Body: body}
	if models.IsPersisted(id) {
		req.Method = http.MethodPut
		req.ID = id
	}

	raw, err := s.client.Send(ctx, req)
	if err == nil {
		if len(raw) == 0 {
			return doc, nil
		}
		var out T
		if err := json.Unmarshal(raw, &out); err != nil {
			return zero, fmt.Errorf("failed to decode saved %s: %w", collection, err)
		}
		return out, nil
	}
	if !isUnavailable(err) {
		return zero, err
	}

	s.fallback("save", key, err)
	if models.IsPersisted(id) {
		body["id"] = id
	}
	stored, err := s.cache.Upsert(key, body)
	if err != nil {
		return zero, err
	}
	return fromDocument[T](stored)
}

func (s *Service) remove(ctx context.Context, collection, key, id string) error {
	_, err := s.client.Send(ctx, gateway.Request{Collection: collection, Method: http.MethodDelete, ID: id})
	if err == nil {
		return nil
	}
	if !isUnavailable(err) {
		return err
	}
	s.fallback("delete", key, err)
	return s.cache.Remove(key, id)
}

// Divergence compares cached orders with the remote store. It needs the
// remote store to be reachable.
func (s *Service) Divergence(ctx context.Context) (*reconcile.Report, error) {
	raw, err := s.client.Send(ctx, gateway.Request{Collection: collectionOrders})
	if err != nil {
		return nil, err
	}
	remote, err := decodeList[models.Order](raw)
	if err != nil {
		return nil, err
	}
	local, err := readCache[models.Order](s.cache, localcache.KeyOrders)
	if err != nil {
		return nil, err
	}
	return s.analyzer.Compare(local, remote), nil
}

func decodeList[T any](raw json.RawMessage) ([]T, error) {
	out := []T{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode list: %w", err)
	}
	return out, nil
}

func readCache[T any](cache *localcache.Cache, key string) ([]T, error) {
	docs, err := cache.ReadAll(key)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(docs)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cached %s: %w", key, err)
	}
	return decodeList[T](data)
}

func toDocument(v interface{}) (localcache.Document, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var doc localcache.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return doc, nil
}

func fromDocument[T any](doc localcache.Document) (T, error) {
	var out T
	data, err := json.Marshal(doc)
	if err != nil {
		return out, fmt.Errorf("failed to decode document: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to decode document: %w", err)
	}
	return out, nil
}
