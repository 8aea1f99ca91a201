package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jogardn/office-meals/internal/gateway"
	"github.com/jogardn/office-meals/internal/localcache"
	"github.com/jogardn/office-meals/pkg/models"
	"github.com/sirupsen/logrus"
)

type Registration struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
	Unit     string      `json:"unitKerja"`
}

// Login authenticates against the remote store, or against cached users when
// the remote store is unavailable. Unknown credentials yield
// gateway.ErrInvalidCredentials either way. The user becomes the current user.
func (s *Service) Login(ctx context.Context, email, password string) (models.User, error) {
	raw, err := s.client.Send(ctx, gateway.Request{
		Collection: "login",
		Method:     http.MethodPost,
		Body:       map[string]string{"email": email, "password": password},
	})

	var user models.User
	switch {
	case err == nil:
		user, err = fromRaw[models.User](raw)
		if err != nil {
			return models.User{}, err
		}
	case isUnavailable(err):
		s.fallback("login", localcache.KeyUsers, err)
		users, cacheErr := readCache[models.User](s.cache, localcache.KeyUsers)
		if cacheErr != nil {
			return models.User{}, cacheErr
		}
		found := false
		for _, u := range users {
			if u.Email == email && u.Password == password {
				user, found = u, true
				break
			}
		}
		if !found {
			return models.User{}, gateway.ErrInvalidCredentials
		}
	default:
		return models.User{}, err
	}

	if err := s.setSession(user); err != nil {
		return models.User{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"user_id": user.ID,
		"role":    user.Role,
	}).Info("User logged in")
	return user, nil
}

// Register creates an account and makes it the current user. While the
// remote store is unavailable the account is created in the local cache only.
func (s *Service) Register(ctx context.Context, reg Registration) (models.User, error) {
	raw, err := s.client.Send(ctx, gateway.Request{Collection: "register", Method: http.MethodPost, Body: reg})

	var user models.User
	switch {
	case err == nil:
		user, err = fromRaw[models.User](raw)
		if err != nil {
			return models.User{}, err
		}
	case isUnavailable(err):
		s.fallback("register", localcache.KeyUsers, err)
		doc, docErr := toDocument(models.User{
			Name:     reg.Name,
			Email:    reg.Email,
			Password: reg.Password,
			Role:     reg.Role,
			Unit:     reg.Unit,
		})
		if docErr != nil {
			return models.User{}, docErr
		}
		delete(doc, "id")
		stored, cacheErr := s.cache.Upsert(localcache.KeyUsers, doc)
		if cacheErr != nil {
			return models.User{}, cacheErr
		}
		user, err = fromDocument[models.User](stored)
		if err != nil {
			return models.User{}, err
		}
	default:
		return models.User{}, err
	}

	if err := s.setSession(user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

// UpdateUser applies a partial profile update. The current user is refreshed
// when it is the one being updated.
func (s *Service) UpdateUser(ctx context.Context, id string, patch models.UserPatch) (models.User, error) {
	raw, err := s.client.Send(ctx, gateway.Request{Collection: collectionUsers, Method: http.MethodPut, ID: id, Body: patch})

	var user models.User
	switch {
	case err == nil:
		user, err = fromRaw[models.User](raw)
		if err != nil {
			return models.User{}, err
		}
	case isUnavailable(err):
		s.fallback("update_user", localcache.KeyUsers, err)
		doc, docErr := toDocument(patch)
		if docErr != nil {
			return models.User{}, docErr
		}
		stored, cacheErr := s.cache.Merge(localcache.KeyUsers, id, doc)
		if cacheErr != nil {
			return models.User{}, cacheErr
		}
		user, err = fromDocument[models.User](stored)
		if err != nil {
			return models.User{}, err
		}
	default:
		return models.User{}, err
	}

	current, ok, err := s.CurrentUser()
	if err != nil {
		return user, err
	}
	if ok && current.ID == id {
		if err := s.setSession(user); err != nil {
			return user, err
		}
	}
	return user, nil
}

func (s *Service) UsersByRole(ctx context.Context, role models.Role) ([]models.User, error) {
	users, err := list[models.User](ctx, s, gateway.Request{
		Collection: collectionUsers,
		Query:      url.Values{"role": {string(role)}},
	}, localcache.KeyUsers)
	if err != nil {
		return nil, err
	}

	// Cached users are not filtered by the store.
	out := []models.User{}
	for _, u := range users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

// CurrentUser returns the session user; ok is false when nobody is logged in.
func (s *Service) CurrentUser() (user models.User, ok bool, err error) {
	docs, err := s.cache.ReadAll(localcache.KeySession)
	if err != nil {
		return models.User{}, false, err
	}
	if len(docs) == 0 {
		return models.User{}, false, nil
	}
	user, err = fromDocument[models.User](docs[0])
	if err != nil {
		return models.User{}, false, err
	}
	return user, true, nil
}

func (s *Service) Logout() error {
	return s.cache.Replace(localcache.KeySession, nil)
}

func (s *Service) setSession(user models.User) error {
	doc, err := toDocument(user)
	if err != nil {
		return err
	}
	return s.cache.Replace(localcache.KeySession, []localcache.Document{doc})
}

func fromRaw[T any](raw []byte) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, errors.New("empty response from remote store")
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode response: %w", err)
	}
	return out, nil
}
