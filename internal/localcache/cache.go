package localcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Fixed logical keys, one per collection.
const (
	KeyOrders  = "orders"
	KeyShops   = "shops"
	KeyMenus   = "menus"
	KeyUsers   = "users"
	KeySession = "session"
)

var (
	ErrPersistence = errors.New("local cache persistence failed")
	ErrNotFound    = errors.New("document not found in local cache")
)

// Document is a schemaless JSON object. The identifier lives under "id".
type Document map[string]interface{}

func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

// Backend persists one JSON array per key.
type Backend interface {
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
}

// Cache is the local fallback store. It is not a queue of pending writes:
// documents written here stay local.
type Cache struct {
	backend Backend
	mutex   sync.Mutex
	logger  *logrus.Logger
	newID   func() string
}

func New(backend Backend, logger *logrus.Logger) *Cache {
	return &Cache{
		backend: backend,
		logger:  logger,
		newID:   func() string { return uuid.New().String() },
	}
}

func (c *Cache) ReadAll(key string) ([]Document, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.load(key)
}

// Upsert assigns a fresh id when doc has none; otherwise it shallow-merges doc
// into the stored document with the same id, appending it if absent.
func (c *Cache) Upsert(key string, doc Document) (Document, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	docs, err := c.load(key)
	if err != nil {
		return nil, err
	}

	var result Document
	id := doc.ID()
	if id == "" {
		result = make(Document, len(doc)+1)
		for k, v := range doc {
			result[k] = v
		}
		result["id"] = c.newID()
		docs = append(docs, result)
	} else {
		found := false
		for i, existing := range docs {
			if existing.ID() != id {
				continue
			}
			for k, v := range doc {
				existing[k] = v
			}
			docs[i] = existing
			result = existing
			found = true
			break
		}
		if !found {
			result = doc
			docs = append(docs, doc)
		}
	}

	if err := c.save(key, docs); err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"key": key,
		"id":  result.ID(),
	}).Debug("Document written to local cache")

	return result, nil
}

// Merge shallow-merges doc into the stored document with the given id. It
// fails with ErrNotFound instead of appending.
func (c *Cache) Merge(key, id string, doc Document) (Document, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	docs, err := c.load(key)
	if err != nil {
		return nil, err
	}

	for i, existing := range docs {
		if existing.ID() != id {
			continue
		}
		for k, v := range doc {
			existing[k] = v
		}
		existing["id"] = id
		docs[i] = existing
		if err := c.save(key, docs); err != nil {
			return nil, err
		}
		return existing, nil
	}

	return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, key, id)
}

func (c *Cache) Remove(key, id string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	docs, err := c.load(key)
	if err != nil {
		return err
	}

	kept := docs[:0]
	for _, d := range docs {
		if d.ID() != id {
			kept = append(kept, d)
		}
	}

	return c.save(key, kept)
}

// Replace overwrites everything stored under key.
func (c *Cache) Replace(key string, docs []Document) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if docs == nil {
		docs = []Document{}
	}
	return c.save(key, docs)
}

func (c *Cache) load(key string) ([]Document, error) {
	data, err := c.backend.Load(key)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", ErrPersistence, key, err)
	}
	if len(data) == 0 {
		return []Document{}, nil
	}

	var docs []Document
	if err := json.Unmarshal(data, &docs); err != nil {
		// An unreadable entry reads as empty, like a fresh browser store.
		c.logger.WithError(err).WithField("key", key).Warn("Discarding unreadable local cache entry")
		return []Document{}, nil
	}
	if docs == nil {
		docs = []Document{}
	}
	return docs, nil
}

func (c *Cache) save(key string, docs []Document) error {
	data, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrPersistence, key, err)
	}
	if err := c.backend.Save(key, data); err != nil {
		return fmt.Errorf("%w: save %s: %w", ErrPersistence, key, err)
	}
	return nil
}
