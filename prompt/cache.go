package prompt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/haowjy/ragstream-go/store"
)

// configKey is where the active template lives in the config table.
const configKey = "prompt_template"

// defaultTTL matches how long a served template may lag an edit.
const defaultTTL = 5 * time.Minute

// Store loads persisted config values.
type Store interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

// Cache serves the active template, refreshing from the store when the
// TTL expires. Missing config falls back to the built-in default.
type Cache struct {
	store  Store
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time

	mu       sync.RWMutex
	current  Template
	loadedAt time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets the refresh interval.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCacheLogger sets the logger. Defaults to a no-op logger.
func WithCacheLogger(logger *zap.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCache creates a template cache over the given store.
func NewCache(s Store, opts ...CacheOption) *Cache {
	c := &Cache{
		store:  s,
		logger: zap.NewNop(),
		ttl:    defaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the active template, reloading it when stale.
func (c *Cache) Get(ctx context.Context) (Template, error) {
	c.mu.RLock()
	fresh := !c.loadedAt.IsZero() && c.now().Sub(c.loadedAt) <= c.ttl
	current := c.current
	c.mu.RUnlock()

	if fresh {
		return current, nil
	}
	return c.Reload(ctx)
}

// Reload fetches the template from the store immediately, bypassing
// the TTL.
func (c *Cache) Reload(ctx context.Context) (Template, error) {
	t, err := c.load(ctx)
	if err != nil {
		return Template{}, err
	}

	c.mu.Lock()
	c.current = t
	c.loadedAt = c.now()
	c.mu.Unlock()

	c.logger.Info("prompt template loaded", zap.String("version", t.Version))
	return t, nil
}

func (c *Cache) load(ctx context.Context) (Template, error) {
	value, err := c.store.GetConfig(ctx, configKey)
	if errors.Is(err, store.ErrNotFound) {
		return Default(), nil
	} else if err != nil {
		return Template{}, fmt.Errorf("prompt: loading template: %w", err)
	}

	var t Template
	if err := json.Unmarshal([]byte(value), &t); err != nil {
		return Template{}, fmt.Errorf("prompt: parsing stored template: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Template{}, err
	}
	return t, nil
}

// Save persists a new template and makes it active immediately.
func (c *Cache) Save(ctx context.Context, t Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	value, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("prompt: encoding template: %w", err)
	}
	if err := c.store.SetConfig(ctx, configKey, string(value)); err != nil {
		return fmt.Errorf("prompt: saving template: %w", err)
	}

	c.mu.Lock()
	c.current = t
	c.loadedAt = c.now()
	c.mu.Unlock()
	return nil
}
