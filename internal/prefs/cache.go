// Package prefs caches the user's notification preferences.
//
// The presentation gate consults preferences on every delivered event,
// so reads must be cheap and must never block on the network: Cached
// always answers from memory, falling back to permissive defaults
// before the first successful fetch.
package prefs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lingodesk/bellhop/internal/domain"
)

// Client is the subset of the CRM API the cache needs.
type Client interface {
	Preferences(ctx context.Context) (*domain.Preferences, error)
	UpdatePreferences(ctx context.Context, prefs domain.Preferences) error
}

// Cache holds the last known preferences with a freshness deadline.
type Cache struct {
	client Client
	ttl    time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	current   domain.Preferences
	fetched   bool
	fetchedAt time.Time
}

// NewCache creates a preferences cache. Until the first successful
// fetch it serves DefaultPreferences.
func NewCache(client Client, ttl time.Duration) *Cache {
	return &Cache{
		client:  client,
		ttl:     ttl,
		now:     time.Now,
		current: domain.DefaultPreferences(),
	}
}

// Cached returns the last known preferences without touching the
// network.
func (c *Cache) Cached() domain.Preferences {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Current returns cached preferences, refreshing first when stale.
// A failed refresh logs and serves the last known value.
func (c *Cache) Current(ctx context.Context) domain.Preferences {
	c.mu.RLock()
	fresh := c.fetched && c.now().Sub(c.fetchedAt) < c.ttl
	c.mu.RUnlock()

	if !fresh {
		if err := c.Refresh(ctx); err != nil {
			slog.Warn("preferences refresh failed, serving last known", "error", err)
		}
	}
	return c.Cached()
}

// Refresh fetches preferences from the CRM and replaces the cache.
func (c *Cache) Refresh(ctx context.Context) error {
	prefs, err := c.client.Preferences(ctx)
	if err != nil {
		return fmt.Errorf("fetch preferences: %w", err)
	}

	c.mu.Lock()
	c.current = *prefs
	c.fetched = true
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return nil
}

// Update writes preferences through to the CRM and, on success,
// replaces the cache immediately.
func (c *Cache) Update(ctx context.Context, prefs domain.Preferences) error {
	if err := c.client.UpdatePreferences(ctx, prefs); err != nil {
		return fmt.Errorf("update preferences: %w", err)
	}

	c.mu.Lock()
	c.current = prefs
	c.fetched = true
	c.fetchedAt = c.now()
	c.mu.Unlock()
	return nil
}
