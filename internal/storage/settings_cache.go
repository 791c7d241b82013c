package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wiki-engagement/internal/logging"
	"github.com/wiki-engagement/internal/metrics"
	"github.com/wiki-engagement/internal/models"
)

// SettingsStore is the backing store behind SettingsCache
type SettingsStore interface {
	GetOrCreate(ctx context.Context, accountID string) (*models.NotificationSettings, error)
	Update(ctx context.Context, settings *models.NotificationSettings) error
}

// SettingsCache is a read-through, write-through Redis cache in front of the settings store.
// Redis failures degrade to the backing store and are never returned to the caller.
type SettingsCache struct {
	store  SettingsStore
	redis  *RedisCache
	ttl    time.Duration
	logger *logging.Logger
}

// NewSettingsCache creates a new settings cache
func NewSettingsCache(store SettingsStore, redis *RedisCache, ttl time.Duration, logger *logging.Logger) *SettingsCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &SettingsCache{store: store, redis: redis, ttl: ttl, logger: logger}
}

// settingsKey format: settings:<account-id>
func settingsKey(accountID string) string {
	return "settings:" + accountID
}

// GetOrCreate returns cached settings, falling back to the store on a miss
func (c *SettingsCache) GetOrCreate(ctx context.Context, accountID string) (*models.NotificationSettings, error) {
	key := settingsKey(accountID)

	raw, err := c.redis.Get(ctx, key)
	switch {
	case err == nil:
		var s models.NotificationSettings
		if err := json.Unmarshal([]byte(raw), &s); err == nil {
			metrics.RecordCacheLookup("settings", true)
			return &s, nil
		}
		c.logger.WithField("key", key).Warn("discarding unreadable cached settings")
	case !errors.Is(err, redis.Nil):
		c.logger.WithError(err).WithField("key", key).Warn("settings cache read failed")
	}
	metrics.RecordCacheLookup("settings", false)

	s, err := c.store.GetOrCreate(ctx, accountID)
	if err != nil {
		return nil, err
	}
	c.put(ctx, s)
	return s, nil
}

// Update writes through to the store, then refreshes the cached copy
func (c *SettingsCache) Update(ctx context.Context, s *models.NotificationSettings) error {
	if err := c.store.Update(ctx, s); err != nil {
		return err
	}
	c.put(ctx, s)
	return nil
}

func (c *SettingsCache) put(ctx context.Context, s *models.NotificationSettings) {
	key := settingsKey(s.AccountID)
	data, err := json.Marshal(s)
	if err != nil {
		c.logger.WithError(err).Warn("failed to marshal settings for cache")
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("settings cache write failed")
		// a stale entry must not outlive a successful update
		if delErr := c.redis.Del(ctx, key); delErr != nil {
			c.logger.WithError(fmt.Errorf("evict %s: %w", key, delErr)).Warn("settings cache evict failed")
		}
	}
}
