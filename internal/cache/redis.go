package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Domenick1991/eventflow/config"
	"github.com/Domenick1991/eventflow/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client    *redis.Client
	eventsTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, eventsTTL time.Duration) *RedisCache {
	return NewFromClient(redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}), eventsTTL)
}

func NewFromClient(client *redis.Client, eventsTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, eventsTTL: eventsTTL}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetEvents returns nil without error on a cache miss.
func (c *RedisCache) GetEvents(ctx context.Context) ([]domain.Event, error) {
	data, err := c.client.Get(ctx, eventsKey()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var events []domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, err
	}
	return events, nil
}

func (c *RedisCache) SetEvents(ctx context.Context, events []domain.Event) error {
	payload, err := json.Marshal(events)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, eventsKey(), payload, c.eventsTTL).Err()
}

func (c *RedisCache) InvalidateEvents(ctx context.Context) error {
	return c.client.Del(ctx, eventsKey()).Err()
}

// WebhookEventSeen reports whether a provider delivery id was already processed.
func (c *RedisCache) WebhookEventSeen(ctx context.Context, eventID string) (bool, error) {
	n, err := c.client.Exists(ctx, webhookKey(eventID)).Result()
	return n > 0, err
}

// RememberWebhookEvent records a processed delivery id for ttl. Call it only
// after the delivery took effect.
func (c *RedisCache) RememberWebhookEvent(ctx context.Context, eventID string, ttl time.Duration) error {
	return c.client.Set(ctx, webhookKey(eventID), "1", ttl).Err()
}

func eventsKey() string {
	return "cache:events"
}

func webhookKey(eventID string) string {
	return "webhook:delivery:" + eventID
}
