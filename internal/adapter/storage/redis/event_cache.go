package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// EventCache implements ports.EventDedupeCache on Redis.
//
// It is a fast-path filter in front of the durable webhook_events claim:
// a hit here lets a redelivery be acknowledged without touching Postgres,
// while a miss (or a Redis outage) falls through to the database, which
// remains the source of truth for exactly-once processing. Ids are only
// written after the durable claim succeeds, so a transient claim failure
// never poisons the cache against the gateway's retry.
type EventCache struct {
	client *goredis.Client
	prefix string
}

// NewEventCache creates a new Redis-backed webhook event cache.
func NewEventCache(client *goredis.Client) *EventCache {
	return &EventCache{
		client: client,
		prefix: "webhook:event:",
	}
}

// Seen reports whether the event id is cached. It never writes.
func (c *EventCache) Seen(ctx context.Context, eventID string) (bool, error) {
	err := c.client.Get(ctx, c.prefix+eventID).Err()
	if err != nil {
		if err == goredis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("redis event dedupe: %w", err)
	}
	return true, nil
}

// MarkSeen records a claimed event id so later redeliveries can be
// acknowledged without a database round trip.
func (c *EventCache) MarkSeen(ctx context.Context, eventID string, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.prefix+eventID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis event dedupe: %w", err)
	}
	return nil
}
