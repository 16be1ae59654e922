package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// InvalidationChannel carries "<view>:<user id>" for every invalidated view.
const InvalidationChannel = "views:invalidated"

// ViewCache stores rendered view data per user. Invalidating a view drops
// the cached copy so the next read goes to the database.
type ViewCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewViewCache(client redis.Cmdable, ttl time.Duration) *ViewCache {
	return &ViewCache{client: client, ttl: ttl}
}

func ViewKey(view string, userID uuid.UUID) string {
	return "view:" + view + ":" + userID.String()
}

// Get decodes the cached value into dest. It reports false on a miss.
func (c *ViewCache) Get(ctx context.Context, view string, userID uuid.UUID, dest any) (bool, error) {
	raw, err := c.client.Get(ctx, ViewKey(view, userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("get view %s: %w", view, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		// A value we cannot read is as good as a miss.
		c.client.Del(ctx, ViewKey(view, userID))
		return false, nil
	}
	return true, nil
}

func (c *ViewCache) Set(ctx context.Context, view string, userID uuid.UUID, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal view %s: %w", view, err)
	}
	if err := c.client.Set(ctx, ViewKey(view, userID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("set view %s: %w", view, err)
	}
	return nil
}

// Invalidate drops the cached view and announces it on InvalidationChannel.
func (c *ViewCache) Invalidate(ctx context.Context, view string, userID uuid.UUID) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, ViewKey(view, userID))
	pipe.Publish(ctx, InvalidationChannel, view+":"+userID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("invalidate view %s: %w", view, err)
	}
	return nil
}
