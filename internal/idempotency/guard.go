// Package idempotency deduplicates webhook-triggered side effects. Social
// platforms redeliver webhooks at-least-once; a Redis SETNX per action key
// makes the side effect at-most-once across replicas.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// defaultTTL keeps claim keys long enough to outlive webhook redelivery
// windows without growing the keyspace forever.
const defaultTTL = 48 * time.Hour

// Guard claims action keys in Redis.
type Guard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewGuard(client *redis.Client) *Guard {
	return &Guard{client: client, ttl: defaultTTL}
}

// WithTTL overrides the claim lifetime.
func (g *Guard) WithTTL(ttl time.Duration) *Guard {
	g.ttl = ttl
	return g
}

// Claim atomically claims the key. It returns true exactly once per key per
// TTL window; later callers get false and must skip the side effect.
func (g *Guard) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := g.client.SetNX(ctx, "idem:"+key, 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claiming idempotency key %s: %w", key, err)
	}
	return ok, nil
}

// Release frees a claimed key so the action can be retried, used when the
// side effect failed after the claim.
func (g *Guard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, "idem:"+key).Err(); err != nil {
		return fmt.Errorf("releasing idempotency key %s: %w", key, err)
	}
	return nil
}
