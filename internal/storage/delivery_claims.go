package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes a claim only when the caller still owns it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// DeliveryClaims leases notification ids across scheduler instances.
// A claim is a SET NX key holding the owner's id and expiring after the lease TTL.
type DeliveryClaims struct {
	redis *RedisCache
	owner string
}

// NewDeliveryClaims creates a claim store for one scheduler instance
func NewDeliveryClaims(redis *RedisCache, owner string) *DeliveryClaims {
	return &DeliveryClaims{redis: redis, owner: owner}
}

// claimKey format: claim:notification:<id>
func claimKey(id string) string {
	return "claim:notification:" + id
}

// Claim takes the lease on a notification, returning false when another owner holds it
func (c *DeliveryClaims) Claim(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	ok, err := c.redis.Client().SetNX(ctx, claimKey(id), c.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim notification %s: %w", id, err)
	}
	return ok, nil
}

// Release drops this owner's leases. Leases held by other owners are left alone.
func (c *DeliveryClaims) Release(ctx context.Context, ids ...string) error {
	for _, id := range ids {
		if err := releaseScript.Run(ctx, c.redis.Client(), []string{claimKey(id)}, c.owner).Err(); err != nil {
			return fmt.Errorf("failed to release notification %s: %w", id, err)
		}
	}
	return nil
}
