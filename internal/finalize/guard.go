package finalize

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"ai-phone-assistant/pkg/utils"
)

// Guard is a second at-most-once check that survives a process restart.
type Guard interface {
	// Claim reports whether this process is the first to notify for callID.
	Claim(ctx context.Context, callID string) (bool, error)
}

// RedisGuard claims "notify:<callID>" with SET NX PX.
type RedisGuard struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	owner  string
}

func NewRedisGuard(rdb *redis.Client, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisGuard{rdb: rdb, ttl: ttl, prefix: "notify:", owner: uuid.NewString()}
}

func (g *RedisGuard) Claim(ctx context.Context, callID string) (bool, error) {
	return utils.ClaimOnce(ctx, g.rdb, g.prefix+callID, g.owner, g.ttl)
}

