package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

var errNoStore = errors.New("ratelimit: store not configured")

// NewUluleStore returns a ulule/limiter store sharing rdb.
func NewUluleStore(rdb *redis.Client, prefix string) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: prefix})
}

// Ulule is a fixed-window Allower, selected with RATE_LIMIT_BACKEND=ulule.
type Ulule struct {
	Store limiter.Store
}

// Allow implements Allower.
func (u Ulule) Allow(ctx context.Context, key string, limit Limit) (Decision, error) {
	if !limit.Enabled() {
		return Decision{Allowed: true, Remaining: limit.Max, ResetAt: time.Now().Add(limit.Window)}, nil
	}
	if u.Store == nil {
		return Decision{}, errNoStore
	}
	res, err := limiter.New(u.Store, limiter.Rate{Period: limit.Window, Limit: int64(limit.Max)}).Get(ctx, key)
	if err != nil {
		return Decision{ResetAt: time.Now().Add(limit.Window)}, err
	}
	return Decision{
		Allowed:   !res.Reached,
		Remaining: int(res.Remaining),
		ResetAt:   time.Unix(res.Reset, 0),
	}, nil
}
