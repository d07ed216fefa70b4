package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SlidingWindow counts events in a Redis sorted set scored by arrival time in
// nanoseconds. Rejected attempts are recorded too, so a client hammering the
// endpoint keeps its own window full.
type SlidingWindow struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

func (l SlidingWindow) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Allow implements Allower.
func (l SlidingWindow) Allow(ctx context.Context, key string, limit Limit) (Decision, error) {
	now := l.now()
	if l.Client == nil || !limit.Enabled() {
		return Decision{Allowed: true, Remaining: limit.Max, ResetAt: now.Add(limit.Window)}, nil
	}

	redisKey := l.Prefix + key
	cutoff := now.Add(-limit.Window).UnixNano()

	pipe := l.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	count := pipe.ZCard(ctx, redisKey)
	oldest := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	pipe.PExpire(ctx, redisKey, limit.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{ResetAt: now.Add(limit.Window)}, err
	}

	resetAt := now.Add(limit.Window)
	if first := oldest.Val(); len(first) == 1 {
		resetAt = time.Unix(0, int64(first[0].Score)).Add(limit.Window)
	}
	current := int(count.Val())
	return Decision{
		Allowed:   current <= limit.Max,
		Remaining: max(limit.Max-current, 0),
		ResetAt:   resetAt,
	}, nil
}
