package knowledge

import (
	"context"
	"fmt"
	"time"

	"voice-receptionist/pkg/logger"
	"voice-receptionist/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Limiter caps concurrent ingestions per bot. Acquire returns ErrBusy when the
// cap is reached; release must be called exactly once otherwise.
type Limiter interface {
	Acquire(ctx context.Context, botID string) (release func(), err error)
}

// RedisLimiter shares the cap across API replicas. TTL bounds how long a slot
// stays taken if a replica dies mid-ingestion.
type RedisLimiter struct {
	Client redis.Scripter
	Limit  int
	TTL    time.Duration
}

func limiterKey(botID string) string {
	return "kb:ingest:" + botID
}

func (l RedisLimiter) Acquire(ctx context.Context, botID string) (func(), error) {
	key := limiterKey(botID)
	ok, err := utils.AcquireSlot(ctx, l.Client, key, l.Limit, l.TTL)
	if err != nil {
		return nil, fmt.Errorf("acquire ingest slot: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}
	return func() {
		if err := utils.ReleaseSlot(context.WithoutCancel(ctx), l.Client, key); err != nil {
			logger.From(ctx).Warn("release ingest slot failed", "bot_id", botID, "err", err)
		}
	}, nil
}
