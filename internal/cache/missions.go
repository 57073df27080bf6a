package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"example.com/photohunt/internal/game"
	"github.com/redis/go-redis/v9"
)

// MissionCache keeps generated missions per difficulty in a Redis set and
// serves later games from it. Misses and Redis errors fall through to the
// wrapped provider, whose answer refills the set.
type MissionCache struct {
	rdb  *redis.Client
	next game.MissionProvider
	ttl  time.Duration
	log  *slog.Logger
}

func NewMissionCache(rdb *redis.Client, next game.MissionProvider, ttl time.Duration, log *slog.Logger) *MissionCache {
	if log == nil {
		log = slog.Default()
	}
	return &MissionCache{rdb: rdb, next: next, ttl: ttl, log: log}
}

func (c *MissionCache) key(d game.Difficulty) string {
	return fmt.Sprintf("missions:%s", d)
}

func (c *MissionCache) Missions(ctx context.Context, d game.Difficulty, count int) ([]string, error) {
	// a positive count returns distinct members
	cached, err := c.rdb.SRandMemberN(ctx, c.key(d), int64(count)).Result()
	if err != nil {
		c.log.Warn("mission cache read failed", "difficulty", d, "err", err)
		cached = nil
	}
	if len(cached) >= count {
		return cached, nil
	}

	fresh, err := c.next.Missions(ctx, d, count)
	if err != nil {
		if len(cached) > 0 {
			return cached, nil
		}
		return nil, err
	}
	if len(fresh) > 0 {
		if err := c.store(ctx, d, fresh); err != nil {
			c.log.Warn("mission cache write failed", "difficulty", d, "err", err)
		}
	}
	return fresh, nil
}

func (c *MissionCache) store(ctx context.Context, d game.Difficulty, missions []string) error {
	members := make([]any, len(missions))
	for i, m := range missions {
		members[i] = m
	}
	pipe := c.rdb.TxPipeline()
	pipe.SAdd(ctx, c.key(d), members...)
	if c.ttl > 0 {
		pipe.Expire(ctx, c.key(d), c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}
