package cache

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Leaderboard is the all-time points table across every finished game, a
// single sorted set keyed by player display name.
type Leaderboard struct {
	rdb *redis.Client
	key string
}

type LeaderboardEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
	Rank  int    `json:"rank"`
}

func NewLeaderboard(rdb *redis.Client, key string) *Leaderboard {
	return &Leaderboard{rdb: rdb, key: key}
}

// AddPoints adds points to every name in one round trip.
func (l *Leaderboard) AddPoints(ctx context.Context, points map[string]int) error {
	if len(points) == 0 {
		return nil
	}
	pipe := l.rdb.Pipeline()
	for name, pts := range points {
		pipe.ZIncrBy(ctx, l.key, float64(pts), name)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (l *Leaderboard) Top(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		return []LeaderboardEntry{}, nil
	}
	results, err := l.rdb.ZRevRangeWithScores(ctx, l.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, len(results))
	for i, z := range results {
		name, _ := z.Member.(string)
		entries[i] = LeaderboardEntry{Name: name, Score: int(z.Score), Rank: i + 1}
	}
	return entries, nil
}
