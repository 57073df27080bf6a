package app

import (
	"context"
	"errors"

	"example.com/photohunt/internal/game"
	"example.com/photohunt/internal/store"
)

type statsWriter interface {
	RecordGame(ctx context.Context, results []store.GameResult) error
}

type pointsBoard interface {
	AddPoints(ctx context.Context, points map[string]int) error
}

// recorder stores a finished game: per-account stats in Postgres and points
// per display name on the global leaderboard.
type recorder struct {
	stats statsWriter
	board pointsBoard
}

func newRecorder(stats statsWriter, board pointsBoard) *recorder {
	return &recorder{stats: stats, board: board}
}

func (r *recorder) RecordGame(ctx context.Context, g game.FinishedGame) error {
	winners := make(map[string]bool)
	for _, w := range g.Winners() {
		winners[w.PlayerID] = true
	}

	var results []store.GameResult
	points := make(map[string]int, len(g.Standings))
	for _, s := range g.Standings {
		if s.AccountID != "" {
			results = append(results, store.GameResult{UserID: s.AccountID, Points: s.Score, Won: winners[s.PlayerID]})
		}
		if s.Score > 0 {
			points[s.Name] += s.Score
		}
	}

	return errors.Join(
		r.stats.RecordGame(ctx, results),
		r.board.AddPoints(ctx, points),
	)
}
