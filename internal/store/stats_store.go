package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PlayerStats struct {
	UserID      string
	GamesPlayed int
	Wins        int
	TotalPoints int
	BestScore   int
	UpdatedAt   time.Time
}

// GameResult is one account's outcome in a finished game.
type GameResult struct {
	UserID string
	Points int
	Won    bool
}

type StatsStore struct {
	db *pgxpool.Pool
}

func NewStatsStore(db *pgxpool.Pool) *StatsStore {
	return &StatsStore{db: db}
}

func (s *StatsStore) InitForUser(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO player_stats (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	return err
}

func (s *StatsStore) Get(ctx context.Context, userID string) (PlayerStats, error) {
	var st PlayerStats
	err := s.db.QueryRow(ctx, `
		SELECT user_id, games_played, wins, total_points, best_score, updated_at
		FROM player_stats
		WHERE user_id=$1
	`, userID).Scan(&st.UserID, &st.GamesPlayed, &st.Wins, &st.TotalPoints, &st.BestScore, &st.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		// no games yet
		return PlayerStats{UserID: userID}, nil
	}
	if err != nil {
		return PlayerStats{}, err
	}
	return st, nil
}

// RecordGame applies one finished game to every participating account in a
// single transaction.
func (s *StatsStore) RecordGame(ctx context.Context, results []GameResult) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, r := range results {
		wins := 0
		if r.Won {
			wins = 1
		}
		batch.Queue(`
			INSERT INTO player_stats (user_id, games_played, wins, total_points, best_score, updated_at)
			VALUES ($1, 1, $2, $3, $3, now())
			ON CONFLICT (user_id) DO UPDATE SET
				games_played = player_stats.games_played + 1,
				wins         = player_stats.wins + EXCLUDED.wins,
				total_points = player_stats.total_points + EXCLUDED.total_points,
				best_score   = GREATEST(player_stats.best_score, EXCLUDED.best_score),
				updated_at   = now()
		`, r.UserID, wins, r.Points)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
