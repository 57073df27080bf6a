package game

import "context"

// GameRecorder receives the outcome of every finished game. It runs off the
// room's lock; failures are only logged.
type GameRecorder interface {
	RecordGame(ctx context.Context, game FinishedGame) error
}

type FinishedGame struct {
	Code       string
	Difficulty Difficulty
	Rounds     int
	Standings  []Standing
}

type Standing struct {
	PlayerID  string
	Name      string
	AccountID string
	Score     int
	Rank      int // 1-based, equal scores share a rank
}

// Winners are the players on rank 1 with a positive score.
func (g FinishedGame) Winners() []Standing {
	var out []Standing
	for _, s := range g.Standings {
		if s.Rank == 1 && s.Score > 0 {
			out = append(out, s)
		}
	}
	return out
}
