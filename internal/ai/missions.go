package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"example.com/photohunt/internal/game"
)

const maxMissionWords = 12

var difficultyHints = map[game.Difficulty]string{
	game.Easy:   "common household objects anyone can find within a minute",
	game.Medium: "objects with a specific property such as colour, material or text",
	game.Hard:   "creative or compound scenes that need some searching or arranging",
}

// Missions asks the model for count mission texts. Entries that are empty or
// longer than twelve words are dropped, so the result may be short.
func (c *Client) Missions(ctx context.Context, difficulty game.Difficulty, count int) ([]string, error) {
	prompt := fmt.Sprintf(`You write missions for a photo scavenger hunt played at home.
Return ONLY valid JSON: {"missions": ["...", "..."]}
Give exactly %d distinct missions, each at most %d words.
Difficulty: %s (%s).
Every mission must be something a phone camera can capture; no people, no faces.`,
		count, maxMissionWords, difficulty, difficultyHints[difficulty])

	text, err := c.generate(ctx, c.cfg.MissionModel, part{Text: prompt})
	if err != nil {
		return nil, err
	}

	var out struct {
		Missions []string `json:"missions"`
	}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, fmt.Errorf("decode missions: %w", err)
	}

	missions := make([]string, 0, len(out.Missions))
	for _, m := range out.Missions {
		m = strings.TrimSpace(m)
		if m == "" || len(strings.Fields(m)) > maxMissionWords {
			continue
		}
		missions = append(missions, m)
		if len(missions) == count {
			break
		}
	}
	return missions, nil
}
