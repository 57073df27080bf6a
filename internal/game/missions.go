package game

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
)

type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// RoundCounts are the supported game lengths.
var RoundCounts = []int{3, 5, 7, 10}

func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToLower(strings.TrimSpace(s))); d {
	case Easy, Medium, Hard:
		return d, nil
	}
	return "", fmt.Errorf("unknown difficulty %q: %w", s, ErrInvalidInput)
}

func validRoundCount(n int) bool {
	for _, c := range RoundCounts {
		if c == n {
			return true
		}
	}
	return false
}

// MissionProvider supplies up to count mission texts for a game.
type MissionProvider interface {
	Missions(ctx context.Context, difficulty Difficulty, count int) ([]string, error)
}

// missionPool is the static fallback. Every tier holds more entries than the
// longest supported game.
var missionPool = map[Difficulty][]string{
	Easy: {
		"Something red",
		"A cup or a mug",
		"A book",
		"Something with wheels",
		"A plant or a flower",
		"A shoe",
		"Something round",
		"A key",
		"A spoon or a fork",
		"Something soft",
		"A pen or a pencil",
		"Your favourite snack",
	},
	Medium: {
		"Something older than you",
		"Three things of the same colour",
		"A reflection of yourself",
		"Something that makes noise",
		"A handwritten word",
		"Something that fits in your palm and is blue",
		"An object with a number on it",
		"Something that needs batteries",
		"A shadow with an interesting shape",
		"Something made of wood",
		"A label in another language",
		"Two objects that start with the same letter",
	},
	Hard: {
		"Something that looks like a face",
		"An object shaped like a letter of the alphabet",
		"Five different textures in one shot",
		"Something that is both old and broken",
		"A rainbow of at least four colours",
		"Something you would find in a toolbox",
		"A photo where nothing is in focus except one object",
		"Something that is perfectly symmetrical",
		"An item from a different decade",
		"Something that casts two shadows",
		"A clock showing an odd-numbered hour",
		"A drawing of an animal you made right now",
	},
}

// completeMissions keeps the usable part of what the provider returned and tops
// it up from the static pool, sampling without replacement. The result is
// shorter than count only if the pool runs dry.
func completeMissions(got []string, difficulty Difficulty, count int) []string {
	out := make([]string, 0, count)
	seen := make(map[string]bool, count)

	for _, m := range got {
		m = strings.TrimSpace(m)
		key := strings.ToLower(m)
		if m == "" || seen[key] {
			continue
		}
		if len(out) == count {
			break
		}
		seen[key] = true
		out = append(out, m)
	}

	if len(out) == count {
		return out
	}

	pool := missionPool[difficulty]
	for _, i := range rand.Perm(len(pool)) {
		if len(out) == count {
			break
		}
		m := pool[i]
		if seen[strings.ToLower(m)] {
			continue
		}
		seen[strings.ToLower(m)] = true
		out = append(out, m)
	}
	return out
}
