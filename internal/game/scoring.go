package game

import (
	"cmp"
	"math"
	"slices"
)

const BaseScore = 100

// speed bonus for the 1st, 2nd and 3rd fastest correct submission
var speedBonus = [...]int{50, 30, 10}

// NoSubmission is the elapsed time of a player who did not submit; it ranks last.
const NoSubmission int64 = math.MaxInt64

// Result is one player's outcome for a resolved round.
type Result struct {
	PlayerID  string
	Submitted bool
	Correct   bool
	ElapsedMs int64
}

// Score turns round results into per-player point deltas.
//
// Only correct submissions score: BaseScore each, plus a speed bonus for the
// three fastest. Equal elapsed times keep the input order. Nobody goes negative.
func Score(results []Result) map[string]int {
	deltas := make(map[string]int, len(results))
	correct := make([]Result, 0, len(results))

	for _, r := range results {
		deltas[r.PlayerID] = 0
		if r.Submitted && r.Correct {
			correct = append(correct, r)
		}
	}

	slices.SortStableFunc(correct, func(a, b Result) int {
		return cmp.Compare(a.ElapsedMs, b.ElapsedMs)
	})

	for rank, r := range correct {
		pts := BaseScore
		if rank < len(speedBonus) {
			pts += speedBonus[rank]
		}
		deltas[r.PlayerID] = pts
	}
	return deltas
}
