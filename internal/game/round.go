package game

import (
	"context"
	"fmt"
	"time"
)

const (
	triggerAllSubmitted = "all_submitted"
	triggerDeadline     = "deadline"
	triggerPlayerLeft   = "player_left"
)

type Submission struct {
	PlayerID   string
	Valid      bool
	Confidence float64
	Reason     string
	ElapsedMs  int64
}

// round is the live round of a room. It resolves once; resolved never goes back
// to false for the same round.
type round struct {
	index     int
	mission   string
	startedAt time.Time
	deadline  time.Time
	timer     *time.Timer

	submissions map[string]Submission
	order       []string            // arrival order
	pending     map[string]struct{} // being judged right now
	resolved    bool
}

func (rd *round) has(playerID string) bool {
	if _, ok := rd.submissions[playerID]; ok {
		return true
	}
	_, ok := rd.pending[playerID]
	return ok
}

func (rd *round) record(s Submission) {
	rd.submissions[s.PlayerID] = s
	rd.order = append(rd.order, s.PlayerID)
}

// results lists present players: submitters in arrival order, then everyone
// who did not submit.
func (rd *round) results(players []*Player) []Result {
	present := make(map[string]bool, len(players))
	for _, p := range players {
		present[p.id] = true
	}

	out := make([]Result, 0, len(players))
	for _, id := range rd.order {
		if !present[id] {
			continue
		}
		s := rd.submissions[id]
		out = append(out, Result{PlayerID: id, Submitted: true, Correct: s.Valid, ElapsedMs: s.ElapsedMs})
	}
	for _, p := range players {
		if _, ok := rd.submissions[p.id]; !ok {
			out = append(out, Result{PlayerID: p.id, ElapsedMs: NoSubmission})
		}
	}
	return out
}

func (r *Room) startRoundLocked() {
	now := time.Now()
	d := r.env.cfg.RoundDuration

	r.roundToken++
	token := r.roundToken

	if r.round != nil && r.round.timer != nil {
		r.round.timer.Stop()
	}

	rd := &round{
		index:       r.currentRound,
		mission:     r.missions[r.currentRound],
		startedAt:   now,
		deadline:    now.Add(d),
		submissions: make(map[string]Submission),
		pending:     make(map[string]struct{}),
	}
	rd.timer = time.AfterFunc(d, func() {
		r.onRoundTimeout(token)
	})
	r.round = rd

	r.env.log.Info("round started", "room", r.code, "round", rd.index, "mission", rd.mission)
	r.gw.broadcast(MsgRoundStart, r.roundStartLocked(rd))
}

func (r *Room) roundStartLocked(rd *round) RoundStartPayload {
	return RoundStartPayload{
		RoundIndex:  rd.index,
		TotalRounds: r.totalRounds,
		Mission:     rd.mission,
		DeadlineMs:  rd.deadline.UnixMilli(),
		DurationMs:  r.env.cfg.RoundDuration.Milliseconds(),
	}
}

// Submit records a player's photo for the live round. Duplicates, late photos
// and photos outside play are ignored. The Judge runs without the lock held; a
// photo whose round closed while it was being judged is answered with a
// round_closed error.
func (r *Room) Submit(playerID, image string) {
	r.mu.Lock()
	rd := r.round
	if r.closed || r.status != StatusPlaying || rd == nil || rd.resolved ||
		r.indexLocked(playerID) < 0 || rd.has(playerID) {
		r.mu.Unlock()
		return
	}
	rd.pending[playerID] = struct{}{}
	elapsed := time.Since(rd.startedAt).Milliseconds()
	mission := rd.mission
	r.mu.Unlock()

	v := r.judge(image, mission)

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(rd.pending, playerID)
	if r.closed || r.indexLocked(playerID) < 0 {
		return
	}
	if r.round != rd || rd.resolved {
		// judged too late: the round closed while the photo was being checked
		r.gw.unicast(playerID, MsgError, ErrorPayload{Code: "round_closed", Message: "the round ended before your photo was judged"})
		return
	}

	rd.record(Submission{
		PlayerID:   playerID,
		Valid:      v.Valid,
		Confidence: v.Confidence,
		Reason:     v.Reason,
		ElapsedMs:  elapsed,
	})
	r.gw.unicast(playerID, MsgSubmissionResult, SubmissionResultPayload{
		RoundIndex: rd.index,
		Valid:      v.Valid,
		Confidence: v.Confidence,
		Reason:     v.Reason,
		ElapsedMs:  elapsed,
	})

	if r.allSubmittedLocked() {
		r.resolveLocked(triggerAllSubmitted)
	}
}

// judge asks the Judge within JudgeTimeout and substitutes a random verdict on
// any failure, so a bad judge never stalls the round.
func (r *Room) judge(image, mission string) Verdict {
	if r.env.judge == nil {
		return fallbackVerdict()
	}
	v, err := bounded(r.ctx, r.env.cfg.JudgeTimeout, func(ctx context.Context) (Verdict, error) {
		return r.env.judge.Judge(ctx, image, mission)
	})
	if err != nil {
		r.env.log.Warn("judge failed, using fallback verdict", "room", r.code, "err", err)
		return fallbackVerdict()
	}
	v.Confidence = min(max(v.Confidence, 0), 1)
	return v
}

func (r *Room) allSubmittedLocked() bool {
	if len(r.players) == 0 {
		return false
	}
	for _, p := range r.players {
		if _, ok := r.round.submissions[p.id]; !ok {
			return false
		}
	}
	return true
}

func (r *Room) onRoundTimeout(token int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || r.status != StatusPlaying || r.round == nil {
		return
	}
	if token != r.roundToken {
		return // stale timer
	}
	r.resolveLocked(triggerDeadline)
}

// resolveLocked closes the live round. The resolved flag is set before any
// scoring so a racing trigger finds it already set.
func (r *Room) resolveLocked(trigger string) {
	rd := r.round
	if rd == nil || rd.resolved {
		return
	}
	rd.resolved = true
	if rd.timer != nil {
		rd.timer.Stop()
	}

	results := rd.results(r.players)
	deltas := r.scoreLocked(results)

	for _, p := range r.players {
		p.score += deltas[p.id]
	}
	r.currentRound++

	r.env.log.Info("round resolved", "room", r.code, "round", rd.index, "trigger", trigger, "submissions", len(rd.order))
	r.gw.broadcast(MsgRoundResult, r.roundResultLocked(rd, results, deltas))

	if r.currentRound >= r.totalRounds {
		r.finishLocked()
		return
	}
	r.schedulePhaseLocked(func() {
		if r.status != StatusPlaying {
			return
		}
		r.startRoundLocked()
	})
}

// scoreLocked never lets a scoring fault wedge the room: the round still
// counts, with no points awarded.
func (r *Room) scoreLocked(results []Result) (deltas map[string]int) {
	defer func() {
		if rec := recover(); rec != nil {
			r.env.log.Error("scoring failed", "room", r.code, "err", fmt.Sprint(rec))
			deltas = map[string]int{}
		}
	}()
	return Score(results)
}

func (r *Room) roundResultLocked(rd *round, results []Result, deltas map[string]int) RoundResultPayload {
	names := make(map[string]string, len(r.players))
	scores := make(map[string]int, len(r.players))
	for _, p := range r.players {
		names[p.id] = p.name
		scores[p.id] = p.score
	}

	out := make([]ResultView, 0, len(results))
	for _, res := range results {
		elapsed := res.ElapsedMs
		if !res.Submitted {
			elapsed = -1
		}
		out = append(out, ResultView{
			PlayerID:  res.PlayerID,
			Name:      names[res.PlayerID],
			Submitted: res.Submitted,
			Correct:   res.Submitted && res.Correct,
			ElapsedMs: elapsed,
			Points:    deltas[res.PlayerID],
			Score:     scores[res.PlayerID],
		})
	}

	return RoundResultPayload{
		RoundIndex:  rd.index,
		TotalRounds: r.totalRounds,
		Mission:     rd.mission,
		Results:     out,
		Players:     r.playerViewsLocked(),
	}
}
