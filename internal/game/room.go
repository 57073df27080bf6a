package game

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

const MaxPlayers = 8

// PlayerInfo describes a connection entering a room.
type PlayerInfo struct {
	ID        string // connection identity
	Name      string
	AccountID string // optional, set when the connection presented a valid token
	Conn      *ClientConn
}

type Player struct {
	id        string
	name      string
	accountID string
	score     int
}

// Room is one game session. All mutable state is guarded by mu; methods with
// the Locked suffix expect it held.
type Room struct {
	code       string
	difficulty Difficulty
	env        *env

	ctx    context.Context // cancelled when the room is destroyed
	cancel context.CancelFunc

	mu sync.Mutex

	status      Status
	starting    bool
	closed      bool
	players     []*Player // join order
	hostID      string
	totalRounds int

	currentRound int
	missions     []string
	round        *round
	roundToken   int64

	phaseTimer   *time.Timer
	phaseToken   int64
	finalPending bool // finalResult not broadcast yet

	gw *gateway
}

func newRoom(code string, difficulty Difficulty, rounds int, e *env) *Room {
	ctx, cancel := context.WithCancel(context.Background())
	return &Room{
		code:        code,
		difficulty:  difficulty,
		env:         e,
		ctx:         ctx,
		cancel:      cancel,
		status:      StatusWaiting,
		totalRounds: rounds,
		gw:          newGateway(e.log.With("room", code)),
	}
}

func (r *Room) Code() string { return r.code }

func (r *Room) join(info PlayerInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomNotFound
	}
	if len(r.players) >= MaxPlayers {
		return ErrRoomFull
	}
	for _, p := range r.players {
		if strings.EqualFold(p.name, info.Name) {
			return ErrNameTaken
		}
	}

	r.players = append(r.players, &Player{id: info.ID, name: info.Name, accountID: info.AccountID})
	if r.hostID == "" {
		r.hostID = info.ID
	}
	r.gw.attach(info.ID, info.Conn)

	r.gw.unicast(info.ID, MsgRoomJoined, RoomJoinedPayload{Code: r.code, PlayerID: info.ID})
	r.broadcastRoomLocked()

	// joining mid-round: the newcomer plays the live round too
	if rd := r.round; r.status == StatusPlaying && rd != nil && !rd.resolved {
		r.gw.unicast(info.ID, MsgRoundStart, r.roundStartLocked(rd))
	}

	r.env.log.Info("player joined", "room", r.code, "player", info.ID, "players", len(r.players))
	return nil
}

// leave removes a player and reports whether the room is now empty (and closed).
func (r *Room) leave(playerID string) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(playerID)
	if i < 0 {
		return r.closed
	}
	r.players = slices.Delete(r.players, i, i+1)
	r.gw.detach(playerID)

	if len(r.players) == 0 {
		r.closeLocked()
		return true
	}

	if r.hostID == playerID {
		r.hostID = r.players[0].id
		r.env.log.Info("host migrated", "room", r.code, "host", r.hostID)
	}
	r.broadcastRoomLocked()

	// the leaver may have been the last one the round was waiting for
	if rd := r.round; r.status == StatusPlaying && rd != nil && !rd.resolved && r.allSubmittedLocked() {
		r.resolveLocked(triggerPlayerLeft)
	}
	return false
}

// Start moves a waiting room into play. Only the host can start; anything else
// is ignored. Missions are fetched without holding the lock.
func (r *Room) Start(playerID string) {
	r.mu.Lock()
	if r.closed || r.starting || r.status != StatusWaiting || playerID != r.hostID {
		r.mu.Unlock()
		return
	}
	r.starting = true
	want := r.totalRounds
	r.mu.Unlock()

	missions := r.fetchMissions(want)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.starting = false
	if r.closed || r.status != StatusWaiting {
		return
	}
	if len(missions) == 0 {
		r.env.log.Error("no missions available, game not started", "room", r.code, "difficulty", r.difficulty)
		return
	}

	r.missions = missions
	r.totalRounds = len(missions)
	r.currentRound = 0
	r.status = StatusPlaying

	r.env.log.Info("game started", "room", r.code, "rounds", r.totalRounds, "players", len(r.players))
	r.broadcastRoomLocked()
	r.startRoundLocked()
}

func (r *Room) fetchMissions(count int) []string {
	var got []string
	if r.env.missions != nil {
		list, err := bounded(r.ctx, r.env.cfg.MissionTimeout, func(ctx context.Context) ([]string, error) {
			return r.env.missions.Missions(ctx, r.difficulty, count)
		})
		switch {
		case err != nil:
			r.env.log.Warn("mission provider failed, using static pool", "room", r.code, "err", err)
		case len(list) < count:
			r.env.log.Warn("mission provider returned too few, topping up", "room", r.code, "got", len(list), "want", count)
			got = list
		default:
			got = list
		}
	}
	return completeMissions(got, r.difficulty, count)
}

// PlayAgain takes a finished room back to waiting with the same roster and host.
func (r *Room) PlayAgain(playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexLocked(playerID) < 0 {
		return false
	}
	return r.resetLocked()
}

func (r *Room) reset() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resetLocked()
}

func (r *Room) resetLocked() bool {
	if r.closed || r.status != StatusFinished {
		return false
	}

	// a replay requested during the results pause still gets the final standings first
	r.sendFinalLocked()
	r.stopPhaseLocked()
	if r.round != nil && r.round.timer != nil {
		r.round.timer.Stop()
	}

	for _, p := range r.players {
		p.score = 0
	}
	r.currentRound = 0
	r.missions = nil
	r.round = nil
	r.status = StatusWaiting

	r.env.log.Info("room reset for replay", "room", r.code)
	r.broadcastRoomLocked()
	return true
}

// Snapshot is a pure read of the room's current state.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Room) snapshotLocked() Snapshot {
	s := Snapshot{Code: r.code, Status: r.status}
	if r.status == StatusPlaying && r.round != nil {
		s.Round = &RoundSnapshot{
			RoundIndex:  r.round.index,
			TotalRounds: r.totalRounds,
			Mission:     r.round.mission,
			DeadlineMs:  r.round.startedAt.Add(r.env.cfg.RoundDuration).UnixMilli(),
		}
	}
	return s
}

// SendStateTo answers getState through the room so it stays ordered with broadcasts.
func (r *Room) SendStateTo(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gw.unicast(playerID, MsgState, r.snapshotLocked())
}

func (r *Room) finishLocked() {
	r.status = StatusFinished
	r.finalPending = true

	r.env.log.Info("game finished", "room", r.code, "rounds", r.totalRounds)
	r.schedulePhaseLocked(r.sendFinalLocked)

	if r.env.recorder != nil {
		game := FinishedGame{
			Code:       r.code,
			Difficulty: r.difficulty,
			Rounds:     r.totalRounds,
			Standings:  r.standingsLocked(),
		}
		go r.env.record(game)
	}
}

// sendFinalLocked broadcasts the final standings once per game. Standings are
// built from the players still present, so anyone who left during the results
// pause is not listed.
func (r *Room) sendFinalLocked() {
	if !r.finalPending {
		return
	}
	r.finalPending = false
	r.gw.broadcast(MsgFinalResult, FinalResultPayload{Code: r.code, Standings: views(r.standingsLocked(), r.hostID)})
}

// standingsLocked sorts by score descending; ties keep join order.
func (r *Room) standingsLocked() []Standing {
	out := make([]Standing, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, Standing{PlayerID: p.id, Name: p.name, AccountID: p.accountID, Score: p.score})
	}
	slices.SortStableFunc(out, func(a, b Standing) int {
		return cmp.Compare(b.Score, a.Score)
	})
	for i := range out {
		out[i].Rank = i + 1
		if i > 0 && out[i].Score == out[i-1].Score {
			out[i].Rank = out[i-1].Rank
		}
	}
	return out
}

// schedulePhaseLocked runs fn under the lock after the results pause, unless the
// room has moved on (closed, reset, or another phase scheduled) in between.
func (r *Room) schedulePhaseLocked(fn func()) {
	r.stopPhaseLocked()
	r.phaseToken++
	token := r.phaseToken

	r.phaseTimer = time.AfterFunc(r.env.cfg.ResultsPause, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed || token != r.phaseToken {
			return
		}
		fn()
	})
}

func (r *Room) stopPhaseLocked() {
	r.phaseToken++
	if r.phaseTimer != nil {
		r.phaseTimer.Stop()
		r.phaseTimer = nil
	}
}

func (r *Room) closeLocked() {
	if r.closed {
		return
	}
	r.closed = true
	r.stopPhaseLocked()
	if r.round != nil && r.round.timer != nil {
		r.round.timer.Stop()
	}
	r.roundToken++
	r.cancel()
	r.gw.closeAll()
}

func (r *Room) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Room) indexLocked(playerID string) int {
	return slices.IndexFunc(r.players, func(p *Player) bool { return p.id == playerID })
}

func (r *Room) broadcastRoomLocked() {
	r.gw.broadcast(MsgRoomUpdate, RoomUpdatePayload{
		Code:        r.code,
		Status:      r.status,
		HostID:      r.hostID,
		Difficulty:  r.difficulty,
		TotalRounds: r.totalRounds,
		Players:     r.playerViewsLocked(),
	})
}

func (r *Room) playerViewsLocked() []PlayerView {
	out := make([]PlayerView, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, PlayerView{ID: p.id, Name: p.name, Score: p.score, IsHost: p.id == r.hostID})
	}
	return out
}

func views(standings []Standing, hostID string) []PlayerView {
	out := make([]PlayerView, 0, len(standings))
	for _, s := range standings {
		out = append(out, PlayerView{ID: s.PlayerID, Name: s.Name, Score: s.Score, IsHost: s.PlayerID == hostID})
	}
	return out
}

// env is what every room of a registry shares.
type env struct {
	cfg      Config
	missions MissionProvider
	judge    Judge
	recorder GameRecorder
	log      *slog.Logger
}

func (e *env) record(game FinishedGame) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RecordTimeout)
	defer cancel()
	if err := e.recorder.RecordGame(ctx, game); err != nil {
		e.log.Error("record finished game", "room", game.Code, "err", err)
	}
}
