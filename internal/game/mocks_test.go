package game

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockJudge struct {
	mock.Mock
}

func (m *MockJudge) Judge(ctx context.Context, image, mission string) (Verdict, error) {
	args := m.Called(ctx, image, mission)
	return args.Get(0).(Verdict), args.Error(1)
}

// okPhoto is the data URI form of "ok" for tests that go through the socket.
const okPhoto = "data:image/jpeg;base64,b2s="

// okBadJudge accepts the image "ok" (or okPhoto) and rejects anything else.
func okBadJudge() *MockJudge {
	j := &MockJudge{}
	isOK := mock.MatchedBy(func(img string) bool { return img == "ok" || img == okPhoto })
	j.On("Judge", mock.Anything, isOK, mock.Anything).Return(Verdict{Valid: true, Confidence: 0.9, Reason: "match"}, nil)
	j.On("Judge", mock.Anything, mock.Anything, mock.Anything).Return(Verdict{Valid: false, Confidence: 0.8, Reason: "no match"}, nil)
	return j
}

type MockMissions struct {
	mock.Mock
}

func (m *MockMissions) Missions(ctx context.Context, d Difficulty, count int) ([]string, error) {
	args := m.Called(ctx, d, count)
	list, _ := args.Get(0).([]string)
	return list, args.Error(1)
}

type MockRecorder struct {
	mock.Mock
}

func (m *MockRecorder) RecordGame(ctx context.Context, game FinishedGame) error {
	return m.Called(ctx, game).Error(0)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RoundDuration = time.Hour
	cfg.ResultsPause = time.Hour
	cfg.JudgeTimeout = 200 * time.Millisecond
	cfg.MissionTimeout = 200 * time.Millisecond
	cfg.RecordTimeout = time.Second
	return cfg
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T, cfg Config, missions MissionProvider, judge Judge, opts ...Option) *Registry {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	g := NewRegistry(cfg, missions, judge, opts...)
	t.Cleanup(g.Close)
	return g
}

func newTestConn() *ClientConn {
	return &ClientConn{
		ws:   nil,
		send: make(chan []byte, 256),
	}
}

func readEnvelopesNonBlocking(c *ClientConn) []Envelope {
	var envs []Envelope
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return envs
			}
			var env Envelope
			if json.Unmarshal(msg, &env) == nil {
				envs = append(envs, env)
			}
		default:
			return envs
		}
	}
}

func msgTypes(envs []Envelope) []string {
	out := make([]string, 0, len(envs))
	for _, e := range envs {
		out = append(out, e.Type)
	}
	return out
}

func findLast[T any](t *testing.T, envs []Envelope, msgType string) (T, bool) {
	t.Helper()
	var v T
	for i := len(envs) - 1; i >= 0; i-- {
		if envs[i].Type != msgType {
			continue
		}
		require.NoError(t, json.Unmarshal(envs[i].Payload, &v))
		return v, true
	}
	return v, false
}

func count(envs []Envelope, msgType string) int {
	n := 0
	for _, e := range envs {
		if e.Type == msgType {
			n++
		}
	}
	return n
}

// table seats host + guests (ids double as names) in a new room.
type table struct {
	g     *Registry
	room  *Room
	conns map[string]*ClientConn
}

func newTable(t *testing.T, g *Registry, rounds int, ids ...string) *table {
	t.Helper()
	tb := &table{g: g, conns: make(map[string]*ClientConn)}

	host := ids[0]
	tb.conns[host] = newTestConn()
	room, err := g.CreateRoom(PlayerInfo{ID: host, Name: host, Conn: tb.conns[host]}, "easy", rounds)
	require.NoError(t, err)
	tb.room = room

	for _, id := range ids[1:] {
		tb.conns[id] = newTestConn()
		_, err := g.JoinRoom(PlayerInfo{ID: id, Name: id, Conn: tb.conns[id]}, room.Code())
		require.NoError(t, err)
	}
	return tb
}

func (tb *table) scores() map[string]int {
	tb.room.mu.Lock()
	defer tb.room.mu.Unlock()
	out := make(map[string]int, len(tb.room.players))
	for _, p := range tb.room.players {
		out[p.id] = p.score
	}
	return out
}

func (tb *table) state() (Status, int) {
	tb.room.mu.Lock()
	defer tb.room.mu.Unlock()
	return tb.room.status, tb.room.currentRound
}

func (tb *table) drain() {
	for _, c := range tb.conns {
		readEnvelopesNonBlocking(c)
	}
}
