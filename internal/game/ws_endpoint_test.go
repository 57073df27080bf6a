package game

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"example.com/photohunt/internal/auth"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testVerifier struct{}

func (v testVerifier) Verify(token string) (*auth.Claims, error) {
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return &auth.Claims{UserID: "u1", DisplayName: "Alice"}, nil
}

type wsFixture struct {
	reg *Registry
	ts  *httptest.Server
}

func newWSFixture(t *testing.T, cfg Config) *wsFixture {
	t.Helper()
	reg := newTestRegistry(t, cfg, nil, okBadJudge())
	srv := NewServer(cfg, reg, testVerifier{}, discardLogger())

	r := mux.NewRouter()
	srv.RegisterRoutes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return &wsFixture{reg: reg, ts: ts}
}

func (f *wsFixture) dial(t *testing.T, query string, hdr http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws" + query
	ws, resp, err := websocket.DefaultDialer.Dial(url, hdr)
	if err != nil {
		code := 0
		if resp != nil {
			code = resp.StatusCode
		}
		t.Fatalf("dial: status=%d err=%v", code, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func send(t *testing.T, ws *websocket.Conn, msgType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(Envelope{Type: msgType, Payload: raw}))
}

// await reads until a message of msgType arrives and decodes its payload.
func await[T any](t *testing.T, ws *websocket.Conn, msgType string) T {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var env Envelope
		require.NoError(t, ws.ReadJSON(&env), "waiting for %s", msgType)
		if env.Type != msgType {
			continue
		}
		var v T
		require.NoError(t, json.Unmarshal(env.Payload, &v))
		return v
	}
}

func TestWS_FullGame(t *testing.T) {
	cfg := testConfig()
	cfg.ResultsPause = 10 * time.Millisecond
	f := newWSFixture(t, cfg)

	host := f.dial(t, "", nil)
	send(t, host, MsgCreateRoom, CreateRoomPayload{Name: "host", Difficulty: "easy", Rounds: 3})
	joined := await[RoomJoinedPayload](t, host, MsgRoomJoined)
	require.Len(t, joined.Code, codeLength)

	guest := f.dial(t, "", nil)
	send(t, guest, MsgJoinRoom, JoinRoomPayload{Name: "guest", Code: strings.ToLower(joined.Code)})
	guestJoined := await[RoomJoinedPayload](t, guest, MsgRoomJoined)
	assert.Equal(t, joined.Code, guestJoined.Code)

	up := await[RoomUpdatePayload](t, host, MsgRoomUpdate)
	for len(up.Players) < 2 {
		up = await[RoomUpdatePayload](t, host, MsgRoomUpdate)
	}
	assert.Equal(t, joined.PlayerID, up.HostID)

	send(t, guest, MsgStartGame, nil)
	send(t, host, MsgStartGame, nil)

	for i := 0; i < 3; i++ {
		start := await[RoundStartPayload](t, host, MsgRoundStart)
		require.Equal(t, i, start.RoundIndex)
		await[RoundStartPayload](t, guest, MsgRoundStart)

		send(t, host, MsgSubmitPhoto, SubmitPhotoPayload{Image: okPhoto})
		ack := await[SubmissionResultPayload](t, host, MsgSubmissionResult)
		assert.True(t, ack.Valid)

		send(t, guest, MsgSubmitPhoto, SubmitPhotoPayload{Image: "data:image/jpeg;base64,Ymx1cnJ5"})
		res := await[RoundResultPayload](t, guest, MsgRoundResult)
		assert.Equal(t, i, res.RoundIndex)
		await[RoundResultPayload](t, host, MsgRoundResult)
	}

	final := await[FinalResultPayload](t, guest, MsgFinalResult)
	require.Len(t, final.Standings, 2)
	assert.Equal(t, "host", final.Standings[0].Name)
	assert.Equal(t, 450, final.Standings[0].Score)

	send(t, guest, MsgPlayAgain, nil)
	up = await[RoomUpdatePayload](t, host, MsgRoomUpdate)
	assert.Equal(t, StatusWaiting, up.Status)
	for _, p := range up.Players {
		assert.Zero(t, p.Score)
	}
}

func TestWS_ProtocolErrors(t *testing.T) {
	f := newWSFixture(t, testConfig())

	cases := []struct {
		name     string
		run      func(t *testing.T, ws *websocket.Conn)
		wantCode string
	}{
		{
			name:     "bad json",
			run:      func(t *testing.T, ws *websocket.Conn) { _ = ws.WriteMessage(websocket.TextMessage, []byte("{")) },
			wantCode: "bad_json",
		},
		{
			name:     "unknown type",
			run:      func(t *testing.T, ws *websocket.Conn) { send(t, ws, "dance", nil) },
			wantCode: "unknown_type",
		},
		{
			name:     "action before joining",
			run:      func(t *testing.T, ws *websocket.Conn) { send(t, ws, MsgStartGame, nil) },
			wantCode: "not_in_room",
		},
		{
			name: "join unknown room",
			run: func(t *testing.T, ws *websocket.Conn) {
				send(t, ws, MsgJoinRoom, JoinRoomPayload{Name: "x", Code: "NOPE00"})
			},
			wantCode: "room_not_found",
		},
		{
			name: "invalid rounds",
			run: func(t *testing.T, ws *websocket.Conn) {
				send(t, ws, MsgCreateRoom, CreateRoomPayload{Name: "x", Difficulty: "easy", Rounds: 2})
			},
			wantCode: "invalid_input",
		},
		{
			name: "empty photo",
			run: func(t *testing.T, ws *websocket.Conn) {
				send(t, ws, MsgCreateRoom, CreateRoomPayload{Name: "x", Difficulty: "easy", Rounds: 3})
				send(t, ws, MsgSubmitPhoto, SubmitPhotoPayload{})
			},
			wantCode: "invalid_input",
		},
		{
			name: "photo url is rejected",
			run: func(t *testing.T, ws *websocket.Conn) {
				send(t, ws, MsgCreateRoom, CreateRoomPayload{Name: "x", Difficulty: "easy", Rounds: 3})
				send(t, ws, MsgSubmitPhoto, SubmitPhotoPayload{Image: "https://example.com/cat.jpg"})
			},
			wantCode: "invalid_input",
		},
		{
			name: "second room on one connection",
			run: func(t *testing.T, ws *websocket.Conn) {
				send(t, ws, MsgCreateRoom, CreateRoomPayload{Name: "x", Difficulty: "easy", Rounds: 3})
				send(t, ws, MsgCreateRoom, CreateRoomPayload{Name: "x", Difficulty: "easy", Rounds: 3})
			},
			wantCode: "already_in_room",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ws := f.dial(t, "", nil)
			tc.run(t, ws)
			got := await[ErrorPayload](t, ws, MsgError)
			assert.Equal(t, tc.wantCode, got.Code)
		})
	}
}

func TestWS_TokenSetsDefaultName(t *testing.T) {
	f := newWSFixture(t, testConfig())

	ws := f.dial(t, "?token=good", nil)
	send(t, ws, MsgCreateRoom, CreateRoomPayload{Difficulty: "medium", Rounds: 5})
	up := await[RoomUpdatePayload](t, ws, MsgRoomUpdate)
	require.Len(t, up.Players, 1)
	assert.Equal(t, "Alice", up.Players[0].Name)

	hdr := http.Header{}
	hdr.Set("Authorization", "Bearer good")
	ws2 := f.dial(t, "", hdr)
	send(t, ws2, MsgJoinRoom, JoinRoomPayload{Name: "Bob", Code: up.Code})
	await[RoomJoinedPayload](t, ws2, MsgRoomJoined)
}

func TestWS_BadTokenIsRejected(t *testing.T) {
	f := newWSFixture(t, testConfig())

	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws?token=bad"
	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if ws != nil {
		_ = ws.Close()
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWS_DisconnectLeavesRoom(t *testing.T) {
	f := newWSFixture(t, testConfig())

	ws := f.dial(t, "", nil)
	send(t, ws, MsgCreateRoom, CreateRoomPayload{Name: "x", Difficulty: "easy", Rounds: 3})
	joined := await[RoomJoinedPayload](t, ws, MsgRoomJoined)
	require.Equal(t, 1, f.reg.Len())

	_ = ws.Close()
	require.Eventually(t, func() bool { return f.reg.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	_, err := f.reg.State(joined.Code)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestREST_RoomState(t *testing.T) {
	f := newWSFixture(t, testConfig())

	resp, err := http.Get(f.ts.URL + "/api/rooms/NOPE00")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ws := f.dial(t, "", nil)
	send(t, ws, MsgCreateRoom, CreateRoomPayload{Name: "x", Difficulty: "hard", Rounds: 7})
	joined := await[RoomJoinedPayload](t, ws, MsgRoomJoined)

	resp, err = http.Get(f.ts.URL + "/api/rooms/" + strings.ToLower(joined.Code))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, joined.Code, snap.Code)
	assert.Equal(t, StatusWaiting, snap.Status)
	assert.Nil(t, snap.Round)
}
