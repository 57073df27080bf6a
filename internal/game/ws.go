package game

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const pingInterval = 25 * time.Second

// ClientConn is one websocket. Its id is the player id for the connection's lifetime.
type ClientConn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func newClientConn(id string, ws *websocket.Conn) *ClientConn {
	return &ClientConn{id: id, ws: ws, send: make(chan []byte, 64)}
}

// enqueue never blocks; false means the connection is closed or not keeping up.
func (c *ClientConn) enqueue(b []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *ClientConn) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.send)
		c.mu.Unlock()
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

func (c *ClientConn) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

// session is the server side of one connection: which room it sits in and
// who it is.
type session struct {
	srv       *Server
	conn      *ClientConn
	accountID string
	nickname  string // display name from the account token, used when none is sent
	limiter   *rate.Limiter
	log       *slog.Logger

	room *Room
}

// handleWS is the entry point of the websocket protocol: /ws[?token=...]
// The token is optional; without it the player is anonymous.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	var accountID, nickname string
	if token := tokenFromRequest(r); token != "" {
		if s.tokens == nil {
			http.Error(w, "accounts disabled", http.StatusUnauthorized)
			return
		}
		claims, err := s.tokens.Verify(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		accountID, nickname = claims.UserID, claims.DisplayName
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	if s.cfg.MaxMessageBytes > 0 {
		ws.SetReadLimit(s.cfg.MaxMessageBytes)
	}

	cc := newClientConn(uuid.NewString(), ws)
	go cc.writeLoop()

	sess := &session{
		srv:       s,
		conn:      cc,
		accountID: accountID,
		nickname:  nickname,
		limiter:   rate.NewLimiter(rate.Limit(s.cfg.RatePerSecond), s.cfg.RateBurst),
		log:       s.log.With("player", cc.id),
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			break
		}
		sess.handle(data)
	}

	// disconnect
	if sess.room != nil {
		s.rooms.RemovePlayer(sess.room.code, cc.id)
	}
	cc.Close()
}

func (sess *session) handle(data []byte) {
	if !sess.limiter.Allow() {
		sess.sendError("rate_limited", "slow down")
		return
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		sess.sendError("bad_json", "invalid json")
		return
	}

	switch env.Type {
	case MsgCreateRoom:
		var p CreateRoomPayload
		if !sess.decode(env.Payload, &p) || !sess.requireNoRoom() {
			return
		}
		room, err := sess.srv.rooms.CreateRoom(sess.playerInfo(p.Name), p.Difficulty, p.Rounds)
		if err != nil {
			sess.sendErr(err)
			return
		}
		sess.room = room

	case MsgJoinRoom:
		var p JoinRoomPayload
		if !sess.decode(env.Payload, &p) || !sess.requireNoRoom() {
			return
		}
		room, err := sess.srv.rooms.JoinRoom(sess.playerInfo(p.Name), p.Code)
		if err != nil {
			sess.sendErr(err)
			return
		}
		sess.room = room

	case MsgStartGame:
		if sess.requireRoom() {
			sess.room.Start(sess.conn.id)
		}

	case MsgSubmitPhoto:
		var p SubmitPhotoPayload
		if !sess.decode(env.Payload, &p) || !sess.requireRoom() {
			return
		}
		if strings.TrimSpace(p.Image) == "" {
			sess.sendError("invalid_input", "image is required")
			return
		}
		if !strings.HasPrefix(p.Image, "data:image/") {
			sess.sendError("invalid_input", "image must be a data:image/... base64 URI")
			return
		}
		sess.room.Submit(sess.conn.id, p.Image)

	case MsgGetState:
		if sess.requireRoom() {
			sess.room.SendStateTo(sess.conn.id)
		}

	case MsgPlayAgain:
		if sess.requireRoom() {
			sess.room.PlayAgain(sess.conn.id)
		}

	default:
		sess.sendError("unknown_type", "unknown message type")
	}
}

func (sess *session) playerInfo(name string) PlayerInfo {
	if strings.TrimSpace(name) == "" {
		name = sess.nickname
	}
	return PlayerInfo{ID: sess.conn.id, Name: name, AccountID: sess.accountID, Conn: sess.conn}
}

func (sess *session) decode(raw json.RawMessage, v any) bool {
	if len(raw) == 0 {
		return true
	}
	if err := json.Unmarshal(raw, v); err != nil {
		sess.sendError("bad_json", "invalid payload")
		return false
	}
	return true
}

func (sess *session) requireRoom() bool {
	if sess.room == nil {
		sess.sendError("not_in_room", "join or create a room first")
		return false
	}
	return true
}

func (sess *session) requireNoRoom() bool {
	if sess.room != nil {
		sess.sendError("already_in_room", "this connection is already in a room")
		return false
	}
	return true
}

func (sess *session) sendErr(err error) {
	code := errorCode(err)
	if code == "internal" {
		sess.log.Error("request failed", "err", err)
	}
	sess.sendError(code, err.Error())
}

func (sess *session) sendError(code, message string) {
	sess.conn.enqueue(encode(MsgError, ErrorPayload{Code: code, Message: message}))
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
