package game

import (
	"encoding/json"
	"log/slog"
)

// gateway fans a room's events out to the connections attached to it.
// Callers hold the room lock, so every connection receives events in the
// order the room produced them.
type gateway struct {
	log   *slog.Logger
	conns map[string]*ClientConn // player id -> conn
}

func newGateway(log *slog.Logger) *gateway {
	return &gateway{log: log, conns: make(map[string]*ClientConn)}
}

func (g *gateway) attach(playerID string, cc *ClientConn) {
	if cc == nil {
		return
	}
	g.conns[playerID] = cc
}

func (g *gateway) detach(playerID string) {
	delete(g.conns, playerID)
}

func (g *gateway) broadcast(msgType string, payload any) {
	b := encode(msgType, payload)
	for id, cc := range g.conns {
		g.deliver(id, cc, b)
	}
}

func (g *gateway) unicast(playerID, msgType string, payload any) {
	cc, ok := g.conns[playerID]
	if !ok {
		return
	}
	g.deliver(playerID, cc, encode(msgType, payload))
}

// deliver drops a connection that cannot keep up instead of skipping a message
// for it. The reader side of that connection then reports the disconnect.
func (g *gateway) deliver(playerID string, cc *ClientConn, b []byte) {
	if cc.enqueue(b) {
		return
	}
	g.log.Warn("closing slow connection", "player", playerID)
	delete(g.conns, playerID)
	cc.Close()
}

func (g *gateway) closeAll() {
	for id, cc := range g.conns {
		delete(g.conns, id)
		cc.Close()
	}
}

func encode(msgType string, payload any) []byte {
	b, _ := json.Marshal(Envelope{Type: msgType, Payload: mustJSON(payload)})
	return b
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
