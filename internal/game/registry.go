package game

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	codeLength    = 6
	codeAlphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxNameLength = 24
)

// Registry is the process-wide directory of live rooms, keyed by join code.
// It owns room creation and destruction; rooms own everything else.
type Registry struct {
	env *env

	mu      sync.RWMutex
	rooms   map[string]*Room
	newCode func() string
}

type Option func(*Registry)

func WithLogger(log *slog.Logger) Option {
	return func(g *Registry) { g.env.log = log }
}

func WithRecorder(rec GameRecorder) Option {
	return func(g *Registry) { g.env.recorder = rec }
}

// WithCodeGenerator replaces the random join-code source.
func WithCodeGenerator(fn func() string) Option {
	return func(g *Registry) { g.newCode = fn }
}

// NewRegistry builds an empty registry. missions and judge may be nil, in which
// case every game uses the static pool and the random verdict.
func NewRegistry(cfg Config, missions MissionProvider, judge Judge, opts ...Option) *Registry {
	g := &Registry{
		env: &env{
			cfg:      cfg,
			missions: missions,
			judge:    judge,
			log:      slog.Default(),
		},
		rooms:   make(map[string]*Room),
		newCode: randomCode,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Registry) CreateRoom(info PlayerInfo, difficulty string, rounds int) (*Room, error) {
	name, err := cleanName(info.Name)
	if err != nil {
		return nil, err
	}
	d, err := ParseDifficulty(difficulty)
	if err != nil {
		return nil, err
	}
	if !validRoundCount(rounds) {
		return nil, fmt.Errorf("rounds must be one of %v: %w", RoundCounts, ErrInvalidInput)
	}
	info.Name = name

	g.mu.Lock()
	code := g.uniqueCodeLocked()
	room := newRoom(code, d, rounds, g.env)
	if err := room.join(info); err != nil {
		g.mu.Unlock()
		room.close()
		return nil, err
	}
	g.rooms[code] = room
	g.mu.Unlock()

	g.env.log.Info("room created", "room", code, "host", info.ID, "difficulty", d, "rounds", rounds)
	return room, nil
}

// uniqueCodeLocked draws codes until one is free. The code space makes a retry
// rare, but it is never assumed away.
func (g *Registry) uniqueCodeLocked() string {
	for {
		code := g.newCode()
		if _, taken := g.rooms[code]; !taken {
			return code
		}
	}
}

func (g *Registry) JoinRoom(info PlayerInfo, code string) (*Room, error) {
	name, err := cleanName(info.Name)
	if err != nil {
		return nil, err
	}
	info.Name = name

	room, ok := g.Get(code)
	if !ok {
		return nil, ErrRoomNotFound
	}
	if err := room.join(info); err != nil {
		return nil, err
	}
	return room, nil
}

// RemovePlayer handles a disconnect. An emptied room is destroyed along with
// its timers and in-flight judge calls.
func (g *Registry) RemovePlayer(code, playerID string) {
	room, ok := g.Get(code)
	if !ok {
		return
	}
	if !room.leave(playerID) {
		return
	}

	g.mu.Lock()
	if g.rooms[room.code] == room {
		delete(g.rooms, room.code)
	}
	g.mu.Unlock()
	g.env.log.Info("room destroyed", "room", room.code)
}

// ResetForReplay puts a finished room back to waiting. It is a no-op in any
// other status.
func (g *Registry) ResetForReplay(code string) error {
	room, ok := g.Get(code)
	if !ok {
		return ErrRoomNotFound
	}
	room.reset()
	return nil
}

func (g *Registry) StartGame(code, playerID string) error {
	room, ok := g.Get(code)
	if !ok {
		return ErrRoomNotFound
	}
	room.Start(playerID)
	return nil
}

func (g *Registry) Submit(code, playerID, image string) error {
	room, ok := g.Get(code)
	if !ok {
		return ErrRoomNotFound
	}
	room.Submit(playerID, image)
	return nil
}

// State is getCurrentState: a read-only snapshot of the room.
func (g *Registry) State(code string) (Snapshot, error) {
	room, ok := g.Get(code)
	if !ok {
		return Snapshot{}, ErrRoomNotFound
	}
	return room.Snapshot(), nil
}

func (g *Registry) Get(code string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[normalizeCode(code)]
	return r, ok
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Close destroys every room. Used on shutdown.
func (g *Registry) Close() {
	g.mu.Lock()
	rooms := g.rooms
	g.rooms = make(map[string]*Room)
	g.mu.Unlock()

	for _, r := range rooms {
		r.close()
	}
}

func cleanName(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("name is required: %w", ErrInvalidInput)
	}
	if utf8.RuneCountInString(s) > maxNameLength {
		return "", fmt.Errorf("name longer than %d characters: %w", maxNameLength, ErrInvalidInput)
	}
	return s, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func randomCode() string {
	return codeFrom(rand.Reader)
}

// codeFrom draws uniformly from codeAlphabet: bytes at or above the largest
// multiple of the alphabet size are rejected.
func codeFrom(src io.Reader) string {
	limit := byte(256 - 256%len(codeAlphabet))
	out := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength*2)
	for len(out) < codeLength {
		n, _ := io.ReadFull(src, buf)
		for _, b := range buf[:n] {
			if b >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == codeLength {
				break
			}
		}
	}
	return string(out)
}
