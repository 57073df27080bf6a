package game

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"example.com/photohunt/internal/auth"
	"example.com/photohunt/internal/httpjson"
	"github.com/gorilla/mux"
)

type Config struct {
	RoundDuration  time.Duration
	ResultsPause   time.Duration // pause between a round result and what comes next
	JudgeTimeout   time.Duration
	MissionTimeout time.Duration
	RecordTimeout  time.Duration

	MaxMessageBytes int64   // websocket read limit, sized for one photo
	RatePerSecond   float64 // inbound messages per connection
	RateBurst       int
}

func DefaultConfig() Config {
	return Config{
		RoundDuration:   120 * time.Second,
		ResultsPause:    5 * time.Second,
		JudgeTimeout:    6500 * time.Millisecond,
		MissionTimeout:  5 * time.Second,
		RecordTimeout:   5 * time.Second,
		MaxMessageBytes: 8 << 20,
		RatePerSecond:   5,
		RateBurst:       10,
	}
}

// TokenVerifier resolves an optional account token presented on connect.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type Server struct {
	cfg    Config
	rooms  *Registry
	tokens TokenVerifier
	log    *slog.Logger
}

func NewServer(cfg Config, rooms *Registry, tokens TokenVerifier, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		cfg:    cfg,
		rooms:  rooms,
		tokens: tokens,
		log:    log,
	}
}

func (s *Server) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws", s.handleWS)
	r.HandleFunc("/api/rooms/{code}", s.handleRoomState).Methods(http.MethodGet)
}

func (s *Server) handleRoomState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.rooms.State(mux.Vars(r)["code"])
	if errors.Is(err, ErrRoomNotFound) {
		httpjson.Error(w, http.StatusNotFound, errorCode(err), err.Error())
		return
	}
	httpjson.Write(w, http.StatusOK, snap)
}
