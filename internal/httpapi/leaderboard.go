package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"example.com/photohunt/internal/cache"
	"example.com/photohunt/internal/httpjson"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
)

type LeaderboardSource interface {
	Top(ctx context.Context, limit int) ([]cache.LeaderboardEntry, error)
}

type LeaderboardHandler struct {
	Board LeaderboardSource
	Log   *slog.Logger
}

// Top serves GET /api/leaderboard?limit=N.
func (h *LeaderboardHandler) Top(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			httpjson.Error(w, http.StatusBadRequest, "bad_request", "limit must be a positive integer")
			return
		}
		limit = min(n, maxLeaderboardLimit)
	}

	entries, err := h.Board.Top(r.Context(), limit)
	if err != nil {
		if h.Log != nil {
			h.Log.Error("leaderboard", "err", err)
		}
		httpjson.Error(w, http.StatusServiceUnavailable, "unavailable", "leaderboard unavailable")
		return
	}
	httpjson.Write(w, http.StatusOK, map[string]any{"entries": entries})
}
