package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Routes mounts the account and leaderboard endpoints. board may be nil when
// Redis is not configured.
func Routes(r *mux.Router, h *AuthHandler, tokens TokenVerifier, board *LeaderboardHandler) {
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)
	api.Handle("/me", AuthMiddleware(tokens)(http.HandlerFunc(h.Me))).Methods(http.MethodGet)

	if board != nil {
		api.HandleFunc("/leaderboard", board.Top).Methods(http.MethodGet)
	}
}
