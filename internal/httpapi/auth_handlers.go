package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"example.com/photohunt/internal/httpjson"
	"example.com/photohunt/internal/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	maxNameLength     = 24
)

type Users interface {
	Create(ctx context.Context, u store.User) error
	GetByEmail(ctx context.Context, email string) (store.User, error)
	GetByID(ctx context.Context, id string) (store.User, error)
}

type Stats interface {
	InitForUser(ctx context.Context, userID string) error
	Get(ctx context.Context, userID string) (store.PlayerStats, error)
}

type TokenSigner interface {
	Sign(userID, displayName string) (string, error)
}

type AuthHandler struct {
	Users  Users
	Stats  Stats
	Tokens TokenSigner
	Log    *slog.Logger
}

type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
}

type StatsResponse struct {
	GamesPlayed int `json:"gamesPlayed"`
	Wins        int `json:"wins"`
	TotalPoints int `json:"totalPoints"`
	BestScore   int `json:"bestScore"`
}

type MeResponse struct {
	ID          string        `json:"id"`
	Email       string        `json:"email"`
	DisplayName string        `json:"displayName"`
	CreatedAt   time.Time     `json:"createdAt"`
	Stats       StatsResponse `json:"stats"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.DisplayName = strings.TrimSpace(req.DisplayName)

	if req.Email == "" || req.Password == "" || req.DisplayName == "" {
		httpjson.Error(w, http.StatusBadRequest, "bad_request", "email, password and displayName are required")
		return
	}
	if !strings.Contains(req.Email, "@") {
		httpjson.Error(w, http.StatusBadRequest, "bad_request", "email is not valid")
		return
	}
	if len(req.Password) < minPasswordLength {
		httpjson.Error(w, http.StatusBadRequest, "bad_request", "password must be at least 8 chars")
		return
	}
	if utf8.RuneCountInString(req.DisplayName) > maxNameLength {
		httpjson.Error(w, http.StatusBadRequest, "bad_request", "displayName must be at most 24 chars")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		h.internal(w, "hash password", err)
		return
	}

	userID := uuid.NewString()
	u := store.User{
		ID:           userID,
		Email:        req.Email,
		PasswordHash: string(hash),
		DisplayName:  req.DisplayName,
	}

	if err := h.Users.Create(r.Context(), u); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			httpjson.Error(w, http.StatusConflict, "email_taken", "email already exists")
			return
		}
		h.internal(w, "create user", err)
		return
	}

	if err := h.Stats.InitForUser(r.Context(), userID); err != nil {
		// stats rows are upserted on the first finished game anyway
		h.log().Warn("init stats", "user", userID, "err", err)
	}

	w.WriteHeader(http.StatusCreated)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpjson.Error(w, http.StatusBadRequest, "bad_request", "invalid json")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if req.Email == "" || req.Password == "" {
		httpjson.Error(w, http.StatusBadRequest, "bad_request", "email and password are required")
		return
	}

	u, err := h.Users.GetByEmail(r.Context(), req.Email)
	if errors.Is(err, store.ErrUserNotFound) {
		httpjson.Error(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}
	if err != nil {
		h.internal(w, "load user", err)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		httpjson.Error(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}

	token, err := h.Tokens.Sign(u.ID, u.DisplayName)
	if err != nil {
		h.internal(w, "sign token", err)
		return
	}

	httpjson.Write(w, http.StatusOK, LoginResponse{AccessToken: token})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok || userID == "" {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized", "missing auth context")
		return
	}

	u, err := h.Users.GetByID(r.Context(), userID)
	if err != nil {
		httpjson.Error(w, http.StatusUnauthorized, "unauthorized", "user not found")
		return
	}

	st, err := h.Stats.Get(r.Context(), userID)
	if err != nil {
		h.internal(w, "load stats", err)
		return
	}

	httpjson.Write(w, http.StatusOK, MeResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
		Stats: StatsResponse{
			GamesPlayed: st.GamesPlayed,
			Wins:        st.Wins,
			TotalPoints: st.TotalPoints,
			BestScore:   st.BestScore,
		},
	})
}

func (h *AuthHandler) internal(w http.ResponseWriter, op string, err error) {
	h.log().Error(op, "err", err)
	httpjson.Error(w, http.StatusInternalServerError, "internal", "internal error")
}

func (h *AuthHandler) log() *slog.Logger {
	if h.Log == nil {
		return slog.Default()
	}
	return h.Log
}
