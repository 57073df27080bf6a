package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"example.com/photohunt/internal/ai"
	"example.com/photohunt/internal/auth"
	"example.com/photohunt/internal/cache"
	"example.com/photohunt/internal/config"
	"example.com/photohunt/internal/game"
	"example.com/photohunt/internal/httpapi"
	"example.com/photohunt/internal/migrate"
	"example.com/photohunt/internal/store"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	db    *pgxpool.Pool
	rdb   *redis.Client
	rooms *game.Registry

	srv *http.Server
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	if cfg.Postgres.RunMigrations {
		if err := migrate.Up(cfg.Postgres.URL, cfg.Postgres.MigrationsDir, log); err != nil {
			return nil, err
		}
	}

	// --- Postgres ---
	dbpool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}

	// --- Redis ---
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.Redis.Addr,
		DB:   cfg.Redis.DB,
	})

	// Quick connectivity checks (fail fast).
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		dbpool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping (%s db=%d): %w", cfg.Redis.Addr, cfg.Redis.DB, err)
	}

	// --- Auth + stores ---
	authSvc := auth.NewService([]byte(cfg.Auth.Secret), cfg.Auth.TokenTTL)
	users := store.NewUserStore(dbpool)
	stats := store.NewStatsStore(dbpool)
	board := cache.NewLeaderboard(rdb, cfg.Redis.LeaderboardKey)

	// --- AI collaborators; nil means static missions and random verdicts ---
	var (
		missions game.MissionProvider
		judge    game.Judge
	)
	aiClient := ai.NewClient(ai.Config{
		APIKey:         cfg.AI.APIKey,
		BaseURL:        cfg.AI.BaseURL,
		MissionModel:   cfg.AI.MissionModel,
		JudgeModel:     cfg.AI.JudgeModel,
		Timeout:        max(cfg.Game.JudgeTimeout, cfg.Game.MissionTimeout),
		MaxConcurrency: cfg.AI.MaxConcurrency,
	})
	if aiClient.Enabled() {
		missions = cache.NewMissionCache(rdb, aiClient, cfg.Redis.MissionCacheTTL, log.With("component", "missions"))
		judge = aiClient
		log.Info("ai enabled", "missionModel", cfg.AI.MissionModel, "judgeModel", cfg.AI.JudgeModel)
	} else {
		log.Warn("GEMINI_API_KEY not set, using static missions and random verdicts")
	}

	// --- Game ---
	gameCfg := game.DefaultConfig()
	gameCfg.RoundDuration = cfg.Game.RoundDuration
	gameCfg.ResultsPause = cfg.Game.ResultsPause
	gameCfg.JudgeTimeout = cfg.Game.JudgeTimeout
	gameCfg.MissionTimeout = cfg.Game.MissionTimeout
	gameCfg.MaxMessageBytes = cfg.Game.MaxImageBytes
	gameCfg.RatePerSecond = cfg.Game.WSRatePerSec
	gameCfg.RateBurst = cfg.Game.WSRateBurst

	rooms := game.NewRegistry(gameCfg, missions, judge,
		game.WithLogger(log.With("component", "game")),
		game.WithRecorder(newRecorder(stats, board)),
	)
	gameSrv := game.NewServer(gameCfg, rooms, authSvc, log.With("component", "ws"))

	authH := &httpapi.AuthHandler{Users: users, Stats: stats, Tokens: authSvc, Log: log}
	boardH := &httpapi.LeaderboardHandler{Board: board, Log: log}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	gameSrv.RegisterRoutes(r)
	httpapi.Routes(r, authH, authSvc, boardH)

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           r,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	return &App{cfg: cfg, log: log, db: dbpool, rdb: rdb, rooms: rooms, srv: srv}, nil
}

func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.log.Info("http server starting", "addr", a.cfg.HTTP.Addr)

	g.Go(func() error {
		err := a.srv.ListenAndServe()
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		a.log.Info("http server shutting down")
		// hijacked websockets are not tracked by Shutdown; closing the rooms drops them
		a.rooms.Close()
		_ = a.srv.Shutdown(shutdownCtx)
		return nil
	})

	err := g.Wait()
	_ = a.Close(context.Background())
	return err
}

func (a *App) Close(ctx context.Context) error {
	// best-effort
	if a.rooms != nil {
		a.rooms.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	return nil
}
