// ratepulse - conversational lecture rating collector
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ndmitriev/ratepulse/internal/api"
	"github.com/ndmitriev/ratepulse/internal/config"
	"github.com/ndmitriev/ratepulse/internal/dialog"
	"github.com/ndmitriev/ratepulse/internal/store"
	"github.com/ndmitriev/ratepulse/internal/telegram"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting bot", "admin_port", cfg.AdminPort, "db_path", cfg.DBPath)

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	if cfg.DemoSeed {
		if err := seedDemoData(context.Background(), repo); err != nil {
			slog.Error("Failed to seed demo data", "error", err)
			os.Exit(1)
		}
		slog.Info("Demo data seeded")
	}

	bot, err := telegram.NewBot(cfg.BotToken, logger)
	if err != nil {
		slog.Error("Failed to connect to Telegram", "error", err)
		os.Exit(1)
	}

	ctrl := dialog.NewController(repo, bot, logger)

	// Ops HTTP surface.
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	opsHandler := api.NewHandler(repo, ctrl)
	opsHandler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         ":" + cfg.AdminPort,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("Ops server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Ops server failed", "error", err)
			os.Exit(1)
		}
	}()

	go func() {
		slog.Info("Update loop started")
		bot.Run(ctx, ctrl)
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Ops server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Stopped successfully")
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// seedDemoData fills the catalog with a few linked entries so inline
// menus have content on a fresh database.
func seedDemoData(ctx context.Context, repo store.Repository) error {
	institutionIDs := make([]int64, 0, 3)
	for _, name := range []string{"Tech U", "State Poly", "City College"} {
		id, err := repo.EnsureInstitution(ctx, name)
		if err != nil {
			return err
		}
		institutionIDs = append(institutionIDs, id)
	}

	topicIDs := make([]int64, 0, 3)
	for _, name := range []string{"Algorithms", "Big Data", "Databases"} {
		id, err := repo.EnsureTopic(ctx, name)
		if err != nil {
			return err
		}
		topicIDs = append(topicIDs, id)
	}

	links := [][2]int{{0, 0}, {0, 1}, {1, 2}}
	for _, link := range links {
		if err := repo.LinkTopicToInstitution(ctx, institutionIDs[link[0]], topicIDs[link[1]]); err != nil {
			return err
		}
	}
	return nil
}
