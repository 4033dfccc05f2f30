package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/citypulse/citypulse/internal/ambient"
	"github.com/citypulse/citypulse/internal/changefeed"
	"github.com/citypulse/citypulse/internal/config"
	"github.com/citypulse/citypulse/internal/domain"
	"github.com/citypulse/citypulse/internal/httpserver"
	"github.com/citypulse/citypulse/internal/live"
	"github.com/citypulse/citypulse/internal/postgres"
	"github.com/citypulse/citypulse/internal/prefs"
	"github.com/citypulse/citypulse/internal/seed"
	"github.com/citypulse/citypulse/internal/summary"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Best-effort: pick env values from a local .env when present.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	repo, err := postgres.NewRepository(cfg.DatabaseURL, cfg.SnowflakeNode)
	if err != nil {
		return fmt.Errorf("create repository: %w", err)
	}
	defer repo.Close()
	logger.Info("connected to database")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	prefsStore, err := prefs.NewStore(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return fmt.Errorf("create prefs store: %w", err)
	}
	defer prefsStore.Close()
	logger.Info("connected to prefs store")

	bannedTerms := domain.DefaultBannedTerms
	if cfg.BannedTerms != "" {
		bannedTerms = strings.Split(cfg.BannedTerms, ",")
	}
	gate, err := domain.NewContentGate(bannedTerms)
	if err != nil {
		return fmt.Errorf("create content gate: %w", err)
	}

	ambientProvider := ambient.NewProvider(ambient.Endpoints{
		Weather: cfg.WeatherURL,
		Traffic: cfg.TrafficURL,
		Events:  cfg.EventsURL,
		News:    cfg.NewsURL,
	}, logger)

	var summarizer domain.Summarizer
	if cfg.AnthropicAPIKey != "" {
		summarizer = summary.NewClient(cfg.AnthropicAPIKey, cfg.SummaryModel)
		logger.Info("summary service enabled", "model", cfg.SummaryModel)
	}

	service := domain.NewPulseService(
		repo,
		prefsStore,
		gate,
		ambientProvider,
		summarizer,
		seed.New(0),
		logger,
	)

	views := live.NewManager(service, ambientProvider, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Start the change feed subscriber in the background.
	subscriber := changefeed.NewSubscriber(cfg.ChangefeedURL, views, repo, logger)
	go func() {
		if err := subscriber.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("change feed subscriber exited with error", "error", err)
		}
	}()

	// Start background pulse cleanup.
	go service.StartCleanupJob(ctx, time.Minute)

	// Periodic poll over the live views. Funnels through the same recompute
	// path as the change feed, so results match whichever path fires first.
	poller := cron.New()
	if _, err := poller.AddFunc("@every 1m", views.RecomputeAll); err != nil {
		return fmt.Errorf("schedule recompute poll: %w", err)
	}
	poller.Start()
	defer poller.Stop()

	// Start the HTTP server.
	server := httpserver.NewServer(cfg, service, views, ambientProvider, prefsStore, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server exited with error", "error", err)
		}
	}()

	logger.Info("server started", "port", cfg.Port)

	// Wait for shutdown signal.
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	return nil
}
