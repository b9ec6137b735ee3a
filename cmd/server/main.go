package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/statusky/statusky/internal/api"
	"github.com/statusky/statusky/internal/config"
	"github.com/statusky/statusky/internal/db"
	"github.com/statusky/statusky/internal/feed"
	"github.com/statusky/statusky/internal/identity"
	"github.com/statusky/statusky/internal/migration"
	"github.com/statusky/statusky/internal/oauth"
	"github.com/statusky/statusky/internal/session"
	"github.com/statusky/statusky/internal/status"
	"github.com/statusky/statusky/internal/view"
)

func main() {
	// Optional .env for local development; the environment wins in production.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.LogLevel)

	ctx := context.Background()

	if err := migration.Up(cfg.DatabaseURL); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	logger := slog.Default()

	resolver := identity.NewResolver(identity.Config{
		PLCHost:            cfg.PLCHost,
		HandleResolverHost: cfg.HandleResolverHost,
		CacheTTL:           cfg.ResolverCacheTTL,
		LookupTimeout:      cfg.ResolverTimeout,
	}, logger)

	oauthClient := oauth.NewClient(cfg.PublicURL, oauth.NewPostgresStore(database.Pool()), resolver, logger)

	sessions, err := session.NewStore(session.NewRepository(database.Pool()), oauthClient, cfg.CookieSecret, cfg.SecureCookies, logger)
	if err != nil {
		slog.Error("failed to create session store", "error", err)
		os.Exit(1)
	}

	statusRepo := status.NewRepository(database.Pool())
	publisher := status.NewPublisher(statusRepo, logger)
	assembler := feed.NewAssembler(statusRepo, resolver, cfg.FeedPageSize, logger)

	renderer, err := view.NewTemplateRenderer()
	if err != nil {
		slog.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	router := api.NewRouter(api.RouterDeps{
		DBPinger:   database,
		Version:    cfg.Version,
		Authorizer: oauthClient,
		Sessions:   sessions,
		Publisher:  publisher,
		Feed:       assembler,
		Renderer:   renderer,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting statusky server", "port", cfg.Port, "version", cfg.Version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutting down server", "signal", sig.String())
	case err := <-serverErr:
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped gracefully")
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
