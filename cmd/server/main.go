// Points bridge server: posts receipts and orders to a Discord review
// channel and applies the moderators' decisions.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/points-bridge/internal/api"
	"github.com/ashureev/points-bridge/internal/config"
	"github.com/ashureev/points-bridge/internal/feed"
	"github.com/ashureev/points-bridge/internal/middleware"
	"github.com/ashureev/points-bridge/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLiteWithRetry(cfg.DBPath, store.RetryPolicy{
		MaxRetries: cfg.Retry.MaxRetries,
		BaseDelay:  cfg.Retry.BaseDelay,
	})
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

	hub := feed.NewHub(logger)
	defer hub.Close()

	b, err := newBridge(cfg, repo, hub, logger)
	if err != nil {
		slog.Error("Failed to initialize Discord bridge", "error", err)
		os.Exit(1)
	}

	verifyKey, err := cfg.Discord.VerifyKey()
	if err != nil {
		slog.Error("Invalid Discord public key", "error", err)
		os.Exit(1)
	}

	// Initialize handlers.
	healthHandler := api.NewHealthHandler(repo, b.status()).WithFeed(hub)
	subjectHandler := api.NewSubjectHandler(repo, b.notifier, hub, cfg.HandlerTimeout, logger)
	interactionsHandler := api.NewInteractionsHandler(b.router, verifyKey, cfg.HandlerTimeout, logger)
	feedHandler := feed.NewHandler(hub, originPatterns(cfg.AllowedOrigins), logger)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	healthHandler.RegisterHealth(r)
	subjectHandler.RegisterRoutes(r)
	interactionsHandler.RegisterRoutes(r, middleware.RelaySecret(cfg.RelaySecret))

	// WebSocket endpoint.
	r.Get("/ws/feed", feedHandler.ServeHTTP)

	// Create server.
	// WriteTimeout stays 0 so the feed WebSocket is not cut off.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if b.conn != nil {
		g.Go(func() error {
			return b.conn.Run(gctx)
		})
		g.Go(func() error {
			if !b.conn.Connect(gctx) {
				slog.Warn("Initial Discord connection failed, retrying in background")
			}
			return nil
		})
	}

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		interactionsHandler.Wait()
		if b.conn != nil {
			if closeErr := b.conn.Close(); closeErr != nil {
				slog.Error("Failed to close Discord session", "error", closeErr)
			}
		}
		return err
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// originPatterns turns allowed origins into host patterns for the WebSocket
// origin check.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}
