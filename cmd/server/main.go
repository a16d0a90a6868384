// Reveal Session Runtime Server
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

	"github.com/revealtogether/reveal-server/internal/archive"
	"github.com/revealtogether/reveal-server/internal/broadcast"
	"github.com/revealtogether/reveal-server/internal/cache"
	"github.com/revealtogether/reveal-server/internal/chatengine"
	"github.com/revealtogether/reveal-server/internal/config"
	"github.com/revealtogether/reveal-server/internal/httpapi"
	"github.com/revealtogether/reveal-server/internal/lifecycle"
	"github.com/revealtogether/reveal-server/internal/middleware"
	"github.com/revealtogether/reveal-server/internal/ratelimit"
	"github.com/revealtogether/reveal-server/internal/registry"
	"github.com/revealtogether/reveal-server/internal/repository"
	"github.com/revealtogether/reveal-server/internal/transport"
	"github.com/revealtogether/reveal-server/internal/voteengine"
)

// reconcileInterval is how often the Active Session Registry is
// re-verified against the cache store's active-session set.
const reconcileInterval = 60 * time.Second

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

	slog.Info("Starting server", "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		slog.Error("Failed to connect to cache store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			slog.Error("Failed to close cache store", "error", closeErr)
		}
	}()
	slog.Info("Cache store connected", "addr", cfg.Redis.Addr)

	repo := repository.New(store, repository.Config{
		SessionTTL:      cfg.Retention.SessionTTL,
		PostRevealTTL:   cfg.Retention.PostRevealTTL,
		MaxVoteRecords:  100,
		MaxChatMessages: cfg.Retention.MaxChatMessages,
		CallTimeout:     cfg.Cache.CallTimeout,
	})

	reg := registry.New(repo)
	if err := reg.Reconcile(ctx); err != nil {
		slog.Warn("Initial registry reconcile failed", "error", err)
	}

	outbox, err := archive.NewOutbox(cfg.Archive.DBPath)
	if err != nil {
		slog.Error("Failed to initialize archive outbox", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := outbox.Close(); closeErr != nil {
			slog.Error("Failed to close archive outbox", "error", closeErr)
		}
	}()

	grpcClient, err := archive.NewGrpcClient(archive.DefaultGrpcClientConfig(cfg.Archive.GrpcAddr))
	if err != nil {
		slog.Error("Failed to initialize archive gRPC client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := grpcClient.Close(); closeErr != nil {
			slog.Error("Failed to close archive gRPC client", "error", closeErr)
		}
	}()

	sink := archive.NewSink(outbox, grpcClient, archive.DefaultRetryConfig())
	go sink.RunSweep(ctx)

	hub := transport.NewHub()

	limiter := ratelimit.New(store, cfg.Cache.CallTimeout)
	voteEngine := voteengine.New(repo, limiter, hub)
	chatEngine := chatengine.New(repo, limiter, hub, chatengine.Config{
		MaxNameLength: cfg.Retention.NameMaxLength,
		MaxBodyLength: cfg.Retention.ChatMaxLength,
	})

	scheduler := broadcast.New(repo, reg, hub, cfg.BroadcastInterval)
	go scheduler.Run(ctx)

	controller := lifecycle.New(repo, reg, hub, sink)
	go controller.Run(ctx)

	go func() {
		ticker := time.NewTicker(reconcileInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := reg.Reconcile(ctx); err != nil {
					slog.Warn("Registry reconcile failed", "error", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	wsHandler := transport.NewWebSocketHandler(hub, voteEngine, chatEngine, cfg.CORSAllowedOrigins)
	apiHandler := httpapi.NewHandler(repo, reg, outbox, cfg.BaseURL)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	apiHandler.Routes(r)
	r.Get("/ws/{sessionId}", wsHandler.ServeHTTP)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // 0 = no timeout, required to keep websocket connections open
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
