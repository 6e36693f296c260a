package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fulfillsync/mirror/internal/auth"
	"github.com/fulfillsync/mirror/internal/config"
	"github.com/fulfillsync/mirror/internal/db"
	"github.com/fulfillsync/mirror/internal/engine"
	"github.com/fulfillsync/mirror/internal/httpapi"
	"github.com/fulfillsync/mirror/internal/progress"
	"github.com/fulfillsync/mirror/internal/ratelimit"
	"github.com/fulfillsync/mirror/internal/scheduler"
	"github.com/fulfillsync/mirror/internal/vendorapi"
	"github.com/fulfillsync/mirror/internal/writer"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Configure structured logging
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "mirrord").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	// Pretty logging for local dev
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	if err := db.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure schema")
	}

	limiter := ratelimit.New(cfg.RequestsPerMinute, cfg.RateLimitSleep(), cfg.MaxRetries)
	defer limiter.Close()

	api := vendorapi.New(vendorapi.Options{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		UserAgent: cfg.UserAgent,
		PageLimit: cfg.PageLimit,
		Limiter:   limiter,
	})

	store := progress.NewStore(pool)
	eng := engine.New(api, store, writer.New(pool), engine.Config{
		PageLimit:        cfg.PageLimit,
		BatchSize:        cfg.BatchSize,
		RollingWindow:    cfg.RollingWindow(),
		InterParentPause: cfg.InterParentPause(),
	})
	sched := scheduler.New(ctx, eng)

	// HTTP server setup
	srv := &httpapi.Server{Sched: sched, Store: store, Limiter: limiter}

	jwtCfg := auth.JWTCfg{
		HS256Secret: cfg.AdminJWTSecret,
		DevMode:     cfg.Env == "dev",
	}
	if jwtCfg.HS256Secret == "" {
		jwtCfg.HS256Secret = "dev-secret-change-in-production"
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Routes(jwtCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute, // sync-all is synchronous
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	sched.Shutdown()

	log.Info().Msg("server stopped")
}
