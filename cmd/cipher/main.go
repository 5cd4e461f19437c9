// Cipher - ATM fraud alerts from live complaint streams.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

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

	"github.com/opensource-finance/cipher/internal/api"
	"github.com/opensource-finance/cipher/internal/backend"
	"github.com/opensource-finance/cipher/internal/bus"
	"github.com/opensource-finance/cipher/internal/cache"
	"github.com/opensource-finance/cipher/internal/config"
	"github.com/opensource-finance/cipher/internal/dashboard"
	"github.com/opensource-finance/cipher/internal/derive"
	"github.com/opensource-finance/cipher/internal/domain"
	"github.com/opensource-finance/cipher/internal/escalation"
	"github.com/opensource-finance/cipher/internal/geoview"
	"github.com/opensource-finance/cipher/internal/livesync"
	"github.com/opensource-finance/cipher/internal/prediction"
	"github.com/opensource-finance/cipher/internal/repository"
	"github.com/opensource-finance/cipher/internal/rules"
	"github.com/opensource-finance/cipher/internal/source"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	cfg, err := config.Load(os.Getenv("CIPHER_CONFIG"))
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	slog.Info("starting cipher",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"backend", cfg.Backend.BaseURL,
		"source", cfg.Sync.Source,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Backing store
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Prediction cache; "none" disables it
	predCache, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	if predCache != nil {
		defer predCache.Close()
	}
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	client := backend.New(cfg.Backend)

	deriver := derive.NewEngine(cfg.Display.TimeZone)
	norm := source.NewNormalizer(deriver.Location, logger)
	store := source.NewStore(repo, busImpl, norm)
	store.DemoMode = cfg.Backend.DemoMode

	// The store is the push source and archives locally. In rest mode the
	// backend owns both.
	var (
		complaints domain.ComplaintSource = store
		archiver   escalation.Archiver    = escalation.ArchiverFunc(store.Archive)
	)
	if cfg.Sync.Source == domain.SourceREST {
		rest := source.NewREST(client, norm)
		rest.PollInterval = cfg.Sync.PollInterval
		complaints = rest
		archiver = client
	}

	predictor := prediction.NewCached(
		prediction.New(client,
			prediction.WithDemoMode(cfg.Backend.DemoMode),
			prediction.WithLogger(logger),
		),
		predCache,
		cfg.Sync.PredictionCacheTTL,
	)

	selectors, err := rules.NewEngine()
	if err != nil {
		slog.Error("failed to initialize selector engine", "error", err)
		os.Exit(1)
	}

	manager := livesync.NewManager(complaints, predictor, deriver, selectors, livesync.Config{
		MaxConcurrent: cfg.Sync.MaxConcurrent,
		Logger:        logger,
	})
	defer manager.Close()

	forwarder := escalation.New(repo, archiver,
		escalation.WithEventBus(busImpl),
		escalation.WithForwardedBy(cfg.Display.ForwardedBy),
		escalation.WithLogger(logger),
	)

	session := dashboard.New(manager, geoview.NewRenderer(cfg.Display.MapWidth, cfg.Display.MapHeight), forwarder, logger)
	defer session.Close()

	if err := session.Watch(ctx, cfg.Sync.Selector); err != nil {
		slog.Error("failed to start live sync", "error", err)
		os.Exit(1)
	}

	srv := api.NewServer(cfg.Server, repo, predCache, store, session, Version)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			cancel()
		}
	}()

	slog.Info("cipher is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("cipher shutdown complete")
}

// newLogger builds the process logger. CIPHER_DEBUG=true forces debug level.
func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if os.Getenv("CIPHER_DEBUG") == "true" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  CIPHER  ATM fraud alert console")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Backend:  %s\n", cfg.Backend.BaseURL)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /api/complaints                 - Live complaints")
	fmt.Println("    POST /api/complaints                 - Submit a complaint")
	fmt.Println("    GET  /api/history                    - Archived complaints")
	fmt.Println("    GET  /dashboard/state                - Live alerts, filter and map")
	fmt.Println("    PUT  /dashboard/filter               - Choose visible bands")
	fmt.Println("    GET  /dashboard/map                  - Markers or heat points")
	fmt.Println("    POST /dashboard/alerts/{id}/forward  - Escalate to the bank")
	fmt.Println("    GET  /health                         - Health check")
	fmt.Println()
}
