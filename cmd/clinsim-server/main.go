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

	"github.com/terra-clan/clinical-sim/internal/achievement"
	"github.com/terra-clan/clinical-sim/internal/advisor"
	"github.com/terra-clan/clinical-sim/internal/api"
	"github.com/terra-clan/clinical-sim/internal/cases"
	"github.com/terra-clan/clinical-sim/internal/cleanup"
	"github.com/terra-clan/clinical-sim/internal/config"
	"github.com/terra-clan/clinical-sim/internal/presenter"
	"github.com/terra-clan/clinical-sim/internal/simulation"
	"github.com/terra-clan/clinical-sim/internal/storage"
	"github.com/terra-clan/clinical-sim/internal/treatment"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	slog.Info("starting clinsim-server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"tick_interval", cfg.Simulation.TickInterval,
		"cases_source", cfg.Cases.Source,
	)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Initialize database repository
	repo, err := storage.NewPostgresRepository(initCtx, storage.PostgresConfig{
		DSN:          cfg.Database.DSN,
		MaxOpenConns: int32(cfg.Database.MaxConns),
		MaxIdleConns: int32(cfg.Database.MinConns),
	})
	if err != nil {
		slog.Error("failed to create database repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("database connected successfully")

	slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
	if err := storage.RunMigrationsFromDir(initCtx, repo.Pool(), cfg.Database.MigrationsDir); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Case content
	provider, closeCases, err := openCases(initCtx, cfg)
	if err != nil {
		slog.Error("failed to open case source", "error", err)
		os.Exit(1)
	}
	defer closeCases()

	badges, err := cases.LoadBadges(cfg.Cases.BadgesFile)
	if err != nil {
		slog.Warn("failed to load badges, continuing without achievements", "file", cfg.Cases.BadgesFile, "error", err)
	}

	engine, err := achievement.NewEngine(badges, repo)
	if err != nil {
		slog.Error("invalid badge catalog", "error", err)
		os.Exit(1)
	}

	// Treatment resolution
	var adv treatment.Advisor
	if cfg.Advisor.URL != "" {
		adv = advisor.New(advisor.Options{
			BaseURL:    cfg.Advisor.URL,
			Timeout:    cfg.Advisor.Timeout,
			RetryCount: 2,
		})
		slog.Info("adequacy advisor enabled", "url", cfg.Advisor.URL)
	}
	resolver := treatment.NewResolver(adv, cfg.Simulation.InadequateEfficacy)

	// Presentation sinks
	hub := presenter.NewHub()
	sinks := presenter.NewRegistry(hub)

	if cfg.Redis.Enabled {
		redisSink, err := presenter.NewRedisSink(initCtx, presenter.RedisOptions{
			Address:     cfg.Redis.Address,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			SnapshotTTL: cfg.Redis.SnapshotTTL,
		})
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisSink.Close()
		sinks.Register(redisSink)
	}

	// Initialize simulation manager
	manager := simulation.NewManager(provider, resolver, repo, engine, sinks, simulation.Options{
		TickInterval:        cfg.Simulation.TickInterval,
		EvaluationTickLimit: cfg.Simulation.EvaluationTickLimit,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleaner := cleanup.NewCleaner(manager, cfg.Cleanup.Interval, cfg.Simulation.AbandonAfter)
	cleaner.Start(ctx)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, manager, provider, engine.Catalog(), repo, hub)
	httpServer := &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:     server.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := manager.Close(); err != nil {
		slog.Error("manager close error", "error", err)
	}

	slog.Info("clinsim-server stopped")
}

// openCases returns the configured case provider. In postgres mode, YAML cases
// found in the cases directory are upserted into the store first.
func openCases(ctx context.Context, cfg *config.Config) (cases.Provider, func(), error) {
	loader := cases.NewLoader()
	if err := loader.LoadFromDir(cfg.Cases.Dir); err != nil {
		slog.Warn("failed to load cases from dir", "dir", cfg.Cases.Dir, "error", err)
	}

	if cfg.Cases.Source != config.SourcePostgres {
		return loader, func() {}, nil
	}

	store, err := cases.OpenSQLStore(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}

	seeded, err := loader.List(ctx, "")
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	for _, c := range seeded {
		if err := store.Put(ctx, c); err != nil {
			slog.Warn("failed to seed case", "case_id", c.ID, "error", err)
		}
	}
	slog.Info("case store ready", "seeded", len(seeded))

	return store, func() { store.Close() }, nil
}
