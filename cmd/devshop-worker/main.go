package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"devshop/internal/config"
	"devshop/internal/game"
	"devshop/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	// Only postgres carries events to the API process; other stores tick
	// inside the API.
	if cfg.Store != config.StorePostgres {
		logger.Error("worker needs the postgres store", "store", cfg.Store)
		os.Exit(1)
	}
	rules, err := cfg.Rules()
	if err != nil {
		logger.Error("load balance failed", "err", err)
		os.Exit(1)
	}
	backend, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("store open failed", "store", cfg.Store, "err", err)
		os.Exit(1)
	}
	defer backend.Close()

	svc := game.NewService(backend, logger, game.WithRules(rules), game.WithNotifier(backend.Notifier(nil)))

	if cfg.WorkerRunOnce {
		if err := tickAll(ctx, logger, svc); err != nil {
			logger.Error("tick failed", "err", err)
			os.Exit(1)
		}
		logger.Info("worker run-once completed")
		return
	}

	ticker := time.NewTicker(cfg.TickEvery)
	defer ticker.Stop()

	logger.Info("worker started", "tick_every", cfg.TickEvery.String(), "concurrency", svc.Rules().TickConcurrency)
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutdown")
			return
		case <-ticker.C:
			if err := tickAll(ctx, logger, svc); err != nil {
				logger.Error("tick failed", "err", err)
				continue
			}
		}
	}
}

func tickAll(ctx context.Context, logger *slog.Logger, svc *game.Service) error {
	start := time.Now()
	reports, err := svc.RunTickAll(ctx)
	if err != nil {
		return err
	}
	var advanced, completed, spawned, failures int
	for _, r := range reports {
		advanced += r.ProjectsAdvanced + r.SalespeopleAdvanced
		completed += r.ProjectsCompleted
		spawned += r.ProjectsSpawned
		failures += len(r.Failures)
	}
	logger.Info("tick complete",
		"games", len(reports),
		"advanced", advanced,
		"completed", completed,
		"spawned", spawned,
		"failures", failures,
		"took", time.Since(start).String(),
	)
	return nil
}
