package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"devshop/internal/api"
	"devshop/internal/config"
	"devshop/internal/game"
	"devshop/internal/realtime"
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

	hub := realtime.NewHub(logger)
	defer hub.Close()
	gameSvc := game.NewService(backend, logger, game.WithRules(rules), game.WithNotifier(backend.Notifier(hub)))

	if backend.CrossProcess() {
		// Events from this process and the worker come back through the
		// database and reach websocket clients once.
		go func() {
			if err := backend.Relay(ctx, hub); err != nil {
				logger.Error("event relay stopped", "err", err)
			}
		}()
	} else {
		// Nothing outside this process publishes events for this store, so
		// it ticks here.
		go runTicker(ctx, logger, gameSvc, cfg.TickEvery)
	}

	server := api.New(cfg, logger, gameSvc, hub)
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("devshop api listening", "addr", cfg.Addr, "store", cfg.Store)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func runTicker(ctx context.Context, logger *slog.Logger, svc *game.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	logger.Info("inline ticker started", "tick_every", every.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.RunTickAll(ctx); err != nil && ctx.Err() == nil {
				logger.Error("tick failed", "err", err)
			}
		}
	}
}
