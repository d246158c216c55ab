package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/tmt-films/AutoPostingv2/internal/app"
	"github.com/tmt-films/AutoPostingv2/internal/config"
	"github.com/tmt-films/AutoPostingv2/internal/logger"
	"github.com/tmt-films/AutoPostingv2/internal/metrics"
)

func main() {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		logger.L().Fatalf("Failed to load config: %v", err)
	}

	metrics.Serve(cfg.MetricsAddr)

	application, err := app.New(cfg)
	if err != nil {
		logger.L().Fatalf("Failed to initialize application: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Scheduler.Start(ctx); err != nil {
		logger.L().Fatalf("Failed to start scheduler: %v", err)
	}

	go func() {
		if err := application.Bot.Start(ctx); err != nil {
			logger.L().Errorf("Bot stopped with error: %v", err)
		}
	}()

	logger.L().Info("Relay bot is up")
	<-ctx.Done()

	logger.L().Info("Shutting down...")
	if err := application.Close(context.Background()); err != nil {
		logger.L().Errorf("Shutdown error: %v", err)
	}
	logger.L().Info("Bye")
}
