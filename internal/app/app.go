// Package app is the service container: it builds every component in
// dependency order and tears them down in reverse.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/tmt-films/AutoPostingv2/internal/config"
	"github.com/tmt-films/AutoPostingv2/internal/logger"
	"github.com/tmt-films/AutoPostingv2/internal/mongo"
	"github.com/tmt-films/AutoPostingv2/internal/relay/gateway"
	"github.com/tmt-films/AutoPostingv2/internal/relay/ratelimit"
	"github.com/tmt-films/AutoPostingv2/internal/relay/repository"
	"github.com/tmt-films/AutoPostingv2/internal/relay/scheduler"
	"github.com/tmt-films/AutoPostingv2/internal/telegram"
)

// forwardBurst is the token bucket capacity per target chat.
const forwardBurst = 3

// App holds every long-lived service of the relay bot.
type App struct {
	MongoDB   *mongo.Client
	Scheduler *scheduler.Scheduler
	Bot       *telegram.Bot

	Jobs      repository.JobRepository
	Deletions repository.DeletionRepository
	Messages  repository.SourceMessageRepository
}

// New initializes all services. Any failure aborts startup; already-opened
// connections are closed before returning.
func New(cfg *config.Config) (*App, error) {
	mongoClient, err := mongo.NewClient(mongo.Config{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDBName,
	})
	if err != nil {
		return nil, fmt.Errorf("init MongoDB failed: %w", err)
	}
	logger.L().Info("MongoDB initialized successfully")

	db := mongoClient.Database()
	retention := time.Duration(cfg.SourceRetentionDays) * 24 * time.Hour

	jobs := repository.NewJobRepository(db)
	deletions := repository.NewDeletionRepository(db)
	messages := repository.NewSourceMessageRepository(db, retention)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for name, ensure := range map[string]func(context.Context) error{
		"jobs":              jobs.EnsureIndexes,
		"pending_deletions": deletions.EnsureIndexes,
		"source_messages":   messages.EnsureIndexes,
	} {
		if err := ensure(ctx); err != nil {
			_ = mongoClient.Close(context.Background())
			return nil, fmt.Errorf("ensure %s indexes failed: %w", name, err)
		}
	}

	client, err := telegram.NewClient(cfg.TelegramToken, false)
	if err != nil {
		_ = mongoClient.Close(context.Background())
		return nil, fmt.Errorf("init Telegram client failed: %w", err)
	}

	gw := gateway.NewTelegramGateway(client, messages)
	limiter := ratelimit.New(cfg.ForwardRatePerSecond, forwardBurst)
	sched := scheduler.New(jobs, deletions, gw, limiter)

	tgBot := telegram.New(
		telegram.Config{AdminIDs: cfg.AdminIDs},
		client, sched, gw, jobs, deletions, messages,
	)

	return &App{
		MongoDB:   mongoClient,
		Scheduler: sched,
		Bot:       tgBot,
		Jobs:      jobs,
		Deletions: deletions,
		Messages:  messages,
	}, nil
}

// Close shuts services down in reverse start order.
func (a *App) Close(ctx context.Context) error {
	if a.Scheduler != nil {
		a.Scheduler.Shutdown(scheduler.DefaultShutdownGrace)
	}
	if a.MongoDB != nil {
		if err := a.MongoDB.Close(ctx); err != nil {
			return fmt.Errorf("close MongoDB failed: %w", err)
		}
	}
	return nil
}
