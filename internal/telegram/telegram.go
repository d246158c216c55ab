// Package telegram is the Bot API surface: it feeds the source post cache
// from channel updates, auto-approves join requests and exposes the admin
// command set for operating relay jobs.
package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"

	"github.com/tmt-films/AutoPostingv2/internal/logger"
	"github.com/tmt-films/AutoPostingv2/internal/relay/gateway"
	"github.com/tmt-films/AutoPostingv2/internal/relay/repository"
	"github.com/tmt-films/AutoPostingv2/internal/relay/scheduler"
)

// Config configures the bot surface.
type Config struct {
	AdminIDs []int64
	Debug    bool
}

// Bot wires the Bot API client to the relay components.
type Bot struct {
	bot      *bot.Bot
	adminIDs []int64

	sched     *scheduler.Scheduler
	gw        gateway.Gateway
	jobs      repository.JobRepository
	deletions repository.DeletionRepository
	messages  repository.SourceMessageRepository
}

// NewClient creates the underlying Bot API client. It is separate from New so
// the gateway can be built on the same client before the handlers are wired.
func NewClient(token string, debug bool) (*bot.Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram token cannot be empty")
	}

	opts := []bot.Option{}
	if debug {
		opts = append(opts, bot.WithDebug())
	}

	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return b, nil
}

// New wires handlers onto an existing client.
func New(
	cfg Config,
	client *bot.Bot,
	sched *scheduler.Scheduler,
	gw gateway.Gateway,
	jobs repository.JobRepository,
	deletions repository.DeletionRepository,
	messages repository.SourceMessageRepository,
) *Bot {
	tb := &Bot{
		bot:       client,
		adminIDs:  cfg.AdminIDs,
		sched:     sched,
		gw:        gw,
		jobs:      jobs,
		deletions: deletions,
		messages:  messages,
	}
	tb.registerHandlers()

	logger.L().Info("Telegram bot initialized successfully")
	return tb
}

// Start runs the update loop. Blocking; run in a goroutine.
func (b *Bot) Start(ctx context.Context) error {
	logger.L().Info("Starting Telegram bot...")
	b.bot.Start(ctx)
	logger.L().Info("Telegram bot stopped")
	return nil
}
