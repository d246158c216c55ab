package telegram

import (
	"context"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"

	"github.com/tmt-films/AutoPostingv2/internal/logger"
)

// asyncHandler runs the handler in its own goroutine so a slow store or API
// call never blocks the update loop.
func (b *Bot) asyncHandler(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logger.L().Errorf("Handler panicked: %v", r)
				}
			}()
			next(ctx, botInstance, update)
		}()
	}
}

// requireAdmin limits a command to the configured admin ids.
func (b *Bot) requireAdmin(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
		if update.Message == nil || update.Message.From == nil {
			return
		}

		if !b.isAdmin(update.Message.From.ID) {
			logger.L().Warnf("Non-admin user %d attempted to use admin command", update.Message.From.ID)
			b.sendErrorMessage(ctx, update.Message.Chat.ID, "This command is restricted to bot admins")
			return
		}

		next(ctx, botInstance, update)
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	for _, id := range b.adminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
