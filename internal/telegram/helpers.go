package telegram

import (
	"context"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"

	"github.com/tmt-films/AutoPostingv2/internal/logger"
)

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) {
	params := &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: botModels.ParseModeHTML,
	}

	if _, err := b.bot.SendMessage(ctx, params); err != nil {
		logger.L().Errorf("Failed to send message to chat %d: %v", chatID, err)
	}
}

func (b *Bot) sendErrorMessage(ctx context.Context, chatID int64, message string) {
	b.sendMessage(ctx, chatID, "❌ "+message)
}
