package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"

	"github.com/tmt-films/AutoPostingv2/internal/relay/models"
	"github.com/tmt-films/AutoPostingv2/internal/relay/repository"
)

// TelegramGateway implements Gateway on the Bot API.
//
// The Bot API has no channel-history call, so FetchSince reads from the
// source post cache that the channel-post handler keeps up to date; only
// Forward/Delete/ApproveJoinRequest hit the network.
type TelegramGateway struct {
	bot      *bot.Bot
	messages repository.SourceMessageRepository
}

// NewTelegramGateway creates the Bot API gateway.
func NewTelegramGateway(b *bot.Bot, messages repository.SourceMessageRepository) *TelegramGateway {
	return &TelegramGateway{
		bot:      b,
		messages: messages,
	}
}

func (g *TelegramGateway) FetchSince(ctx context.Context, channelID int64, cursor, limit int) ([]*models.SourceMessage, error) {
	msgs, err := g.messages.FetchSince(ctx, channelID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch source batch: %w", err)
	}
	return msgs, nil
}

func (g *TelegramGateway) Forward(ctx context.Context, msg *models.SourceMessage, targetChat int64, caption string, buttons []models.InlineButton) (int, error) {
	params := &bot.CopyMessageParams{
		ChatID:     targetChat,
		FromChatID: msg.ChatID,
		MessageID:  msg.MessageID,
	}
	if caption != "" {
		params.Caption = caption
		params.ParseMode = botModels.ParseModeHTML
	}
	if len(buttons) > 0 {
		params.ReplyMarkup = buildKeyboard(buttons)
	}

	id, err := g.bot.CopyMessage(ctx, params)
	if err != nil {
		return 0, classify(err)
	}
	return id.ID, nil
}

func (g *TelegramGateway) Delete(ctx context.Context, chatID int64, messageID int) error {
	ok, err := g.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    chatID,
		MessageID: messageID,
	})
	if err != nil {
		if isAlreadyDeleted(err) {
			return ErrAlreadyDeleted
		}
		return classify(err)
	}
	if !ok {
		return &TransientError{Err: fmt.Errorf("deleteMessage returned false for %d/%d", chatID, messageID)}
	}
	return nil
}

func (g *TelegramGateway) ApproveJoinRequest(ctx context.Context, chatID, userID int64) error {
	ok, err := g.bot.ApproveChatJoinRequest(ctx, &bot.ApproveChatJoinRequestParams{
		ChatID: chatID,
		UserID: userID,
	})
	if err != nil {
		return classify(err)
	}
	if !ok {
		return &PermanentError{Err: fmt.Errorf("approveChatJoinRequest returned false for %d/%d", chatID, userID)}
	}
	return nil
}

// buildKeyboard turns the configured buttons into one row per button,
// preserving order.
func buildKeyboard(buttons []models.InlineButton) *botModels.InlineKeyboardMarkup {
	rows := make([][]botModels.InlineKeyboardButton, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, []botModels.InlineKeyboardButton{
			{Text: b.Label, URL: b.URL},
		})
	}
	return &botModels.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// classify maps Bot API failures onto the gateway error taxonomy.
// 429 carries the provider's retry_after; forbidden/bad-request mean the bot
// lost access or the request can never succeed; everything else (timeouts,
// network, 5xx) is worth retrying.
func classify(err error) error {
	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return &TransientError{
			RetryAfter: time.Duration(tooMany.RetryAfter) * time.Second,
			Err:        err,
		}
	}

	switch {
	case errors.Is(err, bot.ErrorForbidden),
		errors.Is(err, bot.ErrorUnauthorized),
		errors.Is(err, bot.ErrorBadRequest),
		errors.Is(err, bot.ErrorNotFound):
		return &PermanentError{Err: err}
	}

	return &TransientError{Err: err}
}

// isAlreadyDeleted matches the Bot API response for deleting a message that
// no longer exists.
func isAlreadyDeleted(err error) bool {
	if !errors.Is(err, bot.ErrorBadRequest) {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "message to delete not found")
}
