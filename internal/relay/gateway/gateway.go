// Package gateway abstracts the messaging platform behind the four operations
// the relay needs: fetch a batch of source posts, copy one to a target,
// delete a forwarded copy, and approve a join request.
package gateway

import (
	"context"

	"github.com/tmt-films/AutoPostingv2/internal/relay/models"
)

// Gateway is the platform contract consumed by job runners and the sweeper.
// Implementations classify provider failures into the error taxonomy in
// errors.go so callers can decide between retry, skip and stop.
type Gateway interface {
	// FetchSince returns up to limit source posts with id strictly greater
	// than cursor, ascending by id.
	FetchSince(ctx context.Context, channelID int64, cursor, limit int) ([]*models.SourceMessage, error)

	// Forward copies one source post to the target chat, optionally replacing
	// the caption and attaching url buttons. Returns the delivered message id.
	Forward(ctx context.Context, msg *models.SourceMessage, targetChat int64, caption string, buttons []models.InlineButton) (int, error)

	// Delete removes a previously forwarded message from the target chat.
	// Returns ErrAlreadyDeleted when the message is already gone.
	Delete(ctx context.Context, chatID int64, messageID int) error

	// ApproveJoinRequest accepts a pending join request on a channel.
	ApproveJoinRequest(ctx context.Context, chatID, userID int64) error
}
