package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"

	"github.com/tmt-films/AutoPostingv2/internal/logger"
	"github.com/tmt-films/AutoPostingv2/internal/metrics"
	"github.com/tmt-films/AutoPostingv2/internal/relay/models"
)

// registerHandlers wires the command set plus the two update streams the
// relay depends on: channel posts (source cache) and join requests.
func (b *Bot) registerHandlers() {
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypeExact,
		b.asyncHandler(b.handleStart))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/ping", bot.MatchTypeExact,
		b.asyncHandler(b.handlePing))

	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/stats", bot.MatchTypeExact,
		b.asyncHandler(b.requireAdmin(b.handleStats)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/jobs", bot.MatchTypeExact,
		b.asyncHandler(b.requireAdmin(b.handleJobs)))
	b.bot.RegisterHandler(bot.HandlerTypeMessageText, "/myjobs", bot.MatchTypeExact,
		b.asyncHandler(b.handleMyJobs))

	b.bot.RegisterHandlerMatchFunc(
		func(update *botModels.Update) bool { return update.ChannelPost != nil },
		b.asyncHandler(b.handleChannelPost))
	b.bot.RegisterHandlerMatchFunc(
		func(update *botModels.Update) bool { return update.ChatJoinRequest != nil },
		b.asyncHandler(b.handleJoinRequest))

	logger.L().Debug("All handlers registered with async execution")
}

// handleChannelPost records every channel post the bot can see, so jobs can
// later fetch batches by message id.
func (b *Bot) handleChannelPost(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	post := update.ChannelPost

	msg := &models.SourceMessage{
		ChatID:    post.Chat.ID,
		MessageID: post.ID,
		Text:      post.Text,
		Caption:   post.Caption,
		HasMedia:  hasMedia(post),
		PostedAt:  time.Unix(int64(post.Date), 0).UTC(),
	}

	if err := b.messages.Save(ctx, msg); err != nil {
		logger.L().Errorf("Failed to cache channel post %d/%d: %v", post.Chat.ID, post.ID, err)
		return
	}
	logger.L().Debugf("Cached channel post %d/%d (media=%v)", post.Chat.ID, post.ID, msg.HasMedia)
}

// handleJoinRequest auto-approves pending join requests on channels the bot
// administers.
func (b *Bot) handleJoinRequest(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	req := update.ChatJoinRequest

	if err := b.gw.ApproveJoinRequest(ctx, req.Chat.ID, req.From.ID); err != nil {
		logger.L().Errorf("Failed to approve join request from %d in chat %d: %v",
			req.From.ID, req.Chat.ID, err)
		return
	}

	metrics.JoinRequestsApproved.Inc()
	logger.L().Infof("Approved join request from %d in chat %d", req.From.ID, req.Chat.ID)
}

func (b *Bot) handleStart(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}

	text := "👋 Channel relay bot.\n\n" +
		"Available commands:\n" +
		"/ping - check the bot is alive\n" +
		"/myjobs - list your jobs\n" +
		"/stats - relay totals (admin)\n" +
		"/jobs - list all jobs (admin)"
	b.sendMessage(ctx, update.Message.Chat.ID, text)
}

func (b *Bot) handlePing(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil {
		return
	}
	b.sendMessage(ctx, update.Message.Chat.ID, "🏓 Pong!")
}

func (b *Bot) handleStats(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	stats, err := b.jobs.Stats(ctx)
	if err != nil {
		logger.L().Errorf("Failed to load job stats: %v", err)
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "Failed to load stats")
		return
	}
	pending, err := b.deletions.CountPending(ctx)
	if err != nil {
		logger.L().Errorf("Failed to count pending deletions: %v", err)
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "Failed to load stats")
		return
	}

	text := fmt.Sprintf(
		"📊 Relay stats\n\n"+
			"Jobs: %d (%d running)\n"+
			"Forwarded: %d\n"+
			"Forward failures: %d\n"+
			"Pending deletions: %d",
		stats.TotalJobs, stats.RunningJobs, stats.Forwarded, stats.ForwardFails, pending,
	)
	b.sendMessage(ctx, update.Message.Chat.ID, text)
}

func (b *Bot) handleJobs(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	jobs, err := b.sched.ListJobs(ctx)
	if err != nil {
		logger.L().Errorf("Failed to list jobs: %v", err)
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "Failed to list jobs")
		return
	}
	b.sendJobList(ctx, update.Message.Chat.ID, jobs)
}

func (b *Bot) handleMyJobs(ctx context.Context, botInstance *bot.Bot, update *botModels.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	jobs, err := b.jobs.ListByUser(ctx, update.Message.From.ID)
	if err != nil {
		logger.L().Errorf("Failed to list jobs for user %d: %v", update.Message.From.ID, err)
		b.sendErrorMessage(ctx, update.Message.Chat.ID, "Failed to list jobs")
		return
	}
	b.sendJobList(ctx, update.Message.Chat.ID, jobs)
}

func (b *Bot) sendJobList(ctx context.Context, chatID int64, jobs []*models.Job) {
	if len(jobs) == 0 {
		b.sendMessage(ctx, chatID, "📝 No jobs configured")
		return
	}

	var text strings.Builder
	text.WriteString("📋 Relay jobs:\n\n")
	for i, job := range jobs {
		text.WriteString(fmt.Sprintf("%d. %s %s\n   %d → %d, cursor %d, sent %d, errors %d\n",
			i+1,
			statusEmoji(job.Status),
			job.Name,
			job.SourceChannelID,
			job.TargetChannelID,
			job.Cursor,
			job.ProcessedCount,
			job.ErrorCount,
		))
		if job.LastError != "" {
			text.WriteString(fmt.Sprintf("   last error: %s\n", job.LastError))
		}
	}
	b.sendMessage(ctx, chatID, text.String())
}

func statusEmoji(status models.JobStatus) string {
	switch status {
	case models.JobStatusRunning:
		return "▶️"
	case models.JobStatusPaused:
		return "⏸"
	default:
		return "⏹"
	}
}

// hasMedia reports whether a channel post carries any forwardable media.
func hasMedia(msg *botModels.Message) bool {
	return len(msg.Photo) > 0 ||
		msg.Video != nil ||
		msg.Document != nil ||
		msg.Audio != nil ||
		msg.Animation != nil ||
		msg.Voice != nil ||
		msg.VideoNote != nil ||
		msg.Sticker != nil
}
