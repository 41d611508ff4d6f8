package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NasaVasa/cryptowatch/internal/domain"
	"github.com/NasaVasa/cryptowatch/internal/usecase"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const maxListedAssets = 5

// Sender is the part of *tgbotapi.BotAPI the handlers need.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Handlers struct {
	subscriptions *usecase.SubscriptionUsecase
	logger        *zap.Logger
}

func NewHandlers(subscriptions *usecase.SubscriptionUsecase, logger *zap.Logger) *Handlers {
	return &Handlers{subscriptions: subscriptions, logger: logger}
}

func (h *Handlers) HandleUpdate(ctx context.Context, api Sender, update tgbotapi.Update) {
	if update.Message == nil {
		return
	}
	if update.Message.Chat == nil {
		return
	}
	if update.Message.IsCommand() {
		h.handleCommand(ctx, api, update)
		return
	}
}

func (h *Handlers) handleCommand(ctx context.Context, api Sender, update tgbotapi.Update) {
	command := update.Message.Command()
	args := update.Message.CommandArguments()
	chatID := update.Message.Chat.ID

	fields := []zap.Field{
		zap.Int64("subscriber_id", chatID),
		zap.String("command", command),
		zap.String("args", args),
	}
	if from := update.Message.From; from != nil {
		fields = append(fields, zap.String("username", from.UserName))
	}
	h.logger.Info("telegram command received", fields...)

	catalog := h.subscriptions.Catalog()

	switch command {
	case "start":
		h.subscriptions.Start(chatID)
		h.reply(api, chatID, "Welcome to Crypto Price Tracker.\n\nPick assets with /watch or /watchall, then set a schedule with /every or /daily.\n\n"+HelpText)
	case "help":
		h.reply(api, chatID, HelpText)
	case "coins":
		watched := h.subscriptions.Settings(chatID).Subscriber
		h.reply(api, chatID, formatCoins(catalog, watched))
	case "watch":
		queries, err := ParseAssets(args)
		if err != nil {
			h.reply(api, chatID, "Usage: /watch <asset...>\nSee /coins for supported assets.")
			return
		}
		var watchlist, unknown []string
		for _, query := range queries {
			asset, ok := catalog.Resolve(query)
			if !ok {
				unknown = append(unknown, query)
				continue
			}
			watchlist, err = h.subscriptions.ToggleAsset(chatID, asset.ID)
			if err != nil {
				h.reply(api, chatID, h.errorMessage(err))
				return
			}
		}
		if watchlist == nil {
			watchlist = h.subscriptions.Settings(chatID).Watchlist
		}
		text := "Watchlist: " + formatAssetNames(catalog, watchlist, 0)
		if len(unknown) > 0 {
			text += "\nUnknown assets: " + strings.Join(unknown, ", ") + ". See /coins."
		}
		h.logger.Info("watch complete", zap.Int64("subscriber_id", chatID), zap.Int("count", len(watchlist)))
		h.reply(api, chatID, text)
	case "watchall":
		watchlist := h.subscriptions.WatchAll(chatID)
		h.reply(api, chatID, fmt.Sprintf("Watching all %d assets.", len(watchlist)))
	case "clear":
		h.subscriptions.ClearWatchlist(chatID)
		h.reply(api, chatID, "Watchlist cleared.")
	case "every":
		spec, err := ParseEvery(args)
		if err != nil {
			h.replyError(api, chatID, err, "Usage: /every <n> <minutes|hours>")
			return
		}
		h.activate(ctx, api, chatID, spec)
	case "daily":
		spec, err := ParseDaily(args)
		if err != nil {
			h.reply(api, chatID, "Usage: /daily <HH:MM> (UTC)")
			return
		}
		h.activate(ctx, api, chatID, spec)
	case "schedule", "subscribe":
		spec, err := ParseScheduleText(args)
		if err != nil {
			h.replyError(api, chatID, err, scheduleUsage)
			return
		}
		h.activate(ctx, api, chatID, spec)
	case "unsubscribe":
		if !h.subscriptions.DeactivateSchedule(chatID) {
			h.reply(api, chatID, "You are not subscribed to any updates.")
			return
		}
		h.reply(api, chatID, "Unsubscribed. You will no longer receive automatic updates.\nUse /every or /daily to start again.")
	case "settings":
		h.reply(api, chatID, formatSettings(catalog, h.subscriptions.Settings(chatID)))
	case "list":
		h.reply(api, chatID, formatList(catalog, h.subscriptions.Settings(chatID)))
	case "prices":
		report, err := h.subscriptions.PricesFor(ctx, chatID)
		if err != nil {
			h.reply(api, chatID, h.errorMessage(err))
			return
		}
		h.reply(api, chatID, report)
	default:
		h.logger.Warn("unknown command", zap.Int64("subscriber_id", chatID), zap.String("command", command))
		h.reply(api, chatID, "Unknown command.\n\n"+HelpText)
	}
}

func (h *Handlers) activate(ctx context.Context, api Sender, chatID int64, spec domain.ScheduleSpec) {
	if err := h.subscriptions.ActivateSchedule(ctx, chatID, spec); err != nil {
		h.logger.Warn("schedule activation rejected", zap.Int64("subscriber_id", chatID), zap.Error(err))
		h.reply(api, chatID, h.errorMessage(err))
		return
	}
	view := h.subscriptions.Settings(chatID)
	text := fmt.Sprintf("Scheduled: updates %s.", spec)
	if !view.NextFire.IsZero() {
		text += "\nNext update: " + formatTime(view.NextFire)
	}
	h.reply(api, chatID, text+"\nUse /prices to get current prices anytime.")
}

func (h *Handlers) replyError(api Sender, chatID int64, err error, usage string) {
	if errors.Is(err, domain.ErrInvalidSchedule) {
		h.reply(api, chatID, h.errorMessage(err))
		return
	}
	h.reply(api, chatID, usage)
}

func (h *Handlers) errorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyWatchlist):
		return "Your watchlist is empty. Add assets with /watch or /watchall first."
	case errors.Is(err, domain.ErrInvalidSchedule):
		return "Invalid schedule. Intervals must be at least 1 minute and times must be between 00:00 and 23:59.\n\n" + scheduleUsage
	case errors.Is(err, domain.ErrEmptyAsset):
		return "Usage: /watch <asset...>"
	case errors.Is(err, domain.ErrFetch):
		return "Could not fetch prices at the moment. Please try again later."
	case errors.Is(err, usecase.ErrEngineStopped):
		return "The bot is shutting down. Please try again in a moment."
	}

	h.logger.Warn("unhandled error", zap.Error(err))
	return "Something went wrong. Please try again."
}

func formatCoins(catalog *domain.Catalog, sub domain.Subscriber) string {
	var builder strings.Builder
	builder.WriteString("Supported assets:\n")
	for _, asset := range catalog.All() {
		mark := "[ ]"
		if sub.Watches(asset.ID) {
			mark = "[x]"
		}
		builder.WriteString(fmt.Sprintf("%s %s (%s)\n", mark, asset.Name, asset.Ticker))
	}
	builder.WriteString(fmt.Sprintf("\nSelected: %d. Toggle with /watch <symbol>.", len(sub.Watchlist)))
	return builder.String()
}

func formatSettings(catalog *domain.Catalog, view usecase.SubscriberView) string {
	status := "Inactive"
	if view.Active {
		status = "Active"
	}
	schedule := "none"
	if view.Schedule != nil {
		schedule = view.Schedule.String()
	}

	var builder strings.Builder
	builder.WriteString("Your settings\n\n")
	builder.WriteString(fmt.Sprintf("Tracking: %d assets\n", len(view.Watchlist)))
	builder.WriteString(fmt.Sprintf("Schedule: %s\n", schedule))
	builder.WriteString(fmt.Sprintf("Status: %s\n", status))
	if !view.NextFire.IsZero() {
		builder.WriteString(fmt.Sprintf("Next update: %s\n", formatTime(view.NextFire)))
	}
	if len(view.Watchlist) > 0 {
		builder.WriteString("\nTracked assets: " + formatAssetNames(catalog, view.Watchlist, maxListedAssets) + "\n")
	}
	builder.WriteString("\n/every or /daily - change schedule\n/unsubscribe - stop updates\n/prices - current prices")
	return builder.String()
}

func formatList(catalog *domain.Catalog, view usecase.SubscriberView) string {
	if len(view.Watchlist) == 0 {
		return "Your watchlist is empty. Use /watch or /watchall."
	}
	var builder strings.Builder
	builder.WriteString("Your watchlist:\n")
	for i, id := range view.Watchlist {
		builder.WriteString(fmt.Sprintf("%d. %s\n", i+1, catalog.Name(id)))
	}
	if view.Active && view.Schedule != nil {
		builder.WriteString("\nUpdates " + view.Schedule.String() + ".")
	} else {
		builder.WriteString("\nNo automatic updates.")
	}
	return builder.String()
}

// formatAssetNames joins display names, truncating after limit when limit > 0.
func formatAssetNames(catalog *domain.Catalog, ids []string, limit int) string {
	if len(ids) == 0 {
		return "(empty)"
	}
	shown := ids
	if limit > 0 && len(ids) > limit {
		shown = ids[:limit]
	}
	names := make([]string, 0, len(shown))
	for _, id := range shown {
		names = append(names, catalog.Name(id))
	}
	text := strings.Join(names, ", ")
	if len(shown) < len(ids) {
		text += fmt.Sprintf(" ... and %d more", len(ids)-len(shown))
	}
	return text
}

func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04") + " UTC"
}

func (h *Handlers) reply(api Sender, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := api.Send(msg); err != nil {
		h.logger.Warn("failed to send message", zap.Int64("subscriber_id", chatID), zap.Error(err))
	}
}
