// Package bot is the Telegram operations bot used by campus staff to look up
// users and rentals, credit counter top-ups, force returns and pull reports.
package bot

import (
	"context"
	"time"

	"umbrella/internal/config"
	"umbrella/internal/domain"
	"umbrella/internal/export"
	"umbrella/internal/logging"
	"umbrella/internal/metrics"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const updateTimeout = 30 * time.Second

type Bot struct {
	tgService domain.TelegramService
	rentals   domain.RentalService
	users     domain.UserService
	report    *export.RentalReport
	managers  map[int64]bool
	location  *time.Location
	logger    *zerolog.Logger
}

// NewBot builds the bot. report may be nil, in which case /export is refused.
func NewBot(
	tgService domain.TelegramService,
	cfg config.TelegramConfig,
	rentals domain.RentalService,
	users domain.UserService,
	report *export.RentalReport,
	loc *time.Location,
	logger *zerolog.Logger,
) *Bot {
	if loc == nil {
		loc = time.UTC
	}
	managers := make(map[int64]bool, len(cfg.Managers))
	for _, id := range cfg.Managers {
		managers[id] = true
	}

	return &Bot{
		tgService: tgService,
		rentals:   rentals,
		users:     users,
		report:    report,
		managers:  managers,
		location:  loc,
		logger:    logging.Component(logger, "bot"),
	}
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tgService.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tgService.GetSelf().UserName).Int("managers", len(b.managers)).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

// Stop stops receiving Telegram updates (best-effort).
func (b *Bot) Stop() {
	if b == nil || b.tgService == nil {
		return
	}
	b.tgService.StopReceivingUpdates()
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	defer func() { metrics.ObserveBotUpdate(time.Since(start)) }()

	updateCtx, cancel := context.WithTimeout(ctx, updateTimeout)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.NewString()).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		msg := update.Message
		if msg == nil || msg.From == nil || msg.Chat == nil || !msg.IsCommand() {
			return
		}
		b.handleCommand(updateCtx, msg)
	})
}

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

func (b *Bot) isManager(userID int64) bool {
	return b.managers[userID]
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.tgService.Send(msg); err != nil {
		b.logger.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to send message")
	}
}
