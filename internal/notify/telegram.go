package notify

import (
	"context"
	"fmt"

	"umbrella/internal/domain"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramSender copies outgoing messages into an operations chat.
type TelegramSender struct {
	bot    domain.TelegramSender
	chatID int64
}

func NewTelegramSender(bot domain.TelegramSender, chatID int64) *TelegramSender {
	return &TelegramSender{bot: bot, chatID: chatID}
}

func (s *TelegramSender) Send(ctx context.Context, phone, text string) (domain.SendResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.SendResult{}, err
	}
	msg := tgbotapi.NewMessage(s.chatID, fmt.Sprintf("📨 %s\n\n%s", phone, text))
	msg.DisableWebPagePreview = true
	if _, err := s.bot.Send(msg); err != nil {
		return domain.SendResult{Reason: err.Error()}, fmt.Errorf("telegram send: %w", err)
	}
	return domain.SendResult{Delivered: true}, nil
}
