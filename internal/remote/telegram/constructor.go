package telegram

import (
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	maxRetries  = 3
	retryBaseMs = 2000
	retryGrowth = 2
)

// NewBot creates a Telegram bot, retrying transient failures reaching
// api.telegram.org. earnings may be nil when the ledger is disabled.
func NewBot(token string, chatID int64, fleet Fleet, earnings Earnings, logger *slog.Logger) (*Bot, error) {
	var api *tgbotapi.BotAPI
	var err error

	delay := time.Duration(retryBaseMs) * time.Millisecond
	for attempt := 1; attempt <= maxRetries; attempt++ {
		api, err = tgbotapi.NewBotAPI(token)
		if err == nil {
			break
		}
		if attempt < maxRetries {
			logger.Warn("Telegram API connection failed, retrying",
				slog.Int("attempt", attempt),
				slog.Int("maxRetries", maxRetries),
				slog.Duration("retryIn", delay),
				slog.Any("error", err),
			)
			time.Sleep(delay)
			delay *= retryGrowth
		}
	}
	if err != nil {
		return nil, fmt.Errorf("after %d attempts: %w", maxRetries, err)
	}
	return &Bot{bot: api, chatID: chatID, fleet: fleet, earnings: earnings, logger: logger}, nil
}
