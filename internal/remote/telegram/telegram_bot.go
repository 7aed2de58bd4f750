package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/zlkm/farmbot/internal/bot"
	"github.com/zlkm/farmbot/internal/event"
	"github.com/zlkm/farmbot/internal/ledger"
	"github.com/zlkm/farmbot/internal/shop"
)

type Fleet interface {
	List() []string
	Status(name string) (bot.Stats, bool)
}

type Earnings interface {
	Totals(ctx context.Context, agent string) (ledger.Totals, error)
}

type Bot struct {
	bot      *tgbotapi.BotAPI
	chatID   int64
	fleet    Fleet
	earnings Earnings
	logger   *slog.Logger
}

func (b *Bot) Start(ctx context.Context) error {
	offset, err := b.getLatestOffset()
	if err != nil {
		return err
	}

	u := tgbotapi.NewUpdate(offset)
	u.Timeout = 5
	updates := b.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.bot.StopReceivingUpdates()
			for range updates {
			}
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Chat == nil || update.Message.Chat.ID != b.chatID {
				continue
			}
			answer, known := b.answer(ctx, update.Message.Text)
			if !known {
				continue
			}
			if err := b.send(answer); err != nil {
				b.logger.Warn("Error answering Telegram command", slog.Any("error", err))
			}
		}
	}
}

// answer builds the reply to a chat command. Unknown text is ignored.
func (b *Bot) answer(ctx context.Context, text string) (string, bool) {
	words := strings.Fields(text)
	if len(words) == 0 {
		return "", false
	}

	switch strings.ToLower(strings.TrimPrefix(words[0], "/")) {
	case "status":
		return b.statusText(), true
	case "earnings":
		agent := ""
		if len(words) > 1 {
			agent = words[1]
		}
		return b.earningsText(ctx, agent), true
	default:
		return "", false
	}
}

func (b *Bot) statusText() string {
	names := b.fleet.List()
	if len(names) == 0 {
		return "No agents running."
	}
	var sb strings.Builder
	for _, name := range names {
		s, _ := b.fleet.Status(name)
		fmt.Fprintf(&sb, "%s: %s (%s)\n", name, s.AgentStatus, s.Zone)
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (b *Bot) earningsText(ctx context.Context, agent string) string {
	label := "fleet"
	if agent != "" {
		label = agent
	}
	if b.earnings == nil {
		return "Earnings are not recorded, enable the ledger."
	}
	t, err := b.earnings.Totals(ctx, agent)
	if err != nil {
		return fmt.Sprintf("Could not read earnings: %s", err)
	}
	return fmt.Sprintf("Earnings (%s): %s from %s items in %d cycles", label, shop.FormatEarned(t.Earned, true), humanize.Comma(int64(t.ItemsSold)), t.Cycles)
}

// Handle forwards sell, payout and failure events to the chat.
func (b *Bot) Handle(_ context.Context, e event.Event) error {
	var msg string
	switch evt := e.(type) {
	case event.SellCompletedEvent:
		msg = fmt.Sprintf("[%s] sold %d %s, earned %s", evt.Agent(), evt.ItemsSold, evt.Item, shop.FormatEarned(evt.Earned, evt.EarnedKnown))
	case event.PayoutSentEvent:
		msg = fmt.Sprintf("[%s] paid %s to %s", evt.Agent(), shop.FormatEarned(evt.Amount, true), evt.Recipient)
	case event.ReconnectingEvent, event.AgentFatalEvent:
		msg = fmt.Sprintf("[%s] %s", e.Agent(), e.Message())
	default:
		return nil
	}
	return b.send(msg)
}

func (b *Bot) send(text string) error {
	_, err := b.bot.Send(tgbotapi.NewMessage(b.chatID, text))
	return err
}

func (b *Bot) getLatestOffset() (int, error) {
	upds, err := b.bot.GetUpdates(tgbotapi.NewUpdate(-1))
	if err != nil {
		return 0, err
	}
	offset := 0
	if len(upds) > 0 {
		offset = upds[0].UpdateID + 1
	}
	return offset, nil
}
