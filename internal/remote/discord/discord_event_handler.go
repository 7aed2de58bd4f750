package discord

import (
	"context"
	"fmt"

	"github.com/zlkm/farmbot/internal/event"
	"github.com/zlkm/farmbot/internal/shop"
)

func (b *Bot) Handle(ctx context.Context, e event.Event) error {
	if !b.shouldPublish(e) {
		return nil
	}
	return b.sendEventMessage(ctx, formatEvent(e))
}

func formatEvent(e event.Event) string {
	switch evt := e.(type) {
	case event.SellCompletedEvent:
		return fmt.Sprintf("**[%s]** sold %d %s, earned **%s**", evt.Agent(), evt.ItemsSold, evt.Item, shop.FormatEarned(evt.Earned, evt.EarnedKnown))
	case event.PayoutSentEvent:
		return fmt.Sprintf("**[%s]** paid **%s** to %s", evt.Agent(), shop.FormatEarned(evt.Amount, true), evt.Recipient)
	case event.ZoneChangedEvent:
		return fmt.Sprintf("**[%s]** zone changed: %s → %s", evt.Agent(), evt.From, evt.To)
	case event.ReconnectingEvent:
		return fmt.Sprintf("**[%s]** disconnected (%s), reconnect attempt #%d in %s", evt.Agent(), evt.Reason, evt.Attempt, evt.Delay)
	case event.AgentFatalEvent:
		return fmt.Sprintf("**[%s]** ⚠️ failed to reconnect %d times, farmbot is exiting", evt.Agent(), evt.Attempts)
	default:
		return fmt.Sprintf("**[%s]** %s", e.Agent(), e.Message())
	}
}

func (b *Bot) sendEventMessage(ctx context.Context, message string) error {
	if b.useWebhook {
		return b.webhookClient.Send(ctx, message)
	}

	_, err := b.discordSession.ChannelMessageSend(b.channelID, message)
	return err
}

func (b *Bot) shouldPublish(e event.Event) bool {
	switch e.(type) {
	case event.SellCompletedEvent:
		return b.publish.sell
	case event.PayoutSentEvent:
		return b.publish.payout
	case event.ZoneChangedEvent:
		return b.publish.zone
	case event.ReconnectingEvent:
		return b.publish.reconnect
	case event.AgentFatalEvent:
		return b.publish.fatal
	case event.AssistantToggledEvent:
		return b.publish.assistant
	default:
		return false
	}
}
