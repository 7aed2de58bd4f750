package discord

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"

	"github.com/zlkm/farmbot/internal/bot"
	"github.com/zlkm/farmbot/internal/shop"
)

type reply struct {
	text  string
	embed *discordgo.MessageEmbed
}

func text(format string, args ...any) reply {
	return reply{text: fmt.Sprintf(format, args...)}
}

func (b *Bot) handleCommand(ctx context.Context, content string) reply {
	words := strings.Fields(content)
	if len(words) == 0 {
		return b.handleHelpRequest()
	}

	switch words[0] {
	case "!status":
		return b.handleStatusRequest(words[1:])
	case "!list":
		return b.handleListRequest()
	case "!ai":
		return b.handleAssistantRequest(words[1:])
	case "!earnings":
		return b.handleEarningsRequest(ctx, words[1:])
	case "!help":
		return b.handleHelpRequest()
	default:
		return text("Unknown command: `%s`. Type `!help` for available commands.", words[0])
	}
}

func (b *Bot) agentExists(name string) bool {
	return slices.Contains(b.fleet.List(), name)
}

func (b *Bot) handleStatusRequest(names []string) reply {
	if len(names) == 0 {
		return text("Usage: !status <agent1> [agent2] ...")
	}

	lines := make([]string, 0, len(names))
	for _, name := range names {
		status, found := b.fleet.Status(name)
		if !found {
			lines = append(lines, fmt.Sprintf("Agent '%s' is offline.", name))
			continue
		}
		lines = append(lines, fmt.Sprintf("Agent '%s' is %s in %s (reconnect attempts: %d)", name, status.AgentStatus, status.Zone, status.ReconnectAttempts))
	}
	return reply{text: strings.Join(lines, "\n")}
}

func (b *Bot) handleListRequest() reply {
	names := b.fleet.List()
	if len(names) == 0 {
		return text("No agents running.")
	}

	fields := make([]*discordgo.MessageEmbedField, 0, len(names))
	for _, name := range names {
		status, _ := b.fleet.Status(name)
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   name,
			Value:  fmt.Sprintf("Status: %s\nZone: %s\nUptime: %s", statusText(status), status.Zone, formatUptime(status.StartedAt)),
			Inline: true,
		})
	}

	return reply{embed: &discordgo.MessageEmbed{
		Title:  "📋 Agents",
		Fields: fields,
		Color:  0x5865F2,
	}}
}

func (b *Bot) handleAssistantRequest(args []string) reply {
	if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
		return text("Usage: !ai <agent> on|off")
	}
	name := args[0]
	if !b.agentExists(name) {
		return text("Agent '%s' not found.", name)
	}

	enabled := args[1] == "on"
	if err := b.fleet.SetAssistant(name, enabled, "discord command"); err != nil {
		return text("Could not switch the assistant %s for '%s': %s", args[1], name, err)
	}
	return text("Assistant for '%s' is now %s.", name, args[1])
}

func (b *Bot) handleEarningsRequest(ctx context.Context, args []string) reply {
	agent := ""
	title := "💰 Fleet earnings"
	if len(args) > 0 {
		agent = args[0]
		title = fmt.Sprintf("💰 Earnings for %s", agent)
	}

	if b.earnings != nil {
		totals, err := b.earnings.Totals(ctx, agent)
		if err != nil {
			return text("Could not read earnings: %s", err)
		}
		return reply{embed: earningsEmbed(title, totals.Cycles, totals.ItemsSold, totals.Earned, totals.LastSellAt)}
	}

	// Without a ledger only the counters of running agents are known.
	names := b.fleet.List()
	if agent != "" {
		if !b.agentExists(agent) {
			return text("Agent '%s' not found.", agent)
		}
		names = []string{agent}
	}
	var cycles, items int
	var earned float64
	var last time.Time
	for _, name := range names {
		s, _ := b.fleet.Status(name)
		cycles += s.SellCycles
		items += s.ItemsSold
		earned += s.Earned
		if s.LastSellAt.After(last) {
			last = s.LastSellAt
		}
	}
	return reply{embed: earningsEmbed(title, cycles, items, earned, last)}
}

func earningsEmbed(title string, cycles, items int, earned float64, last time.Time) *discordgo.MessageEmbed {
	lastText := "never"
	if !last.IsZero() {
		lastText = humanize.Time(last)
	}
	return &discordgo.MessageEmbed{
		Title: title,
		Color: 0xFFD700,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Earned", Value: shop.FormatEarned(earned, true), Inline: true},
			{Name: "Items sold", Value: humanize.Comma(int64(items)), Inline: true},
			{Name: "Sell cycles", Value: humanize.Comma(int64(cycles)), Inline: true},
			{Name: "Last sale", Value: lastText, Inline: true},
		},
	}
}

func (b *Bot) handleHelpRequest() reply {
	return reply{embed: &discordgo.MessageEmbed{
		Title:       "🤖 Farmbot Discord Commands",
		Description: "Monitor your farming agents",
		Color:       0x5865F2,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "!list", Value: "Show every running agent with its status and uptime"},
			{Name: "!status <agent1> [agent2] ...", Value: "Check the connection state of agents\nExample: `!status farmer1`"},
			{Name: "!ai <agent> on|off", Value: "Switch the chat assistant of an agent\nExample: `!ai farmer1 on`"},
			{Name: "!earnings [agent]", Value: "Show sell totals for one agent or the whole fleet"},
			{Name: "!help", Value: "Show this help message"},
		},
	}}
}

func statusText(s bot.Stats) string {
	switch s.AgentStatus {
	case bot.NotStarted, bot.Stopped, "":
		return "❌ Offline"
	case bot.Fatal:
		return "💀 Fatal"
	case bot.Farming:
		return fmt.Sprintf("✅ %s", s.AgentStatus)
	default:
		return fmt.Sprintf("⏳ %s", s.AgentStatus)
	}
}

func formatUptime(startedAt time.Time) string {
	if startedAt.IsZero() {
		return "-"
	}
	uptime := time.Since(startedAt)
	switch {
	case uptime < time.Minute:
		return fmt.Sprintf("%ds", int(uptime.Seconds()))
	case uptime < time.Hour:
		return fmt.Sprintf("%dm", int(uptime.Minutes()))
	default:
		return fmt.Sprintf("%dh %dm", int(uptime.Hours()), int(uptime.Minutes())%60)
	}
}
