package discord

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/zlkm/farmbot/internal/bot"
	"github.com/zlkm/farmbot/internal/config"
	"github.com/zlkm/farmbot/internal/ledger"
)

// Fleet is the part of the agent manager the bot drives.
type Fleet interface {
	List() []string
	Status(name string) (bot.Stats, bool)
	SetAssistant(name string, enabled bool, reason string) error
}

// Earnings reads persisted sell totals. An empty agent means the fleet.
type Earnings interface {
	Totals(ctx context.Context, agent string) (ledger.Totals, error)
}

type publishFlags struct {
	sell      bool
	payout    bool
	zone      bool
	reconnect bool
	fatal     bool
	assistant bool
}

type Bot struct {
	discordSession *discordgo.Session
	channelID      string
	admins         []string
	fleet          Fleet
	earnings       Earnings
	publish        publishFlags
	useWebhook     bool
	webhookClient  *webhookClient
	logger         *slog.Logger
}

// NewBot builds the bot from the discord section of cfg. earnings may be nil
// when the ledger is disabled.
func NewBot(cfg *config.FarmbotCfg, fleet Fleet, earnings Earnings, logger *slog.Logger) (*Bot, error) {
	dc := cfg.Discord
	botInstance := &Bot{
		channelID:  dc.ChannelID,
		admins:     dc.BotAdmins,
		fleet:      fleet,
		earnings:   earnings,
		useWebhook: dc.UseWebhook,
		logger:     logger,
		publish: publishFlags{
			sell:      dc.EnableSellMessages,
			payout:    dc.EnablePayoutMessages,
			zone:      dc.EnableZoneMessages,
			reconnect: dc.EnableReconnectMessages,
			fatal:     dc.EnableFatalMessages,
			assistant: dc.EnableAssistantMessages,
		},
	}

	if dc.UseWebhook {
		if strings.TrimSpace(dc.WebhookURL) == "" {
			return nil, fmt.Errorf("webhook URL is required when using webhook mode")
		}
		botInstance.webhookClient = newWebhookClient(dc.WebhookURL)
		return botInstance, nil
	}

	dg, err := discordgo.New("Bot " + dc.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}
	botInstance.discordSession = dg

	return botInstance, nil
}

func (b *Bot) Start(ctx context.Context) error {
	if b.useWebhook {
		<-ctx.Done()
		return nil
	}

	b.discordSession.AddHandler(b.onMessageCreated)
	// MESSAGE_CONTENT is required to read commands.
	b.discordSession.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	if err := b.discordSession.Open(); err != nil {
		return fmt.Errorf("error opening connection: %w", err)
	}

	<-ctx.Done()

	return b.discordSession.Close()
}

func (b *Bot) onMessageCreated(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}
	if !slices.Contains(b.admins, m.Author.ID) {
		return
	}
	if !strings.HasPrefix(m.Content, "!") {
		return
	}

	r := b.handleCommand(context.Background(), m.Content)
	var err error
	if r.embed != nil {
		_, err = s.ChannelMessageSendEmbed(m.ChannelID, r.embed)
	} else {
		_, err = s.ChannelMessageSend(m.ChannelID, r.text)
	}
	if err != nil {
		b.logger.Warn("Error answering Discord command", slog.String("command", m.Content), slog.Any("error", err))
	}
}
