package bot

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zlkm/farmbot/internal/event"
)

type AgentStatus string

const (
	NotStarted         AgentStatus = "Not started"
	Connecting         AgentStatus = "Connecting"
	Connected          AgentStatus = "Connected"
	InLobby            AgentStatus = "In lobby"
	Farming            AgentStatus = "Farming"
	ReconnectScheduled AgentStatus = "Reconnect scheduled"
	Fatal              AgentStatus = "Fatal"
	Stopped            AgentStatus = "Stopped"
)

type Stats struct {
	AgentStatus       AgentStatus
	Zone              string
	StartedAt         time.Time
	ConnectedAt       time.Time
	ReconnectAttempts int
	JoinAttempts      int
	AssistantEnabled  bool
	SellCycles        int
	ItemsSold         int
	Earned            float64
	Paid              float64
	LastSellAt        time.Time
}

// StatsHandler accumulates the sell and payout events of one agent.
type StatsHandler struct {
	name   string
	logger *slog.Logger
	mu     sync.RWMutex
	stats  Stats
}

func NewStatsHandler(name string, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{name: name, logger: logger}
}

func (h *StatsHandler) Handle(_ context.Context, e event.Event) error {
	if e.Agent() != h.name {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	switch evt := e.(type) {
	case event.SellCompletedEvent:
		h.stats.SellCycles++
		h.stats.ItemsSold += evt.ItemsSold
		if evt.EarnedKnown {
			h.stats.Earned += evt.Earned
		}
		h.stats.LastSellAt = evt.FinishedAt
	case event.PayoutSentEvent:
		h.stats.Paid += evt.Amount
	}
	return nil
}

func (h *StatsHandler) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}
