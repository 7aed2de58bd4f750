package telegram

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/zlkm/farmbot/internal/bot"
	"github.com/zlkm/farmbot/internal/ledger"
)

type fakeFleet map[string]bot.Stats

func (f fakeFleet) List() []string {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	return names
}

func (f fakeFleet) Status(name string) (bot.Stats, bool) {
	s, ok := f[name]
	return s, ok
}

type fakeEarnings struct {
	totals ledger.Totals
	err    error
}

func (f fakeEarnings) Totals(context.Context, string) (ledger.Totals, error) {
	return f.totals, f.err
}

func newTestBot(fleet Fleet, earnings Earnings) *Bot {
	return &Bot{fleet: fleet, earnings: earnings, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestStatusCommand(t *testing.T) {
	b := newTestBot(fakeFleet{"farmer1": {AgentStatus: bot.InLobby, Zone: "lobby"}}, nil)

	got, ok := b.answer(context.Background(), "Status")
	if !ok || got != "farmer1: In lobby (lobby)" {
		t.Fatalf("answer = %q, %v", got, ok)
	}

	if got, _ := newTestBot(fakeFleet{}, nil).answer(context.Background(), "/status"); got != "No agents running." {
		t.Fatalf("answer = %q", got)
	}
}

func TestEarningsCommand(t *testing.T) {
	b := newTestBot(fakeFleet{}, fakeEarnings{totals: ledger.Totals{Cycles: 2, ItemsSold: 1200, Earned: 2500}})

	got, ok := b.answer(context.Background(), "earnings farmer1")
	if !ok || got != "Earnings (farmer1): $2,500.00 from 1,200 items in 2 cycles" {
		t.Fatalf("answer = %q, %v", got, ok)
	}

	b = newTestBot(fakeFleet{}, fakeEarnings{err: errors.New("locked")})
	if got, _ := b.answer(context.Background(), "earnings"); got != "Could not read earnings: locked" {
		t.Fatalf("answer = %q", got)
	}

	b = newTestBot(fakeFleet{}, nil)
	if got, _ := b.answer(context.Background(), "earnings"); got != "Earnings are not recorded, enable the ledger." {
		t.Fatalf("answer = %q", got)
	}
}

func TestUnknownTextIgnored(t *testing.T) {
	b := newTestBot(fakeFleet{}, nil)
	if _, ok := b.answer(context.Background(), "hello there"); ok {
		t.Fatal("plain chat should be ignored")
	}
}
