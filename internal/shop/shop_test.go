package shop

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/zlkm/farmbot/internal/clock"
	"github.com/zlkm/farmbot/internal/game"
	"github.com/zlkm/farmbot/internal/game/gametest"
)

// world wires a fake client to a line hub. Balance queries are answered
// from a queue of reply lines; an empty queue leaves the query unanswered.
type world struct {
	clock  *clock.Fake
	client *gametest.Client
	lines  *game.LineHub
	logger *slog.Logger

	mu       sync.Mutex
	balances []string
	// consume clears the staging slot when the sell command is sent.
	consume bool
}

func newWorld(balances ...string) *world {
	w := &world{
		clock:    clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		client:   gametest.NewClient("farmer1", nil),
		lines:    game.NewLineHub(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		balances: balances,
		consume:  true,
	}
	w.client.OnChat = func(c *gametest.Client, line string) {
		switch line {
		case "/bal":
			w.mu.Lock()
			if len(w.balances) == 0 {
				w.mu.Unlock()
				return
			}
			reply := w.balances[0]
			if len(w.balances) > 1 {
				w.balances = w.balances[1:]
			}
			w.mu.Unlock()
			w.lines.Publish(reply)
		case "/sell hand":
			if w.consume {
				c.SetSlot(36, nil)
			}
		}
	}
	return w
}

func testSettings() Settings {
	s := DefaultSettings()
	s.SettleDelay = 0
	return s
}

func cactus(n int) *game.Item {
	return &game.Item{Name: "cactus", DisplayName: "Cactus", Count: n}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
