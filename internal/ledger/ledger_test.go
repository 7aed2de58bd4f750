package ledger

import (
	"context"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/zlkm/farmbot/internal/event"
)

func newLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := New(filepath.Join(t.TempDir(), "data", "farmbot.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestTotalsPerAgent(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	cycles := []Cycle{
		{ID: "a", Agent: "farmer1", Item: "cactus", ItemsSold: 64, Earned: 1000, EarnedKnown: true, StartedAt: base, FinishedAt: base.Add(time.Minute)},
		{ID: "b", Agent: "farmer1", Item: "cactus", ItemsSold: 10, StartedAt: base, FinishedAt: base.Add(2 * time.Minute)},
		{ID: "c", Agent: "farmer2", Item: "cactus", ItemsSold: 5, Earned: 12.5, EarnedKnown: true, StartedAt: base, FinishedAt: base.Add(3 * time.Minute)},
	}
	for _, c := range cycles {
		if err := l.Record(ctx, c); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	// Duplicate ids are ignored.
	if err := l.Record(ctx, cycles[0]); err != nil {
		t.Fatalf("Record duplicate: %v", err)
	}

	got, err := l.Totals(ctx, "farmer1")
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if got.Cycles != 2 || got.ItemsSold != 74 || got.Earned != 1000 || got.UnknownEarned != 1 {
		t.Fatalf("unexpected totals %+v", got)
	}
	if !got.LastSellAt.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("last sell = %s", got.LastSellAt)
	}

	all, err := l.Totals(ctx, "")
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if all.Cycles != 3 || all.Earned != 1012.5 {
		t.Fatalf("unexpected fleet totals %+v", all)
	}
}

func TestTotalsEmpty(t *testing.T) {
	l := newLedger(t)

	got, err := l.Totals(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if got.Cycles != 0 || !got.LastSellAt.IsZero() {
		t.Fatalf("unexpected totals %+v", got)
	}
}

func TestHandleRecordsSellEvents(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	if err := l.Handle(ctx, event.PayoutSent(event.Text("farmer1", "paid"), "zlkm_", 10)); err != nil {
		t.Fatalf("Handle payout: %v", err)
	}
	evt := event.SellCompleted(event.Text("farmer1", "sold"), "cycle-1", "cactus", 64, math.NaN(), false, now, now.Add(time.Second))
	if err := l.Handle(ctx, evt); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	recent, err := l.Recent(ctx, "farmer1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("recent = %d cycles, want 1", len(recent))
	}
	c := recent[0]
	if c.ID != "cycle-1" || c.ItemsSold != 64 || c.EarnedKnown || c.Earned != 0 {
		t.Fatalf("unexpected cycle %+v", c)
	}
	if !c.FinishedAt.Equal(now.Add(time.Second)) {
		t.Fatalf("finished at %s", c.FinishedAt)
	}
}
