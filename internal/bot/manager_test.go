package bot

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/zlkm/farmbot/internal/clock"
	"github.com/zlkm/farmbot/internal/config"
	"github.com/zlkm/farmbot/internal/game/gametest"
)

type exitRecorder struct {
	mu      sync.Mutex
	codes   []int
	flushes int
}

func (r *exitRecorder) exit(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, code)
}

func (r *exitRecorder) flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
}

func newTestManager(names ...string) (*Manager, *gametest.Dialer, *clock.Fake, *exitRecorder) {
	cfg := &config.Config{Farmbot: config.Default()}
	for _, n := range names {
		cfg.Agents = append(cfg.Agents, &config.AgentCfg{Name: n, Enabled: true, Username: n, Password: "secret", HomeCommand: "/home"})
	}
	dialer := &gametest.Dialer{}
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	rec := &exitRecorder{}

	mng := NewManager(ManagerOptions{
		Config: cfg,
		Dialer: dialer,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:  clk,
		Flush:  rec.flush,
		Exit:   rec.exit,
	})
	return mng, dialer, clk, rec
}

func TestManagerStaggersStartup(t *testing.T) {
	mng, dialer, clk, _ := newTestManager("farmer1", "farmer2")
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mng.Run(ctx) }()

	waitFor(t, func() bool { return dialer.Dials() == 1 })
	// The first agent's watchdog plus the stagger wait.
	clk.WaitForTimers(2)
	if n := dialer.Dials(); n != 1 {
		t.Fatalf("dials = %d before stagger elapsed", n)
	}

	clk.Advance(5 * time.Second)
	waitFor(t, func() bool { return dialer.Dials() == 2 })

	waitFor(t, func() bool { return len(mng.List()) == 2 })
	if got := mng.List(); got[0] != "farmer1" || got[1] != "farmer2" {
		t.Fatalf("List() = %v", got)
	}
	if s, ok := mng.Status("farmer2"); !ok || s.AgentStatus != Connected {
		t.Fatalf("Status(farmer2) = %+v, %v", s, ok)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, c := range dialer.Clients() {
		if !c.Closed() {
			t.Fatal("client left open after shutdown")
		}
	}
	if len(mng.List()) != 0 {
		t.Fatal("agents left running after shutdown")
	}
}

func TestManagerRejectsDuplicateStart(t *testing.T) {
	mng, _, _, _ := newTestManager("farmer1")
	defer mng.StopAll()

	if err := mng.Start(context.Background(), "farmer1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := mng.Start(context.Background(), "farmer1"); err == nil {
		t.Fatal("expected error on duplicate start")
	}
	if err := mng.Start(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for unknown agent")
	}
}

func TestManagerExitsOnFatalAgent(t *testing.T) {
	mng, dialer, clk, rec := newTestManager("farmer1")
	defer mng.StopAll()

	if err := mng.Start(context.Background(), "farmer1"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 1; i <= 5; i++ {
		dialer.Last().Handler().OnDisconnect("socket closed")
		clk.Advance(ReconnectDelay(i, time.Minute))
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.codes) != 1 || rec.codes[0] != 1 {
		t.Fatalf("exit codes = %v, want [1]", rec.codes)
	}
	if rec.flushes != 1 {
		t.Fatalf("flushes = %d, want 1", rec.flushes)
	}
}
