package assistant

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zlkm/farmbot/internal/clock"
)

type stubGenerator struct {
	reply   string
	err     error
	gate    chan struct{}
	mu      sync.Mutex
	prompts []string
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.reply, g.err
}

func (g *stubGenerator) calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts...)
}

type chatLog struct {
	mu    sync.Mutex
	lines []string
}

func (c *chatLog) Chat(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
	return nil
}

func (c *chatLog) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func newAssistant(gen Generator, out Sender, clk clock.Clock) *Assistant {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Options{Name: "farmer1"}, gen, out, clk, logger)
}

func TestRepliesToMentionInChunks(t *testing.T) {
	clk := clock.NewFake(time.Now())
	gen := &stubGenerator{reply: "first\nsecond\nthird\nfourth"}
	out := &chatLog{}
	a := newAssistant(gen, out, clk)
	defer a.Dispose()

	a.HandleLine("Steve » just chatting")
	a.HandleLine("[VIP] Steve » farmer1 where do you farm?")

	waitUntil(t, func() bool { return len(out.sent()) == 1 })
	clk.WaitForTimers(1)
	clk.Advance(DefaultLineGap)
	waitUntil(t, func() bool { return len(out.sent()) == 2 })
	clk.WaitForTimers(1)
	clk.Advance(DefaultLineGap)
	waitUntil(t, func() bool { return !a.Busy() })

	if got := out.sent(); strings.Join(got, "|") != "first|second|third" {
		t.Fatalf("unexpected reply lines %q", got)
	}

	prompts := gen.calls()
	if len(prompts) != 1 {
		t.Fatalf("expected one generation, got %d", len(prompts))
	}
	if !strings.Contains(prompts[0], "Steve: just chatting") || !strings.Contains(prompts[0], "Player question: where do you farm?") {
		t.Fatalf("prompt is missing history or question:\n%s", prompts[0])
	}
}

func TestOneGenerationInFlight(t *testing.T) {
	gen := &stubGenerator{reply: "ok", gate: make(chan struct{})}
	out := &chatLog{}
	a := newAssistant(gen, out, clock.Real())
	defer a.Dispose()

	a.HandleLine("Steve » farmer1 one")
	waitUntil(t, func() bool { return len(gen.calls()) == 1 })
	a.HandleLine("Alex » farmer1 two")

	close(gen.gate)
	waitUntil(t, func() bool { return !a.Busy() })

	if n := len(gen.calls()); n != 1 {
		t.Fatalf("expected one generation, got %d", n)
	}
}

func TestGenerationErrorSendsNothing(t *testing.T) {
	gen := &stubGenerator{err: errors.New("quota exceeded")}
	out := &chatLog{}
	a := newAssistant(gen, out, clock.Real())

	a.HandleLine("Steve » farmer1 hello?")
	a.Dispose()

	if len(out.sent()) != 0 {
		t.Fatalf("unexpected chat %q", out.sent())
	}
}

func TestHistoryIsBounded(t *testing.T) {
	a := newAssistant(&stubGenerator{}, &chatLog{}, clock.Real())
	for i := 0; i < DefaultHistorySize+20; i++ {
		a.HandleLine("Steve » filler")
	}
	if got := len(a.remember("last")); got != DefaultHistorySize {
		t.Fatalf("history size = %d, want %d", got, DefaultHistorySize)
	}
}

func TestDisposeCancelsReply(t *testing.T) {
	gen := &stubGenerator{reply: "late", gate: make(chan struct{})}
	out := &chatLog{}
	a := newAssistant(gen, out, clock.Real())

	a.HandleLine("Steve » farmer1 are you there")
	waitUntil(t, func() bool { return len(gen.calls()) == 1 })
	a.Dispose()

	if len(out.sent()) != 0 {
		t.Fatal("disposed assistant must not reply")
	}
	a.HandleLine("Steve » farmer1 again")
	if len(gen.calls()) != 1 {
		t.Fatal("disposed assistant must ignore new lines")
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
