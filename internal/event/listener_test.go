package event

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestListenerDispatchesToAllHandlers(t *testing.T) {
	l := NewListener(slog.New(slog.NewTextHandler(io.Discard, nil)))

	got := make(chan string, 4)
	l.Register(func(_ context.Context, e Event) error {
		got <- "first:" + e.Agent()
		return errors.New("handler failure must not stop dispatch")
	})
	l.Register(func(_ context.Context, e Event) error {
		if z, ok := e.(ZoneChangedEvent); ok {
			got <- "second:" + z.To
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Listen(ctx)

	l.Send(ZoneChanged(Text("worker_1", "zone changed"), "lobby", "survival"))

	want := []string{"first:worker_1", "second:survival"}
	for _, w := range want {
		select {
		case g := <-got:
			if g != w {
				t.Fatalf("expected %q, got %q", w, g)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %q", w)
		}
	}
}

func TestSendOnNilListener(t *testing.T) {
	var l *Listener
	l.Send(Text("a", "b"))
}
