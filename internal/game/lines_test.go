package game

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/zlkm/farmbot/internal/clock"
)

func TestSubscriptionReceivesMatchingLines(t *testing.T) {
	hub := NewLineHub()
	sub := hub.Subscribe(func(l string) bool { return strings.Contains(l, "$") }, 2)

	hub.Publish("hello")
	hub.Publish("Balance: $10")
	hub.Publish("Balance: $20")
	hub.Publish("Balance: $30")

	var got []string
	for l := range sub.C {
		got = append(got, l)
	}
	if len(got) != 2 || got[0] != "Balance: $10" || got[1] != "Balance: $20" {
		t.Fatalf("unexpected lines %v", got)
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	hub := NewLineHub()
	sub := hub.Subscribe(nil, 5)
	hub.Close()

	if _, ok := <-sub.C; ok {
		t.Fatal("expected closed channel")
	}

	late := hub.Subscribe(nil, 1)
	if _, ok := <-late.C; ok {
		t.Fatal("subscription on closed hub should be closed")
	}
	sub.Cancel()
}

func TestAwaitTimeout(t *testing.T) {
	clk := clock.NewFake(time.Now())
	hub := NewLineHub()
	sub := hub.Subscribe(nil, 1)

	result := make(chan bool, 1)
	go func() {
		_, ok := Await(context.Background(), clk, sub, 5*time.Second)
		result <- ok
	}()

	clk.WaitForTimers(1)
	clk.Advance(5 * time.Second)

	select {
	case ok := <-result:
		if ok {
			t.Fatal("expected timeout")
		}
	case <-time.After(time.Second):
		t.Fatal("Await did not return")
	}
}

func TestAwaitLine(t *testing.T) {
	clk := clock.NewFake(time.Now())
	hub := NewLineHub()
	sub := hub.Subscribe(nil, 1)
	hub.Publish("Balance: $5")

	line, ok := Await(context.Background(), clk, sub, 5*time.Second)
	if !ok || line != "Balance: $5" {
		t.Fatalf("got %q %v", line, ok)
	}
	if clk.Pending() != 0 {
		t.Fatalf("timeout timer should be stopped, %d pending", clk.Pending())
	}
}
