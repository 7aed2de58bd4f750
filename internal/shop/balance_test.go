package shop

import (
	"context"
	"math"
	"testing"
	"time"
)

func TestParseBalance(t *testing.T) {
	tests := []struct {
		line  string
		want  float64
		known bool
	}{
		{"Balance: $1,234.56", 1234.56, true},
		{"Balance: $0", 0, true},
		{"You have 12,000 coins and 3 gems", 12000, true},
		{"no numbers here", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		b := ParseBalance(tt.line)
		if b.Raw != tt.line {
			t.Errorf("ParseBalance(%q).Raw = %q", tt.line, b.Raw)
		}
		if b.Known() != tt.known {
			t.Errorf("ParseBalance(%q).Known() = %v, want %v", tt.line, b.Known(), tt.known)
			continue
		}
		if tt.known && b.Value != tt.want {
			t.Errorf("ParseBalance(%q) = %v, want %v", tt.line, b.Value, tt.want)
		}
		if !tt.known && !math.IsNaN(b.Value) {
			t.Errorf("ParseBalance(%q) = %v, want NaN", tt.line, b.Value)
		}
	}
}

func TestFormatEarned(t *testing.T) {
	tests := []struct {
		amount float64
		known  bool
		want   string
	}{
		{1000, true, "$1,000.00"},
		{1234.5, true, "$1,234.50"},
		{0, true, "$0.00"},
		{math.NaN(), true, "unknown"},
		{5, false, "unknown"},
	}
	for _, tt := range tests {
		if got := FormatEarned(tt.amount, tt.known); got != tt.want {
			t.Errorf("FormatEarned(%v, %v) = %q, want %q", tt.amount, tt.known, got, tt.want)
		}
	}
}

func TestBalanceQueryTakesNextLine(t *testing.T) {
	w := newWorld("Balance: $42.10")
	tracker := NewBalanceTracker(w.client, w.lines, w.clock, w.logger, "/bal", 5*time.Second)

	b := tracker.Query(context.Background())
	if !b.Known() || b.Value != 42.10 || b.Raw != "Balance: $42.10" {
		t.Fatalf("unexpected balance %+v", b)
	}
	if w.clock.Pending() != 0 {
		t.Fatal("timeout timer should not linger")
	}
}

func TestBalanceQueryTimeout(t *testing.T) {
	w := newWorld()
	tracker := NewBalanceTracker(w.client, w.lines, w.clock, w.logger, "/bal", 5*time.Second)

	done := make(chan Balance, 1)
	go func() { done <- tracker.Query(context.Background()) }()

	w.clock.WaitForTimers(1)
	w.clock.Advance(5 * time.Second)

	select {
	case b := <-done:
		if b.Known() || b.Raw != "unknown" {
			t.Fatalf("expected unknown balance, got %+v", b)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("query did not time out")
	}
}
