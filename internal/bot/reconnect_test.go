package bot

import (
	"errors"
	"testing"
	"time"
)

func TestReconnectDelayGrowsLinearly(t *testing.T) {
	prev := time.Duration(0)
	for n := 1; n <= 5; n++ {
		d := ReconnectDelay(n, time.Minute)
		if d != time.Duration(n)*time.Minute {
			t.Fatalf("ReconnectDelay(%d) = %s", n, d)
		}
		if d < prev {
			t.Fatalf("delay shrank at attempt %d", n)
		}
		prev = d
	}
}

// disconnectTimes drops the connection n times, letting each scheduled
// reconnect fire except after the last drop.
func disconnectTimes(f *fixture, n int) {
	for i := 1; i <= n; i++ {
		f.dialer.Last().Handler().OnDisconnect("socket closed")
		if i < n {
			f.clock.Advance(ReconnectDelay(i, time.Minute))
		}
	}
}

func TestFourDisconnectsAreNotFatal(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	f.start(t)

	disconnectTimes(f, 4)

	if calls := f.fatalCalls(); len(calls) != 0 {
		t.Fatalf("fatal hook called after 4 disconnects: %v", calls)
	}
	if s := f.agent.Status(); s != ReconnectScheduled {
		t.Fatalf("status = %s, want %s", s, ReconnectScheduled)
	}
	if n := f.dialer.Dials(); n != 4 {
		t.Fatalf("dials = %d, want 4", n)
	}
}

func TestFiveDisconnectsAreFatal(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	f.start(t)

	disconnectTimes(f, 4)
	f.clock.Advance(ReconnectDelay(4, time.Minute))
	f.dialer.Last().Handler().OnDisconnect("socket closed")

	calls := f.fatalCalls()
	if len(calls) != 1 || calls[0] != 5 {
		t.Fatalf("fatal calls = %v, want [5]", calls)
	}
	if s := f.agent.Status(); s != Fatal {
		t.Fatalf("status = %s, want %s", s, Fatal)
	}

	f.clock.Advance(time.Hour)
	if n := f.dialer.Dials(); n != 5 {
		t.Fatalf("dials = %d after fatal, want 5", n)
	}
}

func TestAttemptsResetOnlyOnLogin(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	f.start(t)

	f.dialer.Last().Handler().OnDisconnect("socket closed")
	f.clock.Advance(time.Minute)
	if n := f.dialer.Dials(); n != 2 {
		t.Fatalf("dials = %d, want 2", n)
	}
	if a := f.attempts(); a != 1 {
		t.Fatalf("attempts = %d after reconnect, want 1", a)
	}

	f.dialer.Last().Handler().OnLogin()
	if a := f.attempts(); a != 0 {
		t.Fatalf("attempts = %d after login, want 0", a)
	}

	// With the counter reset the next reconnect uses the first delay again.
	f.dialer.Last().Handler().OnDisconnect("socket closed")
	f.clock.Advance(time.Minute)
	if n := f.dialer.Dials(); n != 3 {
		t.Fatalf("dials = %d, want 3", n)
	}
}

func TestFailedDialCountsAsDisconnect(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	f.dialer.Err = errors.New("connection refused")
	f.start(t)

	if a := f.attempts(); a != 1 {
		t.Fatalf("attempts = %d, want 1", a)
	}
	if f.dialer.Last() != nil {
		t.Fatal("no client should exist after a failed dial")
	}

	f.clock.Advance(time.Minute)
	if f.dialer.Last() == nil || f.dialer.Dials() != 2 {
		t.Fatalf("reconnect did not dial again, dials = %d", f.dialer.Dials())
	}
}

func TestDuplicateDisconnectIgnored(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	c := f.start(t)

	c.Handler().OnDisconnect("socket closed")
	c.Handler().OnDisconnect("socket closed again")

	if a := f.attempts(); a != 1 {
		t.Fatalf("attempts = %d, want 1", a)
	}
}

func TestStaleConnectionEventsIgnored(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	old := f.start(t)

	old.Handler().OnDisconnect("socket closed")
	f.clock.Advance(time.Minute)
	fresh := f.dialer.Last()
	if fresh == old {
		t.Fatal("reconnect should create a new client")
	}

	old.Handler().OnText(survivalLine)
	old.Handler().OnDisconnect("late close")

	if z := f.agent.Zone(); z.String() != "unknown" {
		t.Fatalf("zone = %s, stale line should be ignored", z)
	}
	if a := f.attempts(); a != 1 {
		t.Fatalf("attempts = %d, stale disconnect should be ignored", a)
	}
	if n := fresh.CountSent("/home"); n != 0 {
		t.Fatal("stale survival line reached the new connection")
	}
}

func TestReconnectResetsSessionState(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	c := f.start(t)
	h := c.Handler()
	h.OnText(lobbyLine)
	h.OnText(continuedLine)

	h.OnDisconnect("socket closed")
	if f.agent.join.Scheduled() {
		t.Fatal("pending zone switch should be cancelled on disconnect")
	}
	f.clock.Advance(time.Minute)

	if z := f.agent.Zone(); z.String() != "unknown" {
		t.Fatalf("zone = %s after reconnect, want unknown", z)
	}
	if f.agent.continued {
		t.Fatal("continuation should reset on reconnect")
	}
	if n := c.CountSent("/server survival"); n != 0 {
		t.Fatal("cancelled switch fired on the old connection")
	}
}
