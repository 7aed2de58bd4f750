// Package join schedules zone-switch commands with a linear backoff so an
// agent stuck outside its target zone does not flood chat.
package join

import (
	"log/slog"
	"time"

	"github.com/zlkm/farmbot/internal/clock"
)

const DefaultStep = 60 * time.Second

// Hooks connect the sequencer to its agent.
type Hooks struct {
	// AtTarget reports whether the agent is already in the target zone.
	AtTarget func() bool
	// Live reports whether the connection can accept commands.
	Live func() bool
	// Send issues the zone-switch command.
	Send func() error
	// Guard wraps the timer callback, typically to serialize it with the
	// agent's other handlers. A nil Guard runs the callback directly.
	Guard func(fn func())
}

// Sequencer is not safe for concurrent use; every method and the fired
// callback must be serialized by the caller (see Hooks.Guard).
type Sequencer struct {
	clock  clock.Clock
	logger *slog.Logger
	hooks  Hooks
	step   time.Duration

	attempts  int
	scheduled bool
	timer     *clock.Timer
	skipped   int

	// gen invalidates callbacks whose timer was stopped too late.
	gen uint64
}

func New(clk clock.Clock, logger *slog.Logger, step time.Duration, hooks Hooks) *Sequencer {
	if step <= 0 {
		step = DefaultStep
	}
	if hooks.Guard == nil {
		hooks.Guard = func(fn func()) { fn() }
	}
	return &Sequencer{clock: clk, logger: logger, hooks: hooks, step: step}
}

// Backoff returns the delay for the n-th attempt: nothing for the first,
// step×n afterwards.
func Backoff(n int, step time.Duration) time.Duration {
	if n <= 1 {
		return 0
	}
	return step * time.Duration(n)
}

// RequestSwitch schedules one switch attempt unless the agent is already at
// the target or an attempt is pending. minDelay raises the backoff delay
// when the caller needs the server to settle first.
func (s *Sequencer) RequestSwitch(reason string, minDelay time.Duration) {
	if s.hooks.AtTarget() {
		return
	}
	if s.scheduled {
		s.skipped++
		s.logger.Debug("Zone switch already scheduled, skipping request", slog.String("reason", reason))
		return
	}

	s.attempts++
	attempt := s.attempts
	delay := max(Backoff(attempt, s.step), minDelay)
	s.scheduled = true
	s.gen++
	gen := s.gen

	s.logger.Info("Scheduling zone switch",
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay),
		slog.String("reason", reason),
	)

	s.timer = s.clock.AfterFunc(delay, func() {
		s.hooks.Guard(func() { s.fire(gen, attempt, reason) })
	})
}

func (s *Sequencer) fire(gen uint64, attempt int, reason string) {
	if gen != s.gen {
		return
	}
	s.scheduled = false
	s.timer = nil

	if !s.hooks.Live() {
		s.logger.Info("Skipping zone switch, connection not live", slog.Int("attempt", attempt))
		return
	}
	if s.hooks.AtTarget() {
		s.logger.Info("Skipping zone switch, already at target", slog.Int("attempt", attempt))
		return
	}

	s.logger.Info("Sending zone switch", slog.Int("attempt", attempt), slog.String("reason", reason))
	if err := s.hooks.Send(); err != nil {
		s.logger.Warn("Zone switch command failed", slog.Int("attempt", attempt), slog.Any("error", err))
	}
}

// Arrived resets the backoff after the target zone was reached.
func (s *Sequencer) Arrived() {
	s.Stop()
	if s.attempts > 0 {
		s.logger.Info("Resetting zone switch backoff after successful join", slog.Int("attempts", s.attempts))
	}
	s.attempts = 0
}

// Stop cancels the pending attempt without touching the attempt counter.
func (s *Sequencer) Stop() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.scheduled = false
	s.gen++
}

func (s *Sequencer) Attempts() int { return s.attempts }
func (s *Sequencer) Scheduled() bool { return s.scheduled }

// Skipped counts requests dropped because an attempt was already pending.
func (s *Sequencer) Skipped() int { return s.skipped }
