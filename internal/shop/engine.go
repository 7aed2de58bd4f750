// Package shop runs the periodic sell cycle, the payout that follows it and
// the menu clicks for the server's shop windows.
package shop

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/zlkm/farmbot/internal/clock"
	"github.com/zlkm/farmbot/internal/event"
	"github.com/zlkm/farmbot/internal/game"
)

type Publisher interface {
	Send(e event.Event)
}

type discard struct{}

func (discard) Send(event.Event) {}

// CycleResult describes one finished sell cycle.
type CycleResult struct {
	ID          string
	ItemsSold   int
	Before      Balance
	After       Balance
	Earned      float64
	EarnedKnown bool
	StartedAt   time.Time
	FinishedAt  time.Time
	// Interrupted is set when the drain loop stopped before every stack
	// was handed to the sell command.
	Interrupted bool
}

// Engine owns the sell ticker of one connection. It is rebuilt on every
// reconnect and must be disposed when its connection ends.
type Engine struct {
	agent     string
	cfg       Settings
	client    game.Client
	clock     clock.Clock
	logger    *slog.Logger
	matcher   Matcher
	balance   *BalanceTracker
	publisher Publisher
	// inZone is re-checked on every tick.
	inZone func() bool

	selling atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	running  bool
	disposed bool
	timer    *clock.Timer
	wg       sync.WaitGroup
}

type EngineOptions struct {
	Agent     string
	Settings  Settings
	Client    game.Client
	Lines     *game.LineHub
	Clock     clock.Clock
	Logger    *slog.Logger
	Publisher Publisher
	InZone    func() bool
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	m, err := NewMatcher(opts.Settings.Item, opts.Settings.ItemPattern)
	if err != nil {
		return nil, err
	}
	inZone := opts.InZone
	if inZone == nil {
		inZone = func() bool { return true }
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = discard{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		agent:     opts.Agent,
		cfg:       opts.Settings,
		client:    opts.Client,
		clock:     opts.Clock,
		logger:    opts.Logger,
		matcher:   m,
		balance:   NewBalanceTracker(opts.Client, opts.Lines, opts.Clock, opts.Logger, opts.Settings.BalanceCommand, opts.Settings.BalanceTimeout),
		publisher: publisher,
		inZone:    inZone,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

func (e *Engine) Balance() *BalanceTracker { return e.balance }

func (e *Engine) Matcher() Matcher { return e.matcher }

// Resume starts the sell ticker if it is not running.
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running || e.disposed {
		return
	}
	e.running = true
	e.logger.Info("Starting sell loop", slog.Duration("period", e.cfg.Period))
	e.scheduleLocked()
}

// Suspend stops the ticker. A cycle already in flight keeps running.
func (e *Engine) Suspend() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	e.running = false
	e.timer.Stop()
	e.timer = nil
	e.logger.Info("Sell loop suspended")
}

// Dispose stops the ticker for good and cancels any cycle in flight.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	e.running = false
	e.timer.Stop()
	e.timer = nil
	e.mu.Unlock()

	e.cancel()
}

// Wait blocks until in-flight cycle goroutines have returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Selling reports whether a cycle is in flight.
func (e *Engine) Selling() bool {
	return e.selling.Load()
}

func (e *Engine) scheduleLocked() {
	e.timer = e.clock.AfterFunc(e.cfg.Period, e.tick)
}

func (e *Engine) tick() {
	e.mu.Lock()
	if !e.running || e.disposed {
		e.mu.Unlock()
		return
	}
	e.scheduleLocked()
	e.mu.Unlock()

	if !e.inZone() {
		return
	}
	if !e.selling.CompareAndSwap(false, true) {
		e.logger.Info("Sell cycle already running, skipping tick")
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.selling.Store(false)
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("Sell cycle panicked", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			}
		}()

		if _, err := e.RunCycle(e.ctx); err != nil {
			e.logger.Error("Sell cycle failed", slog.Any("error", err))
		}
	}()
}

// RunCycle sells every matching stack, reports the earnings and pays the
// balance out. A cycle with nothing to sell returns a zero result.
func (e *Engine) RunCycle(ctx context.Context) (CycleResult, error) {
	res := CycleResult{ID: uuid.NewString(), StartedAt: e.clock.Now()}
	logger := e.logger.With(slog.String("cycle", res.ID))

	total := e.matcher.Count(e.client.Slots())
	if total <= 0 {
		logger.Info("No items to sell, skipping cycle", slog.String("item", e.cfg.Item))
		return res, nil
	}
	logger.Info("Starting sell cycle", slog.String("item", e.cfg.Item), slog.Int("count", total))

	res.Before = e.balance.Query(ctx)
	remaining, drainErr := e.drain(ctx, logger, total)
	res.ItemsSold = total - max(remaining, 0)
	res.Interrupted = remaining > 0
	if drainErr != nil {
		logger.Warn("Sell drain stopped early", slog.Int("remaining", remaining), slog.Any("error", drainErr))
	}

	if ctx.Err() != nil {
		// The connection is gone; only report what was already handed over.
		res.FinishedAt = e.clock.Now()
		logger.Info("Sell cycle cancelled, skipping summary and payout", slog.Int("sold", res.ItemsSold))
		if res.ItemsSold > 0 {
			e.publishCompleted(res)
		}
		return res, nil
	}

	res.After = e.balance.Query(ctx)
	if res.Before.Known() && res.After.Known() {
		res.Earned = res.After.Value - res.Before.Value
		res.EarnedKnown = true
	}
	res.FinishedAt = e.clock.Now()

	summary := fmt.Sprintf("/w %s %s sold! - Earned: %s", e.cfg.Recipient, e.cfg.Label, FormatEarned(res.Earned, res.EarnedKnown))
	logger.Info("Sell cycle finished", slog.Int("sold", res.ItemsSold), slog.String("summary", summary))
	if err := e.client.Chat(summary); err != nil {
		logger.Warn("Failed to send sell summary", slog.Any("error", err))
	}

	e.publishCompleted(res)

	if err := e.PayAll(ctx); err != nil {
		logger.Warn("Payout failed", slog.Any("error", err))
	}

	return res, nil
}

func (e *Engine) publishCompleted(res CycleResult) {
	e.publisher.Send(event.SellCompleted(
		event.Text(e.agent, fmt.Sprintf("Sold %d %s, earned %s", res.ItemsSold, e.cfg.Item, FormatEarned(res.Earned, res.EarnedKnown))),
		res.ID, e.cfg.Item, res.ItemsSold, res.Earned, res.EarnedKnown, res.StartedAt, res.FinishedAt,
	))
}

// drain hands stacks to the sell command until the snapshot count is used
// up or no stack is left. It returns the count still unsold.
func (e *Engine) drain(ctx context.Context, logger *slog.Logger, remaining int) (int, error) {
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return remaining, err
		}

		slot, count := e.matcher.Find(e.client.Slots())
		if slot < 0 {
			logger.Debug("No more stacks found", slog.Int("remaining", remaining))
			return remaining, nil
		}

		if slot != e.cfg.StagingSlot {
			if err := e.client.MoveSlot(ctx, slot, e.cfg.StagingSlot); err != nil {
				return remaining, fmt.Errorf("moving slot %d to %d: %w", slot, e.cfg.StagingSlot, err)
			}
		}
		if e.client.QuickBarSlot() != e.cfg.HotbarSlot {
			if err := e.client.SetQuickBarSlot(e.cfg.HotbarSlot); err != nil {
				return remaining, fmt.Errorf("selecting hotbar slot %d: %w", e.cfg.HotbarSlot, err)
			}
		}
		if err := e.client.Chat(e.cfg.SellCommand); err != nil {
			return remaining, fmt.Errorf("sending sell command: %w", err)
		}
		remaining -= count

		select {
		case <-e.clock.After(e.cfg.SettleDelay):
		case <-ctx.Done():
			return remaining, ctx.Err()
		}
	}
	return remaining, nil
}

// PayAll sends the whole current balance to the recipient. Unknown or
// non-positive balances are skipped without error.
func (e *Engine) PayAll(ctx context.Context) error {
	b := e.balance.Query(ctx)
	if !b.Known() || b.Value <= 0 {
		e.logger.Info("Balance is not positive, skipping payout", slog.String("raw", b.Raw))
		return nil
	}

	cmd := fmt.Sprintf("%s %s %.2f", e.cfg.PayCommand, e.cfg.Recipient, b.Value)
	e.logger.Info("Paying out balance", slog.String("recipient", e.cfg.Recipient), slog.Float64("amount", b.Value))
	if err := e.client.Chat(cmd); err != nil {
		return fmt.Errorf("sending pay command: %w", err)
	}

	e.publisher.Send(event.PayoutSent(
		event.Text(e.agent, fmt.Sprintf("Paid %.2f to %s", b.Value, e.cfg.Recipient)),
		e.cfg.Recipient, b.Value,
	))
	return nil
}
