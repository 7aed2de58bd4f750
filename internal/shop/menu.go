package shop

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/zlkm/farmbot/internal/clock"
	"github.com/zlkm/farmbot/internal/game"
)

type MenuKind int

const (
	MenuUnknown MenuKind = iota
	MenuCategory
	MenuSellConfirm
)

func (k MenuKind) String() string {
	switch k {
	case MenuCategory:
		return "category"
	case MenuSellConfirm:
		return "sell-confirm"
	default:
		return "unknown"
	}
}

// MenuDriver clicks through the shop windows the server pushes: the item
// category page and the sell confirmation page.
type MenuDriver struct {
	cfg     Settings
	client  game.Client
	lines   *game.LineHub
	logger  *slog.Logger
	item    Matcher
	confirm Matcher
	balance *BalanceTracker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMenuDriver(cfg Settings, client game.Client, lines *game.LineHub, clk clock.Clock, logger *slog.Logger) (*MenuDriver, error) {
	item, err := NewMatcher(cfg.Item, cfg.ItemPattern)
	if err != nil {
		return nil, err
	}
	confirm, err := NewMatcher(cfg.ConfirmItem, cfg.ConfirmPattern)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &MenuDriver{
		cfg:     cfg,
		client:  client,
		lines:   lines,
		logger:  logger,
		item:    item,
		confirm: confirm,
		balance: NewBalanceTracker(client, lines, clk, logger, cfg.BalanceCommand, cfg.BalanceTimeout),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Classify maps a flattened menu title to the page it belongs to.
func (d *MenuDriver) Classify(title string) MenuKind {
	if title == d.cfg.CategoryTitle {
		return MenuCategory
	}
	for _, t := range d.cfg.ConfirmTitles {
		if t != "" && strings.Contains(title, t) {
			return MenuSellConfirm
		}
	}
	return MenuUnknown
}

// Handle reacts to an opened menu. Misses are logged, never returned;
// the error only reports a failed click.
func (d *MenuDriver) Handle(ctx context.Context, menu game.Menu) error {
	title := game.FlattenText(menu.Title)
	kind := d.Classify(title)
	d.logger.Debug("Menu opened", slog.Int("menu", menu.ID), slog.String("title", title), slog.String("kind", kind.String()))

	switch kind {
	case MenuCategory:
		return d.handleCategory(ctx, menu)
	case MenuSellConfirm:
		return d.handleConfirm(ctx, menu)
	default:
		return nil
	}
}

func (d *MenuDriver) handleCategory(ctx context.Context, menu game.Menu) error {
	slot, _ := d.item.Find(menu.Slots)
	if slot < 0 {
		d.logger.Info("Category menu has no matching item, not clicking", slog.String("item", d.cfg.Item))
		return nil
	}

	d.logger.Info("Opening item page", slog.Int("menu", menu.ID), slog.Int("slot", slot))
	if err := d.client.ClickMenu(ctx, menu.ID, slot, game.SecondaryClick); err != nil {
		return fmt.Errorf("clicking %s in category menu: %w", d.cfg.Item, err)
	}
	d.capture(d.cfg.CaptureLines)
	return nil
}

func (d *MenuDriver) handleConfirm(ctx context.Context, menu game.Menu) error {
	slot, _ := d.confirm.Find(menu.Slots)
	if slot < 0 {
		d.logger.Info("Sell menu has no confirm item, not clicking")
		return nil
	}

	d.logger.Info("Confirming sale", slog.Int("menu", menu.ID), slog.Int("slot", slot))
	if err := d.client.ClickMenu(ctx, menu.ID, slot, game.PrimaryClick); err != nil {
		return fmt.Errorf("clicking confirm item: %w", err)
	}

	left := d.item.Count(d.client.Slots())
	b := d.balance.Query(ctx)
	whisper := fmt.Sprintf("/w %s Sold %s. [%s, inventory %s: %d]", d.cfg.Recipient, d.cfg.Item, b.Raw, d.cfg.Item, left)
	d.logger.Info("Sending sale whisper", slog.String("whisper", whisper))
	if err := d.client.Chat(whisper); err != nil {
		return fmt.Errorf("sending sale whisper: %w", err)
	}
	return nil
}

// capture logs the next n incoming lines.
func (d *MenuDriver) capture(n int) {
	if n <= 0 {
		return
	}
	sub := d.lines.Subscribe(nil, n)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer sub.Cancel()

		seen := 0
		for {
			select {
			case line, ok := <-sub.C:
				if !ok {
					d.logger.Debug("Finished capturing chat after click", slog.Int("lines", seen))
					return
				}
				seen++
				d.logger.Info("Captured chat after click", slog.String("line", line))
			case <-d.ctx.Done():
				return
			}
		}
	}()
}

// Context is cancelled by Dispose; menu handling started by the agent runs
// under it.
func (d *MenuDriver) Context() context.Context {
	return d.ctx
}

func (d *MenuDriver) Dispose() {
	d.cancel()
	d.wg.Wait()
}
