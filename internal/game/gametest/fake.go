// Package gametest provides in-memory game.Client and game.Dialer fakes.
package gametest

import (
	"context"
	"sync"

	"github.com/zlkm/farmbot/internal/game"
)

const InventorySize = 45

type Click struct {
	MenuID int
	Slot   int
	Kind   game.ClickKind
}

// Client records everything sent through it. Inventory moves swap slots.
type Client struct {
	// OnChat runs after a line is recorded, outside the client lock. Tests
	// use it to answer commands such as /bal or to consume sold stacks.
	OnChat func(c *Client, line string)
	// MoveErr, when set, is returned by every MoveSlot call.
	MoveErr error
	// MoveGate, when set, blocks MoveSlot until it receives or ctx ends.
	MoveGate chan struct{}
	ClickErr error

	mu        sync.Mutex
	username  string
	handler   game.Handler
	connected bool
	closed    bool
	slots     []*game.Item
	quickBar  int
	chat      []string
	clicks    []Click
	moves     [][2]int
}

func NewClient(username string, h game.Handler) *Client {
	return &Client{
		username:  username,
		handler:   h,
		connected: true,
		slots:     make([]*game.Item, InventorySize),
	}
}

func (c *Client) Handler() game.Handler { return c.handler }

func (c *Client) Username() string { return c.username }

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && !c.closed
}

func (c *Client) SetConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Client) Chat(line string) error {
	c.mu.Lock()
	if c.closed || !c.connected {
		c.mu.Unlock()
		return game.ErrNotConnected
	}
	c.chat = append(c.chat, line)
	hook := c.OnChat
	c.mu.Unlock()

	if hook != nil {
		hook(c, line)
	}
	return nil
}

// Sent returns a copy of every chat line sent so far.
func (c *Client) Sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.chat...)
}

// CountSent returns how many sent lines equal line.
func (c *Client) CountSent(line string) int {
	n := 0
	for _, l := range c.Sent() {
		if l == line {
			n++
		}
	}
	return n
}

func (c *Client) SetSlot(i int, it *game.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slots[i] = it
}

func (c *Client) Slots() []*game.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*game.Item, len(c.slots))
	for i, it := range c.slots {
		if it != nil {
			cp := *it
			out[i] = &cp
		}
	}
	return out
}

func (c *Client) MoveSlot(ctx context.Context, from, to int) error {
	if c.MoveGate != nil {
		select {
		case <-c.MoveGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if c.MoveErr != nil {
		return c.MoveErr
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return game.ErrNotConnected
	}
	c.slots[from], c.slots[to] = c.slots[to], c.slots[from]
	c.moves = append(c.moves, [2]int{from, to})
	return nil
}

func (c *Client) Moves() [][2]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][2]int(nil), c.moves...)
}

func (c *Client) QuickBarSlot() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quickBar
}

func (c *Client) SetQuickBarSlot(slot int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quickBar = slot
	return nil
}

func (c *Client) ClickMenu(_ context.Context, menuID int, slot int, kind game.ClickKind) error {
	if c.ClickErr != nil {
		return c.ClickErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clicks = append(c.clicks, Click{MenuID: menuID, Slot: slot, Kind: kind})
	return nil
}

func (c *Client) Clicks() []Click {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Click(nil), c.clicks...)
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Dialer hands out a new Client per Dial call.
type Dialer struct {
	// Err, when set, fails the next Dial and is then cleared.
	Err error
	// Prepare runs on every new client before Dial returns.
	Prepare func(c *Client)

	mu      sync.Mutex
	clients []*Client
	opts    []game.Options
}

func (d *Dialer) Dial(_ context.Context, opts game.Options, h game.Handler) (game.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.opts = append(d.opts, opts)
	if d.Err != nil {
		err := d.Err
		d.Err = nil
		return nil, err
	}
	c := NewClient(opts.Username, h)
	if d.Prepare != nil {
		d.Prepare(c)
	}
	d.clients = append(d.clients, c)
	return c, nil
}

// Dials returns how many times Dial was called, failed attempts included.
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.opts)
}

// Last returns the most recently created client.
func (d *Dialer) Last() *Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.clients) == 0 {
		return nil
	}
	return d.clients[len(d.clients)-1]
}

func (d *Dialer) Clients() []*Client {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Client(nil), d.clients...)
}
