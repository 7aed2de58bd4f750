// Package bridge implements game.Client over a websocket connection to a
// protocol sidecar that owns the actual game connection.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/zlkm/farmbot/internal/game"
)

var ErrAckTimeout = errors.New("bridge did not acknowledge request")

type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	AckTimeout       time.Duration
	WriteTimeout     time.Duration
	// ChatInterval and ChatBurst throttle outgoing chat lines.
	ChatInterval time.Duration
	ChatBurst    int
}

func (c Config) withDefaults() Config {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.ChatInterval <= 0 {
		c.ChatInterval = 250 * time.Millisecond
	}
	if c.ChatBurst <= 0 {
		c.ChatBurst = 4
	}
	return c
}

type Dialer struct {
	cfg    Config
	logger *slog.Logger
}

func NewDialer(cfg Config, logger *slog.Logger) *Dialer {
	return &Dialer{cfg: cfg.withDefaults(), logger: logger}
}

type outgoing struct {
	data []byte
	chat bool
}

type Client struct {
	cfg      Config
	logger   *slog.Logger
	username string
	conn     *websocket.Conn
	h        game.Handler
	limiter  *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	outbox chan outgoing

	closeOnce sync.Once
	endOnce   sync.Once

	mu       sync.RWMutex
	loggedIn bool
	ended    bool
	closed   bool
	slots    []*game.Item
	quickBar int
	pending  map[string]chan error
}

// Dial opens the websocket, asks the sidecar to connect to the game server
// and starts the read and write loops. Events are delivered to h from a
// single goroutine in arrival order.
func (d *Dialer) Dial(ctx context.Context, opts game.Options, h game.Handler) (game.Client, error) {
	wd := websocket.Dialer{HandshakeTimeout: d.cfg.HandshakeTimeout}
	conn, resp, err := wd.DialContext(ctx, d.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("error dialing bridge %s: %w", d.cfg.URL, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	hello := connectFrame{
		Type:     typeConnect,
		Host:     opts.Host,
		Port:     opts.Port,
		Username: opts.Username,
		Version:  opts.Version,
		Auth:     opts.Auth,
	}
	_ = conn.SetWriteDeadline(time.Now().Add(d.cfg.WriteTimeout))
	if err := conn.WriteJSON(hello); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("error sending connect frame: %w", err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:      d.cfg,
		logger:   d.logger.With(slog.String("username", opts.Username)),
		username: opts.Username,
		conn:     conn,
		h:        h,
		limiter:  rate.NewLimiter(rate.Every(d.cfg.ChatInterval), d.cfg.ChatBurst),
		ctx:      cctx,
		cancel:   cancel,
		outbox:   make(chan outgoing, 64),
		pending:  make(map[string]chan error),
	}

	go c.writeLoop()
	go c.readLoop()

	return c, nil
}

func (c *Client) Username() string { return c.username }

func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loggedIn && !c.ended && !c.closed
}

func (c *Client) Chat(line string) error {
	return c.enqueue(chatFrame{Type: typeChat, Text: line}, true)
}

func (c *Client) Slots() []*game.Item {
	c.mu.RLock()
	defer c.mu.RUnlock()
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
	id := uuid.NewString()
	return c.request(ctx, id, moveSlotFrame{Type: typeMoveSlot, ID: id, From: from, To: to})
}

func (c *Client) QuickBarSlot() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.quickBar
}

func (c *Client) SetQuickBarSlot(slot int) error {
	if err := c.enqueue(setHotbarFrame{Type: typeSetHotbar, Slot: slot}, false); err != nil {
		return err
	}
	c.mu.Lock()
	c.quickBar = slot
	c.mu.Unlock()
	return nil
}

func (c *Client) ClickMenu(ctx context.Context, menuID int, slot int, kind game.ClickKind) error {
	id := uuid.NewString()
	button := 0
	if kind == game.SecondaryClick {
		button = 1
	}
	return c.request(ctx, id, clickFrame{Type: typeClick, ID: id, Window: menuID, Slot: slot, Button: button})
}

// Close shuts the connection down. A client closed locally does not report
// OnDisconnect.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.cancel()
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		err = c.conn.Close()
		c.failPending(game.ErrNotConnected)
	})
	return err
}

func (c *Client) enqueue(v any, chat bool) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("error encoding frame: %w", err)
	}
	if c.ctx.Err() != nil {
		return game.ErrNotConnected
	}
	select {
	case c.outbox <- outgoing{data: b, chat: chat}:
		return nil
	case <-c.ctx.Done():
		return game.ErrNotConnected
	}
}

func (c *Client) request(ctx context.Context, id string, v any) error {
	ack := make(chan error, 1)
	c.mu.Lock()
	c.pending[id] = ack
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.enqueue(v, false); err != nil {
		return err
	}

	timer := time.NewTimer(c.cfg.AckTimeout)
	defer timer.Stop()

	select {
	case err := <-ack:
		return err
	case <-timer.C:
		return ErrAckTimeout
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return game.ErrNotConnected
	}
}

func (c *Client) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, ch := range c.pending {
		ch <- err
		delete(c.pending, id)
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.outbox:
			if msg.chat {
				if err := c.limiter.Wait(c.ctx); err != nil {
					return
				}
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				// The read loop observes the closed socket and reports it.
				c.logger.Warn("Bridge write failed", slog.Any("error", err))
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.finish(fmt.Sprintf("connection lost: %v", err))
			return
		}

		var in inbound
		if err := json.Unmarshal(data, &in); err != nil {
			c.logger.Debug("Ignoring malformed bridge frame", slog.Any("error", err))
			continue
		}
		if !c.dispatch(in) {
			return
		}
	}
}

// dispatch delivers one frame and reports whether reading should continue.
func (c *Client) dispatch(in inbound) bool {
	if c.isClosed() {
		return false
	}

	switch in.Type {
	case typeLogin:
		c.setLoggedIn()
		c.h.OnLogin()
	case typeSpawn:
		c.setLoggedIn()
		c.h.OnSpawn()
	case typeKicked:
		c.h.OnKicked(in.Reason, in.LoggedIn)
	case typeEnd:
		c.finish(in.Reason)
		return false
	case typeError:
		c.h.OnError(errors.New(in.Error))
	case typeMessage:
		c.h.OnText(game.FlattenText(in.Text))
	case typeWindowOpen:
		if in.Window != nil {
			c.h.OnMenuOpened(game.Menu{ID: in.Window.ID, Title: in.Window.title(), Slots: in.Window.Slots})
		}
	case typeInventory:
		c.mu.Lock()
		c.slots = in.Slots
		c.mu.Unlock()
	case typeHotbar:
		c.mu.Lock()
		c.quickBar = in.Slot
		c.mu.Unlock()
	case typeAck:
		c.resolve(in)
	default:
		c.logger.Debug("Unknown bridge frame", slog.String("type", in.Type))
	}
	return true
}

func (c *Client) resolve(in inbound) {
	c.mu.Lock()
	ch, ok := c.pending[in.ID]
	delete(c.pending, in.ID)
	c.mu.Unlock()
	if !ok {
		return
	}
	if in.OK {
		ch <- nil
		return
	}
	msg := in.Error
	if msg == "" {
		msg = "request rejected"
	}
	ch <- errors.New(msg)
}

// finish ends the connection once and reports it unless Close came first.
func (c *Client) finish(reason string) {
	c.endOnce.Do(func() {
		c.mu.Lock()
		c.ended = true
		closed := c.closed
		c.mu.Unlock()

		c.cancel()
		_ = c.conn.Close()
		c.failPending(game.ErrNotConnected)

		if !closed {
			c.h.OnDisconnect(reason)
		}
	})
}

func (c *Client) setLoggedIn() {
	c.mu.Lock()
	c.loggedIn = true
	c.mu.Unlock()
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
