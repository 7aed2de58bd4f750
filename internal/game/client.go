// Package game defines the contract between the agent runtime and the
// game-protocol client it drives. The protocol itself lives outside this
// module; see the bridge package for the shipped adapter.
package game

import (
	"context"
	"errors"
)

var ErrNotConnected = errors.New("client is not connected")

// Item is one inventory or menu stack. A nil *Item is an empty slot.
type Item struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Count       int    `json:"count"`
}

// Menu is a server-pushed, slot-addressable window.
type Menu struct {
	ID    int     `json:"id"`
	Title string  `json:"title"`
	Slots []*Item `json:"slots"`
}

type ClickKind int

const (
	PrimaryClick ClickKind = iota
	SecondaryClick
)

func (k ClickKind) String() string {
	if k == SecondaryClick {
		return "secondary"
	}
	return "primary"
}

type Options struct {
	Host     string
	Port     int
	Username string
	Version  string
	Auth     string
}

// Handler receives connection events. Implementations can assume events of
// one client are delivered sequentially in arrival order.
type Handler interface {
	OnLogin()
	OnSpawn()
	OnKicked(reason string, loggedIn bool)
	OnDisconnect(reason string)
	OnError(err error)
	OnText(line string)
	OnMenuOpened(menu Menu)
}

// Client is one live connection. All methods are safe for concurrent use.
type Client interface {
	Username() string
	// Connected reports whether the player entity exists, i.e. the login
	// completed and the connection has not ended.
	Connected() bool
	// Chat sends a line fire-and-forget; a nil error only means the line
	// was queued.
	Chat(line string) error
	// Slots returns a snapshot of the player inventory indexed by slot.
	Slots() []*Item
	MoveSlot(ctx context.Context, from, to int) error
	QuickBarSlot() int
	SetQuickBarSlot(slot int) error
	ClickMenu(ctx context.Context, menuID int, slot int, kind ClickKind) error
	Close() error
}

// Dialer creates clients. A connection that fails after Dial returns is
// reported through Handler.OnDisconnect.
type Dialer interface {
	Dial(ctx context.Context, opts Options, h Handler) (Client, error)
}
