package bridge

import (
	"encoding/json"

	"github.com/zlkm/farmbot/internal/game"
)

// Frame types of the sidecar protocol. Every frame is one JSON text
// message carrying a "type" field.
const (
	typeConnect   = "connect"
	typeChat      = "chat"
	typeMoveSlot  = "move_slot"
	typeSetHotbar = "set_hotbar"
	typeClick     = "click"

	typeLogin      = "login"
	typeSpawn      = "spawn"
	typeKicked     = "kicked"
	typeEnd        = "end"
	typeError      = "error"
	typeMessage    = "message"
	typeWindowOpen = "window_open"
	typeInventory  = "inventory"
	typeHotbar     = "hotbar"
	typeAck        = "ack"
)

type connectFrame struct {
	Type     string `json:"type"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Version  string `json:"version,omitempty"`
	Auth     string `json:"auth,omitempty"`
}

type chatFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type moveSlotFrame struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	From int    `json:"from"`
	To   int    `json:"to"`
}

type setHotbarFrame struct {
	Type string `json:"type"`
	Slot int    `json:"slot"`
}

type clickFrame struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Window int    `json:"window"`
	Slot   int    `json:"slot"`
	Button int    `json:"button"`
}

type windowFrame struct {
	ID    int             `json:"id"`
	Title json.RawMessage `json:"title"`
	Slots []*game.Item    `json:"slots"`
}

// inbound is the union of every frame the sidecar sends.
type inbound struct {
	Type     string       `json:"type"`
	ID       string       `json:"id,omitempty"`
	Reason   string       `json:"reason,omitempty"`
	LoggedIn bool         `json:"loggedIn,omitempty"`
	Error    string       `json:"error,omitempty"`
	Text     string       `json:"text,omitempty"`
	Window   *windowFrame `json:"window,omitempty"`
	Slots    []*game.Item `json:"slots,omitempty"`
	Slot     int          `json:"slot,omitempty"`
	OK       bool         `json:"ok,omitempty"`
}

// title returns the plain window title. The sidecar forwards titles either
// as a JSON string or as the raw chat component object.
func (w *windowFrame) title() string {
	if len(w.Title) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(w.Title, &s); err == nil {
		return game.FlattenText(s)
	}
	return game.FlattenText(string(w.Title))
}
