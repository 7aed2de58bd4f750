package game

import (
	"context"
	"sync"
	"time"

	"github.com/zlkm/farmbot/internal/clock"
)

// LineHub fans incoming text lines out to short-lived subscriptions. It
// backs the "send a command, then correlate the next matching line"
// pattern used for balance queries and post-click captures.
type LineHub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription
	closed bool
}

type Subscription struct {
	C <-chan string

	hub       *LineHub
	id        uint64
	ch        chan string
	match     func(string) bool
	remaining int
}

func NewLineHub() *LineHub {
	return &LineHub{subs: make(map[uint64]*Subscription)}
}

// Subscribe returns a subscription receiving the next n lines accepted by
// match (nil accepts everything). The channel is closed after n lines, on
// Cancel, or when the hub is closed.
func (h *LineHub) Subscribe(match func(string) bool, n int) *Subscription {
	if n <= 0 {
		n = 1
	}
	ch := make(chan string, n)
	s := &Subscription{C: ch, hub: h, ch: ch, match: match, remaining: n}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return s
	}
	h.nextID++
	s.id = h.nextID
	h.subs[s.id] = s
	return s
}

func (h *LineHub) Publish(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, s := range h.subs {
		if s.match != nil && !s.match(line) {
			continue
		}
		s.ch <- line
		s.remaining--
		if s.remaining == 0 {
			delete(h.subs, id)
			close(s.ch)
		}
	}
}

// Close ends every subscription. Later subscriptions are closed at birth.
func (h *LineHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, s := range h.subs {
		delete(h.subs, id)
		close(s.ch)
	}
}

func (s *Subscription) Cancel() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	if _, ok := s.hub.subs[s.id]; !ok {
		return
	}
	delete(s.hub.subs, s.id)
	close(s.ch)
}

// Await waits for the first line on s, giving up after timeout or when ctx
// ends. The subscription is cancelled before returning.
func Await(ctx context.Context, clk clock.Clock, s *Subscription, timeout time.Duration) (string, bool) {
	defer s.Cancel()

	expired := make(chan struct{})
	timer := clk.AfterFunc(timeout, func() { close(expired) })
	defer timer.Stop()

	select {
	case line, ok := <-s.C:
		return line, ok
	case <-expired:
		return "", false
	case <-ctx.Done():
		return "", false
	}
}
