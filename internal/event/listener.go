package event

import (
	"context"
	"log/slog"
	"sync"
)

const queueSize = 256

type Handler func(ctx context.Context, e Event) error

// Listener fans events out to every registered handler. Send never blocks
// an agent: when the queue is full the event is dropped and logged.
type Listener struct {
	logger   *slog.Logger
	mu       sync.RWMutex
	handlers []Handler
	events   chan Event
}

func NewListener(logger *slog.Logger) *Listener {
	return &Listener{
		logger: logger,
		events: make(chan Event, queueSize),
	}
}

func (l *Listener) Register(h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers = append(l.handlers, h)
}

func (l *Listener) Send(e Event) {
	if l == nil {
		return
	}
	select {
	case l.events <- e:
	default:
		l.logger.Warn("Event queue full, dropping event", slog.String("agent", e.Agent()), slog.String("message", e.Message()))
	}
}

// Listen dispatches queued events until ctx is cancelled. Handler errors
// are logged and never stop the loop.
func (l *Listener) Listen(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-l.events:
			l.dispatch(ctx, e)
		}
	}
}

func (l *Listener) dispatch(ctx context.Context, e Event) {
	l.mu.RLock()
	handlers := make([]Handler, len(l.handlers))
	copy(handlers, l.handlers)
	l.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			l.logger.Error("Error running event handler", slog.String("agent", e.Agent()), slog.Any("error", err))
		}
	}
}
