package bot

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/zlkm/farmbot/internal/event"
)

// ReconnectDelay is the wait before the n-th reconnect.
func ReconnectDelay(n int, step time.Duration) time.Duration {
	return step * time.Duration(n)
}

// handleDisconnectLocked disposes the dead connection and either schedules
// the next reconnect or gives up once the attempt ceiling is reached.
func (a *Agent) handleDisconnectLocked(reason string) {
	a.logger.Warn("Disconnected from server",
		slog.String("reason", reason),
		slog.String("lastZone", a.Zone().String()),
	)
	a.teardownLocked()

	if a.reconnectScheduled {
		a.logger.Debug("Reconnect already scheduled, ignoring disconnect")
		return
	}

	a.attempts++
	if a.attempts >= a.cfg.MaxReconnectAttempts {
		a.failLocked()
		return
	}

	delay := ReconnectDelay(a.attempts, a.cfg.ReconnectStep)
	a.reconnectScheduled = true
	a.setStatusLocked(ReconnectScheduled)
	a.logger.Info("Scheduling reconnect", slog.Int("attempt", a.attempts), slog.Duration("delay", delay))
	a.events.Send(event.Reconnecting(
		event.Text(a.cfg.Name, fmt.Sprintf("%s disconnected (%s), reconnecting in %s", a.cfg.Name, reason, delay)),
		a.attempts, delay, reason,
	))

	a.reconnectTimer = a.clock.AfterFunc(delay, a.reconnect)
}

func (a *Agent) reconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.reconnectScheduled = false
	a.reconnectTimer = nil
	a.logger.Info("Reconnecting", slog.Int("attempt", a.attempts))
	a.connectLocked("reconnect")
}

func (a *Agent) failLocked() {
	a.logger.Error("Reconnect attempts exhausted, giving up", slog.Int("attempts", a.attempts))
	a.stopped = true
	a.setStatusLocked(Fatal)
	a.watchdog.Stop()
	a.cancel()
	a.events.Send(event.AgentFatal(
		event.Text(a.cfg.Name, fmt.Sprintf("%s failed to reconnect %d times, exiting", a.cfg.Name, a.attempts)),
		a.attempts,
	))
	a.onFatal(a.cfg.Name, a.attempts)
}
