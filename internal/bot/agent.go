package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zlkm/farmbot/internal/assistant"
	"github.com/zlkm/farmbot/internal/clock"
	"github.com/zlkm/farmbot/internal/config"
	"github.com/zlkm/farmbot/internal/event"
	"github.com/zlkm/farmbot/internal/game"
	"github.com/zlkm/farmbot/internal/join"
	"github.com/zlkm/farmbot/internal/shop"
	"github.com/zlkm/farmbot/internal/zone"
)

var (
	ErrAlreadyStarted       = errors.New("agent already started")
	ErrAssistantUnavailable = errors.New("assistant is not configured for this agent")
)

// Config is everything an agent needs to (re)build a connection.
type Config struct {
	Name     string
	Game     game.Options
	Password string

	LoginCommand  string
	SwitchCommand string
	HomeCommand   string

	Markers zone.Markers
	Shop    shop.Settings

	JoinStep             time.Duration
	LoginGrace           time.Duration
	ContinuedGrace       time.Duration
	LobbyLoginHold       time.Duration
	Watchdog             time.Duration
	ReconnectStep        time.Duration
	MaxReconnectAttempts int

	EnableAssistant  bool
	AssistantOnStart bool
	Assistant        assistant.Options
}

func NewConfig(fb *config.FarmbotCfg, ac *config.AgentCfg) Config {
	return Config{
		Name: ac.Name,
		Game: game.Options{
			Host:     fb.Server.Host,
			Port:     fb.Server.Port,
			Username: ac.Username,
			Version:  fb.Server.Version,
			Auth:     fb.Server.Auth,
		},
		Password:             ac.Password,
		LoginCommand:         fb.Commands.Login,
		SwitchCommand:        fb.Commands.Switch,
		HomeCommand:          ac.HomeCommand,
		Markers:              fb.Zones,
		Shop:                 fb.Shop,
		JoinStep:             fb.Timings.JoinStep,
		LoginGrace:           fb.Timings.LoginGrace,
		ContinuedGrace:       fb.Timings.ContinuedGrace,
		LobbyLoginHold:       fb.Timings.LobbyLoginHold,
		Watchdog:             fb.Timings.Watchdog,
		ReconnectStep:        fb.Timings.ReconnectStep,
		MaxReconnectAttempts: fb.Timings.MaxReconnectAttempts,
		EnableAssistant:      ac.EnableAssistant,
		AssistantOnStart:     ac.AssistantOnStart,
		Assistant: assistant.Options{
			Name:        ac.Username,
			Persona:     fb.Assistant.Persona,
			HistorySize: fb.Assistant.HistorySize,
			MaxLines:    fb.Assistant.MaxLines,
			MaxLineLen:  fb.Assistant.MaxLineLen,
			LineGap:     fb.Assistant.LineGap,
			Timeout:     fb.Assistant.Timeout,
		},
	}
}

type Deps struct {
	Dialer game.Dialer
	Clock  clock.Clock
	Logger *slog.Logger
	// Events may be nil.
	Events *event.Listener
	Stats  *StatsHandler
	// Generator is nil when no model API key is configured.
	Generator assistant.Generator
	// OnFatal runs with the agent locked once reconnects are exhausted. It
	// must not call back into the agent.
	OnFatal func(name string, attempts int)
}

// Agent is one unattended account. It survives reconnects; only the
// connection and the components built on it are replaced.
//
// Every connection event and timer callback runs under mu, so handlers see
// one total order and never interleave.
type Agent struct {
	cfg       Config
	dialer    game.Dialer
	clock     clock.Clock
	logger    *slog.Logger
	events    *event.Listener
	stats     *StatsHandler
	generator assistant.Generator
	onFatal   func(name string, attempts int)
	detector  zone.Detector

	zone atomic.Int32

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	started  bool
	stopped  bool
	status   AgentStatus
	conn     uint64
	join     *join.Sequencer
	watchdog *clock.Timer

	client    game.Client
	lines     *game.LineHub
	engine    *shop.Engine
	menus     *shop.MenuDriver
	assistant *assistant.Assistant
	menuWG    sync.WaitGroup

	continued   bool
	loginTimer  *clock.Timer
	assistantOn bool

	attempts           int
	reconnectScheduled bool
	reconnectTimer     *clock.Timer

	startedAt   time.Time
	connectedAt time.Time
}

func NewAgent(cfg Config, deps Deps) (*Agent, error) {
	if _, err := shop.NewMatcher(cfg.Shop.Item, cfg.Shop.ItemPattern); err != nil {
		return nil, fmt.Errorf("agent %s: %w", cfg.Name, err)
	}
	if _, err := shop.NewMatcher(cfg.Shop.ConfirmItem, cfg.Shop.ConfirmPattern); err != nil {
		return nil, fmt.Errorf("agent %s: %w", cfg.Name, err)
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}

	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	stats := deps.Stats
	if stats == nil {
		stats = NewStatsHandler(cfg.Name, deps.Logger)
	}
	onFatal := deps.OnFatal
	if onFatal == nil {
		onFatal = func(string, int) {}
	}

	a := &Agent{
		cfg:       cfg,
		dialer:    deps.Dialer,
		clock:     clk,
		logger:    deps.Logger.With(slog.String("agent", cfg.Name)),
		events:    deps.Events,
		stats:     stats,
		generator: deps.Generator,
		onFatal:   onFatal,
		detector:  zone.NewDetector(cfg.Markers),
		status:    NotStarted,
	}
	a.join = join.New(clk, a.logger, cfg.JoinStep, join.Hooks{
		AtTarget: func() bool { return a.Zone() == zone.Survival },
		Live:     a.liveLocked,
		Send:     func() error { return a.client.Chat(a.cfg.SwitchCommand) },
		Guard:    a.guard,
	})
	return a, nil
}

func (a *Agent) Name() string { return a.cfg.Name }

func (a *Agent) Zone() zone.Zone {
	return zone.Zone(a.zone.Load())
}

func (a *Agent) Status() AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Stats merges the event totals with the live connection state.
func (a *Agent) Stats() Stats {
	s := a.stats.Stats()

	a.mu.Lock()
	defer a.mu.Unlock()
	s.AgentStatus = a.status
	s.Zone = a.Zone().String()
	s.StartedAt = a.startedAt
	s.ConnectedAt = a.connectedAt
	s.ReconnectAttempts = a.attempts
	s.JoinAttempts = a.join.Attempts()
	s.AssistantEnabled = a.assistant != nil
	return s
}

// Start connects the agent and arms its watchdog. It does not block.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return ErrAlreadyStarted
	}
	a.started = true
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.startedAt = a.clock.Now()
	a.assistantOn = a.cfg.AssistantOnStart

	a.logger.Info("Starting agent", slog.String("username", a.cfg.Game.Username))
	a.armWatchdogLocked()
	a.connectLocked("startup")
	return nil
}

// Stop tears the agent down for good. Pending timers are cancelled and the
// connection is closed without triggering a reconnect.
func (a *Agent) Stop() {
	a.mu.Lock()
	if a.stopped || !a.started {
		a.stopped = true
		a.mu.Unlock()
		return
	}
	a.stopped = true
	a.status = Stopped
	a.watchdog.Stop()
	a.reconnectTimer.Stop()
	a.join.Stop()
	client := a.client
	a.teardownLocked()
	a.cancel()
	a.mu.Unlock()

	if client != nil {
		if err := client.Close(); err != nil {
			a.logger.Warn("Error closing connection", slog.Any("error", err))
		}
	}
	a.menuWG.Wait()
	a.logger.Info("Agent stopped")
}

// do runs fn under the agent lock if the event belongs to the current
// connection.
func (a *Agent) do(conn uint64, fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped || conn != a.conn {
		return
	}
	fn()
}

func (a *Agent) guard(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	fn()
}

func (a *Agent) liveLocked() bool {
	return a.client != nil && a.client.Connected()
}

func (a *Agent) setStatusLocked(s AgentStatus) {
	if a.status == s {
		return
	}
	a.logger.Debug("Agent status changed", slog.String("from", string(a.status)), slog.String("to", string(s)))
	a.status = s
}

// connectLocked dials a fresh connection and rebuilds every component that
// depends on it. A failed dial is handled like a disconnect.
//
// The dial runs under mu so no event of the new connection is handled
// before its components exist. Status, Stats and Stop therefore wait for
// the handshake, at most the bridge HandshakeTimeout.
func (a *Agent) connectLocked(reason string) {
	a.conn++
	conn := a.conn
	a.zone.Store(int32(zone.None))
	a.continued = false
	a.setStatusLocked(Connecting)

	a.logger.Info("Connecting", slog.String("reason", reason), slog.String("host", a.cfg.Game.Host), slog.Int("port", a.cfg.Game.Port))
	client, err := a.dialer.Dial(a.ctx, a.cfg.Game, &connHandler{a: a, conn: conn})
	if err != nil {
		a.logger.Error("Error connecting", slog.Any("error", err))
		a.handleDisconnectLocked(fmt.Sprintf("dial failed: %v", err))
		return
	}

	a.client = client
	a.connectedAt = a.clock.Now()
	a.lines = game.NewLineHub()
	a.setStatusLocked(Connected)

	engine, err := shop.NewEngine(shop.EngineOptions{
		Agent:     a.cfg.Name,
		Settings:  a.cfg.Shop,
		Client:    client,
		Lines:     a.lines,
		Clock:     a.clock,
		Logger:    a.logger,
		Publisher: a.events,
		InZone:    func() bool { return a.Zone() == zone.Survival },
	})
	if err != nil {
		a.logger.Error("Error creating sell engine", slog.Any("error", err))
	} else {
		a.engine = engine
	}

	menus, err := shop.NewMenuDriver(a.cfg.Shop, client, a.lines, a.clock, a.logger)
	if err != nil {
		a.logger.Error("Error creating menu driver", slog.Any("error", err))
	} else {
		a.menus = menus
	}

	a.syncAssistantLocked()
}

// teardownLocked disposes everything built on the current connection. It
// is a no-op when there is no connection, so it runs once per connection.
func (a *Agent) teardownLocked() {
	a.conn++
	if a.loginTimer != nil {
		a.loginTimer.Stop()
		a.loginTimer = nil
	}
	a.join.Stop()

	if a.client == nil {
		return
	}
	if a.engine != nil {
		a.engine.Dispose()
		a.engine = nil
	}
	if a.menus != nil {
		a.menus.Dispose()
		a.menus = nil
	}
	if a.assistant != nil {
		a.assistant.Dispose()
		a.assistant = nil
	}
	if a.lines != nil {
		a.lines.Close()
		a.lines = nil
	}
	a.client = nil
}

func (a *Agent) send(line string) {
	if a.client == nil {
		return
	}
	if err := a.client.Chat(line); err != nil {
		a.logger.Warn("Error sending chat command", slog.Any("error", err))
	}
}

func (a *Agent) handleLoginLocked() {
	a.continued = false
	if a.attempts > 0 {
		a.logger.Info("Login succeeded, resetting reconnect attempts", slog.Int("attempts", a.attempts))
	}
	a.attempts = 0
	a.logger.Info("Logged in", slog.String("username", a.client.Username()))
}

func (a *Agent) handleTextLocked(line string) {
	text := game.FlattenText(line)
	if a.lines != nil {
		a.lines.Publish(text)
	}
	if a.assistant != nil {
		a.assistant.HandleLine(line)
	}

	detected := a.detector.Classify(text)
	if detected == zone.None {
		if a.detector.Continued(text) {
			a.handleContinuedLocked()
		}
		return
	}

	previous := a.Zone()
	if detected == previous {
		a.logger.Debug("Zone re-detected", slog.String("zone", detected.String()), slog.String("line", text))
		return
	}
	a.changeZoneLocked(previous, detected, text)
}

func (a *Agent) changeZoneLocked(previous, next zone.Zone, text string) {
	a.zone.Store(int32(next))
	a.logger.Info("Zone changed", slog.String("from", previous.String()), slog.String("to", next.String()), slog.String("line", text))
	a.events.Send(event.ZoneChanged(event.Text(a.cfg.Name, fmt.Sprintf("%s moved from %s to %s", a.cfg.Name, previous, next)), previous.String(), next.String()))

	switch next {
	case zone.Survival:
		a.continued = false
		a.cancelLoginLocked()
		a.join.Arrived()
		a.setStatusLocked(Farming)
		a.logger.Info("Arrived in survival, sending home command", slog.String("command", a.cfg.HomeCommand))
		a.send(a.cfg.HomeCommand)
		if a.engine != nil {
			a.engine.Resume()
		}
	case zone.Lobby:
		if a.engine != nil {
			a.engine.Suspend()
		}
		a.setStatusLocked(InLobby)
		a.enterLobbyLocked(text)
	}
}

// enterLobbyLocked starts the login-then-switch sequence. The login is held
// briefly so a continuation line following the welcome line can cancel it.
func (a *Agent) enterLobbyLocked(text string) {
	if a.continued || a.detector.Continued(text) {
		a.continued = true
		a.logger.Info("Lobby session continued, skipping login")
		a.join.RequestSwitch("lobby entry, continued session", a.cfg.ContinuedGrace)
		return
	}
	if a.cfg.LobbyLoginHold <= 0 {
		a.loginLocked("lobby entry")
		return
	}

	conn := a.conn
	a.cancelLoginLocked()
	a.loginTimer = a.clock.AfterFunc(a.cfg.LobbyLoginHold, func() {
		a.do(conn, func() {
			a.loginTimer = nil
			switch {
			case a.Zone() != zone.Lobby:
			case a.continued:
				a.join.RequestSwitch("lobby entry, continued session", a.cfg.ContinuedGrace)
			default:
				a.loginLocked("lobby entry")
			}
		})
	})
}

// handleContinuedLocked only trusts the marker before the agent reaches
// survival, where it can only come from player chat.
func (a *Agent) handleContinuedLocked() {
	if a.continued || a.Zone() == zone.Survival {
		return
	}
	a.continued = true
	a.logger.Info("Session continued")

	if a.Zone() == zone.Lobby && a.loginTimer != nil {
		a.cancelLoginLocked()
		a.logger.Info("Cancelling pending login, session was continued")
		a.join.RequestSwitch("lobby entry, continued session", a.cfg.ContinuedGrace)
	}
}

func (a *Agent) cancelLoginLocked() {
	if a.loginTimer != nil {
		a.loginTimer.Stop()
		a.loginTimer = nil
	}
}

func (a *Agent) loginLocked(reason string) {
	a.logger.Info("Sending login command", slog.String("reason", reason))
	a.send(fmt.Sprintf("%s %s", a.cfg.LoginCommand, a.cfg.Password))
	a.join.RequestSwitch(reason+", after login", a.cfg.LoginGrace)
}

// runJoinSequenceLocked retries the path to survival from wherever the
// agent is stuck.
func (a *Agent) runJoinSequenceLocked(reason string) {
	if a.Zone() != zone.Lobby {
		a.join.RequestSwitch(reason, 0)
		return
	}
	switch {
	case a.continued:
		a.join.RequestSwitch(reason+", continued session", a.cfg.ContinuedGrace)
	case a.loginTimer != nil:
		a.logger.Debug("Login already pending", slog.String("reason", reason))
	default:
		a.loginLocked(reason)
	}
}

func (a *Agent) armWatchdogLocked() {
	a.watchdog = a.clock.AfterFunc(a.cfg.Watchdog, a.watchdogTick)
}

func (a *Agent) watchdogTick() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.armWatchdogLocked()

	if !a.liveLocked() {
		a.logger.Debug("Watchdog: not connected, skipping")
		return
	}
	if a.Zone() == zone.Survival {
		return
	}
	a.logger.Info("Watchdog: not in survival, re-running join sequence", slog.String("zone", a.Zone().String()))
	a.runJoinSequenceLocked("watchdog")
}

func (a *Agent) handleMenuLocked(menu game.Menu) {
	if a.menus == nil {
		return
	}
	menus := a.menus
	a.menuWG.Add(1)
	go func() {
		defer a.menuWG.Done()
		if err := menus.Handle(menus.Context(), menu); err != nil {
			a.logger.Warn("Error handling menu", slog.Any("error", err))
		}
	}()
}

// EnableAssistant turns the chat assistant on for this and later
// connections. It is a no-op when already on.
func (a *Agent) EnableAssistant(reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.cfg.EnableAssistant || a.generator == nil {
		a.logger.Info("Assistant enable requested but not configured", slog.String("reason", reason))
		return ErrAssistantUnavailable
	}
	if a.assistantOn {
		return nil
	}
	a.assistantOn = true
	a.logger.Info("Assistant enabled", slog.String("reason", reason))
	a.syncAssistantLocked()
	a.events.Send(event.AssistantToggled(event.Text(a.cfg.Name, fmt.Sprintf("Assistant enabled for %s", a.cfg.Name)), true, reason))
	return nil
}

func (a *Agent) DisableAssistant(reason string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.assistantOn && a.assistant == nil {
		return nil
	}
	a.assistantOn = false
	a.logger.Info("Assistant disabled", slog.String("reason", reason))
	a.syncAssistantLocked()
	a.events.Send(event.AssistantToggled(event.Text(a.cfg.Name, fmt.Sprintf("Assistant disabled for %s", a.cfg.Name)), false, reason))
	return nil
}

func (a *Agent) syncAssistantLocked() {
	want := a.cfg.EnableAssistant && a.generator != nil && a.assistantOn && a.client != nil
	switch {
	case !want && a.assistant != nil:
		a.assistant.Dispose()
		a.assistant = nil
	case want && a.assistant == nil:
		a.assistant = assistant.New(a.cfg.Assistant, a.generator, a.client, a.clock, a.logger)
	}
}

// connHandler binds game events to one connection of an agent. Events from
// a superseded connection are dropped.
type connHandler struct {
	a    *Agent
	conn uint64
}

func (h *connHandler) OnLogin() {
	h.a.do(h.conn, h.a.handleLoginLocked)
}

func (h *connHandler) OnSpawn() {
	h.a.do(h.conn, func() {
		h.a.logger.Info("Spawned in the world")
	})
}

func (h *connHandler) OnKicked(reason string, loggedIn bool) {
	h.a.do(h.conn, func() {
		h.a.logger.Warn("Kicked from server", slog.String("reason", reason), slog.Bool("loggedIn", loggedIn))
	})
}

func (h *connHandler) OnDisconnect(reason string) {
	h.a.do(h.conn, func() {
		h.a.handleDisconnectLocked(reason)
	})
}

func (h *connHandler) OnError(err error) {
	h.a.do(h.conn, func() {
		h.a.logger.Error("Connection error", slog.Any("error", err))
	})
}

func (h *connHandler) OnText(line string) {
	h.a.do(h.conn, func() {
		h.a.handleTextLocked(line)
	})
}

func (h *connHandler) OnMenuOpened(menu game.Menu) {
	h.a.do(h.conn, func() {
		h.a.handleMenuLocked(menu)
	})
}
