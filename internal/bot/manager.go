package bot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/zlkm/farmbot/internal/assistant"
	"github.com/zlkm/farmbot/internal/clock"
	"github.com/zlkm/farmbot/internal/config"
	"github.com/zlkm/farmbot/internal/event"
	"github.com/zlkm/farmbot/internal/game"
)

type ManagerOptions struct {
	Config    *config.Config
	Dialer    game.Dialer
	Generator assistant.Generator
	Events    *event.Listener
	Logger    *slog.Logger
	Clock     clock.Clock
	// AgentLogger builds the logger of one agent. Logger is used when nil.
	AgentLogger func(name string) (*slog.Logger, error)
	// Flush runs before Exit when an agent gives up.
	Flush func()
	Exit  func(code int)
}

// Manager runs the fleet: one agent per enabled account, started with a
// stagger so the server does not see a burst of logins.
type Manager struct {
	opts      ManagerOptions
	logger    *slog.Logger
	clock     clock.Clock
	fatalOnce sync.Once

	mu     sync.RWMutex
	agents map[string]*Agent
}

func NewManager(opts ManagerOptions) *Manager {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Exit == nil {
		opts.Exit = os.Exit
	}
	return &Manager{
		opts:   opts,
		logger: opts.Logger,
		clock:  opts.Clock,
		agents: make(map[string]*Agent),
	}
}

// Run starts every configured agent and blocks until ctx is done, then
// stops them all.
func (mng *Manager) Run(ctx context.Context) error {
	stagger := mng.opts.Config.Farmbot.Timings.StartupStagger

	for i, ac := range mng.opts.Config.Agents {
		if i > 0 && stagger > 0 {
			select {
			case <-ctx.Done():
				mng.StopAll()
				return nil
			case <-mng.clock.After(stagger):
			}
		}
		if err := mng.Start(ctx, ac.Name); err != nil {
			mng.logger.Error("Error starting agent", slog.String("agent", ac.Name), slog.Any("error", err))
			continue
		}
		mng.logger.Info(fmt.Sprintf("Requested agent startup #%d as %s", i+1, ac.Username), slog.Duration("stagger", stagger*time.Duration(i)))
	}

	<-ctx.Done()
	mng.StopAll()
	return nil
}

func (mng *Manager) Start(ctx context.Context, name string) error {
	mng.mu.RLock()
	_, exists := mng.agents[name]
	mng.mu.RUnlock()
	if exists {
		return fmt.Errorf("agent %s is already running", name)
	}

	ac, found := mng.opts.Config.Agent(name)
	if !found {
		return fmt.Errorf("agent %s is not configured", name)
	}

	logger := mng.logger
	if mng.opts.AgentLogger != nil {
		l, err := mng.opts.AgentLogger(name)
		if err != nil {
			return err
		}
		logger = l
	}

	statsHandler := NewStatsHandler(name, logger)
	agent, err := NewAgent(NewConfig(mng.opts.Config.Farmbot, ac), Deps{
		Dialer:    mng.opts.Dialer,
		Clock:     mng.clock,
		Logger:    logger,
		Events:    mng.opts.Events,
		Stats:     statsHandler,
		Generator: mng.opts.Generator,
		OnFatal:   mng.fatal,
	})
	if err != nil {
		return err
	}

	mng.mu.Lock()
	if _, alreadyRunning := mng.agents[name]; alreadyRunning {
		mng.mu.Unlock()
		return fmt.Errorf("agent %s is already running", name)
	}
	mng.agents[name] = agent
	mng.mu.Unlock()

	if mng.opts.Events != nil {
		mng.opts.Events.Register(statsHandler.Handle)
	}

	return agent.Start(ctx)
}

func (mng *Manager) Stop(name string) {
	mng.mu.Lock()
	agent, found := mng.agents[name]
	delete(mng.agents, name)
	mng.mu.Unlock()

	if found {
		agent.Stop()
	}
}

func (mng *Manager) StopAll() {
	mng.mu.Lock()
	agents := make([]*Agent, 0, len(mng.agents))
	for _, a := range mng.agents {
		agents = append(agents, a)
	}
	mng.agents = make(map[string]*Agent)
	mng.mu.Unlock()

	for _, a := range agents {
		a.Stop()
	}
}

// List returns the running agent names in order.
func (mng *Manager) List() []string {
	mng.mu.RLock()
	defer mng.mu.RUnlock()

	names := make([]string, 0, len(mng.agents))
	for name := range mng.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (mng *Manager) Agent(name string) (*Agent, bool) {
	mng.mu.RLock()
	defer mng.mu.RUnlock()
	a, found := mng.agents[name]
	return a, found
}

func (mng *Manager) Status(name string) (Stats, bool) {
	a, found := mng.Agent(name)
	if !found {
		return Stats{AgentStatus: NotStarted}, false
	}
	return a.Stats(), true
}

// SetAssistant toggles the chat assistant of a running agent.
func (mng *Manager) SetAssistant(name string, enabled bool, reason string) error {
	a, found := mng.Agent(name)
	if !found {
		return fmt.Errorf("agent %s is not running", name)
	}
	if enabled {
		return a.EnableAssistant(reason)
	}
	return a.DisableAssistant(reason)
}

// fatal ends the process so an external supervisor can restart it clean.
func (mng *Manager) fatal(name string, attempts int) {
	mng.fatalOnce.Do(func() {
		mng.logger.Error("Agent exhausted its reconnect attempts, exiting", slog.String("agent", name), slog.Int("attempts", attempts))
		if mng.opts.Flush != nil {
			mng.opts.Flush()
		}
		mng.opts.Exit(1)
	})
}
