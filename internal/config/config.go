package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	cp "github.com/otiai10/copy"
	"gopkg.in/yaml.v3"

	"github.com/zlkm/farmbot/internal/shop"
	"github.com/zlkm/farmbot/internal/zone"
)

const (
	mainConfigFile  = "farmbot.yaml"
	agentConfigFile = "config.yaml"
	templateDir     = "template"

	defaultPassword = "password"
)

var (
	Version = "dev"

	ErrNoAgents = errors.New("no agent configurations found")
)

type FarmbotCfg struct {
	Debug struct {
		Log bool `yaml:"log"`
	} `yaml:"debug"`
	LogSaveDirectory string `yaml:"logSaveDirectory"`
	Server           struct {
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
		Version string `yaml:"version"`
		Auth    string `yaml:"auth"`
	} `yaml:"server"`
	Bridge struct {
		URL              string        `yaml:"url"`
		HandshakeTimeout time.Duration `yaml:"handshakeTimeout"`
		AckTimeout       time.Duration `yaml:"ackTimeout"`
		ChatInterval     time.Duration `yaml:"chatInterval"`
		ChatBurst        int           `yaml:"chatBurst"`
	} `yaml:"bridge"`
	Zones    zone.Markers `yaml:"zones"`
	Commands struct {
		Login  string `yaml:"login"`
		Switch string `yaml:"switch"`
		Home   string `yaml:"home"`
	} `yaml:"commands"`
	Shop    shop.Settings `yaml:"shop"`
	Timings struct {
		JoinStep             time.Duration `yaml:"joinStep"`
		LoginGrace           time.Duration `yaml:"loginGrace"`
		ContinuedGrace       time.Duration `yaml:"continuedGrace"`
		LobbyLoginHold       time.Duration `yaml:"lobbyLoginHold"`
		Watchdog             time.Duration `yaml:"watchdog"`
		ReconnectStep        time.Duration `yaml:"reconnectStep"`
		MaxReconnectAttempts int           `yaml:"maxReconnectAttempts"`
		StartupStagger       time.Duration `yaml:"startupStagger"`
	} `yaml:"timings"`
	Assistant struct {
		Model       string        `yaml:"model"`
		Persona     string        `yaml:"persona"`
		HistorySize int           `yaml:"historySize"`
		MaxLines    int           `yaml:"maxLines"`
		MaxLineLen  int           `yaml:"maxLineLen"`
		LineGap     time.Duration `yaml:"lineGap"`
		Timeout     time.Duration `yaml:"timeout"`
		APIKey      string        `yaml:"-"`
	} `yaml:"assistant"`
	Discord struct {
		Enabled                 bool     `yaml:"enabled"`
		EnableSellMessages      bool     `yaml:"enableSellMessages"`
		EnablePayoutMessages    bool     `yaml:"enablePayoutMessages"`
		EnableZoneMessages      bool     `yaml:"enableZoneMessages"`
		EnableReconnectMessages bool     `yaml:"enableReconnectMessages"`
		EnableFatalMessages     bool     `yaml:"enableFatalMessages"`
		EnableAssistantMessages bool     `yaml:"enableAssistantMessages"`
		BotAdmins               []string `yaml:"botAdmins"`
		ChannelID               string   `yaml:"channelId"`
		Token                   string   `yaml:"token"`
		UseWebhook              bool     `yaml:"useWebhook"`
		WebhookURL              string   `yaml:"webhookUrl"`
	} `yaml:"discord"`
	Telegram struct {
		Enabled bool   `yaml:"enabled"`
		ChatID  int64  `yaml:"chatId"`
		Token   string `yaml:"token"`
	} `yaml:"telegram"`
	Ledger struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"ledger"`
}

// AgentCfg is one account, read from config/<name>/config.yaml.
type AgentCfg struct {
	Name             string `yaml:"-"`
	Enabled          bool   `yaml:"enabled"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	HomeCommand      string `yaml:"homeCommand"`
	EnableAssistant  bool   `yaml:"enableAssistant"`
	AssistantOnStart bool   `yaml:"assistantOnStart"`
}

type Config struct {
	Dir     string
	Farmbot *FarmbotCfg
	// Agents holds the enabled agents in name order.
	Agents []*AgentCfg
}

// Default returns the settings used for every key farmbot.yaml omits.
func Default() *FarmbotCfg {
	cfg := &FarmbotCfg{}
	cfg.LogSaveDirectory = "logs"
	cfg.Server.Host = "play.pinoy-craft.com"
	cfg.Server.Port = 25565
	cfg.Server.Version = "1.20"
	cfg.Server.Auth = "offline"
	cfg.Bridge.URL = "ws://127.0.0.1:3010/bridge"
	cfg.Bridge.HandshakeTimeout = 5 * time.Second
	cfg.Bridge.AckTimeout = 10 * time.Second
	cfg.Bridge.ChatInterval = 250 * time.Millisecond
	cfg.Bridge.ChatBurst = 4
	cfg.Zones = zone.DefaultMarkers
	cfg.Commands.Login = "/l"
	cfg.Commands.Switch = "/server survival"
	cfg.Commands.Home = "/home"
	cfg.Shop = shop.DefaultSettings()
	cfg.Timings.JoinStep = 60 * time.Second
	cfg.Timings.LoginGrace = time.Second
	cfg.Timings.ContinuedGrace = 500 * time.Millisecond
	cfg.Timings.LobbyLoginHold = 500 * time.Millisecond
	cfg.Timings.Watchdog = 3 * time.Minute
	cfg.Timings.ReconnectStep = 60 * time.Second
	cfg.Timings.MaxReconnectAttempts = 5
	cfg.Timings.StartupStagger = 5 * time.Second
	cfg.Assistant.Model = "gemini-2.0-flash"
	cfg.Assistant.HistorySize = 100
	cfg.Assistant.MaxLines = 3
	cfg.Assistant.MaxLineLen = 230
	cfg.Assistant.LineGap = 600 * time.Millisecond
	cfg.Assistant.Timeout = 30 * time.Second
	cfg.Ledger.Path = "farmbot.db"
	return cfg
}

// Load reads farmbot.yaml and every agent folder under dir. Secrets left
// empty in the files are filled from the environment.
func Load(dir string) (*Config, error) {
	mainPath := filepath.Join(dir, mainConfigFile)
	r, err := os.Open(mainPath)
	if err != nil {
		return nil, fmt.Errorf("error loading %s: %w", mainConfigFile, err)
	}
	defer r.Close()

	fb := Default()
	d := yaml.NewDecoder(r)
	if err = d.Decode(fb); err != nil {
		return nil, fmt.Errorf("error reading config %s: %w", mainPath, err)
	}
	applySecrets(fb)
	sanitizeDiscordConfig(fb)
	if err := fb.Validate(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("error reading config directory %s: %w", dir, err)
	}

	agents := make([]*AgentCfg, 0)
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == templateDir {
			continue
		}

		agentPath := filepath.Join(dir, entry.Name(), agentConfigFile)
		ac, err := loadAgent(agentPath)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !ac.Enabled {
			continue
		}

		ac.Name = entry.Name()
		if ac.Username == "" {
			ac.Username = ac.Name
		}
		if ac.HomeCommand == "" {
			ac.HomeCommand = fb.Commands.Home
		}
		if ac.Password == "" {
			ac.Password = envOr("BOT_PASSWORD", defaultPassword)
		}
		agents = append(agents, ac)
	}

	if len(agents) == 0 {
		return nil, ErrNoAgents
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })

	return &Config{Dir: dir, Farmbot: fb, Agents: agents}, nil
}

func loadAgent(path string) (*AgentCfg, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	ac := &AgentCfg{Enabled: true}
	if err := yaml.NewDecoder(r).Decode(ac); err != nil {
		return nil, fmt.Errorf("error reading %s agent config: %w", path, err)
	}
	return ac, nil
}

func (c *Config) Agent(name string) (*AgentCfg, bool) {
	for _, a := range c.Agents {
		if a.Name == name {
			return a, true
		}
	}
	return nil, false
}

// Validate rejects settings no agent could run with.
func (c *FarmbotCfg) Validate() error {
	if c.Server.Host == "" || c.Server.Port <= 0 {
		return errors.New("server host and port are required")
	}
	if c.Bridge.URL == "" {
		return errors.New("bridge url is required")
	}
	if c.Timings.MaxReconnectAttempts <= 0 {
		return errors.New("timings.maxReconnectAttempts must be positive")
	}
	if c.Timings.Watchdog <= 0 || c.Shop.Period <= 0 {
		return errors.New("timings.watchdog and shop.period must be positive")
	}
	if c.Shop.Item == "" || c.Shop.Recipient == "" {
		return errors.New("shop.item and shop.recipient are required")
	}
	return nil
}

func applySecrets(cfg *FarmbotCfg) {
	if cfg.Discord.Token == "" {
		cfg.Discord.Token = os.Getenv("DISCORD_TOKEN")
	}
	if cfg.Telegram.Token == "" {
		cfg.Telegram.Token = os.Getenv("TELEGRAM_TOKEN")
	}
	cfg.Assistant.APIKey = envOr("GEMINI_API_KEY", os.Getenv("GOOGLE_API_KEY"))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func sanitizeDiscordConfig(cfg *FarmbotCfg) {
	if !cfg.Discord.Enabled {
		return
	}
	useWebhook := cfg.Discord.UseWebhook
	webhookURL := strings.TrimSpace(cfg.Discord.WebhookURL)
	token := strings.TrimSpace(cfg.Discord.Token)
	channelID := strings.TrimSpace(cfg.Discord.ChannelID)

	if (useWebhook && webhookURL == "") || (!useWebhook && (token == "" || channelID == "")) {
		cfg.Discord.Enabled = false
	}
}

// CreateFromTemplate creates config/<name> from the template folder.
func CreateFromTemplate(dir, name string) error {
	if name == "" {
		return errors.New("name cannot be empty")
	}
	if name == templateDir || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid agent name %q", name)
	}

	target := filepath.Join(dir, name)
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		return errors.New("configuration with that name already exists")
	}

	if err := cp.Copy(filepath.Join(dir, templateDir), target); err != nil {
		return fmt.Errorf("error copying template: %w", err)
	}
	return nil
}
