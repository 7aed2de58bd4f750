package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	sloggger "github.com/zlkm/farmbot/cmd/farmbot/log"
	"github.com/zlkm/farmbot/internal/assistant"
	"github.com/zlkm/farmbot/internal/bot"
	"github.com/zlkm/farmbot/internal/config"
	"github.com/zlkm/farmbot/internal/event"
	"github.com/zlkm/farmbot/internal/game/bridge"
	"github.com/zlkm/farmbot/internal/ledger"
	"github.com/zlkm/farmbot/internal/remote/discord"
	"github.com/zlkm/farmbot/internal/remote/telegram"
)

var (
	buildID   string
	buildTime string
)

// wrapWithRecover wraps a function with panic recovery logic
func wrapWithRecover(logger *slog.Logger, f func() error) func() error {
	return func() error {
		defer func() {
			if r := recover(); r != nil {
				stackTrace := debug.Stack()
				errMsg := fmt.Sprintf("panic recovered: %v\nStacktrace: %s", r, stackTrace)
				logger.Error(errMsg)
				sloggger.FlushLog()
			}
		}()
		return f()
	}
}

func printHelp(fs *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, "Usage: farmbot [flags] [new-agent <name>]\n\nFlags:\n")
	fs.PrintDefaults()
}

func main() {
	var (
		configDir string
		envFile   string
		version   bool
	)
	fs := pflag.NewFlagSet("farmbot", pflag.ContinueOnError)
	fs.StringVarP(&configDir, "config", "c", "config", "configuration directory")
	fs.StringVar(&envFile, "env-file", ".env", "file holding secrets as environment variables")
	fs.BoolVar(&version, "version", false, "print version and exit")
	fs.Usage = func() { printHelp(fs) }
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	if version {
		fmt.Printf("farmbot %s (build %s, %s)\n", config.Version, buildID, buildTime)
		return
	}

	envErr := godotenv.Load(envFile)

	if args := fs.Args(); len(args) > 0 {
		switch args[0] {
		case "new-agent":
			if len(args) != 2 {
				printHelp(fs)
				os.Exit(2)
			}
			if err := config.CreateFromTemplate(configDir, args[1]); err != nil {
				log.Fatalf("Error creating agent: %s", err.Error())
			}
			fmt.Printf("Created %s/%s, fill in the account details and enable it\n", configDir, args[1])
			return
		default:
			printHelp(fs)
			os.Exit(2)
		}
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		log.Fatalf("Error loading configuration: %s", err.Error())
	}
	fb := cfg.Farmbot

	logger, err := sloggger.NewLogger(fb.Debug.Log, fb.LogSaveDirectory, "")
	if err != nil {
		log.Fatalf("Error starting logger: %s", err.Error())
	}
	defer sloggger.FlushAndClose()

	if envErr != nil {
		logger.Info("No env file found, using the process environment", slog.String("file", envFile))
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Sprintf("fatal error detected, farmbot will close: %v\n Stacktrace: %s", r, debug.Stack()))
			sloggger.FlushAndClose()
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	eventListener := event.NewListener(logger)

	dialer := bridge.NewDialer(bridge.Config{
		URL:              fb.Bridge.URL,
		HandshakeTimeout: fb.Bridge.HandshakeTimeout,
		AckTimeout:       fb.Bridge.AckTimeout,
		ChatInterval:     fb.Bridge.ChatInterval,
		ChatBurst:        fb.Bridge.ChatBurst,
	}, logger)

	var generator assistant.Generator
	if fb.Assistant.APIKey != "" {
		gemini, err := assistant.NewGemini(ctx, fb.Assistant.APIKey, fb.Assistant.Model)
		if err != nil {
			logger.Warn("Chat assistant disabled", slog.Any("error", err))
		} else {
			generator = gemini
		}
	} else {
		logger.Info("No Gemini API key set, chat assistant disabled")
	}

	// Interfaces stay nil when the ledger is off so the remotes fall back to
	// live stats.
	var (
		discordEarnings  discord.Earnings
		telegramEarnings telegram.Earnings
	)
	if fb.Ledger.Enabled {
		led, err := ledger.New(fb.Ledger.Path, logger)
		if err != nil {
			logger.Error("Ledger could not be opened", slog.Any("error", err))
		} else {
			defer led.Close()
			eventListener.Register(led.Handle)
			discordEarnings = led
			telegramEarnings = led
		}
	}

	manager := bot.NewManager(bot.ManagerOptions{
		Config:    cfg,
		Dialer:    dialer,
		Generator: generator,
		Events:    eventListener,
		Logger:    logger,
		AgentLogger: func(name string) (*slog.Logger, error) {
			return sloggger.NewLogger(fb.Debug.Log, fb.LogSaveDirectory, name)
		},
		Flush: sloggger.FlushAndClose,
		Exit:  os.Exit,
	})

	if fb.Discord.Enabled {
		discordBot, err := discord.NewBot(fb, manager, discordEarnings, logger)
		if err != nil {
			logger.Error("Discord could not been initialized", slog.Any("error", err))
		} else {
			eventListener.Register(discordBot.Handle)
			g.Go(wrapWithRecover(logger, func() error {
				return discordBot.Start(ctx)
			}))
		}
	}

	if fb.Telegram.Enabled {
		telegramBot, err := telegram.NewBot(fb.Telegram.Token, fb.Telegram.ChatID, manager, telegramEarnings, logger)
		if err != nil {
			logger.Error("Telegram could not been initialized", slog.Any("error", err))
		} else {
			eventListener.Register(telegramBot.Handle)
			g.Go(wrapWithRecover(logger, func() error {
				return telegramBot.Start(ctx)
			}))
		}
	}

	g.Go(wrapWithRecover(logger, func() error {
		return eventListener.Listen(ctx)
	}))

	g.Go(wrapWithRecover(logger, func() error {
		logger.Info("Starting fleet", slog.Int("agents", len(cfg.Agents)), slog.String("server", fb.Server.Host))
		return manager.Run(ctx)
	}))

	if err := g.Wait(); err != nil {
		logger.Error("Error running farmbot", slog.Any("error", err))
		return
	}
	logger.Info("Farmbot shut down")
}
